package kubecost

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"syscall"

	exporterrors "github.com/kube-reporting/allocation-exporter/pkg/errors"
)

// classify turns a transport error into a SourceUnavailable error naming
// the cause.
func classify(err error, base, endpoint string) error {
	var cause string
	var (
		opErr       *net.OpError
		netErr      net.Error
		unknownCA   x509.UnknownAuthorityError
		hostnameErr x509.HostnameError
		invalidCert x509.CertificateInvalidError
		verifyErr   *tls.CertificateVerificationError
		recordErr   tls.RecordHeaderError
	)
	switch {
	case errors.Is(err, context.Canceled):
		cause = "request canceled"
	case errors.As(err, &opErr) && opErr.Op == "dial" && opErr.Timeout():
		cause = "connect timeout, check that the service is reachable or increase the connection timeout"
	case errors.As(err, &netErr) && netErr.Timeout(), errors.Is(err, context.DeadlineExceeded):
		cause = "read timeout waiting for an HTTP response, consider increasing the read timeout"
	case errors.As(err, &unknownCA), errors.As(err, &hostnameErr), errors.As(err, &invalidCert), errors.As(err, &verifyErr):
		cause = "TLS certificate verification failed, check the CA bundle or TLS verification setting"
	case errors.As(err, &recordErr):
		cause = "TLS handshake failed, check whether the endpoint should use http or https"
	case errors.Is(err, syscall.ECONNREFUSED):
		cause = "connection refused, check that the service is listening and that the URL uses the correct port"
	default:
		cause = "request failed"
	}
	return exporterrors.SourceUnavailable(exporterrors.StageFetch, fmt.Errorf("%s%s: %s: %w", base, endpoint, cause, err))
}
