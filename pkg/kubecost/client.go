// Package kubecost queries the Kubecost allocation and assets APIs.
package kubecost

import (
	"bytes"
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	promapi "github.com/prometheus/client_golang/api"
	log "github.com/sirupsen/logrus"

	exporterrors "github.com/kube-reporting/allocation-exporter/pkg/errors"
	"github.com/kube-reporting/allocation-exporter/pkg/window"
)

const (
	AllocationEndpoint = "/model/allocation/compute"
	AssetsEndpoint     = "/model/assets"

	GranularityHourly = "hourly"
	GranularityDaily  = "daily"

	// AggregationContainer is the API's default aggregation; the aggregate
	// parameter is omitted for it.
	AggregationContainer = "container"
	AggregationCluster   = "cluster"
)

// Aggregations lists the aggregation levels the exporter supports.
var Aggregations = []string{"container", "pod", "namespace", "controller", "controllerKind", "node", "cluster"}

// Entry is one time-series entry of a response: aggregation key to record.
type Entry map[string]interface{}

type TLSConfig struct {
	Verify   bool
	CABundle []byte
}

type Config struct {
	Endpoint string
	TLS      TLSConfig

	ConnectTimeout        time.Duration
	AllocationReadTimeout time.Duration
	AssetsReadTimeout     time.Duration

	Aggregation string
	Granularity string
	Resolution  string
	Paginate    bool
	Accumulate  bool
	IncludeIdle bool
	IdleByNode  bool
	ShareIdle   bool
}

// Step returns the query step matching the configured granularity.
func (cfg Config) Step() string {
	if cfg.Granularity == GranularityDaily {
		return "1d"
	}
	return "1h"
}

// AllocationOptions are the allocation query parameters besides the window.
type AllocationOptions struct {
	Aggregation string
	Step        string
	Resolution  string
	Accumulate  bool
	IncludeIdle bool
	IdleByNode  bool
	ShareIdle   bool
}

func (o AllocationOptions) values(w window.Window) url.Values {
	v := url.Values{}
	v.Set("window", w.QueryString())
	if o.Aggregation != "" && o.Aggregation != AggregationContainer {
		v.Set("aggregate", o.Aggregation)
	}
	v.Set("accumulate", strconv.FormatBool(o.Accumulate))
	if o.Step != "" {
		v.Set("step", o.Step)
	}
	if o.Resolution != "" {
		v.Set("resolution", o.Resolution)
	}
	v.Set("includeIdle", strconv.FormatBool(o.IncludeIdle))
	v.Set("idleByNode", strconv.FormatBool(o.IdleByNode))
	v.Set("shareIdle", strconv.FormatBool(o.ShareIdle))
	return v
}

type response struct {
	Code    int     `json:"code"`
	Data    []Entry `json:"data"`
	Message string  `json:"message"`
	Error   string  `json:"error"`
}

// Client talks to one Kubecost endpoint. Allocation and assets queries use
// separate transports so each carries its own read timeout.
type Client struct {
	logger     log.FieldLogger
	endpoint   string
	allocation promapi.Client
	assets     promapi.Client
}

// NewClient builds a client from cfg. The CA bundle, if any, is only trusted
// by this client.
func NewClient(logger log.FieldLogger, cfg Config) (*Client, error) {
	if _, err := url.Parse(cfg.Endpoint); err != nil {
		return nil, exporterrors.Configuration("invalid Kubecost API endpoint %q: %v", cfg.Endpoint, err)
	}
	allocation, err := newAPIClient(cfg.Endpoint, cfg.TLS, cfg.ConnectTimeout, cfg.AllocationReadTimeout)
	if err != nil {
		return nil, err
	}
	assets, err := newAPIClient(cfg.Endpoint, cfg.TLS, cfg.ConnectTimeout, cfg.AssetsReadTimeout)
	if err != nil {
		return nil, err
	}
	return &Client{
		logger:     logger.WithField("component", "kubecost"),
		endpoint:   cfg.Endpoint,
		allocation: allocation,
		assets:     assets,
	}, nil
}

func newAPIClient(endpoint string, tlsCfg TLSConfig, connectTimeout, readTimeout time.Duration) (promapi.Client, error) {
	tlsClientConfig := &tls.Config{InsecureSkipVerify: !tlsCfg.Verify}
	if len(tlsCfg.CABundle) > 0 {
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(tlsCfg.CABundle) {
			return nil, exporterrors.Configuration("the Kubecost CA bundle does not contain any PEM certificate")
		}
		tlsClientConfig.RootCAs = pool
	}
	transport := &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   connectTimeout,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSClientConfig:       tlsClientConfig,
		TLSHandshakeTimeout:   connectTimeout,
		ResponseHeaderTimeout: readTimeout,
		MaxIdleConns:          10,
		IdleConnTimeout:       90 * time.Second,
	}
	client, err := promapi.NewClient(promapi.Config{
		Address:      endpoint,
		RoundTripper: transport,
	})
	if err != nil {
		return nil, exporterrors.Configuration("can't create Kubecost API client: %v", err)
	}
	return client, nil
}

// QueryAllocation runs one allocation query over w.
func (c *Client) QueryAllocation(ctx context.Context, w window.Window, opts AllocationOptions) ([]Entry, error) {
	return c.get(ctx, c.allocation, AllocationEndpoint, opts.values(w))
}

// QueryAssets returns the node assets over w, accumulated into one entry.
func (c *Client) QueryAssets(ctx context.Context, w window.Window) ([]Entry, error) {
	v := url.Values{}
	v.Set("window", w.QueryString())
	v.Set("accumulate", "true")
	v.Set("filterCategories", "Compute")
	v.Set("filterTypes", "Node")
	return c.get(ctx, c.assets, AssetsEndpoint, v)
}

func (c *Client) get(ctx context.Context, client promapi.Client, endpoint string, params url.Values) ([]Entry, error) {
	u := client.URL(endpoint, nil)
	u.RawQuery = params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, exporterrors.Configuration("can't build request for %s: %v", endpoint, err)
	}

	logger := c.logger.WithFields(log.Fields{
		"endpoint": endpoint,
		"window":   params.Get("window"),
	})
	logger.Debugf("querying Kubecost API")
	start := time.Now()
	resp, body, err := client.Do(ctx, req)
	requestDuration.WithLabelValues(endpoint, outcome(resp, err)).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, classify(err, c.endpoint, endpoint)
	}

	var r response
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	if decodeErr := dec.Decode(&r); decodeErr != nil {
		if resp.StatusCode != http.StatusOK {
			return nil, exporterrors.SourceUnavailable(exporterrors.StageFetch,
				fmt.Errorf("%s%s returned HTTP %d: %s", c.endpoint, endpoint, resp.StatusCode, truncate(body, 256)))
		}
		return nil, exporterrors.SourceUnavailable(exporterrors.StageFetch,
			fmt.Errorf("%s%s returned a response that is not valid JSON, check whether the endpoint should use http or https: %v", c.endpoint, endpoint, decodeErr))
	}
	if resp.StatusCode != http.StatusOK {
		msg := r.Error
		if msg == "" {
			msg = r.Message
		}
		return nil, exporterrors.SourceUnavailable(exporterrors.StageFetch,
			fmt.Errorf("%s%s returned HTTP %d: %s", c.endpoint, endpoint, resp.StatusCode, msg))
	}
	logger.WithField("entries", len(r.Data)).Debugf("got Kubecost API response in %s", time.Since(start))
	return r.Data, nil
}

func outcome(resp *http.Response, err error) string {
	if err != nil || resp == nil {
		return "error"
	}
	return strconv.Itoa(resp.StatusCode)
}

func truncate(b []byte, n int) string {
	if len(b) > n {
		return string(b[:n]) + "..."
	}
	return string(b)
}

// HasData reports whether e holds at least one record.
func (e Entry) HasData() bool {
	return len(e) > 0
}
