package aws

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"
)

// SecretReader reads PEM trust material stored as a secret.
type SecretReader struct {
	api secretsmanageriface.SecretsManagerAPI
}

func NewSecretReader(api secretsmanageriface.SecretsManagerAPI) *SecretReader {
	return &SecretReader{api: api}
}

// NewSecretsManagerReader creates a SecretReader using a new Secrets Manager
// client for the given session, in region if set.
func NewSecretsManagerReader(p client.ConfigProvider, region string) *SecretReader {
	cfg := aws.NewConfig()
	if region != "" {
		cfg = cfg.WithRegion(region)
	}
	return NewSecretReader(secretsmanager.New(p, cfg))
}

// FetchCABundle returns the contents of the named secret, either its string
// or binary form.
func (r *SecretReader) FetchCABundle(ctx context.Context, name string) ([]byte, error) {
	out, err := r.api.GetSecretValueWithContext(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(name),
	})
	if err != nil {
		return nil, fmt.Errorf("can't get secret %q: %v", name, err)
	}
	if out.SecretString != nil && *out.SecretString != "" {
		return []byte(*out.SecretString), nil
	}
	if len(out.SecretBinary) > 0 {
		return out.SecretBinary, nil
	}
	return nil, fmt.Errorf("secret %q is empty", name)
}
