package aws

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/aws/aws-sdk-go/service/secretsmanager/secretsmanageriface"
	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kube-reporting/allocation-exporter/pkg/aws/s3test"
)

const testBucket = "kubecost-data"

func newTestStore(t *testing.T) (*Store, *s3test.MockS3) {
	t.Helper()
	mock := s3test.NewMockS3()
	mock.NewBucket(testBucket)
	return NewStore(log.New(), mock, testBucket), mock
}

func TestStoreList(t *testing.T) {
	store, mock := newTestStore(t)
	ctx := context.Background()

	// more keys than fit in one page
	for i := 0; i < maxS3Keys+5; i++ {
		key := fmt.Sprintf("account_id=1/region=us-east-1/year=2024/month=01/obj-%04d", i)
		require.NoError(t, store.Put(ctx, key, bytes.NewReader(nil), nil))
	}
	require.NoError(t, store.Put(ctx, "account_id=1/region=us-east-1/year=2023/month=12/old", bytes.NewReader(nil), nil))
	require.NoError(t, store.Put(ctx, "account_id=2/region=us-east-1/year=2024/month=01/other", bytes.NewReader(nil), nil))

	keys, err := store.List(ctx, "account_id=1/region=us-east-1/", "account_id=1/region=us-east-1/year=2024/month=01/")
	require.NoError(t, err)
	assert.Len(t, keys, maxS3Keys+5)
	assert.Len(t, mock.ListCalls, 2, "listing must follow pagination")
	assert.Equal(t, "account_id=1/region=us-east-1/year=2024/month=01/", aws.StringValue(mock.ListCalls[0].StartAfter))

	keys, err = store.List(ctx, "account_id=3/", "")
	require.NoError(t, err)
	assert.Empty(t, keys)
}

func TestStoreListErrors(t *testing.T) {
	store, mock := newTestStore(t)

	mock.ListErr = awserr.New(s3.ErrCodeNoSuchKey, "no such key", nil)
	keys, err := store.List(context.Background(), "account_id=1/", "")
	require.NoError(t, err)
	assert.Empty(t, keys)

	mock.ListErr = awserr.New("AccessDenied", "access denied", nil)
	_, err = store.List(context.Background(), "account_id=1/", "")
	assert.Error(t, err)
}

func TestStorePutGet(t *testing.T) {
	store, mock := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, "a/b", bytes.NewReader([]byte("data")), map[string]string{"xxh3": "abc"}))
	data, err := store.Get(ctx, "a/b")
	require.NoError(t, err)
	assert.Equal(t, []byte("data"), data)
	assert.Equal(t, map[string]string{"xxh3": "abc"}, mock.Metadata(testBucket, "a/b"))

	_, err = store.Get(ctx, "missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))

	mock.PutErr = errors.New("network down")
	assert.Error(t, store.Put(ctx, "a/c", bytes.NewReader(nil), nil))
	assert.Equal(t, []string{"a/b"}, mock.Keys(testBucket))
}

type fakeSecretsManager struct {
	secretsmanageriface.SecretsManagerAPI
	secrets map[string]*secretsmanager.GetSecretValueOutput
}

func (f *fakeSecretsManager) GetSecretValueWithContext(ctx aws.Context, in *secretsmanager.GetSecretValueInput, _ ...request.Option) (*secretsmanager.GetSecretValueOutput, error) {
	out, ok := f.secrets[aws.StringValue(in.SecretId)]
	if !ok {
		return nil, awserr.New(secretsmanager.ErrCodeResourceNotFoundException, "not found", nil)
	}
	return out, nil
}

func TestFetchCABundle(t *testing.T) {
	reader := NewSecretReader(&fakeSecretsManager{secrets: map[string]*secretsmanager.GetSecretValueOutput{
		"string": {SecretString: aws.String("-----BEGIN CERTIFICATE-----")},
		"binary": {SecretBinary: []byte("pem")},
		"empty":  {},
	}})
	ctx := context.Background()

	data, err := reader.FetchCABundle(ctx, "string")
	require.NoError(t, err)
	assert.Equal(t, []byte("-----BEGIN CERTIFICATE-----"), data)

	data, err = reader.FetchCABundle(ctx, "binary")
	require.NoError(t, err)
	assert.Equal(t, []byte("pem"), data)

	_, err = reader.FetchCABundle(ctx, "empty")
	assert.Error(t, err)
	_, err = reader.FetchCABundle(ctx, "missing")
	assert.Error(t, err)
}

func TestNewSession(t *testing.T) {
	sess, err := NewSession(SessionConfig{Region: "us-east-1"})
	require.NoError(t, err)
	assert.Equal(t, "us-east-1", aws.StringValue(sess.Config.Region))

	assumed, err := NewSession(SessionConfig{Region: "us-east-1", RoleARN: "arn:aws:iam::111111111111:role/exporter"})
	require.NoError(t, err)
	assert.NotSame(t, sess.Config.Credentials, assumed.Config.Credentials)
}
