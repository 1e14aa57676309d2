package aws

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/ioutil"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/client"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	log "github.com/sirupsen/logrus"
)

// maxS3Keys is the maximum amount of keys to be returned by a single S3
// list objects API response
const maxS3Keys = 1000

// Store is an S3 bucket holding exported artifacts.
type Store struct {
	logger log.FieldLogger
	s3API  s3iface.S3API
	bucket string
}

func NewStore(logger log.FieldLogger, s3API s3iface.S3API, bucket string) *Store {
	return &Store{
		logger: logger.WithFields(log.Fields{"component": "store", "bucket": bucket}),
		s3API:  s3API,
		bucket: bucket,
	}
}

// NewS3Store creates a Store using a new S3 client for the given session.
func NewS3Store(logger log.FieldLogger, p client.ConfigProvider, bucket string) *Store {
	return NewStore(logger, s3.New(p), bucket)
}

func (s *Store) Bucket() string {
	return s.bucket
}

// List returns every key under prefix that sorts after startAfter, following
// pagination. A missing prefix yields no keys and no error.
func (s *Store) List(ctx context.Context, prefix, startAfter string) ([]string, error) {
	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(s.bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int64(maxS3Keys),
	}
	if startAfter != "" {
		input.StartAfter = aws.String(startAfter)
	}

	var keys []string
	pages := 0
	err := s.s3API.ListObjectsV2PagesWithContext(ctx, input, func(out *s3.ListObjectsV2Output, lastPage bool) bool {
		pages++
		for _, obj := range out.Contents {
			keys = append(keys, aws.StringValue(obj.Key))
		}
		return true
	})
	if err != nil {
		if IsNotFound(err) {
			s.logger.Debugf("nothing stored under s3://%s/%s", s.bucket, prefix)
			return nil, nil
		}
		return nil, fmt.Errorf("failed to list s3://%s/%s: %v", s.bucket, prefix, err)
	}
	s.logger.Debugf("listed %d keys in %d pages under s3://%s/%s", len(keys), pages, s.bucket, prefix)
	return keys, nil
}

// Put uploads body to key with the given object metadata.
func (s *Store) Put(ctx context.Context, key string, body io.ReadSeeker, metadata map[string]string) error {
	input := &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
		Body:   body,
	}
	if len(metadata) > 0 {
		input.Metadata = aws.StringMap(metadata)
	}
	if _, err := s.s3API.PutObjectWithContext(ctx, input); err != nil {
		return fmt.Errorf("failed to upload s3://%s/%s: %v", s.bucket, key, err)
	}
	return nil
}

// Get downloads the object stored at key.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	out, err := s.s3API.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get s3://%s/%s: %w", s.bucket, key, err)
	}
	defer out.Body.Close()
	return ioutil.ReadAll(out.Body)
}

// IsNotFound reports whether err is S3's "no such key".
func IsNotFound(err error) bool {
	var aerr awserr.Error
	if !errors.As(err, &aerr) {
		return false
	}
	switch aerr.Code() {
	case s3.ErrCodeNoSuchKey, "NotFound":
		return true
	}
	return false
}
