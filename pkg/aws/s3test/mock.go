// Package s3test provides an in-memory S3 for tests.
package s3test

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

func NewMockS3() *MockS3 {
	return &MockS3{
		buckets: map[string]map[string]object{},
	}
}

type object struct {
	data     []byte
	metadata map[string]*string
}

// MockS3 mimics an S3 blob store for testing. Setting PutErr or ListErr
// makes the corresponding calls fail.
type MockS3 struct {
	sync.RWMutex
	buckets map[string]map[string]object
	s3iface.S3API

	PutErr  error
	ListErr error
	// ListCalls records the input of every ListObjectsV2 page request.
	ListCalls []s3.ListObjectsV2Input
}

func (m *MockS3) NewBucket(name string) {
	m.Lock()
	defer m.Unlock()
	m.buckets[name] = map[string]object{}
}

// Keys returns the keys of bucket in lexical order.
func (m *MockS3) Keys(bucket string) []string {
	m.RLock()
	defer m.RUnlock()
	return sortedKeys(m.buckets[bucket])
}

// Metadata returns the user metadata stored with a key.
func (m *MockS3) Metadata(bucket, key string) map[string]string {
	m.RLock()
	defer m.RUnlock()
	return aws.StringValueMap(m.buckets[bucket][key].metadata)
}

func (m *MockS3) PutObjectWithContext(ctx aws.Context, in *s3.PutObjectInput, _ ...request.Option) (*s3.PutObjectOutput, error) {
	return m.PutObject(in)
}

func (m *MockS3) PutObject(in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
	if m.PutErr != nil {
		return nil, m.PutErr
	}
	data, err := ioutil.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	m.Lock()
	defer m.Unlock()

	bucket, ok := m.buckets[*in.Bucket]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchBucket, fmt.Sprintf("bucket '%s' does not exist", *in.Bucket), nil)
	}

	bucket[*in.Key] = object{data: data, metadata: in.Metadata}
	return &s3.PutObjectOutput{}, nil
}

func (m *MockS3) GetObjectWithContext(ctx aws.Context, in *s3.GetObjectInput, _ ...request.Option) (*s3.GetObjectOutput, error) {
	return m.GetObject(in)
}

func (m *MockS3) GetObject(in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
	m.RLock()
	defer m.RUnlock()

	bucket, ok := m.buckets[*in.Bucket]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchBucket, fmt.Sprintf("bucket '%s' does not exist", *in.Bucket), nil)
	}

	obj, ok := bucket[*in.Key]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, fmt.Sprintf("key '%s' does not exist in bucket '%s'", *in.Key, *in.Bucket), nil)
	}

	return &s3.GetObjectOutput{
		Body:     ioutil.NopCloser(bytes.NewBuffer(obj.data)),
		Metadata: obj.metadata,
	}, nil
}

func (m *MockS3) ListObjectsV2PagesWithContext(ctx aws.Context, in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool, _ ...request.Option) error {
	input := *in
	for {
		out, err := m.ListObjectsV2WithContext(ctx, &input)
		if err != nil {
			return err
		}
		lastPage := !aws.BoolValue(out.IsTruncated)
		if !fn(out, lastPage) || lastPage {
			return nil
		}
		input.ContinuationToken = out.NextContinuationToken
	}
}

func (m *MockS3) ListObjectsV2WithContext(ctx aws.Context, in *s3.ListObjectsV2Input, _ ...request.Option) (*s3.ListObjectsV2Output, error) {
	return m.ListObjectsV2(in)
}

// ListObjectsV2 honours Prefix, StartAfter, MaxKeys and ContinuationToken.
// The continuation token is the offset of the next key.
func (m *MockS3) ListObjectsV2(in *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error) {
	m.Lock()
	m.ListCalls = append(m.ListCalls, *in)
	m.Unlock()

	if m.ListErr != nil {
		return nil, m.ListErr
	}

	m.RLock()
	defer m.RUnlock()

	bucket, ok := m.buckets[*in.Bucket]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchBucket, fmt.Sprintf("bucket '%s' does not exist", *in.Bucket), nil)
	}

	prefix := aws.StringValue(in.Prefix)
	startAfter := aws.StringValue(in.StartAfter)
	var matching []string
	for _, key := range sortedKeys(bucket) {
		if strings.HasPrefix(key, prefix) && key > startAfter {
			matching = append(matching, key)
		}
	}

	offset := 0
	if in.ContinuationToken != nil {
		var err error
		if offset, err = strconv.Atoi(*in.ContinuationToken); err != nil {
			return nil, awserr.New("InvalidArgument", "invalid continuation token", err)
		}
	}
	if offset > len(matching) {
		offset = len(matching)
	}
	maxKeys := int(aws.Int64Value(in.MaxKeys))
	if maxKeys <= 0 {
		maxKeys = 1000
	}
	end := offset + maxKeys
	if end > len(matching) {
		end = len(matching)
	}

	var objects []*s3.Object
	for _, key := range matching[offset:end] {
		objKey := key
		objects = append(objects, &s3.Object{Key: &objKey})
	}
	out := new(s3.ListObjectsV2Output)
	out.SetContents(objects)
	out.SetKeyCount(int64(len(objects)))
	out.SetIsTruncated(end < len(matching))
	if end < len(matching) {
		out.SetNextContinuationToken(strconv.Itoa(end))
	}
	return out, nil
}

func sortedKeys(bucket map[string]object) []string {
	keys := make([]string, 0, len(bucket))
	for k := range bucket {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
