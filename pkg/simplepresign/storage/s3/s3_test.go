package s3

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tendant/simple-presign/pkg/simplepresign"
)

type fakeAPI struct {
	headObject    func(*s3.HeadObjectInput) (*s3.HeadObjectOutput, error)
	listInput     *s3.ListObjectsV2Input
	listOutput    *s3.ListObjectsV2Output
	deleted       []string
	headBucketErr error
	created       []string
}

func (f *fakeAPI) HeadObject(_ context.Context, in *s3.HeadObjectInput, _ ...func(*s3.Options)) (*s3.HeadObjectOutput, error) {
	return f.headObject(in)
}

func (f *fakeAPI) ListObjectsV2(_ context.Context, in *s3.ListObjectsV2Input, _ ...func(*s3.Options)) (*s3.ListObjectsV2Output, error) {
	f.listInput = in
	return f.listOutput, nil
}

func (f *fakeAPI) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	f.deleted = append(f.deleted, aws.ToString(in.Key))
	return &s3.DeleteObjectOutput{}, nil
}

func (f *fakeAPI) HeadBucket(context.Context, *s3.HeadBucketInput, ...func(*s3.Options)) (*s3.HeadBucketOutput, error) {
	return &s3.HeadBucketOutput{}, f.headBucketErr
}

func (f *fakeAPI) CreateBucket(_ context.Context, in *s3.CreateBucketInput, _ ...func(*s3.Options)) (*s3.CreateBucketOutput, error) {
	f.created = append(f.created, aws.ToString(in.Bucket))
	return &s3.CreateBucketOutput{}, nil
}

type fakePresigner struct {
	put     *s3.PutObjectInput
	get     *s3.GetObjectInput
	expires time.Duration
	err     error
}

func (f *fakePresigner) PresignPutObject(_ context.Context, in *s3.PutObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.put = in
	f.capture(optFns)
	if f.err != nil {
		return nil, f.err
	}
	return &v4.PresignedHTTPRequest{
		URL:    "https://bucket.s3.amazonaws.com/" + aws.ToString(in.Key) + "?X-Amz-Signature=abc",
		Method: http.MethodPut,
		SignedHeader: http.Header{
			"Host":           []string{"bucket.s3.amazonaws.com"},
			"Content-Type":   []string{aws.ToString(in.ContentType)},
			"Content-Length": []string{"1024"},
		},
	}, nil
}

func (f *fakePresigner) PresignGetObject(_ context.Context, in *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error) {
	f.get = in
	f.capture(optFns)
	return &v4.PresignedHTTPRequest{
		URL:    "https://bucket.s3.amazonaws.com/" + aws.ToString(in.Key) + "?X-Amz-Signature=def",
		Method: http.MethodGet,
	}, f.err
}

func (f *fakePresigner) capture(optFns []func(*s3.PresignOptions)) {
	var opts s3.PresignOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	f.expires = opts.Expires
}

func TestPresignPut(t *testing.T) {
	presigner := &fakePresigner{}
	b := NewWithClients(Config{Bucket: "bucket", EnableSSE: true, SSEAlgorithm: "aws:kms", SSEKMSKeyID: "key-1"}, &fakeAPI{}, presigner)

	req, err := b.PresignPut(context.Background(), "uploads/abc.pdf", simplepresign.PutOptions{
		ContentType:   "application/pdf",
		ContentLength: 1024,
		Expires:       10 * time.Minute,
	})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPut, req.Method)
	assert.Contains(t, req.URL, "uploads/abc.pdf")
	assert.Equal(t, "application/pdf", req.Headers.Get("Content-Type"))
	assert.Empty(t, req.Headers.Get("Host"))

	assert.Equal(t, "bucket", aws.ToString(presigner.put.Bucket))
	assert.Equal(t, "application/pdf", aws.ToString(presigner.put.ContentType))
	assert.Equal(t, int64(1024), aws.ToInt64(presigner.put.ContentLength))
	assert.Equal(t, types.ServerSideEncryptionAwsKms, presigner.put.ServerSideEncryption)
	assert.Equal(t, "key-1", aws.ToString(presigner.put.SSEKMSKeyId))
	assert.Equal(t, 10*time.Minute, presigner.expires)
}

func TestPresignPutWithoutLength(t *testing.T) {
	presigner := &fakePresigner{}
	b := NewWithClients(Config{Bucket: "bucket"}, &fakeAPI{}, presigner)

	_, err := b.PresignPut(context.Background(), "uploads/a.txt", simplepresign.PutOptions{ContentType: "text/plain", Expires: time.Minute})
	require.NoError(t, err)
	assert.Nil(t, presigner.put.ContentLength)
	assert.Empty(t, presigner.put.ServerSideEncryption)
}

func TestPresignPutFailure(t *testing.T) {
	b := NewWithClients(Config{Bucket: "bucket"}, &fakeAPI{}, &fakePresigner{err: errors.New("no credentials")})

	_, err := b.PresignPut(context.Background(), "k", simplepresign.PutOptions{Expires: time.Minute})
	assert.ErrorContains(t, err, "no credentials")
}

func TestPresignGet(t *testing.T) {
	presigner := &fakePresigner{}
	b := NewWithClients(Config{Bucket: "bucket"}, &fakeAPI{}, presigner)

	req, err := b.PresignGet(context.Background(), "uploads/abc.pdf", 5*time.Minute)
	require.NoError(t, err)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "uploads/abc.pdf", aws.ToString(presigner.get.Key))
	assert.Equal(t, 5*time.Minute, presigner.expires)
}

func TestHeadObjectNotFound(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"typed not found", &types.NotFound{}},
		{"typed no such key", &types.NoSuchKey{}},
		{"generic 404", &smithy.GenericAPIError{Code: "404", Message: "Not Found"}},
		{"generic NoSuchKey", &smithy.GenericAPIError{Code: "NoSuchKey"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			api := &fakeAPI{headObject: func(*s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
				return nil, tt.err
			}}
			b := NewWithClients(Config{Bucket: "bucket"}, api, &fakePresigner{})

			_, err := b.HeadObject(context.Background(), "uploads/missing.pdf")
			assert.ErrorIs(t, err, simplepresign.ErrNotFound)
		})
	}
}

func TestHeadObjectOtherErrors(t *testing.T) {
	api := &fakeAPI{headObject: func(*s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
		return nil, &smithy.GenericAPIError{Code: "AccessDenied"}
	}}
	b := NewWithClients(Config{Bucket: "bucket"}, api, &fakePresigner{})

	_, err := b.HeadObject(context.Background(), "k")
	require.Error(t, err)
	assert.NotErrorIs(t, err, simplepresign.ErrNotFound)
}

func TestHeadObject(t *testing.T) {
	modified := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeAPI{headObject: func(in *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
		return &s3.HeadObjectOutput{
			ContentLength: aws.Int64(2048),
			ContentType:   aws.String("image/png"),
			LastModified:  aws.Time(modified),
			ETag:          aws.String(`"etag-1"`),
		}, nil
	}}
	b := NewWithClients(Config{Bucket: "bucket"}, api, &fakePresigner{})

	meta, err := b.HeadObject(context.Background(), "uploads/a.png")
	require.NoError(t, err)
	assert.Equal(t, simplepresign.ObjectMeta{
		Key:          "uploads/a.png",
		Size:         2048,
		ContentType:  "image/png",
		LastModified: modified,
		ETag:         "etag-1",
	}, *meta)
}

func TestListObjects(t *testing.T) {
	modified := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	api := &fakeAPI{listOutput: &s3.ListObjectsV2Output{
		Contents: []types.Object{
			{Key: aws.String("uploads/a.pdf"), Size: aws.Int64(10), LastModified: aws.Time(modified), ETag: aws.String(`"e1"`)},
			{Key: aws.String("uploads/b.pdf"), Size: aws.Int64(20), LastModified: aws.Time(modified), ETag: aws.String(`"e2"`)},
		},
	}}
	b := NewWithClients(Config{Bucket: "bucket"}, api, &fakePresigner{})

	files, err := b.ListObjects(context.Background(), "uploads/", 50)
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "uploads/b.pdf", files[1].Key)
	assert.Equal(t, int64(20), files[1].Size)
	assert.Equal(t, "e1", files[0].ETag)

	assert.Equal(t, "uploads/", aws.ToString(api.listInput.Prefix))
	assert.Equal(t, int32(50), aws.ToInt32(api.listInput.MaxKeys))
}

func TestDeleteAndHeadBucket(t *testing.T) {
	api := &fakeAPI{}
	b := NewWithClients(Config{Bucket: "bucket"}, api, &fakePresigner{})

	require.NoError(t, b.DeleteObject(context.Background(), "uploads/a.pdf"))
	assert.Equal(t, []string{"uploads/a.pdf"}, api.deleted)

	require.NoError(t, b.HeadBucket(context.Background()))
	api.headBucketErr = errors.New("connection refused")
	assert.ErrorContains(t, b.HeadBucket(context.Background()), "connection refused")
}

func TestCreateBucketIfNotExists(t *testing.T) {
	api := &fakeAPI{headBucketErr: &types.NotFound{}}
	b := NewWithClients(Config{Bucket: "bucket", Region: "us-east-1"}, api, &fakePresigner{})

	require.NoError(t, b.createBucketIfNotExists(context.Background()))
	assert.Equal(t, []string{"bucket"}, api.created)
}

func TestNewRequiresBucket(t *testing.T) {
	_, err := New(context.Background(), Config{})
	assert.EqualError(t, err, "bucket name is required")
}
