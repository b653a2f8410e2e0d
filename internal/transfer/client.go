// Package transfer moves bytes to object storage: single PUTs for
// small files and resumable multipart uploads for large ones, with
// byte-level progress reporting.
package transfer

import (
	"context"
	"fmt"
	"runtime"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// ProgressFunc receives the monotonic total of bytes transferred so
// far for one file.
type ProgressFunc func(transferred int64)

// FileUpload describes one whole-file transfer.
type FileUpload struct {
	Key  string
	Path string
	Size int64

	// UploadID is an open multipart session to resume, or empty to
	// start fresh (single PUT or a new multipart session).
	UploadID string

	// OnSession is called once with a newly initiated multipart session
	// id, before any part is sent, so the caller can persist it.
	OnSession func(uploadID string)

	OnProgress ProgressFunc
}

// Client is the storage-transfer surface the engine consumes. *S3
// implements it; tests substitute fakes.
type Client interface {
	UploadFile(ctx context.Context, fu FileUpload) error
	ListParts(ctx context.Context, key, uploadID string) ([]Part, error)
	Abort(ctx context.Context, key, uploadID string) error
	PutData(ctx context.Context, key string, data []byte) error
	SwapSession(sess Session)
	Session() Session
}

// s3API is the subset of the SDK client the transfer layer uses.
type s3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, opts ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	CreateMultipartUpload(ctx context.Context, in *s3.CreateMultipartUploadInput, opts ...func(*s3.Options)) (*s3.CreateMultipartUploadOutput, error)
	UploadPart(ctx context.Context, in *s3.UploadPartInput, opts ...func(*s3.Options)) (*s3.UploadPartOutput, error)
	ListParts(ctx context.Context, in *s3.ListPartsInput, opts ...func(*s3.Options)) (*s3.ListPartsOutput, error)
	CompleteMultipartUpload(ctx context.Context, in *s3.CompleteMultipartUploadInput, opts ...func(*s3.Options)) (*s3.CompleteMultipartUploadOutput, error)
	AbortMultipartUpload(ctx context.Context, in *s3.AbortMultipartUploadInput, opts ...func(*s3.Options)) (*s3.AbortMultipartUploadOutput, error)
}

// S3 transfers file bytes to one bucket/prefix using a renewable
// storage session. Safe for concurrent use across files and parts.
type S3 struct {
	api         s3API
	uploader    *manager.Uploader
	creds       *sessionProvider
	partWorkers int
}

// NewS3 builds a transfer client from a storage session.
func NewS3(ctx context.Context, region string, sess Session) (*S3, error) {
	provider := &sessionProvider{sess: sess}

	cfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(provider),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	client := s3.NewFromConfig(cfg)
	return &S3{
		api:         client,
		uploader:    manager.NewUploader(client),
		creds:       provider,
		partWorkers: partWorkerCount(),
	}, nil
}

func partWorkerCount() int {
	n := runtime.NumCPU() - 1
	if n < 1 {
		n = 1
	}
	return n
}

// SwapSession replaces the storage credentials after renewal. The old
// value is swapped out whole; in-flight requests finish on the
// credentials they already hold.
func (u *S3) SwapSession(sess Session) {
	u.creds.swap(sess)
}

// Session returns the current storage session.
func (u *S3) Session() Session {
	return u.creds.current()
}

// objectKey prefixes a key with the session's key prefix.
func (u *S3) objectKey(key string) string {
	return u.creds.current().Prefix + key
}

func (u *S3) bucket() string {
	return u.creds.current().Bucket
}

// PutData uploads an in-memory document (the archive manifest) through
// the SDK uploader.
func (u *S3) PutData(ctx context.Context, key string, data []byte) error {
	_, err := u.uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(u.bucket()),
		Key:    aws.String(u.objectKey(key)),
		Body:   newByteReader(data),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}
