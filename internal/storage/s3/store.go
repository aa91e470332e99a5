// Package s3 is an AWS S3 implementation of storage.Store.
package s3

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	fstorage "github.com/fileforge/fileforge/internal/storage"
)

// Client defines the subset of S3 operations Store depends on, the way the
// rest of the pack narrows aws-sdk-go-v2 clients down to an interface at the
// package boundary so tests can substitute a fake.
type Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	DeleteObject(ctx context.Context, params *s3.DeleteObjectInput, optFns ...func(*s3.Options)) (*s3.DeleteObjectOutput, error)
	HeadObject(ctx context.Context, params *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
}

var _ Client = (*s3.Client)(nil)

// Store is an S3-backed implementation of storage.Store.
type Store struct {
	client Client
	bucket string
	signer *s3.PresignClient
}

var _ fstorage.Store = (*Store)(nil)

// NewStore builds a Store against bucket using the default AWS config chain.
func NewStore(ctx context.Context, bucket string) (*Store, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := s3.NewFromConfig(cfg)
	return &Store{client: client, bucket: bucket, signer: s3.NewPresignClient(client)}, nil
}

// NewStoreWithClient builds a Store from an already-configured client,
// letting tests inject a fake satisfying Client.
func NewStoreWithClient(client Client, bucket string) *Store {
	return &Store{client: client, bucket: bucket}
}

// Upload puts r's contents at key.
func (s *Store) Upload(ctx context.Context, key string, r io.Reader, size int64, contentType string) (fstorage.ObjectMetadata, error) {
	body, err := readAllSeeker(r, size)
	if err != nil {
		return fstorage.ObjectMetadata{}, err
	}

	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: aws.Int64(size),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		return fstorage.ObjectMetadata{}, fmt.Errorf("failed to put object: %w", err)
	}
	return fstorage.ObjectMetadata{Key: key, Size: size, ContentType: contentType}, nil
}

// Download opens a reader over the object at key.
func (s *Store) Download(ctx context.Context, key string) (io.ReadCloser, error) {
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, fstorage.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	return out.Body, nil
}

// Delete removes the object at key.
func (s *Store) Delete(ctx context.Context, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete object: %w", err)
	}
	return nil
}

// Stat returns the object's headers without fetching its body.
func (s *Store) Stat(ctx context.Context, key string) (fstorage.ObjectMetadata, error) {
	out, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		var notFound *types.NotFound
		if errors.As(err, &notFound) {
			return fstorage.ObjectMetadata{}, fstorage.ErrNotFound
		}
		return fstorage.ObjectMetadata{}, fmt.Errorf("failed to head object: %w", err)
	}

	meta := fstorage.ObjectMetadata{Key: key}
	if out.ContentLength != nil {
		meta.Size = *out.ContentLength
	}
	if out.ContentType != nil {
		meta.ContentType = *out.ContentType
	}
	if out.ETag != nil {
		meta.ETag = *out.ETag
	}
	return meta, nil
}

// SignedURL returns a presigned GET URL valid for ttl.
func (s *Store) SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error) {
	if s.signer == nil {
		return "", fmt.Errorf("store was not constructed with a presign client")
	}
	req, err := s.signer.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign url: %w", err)
	}
	return req.URL, nil
}

func readAllSeeker(r io.Reader, size int64) (io.ReadSeeker, error) {
	if rs, ok := r.(io.ReadSeeker); ok {
		return rs, nil
	}
	buf := make([]byte, 0, size)
	data, err := io.ReadAll(io.LimitReader(r, size+1))
	if err != nil {
		return nil, fmt.Errorf("failed to buffer upload body: %w", err)
	}
	buf = append(buf, data...)
	return &byteSeeker{data: buf}, nil
}

// byteSeeker adapts an in-memory buffer to io.ReadSeeker for S3's PutObject,
// which needs to retry its upload (and so requires a seekable body).
type byteSeeker struct {
	data []byte
	pos  int64
}

func (b *byteSeeker) Read(p []byte) (int, error) {
	if b.pos >= int64(len(b.data)) {
		return 0, io.EOF
	}
	n := copy(p, b.data[b.pos:])
	b.pos += int64(n)
	return n, nil
}

func (b *byteSeeker) Seek(offset int64, whence int) (int64, error) {
	var newPos int64
	switch whence {
	case io.SeekStart:
		newPos = offset
	case io.SeekCurrent:
		newPos = b.pos + offset
	case io.SeekEnd:
		newPos = int64(len(b.data)) + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if newPos < 0 {
		return 0, fmt.Errorf("negative seek position")
	}
	b.pos = newPos
	return newPos, nil
}
