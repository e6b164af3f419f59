package s3adapter

import (
	"context"
	"fmt"
	"io"
	"path"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	v4 "github.com/aws/aws-sdk-go-v2/aws/signer/v4"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3Client defines the part of the AWS S3 client used for uploads.
type S3Client interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Presigner defines the part of the S3 presign client used for photo links.
type Presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (*v4.PresignedHTTPRequest, error)
}

// EvidenceStore keeps punch selfies in an S3 bucket and hands out
// short-lived links to them.
type EvidenceStore struct {
	client    S3Client
	presigner Presigner
	bucket    string
	ttl       time.Duration
	now       func() time.Time
}

func NewEvidenceStore(client S3Client, presigner Presigner, bucket string, ttl time.Duration) *EvidenceStore {
	return &EvidenceStore{
		client:    client,
		presigner: presigner,
		bucket:    bucket,
		ttl:       ttl,
		now:       time.Now,
	}
}

// NewEvidenceStoreFromClient builds the store and its presigner from one client.
func NewEvidenceStoreFromClient(client *s3.Client, bucket string, ttl time.Duration) *EvidenceStore {
	return NewEvidenceStore(client, s3.NewPresignClient(client), bucket, ttl)
}

// Put uploads body under selfies/<employee>/<yyyy>/<mm>/<uuid><ext> and
// returns the object key.
func (s *EvidenceStore) Put(ctx context.Context, employeeID, contentType string, body io.Reader, size int64) (string, error) {
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	now := s.now().UTC()
	key := path.Join("selfies", employeeID, now.Format("2006"), now.Format("01"), uuid.NewString()+extension(contentType))

	input := &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        body,
		ContentType: aws.String(contentType),
	}
	if size > 0 {
		input.ContentLength = aws.Int64(size)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return "", fmt.Errorf("failed to upload selfie: %w", err)
	}
	return key, nil
}

// URL presigns a GET for ref.
func (s *EvidenceStore) URL(ctx context.Context, ref string) (string, error) {
	req, err := s.presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(ref),
	}, s3.WithPresignExpires(s.ttl))
	if err != nil {
		return "", fmt.Errorf("failed to presign selfie url: %w", err)
	}
	return req.URL, nil
}

func extension(contentType string) string {
	switch contentType {
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	case "image/heic":
		return ".heic"
	default:
		return ""
	}
}
