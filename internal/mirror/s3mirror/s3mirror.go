// Package s3mirror mirrors records as JSON documents in an S3-compatible bucket
// (AWS S3, Cloudflare R2, MinIO).
package s3mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"github.com/vbonduro/folio/internal/domain"
	"github.com/vbonduro/folio/internal/mirror"
)

const maxDocumentSize = 32 << 20

// objectAPI is the subset of *s3.Client the mirror needs.
type objectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

type Config struct {
	Bucket    string
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
}

// document is the stored shape of a record.
type document struct {
	Data      string `json:"data"`
	FileName  string `json:"fileName,omitempty"`
	Timestamp string `json:"timestamp"`
	UpdatedBy string `json:"updatedBy"`
}

type S3Mirror struct {
	client objectAPI
	bucket string
}

// NewS3Mirror builds a client from static credentials. An empty Endpoint uses
// the AWS default resolver.
func NewS3Mirror(ctx context.Context, cfg Config) (*S3Mirror, error) {
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("%w: bucket not configured", domain.ErrRemoteUnavailable)
	}
	region := cfg.Region
	if region == "" {
		region = "auto"
	}

	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to load aws config: %w", domain.ErrRemoteUnavailable, err)
	}

	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	})
	return New(client, cfg.Bucket), nil
}

func New(client objectAPI, bucket string) *S3Mirror {
	return &S3Mirror{client: client, bucket: bucket}
}

func (m *S3Mirror) Save(ctx context.Context, rec *domain.Record) error {
	body, err := json.Marshal(document{
		Data:      rec.Data,
		FileName:  rec.FileName,
		Timestamp: rec.Timestamp.UTC().Format(time.RFC3339Nano),
		UpdatedBy: rec.UpdatedBy,
	})
	if err != nil {
		return fmt.Errorf("failed to encode document: %w", err)
	}

	_, err = m.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(mirror.Path(rec.Kind)),
		Body:        bytes.NewReader(body),
		ContentType: aws.String("application/json"),
	})
	if err != nil {
		return fmt.Errorf("failed to put object: %w", err)
	}
	return nil
}

func (m *S3Mirror) Load(ctx context.Context, kind domain.Kind) (*domain.Record, error) {
	out, err := m.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(mirror.Path(kind)),
	})
	if err != nil {
		var nsk *types.NoSuchKey
		if errors.As(err, &nsk) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get object: %w", err)
	}
	defer out.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(out.Body, maxDocumentSize))
	if err != nil {
		return nil, fmt.Errorf("failed to read object body: %w", err)
	}

	var doc document
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("failed to decode document: %w", err)
	}
	if doc.Data == "" {
		return nil, nil
	}

	ts, err := time.Parse(time.RFC3339Nano, doc.Timestamp)
	if err != nil {
		return nil, fmt.Errorf("invalid document timestamp %q: %w", doc.Timestamp, err)
	}

	return &domain.Record{
		Kind:      kind,
		Data:      doc.Data,
		FileName:  doc.FileName,
		Timestamp: ts,
		UpdatedBy: doc.UpdatedBy,
	}, nil
}
