package document

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"go.uber.org/zap"

	"github.com/iliyamo/pharmatrace/internal/apperror"
	"github.com/iliyamo/pharmatrace/internal/config"
)

// S3Store keeps documents in an S3-compatible bucket under documents/<digest>.
type S3Store struct {
	client *s3.Client
	bucket string
	log    *zap.Logger
}

// NewS3Store builds a client for AWS S3 or any compatible endpoint (MinIO and
// the like). Static credentials are used when both keys are set, otherwise the
// default AWS credential chain.
func NewS3Store(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("document: bucket is required")
	}
	if log == nil {
		log = zap.NewNop()
	}
	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(region)}
	if cfg.AccessKey != "" && cfg.SecretKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("document: load aws config: %w", err)
	}

	endpoint := cfg.Endpoint
	if endpoint != "" && !strings.HasPrefix(endpoint, "http://") && !strings.HasPrefix(endpoint, "https://") {
		endpoint = "https://" + endpoint
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.UsePathStyle = cfg.PathStyle
		if endpoint != "" {
			o.BaseEndpoint = aws.String(endpoint)
		}
	})
	return &S3Store{client: client, bucket: cfg.Bucket, log: log.Named("document")}, nil
}

// NewStore builds the backend selected by STORAGE_BACKEND.
func NewStore(ctx context.Context, cfg config.StorageConfig, log *zap.Logger) (Store, error) {
	switch cfg.Backend {
	case "", "memory":
		return NewMemoryStore(), nil
	case "s3":
		return NewS3Store(ctx, cfg, log)
	}
	return nil, fmt.Errorf("document: unknown backend %q", cfg.Backend)
}

func objectKey(digest string) string { return "documents/" + digest }

func (s *S3Store) Put(ctx context.Context, data []byte, contentType string) (Object, error) {
	if err := checkUpload(data); err != nil {
		return Object{}, err
	}
	ref := Ref(data)
	digest := strings.TrimPrefix(ref, refPrefix)
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(objectKey(digest)),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String(contentType),
	})
	if err != nil {
		s.log.Error("put document failed", zap.String("ref", ref), zap.Error(err))
		return Object{}, apperror.Wrap(apperror.CodeInternal, "document store unavailable", err)
	}
	s.log.Info("document stored", zap.String("ref", ref), zap.Int("size", len(data)))
	return Object{Ref: ref, ContentType: contentType, Size: int64(len(data))}, nil
}

// Get maps a missing object to DOCUMENT_NOT_FOUND.
func (s *S3Store) Get(ctx context.Context, ref string) (Object, error) {
	digest, err := ParseRef(ref)
	if err != nil {
		return Object{}, err
	}
	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(objectKey(digest)),
	})
	if err != nil {
		var noKey *types.NoSuchKey
		if errors.As(err, &noKey) {
			return Object{}, apperror.ErrDocumentNotFound
		}
		return Object{}, apperror.Wrap(apperror.CodeInternal, "document store unavailable", err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(io.LimitReader(out.Body, MaxSize+1))
	if err != nil {
		return Object{}, apperror.Wrap(apperror.CodeInternal, "read document", err)
	}
	if Ref(data) != refPrefix+digest {
		s.log.Error("stored document does not match its reference", zap.String("ref", ref))
		return Object{}, apperror.New(apperror.CodeIntegrityCheckFailed, "stored document does not match its reference")
	}
	return Object{
		Ref:         refPrefix + digest,
		ContentType: aws.ToString(out.ContentType),
		Size:        int64(len(data)),
		Data:        data,
	}, nil
}

// Ping checks that the bucket is reachable.
func (s *S3Store) Ping(ctx context.Context) error {
	_, err := s.client.HeadBucket(ctx, &s3.HeadBucketInput{Bucket: aws.String(s.bucket)})
	return err
}

var (
	_ Store = (*S3Store)(nil)
	_ Store = (*MemoryStore)(nil)
)
