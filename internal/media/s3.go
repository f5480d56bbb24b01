package media

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3Config locates the bucket uploads go to.
type S3Config struct {
	Bucket    string
	Endpoint  string // custom endpoint for R2, MinIO and friends
	Region    string
	AccessKey string
	SecretKey string
	// PublicURL is the base under which stored objects are served.
	PublicURL string
	Prefix    string
}

// ObjectPutter is the part of the S3 client the uploader needs.
type ObjectPutter interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// NewS3Client builds a client from cfg. Static keys are used when set,
// otherwise the default AWS credential chain.
func NewS3Client(ctx context.Context, cfg S3Config) (*s3.Client, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	opts := []func(*config.LoadOptions) error{config.WithRegion(region)}
	if cfg.AccessKey != "" {
		opts = append(opts, config.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKey, cfg.SecretKey, "")))
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("media: load aws config: %w", err)
	}
	return s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true
		}
	}), nil
}

// S3Uploader stores uploads as bucket objects named
// <prefix><yyyymmdd>-<uuid><ext>.
type S3Uploader struct {
	client    ObjectPutter
	bucket    string
	publicURL string
	prefix    string
	now       func() time.Time
}

func NewS3Uploader(client ObjectPutter, cfg S3Config) *S3Uploader {
	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "uploads/"
	}
	return &S3Uploader{
		client:    client,
		bucket:    cfg.Bucket,
		publicURL: strings.TrimRight(cfg.PublicURL, "/"),
		prefix:    prefix,
		now:       time.Now,
	}
}

func (u *S3Uploader) Upload(ctx context.Context, name, mime string, data []byte) (string, error) {
	ext := strings.ToLower(path.Ext(name))
	if ext == "" {
		ext = Extension(data)
	}
	key := u.prefix + u.now().Format("20060102") + "-" + uuid.New().String() + ext
	if mime == "" {
		mime = "application/octet-stream"
	}

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(mime),
	})
	if err != nil {
		return "", fmt.Errorf("media: put %s: %w", key, err)
	}
	return u.publicURL + "/" + key, nil
}
