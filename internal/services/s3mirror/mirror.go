// Package s3mirror copies finished outputs to an S3-compatible bucket.
package s3mirror

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/credentials"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
	"github.com/aws/aws-sdk-go/service/s3/s3manager/s3manageriface"

	"mediaconv/internal/config"
	"mediaconv/internal/logging"
	"mediaconv/internal/workspace"
)

// Mirror uploads outputs and removes them again when they expire locally.
type Mirror struct {
	bucket   string
	prefix   string
	uploader s3manageriface.UploaderAPI
	client   s3iface.S3API
	logger   *slog.Logger
}

// Option customizes a Mirror.
type Option func(*Mirror)

// WithUploader overrides the multipart uploader.
func WithUploader(uploader s3manageriface.UploaderAPI) Option {
	return func(m *Mirror) {
		if uploader != nil {
			m.uploader = uploader
		}
	}
}

// WithClient overrides the S3 API client used for deletes.
func WithClient(client s3iface.S3API) Option {
	return func(m *Mirror) {
		if client != nil {
			m.client = client
		}
	}
}

// New builds a mirror from configuration. It returns nil when mirroring is
// disabled.
func New(cfg config.Mirror, logger *slog.Logger, opts ...Option) (*Mirror, error) {
	if !cfg.Enabled {
		return nil, nil
	}
	if strings.TrimSpace(cfg.Bucket) == "" {
		return nil, fmt.Errorf("s3 mirror: bucket is required")
	}

	m := &Mirror{
		bucket: cfg.Bucket,
		prefix: cfg.Prefix,
		logger: logging.NewComponentLogger(logger, "s3mirror"),
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.uploader != nil && m.client != nil {
		return m, nil
	}

	awsCfg := &aws.Config{Region: aws.String(cfg.Region)}
	if cfg.AccessKey != "" || cfg.SecretKey != "" {
		awsCfg.Credentials = credentials.NewStaticCredentials(cfg.AccessKey, cfg.SecretKey, "")
	}
	if cfg.Endpoint != "" {
		awsCfg.Endpoint = aws.String(cfg.Endpoint)
	}
	if cfg.UsePathStyle {
		awsCfg.S3ForcePathStyle = aws.Bool(true)
	}
	sess, err := session.NewSession(awsCfg)
	if err != nil {
		return nil, fmt.Errorf("s3 mirror: create session: %w", err)
	}
	if m.client == nil {
		m.client = s3.New(sess)
	}
	if m.uploader == nil {
		m.uploader = s3manager.NewUploaderWithClient(m.client)
	}
	return m, nil
}

// Key returns the object key for an output file name.
func (m *Mirror) Key(fileName string) string {
	return path.Join(m.prefix, fileName)
}

// Upload copies the local file at localPath to the bucket and returns its key.
func (m *Mirror) Upload(ctx context.Context, localPath string, kind workspace.Kind) (string, error) {
	file, err := os.Open(localPath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	key := m.Key(path.Base(localPath))
	_, err = m.uploader.UploadWithContext(ctx, &s3manager.UploadInput{
		Bucket:      aws.String(m.bucket),
		Key:         aws.String(key),
		Body:        file,
		ContentType: aws.String(ContentType(kind)),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload to S3: %w", err)
	}
	logging.WithContext(ctx, m.logger).Debug("output mirrored",
		logging.String("bucket", m.bucket),
		logging.String("key", key),
	)
	return key, nil
}

// Remove deletes the mirrored copy of fileName.
func (m *Mirror) Remove(ctx context.Context, fileName string) error {
	key := m.Key(fileName)
	_, err := m.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(m.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete from S3: %w", err)
	}
	return nil
}

// ContentType returns the MIME type of an output of the given kind.
func ContentType(kind workspace.Kind) string {
	if kind == workspace.KindVideo {
		return "video/mp4"
	}
	return "audio/mpeg"
}
