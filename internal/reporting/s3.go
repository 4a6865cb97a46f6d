package reporting

import (
	"context"
	"fmt"
	"io/fs"
	"mime"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Uploader is the part of manager.Uploader the publisher uses.
type Uploader interface {
	Upload(ctx context.Context, input *s3.PutObjectInput, opts ...func(*manager.Uploader)) (*manager.UploadOutput, error)
}

// S3Publisher copies report directories to an S3 bucket.
type S3Publisher struct {
	bucket   string
	uploader Uploader
	log      zerolog.Logger
}

// NewS3Publisher creates a publisher using the default AWS credential chain.
func NewS3Publisher(ctx context.Context, bucket, region string, log zerolog.Logger) (*S3Publisher, error) {
	opts := []func(*awsconfig.LoadOptions) error{}
	if region != "" {
		opts = append(opts, awsconfig.WithRegion(region))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewS3PublisherWithUploader(bucket, manager.NewUploader(s3.NewFromConfig(cfg)), log), nil
}

// NewS3PublisherWithUploader creates a publisher around an existing uploader.
func NewS3PublisherWithUploader(bucket string, uploader Uploader, log zerolog.Logger) *S3Publisher {
	return &S3Publisher{
		bucket:   bucket,
		uploader: uploader,
		log:      log.With().Str("component", "s3_publisher").Str("bucket", bucket).Logger(),
	}
}

// Publish uploads every file under localDir to prefix/<relative path>.
// It returns the number of objects uploaded.
func (p *S3Publisher) Publish(ctx context.Context, localDir, prefix string) (int, error) {
	uploaded := 0
	err := filepath.WalkDir(localDir, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		rel, err := filepath.Rel(localDir, file)
		if err != nil {
			return err
		}
		key := path.Join(prefix, filepath.ToSlash(rel))

		f, err := os.Open(file)
		if err != nil {
			return err
		}
		defer f.Close()

		contentType := mime.TypeByExtension(filepath.Ext(file))
		if contentType == "" {
			contentType = "application/octet-stream"
		}
		if _, err := p.uploader.Upload(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(p.bucket),
			Key:         aws.String(key),
			Body:        f,
			ContentType: aws.String(contentType),
		}); err != nil {
			return fmt.Errorf("failed to upload %s: %w", key, err)
		}
		uploaded++
		p.log.Debug().Str("key", key).Msg("Uploaded report file")
		return nil
	})
	if err != nil {
		return uploaded, err
	}

	p.log.Info().Str("prefix", prefix).Int("objects", uploaded).Msg("Reports published")
	return uploaded, nil
}
