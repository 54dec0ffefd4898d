package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3manager"
)

// S3FS implements FileSystem over an S3 bucket. Every path passed to its
// methods is a key relative to bucket; S3 has no directory entities, so
// Mkdirs is a no-op (prefixes come into existence implicitly when an
// object is written under them) and Rename is implemented as copy+delete
// since S3 has no atomic rename primitive.
type S3FS struct {
	bucket   string
	client   *s3.S3
	uploader *s3manager.Uploader
}

// NewS3FS builds an S3FS for bucket using the default AWS credential chain
// (environment, shared config, or instance role), matching the teacher
// pack's convention of constructing cloud clients from ambient credentials
// rather than threading secrets through application config.
func NewS3FS(bucket, region string) (*S3FS, error) {
	sess, err := session.NewSession(&aws.Config{Region: aws.String(region)})
	if err != nil {
		return nil, fmt.Errorf("objectstore: creating AWS session: %w", err)
	}
	return &S3FS{
		bucket:   bucket,
		client:   s3.New(sess),
		uploader: s3manager.NewUploader(sess),
	}, nil
}

func (fs *S3FS) Mkdirs(ctx context.Context, path string) error {
	return nil
}

func (fs *S3FS) Rename(ctx context.Context, oldPath, newPath string) error {
	source := fs.bucket + "/" + strings.TrimPrefix(oldPath, "/")
	if _, err := fs.client.CopyObjectWithContext(ctx, &s3.CopyObjectInput{
		Bucket:     aws.String(fs.bucket),
		CopySource: aws.String(source),
		Key:        aws.String(strings.TrimPrefix(newPath, "/")),
	}); err != nil {
		return fmt.Errorf("objectstore: copy %s -> %s: %w", oldPath, newPath, err)
	}
	if _, err := fs.client.DeleteObjectWithContext(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(fs.bucket),
		Key:    aws.String(strings.TrimPrefix(oldPath, "/")),
	}); err != nil {
		return fmt.Errorf("objectstore: delete stale source %s after copy: %w", oldPath, err)
	}
	return nil
}

func (fs *S3FS) Create(ctx context.Context, path string) (io.WriteCloser, error) {
	return &s3Writer{ctx: ctx, fs: fs, key: strings.TrimPrefix(path, "/")}, nil
}

func (fs *S3FS) Open(ctx context.Context, path string) (io.ReadCloser, error) {
	out, err := fs.client.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(fs.bucket),
		Key:    aws.String(strings.TrimPrefix(path, "/")),
	})
	if err != nil {
		return nil, fmt.Errorf("objectstore: get %s: %w", path, err)
	}
	return out.Body, nil
}

// s3Writer buffers a whole object in memory and uploads it on Close,
// since S3 has no append/streaming-write primitive that matches
// io.WriteCloser. Column files are bounded by max-file-bytes (§3), so the
// buffer is bounded too.
type s3Writer struct {
	ctx context.Context
	fs  *S3FS
	key string
	buf bytes.Buffer
}

func (w *s3Writer) Write(p []byte) (int, error) { return w.buf.Write(p) }

func (w *s3Writer) Close() error {
	_, err := w.fs.uploader.UploadWithContext(w.ctx, &s3manager.UploadInput{
		Bucket: aws.String(w.fs.bucket),
		Key:    aws.String(w.key),
		Body:   ioutil.NopCloser(bytes.NewReader(w.buf.Bytes())),
	})
	if err != nil {
		return fmt.Errorf("objectstore: upload %s: %w", w.key, err)
	}
	return nil
}
