package pdf

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/bananya-ml/arxiv-feed/internal/logging"
)

// S3Cache serves PDFs from a bucket and fills it from the wrapped Fetcher on a miss.
// A failing cache never fails the fetch.
type S3Cache struct {
	svc    s3iface.S3API
	bucket string
	prefix string
	next   Fetcher
	log    *logging.Logger
}

func NewS3Cache(svc s3iface.S3API, bucket, prefix string, next Fetcher, log *logging.Logger) *S3Cache {
	if log == nil {
		log = logging.Nop()
	}
	return &S3Cache{svc: svc, bucket: bucket, prefix: prefix, next: next, log: log}
}

func (c *S3Cache) Fetch(ctx context.Context, link string) ([]byte, error) {
	key := c.key(link)
	data, err := c.get(ctx, key)
	switch {
	case err == nil && len(data) > 0:
		c.log.Debug("pdf cache hit", "bucket", c.bucket, "key", key)
		return data, nil
	case err != nil && !isNotFound(err):
		c.log.Warn("pdf cache read failed", "bucket", c.bucket, "key", key, "error", err)
	}

	data, err = c.next.Fetch(ctx, link)
	if err != nil {
		return nil, err
	}
	_, perr := c.svc.PutObjectWithContext(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/pdf"),
	})
	if perr != nil {
		c.log.Warn("pdf cache write failed", "bucket", c.bucket, "key", key, "error", perr)
	}
	return data, nil
}

func (c *S3Cache) get(ctx context.Context, key string) ([]byte, error) {
	output, err := c.svc.GetObjectWithContext(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer output.Body.Close()

	data, err := io.ReadAll(output.Body)
	if err != nil {
		return nil, fmt.Errorf("reading s3 object: %w", err)
	}
	return data, nil
}

func (c *S3Cache) key(link string) string {
	id := link[strings.LastIndex(link, "/")+1:]
	return path.Join(c.prefix, id+".pdf")
}

func isNotFound(err error) bool {
	var aerr awserr.Error
	if errors.As(err, &aerr) {
		return aerr.Code() == s3.ErrCodeNoSuchKey || aerr.Code() == "NotFound"
	}
	return false
}
