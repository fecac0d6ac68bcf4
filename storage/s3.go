package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/smithy-go"
)

// Config holds the connection settings for an S3-compatible object store.
// Endpoint is optional and enables path-style addressing for MinIO and
// similar self-hosted stores.
type Config struct {
	Endpoint  string
	Region    string
	AccessKey string
	SecretKey string
	Bucket    string
}

// Complete reports whether the configuration carries everything needed to
// build a client.
func (c Config) Complete() bool {
	return c.Region != "" && c.AccessKey != "" && c.SecretKey != "" && c.Bucket != ""
}

// api abstracts the S3 operations the store uses. The [s3.Client] type
// satisfies this interface.
type api interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

type presigner interface {
	PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (string, error)
}

// Client stores audio recordings in a single S3 bucket and issues
// time-limited download links for them.
type Client struct {
	api     api
	presign presigner
	bucket  string
}

// presignAdapter narrows [s3.PresignClient] to the URL string the store
// needs.
type presignAdapter struct {
	client *s3.PresignClient
}

func (p presignAdapter) PresignGetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.PresignOptions)) (string, error) {
	req, err := p.client.PresignGetObject(ctx, params, optFns...)
	if err != nil {
		return "", err
	}
	return req.URL, nil
}

// New builds a Client from configuration. The endpoint, when set, switches
// the client to path-style requests so bucket names never become DNS labels.
func New(cfg Config) (*Client, error) {
	if !cfg.Complete() {
		return nil, fmt.Errorf("incomplete object storage configuration")
	}

	opts := s3.Options{
		Region: cfg.Region,
		Credentials: aws.CredentialsProviderFunc(func(ctx context.Context) (aws.Credentials, error) {
			return aws.Credentials{
				AccessKeyID:     cfg.AccessKey,
				SecretAccessKey: cfg.SecretKey,
			}, nil
		}),
	}
	if cfg.Endpoint != "" {
		opts.BaseEndpoint = aws.String(cfg.Endpoint)
		opts.UsePathStyle = true
	}

	client := s3.New(opts)
	return &Client{
		api:     client,
		presign: presignAdapter{client: s3.NewPresignClient(client)},
		bucket:  cfg.Bucket,
	}, nil
}

// Upload writes an object under the given key with the given content type.
func (c *Client) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	_, err := c.api.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(c.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}
	return nil
}

// Download fetches an object's contents. Missing keys return an error
// wrapping os.ErrNotExist.
func (c *Client) Download(ctx context.Context, key string) ([]byte, error) {
	out, err := c.api.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if isNotFound(err) {
			return nil, fmt.Errorf("object %s: %w", key, os.ErrNotExist)
		}
		return nil, err
	}
	defer out.Body.Close()

	return io.ReadAll(out.Body)
}

// SignedURL returns a presigned GET link for the key, valid for expires.
func (c *Client) SignedURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	url, err := c.presign.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(c.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return url, nil
}

// isNotFound reports whether err indicates the object does not exist.
func isNotFound(err error) bool {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return true
		}
	}
	return false
}
