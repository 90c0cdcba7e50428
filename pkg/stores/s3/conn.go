/*
Package s3 reads conversation transcripts from object storage so whole
buckets of exported conversations can be consolidated in one pass.
*/
package s3

import (
	"bytes"
	"context"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// Conn wraps a MinIO client for transcript access.
type Conn struct {
	client *minio.Client
}

// Config carries the connection settings for an S3-compatible endpoint.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	UseSSL    bool
}

// NewConn connects to the configured endpoint.
func NewConn(config Config) (*Conn, error) {
	client, err := minio.New(config.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(config.AccessKey, config.SecretKey, ""),
		Secure: config.UseSSL,
	})

	if err != nil {
		return nil, err
	}

	return &Conn{client: client}, nil
}

// Get reads one object fully into memory.
func (conn *Conn) Get(
	ctx context.Context, bucket, key string,
) (*bytes.Buffer, error) {
	obj, err := conn.client.GetObject(ctx, bucket, key, minio.GetObjectOptions{})

	if err != nil {
		return nil, err
	}

	defer obj.Close()

	buf := bytes.NewBuffer([]byte{})

	if _, err := io.Copy(buf, obj); err != nil {
		return nil, err
	}

	return buf, nil
}

// Put writes an object.
func (conn *Conn) Put(
	ctx context.Context, bucket, key string, body io.Reader, size int64,
) error {
	_, err := conn.client.PutObject(
		ctx, bucket, key, body, size, minio.PutObjectOptions{},
	)

	return err
}

// List returns the object keys under a prefix.
func (conn *Conn) List(
	ctx context.Context, bucket, prefix string,
) ([]string, error) {
	keys := []string{}

	for obj := range conn.client.ListObjects(ctx, bucket, minio.ListObjectsOptions{
		Prefix:    prefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}

		keys = append(keys, obj.Key)
	}

	return keys, nil
}
