package persist

import (
	"bytes"
	"context"
	"io"
	"path"
	"sort"
	"strings"

	"github.com/minio/minio-go/v7"
)

// MinioStore keeps snapshots in a MinIO or S3-compatible bucket, so a
// team can share the learned map for a ROM across machines.
type MinioStore struct {
	client *minio.Client
	bucket string
	prefix string
}

// NewMinioStore creates a store writing under bucket/rootPrefix.
func NewMinioStore(client *minio.Client, bucket, rootPrefix string) *MinioStore {
	return &MinioStore{
		client: client,
		bucket: bucket,
		prefix: rootPrefix,
	}
}

func (s *MinioStore) key(name string) string {
	return path.Join(s.prefix, name)
}

// Put implements Store.
func (s *MinioStore) Put(ctx context.Context, name string, data []byte) error {
	_, err := s.client.PutObject(ctx, s.bucket, s.key(name), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{})
	return err
}

// Get implements Store.
func (s *MinioStore) Get(ctx context.Context, name string) ([]byte, error) {
	obj, err := s.client.GetObject(ctx, s.bucket, s.key(name), minio.GetObjectOptions{})
	if err != nil {
		return nil, err
	}
	defer obj.Close()

	data, err := io.ReadAll(obj)
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return data, nil
}

// Delete implements Store.
func (s *MinioStore) Delete(ctx context.Context, name string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.key(name), minio.RemoveObjectOptions{})
	if err != nil {
		errResp := minio.ToErrorResponse(err)
		if errResp.Code == "NoSuchKey" || errResp.Code == "NotFound" {
			return nil
		}
		return err
	}
	return nil
}

// List implements Store.
func (s *MinioStore) List(ctx context.Context, prefix string) ([]string, error) {
	fullPrefix := s.key(prefix)

	var names []string
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{
		Prefix:    fullPrefix,
		Recursive: true,
	}) {
		if obj.Err != nil {
			return nil, obj.Err
		}
		name := strings.TrimPrefix(obj.Key, s.prefix)
		name = strings.TrimPrefix(name, "/")
		if name != "" {
			names = append(names, name)
		}
	}

	sort.Strings(names)
	return names, nil
}
