package gcs

import (
	"context"
	"errors"
	"io"

	"cloud.google.com/go/storage"

	"github.com/oksasatya/client-powered/internal/domain/repository"
	"github.com/oksasatya/client-powered/pkg/helpers"
)

// AvatarStore keeps avatar objects under a prefix of one bucket. Paths handed
// in and out are relative to that prefix.
type AvatarStore struct {
	client *storage.Client
	bucket string
	prefix string
}

func NewAvatarStore(client *storage.Client, bucket, prefix string) *AvatarStore {
	return &AvatarStore{client: client, bucket: bucket, prefix: prefix}
}

func (s *AvatarStore) Upload(ctx context.Context, path, contentType string, r io.Reader) error {
	if s.client == nil || s.bucket == "" {
		return errors.New("gcs not configured")
	}
	return helpers.UploadObject(ctx, s.client, s.bucket, helpers.ObjectPath(s.prefix, path), contentType, r)
}

func (s *AvatarStore) Download(ctx context.Context, path string) ([]byte, string, error) {
	if s.client == nil || s.bucket == "" {
		return nil, "", errors.New("gcs not configured")
	}
	b, ct, err := helpers.DownloadObject(ctx, s.client, s.bucket, helpers.ObjectPath(s.prefix, path))
	if errors.Is(err, storage.ErrObjectNotExist) {
		return nil, "", repository.ErrNotFound
	}
	return b, ct, err
}

var _ repository.AvatarStore = (*AvatarStore)(nil)
