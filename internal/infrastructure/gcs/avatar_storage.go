package gcs

import (
	"context"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"cloud.google.com/go/storage"
	"github.com/google/uuid"
	"google.golang.org/api/option"
)

// NewClient creates a Google Cloud Storage client. If credsPath is empty,
// Application Default Credentials are used.
func NewClient(ctx context.Context, credsPath string) (*storage.Client, error) {
	if credsPath == "" {
		return storage.NewClient(ctx)
	}
	return storage.NewClient(ctx, option.WithCredentialsFile(credsPath))
}

// AvatarStorage stores user avatars in a GCS bucket, keyed by user id.
type AvatarStorage struct {
	Client *storage.Client
	Bucket string
}

func NewAvatarStorage(client *storage.Client, bucket string) *AvatarStorage {
	return &AvatarStorage{Client: client, Bucket: bucket}
}

// Upload writes the avatar under avatars/<userID>/<uuid><ext> and returns the
// public URL together with the object key. The original filename contributes
// only its extension; everything else is replaced by a fresh uuid.
func (s *AvatarStorage) Upload(ctx context.Context, userID int64, filename, contentType string, r io.Reader) (string, string, error) {
	if s.Client == nil || s.Bucket == "" {
		return "", "", fmt.Errorf("avatar storage not configured")
	}
	ext := strings.ToLower(filepath.Ext(filename))
	key := filepath.ToSlash(filepath.Join("avatars", strconv.FormatInt(userID, 10), uuid.NewString()+ext))

	wc := s.Client.Bucket(s.Bucket).Object(key).NewWriter(ctx)
	wc.ContentType = contentType
	wc.ChunkSize = 0 // disable chunking for small files
	if _, err := io.Copy(wc, r); err != nil {
		_ = wc.Close()
		return "", "", err
	}
	if err := wc.Close(); err != nil {
		return "", "", err
	}
	return PublicURL(s.Bucket, key), key, nil
}

// Delete removes the object for the given key.
func (s *AvatarStorage) Delete(ctx context.Context, key string) error {
	if s.Client == nil || s.Bucket == "" {
		return fmt.Errorf("avatar storage not configured")
	}
	return s.Client.Bucket(s.Bucket).Object(key).Delete(ctx)
}

// PublicURL builds a public URL for an object (assuming public read access)
func PublicURL(bucket, key string) string {
	return fmt.Sprintf("https://storage.googleapis.com/%s/%s", bucket, key)
}
