package repository

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"strings"

	"quickchat/pkg/database"
	errprocess "quickchat/pkg/err"

	"github.com/google/uuid"
)

// ImageStore turn an inline image into a stored blob reference
type ImageStore interface {
	// Store return the reference to persist; non inline values are returned unchanged
	Store(ctx context.Context, owner, image string) (string, error)
}

// ObjectPutter the part of database.MinIOClient used here
type ObjectPutter interface {
	PutObject(ctx context.Context, objectName string, r io.Reader, size int64, contentType string) error
	ObjectURL(publicBase, objectName string) string
}

type minioImageStore struct {
	store     ObjectPutter
	publicURL string
}

// NewMinIOImageStore upload data URLs to the bucket of client (a *database.MinIOClient)
func NewMinIOImageStore(client ObjectPutter, publicURL string) ImageStore {
	return &minioImageStore{store: client, publicURL: publicURL}
}

var _ ObjectPutter = (*database.MinIOClient)(nil)

var imageExt = map[string]string{
	"image/png":  "png",
	"image/jpeg": "jpg",
	"image/jpg":  "jpg",
	"image/gif":  "gif",
	"image/webp": "webp",
}

func (s *minioImageStore) Store(ctx context.Context, owner, image string) (string, error) {
	contentType, data, ok, err := ParseDataURL(image)
	if err != nil {
		return "", err
	}
	if !ok {
		return image, nil
	}

	ext, known := imageExt[contentType]
	if !known {
		return "", errprocess.Validation("unsupported image type")
	}

	objectName := fmt.Sprintf("messages/%s/%s.%s", owner, uuid.NewString(), ext)
	if err := s.store.PutObject(ctx, objectName, bytes.NewReader(data), int64(len(data)), contentType); err != nil {
		return "", errprocess.Transport(err, "upload image")
	}
	return s.store.ObjectURL(s.publicURL, objectName), nil
}

// ParseDataURL decode "data:<mime>;base64,<payload>", ok is false for anything else
func ParseDataURL(v string) (contentType string, data []byte, ok bool, err error) {
	if !strings.HasPrefix(v, "data:") {
		return "", nil, false, nil
	}
	meta, payload, found := strings.Cut(v[len("data:"):], ",")
	if !found || !strings.HasSuffix(meta, ";base64") {
		return "", nil, false, errprocess.Validation("invalid image data")
	}
	data, err = base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return "", nil, false, errprocess.Validation("invalid image data")
	}
	return strings.TrimSuffix(meta, ";base64"), data, true, nil
}
