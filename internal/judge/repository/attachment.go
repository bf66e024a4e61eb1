package repository

import (
	"context"
	"errors"

	"contestjudge/internal/common/storage"
	appErr "contestjudge/pkg/errors"
)

const defaultMaxCodeBytes = 1 << 20

// AttachmentRepository downloads submitted source files.
type AttachmentRepository struct {
	storage  storage.ObjectStorage
	bucket   string
	maxBytes int64
}

// NewAttachmentRepository creates an attachment reader. maxBytes <= 0 uses 1 MiB.
func NewAttachmentRepository(objects storage.ObjectStorage, bucket string, maxBytes int64) *AttachmentRepository {
	if maxBytes <= 0 {
		maxBytes = defaultMaxCodeBytes
	}
	return &AttachmentRepository{storage: objects, bucket: bucket, maxBytes: maxBytes}
}

// Download returns the attachment bytes.
func (r *AttachmentRepository) Download(ctx context.Context, key string) ([]byte, error) {
	if key == "" {
		return nil, appErr.ValidationError("code_key", "required")
	}
	data, err := storage.ReadObject(ctx, r.storage, r.bucket, key, r.maxBytes)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotFound) {
			return nil, appErr.Wrapf(err, appErr.NotFound, "attachment %s", key)
		}
		return nil, appErr.Wrapf(err, appErr.StorageError, "download attachment %s", key)
	}
	return data, nil
}
