package media

import (
	"context"
	"io"
	"time"
)

// ObjectInfo is the metadata of a stored object.
type ObjectInfo struct {
	Key           string
	ContentType   string
	ContentLength int64
	ETag          string
}

// ObjectStore is the object storage the gateway reads media from. Missing
// objects are reported as common.ErrorNotFound.
type ObjectStore interface {
	Head(ctx context.Context, key string) (*ObjectInfo, error)
	Get(ctx context.Context, key string) (io.ReadCloser, *ObjectInfo, error)
	PresignGet(ctx context.Context, key string, ttl time.Duration) (string, error)
}
