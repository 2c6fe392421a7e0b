// Package storage resolves job file references to readable local paths.
package storage

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/joseph-ayodele/orders-tracker/internal/common"
)

// Source makes the file behind ref available on local disk. cleanup must be
// called once the caller is done with path; it never touches the original.
type Source interface {
	Fetch(ctx context.Context, ref string) (path string, cleanup func(), err error)
}

// Sink persists an uploaded file under name and returns its ref. Delete
// removes a ref returned by Put; deleting a missing ref is not an error.
type Sink interface {
	Put(ctx context.Context, name string, r io.Reader) (ref string, err error)
	Delete(ctx context.Context, ref string) error
}

const gsScheme = "gs://"

// ParseGSURI splits gs://bucket/object. ok is false for any other ref.
func ParseGSURI(ref string) (bucket, object string, ok bool) {
	rest, found := strings.CutPrefix(ref, gsScheme)
	if !found {
		return "", "", false
	}
	bucket, object, _ = strings.Cut(rest, "/")
	if bucket == "" || object == "" {
		return "", "", false
	}
	return bucket, object, true
}

// Router dispatches gs:// refs to the GCS source and everything else to local disk.
type Router struct {
	Local Source
	GCS   Source // nil when GCS is disabled
}

func (r *Router) Fetch(ctx context.Context, ref string) (string, func(), error) {
	if strings.HasPrefix(ref, gsScheme) {
		if r.GCS == nil {
			return "", nil, common.NewAppError("STORAGE_UNAVAILABLE",
				fmt.Sprintf("cannot read %s: GCS storage is not enabled", ref), common.ErrInvalidInput)
		}
		return r.GCS.Fetch(ctx, ref)
	}
	return r.Local.Fetch(ctx, ref)
}

func noop() {}
