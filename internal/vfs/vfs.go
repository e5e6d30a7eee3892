// Package vfs is the abstract blob store this core reads and writes
// fragment metadata through: a small ObjectStore interface plus a
// local filesystem implementation.
package vfs

import (
	"github.com/mattdurham/fragcore/internal/shared"
)

// ObjectStore is the storage abstraction FragmentMetadata, FragmentInfo,
// and GenericTileIO read and write through. A caller may implement this
// against any blob store (S3, GCS, ...); only the local backend ships here.
// A missing object is reported as an *errs.Error with category errs.NotFound.
type ObjectStore interface {
	shared.ReaderProvider
	shared.WriterProvider

	// List returns the URIs of all objects whose name begins with prefix,
	// in lexicographic order.
	List(prefix string) ([]string, error)
}
