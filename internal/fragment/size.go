package fragment

import "github.com/mattdurham/fragcore/internal/vfs"

// TotalSize sums the byte size of every object stored under this
// fragment's URI (the metadata file plus whatever data files a caller
// has written alongside it), for FragmentInfo's size() accessor. This
// core owns only the metadata file, so data files are discovered
// rather than assumed to exist under any fixed naming scheme.
func (m *Metadata) TotalSize(store vfs.ObjectStore) (uint64, error) {
	names, err := store.List(m.URI + "/")
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, n := range names {
		sz, err := store.Size(n)
		if err != nil {
			return 0, err
		}
		total += uint64(sz)
	}
	return total, nil
}
