package fraginfo

import (
	"github.com/mattdurham/fragcore/internal/errs"
	"github.com/mattdurham/fragcore/internal/shared"
	"github.com/mattdurham/fragcore/internal/vfs"
	"github.com/mattdurham/fragcore/internal/wire"
)

// vacuumListURI is the array-level file recording fragment URIs a
// prior consolidation scheduled for deletion; ToVacuum surfaces
// exactly this list.
func vacuumListURI(arrayURI string) string { return arrayURI + "/__meta/vacuum.list" }

// loadVacuumList reads the vacuum file if present; a missing file
// means nothing is scheduled for vacuum, not an error.
func loadVacuumList(store vfs.ObjectStore, arrayURI string) ([]string, error) {
	size, err := store.Size(vacuumListURI(arrayURI))
	if err != nil {
		if errs.Is(err, errs.NotFound) {
			return nil, nil
		}
		return nil, err
	}
	buf := make([]byte, size)
	if _, err := store.ReadAt(buf, vacuumListURI(arrayURI), 0, shared.DataTypeSchema); err != nil {
		return nil, err
	}
	c := wire.NewCursor(buf)
	n, err := c.GetUint32()
	if err != nil {
		return nil, errs.Wrap(errs.Corrupt, err, "fraginfo: decoding vacuum list count")
	}
	uris := make([]string, n)
	for i := range uris {
		uris[i], err = c.GetVarString(1 << 20)
		if err != nil {
			return nil, errs.Wrap(errs.Corrupt, err, "fraginfo: decoding vacuum list entry %d", i)
		}
	}
	return uris, nil
}

// writeVacuumList persists the set of fragment URIs scheduled for
// deletion after a consolidation, replacing any prior list.
func writeVacuumList(store vfs.ObjectStore, arrayURI string, uris []string) error {
	enc := wire.NewEncoder(4 + 32*len(uris))
	enc.PutUint32(uint32(len(uris)))
	for _, u := range uris {
		enc.PutVarString(u)
	}
	return store.Write(vacuumListURI(arrayURI), enc.Bytes())
}
