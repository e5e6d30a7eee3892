package fraginfo

import (
	"github.com/mattdurham/fragcore/internal/errs"
	"github.com/mattdurham/fragcore/internal/shared"
	"github.com/mattdurham/fragcore/internal/vfs"
	"github.com/mattdurham/fragcore/internal/wire"
)

// Consolidated metadata concatenates every fragment's footer into one
// blob under consolidatedDataURI, indexed by
// consolidatedIndexURI so a footer can be located and handed to
// fragment.Load as a (tile, offset) pair without a separate read of
// the fragment's own metadata file.
func consolidatedIndexURI(arrayURI string) string { return arrayURI + "/__meta/consolidated.index" }
func consolidatedDataURI(arrayURI string) string  { return arrayURI + "/__meta/consolidated.data" }

// loadConsolidatedMetadata returns the fragment-uri -> footer-offset
// index and the backing data blob. Either file missing means no
// consolidated metadata exists yet, which is the common case between
// consolidations, not an error.
func loadConsolidatedMetadata(store vfs.ObjectStore, arrayURI string) (map[string]uint64, []byte, error) {
	indexSize, err := store.Size(consolidatedIndexURI(arrayURI))
	if err != nil {
		if errs.Is(err, errs.NotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	indexBuf := make([]byte, indexSize)
	if _, err := store.ReadAt(indexBuf, consolidatedIndexURI(arrayURI), 0, shared.DataTypeSchema); err != nil {
		return nil, nil, err
	}

	dataSize, err := store.Size(consolidatedDataURI(arrayURI))
	if err != nil {
		if errs.Is(err, errs.NotFound) {
			return nil, nil, nil
		}
		return nil, nil, err
	}
	data := make([]byte, dataSize)
	if _, err := store.ReadAt(data, consolidatedDataURI(arrayURI), 0, shared.DataTypeFooter); err != nil {
		return nil, nil, err
	}

	c := wire.NewCursor(indexBuf)
	n, err := c.GetUint32()
	if err != nil {
		return nil, nil, errs.Wrap(errs.Corrupt, err, "fraginfo: decoding consolidated index count")
	}
	index := make(map[string]uint64, n)
	for i := uint32(0); i < n; i++ {
		uri, err := c.GetVarString(1 << 20)
		if err != nil {
			return nil, nil, errs.Wrap(errs.Corrupt, err, "fraginfo: decoding consolidated index entry %d", i)
		}
		offset, err := c.GetUint64()
		if err != nil {
			return nil, nil, errs.Wrap(errs.Corrupt, err, "fraginfo: decoding consolidated index entry %d", i)
		}
		index[uri] = offset
	}
	return index, data, nil
}

// writeConsolidatedMetadata persists a freshly-built consolidated
// metadata blob, replacing any prior one. footers maps each fragment
// URI to its footer already encoded as a generic tile (generictile.
// WriteGeneric's output), matching what fragment.Load's Consolidated
// path decodes via generictile.ReadGeneric; offsets recorded in the
// index are relative to the start of the concatenated data blob.
func writeConsolidatedMetadata(store vfs.ObjectStore, arrayURI string, footers map[string][]byte) error {
	order := make([]string, 0, len(footers))
	for uri := range footers {
		order = append(order, uri)
	}

	dataEnc := wire.NewEncoder(0)
	indexEnc := wire.NewEncoder(4)
	indexEnc.PutUint32(uint32(len(order)))
	for _, uri := range order {
		indexEnc.PutVarString(uri)
		indexEnc.PutUint64(uint64(dataEnc.Len()))
		dataEnc.PutBytes(footers[uri])
	}

	if err := store.Write(consolidatedDataURI(arrayURI), dataEnc.Bytes()); err != nil {
		return err
	}
	return store.Write(consolidatedIndexURI(arrayURI), indexEnc.Bytes())
}
