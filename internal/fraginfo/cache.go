package fraginfo

import (
	"hash/fnv"
	"path/filepath"
	"sort"
	"time"

	"github.com/mattdurham/fragcore/internal/errs"
	"github.com/mattdurham/fragcore/internal/fragment"
	"github.com/mattdurham/fragcore/internal/rangeidx"
	"github.com/mattdurham/fragcore/internal/schema"
	"github.com/mattdurham/fragcore/internal/wire"
	"go.etcd.io/bbolt"
)

// summary is the footer-derived subset of SingleFragmentInfo cheap
// enough to persist and replay without re-opening the fragment's own
// metadata file.
type summary struct {
	URI                     string
	Dense                   bool
	CellNum                 uint64
	Size                    uint64
	TStart                  uint64
	TEnd                    uint64
	NonEmptyDomain          rangeidx.NDRange
	Version                 uint32
	ArraySchemaName         string
	HasConsolidatedMetadata bool
}

func singleFragmentInfoToSummary(s *SingleFragmentInfo) summary {
	return summary{
		URI:                     s.uri,
		Dense:                   s.dense,
		CellNum:                 s.cellNum,
		Size:                    s.size,
		TStart:                  s.tStart,
		TEnd:                    s.tEnd,
		NonEmptyDomain:          s.nonEmptyDomain,
		Version:                 s.version,
		ArraySchemaName:         s.arraySchemaName,
		HasConsolidatedMetadata: s.hasConsolidatedMetadata,
	}
}

func summaryToSingleFragmentInfo(sum summary, sch *schema.ArraySchema, reload func() (*fragment.Metadata, error)) *SingleFragmentInfo {
	return &SingleFragmentInfo{
		uri:                     sum.URI,
		dense:                   sum.Dense,
		cellNum:                 sum.CellNum,
		size:                    sum.Size,
		tStart:                  sum.TStart,
		tEnd:                    sum.TEnd,
		nonEmptyDomain:          sum.NonEmptyDomain,
		version:                 sum.Version,
		arraySchema:             sch,
		arraySchemaName:         sum.ArraySchemaName,
		hasConsolidatedMetadata: sum.HasConsolidatedMetadata,
		reload:                  reload,
	}
}

// encodeSummary serializes a summary for the cache. Each non-empty
// domain range is written as a kind byte (0 fixed, 1 var) followed by
// its length-prefixed start and end bounds, so fixed- and
// var-dimension fragments both round-trip through the cache.
func encodeSummary(sum summary) []byte {
	enc := wire.NewEncoder(128)
	enc.PutVarString(sum.URI)
	enc.PutUint8(boolByte(sum.Dense))
	enc.PutUint64(sum.CellNum)
	enc.PutUint64(sum.Size)
	enc.PutUint64(sum.TStart)
	enc.PutUint64(sum.TEnd)
	enc.PutUint32(sum.Version)
	enc.PutVarString(sum.ArraySchemaName)
	enc.PutUint8(boolByte(sum.HasConsolidatedMetadata))
	enc.PutUint32(uint32(len(sum.NonEmptyDomain)))
	for _, r := range sum.NonEmptyDomain {
		if r.IsVar() {
			enc.PutUint8(1)
			start, end, _ := r.StartEnd()
			enc.PutVarBytes(start)
			enc.PutVarBytes(end)
			continue
		}
		enc.PutUint8(0)
		start, end, _ := r.StartEnd()
		enc.PutVarBytes(start)
		enc.PutVarBytes(end)
	}
	return enc.Bytes()
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

func decodeSummary(data []byte) (summary, error) {
	var sum summary
	c := wire.NewCursor(data)
	var err error
	if sum.URI, err = c.GetVarString(1 << 16); err != nil {
		return sum, err
	}
	denseByte, err := c.GetUint8()
	if err != nil {
		return sum, err
	}
	sum.Dense = denseByte != 0
	if sum.CellNum, err = c.GetUint64(); err != nil {
		return sum, err
	}
	if sum.Size, err = c.GetUint64(); err != nil {
		return sum, err
	}
	if sum.TStart, err = c.GetUint64(); err != nil {
		return sum, err
	}
	if sum.TEnd, err = c.GetUint64(); err != nil {
		return sum, err
	}
	if sum.Version, err = c.GetUint32(); err != nil {
		return sum, err
	}
	if sum.ArraySchemaName, err = c.GetVarString(1 << 16); err != nil {
		return sum, err
	}
	hasConsolidatedByte, err := c.GetUint8()
	if err != nil {
		return sum, err
	}
	sum.HasConsolidatedMetadata = hasConsolidatedByte != 0
	ndim, err := c.GetUint32()
	if err != nil {
		return sum, err
	}
	sum.NonEmptyDomain = make(rangeidx.NDRange, ndim)
	for d := range sum.NonEmptyDomain {
		kind, err := c.GetUint8()
		if err != nil {
			return sum, err
		}
		start, err := c.GetVarBytes(1 << 20)
		if err != nil {
			return sum, err
		}
		end, err := c.GetVarBytes(1 << 20)
		if err != nil {
			return sum, err
		}
		if kind == 1 {
			sum.NonEmptyDomain[d] = rangeidx.NewVar(start, end)
		} else {
			r, err := rangeidx.NewFixed(start, end, len(start))
			if err != nil {
				return sum, err
			}
			sum.NonEmptyDomain[d] = r
		}
	}
	return sum, nil
}

// diskCache is a bbolt-backed read-through cache of per-fragment
// summaries, keyed by array URI so one database can serve many
// arrays. Entries are tagged with the directory-listing fingerprint
// they were computed against and ignored once that fingerprint
// changes: ObjectStore exposes neither an ETag nor an mtime, so a hash
// of the full listing is the closest available invalidation signal.
type diskCache struct {
	db *bbolt.DB
}

var bucketName = []byte("fragments")

func openDiskCache(dir string) (*diskCache, error) {
	path := filepath.Join(dir, "fraginfo.bbolt")
	db, err := bbolt.Open(path, 0o644, &bbolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, errs.Wrap(errs.IO, err, "fraginfo: opening cache db at %s", path)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, errs.Wrap(errs.IO, err, "fraginfo: initializing cache db at %s", path)
	}
	return &diskCache{db: db}, nil
}

func cacheKey(arrayURI, fragmentURI string, fingerprint uint64) []byte {
	enc := wire.NewEncoder(len(arrayURI) + len(fragmentURI) + 16)
	enc.PutVarString(arrayURI)
	enc.PutVarString(fragmentURI)
	enc.PutUint64(fingerprint)
	return enc.Bytes()
}

func (c *diskCache) get(arrayURI, fragmentURI string, fingerprint uint64) (summary, bool) {
	key := cacheKey(arrayURI, fragmentURI, fingerprint)
	var sum summary
	var found bool
	_ = c.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		v := b.Get(key)
		if v == nil {
			return nil
		}
		decoded, err := decodeSummary(v)
		if err != nil {
			return nil // a corrupt cache entry is a miss, not a load failure
		}
		sum, found = decoded, true
		return nil
	})
	return sum, found
}

func (c *diskCache) put(arrayURI, fragmentURI string, fingerprint uint64, sum summary) {
	key := cacheKey(arrayURI, fragmentURI, fingerprint)
	value := encodeSummary(sum)
	_ = c.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketName)
		if b == nil {
			return nil
		}
		return b.Put(key, value)
	})
}

// listingFingerprint hashes the sorted set of object names a
// directory listing returned, standing in for an ETag/mtime set: any
// addition, removal, or rename under the array invalidates every
// cached summary keyed against the old fingerprint.
func listingFingerprint(names []string) uint64 {
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	h := fnv.New64a()
	for _, n := range sorted {
		_, _ = h.Write([]byte(n))
		_, _ = h.Write([]byte{0})
	}
	return h.Sum64()
}
