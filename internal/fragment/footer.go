package fragment

import (
	"github.com/mattdurham/fragcore/internal/errs"
	"github.com/mattdurham/fragcore/internal/generictile"
	"github.com/mattdurham/fragcore/internal/schema"
	"github.com/mattdurham/fragcore/internal/shared"
	"github.com/mattdurham/fragcore/internal/vfs"
	"github.com/mattdurham/fragcore/internal/wire"
)

// metadataFileName is the manifest's fixed name within a fragment's URI.
const metadataFileName = "__fragment_metadata.tdb"

// sectionOffsets records every generic tile's absolute byte offset
// within the metadata file, exactly what the footer payload (§6.4)
// persists so sections can be lazily located without re-scanning.
type sectionOffsets struct {
	RTree               uint64
	TileOffsets         []uint64
	TileVarOffsets      []uint64
	TileVarSizes        []uint64
	TileValidityOffsets []uint64
	TileMin             []uint64
	TileMax             []uint64
	TileSum             []uint64
	TileNullCount       []uint64
	FragmentRollup      uint64
	ProcessedConditions uint64
}

func (m *Metadata) dimRefs() []dimRef {
	dims := m.Schema.Domain.Dimensions
	out := make([]dimRef, len(dims))
	for i, d := range dims {
		out[i] = dimRef{ByteSize: d.Datatype.ByteSize(), IsVar: d.CellValNum == shared.CellValNumVar}
	}
	return out
}

// Store serializes every section into generic tiles appended to a
// single in-memory buffer, writes the footer and its size trailer,
// then persists the whole thing through store at m.URI +
// "/__fragment_metadata.tdb". On any failure the partially-written
// object is removed so a reader never observes a truncated file.
func (m *Metadata) Store(store vfs.ObjectStore, key generictile.Key) (err error) {
	path := m.URI + "/" + metadataFileName
	defer func() {
		if err != nil {
			_ = store.Remove(path)
		}
	}()

	dims := m.dimRefs()
	var buf []byte
	var off sectionOffsets
	filters := encryptionFilters(key)

	writeSection := func(payload []byte) (uint64, error) {
		offset := uint64(len(buf))
		var n int
		buf, n, err = generictile.WriteGeneric(buf, generictile.Tile{Filters: filters, Data: payload}, key)
		if err != nil {
			return 0, err
		}
		_ = n
		return offset, nil
	}

	if off.RTree, err = writeSection(encodeRTree(m.RTree, dims)); err != nil {
		return err
	}

	off.TileOffsets = make([]uint64, len(m.fields))
	off.TileVarOffsets = make([]uint64, len(m.fields))
	off.TileVarSizes = make([]uint64, len(m.fields))
	for i := range m.fields {
		if off.TileOffsets[i], err = writeSection(encodeU64Array(m.tileOffsets[i])); err != nil {
			return err
		}
	}
	for i := range m.fields {
		if off.TileVarOffsets[i], err = writeSection(encodeU64Array(m.tileVarOffsets[i])); err != nil {
			return err
		}
	}
	for i := range m.fields {
		if off.TileVarSizes[i], err = writeSection(encodeU64Array(m.tileVarSizes[i])); err != nil {
			return err
		}
	}

	if m.Version >= shared.VersionFileValiditySizes {
		off.TileValidityOffsets = make([]uint64, len(m.fields))
		for i := range m.fields {
			if off.TileValidityOffsets[i], err = writeSection(encodeU64Array(m.tileValidityOffsets[i])); err != nil {
				return err
			}
		}
	}

	if m.Version >= shared.VersionTileMinMaxSumNullCount {
		off.TileMin = make([]uint64, len(m.fields))
		off.TileMax = make([]uint64, len(m.fields))
		off.TileSum = make([]uint64, len(m.fields))
		off.TileNullCount = make([]uint64, len(m.fields))
		for i, f := range m.fields {
			var minPayload, maxPayload []byte
			if f.isVar() {
				minPayload = encodeVarMinMax(m.varStats[i].Min)
				maxPayload = encodeVarMinMax(m.varStats[i].Max)
			} else {
				minPayload = encodeFixedMinMax(m.fixedStats[i].Min, f.Datatype.ByteSize())
				maxPayload = encodeFixedMinMax(m.fixedStats[i].Max, f.Datatype.ByteSize())
			}
			if off.TileMin[i], err = writeSection(minPayload); err != nil {
				return err
			}
			if off.TileMax[i], err = writeSection(maxPayload); err != nil {
				return err
			}
			if off.TileSum[i], err = writeSection(encodeSumArray(m.fixedStats[i].Sum)); err != nil {
				return err
			}
			var nullCounts []uint64
			if f.isVar() {
				nullCounts = m.varStats[i].NullCount
			} else {
				nullCounts = m.fixedStats[i].NullCount
			}
			if off.TileNullCount[i], err = writeSection(encodeU64Array(nullCounts)); err != nil {
				return err
			}
		}
	}

	if m.Version >= shared.VersionFragmentRollup {
		if off.FragmentRollup, err = writeSection(m.encodeRollupSection()); err != nil {
			return err
		}
	}

	if m.Version >= shared.VersionProcessedConditions {
		if off.ProcessedConditions, err = writeSection(encodeProcessedConditions(m.ProcessedConditions)); err != nil {
			return err
		}
	}

	footerPayload := m.encodeFooterPayload(off)
	footerOffset := uint64(len(buf))
	buf, _, err = generictile.WriteGeneric(buf, generictile.Tile{Filters: filters, Data: footerPayload}, key)
	if err != nil {
		return err
	}
	footerSize := uint64(len(buf)) - footerOffset

	trailer := wire.NewEncoder(8)
	trailer.PutUint64(footerSize)
	buf = append(buf, trailer.Bytes()...)

	m.sec = off
	m.store = store
	m.key = key
	return store.Write(path, buf)
}

func encryptionFilters(key generictile.Key) []shared.FilterKind {
	if len(key) == 0 {
		return nil
	}
	return []shared.FilterKind{shared.FilterZstd, shared.FilterAES256GCM}
}

// encodeRollupSection writes "per field {u32 min_len; <min>; u32
// max_len; <max>; u64 sum; u64 null_count}".
func (m *Metadata) encodeRollupSection() []byte {
	enc := wire.NewEncoder(len(m.fields) * 24)
	for _, r := range m.rollups {
		enc.PutVarBytes(r.Min)
		enc.PutVarBytes(r.Max)
		enc.PutUint64(decodeLE(r.Sum[:]))
		enc.PutUint64(r.NullCount)
	}
	return enc.Bytes()
}

func (m *Metadata) decodeRollupSection(data []byte) error {
	c := wire.NewCursor(data)
	m.rollups = make([]rollup, len(m.fields))
	maxStat := uint32(1 << 24)
	for i := range m.fields {
		min, err := c.GetVarBytes(maxStat)
		if err != nil {
			return err
		}
		max, err := c.GetVarBytes(maxStat)
		if err != nil {
			return err
		}
		sum, err := c.GetUint64()
		if err != nil {
			return err
		}
		nullCount, err := c.GetUint64()
		if err != nil {
			return err
		}
		r := rollup{Min: append([]byte(nil), min...), Max: append([]byte(nil), max...), NullCount: nullCount}
		putLE(r.Sum[:], sum)
		m.rollups[i] = r
	}
	return nil
}

// encodeFooterPayload writes the version-gated footer layout: fields
// present only from a given format version onward are skipped
// entirely for older m.Version values rather than written as zero.
func (m *Metadata) encodeFooterPayload(off sectionOffsets) []byte {
	enc := wire.NewEncoder(256)
	enc.PutUint32(m.Version)
	if m.Version >= shared.VersionSchemaName {
		enc.PutVarString(m.ArraySchemaName)
	}
	enc.PutUint8(boolByte(m.Dense))
	enc.PutUint8(boolByte(!m.nonEmptyDomainValid))
	if m.nonEmptyDomainValid {
		encodeNDRangeInto(enc, m.dimRefs(), m.NonEmptyDomain)
	}
	enc.PutUint64(m.SparseTileNum)
	enc.PutUint64(m.LastTileCellNum)
	if m.Version >= shared.VersionHasTimestamps {
		enc.PutUint8(boolByte(m.HasTimestamps))
	}
	if m.Version >= shared.VersionHasDeleteMeta {
		enc.PutUint8(boolByte(m.HasDeleteMeta))
	}
	for _, v := range m.fileSizes {
		enc.PutUint64(v)
	}
	for _, v := range m.fileVarSizes {
		enc.PutUint64(v)
	}
	if m.Version >= shared.VersionFileValiditySizes {
		for _, v := range m.fileValiditySizes {
			enc.PutUint64(v)
		}
	}
	enc.PutUint64(off.RTree)
	putAll(enc, off.TileOffsets)
	putAll(enc, off.TileVarOffsets)
	putAll(enc, off.TileVarSizes)
	if m.Version >= shared.VersionFileValiditySizes {
		putAll(enc, off.TileValidityOffsets)
	}
	if m.Version >= shared.VersionTileMinMaxSumNullCount {
		putAll(enc, off.TileMin)
		putAll(enc, off.TileMax)
		putAll(enc, off.TileSum)
		putAll(enc, off.TileNullCount)
	}
	if m.Version >= shared.VersionFragmentRollup {
		enc.PutUint64(off.FragmentRollup)
	}
	if m.Version >= shared.VersionProcessedConditions {
		enc.PutUint64(off.ProcessedConditions)
	}
	return enc.Bytes()
}

func putAll(enc *wire.Encoder, vals []uint64) {
	for _, v := range vals {
		enc.PutUint64(v)
	}
}

func boolByte(b bool) uint8 {
	if b {
		return 1
	}
	return 0
}

// decodeFooterPayload parses the footer bytes into m. Because the
// number of indexed fields N depends on the schema plus the dense/
// has_timestamps/has_delete_meta flags, all of which are themselves
// encoded earlier in this same payload (§6.4), the schema is resolved
// mid-parse: schemas is consulted for version >= 10 (which carries an
// explicit schema name); defaultSchema is used for older footers,
// which predate that field entirely.
func (m *Metadata) decodeFooterPayload(data []byte, schemas map[string]*schema.ArraySchema, defaultSchema *schema.ArraySchema) (sectionOffsets, error) {
	var off sectionOffsets
	c := wire.NewCursor(data)
	version, err := c.GetUint32()
	if err != nil {
		return off, err
	}
	if version < shared.MinSupportedVersion || version > shared.CurrentVersion {
		return off, errs.New(errs.FormatVersionUnsupported, "fragment: footer version %d unsupported", version)
	}
	m.Version = version
	if version >= shared.VersionSchemaName {
		m.ArraySchemaName, err = c.GetVarString(1 << 20)
		if err != nil {
			return off, err
		}
		sch, ok := schemas[m.ArraySchemaName]
		if !ok {
			return off, errs.New(errs.NotFound, "fragment: schema %q not found", m.ArraySchemaName)
		}
		m.Schema = sch
	} else {
		if defaultSchema == nil {
			return off, errs.New(errs.UsageError, "fragment: pre-v10 footer requires a default schema")
		}
		m.Schema = defaultSchema
		m.ArraySchemaName = defaultSchema.Name
	}
	denseByte, err := c.GetUint8()
	if err != nil {
		return off, err
	}
	m.Dense = denseByte != 0
	nullDomain, err := c.GetUint8()
	if err != nil {
		return off, err
	}
	m.nonEmptyDomainValid = nullDomain == 0
	if m.nonEmptyDomainValid {
		m.NonEmptyDomain, err = decodeNDRangeFrom(c, m.dimRefs())
		if err != nil {
			return off, err
		}
	}
	if m.SparseTileNum, err = c.GetUint64(); err != nil {
		return off, err
	}
	if m.LastTileCellNum, err = c.GetUint64(); err != nil {
		return off, err
	}
	if version >= shared.VersionHasTimestamps {
		b, err := c.GetUint8()
		if err != nil {
			return off, err
		}
		m.HasTimestamps = b != 0
	}
	if version >= shared.VersionHasDeleteMeta {
		b, err := c.GetUint8()
		if err != nil {
			return off, err
		}
		m.HasDeleteMeta = b != 0
	}
	m.fields = buildFields(m.Schema, m.Dense, m.HasTimestamps, m.HasDeleteMeta)
	m.fieldIdx = indexOfFields(m.fields)
	n := len(m.fields)
	m.fileSizes, err = getAll(c, n)
	if err != nil {
		return off, err
	}
	m.fileVarSizes, err = getAll(c, n)
	if err != nil {
		return off, err
	}
	if version >= shared.VersionFileValiditySizes {
		m.fileValiditySizes, err = getAll(c, n)
		if err != nil {
			return off, err
		}
	} else {
		m.fileValiditySizes = make([]uint64, n)
	}
	if off.RTree, err = c.GetUint64(); err != nil {
		return off, err
	}
	if off.TileOffsets, err = getAll(c, n); err != nil {
		return off, err
	}
	if off.TileVarOffsets, err = getAll(c, n); err != nil {
		return off, err
	}
	if off.TileVarSizes, err = getAll(c, n); err != nil {
		return off, err
	}
	if version >= shared.VersionFileValiditySizes {
		if off.TileValidityOffsets, err = getAll(c, n); err != nil {
			return off, err
		}
	}
	if version >= shared.VersionTileMinMaxSumNullCount {
		if off.TileMin, err = getAll(c, n); err != nil {
			return off, err
		}
		if off.TileMax, err = getAll(c, n); err != nil {
			return off, err
		}
		if off.TileSum, err = getAll(c, n); err != nil {
			return off, err
		}
		if off.TileNullCount, err = getAll(c, n); err != nil {
			return off, err
		}
	}
	if version >= shared.VersionFragmentRollup {
		if off.FragmentRollup, err = c.GetUint64(); err != nil {
			return off, err
		}
	}
	if version >= shared.VersionProcessedConditions {
		if off.ProcessedConditions, err = c.GetUint64(); err != nil {
			return off, err
		}
	}
	return off, nil
}

func getAll(c *wire.Cursor, n int) ([]uint64, error) {
	out := make([]uint64, n)
	for i := range out {
		v, err := c.GetUint64()
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

