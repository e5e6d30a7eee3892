package fragment

import (
	"github.com/mattdurham/fragcore/internal/dimension"
	"github.com/mattdurham/fragcore/internal/errs"
	"github.com/mattdurham/fragcore/internal/rangeidx"
	"github.com/mattdurham/fragcore/internal/rtree"
	"github.com/mattdurham/fragcore/internal/wire"
)

// maxProcessedConditionLen bounds a single processed-condition string
// read from an untrusted section, well under wire.Cursor.GetVarString's
// uint32 parameter ceiling.
const maxProcessedConditionLen = 1 << 24

// encodeU64Array writes the generic "u64 n; u64 value[n]" shape used
// by tile_offsets, tile_var_offsets, tile_var_sizes,
// tile_validity_offsets, tile_sum (bit-reinterpreted), and
// tile_null_count sections.
func encodeU64Array(vals []uint64) []byte {
	enc := wire.NewEncoder(8 + 8*len(vals))
	enc.PutUint64(uint64(len(vals)))
	for _, v := range vals {
		enc.PutUint64(v)
	}
	return enc.Bytes()
}

func decodeU64Array(data []byte) ([]uint64, error) {
	c := wire.NewCursor(data)
	n, err := c.GetUint64()
	if err != nil {
		return nil, err
	}
	out := make([]uint64, n)
	for i := range out {
		out[i], err = c.GetUint64()
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

func encodeSumArray(sums [][8]byte) []byte {
	vals := make([]uint64, len(sums))
	for i, s := range sums {
		vals[i] = decodeLE(s[:])
	}
	return encodeU64Array(vals)
}

func decodeSumArray(data []byte) ([][8]byte, error) {
	vals, err := decodeU64Array(data)
	if err != nil {
		return nil, err
	}
	out := make([][8]byte, len(vals))
	for i, v := range vals {
		putLE(out[i][:], v)
	}
	return out, nil
}

// encodeFixedMinMax writes the fixed-size form of a tile_min/tile_max
// section: "u64 buffer_size; u64 var_buffer_size(=0); <fixed buffer>".
func encodeFixedMinMax(vals [][]byte, width int) []byte {
	enc := wire.NewEncoder(16 + len(vals)*width)
	enc.PutUint64(uint64(len(vals) * width))
	enc.PutUint64(0)
	for _, v := range vals {
		enc.PutBytes(padStat(v, width))
	}
	return enc.Bytes()
}

// encodeVarMinMax writes the var-size form: the "fixed buffer" holds
// N cumulative byte offsets into the "var buffer", which holds every
// tile's value concatenated — the size->offset flip happens here, at
// serialization time.
func encodeVarMinMax(vals [][]byte) []byte {
	offsets := make([]uint64, len(vals))
	var varBuf []byte
	var running uint64
	for i, v := range vals {
		offsets[i] = running
		running += uint64(len(v))
		varBuf = append(varBuf, v...)
	}
	enc := wire.NewEncoder(16 + 8*len(offsets) + len(varBuf))
	enc.PutUint64(uint64(8 * len(offsets)))
	enc.PutUint64(uint64(len(varBuf)))
	for _, o := range offsets {
		enc.PutUint64(o)
	}
	enc.PutBytes(varBuf)
	return enc.Bytes()
}

func decodeFixedMinMax(data []byte, width int) ([][]byte, error) {
	c := wire.NewCursor(data)
	bufSize, err := c.GetUint64()
	if err != nil {
		return nil, err
	}
	if _, err := c.GetUint64(); err != nil { // var_buffer_size, unused for fixed form
		return nil, err
	}
	buf, err := c.GetBytes(int(bufSize))
	if err != nil {
		return nil, err
	}
	if width == 0 || int(bufSize)%width != 0 {
		return nil, errs.New(errs.Corrupt, "fragment: fixed min/max buffer size %d not a multiple of width %d", bufSize, width)
	}
	n := int(bufSize) / width
	out := make([][]byte, n)
	for i := 0; i < n; i++ {
		out[i] = append([]byte(nil), buf[i*width:(i+1)*width]...)
	}
	return out, nil
}

func decodeVarMinMax(data []byte) ([][]byte, error) {
	c := wire.NewCursor(data)
	bufSize, err := c.GetUint64()
	if err != nil {
		return nil, err
	}
	varBufSize, err := c.GetUint64()
	if err != nil {
		return nil, err
	}
	if bufSize%8 != 0 {
		return nil, errs.New(errs.Corrupt, "fragment: var min/max offsets size %d not 8-aligned", bufSize)
	}
	n := int(bufSize) / 8
	offsets := make([]uint64, n)
	for i := range offsets {
		offsets[i], err = c.GetUint64()
		if err != nil {
			return nil, err
		}
	}
	varBuf, err := c.GetBytes(int(varBufSize))
	if err != nil {
		return nil, err
	}
	out := make([][]byte, n)
	for i := range offsets {
		end := varBufSize
		if i+1 < n {
			end = offsets[i+1]
		}
		if offsets[i] > end || end > varBufSize {
			return nil, errs.New(errs.Corrupt, "fragment: var min/max offset %d out of range", i)
		}
		out[i] = append([]byte(nil), varBuf[offsets[i]:end]...)
	}
	return out, nil
}

// encodeRTree writes the R-tree section: "u64 mbr_num; <NDRange
// bytes>..." — internal levels are never persisted; they are rebuilt
// by BuildTree on load. A nil tree (no tiles written yet) encodes as
// zero leaves.
func encodeRTree(t *rtree.RTree, dims []dimRef) []byte {
	var leaves []rangeidx.NDRange
	if t != nil {
		leaves = t.Leaves()
	}
	enc := wire.NewEncoder(8 + len(leaves)*8*len(dims))
	enc.PutUint64(uint64(len(leaves)))
	for _, mbr := range leaves {
		encodeNDRangeInto(enc, dims, mbr)
	}
	return enc.Bytes()
}

// decodeRTree parses the R-tree section back into leaf MBRs, sets
// them on a freshly constructed tree, and builds the internal levels.
func decodeRTree(data []byte, dims []dimRef, fanout int, domain *dimension.Domain) (*rtree.RTree, error) {
	c := wire.NewCursor(data)
	n, err := c.GetUint64()
	if err != nil {
		return nil, err
	}
	t := rtree.New(fanout, domain)
	t.SetLeafNum(n)
	for i := uint64(0); i < n; i++ {
		mbr, err := decodeNDRangeFrom(c, dims)
		if err != nil {
			return nil, err
		}
		if err := t.SetLeaf(i, mbr); err != nil {
			return nil, err
		}
	}
	if n > 0 {
		if err := t.BuildTree(); err != nil {
			return nil, err
		}
	}
	return t, nil
}

// dimRef is the minimal per-dimension info sections.go needs to
// encode/decode NDRanges without importing the dimension package's
// full Dimension type into this file's signatures.
type dimRef struct {
	ByteSize int
	IsVar    bool
}

func encodeNDRangeInto(enc *wire.Encoder, dims []dimRef, nd rangeidx.NDRange) {
	for i, r := range nd {
		start, end, _ := r.StartEnd()
		if dims[i].IsVar {
			enc.PutUint64(uint64(len(start)))
			enc.PutUint64(uint64(len(end)))
		}
		enc.PutBytes(start)
		enc.PutBytes(end)
	}
}

func decodeNDRangeFrom(c *wire.Cursor, dims []dimRef) (rangeidx.NDRange, error) {
	nd := make(rangeidx.NDRange, len(dims))
	for i, d := range dims {
		if d.IsVar {
			startLen, err := c.GetUint64()
			if err != nil {
				return nil, err
			}
			endLen, err := c.GetUint64()
			if err != nil {
				return nil, err
			}
			start, err := c.GetBytes(int(startLen))
			if err != nil {
				return nil, err
			}
			end, err := c.GetBytes(int(endLen))
			if err != nil {
				return nil, err
			}
			nd[i] = rangeidx.NewVar(start, end)
			continue
		}
		b, err := c.GetBytes(2 * d.ByteSize)
		if err != nil {
			return nil, err
		}
		r, err := rangeidx.NewFixed(b[:d.ByteSize], b[d.ByteSize:], d.ByteSize)
		if err != nil {
			return nil, err
		}
		nd[i] = r
	}
	return nd, nil
}

// encodeProcessedConditions writes "u64 n; {u64 len; <string>} x n".
func encodeProcessedConditions(conditions []string) []byte {
	enc := wire.NewEncoder(8)
	enc.PutUint64(uint64(len(conditions)))
	for _, c := range conditions {
		enc.PutVarString(c)
	}
	return enc.Bytes()
}

func decodeProcessedConditions(data []byte) ([]string, error) {
	c := wire.NewCursor(data)
	n, err := c.GetUint64()
	if err != nil {
		return nil, err
	}
	out := make([]string, n)
	for i := range out {
		out[i], err = c.GetVarString(maxProcessedConditionLen)
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}
