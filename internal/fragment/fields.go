package fragment

import (
	"fmt"

	"github.com/mattdurham/fragcore/internal/errs"
	"github.com/mattdurham/fragcore/internal/schema"
	"github.com/mattdurham/fragcore/internal/shared"
)

// fieldKind distinguishes the special pseudo-fields from ordinary
// schema-declared attributes/dimensions within the fixed logical
// field order every fragment footer stores.
type fieldKind uint8

const (
	fieldAttribute fieldKind = iota
	fieldCoords
	fieldDimension
	fieldTimestamps
	fieldDeleteTS
	fieldDeleteIdx
)

// field is one entry of the dense, fixed-order field list every
// per-field vector (offsets, sizes, stats) is parallel to.
type field struct {
	Name       string
	Kind       fieldKind
	Datatype   shared.Datatype
	CellValNum uint32
	Nullable   bool
}

func (f field) isVar() bool { return f.CellValNum == shared.CellValNumVar }

// buildFields assembles the fixed logical field order: attributes in
// schema order; the pseudo-field "coords" at position attr_num,
// unconditionally, for both dense and sparse fragments; dimensions in
// schema order; then, conditionally, timestamps and the two
// delete-metadata fields.
func buildFields(sch *schema.ArraySchema, dense, hasTimestamps, hasDeleteMeta bool) []field {
	fields := make([]field, 0, len(sch.Attributes)+1+sch.Domain.NDim()+3)
	for _, a := range sch.Attributes {
		fields = append(fields, field{Name: a.Name, Kind: fieldAttribute, Datatype: a.Datatype, CellValNum: a.CellValNum, Nullable: a.Nullable})
	}
	fields = append(fields, field{Name: "coords", Kind: fieldCoords, Datatype: shared.Byte, CellValNum: 1})
	for _, d := range sch.Domain.Dimensions {
		fields = append(fields, field{Name: d.Name, Kind: fieldDimension, Datatype: d.Datatype, CellValNum: d.CellValNum})
	}
	if hasTimestamps {
		fields = append(fields, field{Name: "__timestamps", Kind: fieldTimestamps, Datatype: shared.Uint64, CellValNum: 1})
	}
	if hasDeleteMeta {
		fields = append(fields,
			field{Name: "__delete_ts", Kind: fieldDeleteTS, Datatype: shared.Uint64, CellValNum: 1},
			field{Name: "__delete_idx", Kind: fieldDeleteIdx, Datatype: shared.Uint64, CellValNum: 1},
		)
	}
	return fields
}

func indexOfFields(fields []field) map[string]int {
	m := make(map[string]int, len(fields))
	for i, f := range fields {
		m[f.Name] = i
	}
	return m
}

// fieldIndex returns the position of name in m.fields, or a UsageError
// if no such field exists.
func (m *Metadata) fieldIndex(name string) (int, error) {
	idx, ok := m.fieldIdx[name]
	if !ok {
		return 0, errs.New(errs.UsageError, "fragment: unknown field %q", name)
	}
	return idx, nil
}

// encodedFieldName returns the compact on-disk data-file name for
// fields[i]: "a{idx}" for attributes, "d{idx}" for dimensions, fixed
// tokens for the special fields. Versions <= 7 use the field's raw
// schema name instead; version 8+ encodes.
func (m *Metadata) encodedFieldName(i int) string {
	f := m.fields[i]
	if m.Version < shared.VersionCompactFieldNames {
		return f.Name
	}
	switch f.Kind {
	case fieldCoords:
		return "__coords"
	case fieldTimestamps:
		return "t"
	case fieldDeleteTS:
		return "dt"
	case fieldDeleteIdx:
		return "dci"
	case fieldDimension:
		return fmt.Sprintf("d%d", m.dimOrdinal(i))
	default:
		return fmt.Sprintf("a%d", m.attrOrdinal(i))
	}
}

func (m *Metadata) attrOrdinal(i int) int {
	n := 0
	for j := 0; j < i; j++ {
		if m.fields[j].Kind == fieldAttribute {
			n++
		}
	}
	return n
}

func (m *Metadata) dimOrdinal(i int) int {
	n := 0
	for j := 0; j < i; j++ {
		if m.fields[j].Kind == fieldDimension {
			n++
		}
	}
	return n
}
