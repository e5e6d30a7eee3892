// Package schema is the minimal ArraySchema/Attribute authoring
// surface FragmentMetadata is built against: just enough to construct
// and validate an array's dimensions, attributes, and write-format
// version, shaped after the example repos' array-metadata structs
// (shape/chunks/dtype/fill-value).
package schema

import (
	"github.com/go-playground/validator/v10"
	"github.com/mattdurham/fragcore/internal/dimension"
	"github.com/mattdurham/fragcore/internal/errs"
	"github.com/mattdurham/fragcore/internal/shared"
)

// CellOrder is the linearization order of cells within a tile.
type CellOrder string

// CellOrder constants.
const (
	RowMajor CellOrder = "row-major"
	ColMajor CellOrder = "col-major"
)

// Attribute is one non-dimension field of an array.
type Attribute struct {
	Name           string              `validate:"required"`
	Datatype       shared.Datatype     `validate:"-"`
	CellValNum     uint32              `validate:"-"`
	Nullable       bool
	FilterPipeline []shared.FilterKind
}

// ArraySchema describes an array's attributes, domain, capacity, and
// write-format version, shared immutably across every FragmentMetadata
// built against it.
type ArraySchema struct {
	Name       string    `validate:"required"`
	Dense      bool
	Domain     *dimension.Domain
	Attributes []Attribute `validate:"required,min=1,dive"`
	Capacity   uint64      // sparse tile cell count; ignored for dense arrays
	CellOrder  CellOrder
	TileOrder  CellOrder
	Version    uint32
}

var validate = validator.New()

// Validate checks structural invariants the validator struct tags
// can't express: non-empty domain, positive capacity for sparse
// arrays, and unique attribute names.
func (s *ArraySchema) Validate() error {
	if err := validate.Struct(s); err != nil {
		return errs.Wrap(errs.UsageError, err, "schema: %s failed validation", s.Name)
	}
	if s.Domain == nil || s.Domain.NDim() == 0 {
		return errs.New(errs.UsageError, "schema: %s has no dimensions", s.Name)
	}
	if !s.Dense && s.Capacity == 0 {
		return errs.New(errs.UsageError, "schema: %s is sparse but has zero capacity", s.Name)
	}
	seen := make(map[string]bool, len(s.Attributes))
	for _, a := range s.Attributes {
		if seen[a.Name] {
			return errs.New(errs.UsageError, "schema: %s has duplicate attribute name %q", s.Name, a.Name)
		}
		seen[a.Name] = true
	}
	return nil
}

// FieldNames returns the full logical field order: attributes, then
// "coords" for dense fragments, then dimensions, in schema order.
// Timestamps/delete fields are appended by fragment.Metadata itself
// since they depend on per-fragment flags, not the schema.
func (s *ArraySchema) FieldNames() []string {
	names := make([]string, 0, len(s.Attributes)+1+s.Domain.NDim())
	for _, a := range s.Attributes {
		names = append(names, a.Name)
	}
	if s.Dense {
		names = append(names, "coords")
	}
	for _, d := range s.Domain.Dimensions {
		names = append(names, d.Name)
	}
	return names
}
