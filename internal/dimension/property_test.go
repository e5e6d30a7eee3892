package dimension

import (
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/mattdurham/fragcore/internal/shared"
)

// TestProperty_DenseTileNumMatchesCeilDivision checks the
// single-dimension dense case: tile_num() == ceil(dom_d / ext_d).
func TestProperty_DenseTileNumMatchesCeilDivision(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("dense domain tile_num equals ceil(span/extent)", prop.ForAll(
		func(span, extent int64) bool {
			d, err := New("d", shared.Int64, i64b(0), i64b(span), i64b(extent))
			if err != nil {
				return false
			}
			dom := NewDomain(false, d)
			got, err := dom.TileNum()
			if err != nil {
				return false
			}
			want := (uint64(span) + 1 + uint64(extent) - 1) / uint64(extent)
			return got == want
		},
		gen.Int64Range(0, 1_000_000),
		gen.Int64Range(1, 1000),
	))

	properties.TestingRun(t)
}
