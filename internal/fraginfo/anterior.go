package fraginfo

import (
	"github.com/mattdurham/fragcore/internal/dimension"
	"github.com/mattdurham/fragcore/internal/rangeidx"
	"github.com/mattdurham/fragcore/internal/rtree"
)

// ExpandAnteriorNDRange folds the non-empty domain of every fragment
// committed strictly before this Info's load window (timestamp_end <
// timestamp_start) into existing, returning the union. A caller
// building up a running "everything before this snapshot" domain
// across several Info windows passes its current accumulator as
// existing; an empty or nil existing starts a fresh union.
func (i *Info) ExpandAnteriorNDRange(domain *dimension.Domain, existing rangeidx.NDRange) (rangeidx.NDRange, error) {
	if err := i.ensureLoaded(); err != nil {
		return nil, err
	}
	nds := i.anteriorDomains
	if !existing.Empty() {
		nds = append(append([]rangeidx.NDRange(nil), nds...), existing)
	}
	if len(nds) == 0 {
		return existing, nil
	}
	return rtree.UnionNDRanges(domain, nds)
}
