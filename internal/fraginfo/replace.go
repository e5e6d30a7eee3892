package fraginfo

import (
	"github.com/mattdurham/fragcore/internal/errs"
	"github.com/mattdurham/fragcore/internal/generictile"
)

// LoadAndReplace atomically swaps the contiguous run of loaded
// fragments named by toReplaceURIs for the single fragment at newURI
// (the result of consolidating that run). The replaced run is located
// by URI and must appear contiguously in load order; the new fragment
// takes the position of the first replaced element.
func (i *Info) LoadAndReplace(newURI string, toReplaceURIs []string, key generictile.Key) error {
	if err := i.ensureLoaded(); err != nil {
		return err
	}
	if len(toReplaceURIs) == 0 {
		return errs.New(errs.UsageError, "fraginfo: load_and_replace called with no fragments to replace")
	}

	i.mu.Lock()
	start, err := i.findContiguousRun(toReplaceURIs)
	if err != nil {
		i.mu.Unlock()
		return err
	}
	i.mu.Unlock()

	m, hasConsolidated, size, err := i.loadFragmentWithSize(newURI, key, nil, nil)
	if err != nil {
		return err
	}
	replacement := newSingleFragmentInfo(m, size, hasConsolidated)

	i.mu.Lock()
	defer i.mu.Unlock()
	start, err = i.findContiguousRun(toReplaceURIs)
	if err != nil {
		return err
	}
	next := make([]*SingleFragmentInfo, 0, len(i.fragments)-len(toReplaceURIs)+1)
	next = append(next, i.fragments[:start]...)
	next = append(next, replacement)
	next = append(next, i.fragments[start+len(toReplaceURIs):]...)
	i.fragments = next
	return nil
}

// findContiguousRun locates the index of the first element of
// toReplaceURIs within i.fragments, verifying that every named URI
// appears starting there in the same order with nothing else
// interleaved. Caller must hold i.mu.
func (i *Info) findContiguousRun(toReplaceURIs []string) (int, error) {
	start := -1
	for idx, f := range i.fragments {
		if f.uri == toReplaceURIs[0] {
			start = idx
			break
		}
	}
	if start == -1 {
		return 0, errs.New(errs.UsageError, "fraginfo: load_and_replace: %q not loaded", toReplaceURIs[0])
	}
	if start+len(toReplaceURIs) > len(i.fragments) {
		return 0, errs.New(errs.UsageError, "fraginfo: load_and_replace: replaced run runs past loaded fragments")
	}
	for k, uri := range toReplaceURIs {
		if i.fragments[start+k].uri != uri {
			return 0, errs.New(errs.UsageError, "fraginfo: load_and_replace: %q is not contiguous with %q", uri, toReplaceURIs[0])
		}
	}
	return start, nil
}
