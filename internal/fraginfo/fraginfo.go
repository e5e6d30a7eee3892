package fraginfo

import (
	"context"
	"sort"
	"sync"

	"github.com/mattdurham/fragcore/internal/errs"
	"github.com/mattdurham/fragcore/internal/flog"
	"github.com/mattdurham/fragcore/internal/fragment"
	"github.com/mattdurham/fragcore/internal/generictile"
	"github.com/mattdurham/fragcore/internal/memtracker"
	"github.com/mattdurham/fragcore/internal/rangeidx"
	"github.com/mattdurham/fragcore/internal/resources"
	"github.com/mattdurham/fragcore/internal/schema"
	"github.com/mattdurham/fragcore/internal/vfs"
)

// metadataFileName mirrors fragment.metadataFileName (unexported in
// that package); both must name the same fixed manifest file.
const metadataFileName = "__fragment_metadata.tdb"

// Info is FragmentInfo: an array's collection of fragments over a
// timestamp window, loaded once and read-only thereafter.
type Info struct {
	arrayURI string
	store    vfs.ObjectStore
	tracker  *memtracker.Tracker
	pool     *resources.Pool
	log      *flog.Logger

	latestSchema *schema.ArraySchema
	schemas      map[string]*schema.ArraySchema

	mu             sync.Mutex
	cacheDir       string
	cache          *diskCache
	loaded         bool
	timestampStart uint64
	timestampEnd   uint64

	fragments           []*SingleFragmentInfo
	toVacuum            []string
	unconsolidatedCount int
	anteriorDomains     []rangeidx.NDRange
}

// New binds array_uri and the resources (storage, memory budget,
// compute pool) FragmentInfo and every FragmentMetadata it loads will
// share. schemas must include every schema name any fragment under
// arrayURI may reference; latestSchema is the array's current schema,
// used for footers predating per-fragment schema names (version < 10).
func New(arrayURI string, store vfs.ObjectStore, tracker *memtracker.Tracker, pool *resources.Pool, latestSchema *schema.ArraySchema, schemas map[string]*schema.ArraySchema) *Info {
	return &Info{
		arrayURI:     arrayURI,
		store:        store,
		tracker:      tracker,
		pool:         pool,
		log:          flog.Default.With("component", "fraginfo", "array", arrayURI),
		latestSchema: latestSchema,
		schemas:      schemas,
	}
}

// SetConfig sets the local read-through cache directory. Permitted
// only before Load; a bbolt database is opened lazily inside Load
// itself so a caller that never loads never touches the filesystem.
func (i *Info) SetConfig(cacheDir string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.loaded {
		return errs.New(errs.UsageError, "fraginfo: set_config called after load")
	}
	i.cacheDir = cacheDir
	return nil
}

func (i *Info) ensureLoaded() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	if !i.loaded {
		return errs.New(errs.UsageError, "fraginfo: not loaded")
	}
	return nil
}

// Load populates Info from every committed, non-vacuumed fragment
// under array_uri whose timestamp range overlaps [timestampStart,
// timestampEnd]; may be called exactly once. key decrypts fragment
// metadata written with an encrypted filter pipeline.
func (i *Info) Load(ctx context.Context, timestampStart, timestampEnd uint64, key generictile.Key) error {
	i.mu.Lock()
	if i.loaded {
		i.mu.Unlock()
		return errs.New(errs.UsageError, "fraginfo: load called more than once")
	}
	cacheDir := i.cacheDir
	i.mu.Unlock()

	if cacheDir != "" {
		c, err := openDiskCache(cacheDir)
		if err != nil {
			return err
		}
		i.cache = c
	}

	names, err := i.store.List(i.arrayURI + "/")
	if err != nil {
		return err
	}
	toVacuum, err := loadVacuumList(i.store, i.arrayURI)
	if err != nil {
		return err
	}
	vacuumSet := make(map[string]bool, len(toVacuum))
	for _, u := range toVacuum {
		vacuumSet[u] = true
	}

	consolidatedIndex, consolidatedData, err := loadConsolidatedMetadata(i.store, i.arrayURI)
	if err != nil {
		return err
	}

	dirs := listFragmentDirs(names)
	sort.Slice(dirs, func(a, b int) bool {
		if dirs[a].tStart != dirs[b].tStart {
			return dirs[a].tStart < dirs[b].tStart
		}
		return dirs[a].tEnd < dirs[b].tEnd
	})

	fingerprint := listingFingerprint(names)

	var fragments []*SingleFragmentInfo
	var anteriorDomains []rangeidx.NDRange
	unconsolidated := 0
	for _, d := range dirs {
		uri := i.arrayURI + "/" + d.dirName
		if vacuumSet[uri] {
			continue
		}
		if d.tEnd < timestampStart {
			m, err := i.loadFragment(uri, key, consolidatedIndex, consolidatedData)
			if err != nil {
				return err
			}
			if !m.NonEmptyDomain.Empty() {
				anteriorDomains = append(anteriorDomains, m.NonEmptyDomain)
			}
			continue
		}
		if d.tStart > timestampEnd {
			continue
		}

		if i.cache != nil {
			if sum, ok := i.cache.get(i.arrayURI, uri, fingerprint); ok {
				sfi := summaryToSingleFragmentInfo(sum, i.schemas[sum.ArraySchemaName], func() (*fragment.Metadata, error) {
					return i.loadFragment(uri, key, consolidatedIndex, consolidatedData)
				})
				fragments = append(fragments, sfi)
				if !sum.HasConsolidatedMetadata {
					unconsolidated++
				}
				continue
			}
		}

		m, hasConsolidated, size, err := i.loadFragmentWithSize(uri, key, consolidatedIndex, consolidatedData)
		if err != nil {
			return err
		}
		sfi := newSingleFragmentInfo(m, size, hasConsolidated)
		fragments = append(fragments, sfi)
		if !hasConsolidated {
			unconsolidated++
		}
		if i.cache != nil {
			i.cache.put(i.arrayURI, uri, fingerprint, singleFragmentInfoToSummary(sfi))
		}
	}

	i.mu.Lock()
	i.fragments = fragments
	i.toVacuum = toVacuum
	i.unconsolidatedCount = unconsolidated
	i.anteriorDomains = anteriorDomains
	i.timestampStart = timestampStart
	i.timestampEnd = timestampEnd
	i.loaded = true
	i.mu.Unlock()
	i.log.Infof("loaded", "fragments", len(fragments), "unconsolidated", unconsolidated, "vacuum_pending", len(toVacuum))
	return nil
}

func (i *Info) loadFragment(uri string, key generictile.Key, consolidatedIndex map[string]uint64, consolidatedData []byte) (*fragment.Metadata, error) {
	opts := fragment.LoadOptions{
		Store:         i.store,
		Tracker:       i.tracker,
		Pool:          i.pool,
		URI:           uri,
		Key:           key,
		Schemas:       i.schemas,
		DefaultSchema: i.latestSchema,
	}
	if off, ok := consolidatedIndex[uri]; ok {
		opts.Consolidated = &generictile.Tile{Data: consolidatedData}
		opts.ConsolidatedOffset = off
	}
	return fragment.Load(opts)
}

func (i *Info) loadFragmentWithSize(uri string, key generictile.Key, consolidatedIndex map[string]uint64, consolidatedData []byte) (*fragment.Metadata, bool, uint64, error) {
	m, err := i.loadFragment(uri, key, consolidatedIndex, consolidatedData)
	if err != nil {
		return nil, false, 0, err
	}
	size, err := m.TotalSize(i.store)
	if err != nil {
		return nil, false, 0, err
	}
	_, hasConsolidated := consolidatedIndex[uri]
	return m, hasConsolidated, size, nil
}

// FragmentNum returns the number of fragments this Info has loaded.
func (i *Info) FragmentNum() (int, error) {
	if err := i.ensureLoaded(); err != nil {
		return 0, err
	}
	return len(i.fragments), nil
}

// Fragment returns the loaded SingleFragmentInfo at index idx, in
// ascending (t_start, t_end) order.
func (i *Info) Fragment(idx int) (*SingleFragmentInfo, error) {
	if err := i.ensureLoaded(); err != nil {
		return nil, err
	}
	if idx < 0 || idx >= len(i.fragments) {
		return nil, errs.New(errs.UsageError, "fraginfo: fragment index %d out of range", idx)
	}
	return i.fragments[idx], nil
}

// UnconsolidatedMetadataNum returns the number of loaded fragments
// still lacking consolidated metadata.
func (i *Info) UnconsolidatedMetadataNum() (int, error) {
	if err := i.ensureLoaded(); err != nil {
		return 0, err
	}
	return i.unconsolidatedCount, nil
}

// ToVacuum returns the fragment URIs scheduled for deletion by a
// previous consolidation.
func (i *Info) ToVacuum() ([]string, error) {
	if err := i.ensureLoaded(); err != nil {
		return nil, err
	}
	return i.toVacuum, nil
}
