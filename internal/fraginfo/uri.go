// Package fraginfo implements FragmentInfo, the per-array collection
// of fragments: a time-windowed load of every committed fragment's
// metadata, the set scheduled for vacuum, and the anterior non-empty
// domain of everything committed before the window, split into an
// Info/SingleFragmentInfo pair the way a query planner wants it.
package fraginfo

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/mattdurham/fragcore/internal/errs"
)

// fragmentDirPrefix marks a directory entry under an array URI as a
// fragment directory rather than array-level metadata (schemas,
// consolidated listings, vacuum files all live under other prefixes).
const fragmentDirPrefix = "__"

// FragmentURI builds the §6.1 fragment URI grammar:
// <array_uri>/__<t_start>_<t_end>_<uuid>_<format_version>. Exported so
// a fragment writer (or a test building fixtures) can name a new
// fragment directory the same way this package parses one back.
func FragmentURI(arrayURI string, tStart, tEnd uint64, id uuid.UUID, version uint32) string {
	return fmt.Sprintf("%s/__%d_%d_%s_%d", arrayURI, tStart, tEnd, id.String(), version)
}

// parsedFragmentURI is a fragment directory name's decoded components.
type parsedFragmentURI struct {
	dirName string
	tStart  uint64
	tEnd    uint64
	id      uuid.UUID
	version uint32
}

// parseFragmentDirName decodes one path segment of the form
// "__<t_start>_<t_end>_<uuid>_<format_version>"; dirName must not
// contain a "/".
func parseFragmentDirName(dirName string) (parsedFragmentURI, error) {
	if !strings.HasPrefix(dirName, fragmentDirPrefix) {
		return parsedFragmentURI{}, errs.New(errs.UsageError, "fraginfo: %q is not a fragment directory", dirName)
	}
	rest := strings.TrimPrefix(dirName, fragmentDirPrefix)
	parts := strings.Split(rest, "_")
	if len(parts) != 4 {
		return parsedFragmentURI{}, errs.New(errs.Corrupt, "fraginfo: malformed fragment uri %q", dirName)
	}
	tStart, err := strconv.ParseUint(parts[0], 10, 64)
	if err != nil {
		return parsedFragmentURI{}, errs.Wrap(errs.Corrupt, err, "fraginfo: parsing t_start from %q", dirName)
	}
	tEnd, err := strconv.ParseUint(parts[1], 10, 64)
	if err != nil {
		return parsedFragmentURI{}, errs.Wrap(errs.Corrupt, err, "fraginfo: parsing t_end from %q", dirName)
	}
	id, err := uuid.Parse(parts[2])
	if err != nil {
		return parsedFragmentURI{}, errs.Wrap(errs.Corrupt, err, "fraginfo: parsing uuid from %q", dirName)
	}
	version, err := strconv.ParseUint(parts[3], 10, 32)
	if err != nil {
		return parsedFragmentURI{}, errs.Wrap(errs.Corrupt, err, "fraginfo: parsing format version from %q", dirName)
	}
	return parsedFragmentURI{dirName: dirName, tStart: tStart, tEnd: tEnd, id: id, version: uint32(version)}, nil
}

// listFragmentDirs returns the distinct fragment directory names
// (parsed, in listing order; Load sorts them by t_start, t_end) found directly under
// arrayURI, by listing the manifest files the store's List surfaces
// and stripping the trailing "/__fragment_metadata.tdb" segment.
func listFragmentDirs(names []string) []parsedFragmentURI {
	const suffix = "/" + metadataFileName
	var out []parsedFragmentURI
	for _, n := range names {
		if !strings.HasSuffix(n, suffix) {
			continue
		}
		dir := strings.TrimSuffix(n, suffix)
		dir = dir[strings.LastIndex(dir, "/")+1:]
		p, err := parseFragmentDirName(dir)
		if err != nil {
			continue
		}
		out = append(out, p)
	}
	return out
}
