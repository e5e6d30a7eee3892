// Command fragdump loads FragmentInfo for a single array over a
// timestamp window and prints a one-line summary per fragment, the way
// a TileDB-style `fragment_info list` debugging tool would. It exists
// to exercise fraginfo.Info end-to-end against a real on-disk array
// without writing a full query engine around it.
package main

import (
	"context"
	"encoding/binary"
	"flag"
	"fmt"
	"math"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mattdurham/fragcore/internal/config"
	"github.com/mattdurham/fragcore/internal/dimension"
	"github.com/mattdurham/fragcore/internal/flog"
	"github.com/mattdurham/fragcore/internal/fraginfo"
	"github.com/mattdurham/fragcore/internal/memtracker"
	"github.com/mattdurham/fragcore/internal/resources"
	"github.com/mattdurham/fragcore/internal/schema"
	"github.com/mattdurham/fragcore/internal/shared"
	"github.com/mattdurham/fragcore/internal/vfs"
)

func main() {
	var (
		configPath string
		arrayURI   string
		schemaPath string
		tStart     uint64
		tEnd       uint64
		listVacuum bool
	)

	flag.StringVar(&configPath, "config", "", "Path to a YAML config document (defaults to config.Default())")
	flag.StringVar(&arrayURI, "array", "", "Array URI, relative to the configured VFS root")
	flag.StringVar(&schemaPath, "schema", "", "Path to a YAML array schema document")
	flag.Uint64Var(&tStart, "t-start", 0, "Timestamp window start (inclusive)")
	flag.Uint64Var(&tEnd, "t-end", math.MaxUint64, "Timestamp window end (inclusive)")
	flag.BoolVar(&listVacuum, "vacuum", false, "Print the to_vacuum() set instead of the loaded fragment list")
	flag.Parse()

	log := flog.Default.With("component", "fragdump")

	if arrayURI == "" {
		fmt.Fprintln(os.Stderr, "error: -array must be specified")
		flag.Usage()
		os.Exit(1)
	}
	if schemaPath == "" {
		fmt.Fprintln(os.Stderr, "error: -schema must be specified")
		flag.Usage()
		os.Exit(1)
	}

	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			log.Errorf("loading config", "err", err)
			os.Exit(1)
		}
	}

	sch, err := loadSchemaFile(schemaPath)
	if err != nil {
		log.Errorf("loading schema", "path", schemaPath, "err", err)
		os.Exit(1)
	}

	store, err := vfs.NewLocalStore(cfg.VFS.RootDir)
	if err != nil {
		log.Errorf("opening vfs root", "root", cfg.VFS.RootDir, "err", err)
		os.Exit(1)
	}

	tracker := memtracker.New(cfg.Memory.BudgetBytes)
	pool := resources.New(cfg.Pool.Workers)
	schemas := map[string]*schema.ArraySchema{sch.Name: sch}

	info := fraginfo.New(arrayURI, store, tracker, pool, sch, schemas)
	if cfg.Cache.Dir != "" {
		if err := info.SetConfig(cfg.Cache.Dir); err != nil {
			log.Errorf("configuring cache", "err", err)
			os.Exit(1)
		}
	}

	start := time.Now()
	if err := info.Load(context.Background(), tStart, tEnd, nil); err != nil {
		log.Errorf("loading fragment info", "array", arrayURI, "err", err)
		os.Exit(1)
	}
	log.Infof("loaded", "array", arrayURI, "elapsed", time.Since(start).String())

	if listVacuum {
		dumpVacuum(info)
		return
	}
	if err := dumpFragments(info); err != nil {
		log.Errorf("dumping fragments", "err", err)
		os.Exit(1)
	}
}

func dumpVacuum(info *fraginfo.Info) {
	toVacuum, err := info.ToVacuum()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
	for _, uri := range toVacuum {
		fmt.Println(uri)
	}
}

func dumpFragments(info *fraginfo.Info) error {
	n, err := info.FragmentNum()
	if err != nil {
		return err
	}
	for idx := 0; idx < n; idx++ {
		f, err := info.Fragment(idx)
		if err != nil {
			return err
		}
		cellNum := f.CellNum()
		size := f.Size()
		tsStart, tsEnd := f.TimestampRange()
		mbrNum, err := f.MBRNum()
		if err != nil {
			return err
		}

		kind := "sparse"
		if f.Dense() {
			kind = "dense"
		}
		fmt.Printf("%s\tkind=%s\tcells=%d\tsize=%d\tts=[%d,%d]\tmbrs=%d\tversion=%d\tschema=%s\tconsolidated=%t\n",
			f.URI(), kind, cellNum, size, tsStart, tsEnd, mbrNum, f.Version(), f.ArraySchemaName(), f.HasConsolidatedMetadata())
	}
	unconsolidated, err := info.UnconsolidatedMetadataNum()
	if err != nil {
		return err
	}
	fmt.Printf("# %d fragments, %d without consolidated metadata\n", n, unconsolidated)
	return nil
}

// yamlDimension and yamlSchema describe the small YAML schema document
// fragdump reads a schema from, since this metadata-only core has no
// array-creation API of its own to source one from.
type yamlDimension struct {
	Name     string `yaml:"name"`
	Datatype string `yaml:"datatype"`
	Low      int64  `yaml:"low"`
	High     int64  `yaml:"high"`
	Extent   int64  `yaml:"extent"`
}

type yamlAttribute struct {
	Name       string `yaml:"name"`
	Datatype   string `yaml:"datatype"`
	CellValNum uint32 `yaml:"cell_val_num"`
	Nullable   bool   `yaml:"nullable"`
}

type yamlSchema struct {
	Name       string          `yaml:"name"`
	Dense      bool            `yaml:"dense"`
	ColMajor   bool            `yaml:"col_major"`
	Capacity   uint64          `yaml:"capacity"`
	Dimensions []yamlDimension `yaml:"dimensions"`
	Attributes []yamlAttribute `yaml:"attributes"`
}

func loadSchemaFile(path string) (*schema.ArraySchema, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	var doc yamlSchema
	if err := yaml.Unmarshal(b, &doc); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}

	dims := make([]*dimension.Dimension, 0, len(doc.Dimensions))
	for _, yd := range doc.Dimensions {
		dt, err := parseDatatype(yd.Datatype)
		if err != nil {
			return nil, fmt.Errorf("dimension %s: %w", yd.Name, err)
		}
		low, err := encodeScalar(dt, yd.Low)
		if err != nil {
			return nil, fmt.Errorf("dimension %s: low bound: %w", yd.Name, err)
		}
		high, err := encodeScalar(dt, yd.High)
		if err != nil {
			return nil, fmt.Errorf("dimension %s: high bound: %w", yd.Name, err)
		}
		var extent []byte
		if yd.Extent != 0 {
			extent, err = encodeScalar(dt, yd.Extent)
			if err != nil {
				return nil, fmt.Errorf("dimension %s: extent: %w", yd.Name, err)
			}
		}
		d, err := dimension.New(yd.Name, dt, low, high, extent)
		if err != nil {
			return nil, fmt.Errorf("dimension %s: %w", yd.Name, err)
		}
		dims = append(dims, d)
	}
	domain := dimension.NewDomain(doc.ColMajor, dims...)

	attrs := make([]schema.Attribute, 0, len(doc.Attributes))
	for _, ya := range doc.Attributes {
		dt, err := parseDatatype(ya.Datatype)
		if err != nil {
			return nil, fmt.Errorf("attribute %s: %w", ya.Name, err)
		}
		cellValNum := ya.CellValNum
		if cellValNum == 0 {
			cellValNum = 1
		}
		attrs = append(attrs, schema.Attribute{
			Name:       ya.Name,
			Datatype:   dt,
			CellValNum: cellValNum,
			Nullable:   ya.Nullable,
		})
	}

	sch := &schema.ArraySchema{
		Name:       doc.Name,
		Dense:      doc.Dense,
		Domain:     domain,
		Attributes: attrs,
		Capacity:   doc.Capacity,
		CellOrder:  schema.RowMajor,
		TileOrder:  schema.RowMajor,
		Version:    shared.CurrentVersion,
	}
	if err := sch.Validate(); err != nil {
		return nil, err
	}
	return sch, nil
}

// parseDatatype maps the upper-cased name shared.Datatype.String()
// renders back to its constant, so schema YAML documents can be
// written in the same vocabulary fragdump's own output uses.
func parseDatatype(name string) (shared.Datatype, error) {
	switch strings.ToUpper(name) {
	case "INT8":
		return shared.Int8, nil
	case "UINT8":
		return shared.Uint8, nil
	case "INT16":
		return shared.Int16, nil
	case "UINT16":
		return shared.Uint16, nil
	case "INT32":
		return shared.Int32, nil
	case "UINT32":
		return shared.Uint32, nil
	case "INT64":
		return shared.Int64, nil
	case "UINT64":
		return shared.Uint64, nil
	case "FLOAT32":
		return shared.Float32, nil
	case "FLOAT64":
		return shared.Float64, nil
	case "BOOL":
		return shared.Boolean, nil
	default:
		return 0, fmt.Errorf("unrecognized datatype %q", name)
	}
}

// encodeScalar renders v as dt's little-endian coordSize-byte wire
// representation, matching the fixed-size encoding rangeidx.Range and
// dimension.New both expect.
func encodeScalar(dt shared.Datatype, v int64) ([]byte, error) {
	width := dt.ByteSize()
	buf := make([]byte, width)
	switch dt {
	case shared.Float32:
		binary.LittleEndian.PutUint32(buf, math.Float32bits(float32(v)))
	case shared.Float64:
		binary.LittleEndian.PutUint64(buf, math.Float64bits(float64(v)))
	default:
		full := make([]byte, 8)
		binary.LittleEndian.PutUint64(full, uint64(v))
		copy(buf, full[:width])
	}
	return buf, nil
}
