package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/BurntSushi/toml"

	"go.ngs.io/awap/internal/domain"
)

//go:embed regions.toml
var defaultRegions []byte

// RegionDef is one entry of a region definition table.
type RegionDef struct {
	ID int `toml:"id"`
	// BBox is [minLon, minLat, maxLon, maxLat]; empty means derive it from the mask.
	BBox []float64 `toml:"bbox"`
}

// RegionDefs is a table of named sub-region ids and optional bounding boxes.
type RegionDefs struct {
	Type    string               `toml:"type"`
	Regions map[string]RegionDef `toml:"regions"`
}

// DefaultRegionDefs returns the built-in Australian state table.
func DefaultRegionDefs() (*RegionDefs, error) {
	return DecodeRegionDefs(bytes.NewReader(defaultRegions))
}

// LoadRegionDefs reads a TOML table from path, or the built-in table when
// path is empty.
func LoadRegionDefs(path string) (*RegionDefs, error) {
	if path == "" {
		return DefaultRegionDefs()
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open region definitions: %w", err)
	}
	defer f.Close()
	defs, err := DecodeRegionDefs(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return defs, nil
}

// DecodeRegionDefs decodes and validates a TOML region table.
func DecodeRegionDefs(r io.Reader) (*RegionDefs, error) {
	var defs RegionDefs
	if _, err := toml.NewDecoder(r).Decode(&defs); err != nil {
		return nil, fmt.Errorf("failed to decode region definitions: %w", err)
	}
	for name, d := range defs.Regions {
		if n := len(d.BBox); n != 0 && n != 4 {
			return nil, fmt.Errorf("region %s: bbox has %d values, want 4", name, n)
		}
		if len(d.BBox) == 4 && (d.BBox[2] <= d.BBox[0] || d.BBox[3] <= d.BBox[1]) {
			return nil, fmt.Errorf("region %s: bbox %v is inverted", name, d.BBox)
		}
	}
	if err := domain.ValidateLookupTable(defs.Table()); err != nil {
		return nil, err
	}
	return &defs, nil
}

// Table returns the name to id lookup table.
func (d *RegionDefs) Table() map[string]int {
	out := make(map[string]int, len(d.Regions))
	for name, r := range d.Regions {
		out[name] = r.ID
	}
	return out
}

// Boxes returns the explicit bounding boxes keyed by name.
func (d *RegionDefs) Boxes() map[string]domain.BoundingBox {
	out := make(map[string]domain.BoundingBox)
	for name, r := range d.Regions {
		if len(r.BBox) == 4 {
			out[name] = domain.BoundingBoxFromArray([4]float64{r.BBox[0], r.BBox[1], r.BBox[2], r.BBox[3]})
		}
	}
	return out
}

// IDs returns the ids of the named regions in the given order, or every id
// sorted ascending when names is empty.
func (d *RegionDefs) IDs(names []string) ([]int, error) {
	if len(names) == 0 {
		ids := make([]int, 0, len(d.Regions))
		for _, r := range d.Regions {
			ids = append(ids, r.ID)
		}
		sort.Ints(ids)
		return ids, nil
	}
	ids := make([]int, 0, len(names))
	for _, name := range names {
		r, ok := d.Regions[name]
		if !ok {
			return nil, fmt.Errorf("region %q: %w", name, domain.ErrCategoryNotFound)
		}
		ids = append(ids, r.ID)
	}
	return ids, nil
}
