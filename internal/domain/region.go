package domain

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sirupsen/logrus"
)

// Orientation records the storage order of a region's latitude axis.
type Orientation int

const (
	// Descending latitudes: row 0 is the northernmost row (AWAP default).
	Descending Orientation = iota
	// Ascending latitudes: row 0 is the southernmost row.
	Ascending
)

func (o Orientation) String() string {
	if o == Ascending {
		return "ascending"
	}
	return "descending"
}

// BoundingBox is a lat/lon extent measured at cell edges.
type BoundingBox struct {
	MinLon float64 `json:"min_lon" toml:"min_lon"`
	MinLat float64 `json:"min_lat" toml:"min_lat"`
	MaxLon float64 `json:"max_lon" toml:"max_lon"`
	MaxLat float64 `json:"max_lat" toml:"max_lat"`
}

// Array returns the box as [minLon, minLat, maxLon, maxLat].
func (b BoundingBox) Array() [4]float64 {
	return [4]float64{b.MinLon, b.MinLat, b.MaxLon, b.MaxLat}
}

// BoundingBoxFromArray builds a box from [minLon, minLat, maxLon, maxLat].
func BoundingBoxFromArray(a [4]float64) BoundingBox {
	return BoundingBox{MinLon: a[0], MinLat: a[1], MaxLon: a[2], MaxLat: a[3]}
}

// Expand grows the box outward by dLon and dLat on every side.
func (b BoundingBox) Expand(dLon, dLat float64) BoundingBox {
	return BoundingBox{
		MinLon: b.MinLon - dLon,
		MinLat: b.MinLat - dLat,
		MaxLon: b.MaxLon + dLon,
		MaxLat: b.MaxLat + dLat,
	}
}

// Region is a named lat/lon grid extent with a categorical mask.
// Masked cells are outside the region; unmasked cells hold data or the
// category id of the sub-region the cell belongs to.
//
// A Region is read-only after construction. Accessors return copies.
type Region struct {
	name       string
	regionType string
	level      int

	cellSize float64
	missing  float64
	bbox     BoundingBox

	lats        []float64
	lons        []float64
	orientation Orientation

	mask      MaskedGrid
	unmasked  int
	subRegion map[string]int
}

type regionOptions struct {
	name      string
	kind      string
	ascending bool
	table     map[string]int
}

// RegionOption configures NewRegion.
type RegionOption func(*regionOptions)

// WithName sets the region name. The default is "NONE".
func WithName(name string) RegionOption {
	return func(o *regionOptions) { o.name = name }
}

// WithType sets the regionalisation scheme, e.g. "Continent" or "State".
func WithType(kind string) RegionOption {
	return func(o *regionOptions) { o.kind = kind }
}

// WithAscendingLatitudes declares that mask row 0 is the southernmost row.
func WithAscendingLatitudes() RegionOption {
	return func(o *regionOptions) { o.ascending = true }
}

// WithSubRegionTable attaches a sub-region lookup table (name -> category id).
func WithSubRegionTable(table map[string]int) RegionOption {
	return func(o *regionOptions) {
		o.table = make(map[string]int, len(table))
		for k, v := range table {
			o.table[k] = v
		}
	}
}

// NewRegion builds a top-level Region from a header and a decoded category mask
// whose shape must be exactly (h.NRows, h.NCols).
func NewRegion(h GridHeader, values [][]float64, opts ...RegionOption) (*Region, error) {
	o := regionOptions{name: "NONE", kind: "NONE"}
	for _, opt := range opts {
		opt(&o)
	}
	if err := h.Validate(); err != nil {
		return nil, fmt.Errorf("region %s: %w", o.name, err)
	}
	if err := checkShape(values, h.NRows, h.NCols); err != nil {
		return nil, fmt.Errorf("region %s: %w", o.name, err)
	}
	if o.table != nil {
		if err := ValidateLookupTable(o.table); err != nil {
			return nil, fmt.Errorf("region %s: %w", o.name, err)
		}
	}

	copied := make([][]float64, len(values))
	for i, row := range values {
		copied[i] = append([]float64(nil), row...)
	}
	mask := NewMaskedGrid(copied, h.NoDataValue)

	lats := CellCenterLatitudes(h, !o.ascending)
	orientation := Ascending
	if lats[len(lats)-1] < lats[0] {
		orientation = Descending
	} else if len(lats) == 1 && !o.ascending {
		orientation = Descending
	}

	return &Region{
		name:       o.name,
		regionType: o.kind,
		cellSize:   h.CellSize,
		missing:    h.NoDataValue,
		bbox: BoundingBox{
			MinLon: h.XLLCorner,
			MinLat: h.YLLCorner,
			MaxLon: float64(h.NCols)*h.CellSize + h.XLLCorner,
			MaxLat: float64(h.NRows)*h.CellSize + h.YLLCorner,
		},
		lats:        lats,
		lons:        CellCenterLongitudes(h),
		orientation: orientation,
		mask:        mask,
		unmasked:    mask.Count(),
		subRegion:   o.table,
	}, nil
}

// ValidateLookupTable rejects tables that map two names to the same id.
func ValidateLookupTable(table map[string]int) error {
	seen := make(map[int]string, len(table))
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		id := table[name]
		if prev, ok := seen[id]; ok {
			return fmt.Errorf("%w: id %d used by %q and %q", ErrDuplicateCategory, id, prev, name)
		}
		seen[id] = name
	}
	return nil
}

// Name returns the region name.
func (r *Region) Name() string { return r.name }

// Type returns the regionalisation scheme name.
func (r *Region) Type() string { return r.regionType }

// IsSubRegion reports whether the region was derived from a parent.
func (r *Region) IsSubRegion() bool { return r.level > 0 }

// BoundingBox returns the region extent at cell edges.
func (r *Region) BoundingBox() BoundingBox { return r.bbox }

// CellSize returns the grid spacing in degrees.
func (r *Region) CellSize() float64 { return r.cellSize }

// MissingValue returns the missing-value sentinel.
func (r *Region) MissingValue() float64 { return r.missing }

// Orientation returns the latitude storage order.
func (r *Region) Orientation() Orientation { return r.orientation }

// Shape returns the number of rows (latitudes) and columns (longitudes).
func (r *Region) Shape() (rows, cols int) { return len(r.lats), len(r.lons) }

// Lats returns a copy of the cell-center latitudes.
func (r *Region) Lats() []float64 { return append([]float64(nil), r.lats...) }

// Lons returns a copy of the cell-center longitudes.
func (r *Region) Lons() []float64 { return append([]float64(nil), r.lons...) }

// Axes bundles the cell-center coordinates of a region.
type Axes struct {
	Lats        []float64   `json:"lats"`
	Lons        []float64   `json:"lons"`
	Orientation Orientation `json:"-"`
}

// Axes returns copies of both coordinate axes and the latitude orientation.
func (r *Region) Axes() Axes {
	return Axes{Lats: r.Lats(), Lons: r.Lons(), Orientation: r.orientation}
}

// GridHeader returns a header describing the region's own grid, with the
// lower-left corner at the outer edge of its first longitude and its
// southernmost latitude.
func (r *Region) GridHeader() GridHeader {
	south := r.lats[0]
	if r.orientation == Descending {
		south = r.lats[len(r.lats)-1]
	}
	half := 0.5 * r.cellSize
	return GridHeader{
		NCols:       len(r.lons),
		NRows:       len(r.lats),
		XLLCorner:   r.lons[0] - half,
		YLLCorner:   south - half,
		CellSize:    r.cellSize,
		NoDataValue: r.missing,
	}
}

// Mask returns a copy of the categorical mask.
func (r *Region) Mask() MaskedGrid { return r.mask.Clone() }

// NumUnmasked returns the number of unmasked cells.
func (r *Region) NumUnmasked() int { return r.unmasked }

// HasSubRegionTable reports whether a lookup table was attached.
func (r *Region) HasSubRegionTable() bool { return r.subRegion != nil }

// SubRegionNames returns the table names ordered by category id.
func (r *Region) SubRegionNames() ([]string, error) {
	if r.subRegion == nil {
		return nil, fmt.Errorf("region %s: sub-region table not set: %w", r.name, ErrConfiguration)
	}
	names := make([]string, 0, len(r.subRegion))
	for name := range r.subRegion {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return r.subRegion[names[i]] < r.subRegion[names[j]]
	})
	return names, nil
}

// SubRegionIDs returns the table ids in ascending order.
func (r *Region) SubRegionIDs() ([]int, error) {
	if r.subRegion == nil {
		return nil, fmt.Errorf("region %s: sub-region table not set: %w", r.name, ErrConfiguration)
	}
	ids := make([]int, 0, len(r.subRegion))
	for _, id := range r.subRegion {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids, nil
}

// SubRegionName returns the table name for a category id.
func (r *Region) SubRegionName(id int) (string, error) {
	if r.subRegion == nil {
		return "", fmt.Errorf("region %s: sub-region table not set: %w", r.name, ErrConfiguration)
	}
	for name, v := range r.subRegion {
		if v == id {
			return name, nil
		}
	}
	return "", fmt.Errorf("region %s: no sub-region with id %d: %w", r.name, id, ErrCategoryNotFound)
}

// Summary returns a human-readable description of the region.
func (r *Region) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s :: Region type: %s\n", r.name, r.regionType)
	fmt.Fprintf(&b, "%s :: Domain bounding box: %v\n", r.name, r.bbox.Array())
	fmt.Fprintf(&b, "%s :: Domain dimensions (nLats,nLons): (%d,%d)\n", r.name, len(r.lats), len(r.lons))
	fmt.Fprintf(&b, "%s :: Grid cell size (degrees): %v\n", r.name, r.cellSize)
	fmt.Fprintf(&b, "%s :: Latitude grid values (%s): %s\n", r.name, r.orientation, axisSummary(r.lats))
	fmt.Fprintf(&b, "%s :: Longitude grid values: %s\n", r.name, axisSummary(r.lons))
	fmt.Fprintf(&b, "%s :: Number of unmasked grid points: %d\n", r.name, r.unmasked)
	return b.String()
}

// LogSummary writes Summary to log, one entry per line.
func (r *Region) LogSummary(log logrus.FieldLogger) {
	entry := log.WithFields(logrus.Fields{"region": r.name, "type": r.regionType})
	for _, line := range strings.Split(strings.TrimRight(r.Summary(), "\n"), "\n") {
		_, msg, _ := strings.Cut(line, " :: ")
		entry.Info(msg)
	}
}

func axisSummary(v []float64) string {
	if len(v) <= 4 {
		return fmt.Sprint(v)
	}
	return fmt.Sprintf("[%v %v ... %v %v]", v[0], v[1], v[len(v)-2], v[len(v)-1])
}
