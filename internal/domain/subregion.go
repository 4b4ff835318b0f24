package domain

import (
	"fmt"
	"math"
)

// ParentRef identifies the region a sub-region was derived from.
// It is a value, not a handle: the parent must outlive its sub-regions
// by construction order.
type ParentRef struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// IndexWindow selects rows [RowStart, RowStop) and columns [ColStart, ColStop)
// of a parent grid.
type IndexWindow struct {
	RowStart int `json:"row_start"`
	RowStop  int `json:"row_stop"`
	ColStart int `json:"col_start"`
	ColStop  int `json:"col_stop"`
}

// Rows returns the number of selected rows.
func (w IndexWindow) Rows() int { return w.RowStop - w.RowStart }

// Cols returns the number of selected columns.
func (w IndexWindow) Cols() int { return w.ColStop - w.ColStart }

// Tuple returns (rowStart, rowStop, colStart, colStop).
func (w IndexWindow) Tuple() [4]int {
	return [4]int{w.RowStart, w.RowStop, w.ColStart, w.ColStop}
}

func (w IndexWindow) within(nrows, ncols int) error {
	if w.RowStart < 0 || w.ColStart < 0 || w.RowStop > nrows || w.ColStop > ncols || w.Rows() <= 0 || w.Cols() <= 0 {
		return fmt.Errorf("%w: window %v outside %dx%d grid", ErrShapeMismatch, w.Tuple(), nrows, ncols)
	}
	return nil
}

// Header returns the layout of the window cut from a grid laid out by h,
// whose rows run north to south.
func (w IndexWindow) Header(h GridHeader) (GridHeader, error) {
	if err := w.within(h.NRows, h.NCols); err != nil {
		return GridHeader{}, err
	}
	out := h
	out.NRows, out.NCols = w.Rows(), w.Cols()
	out.XLLCorner = h.XLLCorner + float64(w.ColStart)*h.CellSize
	out.YLLCorner = h.YLLCorner + float64(h.NRows-w.RowStop)*h.CellSize
	out.FileStem = ""
	return out, nil
}

// Crop copies the window out of a parent-shaped array of nrows x ncols.
func (w IndexWindow) Crop(values [][]float64, nrows, ncols int) ([][]float64, error) {
	if err := checkShape(values, nrows, ncols); err != nil {
		return nil, err
	}
	if err := w.within(nrows, ncols); err != nil {
		return nil, err
	}
	out := make([][]float64, 0, w.Rows())
	for i := w.RowStart; i < w.RowStop; i++ {
		out = append(out, append([]float64(nil), values[i][w.ColStart:w.ColStop]...))
	}
	return out, nil
}

// CropMasked copies the window out of a parent-shaped masked grid.
func (w IndexWindow) CropMasked(g MaskedGrid, nrows, ncols int) (MaskedGrid, error) {
	values, err := w.Crop(g.Values, nrows, ncols)
	if err != nil {
		return MaskedGrid{}, err
	}
	if len(g.Masked) != nrows {
		return MaskedGrid{}, fmt.Errorf("%w: mask has %d rows, expected %d", ErrShapeMismatch, len(g.Masked), nrows)
	}
	masked := make([][]bool, 0, w.Rows())
	for i := w.RowStart; i < w.RowStop; i++ {
		if len(g.Masked[i]) != ncols {
			return MaskedGrid{}, fmt.Errorf("%w: mask row %d has %d values, expected %d", ErrShapeMismatch, i, len(g.Masked[i]), ncols)
		}
		masked = append(masked, append([]bool(nil), g.Masked[i][w.ColStart:w.ColStop]...))
	}
	return MaskedGrid{Values: values, Masked: masked}, nil
}

// SubRegion is a Region carved out of a parent by category id, plus the
// metadata needed to re-crop other parent-shaped arrays.
type SubRegion struct {
	Region     *Region
	Parent     ParentRef
	CategoryID int
	Window     IndexWindow
}

// NewSubRegion derives the sub-region of parent whose mask cells equal
// categoryID. When bbox is nil the bounding box is derived from the mask;
// otherwise bbox is padded by one cell (plus Epsilon) on every side.
// Only top-level regions can be parents.
func NewSubRegion(parent *Region, categoryID int, bbox *BoundingBox, opts ...RegionOption) (*SubRegion, error) {
	o := regionOptions{name: "NONE", kind: "NONE"}
	for _, opt := range opts {
		opt(&o)
	}
	if parent == nil {
		return nil, fmt.Errorf("sub-region %s: nil parent region: %w", o.name, ErrConfiguration)
	}
	if parent.level > 0 {
		return nil, fmt.Errorf("sub-region %s of %s: %w", o.name, parent.name, ErrNestingUnsupported)
	}

	var box BoundingBox
	if bbox != nil {
		box = bbox.Expand(parent.cellSize+Epsilon, parent.cellSize+Epsilon)
	} else {
		derived, err := categoryEnvelope(parent, categoryID)
		if err != nil {
			return nil, fmt.Errorf("sub-region %s (category %d) of %s: %w", o.name, categoryID, parent.name, err)
		}
		box = derived
	}

	window, err := parentWindow(parent, box)
	if err != nil {
		return nil, fmt.Errorf("sub-region %s (category %d) of %s: %w", o.name, categoryID, parent.name, err)
	}

	lats := append([]float64(nil), parent.lats[window.RowStart:window.RowStop]...)
	lons := append([]float64(nil), parent.lons[window.ColStart:window.ColStop]...)

	// The rectangle may contain cells of neighbouring categories; those are
	// masked, not just cropped away.
	target := float64(categoryID)
	values := make([][]float64, 0, window.Rows())
	masked := make([][]bool, 0, window.Rows())
	for i := window.RowStart; i < window.RowStop; i++ {
		vrow := append([]float64(nil), parent.mask.Values[i][window.ColStart:window.ColStop]...)
		mrow := make([]bool, len(vrow))
		for j, v := range vrow {
			mrow[j] = v != target
		}
		values = append(values, vrow)
		masked = append(masked, mrow)
	}
	mask := MaskedGrid{Values: values, Masked: masked}

	child := &Region{
		name:        o.name,
		regionType:  o.kind,
		level:       parent.level + 1,
		cellSize:    parent.cellSize,
		missing:     parent.missing,
		bbox:        box,
		lats:        lats,
		lons:        lons,
		orientation: parent.orientation,
		mask:        mask,
		unmasked:    mask.Count(),
	}

	return &SubRegion{
		Region:     child,
		Parent:     ParentRef{Name: parent.name, Type: parent.regionType},
		CategoryID: categoryID,
		Window:     window,
	}, nil
}

// categoryEnvelope returns the cell-edge envelope of all unmasked parent
// cells equal to id.
func categoryEnvelope(parent *Region, id int) (BoundingBox, error) {
	target := float64(id)
	minRow, maxRow := math.MaxInt, -1
	minCol, maxCol := math.MaxInt, -1
	for i, row := range parent.mask.Values {
		for j, v := range row {
			if parent.mask.Masked[i][j] || v != target {
				continue
			}
			minRow = min(minRow, i)
			maxRow = max(maxRow, i)
			minCol = min(minCol, j)
			maxCol = max(maxCol, j)
		}
	}
	if maxRow < 0 {
		return BoundingBox{}, ErrCategoryNotFound
	}

	half := 0.5 * parent.cellSize
	// On a descending axis the southernmost matching row has the largest index.
	minLatRow, maxLatRow := minRow, maxRow
	if parent.orientation == Descending {
		minLatRow, maxLatRow = maxRow, minRow
	}
	return BoundingBox{
		MinLon: parent.lons[minCol] - half,
		MinLat: parent.lats[minLatRow] - half,
		MaxLon: parent.lons[maxCol] + half,
		MaxLat: parent.lats[maxLatRow] + half,
	}, nil
}

// parentWindow returns the minimal index window of parent whose cell
// centers lie inside box.
func parentWindow(parent *Region, box BoundingBox) (IndexWindow, error) {
	var w IndexWindow
	lats := parent.lats

	if parent.orientation == Descending {
		first := firstIndex(lats, func(v float64) bool { return v <= box.MaxLat })
		last := lastIndex(lats, func(v float64) bool { return v >= box.MinLat })
		w.RowStart, w.RowStop = first, last+1
	} else {
		first := firstIndex(lats, func(v float64) bool { return v >= box.MinLat })
		last := lastIndex(lats, func(v float64) bool { return v <= box.MaxLat })
		w.RowStart, w.RowStop = first, last+1
	}

	w.ColStart = firstIndex(parent.lons, func(v float64) bool { return v >= box.MinLon })
	w.ColStop = lastIndex(parent.lons, func(v float64) bool { return v <= box.MaxLon }) + 1

	if w.RowStart < 0 || w.ColStart < 0 || w.Rows() <= 0 || w.Cols() <= 0 {
		return IndexWindow{}, fmt.Errorf("%w: box %v", ErrEmptyWindow, box.Array())
	}
	return w, nil
}

func firstIndex(v []float64, ok func(float64) bool) int {
	for i, x := range v {
		if ok(x) {
			return i
		}
	}
	return -1
}

func lastIndex(v []float64, ok func(float64) bool) int {
	for i := len(v) - 1; i >= 0; i-- {
		if ok(v[i]) {
			return i
		}
	}
	return -1
}

// NewSubRegionsFromTable builds one sub-region per id using the parent's
// lookup table for names. A nil ids slice selects every id in the table.
// boxes optionally supplies explicit bounding boxes keyed by name.
func NewSubRegionsFromTable(parent *Region, ids []int, kind string, boxes map[string]BoundingBox) ([]*SubRegion, error) {
	if ids == nil {
		all, err := parent.SubRegionIDs()
		if err != nil {
			return nil, err
		}
		ids = all
	}
	subs := make([]*SubRegion, 0, len(ids))
	for _, id := range ids {
		name, err := parent.SubRegionName(id)
		if err != nil {
			return nil, err
		}
		var box *BoundingBox
		if b, ok := boxes[name]; ok {
			box = &b
		}
		sr, err := NewSubRegion(parent, id, box, WithName(name), WithType(kind))
		if err != nil {
			return nil, err
		}
		subs = append(subs, sr)
	}
	return subs, nil
}

// Summary returns a human-readable description including parent metadata.
func (s *SubRegion) Summary() string {
	return fmt.Sprintf("%s :: Parent region: %s (%s)\n%s :: Category id on parent mask: %d\n%s :: Parent index window: %v\n%s",
		s.Region.name, s.Parent.Name, s.Parent.Type,
		s.Region.name, s.CategoryID,
		s.Region.name, s.Window.Tuple(),
		s.Region.Summary())
}
