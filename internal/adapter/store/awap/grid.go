package awap

import (
	"encoding/binary"
	"fmt"
	"math"
	"os"
	"path/filepath"

	"go.ngs.io/awap/internal/domain"
)

func byteOrder(h domain.GridHeader) (binary.ByteOrder, error) {
	switch h.ByteOrder {
	case "", LSBFirst:
		return binary.LittleEndian, nil
	case MSBFirst:
		return binary.BigEndian, nil
	}
	return nil, fmt.Errorf("%w: byteorder %q", domain.ErrInvalidHeader, h.ByteOrder)
}

// ReadGrid reads the row-major float32 grid described by h. When path is
// empty the header's stem plus ".flt" is used. Rows run north to south.
func ReadGrid(h domain.GridHeader, path string) (domain.MaskedGrid, error) {
	if path == "" {
		path = h.FileStem + FloatExt
	}
	order, err := byteOrder(h)
	if err != nil {
		return domain.MaskedGrid{}, err
	}

	//nolint:gosec // G304: grid paths come from headers found by the catalog.
	raw, err := os.ReadFile(path)
	if err != nil {
		return domain.MaskedGrid{}, fmt.Errorf("failed to read grid %s: %w", path, err)
	}
	if len(raw) != 4*h.Size() {
		return domain.MaskedGrid{}, fmt.Errorf("grid %s: %w: %d bytes for a %dx%d float32 grid",
			path, domain.ErrShapeMismatch, len(raw), h.NRows, h.NCols)
	}

	values := make([][]float64, h.NRows)
	for i := range values {
		row := make([]float64, h.NCols)
		for j := range row {
			off := 4 * (i*h.NCols + j)
			row[j] = float64(math.Float32frombits(order.Uint32(raw[off : off+4])))
		}
		values[i] = row
	}
	return domain.NewMaskedGrid(values, h.NoDataValue), nil
}

// WriteGrid writes values as a row-major float32 grid. Masked cells, if a
// mask is given, are written as the header's nodata value.
func WriteGrid(h domain.GridHeader, path string, g domain.MaskedGrid) error {
	if path == "" {
		path = h.FileStem + FloatExt
	}
	if g.Rows() != h.NRows || g.Cols() != h.NCols {
		return fmt.Errorf("grid %s: %w: values are %dx%d, header is %dx%d",
			path, domain.ErrShapeMismatch, g.Rows(), g.Cols(), h.NRows, h.NCols)
	}
	order, err := byteOrder(h)
	if err != nil {
		return err
	}

	buf := make([]byte, 4*h.Size())
	for i, row := range g.Values {
		for j, v := range row {
			if g.Masked != nil && g.Masked[i][j] {
				v = h.NoDataValue
			}
			order.PutUint32(buf[4*(i*h.NCols+j):], math.Float32bits(float32(v)))
		}
	}
	//nolint:gosec // G306: output grids are meant to be world-readable.
	if err := os.WriteFile(path, buf, 0o644); err != nil {
		return fmt.Errorf("failed to write grid %s: %w", path, err)
	}
	return nil
}

// ReadField reads a header and its grid from a file stem.
func ReadField(stem string) (domain.GridHeader, domain.MaskedGrid, error) {
	h, err := ReadHeader(stem)
	if err != nil {
		return domain.GridHeader{}, domain.MaskedGrid{}, err
	}
	g, err := ReadGrid(h, "")
	if err != nil {
		return domain.GridHeader{}, domain.MaskedGrid{}, err
	}
	return h, g, nil
}

// WriteField writes a header and grid pair under stem.
func WriteField(stem string, h domain.GridHeader, g domain.MaskedGrid) error {
	if err := os.MkdirAll(filepath.Dir(stem), 0o755); err != nil {
		return fmt.Errorf("failed to create directory for %s: %w", stem, err)
	}
	h.FileStem = stem
	if err := WriteHeader(stem, h); err != nil {
		return err
	}
	return WriteGrid(h, stem+FloatExt, g)
}

// LoadRegion reads a category mask from stem.hdr/stem.flt and, when
// stem.csv exists, attaches it as the sub-region lookup table.
func LoadRegion(stem string, opts ...domain.RegionOption) (*domain.Region, error) {
	h, g, err := ReadField(stem)
	if err != nil {
		return nil, err
	}
	lutPath := stem + LUTExt
	if _, statErr := os.Stat(lutPath); statErr == nil {
		table, err := ReadLookupTable(lutPath)
		if err != nil {
			return nil, err
		}
		opts = append([]domain.RegionOption{domain.WithSubRegionTable(table)}, opts...)
	}
	r, err := domain.NewRegion(h, g.Values, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to build region from %s: %w", stem, err)
	}
	return r, nil
}

// WriteSubRegion exports a sub-region mask as a north-up .hdr/.flt pair
// under stem. Cells outside the sub-region are written as nodata.
func WriteSubRegion(stem string, sr *domain.SubRegion, order string) error {
	h := sr.Region.GridHeader()
	h.ByteOrder = order
	g := sr.Region.Mask()
	if sr.Region.Orientation() == domain.Ascending {
		for i, j := 0, len(g.Values)-1; i < j; i, j = i+1, j-1 {
			g.Values[i], g.Values[j] = g.Values[j], g.Values[i]
			g.Masked[i], g.Masked[j] = g.Masked[j], g.Masked[i]
		}
	}
	return WriteField(stem, h, g)
}
