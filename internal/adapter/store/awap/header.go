// Package awap reads and writes AWAP/BIOS2 header (.hdr), float (.flt) and
// lookup-table (.csv) files, and catalogs directories of them by the
// AWAP/BIOS2 file naming convention.
package awap

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"go.ngs.io/awap/internal/domain"
)

// File name extensions.
const (
	HeaderExt = ".hdr"
	FloatExt  = ".flt"
	LUTExt    = ".csv"
)

// Byte orders accepted in the byteorder header field.
const (
	LSBFirst = "LSBFIRST"
	MSBFirst = "MSBFIRST"
)

var headerKeys = []string{"ncols", "nrows", "xllcorner", "yllcorner", "cellsize", "nodata_value", "byteorder"}

// ReadHeader parses an AWAP/BIOS2 header file. path may name the .hdr file
// or its stem.
func ReadHeader(path string) (domain.GridHeader, error) {
	if !strings.HasSuffix(path, HeaderExt) {
		path += HeaderExt
	}
	//nolint:gosec // G304: header paths come from the catalog or configuration.
	f, err := os.Open(path)
	if err != nil {
		return domain.GridHeader{}, fmt.Errorf("failed to open header %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	h := domain.GridHeader{
		ByteOrder: LSBFirst,
		FileStem:  strings.TrimSuffix(path, HeaderExt),
	}
	seen := make(map[string]bool, len(headerKeys))

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		words := strings.Fields(scanner.Text())
		for i, w := range words {
			key := strings.ToLower(w)
			if !isHeaderKey(key) || i+1 >= len(words) {
				continue
			}
			if err := setHeaderField(&h, key, words[i+1]); err != nil {
				return domain.GridHeader{}, fmt.Errorf("header %s: %w", path, err)
			}
			seen[key] = true
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return domain.GridHeader{}, fmt.Errorf("failed to read header %s: %w", path, err)
	}

	for _, key := range headerKeys[:6] {
		if !seen[key] {
			return domain.GridHeader{}, fmt.Errorf("header %s: %w: missing %s", path, domain.ErrInvalidHeader, key)
		}
	}
	if err := h.Validate(); err != nil {
		return domain.GridHeader{}, fmt.Errorf("header %s: %w", path, err)
	}
	return h, nil
}

func isHeaderKey(key string) bool {
	for _, k := range headerKeys {
		if k == key {
			return true
		}
	}
	return false
}

func setHeaderField(h *domain.GridHeader, key, raw string) error {
	switch key {
	case "ncols", "nrows":
		n, err := parseCount(raw)
		if err != nil {
			return fmt.Errorf("%w: %s %q", domain.ErrInvalidHeader, key, raw)
		}
		if key == "ncols" {
			h.NCols = n
		} else {
			h.NRows = n
		}
	case "byteorder":
		order := strings.ToUpper(raw)
		if order != LSBFirst && order != MSBFirst {
			return fmt.Errorf("%w: byteorder %q", domain.ErrInvalidHeader, raw)
		}
		h.ByteOrder = order
	default:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return fmt.Errorf("%w: %s %q", domain.ErrInvalidHeader, key, raw)
		}
		switch key {
		case "xllcorner":
			h.XLLCorner = v
		case "yllcorner":
			h.YLLCorner = v
		case "cellsize":
			h.CellSize = v
		case "nodata_value":
			h.NoDataValue = v
		}
	}
	return nil
}

// parseCount accepts "886" as well as "886.0".
func parseCount(raw string) (int, error) {
	if n, err := strconv.Atoi(raw); err == nil {
		return n, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil || v != float64(int(v)) {
		return 0, fmt.Errorf("not an integer: %q", raw)
	}
	return int(v), nil
}

// WriteHeader writes h in .hdr format. The nodata value is written as an
// integer, as AWAP tools expect.
func WriteHeader(path string, h domain.GridHeader) error {
	if !strings.HasSuffix(path, HeaderExt) {
		path += HeaderExt
	}
	order := h.ByteOrder
	if order == "" {
		order = LSBFirst
	}
	var b strings.Builder
	fmt.Fprintf(&b, " ncols %d\n", h.NCols)
	fmt.Fprintf(&b, " nrows %d\n", h.NRows)
	fmt.Fprintf(&b, " xllcorner %s\n", strconv.FormatFloat(h.XLLCorner, 'g', -1, 64))
	fmt.Fprintf(&b, " yllcorner %s\n", strconv.FormatFloat(h.YLLCorner, 'g', -1, 64))
	fmt.Fprintf(&b, " cellsize %s\n", strconv.FormatFloat(h.CellSize, 'g', -1, 64))
	fmt.Fprintf(&b, " nodata_value %d\n", int(h.NoDataValue))
	fmt.Fprintf(&b, " byteorder %s\n", order)

	//nolint:gosec // G306: output headers are meant to be world-readable.
	if err := os.WriteFile(path, []byte(b.String()), 0o644); err != nil {
		return fmt.Errorf("failed to write header %s: %w", path, err)
	}
	return nil
}
