package awap

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strconv"
	"strings"

	"go.ngs.io/awap/internal/domain"
)

// ReadLookupTable reads a sub-region lookup table: "id,name" rows, with
// lines starting with '!' treated as comments. It returns name -> id and
// rejects repeated ids or names.
func ReadLookupTable(path string) (map[string]int, error) {
	//nolint:gosec // G304: lookup tables sit next to the mask they describe.
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open lookup table %s: %w", path, err)
	}
	defer func() { _ = file.Close() }()

	reader := csv.NewReader(file)
	reader.Comment = '!'
	reader.TrimLeadingSpace = true
	reader.FieldsPerRecord = -1

	table := make(map[string]int)
	byID := make(map[int]string)
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read lookup table %s: %w", path, err)
		}
		if len(record) < 2 {
			return nil, fmt.Errorf("lookup table %s: expected id,name, got %v", path, record)
		}

		id, err := strconv.Atoi(strings.TrimSpace(record[0]))
		if err != nil {
			return nil, fmt.Errorf("lookup table %s: invalid id %q: %w", path, record[0], err)
		}
		name := strings.TrimSpace(record[1])
		if prev, ok := byID[id]; ok {
			return nil, fmt.Errorf("lookup table %s: %w: id %d used by %q and %q",
				path, domain.ErrDuplicateCategory, id, prev, name)
		}
		if _, ok := table[name]; ok {
			return nil, fmt.Errorf("lookup table %s: %w: name %q repeated", path, domain.ErrDuplicateCategory, name)
		}
		table[name] = id
		byID[id] = name
	}

	if len(table) == 0 {
		return nil, fmt.Errorf("lookup table %s has no entries", path)
	}
	return table, nil
}

// WriteLookupTable writes table as "id,name" rows ordered by id.
func WriteLookupTable(path string, table map[string]int) error {
	names := make([]string, 0, len(table))
	for name := range table {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return table[names[i]] < table[names[j]] })

	//nolint:gosec // G304: output path comes from configuration.
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create lookup table %s: %w", path, err)
	}
	w := csv.NewWriter(file)
	for _, name := range names {
		if err := w.Write([]string{strconv.Itoa(table[name]), name}); err != nil {
			_ = file.Close()
			return fmt.Errorf("failed to write lookup table %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = file.Close()
		return fmt.Errorf("failed to write lookup table %s: %w", path, err)
	}
	return file.Close()
}
