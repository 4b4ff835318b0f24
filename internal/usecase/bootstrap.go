package usecase

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"go.ngs.io/awap/internal/adapter/store/awap"
	"go.ngs.io/awap/internal/adapter/store/netcdf"
	"go.ngs.io/awap/internal/config"
	"go.ngs.io/awap/internal/domain"
)

// MaskSource locates the top-level region mask and its sub-region table.
type MaskSource struct {
	Path     string // AWAP stem (or .hdr/.flt path) or a .nc file.
	Variable string // NetCDF variable holding category ids.
	Name     string // Region name.
	Defs     string // Region definition TOML; empty for the built-in table.
}

// OpenRegionService loads the mask described by src and wraps it in a
// RegionService. An AWAP mask with a sibling .csv lookup table uses that
// table; otherwise the region definition table supplies names, ids and
// explicit bounding boxes.
func OpenRegionService(src MaskSource, log logrus.FieldLogger) (*RegionService, error) {
	defs, err := config.LoadRegionDefs(src.Defs)
	if err != nil {
		return nil, err
	}
	kind := defs.Type
	if kind == "" {
		kind = "SubRegion"
	}

	opts := []domain.RegionOption{domain.WithName(src.Name), domain.WithType("Region")}
	boxes := defs.Boxes()
	var parent *domain.Region
	if strings.EqualFold(filepath.Ext(src.Path), ".nc") {
		m, err := netcdf.ReadMask(src.Path, src.Variable)
		if err != nil {
			return nil, err
		}
		parent, err = m.Region(append(opts, domain.WithSubRegionTable(defs.Table()))...)
		if err != nil {
			return nil, err
		}
	} else {
		stem := strings.TrimSuffix(strings.TrimSuffix(src.Path, awap.HeaderExt), awap.FloatExt)
		if _, err := os.Stat(stem + awap.LUTExt); err == nil {
			// The mask's own table wins; the definition boxes name other categories.
			boxes = nil
		} else {
			opts = append(opts, domain.WithSubRegionTable(defs.Table()))
		}
		parent, err = awap.LoadRegion(stem, opts...)
		if err != nil {
			return nil, err
		}
	}
	parent.LogSummary(log)

	svc, err := NewRegionService(parent, kind, boxes, log)
	if err != nil {
		return nil, fmt.Errorf("failed to open region %s: %w", src.Name, err)
	}
	return svc, nil
}
