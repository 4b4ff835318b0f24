package usecase

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"go.ngs.io/awap/internal/domain"
)

// RegionService resolves sub-regions of one top-level region by name or
// category id. Sub-regions are derived on first use and cached.
type RegionService struct {
	parent *domain.Region
	kind   string
	boxes  map[string]domain.BoundingBox
	log    logrus.FieldLogger

	byName map[string]int
	names  []string

	mu    sync.Mutex
	cache map[int]*domain.SubRegion
}

// NewRegionService wraps parent, which must carry a sub-region table.
// kind is the type recorded on derived sub-regions; boxes optionally gives
// explicit bounding boxes keyed by sub-region name.
func NewRegionService(parent *domain.Region, kind string, boxes map[string]domain.BoundingBox, log logrus.FieldLogger) (*RegionService, error) {
	names, err := parent.SubRegionNames()
	if err != nil {
		return nil, err
	}
	ids, err := parent.SubRegionIDs()
	if err != nil {
		return nil, err
	}
	byName := make(map[string]int, len(names))
	for i, name := range names {
		byName[name] = ids[i]
	}
	return &RegionService{
		parent: parent,
		kind:   kind,
		boxes:  boxes,
		log:    log,
		byName: byName,
		names:  names,
		cache:  make(map[int]*domain.SubRegion),
	}, nil
}

// Parent returns the top-level region.
func (s *RegionService) Parent() *domain.Region { return s.parent }

// Names returns the sub-region names ordered by category id.
func (s *RegionService) Names() []string { return append([]string(nil), s.names...) }

// Resolve maps a sub-region name or decimal category id to an id.
func (s *RegionService) Resolve(key string) (int, error) {
	if id, ok := s.byName[key]; ok {
		return id, nil
	}
	if id, err := strconv.Atoi(key); err == nil {
		if _, err := s.parent.SubRegionName(id); err != nil {
			return 0, err
		}
		return id, nil
	}
	return 0, fmt.Errorf("region %s: no sub-region named %q: %w", s.parent.Name(), key, domain.ErrCategoryNotFound)
}

// SubRegion returns the sub-region identified by name or id.
func (s *RegionService) SubRegion(key string) (*domain.SubRegion, error) {
	id, err := s.Resolve(key)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sr, ok := s.cache[id]; ok {
		return sr, nil
	}
	subs, err := domain.NewSubRegionsFromTable(s.parent, []int{id}, s.kind, s.boxes)
	if err != nil {
		return nil, err
	}
	sr := subs[0]
	s.log.WithFields(logrus.Fields{
		"region": sr.Region.Name(),
		"id":     id,
		"window": sr.Window.Tuple(),
	}).Debug("derived sub-region")
	s.cache[id] = sr
	return sr, nil
}

// SubRegions returns the named sub-regions, or all of them when keys is
// empty. When listing all of them, categories absent from the mask are
// logged and skipped.
func (s *RegionService) SubRegions(keys []string) ([]*domain.SubRegion, error) {
	all := len(keys) == 0
	if all {
		keys = s.names
	}
	out := make([]*domain.SubRegion, 0, len(keys))
	for _, key := range keys {
		sr, err := s.SubRegion(key)
		if err != nil {
			if all {
				s.log.WithError(err).WithField("region", key).Warn("skipping sub-region")
				continue
			}
			return nil, err
		}
		out = append(out, sr)
	}
	return out, nil
}
