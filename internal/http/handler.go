package http

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"go.ngs.io/awap/internal/adapter/store/awap"
	"go.ngs.io/awap/internal/adapter/store/sqlite"
	"go.ngs.io/awap/internal/domain"
	"go.ngs.io/awap/internal/stats"
	"go.ngs.io/awap/internal/usecase"
)

const (
	// maxWorkers bounds the goroutines one divergence request may use.
	maxWorkers = 8
	// maxBodyBytes bounds the size of a divergence request body.
	maxBodyBytes = 32 << 20
	// maxSampleValues bounds locations x time steps of posted samples.
	maxSampleValues = 1 << 22
	// maxWindows bounds the windows of one divergence request; the KL
	// matrix grows with its square.
	maxWindows = 2048
	// maxDensityCells bounds windows x bins of one divergence request.
	maxDensityCells = 1 << 24
)

// Handler handles HTTP requests for region geometry and density analysis.
type Handler struct {
	regions  *usecase.RegionService
	analysis *usecase.AnalysisUseCase
}

// NewHandler creates a new HTTP handler. analysis may be nil when no data
// root is configured; the time-series endpoint then answers 503.
func NewHandler(regions *usecase.RegionService, analysis *usecase.AnalysisUseCase) *Handler {
	return &Handler{
		regions:  regions,
		analysis: analysis,
	}
}

// SubRegionRef names one entry of the sub-region table.
type SubRegionRef struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// RegionResponse describes the top-level region.
type RegionResponse struct {
	Name        string         `json:"name"`
	Type        string         `json:"type"`
	BBox        [4]float64     `json:"bbox"`
	Rows        int            `json:"rows"`
	Cols        int            `json:"cols"`
	CellSize    float64        `json:"cell_size"`
	Orientation string         `json:"orientation"`
	Unmasked    int            `json:"unmasked"`
	SubRegions  []SubRegionRef `json:"sub_regions"`
}

// SubRegionResponse describes one derived sub-region.
type SubRegionResponse struct {
	Name        string     `json:"name"`
	Type        string     `json:"type"`
	Parent      string     `json:"parent"`
	CategoryID  int        `json:"category_id"`
	BBox        [4]float64 `json:"bbox"`
	Window      [4]int     `json:"window"`
	Rows        int        `json:"rows"`
	Cols        int        `json:"cols"`
	Orientation string     `json:"orientation"`
	Unmasked    int        `json:"unmasked"`
	Lats        []float64  `json:"lats"`
	Lons        []float64  `json:"lons"`
}

// GetRegion handles GET /v1/regions.
func (h *Handler) GetRegion(c *gin.Context) {
	parent := h.regions.Parent()
	rows, cols := parent.Shape()
	resp := RegionResponse{
		Name:        parent.Name(),
		Type:        parent.Type(),
		BBox:        parent.BoundingBox().Array(),
		Rows:        rows,
		Cols:        cols,
		CellSize:    parent.CellSize(),
		Orientation: parent.Orientation().String(),
		Unmasked:    parent.NumUnmasked(),
	}
	for _, name := range h.regions.Names() {
		id, err := h.regions.Resolve(name)
		if err != nil {
			writeError(c, err)
			return
		}
		resp.SubRegions = append(resp.SubRegions, SubRegionRef{ID: id, Name: name})
	}
	c.JSON(http.StatusOK, resp)
}

// GetSubRegion handles GET /v1/regions/:id.
func (h *Handler) GetSubRegion(c *gin.Context) {
	sr, err := h.regions.SubRegion(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	rows, cols := sr.Region.Shape()
	c.JSON(http.StatusOK, SubRegionResponse{
		Name:        sr.Region.Name(),
		Type:        sr.Region.Type(),
		Parent:      sr.Parent.Name,
		CategoryID:  sr.CategoryID,
		BBox:        sr.Region.BoundingBox().Array(),
		Window:      sr.Window.Tuple(),
		Rows:        rows,
		Cols:        cols,
		Orientation: sr.Region.Orientation().String(),
		Unmasked:    sr.Region.NumUnmasked(),
		Lats:        sr.Region.Lats(),
		Lons:        sr.Region.Lons(),
	})
}

// GetSubRegionMask handles GET /v1/regions/:id/mask. Rows follow the
// sub-region's latitude order; true marks cells inside the sub-region.
func (h *Handler) GetSubRegionMask(c *gin.Context) {
	sr, err := h.regions.SubRegion(c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	mask := sr.Region.Mask()
	inside := make([][]bool, len(mask.Masked))
	for i, row := range mask.Masked {
		inside[i] = make([]bool, len(row))
		for j, m := range row {
			inside[i][j] = !m
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"name":   sr.Region.Name(),
		"window": sr.Window.Tuple(),
		"lats":   sr.Region.Lats(),
		"lons":   sr.Region.Lons(),
		"inside": inside,
	})
}

// GetTimeseries handles GET /v1/regions/:id/timeseries. The series is
// computed on every request and never written to the results store; the
// CLI and batch jobs persist results.
func (h *Handler) GetTimeseries(c *gin.Context) {
	if h.analysis == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no data root configured"})
		return
	}
	field := c.Query("field")
	if field == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "field parameter is required"})
		return
	}
	q := usecase.FieldQuery{
		Field:    field,
		Interval: c.DefaultQuery("interval", "mth"),
		Cycle:    c.Query("cycle"),
		Ranks:    c.Query("percentile_rank") == "true",
	}
	var err error
	if q.Start, err = intQuery(c, "start"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if q.End, err = intQuery(c, "end"); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	key := c.Param("id")
	if key == "all" {
		key = ""
	}
	res, err := h.analysis.Timeseries(c.Request.Context(), key, q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

// DivergenceRequest is the body of POST /v1/divergence. Samples is a
// (location x time) matrix. When Lo equals Hi the range is taken from the
// samples.
type DivergenceRequest struct {
	Samples   [][]float64 `json:"samples" binding:"required"`
	Width     int         `json:"width" binding:"required"`
	Stride    int         `json:"stride" binding:"required"`
	Bins      int         `json:"bins" binding:"required"`
	Lo        float64     `json:"lo"`
	Hi        float64     `json:"hi"`
	Policy    string      `json:"policy"`
	Smoothing float64     `json:"smoothing"`
}

// DivergenceResponse carries the windowed densities and the KL matrix.
type DivergenceResponse struct {
	*usecase.DensityResult
	Divergence [][]float64 `json:"divergence"`
}

// PostDivergence handles POST /v1/divergence.
func (h *Handler) PostDivergence(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBodyBytes)
	var req DivergenceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid request: %v", err)})
		return
	}
	if err := req.checkSize(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	policy, err := stats.ParsePolicy(req.Policy, req.Smoothing)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	cfg := stats.WindowConfig{Width: req.Width, Stride: req.Stride, Bins: req.Bins, Lo: req.Lo, Hi: req.Hi}
	res, err := usecase.AnalyzeSamples(req.Samples, cfg, req.Lo == req.Hi, policy, maxWorkers)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, DivergenceResponse{DensityResult: res, Divergence: res.DivergenceRows()})
}

// checkSize rejects requests whose densities or KL matrix would not fit
// the per-request limits.
func (r DivergenceRequest) checkSize() error {
	values := 0
	for _, row := range r.Samples {
		values += len(row)
		if values > maxSampleValues {
			return fmt.Errorf("%w: more than %d sample values", stats.ErrInvalidWindow, maxSampleValues)
		}
	}
	if r.Bins > stats.MaxBins {
		return fmt.Errorf("%w: bins=%d (want 1..%d)", stats.ErrInvalidWindow, r.Bins, stats.MaxBins)
	}
	if len(r.Samples) == 0 {
		return nil
	}
	cfg := stats.WindowConfig{Width: r.Width, Stride: r.Stride}
	nw := cfg.NumWindows(len(r.Samples[0]))
	if nw > maxWindows {
		return fmt.Errorf("%w: %d windows (limit %d)", stats.ErrInvalidWindow, nw, maxWindows)
	}
	if nw*r.Bins > maxDensityCells {
		return fmt.Errorf("%w: %d windows x %d bins (limit %d)", stats.ErrInvalidWindow, nw, r.Bins, maxDensityCells)
	}
	return nil
}

// GetStoredSeries handles GET /v1/results/series. It returns the points
// persisted for region, field and interval (default "mth").
func (h *Handler) GetStoredSeries(c *gin.Context) {
	if h.analysis == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no data root configured"})
		return
	}
	key := sqlite.SeriesKey{
		Region:   c.Query("region"),
		Field:    c.Query("field"),
		Interval: c.DefaultQuery("interval", "mth"),
	}
	if key.Region == "" || key.Field == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "region and field parameters are required"})
		return
	}
	points, err := h.analysis.StoredSeries(c.Request.Context(), key)
	if err != nil {
		writeError(c, err)
		return
	}
	if points == nil {
		points = []sqlite.SeriesPoint{}
	}
	c.JSON(http.StatusOK, gin.H{
		"region":   key.Region,
		"field":    key.Field,
		"interval": key.Interval,
		"points":   points,
	})
}

// GetStoredDivergences handles GET /v1/results/divergence. The optional
// region parameter narrows the summaries to one region.
func (h *Handler) GetStoredDivergences(c *gin.Context) {
	if h.analysis == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "no data root configured"})
		return
	}
	recs, err := h.analysis.StoredDivergences(c.Request.Context(), c.Query("region"))
	if err != nil {
		writeError(c, err)
		return
	}
	if recs == nil {
		recs = []sqlite.DivergenceRecord{}
	}
	c.JSON(http.StatusOK, recs)
}

// HealthCheck handles GET /health.
func (h *Handler) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"region": h.regions.Parent().Name(),
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

func intQuery(c *gin.Context, key string) (int, error) {
	s := c.Query(key)
	if s == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid %s (expected YYYYMMDD): %v", key, err)
	}
	return v, nil
}

// writeError maps domain and analysis errors to HTTP status codes.
func writeError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrCategoryNotFound):
		status = http.StatusNotFound
	case errors.Is(err, usecase.ErrNoStore):
		status = http.StatusServiceUnavailable
	case errors.Is(err, awap.ErrBadFieldName),
		errors.Is(err, domain.ErrEmptyWindow),
		errors.Is(err, domain.ErrConfiguration),
		errors.Is(err, domain.ErrShapeMismatch),
		errors.Is(err, stats.ErrInvalidWindow),
		errors.Is(err, stats.ErrEmptySample),
		errors.Is(err, stats.ErrLengthMismatch):
		status = http.StatusBadRequest
	}
	c.JSON(status, gin.H{"error": err.Error()})
}
