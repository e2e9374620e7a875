package handlers

import (
	"errors"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/labstack/echo/v4"

	"whisperd/internal/asr"
	"whisperd/internal/executor"
	"whisperd/internal/ingestion"
	"whisperd/internal/registry"
	"whisperd/internal/storage"
)

// JobHandler handles job submission, status and artifact requests.
type JobHandler struct {
	ingester *ingestion.Ingester
	reg      *registry.Registry
	history  *storage.JobRepository // optional
	defaults ingestion.Request
}

// NewJobHandler creates a new JobHandler. defaults fills in omitted form
// parameters.
func NewJobHandler(ingester *ingestion.Ingester, reg *registry.Registry, history *storage.JobRepository, defaults ingestion.Request) *JobHandler {
	return &JobHandler{
		ingester: ingester,
		reg:      reg,
		history:  history,
		defaults: defaults,
	}
}

// request builds the transcription parameters from form/JSON values,
// falling back to the configured defaults.
func (h *JobHandler) request(model, device, precision, language string) ingestion.Request {
	req := h.defaults
	if model != "" {
		req.Config.Model = model
	}
	if device != "" {
		req.Config.Device = device
	}
	if precision != "" {
		req.Config.Precision = precision
	}
	if language != "" {
		req.Language = language
	}
	return req
}

// Submit handles media upload and queues a transcription job
// POST /api/jobs
func (h *JobHandler) Submit(c echo.Context) error {
	ctx := c.Request().Context()

	fh, err := c.FormFile("file")
	if err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "no file uploaded"})
	}

	f, err := fh.Open()
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "failed to open file"})
	}
	defer f.Close()

	req := h.request(
		c.FormValue("model"),
		c.FormValue("device"),
		c.FormValue("compute_type"),
		c.FormValue("language"),
	)

	jobID, err := h.ingester.SubmitUpload(ctx, fh.Filename, f, req)
	if err != nil {
		return submitError(c, err)
	}

	return c.JSON(http.StatusAccepted, map[string]string{
		"job_id":   jobID,
		"filename": fh.Filename,
	})
}

// SubmitURLRequest is the body for URL-based submission.
type SubmitURLRequest struct {
	URL       string `json:"url"`
	Model     string `json:"model"`
	Device    string `json:"device"`
	Precision string `json:"compute_type"`
	Language  string `json:"language"`
}

// SubmitURL downloads a video's audio track and queues a transcription job
// POST /api/jobs/url
func (h *JobHandler) SubmitURL(c echo.Context) error {
	ctx := c.Request().Context()

	var body SubmitURLRequest
	if err := c.Bind(&body); err != nil || body.URL == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "url is required"})
	}

	req := h.request(body.Model, body.Device, body.Precision, body.Language)

	jobID, filename, err := h.ingester.SubmitURL(ctx, body.URL, req)
	if err != nil {
		return submitError(c, err)
	}

	return c.JSON(http.StatusAccepted, map[string]string{
		"job_id":   jobID,
		"filename": filename,
	})
}

func submitError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, executor.ErrQueueFull):
		return c.JSON(http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	case errors.Is(err, ingestion.ErrUnsupportedFormat):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}
}

// Status returns the job's current state and latest message. Unknown IDs
// yield {"state":"unknown"}, never an error status.
// GET /api/jobs/:id
func (h *JobHandler) Status(c echo.Context) error {
	view := h.reg.Get(c.Param("id"))
	return c.JSON(http.StatusOK, view)
}

var artifactExts = map[string]bool{"txt": true, "srt": true, "vtt": true}

// Result serves a rendered artifact, or "not ready" before the job is done
// GET /api/jobs/:id/result?filename=...&ext=txt|srt|vtt
func (h *JobHandler) Result(c echo.Context) error {
	jobID := c.Param("id")
	filename := c.QueryParam("filename")
	ext := c.QueryParam("ext")

	if filename == "" || !artifactExts[ext] {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "filename and ext (txt, srt, vtt) are required"})
	}

	base := filepath.Base(filename)
	stem := strings.TrimSuffix(base, filepath.Ext(base))
	path := filepath.Join(h.ingester.OutDir(jobID), stem+"."+ext)

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "not ready"})
	}
	return c.File(path)
}

// List returns recent job history, optionally filtered by status
// GET /api/jobs?status=done&limit=50
func (h *JobHandler) List(c echo.Context) error {
	if h.history == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job history disabled"})
	}
	ctx := c.Request().Context()

	limit := 50
	if l := c.QueryParam("limit"); l != "" {
		if parsed, err := strconv.Atoi(l); err == nil && parsed > 0 {
			limit = parsed
		}
	}

	var (
		jobs []*storage.JobRecord
		err  error
	)
	if status := c.QueryParam("status"); status != "" {
		jobs, err = h.history.ListByStatus(ctx, status, limit)
	} else {
		jobs, err = h.history.ListRecent(ctx, limit)
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	return c.JSON(http.StatusOK, jobs)
}

// Stats returns job counts grouped by status
// GET /api/jobs/stats
func (h *JobHandler) Stats(c echo.Context) error {
	if h.history == nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "job history disabled"})
	}
	ctx := c.Request().Context()

	counts, err := h.history.CountByStatus(ctx)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": err.Error()})
	}

	stats := make(map[string]int64)
	for _, row := range counts {
		stats[row.Status] = row.Count
	}
	return c.JSON(http.StatusOK, stats)
}

// Ladder previews the fallback configurations a submission would attempt
// GET /api/ladder?model=large-v3&device=cuda&compute_type=float16&language=en
func (h *JobHandler) Ladder(c echo.Context) error {
	req := h.request(
		c.QueryParam("model"),
		c.QueryParam("device"),
		c.QueryParam("compute_type"),
		c.QueryParam("language"),
	)

	steps := make([]map[string]string, 0, 5)
	for _, cfg := range asr.Ladder(req.Config, req.Language) {
		steps = append(steps, map[string]string{
			"model":        cfg.Model,
			"device":       cfg.Device,
			"compute_type": cfg.Precision,
		})
	}
	return c.JSON(http.StatusOK, steps)
}
