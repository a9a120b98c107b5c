package api

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/romangod6/sitemap-clusters/internal/models"
	"github.com/romangod6/sitemap-clusters/internal/sitemap"
	"github.com/romangod6/sitemap-clusters/internal/storage"
)

type Handler struct {
	store  storage.Store
	runner *Runner
	logger zerolog.Logger
}

type ErrorResponse struct {
	Error string `json:"error"`
}

type PaginationResponse struct {
	Data       interface{} `json:"data"`
	Page       int         `json:"page"`
	Limit      int         `json:"limit"`
	TotalCount int         `json:"total_count"`
}

type CreateAnalysisRequest struct {
	SitemapURL string `json:"sitemapUrl" binding:"required"`
	Interval   string `json:"interval"`
}

func NewHandler(store storage.Store, runner *Runner, logger zerolog.Logger) *Handler {
	return &Handler{
		store:  store,
		runner: runner,
		logger: logger,
	}
}

func (h *Handler) ListAnalyses(c *gin.Context) {
	page, limit := getPaginationParams(c)
	offset := (page - 1) * limit

	jobs, err := h.store.ListJobs(c.Request.Context(), limit, offset)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to fetch analyses"})
		return
	}
	total, err := h.store.CountJobs(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to count analyses"})
		return
	}

	if jobs == nil {
		jobs = []*models.AnalysisJob{}
	}

	c.JSON(http.StatusOK, PaginationResponse{
		Data:       jobs,
		Page:       page,
		Limit:      limit,
		TotalCount: total,
	})
}

func (h *Handler) GetAnalysis(c *gin.Context) {
	job, ok := h.lookupJob(c)
	if !ok {
		return
	}

	c.JSON(http.StatusOK, job)
}

func (h *Handler) CreateAnalysis(c *gin.Context) {
	var req CreateAnalysisRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid analysis request"})
		return
	}

	sitemapURL := sitemap.NormalizeInput(req.SitemapURL)
	if sitemapURL == "" {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Sitemap URL is required"})
		return
	}

	interval := strings.TrimSpace(req.Interval)
	if interval != "" {
		if d, err := time.ParseDuration(interval); err != nil || d <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid interval"})
			return
		}
	}

	job := models.NewAnalysisJob(sitemapURL)
	job.Interval = interval
	job.Status = models.StatusRunning

	if err := h.store.CreateJob(c.Request.Context(), job); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to save analysis"})
		return
	}

	h.start(*job)

	c.JSON(http.StatusAccepted, job)
}

// RunAnalysis starts a stored job again immediately.
func (h *Handler) RunAnalysis(c *gin.Context) {
	job, ok := h.lookupJob(c)
	if !ok {
		return
	}

	now := time.Now()
	claimed, err := h.store.ClaimJob(c.Request.Context(), job.ID, now)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to update analysis"})
		return
	}
	if !claimed {
		c.JSON(http.StatusConflict, ErrorResponse{Error: "Analysis is already running"})
		return
	}
	job.Status = models.StatusRunning
	job.UpdatedAt = now

	h.start(*job)

	c.JSON(http.StatusAccepted, job)
}

func (h *Handler) DeleteAnalysis(c *gin.Context) {
	job, ok := h.lookupJob(c)
	if !ok {
		return
	}

	if err := h.store.DeleteJob(c.Request.Context(), job.ID); err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to delete analysis"})
		return
	}

	c.JSON(http.StatusOK, gin.H{"status": "deleted"})
}

// start runs the analysis in a goroutine on its own copy of the job.
func (h *Handler) start(job models.AnalysisJob) {
	go func() {
		h.logger.Info().Str("job", job.ID.String()).Str("sitemap", job.SitemapURL).Msg("Starting analysis")
		if err := h.runner.Run(context.Background(), &job); err != nil {
			h.logger.Warn().Err(err).Str("job", job.ID.String()).Msg("Analysis failed")
			return
		}
		h.logger.Info().Str("job", job.ID.String()).Msg("Analysis completed")
	}()
}

func (h *Handler) lookupJob(c *gin.Context) (*models.AnalysisJob, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "Invalid analysis ID"})
		return nil, false
	}

	job, err := h.store.GetJob(c.Request.Context(), id)
	if err != nil {
		c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Failed to fetch analysis"})
		return nil, false
	}

	if job == nil {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Analysis not found"})
		return nil, false
	}

	return job, true
}

// Utility functions
func getPaginationParams(c *gin.Context) (page, limit int) {
	page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ = strconv.Atoi(c.DefaultQuery("limit", "10"))

	if page < 1 {
		page = 1
	}
	if limit < 1 || limit > 100 {
		limit = 10
	}

	return page, limit
}
