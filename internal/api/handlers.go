package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"lwbackup/internal/backup"
	"lwbackup/internal/job"
)

const defaultListLimit = 20

type triggerResponse struct {
	BatchID string        `json:"batch_id"`
	Status  backup.Status `json:"status"`
}

type healthResponse struct {
	OK   bool `json:"ok"`
	Busy bool `json:"busy"`
}

type API struct {
	jobs     *job.Manager
	gatherer prometheus.Gatherer
}

func NewAPI(jobs *job.Manager, gatherer prometheus.Gatherer) *API {
	return &API{jobs: jobs, gatherer: gatherer}
}

// RegisterRoutes registers API routes on the provided gin engine
func (a *API) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api/v1")
	{
		api.GET("/health", a.Health)
		api.POST("/batches", a.TriggerBatch)
		api.GET("/batches", a.ListBatches)
		api.GET("/batches/:id", a.GetBatch)
	}
	if a.gatherer != nil {
		router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})))
	}
}

// Health reports liveness and whether a batch is running
func (a *API) Health(c *gin.Context) {
	c.JSON(http.StatusOK, healthResponse{OK: true, Busy: a.jobs.IsBusy()})
}

// TriggerBatch starts a backup batch outside the daily schedule
func (a *API) TriggerBatch(c *gin.Context) {
	id, err := a.jobs.Trigger()
	if err != nil {
		if errors.Is(err, job.ErrBatchInProgress) {
			log.Warn().Msg("rejecting manual batch: a batch is already running")
			c.JSON(http.StatusServiceUnavailable, gin.H{"error": "batch in progress"})
			return
		}
		log.Error().Err(err).Msg("failed to trigger batch")
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	log.Info().Str("batch_id", id).Msg("manual batch triggered")
	c.JSON(http.StatusAccepted, triggerResponse{BatchID: id, Status: backup.StatusRunning})
}

// ListBatches returns recent batch reports, newest first
func (a *API) ListBatches(c *gin.Context) {
	limit := defaultListLimit
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid limit"})
			return
		}
		limit = n
	}
	c.JSON(http.StatusOK, gin.H{"batches": a.jobs.List(limit)})
}

// GetBatch returns a single batch report
func (a *API) GetBatch(c *gin.Context) {
	id := c.Param("id")
	report, err := a.jobs.Get(id)
	if err != nil {
		log.Warn().Str("batch_id", id).Msg("batch not found")
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, report)
}
