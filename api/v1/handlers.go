// Package v1 exposes the HTTP API for traffic scans and scan history.
package v1

import (
	"context"
	"errors"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/charlesms1246/home-iot-guard/internal/detection/ml"
	"github.com/charlesms1246/home-iot-guard/internal/models"
	"github.com/charlesms1246/home-iot-guard/internal/store"
)

// DetectionService scans uploaded traffic frames for anomalies.
type DetectionService interface {
	Scan(ctx context.Context, frame *ml.Frame) (*models.ScanSummary, error)
	Ready() bool
	Metrics() ml.ServiceMetrics
	Snapshot() *ml.Snapshot
}

// HistoryStore persists and retrieves scan results.
type HistoryStore interface {
	StoreScan(ctx context.Context, result *models.ScanResult) error
	GetScan(ctx context.Context, id string) (*models.ScanResult, error)
	GetRecent(ctx context.Context, limit int) ([]*models.ScanResult, error)
	TotalScans(ctx context.Context) (int64, error)
	Ping(ctx context.Context) error
}

// ScanLogger indexes completed scans for external analysis.
type ScanLogger interface {
	LogScan(ctx context.Context, result *models.ScanResult) error
}

const historyLimit = 50

// Handler handles API requests
type Handler struct {
	store    HistoryStore
	detector DetectionService
	esLogger ScanLogger
	logger   *zap.Logger
}

// NewHandler creates a new API handler. esLogger may be nil when
// Elasticsearch indexing is disabled.
func NewHandler(store HistoryStore, detector DetectionService, esLogger ScanLogger, logger *zap.Logger) *Handler {
	return &Handler{
		store:    store,
		detector: detector,
		esLogger: esLogger,
		logger:   logger,
	}
}

// RegisterRoutes registers API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	v1 := r.Group("/api/v1")
	{
		v1.POST("/scan", h.handleScan)
		v1.GET("/history", h.handleHistory)
		v1.GET("/scans/:id", h.handleScanByID)
		v1.GET("/status", h.handleStatus)
	}
}

// handleScan accepts a CSV capture upload and runs anomaly detection on it.
func (h *Handler) handleScan(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "file upload is required"})
		return
	}
	if !strings.EqualFold(filepath.Ext(file.Filename), ".csv") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "only .csv uploads are accepted"})
		return
	}

	src, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to open upload"})
		return
	}
	defer src.Close()

	frame, err := ml.ReadCSV(src)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "failed to parse CSV: " + err.Error()})
		return
	}

	summary, err := h.detector.Scan(c.Request.Context(), frame)
	if err != nil {
		h.respondScanError(c, err)
		return
	}

	result := &models.ScanResult{
		ID:           uuid.NewString(),
		Timestamp:    time.Now().UTC(),
		AnomalyCount: summary.AnomalyCount,
		TotalWindows: summary.TotalWindows,
		Threshold:    summary.Threshold,
		Details:      summary.Details,
	}

	if err := h.store.StoreScan(c.Request.Context(), result); err != nil {
		// The scan itself succeeded; report it even if history is down.
		h.logger.Warn("failed to store scan result", zap.Error(err))
	}

	if h.esLogger != nil {
		if err := h.esLogger.LogScan(c.Request.Context(), result); err != nil {
			h.logger.Warn("failed to index scan result", zap.Error(err))
		}
	}

	c.JSON(http.StatusOK, gin.H{
		"status":  "success",
		"scan_id": result.ID,
		"result":  summary,
	})
}

// respondScanError maps detection errors onto HTTP statuses.
func (h *Handler) respondScanError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ml.ErrModelUnavailable):
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"error": "detection model unavailable: " + err.Error(),
		})
	case errors.Is(err, ml.ErrValidation):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.Is(err, ml.ErrDataQuality):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		h.logger.Error("scan failed", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "scan failed"})
	}
}

// handleHistory returns the most recent scans, newest first.
func (h *Handler) handleHistory(c *gin.Context) {
	results, err := h.store.GetRecent(c.Request.Context(), historyLimit)
	if err != nil {
		h.logger.Error("failed to read scan history", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read scan history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"count":  len(results),
		"scans":  results,
	})
}

// handleScanByID returns one stored scan.
func (h *Handler) handleScanByID(c *gin.Context) {
	id := c.Param("id")
	result, err := h.store.GetScan(c.Request.Context(), id)
	if errors.Is(err, store.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "scan not found"})
		return
	}
	if err != nil {
		h.logger.Error("failed to read scan", zap.String("id", id), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read scan"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status": "success",
		"scan":   result,
	})
}

// handleStatus reports service health and detection metrics.
func (h *Handler) handleStatus(c *gin.Context) {
	metrics := h.detector.Metrics()
	status := gin.H{
		"status":                  "ok",
		"model_ready":             h.detector.Ready(),
		"total_scans":             metrics.TotalScans,
		"anomalies_detected":      metrics.AnomaliesDetected,
		"average_latency_seconds": metrics.AverageLatency,
	}
	if !metrics.LastScanTime.IsZero() {
		status["last_scan_time"] = metrics.LastScanTime
	}
	if snap := h.detector.Snapshot(); snap != nil {
		status["threshold"] = snap.Threshold
		status["threshold_source"] = snap.ThresholdSource
		status["trained_at"] = snap.TrainedAt
	}

	if err := h.store.Ping(c.Request.Context()); err != nil {
		status["status"] = "degraded"
		status["store_error"] = err.Error()
	} else if total, err := h.store.TotalScans(c.Request.Context()); err == nil {
		status["stored_scans"] = total
	}

	c.JSON(http.StatusOK, status)
}
