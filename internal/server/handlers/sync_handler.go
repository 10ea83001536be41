package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/dairysync/internal/service/coordinator"
)

// SyncRunner is the coordinator surface exposed over HTTP.
type SyncRunner interface {
	Trigger() error
	State() coordinator.State
	Running() bool
	LastReport() (coordinator.Report, bool)
}

// SyncHandler exposes manual sync triggers and run status.
type SyncHandler struct {
	runner SyncRunner
	logger *zap.Logger
}

// NewSyncHandler constructs the HTTP handler adapter.
func NewSyncHandler(runner SyncRunner, logger *zap.Logger) *SyncHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SyncHandler{runner: runner, logger: logger}
}

// Trigger queues a sync run.
func (h *SyncHandler) Trigger(c *gin.Context) {
	err := h.runner.Trigger()
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
	case errors.Is(err, coordinator.ErrAlreadyRunning):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	default:
		h.logger.Error("failed queueing sync run", zap.Error(err))
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "unable to queue sync run"})
	}
}

// Status reports the coordinator state and the last finished run.
func (h *SyncHandler) Status(c *gin.Context) {
	body := gin.H{
		"state":   h.runner.State().String(),
		"running": h.runner.Running(),
	}
	if report, ok := h.runner.LastReport(); ok {
		body["last_report"] = report
		body["failures"] = report.Failures()
	}
	c.JSON(http.StatusOK, body)
}
