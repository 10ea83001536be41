package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/mamadbah2/dairysync/internal/domain/models"
	"github.com/mamadbah2/dairysync/internal/service/importer"
)

// SheetImporter loads farmers and the fat table from a spreadsheet.
type SheetImporter interface {
	ImportFarmers(ctx context.Context) (importer.Result, error)
	ImportPrices(ctx context.Context) (importer.Result, error)
}

// ImportHandler exposes spreadsheet imports. A nil importer answers 503.
type ImportHandler struct {
	importer SheetImporter
	logger   *zap.Logger
}

// NewImportHandler constructs the HTTP handler adapter.
func NewImportHandler(imp SheetImporter, logger *zap.Logger) *ImportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ImportHandler{importer: imp, logger: logger}
}

// Farmers imports the farmer sheet.
func (h *ImportHandler) Farmers(c *gin.Context) {
	if h.importer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "spreadsheet import not configured"})
		return
	}
	h.respond(c, "farmers")(h.importer.ImportFarmers(c.Request.Context()))
}

// Prices imports the fat table sheet.
func (h *ImportHandler) Prices(c *gin.Context) {
	if h.importer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "spreadsheet import not configured"})
		return
	}
	h.respond(c, "fat_table")(h.importer.ImportPrices(c.Request.Context()))
}

func (h *ImportHandler) respond(c *gin.Context, source string) func(importer.Result, error) {
	return func(res importer.Result, err error) {
		switch {
		case err == nil:
			c.JSON(http.StatusOK, res)
		case errors.Is(err, models.ErrNotAuthenticated):
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
		case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrOverlappingRange):
			c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error(), "result": res})
		default:
			h.logger.Error("import failed", zap.String("source", source), zap.Error(err))
			c.JSON(http.StatusBadGateway, gin.H{"error": "import failed", "result": res})
		}
	}
}
