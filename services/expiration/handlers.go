package expiration

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
)

// ScanHandler expõe a varredura para operadores
type ScanHandler struct {
	runner Runner
}

func NewScanHandler(runner Runner) *ScanHandler {
	return &ScanHandler{runner: runner}
}

type ScanRequest struct {
	Hours  float64 `json:"hours" binding:"required,gt=0"`
	DryRun bool    `json:"dry_run"`
}

// Scan é o endpoint POST /api/expirations/scan
func (h *ScanHandler) Scan(c *gin.Context) {
	var req ScanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	summary, err := h.runner.Run(c.Request.Context(), Options{
		Timeout: HoursToDuration(req.Hours),
		DryRun:  req.DryRun,
	})
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, summary)
}

// HoursToDuration converte horas fracionárias (ex.: 0.5) em duração
func HoursToDuration(hours float64) time.Duration {
	return time.Duration(hours * float64(time.Hour))
}
