package handlers

import (
	"io"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/corrowatch-backend/internal/http/response"
	"github.com/yungbote/corrowatch-backend/internal/services"
)

const maxBatchBody = 4 << 20

type MeasurementHandler struct {
	measurements services.MeasurementService
}

func NewMeasurementHandler(measurements services.MeasurementService) *MeasurementHandler {
	return &MeasurementHandler{measurements: measurements}
}

// POST /api/sites/:site/assets/:asset/measurements
func (h *MeasurementHandler) InsertBatch(c *gin.Context) {
	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxBatchBody))
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_body", err)
		return
	}
	rows, err := h.measurements.InsertMeasurementBatch(c.Request.Context(), c.Param("asset"), body, c.Param("site"))
	if err != nil {
		response.RespondAPIError(c, classify(err, "insert_measurements_failed"), "insert_measurements_failed")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"rows_inserted": rows})
}
