package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/corrowatch-backend/internal/http/response"
	"github.com/yungbote/corrowatch-backend/internal/services"
)

type AnalyticsHandler struct {
	analytics services.AnalyticsService
}

func NewAnalyticsHandler(analytics services.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{analytics: analytics}
}

// GET /api/assets/:asset/summary
func (h *AnalyticsHandler) AssetSummary(c *gin.Context) {
	sum, err := h.analytics.AssetSummary(c.Request.Context(), c.Param("asset"))
	if err != nil {
		response.RespondAPIError(c, classify(err, "asset_summary_failed"), "asset_summary_failed")
		return
	}
	response.RespondOK(c, sum)
}

// GET /api/analytics/top?limit=
func (h *AnalyticsHandler) TopAssets(c *gin.Context) {
	limit, err := queryInt(c, "limit", 10)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_limit", err)
		return
	}
	rows, err := h.analytics.TopAssets(c.Request.Context(), limit)
	if err != nil {
		response.RespondAPIError(c, classify(err, "top_assets_failed"), "top_assets_failed")
		return
	}
	response.RespondOK(c, gin.H{"assets": rows})
}

type upsertAssetRequest struct {
	SiteID      string `json:"site_id"`
	Description string `json:"description"`
}

// PUT /api/assets/:asset
func (h *AnalyticsHandler) UpsertAsset(c *gin.Context) {
	var req upsertAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	asset, err := h.analytics.UpsertAsset(c.Request.Context(), c.Param("asset"), req.SiteID, req.Description)
	if err != nil {
		response.RespondError(c, http.StatusBadRequest, "upsert_asset_failed", err)
		return
	}
	response.RespondOK(c, gin.H{"asset": asset})
}

func queryInt(c *gin.Context, name string, def int) (int, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	return strconv.Atoi(raw)
}
