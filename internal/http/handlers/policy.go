package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/corrowatch-backend/internal/http/response"
	"github.com/yungbote/corrowatch-backend/internal/services"
)

type PolicyHandler struct {
	policies services.PolicyService
}

func NewPolicyHandler(policies services.PolicyService) *PolicyHandler {
	return &PolicyHandler{policies: policies}
}

type upsertPolicyRequest struct {
	ThresholdLow  *float64 `json:"threshold_low"`
	ThresholdMed  *float64 `json:"threshold_med"`
	ThresholdHigh *float64 `json:"threshold_high"`
}

// PUT /api/policies/:name
func (h *PolicyHandler) Upsert(c *gin.Context) {
	var req upsertPolicyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_request", err)
		return
	}
	if req.ThresholdLow == nil || req.ThresholdMed == nil || req.ThresholdHigh == nil {
		response.RespondError(c, http.StatusBadRequest, "invalid_policy",
			errors.New("threshold_low, threshold_med and threshold_high are required"))
		return
	}
	p, recomputed, err := h.policies.Upsert(c.Request.Context(), c.Param("name"), *req.ThresholdLow, *req.ThresholdMed, *req.ThresholdHigh)
	if err != nil {
		response.RespondAPIError(c, classify(err, "upsert_policy_failed"), "upsert_policy_failed")
		return
	}
	response.RespondOK(c, gin.H{"policy": p, "recomputed": recomputed})
}

// GET /api/policies/:name
func (h *PolicyHandler) Get(c *gin.Context) {
	p, err := h.policies.Get(c.Request.Context(), c.Param("name"))
	if err != nil {
		response.RespondAPIError(c, classify(err, "get_policy_failed"), "get_policy_failed")
		return
	}
	if p == nil {
		response.RespondError(c, http.StatusNotFound, "policy_not_found", errors.New("policy not found"))
		return
	}
	response.RespondOK(c, gin.H{"policy": p})
}
