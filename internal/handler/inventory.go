package handler

import (
	"net/http"

	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/dto"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/service"

	"github.com/gin-gonic/gin"
)

type InventoryHandler struct{ svc service.InventoryService }

func NewInventoryHandler(svc service.InventoryService) *InventoryHandler {
	return &InventoryHandler{svc: svc}
}

// Intake godoc
// POST /v1/inventory/intake
// Receives a batch, re-weighting the product's average cost.
func (h *InventoryHandler) Intake(c *gin.Context) {
	var req dto.IntakeRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Intake(c.Request.Context(), callerFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Adjust godoc
// POST /v1/inventory/adjustments
func (h *InventoryHandler) Adjust(c *gin.Context) {
	var req dto.AdjustmentRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Adjust(c.Request.Context(), callerFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// ListBatches godoc
// GET /v1/inventory/products/:id/batches?include_empty=true
func (h *InventoryHandler) ListBatches(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	includeEmpty := c.Query("include_empty") == "true"
	resp, err := h.svc.ListBatches(c.Request.Context(), callerFrom(c), id, includeEmpty)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListMovements godoc
// GET /v1/inventory/movements?product_id=&kind=&sale_id=&page=&limit=
func (h *InventoryHandler) ListMovements(c *gin.Context) {
	var filter dto.MovementFilter
	if !bindQuery(c, &filter) {
		return
	}
	resp, err := h.svc.ListMovements(c.Request.Context(), callerFrom(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// LowStock godoc
// GET /v1/inventory/alerts
func (h *InventoryHandler) LowStock(c *gin.Context) {
	resp, err := h.svc.LowStock(c.Request.Context(), callerFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Audit godoc
// GET /v1/inventory/audit
// Lists products whose running stock disagrees with their batches.
func (h *InventoryHandler) Audit(c *gin.Context) {
	resp, err := h.svc.AuditConservation(c.Request.Context(), callerFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
