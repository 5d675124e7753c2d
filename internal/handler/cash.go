package handler

import (
	"net/http"
	"strconv"

	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/dto"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/service"

	"github.com/gin-gonic/gin"
)

type CashHandler struct{ svc service.CashService }

func NewCashHandler(svc service.CashService) *CashHandler { return &CashHandler{svc: svc} }

// Open godoc
// POST /v1/cash/sessions
func (h *CashHandler) Open(c *gin.Context) {
	var req dto.OpenSessionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Open(c.Request.Context(), callerFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Active godoc
// GET /v1/cash/sessions/active
func (h *CashHandler) Active(c *gin.Context) {
	resp, err := h.svc.GetActive(c.Request.Context(), callerFrom(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// RegisterMovement godoc
// POST /v1/cash/sessions/:id/movements
// Manual deposit or withdrawal. Movements are immutable.
func (h *CashHandler) RegisterMovement(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.CashMovementRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.RegisterMovement(c.Request.Context(), callerFrom(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// Reconcile godoc
// GET /v1/cash/sessions/:id/reconciliation
func (h *CashHandler) Reconcile(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.Reconcile(c.Request.Context(), callerFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Close godoc
// POST /v1/cash/sessions/:id/close
// Blind count: the operator declares the drawer before seeing the expected
// figure.
func (h *CashHandler) Close(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req dto.CloseSessionRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.Close(c.Request.Context(), callerFrom(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// History godoc
// GET /v1/cash/sessions?page=&limit=
func (h *CashHandler) History(c *gin.Context) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	resp, err := h.svc.History(c.Request.Context(), callerFrom(c), page, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
