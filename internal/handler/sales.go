package handler

import (
	"net/http"

	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/dto"
	"github.com/Brunno-Ar/SistemaPDV-sub001/internal/service"

	"github.com/gin-gonic/gin"
)

type SalesHandler struct{ svc service.SaleService }

func NewSalesHandler(svc service.SaleService) *SalesHandler { return &SalesHandler{svc: svc} }

// FinalizeSale godoc
// POST /v1/sales
// Commits a basket atomically: FEFO batch consumption, stock decrement,
// sale with lines and payments, and stock movements.
func (h *SalesHandler) FinalizeSale(c *gin.Context) {
	var req dto.FinalizeSaleRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.FinalizeSale(c.Request.Context(), callerFrom(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, resp)
}

// GetSale godoc
// GET /v1/sales/:id
func (h *SalesHandler) GetSale(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	resp, err := h.svc.GetSale(c.Request.Context(), callerFrom(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// ListSales godoc
// GET /v1/sales?from=&to=&operator_id=&session_id=&page=&limit=
// Cashiers only ever see their own sales.
func (h *SalesHandler) ListSales(c *gin.Context) {
	var filter dto.SaleFilter
	if !bindQuery(c, &filter) {
		return
	}
	resp, err := h.svc.ListSales(c.Request.Context(), callerFrom(c), filter)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}
