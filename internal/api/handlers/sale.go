package handlers

import (
	"net/http"

	"github.com/brainbox/retailplus/internal/domain"
	"github.com/brainbox/retailplus/internal/service"
)

type SaleHandler struct {
	sales *service.SaleService
}

func NewSaleHandler(sales *service.SaleService) *SaleHandler {
	return &SaleHandler{sales: sales}
}

type recordSaleRequest struct {
	Sale  domain.Sale       `json:"sale"`
	Items []domain.SaleItem `json:"items"`
}

type recordSaleResponse struct {
	Sale  domain.Sale       `json:"sale"`
	Items []domain.SaleItem `json:"items"`
}

func (h *SaleHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req recordSaleRequest
	if err := decodeJSON(w, r, &req, false); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sale, items, err := h.sales.RecordSale(r.Context(), req.Sale, req.Items)
	if err != nil {
		writeServiceError(w, err, "failed to record sale")
		return
	}
	writeJSON(w, http.StatusCreated, recordSaleResponse{Sale: sale, Items: items})
}
