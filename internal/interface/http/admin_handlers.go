package http

import (
	"net/http"
	"strings"

	domorder "example.com/pod-fulfillment/internal/domain/order"
)

type updateOrderStatusRequest struct {
	Status string `json:"status" validate:"required"`
}

func (a *API) handleUpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, kindBadRequest, err)
		return
	}
	var req updateOrderStatusRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, kindBadRequest, err)
		return
	}

	status := domorder.Status(strings.ToUpper(strings.TrimSpace(req.Status)))
	order, err := a.orderSvc.UpdateStatus(r.Context(), id, status)
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrder(order))
}
