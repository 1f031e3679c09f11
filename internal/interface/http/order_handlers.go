package http

import "net/http"

func (a *API) handleListOrders(w http.ResponseWriter, r *http.Request) {
	actor, ok := getActor(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, kindUnauthorized, errUnauthenticated)
		return
	}

	orders, err := a.orderSvc.List(r.Context(), actor)
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	resp := make([]map[string]any, 0, len(orders))
	for _, o := range orders {
		resp = append(resp, mapOrder(o))
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": resp})
}

func (a *API) handleGetOrder(w http.ResponseWriter, r *http.Request) {
	actor, ok := getActor(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, kindUnauthorized, errUnauthenticated)
		return
	}
	id, err := parseIDParam(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, kindBadRequest, err)
		return
	}

	order, err := a.orderSvc.GetByID(r.Context(), actor, id)
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapOrder(order))
}

func (a *API) handleGetPayment(w http.ResponseWriter, r *http.Request) {
	actor, ok := getActor(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, kindUnauthorized, errUnauthenticated)
		return
	}
	orderID, err := parseIDParam(r, "id")
	if err != nil {
		respondError(w, http.StatusBadRequest, kindBadRequest, err)
		return
	}
	paymentID, err := parseIDParam(r, "paymentId")
	if err != nil {
		respondError(w, http.StatusBadRequest, kindBadRequest, err)
		return
	}

	p, err := a.orderSvc.GetPayment(r.Context(), actor, orderID, paymentID)
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapPayment(p))
}
