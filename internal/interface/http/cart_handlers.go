package http

import "net/http"

type addCartItemRequest struct {
	ProductID int64  `json:"product_id" validate:"required,gt=0"`
	Quantity  *int64 `json:"quantity" validate:"required"`
}

type updateCartItemRequest struct {
	Quantity *int64 `json:"quantity" validate:"required"`
}

type checkoutRequest struct {
	ShippingAddress string `json:"shipping_address" validate:"required"`
}

func (a *API) handleGetCart(w http.ResponseWriter, r *http.Request) {
	actor, ok := getActor(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, kindUnauthorized, errUnauthenticated)
		return
	}

	cart, err := a.cartSvc.ListItems(r.Context(), actor.UserID)
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, mapCart(cart))
}

func (a *API) handleAddCartItem(w http.ResponseWriter, r *http.Request) {
	actor, ok := getActor(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, kindUnauthorized, errUnauthenticated)
		return
	}

	var req addCartItemRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, kindBadRequest, err)
		return
	}

	item, err := a.cartSvc.AddItem(r.Context(), actor.UserID, req.ProductID, *req.Quantity)
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, mapCartItem(item))
}

func (a *API) handleUpdateCartItem(w http.ResponseWriter, r *http.Request) {
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

	var req updateCartItemRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, kindBadRequest, err)
		return
	}

	if err := a.cartSvc.SetQuantity(r.Context(), actor.UserID, id, *req.Quantity); err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"id": id, "quantity": *req.Quantity})
}

func (a *API) handleRemoveCartItem(w http.ResponseWriter, r *http.Request) {
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

	if err := a.cartSvc.RemoveItem(r.Context(), actor.UserID, id); err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	actor, ok := getActor(r.Context())
	if !ok {
		respondError(w, http.StatusUnauthorized, kindUnauthorized, errUnauthenticated)
		return
	}

	var req checkoutRequest
	if err := a.decodeAndValidate(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, kindBadRequest, err)
		return
	}

	order, err := a.checkoutSvc.Checkout(r.Context(), actor.UserID, req.ShippingAddress)
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusCreated, mapOrder(order))
}
