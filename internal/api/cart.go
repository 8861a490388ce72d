package api

import (
	"net/http"

	"storefront/internal/utils"
)

type addItemRequest struct {
	ProductID uint `json:"product_id"`
	Quantity  int  `json:"quantity"`
}

func (h *Handler) viewCart(w http.ResponseWriter, r *http.Request) {
	view, err := h.Cart.View(r.Context(), h.Carts.For(currentUser(r)))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) addToCart(w http.ResponseWriter, r *http.Request) {
	var in addItemRequest
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	c := h.Carts.For(currentUser(r))
	if err := h.Cart.Add(r.Context(), c, in.ProductID, in.Quantity); err != nil {
		writeError(w, r, err)
		return
	}

	view, err := h.Cart.View(r.Context(), c)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, view)
}

func (h *Handler) removeFromCart(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "productID")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.Cart.Remove(r.Context(), h.Carts.For(currentUser(r)), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
