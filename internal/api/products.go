package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"storefront/internal/product"
	"storefront/internal/utils"
)

func (h *Handler) listProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Products.List(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, products)
}

func (h *Handler) searchProducts(w http.ResponseWriter, r *http.Request) {
	products, err := h.Products.Search(r.Context(), r.URL.Query().Get("q"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, products)
}

func (h *Handler) getProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.Products.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) createProduct(w http.ResponseWriter, r *http.Request) {
	var in product.NewProductInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.Products.Create(r.Context(), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, p)
}

func (h *Handler) updateProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var in product.UpdateProductInput
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.Products.Update(r.Context(), id, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, p)
}

func (h *Handler) deleteProduct(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.Products.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type stockRequest struct {
	Action   string `json:"action"`
	Quantity int    `json:"quantity"`
}

var errUnknownStockAction = errors.New("action must be increase or reduce")

func (h *Handler) manageStock(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var in stockRequest
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	switch strings.ToLower(in.Action) {
	case "increase":
		err = h.Products.IncreaseStock(r.Context(), id, in.Quantity)
	case "reduce":
		err = h.Products.ReduceStock(r.Context(), id, in.Quantity)
	default:
		err = fmt.Errorf("%w: %w", errBadRequest, errUnknownStockAction)
	}
	if err != nil {
		writeError(w, r, err)
		return
	}

	p, err := h.Products.GetByID(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, p)
}
