package api

import (
	"errors"
	"net/http"
	"strings"

	"storefront/internal/idempotency"
	"storefront/internal/logger"
	"storefront/internal/order"
	"storefront/internal/utils"

	"go.uber.org/zap"
)

const idempotencyHeader = "Idempotency-Key"

// checkout places an order from the caller's cart. With an Idempotency-Key
// a retried request returns the order created by the first attempt.
func (h *Handler) checkout(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := currentUser(r)
	log := logger.FromCtx(ctx).With(
		zap.String("layer", "handler"),
		zap.String("method", "Checkout"),
	)

	key := strings.TrimSpace(r.Header.Get(idempotencyHeader))
	if h.Idempotency == nil {
		key = ""
	}

	if key != "" {
		orderID, replay, err := h.Idempotency.Begin(ctx, userID, key)
		switch {
		case errors.Is(err, idempotency.ErrInProgress), errors.Is(err, idempotency.ErrInvalidKey):
			writeError(w, r, err)
			return
		case err != nil:
			// store unavailable: proceed without replay protection
			log.Warn("idempotency check skipped", zap.Error(err))
			key = ""
		case replay:
			o, err := h.Orders.Get(ctx, orderID)
			if err != nil {
				writeError(w, r, err)
				return
			}
			log.Info("checkout replayed", zap.Uint("order_id", orderID))
			utils.WriteJSON(w, http.StatusOK, o)
			return
		}
	}

	o, err := h.Checkout.Checkout(ctx, userID, h.Carts.For(userID))
	if err != nil {
		if key != "" {
			if aerr := h.Idempotency.Abort(ctx, userID, key); aerr != nil {
				log.Warn("failed to release idempotency key", zap.Error(aerr))
			}
		}
		writeError(w, r, err)
		return
	}

	if key != "" {
		if cerr := h.Idempotency.Complete(ctx, userID, key, o.ID); cerr != nil {
			log.Warn("failed to record idempotency key",
				zap.Uint("order_id", o.ID),
				zap.Error(cerr),
			)
		}
	}
	utils.WriteJSON(w, http.StatusCreated, o)
}

func (h *Handler) myOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Orders.ListForUser(r.Context(), currentUser(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, orders)
}

func (h *Handler) allOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.Orders.ListAll(r.Context())
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, orders)
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *Handler) setOrderStatus(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	var in statusRequest
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}
	status, err := order.ParseStatus(in.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}

	t, err := h.Orders.SetStatus(r.Context(), id, status)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) cancelOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	t, err := h.Orders.Cancel(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, t)
}

func (h *Handler) deleteOrder(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	if err := h.Orders.Delete(r.Context(), id); err != nil {
		writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
