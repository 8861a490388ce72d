package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"storefront/internal/cart"
	"storefront/internal/checkout"
	"storefront/internal/idempotency"
	"storefront/internal/logger"
	"storefront/internal/order"
	"storefront/internal/product"
	"storefront/internal/user"
	"storefront/internal/utils"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

var errBadRequest = errors.New("malformed request")

var statusByErr = []struct {
	err  error
	code int
}{
	// -- Not found --
	{product.ErrProductNotFound, http.StatusNotFound},
	{cart.ErrProductNotFound, http.StatusNotFound},
	{cart.ErrNotInCart, http.StatusNotFound},
	{order.ErrOrderNotFound, http.StatusNotFound},
	{user.ErrUserNotFound, http.StatusNotFound},

	// -- Conflicts with current state --
	{checkout.ErrReservationFailed, http.StatusConflict},
	{product.ErrInsufficientStock, http.StatusConflict},
	{cart.ErrOutOfStock, http.StatusConflict},
	{order.ErrOrderCancelled, http.StatusConflict},
	{order.ErrStatusConflict, http.StatusConflict},
	{user.ErrUsernameExists, http.StatusConflict},
	{user.ErrAlreadyAdmin, http.StatusConflict},
	{idempotency.ErrInProgress, http.StatusConflict},

	// -- Semantically invalid --
	{checkout.ErrEmptyCart, http.StatusUnprocessableEntity},
	{order.ErrEmptyOrder, http.StatusUnprocessableEntity},

	// -- Validation & Input --
	{errBadRequest, http.StatusBadRequest},
	{product.ErrInvalidQuantity, http.StatusBadRequest},
	{product.ErrInvalidProduct, http.StatusBadRequest},
	{product.ErrNoFieldsToUpdate, http.StatusBadRequest},
	{cart.ErrInvalidQuantity, http.StatusBadRequest},
	{order.ErrInvalidStatus, http.StatusBadRequest},
	{user.ErrInvalidInput, http.StatusBadRequest},
	{idempotency.ErrInvalidKey, http.StatusBadRequest},

	// -- Authentication --
	{user.ErrInvalidCredentials, http.StatusUnauthorized},
}

func statusFor(err error) int {
	for _, m := range statusByErr {
		if errors.Is(err, m.err) {
			return m.code
		}
	}
	return http.StatusInternalServerError
}

type shortageBody struct {
	Error     string `json:"error"`
	ProductID uint   `json:"product_id"`
	Requested int    `json:"requested"`
	Available int    `json:"available"`
}

// writeError maps domain errors to status codes. Unknown errors are logged
// and reported without detail.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var shortage *checkout.StockShortageError
	if errors.As(err, &shortage) {
		utils.WriteJSON(w, http.StatusConflict, shortageBody{
			Error:     shortage.Error(),
			ProductID: shortage.ProductID,
			Requested: shortage.Requested,
			Available: shortage.Available,
		})
		return
	}

	code := statusFor(err)
	if code == http.StatusInternalServerError {
		logger.FromCtx(r.Context()).Error("request failed",
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		utils.WriteJSONError(w, "internal server error", code)
		return
	}
	utils.WriteJSONError(w, err.Error(), code)
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", errBadRequest, err)
	}
	return nil
}

func pathID(r *http.Request, name string) (uint, error) {
	id, err := utils.ToUint(chi.URLParam(r, name))
	if err != nil || id == 0 {
		return 0, fmt.Errorf("%w: invalid %s", errBadRequest, name)
	}
	return id, nil
}

func currentUser(r *http.Request) uint {
	id, _ := utils.GetUserIDFromContext(r.Context())
	return id
}
