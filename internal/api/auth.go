package api

import (
	"net/http"

	"storefront/internal/auth"
	"storefront/internal/logger"
	"storefront/internal/user"
	"storefront/internal/utils"

	"go.uber.org/zap"
)

type credentials struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type authResponse struct {
	Token string     `json:"token"`
	User  *user.User `json:"user"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	token, u, err := h.Users.Register(r.Context(), in.Username, in.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.Carts.For(u.ID)
	auth.SetAccessCookie(w, token, user.TokenTTL, h.SecureCookies)

	utils.WriteJSON(w, http.StatusCreated, authResponse{Token: token, User: u})
}

func (h *Handler) login(w http.ResponseWriter, r *http.Request) {
	var in credentials
	if err := decode(r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	token, u, err := h.Users.Login(r.Context(), in.Username, in.Password)
	if err != nil {
		writeError(w, r, err)
		return
	}
	h.Carts.For(u.ID)
	auth.SetAccessCookie(w, token, user.TokenTTL, h.SecureCookies)

	logger.FromCtx(r.Context()).Info("user logged in",
		zap.Uint("user_id", u.ID),
		zap.String("role", string(u.Role)),
	)
	utils.WriteJSON(w, http.StatusOK, authResponse{Token: token, User: u})
}

// logout discards the session cart and the cookie. Tokens are stateless and
// simply expire.
func (h *Handler) logout(w http.ResponseWriter, r *http.Request) {
	h.Carts.Drop(currentUser(r))
	auth.ClearAccessCookie(w, h.SecureCookies)
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) listUsers(w http.ResponseWriter, r *http.Request) {
	var (
		users []*user.User
		err   error
	)
	switch user.Role(r.URL.Query().Get("role")) {
	case user.RoleCustomer:
		users, err = h.Users.ListCustomers(r.Context())
	case "":
		users, err = h.Users.ListUsers(r.Context())
	default:
		utils.WriteJSONError(w, "unknown role", http.StatusBadRequest)
		return
	}
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, users)
}

func (h *Handler) promoteUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "id")
	if err != nil {
		writeError(w, r, err)
		return
	}

	u, err := h.Users.Promote(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, u)
}
