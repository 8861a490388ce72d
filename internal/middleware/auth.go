package middleware

import (
	"net/http"

	"storefront/internal/auth"
	"storefront/internal/logger"
	"storefront/internal/user"
	"storefront/internal/utils"

	"go.uber.org/zap"
)

// AuthMiddleware attaches the caller identity when a valid session token is
// present in the access_token cookie or a bearer header. Requests without
// one continue anonymously.
func AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token := auth.ExtractAccessToken(r)
		if token == "" {
			next.ServeHTTP(w, r)
			return
		}

		claims, err := user.ParseJWT(token)
		if err != nil {
			logger.FromCtx(r.Context()).Debug("ignoring invalid token", zap.Error(err))
			next.ServeHTTP(w, r)
			return
		}

		ctx := utils.SetUserContext(r.Context(), claims.UserID, claims.Username, string(claims.Role))
		ctx = logger.WithUserID(ctx, claims.UserID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireAuth rejects anonymous requests with 401.
func RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if _, ok := utils.GetUserIDFromContext(r.Context()); !ok {
			utils.WriteJSONError(w, "authentication required", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RequireAdmin rejects anonymous requests with 401 and non-admins with 403.
func RequireAdmin(next http.Handler) http.Handler {
	return RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if utils.GetUserRoleFromContext(r.Context()) != string(user.RoleAdmin) {
			utils.WriteJSONError(w, "admin access required", http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	}))
}
