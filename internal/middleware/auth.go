package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"net/http"

	"fooddetect/internal/config"
)

// AdminCookie holds the admin token after a successful login.
const AdminCookie = "fooddetect_admin"

// AdminToken derives the cookie value from the admin password, so the
// password itself never travels in a cookie.
func AdminToken(password string) string {
	sum := sha256.Sum256([]byte("fooddetect-admin:" + password))
	return hex.EncodeToString(sum[:])
}

// RequireAdmin rejects requests without a valid admin cookie with 401.
// With no admin password configured every request passes.
func RequireAdmin(cfg *config.Config, next http.Handler) http.Handler {
	if cfg.AdminPassword == "" {
		return next
	}
	token := []byte(AdminToken(cfg.AdminPassword))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		cookie, err := r.Cookie(AdminCookie)
		if err != nil || subtle.ConstantTimeCompare([]byte(cookie.Value), token) != 1 {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r)
	})
}
