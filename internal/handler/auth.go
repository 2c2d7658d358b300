package handler

import (
	"crypto/subtle"
	"net/http"

	"fooddetect/internal/config"
	"fooddetect/internal/logger"
	"fooddetect/internal/middleware"
)

// LoginHandler handles POST /auth/login by validating the admin password and
// issuing the admin cookie.
func LoginHandler(config *config.Config, logger *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if config.AdminPassword == "" {
			http.Error(w, "admin login disabled", http.StatusNotFound)
			return
		}

		password := r.FormValue("password")
		if subtle.ConstantTimeCompare([]byte(password), []byte(config.AdminPassword)) != 1 {
			logger.Warning("Failed admin login from %s", r.RemoteAddr)
			http.Error(w, "invalid password", http.StatusUnauthorized)
			return
		}

		http.SetCookie(w, &http.Cookie{
			Name:     middleware.AdminCookie,
			Value:    middleware.AdminToken(config.AdminPassword),
			Path:     "/",
			MaxAge:   2592000, // 30 days
			HttpOnly: true,
			SameSite: http.SameSiteLaxMode,
		})
		logger.Info("Admin logged in from %s", r.RemoteAddr)
		http.Redirect(w, r, "/", http.StatusSeeOther)
	}
}

// LogoutHandler clears the admin cookie and redirects to the upload page.
func LogoutHandler(w http.ResponseWriter, r *http.Request) {
	http.SetCookie(w, &http.Cookie{
		Name:   middleware.AdminCookie,
		Value:  "",
		Path:   "/",
		MaxAge: -1,
	})
	http.Redirect(w, r, "/", http.StatusSeeOther)
}
