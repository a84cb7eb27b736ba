package handler

import (
	"net/http"
	"time"

	"github.com/cvbank/cvbank-backend/internal/auth/service"
	"github.com/cvbank/cvbank-backend/pkg/httputil"
	"github.com/cvbank/cvbank-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
)

// Cookie names
const (
	AccessCookie  = "accessToken"
	RefreshCookie = "refreshToken"
)

// CookieOptions controls the attributes of the session cookies.
type CookieOptions struct {
	Secure   bool
	SameSite http.SameSite
}

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	service *service.AuthService
	cookies CookieOptions
	logger  *logger.Logger
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(svc *service.AuthService, cookies CookieOptions, log *logger.Logger) *AuthHandler {
	return &AuthHandler{
		service: svc,
		cookies: cookies,
		logger:  log,
	}
}

// Routes mounts /signup, /login, /logout and the authenticated /getUser.
func (h *AuthHandler) Routes(r chi.Router) {
	r.Post("/signup", h.Signup)
	r.Post("/login", h.Login)
	r.Post("/logout", h.Logout)
	r.With(h.Authenticate).Get("/getUser", h.GetUser)
}

// Signup registers a new user and signs it in
func (h *AuthHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req service.SignupRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	res, err := h.service.Signup(r.Context(), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	h.setSessionCookies(w, res)
	httputil.JSONMessage(w, http.StatusCreated, "User created successfully", res.User)
}

// Login handles user login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req service.LoginRequest
	if err := httputil.DecodeJSON(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}
	if err := httputil.Validate(&req); err != nil {
		httputil.Error(w, err)
		return
	}

	res, err := h.service.Login(r.Context(), &req)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	h.setSessionCookies(w, res)
	httputil.JSONMessage(w, http.StatusOK, "Login successful", res.User)
}

// Logout clears the session cookies
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	h.clearSessionCookies(w)
	httputil.JSONMessage(w, http.StatusOK, "Logged out successfully", nil)
}

// GetUser returns the authenticated user
func (h *AuthHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	user, err := h.service.GetUser(r.Context(), httputil.GetUserID(r.Context()))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONMessage(w, http.StatusOK, "User fetched successfully.", user)
}

func (h *AuthHandler) setSessionCookies(w http.ResponseWriter, res *service.AuthResult) {
	h.setCookie(w, AccessCookie, res.Tokens.AccessToken, res.Tokens.AccessExpiresAt)
	h.setCookie(w, RefreshCookie, res.Tokens.RefreshToken, res.Tokens.RefreshExpiresAt)
}

func (h *AuthHandler) setCookie(w http.ResponseWriter, name, value string, expires time.Time) {
	http.SetCookie(w, &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Expires:  expires,
		MaxAge:   int(time.Until(expires).Seconds()),
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: h.cookies.SameSite,
	})
}

func (h *AuthHandler) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{AccessCookie, RefreshCookie} {
		http.SetCookie(w, &http.Cookie{
			Name:     name,
			Value:    "",
			Path:     "/",
			MaxAge:   -1,
			HttpOnly: true,
			Secure:   h.cookies.Secure,
			SameSite: h.cookies.SameSite,
		})
	}
}
