package auth

import (
	"encoding/json"
	"errors"
	"net/http"

	apperrors "github.com/heshamtamer/RPM/internal/errors"
	"github.com/heshamtamer/RPM/internal/logger"
	"github.com/heshamtamer/RPM/internal/metrics"
)

type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type RefreshResponse struct {
	AccessToken string `json:"accessToken"`
}

type CurrentUserResponse struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

type Handlers struct {
	authService *Service
	limiter     *LoginLimiter
	log         *logger.Logger
}

// NewHandlers creates the auth HTTP handlers. limiter may be nil, in which
// case login throttling is disabled.
func NewHandlers(authService *Service, limiter *LoginLimiter) *Handlers {
	return &Handlers{
		authService: authService,
		limiter:     limiter,
		log:         logger.Default().WithComponent("auth"),
	}
}

func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())

	var req RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, requestID, apperrors.BadRequest("invalid request body"))
		return
	}

	if err := validateRegisterRequest(&req); err != nil {
		apperrors.WriteError(w, requestID, apperrors.ValidationError(err.Error()))
		return
	}

	user, err := h.authService.Register(r.Context(), req.Username, req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrEmailExists) {
			apperrors.WriteError(w, requestID, apperrors.UserExists())
			return
		}
		h.log.Error(r.Context(), "register failed", err)
		apperrors.WriteError(w, requestID, apperrors.DatabaseError("failed to create user"))
		return
	}

	metrics.Default().IncCounter("registrations_total")
	apperrors.WriteJSON(w, requestID, http.StatusCreated, user)
}

func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())

	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, requestID, apperrors.BadRequest("invalid request body"))
		return
	}

	if req.Email == "" || req.Password == "" {
		apperrors.WriteError(w, requestID, apperrors.ValidationError("email and password are required"))
		return
	}

	if h.limiter != nil {
		if err := h.limiter.Allow(r.Context(), req.Email, logger.ClientIP(r)); err != nil {
			metrics.Default().IncCounter("rate_limited_total")
			apperrors.WriteError(w, requestID, apperrors.RateLimited())
			return
		}
	}

	tokens, err := h.authService.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if errors.Is(err, ErrInvalidCredentials) {
			metrics.Default().IncCounter("login_failures_total")
			apperrors.WriteError(w, requestID, apperrors.InvalidCredentials())
			return
		}
		h.log.Error(r.Context(), "login failed", err)
		apperrors.WriteError(w, requestID, apperrors.DatabaseError("login failed"))
		return
	}

	if h.limiter != nil {
		h.limiter.Reset(r.Context(), req.Email, logger.ClientIP(r))
	}

	metrics.Default().IncCounter("logins_total")
	apperrors.WriteJSON(w, requestID, http.StatusOK, tokens)
}

func (h *Handlers) Refresh(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())

	var req RefreshRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		apperrors.WriteError(w, requestID, apperrors.BadRequest("invalid request body"))
		return
	}

	if req.RefreshToken == "" {
		apperrors.WriteError(w, requestID, apperrors.MissingToken())
		return
	}

	accessToken, err := h.authService.Refresh(r.Context(), req.RefreshToken)
	if err != nil {
		if errors.Is(err, ErrInvalidToken) {
			apperrors.WriteError(w, requestID, apperrors.InvalidToken())
			return
		}
		h.log.Error(r.Context(), "token refresh failed", err)
		apperrors.WriteError(w, requestID, apperrors.DatabaseError("token refresh failed"))
		return
	}

	metrics.Default().IncCounter("token_refreshes_total")
	apperrors.WriteJSON(w, requestID, http.StatusOK, RefreshResponse{AccessToken: accessToken})
}

func (h *Handlers) CurrentUser(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())

	userCtx := GetUserFromContext(r.Context())
	if userCtx == nil {
		apperrors.WriteError(w, requestID, apperrors.Unauthorized("not authenticated"))
		return
	}

	apperrors.WriteJSON(w, requestID, http.StatusOK, CurrentUserResponse{
		ID:       userCtx.UserID,
		Username: userCtx.Username,
		Email:    userCtx.Email,
	})
}

func (h *Handlers) Logout(w http.ResponseWriter, r *http.Request) {
	requestID := apperrors.GetRequestID(r.Context())

	userCtx := GetUserFromContext(r.Context())
	if userCtx == nil {
		apperrors.WriteError(w, requestID, apperrors.Unauthorized("not authenticated"))
		return
	}

	if err := h.authService.Logout(r.Context(), userCtx.UserID); err != nil {
		h.log.Error(r.Context(), "logout failed", err)
		apperrors.WriteError(w, requestID, apperrors.DatabaseError("logout failed"))
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// validateRegisterRequest checks presence only. The email is not validated
// beyond being non-empty; uniqueness is the store's concern.
func validateRegisterRequest(req *RegisterRequest) error {
	if req.Username == "" {
		return errors.New("username is required")
	}
	if req.Email == "" {
		return errors.New("email is required")
	}
	if req.Password == "" {
		return errors.New("password is required")
	}
	return nil
}
