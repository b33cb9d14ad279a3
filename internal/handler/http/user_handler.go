package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/gofrs/uuid"
	"github.com/rs/zerolog/hlog"
	"github.com/vasiliy-maslov/account-service/internal/metrics"
	"github.com/vasiliy-maslov/account-service/internal/user"
)

type RegisterRequest struct {
	FirstName string `json:"first_name" validate:"required"`
	LastName  string `json:"last_name" validate:"required"`
	Email     string `json:"email" validate:"required"`
	Password  string `json:"password" validate:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// UserResponse is the public projection of a user. It never carries the
// password hash.
type UserResponse struct {
	ID        uuid.UUID `json:"id"`
	FirstName string    `json:"first_name"`
	LastName  string    `json:"last_name"`
	Email     string    `json:"email"`
	Token     *string   `json:"token"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type ValidationErrorResponse struct {
	Error   string   `json:"error"`
	Details []string `json:"details,omitempty"`
}

func newUserResponse(u *user.User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		FirstName: u.FirstName,
		LastName:  u.LastName,
		Email:     u.Email,
		Token:     u.Token,
		CreatedAt: u.CreatedAt,
		UpdatedAt: u.UpdatedAt,
	}
}

type UserHandler struct {
	service  user.Service
	gate     *Gate
	validate *validator.Validate
	metrics  *metrics.Metrics
}

// NewUserHandler wires the account routes. m may be nil.
func NewUserHandler(service user.Service, m *metrics.Metrics) *UserHandler {
	return &UserHandler{
		service:  service,
		gate:     NewGate(service, m),
		validate: newValidator(),
		metrics:  m,
	}
}

func (h *UserHandler) RegisterRoutes(router chi.Router) {
	router.With(h.gate.OptionalAuth).Get("/welcome", h.handleWelcome)
	router.Post("/register", h.handleRegister)
	router.Post("/login", h.handleLogin)
	router.With(h.gate.RequireAuth).Post("/logout", h.handleLogout)
}

func (h *UserHandler) handleWelcome(w http.ResponseWriter, r *http.Request) {
	if current, ok := UserFromContext(r.Context()); ok && current.FirstName != "" {
		respondWithText(w, http.StatusOK, fmt.Sprintf("Welcome %s 🙌", current.FirstName))
		return
	}
	respondWithText(w, http.StatusOK, "Welcome 🙌")
}

func (h *UserHandler) handleRegister(w http.ResponseWriter, r *http.Request) {
	var requestPayload RegisterRequest

	if err := decodeJSON(r, &requestPayload); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("Failed to decode request body")
		h.metrics.RecordAuth(metrics.OpRegister, metrics.OutcomeRejected)
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request payload %v", err))
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		h.metrics.RecordAuth(metrics.OpRegister, metrics.OutcomeRejected)
		h.respondWithValidationError(w, r, err, "All input is required")
		return
	}

	created, err := h.service.Register(r.Context(), user.RegisterInput{
		FirstName: requestPayload.FirstName,
		LastName:  requestPayload.LastName,
		Email:     requestPayload.Email,
		Password:  requestPayload.Password,
	})
	h.metrics.RecordAuth(metrics.OpRegister, outcomeOf(err))
	if err != nil {
		statusCode := mapErrorToStatusCode(err)

		var clientMessage string
		switch {
		case errors.Is(err, user.ErrEmailExists):
			clientMessage = "User Already Exists. Please Login."
		case errors.Is(err, user.ErrValidation):
			clientMessage = "All input is required"
		default:
			hlog.FromRequest(r).Error().Err(err).Msg("Failed to register user via service")
			clientMessage = "Failed to register user"
		}

		respondWithError(w, statusCode, clientMessage)
		return
	}

	hlog.FromRequest(r).Info().Stringer("user_id", created.ID).Msg("User registered")
	respondWithJSON(w, http.StatusCreated, newUserResponse(created))
}

func (h *UserHandler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var requestPayload LoginRequest

	if err := decodeJSON(r, &requestPayload); err != nil {
		hlog.FromRequest(r).Warn().Err(err).Msg("Failed to decode request body")
		h.metrics.RecordAuth(metrics.OpLogin, metrics.OutcomeRejected)
		respondWithError(w, http.StatusBadRequest, fmt.Sprintf("Invalid request payload %v", err))
		return
	}

	if err := h.validate.Struct(requestPayload); err != nil {
		h.metrics.RecordAuth(metrics.OpLogin, metrics.OutcomeRejected)
		h.respondWithValidationError(w, r, err, "All input is required")
		return
	}

	loggedIn, err := h.service.Login(r.Context(), requestPayload.Email, requestPayload.Password)
	h.metrics.RecordAuth(metrics.OpLogin, outcomeOf(err))
	if err != nil {
		statusCode := mapErrorToStatusCode(err)

		var clientMessage string
		switch {
		case errors.Is(err, user.ErrInvalidCredentials):
			clientMessage = "Invalid Credentials"
		case errors.Is(err, user.ErrValidation):
			clientMessage = "All input is required"
		default:
			hlog.FromRequest(r).Error().Err(err).Msg("Failed to log in via service")
			clientMessage = "Failed to log in"
		}

		respondWithError(w, statusCode, clientMessage)
		return
	}

	hlog.FromRequest(r).Info().Stringer("user_id", loggedIn.ID).Msg("User logged in")
	respondWithJSON(w, http.StatusOK, newUserResponse(loggedIn))
}

func (h *UserHandler) handleLogout(w http.ResponseWriter, r *http.Request) {
	current, ok := UserFromContext(r.Context())
	if !ok {
		h.metrics.RecordAuth(metrics.OpLogout, metrics.OutcomeRejected)
		respondWithError(w, http.StatusUnauthorized, "A token is required for authentication")
		return
	}

	loggedOut, err := h.service.Logout(r.Context(), current)
	h.metrics.RecordAuth(metrics.OpLogout, outcomeOf(err))
	if err != nil {
		if errors.Is(err, user.ErrUnauthorized) {
			respondWithError(w, http.StatusUnauthorized, "Invalid Token")
			return
		}
		hlog.FromRequest(r).Error().Err(err).Stringer("user_id", current.ID).Msg("Failed to log out via service")
		respondWithError(w, mapErrorToStatusCode(err), "Failed to log out")
		return
	}

	hlog.FromRequest(r).Info().Stringer("user_id", loggedOut.ID).Msg("User logged out")
	respondWithJSON(w, http.StatusOK, newUserResponse(loggedOut))
}

func (h *UserHandler) respondWithValidationError(w http.ResponseWriter, r *http.Request, err error, message string) {
	var validationErrors validator.ValidationErrors
	if errors.As(err, &validationErrors) {
		respondWithJSON(w, http.StatusBadRequest, ValidationErrorResponse{
			Error:   message,
			Details: formatValidationErrors(validationErrors),
		})
		return
	}

	hlog.FromRequest(r).Error().Err(err).Type("validation_error_type", err).Msg("Unexpected error type during validation")
	respondWithError(w, http.StatusInternalServerError, "Internal validation error")
}

// decodeJSON reads a single JSON object. Fields the request type does not
// name, such as a body token meant for the gate, are ignored.
func decodeJSON(r *http.Request, dst any) error {
	return json.NewDecoder(r.Body).Decode(dst)
}
