package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"

	"expense-api/internal/auth"
	"expense-api/internal/models"
	"expense-api/internal/storage"

	"github.com/google/uuid"
)

// Context key type to avoid collisions.
type contextKey string

// UserContextKey is the context key for the authenticated user.
const UserContextKey contextKey = "user"

// Handlers holds dependencies for HTTP handlers.
type Handlers struct {
	db     *storage.DB
	tokens *auth.TokenService
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(db *storage.DB, tokens *auth.TokenService) *Handlers {
	return &Handlers{db: db, tokens: tokens}
}

// GetUserFromContext retrieves the authenticated user from request context.
func GetUserFromContext(r *http.Request) *models.User {
	if user, ok := r.Context().Value(UserContextKey).(*models.User); ok {
		return user
	}
	return nil
}

// AuthMiddleware wraps handlers to require a valid bearer token. The
// resolved user is attached to the request context before the handler runs.
func (h *Handlers) AuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r)
		if !ok {
			w.Header().Set("WWW-Authenticate", "Bearer")
			errorJSON(w, http.StatusUnauthorized, "missing bearer token")
			return
		}

		userID, err := h.tokens.Validate(token)
		if err != nil {
			w.Header().Set("WWW-Authenticate", "Bearer")
			errorJSON(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		user, err := h.db.GetUserByID(userID)
		if err != nil {
			// Token signed for a user that no longer resolves
			w.Header().Set("WWW-Authenticate", "Bearer")
			errorJSON(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), UserContextKey, user)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", false
	}
	return token, true
}

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("Failed to encode response: %v", err)
	}
}

func errorJSON(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func validationJSON(w http.ResponseWriter, fields map[string]string) {
	writeJSON(w, http.StatusBadRequest, map[string]any{
		"error":  "validation failed",
		"fields": fields,
	})
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

// decodeError writes the error response for a request body that failed to
// decode. Type mismatches and bad timestamps get field-level detail;
// anything else is plain malformed JSON.
func decodeError(w http.ResponseWriter, err error) {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) && typeErr.Field != "" {
		validationJSON(w, map[string]string{typeErr.Field: "is of the wrong type"})
		return
	}
	var timeErr *time.ParseError
	if errors.As(err, &timeErr) {
		// date is the only timestamp accepted in any request body
		validationJSON(w, map[string]string{"date": "must be an RFC 3339 timestamp"})
		return
	}
	errorJSON(w, http.StatusBadRequest, "invalid json")
}

// --- User endpoints ---

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (c *credentialsRequest) validate() map[string]string {
	fields := map[string]string{}
	c.Username = strings.TrimSpace(c.Username)
	if len(c.Username) < 3 || len(c.Username) > 64 {
		fields["username"] = "must be between 3 and 64 characters"
	}
	if c.Password == "" {
		fields["password"] = "is required"
	} else if len(c.Password) > 72 {
		// bcrypt refuses anything past 72 bytes
		fields["password"] = "must be at most 72 bytes"
	}
	return fields
}

// Register creates a new user account.
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var in credentialsRequest
	if err := decodeJSON(r, &in); err != nil {
		decodeError(w, err)
		return
	}
	if fields := in.validate(); len(fields) > 0 {
		validationJSON(w, fields)
		return
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		log.Printf("Failed to hash password: %v", err)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}

	user, err := h.db.CreateUser(in.Username, hash)
	if err != nil {
		if errors.Is(err, storage.ErrDuplicate) {
			errorJSON(w, http.StatusConflict, "username already registered")
			return
		}
		log.Printf("Register error: %v", err)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, user)
}

// Login verifies credentials and issues an access token. Failures never
// reveal whether the username exists.
func (h *Handlers) Login(w http.ResponseWriter, r *http.Request) {
	var in credentialsRequest
	if err := decodeJSON(r, &in); err != nil {
		decodeError(w, err)
		return
	}
	in.Username = strings.TrimSpace(in.Username)

	user, err := h.db.GetUserByUsername(in.Username)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			errorJSON(w, http.StatusUnauthorized, "invalid username or password")
			return
		}
		log.Printf("Login error: %v", err)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}
	if !auth.CheckPassword(in.Password, user.PasswordHash) {
		errorJSON(w, http.StatusUnauthorized, "invalid username or password")
		return
	}

	token, err := h.tokens.Issue(user.ID)
	if err != nil {
		log.Printf("Failed to issue token: %v", err)
		errorJSON(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, models.Token{AccessToken: token, TokenType: "bearer"})
}

// Me returns the authenticated user.
func (h *Handlers) Me(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, GetUserFromContext(r))
}

// Healthz is a liveness probe.
func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// LogMiddleware logs each request with a request ID.
func LogMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		id := uuid.NewString()
		next.ServeHTTP(w, r)
		log.Printf("[%s] %s %s (%s)", id, r.Method, r.URL.Path, time.Since(start))
	})
}
