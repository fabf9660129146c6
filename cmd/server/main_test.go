package main

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"expense-api/internal/auth"
	"expense-api/internal/handlers"
	"expense-api/internal/storage"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSetupRouter(t *testing.T) {
	// Setup dependencies
	db, err := storage.NewDB(":memory:")
	require.NoError(t, err, "failed to create database")
	defer db.Close()

	tokens := auth.NewTokenService([]byte("test-secret"), time.Hour)
	h := handlers.NewHandlers(db, tokens)
	router := setupRouter(h)

	// Verify routes
	tests := []struct {
		name       string
		method     string
		path       string
		wantStatus int
	}{
		{
			name:       "Health check is open",
			method:     "GET",
			path:       "/healthz",
			wantStatus: http.StatusOK,
		},
		{
			name:       "List expenses requires auth",
			method:     "GET",
			path:       "/expenses",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "Current user requires auth",
			method:     "GET",
			path:       "/users/me",
			wantStatus: http.StatusUnauthorized,
		},
		{
			name:       "Register rejects empty body",
			method:     "POST",
			path:       "/users/register",
			wantStatus: http.StatusBadRequest,
		},
		{
			name:       "Unknown route",
			method:     "GET",
			path:       "/nope",
			wantStatus: http.StatusNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, http.NoBody)
			w := httptest.NewRecorder()

			router.ServeHTTP(w, req)

			assert.Equal(t, tt.wantStatus, w.Code,
				"%s %s returned unexpected status", tt.method, tt.path)
		})
	}
}

func TestGetenv(t *testing.T) {
	t.Setenv("EXPENSE_API_TEST_KEY", "value")
	assert.Equal(t, "value", getenv("EXPENSE_API_TEST_KEY", "fallback"))
	assert.Equal(t, "fallback", getenv("EXPENSE_API_TEST_MISSING", "fallback"))
}
