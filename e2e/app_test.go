package e2e

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type apiClient struct {
	t     *testing.T
	token string
}

func (c *apiClient) do(method, path string, body any) (int, []byte) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, appURL+path, &buf)
	require.NoError(c.t, err)
	req.Header.Set("Content-Type", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(c.t, err)
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	require.NoError(c.t, err)
	return resp.StatusCode, data
}

// signUp registers and logs in a fresh user, returning a client that sends
// its token on every request.
func signUp(t *testing.T, username string) *apiClient {
	t.Helper()
	c := &apiClient{t: t}
	creds := map[string]string{"username": username, "password": "e2e-password"}

	status, body := c.do("POST", "/users/register", creds)
	require.Equal(t, http.StatusCreated, status, "register: %s", body)

	status, body = c.do("POST", "/users/login", creds)
	require.Equal(t, http.StatusOK, status, "login: %s", body)

	var tok struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(body, &tok))
	require.NotEmpty(t, tok.AccessToken)
	c.token = tok.AccessToken
	return c
}

type expenseDTO struct {
	ID          int64  `json:"id"`
	UserID      int64  `json:"user_id"`
	AmountCents int64  `json:"amount_cents"`
	Category    string `json:"category"`
	Description string `json:"description"`
}

func TestFullExpenseLifecycle(t *testing.T) {
	c := signUp(t, "lifecycle_user")

	// Who am I?
	status, body := c.do("GET", "/users/me", nil)
	require.Equal(t, http.StatusOK, status)
	var me struct {
		Username string `json:"username"`
	}
	require.NoError(t, json.Unmarshal(body, &me))
	assert.Equal(t, "lifecycle_user", me.Username)

	// Create
	status, body = c.do("POST", "/expenses", map[string]any{
		"amount_cents": 1299,
		"category":     "food",
		"description":  "burrito",
	})
	require.Equal(t, http.StatusCreated, status, "create: %s", body)
	var created expenseDTO
	require.NoError(t, json.Unmarshal(body, &created))
	assert.Equal(t, int64(1299), created.AmountCents)

	// Read back
	status, body = c.do("GET", fmt.Sprintf("/expenses/%d", created.ID), nil)
	require.Equal(t, http.StatusOK, status)
	var fetched expenseDTO
	require.NoError(t, json.Unmarshal(body, &fetched))
	assert.Equal(t, created, fetched)

	// Update
	status, body = c.do("PUT", fmt.Sprintf("/expenses/%d", created.ID), map[string]any{
		"amount_cents": 1499,
	})
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &fetched))
	assert.Equal(t, int64(1499), fetched.AmountCents)
	assert.Equal(t, "burrito", fetched.Description)

	// Delete
	status, _ = c.do("DELETE", fmt.Sprintf("/expenses/%d", created.ID), nil)
	require.Equal(t, http.StatusNoContent, status)

	status, _ = c.do("GET", fmt.Sprintf("/expenses/%d", created.ID), nil)
	assert.Equal(t, http.StatusNotFound, status)
}

func TestRegisterConflict(t *testing.T) {
	c := &apiClient{t: t}
	creds := map[string]string{"username": "conflict_user", "password": "e2e-password"}

	status, _ := c.do("POST", "/users/register", creds)
	require.Equal(t, http.StatusCreated, status)

	status, _ = c.do("POST", "/users/register", creds)
	assert.Equal(t, http.StatusConflict, status)
}

func TestUnauthenticatedRejected(t *testing.T) {
	c := &apiClient{t: t}

	for _, path := range []string{"/users/me", "/expenses"} {
		status, _ := c.do("GET", path, nil)
		assert.Equal(t, http.StatusUnauthorized, status, "GET %s", path)
	}

	c.token = "bogus.token.value"
	status, _ := c.do("GET", "/expenses", nil)
	assert.Equal(t, http.StatusUnauthorized, status)
}

func TestOwnershipIsolation(t *testing.T) {
	owner := signUp(t, "isolation_owner")
	intruder := signUp(t, "isolation_intruder")

	status, body := owner.do("POST", "/expenses", map[string]any{
		"amount_cents": 5000,
		"category":     "housing",
	})
	require.Equal(t, http.StatusCreated, status)
	var created expenseDTO
	require.NoError(t, json.Unmarshal(body, &created))

	status, _ = intruder.do("GET", fmt.Sprintf("/expenses/%d", created.ID), nil)
	assert.Equal(t, http.StatusNotFound, status)

	status, _ = intruder.do("DELETE", fmt.Sprintf("/expenses/%d", created.ID), nil)
	assert.Equal(t, http.StatusNotFound, status)

	// Intruder's listing never shows the owner's expense
	status, body = intruder.do("GET", "/expenses", nil)
	require.Equal(t, http.StatusOK, status)
	var list []expenseDTO
	require.NoError(t, json.Unmarshal(body, &list))
	for _, e := range list {
		assert.NotEqual(t, created.ID, e.ID)
	}
}

func TestFilteredListingAndStats(t *testing.T) {
	c := signUp(t, "filter_user")

	seed := []map[string]any{
		{"amount_cents": 1000, "category": "food", "date": "2025-01-10T09:00:00Z"},
		{"amount_cents": 2000, "category": "food", "date": "2025-01-20T09:00:00Z"},
		{"amount_cents": 2500, "category": "transport", "date": "2025-02-05T09:00:00Z"},
	}
	for _, e := range seed {
		status, body := c.do("POST", "/expenses", e)
		require.Equal(t, http.StatusCreated, status, "seed: %s", body)
	}

	var list []expenseDTO

	status, body := c.do("GET", "/expenses?category=food", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list, 2)

	status, body = c.do("GET", "/expenses?from=2025-01-01&to=2025-01-31", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list, 2)

	status, body = c.do("GET", "/expenses?limit=2", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(body, &list))
	assert.Len(t, list, 2)

	status, body = c.do("GET", "/expenses/stats", nil)
	require.Equal(t, http.StatusOK, status)
	var stats struct {
		TotalCents int64 `json:"total_cents"`
		Categories []struct {
			Category   string `json:"category"`
			TotalCents int64  `json:"total_cents"`
		} `json:"categories"`
	}
	require.NoError(t, json.Unmarshal(body, &stats))
	assert.Equal(t, int64(5500), stats.TotalCents)
	require.Len(t, stats.Categories, 2)
	assert.Equal(t, "food", stats.Categories[0].Category)
	assert.Equal(t, int64(3000), stats.Categories[0].TotalCents)
}
