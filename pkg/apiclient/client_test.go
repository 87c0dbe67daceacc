package apiclient

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chronolab/chronovm/pkg/governance/panel"
)

func TestNew(t *testing.T) {
	client := New("http://localhost:8080")
	assert.NotNil(t, client)
	assert.Equal(t, "http://localhost:8080", client.baseURL)
	assert.Empty(t, client.token)
}

func TestWithToken(t *testing.T) {
	client := New("http://localhost:8080")
	tokenClient := client.WithToken("test-token")

	assert.Empty(t, client.token)
	assert.Equal(t, "test-token", tokenClient.token)
	assert.Equal(t, client.baseURL, tokenClient.baseURL)
}

func TestGetLayout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/projects/proj-1/layout", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		data, _ := json.Marshal(panel.DefaultModes)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "ok",
			"data":   json.RawMessage(data),
		})
	}))
	defer server.Close()

	client := New(server.URL).WithToken("tok")
	modes, err := client.GetLayout("proj-1", "")
	require.NoError(t, err)
	assert.Equal(t, panel.Learning, modes[panel.Memory])
}

func TestDoPropagatesAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"status": "error",
			"error":  "insufficient capability",
		})
	}))
	defer server.Close()

	client := New(server.URL)
	_, err := client.GetLayout("proj-1", "")
	require.Error(t, err)

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	assert.True(t, apiErr.IsForbidden())
	assert.Equal(t, "insufficient capability", apiErr.Message)
}
