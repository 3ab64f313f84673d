package hook

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRefUpdates(t *testing.T) {
	in := "aaa bbb refs/heads/main\nbroken line\nccc ddd refs/heads/dev\n"
	updates, err := parseRefUpdates(strings.NewReader(in))
	require.NoError(t, err)
	assert.Equal(t, []refUpdate{
		{Old: "aaa", New: "bbb", Ref: "refs/heads/main"},
		{Old: "ccc", New: "ddd", Ref: "refs/heads/dev"},
	}, updates)
}

func TestTriggerDeployment(t *testing.T) {
	var got deployRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/deployments", r.URL.Path)
		assert.Equal(t, "Bearer tok", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"deployment_id":"7"}`))
	}))
	defer srv.Close()

	id, err := triggerDeployment(context.Background(), srv.Client(), srv.URL, "tok", deployRequest{ProjectID: "1", ServerID: "2", Branch: "main"})
	require.NoError(t, err)
	assert.Equal(t, "7", id)
	assert.Equal(t, "1", got.ProjectID)
	assert.Equal(t, "2", got.ServerID)
}

func TestTriggerDeployment_Rejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "project not found", http.StatusNotFound)
	}))
	defer srv.Close()

	_, err := triggerDeployment(context.Background(), srv.Client(), srv.URL+"/", "", deployRequest{ProjectID: "9", ServerID: "1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
	assert.Contains(t, err.Error(), "project not found")
}
