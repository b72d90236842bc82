package main

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dharsanguruparan/InvoiceDrop/internal/model"
)

func TestParseAdjustments(t *testing.T) {
	adj, err := parseAdjustments([]string{"f1=30.00", "f2=22,65"})
	require.NoError(t, err)
	assert.Equal(t, model.Adjustments{"f1": "30.00", "f2": "22,65"}, adj)

	_, err = parseAdjustments([]string{"f1"})
	assert.Error(t, err)
	_, err = parseAdjustments([]string{"=5"})
	assert.Error(t, err)

	adj, err = parseAdjustments(nil)
	require.NoError(t, err)
	assert.Nil(t, adj)
}

func TestClientDecodesEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		if r.URL.Path == "/batches/missing" {
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"success":false,"error":{"code":"NOT_FOUND","message":"batch missing: batch not found"}}`))
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"batch":{"id":"b1","status":"completed","total_files":2,"processed_files":2}}}`))
	}))
	defer srv.Close()
	apiURL = srv.URL

	var state model.BatchState
	require.NoError(t, newClient().call(context.Background(), http.MethodGet, "/batches/b1", nil, "", &state))
	assert.Equal(t, model.BatchCompleted, state.Batch.Status)
	assert.Equal(t, 2, state.Batch.TotalFiles)

	err := newClient().call(context.Background(), http.MethodGet, "/batches/missing", nil, "", &state)
	var apiErr *apiError
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, http.StatusNotFound, apiErr.Status)
	assert.Equal(t, "NOT_FOUND", apiErr.Code)
}

func TestStackLogsFlags(t *testing.T) {
	root := newRootCommand()
	logs, _, err := root.Find([]string{"stack", "logs"})
	require.NoError(t, err)

	require.NotPanics(t, func() {
		require.NoError(t, logs.ParseFlags([]string{"--follow", "-f", "deploy/compose.yml"}))
	})
	follow, err := logs.Flags().GetBool("follow")
	require.NoError(t, err)
	assert.True(t, follow)
	assert.Equal(t, "deploy/compose.yml", composeFile)
}
