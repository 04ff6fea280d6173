package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quoram/sentryflow/pkg/cluster"
)

func TestDemoBackendHandlerEchoesPath(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/hello", nil)
	w := httptest.NewRecorder()

	demoBackendHandler(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "/hello", body["path"])
}

type emptyFeatureSource struct{}

func (emptyFeatureSource) Snapshot() []cluster.Features { return nil }

func TestClusterDebugHandlerReturnsEmptyBeforeFirstRun(t *testing.T) {
	engine := cluster.New(cluster.DefaultOptions(), emptyFeatureSource{})
	handler := clusterDebugHandler(engine)

	req := httptest.NewRequest(http.MethodGet, "/debug/clusters", nil)
	w := httptest.NewRecorder()
	handler(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.EqualValues(t, 0, body["cycle_seq"])
}
