package main

import (
	"net/http"

	"github.com/quoram/sentryflow/infrastructure/httputil"
	"github.com/quoram/sentryflow/pkg/cluster"
)

// demoBackendHandler stands in for whatever application the gateway
// fronts in a real deployment; it exists so the detection middleware has
// something to protect in this demo host. Non-goal per SPEC_FULL §1: the
// gateway is a detection layer, not an application server.
func demoBackendHandler(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, map[string]string{
		"message": "ok",
		"path":    r.URL.Path,
	})
}

// clusterDebugHandler exposes the cluster engine's current snapshot for
// operators; it is not part of the detection contract, only a window
// onto the engine's state for debugging adaptive-weight drift.
func clusterDebugHandler(engine *cluster.Engine) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		snap := engine.Current()
		if snap == nil {
			httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
				"cycle_seq": 0,
				"clusters":  []cluster.Cluster{},
			})
			return
		}
		httputil.WriteJSON(w, http.StatusOK, map[string]interface{}{
			"cycle_seq":       snap.CycleSeq,
			"clusters":        snap.Clusters,
			"feature_weights": snap.FeatureWeights,
			"signature_count": len(snap.BySignatureID),
		})
	}
}
