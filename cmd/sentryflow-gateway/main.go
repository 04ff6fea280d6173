// Command sentryflow-gateway is the reference host integration: it wires
// the detection orchestrator (reputation store, Markov tracker, cluster
// engine, learning bus, detector catalog, policy evaluator) into an
// ordinary net/http server and mounts DetectionMiddleware ahead of a demo
// backend handler. Everything downstream of the detection engine itself
// (dashboard UI, signature persistence, geo-IP downloaders, the holodeck
// mock-API responder) is out of scope per SPEC_FULL §1 and is not wired
// here — this binary only demonstrates the one collaborator surface the
// core subsystem actually needs: an HTTP pipeline to sit in front of.
package main

import (
	"context"
	"crypto/rand"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	svcconfig "github.com/quoram/sentryflow/infrastructure/config"
	"github.com/quoram/sentryflow/infrastructure/logging"
	"github.com/quoram/sentryflow/infrastructure/metrics"
	"github.com/quoram/sentryflow/infrastructure/middleware"
	"github.com/quoram/sentryflow/infrastructure/ratelimit"
	"github.com/quoram/sentryflow/infrastructure/resilience"
	"github.com/quoram/sentryflow/pkg/aggregator"
	"github.com/quoram/sentryflow/pkg/behavior"
	"github.com/quoram/sentryflow/pkg/cluster"
	"github.com/quoram/sentryflow/pkg/config"
	"github.com/quoram/sentryflow/pkg/detectors"
	"github.com/quoram/sentryflow/pkg/learning"
	"github.com/quoram/sentryflow/pkg/markov"
	"github.com/quoram/sentryflow/pkg/orchestrator"
	"github.com/quoram/sentryflow/pkg/policy"
	"github.com/quoram/sentryflow/pkg/population"
	"github.com/quoram/sentryflow/pkg/reputation"
	"github.com/quoram/sentryflow/pkg/version"
)

func main() {
	configPath := flag.String("config", "", "Path to configuration file (YAML); overrides CONFIG_FILE")
	flag.Parse()

	if *configPath != "" {
		os.Setenv("CONFIG_FILE", *configPath)
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	logger := logging.New("sentryflow-gateway", cfg.Logging.Level, cfg.Logging.Format)
	metricsCollector := metrics.New("sentryflow-gateway")

	detectionCfg, err := svcconfig.LoadDetectionConfig(cfg.Runtime.DetectionConfigPath)
	if err != nil {
		logger.WithError(err).Warn("detection config not found, using built-in defaults")
		detectionCfg = svcconfig.DefaultDetectionConfig()
	}
	if err := detectionCfg.Validate(); err != nil {
		// Per §7, a ConfigurationError at startup leaves detection disabled
		// rather than crashing the process that fronts it.
		logger.WithError(err).Error("invalid detection config, disabling detection")
		detectionCfg.Enabled = false
	}

	detectorsCfg, err := svcconfig.LoadDetectorsConfigFromPath(cfg.Runtime.DetectorsConfigPath)
	if err != nil {
		logger.WithError(err).Warn("detectors config not found, using built-in defaults")
		detectorsCfg = svcconfig.DefaultDetectorsConfig()
	}

	hmacKey := signatureHMACKey(cfg.Runtime.SignatureHMACKey, logger)
	detectors.SetSignatureKey(hmacKey)

	repStore := reputation.New(reputation.Options{
		UAHalfLife: time.Duration(detectionCfg.Reputation.UAHalfLifeHours) * time.Hour,
		IPHalfLife: time.Duration(detectionCfg.Reputation.IPHalfLifeHours) * time.Hour,
		SupportCap: float64(detectionCfg.Reputation.SupportCap),
	})

	pathClassifier := markov.NewClassifier(markov.DefaultClassTable)
	markovTracker := markov.New(markov.Options{
		SignatureHalfLife: time.Duration(detectionCfg.Markov.SignatureHalfLifeHours) * time.Hour,
		CohortHalfLife:    time.Duration(detectionCfg.Markov.CohortHalfLifeHours) * time.Hour,
		GlobalHalfLife:    time.Duration(detectionCfg.Markov.GlobalHalfLifeHours) * time.Hour,
		MaxEdgesPerNode:   detectionCfg.Markov.MaxEdgesPerNode,
		RecentWindow:      detectionCfg.Markov.RecentWindow,
		MaxSignatures:     50000,
	}, pathClassifier)

	behaviorStore := behavior.New(behavior.DefaultOptions())
	popRegistry := population.New(population.DefaultOptions())

	clusterEngine := cluster.New(cluster.Options{
		Interval:            time.Duration(detectionCfg.Cluster.IntervalSeconds) * time.Second,
		Resolution:          detectionCfg.Cluster.Resolution,
		SimilarityThreshold: detectionCfg.Cluster.SimilarityThreshold,
		MaxIterations:       detectionCfg.Cluster.MaxIterations,
		ChurnDelta:          25,
		Seed:                1,
	}, popRegistry)
	clusterEngine.OnWeightDrift(func(shift map[string]float64) {
		logger.WithFields(map[string]interface{}{"shift": shift}).Info("cluster adaptive weights drifted")
	})

	bus := learning.New(learning.Options{
		Capacity: detectionCfg.Learning.Capacity,
		Overflow: learning.OverflowPolicy(detectionCfg.Learning.Overflow),
	})
	consumer := learning.NewConsumer(repStore, clusterEngine, logger)

	detectorList := buildDetectors(detectorsCfg, repStore, markovTracker, behaviorStore, clusterEngine, hmacKey)

	orch := orchestrator.New(orchestrator.Config{
		Detectors:    detectorList,
		Ruleset:      policy.DefaultRuleset(),
		AggOpts:      aggregator.Options{ConfidenceScale: detectionCfg.Aggregator.ConfidenceScale},
		SoftDeadline: detectionCfg.SoftDeadline(),
		HardDeadline: detectionCfg.HardDeadline(),
		Bus:          bus,
		Logger:       logger,
		Metrics:      metricsCollector,
		Behavior:     behaviorStore,
		Population:   popRegistry,
	})

	detectMW := &DetectionMiddleware{
		Orchestrator:  orch,
		Classifier:    pathClassifier,
		SignalCapture: true,
		Logger:        logger,
	}

	ctx, cancelWorkers := context.WithCancel(context.Background())
	defer cancelWorkers()
	go runBackgroundWorkers(ctx, bus, consumer, repStore, behaviorStore, popRegistry,
		24*time.Hour, behavior.DefaultOptions().TTL, logger)
	go clusterEngine.Run(ctx)

	router := mux.NewRouter()
	router.Use(middleware.LoggingMiddleware(logger))
	router.Use(middleware.NewRecoveryMiddleware(logger).Handler)
	router.Use(middleware.MetricsMiddleware("sentryflow-gateway", metricsCollector))
	router.Use(middleware.NewBodyLimitMiddleware(1 << 20).Handler)
	router.Use(middleware.NewSecurityHeadersMiddleware(nil).Handler)
	router.Use(middleware.NewRateLimiter(cfg.Runtime.RequestsPerSecond, cfg.Runtime.Burst, logger).Handler)

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	health := middleware.NewHealthChecker(version.FullVersion())
	health.RegisterCheck("reputation_store", func() error { return nil })
	router.HandleFunc("/healthz", health.Handler()).Methods(http.MethodGet)

	router.HandleFunc("/debug/clusters", clusterDebugHandler(clusterEngine)).Methods(http.MethodGet)

	protected := router.PathPrefix("/").Subrouter()
	protected.Use(detectMW.Handler)
	protected.PathPrefix("/").HandlerFunc(demoBackendHandler)

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	server := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	shutdown := middleware.NewGracefulShutdown(server, 15*time.Second)
	shutdown.OnShutdown(cancelWorkers)
	shutdown.ListenForSignals()

	logger.Info(context.Background(), "sentryflow-gateway listening", map[string]interface{}{
		"addr":               addr,
		"detection_enabled":  detectionCfg.Enabled,
		"detectors_enabled":  detectorsCfg.EnabledDetectors(),
		"detectors_disabled": detectorsCfg.DisabledDetectors(),
	})

	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("gateway server error: %v", err)
		}
	}()

	shutdown.Wait()
	logger.Info(context.Background(), "sentryflow-gateway shut down cleanly", nil)
}

// buildDetectors assembles the full SPEC_FULL §4.4 catalog from the
// detectors.yaml enabled/timeout settings, wiring each detector to the
// cross-request singleton it reads or writes.
func buildDetectors(cfg *svcconfig.DetectorsConfig, repStore *reputation.Store, tracker *markov.Tracker, behaviorStore *behavior.Store, clusterEngine *cluster.Engine, hmacKey []byte) []detectors.Detector {
	timeout := func(id string, fallback time.Duration) time.Duration {
		if s := cfg.GetSettings(id); s != nil && s.TimeoutMS > 0 {
			return time.Duration(s.TimeoutMS) * time.Millisecond
		}
		return fallback
	}
	enabled := func(id string) bool { return cfg.IsEnabled(id) }

	breaker := resilience.New(resilience.DefaultConfig())
	llmClient := buildLLMClient(cfg)

	return []detectors.Detector{
		detectors.NewUserAgentDetector(enabled("useragent"), timeout("useragent", 5*time.Millisecond), detectors.DefaultKnownBots),
		detectors.NewHeaderDetector(enabled("header"), timeout("header", 5*time.Millisecond)),
		detectors.NewIPDetector(enabled("ip"), timeout("ip", 10*time.Millisecond), detectors.DefaultDatacenterRanges),
		detectors.NewTLSDetector(enabled("tls_ja3"), timeout("tls_ja3", 5*time.Millisecond), detectors.DefaultKnownJA3),
		detectors.NewClientSideDetector(enabled("clientside"), timeout("clientside", 50*time.Millisecond), ""),
		detectors.NewHoneypotDetector(enabled("honeypot"), timeout("honeypot", 5*time.Millisecond), detectors.DefaultTrapPaths, detectors.DefaultTrapFields),
		detectors.NewBehavioralDetector(enabled("behavioral"), timeout("behavioral", 20*time.Millisecond), behaviorStore),
		detectors.NewMarkovDetector(enabled("markov"), timeout("markov", 15*time.Millisecond), tracker),
		detectors.NewClusterDetector(enabled("cluster"), timeout("cluster", 10*time.Millisecond), clusterEngine),
		detectors.NewReputationDetector(enabled("reputation"), timeout("reputation", 10*time.Millisecond), repStore, hmacKey),
		detectors.NewInconsistencyDetector(enabled("inconsistency"), timeout("inconsistency", 5*time.Millisecond)),
		detectors.NewHeuristicDetector(enabled("heuristic"), timeout("heuristic", 25*time.Millisecond), heuristicScript(cfg)),
		detectors.NewLLMDetector(enabled("llm"), timeout("llm", 800*time.Millisecond), llmClient, breaker),
	}
}

// buildLLMClient constructs the LLM detector's external collaborator from
// its extra config (endpoint URL + outbound rate limit), or nil when no
// endpoint is configured — a disabled or unconfigured detector then simply
// contributes nothing once triggered, per the failure-semantics rule.
func buildLLMClient(cfg *svcconfig.DetectorsConfig) detectors.LLMClient {
	settings := cfg.GetSettings("llm")
	if settings == nil || settings.Extra == nil {
		return nil
	}
	endpoint, _ := settings.Extra["endpoint"].(string)
	if endpoint == "" {
		return nil
	}
	rps := 5.0
	if v, ok := settings.Extra["requests_per_second"].(float64); ok && v > 0 {
		rps = v
	}
	return detectors.NewHTTPLLMClient(endpoint, ratelimit.RateLimitConfig{
		RequestsPerSecond: rps,
		Burst:             int(rps * 2),
		Window:            time.Second,
	})
}

// heuristicScript reads an operator-supplied scoring script from the
// heuristic detector's extra config, falling back to the illustrative
// default when none is configured.
func heuristicScript(cfg *svcconfig.DetectorsConfig) string {
	settings := cfg.GetSettings("heuristic")
	if settings == nil || settings.Extra == nil {
		return ""
	}
	if script, ok := settings.Extra["script"].(string); ok {
		return script
	}
	return ""
}

// signatureHMACKey resolves the key used to derive every opaque pattern/
// signature id from config, generating an ephemeral random one (and
// warning loudly) when none is configured — consistent with never letting
// a missing secret silently fall back to a predictable key.
func signatureHMACKey(configured string, logger *logging.Logger) []byte {
	if k := strings.TrimSpace(configured); k != "" {
		return []byte(k)
	}
	key := make([]byte, 32)
	if _, err := rand.Read(key); err != nil {
		logger.WithError(err).Warn("failed to generate random signature HMAC key, falling back to static dev key")
		return []byte("sentryflow-dev-signature-key")
	}
	logger.Warn(context.Background(), "SIGNATURE_HMAC_KEY not set; generated an ephemeral key for this process (pattern ids will not be stable across restarts)", nil)
	return key
}
