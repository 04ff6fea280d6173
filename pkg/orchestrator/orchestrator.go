// Package orchestrator implements the §4.5 wave scheduler: the component
// that owns a request's Blackboard, runs the detector catalog to
// completion (or deadline), and hands the resulting ledger to the
// aggregator and action policy. It is the one place detectors, the
// reputation/Markov/cluster feedback loops, and the learning bus meet.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	svcerrors "github.com/quoram/sentryflow/infrastructure/errors"
	"github.com/quoram/sentryflow/infrastructure/logging"
	"github.com/quoram/sentryflow/infrastructure/metrics"
	"github.com/quoram/sentryflow/pkg/aggregator"
	"github.com/quoram/sentryflow/pkg/behavior"
	"github.com/quoram/sentryflow/pkg/blackboard"
	"github.com/quoram/sentryflow/pkg/cluster"
	"github.com/quoram/sentryflow/pkg/detectors"
	"github.com/quoram/sentryflow/pkg/learning"
	"github.com/quoram/sentryflow/pkg/policy"
	"github.com/quoram/sentryflow/pkg/population"
	"github.com/quoram/sentryflow/pkg/response"
)

// defaultHighConfidenceThreshold is the bot-probability cutoff above which
// a FullDetection event is mirrored as a HighConfidenceDetection, per
// §4.5 step 4.
const defaultHighConfidenceThreshold = 0.85

// Config wires an Orchestrator. Detectors may be supplied in any order;
// New groups them into waves by Priority().
type Config struct {
	Detectors    []detectors.Detector
	Ruleset      policy.Ruleset
	AggOpts      aggregator.Options
	SoftDeadline time.Duration
	HardDeadline time.Duration

	Bus     *learning.Bus
	Logger  *logging.Logger
	Metrics *metrics.Metrics

	// Behavior and Population, when both set, let the orchestrator keep the
	// cluster engine's feature population current after every request.
	// Either may be nil to disable the clustering feedback loop entirely.
	Behavior   *behavior.Store
	Population *population.Registry

	HighConfidenceThreshold float64
}

// Orchestrator runs the detector catalog against a single request's
// Blackboard. One Orchestrator serves every request; each Detect call
// builds its own Blackboard, so the orchestrator itself holds no
// per-request state.
type Orchestrator struct {
	byWave     map[int][]detectors.Detector
	waveOrder  []int
	ruleset    policy.Ruleset
	aggOpts    aggregator.Options
	soft, hard time.Duration

	bus     *learning.Bus
	logger  *logging.Logger
	metrics *metrics.Metrics

	behavior   *behavior.Store
	population *population.Registry

	highConfidenceThreshold float64
}

// New groups cfg.Detectors into priority waves and returns a ready
// Orchestrator.
func New(cfg Config) *Orchestrator {
	o := &Orchestrator{
		byWave:                  make(map[int][]detectors.Detector),
		ruleset:                 cfg.Ruleset,
		aggOpts:                 cfg.AggOpts,
		soft:                    cfg.SoftDeadline,
		hard:                    cfg.HardDeadline,
		bus:                     cfg.Bus,
		logger:                  cfg.Logger,
		metrics:                 cfg.Metrics,
		behavior:                cfg.Behavior,
		population:              cfg.Population,
		highConfidenceThreshold: cfg.HighConfidenceThreshold,
	}
	if o.highConfidenceThreshold <= 0 {
		o.highConfidenceThreshold = defaultHighConfidenceThreshold
	}
	if o.soft <= 0 {
		o.soft = 100 * time.Millisecond
	}
	if o.hard <= 0 {
		o.hard = 500 * time.Millisecond
	}

	for _, d := range cfg.Detectors {
		o.byWave[d.Priority()] = append(o.byWave[d.Priority()], d)
	}
	for wave := range o.byWave {
		o.waveOrder = append(o.waveOrder, wave)
	}
	sort.Ints(o.waveOrder)
	return o
}

// Result is everything a host integration needs to respond to one request.
type Result struct {
	RequestID  string
	Evidence   aggregator.AggregatedEvidence
	Action     policy.Action
	ActionRule string
	Response   response.AnalysisContext

	Elapsed               time.Duration
	DroppedSignals        int
	DroppedContributions  int
}

// detectorRun is one wave member's outcome, collected before being applied
// to the Blackboard sorted by (priority, name); the order in which the
// wave's detectors completed is not recorded.
type detectorRun struct {
	detector detectors.Detector
	result   blackboard.ContributeResult
	err      error
}

// Detect runs the full detector catalog against req and returns the final
// verdict and policy decision. It never returns a non-nil error for
// ordinary detection outcomes — detector failures are absorbed into the
// Blackboard's Failed state and contribute nothing, per the
// failure-semantics rule in §4.4; a failed non-optional detector also
// forces the RiskUnknown / LogOnly fallback below.
func (o *Orchestrator) Detect(ctx context.Context, req *blackboard.RequestSnapshot) (Result, error) {
	requestID := uuid.New().String()
	bb := blackboard.New(requestID)

	hardCtx, cancel := context.WithTimeout(ctx, o.hard)
	defer cancel()
	softDeadlineAt := time.Now().Add(o.soft)

	earlyExit := false
	nonOptionalFailure := false
	for _, wave := range o.waveOrder {
		if earlyExit {
			break
		}
		if hardCtx.Err() != nil {
			o.skipRemaining(bb, wave)
			break
		}

		softExceeded := time.Now().After(softDeadlineAt)
		eligible := o.eligibleInWave(bb, wave, softExceeded)
		if len(eligible) == 0 {
			continue
		}

		runs := o.runWave(hardCtx, req, bb, eligible)
		sort.SliceStable(runs, func(i, j int) bool {
			if runs[i].detector.Priority() != runs[j].detector.Priority() {
				return runs[i].detector.Priority() < runs[j].detector.Priority()
			}
			return runs[i].detector.Name() < runs[j].detector.Name()
		})

		for _, r := range runs {
			name := r.detector.Name()
			if r.err != nil {
				bb.MarkFailed(name)
				var svcErr *svcerrors.ServiceError
				if errors.As(r.err, &svcErr) && svcErr.Code == svcerrors.ErrCodeDetectorTimeout {
					bb.MarkState(name, blackboard.StateTimedOut)
				}
				if !r.detector.IsOptional() {
					nonOptionalFailure = true
				}
				continue
			}

			delta := o.predictedRiskDelta(bb, r.result)
			bb.Apply(name, r.result, delta)

			for _, c := range r.result.Contributions {
				if c.BotType == blackboard.BotTypeVerifiedBot && c.Whitelisted {
					earlyExit = true
				}
			}
		}

		if earlyExit {
			break
		}
	}

	ledger := bb.Contributions()
	aggStart := time.Now()
	evidence := aggregator.Aggregate(ledger, o.aggOpts)
	aggDuration := time.Since(aggStart)

	var action policy.Action
	var ruleName string
	if nonOptionalFailure {
		// A non-optional detector faulted: whatever the surviving
		// detectors produced isn't trustworthy enough to act on, per
		// §4.4/§7's failure-semantics rule. Force the safe default
		// rather than let the ruleset see a partial ledger.
		evidence.RiskBand = blackboard.RiskUnknown
		evidence.PrimaryBotType = blackboard.BotTypeUnknown
		evidence.PrimaryBotName = ""
		action = policy.Action{Kind: policy.ActionLogOnly}
		ruleName = "non-optional-detector-failed"
	} else {
		actionInput := policy.InputFromEvidence(evidence, req.Method, req.NormalizedPath)
		action, ruleName = o.ruleset.Evaluate(actionInput)
	}

	if o.metrics != nil {
		o.metrics.RecordVerdict(string(evidence.RiskBand), string(action.Kind), aggDuration)
	}
	if o.logger != nil {
		o.logger.LogVerdict(ctx, requestID, evidence.BotProbability, string(evidence.RiskBand), string(action.Kind))
	}

	signalsSnap := bb.SignalsSnapshot()
	hook := deriveResponseHook(signalsSnap, evidence)

	sigID := detectors.RequestSignatureID(req)
	o.publishLearningEvents(requestID, sigID, ledger, evidence, signalsSnap)

	if o.behavior != nil && o.population != nil {
		o.updatePopulation(sigID, signalsSnap, evidence.BotProbability)
	}

	droppedSignals, droppedContribs := bb.Dropped()
	if (droppedSignals > 0 || droppedContribs > 0) && o.logger != nil {
		o.logger.WithFields(map[string]interface{}{
			"request_id":            requestID,
			"dropped_signals":       droppedSignals,
			"dropped_contributions": droppedContribs,
		}).Warn("blackboard resource ceiling reached")
	}

	return Result{
		RequestID:            requestID,
		Evidence:             evidence,
		Action:               action,
		ActionRule:           ruleName,
		Response:             hook,
		Elapsed:              bb.Elapsed(),
		DroppedSignals:       droppedSignals,
		DroppedContributions: droppedContribs,
	}, nil
}

// eligibleInWave returns the wave's detectors that are enabled and whose
// trigger conditions are already satisfied by the signals published by
// earlier waves, marking every detector the wave will not run as Skipped.
func (o *Orchestrator) eligibleInWave(bb *blackboard.Blackboard, wave int, softExceeded bool) []detectors.Detector {
	group := o.byWave[wave]
	eligible := make([]detectors.Detector, 0, len(group))
	for _, d := range group {
		name := d.Name()
		if !d.IsEnabled() {
			bb.MarkState(name, blackboard.StateSkipped)
			continue
		}
		if softExceeded {
			bb.MarkState(name, blackboard.StateSkipped)
			continue
		}
		triggers := d.TriggerConditions()
		if len(triggers) > 0 {
			bb.MarkState(name, blackboard.StateWaitingForTrigger)
		}
		signals := bb.SignalsSnapshot()
		if !blackboard.EvaluateTriggers(triggers, signals, bb.CompletedCount(), bb.CurrentRiskScore()) {
			bb.MarkState(name, blackboard.StateSkipped)
			continue
		}
		eligible = append(eligible, d)
	}
	return eligible
}

// runWave executes every eligible detector in the wave concurrently,
// bounding each by its own ExecutionTimeout (itself bounded by the
// already-running hard deadline), and waits for all of them to finish or
// time out before returning.
func (o *Orchestrator) runWave(hardCtx context.Context, req *blackboard.RequestSnapshot, bb *blackboard.Blackboard, eligible []detectors.Detector) []detectorRun {
	runs := make([]detectorRun, len(eligible))
	var wg sync.WaitGroup
	for i, d := range eligible {
		bb.MarkState(d.Name(), blackboard.StateRunning)
		wg.Add(1)
		go func(i int, d detectors.Detector) {
			defer wg.Done()

			dctx := hardCtx
			if timeout := d.ExecutionTimeout(); timeout > 0 {
				var dcancel context.CancelFunc
				dctx, dcancel = context.WithTimeout(hardCtx, timeout)
				defer dcancel()
			}

			start := time.Now()
			signals := bb.SignalsSnapshot()
			result, err := d.Contribute(dctx, req, signals)
			duration := time.Since(start)

			outcome := "success"
			if err != nil {
				if errors.Is(err, context.DeadlineExceeded) {
					outcome = "timed_out"
					err = svcerrors.DetectorTimeout(d.Name())
				} else {
					outcome = "failed"
					err = svcerrors.DetectorFault(d.Name(), err)
				}
			}
			if o.metrics != nil {
				o.metrics.RecordDetectorRun(d.Name(), outcome, duration)
			}
			if o.logger != nil {
				o.logger.LogDetectorRun(hardCtx, d.Name(), outcome, duration, err)
			}

			runs[i] = detectorRun{detector: d, result: result, err: err}
		}(i, d)
	}
	wg.Wait()
	return runs
}

// predictedRiskDelta computes the riskDelta Blackboard.Apply expects: the
// change in overall bot probability a full re-aggregation would produce if
// this detector's contributions were folded into the current ledger. The
// Blackboard stores a running risk score rather than re-deriving it from
// the full ledger on every read, so the orchestrator — the only writer —
// is responsible for keeping the two in step.
func (o *Orchestrator) predictedRiskDelta(bb *blackboard.Blackboard, result blackboard.ContributeResult) float64 {
	if len(result.Contributions) == 0 {
		return 0
	}
	before := bb.CurrentRiskScore()
	current := bb.Contributions()
	candidate := make([]blackboard.DetectionContribution, 0, len(current)+len(result.Contributions))
	candidate = append(candidate, current...)
	candidate = append(candidate, result.Contributions...)
	after := aggregator.Aggregate(candidate, o.aggOpts).BotProbability
	return after - before
}

// skipRemaining marks every not-yet-run detector from fromWave onward as
// Skipped, used when the hard deadline is hit mid-schedule.
func (o *Orchestrator) skipRemaining(bb *blackboard.Blackboard, fromWave int) {
	for _, wave := range o.waveOrder {
		if wave < fromWave {
			continue
		}
		for _, d := range o.byWave[wave] {
			if bb.State(d.Name()) == blackboard.StatePending {
				bb.MarkState(d.Name(), blackboard.StateSkipped)
			}
		}
	}
}

// deriveResponseHook builds the optional response-analysis request from
// the final signal set, rather than threading an AnalysisContext through
// every detector's Contribute signature: the set of conditions worth a
// second look at the outbound response (a honeypot hit, a severe
// cross-signal inconsistency, a high-risk cluster, a drifting path
// signature) is already fully expressed in published signals by the time
// detection finishes.
func deriveResponseHook(signals map[blackboard.SignalKey]blackboard.SignalValue, evidence aggregator.AggregatedEvidence) response.AnalysisContext {
	var hook response.AnalysisContext

	if v, ok := signals[blackboard.SignalHoneypotHit]; ok && v.Kind == blackboard.KindBool && v.Bool {
		hook.Request(response.ModeAsync, response.ThoroughnessDeep, 100, false, "honeypot.hit", "true")
	}
	if v, ok := signals[blackboard.SignalInconsistencyScore]; ok && v.Kind == blackboard.KindNumber && v.Number >= 0.6 {
		hook.Request(response.ModeAsync, response.ThoroughnessThorough, 70, false, "inconsistency.score", fmt.Sprintf("%.2f", v.Number))
	}
	if v, ok := signals[blackboard.SignalClusterAvgBotProb]; ok && v.Kind == blackboard.KindNumber && v.Number >= 0.7 {
		hook.Request(response.ModeAsync, response.ThoroughnessStandard, 50, false, "cluster.avg_bot_prob", fmt.Sprintf("%.2f", v.Number))
	}
	if v, ok := signals[blackboard.SignalMarkovHumanDrift]; ok && v.Kind == blackboard.KindNumber && v.Number >= 0.6 {
		hook.Request(response.ModeInline, response.ThoroughnessStandard, 60, false, "markov.human_drift", fmt.Sprintf("%.2f", v.Number))
	}
	if evidence.RiskBand == blackboard.RiskVeryHigh {
		hook.Request(response.ModeInline, response.ThoroughnessDeep, 90, true, "risk_band", string(evidence.RiskBand))
	}
	return hook
}

// publishLearningEvents emits the learning-bus events this request's
// outcome warrants: a FullDetection event always, a mirrored
// HighConfidenceDetection above the threshold, and InconsistencyDetected/
// FastPathDriftDetected events when the corresponding signals crossed
// their own notable thresholds. Publish never blocks, so this never adds
// latency to the response.
func (o *Orchestrator) publishLearningEvents(requestID, sigID string, ledger []blackboard.DetectionContribution, evidence aggregator.AggregatedEvidence, signals map[blackboard.SignalKey]blackboard.SignalValue) {
	if o.bus == nil {
		return
	}
	now := time.Now()

	full := learning.Event{
		Kind:           learning.EventFullDetection,
		RequestID:      requestID,
		At:             now,
		Ledger:         ledger,
		BotProbability: evidence.BotProbability,
		Confidence:     evidence.Confidence,
		SignatureID:    sigID,
	}
	o.publish(full)

	if evidence.BotProbability >= o.highConfidenceThreshold {
		hc := full
		hc.Kind = learning.EventHighConfidenceDetection
		o.publish(hc)
	}

	if v, ok := signals[blackboard.SignalInconsistencyScore]; ok && v.Kind == blackboard.KindNumber && v.Number >= 0.6 {
		var reasons []string
		if rv, ok := signals[blackboard.SignalInconsistencyReasons]; ok && rv.Kind == blackboard.KindRecord {
			if joined, ok := rv.Record["reasons"]; ok {
				reasons = strings.Split(joined, "; ")
			}
		}
		o.publish(learning.Event{
			Kind:        learning.EventInconsistencyDetected,
			RequestID:   requestID,
			At:          now,
			SignatureID: sigID,
			Reasons:     reasons,
			Metric:      v.Number,
		})
	}

	if v, ok := signals[blackboard.SignalMarkovSelfDrift]; ok && v.Kind == blackboard.KindNumber && v.Number >= 0.6 {
		o.publish(learning.Event{
			Kind:        learning.EventFastPathDriftDetected,
			RequestID:   requestID,
			At:          now,
			SignatureID: sigID,
			Metric:      v.Number,
		})
	}
}

func (o *Orchestrator) publish(ev learning.Event) {
	o.bus.Publish(ev)
	if o.metrics != nil {
		o.metrics.RecordLearningEventPublished(string(ev.Kind))
	}
}

// updatePopulation folds this request's derived signals into the cluster
// engine's feature population, blending the instantaneous bot probability
// into the signature's running average rather than overwriting it.
func (o *Orchestrator) updatePopulation(sigID string, signals map[blackboard.SignalKey]blackboard.SignalValue, botProb float64) {
	summary := o.behavior.Summarize(sigID)
	spectralEntropy, harmonicRatio, peakToAverage, dominantFreq := cluster.SpectralFeatures(summary.InterArrivals)

	f := cluster.Features{
		SignatureID:      sigID,
		TimingRegularity: summary.TimingRegularity,
		RequestRate:      summary.RequestRate,
		PathDiversity:    summary.PathDiversity,
		PathEntropy:      summary.PathEntropy,
		SpectralEntropy:  spectralEntropy,
		HarmonicRatio:    harmonicRatio,
		PeakToAverage:    peakToAverage,
		DominantFreqHz:   dominantFreq,
	}

	if v, ok := signals[blackboard.SignalIPCountry]; ok && v.Kind == blackboard.KindString {
		f.Country = v.String
	}
	if v, ok := signals[blackboard.SignalIPASN]; ok && v.Kind == blackboard.KindString {
		f.ASN = v.String
	}
	if v, ok := signals[blackboard.SignalIPIsDatacenter]; ok && v.Kind == blackboard.KindBool {
		f.IsDatacenter = v.Bool
	}
	if v, ok := signals[blackboard.SignalMarkovSelfDrift]; ok && v.Kind == blackboard.KindNumber {
		f.SelfDrift = v.Number
	}
	if v, ok := signals[blackboard.SignalMarkovHumanDrift]; ok && v.Kind == blackboard.KindNumber {
		f.HumanDrift = v.Number
	}
	if v, ok := signals[blackboard.SignalMarkovLoopScore]; ok && v.Kind == blackboard.KindNumber {
		f.LoopScore = v.Number
	}
	if v, ok := signals[blackboard.SignalMarkovSequenceSurprise]; ok && v.Kind == blackboard.KindNumber {
		f.SequenceSurprise = v.Number
	}
	if v, ok := signals[blackboard.SignalMarkovNovelty]; ok && v.Kind == blackboard.KindNumber {
		f.TransitionNovelty = v.Number
	}
	if v, ok := signals[blackboard.SignalMarkovEntropyDelta]; ok && v.Kind == blackboard.KindNumber {
		f.EntropyDelta = v.Number
	}

	o.population.Observe(sigID, f, botProb, time.Now())
}
