package main

import (
	"fmt"
	"net/http"
	"time"

	"github.com/quoram/sentryflow/infrastructure/logging"
	"github.com/quoram/sentryflow/pkg/detectors"
	"github.com/quoram/sentryflow/pkg/markov"
	"github.com/quoram/sentryflow/pkg/orchestrator"
	"github.com/quoram/sentryflow/pkg/policy"
)

// DetectionMiddleware is the one place the detection engine meets the
// HTTP pipeline: control flow per request is exactly §2's "middleware ->
// orchestrator.Detect(context) -> waves of detectors -> aggregator ->
// verdict in shared context -> policy evaluator -> action". Everything
// upstream of orchestrator.Detect is request-snapshot construction;
// everything downstream of the policy action is response mutation, kept
// here because it is genuinely HTTP framework glue and not part of the
// detection engine itself.
type DetectionMiddleware struct {
	Orchestrator   *orchestrator.Orchestrator
	Classifier     *markov.Classifier
	SignalCapture  bool // when true, X-Signature-ID is attached on every outcome, not only AddHeaders
	Logger         *logging.Logger
}

// Handler wraps next with bot detection. A Block/Redirect/Holodeck verdict
// short-circuits before next ever runs; a Tarpit verdict holds the request
// for its configured delay and then calls next; Allow/LogOnly/AddHeaders/
// Challenge call next straight away. On every outcome the verdict headers
// are set on the response writer before next runs, so next can read them
// from w.Header() (e.g. to render a challenge page instead of the normal
// response); the request context itself carries no verdict.
func (d *DetectionMiddleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		snap := buildSnapshot(r, d.Classifier)
		sigID := detectors.RequestSignatureID(snap)

		result, err := d.Orchestrator.Detect(r.Context(), snap)
		if err != nil {
			// Detect's public contract never returns a non-nil error for
			// ordinary detection outcomes (§4.5); surfacing one here means
			// something outside the documented contract broke. Fail open.
			if d.Logger != nil {
				d.Logger.WithError(err).Warn("detection orchestrator returned an error, failing open")
			}
			next.ServeHTTP(w, r)
			return
		}

		d.annotate(w, result, sigID)

		switch result.Action.Kind {
		case policy.ActionBlock:
			status := result.Action.BlockStatus
			if status == 0 {
				status = http.StatusForbidden
			}
			http.Error(w, "request blocked", status)
		case policy.ActionRedirect:
			http.Redirect(w, r, result.Action.RedirectURL, http.StatusFound)
		case policy.ActionHolodeck:
			// The holodeck mock-API responder is an external collaborator
			// (out of scope per SPEC_FULL §1); this gateway only dispatches
			// to whatever URL the policy configured it with.
			http.Redirect(w, r, result.Action.HolodeckURL, http.StatusTemporaryRedirect)
		case policy.ActionTarpit:
			if result.Action.TarpitDelayMS > 0 {
				select {
				case <-time.After(time.Duration(result.Action.TarpitDelayMS) * time.Millisecond):
				case <-r.Context().Done():
					return
				}
			}
			next.ServeHTTP(w, r)
		case policy.ActionChallenge:
			// No challenge page is wired in this repo (the dashboard/challenge
			// UI is an external collaborator); downstream handlers can inspect
			// the verdict headers and render their own.
			next.ServeHTTP(w, r)
		default: // Allow, LogOnly, AddHeaders
			next.ServeHTTP(w, r)
		}
	})
}

// annotate attaches the egress headers §6 defines for policy = AddHeaders,
// but is harmless (and useful for operators) to attach on every outcome.
func (d *DetectionMiddleware) annotate(w http.ResponseWriter, result orchestrator.Result, sigID string) {
	ev := result.Evidence
	isBot := ev.BotProbability >= 0.5 || ev.PrimaryBotType != ""

	h := w.Header()
	h.Set("X-Bot-Detection", fmt.Sprintf("%t", isBot))
	h.Set("X-Bot-Confidence", fmt.Sprintf("%.4f", ev.Confidence))
	h.Set("X-Bot-Risk-Band", string(ev.RiskBand))
	h.Set("X-Bot-Processing-Ms", fmt.Sprintf("%d", result.Elapsed.Milliseconds()))
	if ev.PrimaryBotName != "" {
		h.Set("X-Bot-Name", ev.PrimaryBotName)
	}
	if d.SignalCapture {
		h.Set("X-Signature-ID", sigID)
	}
}
