package metrics

import (
	"fmt"
	"net/http"
	"sort"
	"sync"
	"sync/atomic"
)

var (
	uploadsReserved   atomic.Int64
	uploadsFailed     atomic.Int64
	uploadsCompleted  atomic.Int64
	generatedCreated  atomic.Int64
	grantsIssued      atomic.Int64
	webhookOutcomesMu sync.Mutex
	webhookOutcomes   = map[string]*atomic.Int64{}
	grantDenialsMu    sync.Mutex
	grantDenials      = map[string]*atomic.Int64{}
)

func UploadReserved()   { uploadsReserved.Add(1) }
func UploadFailed()     { uploadsFailed.Add(1) }
func UploadCompleted()  { uploadsCompleted.Add(1) }
func GeneratedCreated() { generatedCreated.Add(1) }
func GrantIssued()      { grantsIssued.Add(1) }

// WebhookOutcome counts webhook deliveries by outcome (applied, ignored,
// rejected).
func WebhookOutcome(outcome string) {
	counter(&webhookOutcomesMu, webhookOutcomes, outcome).Add(1)
}

// GrantDenied counts playback requests that did not produce a grant, by
// reason.
func GrantDenied(reason string) {
	counter(&grantDenialsMu, grantDenials, reason).Add(1)
}

func counter(mu *sync.Mutex, m map[string]*atomic.Int64, label string) *atomic.Int64 {
	mu.Lock()
	defer mu.Unlock()
	c, ok := m[label]
	if !ok {
		c = &atomic.Int64{}
		m[label] = c
	}
	return c
}

func snapshot(mu *sync.Mutex, m map[string]*atomic.Int64) ([]string, map[string]int64) {
	mu.Lock()
	defer mu.Unlock()
	keys := make([]string, 0, len(m))
	values := make(map[string]int64, len(m))
	for k, v := range m {
		keys = append(keys, k)
		values[k] = v.Load()
	}
	sort.Strings(keys)
	return keys, values
}

func Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		WritePrometheus(w)
	})
}

func WritePrometheus(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; version=0.0.4")
	fmt.Fprintf(w, "# HELP outerfields_uploads_reserved_total Upload slots reserved on the video host.\n")
	fmt.Fprintf(w, "# TYPE outerfields_uploads_reserved_total counter\n")
	fmt.Fprintf(w, "outerfields_uploads_reserved_total %d\n", uploadsReserved.Load())

	fmt.Fprintf(w, "# HELP outerfields_uploads_failed_total Upload reservations whose remote slot could not be created.\n")
	fmt.Fprintf(w, "# TYPE outerfields_uploads_failed_total counter\n")
	fmt.Fprintf(w, "outerfields_uploads_failed_total %d\n", uploadsFailed.Load())

	fmt.Fprintf(w, "# HELP outerfields_uploads_completed_total Client reported upload completions.\n")
	fmt.Fprintf(w, "# TYPE outerfields_uploads_completed_total counter\n")
	fmt.Fprintf(w, "outerfields_uploads_completed_total %d\n", uploadsCompleted.Load())

	fmt.Fprintf(w, "# HELP outerfields_generated_videos_total Generated videos registered.\n")
	fmt.Fprintf(w, "# TYPE outerfields_generated_videos_total counter\n")
	fmt.Fprintf(w, "outerfields_generated_videos_total %d\n", generatedCreated.Load())

	fmt.Fprintf(w, "# HELP outerfields_webhook_deliveries_total Stream webhook deliveries by outcome.\n")
	fmt.Fprintf(w, "# TYPE outerfields_webhook_deliveries_total counter\n")
	keys, values := snapshot(&webhookOutcomesMu, webhookOutcomes)
	for _, k := range keys {
		fmt.Fprintf(w, "outerfields_webhook_deliveries_total{outcome=%q} %d\n", k, values[k])
	}

	fmt.Fprintf(w, "# HELP outerfields_playback_grants_total Playback grants issued.\n")
	fmt.Fprintf(w, "# TYPE outerfields_playback_grants_total counter\n")
	fmt.Fprintf(w, "outerfields_playback_grants_total %d\n", grantsIssued.Load())

	fmt.Fprintf(w, "# HELP outerfields_playback_denials_total Playback requests without a grant, by reason.\n")
	fmt.Fprintf(w, "# TYPE outerfields_playback_denials_total counter\n")
	keys, values = snapshot(&grantDenialsMu, grantDenials)
	for _, k := range keys {
		fmt.Fprintf(w, "outerfields_playback_denials_total{reason=%q} %d\n", k, values[k])
	}
}
