package ingest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/outerfields/platform/pkg/common/logger"
	"github.com/outerfields/platform/pkg/common/models"
	"github.com/outerfields/platform/pkg/observability/metrics"
	"github.com/outerfields/platform/pkg/stream"
	"github.com/outerfields/platform/pkg/video"
)

type OutcomeKind string

const (
	OutcomeApplied  OutcomeKind = "applied"
	OutcomeIgnored  OutcomeKind = "ignored"
	OutcomeRejected OutcomeKind = "rejected"
)

// Outcome is the result of one webhook delivery along with the HTTP status
// the sender should see.
type Outcome struct {
	Kind         OutcomeKind
	Status       int
	VideoID      string
	StreamUID    string
	IngestStatus video.IngestStatus
	Reason       string
}

// WebhookProcessor drives the ingest state machine from remote host
// callbacks.
type WebhookProcessor struct {
	verifier *stream.Verifier
	replay   *stream.ReplayCache
	repo     *video.Repository
	events   EventPublisher
}

// NewWebhookProcessor wires the processor. replay and events may be nil.
func NewWebhookProcessor(verifier *stream.Verifier, replay *stream.ReplayCache, repo *video.Repository, events EventPublisher) *WebhookProcessor {
	return &WebhookProcessor{verifier: verifier, replay: replay, repo: repo, events: events}
}

// Apply verifies, parses and applies one delivery. body must be the exact
// bytes received.
func (p *WebhookProcessor) Apply(ctx context.Context, body []byte, signatureHeader string) Outcome {
	out := p.apply(ctx, body, signatureHeader)
	metrics.WebhookOutcome(string(out.Kind))
	return out
}

func (p *WebhookProcessor) apply(ctx context.Context, body []byte, signatureHeader string) Outcome {
	if p.verifier == nil || !p.verifier.Configured() {
		logger.Log.Error("Stream webhook secret is not configured")
		return Outcome{Kind: OutcomeRejected, Status: http.StatusInternalServerError, Reason: "webhook secret not configured"}
	}
	if !p.verifier.Verify(signatureHeader, body) {
		logger.Log.Warn("Rejected stream webhook with invalid signature")
		return Outcome{Kind: OutcomeRejected, Status: http.StatusUnauthorized, Reason: "invalid signature"}
	}

	sig, hasSig := stream.ParseSignatureHeader(signatureHeader)
	if hasSig {
		seen, err := p.replay.Seen(ctx, sig.Signature)
		if err != nil {
			logger.Log.WithError(err).Warn("Webhook replay cache unavailable, continuing")
		} else if seen {
			return Outcome{Kind: OutcomeIgnored, Status: http.StatusAccepted, Reason: "duplicate_delivery"}
		}
	}

	out := p.reconcile(ctx, body)
	// Rejected deliveries are not remembered; the sender may retry them.
	if hasSig && out.Kind != OutcomeRejected {
		if err := p.replay.Remember(ctx, sig.Signature); err != nil {
			logger.Log.WithError(err).Warn("Failed to record webhook delivery")
		}
	}
	return out
}

func (p *WebhookProcessor) reconcile(ctx context.Context, body []byte) Outcome {
	var payload stream.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return Outcome{Kind: OutcomeRejected, Status: http.StatusBadRequest, Reason: "invalid JSON payload"}
	}
	uid := strings.TrimSpace(payload.UID)
	if uid == "" {
		return Outcome{Kind: OutcomeRejected, Status: http.StatusBadRequest, Reason: "missing uid"}
	}

	update := video.WebhookUpdate{StreamUID: uid}
	switch payload.NormalizeState() {
	case stream.StateReady:
		update.Status = video.StatusReady
		update.DurationSeconds = payload.DurationSeconds()
		update.SourceBytes = payload.SourceBytes()
	case stream.StateFailed:
		update.Status = video.StatusFailed
		update.FailureReason = payload.FailureReason()
	default:
		update.Status = video.StatusProcessing
	}

	log := logger.WithField("stream_uid", uid).WithField("state", update.Status)

	rec, err := p.repo.ApplyWebhook(ctx, update)
	if errors.Is(err, video.ErrNotFound) {
		log.Info("Webhook for untracked stream asset ignored")
		return Outcome{Kind: OutcomeIgnored, Status: http.StatusAccepted, StreamUID: uid, Reason: "video_not_found"}
	}
	if err != nil {
		log.WithError(err).Error("Failed to apply stream webhook")
		return Outcome{Kind: OutcomeRejected, Status: http.StatusInternalServerError, StreamUID: uid, Reason: "failed to apply webhook"}
	}

	log.WithField("video_id", rec.ID).WithField("ingest_status", rec.IngestStatus).Info("Stream webhook applied")

	if p.events != nil {
		data := map[string]interface{}{
			"stream_uid":    uid,
			"ingest_status": rec.IngestStatus,
		}
		if rec.FailureReason != nil {
			data["failure_reason"] = *rec.FailureReason
		}
		if rec.DurationSeconds != nil {
			data["duration_seconds"] = *rec.DurationSeconds
		}
		publishCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventPublishTimeout)
		defer cancel()
		if err := p.events.PublishEvent(publishCtx, models.EventIngestPrefix+string(rec.IngestStatus), rec.ID, data); err != nil {
			log.WithError(err).Warn("Failed to publish ingest event")
		}
	}

	return Outcome{
		Kind:         OutcomeApplied,
		Status:       http.StatusOK,
		VideoID:      rec.ID,
		StreamUID:    uid,
		IngestStatus: rec.IngestStatus,
	}
}
