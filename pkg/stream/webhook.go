package stream

import (
	"math"
	"strings"
)

// WebhookPayload is the subset of the host's callback body this service reads.
type WebhookPayload struct {
	UID           string            `json:"uid"`
	ReadyToStream bool              `json:"readyToStream"`
	Status        *WebhookStatus    `json:"status,omitempty"`
	Duration      float64           `json:"duration,omitempty"`
	Size          *int64            `json:"size,omitempty"`
	Meta          map[string]string `json:"meta,omitempty"`
}

type WebhookStatus struct {
	State           string `json:"state,omitempty"`
	ErrorReasonCode string `json:"errorReasonCode,omitempty"`
	ErrorReasonText string `json:"errorReasonText,omitempty"`
}

// State is the closed set the rest of the service works with.
type State string

const (
	StateProcessing State = "processing"
	StateReady      State = "ready"
	StateFailed     State = "failed"
)

// NormalizeState folds the host's open status vocabulary into three states.
// Readiness wins over everything, explicit errors map to failed and anything
// else, including values never seen before, is still processing.
func (p WebhookPayload) NormalizeState() State {
	var state string
	if p.Status != nil {
		state = strings.ToLower(strings.TrimSpace(p.Status.State))
	}
	if p.ReadyToStream || state == "ready" {
		return StateReady
	}
	if state == "error" || state == "failed" {
		return StateFailed
	}
	return StateProcessing
}

// FailureReason prefers the human readable text over the code.
func (p WebhookPayload) FailureReason() string {
	if p.Status == nil {
		return ""
	}
	if t := strings.TrimSpace(p.Status.ErrorReasonText); t != "" {
		return t
	}
	return strings.TrimSpace(p.Status.ErrorReasonCode)
}

// DurationSeconds rounds the reported duration; unknown or non-positive
// durations (the host reports -1 while processing) yield nil.
func (p WebhookPayload) DurationSeconds() *int {
	if p.Duration <= 0 || math.IsNaN(p.Duration) || math.IsInf(p.Duration, 0) {
		return nil
	}
	d := int(math.Round(p.Duration))
	return &d
}

func (p WebhookPayload) SourceBytes() *int64 {
	if p.Size == nil || *p.Size <= 0 {
		return nil
	}
	s := *p.Size
	return &s
}
