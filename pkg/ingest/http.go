package ingest

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/outerfields/platform/pkg/common/logger"
	"github.com/outerfields/platform/pkg/gateway/auth"
	"github.com/outerfields/platform/pkg/gateway/middleware"
	"github.com/outerfields/platform/pkg/stream"
	"github.com/outerfields/platform/pkg/video"
)

const maxWebhookBody = 1 << 20

type HTTPHandler struct {
	service     *Service
	webhooks    *WebhookProcessor
	ingestToken string
}

// NewHTTPHandler serves the upload and webhook routes. An empty ingestToken
// disables machine access to the generated route.
func NewHTTPHandler(service *Service, webhooks *WebhookProcessor, ingestToken string) *HTTPHandler {
	return &HTTPHandler{service: service, webhooks: webhooks, ingestToken: ingestToken}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.Handle("/uploads/init", middleware.RequireAdmin(http.HandlerFunc(h.handleInit))).Methods(http.MethodPost)
	router.Handle("/uploads/complete", middleware.RequireAdmin(http.HandlerFunc(h.handleComplete))).Methods(http.MethodPost)
	router.HandleFunc("/uploads/generated", h.handleGenerated).Methods(http.MethodPost)
	router.HandleFunc("/webhooks/stream", h.handleWebhook).Methods(http.MethodPost)
}

func (h *HTTPHandler) handleInit(w http.ResponseWriter, r *http.Request) {
	var req UploadRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	resp, err := h.service.InitiateUpload(r.Context(), auth.ViewerFromContext(r.Context()), req)
	if err != nil {
		h.writeServiceError(w, err, "failed to initiate upload")
		return
	}
	middleware.WriteData(w, http.StatusOK, resp)
}

func (h *HTTPHandler) handleComplete(w http.ResponseWriter, r *http.Request) {
	var req CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	rec, err := h.service.CompleteUpload(r.Context(), req.VideoID)
	if err != nil {
		h.writeServiceError(w, err, "failed to complete upload")
		return
	}
	middleware.WriteData(w, http.StatusOK, CompleteResponse{
		VideoID:      rec.ID,
		IngestStatus: rec.IngestStatus,
		StreamUID:    rec.StreamUID,
		UpdatedAt:    rec.UpdatedAt,
	})
}

func (h *HTTPHandler) handleGenerated(w http.ResponseWriter, r *http.Request) {
	if !auth.ViewerFromContext(r.Context()).Admin && !h.validIngestToken(r) {
		middleware.WriteError(w, http.StatusUnauthorized, "Authentication required")
		return
	}

	var req GeneratedRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	rec, err := h.service.RegisterGenerated(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, err, "failed to register generated video")
		return
	}
	middleware.WriteData(w, http.StatusOK, GeneratedResponse{
		VideoID:      rec.ID,
		StreamUID:    *rec.StreamUID,
		IngestStatus: rec.IngestStatus,
		SeriesID:     rec.SeriesID,
	})
}

func (h *HTTPHandler) validIngestToken(r *http.Request) bool {
	if h.ingestToken == "" {
		return false
	}
	presented := middleware.BearerToken(r)
	return presented != "" && subtle.ConstantTimeCompare([]byte(presented), []byte(h.ingestToken)) == 1
}

func (h *HTTPHandler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		middleware.WriteError(w, http.StatusRequestEntityTooLarge, "Payload too large")
		return
	}
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Unreadable body")
		return
	}

	out := h.webhooks.Apply(r.Context(), body, r.Header.Get(stream.SignatureHeader))
	switch out.Kind {
	case OutcomeApplied:
		middleware.WriteData(w, out.Status, map[string]interface{}{
			"videoId":      out.VideoID,
			"streamUid":    out.StreamUID,
			"ingestStatus": out.IngestStatus,
		})
	case OutcomeIgnored:
		middleware.WriteJSON(w, out.Status, map[string]interface{}{
			"success": true,
			"ignored": true,
			"reason":  out.Reason,
		})
	default:
		middleware.WriteError(w, out.Status, out.Reason)
	}
}

func (h *HTTPHandler) writeServiceError(w http.ResponseWriter, err error, msg string) {
	var remote *RemoteError
	switch {
	case IsValidationError(err):
		if errors.Is(err, errTooLarge) {
			middleware.WriteErrorWith(w, http.StatusBadRequest, err.Error(), map[string]interface{}{
				"maxFileSizeBytes": stream.MaxDirectUploadBytes,
			})
			return
		}
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, ErrUnauthenticated):
		middleware.WriteError(w, http.StatusUnauthorized, "Authentication required")
	case errors.Is(err, ErrForbidden):
		middleware.WriteError(w, http.StatusForbidden, "Admin access required")
	case errors.Is(err, video.ErrSeriesNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Series not found")
	case errors.Is(err, video.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Video not found")
	case errors.Is(err, video.ErrEmptySlug):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, video.ErrDuplicateStreamUID):
		middleware.WriteError(w, http.StatusConflict, err.Error())
	case errors.As(err, &remote):
		middleware.WriteErrorWith(w, http.StatusInternalServerError, remote.Error(), map[string]interface{}{
			"videoId": remote.VideoID,
		})
	default:
		logger.Log.WithError(err).Error(msg)
		middleware.WriteError(w, http.StatusInternalServerError, "internal error")
	}
}
