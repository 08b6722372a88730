package playback

import (
	"errors"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/outerfields/platform/pkg/common/logger"
	"github.com/outerfields/platform/pkg/gateway/auth"
	"github.com/outerfields/platform/pkg/gateway/middleware"
	"github.com/outerfields/platform/pkg/video"
)

type HTTPHandler struct {
	service *Service
}

func NewHTTPHandler(service *Service) *HTTPHandler {
	return &HTTPHandler{service: service}
}

func (h *HTTPHandler) Register(router *mux.Router) {
	router.HandleFunc("/videos/{id}/playback", h.handlePlayback).Methods(http.MethodGet)
}

func (h *HTTPHandler) handlePlayback(w http.ResponseWriter, r *http.Request) {
	videoID := mux.Vars(r)["id"]

	grant, err := h.service.ResolvePlayback(r.Context(), videoID, auth.ViewerFromContext(r.Context()))
	if err == nil {
		w.Header().Set("Cache-Control", "no-store")
		middleware.WriteData(w, http.StatusOK, grant)
		return
	}

	var legacy *LegacyError
	var notReady *NotReadyError
	switch {
	case errors.Is(err, ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Video not found")
	case errors.Is(err, ErrMembershipRequired):
		middleware.WriteError(w, http.StatusUnauthorized, "Membership required")
	case errors.As(err, &legacy):
		var assetPath interface{}
		if legacy.AssetPath != "" {
			assetPath = legacy.AssetPath
		}
		middleware.WriteErrorWith(w, http.StatusNotFound, "Video is not Stream-backed", map[string]interface{}{
			"ingestStatus":    legacy.IngestStatus,
			"legacyAssetPath": assetPath,
		})
	case errors.As(err, &notReady):
		msg := "Video is still processing"
		if notReady.IngestStatus == video.StatusFailed {
			msg = "Video processing failed"
			if notReady.FailureReason != nil && *notReady.FailureReason != "" {
				msg = *notReady.FailureReason
			}
		}
		middleware.WriteErrorWith(w, http.StatusConflict, msg, map[string]interface{}{
			"ingestStatus":  notReady.IngestStatus,
			"failureReason": notReady.FailureReason,
		})
	default:
		logger.WithVideo(videoID).WithError(err).Error("Failed to create playback grant")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to create playback grant")
	}
}
