package admin

import (
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"
	"github.com/outerfields/platform/pkg/common/logger"
	"github.com/outerfields/platform/pkg/gateway/auth"
	"github.com/outerfields/platform/pkg/gateway/middleware"
	"github.com/outerfields/platform/pkg/video"
)

type Handler struct {
	service *Service
}

func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Register mounts the admin routes; every route requires an admin viewer.
func (h *Handler) Register(r *mux.Router) {
	sub := r.PathPrefix("/admin").Subrouter()
	sub.Use(middleware.RequireAdmin)
	sub.HandleFunc("/videos", h.handleList).Methods(http.MethodGet)
	sub.HandleFunc("/videos/{id}", h.handleGet).Methods(http.MethodGet)
	sub.HandleFunc("/videos/{id}", h.handleUpdate).Methods(http.MethodPatch)
	sub.HandleFunc("/videos/{id}", h.handleArchive).Methods(http.MethodDelete)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	result, err := h.service.List(r.Context(), parseFilter(r))
	if err != nil {
		logger.Log.WithError(err).Error("failed to list videos")
		middleware.WriteError(w, http.StatusInternalServerError, "failed to list videos")
		return
	}
	middleware.WriteData(w, http.StatusOK, result)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Get(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err, "failed to get video")
		return
	}
	middleware.WriteData(w, http.StatusOK, rec)
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(r.Body)
	if err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	patch, err := DecodePatch(raw)
	if err != nil {
		writeError(w, err, "invalid patch")
		return
	}

	rec, err := h.service.Update(r.Context(), mux.Vars(r)["id"], patch, resolveActor(r))
	if err != nil {
		writeError(w, err, "failed to update video")
		return
	}
	middleware.WriteData(w, http.StatusOK, rec)
}

func (h *Handler) handleArchive(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Archive(r.Context(), mux.Vars(r)["id"], resolveActor(r))
	if err != nil {
		writeError(w, err, "failed to archive video")
		return
	}
	middleware.WriteData(w, http.StatusOK, rec)
}

func writeError(w http.ResponseWriter, err error, msg string) {
	var notReady *PublishNotReadyError
	switch {
	case IsValidationError(err):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.As(err, &notReady):
		middleware.WriteErrorWith(w, http.StatusBadRequest, notReady.Error(), map[string]interface{}{
			"ingestStatus": notReady.IngestStatus,
		})
	case errors.Is(err, video.ErrPublishNotReady):
		middleware.WriteError(w, http.StatusBadRequest, "Cannot publish a Stream-backed video until processing is complete")
	case errors.Is(err, video.ErrFeatureNeedsPublish):
		middleware.WriteError(w, http.StatusBadRequest, "Only published videos can be featured")
	case errors.Is(err, video.ErrNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Video not found")
	case errors.Is(err, video.ErrSeriesNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Series not found")
	default:
		logger.Log.WithError(err).Error(msg)
		middleware.WriteError(w, http.StatusInternalServerError, msg)
	}
}

// parseFilter reads listing filters from the query string. Unknown enum
// values and "all" do not filter.
func parseFilter(r *http.Request) video.ListFilter {
	q := r.URL.Query()
	f := video.ListFilter{
		Query:    strings.TrimSpace(q.Get("q")),
		SeriesID: strings.TrimSpace(q.Get("series_id")),
	}
	if v := video.Visibility(q.Get("visibility")); v.Valid() {
		f.Visibility = v
	}
	if s := video.IngestStatus(q.Get("ingest_status")); s.Valid() {
		f.IngestStatus = s
	}
	if t := video.Tier(q.Get("tier")); t.Valid() {
		f.Tier = t
	}
	switch q.Get("featured") {
	case "true":
		featured := true
		f.Featured = &featured
	case "false":
		featured := false
		f.Featured = &featured
	}
	if limit, err := strconv.Atoi(q.Get("limit")); err == nil {
		f.Limit = limit
	}
	if offset, err := strconv.Atoi(q.Get("offset")); err == nil {
		f.Offset = offset
	}
	return f
}

func resolveActor(r *http.Request) string {
	viewer := auth.ViewerFromContext(r.Context())
	if viewer.Email != "" {
		return viewer.Email
	}
	return viewer.ID
}
