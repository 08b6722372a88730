package catalog

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gorilla/mux"
	"github.com/outerfields/platform/pkg/common/logger"
	"github.com/outerfields/platform/pkg/gateway/middleware"
	"github.com/outerfields/platform/pkg/video"
)

type Handler struct {
	repo *video.Repository
}

func NewHandler(repo *video.Repository) *Handler {
	return &Handler{repo: repo}
}

func (h *Handler) Register(r *mux.Router) {
	sub := r.PathPrefix("/admin").Subrouter()
	sub.Use(middleware.RequireAdmin)
	sub.HandleFunc("/series", h.handleList).Methods(http.MethodGet)
	sub.HandleFunc("/series", h.handleCreate).Methods(http.MethodPost)
	sub.HandleFunc("/series/{id}", h.handleGet).Methods(http.MethodGet)
	sub.HandleFunc("/series/{id}", h.handleUpdate).Methods(http.MethodPatch)
	sub.HandleFunc("/series/{id}", h.handleArchive).Methods(http.MethodDelete)
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	series, err := h.repo.ListSeries(r.Context())
	if err != nil {
		writeError(w, err, "failed to list series")
		return
	}
	middleware.WriteData(w, http.StatusOK, series)
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	s, err := h.repo.FindSeries(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		writeError(w, err, "failed to get series")
		return
	}
	middleware.WriteData(w, http.StatusOK, s)
}

type createRequest struct {
	Slug        string   `json:"slug"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	SortOrder   *float64 `json:"sort_order"`
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if strings.TrimSpace(req.Slug) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "slug is required")
		return
	}
	if strings.TrimSpace(req.Title) == "" {
		middleware.WriteError(w, http.StatusBadRequest, "title is required")
		return
	}

	in := video.SeriesInput{Slug: req.Slug, Title: req.Title, Description: req.Description}
	if req.SortOrder != nil {
		order := int(*req.SortOrder)
		in.SortOrder = &order
	}
	s, err := h.repo.CreateSeries(r.Context(), in)
	if err != nil {
		writeError(w, err, "failed to create series")
		return
	}
	middleware.WriteData(w, http.StatusCreated, s)
}

type updateRequest struct {
	Title       *string          `json:"title"`
	Description *string          `json:"description"`
	Visibility  *string          `json:"visibility"`
	SortOrder   *float64         `json:"sort_order"`
	HomeFilters *json.RawMessage `json:"home_filters"`
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}

	var patch video.SeriesPatch
	patch.Title = req.Title
	patch.Description = req.Description
	if req.Visibility != nil {
		if v := video.Visibility(*req.Visibility); v.Valid() {
			patch.Visibility = &v
		}
	}
	if req.SortOrder != nil {
		order := int(*req.SortOrder)
		patch.SortOrder = &order
	}
	if req.HomeFilters != nil {
		var raw []interface{}
		if err := json.Unmarshal(*req.HomeFilters, &raw); err != nil || raw == nil {
			middleware.WriteError(w, http.StatusBadRequest, "home_filters must be an array of strings")
			return
		}
		patch.HomeFilters = make([]string, 0, len(raw))
		for _, entry := range raw {
			if tag, ok := entry.(string); ok {
				patch.HomeFilters = append(patch.HomeFilters, tag)
			}
		}
	}

	s, err := h.repo.UpdateSeries(r.Context(), mux.Vars(r)["id"], patch)
	if err != nil {
		writeError(w, err, "failed to update series")
		return
	}
	middleware.WriteData(w, http.StatusOK, s)
}

func (h *Handler) handleArchive(w http.ResponseWriter, r *http.Request) {
	archived := video.VisibilityArchived
	s, err := h.repo.UpdateSeries(r.Context(), mux.Vars(r)["id"], video.SeriesPatch{Visibility: &archived})
	if err != nil {
		writeError(w, err, "failed to archive series")
		return
	}
	middleware.WriteData(w, http.StatusOK, s)
}

func writeError(w http.ResponseWriter, err error, msg string) {
	switch {
	case errors.Is(err, video.ErrSeriesNotFound):
		middleware.WriteError(w, http.StatusNotFound, "Series not found")
	case errors.Is(err, video.ErrSeriesExists):
		middleware.WriteError(w, http.StatusConflict, err.Error())
	case errors.Is(err, video.ErrEmptySlug):
		middleware.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		logger.Log.WithError(err).Error(msg)
		middleware.WriteError(w, http.StatusInternalServerError, msg)
	}
}
