package listing

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"casanexus/internal/eventstore"
	"casanexus/internal/paging"
	"casanexus/internal/web"
)

type Handler struct {
	service   Service
	logger    *slog.Logger
	bodyLimit int64
}

func NewHandler(service Service, logger *slog.Logger, bodyLimit int64) *Handler {
	return &Handler{service: service, logger: logger, bodyLimit: bodyLimit}
}

// Routes serves the listing resource; mount it at /listings.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleCreate)
	r.Get("/search", h.handleSearch)
	r.Get("/{id}", h.handleGet)
	r.Put("/{id}", h.handleUpdate)
	r.Delete("/{id}", h.handleDelete)
	return r
}

func (h *Handler) handleCreate(w http.ResponseWriter, r *http.Request) {
	var in Input
	if err := web.ReadJSON(w, r, &in, h.bodyLimit); err != nil {
		web.BadRequest(w, r, h.logger, err)
		return
	}

	l, err := h.service.CreateListing(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	headers := make(http.Header)
	headers.Set("Location", fmt.Sprintf("/listings/%s", l.ID))
	if err := web.WriteJSON(w, http.StatusCreated, l, headers); err != nil {
		web.ServerError(w, r, h.logger, err)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListListings(r.Context(), paging.FromQuery(r.URL.Query()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := web.WriteJSON(w, http.StatusOK, page, nil); err != nil {
		web.ServerError(w, r, h.logger, err)
	}
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	qs := r.URL.Query()

	criteria, err := CriteriaFromQuery(qs)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	page, err := h.service.SearchListings(r.Context(), criteria, paging.FromQuery(qs))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := web.WriteJSON(w, http.StatusOK, page, nil); err != nil {
		web.ServerError(w, r, h.logger, err)
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, ok := h.readID(w, r)
	if !ok {
		return
	}

	l, err := h.service.GetListing(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := web.WriteJSON(w, http.StatusOK, l, nil); err != nil {
		web.ServerError(w, r, h.logger, err)
	}
}

func (h *Handler) handleUpdate(w http.ResponseWriter, r *http.Request) {
	id, ok := h.readID(w, r)
	if !ok {
		return
	}

	var in Input
	if err := web.ReadJSON(w, r, &in, h.bodyLimit); err != nil {
		web.BadRequest(w, r, h.logger, err)
		return
	}

	l, err := h.service.UpdateListing(r.Context(), id, in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := web.WriteJSON(w, http.StatusOK, l, nil); err != nil {
		web.ServerError(w, r, h.logger, err)
	}
}

func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	id, ok := h.readID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteListing(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// readID parses the {id} path parameter. An id that is not a UUID cannot
// name a stored listing, so it answers 404.
func (h *Handler) readID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		web.NotFound(w, r, h.logger)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case web.ValidationError(w, r, h.logger, err):
	case errors.Is(err, ErrNotFound):
		web.NotFound(w, r, h.logger)
	case errors.Is(err, ErrInUse):
		web.Conflict(w, r, h.logger, err)
	case errors.Is(err, eventstore.ErrConcurrencyConflict):
		web.Conflict(w, r, h.logger, errors.New("the listing was modified concurrently, please retry"))
	default:
		web.ServerError(w, r, h.logger, err)
	}
}
