package reservation

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

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

// Routes serves the reservation resource; mount it at /reservations.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()
	r.Get("/", h.handleList)
	r.Post("/", h.handleAdmit)
	r.Get("/{id}", h.handleGet)
	r.Delete("/{id}", h.handleCancel)
	return r
}

func (h *Handler) handleAdmit(w http.ResponseWriter, r *http.Request) {
	var in AdmitInput
	if err := web.ReadJSON(w, r, &in, h.bodyLimit); err != nil {
		web.BadRequest(w, r, h.logger, err)
		return
	}

	res, err := h.service.Admit(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	headers := make(http.Header)
	headers.Set("Location", fmt.Sprintf("/reservations/%s", res.ID))
	if err := web.WriteJSON(w, http.StatusCreated, res, headers); err != nil {
		web.ServerError(w, r, h.logger, err)
	}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	page, err := h.service.ListReservations(r.Context(), paging.FromQuery(r.URL.Query()))
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := web.WriteJSON(w, http.StatusOK, page, nil); err != nil {
		web.ServerError(w, r, h.logger, err)
	}
}

func (h *Handler) handleGet(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		web.NotFound(w, r, h.logger)
		return
	}

	res, err := h.service.GetReservation(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}

	if err := web.WriteJSON(w, http.StatusOK, res, nil); err != nil {
		web.ServerError(w, r, h.logger, err)
	}
}

func (h *Handler) handleCancel(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		web.NotFound(w, r, h.logger)
		return
	}

	if err := h.service.CancelReservation(r.Context(), id); err != nil {
		h.writeError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var admissionErr *AdmissionError
	switch {
	case web.ValidationError(w, r, h.logger, err):
	case errors.As(err, &admissionErr):
		web.ErrorResponse(w, r, h.logger, http.StatusBadRequest, admissionErr)
	case errors.Is(err, ErrReservationNotFound):
		web.NotFound(w, r, h.logger)
	default:
		web.ServerError(w, r, h.logger, err)
	}
}
