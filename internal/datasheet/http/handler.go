package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/gocarina/gocsv"

	"github.com/odyssey-erp/cashbook/internal/datasheet"
	"github.com/odyssey-erp/cashbook/internal/docstore"
	"github.com/odyssey-erp/cashbook/internal/platform/httpx"
)

// Handler exposes the datasheet over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *datasheet.Service
	rateLimit func(http.Handler) http.Handler
}

// NewHandler constructs a datasheet handler.
func NewHandler(logger *slog.Logger, service *datasheet.Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		rateLimit: httprate.LimitByIP(10, time.Minute),
	}
}

// MountRoutes registers the datasheet endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/datasheet", func(r chi.Router) {
		r.Get("/orders", h.listOrders)
		r.Put("/orders/{code}", h.saveOrder)
		r.Get("/totals", h.totals)
		r.Get("/options", h.options)
		r.Get("/rates", h.getRates)
		r.Put("/rates", h.putRates)
		r.Group(func(r chi.Router) {
			r.Use(h.rateLimit)
			r.Post("/sync", h.sync)
			r.Post("/import", h.importRows)
			r.Post("/save", h.saveAll)
		})
	})
}

func filterFrom(r *http.Request) datasheet.Filter {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	return datasheet.Filter{
		From:    q.Get("from"),
		To:      q.Get("to"),
		Market:  q.Get("market"),
		Product: q.Get("product"),
		Team:    q.Get("team"),
		Search:  q.Get("q"),
		Page:    page,
	}
}

func (h *Handler) listOrders(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.service.Orders(filterFrom(r)))
}

func (h *Handler) totals(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.service.Totals(filterFrom(r)))
}

func (h *Handler) options(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.service.Options())
}

func (h *Handler) getRates(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, h.service.Rates())
}

func (h *Handler) putRates(w http.ResponseWriter, r *http.Request) {
	var rates datasheet.Rates
	if err := httpx.DecodeJSON(r, &rates); err != nil {
		h.respondError(w, r, err)
		return
	}
	if err := h.service.SetRates(r.Context(), rates); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.service.Rates())
}

type orderPayload struct {
	ID string `json:"_id,omitempty"`
	datasheet.Order
}

func (h *Handler) saveOrder(w http.ResponseWriter, r *http.Request) {
	var payload orderPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		h.respondError(w, r, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
		return
	}
	order := payload.Order
	order.ID = payload.ID
	order.OrderCode = chi.URLParam(r, "code")
	saved, err := h.service.Save(r.Context(), order)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, orderPayload{ID: saved.ID, Order: saved})
}

func (h *Handler) sync(w http.ResponseWriter, r *http.Request) {
	res, err := h.service.Sync(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) importRows(w http.ResponseWriter, r *http.Request) {
	var rows []datasheet.Row
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "text/csv" {
		records, err := gocsv.CSVToMaps(r.Body)
		if err != nil {
			h.respondError(w, r, fmt.Errorf("%w: invalid csv: %v", httpx.ErrValidation, err))
			return
		}
		for _, rec := range records {
			rows = append(rows, datasheet.Row(rec))
		}
	} else {
		dec := json.NewDecoder(r.Body)
		dec.UseNumber()
		var raw []map[string]any
		if err := dec.Decode(&raw); err != nil {
			h.respondError(w, r, fmt.Errorf("%w: expected a JSON array of rows", httpx.ErrValidation))
			return
		}
		for _, rec := range raw {
			row := make(datasheet.Row, len(rec))
			for k, v := range rec {
				if v != nil {
					row[k] = fmt.Sprint(v)
				}
			}
			rows = append(rows, row)
		}
	}
	httpx.JSON(w, http.StatusOK, h.service.Import(rows))
}

func (h *Handler) saveAll(w http.ResponseWriter, r *http.Request) {
	saved, err := h.service.SaveAll(r.Context())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]int{"saved": saved})
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		rateErr   *datasheet.RateError
		statusErr *docstore.StatusError
	)
	switch {
	case errors.As(err, &rateErr), errors.Is(err, datasheet.ErrMissingCode):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, docstore.ErrNotConfigured):
		httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrUnavailable, err))
	case errors.As(err, &statusErr):
		h.logger.Warn("document store request failed", slog.Int("status", statusErr.Status), slog.Any("error", err))
		httpx.Problem(w, http.StatusBadGateway, "Bad Gateway", err.Error())
	default:
		if !errors.Is(err, httpx.ErrValidation) {
			h.logger.Error("datasheet request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}
