package http

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/cashbook/internal/ledger"
	"github.com/odyssey-erp/cashbook/internal/platform/httpx"
	"github.com/odyssey-erp/cashbook/internal/reports"
)

// Handler serves management reports as JSON or CSV.
type Handler struct {
	logger    *slog.Logger
	service   *reports.Service
	rateLimit func(http.Handler) http.Handler
	now       func() time.Time
}

// NewHandler constructs a report handler.
func NewHandler(logger *slog.Logger, service *reports.Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		rateLimit: httprate.LimitByIP(10, time.Minute),
		now:       time.Now,
	}
}

// MountRoutes registers the report endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/reports", func(r chi.Router) {
		r.Get("/{kind}", h.handleReport)
		r.With(h.rateLimit).Get("/{kind}/export.csv", h.handleExport)
	})
}

func (h *Handler) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("format") == "csv" {
		h.rateLimit(http.HandlerFunc(h.handleExport)).ServeHTTP(w, r)
		return
	}
	q, err := h.parseQuery(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	report, err := h.build(r, chi.URLParam(r, "kind"), q)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, report)
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	kind := chi.URLParam(r, "kind")
	q, err := h.parseQuery(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	report, err := h.build(r, kind, q)
	if err != nil {
		h.respondError(w, r, err)
		return
	}

	var buf bytes.Buffer
	switch rep := report.(type) {
	case reports.BranchReport:
		err = reports.WriteBranchCSV(&buf, rep)
	case reports.MarketReport:
		err = reports.WriteMarketCSV(&buf, rep)
	case reports.CashFlowReport:
		err = reports.WriteCashFlowCSV(&buf, rep)
	case reports.ProductReport:
		err = reports.WriteProductCSV(&buf, rep)
	}
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	filename := fmt.Sprintf("bao-cao-%s-%s.csv", kind, q.Month)
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

var errUnknownKind = errors.New("unknown report kind")

func (h *Handler) build(r *http.Request, kind string, q reports.Query) (any, error) {
	ctx := r.Context()
	switch kind {
	case reports.KindBranch:
		return h.service.Branch(ctx, q)
	case reports.KindMarket:
		return h.service.Market(ctx, q)
	case reports.KindCashFlow:
		return h.service.CashFlow(ctx, q)
	case reports.KindProducts:
		return h.service.Products(ctx, q)
	default:
		return nil, fmt.Errorf("%w: %s", errUnknownKind, kind)
	}
}

func (h *Handler) parseQuery(r *http.Request) (reports.Query, error) {
	values := r.URL.Query()
	q := reports.Query{
		Month:       ledger.MonthFromTime(h.now()),
		Branch:      ledger.Branch(values.Get("branch")),
		Market:      ledger.Market(values.Get("market")),
		AccountCode: values.Get("account"),
	}
	if raw := values.Get("month"); raw != "" {
		month, err := ledger.ParseMonth(raw)
		if err != nil {
			return reports.Query{}, err
		}
		q.Month = month
	}
	return q, nil
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, errUnknownKind):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ledger.ErrValidation):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	default:
		h.logger.Error("report request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
	}
}
