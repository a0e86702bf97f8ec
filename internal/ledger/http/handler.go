package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"mime"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/gocarina/gocsv"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/cashbook/internal/ledger"
	"github.com/odyssey-erp/cashbook/internal/platform/httpx"
)

// Handler wires HTTP endpoints for accounts, transactions, locks and ledger views.
type Handler struct {
	logger    *slog.Logger
	service   *ledger.Service
	validator *validator.Validate
	rateLimit func(http.Handler) http.Handler
	now       func() time.Time
}

// NewHandler constructs a ledger handler.
func NewHandler(logger *slog.Logger, service *ledger.Service) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		service:   service,
		validator: httpx.NewValidator(),
		rateLimit: httprate.LimitByIP(30, time.Minute),
		now:       time.Now,
	}
}

// MountRoutes registers the ledger API under r.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", h.listAccounts)
		r.Post("/", h.createAccount)
		r.With(h.rateLimit).Post("/import", h.importAccounts)
		r.Put("/{id}", h.updateAccount)
		r.Delete("/{id}", h.deleteAccount)
	})
	r.Route("/transactions", func(r chi.Router) {
		r.Get("/", h.listTransactions)
		r.Post("/", h.createTransaction)
		r.With(h.rateLimit).Post("/import", h.importTransactions)
		r.Get("/{id}", h.getTransaction)
		r.Patch("/{id}", h.updateTransaction)
		r.Delete("/{id}", h.deleteTransaction)
	})
	r.Route("/ledger", func(r chi.Router) {
		r.Get("/daily", h.daily)
		r.Get("/monthly", h.monthly)
		r.Get("/breakdown", h.breakdown)
	})
	r.Route("/locks", func(r chi.Router) {
		r.Get("/", h.listLocks)
		r.Post("/", h.lock)
		r.Delete("/", h.unlock)
	})
}

type accountRequest struct {
	Code     string               `json:"code" validate:"required"`
	Name     string               `json:"name" validate:"required"`
	Category string               `json:"category"`
	Type     ledger.TxType        `json:"type" validate:"required,oneof=THU CHI"`
	Branch   ledger.Branch        `json:"branch" validate:"required"`
	Market   ledger.Market        `json:"market" validate:"required"`
	Status   ledger.AccountStatus `json:"status" validate:"omitempty,oneof=Active Inactive"`
	Note     string               `json:"note"`
}

func (req accountRequest) account() ledger.Account {
	status := req.Status
	if status == "" {
		status = ledger.AccountActive
	}
	return ledger.Account{
		Code:     strings.TrimSpace(req.Code),
		Name:     strings.TrimSpace(req.Name),
		Category: req.Category,
		Type:     req.Type,
		Branch:   req.Branch,
		Market:   req.Market,
		Status:   status,
		Note:     req.Note,
	}
}

type transactionRequest struct {
	Date        string          `json:"date"`
	Type        ledger.TxType   `json:"type" validate:"required,oneof=THU CHI"`
	Source      string          `json:"source"`
	Branch      ledger.Branch   `json:"branch" validate:"required"`
	Market      ledger.Market   `json:"market" validate:"required"`
	AccountCode string          `json:"account_code" validate:"required"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Method      string          `json:"method"`
	ProofURL    string          `json:"proof_url"`
}

func (req transactionRequest) transaction() ledger.Transaction {
	return ledger.Transaction{
		Date:        req.Date,
		Type:        req.Type,
		Source:      req.Source,
		Branch:      req.Branch,
		Market:      req.Market,
		AccountCode: strings.TrimSpace(req.AccountCode),
		Description: req.Description,
		Amount:      req.Amount,
		Method:      req.Method,
		ProofURL:    req.ProofURL,
	}
}

type transactionPatchRequest struct {
	Date        *string          `json:"date"`
	Type        *ledger.TxType   `json:"type" validate:"omitempty,oneof=THU CHI"`
	Source      *string          `json:"source"`
	Branch      *ledger.Branch   `json:"branch"`
	Market      *ledger.Market   `json:"market"`
	AccountCode *string          `json:"account_code"`
	Description *string          `json:"description"`
	Amount      *decimal.Decimal `json:"amount"`
	Method      *string          `json:"method"`
	ProofURL    *string          `json:"proof_url"`
}

func (req transactionPatchRequest) patch() ledger.TransactionPatch {
	return ledger.TransactionPatch{
		Date:        req.Date,
		Type:        req.Type,
		Source:      req.Source,
		Branch:      req.Branch,
		Market:      req.Market,
		AccountCode: req.AccountCode,
		Description: req.Description,
		Amount:      req.Amount,
		Method:      req.Method,
		ProofURL:    req.ProofURL,
	}
}

type lockRequest struct {
	Month       ledger.Month  `json:"month" validate:"required"`
	AccountCode string        `json:"account_code" validate:"required"`
	Branch      ledger.Branch `json:"branch" validate:"required"`
}

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": h.service.ListAccounts(r.URL.Query().Get("q"))})
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if !httpx.Validate(w, h.validator, req) {
		return
	}
	created, err := h.service.AddAccount(r.Context(), req.account())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateAccount(w http.ResponseWriter, r *http.Request) {
	var req accountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if !httpx.Validate(w, h.validator, req) {
		return
	}
	updated, err := h.service.UpdateAccount(r.Context(), chi.URLParam(r, "id"), req.account())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemoveAccount(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) importAccounts(w http.ResponseWriter, r *http.Request) {
	rows, err := readRows(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	res, err := h.service.ImportAccounts(r.Context(), rows)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) listTransactions(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	query := ledger.TransactionQuery{
		Type:   ledger.TxType(q.Get("type")),
		Branch: ledger.Branch(q.Get("branch")),
		Market: ledger.Market(q.Get("market")),
		Search: q.Get("q"),
	}
	if raw := q.Get("month"); raw != "" {
		month, err := ledger.ParseMonth(raw)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		query.Month = month
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"transactions": h.service.ListTransactions(query)})
}

func (h *Handler) getTransaction(w http.ResponseWriter, r *http.Request) {
	t, err := h.service.Transaction(chi.URLParam(r, "id"))
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) createTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if !httpx.Validate(w, h.validator, req) {
		return
	}
	created, err := h.service.AddTransaction(r.Context(), req.transaction())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, created)
}

func (h *Handler) updateTransaction(w http.ResponseWriter, r *http.Request) {
	var req transactionPatchRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	if !httpx.Validate(w, h.validator, req) {
		return
	}
	updated, err := h.service.UpdateTransaction(r.Context(), chi.URLParam(r, "id"), req.patch())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, updated)
}

func (h *Handler) deleteTransaction(w http.ResponseWriter, r *http.Request) {
	if err := h.service.RemoveTransaction(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) importTransactions(w http.ResponseWriter, r *http.Request) {
	typ := ledger.TxType(strings.ToUpper(r.URL.Query().Get("type")))
	if typ != ledger.TypeRevenue && typ != ledger.TypeExpense {
		h.respondError(w, r, &ledger.ValidationError{Field: "type", Reason: "must be THU or CHI"})
		return
	}
	rows, err := readRows(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	res, err := h.service.ImportTransactions(r.Context(), rows, typ)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, res)
}

func (h *Handler) daily(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := ledger.LedgerFilter{
		Branch:      ledger.Branch(q.Get("branch")),
		AccountCode: q.Get("account"),
	}
	for _, bound := range []struct {
		name string
		dst  *string
	}{{"from", &filter.From}, {"to", &filter.To}} {
		raw := q.Get(bound.name)
		if raw == "" {
			continue
		}
		date, err := ledger.NormalizeDate(raw)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		*bound.dst = date
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"rows": h.service.DailyLedger(filter)})
}

func (h *Handler) monthly(w http.ResponseWriter, r *http.Request) {
	month, err := h.month(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, h.service.MonthlySummary(month))
}

func (h *Handler) breakdown(w http.ResponseWriter, r *http.Request) {
	month, err := h.month(r)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"month": month, "rows": h.service.Breakdown(month)})
}

func (h *Handler) listLocks(w http.ResponseWriter, r *http.Request) {
	httpx.JSON(w, http.StatusOK, map[string]any{"locks": h.service.Locks()})
}

func (h *Handler) lock(w http.ResponseWriter, r *http.Request) {
	key, ok := h.decodeLock(w, r)
	if !ok {
		return
	}
	if err := h.service.Lock(r.Context(), key); err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, key)
}

func (h *Handler) unlock(w http.ResponseWriter, r *http.Request) {
	key, ok := h.decodeLock(w, r)
	if !ok {
		return
	}
	if err := h.service.Unlock(r.Context(), key); err != nil {
		h.respondError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decodeLock(w http.ResponseWriter, r *http.Request) (ledger.LockKey, bool) {
	var req lockRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		h.respondError(w, r, err)
		return ledger.LockKey{}, false
	}
	if !httpx.Validate(w, h.validator, req) {
		return ledger.LockKey{}, false
	}
	return ledger.LockKey{Month: req.Month, AccountCode: strings.TrimSpace(req.AccountCode), Branch: req.Branch}, true
}

func (h *Handler) month(r *http.Request) (ledger.Month, error) {
	raw := r.URL.Query().Get("month")
	if raw == "" {
		return ledger.MonthFromTime(h.now()), nil
	}
	return ledger.ParseMonth(raw)
}

// readRows accepts either a CSV body with a header line or a JSON array of
// objects. JSON numbers are kept in their literal form.
func readRows(r *http.Request) ([]ledger.Row, error) {
	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "text/csv" {
		records, err := gocsv.CSVToMaps(r.Body)
		if err != nil {
			return nil, &ledger.ValidationError{Field: "body", Reason: "invalid csv: " + err.Error()}
		}
		rows := make([]ledger.Row, len(records))
		for i, rec := range records {
			rows[i] = ledger.Row(rec)
		}
		return rows, nil
	}

	dec := json.NewDecoder(r.Body)
	dec.UseNumber()
	var raw []map[string]any
	if err := dec.Decode(&raw); err != nil {
		return nil, &ledger.ValidationError{Field: "body", Reason: "expected a JSON array of rows"}
	}
	rows := make([]ledger.Row, len(raw))
	for i, rec := range raw {
		row := make(ledger.Row, len(rec))
		for k, v := range rec {
			if v == nil {
				continue
			}
			row[k] = fmt.Sprint(v)
		}
		rows[i] = row
	}
	return rows, nil
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		locked  *ledger.LockedError
		invalid *ledger.ValidationError
	)
	switch {
	case errors.As(err, &locked):
		httpx.WriteProblem(w, httpx.ProblemDetail{
			Title:   "Period Locked",
			Status:  http.StatusLocked,
			Detail:  err.Error(),
			Context: locked.Key,
		})
	case errors.As(err, &invalid):
		p := httpx.ProblemDetail{Title: "Validation Failed", Status: http.StatusBadRequest, Detail: err.Error()}
		if invalid.Field != "" {
			p.Errors = map[string]string{invalid.Field: invalid.Reason}
		}
		httpx.WriteProblem(w, p)
	case errors.Is(err, ledger.ErrNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ledger.ErrDuplicate):
		httpx.Problem(w, http.StatusConflict, "Duplicate", err.Error())
	default:
		if !errors.Is(err, httpx.ErrValidation) {
			h.logger.Error("ledger request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		httpx.RespondError(w, err)
	}
}
