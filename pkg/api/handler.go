// Package api exposes the REST surface consumed by the excluded wallet/UI
// layer: bounty creation and resolution on the ledger, and read access
// through the query facade.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"strconv"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	apperrors "github.com/noskodmi/commit2consumer/pkg/app/errors"
	apphttp "github.com/noskodmi/commit2consumer/pkg/app/http"
	"github.com/noskodmi/commit2consumer/pkg/auth"
	"github.com/noskodmi/commit2consumer/pkg/ledger"
	"github.com/noskodmi/commit2consumer/pkg/query"
)

// Handler serves the bounty REST API
type Handler struct {
	ledger   *ledger.Ledger
	query    *query.Service
	validate *validator.Validate
	logger   *zap.Logger
}

// NewHandler creates a new API handler
func NewHandler(l *ledger.Ledger, q *query.Service, logger *zap.Logger) *Handler {
	return &Handler{
		ledger:   l,
		query:    q,
		validate: validator.New(),
		logger:   logger,
	}
}

// Routes mounts the bounty API onto a chi router
func (h *Handler) Routes(r chi.Router) {
	r.Post("/bounties", apphttp.HandleError(h.createBounty))
	r.Post("/bounties/{id}/resolve", apphttp.HandleError(h.resolveBounty))
	r.Get("/bounties", apphttp.HandleError(h.listBounties))
	r.Get("/bounties/{id}", apphttp.HandleError(h.getBounty))
}

// CreateBountyRequest carries a signed bounty creation. The wallet layer
// signs Message with the funder's key; the recovered address is the caller
// identity.
type CreateBountyRequest struct {
	IssueURL  string `json:"issue_url" validate:"required"`
	Amount    string `json:"amount" validate:"required"`
	Message   string `json:"message" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

// CreateBountyResponse returns the ledger-assigned bounty id
type CreateBountyResponse struct {
	ID string `json:"id"`
}

// ResolveBountyRequest carries a signed resolution. The recovered signer
// must be the authorized resolver.
type ResolveBountyRequest struct {
	Recipient string `json:"recipient" validate:"required"`
	Message   string `json:"message" validate:"required"`
	Signature string `json:"signature" validate:"required"`
}

func (h *Handler) createBounty(w http.ResponseWriter, r *http.Request) error {
	var req CreateBountyRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}

	caller, err := auth.VerifyEIP191Signature(req.Message, req.Signature)
	if err != nil {
		return apperrors.UnAuthorizedError(err, "invalid signature")
	}

	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		return apperrors.BadRequestError(nil, "amount must be a decimal integer")
	}

	id, err := h.ledger.CreateBounty(r.Context(), caller, req.IssueURL, amount)
	if err != nil {
		return mapLedgerError(err)
	}

	return apphttp.WriteJSON(w, http.StatusCreated, &CreateBountyResponse{
		ID: strconv.FormatUint(id, 10),
	})
}

func (h *Handler) resolveBounty(w http.ResponseWriter, r *http.Request) error {
	id, err := parseBountyID(chi.URLParam(r, "id"))
	if err != nil {
		return err
	}

	var req ResolveBountyRequest
	if err := h.decode(r, &req); err != nil {
		return err
	}
	if !auth.ValidateEVMAddress(req.Recipient) {
		return apperrors.BadRequestError(nil, "recipient is not a valid address")
	}

	caller, err := auth.VerifyEIP191Signature(req.Message, req.Signature)
	if err != nil {
		return apperrors.UnAuthorizedError(err, "invalid signature")
	}

	recipient := common.HexToAddress(req.Recipient)
	if err := h.ledger.ResolveBounty(r.Context(), caller, id, recipient); err != nil {
		return mapLedgerError(err)
	}

	w.WriteHeader(http.StatusNoContent)
	return nil
}

func (h *Handler) getBounty(w http.ResponseWriter, r *http.Request) error {
	id := chi.URLParam(r, "id")
	b, err := h.query.GetBounty(r.Context(), id)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusOK, b)
}

func (h *Handler) listBounties(w http.ResponseWriter, r *http.Request) error {
	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			return apperrors.BadRequestError(err, "limit must be a non-negative integer")
		}
		limit = parsed
	}

	bounties, err := h.query.ListBounties(r.Context(), limit)
	if err != nil {
		return err
	}
	return apphttp.WriteJSON(w, http.StatusOK, map[string]any{"bounties": bounties})
}

// decode reads and validates a JSON request body
func (h *Handler) decode(r *http.Request, v any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		return apperrors.BadRequestError(err, "failed to read request")
	}
	if err := json.Unmarshal(body, v); err != nil {
		return apperrors.BadRequestError(err, "invalid JSON")
	}
	if err := h.validate.Struct(v); err != nil {
		return apperrors.BadRequestError(err, "missing required fields")
	}
	return nil
}

func parseBountyID(raw string) (uint64, error) {
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return 0, apperrors.BadRequestError(err, "invalid bounty id")
	}
	return id, nil
}

// mapLedgerError translates ledger sentinels into service errors with the
// matching HTTP category.
func mapLedgerError(err error) error {
	switch {
	case errors.Is(err, ledger.ErrInvalidAmount),
		errors.Is(err, ledger.ErrEmptyIssueURL),
		errors.Is(err, ledger.ErrInsufficientBalance):
		return apperrors.BadRequestError(err, err.Error())
	case errors.Is(err, ledger.ErrUnauthorized):
		return apperrors.ForbiddenError(err, err.Error())
	case errors.Is(err, ledger.ErrBountyNotFound):
		return apperrors.ResourceNotFoundError(err, err.Error())
	case errors.Is(err, ledger.ErrAlreadyResolved),
		errors.Is(err, ledger.ErrNoFunds):
		return apperrors.ConflictError(err, err.Error())
	default:
		return apperrors.GeneralError(err)
	}
}
