package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"solana-sniper/internal/credential"
	"solana-sniper/internal/domain"
	"solana-sniper/internal/engine"
)

// Controller is the engine surface the API drives.
type Controller interface {
	Start(secret string, cfg domain.EngineConfig) error
	Stop()
	Snapshot() engine.Snapshot
	Snipe(ctx context.Context, address string) (domain.TradeResult, bool, error)
}

var _ Controller = (*engine.Engine)(nil)

// ErrorResponse is the body of every non-2xx reply.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Field   string `json:"field,omitempty"`
}

// StartRequest is the body of POST /api/engine/start.
type StartRequest struct {
	PrivateKey  string `json:"private_key" validate:"required"`
	Network     string `json:"network" default:"devnet" validate:"required"`
	SnipeAmount string `json:"snipe_amount" default:"0.01" validate:"required,numeric"`
}

// SnipeRequest is the body of POST /api/engine/snipe.
type SnipeRequest struct {
	Address string `json:"address" validate:"required"`
}

// SnapshotResponse renders engine.Snapshot.
type SnapshotResponse struct {
	State       domain.EngineState `json:"state"`
	Address     string             `json:"address,omitempty"`
	Network     string             `json:"network,omitempty"`
	SnipeAmount string             `json:"snipe_amount,omitempty"`
	Balance     *BalanceResponse   `json:"balance,omitempty"`
	Logs        []LogResponse      `json:"logs"`
}

// BalanceResponse renders domain.BalanceSnapshot.
type BalanceResponse struct {
	SOL       string    `json:"sol"`
	FetchedAt time.Time `json:"fetched_at"`
}

// LogResponse renders domain.LogEntry.
type LogResponse struct {
	Seq       uint64          `json:"seq"`
	Timestamp time.Time       `json:"timestamp"`
	Level     domain.LogLevel `json:"level"`
	Message   string          `json:"message"`
	Line      string          `json:"line"`
}

// TradeResponse renders domain.TradeResult for a manual snipe.
type TradeResponse struct {
	Executed      bool             `json:"executed"`
	AttemptID     string           `json:"attempt_id,omitempty"`
	Success       bool             `json:"success"`
	TransactionID string           `json:"transaction_id,omitempty"`
	ErrorKind     domain.ErrorKind `json:"error_kind,omitempty"`
	Error         string           `json:"error,omitempty"`
}

// Handler serves the engine routes.
type Handler struct {
	ctrl     Controller
	validate *validator.Validate
	log      zerolog.Logger
}

// NewHandler creates a handler for ctrl.
func NewHandler(ctrl Controller, logger zerolog.Logger) *Handler {
	return &Handler{
		ctrl:     ctrl,
		validate: validator.New(),
		log:      logger.With().Str("component", "api").Logger(),
	}
}

// RegisterRoutes mounts the engine routes on e.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api")
	g.GET("/networks", h.networks)
	g.GET("/engine/snapshot", h.snapshot)
	g.POST("/engine/start", h.start)
	g.POST("/engine/stop", h.stop)
	g.POST("/engine/snipe", h.snipe)
}

func (h *Handler) networks(c echo.Context) error {
	return c.JSON(http.StatusOK, engine.Networks)
}

// snapshot accepts ?logs=N to return only the N most recent entries.
func (h *Handler) snapshot(c echo.Context) error {
	limit := -1
	if v := c.QueryParam("logs"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return badRequest(c, "ERR_BAD_REQUEST", "logs", "logs must be a non-negative integer")
		}
		limit = n
	}
	return c.JSON(http.StatusOK, renderSnapshot(h.ctrl.Snapshot(), limit))
}

func (h *Handler) start(c echo.Context) error {
	var req StartRequest
	if resp := h.bind(c, &req); resp != nil {
		return c.JSON(http.StatusBadRequest, resp)
	}

	endpoint, err := engine.ResolveEndpoint(req.Network)
	if err != nil {
		return badRequest(c, "ERR_UNKNOWN_NETWORK", "network", err.Error())
	}
	amount, err := engine.ParseAmount(req.SnipeAmount)
	if err != nil {
		return badRequest(c, "ERR_INVALID_AMOUNT", "snipe_amount", err.Error())
	}

	err = h.ctrl.Start(req.PrivateKey, domain.EngineConfig{NetworkEndpoint: endpoint, SnipeAmount: amount})
	switch {
	case err == nil:
	case errors.Is(err, credential.ErrInvalidCredentialFormat):
		return badRequest(c, string(domain.ErrorKindInvalidCredentialFormat), "private_key", "private key is not a valid base58 or JSON keypair")
	case errors.Is(err, engine.ErrInvalidConfig):
		return badRequest(c, "ERR_INVALID_CONFIG", "", err.Error())
	case errors.Is(err, engine.ErrClosed):
		return c.JSON(http.StatusServiceUnavailable, ErrorResponse{Code: "ERR_CLOSED", Message: err.Error()})
	default:
		h.log.Error().Err(err).Msg("start engine")
		return c.JSON(http.StatusBadGateway, ErrorResponse{Code: "ERR_START_FAILED", Message: err.Error()})
	}
	return c.JSON(http.StatusOK, renderSnapshot(h.ctrl.Snapshot(), 0))
}

func (h *Handler) stop(c echo.Context) error {
	h.ctrl.Stop()
	return c.JSON(http.StatusOK, renderSnapshot(h.ctrl.Snapshot(), 0))
}

func (h *Handler) snipe(c echo.Context) error {
	var req SnipeRequest
	if resp := h.bind(c, &req); resp != nil {
		return c.JSON(http.StatusBadRequest, resp)
	}

	result, ok, err := h.ctrl.Snipe(c.Request().Context(), req.Address)
	if errors.Is(err, credential.ErrInvalidAddress) {
		return badRequest(c, "ERR_INVALID_ADDRESS", "address", "address is not a base58 public key")
	}
	if err != nil {
		return c.JSON(http.StatusInternalServerError, ErrorResponse{Code: "ERR_INTERNAL", Message: err.Error()})
	}
	if !ok {
		return c.JSON(http.StatusConflict, TradeResponse{Executed: false})
	}
	return c.JSON(http.StatusOK, TradeResponse{
		Executed:      true,
		AttemptID:     result.AttemptID,
		Success:       result.Success,
		TransactionID: result.TransactionID,
		ErrorKind:     result.ErrorKind,
		Error:         result.Error,
	})
}

// bind reads, defaults and validates the request body. It returns the error
// body to send, or nil.
func (h *Handler) bind(c echo.Context, req any) *ErrorResponse {
	if err := c.Bind(req); err != nil {
		return &ErrorResponse{Code: "ERR_BAD_REQUEST", Message: "malformed request body"}
	}
	if err := defaults.Set(req); err != nil {
		return &ErrorResponse{Code: "ERR_BAD_REQUEST", Message: err.Error()}
	}
	if err := h.validate.StructCtx(c.Request().Context(), req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return &ErrorResponse{
				Code:    "ERR_" + strings.ToUpper(fe.Tag()),
				Field:   fe.Field(),
				Message: fe.Field() + " failed " + fe.Tag() + " validation",
			}
		}
		return &ErrorResponse{Code: "ERR_BAD_REQUEST", Message: err.Error()}
	}
	return nil
}

func badRequest(c echo.Context, code, field, msg string) error {
	return c.JSON(http.StatusBadRequest, ErrorResponse{Code: code, Field: field, Message: msg})
}

// renderSnapshot keeps the last limit log entries; a negative limit keeps all.
func renderSnapshot(s engine.Snapshot, limit int) SnapshotResponse {
	resp := SnapshotResponse{
		State:   s.State,
		Address: s.Address,
		Network: s.Config.NetworkEndpoint,
	}
	if s.Address != "" {
		resp.SnipeAmount = s.Config.SnipeAmount.String()
	}
	if s.Balance != nil {
		resp.Balance = &BalanceResponse{SOL: s.Balance.Value.String(), FetchedAt: s.Balance.FetchedAt}
	}

	logs := s.Logs
	if limit >= 0 && len(logs) > limit {
		logs = logs[len(logs)-limit:]
	}
	resp.Logs = make([]LogResponse, 0, len(logs))
	for _, e := range logs {
		resp.Logs = append(resp.Logs, LogResponse{
			Seq:       e.Seq,
			Timestamp: e.Timestamp,
			Level:     e.Level,
			Message:   e.Message,
			Line:      e.String(),
		})
	}
	return resp
}
