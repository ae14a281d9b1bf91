// Package api exposes the prediction pipeline over HTTP.
package api

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	domrepo "github.com/obertruper/BOT-AI-V3-sub003/internal/domain/repository"
	"github.com/obertruper/BOT-AI-V3-sub003/internal/features"
	"github.com/obertruper/BOT-AI-V3-sub003/internal/model"
	"github.com/obertruper/BOT-AI-V3-sub003/internal/service/ratelimit"
	"github.com/obertruper/BOT-AI-V3-sub003/internal/usecase"
	xhttp "github.com/obertruper/BOT-AI-V3-sub003/pkg/http"
	xlogger "github.com/obertruper/BOT-AI-V3-sub003/pkg/logger"
	"github.com/obertruper/BOT-AI-V3-sub003/pkg/util"

	"github.com/labstack/echo/v4"
)

// SignalsEchoHandler serves verdicts and pipeline introspection endpoints.
type SignalsEchoHandler struct {
	logger    *xlogger.Logger
	predictor *usecase.Predictor
	store     domrepo.CandleStore
	interval  time.Duration
	limiter   *ratelimit.Limiter
	rateLimit float64
}

// NewSignalsEchoHandler builds the handler. rateLimit is requests per second
// per client IP; zero disables limiting.
func NewSignalsEchoHandler(logger *xlogger.Logger, predictor *usecase.Predictor, store domrepo.CandleStore, interval time.Duration, limiter *ratelimit.Limiter, rateLimit int) *SignalsEchoHandler {
	return &SignalsEchoHandler{
		logger:    logger,
		predictor: predictor,
		store:     store,
		interval:  interval,
		limiter:   limiter,
		rateLimit: float64(rateLimit),
	}
}

// RegisterRoutes mounts the API.
func (h *SignalsEchoHandler) RegisterRoutes(e *echo.Echo) {
	g := e.Group("/api/v1")
	g.GET("/signal", h.Signal)
	g.GET("/candles", h.Candles)
	g.GET("/diversity", h.Diversity)
	e.GET("/healthz", h.Health)
}

type signalRequest struct {
	Symbol   string `query:"symbol" validate:"required"`
	Exchange string `query:"exchange"`
}

// Signal returns the verdict for a symbol's current time bucket, computing
// it on cache miss.
func (h *SignalsEchoHandler) Signal(c echo.Context) error {
	if !h.allow(c) {
		return xhttp.DataResponse(c, http.StatusTooManyRequests, map[string]string{
			"error": "rate limit exceeded",
		})
	}

	req := &signalRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}
	if req.Exchange == "" {
		req.Exchange = "bybit"
	}

	verdict, err := h.predictor.Predict(c.Request().Context(), req.Symbol, req.Exchange)
	if err != nil {
		h.logger.Error("signal request failed",
			xlogger.String("symbol", req.Symbol),
			xlogger.Error(err),
		)
		switch {
		case errors.Is(err, features.ErrInsufficientHistory):
			return xhttp.AppErrorResponse(c, xhttp.NewAppError(
				"INSUFFICIENT_HISTORY", "symbol",
				"not enough candle history for this symbol yet",
				http.StatusServiceUnavailable,
			))
		case errors.Is(err, model.ErrPredictionUnavailable):
			return xhttp.AppErrorResponse(c, xhttp.NewAppError(
				"PREDICTION_UNAVAILABLE", "",
				"prediction unavailable",
				http.StatusServiceUnavailable,
			))
		default:
			return xhttp.AppErrorResponse(c, err)
		}
	}
	return xhttp.SuccessResponse(c, verdict)
}

// Candles returns stored OHLCV history. Without a from/to range it serves
// the latest bars (default 96, capped at 1000).
func (h *SignalsEchoHandler) Candles(c echo.Context) error {
	if !h.allow(c) {
		return xhttp.DataResponse(c, http.StatusTooManyRequests, map[string]string{
			"error": "rate limit exceeded",
		})
	}

	symbol := c.QueryParam("symbol")
	if symbol == "" {
		return xhttp.BadRequestResponse(c, map[string]string{"symbol": "required"})
	}
	exchange := c.QueryParam("exchange")
	if exchange == "" {
		exchange = "bybit"
	}

	ctx := c.Request().Context()
	from, fromOK := xhttp.ParseTime(c.QueryParam("from"))
	to := xhttp.ParseTimeDefault(c.QueryParam("to"), time.Now().UTC())
	limit := xhttp.ParseIntDefault(c.QueryParam("limit"), 96)
	if limit > 1000 {
		limit = 1000
	}

	var (
		series interface{}
		err    error
	)
	if fromOK {
		tf := fmt.Sprintf("%dm", int(h.interval.Minutes()))
		from, to = util.AlignFromTo(from, to, tf)
		series, err = h.store.Fetch(ctx, symbol, exchange, h.interval, from, to)
	} else {
		series, err = h.store.Latest(ctx, symbol, exchange, h.interval, limit)
	}
	if err != nil {
		h.logger.Error("candle query failed",
			xlogger.String("symbol", symbol),
			xlogger.Error(err),
		)
		return xhttp.AppErrorResponse(c, err)
	}
	return xhttp.SuccessResponse(c, series)
}

// Diversity returns the monitor's current class distribution.
func (h *SignalsEchoHandler) Diversity(c echo.Context) error {
	return xhttp.SuccessResponse(c, h.predictor.Diversity())
}

// Health reports store and model readiness.
func (h *SignalsEchoHandler) Health(c echo.Context) error {
	if err := h.predictor.Health(c.Request().Context()); err != nil {
		return xhttp.DataResponse(c, http.StatusServiceUnavailable, map[string]string{
			"status": "unavailable",
			"reason": err.Error(),
		})
	}
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

func (h *SignalsEchoHandler) allow(c echo.Context) bool {
	if h.limiter == nil || h.rateLimit <= 0 {
		return true
	}
	return h.limiter.Allow(c.RealIP(), h.rateLimit, h.rateLimit)
}
