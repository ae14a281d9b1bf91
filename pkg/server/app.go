// Package server owns the application lifecycle: it starts the HTTP API,
// the Kafka consumer and the market stream, and tears them down in order on
// shutdown.
package server

import (
	"context"
	"os/signal"
	"syscall"

	domrepo "github.com/obertruper/BOT-AI-V3-sub003/internal/domain/repository"
	mid "github.com/obertruper/BOT-AI-V3-sub003/internal/middleware"
	internalrepo "github.com/obertruper/BOT-AI-V3-sub003/internal/repository"
	sig "github.com/obertruper/BOT-AI-V3-sub003/internal/signal"
	"github.com/obertruper/BOT-AI-V3-sub003/internal/usecase"
	"github.com/obertruper/BOT-AI-V3-sub003/pkg/config"
	xhttp "github.com/obertruper/BOT-AI-V3-sub003/pkg/http"
	pkgkafka "github.com/obertruper/BOT-AI-V3-sub003/pkg/kafka"
	applogger "github.com/obertruper/BOT-AI-V3-sub003/pkg/logger"
)

// App encapsulates the application lifecycle. Consumer, stream and publisher
// may be nil when the corresponding transport is disabled in config.
type App struct {
	cfg           *config.Config
	log           *applogger.Logger
	httpServer    *xhttp.Server
	consumer      *pkgkafka.Consumer
	candleHandler *usecase.CandleCloseHandler
	stream        domrepo.MarketStream
	pipeline      *mid.RealtimePipeline
	sigCache      *sig.Cache
	store         *internalrepo.ClickHouseCandleStore
	publisher     domrepo.VerdictPublisher
}

// New creates the App from its assembled dependencies.
func New(
	cfg *config.Config,
	log *applogger.Logger,
	httpServer *xhttp.Server,
	consumer *pkgkafka.Consumer,
	candleHandler *usecase.CandleCloseHandler,
	stream domrepo.MarketStream,
	pipeline *mid.RealtimePipeline,
	sigCache *sig.Cache,
	store *internalrepo.ClickHouseCandleStore,
	publisher domrepo.VerdictPublisher,
) *App {
	return &App{
		cfg:           cfg,
		log:           log,
		httpServer:    httpServer,
		consumer:      consumer,
		candleHandler: candleHandler,
		stream:        stream,
		pipeline:      pipeline,
		sigCache:      sigCache,
		store:         store,
		publisher:     publisher,
	}
}

// Run starts every enabled component and blocks until SIGINT or SIGTERM.
func (a *App) Run() error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go a.sigCache.RunSweeper(ctx, a.cfg.Pipeline.CacheSweepEvery)

	if a.consumer != nil {
		a.consumer.RegisterHandler(a.candleHandler)
		go func() {
			if err := a.consumer.Start(); err != nil {
				a.log.Error("kafka consumer stopped", applogger.Error(err))
			}
		}()
		a.log.Info("kafka consumer started", applogger.String("topic", a.candleHandler.Topic()))
	}

	if a.stream != nil {
		a.pipeline.Start(ctx)
		go a.runStream(ctx)
		a.log.Info("market stream started", applogger.Strings("symbols", a.cfg.Pipeline.Symbols))
	}

	if err := a.httpServer.Start(); err != nil {
		a.log.Error("http server start failed", applogger.Error(err))
		return err
	}
	a.log.Info("http server started", applogger.Int("port", a.cfg.Server.Port))

	<-ctx.Done()
	a.log.Info("shutdown signal received")
	return a.shutdown()
}

// runStream pumps closed candles from the WebSocket into the pipeline,
// reconnecting with the stream's configured delay when the read loop ends.
func (a *App) runStream(ctx context.Context) {
	connected := false
	if err := a.stream.Connect(ctx); err != nil {
		a.log.Warn("stream connect failed", applogger.Error(err))
	} else if err := a.stream.Subscribe(ctx); err != nil {
		a.log.Warn("stream subscribe failed", applogger.Error(err))
	} else {
		connected = true
	}

	for {
		if !connected {
			if ctx.Err() != nil {
				return
			}
			if err := a.stream.Reconnect(ctx); err != nil {
				if ctx.Err() != nil {
					return
				}
				a.log.Warn("stream reconnect failed", applogger.Error(err))
				continue
			}
			connected = true
		}

		candles, errs := a.stream.Read(ctx)
	read:
		for {
			select {
			case <-ctx.Done():
				return
			case c, ok := <-candles:
				if !ok {
					break read
				}
				if c == nil {
					continue
				}
				if err := a.pipeline.Process(ctx, c); err != nil {
					a.log.Warn("candle processing failed",
						applogger.String("symbol", c.Symbol),
						applogger.Error(err),
					)
				}
			case err, ok := <-errs:
				if ok && err != nil {
					a.log.Warn("stream read failed", applogger.Error(err))
				}
				break read
			}
		}
		connected = false
	}
}

// shutdown stops components in reverse dependency order.
func (a *App) shutdown() error {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()

	if err := a.httpServer.Stop(shutdownCtx); err != nil {
		a.log.Warn("http shutdown error", applogger.Error(err))
	}

	if a.stream != nil {
		if err := a.stream.Close(); err != nil {
			a.log.Warn("stream close error", applogger.Error(err))
		}
		a.pipeline.Stop()
	}

	if a.consumer != nil {
		if err := a.consumer.Stop(shutdownCtx); err != nil {
			a.log.Warn("kafka consumer stop error", applogger.Error(err))
		}
	}

	if a.publisher != nil {
		if err := a.publisher.Close(); err != nil {
			a.log.Warn("verdict publisher close error", applogger.Error(err))
		}
	}

	if err := a.store.Close(); err != nil {
		a.log.Warn("candle store close error", applogger.Error(err))
	}

	a.log.Info("shutdown complete")
	return nil
}
