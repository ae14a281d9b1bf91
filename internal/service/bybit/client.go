// Package bybit implements a MarketStream over the Bybit v5 public kline
// WebSocket. Only confirmed (closed) candles are emitted downstream.
package bybit

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gorilla/websocket"

	"github.com/obertruper/BOT-AI-V3-sub003/internal/domain/models"
	drepo "github.com/obertruper/BOT-AI-V3-sub003/internal/domain/repository"
	applogger "github.com/obertruper/BOT-AI-V3-sub003/pkg/logger"
)

// Client implements a MarketStream backed by the Bybit kline stream.
type Client struct {
	websocketURL   string
	symbols        []string
	interval       string // kline interval in Bybit notation, e.g. "15"
	reconnectDelay time.Duration
	pingInterval   time.Duration
	log            *applogger.Logger

	conn      *websocket.Conn
	connected bool
}

// New creates a Bybit MarketStream for the given symbols.
func New(websocketURL string, symbols []string, interval string, reconnectDelay, pingInterval time.Duration, log *applogger.Logger) drepo.MarketStream {
	return &Client{
		websocketURL:   websocketURL,
		symbols:        symbols,
		interval:       interval,
		reconnectDelay: reconnectDelay,
		pingInterval:   pingInterval,
		log:            log,
	}
}

// Connect establishes the WebSocket connection.
func (c *Client) Connect(ctx context.Context) error {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.websocketURL, nil)
	if err != nil {
		return fmt.Errorf("bybit connect: %w", err)
	}
	c.conn = conn
	c.connected = true
	if c.log != nil {
		c.log.Info("bybit stream connected", applogger.String("url", c.websocketURL))
	}
	return nil
}

// Subscribe subscribes to the kline topic for every configured symbol.
func (c *Client) Subscribe(ctx context.Context) error {
	if c.conn == nil || !c.connected {
		return fmt.Errorf("bybit not connected")
	}
	args := make([]string, 0, len(c.symbols))
	for _, s := range c.symbols {
		args = append(args, fmt.Sprintf("kline.%s.%s", c.interval, s))
	}
	msg := map[string]interface{}{"op": "subscribe", "args": args}
	if err := c.conn.WriteJSON(msg); err != nil {
		return fmt.Errorf("bybit subscribe: %w", err)
	}
	if c.log != nil {
		c.log.Info("bybit stream subscribed", applogger.Strings("topics", args))
	}
	return nil
}

type klineEntry struct {
	Start    int64  `json:"start"` // ms
	Open     string `json:"open"`
	High     string `json:"high"`
	Low      string `json:"low"`
	Close    string `json:"close"`
	Volume   string `json:"volume"`
	Turnover string `json:"turnover"`
	Confirm  bool   `json:"confirm"`
}

type klineMessage struct {
	Topic string       `json:"topic"`
	Data  []klineEntry `json:"data"`
}

// Read streams closed candles and errors. Unconfirmed in-progress klines and
// non-kline frames are skipped.
func (c *Client) Read(ctx context.Context) (<-chan *models.Candle, <-chan error) {
	candles := make(chan *models.Candle, 1024)
	errs := make(chan error, 1)

	// Bybit drops idle connections; the ping loop keeps it alive
	go func() {
		ticker := time.NewTicker(c.pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if c.conn != nil {
					_ = c.conn.WriteJSON(map[string]string{"op": "ping"})
				}
			}
		}
	}()

	go func() {
		defer close(candles)
		defer close(errs)
		for {
			select {
			case <-ctx.Done():
				return
			default:
				if c.conn == nil {
					errs <- fmt.Errorf("bybit conn nil")
					return
				}
				_, b, err := c.conn.ReadMessage()
				if err != nil {
					errs <- fmt.Errorf("bybit read: %w", err)
					return
				}
				var m klineMessage
				if err := json.Unmarshal(b, &m); err != nil {
					continue
				}
				symbol, ok := symbolFromTopic(m.Topic)
				if !ok {
					continue
				}
				for _, k := range m.Data {
					if !k.Confirm {
						continue
					}
					candle, err := k.toCandle(symbol)
					if err != nil {
						if c.log != nil {
							c.log.Warn("bybit kline malformed, skipped",
								applogger.String("symbol", symbol),
								applogger.Error(err),
							)
						}
						continue
					}
					select {
					case candles <- candle:
					default:
						// drop on backpressure
					}
				}
			}
		}
	}()

	return candles, errs
}

// Reconnect closes and reconnects after the configured delay.
func (c *Client) Reconnect(ctx context.Context) error {
	_ = c.Close()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(c.reconnectDelay):
	}
	if err := c.Connect(ctx); err != nil {
		return err
	}
	return c.Subscribe(ctx)
}

// Close closes the WS connection.
func (c *Client) Close() error {
	c.connected = false
	if c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// IsConnected indicates status.
func (c *Client) IsConnected() bool { return c.connected }

func (k klineEntry) toCandle(symbol string) (*models.Candle, error) {
	parse := func(name, s string) (float64, error) {
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("kline %s %q: %w", name, s, err)
		}
		return v, nil
	}
	open, err := parse("open", k.Open)
	if err != nil {
		return nil, err
	}
	high, err := parse("high", k.High)
	if err != nil {
		return nil, err
	}
	low, err := parse("low", k.Low)
	if err != nil {
		return nil, err
	}
	closeP, err := parse("close", k.Close)
	if err != nil {
		return nil, err
	}
	volume, err := parse("volume", k.Volume)
	if err != nil {
		return nil, err
	}
	turnover, err := parse("turnover", k.Turnover)
	if err != nil {
		return nil, err
	}
	c := &models.Candle{
		Symbol:    symbol,
		Timestamp: time.UnixMilli(k.Start).UTC(),
		Open:      open,
		High:      high,
		Low:       low,
		Close:     closeP,
		Volume:    volume,
		Turnover:  turnover,
	}
	c.DeriveTurnover()
	return c, nil
}

// symbolFromTopic extracts the symbol from "kline.15.BTCUSDT".
func symbolFromTopic(topic string) (string, bool) {
	const prefix = "kline."
	if len(topic) <= len(prefix) || topic[:len(prefix)] != prefix {
		return "", false
	}
	rest := topic[len(prefix):]
	for i := 0; i < len(rest); i++ {
		if rest[i] == '.' {
			if i+1 >= len(rest) {
				return "", false
			}
			return rest[i+1:], true
		}
	}
	return "", false
}
