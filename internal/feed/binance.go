package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/navid-fn/flowscope/internal/models"
	"github.com/sirupsen/logrus"
)

// ErrControlFrame is returned by DecodeAggTrade for a reply to a
// subscription request rather than a trade.
var ErrControlFrame = errors.New("control frame")

// subscribeRequest asks the stream for the listed channels. The connection
// URL already names the stream; subscribing again is idempotent and makes
// the server confirm the channel.
type subscribeRequest struct {
	Method string   `json:"method"`
	Params []string `json:"params"`
	ID     int64    `json:"id"`
}

// aggTradeEvent is the Binance aggTrade payload. Every single-letter key is
// declared so that case-insensitive matching cannot fold "M" into "m" or
// "E" into "e".
type aggTradeEvent struct {
	EventType string `json:"e"`
	EventTime int64  `json:"E"`
	Symbol    string `json:"s"`
	AggID     int64  `json:"a"`
	FirstID   int64  `json:"f"`
	LastID    int64  `json:"l"`
	BestMatch bool   `json:"M"`
	models.RawTick

	// RequestID is only set on replies to a subscribeRequest.
	RequestID *int64 `json:"id"`
}

// BinanceSource streams aggregated trades for one symbol.
type BinanceSource struct {
	url    string
	stream string
	symbol string
	logger *logrus.Logger
}

// NewBinanceSource creates a source for <baseURL>/<symbol>@aggTrade.
func NewBinanceSource(baseURL, symbol string, logger *logrus.Logger) *BinanceSource {
	stream := strings.ToLower(symbol) + "@aggTrade"
	return &BinanceSource{
		url:    fmt.Sprintf("%s/%s", strings.TrimRight(baseURL, "/"), stream),
		stream: stream,
		symbol: symbol,
		logger: logger,
	}
}

func (b *BinanceSource) Name() string { return "binance" }

// URL returns the stream URL.
func (b *BinanceSource) URL() string { return b.url }

// Run connects and forwards trades until ctx is cancelled, reconnecting on failure.
func (b *BinanceSource) Run(ctx context.Context, h Handler) error {
	h.status(models.FeedConnecting)

	var client *WSClient
	client = NewWSClient(WSConfig{URL: b.url}, WSHandler{
		OnConnect: func(conn *websocket.Conn) error {
			b.logger.WithField("stream", b.stream).Info("Subscribing to Binance stream")
			return client.WriteJSON(conn, subscribeRequest{
				Method: "SUBSCRIBE",
				Params: []string{b.stream},
				ID:     1,
			})
		},
		OnMessage: func(msg []byte) error {
			raw, err := DecodeAggTrade(msg)
			if errors.Is(err, ErrControlFrame) {
				return nil
			}
			if err != nil {
				return err
			}
			h.tick(raw)
			return nil
		},
		OnStatus: func(connected bool) {
			if connected {
				h.status(models.FeedLive)
			} else if ctx.Err() == nil {
				h.status(models.FeedReconnecting)
			}
		},
	}, b.logger)

	b.logger.WithField("symbol", b.symbol).Info("Starting Binance trade stream")
	return client.Run(ctx)
}

// DecodeAggTrade extracts the raw trade from an aggTrade frame.
func DecodeAggTrade(msg []byte) (models.RawTick, error) {
	var ev aggTradeEvent
	if err := json.Unmarshal(msg, &ev); err != nil {
		return models.RawTick{}, fmt.Errorf("decode aggTrade: %w", err)
	}
	if ev.RequestID != nil {
		return models.RawTick{}, fmt.Errorf("decode aggTrade: %w for request %d", ErrControlFrame, *ev.RequestID)
	}
	if ev.EventType != "" && ev.EventType != "aggTrade" {
		return models.RawTick{}, fmt.Errorf("decode aggTrade: unexpected event %q", ev.EventType)
	}
	return ev.RawTick, nil
}
