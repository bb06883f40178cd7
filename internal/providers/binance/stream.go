package binance

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"github.com/JGDev1215/OpenPredict/internal/domain"
)

// Stream delivers closed 1m candles from the kline websocket. Partial
// updates for the in-progress minute are dropped; only final candles
// reach the channel, so consumers never see a bar twice.
type Stream struct {
	baseURL string
	symbol  string

	mu        sync.RWMutex
	conn      *websocket.Conn
	connected bool

	bars        chan domain.Bar
	reconnectCh chan struct{}
	closeCh     chan struct{}
	closeOnce   sync.Once
}

// klineEvent is the stream payload; prices arrive as decimal strings.
type klineEvent struct {
	EventType string       `json:"e"`
	Kline     klinePayload `json:"k"`
}

type klinePayload struct {
	OpenTime int64  `json:"t"`
	Open     string `json:"o"`
	High     string `json:"h"`
	Low      string `json:"l"`
	Close    string `json:"c"`
	Volume   string `json:"v"`
	Final    bool   `json:"x"`
}

func NewStream(baseURL, symbol string) *Stream {
	if baseURL == "" {
		baseURL = "wss://stream.binance.com:9443"
	}
	return &Stream{
		baseURL:     baseURL,
		symbol:      symbol,
		bars:        make(chan domain.Bar, 16),
		reconnectCh: make(chan struct{}, 1),
		closeCh:     make(chan struct{}),
	}
}

// Connect dials the single-stream kline endpoint and starts the read
// and ping loops.
func (s *Stream) Connect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.connected {
		return fmt.Errorf("already connected")
	}

	endpoint := fmt.Sprintf("%s/ws/%s@kline_1m", s.baseURL, strings.ToLower(s.symbol))
	log.Info().Str("url", endpoint).Msg("connecting kline stream")

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 30 * time.Second

	conn, _, err := dialer.DialContext(ctx, endpoint, nil)
	if err != nil {
		return fmt.Errorf("kline stream dial: %w", err)
	}

	s.conn = conn
	s.connected = true

	go s.readLoop(ctx)
	go s.pingLoop(ctx)

	log.Info().Str("symbol", s.symbol).Msg("kline stream connected")
	return nil
}

// Bars is the closed-candle feed.
func (s *Stream) Bars() <-chan domain.Bar { return s.bars }

// Reconnect signals once when the stream needs redialing.
func (s *Stream) Reconnect() <-chan struct{} { return s.reconnectCh }

func (s *Stream) IsConnected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *Stream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return nil
	}
	s.closeOnce.Do(func() { close(s.closeCh) })

	err := s.conn.Close()
	s.conn = nil
	s.connected = false
	log.Info().Str("symbol", s.symbol).Msg("kline stream closed")
	return err
}

func (s *Stream) readLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closeCh:
			return
		default:
		}

		s.mu.RLock()
		conn := s.conn
		s.mu.RUnlock()
		if conn == nil {
			return
		}

		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-s.closeCh:
				return
			default:
			}
			log.Warn().Err(err).Str("symbol", s.symbol).Msg("kline stream read error")
			s.triggerReconnect()
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		if err := s.handleMessage(data); err != nil {
			log.Debug().Err(err).Msg("kline stream message dropped")
		}
	}
}

func (s *Stream) handleMessage(data []byte) error {
	var event klineEvent
	if err := json.Unmarshal(data, &event); err != nil {
		return fmt.Errorf("parse kline event: %w", err)
	}
	if event.EventType != "kline" || !event.Kline.Final {
		return nil
	}

	bar, err := event.Kline.bar()
	if err != nil {
		return err
	}

	select {
	case s.bars <- bar:
	case <-s.closeCh:
	default:
		log.Warn().Str("symbol", s.symbol).Msg("kline stream consumer lagging, candle dropped")
	}
	return nil
}

func (k klinePayload) bar() (domain.Bar, error) {
	fields := [5]string{k.Open, k.High, k.Low, k.Close, k.Volume}
	parsed := [5]float64{}
	for i, s := range fields {
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return domain.Bar{}, fmt.Errorf("parse kline field %q: %w", s, err)
		}
		parsed[i] = f
	}
	return domain.Bar{
		Timestamp: time.UnixMilli(k.OpenTime).UTC(),
		Open:      parsed[0],
		High:      parsed[1],
		Low:       parsed[2],
		Close:     parsed[3],
		Volume:    parsed[4],
	}, nil
}

func (s *Stream) pingLoop(ctx context.Context) {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.closeCh:
			return
		case <-ticker.C:
			if err := s.ping(); err != nil {
				log.Warn().Err(err).Str("symbol", s.symbol).Msg("kline stream ping failed")
				s.triggerReconnect()
				return
			}
		}
	}
}

func (s *Stream) ping() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.connected {
		return fmt.Errorf("not connected")
	}
	_ = s.conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return s.conn.WriteMessage(websocket.PingMessage, nil)
}

func (s *Stream) triggerReconnect() {
	select {
	case s.reconnectCh <- struct{}{}:
	default:
	}
}
