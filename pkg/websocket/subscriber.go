package websocket

import (
	"context"
	"fmt"
	"net/url"
	"sync"
	"time"

	json "github.com/goccy/go-json"
	"github.com/gorilla/websocket"
	"github.com/mselser95/lmsr-amm/internal/engine"
	"go.uber.org/zap"
)

// SubscriberConfig holds event stream client configuration.
type SubscriberConfig struct {
	URL string
	// MarketID restricts the stream to one market when set.
	MarketID    string
	DialTimeout time.Duration
	BufferSize  int
	Backoff     BackoffConfig
	Logger      *zap.Logger
}

// Subscriber reads the event stream of a running server and reconnects
// when the connection drops.
type Subscriber struct {
	cfg     SubscriberConfig
	logger  *zap.Logger
	backoff *Backoff
	events  chan engine.Event

	mu   sync.Mutex
	conn *websocket.Conn

	// lastSeq is the highest sequence number delivered.
	lastSeq uint64
}

// NewSubscriber creates a subscriber. Call Run to start reading.
func NewSubscriber(cfg SubscriberConfig) (*Subscriber, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("url cannot be empty")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse url: %w", err)
	}
	if cfg.MarketID != "" {
		q := u.Query()
		q.Set("market", cfg.MarketID)
		u.RawQuery = q.Encode()
		cfg.URL = u.String()
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1000
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return &Subscriber{
		cfg:     cfg,
		logger:  cfg.Logger,
		backoff: NewBackoff(cfg.Backoff, cfg.Logger),
		events:  make(chan engine.Event, cfg.BufferSize),
	}, nil
}

// Events returns the channel of received events. It is closed when Run
// returns.
func (s *Subscriber) Events() <-chan engine.Event {
	return s.events
}

// Run connects and delivers events until ctx ends. An event whose sequence
// number is not above the last delivered one is skipped.
func (s *Subscriber) Run(ctx context.Context) error {
	defer close(s.events)

	for {
		err := s.backoff.Retry(ctx, s.connect)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}

		s.read(ctx)

		if ctx.Err() != nil {
			return nil
		}
		s.logger.Warn("event-stream-lost-reconnecting", zap.Uint64("last-seq", s.lastSeq))
	}
}

func (s *Subscriber) connect(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: s.cfg.DialTimeout}

	s.logger.Info("connecting-to-event-stream", zap.String("url", s.cfg.URL))

	conn, _, err := dialer.DialContext(ctx, s.cfg.URL, nil)
	if err != nil {
		return fmt.Errorf("dial: %w", err)
	}

	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()

	s.logger.Info("event-stream-connected")
	return nil
}

func (s *Subscriber) read(ctx context.Context) {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-stop:
		}
	}()
	defer conn.Close()

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			s.logger.Debug("event-stream-read-error", zap.Error(err))
			return
		}

		var ev engine.Event
		err = json.Unmarshal(message, &ev)
		if err != nil {
			s.logger.Warn("event-stream-unparseable-message",
				zap.Error(err),
				zap.Int("bytes", len(message)))
			MessagesDroppedTotal.WithLabelValues("decode_error").Inc()
			continue
		}

		if ev.Seq != 0 && ev.Seq <= s.lastSeq {
			continue
		}
		s.lastSeq = ev.Seq
		EventsReceivedTotal.WithLabelValues(string(ev.Type)).Inc()

		select {
		case s.events <- ev:
		case <-ctx.Done():
			return
		}
	}
}

// Close closes the current connection. Run reconnects unless its context
// is cancelled.
func (s *Subscriber) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}
