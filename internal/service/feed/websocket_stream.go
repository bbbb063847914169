package feed

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"TokenPulse/internal/domain/models"
	drepo "TokenPulse/internal/domain/repository"
	applogger "TokenPulse/pkg/logger"
)

const (
	frameSubscribe   = "subscribe"
	frameUnsubscribe = "unsubscribe"
	frameSubscribed  = "subscribed"
	frameTx          = "tx"
	frameError       = "error"

	codeInvalidToken = "invalid_token"
)

// relayFrame is the JSON envelope exchanged with the swap relay.
type relayFrame struct {
	Type    string            `json:"type"`
	Token   string            `json:"token,omitempty"`
	Data    []models.RawEvent `json:"data,omitempty"`
	Code    string            `json:"code,omitempty"`
	Message string            `json:"message,omitempty"`
}

func decodeFrame(b []byte) (relayFrame, error) {
	var f relayFrame
	if err := json.Unmarshal(b, &f); err != nil {
		return relayFrame{}, fmt.Errorf("%w: relay frame: %v", models.ErrMalformedEvent, err)
	}
	if f.Type == "" {
		return relayFrame{}, fmt.Errorf("%w: relay frame without type", models.ErrMalformedEvent)
	}
	return f, nil
}

func (f relayFrame) err() error {
	if f.Code == codeInvalidToken {
		return fmt.Errorf("%w: %s", models.ErrInvalidToken, f.Message)
	}
	return fmt.Errorf("%w: relay error %s: %s", models.ErrConnection, f.Code, f.Message)
}

// WebSocketStream is an EventSource over a swap relay speaking JSON frames.
// Each subscription owns one connection.
type WebSocketStream struct {
	url              string
	apiKey           string
	pingInterval     time.Duration
	handshakeTimeout time.Duration
	dialer           *websocket.Dialer
	l                *applogger.Logger

	mu   sync.Mutex
	subs map[drepo.SubscriptionHandle]*wsSubscription
	seq  uint64
}

type wsSubscription struct {
	conn    *websocket.Conn
	closing atomic.Bool
	done    chan struct{}
	stop    chan struct{}
}

func NewWebSocketStream(rawURL, apiKey string, pingInterval, handshakeTimeout time.Duration) *WebSocketStream {
	if pingInterval <= 0 {
		pingInterval = 20 * time.Second
	}
	if handshakeTimeout <= 0 {
		handshakeTimeout = 10 * time.Second
	}
	return &WebSocketStream{
		url:              rawURL,
		apiKey:           apiKey,
		pingInterval:     pingInterval,
		handshakeTimeout: handshakeTimeout,
		dialer:           &websocket.Dialer{HandshakeTimeout: handshakeTimeout},
		subs:             make(map[drepo.SubscriptionHandle]*wsSubscription),
	}
}

// SetLogger injects a structured logger.
func (s *WebSocketStream) SetLogger(l *applogger.Logger) { s.l = l }

func (s *WebSocketStream) endpoint() (string, error) {
	u, err := url.Parse(s.url)
	if err != nil {
		return "", fmt.Errorf("relay url: %w", err)
	}
	if s.apiKey != "" {
		q := u.Query()
		q.Set("api-key", s.apiKey)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// Subscribe dials the relay, sends the subscribe frame and waits for the
// acknowledgement. A relay rejecting the mint yields ErrInvalidToken.
func (s *WebSocketStream) Subscribe(ctx context.Context, tokenID string, onEvent func(models.RawEvent), onError func(error)) (drepo.SubscriptionHandle, error) {
	u, err := s.endpoint()
	if err != nil {
		return "", err
	}
	conn, _, err := s.dialer.DialContext(ctx, u, nil)
	if err != nil {
		return "", fmt.Errorf("%w: relay dial: %v", models.ErrConnection, err)
	}

	if err := s.handshake(conn, tokenID); err != nil {
		_ = conn.Close()
		return "", err
	}

	sub := &wsSubscription{conn: conn, done: make(chan struct{}), stop: make(chan struct{})}
	s.mu.Lock()
	s.seq++
	h := drepo.SubscriptionHandle(tokenID + "#ws" + strconv.FormatUint(s.seq, 10))
	s.subs[h] = sub
	s.mu.Unlock()

	go s.pingLoop(sub)
	go s.readLoop(sub, tokenID, onEvent, onError)
	s.l.Info("relay subscribed", applogger.String("token", tokenID), applogger.String("handle", string(h)))
	return h, nil
}

func (s *WebSocketStream) handshake(conn *websocket.Conn, tokenID string) error {
	_ = conn.SetWriteDeadline(time.Now().Add(s.handshakeTimeout))
	if err := conn.WriteJSON(relayFrame{Type: frameSubscribe, Token: tokenID}); err != nil {
		return fmt.Errorf("%w: relay subscribe: %v", models.ErrConnection, err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(s.handshakeTimeout))
	for {
		_, b, err := conn.ReadMessage()
		if err != nil {
			return fmt.Errorf("%w: relay ack: %v", models.ErrConnection, err)
		}
		f, err := decodeFrame(b)
		if err != nil {
			continue
		}
		switch f.Type {
		case frameSubscribed:
			return nil
		case frameError:
			return f.err()
		}
	}
}

func (s *WebSocketStream) pingLoop(sub *wsSubscription) {
	ticker := time.NewTicker(s.pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-sub.stop:
			return
		case <-ticker.C:
			if err := sub.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}

func (s *WebSocketStream) readLoop(sub *wsSubscription, tokenID string, onEvent func(models.RawEvent), onError func(error)) {
	defer close(sub.done)
	idle := 3 * s.pingInterval
	_ = sub.conn.SetReadDeadline(time.Now().Add(idle))
	sub.conn.SetPongHandler(func(string) error {
		return sub.conn.SetReadDeadline(time.Now().Add(idle))
	})

	for {
		_, b, err := sub.conn.ReadMessage()
		if err != nil {
			if sub.closing.Load() {
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.l.Warn("relay closed unexpectedly", applogger.String("token", tokenID), applogger.Error(err))
			}
			onError(fmt.Errorf("%w: relay read: %v", models.ErrConnection, err))
			return
		}
		_ = sub.conn.SetReadDeadline(time.Now().Add(idle))

		f, err := decodeFrame(b)
		if err != nil {
			s.l.Debug("relay frame skipped", applogger.Error(err))
			continue
		}
		switch f.Type {
		case frameTx:
			for _, ev := range f.Data {
				if ev.Mint != "" && ev.Mint != tokenID {
					continue
				}
				onEvent(ev)
			}
		case frameError:
			if sub.closing.Load() {
				return
			}
			onError(f.err())
			return
		}
	}
}

// Unsubscribe closes the subscription's connection and waits for its reader.
func (s *WebSocketStream) Unsubscribe(ctx context.Context, h drepo.SubscriptionHandle) error {
	s.mu.Lock()
	sub, ok := s.subs[h]
	delete(s.subs, h)
	s.mu.Unlock()
	if !ok {
		return nil
	}

	sub.closing.Store(true)
	close(sub.stop)
	_ = sub.conn.SetWriteDeadline(time.Now().Add(time.Second))
	_ = sub.conn.WriteJSON(relayFrame{Type: frameUnsubscribe})
	_ = sub.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
	closeErr := sub.conn.Close()

	select {
	case <-sub.done:
	case <-ctx.Done():
		return fmt.Errorf("unsubscribe %s: %w", h, ctx.Err())
	}
	if closeErr != nil && !errors.Is(closeErr, websocket.ErrCloseSent) {
		s.l.Debug("relay close", applogger.String("handle", string(h)), applogger.Error(closeErr))
	}
	return nil
}
