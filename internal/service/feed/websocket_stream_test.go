package feed

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"TokenPulse/internal/domain/models"
)

func TestDecodeFrame(t *testing.T) {
	f, err := decodeFrame([]byte(`{"type":"tx","data":[{"signature":"s1","slot":9,"timestamp":"2025-03-08T12:00:00Z","mint":"M","wallet":"w","role":"buyer","token_delta":5,"price":0.1,"program_ids":["JUP6LkbZbjS1jKKwapdHNy74zcZ3tLUZoi5QNyVTaV4"]}]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if f.Type != frameTx || len(f.Data) != 1 {
		t.Fatalf("frame %+v", f)
	}
	ev := f.Data[0]
	if ev.Signature != "s1" || ev.Slot != 9 || ev.Role != models.RoleBuyer || ev.TokenDelta != 5 || len(ev.ProgramIDs) != 1 {
		t.Fatalf("event %+v", ev)
	}
	if !ev.Timestamp.Equal(time.Date(2025, 3, 8, 12, 0, 0, 0, time.UTC)) {
		t.Fatalf("timestamp %v", ev.Timestamp)
	}

	for _, bad := range []string{`not json`, `{"data":[]}`} {
		if _, err := decodeFrame([]byte(bad)); !errors.Is(err, models.ErrMalformedEvent) {
			t.Errorf("%q: %v", bad, err)
		}
	}

	if err := (relayFrame{Type: frameError, Code: codeInvalidToken, Message: "unknown mint"}).err(); !errors.Is(err, models.ErrInvalidToken) {
		t.Fatalf("invalid token mapping: %v", err)
	}
	if err := (relayFrame{Type: frameError, Code: "rate_limited"}).err(); !errors.Is(err, models.ErrConnection) {
		t.Fatalf("generic error mapping: %v", err)
	}
}

// relayServer acknowledges subscriptions for "good" and rejects anything else.
// After the ack it sends the frames in script and then closes the connection
// when hangUp is set.
func relayServer(t *testing.T, script []string, hangUp bool) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		var sub relayFrame
		if err := conn.ReadJSON(&sub); err != nil {
			return
		}
		if sub.Token != "good" {
			_ = conn.WriteJSON(relayFrame{Type: frameError, Code: codeInvalidToken, Message: "unknown mint"})
			return
		}
		_ = conn.WriteJSON(relayFrame{Type: frameSubscribed, Token: sub.Token})
		for _, frame := range script {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(frame))
		}
		if hangUp {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestWebSocketStreamDeliversAndFails(t *testing.T) {
	srv := relayServer(t, []string{
		`{"type":"tx","data":[{"signature":"a","mint":"good","wallet":"w","token_delta":1,"timestamp":"2025-03-08T12:00:00Z"}]}`,
		`garbage`,
		`{"type":"tx","data":[{"signature":"other","mint":"someone-else","wallet":"w","token_delta":1,"timestamp":"2025-03-08T12:00:00Z"}]}`,
		`{"type":"tx","data":[{"signature":"b","wallet":"w","token_delta":-1,"timestamp":"2025-03-08T12:00:01Z"}]}`,
	}, true)
	defer srv.Close()

	stream := NewWebSocketStream(wsURL(srv), "key", time.Second, time.Second)
	var mu sync.Mutex
	var got []string
	failed := make(chan error, 1)
	h, err := stream.Subscribe(context.Background(), "good",
		func(ev models.RawEvent) {
			mu.Lock()
			got = append(got, ev.Signature)
			mu.Unlock()
		},
		func(err error) { failed <- err },
	)
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	select {
	case err := <-failed:
		if !errors.Is(err, models.ErrConnection) {
			t.Fatalf("stream error %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatalf("no stream failure after server hang-up")
	}
	mu.Lock()
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("events %v", got)
	}
	mu.Unlock()
	if err := stream.Unsubscribe(context.Background(), h); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
}

func TestWebSocketStreamRejectsUnknownToken(t *testing.T) {
	srv := relayServer(t, nil, false)
	defer srv.Close()
	stream := NewWebSocketStream(wsURL(srv), "", time.Second, time.Second)
	_, err := stream.Subscribe(context.Background(), "bad", func(models.RawEvent) {}, func(error) {})
	if !errors.Is(err, models.ErrInvalidToken) {
		t.Fatalf("err %v", err)
	}
}

func TestWebSocketStreamUnsubscribeIsQuiet(t *testing.T) {
	srv := relayServer(t, nil, false)
	defer srv.Close()
	stream := NewWebSocketStream(wsURL(srv), "", time.Second, time.Second)
	failed := make(chan error, 1)
	h, err := stream.Subscribe(context.Background(), "good", func(models.RawEvent) {}, func(err error) { failed <- err })
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	if err := stream.Unsubscribe(context.Background(), h); err != nil {
		t.Fatalf("unsubscribe: %v", err)
	}
	select {
	case err := <-failed:
		t.Fatalf("onError after unsubscribe: %v", err)
	case <-time.After(50 * time.Millisecond):
	}
	if err := stream.Unsubscribe(context.Background(), h); err != nil {
		t.Fatalf("second unsubscribe: %v", err)
	}
}

func TestDialFailureIsRetryable(t *testing.T) {
	stream := NewWebSocketStream("ws://127.0.0.1:1", "", time.Second, 200*time.Millisecond)
	_, err := stream.Subscribe(context.Background(), "good", func(models.RawEvent) {}, func(error) {})
	if !errors.Is(err, models.ErrConnection) || !models.IsRetryable(err) {
		t.Fatalf("err %v", err)
	}
}
