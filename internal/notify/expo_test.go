package notify_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
	"github.com/BrandonDHaskell/Cerberus/server/internal/notify"
)

type captured struct {
	mu   sync.Mutex
	msgs []map[string]any
}

func (c *captured) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var m map[string]any
		if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
			t.Errorf("decode: %v", err)
		}
		c.mu.Lock()
		c.msgs = append(c.msgs, m)
		c.mu.Unlock()
		_, _ = w.Write([]byte(`{"data":{"status":"ok"}}`))
	}
}

func (c *captured) len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.msgs)
}

func event(name string) types.DetectionEvent {
	return types.DetectionEvent{
		ID:        "ev-1",
		Kind:      types.EventIdentity,
		Name:      name,
		Timestamp: time.Date(2026, 3, 1, 9, 30, 0, 0, time.UTC),
	}
}

func TestSend_Payload(t *testing.T) {
	c := &captured{}
	srv := httptest.NewServer(c.handler(t))
	defer srv.Close()

	e := notify.NewExpo(notify.Config{Endpoint: srv.URL}, zap.NewNop())
	e.SetToken(" ExponentPushToken[abc] ")

	require.NoError(t, e.Send(context.Background(), event("Alice")))
	require.Equal(t, 1, c.len())

	m := c.msgs[0]
	require.Equal(t, "ExponentPushToken[abc]", m["to"])
	require.Equal(t, "default", m["sound"])
	require.Equal(t, "Alice Detected!", m["title"])
	require.Contains(t, m["body"], "At ")
	data, ok := m["data"].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "ev-1", data["id"])
}

func TestSend_MotionTitle(t *testing.T) {
	c := &captured{}
	srv := httptest.NewServer(c.handler(t))
	defer srv.Close()

	e := notify.NewExpo(notify.Config{Endpoint: srv.URL}, zap.NewNop())
	e.SetToken("tok")

	ev := event(types.MotionName)
	ev.Kind = types.EventMotion
	require.NoError(t, e.Send(context.Background(), ev))
	require.Equal(t, 1, c.len())
	require.Equal(t, "Motion Detected!", c.msgs[0]["title"])
}

func TestSend_NoToken(t *testing.T) {
	e := notify.NewExpo(notify.Config{Endpoint: "http://127.0.0.1:0"}, zap.NewNop())
	require.ErrorIs(t, e.Send(context.Background(), event("Alice")), notify.ErrNoToken)
}

func TestSend_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	e := notify.NewExpo(notify.Config{Endpoint: srv.URL}, zap.NewNop())
	e.SetToken("tok")
	err := e.Send(context.Background(), event("Alice"))
	require.Error(t, err)
	require.Contains(t, err.Error(), "500")
}

func TestNotify_SkipsWithoutToken(t *testing.T) {
	c := &captured{}
	srv := httptest.NewServer(c.handler(t))
	defer srv.Close()

	e := notify.NewExpo(notify.Config{Endpoint: srv.URL}, zap.NewNop())
	e.Notify(event("Alice"))
	e.Wait()
	require.Equal(t, 0, c.len())
}

func TestNotify_RateLimited(t *testing.T) {
	c := &captured{}
	srv := httptest.NewServer(c.handler(t))
	defer srv.Close()

	e := notify.NewExpo(notify.Config{Endpoint: srv.URL, PerMinute: 1, Burst: 2}, zap.NewNop())
	e.SetToken("tok")
	for i := 0; i < 5; i++ {
		e.Notify(event("Alice"))
	}
	e.Wait()
	require.Equal(t, 2, c.len())
}
