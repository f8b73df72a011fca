// Package notify delivers detection events to a phone through the Expo push
// service.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
)

const DefaultEndpoint = "https://exp.host/--/api/v2/push/send"

// ErrNoToken is returned by Send before any device has registered.
var ErrNoToken = errors.New("notify: no push token registered")

type Config struct {
	Endpoint string
	Timeout  time.Duration
	// PerMinute caps deliveries; bursts above it are dropped. 0 means 30.
	PerMinute int
	Burst     int
}

type message struct {
	To    string               `json:"to"`
	Sound string               `json:"sound"`
	Title string               `json:"title"`
	Body  string               `json:"body"`
	Data  types.DetectionEvent `json:"data"`
}

// Expo implements service.Notifier. Notify never blocks the caller.
type Expo struct {
	endpoint string
	client   *http.Client
	limiter  *rate.Limiter
	logger   *zap.Logger

	mu    sync.RWMutex
	token string

	wg sync.WaitGroup
}

func NewExpo(cfg Config, logger *zap.Logger) *Expo {
	if cfg.Endpoint == "" {
		cfg.Endpoint = DefaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.PerMinute <= 0 {
		cfg.PerMinute = 30
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}
	return &Expo{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: cfg.Timeout},
		limiter:  rate.NewLimiter(rate.Every(time.Minute/time.Duration(cfg.PerMinute)), cfg.Burst),
		logger:   logger,
	}
}

// SetToken replaces the registered device token.
func (e *Expo) SetToken(token string) {
	e.mu.Lock()
	e.token = strings.TrimSpace(token)
	e.mu.Unlock()
	e.logger.Info("push token registered")
}

func (e *Expo) Token() string {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.token
}

func (e *Expo) Notify(ev types.DetectionEvent) {
	if e.Token() == "" {
		return
	}
	if !e.limiter.Allow() {
		e.logger.Debug("push dropped by rate limit", zap.String("event_id", ev.ID))
		return
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		if err := e.Send(context.Background(), ev); err != nil {
			e.logger.Warn("push failed", zap.String("event_id", ev.ID), zap.Error(err))
		}
	}()
}

func title(ev types.DetectionEvent) string {
	if ev.Kind == types.EventMotion {
		return "Motion Detected!"
	}
	return ev.Name + " Detected!"
}

// Send delivers ev synchronously.
func (e *Expo) Send(ctx context.Context, ev types.DetectionEvent) error {
	token := e.Token()
	if token == "" {
		return ErrNoToken
	}

	body, err := json.Marshal(message{
		To:    token,
		Sound: "default",
		Title: title(ev),
		Body:  "At " + ev.Timestamp.Local().Format("2006-01-02 15:04:05"),
		Data:  ev,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, e.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("notify: post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("notify: status %d: %s", resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Wait blocks until in-flight deliveries finish.
func (e *Expo) Wait() { e.wg.Wait() }
