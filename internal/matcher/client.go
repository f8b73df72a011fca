// Package matcher talks to the face-embedding sidecar over HTTP. The sidecar
// wraps the dlib/face_recognition models; this package only moves frames and
// vectors.
package matcher

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"image/jpeg"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/service"
	"github.com/BrandonDHaskell/Cerberus/server/internal/cerberus/types"
	"github.com/BrandonDHaskell/Cerberus/server/internal/retry"
)

type Config struct {
	BaseURL string
	Timeout time.Duration
	// JPEGQuality for frames sent to the sidecar. Defaults to 85.
	JPEGQuality int
}

// Client implements service.FaceMatcher.
type Client struct {
	base    string
	http    *http.Client
	quality int

	// The last encoded frame is kept so Embed calls for the boxes Locate
	// just returned do not re-encode it.
	mu      sync.Mutex
	lastSeq uint64
	lastImg string
}

type locateRequest struct {
	Image string `json:"image"`
}

type locateResponse struct {
	Boxes []types.BoundingBox `json:"boxes"`
}

type embedRequest struct {
	Image string            `json:"image"`
	Box   types.BoundingBox `json:"box"`
}

type embedResponse struct {
	Embedding []float64 `json:"embedding"`
}

func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("matcher: %w: no base URL", service.ErrHardwareUnavailable)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.JPEGQuality <= 0 || cfg.JPEGQuality > 100 {
		cfg.JPEGQuality = 85
	}
	return &Client{
		base:    strings.TrimRight(cfg.BaseURL, "/"),
		http:    &http.Client{Timeout: cfg.Timeout},
		quality: cfg.JPEGQuality,
	}, nil
}

func (c *Client) Locate(ctx context.Context, f types.Frame) ([]types.BoundingBox, error) {
	img, err := c.encode(f)
	if err != nil {
		return nil, err
	}
	var resp locateResponse
	if err := c.post(ctx, "/locate", locateRequest{Image: img}, &resp); err != nil {
		return nil, err
	}
	return resp.Boxes, nil
}

func (c *Client) Embed(ctx context.Context, f types.Frame, box types.BoundingBox) (types.Embedding, error) {
	img, err := c.encode(f)
	if err != nil {
		return nil, err
	}
	var resp embedResponse
	if err := c.post(ctx, "/embed", embedRequest{Image: img, Box: box}, &resp); err != nil {
		return nil, err
	}
	if len(resp.Embedding) == 0 {
		return nil, errors.New("matcher: empty embedding")
	}
	return types.Embedding(resp.Embedding), nil
}

func (c *Client) encode(f types.Frame) (string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if f.Seq != 0 && f.Seq == c.lastSeq {
		return c.lastImg, nil
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, f.Image, &jpeg.Options{Quality: c.quality}); err != nil {
		return "", fmt.Errorf("matcher: encode frame: %w", err)
	}
	s := base64.StdEncoding.EncodeToString(buf.Bytes())
	c.lastSeq, c.lastImg = f.Seq, s
	return s, nil
}

// errServer marks a 5xx from the sidecar; it is retried once.
var errServer = errors.New("matcher: server error")

func (c *Client) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("matcher: marshal: %w", err)
	}

	return retry.Do(ctx, 2, 200*time.Millisecond,
		func(err error) bool { return errors.Is(err, errServer) },
		func(ctx context.Context) error {
			req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base+path, bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")

			resp, err := c.http.Do(req)
			if err != nil {
				return fmt.Errorf("matcher %s: %w: %v", path, service.ErrHardwareUnavailable, err)
			}
			defer resp.Body.Close()

			switch {
			case resp.StatusCode >= 500:
				_, _ = io.Copy(io.Discard, resp.Body)
				return fmt.Errorf("%w: %s returned %d", errServer, path, resp.StatusCode)
			case resp.StatusCode != http.StatusOK:
				msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
				return fmt.Errorf("matcher %s: status %d: %s", path, resp.StatusCode, strings.TrimSpace(string(msg)))
			}

			if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
				return fmt.Errorf("matcher %s: decode: %w", path, err)
			}
			return nil
		})
}
