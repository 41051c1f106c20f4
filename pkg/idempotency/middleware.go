/**
 * @description
 * HTTP idempotency middleware for the mutating endpoints. Clients send an
 * X-Idempotency-Key header; the first request with a given key executes the
 * handler and caches its response, and every later request with the same key
 * replays the stored response with X-Idempotent-Replayed: true instead of
 * re-running the handler. A short-lived lock keeps concurrent requests with
 * the same key from executing the handler twice.
 *
 * @dependencies
 * - github.com/redis/go-redis/v9: Shared response cache and lock backend.
 */

package idempotency

import (
	"bytes"
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"
)

const (
	// HeaderKey is required on every request passing through the middleware.
	HeaderKey = "X-Idempotency-Key"
	// HeaderReplayed marks responses served from the cache.
	HeaderReplayed = "X-Idempotent-Replayed"

	maxKeyLength = 255

	// DefaultTTL bounds how long a cached response can be replayed.
	DefaultTTL = 24 * time.Hour

	lockTTL          = 30 * time.Second
	lockPollInterval = 100 * time.Millisecond
	lockWaitBudget   = 2 * time.Second
)

// CachedResponse is the replayable part of a handler response.
type CachedResponse struct {
	StatusCode  int    `json:"status_code"`
	ContentType string `json:"content_type"`
	Body        []byte `json:"body"`
}

// Store abstracts the cache backend so handlers can be tested without Redis.
type Store interface {
	// GetCachedResponse returns (nil, nil) on a cache miss.
	GetCachedResponse(ctx context.Context, key string) (*CachedResponse, error)
	SaveCachedResponse(ctx context.Context, key string, resp *CachedResponse, ttl time.Duration) error
	// AcquireLock returns false when another request already holds the key.
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

type Middleware struct {
	store Store
	ttl   time.Duration
}

func NewMiddleware(store Store, ttl time.Duration) *Middleware {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Middleware{store: store, ttl: ttl}
}

// Handler wraps next with idempotency-key enforcement, replay, and locking.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(HeaderKey))
		if key == "" {
			writeError(w, http.StatusBadRequest, "X-Idempotency-Key header is required")
			return
		}
		if len(key) > maxKeyLength {
			writeError(w, http.StatusBadRequest, "X-Idempotency-Key must be at most 255 characters")
			return
		}

		ctx := r.Context()
		if m.replayIfCached(ctx, w, key) {
			return
		}

		acquired, err := m.store.AcquireLock(ctx, key, lockTTL)
		if err != nil {
			log.Printf("level=error component=idempotency msg=\"lock acquire failed\" key=%s err=%v", key, err)
			writeError(w, http.StatusInternalServerError, "idempotency backend unavailable")
			return
		}
		if !acquired {
			// Someone else is executing this key right now. Wait briefly for
			// their response to land in the cache, then give up with a conflict.
			if m.waitForCached(ctx, w, key) {
				return
			}
			writeError(w, http.StatusConflict, "a request with this idempotency key is already in progress")
			return
		}
		defer func() {
			if err := m.store.ReleaseLock(ctx, key); err != nil {
				log.Printf("level=warn component=idempotency msg=\"lock release failed\" key=%s err=%v", key, err)
			}
		}()

		// Re-check after winning the lock: a prior holder may have cached the
		// response between our miss and the acquire.
		if m.replayIfCached(ctx, w, key) {
			return
		}

		capture := &captureWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(capture, r)

		if capture.statusCode >= 200 && capture.statusCode < 300 {
			cached := &CachedResponse{
				StatusCode:  capture.statusCode,
				ContentType: capture.Header().Get("Content-Type"),
				Body:        capture.body.Bytes(),
			}
			if err := m.store.SaveCachedResponse(ctx, key, cached, m.ttl); err != nil {
				log.Printf("level=error component=idempotency msg=\"response cache write failed\" key=%s err=%v", key, err)
			}
		}
	})
}

func (m *Middleware) replayIfCached(ctx context.Context, w http.ResponseWriter, key string) bool {
	cached, err := m.store.GetCachedResponse(ctx, key)
	if err != nil {
		log.Printf("level=error component=idempotency msg=\"cache lookup failed\" key=%s err=%v", key, err)
		return false
	}
	if cached == nil {
		return false
	}

	if cached.ContentType != "" {
		w.Header().Set("Content-Type", cached.ContentType)
	}
	w.Header().Set(HeaderReplayed, "true")
	w.WriteHeader(cached.StatusCode)
	w.Write(cached.Body)
	return true
}

func (m *Middleware) waitForCached(ctx context.Context, w http.ResponseWriter, key string) bool {
	deadline := time.Now().Add(lockWaitBudget)
	for time.Now().Before(deadline) {
		select {
		case <-ctx.Done():
			return false
		case <-time.After(lockPollInterval):
		}
		if m.replayIfCached(ctx, w, key) {
			return true
		}
	}
	return false
}

// captureWriter buffers the response body while still streaming it to the
// client, so a successful response can be cached after the handler returns.
type captureWriter struct {
	http.ResponseWriter
	statusCode  int
	wroteHeader bool
	body        bytes.Buffer
}

func (c *captureWriter) WriteHeader(statusCode int) {
	if c.wroteHeader {
		return
	}
	c.wroteHeader = true
	c.statusCode = statusCode
	c.ResponseWriter.WriteHeader(statusCode)
}

func (c *captureWriter) Write(b []byte) (int, error) {
	if !c.wroteHeader {
		c.WriteHeader(http.StatusOK)
	}
	c.body.Write(b)
	return c.ResponseWriter.Write(b)
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]string{"error": message})
}
