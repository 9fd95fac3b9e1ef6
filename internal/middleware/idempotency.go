package middleware

import (
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/hashicorp/golang-lru/v2/expirable"
	"go.uber.org/zap"
)

// IdempotencyKeyHeader carries the client-chosen key for a create request
const IdempotencyKeyHeader = "Idempotency-Key"

type idempotentResponse struct {
	status int
	header http.Header
	body   []byte
}

// IdempotencyMiddleware replays the first successful response for a repeated
// state-changing request carrying the same Idempotency-Key. Concurrent
// requests with one key are serialised so only one reaches the handler.
type IdempotencyMiddleware struct {
	logger *zap.Logger
	cache  *expirable.LRU[string, idempotentResponse]

	mu    sync.Mutex
	locks map[string]*keyLock
}

type keyLock struct {
	mu   sync.Mutex
	refs int
}

// NewIdempotencyMiddleware keeps up to size responses for ttl each.
func NewIdempotencyMiddleware(logger *zap.Logger, size int, ttl time.Duration) *IdempotencyMiddleware {
	if size <= 0 {
		size = 1024
	}
	return &IdempotencyMiddleware{
		logger: logger,
		cache:  expirable.NewLRU[string, idempotentResponse](size, nil, ttl),
		locks:  make(map[string]*keyLock),
	}
}

// Middleware returns the idempotency middleware handler
func (im *IdempotencyMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := r.Header.Get(IdempotencyKeyHeader)
		if key == "" || (r.Method != http.MethodPost && r.Method != http.MethodDelete) {
			next.ServeHTTP(w, r)
			return
		}

		cacheKey := cacheKey(r, key)
		unlock := im.lock(cacheKey)
		defer unlock()

		if cached, ok := im.cache.Get(cacheKey); ok {
			im.logger.Debug("Serving cached idempotent response",
				zap.String("idempotency_key", key),
				zap.String("request_id", middleware.GetReqID(r.Context())))
			replay(w, cached)
			return
		}

		rec := &bufferedWriter{header: make(http.Header), status: http.StatusOK}
		next.ServeHTTP(rec, r)

		resp := idempotentResponse{status: rec.status, header: rec.header, body: rec.body.Bytes()}
		if rec.status >= 200 && rec.status < 300 {
			im.cache.Add(cacheKey, resp)
		}

		for k, v := range resp.header {
			w.Header()[k] = v
		}
		w.WriteHeader(resp.status)
		w.Write(resp.body)
	})
}

func (im *IdempotencyMiddleware) lock(key string) func() {
	im.mu.Lock()
	kl, ok := im.locks[key]
	if !ok {
		kl = &keyLock{}
		im.locks[key] = kl
	}
	kl.refs++
	im.mu.Unlock()

	kl.mu.Lock()
	return func() {
		kl.mu.Unlock()
		im.mu.Lock()
		kl.refs--
		if kl.refs == 0 {
			delete(im.locks, key)
		}
		im.mu.Unlock()
	}
}

func cacheKey(r *http.Request, key string) string {
	sum := sha256.Sum256([]byte(r.Method + " " + r.URL.Path + " " + key))
	return hex.EncodeToString(sum[:])
}

func replay(w http.ResponseWriter, resp idempotentResponse) {
	for k, v := range resp.header {
		w.Header()[k] = v
	}
	w.Header().Set("Idempotent-Replayed", "true")
	w.WriteHeader(resp.status)
	w.Write(resp.body)
}
