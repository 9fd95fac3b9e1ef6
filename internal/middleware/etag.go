package middleware

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"net/http"
	"strconv"
	"strings"

	"go.uber.org/zap"
)

// ETagMiddleware buffers successful GET responses, tags them with a content
// hash and answers matching If-None-Match requests with 304. Dashboards are
// recomputed on every cache miss but rarely change between polls.
type ETagMiddleware struct {
	logger *zap.Logger
	maxAge int
}

// NewETagMiddleware creates a new ETag middleware. maxAge is sent in Cache-Control.
func NewETagMiddleware(logger *zap.Logger, maxAgeSeconds int) *ETagMiddleware {
	return &ETagMiddleware{
		logger: logger,
		maxAge: maxAgeSeconds,
	}
}

// Middleware returns the ETag middleware handler
func (em *ETagMiddleware) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || isUpgrade(r) {
			next.ServeHTTP(w, r)
			return
		}

		rec := &bufferedWriter{header: make(http.Header), status: http.StatusOK}
		next.ServeHTTP(rec, r)

		for k, v := range rec.header {
			w.Header()[k] = v
		}

		if rec.status != http.StatusOK || rec.body.Len() == 0 {
			w.WriteHeader(rec.status)
			w.Write(rec.body.Bytes())
			return
		}

		etag := `"` + contentHash(rec.body.Bytes()) + `"`
		w.Header().Set("ETag", etag)
		w.Header().Set("Cache-Control", "private, max-age="+strconv.Itoa(em.maxAge))

		if etagMatches(r.Header.Get("If-None-Match"), etag) {
			em.logger.Debug("ETag matched, serving 304", zap.String("path", r.URL.Path))
			w.WriteHeader(http.StatusNotModified)
			return
		}

		w.WriteHeader(http.StatusOK)
		w.Write(rec.body.Bytes())
	})
}

func contentHash(body []byte) string {
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:8])
}

// etagMatches handles lists, weak validators and the * wildcard
func etagMatches(header, etag string) bool {
	if header == "" {
		return false
	}
	for _, candidate := range strings.Split(header, ",") {
		candidate = strings.TrimPrefix(strings.TrimSpace(candidate), "W/")
		if candidate == "*" || candidate == etag {
			return true
		}
	}
	return false
}

func isUpgrade(r *http.Request) bool {
	return strings.EqualFold(r.Header.Get("Upgrade"), "websocket")
}

// bufferedWriter holds a response until the handler returns
type bufferedWriter struct {
	header http.Header
	status int
	body   bytes.Buffer
	wrote  bool
}

func (b *bufferedWriter) Header() http.Header { return b.header }

func (b *bufferedWriter) WriteHeader(status int) {
	if !b.wrote {
		b.status = status
		b.wrote = true
	}
}

func (b *bufferedWriter) Write(p []byte) (int, error) {
	b.wrote = true
	return b.body.Write(p)
}
