package processor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"time"

	"github.com/zjrosen/turbo/internal/cachemanager"
	"github.com/zjrosen/turbo/internal/command"
	"github.com/zjrosen/turbo/internal/log"
)

// ===========================================================================
// Deduplication Middleware
// ===========================================================================

// DefaultDeduplicationTTL is the default time-to-live for deduplication cache entries.
const DefaultDeduplicationTTL = 5 * time.Second

// ErrDuplicateCommand is returned when a duplicate command is detected within the TTL window.
var ErrDuplicateCommand = errors.New("duplicate command")

// DeduplicationMiddlewareConfig configures the deduplication middleware.
type DeduplicationMiddlewareConfig struct {
	TTL             time.Duration
	CleanupInterval time.Duration // If 0, uses TTL/2
	// Match selects the commands to deduplicate. Nil matches every command.
	Match func(command.Command) bool
}

// DeduplicationMiddleware rejects a command whose content matches one
// seen within the TTL window.
type DeduplicationMiddleware struct {
	seen  *cachemanager.InMemoryCacheManager[string, time.Time]
	ttl   time.Duration
	match func(command.Command) bool
}

// NewDeduplicationMiddleware creates a new deduplication middleware.
func NewDeduplicationMiddleware(cfg DeduplicationMiddlewareConfig) *DeduplicationMiddleware {
	ttl := cfg.TTL
	if ttl == 0 {
		ttl = DefaultDeduplicationTTL
	}

	cleanupInterval := cfg.CleanupInterval
	if cleanupInterval == 0 {
		cleanupInterval = ttl / 2
	}

	return &DeduplicationMiddleware{
		seen:  cachemanager.NewInMemoryCacheManager[string, time.Time]("dedup", ttl, cleanupInterval),
		ttl:   ttl,
		match: cfg.Match,
	}
}

// CacheSize returns the current number of entries in the cache.
func (m *DeduplicationMiddleware) CacheSize() int {
	return m.seen.Len()
}

// Middleware returns the middleware function.
func (m *DeduplicationMiddleware) Middleware() command.Middleware {
	return func(next command.Handler) command.Handler {
		return command.HandlerFunc(func(ctx context.Context, cmd command.Command) (any, error) {
			if m.match != nil && !m.match(cmd) {
				return next.Handle(ctx, cmd)
			}

			hash := computeContentHash(cmd)
			if _, found := m.seen.Get(ctx, hash); found {
				log.Warn(log.CatProcessor, "duplicate command rejected",
					"command_id", cmd.ID(),
					"api", cmd.APIIdentifier(),
					"path", cmd.APIPath(),
					"content_hash", hash[:16],
				)
				return nil, ErrDuplicateCommand
			}

			m.seen.Set(ctx, hash, time.Now(), m.ttl)
			return next.Handle(ctx, cmd)
		})
	}
}

// contentHasher is implemented by commands that want custom dedup hashing.
type contentHasher interface {
	ContentHash() string
}

// computeContentHash hashes the command's route and exported fields. The
// embedded BaseCommand has no exported fields, so the ID and CreatedAt
// timestamp never take part. Commands that cannot be encoded hash by ID and
// are therefore never duplicates.
func computeContentHash(cmd command.Command) string {
	h := sha256.New()
	h.Write([]byte(cmd.APIIdentifier()))
	h.Write([]byte{0})
	h.Write([]byte(cmd.APIPath()))
	h.Write([]byte{0})

	if hasher, ok := cmd.(contentHasher); ok {
		h.Write([]byte(hasher.ContentHash()))
		return hex.EncodeToString(h.Sum(nil))
	}

	body, err := json.Marshal(cmd)
	if err != nil {
		body = []byte(cmd.ID())
	}
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

// ===========================================================================
// Timeout Middleware
// ===========================================================================

// DefaultTimeoutWarningThreshold is the default threshold for logging slow handler warnings.
const DefaultTimeoutWarningThreshold = 100 * time.Millisecond

// TimeoutMiddlewareConfig configures the timeout middleware.
type TimeoutMiddlewareConfig struct {
	WarningThreshold time.Duration
}

// NewTimeoutMiddleware creates a middleware that logs warnings when handlers
// exceed the configured threshold. Slow handlers are not aborted.
func NewTimeoutMiddleware(cfg TimeoutMiddlewareConfig) command.Middleware {
	threshold := cfg.WarningThreshold
	if threshold == 0 {
		threshold = DefaultTimeoutWarningThreshold
	}

	return func(next command.Handler) command.Handler {
		return command.HandlerFunc(func(ctx context.Context, cmd command.Command) (any, error) {
			start := time.Now()
			result, err := next.Handle(ctx, cmd)

			if duration := time.Since(start); duration > threshold {
				traceID := ""
				if hasTraceID, ok := cmd.(interface{ TraceID() string }); ok {
					traceID = hasTraceID.TraceID()
				}
				log.Warn(log.CatProcessor, "handler exceeded time threshold",
					"command_id", cmd.ID(),
					"api", cmd.APIIdentifier(),
					"path", cmd.APIPath(),
					"trace_id", traceID,
					"duration", duration,
					"threshold", threshold,
				)
			}

			return result, err
		})
	}
}
