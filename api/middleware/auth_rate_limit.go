package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/angelmondragon/storefront-backend/api/responses"
	pkgerrors "github.com/angelmondragon/storefront-backend/pkg/errors"
	"github.com/angelmondragon/storefront-backend/pkg/logger"
)

// Auth bodies are small; anything larger is left for the decoder to reject.
const maxPeekBytes = 64 << 10

// RateLimiterStore is a fixed-window counter shared by API replicas.
type RateLimiterStore interface {
	IncrWithTTL(ctx context.Context, key string, ttl time.Duration) (int64, error)
}

// AuthRateLimitPolicy caps attempts on one auth endpoint per client IP and per
// submitted email within Window. A zero limit disables that dimension.
type AuthRateLimitPolicy struct {
	Name     string
	Window   time.Duration
	PerIP    int
	PerEmail int
}

func (p AuthRateLimitPolicy) active() bool {
	return p.Window > 0 && (p.PerIP > 0 || p.PerEmail > 0)
}

type counter struct {
	dim   string
	key   string
	limit int
}

// counters lists the buckets this request touches. Emails are hashed so raw
// addresses never become Redis keys.
func (p AuthRateLimitPolicy) counters(ip, email string) []counter {
	name := strings.ToLower(p.Name)
	if name == "" {
		name = "auth"
	}
	var out []counter
	if p.PerIP > 0 && ip != "" {
		out = append(out, counter{dim: "ip", key: "rl:ip:" + name + ":" + ip, limit: p.PerIP})
	}
	if p.PerEmail > 0 && email != "" {
		sum := sha256.Sum256([]byte(email))
		out = append(out, counter{dim: "email", key: "rl:email:" + name + ":" + hex.EncodeToString(sum[:]), limit: p.PerEmail})
	}
	return out
}

// AuthRateLimit throttles credential endpoints before any password work runs.
func AuthRateLimit(policy AuthRateLimitPolicy, store RateLimiterStore, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !policy.active() || store == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			email := ""
			if policy.PerEmail > 0 {
				var err error
				if email, err = peekEmail(r); err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "read request"))
					return
				}
			}

			for _, c := range policy.counters(clientIP(r), email) {
				hits, err := store.IncrWithTTL(ctx, c.key, policy.Window)
				if err != nil {
					responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "rate limit store"))
					return
				}
				if hits <= int64(c.limit) {
					continue
				}
				if logg != nil {
					logg.Warn(logg.WithFields(ctx, map[string]any{
						"policy":   policy.Name,
						"scope":    c.dim,
						"attempts": hits,
						"limit":    c.limit,
					}), "auth attempt throttled")
				}
				w.Header().Set("Retry-After", strconv.Itoa(int(policy.Window.Seconds())))
				responses.WriteError(ctx, nil, w, pkgerrors.New(pkgerrors.CodeRateLimit, "too many attempts"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// peekEmail reads the email field and restores the body for the handler.
func peekEmail(r *http.Request) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxPeekBytes))
	if err != nil {
		return "", err
	}
	r.Body = io.NopCloser(io.MultiReader(bytes.NewReader(raw), r.Body))

	var probe struct {
		Email string `json:"email"`
	}
	if json.Unmarshal(raw, &probe) != nil {
		return "", nil
	}
	return strings.ToLower(strings.TrimSpace(probe.Email)), nil
}
