// Package quota enforces per-identity daily request limits.
//
// The Governor is the only writer of usage records. It performs an
// unlocked read-modify-write against the usage store: two concurrent
// requests for the same identity may both read the same count, so an
// identity can exceed its limit by the number of requests racing in one
// window. Callers must treat limits as best-effort.
//
// When the usage store cannot be read or written the Governor fails open:
// the request is allowed, Decision.FailOpen is set and a warning is
// logged. Enforcement is effectively disabled for the duration of a store
// outage. Operators should alert on the "quota enforcement disabled"
// warning.
package quota

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/poiesic/admissions/core"
	"github.com/poiesic/admissions/storage"
)

const (
	// DefaultUserLimit is the daily limit for authenticated identities.
	DefaultUserLimit = 50
	// DefaultAnonymousLimit is the daily limit for address-keyed identities.
	DefaultAnonymousLimit = 10
)

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed bool
	// Count is today's count after this request (unchanged on deny).
	Count int
	Limit int
	// FailOpen is set when a store error caused the request to be allowed
	// without enforcement. Err holds that error.
	FailOpen bool
	Err      error
}

// Governor tracks and limits daily request volume per identity.
type Governor struct {
	repo           storage.UsageRepository
	userLimit      int
	anonymousLimit int
	now            func() time.Time
	location       *time.Location
	logger         *slog.Logger
}

// Option configures a Governor.
type Option func(*Governor) error

// WithLogger sets a custom logger.
// Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(g *Governor) error {
		if logger == nil {
			logger = slog.Default()
		}
		g.logger = logger
		return nil
	}
}

// WithLimits sets the daily limits for authenticated and anonymous identities.
func WithLimits(user, anonymous int) Option {
	return func(g *Governor) error {
		if user <= 0 || anonymous <= 0 {
			return ErrInvalidLimit
		}
		g.userLimit = user
		g.anonymousLimit = anonymous
		return nil
	}
}

// WithClock sets the time source. Default is time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Governor) error {
		if now != nil {
			g.now = now
		}
		return nil
	}
}

// WithLocation sets the time zone in which calendar days roll over.
// Default is time.Local.
func WithLocation(loc *time.Location) Option {
	return func(g *Governor) error {
		if loc != nil {
			g.location = loc
		}
		return nil
	}
}

// NewGovernor creates a Governor backed by repo.
func NewGovernor(repo storage.UsageRepository, opts ...Option) (*Governor, error) {
	if repo == nil {
		return nil, ErrUsageRepositoryRequired
	}

	g := &Governor{
		repo:           repo,
		userLimit:      DefaultUserLimit,
		anonymousLimit: DefaultAnonymousLimit,
		now:            time.Now,
		location:       time.Local,
		logger:         slog.Default(),
	}

	for _, opt := range opts {
		if err := opt(g); err != nil {
			return nil, err
		}
	}
	g.logger = g.logger.With("component", "quota")

	return g, nil
}

// Limit returns the daily limit for an identity kind.
func (g *Governor) Limit(kind core.IdentityKind) int {
	if kind == core.IdentityUser {
		return g.userLimit
	}
	return g.anonymousLimit
}

func (g *Governor) today() string {
	return g.now().In(g.location).Format(core.DateLayout)
}

// CheckAndIncrement counts one request for id against today's limit.
//
//   - no record: insert count=1 and allow
//   - record from today at or over the limit: deny without incrementing
//   - record from today under the limit: increment and allow
//   - record from an earlier day: reset to count=1 for today and allow
//
// An error is returned only for an invalid identity or a cancelled context.
// Store failures fail open.
func (g *Governor) CheckAndIncrement(ctx context.Context, id core.Identity) (Decision, error) {
	if err := core.ValidateIdentity(id); err != nil {
		return Decision{}, err
	}
	if err := ctx.Err(); err != nil {
		return Decision{}, err
	}

	limit := g.Limit(id.Kind)
	today := g.today()

	rec, err := g.repo.GetUsage(ctx, id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
		rec = &core.UsageRecord{Identity: id, ResetDate: today}
	case err != nil:
		return g.failOpen(ctx, id, limit, 0, err)
	case rec.ResetDate != today:
		g.logger.Debug("usage rolled over", "identity", id.Key(), "previous_date", rec.ResetDate, "previous_count", rec.Count)
		rec.Count = 0
		rec.ResetDate = today
	}

	if rec.Count >= limit {
		g.logger.Info("quota exceeded", "identity", id.Key(), "count", rec.Count, "limit", limit)
		return Decision{Allowed: false, Count: rec.Count, Limit: limit}, nil
	}

	rec.Count++
	rec.Identity = id
	rec.UpdatedAt = g.now().UTC()
	if err := g.repo.UpsertUsage(ctx, rec); err != nil {
		return g.failOpen(ctx, id, limit, rec.Count, err)
	}

	return Decision{Allowed: true, Count: rec.Count, Limit: limit}, nil
}

func (g *Governor) failOpen(ctx context.Context, id core.Identity, limit, count int, err error) (Decision, error) {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return Decision{}, ctxErr
	}
	g.logger.Warn("quota enforcement disabled for this request",
		"identity", id.Key(),
		"err", err)
	return Decision{
		Allowed:  true,
		Count:    count,
		Limit:    limit,
		FailOpen: true,
		Err:      errors.Join(core.ErrUpstreamProvider, err),
	}, nil
}

// Peek reports today's usage for id without counting a request.
// Store errors are returned rather than failing open.
func (g *Governor) Peek(ctx context.Context, id core.Identity) (Decision, error) {
	if err := core.ValidateIdentity(id); err != nil {
		return Decision{}, err
	}

	limit := g.Limit(id.Kind)
	count := 0
	rec, err := g.repo.GetUsage(ctx, id)
	switch {
	case errors.Is(err, storage.ErrNotFound):
	case err != nil:
		return Decision{}, err
	case rec.ResetDate == g.today():
		count = rec.Count
	}
	return Decision{Allowed: count < limit, Count: count, Limit: limit}, nil
}
