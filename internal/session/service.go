// Package session issues and validates sessions. The relational store is
// authoritative; Redis is a cache-aside tier that may be down at any time
// without affecting correctness.
package session

import (
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/tenant-isolation-service/internal/apperr"
	"github.com/teresa-solution/tenant-isolation-service/internal/crypto"
	"github.com/teresa-solution/tenant-isolation-service/internal/model"
	"github.com/teresa-solution/tenant-isolation-service/internal/monitoring"
	"github.com/teresa-solution/tenant-isolation-service/internal/worker"
)

// DurableStore is the authoritative session table.
type DurableStore interface {
	Insert(ctx context.Context, s *model.Session) error
	Get(ctx context.Context, id string) (*model.Session, error)
	Touch(ctx context.Context, id string, at time.Time, expiresAt *time.Time) (*model.Session, error)
	Deactivate(ctx context.Context, id string) (*model.Session, error)
	DeactivateForUser(ctx context.Context, userID uuid.UUID) ([]model.Session, error)
	DeactivateForTenant(ctx context.Context, tenantID uuid.UUID) ([]model.Session, error)
	PurgeExpired(ctx context.Context, cutoff time.Time) (int64, error)
}

// FastStore is the cache tier. Get returns nil, nil on a miss.
type FastStore interface {
	Get(ctx context.Context, id string) (*model.Session, error)
	Put(ctx context.Context, s *model.Session, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// Dispatcher queues best-effort background work.
type Dispatcher interface {
	Submit(t worker.Task) error
}

// Config holds session policy.
type Config struct {
	// TTL is the absolute lifetime of a new session.
	TTL time.Duration
	// IdleTimeout expires sessions without activity for this long. Zero
	// disables it.
	IdleTimeout time.Duration
	// Sliding pushes the expiry to now+TTL on every recorded activity.
	Sliding bool
	// TouchInterval throttles activity writes for one session.
	TouchInterval time.Duration
	// CacheTimeout bounds every fast-store call.
	CacheTimeout time.Duration
	// CacheStaleness caps how long an active snapshot lives in the fast
	// store. A revocation the cache never heard about is invisible to
	// other instances for at most this long.
	CacheStaleness time.Duration
	// TombstoneRetry is the delay between attempts to write a revocation
	// marker the cache refused.
	TombstoneRetry time.Duration
	// PurgeGrace keeps expired and revoked rows this long before purging.
	PurgeGrace time.Duration
}

func (c *Config) setDefaults() {
	if c.TTL <= 0 {
		c.TTL = 24 * time.Hour
	}
	if c.TouchInterval <= 0 {
		c.TouchInterval = time.Minute
	}
	if c.CacheTimeout <= 0 {
		c.CacheTimeout = 2 * time.Second
	}
	if c.CacheStaleness <= 0 {
		c.CacheStaleness = 5 * time.Minute
	}
	if c.TombstoneRetry <= 0 {
		c.TombstoneRetry = 2 * time.Second
	}
	if c.PurgeGrace < 0 {
		c.PurgeGrace = 0
	}
}

// Source names the tier that answered a lookup.
type Source string

const (
	SourceNone     Source = "none"
	SourceCache    Source = "cache"
	SourceDatabase Source = "database"
)

// Lookup is the result of resolving a session id. Session is nil when the
// id does not name a usable session.
type Lookup struct {
	Session *model.Session
	Source  Source
}

const lockStripes = 64

// Service is the session service.
type Service struct {
	durable DurableStore
	fast    FastStore
	tasks   Dispatcher
	cfg     Config
	now     func() time.Time

	userLocks [lockStripes]sync.Mutex
	// pending maps session ids whose revocation marker could not be
	// written to the time until which cached snapshots of them are ignored.
	pending sync.Map
}

// NewService wires a service. tasks may be nil, in which case activity is
// recorded inline.
func NewService(durable DurableStore, fast FastStore, tasks Dispatcher, cfg Config) *Service {
	cfg.setDefaults()
	return &Service{
		durable: durable,
		fast:    fast,
		tasks:   tasks,
		cfg:     cfg,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Config returns the effective configuration.
func (s *Service) Config() Config { return s.cfg }

func (s *Service) lockUser(id uuid.UUID) func() {
	m := &s.userLocks[binary.BigEndian.Uint64(id[8:])%lockStripes]
	m.Lock()
	return m.Unlock
}

// Create issues a session for user. The user's tenant and onboarding state
// are snapshotted and never change for the life of the session.
func (s *Service) Create(ctx context.Context, user *model.User, meta model.ClientMeta) (*model.Session, error) {
	if user == nil || !user.IsActive {
		return nil, apperr.ErrAuthentication
	}

	unlock := s.lockUser(user.ID)
	defer unlock()

	id, err := crypto.NewSessionID()
	if err != nil {
		return nil, err
	}
	now := s.now()
	sess := &model.Session{
		ID:                 id,
		UserID:             user.ID,
		Role:               user.Role,
		OnboardingComplete: user.OnboardingComplete,
		CreatedAt:          now,
		ExpiresAt:          now.Add(s.cfg.TTL),
		LastActivityAt:     now,
		IsActive:           true,
		ClientIP:           meta.IP,
		UserAgent:          meta.UserAgent,
	}
	if tenantID, ok := user.EffectiveTenant(); ok {
		sess.TenantID = &tenantID
	}

	if err := s.durable.Insert(ctx, sess); err != nil {
		return nil, err
	}
	s.cachePut(ctx, sess)

	monitoring.SessionsCreated.Inc()
	zerolog.Ctx(ctx).Info().
		Str("user_id", user.ID.String()).
		Str("session", crypto.Fingerprint(id)).
		Msg("Session created")
	return sess, nil
}

// Lookup resolves id through the cache, falling back to the database and
// repopulating the cache. Only a database failure is an error.
func (s *Service) Lookup(ctx context.Context, id string) (Lookup, error) {
	if !crypto.WellFormedSessionID(id) {
		monitoring.SessionLookups.WithLabelValues(string(SourceNone), "malformed").Inc()
		return Lookup{Source: SourceNone}, nil
	}
	now := s.now()

	cached, err := s.cacheGet(ctx, id)
	if cached != nil && err == nil {
		switch {
		case !cached.IsActive:
			monitoring.SessionLookups.WithLabelValues(string(SourceCache), "revoked").Inc()
			return Lookup{Source: SourceCache}, nil
		case s.tombstonePending(id):
			// Revoked here while the cache was unreachable.
		case cached.Valid(now, s.cfg.IdleTimeout):
			monitoring.SessionLookups.WithLabelValues(string(SourceCache), "hit").Inc()
			return Lookup{Session: cached, Source: SourceCache}, nil
		}
		// An active snapshot that looks stale may lag activity recorded
		// in the database; let the database decide.
	}

	sess, err := s.durable.Get(ctx, id)
	if err != nil {
		monitoring.SessionLookups.WithLabelValues(string(SourceDatabase), "error").Inc()
		return Lookup{}, err
	}
	if sess == nil {
		monitoring.SessionLookups.WithLabelValues(string(SourceDatabase), "miss").Inc()
		return Lookup{Source: SourceDatabase}, nil
	}
	if !sess.Valid(now, s.cfg.IdleTimeout) {
		monitoring.SessionLookups.WithLabelValues(string(SourceDatabase), "invalid").Inc()
		if sess.IsActive {
			s.cacheDelete(ctx, id)
		} else {
			s.tombstone(ctx, sess)
		}
		return Lookup{Source: SourceDatabase}, nil
	}

	s.cachePut(ctx, sess)
	monitoring.SessionLookups.WithLabelValues(string(SourceDatabase), "hit").Inc()
	return Lookup{Session: sess, Source: SourceDatabase}, nil
}

// Get returns the session for id, or nil if it is absent, expired or
// revoked.
func (s *Service) Get(ctx context.Context, id string) (*model.Session, error) {
	l, err := s.Lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	return l.Session, nil
}

// Touch records activity on id in the background. It never fails.
func (s *Service) Touch(ctx context.Context, id string) {
	if !crypto.WellFormedSessionID(id) {
		return
	}
	at := s.now()
	task := worker.Task{
		Name: "session.touch",
		Run: func(ctx context.Context) error {
			return s.touch(ctx, id, at)
		},
	}
	if s.tasks == nil {
		if err := task.Run(ctx); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("Failed to record session activity")
		}
		return
	}
	if err := s.tasks.Submit(task); err != nil {
		zerolog.Ctx(ctx).Debug().Err(err).Msg("Skipped session activity update")
	}
}

// TouchStale is Touch throttled to one write per TouchInterval.
func (s *Service) TouchStale(ctx context.Context, sess *model.Session) {
	if sess == nil || s.now().Sub(sess.LastActivityAt) < s.cfg.TouchInterval {
		return
	}
	s.Touch(ctx, sess.ID)
}

func (s *Service) touch(ctx context.Context, id string, at time.Time) error {
	var expiresAt *time.Time
	if s.cfg.Sliding {
		e := at.Add(s.cfg.TTL)
		expiresAt = &e
	}
	sess, err := s.durable.Touch(ctx, id, at, expiresAt)
	if err != nil {
		return err
	}
	if sess != nil {
		s.cachePut(ctx, sess)
	}
	return nil
}

// Revoke deactivates id. Unknown and already revoked ids succeed.
func (s *Service) Revoke(ctx context.Context, id string) error {
	if !crypto.WellFormedSessionID(id) {
		return nil
	}
	sess, err := s.durable.Deactivate(ctx, id)
	if err != nil {
		return err
	}
	if sess == nil {
		s.cacheDelete(ctx, id)
		return nil
	}
	s.tombstone(ctx, sess)
	monitoring.SessionsRevoked.WithLabelValues("logout").Inc()
	return nil
}

// RevokeAllForUser deactivates every session of userID. It holds the
// user's lock, so no session for the user is created concurrently.
func (s *Service) RevokeAllForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	unlock := s.lockUser(userID)
	defer unlock()

	revoked, err := s.durable.DeactivateForUser(ctx, userID)
	if err != nil {
		return 0, err
	}
	for i := range revoked {
		s.tombstone(ctx, &revoked[i])
	}
	monitoring.SessionsRevoked.WithLabelValues("user").Add(float64(len(revoked)))
	zerolog.Ctx(ctx).Info().
		Str("user_id", userID.String()).
		Int("revoked", len(revoked)).
		Msg("Revoked all sessions for user")
	return len(revoked), nil
}

// RevokeAllForTenant deactivates every session snapshotting tenantID.
func (s *Service) RevokeAllForTenant(ctx context.Context, tenantID uuid.UUID) (int, error) {
	revoked, err := s.durable.DeactivateForTenant(ctx, tenantID)
	if err != nil {
		return 0, err
	}
	for i := range revoked {
		s.tombstone(ctx, &revoked[i])
	}
	monitoring.SessionsRevoked.WithLabelValues("tenant").Add(float64(len(revoked)))
	zerolog.Ctx(ctx).Info().
		Str("tenant_id", tenantID.String()).
		Int("revoked", len(revoked)).
		Msg("Revoked all sessions for tenant")
	return len(revoked), nil
}

// PurgeExpired deletes sessions that expired or were revoked more than
// PurgeGrace ago.
func (s *Service) PurgeExpired(ctx context.Context) (int64, error) {
	return s.durable.PurgeExpired(ctx, s.now().Add(-s.cfg.PurgeGrace))
}

// tombstone writes the revocation marker for sess. If the cache refuses it,
// cached snapshots of sess are ignored by this instance and the marker is
// retried in the background until it lands or no active snapshot written
// before the revocation can still be alive.
func (s *Service) tombstone(ctx context.Context, sess *model.Session) {
	sess.IsActive = false
	if s.cachePut(ctx, sess) {
		s.pending.Delete(sess.ID)
		return
	}
	until := s.now().Add(2 * s.cfg.CacheStaleness)
	s.pending.Store(sess.ID, until)
	s.retryTombstone(*sess, until)
}

func (s *Service) tombstonePending(id string) bool {
	v, ok := s.pending.Load(id)
	if !ok {
		return false
	}
	if s.now().Before(v.(time.Time)) {
		return true
	}
	s.pending.CompareAndDelete(id, v)
	return false
}

func (s *Service) retryTombstone(sess model.Session, until time.Time) {
	time.AfterFunc(s.cfg.TombstoneRetry, func() {
		task := worker.Task{
			Name: "session.tombstone",
			Run: func(ctx context.Context) error {
				return s.writeTombstone(ctx, sess, until)
			},
		}
		if s.tasks == nil {
			_ = task.Run(context.Background())
			return
		}
		if err := s.tasks.Submit(task); err != nil {
			log.Warn().Err(err).Str("session", crypto.Fingerprint(sess.ID)).Msg("Failed to queue revocation marker")
			if !errors.Is(err, worker.ErrStopped) {
				s.retryTombstone(sess, until)
			}
		}
	})
}

func (s *Service) writeTombstone(ctx context.Context, sess model.Session, until time.Time) error {
	if !s.tombstonePending(sess.ID) {
		return nil
	}
	if err := s.cachePutOnce(ctx, &sess, s.cacheTTL(&sess)); err != nil {
		if s.now().Before(until) {
			s.retryTombstone(sess, until)
		}
		return err
	}
	s.pending.Delete(sess.ID)
	zerolog.Ctx(ctx).Info().Str("session", crypto.Fingerprint(sess.ID)).Msg("Revocation marker written")
	return nil
}
