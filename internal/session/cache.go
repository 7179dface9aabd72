package session

import (
	"context"
	"time"

	"github.com/rs/zerolog"
	"github.com/teresa-solution/tenant-isolation-service/internal/crypto"
	"github.com/teresa-solution/tenant-isolation-service/internal/model"
	"github.com/teresa-solution/tenant-isolation-service/internal/monitoring"
)

// The helpers below are the only way the service talks to the fast store.
// Every call runs under CacheTimeout and no error escapes them.

func (s *Service) cacheGet(ctx context.Context, id string) (*model.Session, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CacheTimeout)
	defer cancel()

	sess, err := s.fast.Get(ctx, id)
	if err != nil {
		s.cacheError(ctx, "get", id, err)
		return nil, err
	}
	return sess, nil
}

// cacheTTL keeps an active snapshot for its remaining lifetime capped at
// CacheStaleness. A revocation marker lives at least CacheStaleness, so it
// outlives any snapshot written before the revocation.
func (s *Service) cacheTTL(sess *model.Session) time.Duration {
	ttl := sess.ExpiresAt.Sub(s.now())
	if sess.IsActive {
		return min(ttl, s.cfg.CacheStaleness)
	}
	return max(ttl, s.cfg.CacheStaleness)
}

// cachePut writes sess, retrying once. It reports whether the write landed.
func (s *Service) cachePut(ctx context.Context, sess *model.Session) bool {
	ttl := s.cacheTTL(sess)
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if err = s.cachePutOnce(ctx, sess, ttl); err == nil {
			return true
		}
	}
	s.cacheError(ctx, "put", sess.ID, err)
	return false
}

func (s *Service) cachePutOnce(ctx context.Context, sess *model.Session, ttl time.Duration) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.CacheTimeout)
	defer cancel()
	return s.fast.Put(ctx, sess, ttl)
}

func (s *Service) cacheDelete(ctx context.Context, id string) {
	var err error
	for attempt := 0; attempt < 2; attempt++ {
		err = func() error {
			ctx, cancel := context.WithTimeout(ctx, s.cfg.CacheTimeout)
			defer cancel()
			return s.fast.Delete(ctx, id)
		}()
		if err == nil {
			return
		}
	}
	s.cacheError(ctx, "delete", id, err)
}

func (s *Service) cacheError(ctx context.Context, op, id string, err error) {
	monitoring.SessionCacheErrors.WithLabelValues(op).Inc()
	zerolog.Ctx(ctx).Warn().
		Err(err).
		Str("op", op).
		Str("session", crypto.Fingerprint(id)).
		Msg("Session cache unavailable, using database")
}
