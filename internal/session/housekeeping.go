package session

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/tenant-isolation-service/internal/tenancy"
)

// Housekeeper periodically purges expired and revoked sessions.
type Housekeeper struct {
	svc      *Service
	interval time.Duration

	stopCh chan struct{}
	doneCh chan struct{}
}

// NewHousekeeper creates a housekeeper. A non-positive interval defaults to
// one hour.
func NewHousekeeper(svc *Service, interval time.Duration) *Housekeeper {
	if interval <= 0 {
		interval = time.Hour
	}
	return &Housekeeper{
		svc:      svc,
		interval: interval,
		stopCh:   make(chan struct{}),
		doneCh:   make(chan struct{}),
	}
}

// Start runs a purge immediately and then once per interval.
func (h *Housekeeper) Start() {
	go h.run()
	log.Info().Dur("interval", h.interval).Msg("Session housekeeping started")
}

// Stop waits for an in-progress purge to finish.
func (h *Housekeeper) Stop() {
	close(h.stopCh)
	<-h.doneCh
	log.Info().Msg("Session housekeeping stopped")
}

func (h *Housekeeper) run() {
	defer close(h.doneCh)

	ticker := time.NewTicker(h.interval)
	defer ticker.Stop()

	h.purge()
	for {
		select {
		case <-ticker.C:
			h.purge()
		case <-h.stopCh:
			return
		}
	}
}

func (h *Housekeeper) purge() {
	ctx, cancel := context.WithTimeout(tenancy.Clear(context.Background()), time.Minute)
	defer cancel()

	n, err := h.svc.PurgeExpired(ctx)
	if err != nil {
		log.Error().Err(err).Msg("Failed to purge expired sessions")
		return
	}
	log.Info().Int64("purged", n).Msg("Purged expired sessions")
}
