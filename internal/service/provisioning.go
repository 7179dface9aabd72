package service

import (
	"context"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/teresa-solution/tenant-isolation-service/internal/tenancy"
	"github.com/teresa-solution/tenant-isolation-service/internal/worker"
)

// Lifecycle steps recorded in tenant_events.
const (
	StepOnboarded       = "onboarded"
	StepDeactivated     = "deactivated"
	StepReactivated     = "reactivated"
	StepSessionsRevoked = "sessions_revoked"
	StatusCompleted     = "completed"
)

// EventRecorder writes tenant lifecycle events in the background. Each
// write is a task bound to the tenant it describes, never to the tenant of
// the request that caused it.
type EventRecorder struct {
	events EventStore
	tasks  Dispatcher
}

// NewEventRecorder creates a new EventRecorder
func NewEventRecorder(events EventStore, tasks Dispatcher) *EventRecorder {
	return &EventRecorder{events: events, tasks: tasks}
}

// Record queues an event for tenantID.
func (r *EventRecorder) Record(ctx context.Context, tenantID uuid.UUID, step, status string, details map[string]any) {
	task := worker.Task{
		Name:     "tenant_event." + step,
		TenantID: tenantID,
		Run: func(ctx context.Context) error {
			_, err := r.events.Append(ctx, tenancy.ScopeFrom(ctx), step, status, details)
			return err
		},
	}
	if err := r.tasks.Submit(task); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).
			Str("tenant_id", tenantID.String()).
			Str("step", step).
			Msg("Failed to queue tenant event")
		return
	}
	log.Debug().Str("tenant_id", tenantID.String()).Str("step", step).Msg("Queued tenant event")
}
