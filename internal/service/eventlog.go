package service

import (
	"context"

	"github.com/google/uuid"

	"roomheat"
	"roomheat/internal/logger"
	"roomheat/internal/repository"
)

// EventLogService answers filtered queries over the persisted event history.
type EventLogService struct {
	repo repository.EventRepo
}

func NewEventLogService(repo repository.EventRepo) *EventLogService {
	return &EventLogService{repo: repo}
}

func (s *EventLogService) List(ctx context.Context, f LogFilter) ([]roomheat.Event, error) {
	return s.repo.List(ctx, f.From, f.To, f.Type)
}

// EventRecorder is the core's EventSink: it stamps and persists events. A
// failed append is logged and dropped; the event log must never take the
// control loop down with it.
type EventRecorder struct {
	repo repository.EventRepo
	log  *logger.Logger
}

func NewEventRecorder(repo repository.EventRepo, log *logger.Logger) *EventRecorder {
	return &EventRecorder{repo: repo, log: log}
}

func (r *EventRecorder) Emit(ctx context.Context, e roomheat.Event) {
	if e.EventID == "" {
		e.EventID = uuid.NewString()
	}
	if e.OccurredAt.IsZero() {
		e.OccurredAt = timeNow()
	}
	if err := r.repo.Append(ctx, e); err != nil {
		r.log.Errorw("event append failed", "type", e.Type, "err", err)
		return
	}
	r.log.Infow("event recorded", "type", e.Type, "room", e.RoomID, "actuator", e.ActuatorID)
}
