// Package registry creates and reads events.
//
// Creation is asynchronous: CreateEvent validates the request, stores a
// create_event task and returns its id. A worker later runs Provision, which
// persists the event and records {"event_id": ...} as the task result.
package registry

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bytedance/sonic"

	"github.com/okian/checkin/internal/domain/model"
	"github.com/okian/checkin/pkg/logger"
)

// Submitter enqueues asynchronous tasks.
type Submitter interface {
	Submit(ctx context.Context, kind model.TaskKind, payload any) (string, error)
}

// TaskReader reads task state for polling clients.
type TaskReader interface {
	Get(ctx context.Context, id string) (model.Task, error)
}

// EventStore persists events.
type EventStore interface {
	CreateEvent(ctx context.Context, taskID string, in model.NewEvent) (model.Event, error)
	GetEvent(ctx context.Context, id int64) (model.Event, error)
	ListEvents(ctx context.Context) ([]model.Event, error)
}

// Service is the event registry.
type Service struct {
	submitter Submitter
	tasks     TaskReader
	events    EventStore
	logger    logger.Logger
}

// New creates an event registry.
func New(submitter Submitter, tasks TaskReader, events EventStore, opts ...Option) *Service {
	s := &Service{
		submitter: submitter,
		tasks:     tasks,
		events:    events,
		logger:    logger.Get().Named("registry"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// CreateEvent validates in and submits a create_event task. Invalid input
// fails here and no task is created.
func (s *Service) CreateEvent(ctx context.Context, in model.NewEvent) (string, error) {
	const op = "registry.CreateEvent"

	in.Name = strings.TrimSpace(in.Name)
	if err := in.Validate(); err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}

	id, err := s.submitter.Submit(ctx, model.TaskCreateEvent, in)
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	s.logger.Info(ctx, "event creation submitted", logger.String("task_id", id), logger.String("name", in.Name))
	return id, nil
}

// Provision is the create_event task handler. It is idempotent per task id,
// so a task re-run after a crash returns the event created the first time.
func (s *Service) Provision(ctx context.Context, task model.Task) (json.RawMessage, error) {
	const op = "registry.Provision"

	var in model.NewEvent
	if err := sonic.Unmarshal(task.Payload, &in); err != nil {
		return nil, fmt.Errorf("%s: decode payload: %w", op, err)
	}
	if err := in.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	event, err := s.events.CreateEvent(ctx, task.ID, in)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	result, err := sonic.Marshal(model.EventResult{EventID: event.ID})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	s.logger.Info(ctx, "event provisioned", logger.String("task_id", task.ID), logger.Int64("event_id", event.ID))
	return result, nil
}

// TaskStatus returns the task as polling clients see it.
func (s *Service) TaskStatus(ctx context.Context, taskID string) (model.Task, error) {
	const op = "registry.TaskStatus"

	task, err := s.tasks.Get(ctx, taskID)
	if err != nil {
		return model.Task{}, fmt.Errorf("%s: %w", op, err)
	}
	task.Status = task.Status.Public()
	return task, nil
}

// GetEvent returns one event.
func (s *Service) GetEvent(ctx context.Context, id int64) (model.Event, error) {
	const op = "registry.GetEvent"

	e, err := s.events.GetEvent(ctx, id)
	if err != nil {
		return model.Event{}, fmt.Errorf("%s: %w", op, err)
	}
	return e, nil
}

// ListEvents returns all events ordered by id.
func (s *Service) ListEvents(ctx context.Context) ([]model.Event, error) {
	const op = "registry.ListEvents"

	events, err := s.events.ListEvents(ctx)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return events, nil
}
