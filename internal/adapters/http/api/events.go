package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/okian/checkin/internal/domain/model"
)

type createEventRequest struct {
	Name        string    `json:"name" validate:"required,max=200"`
	Description string    `json:"description" validate:"max=1000"`
	StartTime   time.Time `json:"start_time" validate:"required"`
	EndTime     time.Time `json:"end_time" validate:"required"`
}

type createEventResponse struct {
	TaskID string `json:"task_id"`
}

type taskStatusResponse struct {
	TaskID string           `json:"task_id"`
	Status model.TaskStatus `json:"status"`
	Result json.RawMessage  `json:"result,omitempty"`
	Error  string           `json:"error,omitempty"`
}

type eventsResponse struct {
	Events []model.Event `json:"events"`
}

// EventsHandler handles event requests.
type EventsHandler struct {
	deps  EventService
	codec *codec
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(deps EventService, c *codec) *EventsHandler {
	return &EventsHandler{deps: deps, codec: c}
}

// HandleCreate handles POST /api/event/create. Provisioning is asynchronous;
// the response carries the task id to poll.
func (h *EventsHandler) HandleCreate(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if err := h.codec.decode(w, r, &req); err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}

	taskID, err := h.deps.CreateEvent(r.Context(), model.NewEvent{
		Name:        req.Name,
		Description: req.Description,
		StartTime:   req.StartTime,
		EndTime:     req.EndTime,
	})
	if err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	h.codec.writeJSON(w, http.StatusOK, createEventResponse{TaskID: taskID})
}

// HandleStatus handles GET /api/event/status/{taskId}.
func (h *EventsHandler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	task, err := h.deps.TaskStatus(r.Context(), r.PathValue("taskId"))
	if err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	h.codec.writeJSON(w, http.StatusOK, taskStatusResponse{
		TaskID: task.ID,
		Status: task.Status,
		Result: task.Result,
		Error:  task.Error,
	})
}

// HandleGet handles GET /api/event/{eventId}.
func (h *EventsHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "eventId")
	if err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	event, err := h.deps.GetEvent(r.Context(), id)
	if err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	h.codec.writeJSON(w, http.StatusOK, event)
}

// HandleList handles GET /api/event/all and /api/event/list.
func (h *EventsHandler) HandleList(w http.ResponseWriter, r *http.Request) {
	events, err := h.deps.ListEvents(r.Context())
	if err != nil {
		h.codec.writeError(r.Context(), w, err)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	h.codec.writeJSON(w, http.StatusOK, eventsResponse{Events: events})
}
