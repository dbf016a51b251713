package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/sse"
	"github.com/jmylchreest/encodarr/internal/events"
	"github.com/jmylchreest/encodarr/internal/models"
)

// DefaultHeartbeatInterval is how often idle SSE connections get a
// keepalive comment.
const DefaultHeartbeatInterval = 30 * time.Second

// EventsHandler streams bus events to clients over SSE.
type EventsHandler struct {
	bus               *events.Bus
	heartbeatInterval time.Duration
	logger            *slog.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(bus *events.Bus, logger *slog.Logger) *EventsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsHandler{
		bus:               bus,
		heartbeatInterval: DefaultHeartbeatInterval,
		logger:            logger,
	}
}

// EventEnvelope is one event on the wire.
type EventEnvelope struct {
	Topic     string      `json:"topic"`
	JobID     models.ULID `json:"job_id,omitempty"`
	Timestamp time.Time   `json:"timestamp"`
	Lag       uint64      `json:"lag,omitempty"`
	Data      any         `json:"data"`
}

// SSEEventsInput is the input for the events stream.
type SSEEventsInput struct {
	JobID  string `query:"job_id" doc:"Only events for this job (ULID)"`
	Topics string `query:"topics" doc:"Comma-separated topic filter (job.status, job.stats, job.log, system.metrics)"`
}

// Register registers the SSE endpoint with Huma for OpenAPI
// documentation. The live handler is registered separately via
// RegisterSSE on the chi router, which takes precedence.
func (h *EventsHandler) Register(api huma.API) {
	sse.Register(api, huma.Operation{
		OperationID: "eventsStream",
		Method:      "GET",
		Path:        "/api/v1/events",
		Summary:     "Subscribe to events",
		Description: `Server-Sent Events stream for job status changes, telemetry samples,
encoder log lines and host metrics.

## Connection Protocol
- On connect: receives ` + "`" + `:connected` + "`" + ` comment
- Every 30s without events: receives ` + "`" + `:heartbeat <unix_epoch>` + "`" + ` comment

## Event Types
- ` + "`" + `job.status` + "`" + `: a job changed lifecycle state
- ` + "`" + `job.stats` + "`" + `: one telemetry sample
- ` + "`" + `job.log` + "`" + `: one encoder log line
- ` + "`" + `system.metrics` + "`" + `: host CPU/memory reading

Slow consumers lose oldest events first; the ` + "`" + `lag` + "`" + ` field counts
events dropped since the last delivered one.`,
		Tags: []string{"Events"},
	}, map[string]any{
		"job.status":     events.StatusPayload{},
		"job.log":        events.LogPayload{},
		"system.metrics": events.MetricsPayload{},
	}, func(ctx context.Context, input *SSEEventsInput, send sse.Sender) {
		// Placeholder for OpenAPI schema generation; RegisterSSE
		// provides the real stream.
		<-ctx.Done()
	})
}

// RegisterSSE registers the live SSE endpoint on a chi router.
func (h *EventsHandler) RegisterSSE(router interface {
	Get(pattern string, handlerFn http.HandlerFunc)
}) {
	router.Get("/api/v1/events", h.handleStream)
}

// handleStream is the raw HTTP handler for the event stream.
func (h *EventsHandler) handleStream(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Cache-Control")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")

	jobFilter := r.URL.Query().Get("job_id")

	var topics []events.Topic
	if raw := r.URL.Query().Get("topics"); raw != "" {
		for _, t := range strings.Split(raw, ",") {
			if t = strings.TrimSpace(t); t != "" {
				topics = append(topics, events.Topic(t))
			}
		}
	}

	sub := h.bus.Subscribe(topics...)
	defer h.bus.Unsubscribe(sub)

	rc := http.NewResponseController(w)

	heartbeat := time.NewTicker(h.heartbeatInterval)
	defer heartbeat.Stop()

	ctx := r.Context()

	fmt.Fprintf(w, ":connected\n\n")
	if err := rc.Flush(); err != nil {
		return
	}

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			fmt.Fprintf(w, ":heartbeat %d\n\n", time.Now().Unix())
			if err := rc.Flush(); err != nil {
				return
			}
		case ev, ok := <-sub.Events():
			if !ok {
				return
			}
			if jobFilter != "" && ev.JobID.String() != jobFilter {
				continue
			}
			if err := h.writeEvent(w, ev); err != nil {
				h.logger.Debug("writing SSE event failed, client likely disconnected",
					slog.String("error", err.Error()))
				return
			}
			if err := rc.Flush(); err != nil {
				return
			}
		}
	}
}

// writeEvent writes one event in SSE format, named by its topic.
func (h *EventsHandler) writeEvent(w http.ResponseWriter, ev events.Event) error {
	data, err := json.Marshal(EventEnvelope{
		Topic:     string(ev.Topic),
		JobID:     ev.JobID,
		Timestamp: ev.Timestamp,
		Lag:       ev.LagCount,
		Data:      ev.Data,
	})
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Topic, data)
	return err
}
