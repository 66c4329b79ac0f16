// Package events fans out per-application progress, log and completion
// events to streaming subscribers and keeps a bounded backlog of recent
// events for each application.
package events

import (
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/krizcold/Yundera-Github-Compiler-sub001/internal/core/domain"
)

// =============================================================================
// Event Types
// =============================================================================

// Kind classifies an event.
type Kind string

const (
	KindLog       Kind = "log"
	KindStatus    Kind = "status"
	KindCompleted Kind = "completed"
)

// Severity tags log events.
type Severity string

const (
	SeverityInfo  Severity = "info"
	SeverityWarn  Severity = "warn"
	SeverityError Severity = "error"
)

// Event is a single published item for an application.
type Event struct {
	AppID    string           `json:"app_id"`
	Kind     Kind             `json:"kind"`
	Severity Severity         `json:"severity,omitempty"`
	Message  string           `json:"message,omitempty"`
	Status   domain.AppStatus `json:"status,omitempty"`
	Progress int              `json:"progress,omitempty"`
	Success  *bool            `json:"success,omitempty"`
	Time     time.Time        `json:"time"`
}

// Subscriber abstracts a streaming client.
type Subscriber interface {
	Send([]byte) error
	Close()
}

// DefaultBacklog is the number of events kept per application.
const DefaultBacklog = 500

// DefaultSendBuffer is the number of events queued per client before the
// client is considered stalled and dropped.
const DefaultSendBuffer = 256

// =============================================================================
// Hub
// =============================================================================

// Hub manages stream subscriptions and backlogs by application ID.
// Each client has its own queue and writer goroutine, so a slow client
// never delays Publish.
type Hub struct {
	mu         sync.Mutex
	clients    map[string]map[Subscriber]*peer
	backlog    map[string]*ring
	size       int
	sendBuffer int
	now        func() time.Time
	logger     *slog.Logger
}

// peer is a registered client and its pending payloads.
type peer struct {
	sub  Subscriber
	send chan []byte
}

// NewHub creates a Hub keeping up to backlog events per application.
func NewHub(backlog int, logger *slog.Logger) *Hub {
	if backlog <= 0 {
		backlog = DefaultBacklog
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Hub{
		clients:    make(map[string]map[Subscriber]*peer),
		backlog:    make(map[string]*ring),
		size:       backlog,
		sendBuffer: DefaultSendBuffer,
		now:        time.Now,
		logger:     logger.With("component", "events"),
	}
}

// Register adds a client to an application stream without replay.
func (h *Hub) Register(appID string, client Subscriber) {
	h.Subscribe(appID, client, 0)
}

// Subscribe queues up to replay backlog events for a client, oldest first,
// and registers it in the same critical section so nothing is missed or
// repeated between the two. A replay of zero sends no backlog.
// Registering a client twice is a no-op.
func (h *Hub) Subscribe(appID string, client Subscriber, replay int) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[appID][client]; ok {
		return
	}

	var pending [][]byte
	if r, ok := h.backlog[appID]; ok && replay > 0 {
		for _, ev := range r.last(replay) {
			payload, err := json.Marshal(ev)
			if err != nil {
				continue
			}
			pending = append(pending, payload)
		}
	}

	p := &peer{sub: client, send: make(chan []byte, h.sendBuffer+len(pending))}
	for _, payload := range pending {
		p.send <- payload
	}

	if _, ok := h.clients[appID]; !ok {
		h.clients[appID] = make(map[Subscriber]*peer)
	}
	h.clients[appID][client] = p
	go h.writeLoop(appID, p)
}

// writeLoop delivers queued payloads until the queue is closed or a send
// fails.
func (h *Hub) writeLoop(appID string, p *peer) {
	for payload := range p.send {
		if err := p.sub.Send(payload); err != nil {
			h.logger.Debug("dropping subscriber after failed send", "app_id", appID, "error", err)
			h.mu.Lock()
			h.dropLocked(appID, p)
			h.mu.Unlock()
			return
		}
	}
}

// dropLocked removes p if it is still registered and closes its client.
// Callers hold h.mu.
func (h *Hub) dropLocked(appID string, p *peer) {
	clients, ok := h.clients[appID]
	if !ok || clients[p.sub] != p {
		return
	}
	delete(clients, p.sub)
	if len(clients) == 0 {
		delete(h.clients, appID)
	}
	close(p.send)
	p.sub.Close()
}

// Unregister removes a client. Queued events are discarded.
func (h *Hub) Unregister(appID string, client Subscriber) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.clients[appID]
	if !ok {
		return
	}
	p, ok := clients[client]
	if !ok {
		return
	}
	delete(clients, client)
	if len(clients) == 0 {
		delete(h.clients, appID)
	}
	close(p.send)
}

// Subscribers returns the number of clients registered for an application.
func (h *Hub) Subscribers(appID string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients[appID])
}

// Publish records an event in the backlog and queues it for every client of
// the application. It never waits on a client: one whose queue is full is
// dropped and closed.
func (h *Hub) Publish(ev Event) {
	if ev.Time.IsZero() {
		ev.Time = h.now()
	}
	payload, err := json.Marshal(ev)
	if err != nil {
		h.logger.Warn("failed to marshal event", "app_id", ev.AppID, "error", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.backlog[ev.AppID]
	if !ok {
		r = newRing(h.size)
		h.backlog[ev.AppID] = r
	}
	r.push(ev)

	for _, p := range h.clients[ev.AppID] {
		select {
		case p.send <- payload:
		default:
			h.logger.Warn("dropping stalled subscriber", "app_id", ev.AppID, "queued", len(p.send))
			h.dropLocked(ev.AppID, p)
		}
	}
}

// Recent returns up to n of the most recent events for an application,
// oldest first. n <= 0 returns the whole backlog.
func (h *Hub) Recent(appID string, n int) []Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	r, ok := h.backlog[appID]
	if !ok {
		return []Event{}
	}
	return r.last(n)
}

// Forget drops the backlog of an application.
func (h *Hub) Forget(appID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.backlog, appID)
}

// =============================================================================
// Convenience Publishers
// =============================================================================

// Log publishes a severity-tagged log line.
func (h *Hub) Log(appID string, sev Severity, message string) {
	h.Publish(Event{AppID: appID, Kind: KindLog, Severity: sev, Message: message})
}

// Status publishes the current status of an application.
func (h *Hub) Status(app *domain.Application) {
	h.Publish(Event{
		AppID:    app.ID,
		Kind:     KindStatus,
		Status:   app.Status,
		Progress: app.Progress,
		Message:  app.Message,
	})
}

// Completed publishes the outcome of a run.
func (h *Hub) Completed(appID string, result domain.Result) {
	success := result.Success
	sev := SeverityInfo
	if !success {
		sev = SeverityError
	}
	h.Publish(Event{AppID: appID, Kind: KindCompleted, Severity: sev, Message: result.Message, Success: &success})
}

// LineCollector returns a callback suitable for streaming subprocess output
// into the application's log.
func (h *Hub) LineCollector(appID string) func(stream, line string) {
	return func(stream, line string) {
		h.Log(appID, ClassifyLine(stream, line), line)
	}
}

// ClassifyLine derives a severity from an output line.
func ClassifyLine(stream, line string) Severity {
	lower := strings.ToLower(line)
	switch {
	case strings.Contains(lower, "error"), strings.Contains(lower, "fatal"):
		return SeverityError
	case strings.Contains(lower, "warn"):
		return SeverityWarn
	}
	return SeverityInfo
}

// =============================================================================
// Backlog Ring
// =============================================================================

type ring struct {
	items []Event
	start int
	count int
}

func newRing(size int) *ring {
	return &ring{items: make([]Event, size)}
}

func (r *ring) push(ev Event) {
	idx := (r.start + r.count) % len(r.items)
	r.items[idx] = ev
	if r.count < len(r.items) {
		r.count++
		return
	}
	r.start = (r.start + 1) % len(r.items)
}

func (r *ring) last(n int) []Event {
	if n <= 0 || n > r.count {
		n = r.count
	}
	out := make([]Event, 0, n)
	for i := r.count - n; i < r.count; i++ {
		out = append(out, r.items[(r.start+i)%len(r.items)])
	}
	return out
}
