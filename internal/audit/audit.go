// Package audit emite eventos estructurados fire-and-forget: altas, cambios y
// bajas de entidades, y resultados de login. Un fallo al emitir nunca se
// propaga al caller.
package audit

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/dropDatabas3/identityd/internal/observability/logger"
)

// EventType tipo de evento.
type EventType string

const (
	EntityCreated EventType = "entity.created"
	EntityUpdated EventType = "entity.updated"
	EntityDeleted EventType = "entity.deleted"
	LoginSuccess  EventType = "login.success"
	LoginFailure  EventType = "login.failure"
)

// Event es un evento de auditoría. ID y Time se completan al emitir si
// vienen vacíos.
type Event struct {
	ID        string         `json:"id"`
	Type      EventType      `json:"type"`
	Time      time.Time      `json:"ts"`
	Entity    string         `json:"entity,omitempty"`
	EntityID  string         `json:"entity_id,omitempty"`
	Provider  string         `json:"provider,omitempty"`
	SubjectID string         `json:"subject_id,omitempty"`
	ClientID  string         `json:"client_id,omitempty"`
	Reason    string         `json:"reason,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// Sink recibe eventos. Emit no bloquea ni falla.
type Sink interface {
	Emit(ctx context.Context, e Event)
}

// Nop descarta todo.
type Nop struct{}

func (Nop) Emit(context.Context, Event) {}

func stamp(e Event) Event {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Time.IsZero() {
		e.Time = time.Now().UTC()
	}
	return e
}

// ─── LogSink ───

// LogSink escribe los eventos al logger desde una goroutine propia. Si el
// buffer está lleno el evento se descarta y se cuenta.
type LogSink struct {
	mu      sync.RWMutex
	closed  bool
	ch      chan Event
	done    chan struct{}
	dropped atomic.Uint64
	log     *zap.Logger
}

// NewLogSink crea el sink y arranca su writer.
func NewLogSink(log *zap.Logger, buffer int) *LogSink {
	if log == nil {
		log = logger.L()
	}
	if buffer <= 0 {
		buffer = 256
	}
	s := &LogSink{
		ch:   make(chan Event, buffer),
		done: make(chan struct{}),
		log:  log.Named("audit"),
	}
	go s.loop()
	return s
}

func (s *LogSink) Emit(_ context.Context, e Event) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		s.dropped.Add(1)
		return
	}
	select {
	case s.ch <- stamp(e):
	default:
		s.dropped.Add(1)
	}
}

func (s *LogSink) loop() {
	defer close(s.done)
	for e := range s.ch {
		fields := []zap.Field{
			zap.String("event_id", e.ID),
			zap.String("event", string(e.Type)),
			zap.Time("ts", e.Time),
		}
		if e.Entity != "" {
			fields = append(fields, zap.String("entity", e.Entity), zap.String("entity_id", e.EntityID))
		}
		if e.Provider != "" {
			fields = append(fields, logger.Provider(e.Provider))
		}
		if e.SubjectID != "" {
			fields = append(fields, logger.SubjectID(e.SubjectID))
		}
		if e.ClientID != "" {
			fields = append(fields, logger.ClientID(e.ClientID))
		}
		if e.Reason != "" {
			fields = append(fields, zap.String("reason", e.Reason))
		}
		if len(e.Fields) > 0 {
			fields = append(fields, zap.Any("fields", e.Fields))
		}
		s.log.Info("audit", fields...)
	}
}

// Dropped retorna cuántos eventos se descartaron.
func (s *LogSink) Dropped() uint64 { return s.dropped.Load() }

// Close deja de aceptar eventos y espera a que se escriban los pendientes.
func (s *LogSink) Close() {
	s.mu.Lock()
	if !s.closed {
		s.closed = true
		close(s.ch)
	}
	s.mu.Unlock()
	<-s.done
}

// ─── Recorder ───

// Recorder guarda los eventos en memoria. Útil en tests y en el CLI.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *Recorder) Emit(_ context.Context, e Event) {
	r.mu.Lock()
	r.events = append(r.events, stamp(e))
	r.mu.Unlock()
}

// Events retorna una copia de los eventos registrados.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType filtra por tipo.
func (r *Recorder) OfType(t EventType) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}
