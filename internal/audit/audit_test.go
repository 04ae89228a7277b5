package audit

import (
	"context"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestLogSinkWritesEvents(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	s := NewLogSink(zap.New(core), 8)

	s.Emit(context.Background(), Event{Type: LoginSuccess, Provider: "ldap", SubjectID: `CORP\alice`, ClientID: "app1"})
	s.Emit(context.Background(), Event{Type: EntityCreated, Entity: "user", EntityID: `CORP\alice:ldap`})
	s.Close()

	entries := logs.FilterMessage("audit").All()
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(entries))
	}
	first := entries[0].ContextMap()
	if first["event"] != string(LoginSuccess) || first["client_id"] != "app1" {
		t.Fatalf("unexpected fields %v", first)
	}
	if id, _ := first["event_id"].(string); id == "" {
		t.Fatal("event id must be assigned")
	}
}

func TestLogSinkNeverBlocksOrPanics(t *testing.T) {
	s := NewLogSink(zap.NewNop(), 1)
	s.Close()
	s.Emit(context.Background(), Event{Type: LoginFailure})
	if s.Dropped() != 1 {
		t.Fatalf("expected 1 dropped event, got %d", s.Dropped())
	}
	s.Close()
}

func TestRecorder(t *testing.T) {
	var r Recorder
	r.Emit(context.Background(), Event{Type: EntityCreated})
	r.Emit(context.Background(), Event{Type: LoginSuccess})
	if got := r.OfType(LoginSuccess); len(got) != 1 || got[0].ID == "" || got[0].Time.IsZero() {
		t.Fatalf("unexpected events %+v", got)
	}
	var _ Sink = Nop{}
	var _ Sink = &r
}
