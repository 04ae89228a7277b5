package cache

import (
	"context"
	"testing"
	"time"
)

func TestMemoryClient(t *testing.T) {
	ctx := context.Background()
	c, err := New(ctx, Config{Kind: "memory", Prefix: "idp"})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()

	if _, err := c.Get(ctx, "client:app1"); !IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := c.Set(ctx, "client:app1", `{"client_id":"app1"}`, 0); err != nil {
		t.Fatal(err)
	}
	v, err := c.Get(ctx, "client:app1")
	if err != nil || v != `{"client_id":"app1"}` {
		t.Fatalf("got %q, %v", v, err)
	}
	if ok, _ := c.Exists(ctx, "client:app1"); !ok {
		t.Fatal("expected key to exist")
	}

	st, _ := c.Stats(ctx)
	if st.Driver != "memory" || st.Keys != 1 || st.Hits != 1 || st.Misses != 1 {
		t.Fatalf("unexpected stats %+v", st)
	}

	_ = c.Delete(ctx, "client:app1")
	if ok, _ := c.Exists(ctx, "client:app1"); ok {
		t.Fatal("expected key to be deleted")
	}
}

func TestMemoryClientTTL(t *testing.T) {
	ctx := context.Background()
	c := NewMemory("")
	_ = c.Set(ctx, "k", "v", 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	if _, err := c.Get(ctx, "k"); !IsNotFound(err) {
		t.Fatalf("expected expired key, got %v", err)
	}
}

func TestNewUnknownKind(t *testing.T) {
	if _, err := New(context.Background(), Config{Kind: "memcached"}); err == nil {
		t.Fatal("expected error for unknown kind")
	}
}

func TestInfoField(t *testing.T) {
	info := "# Memory\r\nused_memory:1024\r\nused_memory_human:1.00K\r\n"
	if got := infoField(info, "used_memory_human"); got != "1.00K" {
		t.Fatalf("got %q", got)
	}
	if got := infoField(info, "missing"); got != "" {
		t.Fatalf("got %q", got)
	}
}

func TestMemoryIncr(t *testing.T) {
	ctx := context.Background()
	c := NewMemory("rl")
	for want := int64(1); want <= 3; want++ {
		n, ttl, err := c.Incr(ctx, "login:alice", time.Minute)
		if err != nil {
			t.Fatal(err)
		}
		if n != want || ttl <= 0 || ttl > time.Minute {
			t.Fatalf("incr #%d = %d, ttl %v", want, n, ttl)
		}
	}

	_, _, _ = c.Incr(ctx, "short", 10*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	if n, _, _ := c.Incr(ctx, "short", 10*time.Millisecond); n != 1 {
		t.Fatalf("counter should restart after the window, got %d", n)
	}
}
