package audit

import (
	"context"
	"testing"
	"time"
)

func TestStampFillsBlanks(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	ctx := WithClientInfo(context.Background(), "203.0.113.7", "curl/8.5")

	e := &Event{UserID: "u-1", Outcome: Granted}
	Stamp(ctx, e, "evt-1", now)

	if e.ID != "evt-1" {
		t.Fatalf("id not stamped: %q", e.ID)
	}
	if !e.OccurredAt.Equal(now) {
		t.Fatalf("timestamp not stamped: %v", e.OccurredAt)
	}
	if e.IPAddress != "203.0.113.7" || e.UserAgent != "curl/8.5" {
		t.Fatalf("client info not stamped: %q %q", e.IPAddress, e.UserAgent)
	}
}

func TestStampKeepsExistingValues(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	set := now.Add(-time.Hour)
	e := &Event{ID: "evt-0", OccurredAt: set, IPAddress: "198.51.100.9"}
	Stamp(WithClientInfo(context.Background(), "203.0.113.7", "curl/8.5"), e, "evt-1", now)

	if e.ID != "evt-0" || !e.OccurredAt.Equal(set) || e.IPAddress != "198.51.100.9" {
		t.Fatalf("stamp overwrote caller-supplied fields: %+v", e)
	}
}

func TestClientInfoRoundTrip(t *testing.T) {
	if ip, ua := ClientInfo(context.Background()); ip != "" || ua != "" {
		t.Fatalf("unexpected client info on empty context: %q %q", ip, ua)
	}
	ctx := WithClientInfo(context.Background(), " 203.0.113.7 ", "")
	if ip, _ := ClientInfo(ctx); ip != "203.0.113.7" {
		t.Fatalf("ip not trimmed: %q", ip)
	}
}

func TestMemoryRecentByUser(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	base := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		id := "a"
		if i%2 == 1 {
			id = "b"
		}
		if err := m.Record(ctx, &Event{ID: string(rune('0' + i)), UserID: id, OccurredAt: base.Add(time.Duration(i) * time.Minute)}); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, err := m.RecentByUser(ctx, "a", 2)
	if err != nil {
		t.Fatalf("RecentByUser: %v", err)
	}
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].ID != "4" || got[1].ID != "2" {
		t.Fatalf("events not newest first: %v", got)
	}
}
