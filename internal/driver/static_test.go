package driver

import (
	"context"
	"errors"
	"testing"
)

func TestStatic_SendAndClose(t *testing.T) {
	d := NewStatic(Candidate{JID: "1@c.us"}, Candidate{JID: "2@c.us"})
	ctx := context.Background()

	s, err := d.OpenSession(ctx, "/p")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	n := 0
	for _, err := range s.ListAvailableContacts(ctx) {
		if err != nil {
			t.Fatal(err)
		}
		n++
	}
	if n != 2 {
		t.Errorf("expected 2 contacts, got %d", n)
	}

	if err := s.SendMessage(ctx, "1@c.us", "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}
	if d.OpenSessions() != 1 {
		t.Errorf("expected 1 open session, got %d", d.OpenSessions())
	}
	_ = s.Close()
	_ = s.Close()
	if d.OpenSessions() != 0 {
		t.Errorf("expected 0 open sessions, got %d", d.OpenSessions())
	}

	sent := d.Sent()
	if len(sent) != 1 || sent[0].JID != "1@c.us" || sent[0].Profile != "/p" {
		t.Errorf("unexpected sent: %+v", sent)
	}
}

func TestStatic_Errors(t *testing.T) {
	ctx := context.Background()

	d := &Static{SessionErr: errors.New("qr login required")}
	if _, err := d.OpenSession(ctx, "/p"); !errors.Is(err, ErrSession) {
		t.Errorf("expected ErrSession, got %v", err)
	}

	d = &Static{SendErr: map[string]error{"bad@c.us": errors.New("blocked")}}
	s, _ := d.OpenSession(ctx, "/p")
	if err := s.SendMessage(ctx, "bad@c.us", "hi"); !errors.Is(err, ErrSend) {
		t.Errorf("expected ErrSend, got %v", err)
	}
	if err := s.SendMessage(ctx, "ok@c.us", "hi"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestDryRun_DoesNotSend(t *testing.T) {
	inner := NewStatic(Candidate{JID: "1@c.us"})
	d := NewDryRun(inner, nil)
	ctx := context.Background()

	s, err := d.OpenSession(ctx, "/p")
	if err != nil {
		t.Fatal(err)
	}
	if err := s.SendMessage(ctx, "1@c.us", "hi"); err != nil {
		t.Fatalf("send: %v", err)
	}
	_ = s.Close()

	if len(inner.Sent()) != 0 {
		t.Error("dry run must not reach the inner driver")
	}
	if inner.OpenSessions() != 0 {
		t.Error("expected inner session closed")
	}
}
