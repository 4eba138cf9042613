package store

import (
	"context"
	"testing"
	"time"
)

func testDB(t *testing.T) *ChatStore {
	t.Helper()
	db, err := Open(":memory:")
	if err != nil {
		t.Fatalf("opening database: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewChatStore(db)
}

func TestEnsureConversation(t *testing.T) {
	s := testDB(t)
	ctx := context.Background()

	c, err := s.EnsureConversation(ctx, "conv-1", "u1", "Gastei 50 reais no mercado. E foi caro.")
	if err != nil {
		t.Fatalf("EnsureConversation: %v", err)
	}
	if c.Title != "Gastei 50 reais no mercado" {
		t.Errorf("title = %q", c.Title)
	}

	// Second call returns the same conversation; the title is not rederived.
	again, err := s.EnsureConversation(ctx, "conv-1", "u1", "outra mensagem")
	if err != nil {
		t.Fatalf("EnsureConversation 2: %v", err)
	}
	if again.Title != c.Title {
		t.Errorf("title changed on re-ensure: %q", again.Title)
	}
}

func TestAppendMessageIdempotent(t *testing.T) {
	s := testDB(t)
	ctx := context.Background()

	if _, err := s.EnsureConversation(ctx, "conv-1", "u1", "oi"); err != nil {
		t.Fatal(err)
	}

	msg := &StoredMessage{ID: "m1", ConversationID: "conv-1", UserID: "u1", Role: "user", Content: "oi"}
	if err := s.AppendMessage(ctx, msg); err != nil {
		t.Fatalf("AppendMessage: %v", err)
	}
	if err := s.AppendMessage(ctx, msg); err != nil {
		t.Fatalf("duplicate AppendMessage: %v", err)
	}

	history, err := s.History(ctx, "conv-1", 0)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(history) != 1 {
		t.Errorf("history = %d messages, want 1", len(history))
	}
}

func TestMessagesSinceFiltersToolMessages(t *testing.T) {
	s := testDB(t)
	ctx := context.Background()

	if _, err := s.EnsureConversation(ctx, "conv-1", "u1", "oi"); err != nil {
		t.Fatal(err)
	}

	base := time.Now().UTC().Add(-time.Hour)
	messages := []*StoredMessage{
		{ID: "m1", ConversationID: "conv-1", UserID: "u1", Role: "user", Content: "registra 80kg", CreatedAt: base},
		{ID: "m2", ConversationID: "conv-1", UserID: "u1", Role: "tool", Content: `{"success":true}`, CreatedAt: base.Add(time.Minute)},
		{ID: "m3", ConversationID: "conv-1", UserID: "u1", Role: "assistant", Content: "Registrado!", CreatedAt: base.Add(2 * time.Minute)},
	}
	for _, m := range messages {
		if err := s.AppendMessage(ctx, m); err != nil {
			t.Fatal(err)
		}
	}

	since, err := s.MessagesSince(ctx, "u1", base.Add(-time.Minute))
	if err != nil {
		t.Fatalf("MessagesSince: %v", err)
	}
	if len(since) != 2 {
		t.Fatalf("messages = %d, want 2 (tool messages excluded)", len(since))
	}
	if since[0].Role != "user" || since[1].Role != "assistant" {
		t.Errorf("roles = %q, %q", since[0].Role, since[1].Role)
	}

	// Nothing after the last message.
	none, err := s.MessagesSince(ctx, "u1", base.Add(time.Hour))
	if err != nil {
		t.Fatal(err)
	}
	if len(none) != 0 {
		t.Errorf("messages = %d, want 0", len(none))
	}
}

func TestDeriveTitle(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"", "Nova conversa"},
		{"Bom dia", "Bom dia"},
		{"Gastei 50 reais. No mercado.", "Gastei 50 reais"},
		{"Como foi?\nMuito bem", "Como foi"},
	}
	for _, tc := range cases {
		if got := DeriveTitle(tc.in); got != tc.want {
			t.Errorf("DeriveTitle(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
