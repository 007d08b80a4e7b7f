package chat_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zhouzirui/implantai/backend/internal/model/catalog"
	"github.com/zhouzirui/implantai/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/implantai/backend/internal/service/chat"
)

type countingDiscarder struct{ resets int }

func (d *countingDiscarder) Reset() { d.resets++ }

func TestStoreStartsWithGreeting(t *testing.T) {
	store := chatservice.NewStore(nil)

	turns := store.All(context.Background())
	if len(turns) != 1 {
		t.Fatalf("unexpected log length: got %d want 1", len(turns))
	}
	if !turns[0].Greeting {
		t.Fatal("expected greeting turn at log start")
	}
}

func TestStoreAppendPreservesOrder(t *testing.T) {
	store := chatservice.NewStore(nil)
	ctx := context.Background()

	first := chat.NewUserTurn("first", nil)
	second := chat.NewAssistantTurn("second", catalog.Flash)
	for _, turn := range []chat.Turn{first, second} {
		if _, err := store.Append(ctx, turn); err != nil {
			t.Fatalf("Append err: %v", err)
		}
	}

	turns := store.All(ctx)
	if len(turns) != 3 {
		t.Fatalf("unexpected log length: got %d want 3", len(turns))
	}
	if turns[1].ID != first.ID || turns[2].ID != second.ID {
		t.Fatalf("unexpected order: %s, %s", turns[1].ID, turns[2].ID)
	}
}

func TestStoreAppendRejectsInvalidTurns(t *testing.T) {
	store := chatservice.NewStore(nil)
	ctx := context.Background()

	if _, err := store.Append(ctx, chat.NewUserTurn("  ", nil)); !errors.Is(err, chatservice.ErrEmptyTurn) {
		t.Fatalf("expected ErrEmptyTurn, got %v", err)
	}

	bad := chat.NewUserTurn("hi", nil)
	bad.Speaker = "system"
	if _, err := store.Append(ctx, bad); !errors.Is(err, chatservice.ErrInvalidSpeaker) {
		t.Fatalf("expected ErrInvalidSpeaker, got %v", err)
	}

	turn := chat.NewUserTurn("hi", nil)
	if _, err := store.Append(ctx, turn); err != nil {
		t.Fatalf("Append err: %v", err)
	}
	if _, err := store.Append(ctx, turn); !errors.Is(err, chatservice.ErrDuplicateTurn) {
		t.Fatalf("expected ErrDuplicateTurn, got %v", err)
	}
}

func TestStoreAppendKeepsTimestampsMonotonic(t *testing.T) {
	store := chatservice.NewStore(nil)
	ctx := context.Background()

	late := chat.NewUserTurn("late", nil)
	late.CreatedAt = time.Now().Add(time.Hour)
	if _, err := store.Append(ctx, late); err != nil {
		t.Fatalf("Append err: %v", err)
	}

	early := chat.NewUserTurn("early", nil)
	stored, err := store.Append(ctx, early)
	if err != nil {
		t.Fatalf("Append err: %v", err)
	}
	if stored.CreatedAt.Before(late.CreatedAt) {
		t.Fatalf("timestamp went backwards: %v < %v", stored.CreatedAt, late.CreatedAt)
	}
}

func TestStoreAllReturnsCopy(t *testing.T) {
	store := chatservice.NewStore(nil)
	ctx := context.Background()

	turns := store.All(ctx)
	turns[0].Text = "mutated"

	if store.All(ctx)[0].Text == "mutated" {
		t.Fatal("All must not expose internal storage")
	}
}

func TestStoreResetDiscardsSession(t *testing.T) {
	discarder := &countingDiscarder{}
	store := chatservice.NewStore(discarder)
	ctx := context.Background()

	before := store.All(ctx)[0]
	if _, err := store.Append(ctx, chat.NewUserTurn("hi", nil)); err != nil {
		t.Fatalf("Append err: %v", err)
	}

	greeting := store.Reset(ctx)
	if discarder.resets != 1 {
		t.Fatalf("expected session discard, got %d resets", discarder.resets)
	}
	if store.Len() != 1 {
		t.Fatalf("unexpected log length after reset: %d", store.Len())
	}
	if greeting.ID == before.ID || !greeting.Greeting {
		t.Fatal("expected a fresh greeting turn")
	}
}
