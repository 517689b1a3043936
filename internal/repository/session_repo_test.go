package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stfn-ko/Wasabi/internal/db"
	"github.com/stfn-ko/Wasabi/internal/model"
)

func setupTestRepo(t *testing.T) *SessionRepository {
	t.Helper()
	database, err := db.NewTestDB()
	if err != nil {
		t.Fatalf("Failed to create database: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewSessionRepository(database)
}

func TestSessionRepository_Lifecycle(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	opened := time.Now().UTC().Truncate(time.Second)
	rec := &model.SessionRecord{
		ID:       "s1",
		Role:     model.RoleAcceptor,
		Peer:     "127.0.0.1:5555",
		State:    model.StateOpen,
		OpenedAt: opened,
	}
	if err := repo.Create(ctx, rec); err != nil {
		t.Fatalf("Create() error = %v", err)
	}

	got, err := repo.GetByID(ctx, "s1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.Role != model.RoleAcceptor || got.Peer != rec.Peer || got.State != model.StateOpen {
		t.Errorf("unexpected record %+v", got)
	}
	if got.Closed() {
		t.Error("new record should not be closed")
	}

	n, err := repo.CountOpen(ctx)
	if err != nil || n != 1 {
		t.Errorf("CountOpen() = %d, %v; want 1", n, err)
	}

	closed := opened.Add(3 * time.Second)
	rec.State = model.StateClosed
	rec.CloseReason = "peer closed (1000)"
	rec.ErrorKind = ""
	rec.FramesIn = 4
	rec.FramesOut = 7
	rec.ClosedAt = &closed
	if err := repo.MarkClosed(ctx, rec); err != nil {
		t.Fatalf("MarkClosed() error = %v", err)
	}

	got, err = repo.GetByID(ctx, "s1")
	if err != nil {
		t.Fatalf("GetByID() error = %v", err)
	}
	if got.State != model.StateClosed || got.FramesIn != 4 || got.FramesOut != 7 {
		t.Errorf("unexpected closed record %+v", got)
	}
	if got.CloseReason != rec.CloseReason || got.ErrorKind != "" {
		t.Errorf("unexpected close details %q %q", got.CloseReason, got.ErrorKind)
	}
	if !got.Closed() || got.Duration() != 3*time.Second {
		t.Errorf("expected 3s duration, got %v", got.Duration())
	}

	n, _ = repo.CountOpen(ctx)
	if n != 0 {
		t.Errorf("expected no open sessions, got %d", n)
	}
}

func TestSessionRepository_NotFound(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	if _, err := repo.GetByID(ctx, "missing"); !errors.Is(err, model.ErrSessionNotFound) {
		t.Errorf("GetByID() error = %v, want ErrSessionNotFound", err)
	}

	now := time.Now()
	err := repo.MarkClosed(ctx, &model.SessionRecord{ID: "missing", ClosedAt: &now})
	if !errors.Is(err, model.ErrSessionNotFound) {
		t.Errorf("MarkClosed() error = %v, want ErrSessionNotFound", err)
	}

	if err := repo.Delete(ctx, "missing"); !errors.Is(err, model.ErrSessionNotFound) {
		t.Errorf("Delete() error = %v, want ErrSessionNotFound", err)
	}
}

func TestSessionRepository_List(t *testing.T) {
	repo := setupTestRepo(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i, id := range []string{"a", "b", "c"} {
		err := repo.Create(ctx, &model.SessionRecord{
			ID:       id,
			Role:     model.RoleInitiator,
			Peer:     "ws://127.0.0.1:8080/",
			State:    model.StateOpen,
			OpenedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("Create(%s) error = %v", id, err)
		}
	}

	all, err := repo.List(ctx, 0)
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(all) != 3 || all[0].ID != "c" || all[2].ID != "a" {
		t.Errorf("expected newest first, got %v", ids(all))
	}

	limited, err := repo.List(ctx, 2)
	if err != nil {
		t.Fatalf("List(2) error = %v", err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 records, got %d", len(limited))
	}

	if err := repo.Delete(ctx, "b"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	all, _ = repo.List(ctx, 0)
	if len(all) != 2 {
		t.Errorf("expected 2 records after delete, got %d", len(all))
	}
}

func ids(records []*model.SessionRecord) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}
