package storage

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"expensio/internal/core"
	"expensio/internal/session"
)

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo, err := NewSQLiteRepository(filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatalf("open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })
	return repo
}

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	t.Cleanup(mr.Close)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return mr, client
}

// storageContract checks the behaviour every backend shares.
func storageContract(t *testing.T, a, b session.Storage) {
	ctx := context.Background()

	got, err := a.Read(ctx)
	if err != nil {
		t.Fatalf("read empty: %v", err)
	}
	if len(got) != 0 {
		t.Fatalf("expected empty snapshot, got %v", got)
	}

	snap := map[string]string{session.KeyToken: "tok", session.KeyRole: "USER", session.KeyUser: "ann"}
	if err := a.Write(ctx, snap); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err = a.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	for k, v := range snap {
		if got[k] != v {
			t.Fatalf("%s = %q, want %q", k, got[k], v)
		}
	}

	if b != nil {
		other, err := b.Read(ctx)
		if err != nil {
			t.Fatalf("read other client: %v", err)
		}
		if len(other) != 0 {
			t.Fatalf("clients share state: %v", other)
		}
	}

	if err := a.Write(ctx, map[string]string{session.KeyRole: "ADMIN"}); err != nil {
		t.Fatalf("overwrite: %v", err)
	}
	got, _ = a.Read(ctx)
	if got[session.KeyRole] != "ADMIN" || got[session.KeyToken] != "tok" {
		t.Fatalf("overwrite lost fields: %v", got)
	}

	if err := a.Remove(ctx, session.Keys...); err != nil {
		t.Fatalf("remove: %v", err)
	}
	got, _ = a.Read(ctx)
	if len(got) != 0 {
		t.Fatalf("expected empty after remove, got %v", got)
	}
	if err := a.Remove(ctx, session.Keys...); err != nil {
		t.Fatalf("remove twice: %v", err)
	}
}

func TestMemoryProvider(t *testing.T) {
	p := NewMemoryProvider()
	storageContract(t, p.Open("a"), p.Open("b"))
	if p.Len() != 0 {
		t.Fatalf("removed client still tracked")
	}
}

func TestSQLiteStorage(t *testing.T) {
	repo := newTestRepo(t)
	storageContract(t, repo.Open("a"), repo.Open("b"))
}

func TestRedisProvider(t *testing.T) {
	mr, client := newTestRedis(t)
	p := NewRedisProvider(client, time.Hour)
	storageContract(t, p.Open("a"), p.Open("b"))

	ctx := context.Background()
	if err := p.Open("c").Write(ctx, map[string]string{session.KeyToken: "t"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if ttl := mr.TTL(redisKeyPrefix + "c"); ttl != time.Hour {
		t.Fatalf("expected 1h ttl, got %v", ttl)
	}
	mr.FastForward(2 * time.Hour)
	got, err := p.Open("c").Read(ctx)
	if err != nil || len(got) != 0 {
		t.Fatalf("expected expired session, got %v (err=%v)", got, err)
	}
}

func TestRedisTouchSlidesExpiry(t *testing.T) {
	mr, client := newTestRedis(t)
	p := NewRedisProvider(client, time.Hour)
	ctx := context.Background()

	st := p.Open("c")
	if err := st.Write(ctx, map[string]string{session.KeyToken: "t"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	mr.FastForward(50 * time.Minute)
	if err := st.(session.Toucher).Touch(ctx); err != nil {
		t.Fatalf("touch: %v", err)
	}
	mr.FastForward(50 * time.Minute)
	if got, err := st.Read(ctx); err != nil || got[session.KeyToken] != "t" {
		t.Fatalf("touched session expired: %v (err=%v)", got, err)
	}
}

func TestFileStorage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	storageContract(t, NewFileStorage(path), nil)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("empty session should remove the file, stat err=%v", err)
	}
}

func TestFileStorageCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	fs := NewFileStorage(path)
	ctx := context.Background()
	if _, err := fs.Read(ctx); !errors.Is(err, session.ErrCorrupt) {
		t.Fatalf("expected ErrCorrupt, got %v", err)
	}

	if err := fs.Remove(ctx, session.Keys...); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("corrupt file should be deleted, stat err=%v", err)
	}

	if err := os.WriteFile(path, []byte("{not json"), 0600); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := fs.Write(ctx, map[string]string{session.KeyToken: "t"}); err != nil {
		t.Fatalf("write over corrupt file: %v", err)
	}
	got, err := fs.Read(ctx)
	if err != nil || got[session.KeyToken] != "t" || len(got) != 1 {
		t.Fatalf("unexpected snapshot %v (err=%v)", got, err)
	}
}

func TestSQLitePurgeExpired(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	repo.now = func() time.Time { return base }
	if err := repo.Open("old").Write(ctx, map[string]string{session.KeyToken: "t"}); err != nil {
		t.Fatalf("write old: %v", err)
	}
	repo.now = func() time.Time { return base.Add(48 * time.Hour) }
	if err := repo.Open("new").Write(ctx, map[string]string{session.KeyToken: "t"}); err != nil {
		t.Fatalf("write new: %v", err)
	}

	n, err := repo.PurgeExpired(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 purged row, got %d", n)
	}
	if got, _ := repo.Open("new").Read(ctx); got[session.KeyToken] != "t" {
		t.Fatalf("fresh session purged")
	}
}

func TestSQLiteTouchDefersPurge(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

	repo.now = func() time.Time { return base }
	for _, id := range []string{"active", "idle"} {
		if err := repo.Open(id).Write(ctx, map[string]string{session.KeyToken: "t"}); err != nil {
			t.Fatalf("write %s: %v", id, err)
		}
	}

	repo.now = func() time.Time { return base.Add(20 * time.Hour) }
	if err := repo.Open("active").(session.Toucher).Touch(ctx); err != nil {
		t.Fatalf("touch: %v", err)
	}

	repo.now = func() time.Time { return base.Add(30 * time.Hour) }
	if _, err := repo.PurgeExpired(ctx, 24*time.Hour); err != nil {
		t.Fatalf("purge: %v", err)
	}
	if got, _ := repo.Open("active").Read(ctx); got[session.KeyToken] != "t" {
		t.Fatalf("touched session purged")
	}
	if got, _ := repo.Open("idle").Read(ctx); len(got) != 0 {
		t.Fatalf("idle session kept: %v", got)
	}
}

func TestSQLiteEvents(t *testing.T) {
	repo := newTestRepo(t)
	ctx := context.Background()
	t0 := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

	evs := []core.SessionEvent{
		{ID: "1", Type: core.SessionRegister, Username: "ann", Role: core.RoleUser, ClientID: "c", Timestamp: t0},
		{ID: "2", Type: core.SessionLogout, Username: "ann", Role: core.RoleUser, ClientID: "c", Timestamp: t0.Add(time.Minute)},
	}
	for _, ev := range evs {
		ok, err := repo.RecordEvent(ctx, ev)
		if err != nil || !ok {
			t.Fatalf("record %s: ok=%v err=%v", ev.ID, ok, err)
		}
	}
	if ok, err := repo.RecordEvent(ctx, evs[0]); err != nil || ok {
		t.Fatalf("redelivery should be ignored: ok=%v err=%v", ok, err)
	}

	got, err := repo.ListEvents(ctx, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(got) != 2 || got[0].ID != "2" || got[1].Type != core.SessionRegister {
		t.Fatalf("unexpected events %+v", got)
	}
	if !got[1].Timestamp.Equal(t0) {
		t.Fatalf("timestamp changed: %v", got[1].Timestamp)
	}
}
