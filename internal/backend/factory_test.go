package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"

	"expensio/internal/config"
	"expensio/internal/session"
)

func roundTrip(t *testing.T, p session.Provider) {
	t.Helper()
	ctx := context.Background()
	st := p.Open("client")
	if err := st.Write(ctx, map[string]string{session.KeyUser: "ann"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	got, err := st.Read(ctx)
	if err != nil || got[session.KeyUser] != "ann" {
		t.Fatalf("read back %v (err=%v)", got, err)
	}
}

func TestCreateBackend(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis.Run failed: %v", err)
	}
	defer mr.Close()

	tests := []struct {
		name   string
		config Config
	}{
		{"memory", Config{Type: MemoryBackend}},
		{"sqlite", Config{Type: SQLiteBackend, SQLiteDBPath: filepath.Join(t.TempDir(), "s.db")}},
		{"redis", Config{Type: RedisBackend, RedisAddr: mr.Addr(), SessionTTL: time.Hour}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := NewFactory(nil).CreateBackend(context.Background(), tt.config)
			if err != nil {
				t.Fatalf("CreateBackend() error = %v", err)
			}
			if res.Cleanup != nil {
				defer res.Cleanup()
			}
			if res.Events != nil {
				t.Errorf("events should be disabled without AMQP URL")
			}
			if err := res.Ping(context.Background()); err != nil {
				t.Errorf("ping: %v", err)
			}
			roundTrip(t, res.Provider)
		})
	}
}

func TestCreateBackendRejectsInvalidConfig(t *testing.T) {
	cases := []Config{
		{Type: "sheets"},
		{Type: SQLiteBackend},
		{Type: RedisBackend},
		{Type: MemoryBackend, AMQPURL: "amqp://localhost/"},
	}
	for _, c := range cases {
		if _, err := NewFactory(nil).CreateBackend(context.Background(), c); err == nil {
			t.Errorf("expected error for %+v", c)
		}
	}
}

func TestCreateBackendUnreachableRedis(t *testing.T) {
	_, err := NewFactory(nil).CreateBackend(context.Background(), Config{Type: RedisBackend, RedisAddr: "127.0.0.1:1"})
	if err == nil {
		t.Fatalf("expected connection error")
	}
}

func TestFromAppConfig(t *testing.T) {
	cfg := &config.Config{SessionBackend: "redis", RedisAddr: "r:6379", RedisDB: 3, SessionTTL: time.Hour}
	bc, err := FromAppConfig(cfg)
	if err != nil {
		t.Fatalf("FromAppConfig() error = %v", err)
	}
	if bc.Type != RedisBackend || bc.RedisAddr != "r:6379" || bc.RedisDB != 3 || bc.SessionTTL != time.Hour {
		t.Errorf("unexpected backend config %+v", bc)
	}
	if _, err := FromAppConfig(&config.Config{SessionBackend: "sheets"}); err == nil {
		t.Errorf("expected error for unknown backend")
	}
	if _, err := FromAppConfig(nil); err == nil {
		t.Errorf("expected error for nil config")
	}
}
