package redis

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
)

type redisCfg struct {
	url      string
	insecure bool
}

func (c redisCfg) GetRedisURL() string       { return c.url }
func (c redisCfg) GetRedisTLSInsecure() bool { return c.insecure }

func TestParseOptionsRequiresURL(t *testing.T) {
	if _, err := ParseOptions("  ", false); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestParseOptionsAppliesInsecureTLS(t *testing.T) {
	opt, err := ParseOptions("redis://localhost:6379/2", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if opt.DB != 2 {
		t.Fatalf("expected db 2, got %d", opt.DB)
	}
	if opt.TLSConfig == nil || !opt.TLSConfig.InsecureSkipVerify {
		t.Fatalf("expected insecure TLS config")
	}
}

func TestNewClientPings(t *testing.T) {
	srv := miniredis.RunT(t)

	client, err := NewClient(context.Background(), redisCfg{url: "redis://" + srv.Addr()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()

	if err := client.Set(context.Background(), "k", "v", 0).Err(); err != nil {
		t.Fatalf("set failed: %v", err)
	}
	if got, _ := srv.Get("k"); got != "v" {
		t.Fatalf("expected v, got %q", got)
	}
}

func TestHealthCheckerReportsOutage(t *testing.T) {
	srv := miniredis.RunT(t)
	client, err := NewClient(context.Background(), redisCfg{url: "redis://" + srv.Addr()})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	defer client.Close()

	health := NewHealthChecker(client)
	if err := health.Ping(context.Background()); err != nil {
		t.Fatalf("expected healthy redis, got %v", err)
	}

	srv.SetError("LOADING")
	if err := health.Ping(context.Background()); err == nil {
		t.Fatal("expected ping to fail while redis reports an error")
	}
}
