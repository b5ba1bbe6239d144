package redisstore

import (
	"context"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	s, err := New(context.Background(), mr.Addr(), 250*time.Millisecond)
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s, mr
}

func TestNew_RequiresAddr(t *testing.T) {
	if _, err := New(context.Background(), "", time.Second); err == nil {
		t.Fatal("expected error for empty address")
	}
}

func TestSetGet_RoundTrip(t *testing.T) {
	s, _ := newTestStore(t)

	if err := s.Set("k", []byte(`{"alerts":[]}`), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	got, age, ok, err := s.Get("k")
	if err != nil || !ok {
		t.Fatalf("get: ok=%v err=%v", ok, err)
	}
	if string(got) != `{"alerts":[]}` {
		t.Fatalf("payload = %q", got)
	}
	if age < 0 {
		t.Fatalf("age = %v", age)
	}
}

func TestGet_MissIsNotError(t *testing.T) {
	s, _ := newTestStore(t)
	_, _, ok, err := s.Get("absent")
	if err != nil {
		t.Fatalf("miss must not be an error: %v", err)
	}
	if ok {
		t.Fatal("absent key reported as found")
	}
}

func TestGet_ExpiredByRedisTTL(t *testing.T) {
	s, mr := newTestStore(t)

	if err := s.Set("k", []byte("v"), time.Minute); err != nil {
		t.Fatalf("set: %v", err)
	}
	mr.FastForward(2 * time.Minute)

	if _, _, ok, _ := s.Get("k"); ok {
		t.Fatal("entry served past its TTL")
	}
}

func TestGet_ForeignValueTreatedAsMiss(t *testing.T) {
	s, mr := newTestStore(t)

	// not an envelope; must not error or be served
	if err := mr.Set("k", "not-json"); err != nil {
		t.Fatalf("seed: %v", err)
	}
	_, _, ok, err := s.Get("k")
	if err != nil {
		t.Fatalf("foreign value must degrade to a miss: %v", err)
	}
	if ok {
		t.Fatal("foreign value served as a hit")
	}
}

func TestPurge_CountsAndClears(t *testing.T) {
	s, _ := newTestStore(t)
	_ = s.Set("a", []byte("1"), time.Minute)
	_ = s.Set("b", []byte("2"), time.Minute)

	n, err := s.Purge()
	if err != nil {
		t.Fatalf("purge: %v", err)
	}
	if n != 2 {
		t.Fatalf("purged = %d, want 2", n)
	}
	if _, _, ok, _ := s.Get("a"); ok {
		t.Fatal("entry survived purge")
	}
}

func TestDel_RemovesKeys(t *testing.T) {
	s, _ := newTestStore(t)
	_ = s.Set("a", []byte("1"), time.Minute)
	_ = s.Set("b", []byte("2"), time.Minute)

	if err := s.Del("a"); err != nil {
		t.Fatalf("del: %v", err)
	}
	if _, _, ok, _ := s.Get("a"); ok {
		t.Fatal("deleted key still present")
	}
	if _, _, ok, _ := s.Get("b"); !ok {
		t.Fatal("unrelated key removed")
	}
}
