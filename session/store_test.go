package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newSessionStoreTest(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	return NewStore(rdb, "test", 14*24*time.Hour), mr
}

func testSession(id string) *Session {
	return &Session{
		SessionID:     id,
		UserID:        "u-1",
		SecurityStamp: "STAMP",
		Lifetime:      30 * time.Minute,
		CreatedAt:     time.Now().Unix(),
	}
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	in := testSession("sid")
	in.Persistent = true
	data, err := Encode(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	out, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.UserID != in.UserID || out.SecurityStamp != in.SecurityStamp ||
		!out.Persistent || out.Lifetime != in.Lifetime || out.CreatedAt != in.CreatedAt {
		t.Fatalf("round trip mismatch: %+v", out)
	}
}

func TestDecodeRejectsUnknownVersion(t *testing.T) {
	if _, err := Decode([]byte{99}); err == nil {
		t.Fatal("expected error for unknown version")
	}
	if _, err := Decode(nil); err == nil {
		t.Fatal("expected error for empty input")
	}
}

func TestStoreSaveGetSlides(t *testing.T) {
	store, mr := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.Save(ctx, testSession("sid-1")); err != nil {
		t.Fatalf("save: %v", err)
	}

	mr.FastForward(20 * time.Minute)
	sess, err := store.Get(ctx, "sid-1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if sess.SessionID != "sid-1" || sess.UserID != "u-1" {
		t.Fatalf("unexpected session %+v", sess)
	}

	// the read pushed expiry out to a fresh 30 minutes
	mr.FastForward(20 * time.Minute)
	if _, err := store.Get(ctx, "sid-1"); err != nil {
		t.Fatalf("expected sliding expiry to keep the session, got %v", err)
	}

	mr.FastForward(31 * time.Minute)
	if _, err := store.Get(ctx, "sid-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound after idle timeout, got %v", err)
	}
}

func TestStoreDeleteIsIdempotent(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	ctx := context.Background()

	if err := store.Save(ctx, testSession("sid-1")); err != nil {
		t.Fatalf("save: %v", err)
	}
	for i := 0; i < 2; i++ {
		if err := store.Delete(ctx, "sid-1"); err != nil {
			t.Fatalf("delete %d: %v", i, err)
		}
	}
	if _, err := store.Get(ctx, "sid-1"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
	ids, err := store.ActiveSessionIDs(ctx, "u-1")
	if err != nil {
		t.Fatalf("ids: %v", err)
	}
	if len(ids) != 0 {
		t.Fatalf("expected empty index, got %v", ids)
	}
}

func TestStoreDeleteAllForUser(t *testing.T) {
	store, _ := newSessionStoreTest(t)
	ctx := context.Background()

	for _, id := range []string{"a", "b", "c"} {
		if err := store.Save(ctx, testSession(id)); err != nil {
			t.Fatalf("save %s: %v", id, err)
		}
	}
	if err := store.DeleteAllForUser(ctx, "u-1"); err != nil {
		t.Fatalf("delete all: %v", err)
	}
	for _, id := range []string{"a", "b", "c"} {
		if _, err := store.Get(ctx, id); !errors.Is(err, ErrNotFound) {
			t.Fatalf("session %s survived: %v", id, err)
		}
	}
}

func TestStoreReportsRedisDown(t *testing.T) {
	store, mr := newSessionStoreTest(t)
	mr.Close()

	if err := store.Save(context.Background(), testSession("x")); !errors.Is(err, ErrRedisUnavailable) {
		t.Fatalf("expected ErrRedisUnavailable, got %v", err)
	}
}
