package state

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func newMiniRedisStore(t *testing.T, opts ...StoreOption) (*RedisStore, *miniredis.Miniredis) {
	t.Helper()

	srv := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: srv.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	store, err := NewRedisStoreFromClient(client, opts...)
	if err != nil {
		t.Fatalf("NewRedisStoreFromClient() error = %v", err)
	}
	return store, srv
}

func TestRedisStoreContract(t *testing.T) {
	t.Parallel()

	runStoreContract(t, func(t *testing.T) Store {
		store, _ := newMiniRedisStore(t)
		return store
	})
}

func TestRedisStoreWritesPrefixedKeysWithTTL(t *testing.T) {
	t.Parallel()

	store, srv := newMiniRedisStore(t, WithKeyPrefix("test:"), WithTTL(time.Hour))
	ctx := context.Background()

	if err := store.AtomicUpdateState(ctx, "abc", StateDiscovery, Metadata{MetaGreeted: true}); err != nil {
		t.Fatalf("AtomicUpdateState() error = %v", err)
	}
	if !srv.Exists("test:abc") {
		t.Fatalf("expected key test:abc, have %v", srv.Keys())
	}
	if ttl := srv.TTL("test:abc"); ttl != time.Hour {
		t.Fatalf("ttl = %v, want 1h", ttl)
	}

	raw, _ := srv.Get("test:abc")
	if !strings.Contains(raw, `"state":"DISCOVERY"`) {
		t.Fatalf("stored payload = %s", raw)
	}
}

func TestRedisStoreCASRejectsStaleWrite(t *testing.T) {
	t.Parallel()

	store, srv := newMiniRedisStore(t)
	ctx := context.Background()

	if err := srv.Set(store.opts.keyPrefix+"abc", `{"id":"abc","state":"GREETING","version":1}`); err != nil {
		t.Fatalf("seed error = %v", err)
	}
	swapped, err := store.compareAndSwap(ctx, store.opts.keyPrefix+"abc", `{"stale":true}`, `{}`)
	if err != nil {
		t.Fatalf("compareAndSwap() error = %v", err)
	}
	if swapped {
		t.Fatalf("compareAndSwap() accepted a stale expected value")
	}

	swapped, err = store.compareAndSwap(ctx, store.opts.keyPrefix+"new", "", `{"id":"new"}`)
	if err != nil || !swapped {
		t.Fatalf("compareAndSwap() on missing key = %v, %v", swapped, err)
	}
}

func TestRedisStoreSaveOrder(t *testing.T) {
	t.Parallel()

	store, srv := newMiniRedisStore(t)
	order := Order{ID: "o-9", ConversationID: "c-1", Items: Cart{{ProductName: "Cola", Quantity: 1, UnitPrice: 2}}, Total: 2}
	if err := store.SaveOrder(context.Background(), order); err != nil {
		t.Fatalf("SaveOrder() error = %v", err)
	}
	if !srv.Exists(store.opts.orderKey("o-9")) {
		t.Fatalf("order key missing, have %v", srv.Keys())
	}
}
