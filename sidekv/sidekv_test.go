package sidekv_test

import (
	"testing"
	"time"

	"github.com/xoltia/karaokeq/sidekv"
)

func openKV(t *testing.T) *sidekv.KV {
	t.Helper()
	kv, err := sidekv.Open(":memory:", sidekv.WithTTL(time.Minute))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { kv.Close() })
	return kv
}

func TestPutGet(t *testing.T) {
	kv := openKV(t)

	_, ok, err := kv.Get("a_party")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Fatal("expected missing key")
	}

	if err := kv.Put("a_party", []byte("opensesame")); err != nil {
		t.Fatal(err)
	}

	val, ok, err := kv.Get("a_party")
	if err != nil {
		t.Fatal(err)
	}
	if !ok {
		t.Fatal("expected key")
	}
	if string(val) != "opensesame" {
		t.Errorf("expected opensesame, got %s", val)
	}
}

func TestDeleteInvalidates(t *testing.T) {
	kv := openKV(t)

	if err := kv.Put("a_party", []byte("tok")); err != nil {
		t.Fatal(err)
	}
	// Warm the cache.
	if _, _, err := kv.Get("a_party"); err != nil {
		t.Fatal(err)
	}

	if err := kv.Delete("a_party"); err != nil {
		t.Fatal(err)
	}

	_, ok, err := kv.Get("a_party")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("delete did not invalidate cached value")
	}
}

func TestGetFreshSeesLatestWrite(t *testing.T) {
	kv := openKV(t)

	if err := kv.Put("c_party", []byte("v1")); err != nil {
		t.Fatal(err)
	}
	if err := kv.Put("c_party", []byte("v2")); err != nil {
		t.Fatal(err)
	}

	val, ok, err := kv.GetFresh("c_party")
	if err != nil {
		t.Fatal(err)
	}
	if !ok || string(val) != "v2" {
		t.Errorf("expected v2, got %q (ok=%v)", val, ok)
	}
}
