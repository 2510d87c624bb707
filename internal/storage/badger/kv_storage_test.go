package badger

import (
	"context"
	"testing"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/aestimo/internal/interfaces"
)

func TestKVStorageCaseInsensitive(t *testing.T) {
	db := openTestDB(t)
	kv := NewKVStorage(db, arbor.NewLogger())
	ctx := context.Background()

	if err := kv.Set(ctx, "FMP_API_Key", "secret", "test key"); err != nil {
		t.Fatalf("Failed to set: %v", err)
	}

	value, err := kv.Get(ctx, "fmp_api_key")
	if err != nil {
		t.Fatalf("Failed to get: %v", err)
	}
	if value != "secret" {
		t.Errorf("Expected secret, got %s", value)
	}

	if _, err := kv.Get(ctx, "unknown_key"); err != interfaces.ErrKeyNotFound {
		t.Errorf("Expected ErrKeyNotFound, got %v", err)
	}
}

func TestKVStorageUpsertDetectsNewKeys(t *testing.T) {
	db := openTestDB(t)
	kv := NewKVStorage(db, arbor.NewLogger())
	ctx := context.Background()

	isNew, err := kv.Upsert(ctx, "benchmark_etf", "SPY", "")
	if err != nil {
		t.Fatal(err)
	}
	if !isNew {
		t.Error("Expected first upsert to report a new key")
	}

	isNew, err = kv.Upsert(ctx, "benchmark_etf", "QQQ", "")
	if err != nil {
		t.Fatal(err)
	}
	if isNew {
		t.Error("Expected second upsert to report an existing key")
	}

	value, err := kv.Get(ctx, "benchmark_etf")
	if err != nil {
		t.Fatal(err)
	}
	if value != "QQQ" {
		t.Errorf("Expected QQQ, got %s", value)
	}

	all, err := kv.GetAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if all["benchmark_etf"] != "QQQ" {
		t.Errorf("GetAll mismatch: %v", all)
	}
}
