package cacheStore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// CacheStore is a write-once key/value memo shared by every component of a run.
// Implementations must be safe for concurrent use.
type CacheStore interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

type EntryKind string

const (
	EntryKind_Abi         EntryKind = "abi"
	EntryKind_Transaction EntryKind = "tx"
	EntryKind_Price       EntryKind = "price"
	EntryKind_Code        EntryKind = "code"
)

func AbiKey(address string, chainId uint64) string {
	return fmt.Sprintf("%s_%s_%d", EntryKind_Abi, strings.ToLower(address), chainId)
}

func TransactionKey(hash string, chainId uint64) string {
	return fmt.Sprintf("%s_%s_%d", EntryKind_Transaction, strings.ToLower(hash), chainId)
}

// PriceKey is keyed by day; date is formatted as yyyy-mm-dd.
func PriceKey(symbol string, chainId uint64, date string) string {
	return fmt.Sprintf("%s_%s_%d_%s", EntryKind_Price, strings.ToUpper(symbol), chainId, date)
}

func CodeKey(address string, chainId uint64) string {
	return fmt.Sprintf("%s_%s_%d", EntryKind_Code, strings.ToLower(address), chainId)
}

// KindOf returns the entry kind encoded in the key prefix.
func KindOf(key string) EntryKind {
	kind, _, _ := strings.Cut(key, "_")
	return EntryKind(kind)
}

func GetJSON[T any](ctx context.Context, store CacheStore, key string) (*T, bool, error) {
	raw, found, err := store.Get(ctx, key)
	if err != nil || !found {
		return nil, found, err
	}
	value := new(T)
	if err := json.Unmarshal(raw, value); err != nil {
		return nil, false, errors.Wrapf(err, "failed to unmarshal cache entry '%s'", key)
	}
	return value, true, nil
}

func PutJSON(ctx context.Context, store CacheStore, key string, value interface{}) ([]byte, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to marshal cache entry '%s'", key)
	}
	if err := store.Put(ctx, key, raw); err != nil {
		return nil, err
	}
	return raw, nil
}
