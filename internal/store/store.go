// Package store is the key-value persistence collaborator. The engine
// treats it as an injected dependency and never owns the backend.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/parleychat/parley/internal/domain"
)

var ErrNotFound = errors.New("key not found")

const (
	KeyHistory       = "history"
	KeyDeniedUserIDs = "denied_github_user_ids"
)

// KV reads and writes opaque JSON blobs under fixed keys.
type KV interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Put(ctx context.Context, key string, value []byte) error
	Close() error
}

// History loads the persisted message log. A missing key is an empty log.
func History(ctx context.Context, kv KV) ([]domain.ChatMessage, error) {
	raw, err := kv.Get(ctx, KeyHistory)
	if errors.Is(err, ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	var out []domain.ChatMessage
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode history: %w", err)
	}
	return out, nil
}

// AppendHistory appends one message to the persisted log, trimming the
// oldest entries past limit.
func AppendHistory(ctx context.Context, kv KV, msg domain.ChatMessage, limit int) error {
	log, err := History(ctx, kv)
	if err != nil {
		return err
	}
	log = append(log, msg)
	if limit > 0 && len(log) > limit {
		log = log[len(log)-limit:]
	}
	raw, err := json.Marshal(log)
	if err != nil {
		return fmt.Errorf("encode history: %w", err)
	}
	if err := kv.Put(ctx, KeyHistory, raw); err != nil {
		return fmt.Errorf("store history: %w", err)
	}
	return nil
}

// DeniedUserIDs loads the banned-user id set. A missing key is an empty
// set.
func DeniedUserIDs(ctx context.Context, kv KV) (map[domain.UserID]struct{}, error) {
	raw, err := kv.Get(ctx, KeyDeniedUserIDs)
	if errors.Is(err, ErrNotFound) {
		return map[domain.UserID]struct{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load denied user ids: %w", err)
	}
	var ids []domain.UserID
	if err := json.Unmarshal(raw, &ids); err != nil {
		return nil, fmt.Errorf("decode denied user ids: %w", err)
	}
	out := make(map[domain.UserID]struct{}, len(ids))
	for _, id := range ids {
		out[id] = struct{}{}
	}
	return out, nil
}

// PutDeniedUserIDs replaces the banned-user id set wholesale.
func PutDeniedUserIDs(ctx context.Context, kv KV, ids []domain.UserID) error {
	raw, err := json.Marshal(ids)
	if err != nil {
		return fmt.Errorf("encode denied user ids: %w", err)
	}
	if err := kv.Put(ctx, KeyDeniedUserIDs, raw); err != nil {
		return fmt.Errorf("store denied user ids: %w", err)
	}
	return nil
}
