package store

import "context"

// Scoped returns a view of kv with every key prefixed, so rooms can share
// one backend without sharing a history log.
func Scoped(kv KV, prefix string) KV {
	if prefix == "" {
		return kv
	}
	return &scoped{kv: kv, prefix: prefix}
}

type scoped struct {
	kv     KV
	prefix string
}

func (s *scoped) Get(ctx context.Context, key string) ([]byte, error) {
	return s.kv.Get(ctx, s.prefix+":"+key)
}

func (s *scoped) Put(ctx context.Context, key string, value []byte) error {
	return s.kv.Put(ctx, s.prefix+":"+key, value)
}

// Close is a no-op; the underlying backend outlives the view.
func (s *scoped) Close() error { return nil }
