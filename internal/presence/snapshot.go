// Package presence derives who-is-here snapshots and coalesces presence
// broadcasts into fixed windows.
package presence

import (
	"sort"

	"github.com/parleychat/parley/internal/domain"
)

// Entry is a read-only identity view, no transport fields.
type Entry struct {
	ID          domain.UserID `json:"id"`
	Login       string        `json:"login"`
	DisplayName string        `json:"displayName,omitempty"`
	AvatarURL   string        `json:"avatarUrl,omitempty"`
}

// Snapshot is the current set of identities visibly connected to a room,
// deduplicated by user id and sorted by login. Always replaced wholesale,
// never mutated in place.
type Snapshot []Entry

// Derive maps the live connection set to a Snapshot, skipping any
// connection key present in exclude. Pure: the connection set is the
// single source of truth, nothing is counted incrementally.
func Derive[K comparable](conns map[K]domain.Identity, exclude map[K]struct{}) Snapshot {
	seen := make(map[domain.UserID]struct{}, len(conns))
	out := make(Snapshot, 0, len(conns))
	for key, ident := range conns {
		if _, skip := exclude[key]; skip {
			continue
		}
		if _, dup := seen[ident.ID]; dup {
			continue
		}
		seen[ident.ID] = struct{}{}
		out = append(out, Entry{
			ID:          ident.ID,
			Login:       ident.Login,
			DisplayName: ident.DisplayName,
			AvatarURL:   ident.AvatarURL,
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Login != out[j].Login {
			return out[i].Login < out[j].Login
		}
		return out[i].ID < out[j].ID
	})
	return out
}
