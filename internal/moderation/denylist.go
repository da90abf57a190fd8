package moderation

import "strings"

// CompiledDenylist is a deduplicated set of normalized terms. It exposes
// only a boolean verdict so callers can never learn which term fired.
type CompiledDenylist []string

// Sources are the raw term lists a denylist is built from. Allowlist
// entries suppress matching denylist entries after normalization.
type Sources struct {
	Preset    []string
	Extra     []string
	Allowlist []string
}

// CompileDenylist normalizes every term, discards empty or
// whitespace-only terms, and deduplicates.
func CompileDenylist(terms []string) CompiledDenylist {
	seen := make(map[string]struct{}, len(terms))
	out := make(CompiledDenylist, 0, len(terms))
	for _, t := range terms {
		n := NormalizeText(t)
		if n == "" {
			continue
		}
		if _, ok := seen[n]; ok {
			continue
		}
		seen[n] = struct{}{}
		out = append(out, n)
	}
	return out
}

// BuildCompiledDenylist unions preset and extra terms, compiles, then
// removes every term whose normalized form also appears in the
// normalized allowlist. The list is always rebuilt wholesale, never
// patched in place.
func BuildCompiledDenylist(src Sources) CompiledDenylist {
	allowed := make(map[string]struct{}, len(src.Allowlist))
	for _, t := range src.Allowlist {
		if n := NormalizeText(t); n != "" {
			allowed[n] = struct{}{}
		}
	}

	compiled := CompileDenylist(append(append([]string{}, src.Preset...), src.Extra...))
	out := compiled[:0]
	for _, term := range compiled {
		if _, ok := allowed[term]; ok {
			continue
		}
		out = append(out, term)
	}
	return out
}

// Violates reports whether any compiled term occurs as a substring of
// the normalized text. Substring rather than token match, to catch
// compound obfuscation.
func (d CompiledDenylist) Violates(text string) bool {
	if len(d) == 0 {
		return false
	}
	n := NormalizeText(text)
	for _, term := range d {
		if strings.Contains(n, term) {
			return true
		}
	}
	return false
}
