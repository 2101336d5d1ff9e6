// Package resolver maps user-supplied identifiers — aliases, short
// titles, canonical ids, misspellings — to canonical document ids.
package resolver

import (
	"context"
	"log/slog"
	"strings"

	"github.com/khjohns/paragraf/store"
)

// fuzzyMinLen gates the trigram tier: the index over-matches short
// generic tokens, so fuzzy lookup only runs for inputs of at least
// this length.
const fuzzyMinLen = 8

// fuzzyThreshold tolerates common misspellings without matching on
// shared suffixes like "-loven" alone.
const fuzzyThreshold = 0.4

// Resolver resolves identifiers against the seed alias table and the
// store's document indexes.
type Resolver struct {
	store store.Store
}

// New creates a resolver backed by the given store.
func New(s store.Store) *Resolver {
	return &Resolver{store: s}
}

// Normalize canonicalizes alias keys: lowercase, spaces and
// underscores become hyphens.
func Normalize(input string) string {
	s := strings.ToLower(strings.TrimSpace(input))
	s = strings.ReplaceAll(s, " ", "-")
	return strings.ReplaceAll(s, "_", "-")
}

// Resolve maps input to a canonical dok_id, trying in order: the seed
// alias table, the store's document lookup, trigram similarity (for
// inputs long enough to be distinctive), and finally the input itself.
func (r *Resolver) Resolve(ctx context.Context, input string) string {
	// Accept the "NL/lov/…" identifier variant.
	if len(input) > 3 && strings.EqualFold(input[:3], "nl/") {
		input = input[3:]
	}

	if id, ok := aliases[Normalize(input)]; ok {
		return id
	}

	if doc, err := r.store.FindDocument(ctx, input); err == nil {
		return doc.DokID
	}

	if len(input) >= fuzzyMinLen {
		doc, sim, err := r.store.FindSimilar(ctx, input, fuzzyThreshold)
		switch {
		case err == nil:
			slog.Debug("resolver: fuzzy match", "input", input, "dok_id", doc.DokID, "similarity", sim)
			return doc.DokID
		case err != store.ErrNotFound && err != store.ErrUnsupported:
			slog.Warn("resolver: fuzzy lookup failed", "input", input, "error", err)
		}
	}

	lower := strings.ToLower(input)
	if strings.HasPrefix(lower, "lov") || strings.HasPrefix(lower, "for") {
		return strings.ToUpper(input)
	}
	return input
}
