package resolver

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/khjohns/paragraf/store"
)

// fakeStore implements the lookup surface the resolver touches;
// everything else panics via the embedded nil interface.
type fakeStore struct {
	store.Store
	docs    map[string]*store.Document // FindDocument by input
	similar map[string]*store.Document // FindSimilar by input
}

func (f *fakeStore) FindDocument(ctx context.Context, freeText string) (*store.Document, error) {
	if d, ok := f.docs[freeText]; ok {
		return d, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) FindSimilar(ctx context.Context, freeText string, threshold float64) (*store.Document, float64, error) {
	if d, ok := f.similar[freeText]; ok {
		return d, 0.6, nil
	}
	return nil, 0, store.ErrNotFound
}

func TestResolveAliasTier(t *testing.T) {
	r := New(&fakeStore{})
	ctx := context.Background()

	assert.Equal(t, "lov/1992-07-03-93", r.Resolve(ctx, "avhendingslova"))
	// Normalization: case, spaces and underscores.
	assert.Equal(t, "lov/1992-07-03-93", r.Resolve(ctx, "Avhendingslova"))
	assert.Equal(t, "lov/2008-06-27-71", r.Resolve(ctx, "plan og bygningsloven"))
	assert.Equal(t, "lov/2008-06-27-71", r.Resolve(ctx, "plan_og_bygningsloven"))
}

func TestResolveStripsNLPrefix(t *testing.T) {
	doc := &store.Document{DokID: "lov/1992-07-03-93"}
	r := New(&fakeStore{docs: map[string]*store.Document{"lov/1992-07-03-93": doc}})

	assert.Equal(t, "lov/1992-07-03-93", r.Resolve(context.Background(), "NL/lov/1992-07-03-93"))
}

func TestResolveStoreTier(t *testing.T) {
	doc := &store.Document{DokID: "lov/2020-05-15-30"}
	r := New(&fakeStore{docs: map[string]*store.Document{"vegloven": doc}})

	assert.Equal(t, "lov/2020-05-15-30", r.Resolve(context.Background(), "vegloven"))
}

func TestResolveFuzzyTier(t *testing.T) {
	doc := &store.Document{DokID: "lov/1999-03-26-17"}
	r := New(&fakeStore{similar: map[string]*store.Document{"husleielova": doc}})

	// Misspelling of "husleieloven", length >= 8: fuzzy fires.
	assert.Equal(t, "lov/1999-03-26-17", r.Resolve(context.Background(), "husleielova"))
}

func TestResolveFuzzySkippedForShortInput(t *testing.T) {
	doc := &store.Document{DokID: "lov/1999-03-26-17"}
	r := New(&fakeStore{similar: map[string]*store.Document{"husleie": doc}})

	// Length 7 < 8: the trigram tier must not fire.
	got := r.Resolve(context.Background(), "husleie")
	assert.NotEqual(t, "lov/1999-03-26-17", got)
}

func TestResolveFuzzyUnsupportedBackend(t *testing.T) {
	r := New(&unsupportedStore{})
	// Falls through to tier 4 without erroring.
	assert.Equal(t, "ukjentgreie", r.Resolve(context.Background(), "ukjentgreie"))
}

type unsupportedStore struct {
	store.Store
}

func (u *unsupportedStore) FindDocument(ctx context.Context, freeText string) (*store.Document, error) {
	return nil, store.ErrNotFound
}

func (u *unsupportedStore) FindSimilar(ctx context.Context, freeText string, threshold float64) (*store.Document, float64, error) {
	return nil, 0, store.ErrUnsupported
}

func TestResolvePassthroughTier(t *testing.T) {
	r := New(&fakeStore{})
	ctx := context.Background()

	// lov/for prefixes uppercase; anything else passes unchanged.
	assert.Equal(t, "LOV-1814-05-17", r.Resolve(ctx, "lov-1814-05-17"))
	assert.Equal(t, "FOR-2010-01-01-5", r.Resolve(ctx, "for-2010-01-01-5"))
	assert.Equal(t, "noko anna", r.Resolve(ctx, "noko anna"))
}

func TestResolveIdempotent(t *testing.T) {
	doc := &store.Document{DokID: "lov/1999-03-26-17"}
	r := New(&fakeStore{
		docs:    map[string]*store.Document{"lov/1999-03-26-17": doc},
		similar: map[string]*store.Document{"husleielova": doc},
	})
	ctx := context.Background()

	for _, input := range []string{"husleieloven", "husleielova", "lov/1999-03-26-17"} {
		once := r.Resolve(ctx, input)
		assert.Equal(t, once, r.Resolve(ctx, once), "input %q", input)
	}
}

func TestNormalize(t *testing.T) {
	assert.Equal(t, "plan-og-bygningsloven", Normalize("Plan og bygningsloven"))
	assert.Equal(t, "a-b-c", Normalize("a_b c"))
}

func TestAliasesCopy(t *testing.T) {
	a := Aliases()
	a["tull"] = "lov/0000-00-00-0"
	_, ok := Aliases()["tull"]
	assert.False(t, ok, "Aliases must return a copy")
}

func TestDisplayName(t *testing.T) {
	name, ok := DisplayName("lov/1992-07-03-93")
	assert.True(t, ok)
	assert.Equal(t, "Avhendingslova", name)

	_, ok = DisplayName("lov/0000-00-00-0")
	assert.False(t, ok)
}
