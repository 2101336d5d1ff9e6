// Package query implements the public lookup and search operations.
// Every operation returns preformatted text: not-found conditions,
// invalid input and missing backend capabilities all fold into
// user-facing messages, so the engine never surfaces an error to the
// transport layer.
package query

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"sort"
	"strings"

	"github.com/khjohns/paragraf/embedder"
	"github.com/khjohns/paragraf/resolver"
	"github.com/khjohns/paragraf/shape"
	"github.com/khjohns/paragraf/store"
)

// maxBatchSections bounds one lookup_batch request.
const maxBatchSections = 50

// DefaultFTSWeight balances lexical rank and cosine similarity in
// hybrid search.
const DefaultFTSWeight = 0.5

// defaultProbes is the ivfflat recall knob passed to the store.
const defaultProbes = 10

// nrClause matches section inputs like "4 nr 2" or "12 nr. 1"; when
// such an id misses we retry with just the leading part.
var nrClause = regexp.MustCompile(`^(\S+)\s+nr\.?\s+\S+`)

// Engine answers lookup and search requests over the store, the
// resolver and (optionally) the embedder.
type Engine struct {
	store     store.Store
	resolver  *resolver.Resolver
	embedder  *embedder.Client // nil disables hybrid search
	ftsWeight float64
}

// Options configures an Engine.
type Options struct {
	Embedder  *embedder.Client
	FTSWeight float64
}

// New creates an engine.
func New(s store.Store, r *resolver.Resolver, opts Options) *Engine {
	w := opts.FTSWeight
	if w <= 0 || w > 1 {
		w = DefaultFTSWeight
	}
	return &Engine{store: s, resolver: r, embedder: opts.Embedder, ftsWeight: w}
}

// Lookup resolves id and returns either a single section or, without
// a section argument, the document overview.
func (e *Engine) Lookup(ctx context.Context, id, section string, maxTokens int) string {
	if strings.TrimSpace(id) == "" {
		return shape.FormatError("tomt dokument-id.", "Oppgi en lov eller forskrift, f.eks. «avhendingslova».")
	}

	dokID := e.resolver.Resolve(ctx, id)
	doc, err := e.store.GetDocument(ctx, dokID)
	if err == store.ErrNotFound {
		return e.documentNotFound(id)
	}
	if err != nil {
		return e.internalError("lookup", err)
	}

	if strings.TrimSpace(section) == "" {
		return e.overviewFor(ctx, doc)
	}

	fallbackNote := ""
	sec, err := e.store.GetSection(ctx, doc.DokID, section)
	if err == store.ErrNotFound {
		if m := nrClause.FindStringSubmatch(strings.TrimSpace(section)); m != nil {
			sec, err = e.store.GetSection(ctx, doc.DokID, m[1])
			if err == nil {
				fallbackNote = fmt.Sprintf("Merk: fant ikke «%s»; viser hele § %s.", section, sec.SectionID)
			}
		}
	}
	if err == store.ErrNotFound {
		name := doc.ShortTitle
		if name == "" {
			name = doc.Title
		}
		return shape.FormatError(
			fmt.Sprintf("§ %s finnes ikke i %s.", store.NormalizeSectionID(section), name),
			fmt.Sprintf("Bruk oversikt over %s for å se hvilke paragrafer som finnes.", doc.DokID))
	}
	if err != nil {
		return e.internalError("lookup", err)
	}

	return shape.FormatSection(doc, sec, shape.SectionOptions{
		MaxTokens:    maxTokens,
		FallbackNote: fallbackNote,
	})
}

// LookupBatch fetches several sections of one document.
func (e *Engine) LookupBatch(ctx context.Context, id string, sections []string, maxTokens int) string {
	if len(sections) == 0 {
		return shape.FormatError("ingen paragrafer oppgitt.", "Oppgi minst én paragraf, f.eks. [\"3-1\", \"3-2\"].")
	}
	if len(sections) > maxBatchSections {
		return shape.FormatError(
			fmt.Sprintf("for mange paragrafer (%d); maks %d per oppslag.", len(sections), maxBatchSections),
			"Del forespørselen i mindre grupper.")
	}

	dokID := e.resolver.Resolve(ctx, id)
	doc, err := e.store.GetDocument(ctx, dokID)
	if err == store.ErrNotFound {
		return e.documentNotFound(id)
	}
	if err != nil {
		return e.internalError("lookup_batch", err)
	}

	found, err := e.store.GetSectionsBatch(ctx, doc.DokID, sections)
	if err != nil {
		return e.internalError("lookup_batch", err)
	}
	return shape.FormatBatch(doc, sections, found, maxTokens)
}

// Overview renders a document's table of contents.
func (e *Engine) Overview(ctx context.Context, id string) string {
	dokID := e.resolver.Resolve(ctx, id)
	doc, err := e.store.GetDocument(ctx, dokID)
	if err == store.ErrNotFound {
		return e.documentNotFound(id)
	}
	if err != nil {
		return e.internalError("overview", err)
	}
	return e.overviewFor(ctx, doc)
}

func (e *Engine) overviewFor(ctx context.Context, doc *store.Document) string {
	sections, err := e.store.ListSections(ctx, doc.DokID)
	if err != nil {
		return e.internalError("overview", err)
	}
	structures, err := e.store.ListStructures(ctx, doc.DokID)
	if err != nil {
		slog.Warn("overview: structures unavailable", "dok_id", doc.DokID, "error", err)
		structures = nil
	}
	return shape.FormatOverview(doc, structures, sections)
}

// SearchParams narrows a search request.
type SearchParams struct {
	Limit             int
	DocType           string
	Ministry          string
	LegalArea         string
	IncludeAmendments bool
	FTSWeight         float64 // 0 means the engine default
	Probes            int     // 0 means the store default
}

// Search runs a ranked search. On a synced FTS-capable store the query
// goes through hybrid search when an embedding can be obtained, then
// lexical search; otherwise the static alias table serves as a
// best-effort fallback.
func (e *Engine) Search(ctx context.Context, query string, params SearchParams) string {
	if strings.TrimSpace(query) == "" {
		return shape.FormatError("tomt søk.", "Oppgi søkeord, f.eks. «oppsigelse arbeidsavtale».")
	}
	limit := params.Limit
	if limit <= 0 {
		limit = 10
	}
	filters := store.SearchFilters{
		ExcludeAmendments: !params.IncludeAmendments,
		Ministry:          params.Ministry,
		DocType:           params.DocType,
		LegalArea:         params.LegalArea,
	}

	synced, err := e.store.IsSynced(ctx)
	if err != nil {
		slog.Warn("search: sync status unavailable", "error", err)
	}
	if !synced {
		return e.aliasSearch(query)
	}

	if e.embedder != nil {
		if results, ok := e.hybridSearch(ctx, query, limit, params, filters); ok {
			return shape.FormatHits(query, results)
		}
	}

	results, err := e.store.SearchFTS(ctx, query, limit, filters)
	if err == store.ErrUnsupported {
		return e.aliasSearch(query)
	}
	if err != nil {
		return e.internalError("search", err)
	}
	return shape.FormatHits(query, results)
}

// hybridSearch tries embedding + hybrid; any failure reports false so
// the caller degrades to lexical search.
func (e *Engine) hybridSearch(ctx context.Context, query string, limit int, params SearchParams, filters store.SearchFilters) ([]store.SearchResult, bool) {
	emb, err := e.embedder.EmbedQuery(ctx, query)
	if err != nil {
		slog.Warn("search: embedding failed, falling back to fts", "error", err)
		return nil, false
	}
	w := params.FTSWeight
	if w <= 0 || w > 1 {
		w = e.ftsWeight
	}
	probes := params.Probes
	if probes <= 0 {
		probes = defaultProbes
	}
	results, err := e.store.SearchHybrid(ctx, query, emb, limit, w, probes, filters)
	if err == store.ErrUnsupported {
		return nil, false
	}
	if err != nil {
		slog.Warn("search: hybrid failed, falling back to fts", "error", err)
		return nil, false
	}
	return results, true
}

// aliasSearch matches the query against the seed alias table when no
// synced index is available.
func (e *Engine) aliasSearch(query string) string {
	needle := resolver.Normalize(query)
	tokens := strings.Split(needle, "-")

	seen := map[string]bool{}
	var hits []store.SearchResult
	for alias, dokID := range resolver.Aliases() {
		if seen[dokID] || !strings.Contains(alias, needle) && !containsAny(alias, tokens) {
			continue
		}
		seen[dokID] = true
		name, _ := resolver.DisplayName(dokID)
		hits = append(hits, store.SearchResult{
			DokID:      dokID,
			ShortTitle: name,
			Snippet:    shape.Highlight(name, tokens),
			SearchMode: "alias",
		})
	}
	sort.Slice(hits, func(i, j int) bool { return hits[i].DokID < hits[j].DokID })

	if len(hits) == 0 {
		return shape.FormatError("ingen data er synkronisert ennå, og søket traff ingen kjente lover.",
			"Kjør synkronisering først, eller slå opp en lov med kallenavn, f.eks. «avhendingslova».")
	}
	var b strings.Builder
	b.WriteString("Merk: databasen er ikke synkronisert; viser treff fra den innebygde alias-listen.\n\n")
	b.WriteString(shape.FormatHits(query, hits))
	return b.String()
}

func containsAny(s string, tokens []string) bool {
	for _, t := range tokens {
		if len(t) >= 3 && strings.Contains(s, t) {
			return true
		}
	}
	return false
}

// Related lists regulations grounded in the given law.
func (e *Engine) Related(ctx context.Context, lovID string) string {
	dokID := e.resolver.Resolve(ctx, lovID)
	docs, err := e.store.FindRelated(ctx, dokID)
	if err != nil {
		return e.internalError("related", err)
	}
	return shape.FormatRelated(dokID, docs)
}

// ListMinistries enumerates distinct ministries.
func (e *Engine) ListMinistries(ctx context.Context) string {
	vals, err := e.store.ListMinistries(ctx)
	if err != nil {
		return e.internalError("list_ministries", err)
	}
	return formatList("Departementer", vals)
}

// ListLegalAreas enumerates distinct legal areas.
func (e *Engine) ListLegalAreas(ctx context.Context) string {
	vals, err := e.store.ListLegalAreas(ctx)
	if err != nil {
		return e.internalError("list_legal_areas", err)
	}
	return formatList("Rettsområder", vals)
}

// ListAliases renders the seed alias table.
func (e *Engine) ListAliases() string {
	aliases := resolver.Aliases()
	keys := make([]string, 0, len(aliases))
	for k := range aliases {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(fmt.Sprintf("Innebygde kallenavn (%d):\n\n", len(keys)))
	for _, k := range keys {
		b.WriteString("- " + k + " → " + aliases[k] + "\n")
	}
	return b.String()
}

// GetSectionSize reports a section's size without fetching the body
// into the response.
func (e *Engine) GetSectionSize(ctx context.Context, id, section string) string {
	dokID := e.resolver.Resolve(ctx, id)
	doc, err := e.store.GetDocument(ctx, dokID)
	if err == store.ErrNotFound {
		return e.documentNotFound(id)
	}
	if err != nil {
		return e.internalError("get_section_size", err)
	}
	sec, err := e.store.GetSection(ctx, doc.DokID, section)
	if err == store.ErrNotFound {
		return shape.FormatError(
			fmt.Sprintf("§ %s finnes ikke i %s.", store.NormalizeSectionID(section), doc.DokID),
			"Bruk oversikt for å se tilgjengelige paragrafer.")
	}
	if err != nil {
		return e.internalError("get_section_size", err)
	}
	return fmt.Sprintf("%s § %s: %d tegn, ≈%d tokens",
		doc.DokID, sec.SectionID, sec.CharCount, store.EstimateTokens(sec.CharCount))
}

func (e *Engine) documentNotFound(id string) string {
	return shape.FormatError(
		fmt.Sprintf("fant ikke dokumentet «%s».", id),
		"Prøv søk for å finne riktig lov, eller bruk et kanonisk id som lov/1992-07-03-93.")
}

func (e *Engine) internalError(op string, err error) string {
	slog.Error("query failed", "op", op, "error", err)
	return shape.FormatError("et internt oppslag feilet.", "Prøv igjen; meld fra hvis feilen vedvarer.")
}

func formatList(heading string, vals []string) string {
	if len(vals) == 0 {
		return heading + ": ingen registrert ennå. Kjør synkronisering først."
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s (%d):\n\n", heading, len(vals)))
	for _, v := range vals {
		b.WriteString("- " + v + "\n")
	}
	return b.String()
}
