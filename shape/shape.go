// Package shape renders query results as assistant-ready text. All
// functions are pure: they format what they are given and touch no
// store or network state.
package shape

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/khjohns/paragraf/store"
)

// License footer carried on every section body, per the Lovdata
// public-data terms.
const licenseFooter = "Lisens: Norsk lisens for offentlige data (NLOD 2.0)"

// baseURL for source links on section responses.
const baseURL = "https://lovdata.no"

// Rendering caps for overviews.
const (
	maxSectionsPerNode = 8
	maxFlatRows        = 100
)

// truncationMarker is appended when a body is cut to a token budget.
const truncationMarker = "… [avkortet]"

// FormatError renders a user-facing error with a next-step hint.
func FormatError(msg, hint string) string {
	out := "**Feil:** " + msg
	if hint != "" {
		out += "\n\n" + hint
	}
	return out
}

// Banner returns the supersession warning for documents that are no
// longer in force, or "" for current ones.
func Banner(doc *store.Document) string {
	if doc.IsCurrent {
		return ""
	}
	return "⚠️ Denne teksten er ikke lenger i kraft. Den er erstattet eller opphevet i nyere kunngjøringer.\n\n"
}

// Truncate cuts text to a token budget (maxTokens · 3.5 characters),
// appending a marker. maxTokens <= 0 means no budget.
func Truncate(text string, maxTokens int) string {
	if maxTokens <= 0 {
		return text
	}
	budget := int(float64(maxTokens) * store.CharsPerToken)
	runes := []rune(text)
	if len(runes) <= budget {
		return text
	}
	cut := string(runes[:budget])
	if i := strings.LastIndex(cut, " "); i > 0 {
		cut = cut[:i]
	}
	return cut + "\n" + truncationMarker
}

// SectionOptions controls FormatSection.
type SectionOptions struct {
	MaxTokens    int
	FallbackNote string
}

// FormatSection renders one section with its source link and license
// footer.
func FormatSection(doc *store.Document, sec *store.Section, opts SectionOptions) string {
	var b strings.Builder
	b.WriteString(Banner(doc))

	name := doc.ShortTitle
	if name == "" {
		name = doc.Title
	}
	b.WriteString("# " + name + " § " + sec.SectionID)
	if sec.Title != "" {
		b.WriteString(". " + sec.Title)
	}
	b.WriteString("\n\n")
	b.WriteString(Truncate(sec.Content, opts.MaxTokens))
	b.WriteString("\n")

	if opts.FallbackNote != "" {
		b.WriteString("\n" + opts.FallbackNote + "\n")
	}
	if doc.BasedOn != "" {
		b.WriteString("\nHjemmel: " + FormatBasedOn(doc.BasedOn) + "\n")
	}
	b.WriteString("\nKilde: " + SectionURL(doc.DokID, sec.SectionID) + "\n")
	b.WriteString(licenseFooter + "\n")
	return b.String()
}

// SectionURL builds the Lovdata source link for a section.
func SectionURL(dokID, sectionID string) string {
	return baseURL + "/" + dokID + "/§" + sectionID
}

// FormatBatch renders a batch lookup: each found section in full,
// followed by a reconciliation line for requested ids that were
// missing.
func FormatBatch(doc *store.Document, requested []string, found []store.Section, maxTokens int) string {
	var b strings.Builder
	b.WriteString(Banner(doc))

	name := doc.ShortTitle
	if name == "" {
		name = doc.Title
	}
	b.WriteString("# " + name + " — " + fmt.Sprintf("%d av %d paragrafer", len(found), len(requested)) + "\n\n")

	perSection := 0
	if maxTokens > 0 && len(found) > 0 {
		perSection = maxTokens / len(found)
	}
	have := make(map[string]bool, len(found))
	for i := range found {
		sec := &found[i]
		have[sec.SectionID] = true
		b.WriteString("## § " + sec.SectionID)
		if sec.Title != "" {
			b.WriteString(". " + sec.Title)
		}
		b.WriteString("\n\n")
		b.WriteString(Truncate(sec.Content, perSection))
		b.WriteString("\n\n")
	}

	var missing []string
	for _, id := range requested {
		if !have[store.NormalizeSectionID(id)] {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		b.WriteString("Ikke funnet: § " + strings.Join(missing, ", § ") + "\n\n")
	}

	b.WriteString("Kilde: " + baseURL + "/" + doc.DokID + "\n")
	b.WriteString(licenseFooter + "\n")
	return b.String()
}

// structureIndent maps structure types to heading indentation levels.
func structureIndent(structureType string) int {
	switch structureType {
	case "del":
		return 0
	case "kapittel":
		return 1
	default:
		return 2
	}
}

// FormatOverview renders a table of contents. With structures it is
// hierarchical; without, a flat section table capped at maxFlatRows.
func FormatOverview(doc *store.Document, structures []store.StructureNode, sections []store.SectionSummary) string {
	var b strings.Builder
	b.WriteString(Banner(doc))

	name := doc.ShortTitle
	if name == "" {
		name = doc.Title
	}
	b.WriteString("# " + name + " (" + doc.DokID + ")\n")
	if doc.ShortTitle != "" && doc.Title != doc.ShortTitle {
		b.WriteString(doc.Title + "\n")
	}
	if doc.Ministry != "" {
		b.WriteString("Departement: " + doc.Ministry + "\n")
	}
	if doc.DateInForce != "" {
		b.WriteString("I kraft fra: " + doc.DateInForce + "\n")
	}
	if doc.BasedOn != "" {
		b.WriteString("Hjemmel: " + FormatBasedOn(doc.BasedOn) + "\n")
	}
	b.WriteString("\n")

	if len(structures) == 0 {
		writeFlatToC(&b, sections)
	} else {
		writeStructuredToC(&b, structures, sections)
	}

	b.WriteString("\nTotalt " + fmt.Sprintf("%d paragrafer, ≈%d tokens", len(sections), totalTokens(sections)) + "\n")
	return b.String()
}

func totalTokens(sections []store.SectionSummary) int {
	sum := 0
	for _, s := range sections {
		sum += s.EstimatedTokens
	}
	return sum
}

func writeFlatToC(b *strings.Builder, sections []store.SectionSummary) {
	for i, s := range sections {
		if i == maxFlatRows {
			b.WriteString(fmt.Sprintf("… og %d til\n", len(sections)-maxFlatRows))
			break
		}
		writeSectionRow(b, s, 0)
	}
}

func writeSectionRow(b *strings.Builder, s store.SectionSummary, indent int) {
	b.WriteString(strings.Repeat("  ", indent))
	b.WriteString("§ " + s.SectionID)
	if s.Title != "" {
		b.WriteString(" " + s.Title)
	}
	b.WriteString(fmt.Sprintf(" (≈%d tokens)\n", s.EstimatedTokens))
}

// writeStructuredToC groups sections under the deepest structure node
// whose address prefixes theirs; orphans render under "Øvrige".
func writeStructuredToC(b *strings.Builder, structures []store.StructureNode, sections []store.SectionSummary) {
	owners := make([][]store.SectionSummary, len(structures))
	var orphans []store.SectionSummary

	for _, s := range sections {
		if best := store.DeepestOwner(structures, s.Address); best == -1 {
			orphans = append(orphans, s)
		} else {
			owners[best] = append(owners[best], s)
		}
	}

	for j, n := range structures {
		indent := structureIndent(n.Type)
		b.WriteString(strings.Repeat("  ", indent) + "## ")
		if n.Title != "" {
			b.WriteString(n.Title)
		} else {
			b.WriteString(n.Type + " " + n.StructureID)
		}
		b.WriteString("\n")
		writeNodeSections(b, owners[j], indent+1)
	}

	if len(orphans) > 0 {
		b.WriteString("## Øvrige\n")
		writeNodeSections(b, orphans, 1)
	}
}

func writeNodeSections(b *strings.Builder, sections []store.SectionSummary, indent int) {
	for i, s := range sections {
		if i == maxSectionsPerNode {
			rest := sections[maxSectionsPerNode:]
			tokens := 0
			for _, r := range rest {
				tokens += r.EstimatedTokens
			}
			b.WriteString(strings.Repeat("  ", indent))
			b.WriteString(fmt.Sprintf("… og %d til (≈%d tokens)\n", len(rest), tokens))
			break
		}
		writeSectionRow(b, s, indent)
	}
}

// FormatHits renders a ranked search hit list. When results came from
// the OR fallback a notice explains the looser match.
func FormatHits(query string, results []store.SearchResult) string {
	if len(results) == 0 {
		return "Ingen treff for «" + query + "». Prøv andre søkeord, eller bruk oversikt over en bestemt lov."
	}

	var b strings.Builder
	if results[0].SearchMode == "or_fallback" {
		b.WriteString("Merk: ingen paragrafer matchet alle søkeordene; viser treff på minst ett ord.\n\n")
	}

	for i, r := range results {
		b.WriteString(fmt.Sprintf("%d. **%s § %s**", i+1, r.ShortTitle, r.SectionID))
		if r.Title != "" {
			b.WriteString(" — " + r.Title)
		}
		b.WriteString("\n   " + r.DokID + "/§" + r.SectionID)
		if r.LegalArea != "" {
			b.WriteString(" · " + r.LegalArea)
		}
		b.WriteString("\n")
		if r.Snippet != "" {
			b.WriteString("   " + strings.ReplaceAll(r.Snippet, "\n", " ") + "\n")
		}
		b.WriteString("\n")
	}
	b.WriteString(licenseFooter + "\n")
	return b.String()
}

// FormatRelated renders the regulations implementing a law.
func FormatRelated(lovID string, docs []store.Document) string {
	if len(docs) == 0 {
		return "Ingen forskrifter med hjemmel i " + lovID + "."
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("Forskrifter med hjemmel i %s (%d):\n\n", lovID, len(docs)))
	for _, d := range docs {
		name := d.ShortTitle
		if name == "" {
			name = d.Title
		}
		b.WriteString("- " + name + " (" + d.DokID + ")")
		if !d.IsCurrent {
			b.WriteString(" [opphevet]")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// Highlight wraps occurrences of the query tokens in emphasis markers.
// Used for fallback results that did not pass through the FTS
// snippet/headline functions.
func Highlight(text string, tokens []string) string {
	for _, t := range tokens {
		if len(t) < 2 {
			continue
		}
		re, err := regexp.Compile(`(?i)\b(` + regexp.QuoteMeta(t) + `)`)
		if err != nil {
			continue
		}
		text = re.ReplaceAllString(text, "**$1**")
	}
	return text
}

// docRef is one based_on reference: a document id plus the sections it
// cites.
type docRef struct {
	dokID    string
	sections []string
}

var basedOnDocID = regexp.MustCompile(`(?:lov|forskrift)/\d{4}-\d{2}-\d{2}(?:-\d+)?`)

var basedOnSections = regexp.MustCompile(`§§?\s*/?\s*([0-9A-Za-z][0-9A-Za-z.\-]*(?:\s*,\s*§?\s*[0-9A-Za-z][0-9A-Za-z.\-]*)*)`)

// FormatBasedOn renders a raw based_on value as grouped references:
// "lov/1992-07-03-93 § 3-9", "lov/… §§ 1-2, 1-3", bare ids for
// documents cited without sections, groups joined with "; ". The
// function is idempotent — formatting already-formatted output yields
// the same string.
func FormatBasedOn(raw string) string {
	matches := basedOnDocID.FindAllStringIndex(raw, -1)
	if len(matches) == 0 {
		return raw
	}

	var order []string
	grouped := map[string]*docRef{}

	for i, m := range matches {
		dokID := strings.ToLower(raw[m[0]:m[1]])
		end := len(raw)
		if i+1 < len(matches) {
			end = matches[i+1][0]
		}
		chunk := raw[m[1]:end]

		ref, ok := grouped[dokID]
		if !ok {
			ref = &docRef{dokID: dokID}
			grouped[dokID] = ref
			order = append(order, dokID)
		}
		for _, sm := range basedOnSections.FindAllStringSubmatch(chunk, -1) {
			for _, tok := range strings.Split(sm[1], ",") {
				id := store.NormalizeSectionID(tok)
				if id == "" {
					continue
				}
				if !containsString(ref.sections, id) {
					ref.sections = append(ref.sections, id)
				}
			}
		}
	}

	parts := make([]string, 0, len(order))
	for _, dokID := range order {
		ref := grouped[dokID]
		switch len(ref.sections) {
		case 0:
			parts = append(parts, ref.dokID)
		case 1:
			parts = append(parts, ref.dokID+" § "+ref.sections[0])
		default:
			parts = append(parts, ref.dokID+" §§ "+strings.Join(ref.sections, ", "))
		}
	}
	return strings.Join(parts, "; ")
}

func containsString(s []string, v string) bool {
	for _, x := range s {
		if x == v {
			return true
		}
	}
	return false
}
