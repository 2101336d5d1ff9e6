// Package parser converts one Lovdata archive entry into a document
// record, its ordered structure nodes and its ordered leaf sections.
// The entries are XML-ish markup; golang.org/x/net/html tokenizes them
// tolerantly, which matters because the corpus spans documents from
// 1814 onwards with uneven markup quality.
package parser

import (
	"errors"
	"fmt"
	"io"
	"path"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/net/html"

	"github.com/khjohns/paragraf/store"
)

// Result is the output of parsing one archive entry.
type Result struct {
	Document   store.Document
	Structures []store.StructureNode
	Sections   []store.Section
}

// ErrMalformed is returned for entries that cannot yield a document.
var ErrMalformed = errors.New("parser: malformed entry")

// Header metadata elements. Lovdata labels each field with its own
// element inside the document header.
var headerFields = map[string]bool{
	"dokid":          true,
	"refid":          true,
	"tittel":         true,
	"korttittel":     true,
	"ikrafttredelse": true,
	"departement":    true,
	"rettsomraade":   true,
	"hjemmel":        true,
}

// Structural container elements, by Lovdata element name.
var structureTypes = map[string]string{
	"del":            "del",
	"kapittel":       "kapittel",
	"paragrafgruppe": "paragrafgruppe",
	"vedlegg":        "vedlegg",
}

// amendmentMarkers flag amendment laws from their titles.
var amendmentMarkers = []string{"endring i ", "endringer i ", "endringslov", "endr. i "}

// ministryBoundary matches the seam between two concatenated ministry
// names: "…departementet" immediately followed by an uppercase letter.
var ministryBoundary = regexp.MustCompile(`(departementet)(\p{Lu})`)

// ParseEntry parses one archive entry. name is the entry path inside
// the archive; its stem is the dok_id fallback when the header lacks
// one.
func ParseEntry(name string, r io.Reader) (*Result, error) {
	z := html.NewTokenizer(r)

	res := &Result{}
	header := map[string][]string{}

	var (
		field         string   // header field currently open
		fieldParts    []string // link texts collected inside the field
		fieldText     strings.Builder
		fieldInLink   bool
		linkText      strings.Builder
		curSection    *store.Section
		sectionLedd   []string
		leddText      strings.Builder
		inLedd        bool
		inParnr       bool
		inPartittel   bool
		parnr         strings.Builder
		partittel     strings.Builder
		sectionText   strings.Builder
		curStructure  *store.StructureNode
		inStructTitle bool
		structTitle   strings.Builder
	)

	flushSection := func() {
		if curSection == nil {
			return
		}
		content := strings.TrimSpace(sectionText.String())
		if len(sectionLedd) > 0 {
			content = strings.Join(sectionLedd, "\n\n")
		}
		curSection.SectionID = store.NormalizeSectionID(parnr.String())
		curSection.Title = strings.TrimSpace(partittel.String())
		curSection.Content = content
		curSection.CharCount = utf8.RuneCountInString(content)
		if curSection.SectionID != "" && content != "" {
			curSection.Position = len(res.Sections)
			res.Sections = append(res.Sections, *curSection)
		}
		curSection = nil
		sectionLedd = nil
		parnr.Reset()
		partittel.Reset()
		sectionText.Reset()
	}

	closeField := func() {
		value := strings.TrimSpace(fieldText.String())
		if len(fieldParts) > 0 {
			value = strings.Join(fieldParts, "; ")
		}
		if value != "" {
			header[field] = append(header[field], value)
		}
		field = ""
	}

	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			if z.Err() == io.EOF {
				break
			}
			return nil, fmt.Errorf("%w: %v", ErrMalformed, z.Err())
		}

		switch tt {
		case html.StartTagToken, html.SelfClosingTagToken:
			tok := z.Token()
			name := tok.Data

			switch {
			case headerFields[name] && curSection == nil && curStructure == nil:
				field = name
				fieldParts = nil
				fieldText.Reset()
				fieldInLink = false

			case name == "a" && field != "":
				fieldInLink = true
				linkText.Reset()

			case structureTypes[name] != "" && tt == html.StartTagToken:
				flushSection()
				node := store.StructureNode{
					Type:        structureTypes[name],
					StructureID: attr(tok, "id"),
					Address:     attr(tok, "adr"),
					Position:    len(res.Structures),
				}
				res.Structures = append(res.Structures, node)
				curStructure = &res.Structures[len(res.Structures)-1]

			case name == "tittel" && curStructure != nil && curStructure.Title == "":
				inStructTitle = true
				structTitle.Reset()

			case name == "paragraf":
				flushSection()
				curSection = &store.Section{Address: attr(tok, "adr")}

			case name == "parnr" && curSection != nil:
				inParnr = true

			case name == "partittel" && curSection != nil:
				inPartittel = true

			case name == "ledd" && curSection != nil:
				inLedd = true
				leddText.Reset()
			}

		case html.EndTagToken:
			tok := z.Token()
			switch tok.Data {
			case "a":
				if fieldInLink && field != "" {
					if t := strings.TrimSpace(linkText.String()); t != "" {
						fieldParts = append(fieldParts, t)
					}
					fieldInLink = false
				}
			case "parnr":
				inParnr = false
			case "partittel":
				inPartittel = false
			case "ledd":
				inLedd = false
				if t := collapseSpace(leddText.String()); t != "" {
					sectionLedd = append(sectionLedd, t)
				}
			case "paragraf":
				flushSection()
			case "tittel":
				if inStructTitle && curStructure != nil {
					curStructure.Title = collapseSpace(structTitle.String())
					inStructTitle = false
				} else if field == "tittel" {
					closeField()
				}
			case "del", "kapittel", "paragrafgruppe", "vedlegg":
				flushSection()
				curStructure = nil
			default:
				if headerFields[tok.Data] && tok.Data == field {
					closeField()
				}
			}

		case html.TextToken:
			text := string(z.Text())
			switch {
			case fieldInLink:
				linkText.WriteString(text)
			case field != "":
				fieldText.WriteString(text)
			case inParnr:
				parnr.WriteString(text)
			case inPartittel:
				partittel.WriteString(text)
			case inLedd:
				leddText.WriteString(text)
			case curSection != nil:
				sectionText.WriteString(text)
			case inStructTitle:
				structTitle.WriteString(text)
			}
		}
	}
	flushSection()

	doc, err := buildDocument(name, header)
	if err != nil {
		return nil, err
	}
	res.Document = doc

	for i := range res.Structures {
		res.Structures[i].DokID = doc.DokID
	}
	for i := range res.Sections {
		res.Sections[i].DokID = doc.DokID
	}
	return res, nil
}

func buildDocument(entryName string, header map[string][]string) (store.Document, error) {
	doc := store.Document{
		DokID:       strings.ToLower(first(header["dokid"])),
		RefID:       first(header["refid"]),
		Title:       first(header["tittel"]),
		ShortTitle:  first(header["korttittel"]),
		DateInForce: first(header["ikrafttredelse"]),
		Ministry:    splitMinistries(strings.Join(header["departement"], "; ")),
		LegalArea:   first(header["rettsomraade"]),
		BasedOn:     strings.Join(header["hjemmel"], "; "),
	}

	if doc.DokID == "" {
		doc.DokID = dokIDFromStem(entryName)
	}
	if doc.DokID == "" {
		return doc, fmt.Errorf("%w: no document id", ErrMalformed)
	}
	if doc.Title == "" {
		return doc, fmt.Errorf("%w: no title", ErrMalformed)
	}

	switch {
	case strings.HasPrefix(doc.DokID, store.DocTypeLaw+"/"):
		doc.DocType = store.DocTypeLaw
	case strings.HasPrefix(doc.DokID, store.DocTypeRegulation+"/"):
		doc.DocType = store.DocTypeRegulation
	default:
		return doc, fmt.Errorf("%w: unrecognized dok_id %q", ErrMalformed, doc.DokID)
	}

	doc.IsAmendment = isAmendmentTitle(doc.Title)
	return doc, nil
}

// dokIDFromStem derives a canonical id from an archive entry name like
// "lov-1992-07-03-93.xml" → "lov/1992-07-03-93".
func dokIDFromStem(entryName string) string {
	stem := strings.ToLower(strings.TrimSuffix(path.Base(entryName), path.Ext(entryName)))
	for _, prefix := range []string{store.DocTypeLaw, store.DocTypeRegulation} {
		if strings.HasPrefix(stem, prefix+"-") {
			return prefix + "/" + strings.TrimPrefix(stem, prefix+"-")
		}
		if strings.HasPrefix(stem, prefix+"/") {
			return stem
		}
	}
	return ""
}

// isAmendmentTitle reports whether the title marks an amendment law.
func isAmendmentTitle(title string) bool {
	lower := strings.ToLower(title)
	for _, m := range amendmentMarkers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

// splitMinistries repairs a concatenated ministry blob. Headers that
// lost their delimiters run names together ("…departementetKlima- og
// …"); each "departementet"+Uppercase seam is a boundary.
func splitMinistries(raw string) string {
	if raw == "" || strings.Contains(raw, "; ") {
		return raw
	}
	return ministryBoundary.ReplaceAllString(raw, "$1; $2")
}

func first(vals []string) string {
	if len(vals) == 0 {
		return ""
	}
	return vals[0]
}

func attr(tok html.Token, name string) string {
	for _, a := range tok.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

func collapseSpace(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}
