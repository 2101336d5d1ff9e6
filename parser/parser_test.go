package parser

import (
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/khjohns/paragraf/store"
)

const sampleEntry = `<dokument>
  <dokumentinfo>
    <dokid>LOV/1992-07-03-93</dokid>
    <refid>LOV-1992-07-03-93</refid>
    <tittel>Lov om avhending av fast eigedom (avhendingslova)</tittel>
    <korttittel>Avhendingslova</korttittel>
    <ikrafttredelse>1993-01-01</ikrafttredelse>
    <departement>Justis- og beredskapsdepartementet</departement>
    <rettsomraade>Eiendomsrett</rettsomraade>
  </dokumentinfo>
  <kapittel adr="/kapittel/1/" id="1">
    <tittel>Kapittel 1. Alminnelege føresegner</tittel>
    <paragraf adr="/kapittel/1/paragraf/1-1/">
      <parnr>§ 1-1.</parnr>
      <partittel>Verkeområde</partittel>
      <ledd>Lova gjeld avhending av fast eigedom.</ledd>
      <ledd>Som avhending reknar ein sal, byte og gåve.</ledd>
    </paragraf>
  </kapittel>
  <kapittel adr="/kapittel/3/" id="3">
    <tittel>Kapittel 3. Tilstand og tilhøyrsle</tittel>
    <paragraf adr="/kapittel/3/paragraf/3-9/">
      <parnr>§ 3-9.</parnr>
      <partittel>Eigedom selt «som han er»</partittel>
      <ledd>Endå om eigedomen er selt «som han er», har han likevel mangel.</ledd>
    </paragraf>
  </kapittel>
</dokument>`

func TestParseEntryDocument(t *testing.T) {
	res, err := ParseEntry("lov-1992-07-03-93.xml", strings.NewReader(sampleEntry))
	require.NoError(t, err)

	doc := res.Document
	assert.Equal(t, "lov/1992-07-03-93", doc.DokID)
	assert.Equal(t, "LOV-1992-07-03-93", doc.RefID)
	assert.Equal(t, "Lov om avhending av fast eigedom (avhendingslova)", doc.Title)
	assert.Equal(t, "Avhendingslova", doc.ShortTitle)
	assert.Equal(t, "1993-01-01", doc.DateInForce)
	assert.Equal(t, "Justis- og beredskapsdepartementet", doc.Ministry)
	assert.Equal(t, "Eiendomsrett", doc.LegalArea)
	assert.Equal(t, store.DocTypeLaw, doc.DocType)
	assert.False(t, doc.IsAmendment)
}

func TestParseEntrySections(t *testing.T) {
	res, err := ParseEntry("lov-1992-07-03-93.xml", strings.NewReader(sampleEntry))
	require.NoError(t, err)
	require.Len(t, res.Sections, 2)

	first := res.Sections[0]
	assert.Equal(t, "1-1", first.SectionID)
	assert.Equal(t, "Verkeområde", first.Title)
	assert.Equal(t, "/kapittel/1/paragraf/1-1/", first.Address)
	// Paragraphs join with a blank line.
	assert.Equal(t,
		"Lova gjeld avhending av fast eigedom.\n\nSom avhending reknar ein sal, byte og gåve.",
		first.Content)
	assert.Equal(t, utf8.RuneCountInString(first.Content), first.CharCount)
	assert.Equal(t, "lov/1992-07-03-93", first.DokID)

	second := res.Sections[1]
	assert.Equal(t, "3-9", second.SectionID)
	assert.Equal(t, 1, second.Position)
}

func TestParseEntryCharCountIsRunes(t *testing.T) {
	// æ/ø/å and «» are multi-byte in UTF-8; char_count counts
	// characters, not bytes.
	entry := `<dokument>
	  <dokumentinfo><dokid>lov/1900-01-01-1</dokid><tittel>Testlov</tittel></dokumentinfo>
	  <paragraf adr="/paragraf/1/"><parnr>§ 1.</parnr><ledd>Blåbærsyltetøy og «fjøsnisse» på lågt nivå.</ledd></paragraf>
	</dokument>`
	res, err := ParseEntry("lov-1900-01-01-1.xml", strings.NewReader(entry))
	require.NoError(t, err)
	require.Len(t, res.Sections, 1)

	sec := res.Sections[0]
	assert.Equal(t, utf8.RuneCountInString(sec.Content), sec.CharCount)
	assert.Less(t, sec.CharCount, len(sec.Content),
		"multi-byte runes must not inflate char_count")
}

func TestParseEntryStructures(t *testing.T) {
	res, err := ParseEntry("lov-1992-07-03-93.xml", strings.NewReader(sampleEntry))
	require.NoError(t, err)
	require.Len(t, res.Structures, 2)

	assert.Equal(t, "kapittel", res.Structures[0].Type)
	assert.Equal(t, "/kapittel/1/", res.Structures[0].Address)
	assert.Equal(t, "Kapittel 1. Alminnelege føresegner", res.Structures[0].Title)
	assert.Equal(t, 0, res.Structures[0].Position)
	assert.Equal(t, 1, res.Structures[1].Position)
}

func TestParseEntryDokIDFallback(t *testing.T) {
	entry := `<dokument>
	  <dokumentinfo><tittel>Forskrift om noko</tittel></dokumentinfo>
	  <paragraf adr="/paragraf/1/"><parnr>§ 1.</parnr><ledd>Innhald.</ledd></paragraf>
	</dokument>`
	res, err := ParseEntry("forskrifter/forskrift-2010-01-01-5.xml", strings.NewReader(entry))
	require.NoError(t, err)
	assert.Equal(t, "forskrift/2010-01-01-5", res.Document.DokID)
	assert.Equal(t, store.DocTypeRegulation, res.Document.DocType)
}

func TestParseEntryMultiValueHjemmel(t *testing.T) {
	entry := `<dokument>
	  <dokumentinfo>
	    <dokid>forskrift/2010-01-01-5</dokid>
	    <tittel>Forskrift om avhending</tittel>
	    <hjemmel><a href="/lov/1992-07-03-93/§4-10">lov/1992-07-03-93/§4-10</a>
	      <a href="/lov/1992-07-03-93/§4-11">lov/1992-07-03-93/§4-11</a></hjemmel>
	  </dokumentinfo>
	  <paragraf adr="/paragraf/1/"><parnr>§ 1.</parnr><ledd>Innhald.</ledd></paragraf>
	</dokument>`
	res, err := ParseEntry("forskrift-2010-01-01-5.xml", strings.NewReader(entry))
	require.NoError(t, err)
	assert.Equal(t, "lov/1992-07-03-93/§4-10; lov/1992-07-03-93/§4-11", res.Document.BasedOn)
}

func TestParseEntryAmendmentTitle(t *testing.T) {
	cases := map[string]bool{
		"Lov om endringer i avhendingslova":      true,
		"Lov om endring i husleieloven":          true,
		"Endringslov til arbeidsmiljøloven":      true,
		"Lov om endr. i burettslagslova":         true,
		"Lov om avhending av fast eigedom":       false,
		"Lov om husleie (husleieloven)":          false,
	}
	for title, want := range cases {
		assert.Equal(t, want, isAmendmentTitle(title), "title %q", title)
	}
}

func TestSplitMinistries(t *testing.T) {
	// Concatenated blob splits at each departementet+Uppercase seam.
	got := splitMinistries("Klima- og miljødepartementetFinansdepartementetJustis- og beredskapsdepartementet")
	assert.Equal(t,
		"Klima- og miljødepartementet; Finansdepartementet; Justis- og beredskapsdepartementet",
		got)

	// Already-delimited values pass through.
	assert.Equal(t, "A-departementet; B-departementet", splitMinistries("A-departementet; B-departementet"))
	assert.Equal(t, "Finansdepartementet", splitMinistries("Finansdepartementet"))
	assert.Equal(t, "", splitMinistries(""))
}

func TestParseEntryMalformed(t *testing.T) {
	// No title and no usable stem.
	_, err := ParseEntry("garbage.xml", strings.NewReader("<dokument><paragraf/></dokument>"))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseEntryUnknownDocType(t *testing.T) {
	entry := `<dokument><dokumentinfo><dokid>rundskriv/2020-01-01-1</dokid><tittel>T</tittel></dokumentinfo></dokument>`
	_, err := ParseEntry("rundskriv-2020-01-01-1.xml", strings.NewReader(entry))
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestParseEntryWholeParagraphFallback(t *testing.T) {
	// Without ledd elements the whole article text is the content.
	entry := `<dokument>
	  <dokumentinfo><dokid>lov/1900-01-01-1</dokid><tittel>Testlov</tittel></dokumentinfo>
	  <paragraf adr="/paragraf/1/"><parnr>§ 1.</parnr>Heile paragrafteksten utan ledd.</paragraf>
	</dokument>`
	res, err := ParseEntry("lov-1900-01-01-1.xml", strings.NewReader(entry))
	require.NoError(t, err)
	require.Len(t, res.Sections, 1)
	assert.Equal(t, "Heile paragrafteksten utan ledd.", res.Sections[0].Content)
}

