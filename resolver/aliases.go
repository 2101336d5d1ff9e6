package resolver

// Seed aliases for the most commonly requested Norwegian laws. Keys
// are normalized (lowercase, hyphens for spaces). The dynamic
// short-title index in the store handles everything beyond this list.
var aliases = map[string]string{
	"grunnloven":             "lov/1814-05-17",
	"avtaleloven":            "lov/1918-05-31-4",
	"naboloven":              "lov/1961-06-16-15",
	"forvaltningsloven":      "lov/1967-02-10",
	"barnelova":              "lov/1981-04-08-7",
	"kjopsloven":             "lov/1988-05-13-27",
	"kjøpsloven":             "lov/1988-05-13-27",
	"ekteskapsloven":         "lov/1991-07-04-47",
	"avhendingslova":         "lov/1992-07-03-93",
	"avhendingsloven":        "lov/1992-07-03-93",
	"tomtefesteloven":        "lov/1996-12-20-106",
	"bustadoppforingslova":   "lov/1997-06-13-43",
	"bustadoppføringslova":   "lov/1997-06-13-43",
	"aksjeloven":             "lov/1997-06-13-44",
	"husleieloven":           "lov/1999-03-26-17",
	"forbrukerkjopsloven":    "lov/2002-06-21-34",
	"forbrukerkjøpsloven":    "lov/2002-06-21-34",
	"burettslagslova":        "lov/2003-06-06-39",
	"straffeloven":           "lov/2005-05-20-28",
	"arbeidsmiljoloven":      "lov/2005-06-17-62",
	"arbeidsmiljøloven":      "lov/2005-06-17-62",
	"offentleglova":          "lov/2006-05-19-16",
	"eierseksjonsloven":      "lov/2017-06-16-65",
	"personopplysningsloven": "lov/2018-06-15-38",
	"plan-og-bygningsloven":  "lov/2008-06-27-71",
}

// displayNames maps canonical ids back to a presentable short name for
// alias listings and the static-search fallback.
var displayNames = map[string]string{
	"lov/1814-05-17":     "Grunnloven",
	"lov/1918-05-31-4":   "Avtaleloven",
	"lov/1961-06-16-15":  "Naboloven",
	"lov/1967-02-10":     "Forvaltningsloven",
	"lov/1981-04-08-7":   "Barnelova",
	"lov/1988-05-13-27":  "Kjøpsloven",
	"lov/1991-07-04-47":  "Ekteskapsloven",
	"lov/1992-07-03-93":  "Avhendingslova",
	"lov/1996-12-20-106": "Tomtefesteloven",
	"lov/1997-06-13-43":  "Bustadoppføringslova",
	"lov/1997-06-13-44":  "Aksjeloven",
	"lov/1999-03-26-17":  "Husleieloven",
	"lov/2002-06-21-34":  "Forbrukerkjøpsloven",
	"lov/2003-06-06-39":  "Burettslagslova",
	"lov/2005-05-20-28":  "Straffeloven",
	"lov/2005-06-17-62":  "Arbeidsmiljøloven",
	"lov/2006-05-19-16":  "Offentleglova",
	"lov/2008-06-27-71":  "Plan- og bygningsloven",
	"lov/2017-06-16-65":  "Eierseksjonsloven",
	"lov/2018-06-15-38":  "Personopplysningsloven",
}

// DisplayName returns the seeded display name for a canonical id.
func DisplayName(dokID string) (string, bool) {
	name, ok := displayNames[dokID]
	return name, ok
}

// Aliases returns a copy of the seed alias table.
func Aliases() map[string]string {
	out := make(map[string]string, len(aliases))
	for k, v := range aliases {
		out[k] = v
	}
	return out
}
