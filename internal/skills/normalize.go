// Package skills normalizes raw skill labels extracted from job postings so
// that spelling variants of the same competency are counted together.
package skills

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// acronyms are always rendered upper-case.
var acronyms = map[string]struct{}{
	"api":    {},
	"aws":    {},
	"bi":     {},
	"crm":    {},
	"css":    {},
	"devops": {},
	"erp":    {},
	"etl":    {},
	"gcp":    {},
	"html":   {},
	"it":     {},
	"kpi":    {},
	"php":    {},
	"qa":     {},
	"rest":   {},
	"rgpd":   {},
	"saas":   {},
	"sap":    {},
	"seo":    {},
	"sql":    {},
	"ui":     {},
	"ux":     {},
}

// connectors stay lower-case inside multi-word skill names.
var connectors = map[string]struct{}{
	"a":   {},
	"and": {},
	"de":  {},
	"des": {},
	"du":  {},
	"en":  {},
	"et":  {},
	"la":  {},
	"le":  {},
	"of":  {},
}

// aliases collapse well-known spelling variants into one canonical display
// name. Lookup happens on the folded form, so "Power-BI", "powerbi" and
// "Power BI" all hit the same entry.
var aliases = map[string]string{
	"cicd":       "CI/CD",
	"golang":     "Go",
	"javascript": "JavaScript",
	"msexcel":    "Excel",
	"nodejs":     "Node.js",
	"postgres":   "PostgreSQL",
	"postgresql": "PostgreSQL",
	"powerbi":    "Power BI",
	"reactjs":    "React",
	"typescript": "TypeScript",
	"uiuxdesign": "UI/UX Design",
	"uxuidesign": "UI/UX Design",
	"vuejs":      "Vue.js",
}

var stripper = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// StripAccents removes diacritical marks: "compétences" becomes "competences".
func StripAccents(s string) string {
	out, _, err := transform.String(stripper, s)
	if err != nil {
		return s
	}
	return out
}

// Fold reduces a skill label to its canonical comparison key: lower-cased,
// accent-stripped, with everything but letters and digits removed. Two labels
// with the same fold are treated as the same skill.
func Fold(s string) string {
	folded := StripAccents(strings.ToLower(s))
	var b strings.Builder
	b.Grow(len(folded))
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// Normalize returns the display form of a raw skill label: aliases first,
// then acronym upper-casing, connector lower-casing and capitalization of
// ordinary words. The function is pure; it never consults external state.
func Normalize(raw string) string {
	cleaned := strings.Join(strings.Fields(raw), " ")
	if cleaned == "" {
		return ""
	}

	if canonical, ok := aliases[Fold(cleaned)]; ok {
		return canonical
	}

	words := strings.Split(cleaned, " ")
	for i, word := range words {
		lower := strings.ToLower(word)
		if _, ok := acronyms[Fold(word)]; ok {
			words[i] = strings.ToUpper(lower)
			continue
		}
		if _, ok := connectors[lower]; ok && i > 0 {
			words[i] = lower
			continue
		}
		words[i] = capitalize(lower)
	}

	return strings.Join(words, " ")
}

func capitalize(lower string) string {
	r := []rune(lower)
	if len(r) == 0 {
		return lower
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
