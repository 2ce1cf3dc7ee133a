// Package render substitutes {{ name }} and {{ name | default }} tokens in
// fragment text.
//
// A token's value is looked up by exact name, then case-insensitively (host
// documents lowercase attribute names, authors write camelCase tokens), then
// taken from the default text, and finally left empty. Whatever is chosen is
// HTML-escaped. Text that is not a well-formed token is copied unchanged.
package render

import (
	"regexp"
	"strings"

	"golang.org/x/text/cases"

	"github.com/conneroisu/stitch/internal/params"
)

var tokenPattern = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_.\-]+)(?:\s*\|\s*([^}]+))?\s*\}\}`)

var escaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	`"`, "&quot;",
	"'", "&#39;",
)

// Escape escapes the five HTML-special characters.
func Escape(s string) string {
	return escaper.Replace(s)
}

// Token is one well-formed token occurrence.
type Token struct {
	Name       string
	Default    string
	HasDefault bool
	// Raw is the token exactly as written.
	Raw string
}

// Tokens lists the tokens in text in order of appearance.
func Tokens(text string) []Token {
	matches := tokenPattern.FindAllStringSubmatchIndex(text, -1)
	out := make([]Token, 0, len(matches))
	for _, m := range matches {
		out = append(out, tokenAt(text, m))
	}
	return out
}

func tokenAt(text string, m []int) Token {
	tok := Token{Name: text[m[2]:m[3]], Raw: text[m[0]:m[1]]}
	if m[4] >= 0 {
		tok.Default = strings.TrimSpace(text[m[4]:m[5]])
		tok.HasDefault = true
	}
	return tok
}

// Render replaces every token in text with its escaped value from p.
func Render(text string, p *params.Set) string {
	if !strings.Contains(text, "{{") {
		return text
	}
	lookup := newLookup(p)

	var b strings.Builder
	last := 0
	for _, m := range tokenPattern.FindAllStringSubmatchIndex(text, -1) {
		b.WriteString(text[last:m[0]])
		b.WriteString(Escape(lookup.resolve(tokenAt(text, m))))
		last = m[1]
	}
	if last == 0 {
		return text
	}
	b.WriteString(text[last:])
	return b.String()
}

type lookup struct {
	set    *params.Set
	folder cases.Caser
	folded map[string]params.Value
}

func newLookup(p *params.Set) *lookup {
	l := &lookup{set: p, folder: cases.Fold()}
	l.folded = make(map[string]params.Value, p.Len())
	// Later keys win when two keys fold to the same name.
	for _, k := range p.Keys() {
		v, _ := p.Get(k)
		l.folded[l.folder.String(k)] = v
	}
	return l
}

func (l *lookup) resolve(tok Token) string {
	v, ok := l.set.Get(tok.Name)
	if !ok {
		v, ok = l.folded[l.folder.String(tok.Name)]
	}
	if ok && !v.Null {
		return v.Text
	}
	if tok.HasDefault {
		return tok.Default
	}
	return ""
}
