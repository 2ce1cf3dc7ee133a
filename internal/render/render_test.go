package render

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/conneroisu/stitch/internal/params"
)

func set(kv ...string) *params.Set {
	s := params.NewSet()
	for i := 0; i+1 < len(kv); i += 2 {
		s.Set(kv[i], params.String(kv[i+1]))
	}
	return s
}

func TestRender(t *testing.T) {
	testCases := []struct {
		name     string
		text     string
		params   *params.Set
		expected string
	}{
		{"missing without default is empty", `<b>{{ x }}</b>`, set(), `<b></b>`},
		{"missing with default", `<b>{{ x | Hi }}</b>`, set(), `<b>Hi</b>`},
		{"default keeps inner spaces", `{{ x |  Click me  }}`, set(), `Click me`},
		{"exact match", `{{ buttonText | Default }}`, set("buttonText", "Go"), `Go`},
		{"case-insensitive fallback", `{{ buttonText }}`, set("buttontext", "Go"), `Go`},
		{"exact beats folded", `{{ buttonText }}`, set("buttontext", "lower", "buttonText", "exact"), `exact`},
		{"value is escaped", `<p>{{ v }}</p>`, set("v", `<script>"a" & 'b'</script>`), `<p>&lt;script&gt;&quot;a&quot; &amp; &#39;b&#39;&lt;/script&gt;</p>`},
		{"default is escaped", `{{ v | <b>&</b> }}`, set(), `&lt;b&gt;&amp;&lt;/b&gt;`},
		{"no whitespace", `{{x}}`, set("x", "1"), `1`},
		{"dotted and dashed names", `{{ a.b-c_d }}`, set("a.b-c_d", "ok"), `ok`},
		{"several tokens", `{{ a }}-{{ b | B }}-{{ a }}`, set("a", "A"), `A-B-A`},
		{"malformed single brace", `{ x }`, set("x", "1"), `{ x }`},
		{"malformed bad name", `{{ x y }}`, set("x", "1"), `{{ x y }}`},
		{"malformed unclosed", `{{ x `, set("x", "1"), `{{ x `},
		{"blank default renders empty", `{{ x | }}`, set(), ``},
		{"value is not re-rendered", `{{ x }}`, set("x", "{{ y }}", "y", "nope"), `{{ y }}`},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, Render(tc.text, tc.params))
		})
	}
}

func TestRenderFoldedLaterKeyWins(t *testing.T) {
	bulk, err := params.ParseBulk(`{"ButtonText": "json"}`)
	if err != nil {
		t.Fatal(err)
	}
	merged := params.Merge(bulk, set("buttontext", "attr"))

	assert.Equal(t, "attr", Render(`{{ buttonText }}`, merged))
	assert.Equal(t, "json", Render(`{{ ButtonText }}`, merged))
}

func TestRenderNullUsesDefault(t *testing.T) {
	s := params.NewSet()
	s.Set("label", params.NullValue())
	s.Set("LABEL", params.String("folded"))

	assert.Equal(t, "fallback", Render(`{{ label | fallback }}`, s))
	assert.Equal(t, "", Render(`{{ label }}`, s))
}

func TestRenderWithoutTokensIsIdentity(t *testing.T) {
	for _, text := range []string{
		"",
		"<div class=\"card\">plain</div>",
		"{ single } and {{ not a token",
		"<script>if (a && b) { run(); }</script>",
	} {
		assert.Equal(t, text, Render(text, set("a", "x")))
	}
}

func TestRenderNilParams(t *testing.T) {
	assert.Equal(t, "d", Render("{{ x | d }}", nil))
}

func TestTokens(t *testing.T) {
	toks := Tokens(`<h1>{{ title | Welcome }}</h1><p>{{body}}</p>{{ bad token }}`)

	assert.Equal(t, []Token{
		{Name: "title", Default: "Welcome", HasDefault: true, Raw: "{{ title | Welcome }}"},
		{Name: "body", Raw: "{{body}}"},
	}, toks)
	assert.Empty(t, Tokens("nothing here"))
}

func TestEscape(t *testing.T) {
	assert.Equal(t, "&amp;&lt;&gt;&quot;&#39;", Escape(`&<>"'`))
	assert.Equal(t, "plain", Escape("plain"))
}
