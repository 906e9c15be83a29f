package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAnnotation(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want Annotation
	}{
		{"bare", "@hidden", Annotation{Name: "hidden"}},
		{"simple body", "@format(IPV4_ADDRESS)", Annotation{Name: "format", Body: "IPV4_ADDRESS"}},
		{"quoted body", `@controller_header("packet_out")`, Annotation{Name: "controller_header", Body: `"packet_out"`}},
		{"nested parens", "@expr(f(a, b))", Annotation{Name: "expr", Body: "f(a, b)"}},
		{"paren inside quotes", `@note("unbalanced ) here")`, Annotation{Name: "note", Body: `"unbalanced ) here"`}},
		{"escaped quote", `@note("a \" b")`, Annotation{Name: "note", Body: `"a \" b"`}},
		{"multi-line body", "@doc(line one\nline two)", Annotation{Name: "doc", Body: "line one\nline two"}},
		{"leading space", "  @hidden  ", Annotation{Name: "hidden"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAnnotation(tt.src)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseAnnotationErrors(t *testing.T) {
	for _, src := range []string{
		"no_at",
		"@",
		"@x(unbalanced",
		`@x("unterminated)`,
		"@x(done) trailing",
	} {
		_, err := ParseAnnotation(src)
		assert.Error(t, err, "src %q", src)
	}
}

func TestFormatHint(t *testing.T) {
	ann := parseAnnotations([]string{"@format(MAC_ADDRESS)"})
	assert.Equal(t, hintAddress, formatOf(ann))

	ann = parseAnnotations([]string{"@format(HEX_STR)"})
	assert.Equal(t, hintHex, formatOf(ann))

	ann = parseAnnotations([]string{"@hidden"})
	assert.Equal(t, hintNone, formatOf(ann))

	// Malformed annotations are skipped, not fatal.
	ann = parseAnnotations([]string{"bogus", "@format(IPV6_ADDRESS)"})
	require.Len(t, ann, 1)
	assert.Equal(t, hintAddress, formatOf(ann))
}
