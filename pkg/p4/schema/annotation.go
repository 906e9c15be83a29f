package schema

import (
	"fmt"
	"strings"

	p4config "github.com/p4lang/p4runtime/go/p4/config/v1"
)

// Annotation is one parsed source annotation, e.g. @format(IPV4_ADDRESS)
// or @hidden. Body is the raw text between the outer parentheses, which
// may span lines and contain escape sequences; it is empty for
// annotations without a body.
type Annotation struct {
	Name string
	Body string
}

// ParseAnnotation parses a single annotation in the protobuf text form:
//
//	@name
//	@name(body)
//
// The body may contain nested parentheses, single- and double-quoted
// strings with backslash escapes, and newlines. Source locations are not
// tracked.
func ParseAnnotation(src string) (Annotation, error) {
	s := strings.TrimSpace(src)
	if !strings.HasPrefix(s, "@") {
		return Annotation{}, fmt.Errorf("annotation %q does not start with '@'", src)
	}
	s = s[1:]

	i := 0
	for i < len(s) && s[i] != '(' && s[i] != ' ' && s[i] != '\t' && s[i] != '\n' {
		i++
	}
	name := s[:i]
	if name == "" {
		return Annotation{}, fmt.Errorf("annotation %q has no name", src)
	}
	rest := strings.TrimSpace(s[i:])
	if rest == "" {
		return Annotation{Name: name}, nil
	}
	if rest[0] != '(' {
		return Annotation{}, fmt.Errorf("annotation %q: unexpected %q after name", src, rest[0])
	}

	body, end, err := scanParenBody(rest)
	if err != nil {
		return Annotation{}, fmt.Errorf("annotation %q: %w", src, err)
	}
	if strings.TrimSpace(rest[end:]) != "" {
		return Annotation{}, fmt.Errorf("annotation %q: trailing text after body", src)
	}
	return Annotation{Name: name, Body: body}, nil
}

// scanParenBody scans a parenthesized body starting at s[0] == '(' and
// returns the text between the outer parentheses and the index just
// after the closing one. Nested parens and quoted strings are honored.
func scanParenBody(s string) (body string, end int, err error) {
	depth := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return s[1:i], i + 1, nil
			}
		case '"', '\'':
			j, err := scanQuoted(s, i)
			if err != nil {
				return "", 0, err
			}
			i = j
		}
	}
	return "", 0, fmt.Errorf("unbalanced parentheses")
}

// scanQuoted returns the index of the closing quote matching s[start].
func scanQuoted(s string, start int) (int, error) {
	quote := s[start]
	for i := start + 1; i < len(s); i++ {
		switch s[i] {
		case '\\':
			i++ // skip escaped char
		case quote:
			return i, nil
		}
	}
	return 0, fmt.Errorf("unterminated %c-quoted string", quote)
}

// parseAnnotations parses all source annotations, skipping malformed
// ones rather than failing the schema load.
func parseAnnotations(srcs []string) []Annotation {
	out := make([]Annotation, 0, len(srcs))
	for _, s := range srcs {
		a, err := ParseAnnotation(s)
		if err != nil {
			continue
		}
		out = append(out, a)
	}
	return out
}

// StructuredAnnotation is the typed view of a P4Info structured
// annotation: either an ordered expression list or a key/value list.
// Values are int64, string or bool.
type StructuredAnnotation struct {
	Name        string
	Expressions []any          // set for list form
	KVPairs     map[string]any // set for kv form
}

func newStructuredAnnotation(pb *p4config.StructuredAnnotation) StructuredAnnotation {
	sa := StructuredAnnotation{Name: pb.GetName()}
	switch body := pb.GetBody().(type) {
	case *p4config.StructuredAnnotation_ExpressionList:
		for _, e := range body.ExpressionList.GetExpressions() {
			sa.Expressions = append(sa.Expressions, expressionValue(e))
		}
	case *p4config.StructuredAnnotation_KvPairList:
		sa.KVPairs = make(map[string]any)
		for _, kv := range body.KvPairList.GetKvPairs() {
			sa.KVPairs[kv.GetKey()] = expressionValue(kv.GetValue())
		}
	}
	return sa
}

func expressionValue(e *p4config.Expression) any {
	switch v := e.GetValue().(type) {
	case *p4config.Expression_Int64Value:
		return v.Int64Value
	case *p4config.Expression_StringValue:
		return v.StringValue
	case *p4config.Expression_BoolValue:
		return v.BoolValue
	default:
		return nil
	}
}

// formatOf maps a @format annotation to the preferred decode format.
func formatOf(annotations []Annotation) (f formatHint) {
	for _, a := range annotations {
		if a.Name != "format" {
			continue
		}
		switch strings.TrimSpace(a.Body) {
		case "IPV4_ADDRESS", "IPV6_ADDRESS", "MAC_ADDRESS":
			return hintAddress
		case "HEX_STR":
			return hintHex
		}
	}
	return hintNone
}

type formatHint int

const (
	hintNone formatHint = iota
	hintAddress
	hintHex
)
