// Package gnmipath implements the canonical gNMI path string syntax:
// '/'-separated elements, each optionally carrying [key=value] pairs,
// with backslash escaping per the gNMI path conventions.
//
// Path values are immutable; every modifier returns a new Path. The
// canonical string form is the source of truth, with structured
// accessors for element names, keys, sub-paths and concatenation.
package gnmipath

import (
	"fmt"
	"sort"
	"strings"

	gpb "github.com/openconfig/gnmi/proto/gnmi"
)

type elem struct {
	name string
	keys map[string]string
}

// Path is an immutable gNMI path.
type Path struct {
	origin string
	target string
	elems  []elem
}

// Parse parses the canonical string form. A leading '/' is accepted and
// ignored. An "origin:" prefix before the first element sets the origin.
func Parse(s string) (Path, error) {
	var p Path
	s = strings.TrimPrefix(s, "/")
	if s == "" {
		return p, nil
	}
	if i := strings.IndexByte(s, ':'); i > 0 && !strings.ContainsAny(s[:i], "/[") {
		p.origin = s[:i]
		s = s[i+1:]
	}
	for len(s) > 0 {
		e, rest, err := parseElem(s)
		if err != nil {
			return Path{}, err
		}
		p.elems = append(p.elems, e)
		s = rest
	}
	return p, nil
}

// MustParse parses the path and panics on error. For literals.
func MustParse(s string) Path {
	p, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return p
}

func parseElem(s string) (elem, string, error) {
	e := elem{}
	var name strings.Builder
	i := 0
	for i < len(s) {
		c := s[i]
		switch c {
		case '\\':
			if i+1 >= len(s) {
				return e, "", fmt.Errorf("path %q: trailing escape", s)
			}
			name.WriteByte(s[i+1])
			i += 2
		case '/':
			e.name = name.String()
			return e, s[i+1:], nil
		case '[':
			key, val, rest, err := parseKey(s[i:])
			if err != nil {
				return e, "", err
			}
			if e.keys == nil {
				e.keys = make(map[string]string)
			}
			e.keys[key] = val
			s = s[:i] + rest
			// continue scanning after the key at the same index
		default:
			name.WriteByte(c)
			i++
		}
	}
	e.name = name.String()
	return e, "", nil
}

// parseKey parses one "[name=value]" starting at s[0]=='[' and returns
// the remainder after ']'.
func parseKey(s string) (key, val, rest string, err error) {
	i := 1
	var k strings.Builder
	for i < len(s) && s[i] != '=' {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		k.WriteByte(s[i])
		i++
	}
	if i >= len(s) {
		return "", "", "", fmt.Errorf("path key %q: missing '='", s)
	}
	i++ // skip '='
	var v strings.Builder
	for i < len(s) && s[i] != ']' {
		if s[i] == '\\' && i+1 < len(s) {
			i++
		}
		v.WriteByte(s[i])
		i++
	}
	if i >= len(s) {
		return "", "", "", fmt.Errorf("path key %q: missing ']'", s)
	}
	return k.String(), v.String(), s[i+1:], nil
}

func escapeName(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == '/' || s[i] == '[' || s[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

func escapeKeyVal(s string) string {
	var b strings.Builder
	for i := 0; i < len(s); i++ {
		if s[i] == ']' || s[i] == '\\' {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	return b.String()
}

// String renders the canonical form; keys are sorted for stability.
func (p Path) String() string {
	var b strings.Builder
	if p.origin != "" {
		b.WriteString(p.origin)
		b.WriteByte(':')
	}
	for i, e := range p.elems {
		if i > 0 {
			b.WriteByte('/')
		}
		b.WriteString(escapeName(e.name))
		if len(e.keys) > 0 {
			names := make([]string, 0, len(e.keys))
			for k := range e.keys {
				names = append(names, k)
			}
			sort.Strings(names)
			for _, k := range names {
				fmt.Fprintf(&b, "[%s=%s]", escapeKeyVal(k), escapeKeyVal(e.keys[k]))
			}
		}
	}
	return b.String()
}

// Len returns the number of elements.
func (p Path) Len() int { return len(p.elems) }

// Elem returns the name of the i-th element. Negative indices count
// from the end.
func (p Path) Elem(i int) string {
	if i < 0 {
		i += len(p.elems)
	}
	if i < 0 || i >= len(p.elems) {
		return ""
	}
	return p.elems[i].name
}

// Key looks up a key value. Accepted forms:
//
//	Key(key)              — single-key shorthand; the key name must be
//	                        unambiguous across elements
//	Key(elemIndex, key)   — by element position
//	Key(elemName, key)    — by element name
func (p Path) Key(args ...any) (string, bool) {
	switch len(args) {
	case 1:
		key, ok := args[0].(string)
		if !ok {
			return "", false
		}
		var found string
		n := 0
		for _, e := range p.elems {
			if v, ok := e.keys[key]; ok {
				found = v
				n++
			}
		}
		return found, n == 1
	case 2:
		key, ok := args[1].(string)
		if !ok {
			return "", false
		}
		switch sel := args[0].(type) {
		case int:
			i := sel
			if i < 0 {
				i += len(p.elems)
			}
			if i < 0 || i >= len(p.elems) {
				return "", false
			}
			v, ok := p.elems[i].keys[key]
			return v, ok
		case string:
			for _, e := range p.elems {
				if e.name == sel {
					v, ok := e.keys[key]
					return v, ok
				}
			}
		}
	}
	return "", false
}

// WithKey returns a new path with the key set on the named element.
func (p Path) WithKey(elemName, key, value string) Path {
	out := p.clone()
	for i := range out.elems {
		if out.elems[i].name == elemName {
			if out.elems[i].keys == nil {
				out.elems[i].keys = make(map[string]string)
			}
			out.elems[i].keys[key] = value
			break
		}
	}
	return out
}

// Slice returns the sub-path [i, j). Negative indices count from the
// end; bounds are clamped.
func (p Path) Slice(i, j int) Path {
	if i < 0 {
		i += len(p.elems)
	}
	if j < 0 {
		j += len(p.elems)
	}
	i = max(0, min(i, len(p.elems)))
	j = max(i, min(j, len(p.elems)))
	out := Path{origin: p.origin, target: p.target}
	out.elems = append(out.elems, p.elems[i:j]...)
	return out.clone()
}

// Join concatenates this path with another Path or a parseable string,
// returning a new path. An invalid string panics, matching MustParse.
func (p Path) Join(other any) Path {
	var q Path
	switch o := other.(type) {
	case Path:
		q = o
	case string:
		q = MustParse(o)
	default:
		panic(fmt.Sprintf("cannot join path with %T", other))
	}
	out := p.clone()
	out.elems = append(out.elems, q.clone().elems...)
	return out
}

// Origin returns the path origin.
func (p Path) Origin() string { return p.origin }

// WithOrigin returns a new path with the origin set.
func (p Path) WithOrigin(origin string) Path {
	out := p.clone()
	out.origin = origin
	return out
}

// Target returns the path target.
func (p Path) Target() string { return p.target }

// WithTarget returns a new path with the target set.
func (p Path) WithTarget(target string) Path {
	out := p.clone()
	out.target = target
	return out
}

func (p Path) clone() Path {
	out := Path{origin: p.origin, target: p.target}
	out.elems = make([]elem, len(p.elems))
	for i, e := range p.elems {
		out.elems[i] = elem{name: e.name}
		if len(e.keys) > 0 {
			out.elems[i].keys = make(map[string]string, len(e.keys))
			for k, v := range e.keys {
				out.elems[i].keys[k] = v
			}
		}
	}
	return out
}

// Proto converts to the wire gNMI path.
func (p Path) Proto() *gpb.Path {
	out := &gpb.Path{Origin: p.origin, Target: p.target}
	for _, e := range p.elems {
		pe := &gpb.PathElem{Name: e.name}
		if len(e.keys) > 0 {
			pe.Key = make(map[string]string, len(e.keys))
			for k, v := range e.keys {
				pe.Key[k] = v
			}
		}
		out.Elem = append(out.Elem, pe)
	}
	return out
}

// FromProto converts a wire gNMI path.
func FromProto(pb *gpb.Path) Path {
	p := Path{origin: pb.GetOrigin(), target: pb.GetTarget()}
	for _, pe := range pb.GetElem() {
		e := elem{name: pe.GetName()}
		if len(pe.GetKey()) > 0 {
			e.keys = make(map[string]string, len(pe.GetKey()))
			for k, v := range pe.GetKey() {
				e.keys[k] = v
			}
		}
		p.elems = append(p.elems, e)
	}
	return p
}
