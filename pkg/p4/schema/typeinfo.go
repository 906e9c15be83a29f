package schema

import (
	"fmt"

	p4config "github.com/p4lang/p4runtime/go/p4/config/v1"
	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"

	"github.com/byllyfish/finsy/pkg/p4/bitstr"
)

// TypeKind enumerates the concrete shapes a P4 type resolves to after
// transitive new_type flattening.
type TypeKind int

const (
	KindBits TypeKind = iota
	KindSignedBits
	KindVarbit
	KindBool
	KindTuple
	KindStruct
	KindHeader
	KindHeaderUnion
	KindHeaderStack
	KindHeaderUnionStack
	KindEnum
	KindSerializableEnum
	KindError
)

func (k TypeKind) String() string {
	switch k {
	case KindBits:
		return "bit"
	case KindSignedBits:
		return "int"
	case KindVarbit:
		return "varbit"
	case KindBool:
		return "bool"
	case KindTuple:
		return "tuple"
	case KindStruct:
		return "struct"
	case KindHeader:
		return "header"
	case KindHeaderUnion:
		return "header_union"
	case KindHeaderStack:
		return "header_stack"
	case KindHeaderUnionStack:
		return "header_union_stack"
	case KindEnum:
		return "enum"
	case KindSerializableEnum:
		return "serializable_enum"
	case KindError:
		return "error"
	}
	return "unknown"
}

// Member is one named field of a struct, header or union type.
type Member struct {
	Name string
	Type *TypeSpec
}

// EnumMember is one member of a serializable enum; Value is empty for
// plain (unserialized) enums.
type EnumMember struct {
	Name  string
	Value []byte
}

// TypeSpec is a resolved P4 type. New types are flattened away during
// resolution, so Kind always names a concrete representation.
type TypeSpec struct {
	Kind     TypeKind
	Name     string // named types: struct/header/enum name; "" for anonymous
	Bitwidth int
	Members  []Member
	Enum     []EnumMember
	Size     int // stack size
}

// typeResolver resolves type references within one P4Info, with caching.
type typeResolver struct {
	info  *p4config.P4TypeInfo
	named map[string]*TypeSpec // fully-resolved named types
}

func newTypeResolver(info *p4config.P4TypeInfo) *typeResolver {
	return &typeResolver{info: info, named: make(map[string]*TypeSpec)}
}

// resolveData resolves a P4DataTypeSpec to a concrete TypeSpec.
func (r *typeResolver) resolveData(spec *p4config.P4DataTypeSpec) (*TypeSpec, error) {
	if spec == nil {
		return nil, &TypeError{Reason: "nil type spec"}
	}
	switch t := spec.GetTypeSpec().(type) {
	case *p4config.P4DataTypeSpec_Bitstring:
		return r.resolveBitstring(t.Bitstring)
	case *p4config.P4DataTypeSpec_Bool:
		return &TypeSpec{Kind: KindBool}, nil
	case *p4config.P4DataTypeSpec_Tuple:
		ts := &TypeSpec{Kind: KindTuple}
		for i, m := range t.Tuple.GetMembers() {
			mt, err := r.resolveData(m)
			if err != nil {
				return nil, err
			}
			ts.Members = append(ts.Members, Member{Name: fmt.Sprintf("%d", i), Type: mt})
		}
		return ts, nil
	case *p4config.P4DataTypeSpec_Struct:
		return r.resolveStruct(t.Struct.GetName())
	case *p4config.P4DataTypeSpec_Header:
		return r.resolveHeader(t.Header.GetName())
	case *p4config.P4DataTypeSpec_HeaderUnion:
		return r.resolveHeaderUnion(t.HeaderUnion.GetName())
	case *p4config.P4DataTypeSpec_HeaderStack:
		h, err := r.resolveHeader(t.HeaderStack.GetHeader().GetName())
		if err != nil {
			return nil, err
		}
		return &TypeSpec{Kind: KindHeaderStack, Members: []Member{{Name: h.Name, Type: h}}, Size: int(t.HeaderStack.GetSize())}, nil
	case *p4config.P4DataTypeSpec_HeaderUnionStack:
		u, err := r.resolveHeaderUnion(t.HeaderUnionStack.GetHeaderUnion().GetName())
		if err != nil {
			return nil, err
		}
		return &TypeSpec{Kind: KindHeaderUnionStack, Members: []Member{{Name: u.Name, Type: u}}, Size: int(t.HeaderUnionStack.GetSize())}, nil
	case *p4config.P4DataTypeSpec_Enum:
		return r.resolveEnum(t.Enum.GetName(), false)
	case *p4config.P4DataTypeSpec_SerializableEnum:
		return r.resolveEnum(t.SerializableEnum.GetName(), true)
	case *p4config.P4DataTypeSpec_NewType:
		return r.resolveNamed(t.NewType.GetName())
	case *p4config.P4DataTypeSpec_Error:
		return &TypeSpec{Kind: KindError}, nil
	default:
		return nil, &TypeError{Reason: fmt.Sprintf("unsupported type spec %T", t)}
	}
}

func (r *typeResolver) resolveBitstring(spec *p4config.P4BitstringLikeTypeSpec) (*TypeSpec, error) {
	switch b := spec.GetTypeSpec().(type) {
	case *p4config.P4BitstringLikeTypeSpec_Bit:
		return &TypeSpec{Kind: KindBits, Bitwidth: int(b.Bit.GetBitwidth())}, nil
	case *p4config.P4BitstringLikeTypeSpec_Int:
		return &TypeSpec{Kind: KindSignedBits, Bitwidth: int(b.Int.GetBitwidth())}, nil
	case *p4config.P4BitstringLikeTypeSpec_Varbit:
		return &TypeSpec{Kind: KindVarbit, Bitwidth: int(b.Varbit.GetMaxBitwidth())}, nil
	default:
		return nil, &TypeError{Reason: "empty bitstring type spec"}
	}
}

// resolveNamed resolves a new_type name, following chains of new_types
// until a concrete representation is reached.
func (r *typeResolver) resolveNamed(name string) (*TypeSpec, error) {
	if ts, ok := r.named[name]; ok {
		if ts == nil {
			return nil, &TypeError{Name: name, Reason: "recursive new_type"}
		}
		return ts, nil
	}
	nt, ok := r.info.GetNewTypes()[name]
	if !ok {
		return nil, &TypeError{Name: name, Reason: "new_type not declared"}
	}
	r.named[name] = nil // cycle marker
	var (
		ts  *TypeSpec
		err error
	)
	switch rep := nt.GetRepresentation().(type) {
	case *p4config.P4NewTypeSpec_OriginalType:
		ts, err = r.resolveData(rep.OriginalType)
	case *p4config.P4NewTypeSpec_TranslatedType:
		// Translated types present an SDN view; width 0 means string.
		if w := rep.TranslatedType.GetSdnBitwidth(); w > 0 {
			ts = &TypeSpec{Kind: KindBits, Bitwidth: int(w)}
		} else {
			ts = &TypeSpec{Kind: KindBits}
		}
	default:
		err = &TypeError{Name: name, Reason: "new_type has no representation"}
	}
	if err != nil {
		delete(r.named, name)
		return nil, err
	}
	named := *ts
	if named.Name == "" {
		named.Name = name
	}
	r.named[name] = &named
	return &named, nil
}

func (r *typeResolver) resolveStruct(name string) (*TypeSpec, error) {
	key := "struct." + name
	if ts, ok := r.named[key]; ok {
		return ts, nil
	}
	st, ok := r.info.GetStructs()[name]
	if !ok {
		return nil, &TypeError{Name: name, Reason: "struct not declared"}
	}
	ts := &TypeSpec{Kind: KindStruct, Name: name}
	for _, m := range st.GetMembers() {
		mt, err := r.resolveData(m.GetTypeSpec())
		if err != nil {
			return nil, err
		}
		ts.Members = append(ts.Members, Member{Name: m.GetName(), Type: mt})
	}
	r.named[key] = ts
	return ts, nil
}

func (r *typeResolver) resolveHeader(name string) (*TypeSpec, error) {
	key := "header." + name
	if ts, ok := r.named[key]; ok {
		return ts, nil
	}
	h, ok := r.info.GetHeaders()[name]
	if !ok {
		return nil, &TypeError{Name: name, Reason: "header not declared"}
	}
	ts := &TypeSpec{Kind: KindHeader, Name: name}
	for _, m := range h.GetMembers() {
		mt, err := r.resolveBitstring(m.GetTypeSpec())
		if err != nil {
			return nil, err
		}
		ts.Members = append(ts.Members, Member{Name: m.GetName(), Type: mt})
	}
	r.named[key] = ts
	return ts, nil
}

func (r *typeResolver) resolveHeaderUnion(name string) (*TypeSpec, error) {
	key := "header_union." + name
	if ts, ok := r.named[key]; ok {
		return ts, nil
	}
	u, ok := r.info.GetHeaderUnions()[name]
	if !ok {
		return nil, &TypeError{Name: name, Reason: "header_union not declared"}
	}
	ts := &TypeSpec{Kind: KindHeaderUnion, Name: name}
	for _, m := range u.GetMembers() {
		ht, err := r.resolveHeader(m.GetHeader().GetName())
		if err != nil {
			return nil, err
		}
		ts.Members = append(ts.Members, Member{Name: m.GetName(), Type: ht})
	}
	r.named[key] = ts
	return ts, nil
}

func (r *typeResolver) resolveEnum(name string, serializable bool) (*TypeSpec, error) {
	if serializable {
		se, ok := r.info.GetSerializableEnums()[name]
		if !ok {
			return nil, &TypeError{Name: name, Reason: "serializable enum not declared"}
		}
		ts := &TypeSpec{Kind: KindSerializableEnum, Name: name, Bitwidth: int(se.GetUnderlyingType().GetBitwidth())}
		for _, m := range se.GetMembers() {
			ts.Enum = append(ts.Enum, EnumMember{Name: m.GetName(), Value: m.GetValue()})
		}
		return ts, nil
	}
	en, ok := r.info.GetEnums()[name]
	if !ok {
		return nil, &TypeError{Name: name, Reason: "enum not declared"}
	}
	ts := &TypeSpec{Kind: KindEnum, Name: name}
	for _, m := range en.GetMembers() {
		ts.Enum = append(ts.Enum, EnumMember{Name: m.GetName()})
	}
	return ts, nil
}

// EncodeData converts a Go value to a wire P4Data per the type spec.
//
// Accepted shapes: integers/addresses/strings for bitstrings (per the
// bitstr package), bool, []any for tuples and headers, map[string]any
// for structs, string member names for enums. Header unions, header
// stacks, header-union stacks and error values are not encoded; they
// yield a TypeError.
func (ts *TypeSpec) EncodeData(v any) (*p4v1.P4Data, error) {
	switch ts.Kind {
	case KindBits:
		b, err := bitstr.Encode(v, ts.Bitwidth)
		if err != nil {
			return nil, err
		}
		return &p4v1.P4Data{Data: &p4v1.P4Data_Bitstring{Bitstring: b}}, nil
	case KindSignedBits:
		i, ok := toInt64(v)
		if !ok {
			return nil, &TypeError{Name: ts.Name, Reason: fmt.Sprintf("cannot encode %T as int<%d>", v, ts.Bitwidth)}
		}
		b, err := bitstr.EncodeSigned(i, ts.Bitwidth)
		if err != nil {
			return nil, err
		}
		return &p4v1.P4Data{Data: &p4v1.P4Data_Bitstring{Bitstring: b}}, nil
	case KindVarbit:
		b, err := bitstr.Encode(v, ts.Bitwidth)
		if err != nil {
			return nil, err
		}
		return &p4v1.P4Data{Data: &p4v1.P4Data_Varbit{Varbit: &p4v1.P4Varbit{Bitstring: b, Bitwidth: int32(ts.Bitwidth)}}}, nil
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, &TypeError{Name: ts.Name, Reason: fmt.Sprintf("cannot encode %T as bool", v)}
		}
		return &p4v1.P4Data{Data: &p4v1.P4Data_Bool{Bool: b}}, nil
	case KindStruct:
		members, err := ts.encodeMembers(v)
		if err != nil {
			return nil, err
		}
		return &p4v1.P4Data{Data: &p4v1.P4Data_Struct{Struct: &p4v1.P4StructLike{Members: members}}}, nil
	case KindTuple:
		members, err := ts.encodeMembers(v)
		if err != nil {
			return nil, err
		}
		return &p4v1.P4Data{Data: &p4v1.P4Data_Tuple{Tuple: &p4v1.P4StructLike{Members: members}}}, nil
	case KindHeader:
		return ts.encodeHeader(v)
	case KindEnum:
		name, ok := v.(string)
		if !ok {
			return nil, &TypeError{Name: ts.Name, Reason: "enum value must be a member name"}
		}
		return &p4v1.P4Data{Data: &p4v1.P4Data_Enum{Enum: name}}, nil
	case KindSerializableEnum:
		b, err := ts.encodeEnumValue(v)
		if err != nil {
			return nil, err
		}
		return &p4v1.P4Data{Data: &p4v1.P4Data_EnumValue{EnumValue: b}}, nil
	default:
		return nil, &TypeError{Name: ts.Name, Reason: fmt.Sprintf("cannot encode %s values", ts.Kind)}
	}
}

func (ts *TypeSpec) encodeMembers(v any) ([]*p4v1.P4Data, error) {
	var out []*p4v1.P4Data
	switch vv := v.(type) {
	case map[string]any:
		for _, m := range ts.Members {
			mv, ok := vv[m.Name]
			if !ok {
				return nil, &TypeError{Name: ts.Name, Reason: fmt.Sprintf("missing member %q", m.Name)}
			}
			d, err := m.Type.EncodeData(mv)
			if err != nil {
				return nil, fmt.Errorf("member %q: %w", m.Name, err)
			}
			out = append(out, d)
		}
	case []any:
		if len(vv) != len(ts.Members) {
			return nil, &TypeError{Name: ts.Name, Reason: fmt.Sprintf("want %d members, got %d", len(ts.Members), len(vv))}
		}
		for i, m := range ts.Members {
			d, err := m.Type.EncodeData(vv[i])
			if err != nil {
				return nil, fmt.Errorf("member %q: %w", m.Name, err)
			}
			out = append(out, d)
		}
	default:
		return nil, &TypeError{Name: ts.Name, Reason: fmt.Sprintf("cannot encode %T as %s", v, ts.Kind)}
	}
	return out, nil
}

func (ts *TypeSpec) encodeHeader(v any) (*p4v1.P4Data, error) {
	vv, ok := v.([]any)
	if !ok {
		return nil, &TypeError{Name: ts.Name, Reason: "header value must be an ordered field list"}
	}
	if len(vv) != len(ts.Members) {
		return nil, lenError(ts, len(vv))
	}
	h := &p4v1.P4Header{IsValid: true}
	for i, m := range ts.Members {
		b, err := bitstr.Encode(vv[i], m.Type.Bitwidth)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", m.Name, err)
		}
		h.Bitstrings = append(h.Bitstrings, bitstr.Expand(b, m.Type.Bitwidth))
	}
	return &p4v1.P4Data{Data: &p4v1.P4Data_Header{Header: h}}, nil
}

func (ts *TypeSpec) encodeEnumValue(v any) ([]byte, error) {
	if name, ok := v.(string); ok {
		for _, m := range ts.Enum {
			if m.Name == name {
				return m.Value, nil
			}
		}
		return nil, &TypeError{Name: ts.Name, Reason: fmt.Sprintf("no enum member %q", name)}
	}
	return bitstr.Encode(v, ts.Bitwidth)
}

// DecodeData converts a wire P4Data back to a Go value: uint64/[]byte
// for bitstrings, bool, map[string]any for structs, []any for tuples
// and headers, member-name strings for enums. Header unions, header
// stacks, header-union stacks and error values are not decoded; they
// yield a TypeError.
func (ts *TypeSpec) DecodeData(d *p4v1.P4Data) (any, error) {
	switch ts.Kind {
	case KindBits:
		return bitstr.Decode(d.GetBitstring(), ts.Bitwidth, bitstr.Default)
	case KindSignedBits:
		return bitstr.DecodeSigned(d.GetBitstring(), ts.Bitwidth)
	case KindVarbit:
		return d.GetVarbit().GetBitstring(), nil
	case KindBool:
		return d.GetBool(), nil
	case KindStruct:
		return ts.decodeStructLike(d.GetStruct())
	case KindTuple:
		return ts.decodeTuple(d.GetTuple())
	case KindHeader:
		return ts.decodeHeader(d.GetHeader())
	case KindEnum:
		return d.GetEnum(), nil
	case KindSerializableEnum:
		b := d.GetEnumValue()
		for _, m := range ts.Enum {
			if bitstr.EqualBytes(m.Value, b) {
				return m.Name, nil
			}
		}
		return bitstr.Decode(b, ts.Bitwidth, bitstr.Default)
	default:
		return nil, &TypeError{Name: ts.Name, Reason: fmt.Sprintf("cannot decode %s values", ts.Kind)}
	}
}

func (ts *TypeSpec) decodeStructLike(s *p4v1.P4StructLike) (map[string]any, error) {
	members := s.GetMembers()
	if len(members) != len(ts.Members) {
		return nil, lenError(ts, len(members))
	}
	out := make(map[string]any, len(members))
	for i, m := range ts.Members {
		v, err := m.Type.DecodeData(members[i])
		if err != nil {
			return nil, fmt.Errorf("member %q: %w", m.Name, err)
		}
		out[m.Name] = v
	}
	return out, nil
}

func (ts *TypeSpec) decodeTuple(s *p4v1.P4StructLike) ([]any, error) {
	members := s.GetMembers()
	if len(members) != len(ts.Members) {
		return nil, lenError(ts, len(members))
	}
	out := make([]any, len(members))
	for i, m := range ts.Members {
		v, err := m.Type.DecodeData(members[i])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func (ts *TypeSpec) decodeHeader(h *p4v1.P4Header) ([]any, error) {
	bits := h.GetBitstrings()
	if len(bits) != len(ts.Members) {
		return nil, lenError(ts, len(bits))
	}
	out := make([]any, len(bits))
	for i, m := range ts.Members {
		v, err := bitstr.Decode(bits[i], m.Type.Bitwidth, bitstr.Default)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", m.Name, err)
		}
		out[i] = v
	}
	return out, nil
}

func toInt64(v any) (int64, bool) {
	switch x := v.(type) {
	case int:
		return int64(x), true
	case int8:
		return int64(x), true
	case int16:
		return int64(x), true
	case int32:
		return int64(x), true
	case int64:
		return x, true
	case uint8:
		return int64(x), true
	case uint16:
		return int64(x), true
	case uint32:
		return int64(x), true
	case uint64:
		return int64(x), true
	}
	return 0, false
}
