package schema

import (
	p4config "github.com/p4lang/p4runtime/go/p4/config/v1"

	"github.com/byllyfish/finsy/pkg/p4/bitstr"
)

// MatchType enumerates the P4Runtime match kinds.
type MatchType int

const (
	MatchUnspecified MatchType = iota
	MatchExact
	MatchLPM
	MatchTernary
	MatchRange
	MatchOptional
	MatchOther
)

func (m MatchType) String() string {
	switch m {
	case MatchExact:
		return "EXACT"
	case MatchLPM:
		return "LPM"
	case MatchTernary:
		return "TERNARY"
	case MatchRange:
		return "RANGE"
	case MatchOptional:
		return "OPTIONAL"
	case MatchOther:
		return "OTHER"
	}
	return "UNSPECIFIED"
}

func matchTypeOf(pb *p4config.MatchField) MatchType {
	switch t := pb.GetMatch().(type) {
	case *p4config.MatchField_MatchType_:
		switch t.MatchType {
		case p4config.MatchField_EXACT:
			return MatchExact
		case p4config.MatchField_LPM:
			return MatchLPM
		case p4config.MatchField_TERNARY:
			return MatchTernary
		case p4config.MatchField_RANGE:
			return MatchRange
		case p4config.MatchField_OPTIONAL:
			return MatchOptional
		}
	case *p4config.MatchField_OtherMatchType:
		return MatchOther
	}
	return MatchUnspecified
}

// MatchField is one key field of a table or value set.
type MatchField struct {
	ID        uint32
	Name      string
	Bitwidth  int
	MatchType MatchType

	annotations []Annotation
	hint        formatHint
}

func newMatchField(pb *p4config.MatchField) *MatchField {
	ann := parseAnnotations(pb.GetAnnotations())
	return &MatchField{
		ID:          pb.GetId(),
		Name:        pb.GetName(),
		Bitwidth:    int(pb.GetBitwidth()),
		MatchType:   matchTypeOf(pb),
		annotations: ann,
		hint:        formatOf(ann),
	}
}

// Annotations returns the parsed source annotations of the field.
func (f *MatchField) Annotations() []Annotation { return f.annotations }

// DecodeFormat is the preferred decode form per the field's @format
// annotation.
func (f *MatchField) DecodeFormat() bitstr.Format {
	switch f.hint {
	case hintAddress:
		return bitstr.Address
	case hintHex:
		return bitstr.Hex
	}
	return bitstr.Default
}

// ActionScope restricts where an action may be used within a table.
type ActionScope int

const (
	ScopeTableAndDefault ActionScope = iota
	ScopeTableOnly
	ScopeDefaultOnly
)

// ActionRef is an admissible action of a table.
type ActionRef struct {
	ID    uint32
	Scope ActionScope
}

// Table is the schema view of one P4 table.
type Table struct {
	ID                  uint32
	Name                string
	Alias               string
	Size                int64
	ConstDefaultAction  uint32
	ImplementationID    uint32
	DirectResourceIDs   []uint32
	IdleNotify          bool
	IsConst             bool
	HasInitialEntries   bool
	MatchFields         []*MatchField
	ActionRefs          []ActionRef

	fieldsByName map[string]*MatchField
}

func newTable(pb *p4config.Table) *Table {
	t := &Table{
		ID:                 pb.GetPreamble().GetId(),
		Name:               pb.GetPreamble().GetName(),
		Alias:              pb.GetPreamble().GetAlias(),
		Size:               pb.GetSize(),
		ConstDefaultAction: pb.GetConstDefaultActionId(),
		ImplementationID:   pb.GetImplementationId(),
		DirectResourceIDs:  pb.GetDirectResourceIds(),
		IdleNotify:         pb.GetIdleTimeoutBehavior() == p4config.Table_NOTIFY_CONTROL,
		IsConst:            pb.GetIsConstTable(),
		HasInitialEntries:  pb.GetHasInitialEntries(),
		fieldsByName:       make(map[string]*MatchField),
	}
	for _, f := range pb.GetMatchFields() {
		mf := newMatchField(f)
		t.MatchFields = append(t.MatchFields, mf)
		t.fieldsByName[mf.Name] = mf
		if short := shortName(mf.Name); short != mf.Name {
			if _, ok := t.fieldsByName[short]; !ok {
				t.fieldsByName[short] = mf
			}
		}
	}
	for _, ar := range pb.GetActionRefs() {
		scope := ScopeTableAndDefault
		switch ar.GetScope() {
		case p4config.ActionRef_TABLE_ONLY:
			scope = ScopeTableOnly
		case p4config.ActionRef_DEFAULT_ONLY:
			scope = ScopeDefaultOnly
		}
		t.ActionRefs = append(t.ActionRefs, ActionRef{ID: ar.GetId(), Scope: scope})
	}
	return t
}

// MatchField returns the field with the given name, accepting both the
// fully-qualified name and its last dotted component.
func (t *Table) MatchField(name string) (*MatchField, error) {
	if f, ok := t.fieldsByName[name]; ok {
		return f, nil
	}
	return nil, &NotFoundError{Kind: "match field", Key: t.Name + "." + name}
}

// HasAction reports whether the action id is admissible for the table.
func (t *Table) HasAction(id uint32) bool {
	for _, ar := range t.ActionRefs {
		if ar.ID == id {
			return true
		}
	}
	return false
}

// IsIndirect reports whether the table is backed by an action profile.
func (t *Table) IsIndirect() bool { return t.ImplementationID != 0 }

// NeedsPriority reports whether entries require a priority: true when
// any field matches TERNARY, RANGE or OPTIONAL.
func (t *Table) NeedsPriority() bool {
	for _, f := range t.MatchFields {
		switch f.MatchType {
		case MatchTernary, MatchRange, MatchOptional:
			return true
		}
	}
	return false
}

// ActionParam is one parameter of an action.
type ActionParam struct {
	ID       uint32
	Name     string
	Bitwidth int

	hint formatHint
}

// DecodeFormat is the preferred decode form of the parameter.
func (p *ActionParam) DecodeFormat() bitstr.Format {
	if p.hint == hintAddress {
		return bitstr.Address
	}
	return bitstr.Default
}

// Action is the schema view of one P4 action.
type Action struct {
	ID     uint32
	Name   string
	Alias  string
	Params []*ActionParam

	paramsByName map[string]*ActionParam
}

func newAction(pb *p4config.Action) *Action {
	a := &Action{
		ID:           pb.GetPreamble().GetId(),
		Name:         pb.GetPreamble().GetName(),
		Alias:        pb.GetPreamble().GetAlias(),
		paramsByName: make(map[string]*ActionParam),
	}
	for _, p := range pb.GetParams() {
		ann := parseAnnotations(p.GetAnnotations())
		ap := &ActionParam{
			ID:       p.GetId(),
			Name:     p.GetName(),
			Bitwidth: int(p.GetBitwidth()),
			hint:     formatOf(ann),
		}
		a.Params = append(a.Params, ap)
		a.paramsByName[ap.Name] = ap
	}
	return a
}

// Param returns the named parameter.
func (a *Action) Param(name string) (*ActionParam, bool) {
	p, ok := a.paramsByName[name]
	return p, ok
}

// ParamByID returns the parameter with the given id.
func (a *Action) ParamByID(id uint32) (*ActionParam, bool) {
	for _, p := range a.Params {
		if p.ID == id {
			return p, true
		}
	}
	return nil, false
}

// ActionProfile is the schema view of one action profile or selector.
type ActionProfile struct {
	ID              uint32
	Name            string
	Alias           string
	TableIDs        []uint32
	WithSelector    bool
	Size            int64
	MaxGroupSize    int32
	MaxMemberWeight int32 // 0 unless sum-of-members semantics
}

func newActionProfile(pb *p4config.ActionProfile) *ActionProfile {
	ap := &ActionProfile{
		ID:           pb.GetPreamble().GetId(),
		Name:         pb.GetPreamble().GetName(),
		Alias:        pb.GetPreamble().GetAlias(),
		TableIDs:     pb.GetTableIds(),
		WithSelector: pb.GetWithSelector(),
		Size:         pb.GetSize(),
		MaxGroupSize: pb.GetMaxGroupSize(),
	}
	if som := pb.GetSumOfMembers(); som != nil {
		ap.MaxMemberWeight = som.GetMaxMemberWeight()
	}
	return ap
}

// CounterUnit mirrors the P4Info counter/meter unit.
type CounterUnit int

const (
	UnitUnspecified CounterUnit = iota
	UnitBytes
	UnitPackets
	UnitBoth
)

// Counter is an indexed counter array.
type Counter struct {
	ID    uint32
	Name  string
	Alias string
	Unit  CounterUnit
	Size  int64
}

// DirectCounter is a per-entry counter attached to a table.
type DirectCounter struct {
	ID      uint32
	Name    string
	Alias   string
	Unit    CounterUnit
	TableID uint32
}

// Meter is an indexed meter array.
type Meter struct {
	ID    uint32
	Name  string
	Alias string
	Unit  CounterUnit
	Size  int64
}

// DirectMeter is a per-entry meter attached to a table.
type DirectMeter struct {
	ID      uint32
	Name    string
	Alias   string
	Unit    CounterUnit
	TableID uint32
}

func counterUnit(u p4config.CounterSpec_Unit) CounterUnit {
	switch u {
	case p4config.CounterSpec_BYTES:
		return UnitBytes
	case p4config.CounterSpec_PACKETS:
		return UnitPackets
	case p4config.CounterSpec_BOTH:
		return UnitBoth
	}
	return UnitUnspecified
}

func meterUnit(u p4config.MeterSpec_Unit) CounterUnit {
	switch u {
	case p4config.MeterSpec_BYTES:
		return UnitBytes
	case p4config.MeterSpec_PACKETS:
		return UnitPackets
	}
	return UnitUnspecified
}

// MetadataField is one field of a controller packet metadata header.
type MetadataField struct {
	ID       uint32
	Name     string
	Bitwidth int
}

// ControllerPacketMetadata describes the packet_in or packet_out
// metadata header.
type ControllerPacketMetadata struct {
	ID     uint32
	Name   string // "packet_in" or "packet_out"
	Fields []*MetadataField

	byName map[string]*MetadataField
}

func newControllerPacketMetadata(pb *p4config.ControllerPacketMetadata) *ControllerPacketMetadata {
	cpm := &ControllerPacketMetadata{
		ID:     pb.GetPreamble().GetId(),
		Name:   pb.GetPreamble().GetAlias(),
		byName: make(map[string]*MetadataField),
	}
	if cpm.Name == "" {
		cpm.Name = pb.GetPreamble().GetName()
	}
	for _, m := range pb.GetMetadata() {
		mf := &MetadataField{ID: m.GetId(), Name: m.GetName(), Bitwidth: int(m.GetBitwidth())}
		cpm.Fields = append(cpm.Fields, mf)
		cpm.byName[mf.Name] = mf
	}
	return cpm
}

// Field returns the named metadata field.
func (c *ControllerPacketMetadata) Field(name string) (*MetadataField, bool) {
	f, ok := c.byName[name]
	return f, ok
}

// Digest describes a digest declaration and its struct type.
type Digest struct {
	ID    uint32
	Name  string
	Alias string
	Type  *TypeSpec
}

// Register describes a register array.
type Register struct {
	ID    uint32
	Name  string
	Alias string
	Type  *TypeSpec
	Size  int32
}

// ValueSet describes a parser value set.
type ValueSet struct {
	ID     uint32
	Name   string
	Alias  string
	Size   int32
	Fields []*MatchField

	fieldsByName map[string]*MatchField
}

// Field returns the named value-set match field.
func (v *ValueSet) Field(name string) (*MatchField, error) {
	if f, ok := v.fieldsByName[name]; ok {
		return f, nil
	}
	return nil, &NotFoundError{Kind: "value set field", Key: v.Name + "." + name}
}

// ExternInstance is one instance of an arch-specific extern.
type ExternInstance struct {
	ID   uint32
	Name string
}

// Extern groups the instances of one extern type.
type Extern struct {
	TypeID    uint32
	TypeName  string
	Instances []*ExternInstance
}

// shortName returns the last dotted component of a P4 name.
func shortName(name string) string {
	for i := len(name) - 1; i >= 0; i-- {
		if name[i] == '.' {
			return name[i+1:]
		}
	}
	return name
}
