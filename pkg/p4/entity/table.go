package entity

import (
	"fmt"
	"net/netip"
	"strconv"
	"strings"

	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"

	"github.com/byllyfish/finsy/pkg/p4/bitstr"
	"github.com/byllyfish/finsy/pkg/p4/schema"
)

// LPM is an explicit longest-prefix match value. Plain netip.Prefix and
// "value/len" strings are also accepted in a TableMatch.
type LPM struct {
	Value     any
	PrefixLen int
}

// Ternary is a value/mask match. A plain scalar on a ternary field is
// treated as an exact value (all-ones mask).
type Ternary struct {
	Value any
	Mask  any
}

// Range is a low/high match.
type Range struct {
	Low  any
	High any
}

// Optional is an explicit optional-match value. A plain scalar on an
// optional field is equivalent.
type Optional struct {
	Value any
}

// TableMatch maps match-field names to values. The field's declared
// match type and bitwidth drive encoding; wildcards are expressed by
// omitting the field. Don't-care values (LPM /0, all-zero ternary
// masks) normalize to omission on encode.
type TableMatch map[string]any

func (m TableMatch) encode(t *schema.Table) ([]*p4v1.FieldMatch, error) {
	var out []*p4v1.FieldMatch
	// Encode in declared field order for a stable wire form.
	for _, f := range t.MatchFields {
		v, ok := m[f.Name]
		if !ok {
			if v, ok = m[shortOf(f.Name)]; !ok {
				continue
			}
		}
		fm, err := encodeFieldMatch(f, v)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", f.Name, err)
		}
		if fm != nil {
			out = append(out, fm)
		}
	}
	// Reject names that did not resolve to any declared field.
	for name := range m {
		if _, err := t.MatchField(name); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func shortOf(name string) string {
	if i := strings.LastIndexByte(name, '.'); i >= 0 {
		return name[i+1:]
	}
	return name
}

func encodeFieldMatch(f *schema.MatchField, v any) (*p4v1.FieldMatch, error) {
	switch f.MatchType {
	case schema.MatchExact:
		b, err := bitstr.EncodeExact(v, f.Bitwidth)
		if err != nil {
			return nil, err
		}
		return &p4v1.FieldMatch{
			FieldId:         f.ID,
			FieldMatchType:  &p4v1.FieldMatch_Exact_{Exact: &p4v1.FieldMatch_Exact{Value: b}},
		}, nil

	case schema.MatchLPM:
		value, plen, err := lpmOf(f, v)
		if err != nil {
			return nil, err
		}
		if bitstr.IsDontCareLPM(plen) {
			return nil, nil // wildcard
		}
		return &p4v1.FieldMatch{
			FieldId:        f.ID,
			FieldMatchType: &p4v1.FieldMatch_Lpm{Lpm: &p4v1.FieldMatch_LPM{Value: value, PrefixLen: plen}},
		}, nil

	case schema.MatchTernary:
		tv, ok := v.(Ternary)
		if !ok {
			tv = Ternary{Value: v, Mask: allOnes(f.Bitwidth)}
		}
		value, mask, err := bitstr.EncodeTernary(tv.Value, tv.Mask, f.Bitwidth)
		if err != nil {
			return nil, err
		}
		if bitstr.IsDontCareTernary(mask) {
			return nil, nil // wildcard
		}
		return &p4v1.FieldMatch{
			FieldId:        f.ID,
			FieldMatchType: &p4v1.FieldMatch_Ternary_{Ternary: &p4v1.FieldMatch_Ternary{Value: value, Mask: mask}},
		}, nil

	case schema.MatchRange:
		rv, ok := v.(Range)
		if !ok {
			return nil, fmt.Errorf("range field needs a Range value, got %T", v)
		}
		lo, hi, err := bitstr.EncodeRange(rv.Low, rv.High, f.Bitwidth)
		if err != nil {
			return nil, err
		}
		return &p4v1.FieldMatch{
			FieldId:        f.ID,
			FieldMatchType: &p4v1.FieldMatch_Range_{Range: &p4v1.FieldMatch_Range{Low: lo, High: hi}},
		}, nil

	case schema.MatchOptional:
		if ov, ok := v.(Optional); ok {
			v = ov.Value
		}
		if v == nil {
			return nil, nil // absent = wildcard
		}
		b, err := bitstr.EncodeOptional(v, f.Bitwidth)
		if err != nil {
			return nil, err
		}
		return &p4v1.FieldMatch{
			FieldId:        f.ID,
			FieldMatchType: &p4v1.FieldMatch_Optional_{Optional: &p4v1.FieldMatch_Optional{Value: b}},
		}, nil

	default:
		return nil, fmt.Errorf("unsupported match type %s", f.MatchType)
	}
}

func lpmOf(f *schema.MatchField, v any) ([]byte, int32, error) {
	switch lv := v.(type) {
	case LPM:
		return bitstr.EncodeLPM(lv.Value, lv.PrefixLen, f.Bitwidth)
	case netip.Prefix:
		return bitstr.EncodeLPM(lv, 0, f.Bitwidth)
	case string:
		if i := strings.LastIndexByte(lv, '/'); i >= 0 {
			plen, err := strconv.Atoi(lv[i+1:])
			if err != nil {
				return nil, 0, fmt.Errorf("invalid prefix length in %q", lv)
			}
			return bitstr.EncodeLPM(lv[:i], plen, f.Bitwidth)
		}
		// No prefix: an exact-length match.
		return bitstr.EncodeLPM(lv, f.Bitwidth, f.Bitwidth)
	default:
		return bitstr.EncodeLPM(v, f.Bitwidth, f.Bitwidth)
	}
}

// allOnes builds a full mask for the bitwidth.
func allOnes(bitwidth int) []byte {
	n := (bitwidth + 7) / 8
	out := make([]byte, n)
	for i := range out {
		out[i] = 0xFF
	}
	out[0] >>= uint(n*8 - bitwidth)
	return out
}

func decodeMatch(t *schema.Table, fms []*p4v1.FieldMatch) (TableMatch, error) {
	if len(fms) == 0 {
		return nil, nil
	}
	m := make(TableMatch, len(fms))
	for _, fm := range fms {
		var field *schema.MatchField
		for _, f := range t.MatchFields {
			if f.ID == fm.GetFieldId() {
				field = f
				break
			}
		}
		if field == nil {
			return nil, fmt.Errorf("table %q: unknown field id %d", t.Name, fm.GetFieldId())
		}
		v, err := decodeFieldMatch(field, fm)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", field.Name, err)
		}
		m[field.Name] = v
	}
	return m, nil
}

func decodeFieldMatch(f *schema.MatchField, fm *p4v1.FieldMatch) (any, error) {
	switch w := fm.GetFieldMatchType().(type) {
	case *p4v1.FieldMatch_Exact_:
		return bitstr.Decode(w.Exact.GetValue(), f.Bitwidth, f.DecodeFormat())
	case *p4v1.FieldMatch_Lpm:
		v, err := bitstr.Decode(w.Lpm.GetValue(), f.Bitwidth, f.DecodeFormat())
		if err != nil {
			return nil, err
		}
		if addr, ok := v.(netip.Addr); ok {
			return netip.PrefixFrom(addr, int(w.Lpm.GetPrefixLen())), nil
		}
		return LPM{Value: v, PrefixLen: int(w.Lpm.GetPrefixLen())}, nil
	case *p4v1.FieldMatch_Ternary_:
		v, err := bitstr.Decode(w.Ternary.GetValue(), f.Bitwidth, f.DecodeFormat())
		if err != nil {
			return nil, err
		}
		mask, err := bitstr.Decode(w.Ternary.GetMask(), f.Bitwidth, bitstr.Default)
		if err != nil {
			return nil, err
		}
		return Ternary{Value: v, Mask: mask}, nil
	case *p4v1.FieldMatch_Range_:
		lo, err := bitstr.Decode(w.Range.GetLow(), f.Bitwidth, f.DecodeFormat())
		if err != nil {
			return nil, err
		}
		hi, err := bitstr.Decode(w.Range.GetHigh(), f.Bitwidth, f.DecodeFormat())
		if err != nil {
			return nil, err
		}
		return Range{Low: lo, High: hi}, nil
	case *p4v1.FieldMatch_Optional_:
		return bitstr.Decode(w.Optional.GetValue(), f.Bitwidth, f.DecodeFormat())
	default:
		return nil, fmt.Errorf("unsupported wire match %T", w)
	}
}

// TableActionValue is either a direct TableAction or an IndirectAction.
type TableActionValue interface {
	isTableAction()
}

// TableAction binds an action name to parameter values by name.
type TableAction struct {
	Name   string
	Params map[string]any
}

func (*TableAction) isTableAction() {}

// NewAction builds a TableAction. params may be nil for zero-argument
// actions and wildcard reads.
func NewAction(name string, params map[string]any) *TableAction {
	return &TableAction{Name: name, Params: params}
}

func (a *TableAction) encode(s *schema.Schema, write bool) (*p4v1.Action, error) {
	act, err := s.Action(a.Name)
	if err != nil {
		return nil, err
	}
	for name := range a.Params {
		if _, ok := act.Param(name); !ok {
			return nil, &UnknownParameterError{Context: a.Name, Param: name}
		}
	}
	wire := &p4v1.Action{ActionId: act.ID}
	for _, p := range act.Params {
		v, ok := a.Params[p.Name]
		if !ok {
			if write {
				return nil, &MissingParameterError{Context: a.Name, Param: p.Name}
			}
			continue
		}
		b, err := bitstr.Encode(v, p.Bitwidth)
		if err != nil {
			return nil, fmt.Errorf("action %q param %q: %w", a.Name, p.Name, err)
		}
		wire.Params = append(wire.Params, &p4v1.Action_Param{ParamId: p.ID, Value: b})
	}
	return wire, nil
}

func decodeAction(pb *p4v1.Action, s *schema.Schema) (*TableAction, error) {
	act, err := s.Action(pb.GetActionId())
	if err != nil {
		return nil, err
	}
	ta := &TableAction{Name: act.Alias}
	if ta.Name == "" {
		ta.Name = act.Name
	}
	if len(pb.GetParams()) > 0 {
		ta.Params = make(map[string]any, len(pb.GetParams()))
	}
	for _, wp := range pb.GetParams() {
		p, ok := act.ParamByID(wp.GetParamId())
		if !ok {
			return nil, fmt.Errorf("action %q: unknown param id %d", ta.Name, wp.GetParamId())
		}
		v, err := bitstr.Decode(wp.GetValue(), p.Bitwidth, p.DecodeFormat())
		if err != nil {
			return nil, err
		}
		ta.Params[p.Name] = v
	}
	return ta, nil
}

// WeightedAction is one entry of a one-shot action set.
type WeightedAction struct {
	Weight    int32
	WatchPort []byte
	Action    *TableAction
}

// Weighted builds a WeightedAction without a watch port.
func Weighted(weight int32, action *TableAction) WeightedAction {
	return WeightedAction{Weight: weight, Action: action}
}

// WeightedWatch builds a WeightedAction with a watch port.
func WeightedWatch(weight int32, watchPort []byte, action *TableAction) WeightedAction {
	return WeightedAction{Weight: weight, WatchPort: watchPort, Action: action}
}

// IndirectAction references an action-profile member or group, or
// carries an inline one-shot action set.
type IndirectAction struct {
	MemberID  uint32
	GroupID   uint32
	ActionSet []WeightedAction
}

func (*IndirectAction) isTableAction() {}

// OneShot wraps actions into an inline action set.
func OneShot(actions ...WeightedAction) *IndirectAction {
	return &IndirectAction{ActionSet: actions}
}

func (ia *IndirectAction) encode(s *schema.Schema) (*p4v1.TableAction, error) {
	set := 0
	if ia.MemberID != 0 {
		set++
	}
	if ia.GroupID != 0 {
		set++
	}
	if len(ia.ActionSet) > 0 {
		set++
	}
	if set > 1 {
		return nil, &IncompleteError{Entity: "indirect action", Reason: "member, group and one-shot are mutually exclusive"}
	}
	switch {
	case ia.MemberID != 0:
		return &p4v1.TableAction{Type: &p4v1.TableAction_ActionProfileMemberId{ActionProfileMemberId: ia.MemberID}}, nil
	case ia.GroupID != 0:
		return &p4v1.TableAction{Type: &p4v1.TableAction_ActionProfileGroupId{ActionProfileGroupId: ia.GroupID}}, nil
	default:
		aps := &p4v1.ActionProfileActionSet{}
		for _, wa := range ia.ActionSet {
			if wa.Action == nil {
				return nil, &IncompleteError{Entity: "one-shot action set", Reason: "weighted action without action"}
			}
			if wa.Weight <= 0 {
				return nil, &IncompleteError{Entity: "one-shot action set", Reason: fmt.Sprintf("invalid weight %d", wa.Weight)}
			}
			act, err := wa.Action.encode(s, true)
			if err != nil {
				return nil, err
			}
			apa := &p4v1.ActionProfileAction{Action: act, Weight: wa.Weight}
			if len(wa.WatchPort) > 0 {
				apa.WatchKind = &p4v1.ActionProfileAction_WatchPort{WatchPort: wa.WatchPort}
			}
			aps.ActionProfileActions = append(aps.ActionProfileActions, apa)
		}
		return &p4v1.TableAction{Type: &p4v1.TableAction_ActionProfileActionSet{ActionProfileActionSet: aps}}, nil
	}
}

// MeterConfig mirrors the wire meter configuration.
type MeterConfig struct {
	CIR    int64
	CBurst int64
	PIR    int64
	PBurst int64
}

func (mc *MeterConfig) wire() *p4v1.MeterConfig {
	if mc == nil {
		return nil
	}
	return &p4v1.MeterConfig{Cir: mc.CIR, Cburst: mc.CBurst, Pir: mc.PIR, Pburst: mc.PBurst}
}

func meterConfigOf(pb *p4v1.MeterConfig) *MeterConfig {
	if pb == nil {
		return nil
	}
	return &MeterConfig{CIR: pb.GetCir(), CBurst: pb.GetCburst(), PIR: pb.GetPir(), PBurst: pb.GetPburst()}
}

// CounterData mirrors wire counter data.
type CounterData struct {
	ByteCount   int64
	PacketCount int64
}

func (cd *CounterData) wire() *p4v1.CounterData {
	if cd == nil {
		return nil
	}
	return &p4v1.CounterData{ByteCount: cd.ByteCount, PacketCount: cd.PacketCount}
}

func counterDataOf(pb *p4v1.CounterData) *CounterData {
	if pb == nil {
		return nil
	}
	return &CounterData{ByteCount: pb.GetByteCount(), PacketCount: pb.GetPacketCount()}
}

// MeterCounterData carries per-color counters.
type MeterCounterData struct {
	Green  *CounterData
	Yellow *CounterData
	Red    *CounterData
}

func (md *MeterCounterData) wire() *p4v1.MeterCounterData {
	if md == nil {
		return nil
	}
	return &p4v1.MeterCounterData{Green: md.Green.wire(), Yellow: md.Yellow.wire(), Red: md.Red.wire()}
}

func meterCounterDataOf(pb *p4v1.MeterCounterData) *MeterCounterData {
	if pb == nil {
		return nil
	}
	return &MeterCounterData{
		Green:  counterDataOf(pb.GetGreen()),
		Yellow: counterDataOf(pb.GetYellow()),
		Red:    counterDataOf(pb.GetRed()),
	}
}

// TableEntry is the typed view of one table entry. A zero Table name
// makes a read a wildcard across all tables.
type TableEntry struct {
	Table    string
	Match    TableMatch
	Action   TableActionValue
	Priority int32

	IsDefaultAction  bool
	IdleTimeoutNs    int64
	TimeSinceLastHit bool  // request elapsed time on read
	ElapsedNs        int64 // set on decode when present

	MeterConfig      *MeterConfig
	CounterData      *CounterData
	MeterCounterData *MeterCounterData
	Metadata         []byte
}

func (e *TableEntry) encode(s *schema.Schema, write bool) (*p4v1.Entity, error) {
	wire := &p4v1.TableEntry{}
	if e.Table == "" {
		if write {
			return nil, &IncompleteError{Entity: "table entry", Reason: "missing table name"}
		}
		return &p4v1.Entity{Entity: &p4v1.Entity_TableEntry{TableEntry: wire}}, nil
	}
	t, err := s.Table(e.Table)
	if err != nil {
		return nil, err
	}
	wire.TableId = t.ID

	if e.IsDefaultAction && len(e.Match) > 0 {
		return nil, &IncompleteError{Entity: "table entry", Reason: "default action entry cannot carry a match"}
	}
	match, err := e.Match.encode(t)
	if err != nil {
		return nil, err
	}
	wire.Match = match

	if e.Action != nil {
		ta, err := encodeTableAction(e.Action, t, s, write)
		if err != nil {
			return nil, err
		}
		wire.Action = ta
	}

	if write {
		if err := checkPriority(t, match, e.Priority); err != nil {
			return nil, err
		}
	}
	wire.Priority = e.Priority
	wire.IsDefaultAction = e.IsDefaultAction
	wire.IdleTimeoutNs = e.IdleTimeoutNs
	wire.Metadata = e.Metadata
	wire.MeterConfig = e.MeterConfig.wire()
	wire.CounterData = e.CounterData.wire()
	wire.MeterCounterData = e.MeterCounterData.wire()
	if e.TimeSinceLastHit {
		wire.TimeSinceLastHit = &p4v1.TableEntry_IdleTimeout{}
	}
	return &p4v1.Entity{Entity: &p4v1.Entity_TableEntry{TableEntry: wire}}, nil
}

// encodeTableAction promotes a plain action on an indirect table to a
// one-shot of a single weight-1 action.
func encodeTableAction(v TableActionValue, t *schema.Table, s *schema.Schema, write bool) (*p4v1.TableAction, error) {
	switch a := v.(type) {
	case *TableAction:
		if t.IsIndirect() {
			return (&IndirectAction{ActionSet: []WeightedAction{{Weight: 1, Action: a}}}).encode(s)
		}
		act, err := a.encode(s, write)
		if err != nil {
			return nil, err
		}
		return &p4v1.TableAction{Type: &p4v1.TableAction_Action{Action: act}}, nil
	case *IndirectAction:
		if !t.IsIndirect() && (a.MemberID != 0 || a.GroupID != 0 || len(a.ActionSet) > 0) {
			return nil, &IncompleteError{Entity: "table entry", Reason: fmt.Sprintf("table %q is not indirect", t.Name)}
		}
		return a.encode(s)
	default:
		return nil, fmt.Errorf("unsupported table action %T", v)
	}
}

// checkPriority enforces the priority rule: required exactly when a
// ternary, range or optional field is present in the encoded match.
func checkPriority(t *schema.Table, match []*p4v1.FieldMatch, priority int32) error {
	needs := false
	for _, fm := range match {
		switch fm.GetFieldMatchType().(type) {
		case *p4v1.FieldMatch_Ternary_, *p4v1.FieldMatch_Range_, *p4v1.FieldMatch_Optional_:
			needs = true
		}
	}
	if needs && priority <= 0 {
		return &IncompleteError{Entity: "table entry", Reason: fmt.Sprintf("table %q requires a priority", t.Name)}
	}
	if !needs && priority != 0 {
		return &IncompleteError{Entity: "table entry", Reason: fmt.Sprintf("table %q does not accept a priority", t.Name)}
	}
	return nil
}

func decodeTableEntry(pb *p4v1.TableEntry, s *schema.Schema) (*TableEntry, error) {
	e := &TableEntry{}
	if pb.GetTableId() == 0 {
		return e, nil
	}
	t, err := s.Table(pb.GetTableId())
	if err != nil {
		return nil, err
	}
	e.Table = t.Alias
	if e.Table == "" {
		e.Table = t.Name
	}
	if e.Match, err = decodeMatch(t, pb.GetMatch()); err != nil {
		return nil, err
	}
	if pb.GetAction() != nil {
		if e.Action, err = decodeTableAction(pb.GetAction(), s); err != nil {
			return nil, err
		}
	}
	e.Priority = pb.GetPriority()
	e.IsDefaultAction = pb.GetIsDefaultAction()
	e.IdleTimeoutNs = pb.GetIdleTimeoutNs()
	e.Metadata = pb.GetMetadata()
	e.MeterConfig = meterConfigOf(pb.GetMeterConfig())
	e.CounterData = counterDataOf(pb.GetCounterData())
	e.MeterCounterData = meterCounterDataOf(pb.GetMeterCounterData())
	if ts := pb.GetTimeSinceLastHit(); ts != nil {
		e.TimeSinceLastHit = true
		e.ElapsedNs = ts.GetElapsedNs()
	}
	return e, nil
}

func decodeTableAction(pb *p4v1.TableAction, s *schema.Schema) (TableActionValue, error) {
	switch w := pb.GetType().(type) {
	case *p4v1.TableAction_Action:
		return decodeAction(w.Action, s)
	case *p4v1.TableAction_ActionProfileMemberId:
		return &IndirectAction{MemberID: w.ActionProfileMemberId}, nil
	case *p4v1.TableAction_ActionProfileGroupId:
		return &IndirectAction{GroupID: w.ActionProfileGroupId}, nil
	case *p4v1.TableAction_ActionProfileActionSet:
		ia := &IndirectAction{}
		for _, apa := range w.ActionProfileActionSet.GetActionProfileActions() {
			act, err := decodeAction(apa.GetAction(), s)
			if err != nil {
				return nil, err
			}
			wa := WeightedAction{Weight: apa.GetWeight(), Action: act}
			if wp, ok := apa.GetWatchKind().(*p4v1.ActionProfileAction_WatchPort); ok {
				wa.WatchPort = wp.WatchPort
			}
			ia.ActionSet = append(ia.ActionSet, wa)
		}
		return ia, nil
	default:
		return nil, fmt.Errorf("unsupported wire action %T", w)
	}
}

// ActionProfileMember is one member of an action profile.
type ActionProfileMember struct {
	Profile  string
	MemberID uint32
	Action   *TableAction
}

func (m *ActionProfileMember) encode(s *schema.Schema, write bool) (*p4v1.Entity, error) {
	wire := &p4v1.ActionProfileMember{MemberId: m.MemberID}
	if m.Profile != "" {
		ap, err := s.ActionProfile(m.Profile)
		if err != nil {
			return nil, err
		}
		wire.ActionProfileId = ap.ID
	} else if write {
		return nil, &IncompleteError{Entity: "action profile member", Reason: "missing profile name"}
	}
	if m.Action != nil {
		act, err := m.Action.encode(s, write)
		if err != nil {
			return nil, err
		}
		wire.Action = act
	}
	return &p4v1.Entity{Entity: &p4v1.Entity_ActionProfileMember{ActionProfileMember: wire}}, nil
}

func decodeActionProfileMember(pb *p4v1.ActionProfileMember, s *schema.Schema) (*ActionProfileMember, error) {
	m := &ActionProfileMember{MemberID: pb.GetMemberId()}
	if pb.GetActionProfileId() != 0 {
		ap, err := s.ActionProfile(pb.GetActionProfileId())
		if err != nil {
			return nil, err
		}
		m.Profile = ap.Alias
		if m.Profile == "" {
			m.Profile = ap.Name
		}
	}
	if pb.GetAction() != nil {
		act, err := decodeAction(pb.GetAction(), s)
		if err != nil {
			return nil, err
		}
		m.Action = act
	}
	return m, nil
}

// GroupMember references a member within an ActionProfileGroup.
type GroupMember struct {
	MemberID  uint32
	Weight    int32
	WatchPort []byte
}

// ActionProfileGroup is one selector group.
type ActionProfileGroup struct {
	Profile string
	GroupID uint32
	MaxSize int32
	Members []GroupMember
}

func (g *ActionProfileGroup) encode(s *schema.Schema, write bool) (*p4v1.Entity, error) {
	wire := &p4v1.ActionProfileGroup{GroupId: g.GroupID, MaxSize: g.MaxSize}
	if g.Profile != "" {
		ap, err := s.ActionProfile(g.Profile)
		if err != nil {
			return nil, err
		}
		wire.ActionProfileId = ap.ID
	} else if write {
		return nil, &IncompleteError{Entity: "action profile group", Reason: "missing profile name"}
	}
	for _, m := range g.Members {
		wm := &p4v1.ActionProfileGroup_Member{MemberId: m.MemberID, Weight: m.Weight}
		if len(m.WatchPort) > 0 {
			wm.WatchKind = &p4v1.ActionProfileGroup_Member_WatchPort{WatchPort: m.WatchPort}
		}
		wire.Members = append(wire.Members, wm)
	}
	return &p4v1.Entity{Entity: &p4v1.Entity_ActionProfileGroup{ActionProfileGroup: wire}}, nil
}

func decodeActionProfileGroup(pb *p4v1.ActionProfileGroup, s *schema.Schema) (*ActionProfileGroup, error) {
	g := &ActionProfileGroup{GroupID: pb.GetGroupId(), MaxSize: pb.GetMaxSize()}
	if pb.GetActionProfileId() != 0 {
		ap, err := s.ActionProfile(pb.GetActionProfileId())
		if err != nil {
			return nil, err
		}
		g.Profile = ap.Alias
		if g.Profile == "" {
			g.Profile = ap.Name
		}
	}
	for _, wm := range pb.GetMembers() {
		m := GroupMember{MemberID: wm.GetMemberId(), Weight: wm.GetWeight()}
		if wp, ok := wm.GetWatchKind().(*p4v1.ActionProfileGroup_Member_WatchPort); ok {
			m.WatchPort = wp.WatchPort
		}
		g.Members = append(g.Members, m)
	}
	return g, nil
}
