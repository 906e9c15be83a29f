// Package schema loads a P4Info document and provides indexed,
// schema-aware access to every pipeline object: tables, actions, action
// profiles, counters and meters (direct and indirect), controller packet
// metadata, digests, registers, value sets and externs.
//
// Objects are resolvable by id, fully-qualified name, or alias. A
// collision within one kind is fatal at load time. Type references
// (including chains of new_types) are resolved once and cached.
package schema

import (
	"fmt"
	"hash/fnv"
	"os"
	"path/filepath"
	"strings"

	p4config "github.com/p4lang/p4runtime/go/p4/config/v1"
	"google.golang.org/protobuf/encoding/prototext"
	"google.golang.org/protobuf/proto"
)

// index is a per-kind lookup by id, name and alias.
type index[T any] struct {
	kind   string
	byID   map[uint32]*T
	byName map[string]*T
}

func newIndex[T any](kind string) index[T] {
	return index[T]{kind: kind, byID: make(map[uint32]*T), byName: make(map[string]*T)}
}

func (ix *index[T]) add(id uint32, name, alias string, obj *T) error {
	if _, ok := ix.byID[id]; ok {
		return &DuplicateError{Kind: ix.kind, Key: id}
	}
	ix.byID[id] = obj
	for _, key := range []string{name, alias} {
		if key == "" {
			continue
		}
		if prev, ok := ix.byName[key]; ok && prev != obj {
			return &DuplicateError{Kind: ix.kind, Key: key}
		}
		ix.byName[key] = obj
	}
	return nil
}

// get resolves a string name/alias or an integer id.
func (ix *index[T]) get(key any) (*T, error) {
	switch k := key.(type) {
	case string:
		if obj, ok := ix.byName[k]; ok {
			return obj, nil
		}
	case uint32:
		if obj, ok := ix.byID[k]; ok {
			return obj, nil
		}
	case int:
		if obj, ok := ix.byID[uint32(k)]; ok {
			return obj, nil
		}
	case uint64:
		if obj, ok := ix.byID[uint32(k)]; ok {
			return obj, nil
		}
	default:
		return nil, fmt.Errorf("invalid %s key type %T", ix.kind, key)
	}
	return nil, &NotFoundError{Kind: ix.kind, Key: key}
}

// Schema is the indexed view of one P4Info document. It is immutable
// after Load and safe for concurrent use.
type Schema struct {
	p4info *p4config.P4Info

	tables         index[Table]
	actions        index[Action]
	actionProfiles index[ActionProfile]
	counters       index[Counter]
	directCounters index[DirectCounter]
	meters         index[Meter]
	directMeters   index[DirectMeter]
	digests        index[Digest]
	registers      index[Register]
	valueSets      index[ValueSet]

	packetMetadata map[string]*ControllerPacketMetadata
	externs        map[string]*Extern

	resolver *typeResolver
}

// PkgInfo summarizes the pipeline package metadata.
type PkgInfo struct {
	Name    string
	Version string
	Arch    string
	Doc     string
}

// Load reads a P4Info document from a file. The format is chosen by
// suffix (.txtpb/.pbtxt text, .bin/.pb binary) and by content sniff
// otherwise.
func Load(path string) (*Schema, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read p4info: %w", err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".txtpb", ".pbtxt", ".txt":
		return parseText(data)
	case ".bin", ".pb":
		return parseBinary(data)
	}
	return Parse(data)
}

// Parse decodes a P4Info document, sniffing text vs binary form.
// Text documents are printable ASCII; binary protobufs open with a tag
// byte (0x0A for field 1) and contain unprintable bytes.
func Parse(data []byte) (*Schema, error) {
	if looksBinary(data) {
		return parseBinary(data)
	}
	return parseText(data)
}

func looksBinary(data []byte) bool {
	for _, c := range data {
		if c == '\n' || c == '\r' || c == '\t' {
			continue
		}
		if c < 0x20 || c > 0x7E {
			return true
		}
	}
	return false
}

func parseText(data []byte) (*Schema, error) {
	var info p4config.P4Info
	if err := prototext.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parse p4info text: %w", err)
	}
	return FromProto(&info)
}

func parseBinary(data []byte) (*Schema, error) {
	var info p4config.P4Info
	if err := proto.Unmarshal(data, &info); err != nil {
		return nil, fmt.Errorf("parse p4info binary: %w", err)
	}
	return FromProto(&info)
}

// FromProto indexes an already-decoded P4Info message.
func FromProto(info *p4config.P4Info) (*Schema, error) {
	s := &Schema{
		p4info:         info,
		tables:         newIndex[Table]("table"),
		actions:        newIndex[Action]("action"),
		actionProfiles: newIndex[ActionProfile]("action profile"),
		counters:       newIndex[Counter]("counter"),
		directCounters: newIndex[DirectCounter]("direct counter"),
		meters:         newIndex[Meter]("meter"),
		directMeters:   newIndex[DirectMeter]("direct meter"),
		digests:        newIndex[Digest]("digest"),
		registers:      newIndex[Register]("register"),
		valueSets:      newIndex[ValueSet]("value set"),
		packetMetadata: make(map[string]*ControllerPacketMetadata),
		externs:        make(map[string]*Extern),
		resolver:       newTypeResolver(info.GetTypeInfo()),
	}

	for _, pb := range info.GetTables() {
		t := newTable(pb)
		if err := s.tables.add(t.ID, t.Name, t.Alias, t); err != nil {
			return nil, err
		}
	}
	for _, pb := range info.GetActions() {
		a := newAction(pb)
		if err := s.actions.add(a.ID, a.Name, a.Alias, a); err != nil {
			return nil, err
		}
	}
	for _, pb := range info.GetActionProfiles() {
		ap := newActionProfile(pb)
		if err := s.actionProfiles.add(ap.ID, ap.Name, ap.Alias, ap); err != nil {
			return nil, err
		}
	}
	for _, pb := range info.GetCounters() {
		c := &Counter{
			ID:    pb.GetPreamble().GetId(),
			Name:  pb.GetPreamble().GetName(),
			Alias: pb.GetPreamble().GetAlias(),
			Unit:  counterUnit(pb.GetSpec().GetUnit()),
			Size:  pb.GetSize(),
		}
		if err := s.counters.add(c.ID, c.Name, c.Alias, c); err != nil {
			return nil, err
		}
	}
	for _, pb := range info.GetDirectCounters() {
		c := &DirectCounter{
			ID:      pb.GetPreamble().GetId(),
			Name:    pb.GetPreamble().GetName(),
			Alias:   pb.GetPreamble().GetAlias(),
			Unit:    counterUnit(pb.GetSpec().GetUnit()),
			TableID: pb.GetDirectTableId(),
		}
		if err := s.directCounters.add(c.ID, c.Name, c.Alias, c); err != nil {
			return nil, err
		}
	}
	for _, pb := range info.GetMeters() {
		m := &Meter{
			ID:    pb.GetPreamble().GetId(),
			Name:  pb.GetPreamble().GetName(),
			Alias: pb.GetPreamble().GetAlias(),
			Unit:  meterUnit(pb.GetSpec().GetUnit()),
			Size:  pb.GetSize(),
		}
		if err := s.meters.add(m.ID, m.Name, m.Alias, m); err != nil {
			return nil, err
		}
	}
	for _, pb := range info.GetDirectMeters() {
		m := &DirectMeter{
			ID:      pb.GetPreamble().GetId(),
			Name:    pb.GetPreamble().GetName(),
			Alias:   pb.GetPreamble().GetAlias(),
			Unit:    meterUnit(pb.GetSpec().GetUnit()),
			TableID: pb.GetDirectTableId(),
		}
		if err := s.directMeters.add(m.ID, m.Name, m.Alias, m); err != nil {
			return nil, err
		}
	}
	for _, pb := range info.GetDigests() {
		ts, err := s.resolver.resolveData(pb.GetTypeSpec())
		if err != nil {
			return nil, fmt.Errorf("digest %s: %w", pb.GetPreamble().GetName(), err)
		}
		d := &Digest{
			ID:    pb.GetPreamble().GetId(),
			Name:  pb.GetPreamble().GetName(),
			Alias: pb.GetPreamble().GetAlias(),
			Type:  ts,
		}
		if err := s.digests.add(d.ID, d.Name, d.Alias, d); err != nil {
			return nil, err
		}
	}
	for _, pb := range info.GetRegisters() {
		ts, err := s.resolver.resolveData(pb.GetTypeSpec())
		if err != nil {
			return nil, fmt.Errorf("register %s: %w", pb.GetPreamble().GetName(), err)
		}
		r := &Register{
			ID:    pb.GetPreamble().GetId(),
			Name:  pb.GetPreamble().GetName(),
			Alias: pb.GetPreamble().GetAlias(),
			Type:  ts,
			Size:  pb.GetSize(),
		}
		if err := s.registers.add(r.ID, r.Name, r.Alias, r); err != nil {
			return nil, err
		}
	}
	for _, pb := range info.GetValueSets() {
		vs := &ValueSet{
			ID:           pb.GetPreamble().GetId(),
			Name:         pb.GetPreamble().GetName(),
			Alias:        pb.GetPreamble().GetAlias(),
			Size:         pb.GetSize(),
			fieldsByName: make(map[string]*MatchField),
		}
		for _, f := range pb.GetMatch() {
			mf := newMatchField(f)
			vs.Fields = append(vs.Fields, mf)
			vs.fieldsByName[mf.Name] = mf
		}
		if err := s.valueSets.add(vs.ID, vs.Name, vs.Alias, vs); err != nil {
			return nil, err
		}
	}
	for _, pb := range info.GetControllerPacketMetadata() {
		cpm := newControllerPacketMetadata(pb)
		if _, ok := s.packetMetadata[cpm.Name]; ok {
			return nil, &DuplicateError{Kind: "controller packet metadata", Key: cpm.Name}
		}
		s.packetMetadata[cpm.Name] = cpm
	}
	for _, pb := range info.GetExterns() {
		ex := &Extern{TypeID: pb.GetExternTypeId(), TypeName: pb.GetExternTypeName()}
		for _, inst := range pb.GetInstances() {
			ex.Instances = append(ex.Instances, &ExternInstance{
				ID:   inst.GetPreamble().GetId(),
				Name: inst.GetPreamble().GetName(),
			})
		}
		if _, ok := s.externs[ex.TypeName]; ok {
			return nil, &DuplicateError{Kind: "extern", Key: ex.TypeName}
		}
		s.externs[ex.TypeName] = ex
	}

	return s, nil
}

// P4Info returns the underlying protobuf document. Callers must not
// mutate it.
func (s *Schema) P4Info() *p4config.P4Info { return s.p4info }

// PkgInfo returns the package metadata.
func (s *Schema) PkgInfo() PkgInfo {
	pi := s.p4info.GetPkgInfo()
	return PkgInfo{
		Name:    pi.GetName(),
		Version: pi.GetVersion(),
		Arch:    pi.GetArch(),
		Doc:     pi.GetDoc().GetBrief(),
	}
}

// Table resolves a table by name, alias or id.
func (s *Schema) Table(key any) (*Table, error) { return s.tables.get(key) }

// Action resolves an action by name, alias or id.
func (s *Schema) Action(key any) (*Action, error) { return s.actions.get(key) }

// ActionProfile resolves an action profile by name, alias or id.
func (s *Schema) ActionProfile(key any) (*ActionProfile, error) { return s.actionProfiles.get(key) }

// Counter resolves a counter by name, alias or id.
func (s *Schema) Counter(key any) (*Counter, error) { return s.counters.get(key) }

// DirectCounter resolves a direct counter by name, alias or id.
func (s *Schema) DirectCounter(key any) (*DirectCounter, error) { return s.directCounters.get(key) }

// Meter resolves a meter by name, alias or id.
func (s *Schema) Meter(key any) (*Meter, error) { return s.meters.get(key) }

// DirectMeter resolves a direct meter by name, alias or id.
func (s *Schema) DirectMeter(key any) (*DirectMeter, error) { return s.directMeters.get(key) }

// Digest resolves a digest by name, alias or id.
func (s *Schema) Digest(key any) (*Digest, error) { return s.digests.get(key) }

// Register resolves a register by name, alias or id.
func (s *Schema) Register(key any) (*Register, error) { return s.registers.get(key) }

// ValueSet resolves a value set by name, alias or id.
func (s *Schema) ValueSet(key any) (*ValueSet, error) { return s.valueSets.get(key) }

// Tables returns all tables in declaration order.
func (s *Schema) Tables() []*Table {
	out := make([]*Table, 0, len(s.p4info.GetTables()))
	for _, pb := range s.p4info.GetTables() {
		if t, err := s.tables.get(pb.GetPreamble().GetId()); err == nil {
			out = append(out, t)
		}
	}
	return out
}

// Digests returns all digests in declaration order.
func (s *Schema) Digests() []*Digest {
	out := make([]*Digest, 0, len(s.p4info.GetDigests()))
	for _, pb := range s.p4info.GetDigests() {
		if d, err := s.digests.get(pb.GetPreamble().GetId()); err == nil {
			out = append(out, d)
		}
	}
	return out
}

// ValueSets returns all value sets in declaration order.
func (s *Schema) ValueSets() []*ValueSet {
	out := make([]*ValueSet, 0, len(s.p4info.GetValueSets()))
	for _, pb := range s.p4info.GetValueSets() {
		if v, err := s.valueSets.get(pb.GetPreamble().GetId()); err == nil {
			out = append(out, v)
		}
	}
	return out
}

// ActionProfiles returns all action profiles in declaration order.
func (s *Schema) ActionProfiles() []*ActionProfile {
	out := make([]*ActionProfile, 0, len(s.p4info.GetActionProfiles()))
	for _, pb := range s.p4info.GetActionProfiles() {
		if ap, err := s.actionProfiles.get(pb.GetPreamble().GetId()); err == nil {
			out = append(out, ap)
		}
	}
	return out
}

// PacketMetadata returns the controller packet metadata named
// "packet_in" or "packet_out". The lookup is resolved against whatever
// the P4Info declares; a missing name yields NotFoundError, which the
// packet codecs surface as a missing-metadata failure.
func (s *Schema) PacketMetadata(name string) (*ControllerPacketMetadata, error) {
	if cpm, ok := s.packetMetadata[name]; ok {
		return cpm, nil
	}
	return nil, &NotFoundError{Kind: "controller packet metadata", Key: name}
}

// Externs returns all extern groups in declaration order.
func (s *Schema) Externs() []*Extern {
	out := make([]*Extern, 0, len(s.p4info.GetExterns()))
	for _, pb := range s.p4info.GetExterns() {
		if ex, ok := s.externs[pb.GetExternTypeName()]; ok {
			out = append(out, ex)
		}
	}
	return out
}

// Extern resolves an extern group by type name.
func (s *Schema) Extern(typeName string) (*Extern, error) {
	if ex, ok := s.externs[typeName]; ok {
		return ex, nil
	}
	return nil, &NotFoundError{Kind: "extern", Key: typeName}
}

// TypeSpecOf resolves a named new_type/struct reference. Used by tests
// and by extern helpers that carry their own type references.
func (s *Schema) TypeSpecOf(spec *p4config.P4DataTypeSpec) (*TypeSpec, error) {
	return s.resolver.resolveData(spec)
}

// Cookie computes the pipeline cookie for this schema paired with a
// device config blob: a stable FNV-64a over the deterministic
// serialization of both. The switch echoes the cookie back so a
// matching pipeline can be detected without retransmission.
func (s *Schema) Cookie(deviceConfig []byte) (uint64, error) {
	opts := proto.MarshalOptions{Deterministic: true}
	data, err := opts.Marshal(s.p4info)
	if err != nil {
		return 0, fmt.Errorf("marshal p4info: %w", err)
	}
	h := fnv.New64a()
	h.Write(data)
	h.Write(deviceConfig)
	return h.Sum64(), nil
}
