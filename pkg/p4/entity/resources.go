package entity

import (
	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/byllyfish/finsy/pkg/p4/schema"
)

// DigestEntry configures digest generation for one digest declaration.
type DigestEntry struct {
	Digest       string
	MaxTimeoutNs int64
	MaxListSize  int32
	AckTimeoutNs int64
}

func (e *DigestEntry) encode(s *schema.Schema, write bool) (*p4v1.Entity, error) {
	wire := &p4v1.DigestEntry{}
	if e.Digest != "" {
		d, err := s.Digest(e.Digest)
		if err != nil {
			return nil, err
		}
		wire.DigestId = d.ID
	} else if write {
		return nil, &IncompleteError{Entity: "digest entry", Reason: "missing digest name"}
	}
	if e.MaxTimeoutNs != 0 || e.MaxListSize != 0 || e.AckTimeoutNs != 0 {
		wire.Config = &p4v1.DigestEntry_Config{
			MaxTimeoutNs: e.MaxTimeoutNs,
			MaxListSize:  e.MaxListSize,
			AckTimeoutNs: e.AckTimeoutNs,
		}
	}
	return &p4v1.Entity{Entity: &p4v1.Entity_DigestEntry{DigestEntry: wire}}, nil
}

func decodeDigestEntry(pb *p4v1.DigestEntry, s *schema.Schema) (*DigestEntry, error) {
	e := &DigestEntry{}
	if pb.GetDigestId() != 0 {
		d, err := s.Digest(pb.GetDigestId())
		if err != nil {
			return nil, err
		}
		e.Digest = digestName(d)
	}
	if cfg := pb.GetConfig(); cfg != nil {
		e.MaxTimeoutNs = cfg.GetMaxTimeoutNs()
		e.MaxListSize = cfg.GetMaxListSize()
		e.AckTimeoutNs = cfg.GetAckTimeoutNs()
	}
	return e, nil
}

func digestName(d *schema.Digest) string {
	if d.Alias != "" {
		return d.Alias
	}
	return d.Name
}

// RegisterEntry reads or writes one register cell. A nil Index is a
// wildcard read across the whole array. Register writes are MODIFY-only.
type RegisterEntry struct {
	Register string
	Index    *int64
	Value    any
}

func (e *RegisterEntry) modifyOnlyEntity() string { return "register entry" }

func (e *RegisterEntry) encode(s *schema.Schema, write bool) (*p4v1.Entity, error) {
	wire := &p4v1.RegisterEntry{}
	if e.Register == "" {
		if write {
			return nil, &IncompleteError{Entity: "register entry", Reason: "missing register name"}
		}
		return &p4v1.Entity{Entity: &p4v1.Entity_RegisterEntry{RegisterEntry: wire}}, nil
	}
	r, err := s.Register(e.Register)
	if err != nil {
		return nil, err
	}
	wire.RegisterId = r.ID
	if e.Index != nil {
		wire.Index = &p4v1.Index{Index: *e.Index}
	}
	if e.Value != nil {
		data, err := r.Type.EncodeData(e.Value)
		if err != nil {
			return nil, err
		}
		wire.Data = data
	} else if write {
		return nil, &IncompleteError{Entity: "register entry", Reason: "missing value"}
	}
	return &p4v1.Entity{Entity: &p4v1.Entity_RegisterEntry{RegisterEntry: wire}}, nil
}

func decodeRegisterEntry(pb *p4v1.RegisterEntry, s *schema.Schema) (*RegisterEntry, error) {
	e := &RegisterEntry{}
	if pb.GetRegisterId() == 0 {
		return e, nil
	}
	r, err := s.Register(pb.GetRegisterId())
	if err != nil {
		return nil, err
	}
	e.Register = r.Alias
	if e.Register == "" {
		e.Register = r.Name
	}
	if pb.GetIndex() != nil {
		idx := pb.GetIndex().GetIndex()
		e.Index = &idx
	}
	if pb.GetData() != nil {
		v, err := r.Type.DecodeData(pb.GetData())
		if err != nil {
			return nil, err
		}
		e.Value = v
	}
	return e, nil
}

// CounterEntry reads or resets one indexed counter. MODIFY-only.
type CounterEntry struct {
	Counter string
	Index   *int64
	Data    *CounterData
}

func (e *CounterEntry) modifyOnlyEntity() string { return "counter entry" }

func (e *CounterEntry) encode(s *schema.Schema, write bool) (*p4v1.Entity, error) {
	wire := &p4v1.CounterEntry{}
	if e.Counter != "" {
		c, err := s.Counter(e.Counter)
		if err != nil {
			return nil, err
		}
		wire.CounterId = c.ID
	} else if write {
		return nil, &IncompleteError{Entity: "counter entry", Reason: "missing counter name"}
	}
	if e.Index != nil {
		wire.Index = &p4v1.Index{Index: *e.Index}
	}
	wire.Data = e.Data.wire()
	return &p4v1.Entity{Entity: &p4v1.Entity_CounterEntry{CounterEntry: wire}}, nil
}

func decodeCounterEntry(pb *p4v1.CounterEntry, s *schema.Schema) (*CounterEntry, error) {
	e := &CounterEntry{Data: counterDataOf(pb.GetData())}
	if pb.GetCounterId() != 0 {
		c, err := s.Counter(pb.GetCounterId())
		if err != nil {
			return nil, err
		}
		e.Counter = c.Alias
		if e.Counter == "" {
			e.Counter = c.Name
		}
	}
	if pb.GetIndex() != nil {
		idx := pb.GetIndex().GetIndex()
		e.Index = &idx
	}
	return e, nil
}

// DirectCounterEntry reads or resets the counter attached to a table
// entry. MODIFY-only.
type DirectCounterEntry struct {
	TableEntry *TableEntry
	Data       *CounterData
}

func (e *DirectCounterEntry) modifyOnlyEntity() string { return "direct counter entry" }

func (e *DirectCounterEntry) encode(s *schema.Schema, write bool) (*p4v1.Entity, error) {
	wire := &p4v1.DirectCounterEntry{Data: e.Data.wire()}
	if e.TableEntry != nil {
		te, err := e.TableEntry.encode(s, false)
		if err != nil {
			return nil, err
		}
		wire.TableEntry = te.GetTableEntry()
	} else if write {
		return nil, &IncompleteError{Entity: "direct counter entry", Reason: "missing table entry"}
	}
	return &p4v1.Entity{Entity: &p4v1.Entity_DirectCounterEntry{DirectCounterEntry: wire}}, nil
}

func decodeDirectCounterEntry(pb *p4v1.DirectCounterEntry, s *schema.Schema) (*DirectCounterEntry, error) {
	e := &DirectCounterEntry{Data: counterDataOf(pb.GetData())}
	if pb.GetTableEntry() != nil {
		te, err := decodeTableEntry(pb.GetTableEntry(), s)
		if err != nil {
			return nil, err
		}
		e.TableEntry = te
	}
	return e, nil
}

// MeterEntry configures one indexed meter. MODIFY-only.
type MeterEntry struct {
	Meter       string
	Index       *int64
	Config      *MeterConfig
	CounterData *MeterCounterData
}

func (e *MeterEntry) modifyOnlyEntity() string { return "meter entry" }

func (e *MeterEntry) encode(s *schema.Schema, write bool) (*p4v1.Entity, error) {
	wire := &p4v1.MeterEntry{}
	if e.Meter != "" {
		m, err := s.Meter(e.Meter)
		if err != nil {
			return nil, err
		}
		wire.MeterId = m.ID
	} else if write {
		return nil, &IncompleteError{Entity: "meter entry", Reason: "missing meter name"}
	}
	if e.Index != nil {
		wire.Index = &p4v1.Index{Index: *e.Index}
	}
	wire.Config = e.Config.wire()
	wire.CounterData = e.CounterData.wire()
	return &p4v1.Entity{Entity: &p4v1.Entity_MeterEntry{MeterEntry: wire}}, nil
}

func decodeMeterEntry(pb *p4v1.MeterEntry, s *schema.Schema) (*MeterEntry, error) {
	e := &MeterEntry{
		Config:      meterConfigOf(pb.GetConfig()),
		CounterData: meterCounterDataOf(pb.GetCounterData()),
	}
	if pb.GetMeterId() != 0 {
		m, err := s.Meter(pb.GetMeterId())
		if err != nil {
			return nil, err
		}
		e.Meter = m.Alias
		if e.Meter == "" {
			e.Meter = m.Name
		}
	}
	if pb.GetIndex() != nil {
		idx := pb.GetIndex().GetIndex()
		e.Index = &idx
	}
	return e, nil
}

// DirectMeterEntry configures the meter attached to a table entry.
// MODIFY-only.
type DirectMeterEntry struct {
	TableEntry  *TableEntry
	Config      *MeterConfig
	CounterData *MeterCounterData
}

func (e *DirectMeterEntry) modifyOnlyEntity() string { return "direct meter entry" }

func (e *DirectMeterEntry) encode(s *schema.Schema, write bool) (*p4v1.Entity, error) {
	wire := &p4v1.DirectMeterEntry{
		Config:      e.Config.wire(),
		CounterData: e.CounterData.wire(),
	}
	if e.TableEntry != nil {
		te, err := e.TableEntry.encode(s, false)
		if err != nil {
			return nil, err
		}
		wire.TableEntry = te.GetTableEntry()
	} else if write {
		return nil, &IncompleteError{Entity: "direct meter entry", Reason: "missing table entry"}
	}
	return &p4v1.Entity{Entity: &p4v1.Entity_DirectMeterEntry{DirectMeterEntry: wire}}, nil
}

func decodeDirectMeterEntry(pb *p4v1.DirectMeterEntry, s *schema.Schema) (*DirectMeterEntry, error) {
	e := &DirectMeterEntry{
		Config:      meterConfigOf(pb.GetConfig()),
		CounterData: meterCounterDataOf(pb.GetCounterData()),
	}
	if pb.GetTableEntry() != nil {
		te, err := decodeTableEntry(pb.GetTableEntry(), s)
		if err != nil {
			return nil, err
		}
		e.TableEntry = te
	}
	return e, nil
}

// ValueSetMember is one value-set entry, keyed like a table match.
type ValueSetMember = TableMatch

// ValueSetEntry replaces the full membership of a parser value set.
// MODIFY-only.
type ValueSetEntry struct {
	ValueSet string
	Members  []ValueSetMember
}

func (e *ValueSetEntry) modifyOnlyEntity() string { return "value set entry" }

func (e *ValueSetEntry) encode(s *schema.Schema, write bool) (*p4v1.Entity, error) {
	wire := &p4v1.ValueSetEntry{}
	if e.ValueSet == "" {
		if write {
			return nil, &IncompleteError{Entity: "value set entry", Reason: "missing value set name"}
		}
		return &p4v1.Entity{Entity: &p4v1.Entity_ValueSetEntry{ValueSetEntry: wire}}, nil
	}
	vs, err := s.ValueSet(e.ValueSet)
	if err != nil {
		return nil, err
	}
	wire.ValueSetId = vs.ID
	for _, m := range e.Members {
		fms, err := encodeValueSetMember(vs, m)
		if err != nil {
			return nil, err
		}
		wire.Members = append(wire.Members, &p4v1.ValueSetMember{Match: fms})
	}
	return &p4v1.Entity{Entity: &p4v1.Entity_ValueSetEntry{ValueSetEntry: wire}}, nil
}

func encodeValueSetMember(vs *schema.ValueSet, m ValueSetMember) ([]*p4v1.FieldMatch, error) {
	var out []*p4v1.FieldMatch
	for _, f := range vs.Fields {
		v, ok := m[f.Name]
		if !ok {
			continue
		}
		fm, err := encodeFieldMatch(f, v)
		if err != nil {
			return nil, err
		}
		if fm != nil {
			out = append(out, fm)
		}
	}
	for name := range m {
		if _, err := vs.Field(name); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func decodeValueSetEntry(pb *p4v1.ValueSetEntry, s *schema.Schema) (*ValueSetEntry, error) {
	e := &ValueSetEntry{}
	if pb.GetValueSetId() == 0 {
		return e, nil
	}
	vs, err := s.ValueSet(pb.GetValueSetId())
	if err != nil {
		return nil, err
	}
	e.ValueSet = vs.Alias
	if e.ValueSet == "" {
		e.ValueSet = vs.Name
	}
	for _, wm := range pb.GetMembers() {
		m := make(ValueSetMember)
		for _, fm := range wm.GetMatch() {
			var field *schema.MatchField
			for _, f := range vs.Fields {
				if f.ID == fm.GetFieldId() {
					field = f
					break
				}
			}
			if field == nil {
				return nil, &IncompleteError{Entity: "value set entry", Reason: "unknown field id"}
			}
			v, err := decodeFieldMatch(field, fm)
			if err != nil {
				return nil, err
			}
			m[field.Name] = v
		}
		e.Members = append(e.Members, m)
	}
	return e, nil
}

// ExternEntry carries an arch-specific extern payload. MODIFY-only.
type ExternEntry struct {
	ExternType string
	ExternID   uint32
	Entry      *anypb.Any
}

func (e *ExternEntry) modifyOnlyEntity() string { return "extern entry" }

func (e *ExternEntry) encode(s *schema.Schema, write bool) (*p4v1.Entity, error) {
	wire := &p4v1.ExternEntry{ExternId: e.ExternID, Entry: e.Entry}
	if e.ExternType != "" {
		ex, err := s.Extern(e.ExternType)
		if err != nil {
			return nil, err
		}
		wire.ExternTypeId = ex.TypeID
	} else if write {
		return nil, &IncompleteError{Entity: "extern entry", Reason: "missing extern type"}
	}
	return &p4v1.Entity{Entity: &p4v1.Entity_ExternEntry{ExternEntry: wire}}, nil
}

func decodeExternEntry(pb *p4v1.ExternEntry, s *schema.Schema) (*ExternEntry, error) {
	e := &ExternEntry{ExternID: pb.GetExternId(), Entry: pb.GetEntry()}
	for _, ex := range s.Externs() {
		if ex.TypeID == pb.GetExternTypeId() {
			e.ExternType = ex.TypeName
			break
		}
	}
	return e, nil
}
