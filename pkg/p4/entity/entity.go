// Package entity defines the typed P4Runtime entity model and its
// schema-directed translation to and from the wire protobufs.
//
// Entities are plain structs keyed by object and field names; the
// schema resolves names to ids and drives value encoding, so unknown
// names fail at encode time rather than at the switch. Writes are
// expressed as Update values tagging an entity with INSERT, MODIFY or
// DELETE; reads use the bare entity as a (possibly wildcard) pattern.
package entity

import (
	"fmt"

	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"

	"github.com/byllyfish/finsy/pkg/p4/schema"
)

// Op is a write operation tag.
type Op int

const (
	OpUnspecified Op = iota
	OpInsert
	OpModify
	OpDelete
)

func (op Op) String() string {
	switch op {
	case OpInsert:
		return "INSERT"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	}
	return "UNSPECIFIED"
}

func (op Op) wire() p4v1.Update_Type {
	switch op {
	case OpInsert:
		return p4v1.Update_INSERT
	case OpModify:
		return p4v1.Update_MODIFY
	case OpDelete:
		return p4v1.Update_DELETE
	}
	return p4v1.Update_UNSPECIFIED
}

// Entity is implemented by every typed P4Runtime entity.
//
// encode builds the wire form; write distinguishes a write encode
// (strict completeness rules) from a read pattern encode (zero values
// mean wildcard).
type Entity interface {
	encode(s *schema.Schema, write bool) (*p4v1.Entity, error)
}

// modifyOnly marks entity kinds whose only legal write op is MODIFY.
type modifyOnly interface {
	modifyOnlyEntity() string
}

// Update tags an entity with a write operation.
type Update struct {
	Op     Op
	Entity Entity
}

// Insert tags an entity for insertion.
func Insert(e Entity) Update { return Update{Op: OpInsert, Entity: e} }

// Modify tags an entity for modification.
func Modify(e Entity) Update { return Update{Op: OpModify, Entity: e} }

// Delete tags an entity for deletion.
func Delete(e Entity) Update { return Update{Op: OpDelete, Entity: e} }

// Encode builds the wire update. Modify-only entities reject INSERT and
// DELETE; an untagged update of a modify-only entity defaults to MODIFY.
func (u Update) Encode(s *schema.Schema) (*p4v1.Update, error) {
	op := u.Op
	if mo, ok := u.Entity.(modifyOnly); ok {
		switch op {
		case OpUnspecified:
			op = OpModify
		case OpModify:
		default:
			return nil, &InvalidUpdateError{Entity: mo.modifyOnlyEntity(), Op: op}
		}
	} else if op == OpUnspecified {
		return nil, &InvalidUpdateError{Entity: fmt.Sprintf("%T", u.Entity), Op: op}
	}
	ent, err := u.Entity.encode(s, true)
	if err != nil {
		return nil, err
	}
	return &p4v1.Update{Type: op.wire(), Entity: ent}, nil
}

// EncodeRead builds the wire pattern for a read; zero-valued fields are
// wildcards.
func EncodeRead(e Entity, s *schema.Schema) (*p4v1.Entity, error) {
	return e.encode(s, false)
}

// Decode converts a wire entity into its typed form.
func Decode(pb *p4v1.Entity, s *schema.Schema) (Entity, error) {
	switch e := pb.GetEntity().(type) {
	case *p4v1.Entity_TableEntry:
		return decodeTableEntry(e.TableEntry, s)
	case *p4v1.Entity_ActionProfileMember:
		return decodeActionProfileMember(e.ActionProfileMember, s)
	case *p4v1.Entity_ActionProfileGroup:
		return decodeActionProfileGroup(e.ActionProfileGroup, s)
	case *p4v1.Entity_PacketReplicationEngineEntry:
		return decodePacketReplication(e.PacketReplicationEngineEntry)
	case *p4v1.Entity_DigestEntry:
		return decodeDigestEntry(e.DigestEntry, s)
	case *p4v1.Entity_RegisterEntry:
		return decodeRegisterEntry(e.RegisterEntry, s)
	case *p4v1.Entity_CounterEntry:
		return decodeCounterEntry(e.CounterEntry, s)
	case *p4v1.Entity_DirectCounterEntry:
		return decodeDirectCounterEntry(e.DirectCounterEntry, s)
	case *p4v1.Entity_MeterEntry:
		return decodeMeterEntry(e.MeterEntry, s)
	case *p4v1.Entity_DirectMeterEntry:
		return decodeDirectMeterEntry(e.DirectMeterEntry, s)
	case *p4v1.Entity_ValueSetEntry:
		return decodeValueSetEntry(e.ValueSetEntry, s)
	case *p4v1.Entity_ExternEntry:
		return decodeExternEntry(e.ExternEntry, s)
	default:
		return nil, fmt.Errorf("unsupported entity %T", e)
	}
}
