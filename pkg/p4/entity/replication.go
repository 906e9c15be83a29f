package entity

import (
	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"

	"github.com/byllyfish/finsy/pkg/p4/schema"
)

// Replica is one (port, instance) delivery of a replicated packet.
// Instance defaults to 0; targets that number instances from 1 can set
// it explicitly.
type Replica struct {
	Port     uint32
	Instance uint32
}

// Port builds a replica with instance 0.
func Port(port uint32) Replica { return Replica{Port: port} }

func encodeReplicas(rs []Replica) []*p4v1.Replica {
	out := make([]*p4v1.Replica, 0, len(rs))
	for _, r := range rs {
		out = append(out, &p4v1.Replica{
			PortKind: &p4v1.Replica_EgressPort{EgressPort: r.Port},
			Instance: r.Instance,
		})
	}
	return out
}

func decodeReplicas(pbs []*p4v1.Replica) []Replica {
	out := make([]Replica, 0, len(pbs))
	for _, pb := range pbs {
		out = append(out, Replica{Port: pb.GetEgressPort(), Instance: pb.GetInstance()})
	}
	return out
}

// MulticastGroupEntry configures one multicast group of the packet
// replication engine.
type MulticastGroupEntry struct {
	GroupID  uint32
	Replicas []Replica
}

func (e *MulticastGroupEntry) encode(s *schema.Schema, write bool) (*p4v1.Entity, error) {
	if write && e.GroupID == 0 {
		return nil, &IncompleteError{Entity: "multicast group entry", Reason: "group id 0 is reserved"}
	}
	return &p4v1.Entity{Entity: &p4v1.Entity_PacketReplicationEngineEntry{
		PacketReplicationEngineEntry: &p4v1.PacketReplicationEngineEntry{
			Type: &p4v1.PacketReplicationEngineEntry_MulticastGroupEntry{
				MulticastGroupEntry: &p4v1.MulticastGroupEntry{
					MulticastGroupId: e.GroupID,
					Replicas:         encodeReplicas(e.Replicas),
				},
			},
		},
	}}, nil
}

// CloneSessionEntry configures one clone session of the packet
// replication engine.
type CloneSessionEntry struct {
	SessionID         uint32
	ClassOfService    uint32
	PacketLengthBytes int32
	Replicas          []Replica
}

func (e *CloneSessionEntry) encode(s *schema.Schema, write bool) (*p4v1.Entity, error) {
	if write && e.SessionID == 0 {
		return nil, &IncompleteError{Entity: "clone session entry", Reason: "session id 0 is reserved"}
	}
	return &p4v1.Entity{Entity: &p4v1.Entity_PacketReplicationEngineEntry{
		PacketReplicationEngineEntry: &p4v1.PacketReplicationEngineEntry{
			Type: &p4v1.PacketReplicationEngineEntry_CloneSessionEntry{
				CloneSessionEntry: &p4v1.CloneSessionEntry{
					SessionId:         e.SessionID,
					ClassOfService:    e.ClassOfService,
					PacketLengthBytes: e.PacketLengthBytes,
					Replicas:          encodeReplicas(e.Replicas),
				},
			},
		},
	}}, nil
}

func decodePacketReplication(pb *p4v1.PacketReplicationEngineEntry) (Entity, error) {
	switch w := pb.GetType().(type) {
	case *p4v1.PacketReplicationEngineEntry_MulticastGroupEntry:
		return &MulticastGroupEntry{
			GroupID:  w.MulticastGroupEntry.GetMulticastGroupId(),
			Replicas: decodeReplicas(w.MulticastGroupEntry.GetReplicas()),
		}, nil
	case *p4v1.PacketReplicationEngineEntry_CloneSessionEntry:
		return &CloneSessionEntry{
			SessionID:         w.CloneSessionEntry.GetSessionId(),
			ClassOfService:    w.CloneSessionEntry.GetClassOfService(),
			PacketLengthBytes: w.CloneSessionEntry.GetPacketLengthBytes(),
			Replicas:          decodeReplicas(w.CloneSessionEntry.GetReplicas()),
		}, nil
	default:
		return nil, &IncompleteError{Entity: "packet replication entry", Reason: "empty oneof"}
	}
}
