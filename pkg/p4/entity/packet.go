package entity

import (
	"encoding/binary"
	"fmt"

	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"

	"github.com/byllyfish/finsy/pkg/p4/bitstr"
	"github.com/byllyfish/finsy/pkg/p4/schema"
)

// Outbound is a stream-side message a switch can send: packet-outs and
// digest acks. They are flushed to the stream ahead of any WriteRequest
// in the same batch.
type Outbound interface {
	EncodeRequest(s *schema.Schema) (*p4v1.StreamMessageRequest, error)
}

// PacketOut is a data-plane packet injected by the controller, with
// metadata fields resolved against the "packet_out" controller packet
// metadata header.
type PacketOut struct {
	Payload  []byte
	Metadata map[string]any
}

// EncodeRequest builds the stream message. Every metadata field the
// schema declares must be bound; a missing field is an error naming the
// parameter.
func (p *PacketOut) EncodeRequest(s *schema.Schema) (*p4v1.StreamMessageRequest, error) {
	cpm, err := s.PacketMetadata("packet_out")
	if err != nil {
		return nil, err
	}
	for name := range p.Metadata {
		if _, ok := cpm.Field(name); !ok {
			return nil, &UnknownParameterError{Context: "packet_out", Param: name}
		}
	}
	wire := &p4v1.PacketOut{Payload: p.Payload}
	for _, f := range cpm.Fields {
		v, ok := p.Metadata[f.Name]
		if !ok {
			return nil, &MissingParameterError{Context: "packet_out", Param: f.Name}
		}
		b, err := bitstr.Encode(v, f.Bitwidth)
		if err != nil {
			return nil, fmt.Errorf("packet_out metadata %q: %w", f.Name, err)
		}
		wire.Metadata = append(wire.Metadata, &p4v1.PacketMetadata{MetadataId: f.ID, Value: b})
	}
	return &p4v1.StreamMessageRequest{
		Update: &p4v1.StreamMessageRequest_Packet{Packet: wire},
	}, nil
}

// PacketIn is a data-plane packet delivered to the controller.
type PacketIn struct {
	Payload  []byte
	Metadata map[string]any
}

// EthType returns the Ethernet type following the 12-byte address
// prefix of the payload, or 0 when the payload is too short.
func (p *PacketIn) EthType() uint16 {
	if len(p.Payload) < 14 {
		return 0
	}
	return binary.BigEndian.Uint16(p.Payload[12:14])
}

// DecodePacketIn resolves the packet's metadata against the schema's
// "packet_in" header. Unknown metadata ids are kept by id string so no
// information is lost.
func DecodePacketIn(pb *p4v1.PacketIn, s *schema.Schema) (*PacketIn, error) {
	p := &PacketIn{Payload: pb.GetPayload()}
	if len(pb.GetMetadata()) == 0 {
		return p, nil
	}
	cpm, err := s.PacketMetadata("packet_in")
	if err != nil {
		return nil, err
	}
	p.Metadata = make(map[string]any, len(pb.GetMetadata()))
	for _, md := range pb.GetMetadata() {
		var field *schema.MetadataField
		for _, f := range cpm.Fields {
			if f.ID == md.GetMetadataId() {
				field = f
				break
			}
		}
		if field == nil {
			p.Metadata[fmt.Sprintf("_%d", md.GetMetadataId())] = md.GetValue()
			continue
		}
		v, err := bitstr.Decode(md.GetValue(), field.Bitwidth, bitstr.Default)
		if err != nil {
			return nil, fmt.Errorf("packet_in metadata %q: %w", field.Name, err)
		}
		p.Metadata[field.Name] = v
	}
	return p, nil
}

// DigestList is one batch of digest messages from the data plane.
type DigestList struct {
	Digest    string
	DigestID  uint32
	ListID    uint64
	Timestamp int64
	Data      []any
}

// Ack builds the acknowledgment for this list.
func (d *DigestList) Ack() *DigestListAck {
	return &DigestListAck{DigestID: d.DigestID, ListID: d.ListID}
}

// DecodeDigestList decodes each data item per the digest's declared
// type.
func DecodeDigestList(pb *p4v1.DigestList, s *schema.Schema) (*DigestList, error) {
	d := &DigestList{
		DigestID:  pb.GetDigestId(),
		ListID:    pb.GetListId(),
		Timestamp: pb.GetTimestamp(),
	}
	dg, err := s.Digest(pb.GetDigestId())
	if err != nil {
		return nil, err
	}
	d.Digest = digestName(dg)
	for _, item := range pb.GetData() {
		v, err := dg.Type.DecodeData(item)
		if err != nil {
			return nil, fmt.Errorf("digest %q: %w", d.Digest, err)
		}
		d.Data = append(d.Data, v)
	}
	return d, nil
}

// DigestListAck acknowledges receipt of a digest list.
type DigestListAck struct {
	DigestID uint32
	ListID   uint64
}

// EncodeRequest builds the stream message.
func (a *DigestListAck) EncodeRequest(s *schema.Schema) (*p4v1.StreamMessageRequest, error) {
	return &p4v1.StreamMessageRequest{
		Update: &p4v1.StreamMessageRequest_DigestAck{
			DigestAck: &p4v1.DigestListAck{DigestId: a.DigestID, ListId: a.ListID},
		},
	}, nil
}

// IdleTimeoutNotification reports table entries whose idle timers
// expired. The entries carry only their key fields.
type IdleTimeoutNotification struct {
	Timestamp    int64
	TableEntries []*TableEntry
}

// DecodeIdleTimeout decodes the notification's table entries.
func DecodeIdleTimeout(pb *p4v1.IdleTimeoutNotification, s *schema.Schema) (*IdleTimeoutNotification, error) {
	n := &IdleTimeoutNotification{Timestamp: pb.GetTimestamp()}
	for _, te := range pb.GetTableEntry() {
		e, err := decodeTableEntry(te, s)
		if err != nil {
			return nil, err
		}
		n.TableEntries = append(n.TableEntries, e)
	}
	return n, nil
}
