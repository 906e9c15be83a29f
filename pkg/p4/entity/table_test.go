package entity_test

import (
	"net/netip"
	"testing"

	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"

	"github.com/byllyfish/finsy/pkg/p4/entity"
	"github.com/byllyfish/finsy/pkg/p4/p4test"
)

// TestL2ExactInsert checks the exact wire form of a single insert:
// l2_exact_table, dst_addr=00:00:00:00:00:01, set_egress_port(1).
func TestL2ExactInsert(t *testing.T) {
	s := p4test.Schema()
	e := &entity.TableEntry{
		Table:  "l2_exact_table",
		Match:  entity.TableMatch{"dst_addr": "00:00:00:00:00:01"},
		Action: entity.NewAction("set_egress_port", map[string]any{"port_num": 1}),
	}
	u, err := entity.Insert(e).Encode(s)
	require.NoError(t, err)

	assert.Equal(t, p4v1.Update_INSERT, u.GetType())
	te := u.GetEntity().GetTableEntry()
	require.NotNil(t, te)
	assert.Equal(t, uint32(34391805), te.GetTableId())

	require.Len(t, te.GetMatch(), 1)
	fm := te.GetMatch()[0]
	assert.Equal(t, uint32(1), fm.GetFieldId())
	assert.Equal(t, []byte{1}, fm.GetExact().GetValue())

	act := te.GetAction().GetAction()
	require.NotNil(t, act)
	assert.Equal(t, uint32(24677122), act.GetActionId())
	require.Len(t, act.GetParams(), 1)
	assert.Equal(t, uint32(1), act.GetParams()[0].GetParamId())
	assert.Equal(t, []byte{1}, act.GetParams()[0].GetValue())
}

// TestIndirectOneShot checks the LPM + weighted action set form:
// routing_v6_table, 2000:1234::/64, two weighted set_next_hop actions.
func TestIndirectOneShot(t *testing.T) {
	s := p4test.Schema()
	e := &entity.TableEntry{
		Table: "routing_v6_table",
		Match: entity.TableMatch{"dst_addr": netip.MustParsePrefix("2000:1234::/64")},
		Action: entity.OneShot(
			entity.Weighted(1, entity.NewAction("set_next_hop", map[string]any{"dmac": "00:00:00:00:00:01"})),
			entity.Weighted(2, entity.NewAction("set_next_hop", map[string]any{"dmac": "00:00:00:00:00:02"})),
		),
	}
	u, err := entity.Insert(e).Encode(s)
	require.NoError(t, err)

	te := u.GetEntity().GetTableEntry()
	require.Len(t, te.GetMatch(), 1)
	lpm := te.GetMatch()[0].GetLpm()
	require.NotNil(t, lpm)
	assert.Equal(t, int32(64), lpm.GetPrefixLen())
	require.Len(t, lpm.GetValue(), 16)
	assert.Equal(t, []byte{0x20, 0x00, 0x12, 0x34}, lpm.GetValue()[:4])

	set := te.GetAction().GetActionProfileActionSet()
	require.NotNil(t, set)
	require.Len(t, set.GetActionProfileActions(), 2)
	assert.Equal(t, int32(1), set.GetActionProfileActions()[0].GetWeight())
	assert.Equal(t, int32(2), set.GetActionProfileActions()[1].GetWeight())
	assert.Equal(t, []byte{2}, set.GetActionProfileActions()[1].GetAction().GetParams()[0].GetValue())
}

// TestAutoPromotion: a plain action on an indirect table encodes as a
// one-shot of one weight-1 action with no watch port.
func TestAutoPromotion(t *testing.T) {
	s := p4test.Schema()
	plain := &entity.TableEntry{
		Table:  "routing_v6_table",
		Match:  entity.TableMatch{"dst_addr": netip.MustParsePrefix("2000::/16")},
		Action: entity.NewAction("set_next_hop", map[string]any{"dmac": 1}),
	}
	explicit := &entity.TableEntry{
		Table: "routing_v6_table",
		Match: entity.TableMatch{"dst_addr": netip.MustParsePrefix("2000::/16")},
		Action: entity.OneShot(
			entity.Weighted(1, entity.NewAction("set_next_hop", map[string]any{"dmac": 1})),
		),
	}
	u1, err := entity.Insert(plain).Encode(s)
	require.NoError(t, err)
	u2, err := entity.Insert(explicit).Encode(s)
	require.NoError(t, err)
	assert.True(t, proto.Equal(u1, u2))
}

func TestWatchPortOneShot(t *testing.T) {
	s := p4test.Schema()
	e := &entity.TableEntry{
		Table: "routing_v6_table",
		Match: entity.TableMatch{"dst_addr": netip.MustParsePrefix("2000::/16")},
		Action: entity.OneShot(
			entity.WeightedWatch(3, []byte{1}, entity.NewAction("set_next_hop", map[string]any{"dmac": 1})),
		),
	}
	u, err := entity.Insert(e).Encode(s)
	require.NoError(t, err)
	apa := u.GetEntity().GetTableEntry().GetAction().GetActionProfileActionSet().GetActionProfileActions()[0]
	assert.Equal(t, []byte{1}, apa.GetWatchPort())
}

func TestActionParameterValidation(t *testing.T) {
	s := p4test.Schema()

	missing := &entity.TableEntry{
		Table:  "l2_exact_table",
		Match:  entity.TableMatch{"dst_addr": 1},
		Action: entity.NewAction("set_egress_port", nil),
	}
	_, err := entity.Insert(missing).Encode(s)
	var mp *entity.MissingParameterError
	require.ErrorAs(t, err, &mp)
	assert.Contains(t, err.Error(), "missing parameter 'port_num'")

	unknown := &entity.TableEntry{
		Table:  "l2_exact_table",
		Match:  entity.TableMatch{"dst_addr": 1},
		Action: entity.NewAction("set_egress_port", map[string]any{"port_num": 1, "bogus": 2}),
	}
	_, err = entity.Insert(unknown).Encode(s)
	var up *entity.UnknownParameterError
	require.ErrorAs(t, err, &up)
}

func TestUnknownMatchField(t *testing.T) {
	s := p4test.Schema()
	e := &entity.TableEntry{
		Table:  "l2_exact_table",
		Match:  entity.TableMatch{"nonsense": 1},
		Action: entity.NewAction("set_egress_port", map[string]any{"port_num": 1}),
	}
	_, err := entity.Insert(e).Encode(s)
	require.Error(t, err)
}

func TestPriorityRules(t *testing.T) {
	s := p4test.Schema()

	// Ternary match present: priority required.
	noPrio := &entity.TableEntry{
		Table:  "acl_table",
		Match:  entity.TableMatch{"standard_metadata.ingress_port": entity.Ternary{Value: 1, Mask: 0x1FF}},
		Action: entity.NewAction("drop", nil),
	}
	_, err := entity.Insert(noPrio).Encode(s)
	require.Error(t, err)

	withPrio := &entity.TableEntry{
		Table:    "acl_table",
		Match:    entity.TableMatch{"standard_metadata.ingress_port": entity.Ternary{Value: 1, Mask: 0x1FF}},
		Action:   entity.NewAction("drop", nil),
		Priority: 10,
	}
	_, err = entity.Insert(withPrio).Encode(s)
	require.NoError(t, err)

	// All-zero mask normalizes to field-absent: the entry becomes a
	// pure wildcard and must not carry a priority.
	wildcard := &entity.TableEntry{
		Table:    "acl_table",
		Match:    entity.TableMatch{"standard_metadata.ingress_port": entity.Ternary{Value: 0, Mask: 0}},
		Action:   entity.NewAction("drop", nil),
		Priority: 10,
	}
	_, err = entity.Insert(wildcard).Encode(s)
	require.Error(t, err)

	// Exact table: priority forbidden.
	exact := &entity.TableEntry{
		Table:    "l2_exact_table",
		Match:    entity.TableMatch{"dst_addr": 1},
		Action:   entity.NewAction("set_egress_port", map[string]any{"port_num": 1}),
		Priority: 5,
	}
	_, err = entity.Insert(exact).Encode(s)
	require.Error(t, err)
}

func TestLPMDontCareOmitted(t *testing.T) {
	s := p4test.Schema()
	e := &entity.TableEntry{
		Table:  "routing_v6_table",
		Match:  entity.TableMatch{"dst_addr": netip.MustParsePrefix("::/0")},
		Action: entity.NewAction("NoAction", nil),
	}
	u, err := entity.Insert(e).Encode(s)
	require.NoError(t, err)
	assert.Empty(t, u.GetEntity().GetTableEntry().GetMatch(), "prefix_len 0 is a wildcard")
}

func TestRoundTrip(t *testing.T) {
	s := p4test.Schema()
	entries := []*entity.TableEntry{
		{
			Table:  "l2_exact_table",
			Match:  entity.TableMatch{"hdr.ethernet.dst_addr": "00:00:00:00:00:01"},
			Action: entity.NewAction("set_egress_port", map[string]any{"port_num": 1}),
		},
		{
			Table: "routing_v6_table",
			Match: entity.TableMatch{"hdr.ipv6.dst_addr": netip.MustParsePrefix("2000:1234::/64")},
			Action: entity.OneShot(
				entity.Weighted(1, entity.NewAction("set_next_hop", map[string]any{"dmac": "00:00:00:00:00:01"})),
			),
		},
		{
			Table:    "acl_table",
			Match:    entity.TableMatch{"hdr.ethernet.ether_type": entity.Ternary{Value: 0x88CC, Mask: 0xFFFF}},
			Action:   entity.NewAction("drop", nil),
			Priority: 3,
		},
	}
	for _, e := range entries {
		wire1, err := entity.Insert(e).Encode(s)
		require.NoError(t, err)
		decoded, err := entity.Decode(wire1.GetEntity(), s)
		require.NoError(t, err)
		wire2, err := entity.Insert(decoded).Encode(s)
		require.NoError(t, err)
		assert.True(t, proto.Equal(wire1, wire2), "table %s", e.Table)
	}
}

func TestWildcardRead(t *testing.T) {
	s := p4test.Schema()
	wire, err := entity.EncodeRead(&entity.TableEntry{}, s)
	require.NoError(t, err)
	assert.Zero(t, wire.GetTableEntry().GetTableId(), "empty table id reads all tables")

	// Zero-argument action pattern is allowed on reads.
	wire, err = entity.EncodeRead(&entity.TableEntry{
		Table:  "l2_exact_table",
		Action: entity.NewAction("set_egress_port", nil),
	}, s)
	require.NoError(t, err)
	assert.Equal(t, uint32(24677122), wire.GetTableEntry().GetAction().GetAction().GetActionId())
}

func TestDefaultActionExclusivity(t *testing.T) {
	s := p4test.Schema()
	e := &entity.TableEntry{
		Table:           "l2_exact_table",
		Match:           entity.TableMatch{"dst_addr": 1},
		IsDefaultAction: true,
		Action:          entity.NewAction("drop", nil),
	}
	_, err := entity.Insert(e).Encode(s)
	require.Error(t, err)
}

func TestActionProfileEntities(t *testing.T) {
	s := p4test.Schema()

	member := &entity.ActionProfileMember{
		Profile:  "ecmp_selector",
		MemberID: 7,
		Action:   entity.NewAction("set_next_hop", map[string]any{"dmac": 1}),
	}
	u, err := entity.Insert(member).Encode(s)
	require.NoError(t, err)
	m := u.GetEntity().GetActionProfileMember()
	assert.Equal(t, uint32(291115404), m.GetActionProfileId())
	assert.Equal(t, uint32(7), m.GetMemberId())

	group := &entity.ActionProfileGroup{
		Profile: "ecmp_selector",
		GroupID: 1,
		MaxSize: 4,
		Members: []entity.GroupMember{
			{MemberID: 7, Weight: 1},
			{MemberID: 8, Weight: 2, WatchPort: []byte{3}},
		},
	}
	u, err = entity.Insert(group).Encode(s)
	require.NoError(t, err)
	g := u.GetEntity().GetActionProfileGroup()
	require.Len(t, g.GetMembers(), 2)
	assert.Equal(t, []byte{3}, g.GetMembers()[1].GetWatchPort())

	// Round-trip.
	decoded, err := entity.Decode(u.GetEntity(), s)
	require.NoError(t, err)
	u2, err := entity.Insert(decoded).Encode(s)
	require.NoError(t, err)
	assert.True(t, proto.Equal(u, u2))
}
