package schema_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byllyfish/finsy/pkg/p4/p4test"
	"github.com/byllyfish/finsy/pkg/p4/schema"
)

func TestLookupByNameAliasAndID(t *testing.T) {
	s := p4test.Schema()

	byAlias, err := s.Table("l2_exact_table")
	require.NoError(t, err)
	byName, err := s.Table("IngressPipeImpl.l2_exact_table")
	require.NoError(t, err)
	byID, err := s.Table(uint32(34391805))
	require.NoError(t, err)
	assert.Same(t, byAlias, byName)
	assert.Same(t, byAlias, byID)
	assert.Equal(t, uint32(34391805), byAlias.ID)

	_, err = s.Table("no_such_table")
	var nf *schema.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestTableProperties(t *testing.T) {
	s := p4test.Schema()

	l2, err := s.Table("l2_exact_table")
	require.NoError(t, err)
	assert.True(t, l2.IdleNotify)
	assert.False(t, l2.IsIndirect())
	assert.False(t, l2.NeedsPriority())
	require.Len(t, l2.MatchFields, 1)
	f := l2.MatchFields[0]
	assert.Equal(t, schema.MatchExact, f.MatchType)
	assert.Equal(t, 48, f.Bitwidth)

	// Short name resolves alongside the qualified one.
	short, err := l2.MatchField("dst_addr")
	require.NoError(t, err)
	long, err := l2.MatchField("hdr.ethernet.dst_addr")
	require.NoError(t, err)
	assert.Same(t, short, long)

	v6, err := s.Table("routing_v6_table")
	require.NoError(t, err)
	assert.True(t, v6.IsIndirect())
	assert.Equal(t, uint32(291115404), v6.ImplementationID)

	acl, err := s.Table("acl_table")
	require.NoError(t, err)
	assert.True(t, acl.NeedsPriority())

	assert.True(t, l2.HasAction(24677122))
	assert.False(t, l2.HasAction(27301117))
}

func TestActionParams(t *testing.T) {
	s := p4test.Schema()
	a, err := s.Action("set_egress_port")
	require.NoError(t, err)
	assert.Equal(t, uint32(24677122), a.ID)
	p, ok := a.Param("port_num")
	require.True(t, ok)
	assert.Equal(t, 9, p.Bitwidth)
	_, ok = a.Param("bogus")
	assert.False(t, ok)
}

func TestActionProfile(t *testing.T) {
	s := p4test.Schema()
	ap, err := s.ActionProfile("ecmp_selector")
	require.NoError(t, err)
	assert.True(t, ap.WithSelector)
	assert.Equal(t, int32(16), ap.MaxGroupSize)
	assert.Contains(t, ap.TableIDs, uint32(39493057))
}

func TestPacketMetadata(t *testing.T) {
	s := p4test.Schema()
	out, err := s.PacketMetadata("packet_out")
	require.NoError(t, err)
	require.Len(t, out.Fields, 2)
	assert.Equal(t, "magic_val", out.Fields[0].Name)

	_, err = s.PacketMetadata("no_such_header")
	var nf *schema.NotFoundError
	require.ErrorAs(t, err, &nf)
}

func TestDigestTypeResolution(t *testing.T) {
	s := p4test.Schema()
	d, err := s.Digest("mac_learn")
	require.NoError(t, err)
	require.Equal(t, schema.KindStruct, d.Type.Kind)
	require.Len(t, d.Type.Members, 2)
	assert.Equal(t, "src_addr", d.Type.Members[0].Name)
	assert.Equal(t, schema.KindBits, d.Type.Members[0].Type.Kind)
	assert.Equal(t, 48, d.Type.Members[0].Type.Bitwidth)

	// The in_port member is declared through a new_type; it resolves
	// transitively to bit<9>.
	inPort := d.Type.Members[1]
	assert.Equal(t, schema.KindBits, inPort.Type.Kind)
	assert.Equal(t, 9, inPort.Type.Bitwidth)
	assert.Equal(t, "port_id_t", inPort.Type.Name)
}

func TestDirectResources(t *testing.T) {
	s := p4test.Schema()
	dc, err := s.DirectCounter("acl_counter")
	require.NoError(t, err)
	assert.Equal(t, uint32(33951081), dc.TableID)
	c, err := s.Counter("ig_counter")
	require.NoError(t, err)
	assert.Equal(t, schema.UnitBoth, c.Unit)
}

func TestValueSet(t *testing.T) {
	s := p4test.Schema()
	vs, err := s.ValueSet("my_vset")
	require.NoError(t, err)
	require.Len(t, vs.Fields, 1)
	assert.Equal(t, schema.MatchExact, vs.Fields[0].MatchType)
}

func TestDuplicateNamesFatal(t *testing.T) {
	dup := `
tables {
  preamble { id: 1 name: "t1" alias: "t" }
}
tables {
  preamble { id: 2 name: "t2" alias: "t" }
}
`
	_, err := schema.Parse([]byte(dup))
	var de *schema.DuplicateError
	require.ErrorAs(t, err, &de)
}

func TestLoadBySuffixAndSniff(t *testing.T) {
	dir := t.TempDir()

	textPath := filepath.Join(dir, "demo.txtpb")
	require.NoError(t, os.WriteFile(textPath, p4test.Bytes(), 0o644))
	s, err := schema.Load(textPath)
	require.NoError(t, err)
	assert.Equal(t, "ngsdn", s.PkgInfo().Name)

	// No recognized suffix: content sniff takes over.
	sniffPath := filepath.Join(dir, "demo.p4info")
	require.NoError(t, os.WriteFile(sniffPath, p4test.Bytes(), 0o644))
	s, err = schema.Load(sniffPath)
	require.NoError(t, err)
	assert.Equal(t, "ngsdn", s.PkgInfo().Name)
}

func TestCookieStability(t *testing.T) {
	s1 := p4test.Schema()
	s2 := p4test.Schema()
	c1, err := s1.Cookie([]byte("blob"))
	require.NoError(t, err)
	c2, err := s2.Cookie([]byte("blob"))
	require.NoError(t, err)
	assert.Equal(t, c1, c2, "same schema and blob yield the same cookie")

	c3, err := s1.Cookie([]byte("other"))
	require.NoError(t, err)
	assert.NotEqual(t, c1, c3)
}

func TestPkgInfo(t *testing.T) {
	s := p4test.Schema()
	pi := s.PkgInfo()
	assert.Equal(t, "ngsdn", pi.Name)
	assert.Equal(t, "1.0.0", pi.Version)
	assert.Equal(t, "v1model", pi.Arch)
}
