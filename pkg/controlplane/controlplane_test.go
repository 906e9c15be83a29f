package controlplane

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/byllyfish/finsy/pkg/p4/schema"
)

func TestParseAddress(t *testing.T) {
	a, err := ParseAddress("10.0.0.1:9559")
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.1", a.Host())
	assert.Equal(t, "9559", a.Port())
	assert.Equal(t, "10.0.0.1:9559", a.String())

	a, err = ParseAddress("[fe80::1%eth0]:9559")
	require.NoError(t, err)
	assert.Equal(t, "fe80::1", a.Host())
	assert.Equal(t, "eth0", a.Zone())
	assert.Equal(t, "[fe80::1%eth0]:9559", a.String())

	_, err = ParseAddress("no-port")
	assert.Error(t, err)
}

func TestUint128(t *testing.T) {
	assert.True(t, Uint128{}.IsZero())
	assert.False(t, Uint128{Low: 1}.IsZero())

	assert.True(t, Uint128{Low: 9}.Less(Uint128{Low: 10}))
	assert.True(t, Uint128{Low: 10}.Less(Uint128{High: 1}))

	assert.Equal(t, Uint128{Low: 9}, Uint128{Low: 10}.Dec())
	assert.Equal(t, Uint128{Low: ^uint64(0)}, Uint128{High: 1}.Dec())
	assert.Equal(t, Uint128{}, Uint128{}.Dec(), "decrement saturates at zero")
}

// TestNextElectionID covers the arbitration negotiation step: a client
// bidding 10 against primary 12 retries with 9 and remains connected.
func TestNextElectionID(t *testing.T) {
	next, ok := nextElectionID(Uint128{Low: 10}, Uint128{Low: 12})
	require.True(t, ok)
	assert.Equal(t, Uint128{Low: 9}, next)

	// The primary holds a lower id: step below it.
	next, ok = nextElectionID(Uint128{Low: 10}, Uint128{Low: 4})
	require.True(t, ok)
	assert.Equal(t, Uint128{Low: 3}, next)

	// No free id remains above 0: settle as backup.
	_, ok = nextElectionID(Uint128{Low: 1}, Uint128{Low: 1})
	assert.False(t, ok)
	_, ok = nextElectionID(Uint128{Low: 1}, Uint128{Low: 2})
	assert.False(t, ok)
}

func TestSwitchOptionsDerive(t *testing.T) {
	base := SwitchOptions{DeviceID: 5, RoleName: "probe"}
	derived := base.With(func(o *SwitchOptions) {
		o.DeviceID = 7
		o.FailFast = true
	})
	assert.Equal(t, uint64(5), base.DeviceID, "original untouched")
	assert.False(t, base.FailFast)
	assert.Equal(t, uint64(7), derived.DeviceID)
	assert.Equal(t, "probe", derived.RoleName)
}

func TestSwitchOptionsDefaults(t *testing.T) {
	o := SwitchOptions{}.withDefaults()
	assert.Equal(t, uint64(defaultDeviceID), o.DeviceID)
	assert.Equal(t, Uint128{Low: defaultElectionID}, o.InitialElectionID)
	assert.Equal(t, defaultCallTimeout, o.CallTimeout)
}

func TestNewSwitchValidation(t *testing.T) {
	_, err := NewSwitch("s1", "bogus", SwitchOptions{})
	assert.Error(t, err, "invalid address")

	_, err = NewSwitch("s1", "127.0.0.1:9559", SwitchOptions{P4InfoPath: "/does/not/exist.txtpb"})
	assert.Error(t, err, "unreadable p4info")

	sw, err := NewSwitch("s1", "127.0.0.1:9559", SwitchOptions{
		Stash: map[string]any{"k": 1},
	})
	require.NoError(t, err)
	assert.Equal(t, "s1", sw.Name())
	assert.Equal(t, StateInit, sw.State())
	assert.False(t, sw.IsPrimary())
	assert.Equal(t, Uint128{Low: defaultElectionID}, sw.ElectionID())
	assert.Equal(t, 1, sw.Stash()["k"])
}

func TestControllerUniqueNames(t *testing.T) {
	s1, err := NewSwitch("s1", "127.0.0.1:9559", SwitchOptions{})
	require.NoError(t, err)
	s2, err := NewSwitch("s1", "127.0.0.1:9560", SwitchOptions{})
	require.NoError(t, err)

	c, err := NewController(s1)
	require.NoError(t, err)
	assert.Equal(t, 1, c.Len())

	err = c.Add(s2)
	assert.Error(t, err, "duplicate name rejected")

	got, ok := c.Get("s1")
	require.True(t, ok)
	assert.Same(t, s1, got)
	assert.Same(t, c, s1.Controller())
}

func TestControllerRemove(t *testing.T) {
	s1, err := NewSwitch("s1", "127.0.0.1:9559", SwitchOptions{})
	require.NoError(t, err)
	c, err := NewController(s1)
	require.NoError(t, err)

	stopped, err := c.Remove("s1")
	require.NoError(t, err)
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("remove of a stopped switch should complete immediately")
	}
	assert.Equal(t, 0, c.Len())

	_, err = c.Remove("s1")
	assert.Error(t, err)
}

func TestIsProgrammingError(t *testing.T) {
	assert.True(t, isProgrammingError(&schema.NotFoundError{Kind: "table", Key: "x"}))
	assert.True(t, isProgrammingError(&PipelineError{Switch: "s1", Err: errors.New("verify failed")}))
	assert.False(t, isProgrammingError(errors.New("connection reset")))
	assert.False(t, isProgrammingError(nil))
}

func TestCreateTaskOutsideReady(t *testing.T) {
	sw, err := NewSwitch("s1", "127.0.0.1:9559", SwitchOptions{})
	require.NoError(t, err)
	ok := sw.CreateTask("x", nil)
	assert.False(t, ok, "tasks are scoped to a READY epoch")
}
