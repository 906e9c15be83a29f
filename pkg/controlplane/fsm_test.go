package controlplane_test

import (
	"context"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genproto/googleapis/rpc/code"
	rpcstatus "google.golang.org/genproto/googleapis/rpc/status"
	"google.golang.org/grpc"

	"github.com/byllyfish/finsy/pkg/controlplane"
	"github.com/byllyfish/finsy/pkg/p4/entity"
	"github.com/byllyfish/finsy/pkg/p4/p4test"
)

// fakeDevice is an in-process P4Runtime server: it grants primary to
// the first arbitration request, stores the installed pipeline, and
// records writes.
type fakeDevice struct {
	p4v1.UnimplementedP4RuntimeServer

	mu       sync.Mutex
	writes   []*p4v1.WriteRequest
	pipeline *p4v1.ForwardingPipelineConfig
	sets     int
}

func (d *fakeDevice) StreamChannel(stream p4v1.P4Runtime_StreamChannelServer) error {
	for {
		req, err := stream.Recv()
		if err != nil {
			if err == io.EOF {
				return nil
			}
			return err
		}
		if arb := req.GetArbitration(); arb != nil {
			resp := &p4v1.StreamMessageResponse{
				Update: &p4v1.StreamMessageResponse_Arbitration{
					Arbitration: &p4v1.MasterArbitrationUpdate{
						DeviceId:   arb.GetDeviceId(),
						ElectionId: arb.GetElectionId(),
						Status:     &rpcstatus.Status{Code: int32(code.Code_OK)},
					},
				},
			}
			if err := stream.Send(resp); err != nil {
				return err
			}
		}
	}
}

func (d *fakeDevice) Write(ctx context.Context, req *p4v1.WriteRequest) (*p4v1.WriteResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.writes = append(d.writes, req)
	return &p4v1.WriteResponse{}, nil
}

func (d *fakeDevice) SetForwardingPipelineConfig(ctx context.Context, req *p4v1.SetForwardingPipelineConfigRequest) (*p4v1.SetForwardingPipelineConfigResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pipeline = req.GetConfig()
	d.sets++
	return &p4v1.SetForwardingPipelineConfigResponse{}, nil
}

func (d *fakeDevice) GetForwardingPipelineConfig(ctx context.Context, req *p4v1.GetForwardingPipelineConfigRequest) (*p4v1.GetForwardingPipelineConfigResponse, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	resp := &p4v1.GetForwardingPipelineConfigResponse{Config: &p4v1.ForwardingPipelineConfig{}}
	if d.pipeline != nil {
		resp.Config = d.pipeline
	}
	return resp, nil
}

func (d *fakeDevice) Capabilities(ctx context.Context, req *p4v1.CapabilitiesRequest) (*p4v1.CapabilitiesResponse, error) {
	return &p4v1.CapabilitiesResponse{P4RuntimeApiVersion: "1.4.1"}, nil
}

func startFakeDevice(t *testing.T) (*fakeDevice, string) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	dev := &fakeDevice{}
	srv := grpc.NewServer()
	p4v1.RegisterP4RuntimeServer(srv, dev)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return dev, lis.Addr().String()
}

// TestSwitchRunToReady drives the full machine against the fake
// device: arbitration, pipeline install, ready handler, a write.
func TestSwitchRunToReady(t *testing.T) {
	dev, addr := startFakeDevice(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var (
		sawPrimary bool
		version    string
	)
	handler := func(ctx context.Context, sw *controlplane.Switch) error {
		sawPrimary = sw.IsPrimary()
		v, err := sw.Capabilities(ctx)
		if err != nil {
			return err
		}
		version = v
		err = sw.Insert(ctx, &entity.TableEntry{
			Table:  "l2_exact_table",
			Match:  entity.TableMatch{"dst_addr": "00:00:00:00:00:01"},
			Action: entity.NewAction("set_egress_port", map[string]any{"port_num": 1}),
		})
		if err != nil {
			return err
		}
		cancel() // done; end the session
		return nil
	}

	sw, err := controlplane.NewSwitch("s1", addr, controlplane.SwitchOptions{
		P4InfoBytes:  p4test.Bytes(),
		ReadyHandler: handler,
	})
	require.NoError(t, err)

	err = sw.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, controlplane.StateClosed, sw.State())

	assert.True(t, sawPrimary, "sole client becomes primary")
	assert.Equal(t, "1.4.1", version)
	require.NotNil(t, sw.Schema())
	assert.Equal(t, "ngsdn", sw.Schema().PkgInfo().Name)

	dev.mu.Lock()
	defer dev.mu.Unlock()
	assert.Equal(t, 1, dev.sets, "pipeline installed once")
	require.NotNil(t, dev.pipeline.GetP4Info())
	require.Len(t, dev.writes, 1)
	require.Len(t, dev.writes[0].GetUpdates(), 1)
	u := dev.writes[0].GetUpdates()[0]
	assert.Equal(t, p4v1.Update_INSERT, u.GetType())
	assert.Equal(t, uint32(34391805), u.GetEntity().GetTableEntry().GetTableId())
	assert.Equal(t, uint64(10), dev.writes[0].GetElectionId().GetLow(),
		"default election id accompanies writes")
}

// TestControllerRunAndCancel starts a controller over one switch and
// cancels it; the supervisor winds down cleanly.
func TestControllerRunAndCancel(t *testing.T) {
	_, addr := startFakeDevice(t)

	ready := make(chan struct{}, 1)
	handler := func(ctx context.Context, sw *controlplane.Switch) error {
		require.NotNil(t, controlplane.Current(ctx), "controller reachable from handler")
		select {
		case ready <- struct{}{}:
		default:
		}
		<-ctx.Done()
		return nil
	}

	sw, err := controlplane.NewSwitch("s1", addr, controlplane.SwitchOptions{
		P4InfoBytes:  p4test.Bytes(),
		ReadyHandler: handler,
	})
	require.NoError(t, err)
	c, err := controlplane.NewController(sw)
	require.NoError(t, err)

	var entered, left int
	c.Events().On(controlplane.EventControllerEnter, func(args ...any) { entered++ })
	c.Events().On(controlplane.EventControllerLeave, func(args ...any) { left++ })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- c.Run(ctx) }()

	select {
	case <-ready:
	case <-time.After(10 * time.Second):
		t.Fatal("switch never reached READY")
	}
	assert.Equal(t, controlplane.StateReady, sw.State())

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(10 * time.Second):
		t.Fatal("controller did not stop")
	}
	assert.Equal(t, 1, entered)
	assert.Equal(t, 1, left)
}
