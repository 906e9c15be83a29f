package gnmiclient_test

import (
	"context"
	"net"
	"testing"
	"time"

	gpb "github.com/openconfig/gnmi/proto/gnmi"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/grpc"

	"github.com/byllyfish/finsy/pkg/gnmiclient"
	"github.com/byllyfish/finsy/pkg/gnmipath"
)

// fakeGNMI answers a Subscribe with one initial update, sync_response,
// then streams updates pushed through the push channel.
type fakeGNMI struct {
	gpb.UnimplementedGNMIServer
	push chan *gpb.Notification
}

func statusNotification(status string) *gpb.Notification {
	return &gpb.Notification{
		Timestamp: time.Now().UnixNano(),
		Update: []*gpb.Update{{
			Path: gnmipath.MustParse("interfaces/interface[name=s1-eth1]/state/oper-status").Proto(),
			Val:  &gpb.TypedValue{Value: &gpb.TypedValue_StringVal{StringVal: status}},
		}},
	}
}

func (f *fakeGNMI) Subscribe(stream gpb.GNMI_SubscribeServer) error {
	if _, err := stream.Recv(); err != nil {
		return err
	}
	if err := stream.Send(&gpb.SubscribeResponse{
		Response: &gpb.SubscribeResponse_Update{Update: statusNotification("UP")},
	}); err != nil {
		return err
	}
	if err := stream.Send(&gpb.SubscribeResponse{
		Response: &gpb.SubscribeResponse_SyncResponse{SyncResponse: true},
	}); err != nil {
		return err
	}
	for {
		select {
		case n := <-f.push:
			if err := stream.Send(&gpb.SubscribeResponse{
				Response: &gpb.SubscribeResponse_Update{Update: n},
			}); err != nil {
				return err
			}
		case <-stream.Context().Done():
			return nil
		}
	}
}

func (f *fakeGNMI) Get(ctx context.Context, req *gpb.GetRequest) (*gpb.GetResponse, error) {
	return &gpb.GetResponse{Notification: []*gpb.Notification{statusNotification("UP")}}, nil
}

func (f *fakeGNMI) Set(ctx context.Context, req *gpb.SetRequest) (*gpb.SetResponse, error) {
	resp := &gpb.SetResponse{Timestamp: 42}
	for _, d := range req.GetDelete() {
		resp.Response = append(resp.Response, &gpb.UpdateResult{Path: d, Op: gpb.UpdateResult_DELETE})
	}
	for _, u := range req.GetUpdate() {
		resp.Response = append(resp.Response, &gpb.UpdateResult{Path: u.GetPath(), Op: gpb.UpdateResult_UPDATE})
	}
	return resp, nil
}

func startFakeGNMI(t *testing.T) (*fakeGNMI, string) {
	t.Helper()
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	f := &fakeGNMI{push: make(chan *gpb.Notification, 4)}
	srv := grpc.NewServer()
	gpb.RegisterGNMIServer(srv, f)
	go func() { _ = srv.Serve(lis) }()
	t.Cleanup(srv.Stop)
	return f, lis.Addr().String()
}

// TestSubscribeOnChange: one initial update before sync, one update
// after a state change, nothing after cancellation.
func TestSubscribeOnChange(t *testing.T) {
	f, addr := startFakeGNMI(t)
	c, err := gnmiclient.Dial(addr, nil)
	require.NoError(t, err)
	defer c.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	sub := c.Subscribe().OnChange(
		gnmipath.MustParse("interfaces/interface[name=s1-eth1]/state/oper-status"))

	var initial []gnmiclient.Update
	for u, err := range sub.Synchronize(ctx) {
		require.NoError(t, err)
		initial = append(initial, u)
	}
	require.Len(t, initial, 1, "exactly one initial update")
	assert.Equal(t, "UP", initial[0].Value.GetStringVal())
	assert.True(t, sub.Synced())

	f.push <- statusNotification("DOWN")
	for u, err := range sub.Updates(ctx) {
		require.NoError(t, err)
		assert.Equal(t, "DOWN", u.Value.GetStringVal())
		break // abandon the iterator after the first update
	}

	sub.Cancel()
}

func TestGetFlattens(t *testing.T) {
	_, addr := startFakeGNMI(t)
	c, err := gnmiclient.Dial(addr, nil)
	require.NoError(t, err)
	defer c.Close()

	ups, err := c.Get(context.Background(),
		gnmipath.MustParse("interfaces/interface[name=s1-eth1]/state/oper-status"))
	require.NoError(t, err)
	require.Len(t, ups, 1)
	assert.Equal(t, "UP", ups[0].Value.GetStringVal())
}

func TestSetBuildsOneRequest(t *testing.T) {
	_, addr := startFakeGNMI(t)
	c, err := gnmiclient.Dial(addr, nil)
	require.NoError(t, err)
	defer c.Close()

	results, err := c.Set(context.Background(),
		gnmiclient.SetUpdate(gnmipath.MustParse("system/config/hostname"), "sw1"),
		gnmiclient.SetDelete(gnmipath.MustParse("system/config/motd-banner")),
	)
	require.NoError(t, err)
	require.Len(t, results, 2)
	for _, r := range results {
		assert.Equal(t, int64(42), r.Timestamp)
	}
}
