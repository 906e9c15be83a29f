// Package gnmiclient implements a gNMI client for device configuration
// and state: Capabilities, Get, Set, and streaming Subscribe with
// ON_CHANGE, SAMPLE and TARGET_DEFINED modes.
package gnmiclient

import (
	"context"
	"fmt"

	gpb "github.com/openconfig/gnmi/proto/gnmi"
	"google.golang.org/grpc"

	"github.com/byllyfish/finsy/pkg/creds"
	"github.com/byllyfish/finsy/pkg/gnmipath"
)

// Update is one decoded gNMI update.
type Update struct {
	Path      gnmipath.Path
	Timestamp int64
	Value     *gpb.TypedValue
}

// Client speaks gNMI to one device.
type Client struct {
	conn    *grpc.ClientConn
	ownConn bool
	gnmi    gpb.GNMIClient
}

// Dial opens a dedicated channel to the target.
func Dial(target string, credentials *creds.Credentials) (*Client, error) {
	tc, err := credentials.TransportCredentials()
	if err != nil {
		return nil, err
	}
	conn, err := grpc.NewClient(target, grpc.WithTransportCredentials(tc))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", target, err)
	}
	return &Client{conn: conn, ownConn: true, gnmi: gpb.NewGNMIClient(conn)}, nil
}

// FromConn shares an existing channel (typically the switch's
// P4Runtime channel).
func FromConn(conn *grpc.ClientConn) *Client {
	return &Client{conn: conn, gnmi: gpb.NewGNMIClient(conn)}
}

// Close releases the channel if this client owns it.
func (c *Client) Close() error {
	if c.ownConn && c.conn != nil {
		return c.conn.Close()
	}
	return nil
}

// Capabilities performs the one-shot capability exchange.
func (c *Client) Capabilities(ctx context.Context) (*gpb.CapabilityResponse, error) {
	return c.gnmi.Capabilities(ctx, &gpb.CapabilityRequest{})
}

// Get fetches the requested paths and flattens the response
// notifications into updates.
func (c *Client) Get(ctx context.Context, paths ...gnmipath.Path) ([]Update, error) {
	req := &gpb.GetRequest{Encoding: gpb.Encoding_PROTO}
	for _, p := range paths {
		req.Path = append(req.Path, p.Proto())
	}
	resp, err := c.gnmi.Get(ctx, req)
	if err != nil {
		return nil, err
	}
	var out []Update
	for _, n := range resp.GetNotification() {
		out = append(out, flatten(n)...)
	}
	return out, nil
}

func flatten(n *gpb.Notification) []Update {
	prefix := gnmipath.FromProto(n.GetPrefix())
	out := make([]Update, 0, len(n.GetUpdate())+len(n.GetDelete()))
	for _, u := range n.GetUpdate() {
		out = append(out, Update{
			Path:      prefix.Join(gnmipath.FromProto(u.GetPath())),
			Timestamp: n.GetTimestamp(),
			Value:     u.GetVal(),
		})
	}
	for _, d := range n.GetDelete() {
		out = append(out, Update{
			Path:      prefix.Join(gnmipath.FromProto(d)),
			Timestamp: n.GetTimestamp(),
		})
	}
	return out
}

// SetOp is one operation of a Set transaction.
type SetOp struct {
	Path    gnmipath.Path
	Value   any
	op      int // 0 update, 1 replace, 2 delete
}

// SetUpdate merges a value at the path.
func SetUpdate(p gnmipath.Path, value any) SetOp { return SetOp{Path: p, Value: value} }

// SetReplace replaces the subtree at the path.
func SetReplace(p gnmipath.Path, value any) SetOp { return SetOp{Path: p, Value: value, op: 1} }

// SetDelete removes the subtree at the path.
func SetDelete(p gnmipath.Path) SetOp { return SetOp{Path: p, op: 2} }

// SetResult is the per-op outcome of a Set.
type SetResult struct {
	Path      gnmipath.Path
	Timestamp int64
}

// Set applies the ordered operations as one SetRequest and returns the
// per-op results.
func (c *Client) Set(ctx context.Context, ops ...SetOp) ([]SetResult, error) {
	req := &gpb.SetRequest{}
	for _, op := range ops {
		switch op.op {
		case 2:
			req.Delete = append(req.Delete, op.Path.Proto())
		case 1:
			tv, err := typedValue(op.Value)
			if err != nil {
				return nil, err
			}
			req.Replace = append(req.Replace, &gpb.Update{Path: op.Path.Proto(), Val: tv})
		default:
			tv, err := typedValue(op.Value)
			if err != nil {
				return nil, err
			}
			req.Update = append(req.Update, &gpb.Update{Path: op.Path.Proto(), Val: tv})
		}
	}
	resp, err := c.gnmi.Set(ctx, req)
	if err != nil {
		return nil, err
	}
	out := make([]SetResult, 0, len(resp.GetResponse()))
	for _, r := range resp.GetResponse() {
		out = append(out, SetResult{
			Path:      gnmipath.FromProto(r.GetPath()),
			Timestamp: resp.GetTimestamp(),
		})
	}
	return out, nil
}

// typedValue converts a Go value to a gNMI TypedValue.
func typedValue(v any) (*gpb.TypedValue, error) {
	switch x := v.(type) {
	case *gpb.TypedValue:
		return x, nil
	case string:
		return &gpb.TypedValue{Value: &gpb.TypedValue_StringVal{StringVal: x}}, nil
	case bool:
		return &gpb.TypedValue{Value: &gpb.TypedValue_BoolVal{BoolVal: x}}, nil
	case int:
		return &gpb.TypedValue{Value: &gpb.TypedValue_IntVal{IntVal: int64(x)}}, nil
	case int64:
		return &gpb.TypedValue{Value: &gpb.TypedValue_IntVal{IntVal: x}}, nil
	case uint:
		return &gpb.TypedValue{Value: &gpb.TypedValue_UintVal{UintVal: uint64(x)}}, nil
	case uint64:
		return &gpb.TypedValue{Value: &gpb.TypedValue_UintVal{UintVal: x}}, nil
	case float64:
		return &gpb.TypedValue{Value: &gpb.TypedValue_DoubleVal{DoubleVal: x}}, nil
	case []byte:
		return &gpb.TypedValue{Value: &gpb.TypedValue_BytesVal{BytesVal: x}}, nil
	default:
		return nil, fmt.Errorf("cannot convert %T to gNMI TypedValue", v)
	}
}
