// Package client implements the P4Runtime gRPC client for one switch:
// a single channel, the bidirectional StreamChannel with outbound
// multiplexing and inbound demultiplexing, and the unary RPCs.
package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"time"

	p4config "github.com/p4lang/p4runtime/go/p4/config/v1"
	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"
	"google.golang.org/grpc"
	"google.golang.org/protobuf/types/known/anypb"

	"github.com/byllyfish/finsy/internal/logger"
	"github.com/byllyfish/finsy/pkg/creds"
)

// Options configures a Client.
type Options struct {
	// DeviceID is the P4Runtime device id.
	DeviceID uint64

	// Role is the arbitration role name; "" is the default full-access
	// role.
	Role string

	// RoleConfig is the opaque role configuration message, if any.
	RoleConfig *anypb.Any

	// Credentials supplies TLS material; nil dials insecure.
	Credentials *creds.Credentials

	// CallTimeout bounds unary RPCs. Zero means no per-call deadline.
	CallTimeout time.Duration

	// SendQueueSize bounds the outbound stream queue.
	SendQueueSize int

	// ReceiveQueueSize bounds each inbound subscriber queue.
	ReceiveQueueSize int
}

const (
	defaultSendQueueSize    = 64
	defaultReceiveQueueSize = 128
)

// Client owns one gRPC channel toward a single switch.
type Client struct {
	target string
	opts   Options

	conn *grpc.ClientConn
	p4rt p4v1.P4RuntimeClient

	electionID *p4v1.Uint128
}

// New creates a client for the given target address. Dial must be
// called before any RPC.
func New(target string, opts Options) *Client {
	if opts.SendQueueSize <= 0 {
		opts.SendQueueSize = defaultSendQueueSize
	}
	if opts.ReceiveQueueSize <= 0 {
		opts.ReceiveQueueSize = defaultReceiveQueueSize
	}
	return &Client{target: target, opts: opts}
}

// Target returns the dialed address.
func (c *Client) Target() string { return c.target }

// Conn returns the underlying channel so sub-clients (gNMI) can share
// it. It is nil before Dial.
func (c *Client) Conn() *grpc.ClientConn { return c.conn }

// Dial opens the gRPC channel. The channel connects lazily; RPC
// attempts drive connection establishment. No call sets wait-for-ready,
// so RPCs use gRPC's default fail-fast mode.
func (c *Client) Dial() error {
	tc, err := c.opts.Credentials.TransportCredentials()
	if err != nil {
		return fmt.Errorf("credentials: %w", err)
	}
	conn, err := grpc.NewClient(c.target, grpc.WithTransportCredentials(tc))
	if err != nil {
		return fmt.Errorf("dial %s: %w", c.target, err)
	}
	c.conn = conn
	c.p4rt = p4v1.NewP4RuntimeClient(conn)
	return nil
}

// Close tears down the channel.
func (c *Client) Close() error {
	if c.conn == nil {
		return nil
	}
	err := c.conn.Close()
	c.conn = nil
	c.p4rt = nil
	return err
}

// SetElectionID sets the election id used for Write and pipeline RPCs.
func (c *Client) SetElectionID(id *p4v1.Uint128) { c.electionID = id }

// ElectionID returns the current election id.
func (c *Client) ElectionID() *p4v1.Uint128 { return c.electionID }

func (c *Client) callCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if c.opts.CallTimeout > 0 {
		return context.WithTimeout(ctx, c.opts.CallTimeout)
	}
	return context.WithCancel(ctx)
}

// Write sends a batch of updates. A failure is returned as *ClientError
// with per-update details.
func (c *Client) Write(ctx context.Context, updates []*p4v1.Update, atomicity p4v1.WriteRequest_Atomicity) error {
	if len(updates) == 0 {
		return nil
	}
	req := &p4v1.WriteRequest{
		DeviceId:   c.opts.DeviceID,
		Role:       c.opts.Role,
		ElectionId: c.electionID,
		Updates:    updates,
		Atomicity:  atomicity,
	}
	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	if _, err := c.p4rt.Write(cctx, req); err != nil {
		return newClientError(err)
	}
	return nil
}

// Read issues a wildcard-capable read and yields each returned entity
// lazily, preserving server order.
func (c *Client) Read(ctx context.Context, entities []*p4v1.Entity) iter.Seq2[*p4v1.Entity, error] {
	return func(yield func(*p4v1.Entity, error) bool) {
		req := &p4v1.ReadRequest{
			DeviceId: c.opts.DeviceID,
			Role:     c.opts.Role,
			Entities: entities,
		}
		stream, err := c.p4rt.Read(ctx, req)
		if err != nil {
			yield(nil, err)
			return
		}
		for {
			resp, err := stream.Recv()
			if err != nil {
				if !errors.Is(err, io.EOF) && !IsCancelled(err) {
					yield(nil, err)
				}
				return
			}
			for _, e := range resp.GetEntities() {
				if !yield(e, nil) {
					return
				}
			}
		}
	}
}

// SetForwardingPipelineConfig installs a pipeline.
func (c *Client) SetForwardingPipelineConfig(ctx context.Context, action p4v1.SetForwardingPipelineConfigRequest_Action, p4info *p4config.P4Info, deviceConfig []byte, cookie uint64) error {
	req := &p4v1.SetForwardingPipelineConfigRequest{
		DeviceId:   c.opts.DeviceID,
		Role:       c.opts.Role,
		ElectionId: c.electionID,
		Action:     action,
		Config: &p4v1.ForwardingPipelineConfig{
			P4Info:         p4info,
			P4DeviceConfig: deviceConfig,
			Cookie:         &p4v1.ForwardingPipelineConfig_Cookie{Cookie: cookie},
		},
	}
	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	_, err := c.p4rt.SetForwardingPipelineConfig(cctx, req)
	return err
}

// GetForwardingPipelineConfig fetches the installed pipeline at the
// requested granularity.
func (c *Client) GetForwardingPipelineConfig(ctx context.Context, responseType p4v1.GetForwardingPipelineConfigRequest_ResponseType) (*p4v1.ForwardingPipelineConfig, error) {
	req := &p4v1.GetForwardingPipelineConfigRequest{
		DeviceId:     c.opts.DeviceID,
		ResponseType: responseType,
	}
	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	resp, err := c.p4rt.GetForwardingPipelineConfig(cctx, req)
	if err != nil {
		return nil, err
	}
	return resp.GetConfig(), nil
}

// Capabilities returns the switch's P4Runtime API version.
func (c *Client) Capabilities(ctx context.Context) (string, error) {
	cctx, cancel := c.callCtx(ctx)
	defer cancel()
	resp, err := c.p4rt.Capabilities(cctx, &p4v1.CapabilitiesRequest{})
	if err != nil {
		return "", err
	}
	return resp.GetP4RuntimeApiVersion(), nil
}

// OpenStream opens the bidirectional StreamChannel and starts the
// reader and writer loops. The caller drives arbitration by sending
// MasterArbitrationUpdate messages and consuming Arbitrations().
func (c *Client) OpenStream(ctx context.Context) (*Stream, error) {
	sctx, cancel := context.WithCancel(ctx)
	sc, err := c.p4rt.StreamChannel(sctx)
	if err != nil {
		cancel()
		return nil, err
	}
	st := newStream(sc, cancel, c.opts.SendQueueSize, c.opts.ReceiveQueueSize)
	go st.writeLoop()
	go st.readLoop()
	logger.Debug("stream channel opened", logger.Target(c.target))
	return st, nil
}
