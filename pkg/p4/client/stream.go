package client

import (
	"context"
	"errors"
	"io"
	"sync"

	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"

	"github.com/byllyfish/finsy/internal/logger"
	"github.com/byllyfish/finsy/internal/queue"
)

// Subscription is a bounded reader of one inbound message category.
// Overflow sheds the oldest message; Dropped reports how many.
type Subscription[T any] struct {
	q      *queue.Queue[T]
	cancel func()
}

// Recv returns the next message, blocking until one arrives, the
// context is cancelled, or the subscription is closed.
func (s *Subscription[T]) Recv(ctx context.Context) (T, bool) {
	return s.q.Get(ctx)
}

// Dropped returns the number of messages shed by backpressure.
func (s *Subscription[T]) Dropped() uint64 { return s.q.Dropped() }

// Cancel unregisters the subscription. Other subscribers are
// unaffected.
func (s *Subscription[T]) Cancel() { s.cancel() }

type packetSub struct {
	ethTypes map[uint16]struct{} // nil accepts everything
	q        *queue.Queue[*p4v1.PacketIn]
}

// Stream wraps one StreamChannel. A single writer goroutine owns Send;
// all senders enqueue. A single reader goroutine demultiplexes inbound
// messages into arbitration, packet-in, digest, idle-timeout and
// stream-error consumers, preserving arrival order per category.
type Stream struct {
	sc     p4v1.P4Runtime_StreamChannelClient
	cancel context.CancelFunc

	sendCh chan *p4v1.StreamMessageRequest
	arbCh  chan *p4v1.MasterArbitrationUpdate

	recvSize int

	mu         sync.Mutex
	packetSubs []*packetSub
	digestSubs map[uint32][]*queue.Queue[*p4v1.DigestList]
	idleSubs   []*queue.Queue[*p4v1.IdleTimeoutNotification]
	errSubs    []*queue.Queue[*p4v1.StreamError]

	done    chan struct{}
	doneErr error
	once    sync.Once
}

func newStream(sc p4v1.P4Runtime_StreamChannelClient, cancel context.CancelFunc, sendSize, recvSize int) *Stream {
	return &Stream{
		sc:         sc,
		cancel:     cancel,
		sendCh:     make(chan *p4v1.StreamMessageRequest, sendSize),
		arbCh:      make(chan *p4v1.MasterArbitrationUpdate, 4),
		recvSize:   recvSize,
		digestSubs: make(map[uint32][]*queue.Queue[*p4v1.DigestList]),
		done:       make(chan struct{}),
	}
}

// Send enqueues a stream message for the writer goroutine. It blocks
// only when the outbound queue is full.
func (st *Stream) Send(ctx context.Context, msg *p4v1.StreamMessageRequest) error {
	select {
	case st.sendCh <- msg:
		return nil
	case <-st.done:
		return st.Err()
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SendArbitration enqueues a MasterArbitrationUpdate.
func (st *Stream) SendArbitration(ctx context.Context, arb *p4v1.MasterArbitrationUpdate) error {
	return st.Send(ctx, &p4v1.StreamMessageRequest{
		Update: &p4v1.StreamMessageRequest_Arbitration{Arbitration: arb},
	})
}

// Arbitrations returns the channel of inbound arbitration updates.
func (st *Stream) Arbitrations() <-chan *p4v1.MasterArbitrationUpdate { return st.arbCh }

// Done is closed when the stream terminates.
func (st *Stream) Done() <-chan struct{} { return st.done }

// Err returns the terminating error, nil for a clean shutdown.
func (st *Stream) Err() error {
	select {
	case <-st.done:
		return st.doneErr
	default:
		return nil
	}
}

// Close terminates the stream. Pending unsent messages are discarded.
func (st *Stream) Close() {
	st.finish(nil)
}

func (st *Stream) finish(err error) {
	st.once.Do(func() {
		st.doneErr = err
		st.cancel()
		close(st.done)
		st.mu.Lock()
		defer st.mu.Unlock()
		for _, ps := range st.packetSubs {
			ps.q.Close()
		}
		for _, qs := range st.digestSubs {
			for _, q := range qs {
				q.Close()
			}
		}
		for _, q := range st.idleSubs {
			q.Close()
		}
		for _, q := range st.errSubs {
			q.Close()
		}
	})
}

// writeLoop is the only goroutine that calls Send on the wire stream.
func (st *Stream) writeLoop() {
	for {
		select {
		case msg := <-st.sendCh:
			if err := st.sc.Send(msg); err != nil {
				st.finish(err)
				return
			}
		case <-st.done:
			_ = st.sc.CloseSend()
			return
		}
	}
}

// readLoop splits inbound messages by category.
func (st *Stream) readLoop() {
	for {
		resp, err := st.sc.Recv()
		if err != nil {
			if errors.Is(err, io.EOF) {
				err = nil
			}
			st.finish(err)
			return
		}
		switch u := resp.GetUpdate().(type) {
		case *p4v1.StreamMessageResponse_Arbitration:
			select {
			case st.arbCh <- u.Arbitration:
			default:
				// The arbitration consumer fell behind; the latest
				// update supersedes older ones.
				select {
				case <-st.arbCh:
				default:
				}
				st.arbCh <- u.Arbitration
			}
		case *p4v1.StreamMessageResponse_Packet:
			st.deliverPacket(u.Packet)
		case *p4v1.StreamMessageResponse_Digest:
			st.deliverDigest(u.Digest)
		case *p4v1.StreamMessageResponse_IdleTimeoutNotification:
			st.deliverIdle(u.IdleTimeoutNotification)
		case *p4v1.StreamMessageResponse_Error:
			st.deliverError(u.Error)
		default:
			logger.Debug("unhandled stream message", "type", resp.GetUpdate())
		}
	}
}

func ethTypeOf(payload []byte) (uint16, bool) {
	if len(payload) < 14 {
		return 0, false
	}
	return uint16(payload[12])<<8 | uint16(payload[13]), true
}

func (st *Stream) deliverPacket(p *p4v1.PacketIn) {
	st.mu.Lock()
	subs := st.packetSubs
	st.mu.Unlock()
	for _, ps := range subs {
		if ps.ethTypes != nil {
			et, ok := ethTypeOf(p.GetPayload())
			if !ok {
				continue
			}
			if _, want := ps.ethTypes[et]; !want {
				continue
			}
		}
		ps.q.Put(p)
	}
}

func (st *Stream) deliverDigest(d *p4v1.DigestList) {
	st.mu.Lock()
	qs := st.digestSubs[d.GetDigestId()]
	st.mu.Unlock()
	for _, q := range qs {
		q.Put(d)
	}
}

func (st *Stream) deliverIdle(n *p4v1.IdleTimeoutNotification) {
	st.mu.Lock()
	qs := st.idleSubs
	st.mu.Unlock()
	for _, q := range qs {
		q.Put(n)
	}
}

func (st *Stream) deliverError(e *p4v1.StreamError) {
	logger.Warn("stream error response",
		"canonical_code", e.GetCanonicalCode(), "message", e.GetMessage())
	st.mu.Lock()
	qs := st.errSubs
	st.mu.Unlock()
	for _, q := range qs {
		q.Put(e)
	}
}

// SubscribePackets registers a packet-in consumer. ethTypes, when
// non-empty, filters on the Ethernet type following the 12-byte address
// prefix of the payload.
func (st *Stream) SubscribePackets(ethTypes []uint16) *Subscription[*p4v1.PacketIn] {
	ps := &packetSub{q: queue.New[*p4v1.PacketIn](st.recvSize)}
	if len(ethTypes) > 0 {
		ps.ethTypes = make(map[uint16]struct{}, len(ethTypes))
		for _, et := range ethTypes {
			ps.ethTypes[et] = struct{}{}
		}
	}
	st.mu.Lock()
	st.packetSubs = append(st.packetSubs, ps)
	st.mu.Unlock()
	return &Subscription[*p4v1.PacketIn]{
		q: ps.q,
		cancel: func() {
			st.mu.Lock()
			defer st.mu.Unlock()
			for i, s := range st.packetSubs {
				if s == ps {
					st.packetSubs = append(st.packetSubs[:i:i], st.packetSubs[i+1:]...)
					break
				}
			}
			ps.q.Close()
		},
	}
}

// SubscribeDigests registers a consumer for one digest id.
func (st *Stream) SubscribeDigests(digestID uint32) *Subscription[*p4v1.DigestList] {
	q := queue.New[*p4v1.DigestList](st.recvSize)
	st.mu.Lock()
	st.digestSubs[digestID] = append(st.digestSubs[digestID], q)
	st.mu.Unlock()
	return &Subscription[*p4v1.DigestList]{
		q: q,
		cancel: func() {
			st.mu.Lock()
			defer st.mu.Unlock()
			qs := st.digestSubs[digestID]
			for i, s := range qs {
				if s == q {
					st.digestSubs[digestID] = append(qs[:i:i], qs[i+1:]...)
					break
				}
			}
			q.Close()
		},
	}
}

// SubscribeIdleTimeouts registers an idle-timeout consumer.
func (st *Stream) SubscribeIdleTimeouts() *Subscription[*p4v1.IdleTimeoutNotification] {
	q := queue.New[*p4v1.IdleTimeoutNotification](st.recvSize)
	st.mu.Lock()
	st.idleSubs = append(st.idleSubs, q)
	st.mu.Unlock()
	return &Subscription[*p4v1.IdleTimeoutNotification]{
		q: q,
		cancel: func() {
			st.mu.Lock()
			defer st.mu.Unlock()
			for i, s := range st.idleSubs {
				if s == q {
					st.idleSubs = append(st.idleSubs[:i:i], st.idleSubs[i+1:]...)
					break
				}
			}
			q.Close()
		},
	}
}

// SubscribeErrors registers a stream-error consumer.
func (st *Stream) SubscribeErrors() *Subscription[*p4v1.StreamError] {
	q := queue.New[*p4v1.StreamError](st.recvSize)
	st.mu.Lock()
	st.errSubs = append(st.errSubs, q)
	st.mu.Unlock()
	return &Subscription[*p4v1.StreamError]{
		q: q,
		cancel: func() {
			st.mu.Lock()
			defer st.mu.Unlock()
			for i, s := range st.errSubs {
				if s == q {
					st.errSubs = append(st.errSubs[:i:i], st.errSubs[i+1:]...)
					break
				}
			}
			q.Close()
		},
	}
}
