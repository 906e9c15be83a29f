package gnmiclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"time"

	gpb "github.com/openconfig/gnmi/proto/gnmi"

	"github.com/byllyfish/finsy/pkg/gnmipath"
)

// Subscription drives one gNMI Subscribe stream. Paths are registered
// with OnChange, Sample or TargetDefined before the first Synchronize
// call, which sends the SubscribeRequest and consumes the initial state
// up to the sync_response marker. Updates then yields subsequent
// notifications. Synchronize may be called again to consume up to the
// next sync boundary.
type Subscription struct {
	client *Client
	subs   []*gpb.Subscription

	stream gpb.GNMI_SubscribeClient
	cancel context.CancelFunc
	synced bool
}

// Subscribe creates an empty subscription.
func (c *Client) Subscribe() *Subscription {
	return &Subscription{client: c}
}

// OnChange registers paths for on-change streaming.
func (s *Subscription) OnChange(paths ...gnmipath.Path) *Subscription {
	for _, p := range paths {
		s.subs = append(s.subs, &gpb.Subscription{
			Path: p.Proto(),
			Mode: gpb.SubscriptionMode_ON_CHANGE,
		})
	}
	return s
}

// Sample registers paths for periodic sampling.
func (s *Subscription) Sample(interval time.Duration, paths ...gnmipath.Path) *Subscription {
	for _, p := range paths {
		s.subs = append(s.subs, &gpb.Subscription{
			Path:           p.Proto(),
			Mode:           gpb.SubscriptionMode_SAMPLE,
			SampleInterval: uint64(interval.Nanoseconds()),
		})
	}
	return s
}

// TargetDefined lets the target pick the streaming mode per path.
func (s *Subscription) TargetDefined(paths ...gnmipath.Path) *Subscription {
	for _, p := range paths {
		s.subs = append(s.subs, &gpb.Subscription{
			Path: p.Proto(),
			Mode: gpb.SubscriptionMode_TARGET_DEFINED,
		})
	}
	return s
}

// open sends the initial SubscribeRequest.
func (s *Subscription) open(ctx context.Context) error {
	if len(s.subs) == 0 {
		return errors.New("subscription has no paths")
	}
	sctx, cancel := context.WithCancel(ctx)
	stream, err := s.client.gnmi.Subscribe(sctx)
	if err != nil {
		cancel()
		return err
	}
	req := &gpb.SubscribeRequest{
		Request: &gpb.SubscribeRequest_Subscribe{
			Subscribe: &gpb.SubscriptionList{
				Subscription: s.subs,
				Mode:         gpb.SubscriptionList_STREAM,
			},
		},
	}
	if err := stream.Send(req); err != nil {
		cancel()
		return err
	}
	s.stream = stream
	s.cancel = cancel
	return nil
}

// Synchronize yields state updates until the target reports
// sync_response. On the first call it sends the SubscribeRequest.
func (s *Subscription) Synchronize(ctx context.Context) iter.Seq2[Update, error] {
	return func(yield func(Update, error) bool) {
		if s.stream == nil {
			if err := s.open(ctx); err != nil {
				yield(Update{}, err)
				return
			}
		}
		s.synced = false
		for {
			resp, err := s.stream.Recv()
			if err != nil {
				if !errors.Is(err, io.EOF) {
					yield(Update{}, err)
				}
				return
			}
			switch r := resp.GetResponse().(type) {
			case *gpb.SubscribeResponse_SyncResponse:
				s.synced = true
				return
			case *gpb.SubscribeResponse_Update:
				for _, u := range flatten(r.Update) {
					if !yield(u, nil) {
						return
					}
				}
			default:
				yield(Update{}, fmt.Errorf("unexpected subscribe response %T", r))
				return
			}
		}
	}
}

// Updates yields notifications after synchronization, until the stream
// ends or the iterator is abandoned.
func (s *Subscription) Updates(ctx context.Context) iter.Seq2[Update, error] {
	return func(yield func(Update, error) bool) {
		if s.stream == nil {
			yield(Update{}, errors.New("subscription not synchronized"))
			return
		}
		for {
			if ctx.Err() != nil {
				return
			}
			resp, err := s.stream.Recv()
			if err != nil {
				if !errors.Is(err, io.EOF) && ctx.Err() == nil {
					yield(Update{}, err)
				}
				return
			}
			switch r := resp.GetResponse().(type) {
			case *gpb.SubscribeResponse_SyncResponse:
				// A later sync marker is informational here.
			case *gpb.SubscribeResponse_Update:
				for _, u := range flatten(r.Update) {
					if !yield(u, nil) {
						return
					}
				}
			}
		}
	}
}

// Synced reports whether the initial synchronization completed.
func (s *Subscription) Synced() bool { return s.synced }

// Cancel tears the stream down. A fresh Subscribe/Synchronize yields
// exactly one new sync_response before further updates.
func (s *Subscription) Cancel() {
	if s.cancel != nil {
		s.cancel()
		s.stream = nil
		s.cancel = nil
	}
}
