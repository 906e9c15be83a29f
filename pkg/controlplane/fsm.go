package controlplane

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"
	"golang.org/x/sync/errgroup"
	"google.golang.org/genproto/googleapis/rpc/code"

	"github.com/byllyfish/finsy/internal/logger"
	"github.com/byllyfish/finsy/pkg/gnmiclient"
	"github.com/byllyfish/finsy/pkg/p4/client"
	"github.com/byllyfish/finsy/pkg/p4/schema"
)

// Run drives the switch once: a single connection attempt with no
// retry. Connection failures surface immediately. This is the
// single-shot entry point; a Controller uses the supervised one.
func (sw *Switch) Run(ctx context.Context) error {
	err := sw.runOnce(ctx)
	sw.setState(StateClosed)
	if err != nil && !errors.Is(err, context.Canceled) {
		return &SwitchError{Switch: sw.name, Err: err}
	}
	return nil
}

// runSupervised keeps the switch alive: reconnect with exponential
// backoff (with jitter, capped), reset once an epoch reaches READY.
// Only context cancellation — or a programming error under FailFast —
// ends the loop.
func (sw *Switch) runSupervised(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = 500 * time.Millisecond
	bo.MaxInterval = 30 * time.Second
	bo.MaxElapsedTime = 0 // retry forever

	for {
		reachedReady := false
		sw.onReadyReached = func() { reachedReady = true }
		err := sw.runOnce(ctx)
		sw.onReadyReached = nil

		if ctx.Err() != nil {
			sw.setState(StateClosed)
			return ctx.Err()
		}
		if err != nil && sw.opts.FailFast && isProgrammingError(err) {
			sw.setState(StateClosed)
			return &SwitchError{Switch: sw.name, Err: err}
		}
		if err != nil && !client.IsTransient(err) && !errors.Is(err, errPrimaryLost) {
			logger.Warn("channel failed", logger.Switch(sw.name), logger.Err(err))
		}
		if reachedReady {
			bo.Reset()
		}

		wait := bo.NextBackOff()
		logger.Debug("reconnecting", logger.Switch(sw.name), "backoff", wait.String())
		select {
		case <-ctx.Done():
			sw.setState(StateClosed)
			return ctx.Err()
		case <-time.After(wait):
		}
	}
}

// runOnce runs one connection epoch: CONNECTING → HANDSHAKING →
// PIPELINE_CHECK → READY, returning when the epoch ends.
func (sw *Switch) runOnce(ctx context.Context) error {
	sw.setState(StateConnecting)

	cl := client.New(sw.address.String(), client.Options{
		DeviceID:    sw.opts.DeviceID,
		Role:        sw.opts.RoleName,
		RoleConfig:  sw.opts.RoleConfig,
		Credentials: sw.opts.Credentials,
		CallTimeout: sw.opts.CallTimeout,
	})
	if err := cl.Dial(); err != nil {
		return err
	}
	defer cl.Close()

	stream, err := cl.OpenStream(ctx)
	if err != nil {
		return err
	}
	defer stream.Close()

	sw.mu.Lock()
	sw.cl = cl
	sw.stream = stream
	sw.gnmi = gnmiclient.FromConn(cl.Conn())
	sw.mu.Unlock()
	defer func() {
		sw.mu.Lock()
		sw.cl = nil
		sw.stream = nil
		sw.mu.Unlock()
		sw.emitter.Emit(EventChannelDown, sw)
	}()

	sw.emitter.Emit(EventChannelUp, sw)
	logger.Debug("channel up", logger.Switch(sw.name), logger.Target(sw.address.String()),
		logger.Device(sw.opts.DeviceID), "session", sw.sessionID)

	// HANDSHAKING: negotiate arbitration.
	sw.setState(StateHandshaking)
	if err := sw.arbitrate(ctx, cl, stream); err != nil {
		return err
	}

	// PIPELINE_CHECK: install or adopt the pipeline.
	sw.setState(StatePipelineCheck)
	if err := sw.checkPipeline(ctx, cl); err != nil {
		return err
	}

	return sw.ready(ctx, stream)
}

// arbitrate sends MasterArbitrationUpdate and processes responses until
// the election settles. A returned election id at or above ours lowers
// the local id (never to 0) and resends; status OK makes us primary,
// ALREADY_EXISTS backup.
func (sw *Switch) arbitrate(ctx context.Context, cl *client.Client, stream *client.Stream) error {
	electionID := sw.ElectionID()
	if electionID.IsZero() {
		electionID = sw.opts.InitialElectionID
	}

	send := func(id Uint128) error {
		arb := &p4v1.MasterArbitrationUpdate{
			DeviceId:   sw.opts.DeviceID,
			ElectionId: id.wire(),
		}
		if sw.opts.RoleName != "" || sw.opts.RoleConfig != nil {
			arb.Role = &p4v1.Role{Name: sw.opts.RoleName, Config: sw.opts.RoleConfig}
		}
		return stream.SendArbitration(ctx, arb)
	}
	if err := send(electionID); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-stream.Done():
			return stream.Err()
		case arb := <-stream.Arbitrations():
			statusCode := code.Code(arb.GetStatus().GetCode())
			switch statusCode {
			case code.Code_OK:
				sw.finishArbitration(cl, electionID, true)
				return nil
			case code.Code_ALREADY_EXISTS:
				primary := uint128Of(arb.GetElectionId())
				if next, ok := nextElectionID(electionID, primary); ok {
					electionID = next
					if err := send(electionID); err != nil {
						return err
					}
					continue
				}
				sw.finishArbitration(cl, electionID, false)
				return nil
			default:
				return &SwitchError{Switch: sw.name, Err: errors.New("arbitration rejected: " + arb.GetStatus().GetMessage())}
			}
		}
	}
}

// nextElectionID steps our bid below both the current value and the
// reported primary, so the retry lands on the highest free id. The
// reserved id 0 is never used; when no lower id remains (or stepping
// would not change anything) the client settles as backup.
func nextElectionID(ours, primary Uint128) (Uint128, bool) {
	next := ours
	if primary.Less(next) {
		next = primary
	}
	next = next.Dec()
	if next.IsZero() || next == ours {
		return ours, false
	}
	return next, true
}

func (sw *Switch) finishArbitration(cl *client.Client, electionID Uint128, primary bool) {
	sw.mu.Lock()
	sw.electionID = electionID
	sw.mu.Unlock()
	cl.SetElectionID(electionID.wire())
	sw.setPrimary(primary)
	logger.Info("arbitration complete", logger.Switch(sw.name),
		"primary", primary, "election_id", electionID.String())
	if primary {
		sw.emitter.Emit(EventBecamePrimary, sw)
	} else {
		sw.emitter.Emit(EventBecameBackup, sw)
	}
}

// loadDesired parses the configured pipeline once.
func (sw *Switch) loadDesired() (*schema.Schema, []byte, error) {
	sw.desiredOnce.Do(func() {
		if !sw.opts.hasPipeline() {
			return
		}
		var s *schema.Schema
		var err error
		if sw.opts.P4InfoPath != "" {
			s, err = schema.Load(sw.opts.P4InfoPath)
		} else {
			s, err = schema.Parse(sw.opts.P4InfoBytes)
		}
		if err != nil {
			sw.desiredErr = err
			return
		}
		blob, err := sw.opts.loadBlob()
		if err != nil {
			sw.desiredErr = err
			return
		}
		sw.desired = s
		sw.desiredBlob = blob
	})
	return sw.desired, sw.desiredBlob, sw.desiredErr
}

// checkPipeline compares cookies and installs or adopts the pipeline.
func (sw *Switch) checkPipeline(ctx context.Context, cl *client.Client) error {
	desired, blob, err := sw.loadDesired()
	if err != nil {
		return err
	}

	if desired == nil {
		// No configured pipeline: adopt whatever the device runs.
		cfg, err := cl.GetForwardingPipelineConfig(ctx, p4v1.GetForwardingPipelineConfigRequest_P4INFO_AND_COOKIE)
		if err != nil {
			return err
		}
		if cfg.GetP4Info() != nil {
			s, err := schema.FromProto(cfg.GetP4Info())
			if err != nil {
				return err
			}
			sw.attachSchema(s, cfg.GetCookie().GetCookie())
		}
		return nil
	}

	wantCookie, err := desired.Cookie(blob)
	if err != nil {
		return err
	}
	cfg, err := cl.GetForwardingPipelineConfig(ctx, p4v1.GetForwardingPipelineConfigRequest_COOKIE_ONLY)
	if err != nil {
		return err
	}
	haveCookie := cfg.GetCookie().GetCookie()

	if haveCookie == wantCookie && !sw.opts.ForceReload {
		sw.attachSchema(desired, wantCookie)
		return nil
	}

	if !sw.IsPrimary() {
		// Backups cannot install; run with the device's P4Info.
		devCfg, err := cl.GetForwardingPipelineConfig(ctx, p4v1.GetForwardingPipelineConfigRequest_P4INFO_AND_COOKIE)
		if err != nil {
			return err
		}
		if devCfg.GetP4Info() == nil {
			sw.attachSchema(desired, wantCookie)
			return nil
		}
		s, err := schema.FromProto(devCfg.GetP4Info())
		if err != nil {
			return err
		}
		if devCfg.GetCookie().GetCookie() != wantCookie {
			logger.Warn("backup: device pipeline differs from configured one",
				logger.Switch(sw.name))
		}
		sw.attachSchema(s, devCfg.GetCookie().GetCookie())
		return nil
	}

	action := p4v1.SetForwardingPipelineConfigRequest_VERIFY_AND_COMMIT
	if !sw.opts.ForceReload && haveCookie != 0 {
		action = p4v1.SetForwardingPipelineConfigRequest_RECONCILE_AND_COMMIT
	}
	if err := cl.SetForwardingPipelineConfig(ctx, action, desired.P4Info(), blob, wantCookie); err != nil {
		return &PipelineError{Switch: sw.name, Err: err}
	}
	sw.attachSchema(desired, wantCookie)
	logger.Info("pipeline installed", logger.Switch(sw.name), "cookie", wantCookie)
	sw.emitter.Emit(EventPipelineReady, sw)
	return nil
}

func (sw *Switch) attachSchema(s *schema.Schema, cookie uint64) {
	sw.mu.Lock()
	sw.schema = s
	sw.cookie = cookie
	sw.mu.Unlock()
}

// ready runs the user handler under a fresh task group and supervises
// the epoch until the stream ends, primary status is lost, or the
// context is cancelled.
func (sw *Switch) ready(ctx context.Context, stream *client.Stream) error {
	readyCtx, stop := context.WithCancel(ctx)
	defer stop()
	group, groupCtx := errgroup.WithContext(readyCtx)

	sw.mu.Lock()
	sw.tasks = group
	sw.tasksCtx = groupCtx
	sw.tasksStop = stop
	sw.state = StateReady
	sw.mu.Unlock()
	defer func() {
		sw.mu.Lock()
		sw.tasks = nil
		sw.tasksCtx = nil
		sw.tasksStop = nil
		sw.mu.Unlock()
	}()

	sw.emitter.Emit(EventChannelReady, sw)
	if sw.onReadyReached != nil {
		sw.onReadyReached()
	}

	if handler := sw.opts.ReadyHandler; handler != nil {
		group.Go(func() error {
			defer func() {
				if r := recover(); r != nil {
					logger.Error("ready handler panicked", logger.Switch(sw.name), "panic", r)
				}
			}()
			if err := handler(groupCtx, sw); err != nil && !client.IsCancelled(err) {
				return &SwitchError{Switch: sw.name, Err: err}
			}
			return nil
		})
	}

	groupDone := make(chan error, 1)
	go func() { groupDone <- group.Wait() }()

	for {
		select {
		case <-ctx.Done():
			sw.leaveReady(stop, groupDone)
			return ctx.Err()

		case <-stream.Done():
			sw.setState(StateDegraded)
			sw.leaveReady(stop, groupDone)
			return stream.Err()

		case arb := <-stream.Arbitrations():
			primary := code.Code(arb.GetStatus().GetCode()) == code.Code_OK
			if sw.setPrimary(primary) {
				if primary {
					sw.emitter.Emit(EventBecamePrimary, sw)
				} else {
					sw.emitter.Emit(EventBecameBackup, sw)
					sw.setState(StateDegraded)
					sw.leaveReady(stop, groupDone)
					return errPrimaryLost
				}
			}

		case err := <-groupDone:
			if err != nil {
				// A failing handler ends the epoch; the supervisor
				// logs and reconnects, or propagates with FailFast.
				sw.setState(StateDegraded)
				return err
			}
			// All tasks completed; stay READY until the channel ends.
			groupDone = nil

		}
	}
}

// leaveReady cancels the task group and waits for its tasks.
func (sw *Switch) leaveReady(stop context.CancelFunc, groupDone chan error) {
	stop()
	if groupDone != nil {
		<-groupDone
	}
}
