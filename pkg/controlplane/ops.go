package controlplane

import (
	"context"
	"errors"
	"fmt"
	"iter"

	p4v1 "github.com/p4lang/p4runtime/go/p4/v1"

	"github.com/byllyfish/finsy/internal/logger"
	"github.com/byllyfish/finsy/pkg/p4/client"
	"github.com/byllyfish/finsy/pkg/p4/entity"
	"github.com/byllyfish/finsy/pkg/p4/schema"
)

// errNotReady reports an operation attempted outside an active channel.
var errNotReady = errors.New("switch channel is not open")

func (sw *Switch) session() (*client.Client, *client.Stream, *schema.Schema, error) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.cl == nil || sw.stream == nil {
		return nil, nil, nil, &SwitchError{Switch: sw.name, Err: errNotReady}
	}
	return sw.cl, sw.stream, sw.schema, nil
}

// WriteOpt adjusts a Write call.
type WriteOpt func(*writeOpts)

type writeOpts struct {
	atomicity p4v1.WriteRequest_Atomicity
	warnOnly  bool
	strict    bool
}

// WithAtomicity sets the WriteRequest atomicity hint.
func WithAtomicity(a p4v1.WriteRequest_Atomicity) WriteOpt {
	return func(o *writeOpts) { o.atomicity = a }
}

// WarnOnly downgrades write failures to a log line.
func WarnOnly() WriteOpt {
	return func(o *writeOpts) { o.warnOnly = true }
}

// NoStrict swallows NOT_FOUND failures on DELETE and MODIFY.
func NoStrict() WriteOpt {
	return func(o *writeOpts) { o.strict = false }
}

// Insert writes the entities with a uniform INSERT op.
func (sw *Switch) Insert(ctx context.Context, entities ...entity.Entity) error {
	return sw.writeUniform(ctx, entity.OpInsert, entities)
}

// Modify writes the entities with a uniform MODIFY op.
func (sw *Switch) Modify(ctx context.Context, entities ...entity.Entity) error {
	return sw.writeUniform(ctx, entity.OpModify, entities)
}

// Delete writes the entities with a uniform DELETE op.
func (sw *Switch) Delete(ctx context.Context, entities ...entity.Entity) error {
	return sw.writeUniform(ctx, entity.OpDelete, entities)
}

func (sw *Switch) writeUniform(ctx context.Context, op entity.Op, entities []entity.Entity) error {
	items := make([]any, len(entities))
	for i, e := range entities {
		items[i] = entity.Update{Op: op, Entity: e}
	}
	return sw.Write(ctx, items)
}

// Write sends a mixed batch. Updates (or bare modify-only entities)
// form one WriteRequest; stream auxiliaries (PacketOut, DigestListAck)
// are flushed to the stream first, preserving their relative order.
func (sw *Switch) Write(ctx context.Context, items []any, opts ...WriteOpt) error {
	wo := writeOpts{strict: true}
	for _, opt := range opts {
		opt(&wo)
	}
	cl, stream, sch, err := sw.session()
	if err != nil {
		return err
	}

	var updates []*p4v1.Update
	hasInsert := false
	for _, item := range items {
		switch it := item.(type) {
		case entity.Outbound:
			req, err := it.EncodeRequest(sch)
			if err != nil {
				return &SwitchError{Switch: sw.name, Err: err}
			}
			if err := stream.Send(ctx, req); err != nil {
				return &SwitchError{Switch: sw.name, Err: err}
			}
		case entity.Update:
			u, err := it.Encode(sch)
			if err != nil {
				return &SwitchError{Switch: sw.name, Err: err}
			}
			if u.GetType() == p4v1.Update_INSERT {
				hasInsert = true
			}
			updates = append(updates, u)
		case entity.Entity:
			// Untagged entities default to MODIFY for modify-only
			// kinds; anything else must carry an explicit op.
			u, err := entity.Update{Entity: it}.Encode(sch)
			if err != nil {
				return &SwitchError{Switch: sw.name, Err: err}
			}
			updates = append(updates, u)
		default:
			return &SwitchError{Switch: sw.name, Err: fmt.Errorf("cannot write %T", item)}
		}
	}

	if len(updates) == 0 {
		return nil
	}
	err = cl.Write(ctx, updates, wo.atomicity)
	if err == nil {
		return nil
	}
	var ce *client.ClientError
	if errors.As(err, &ce) {
		if !wo.strict && !hasInsert && ce.OnlyNotFound() {
			logger.Debug("ignoring NOT_FOUND write failures", logger.Switch(sw.name))
			return nil
		}
	}
	if wo.warnOnly {
		logger.Warn("write failed", logger.Switch(sw.name), logger.Err(err))
		return nil
	}
	return &SwitchError{Switch: sw.name, Err: err}
}

// Read issues a read for the given patterns and lazily yields decoded
// entities in server order. A zero-valued pattern is a wildcard.
func (sw *Switch) Read(ctx context.Context, patterns ...entity.Entity) iter.Seq2[entity.Entity, error] {
	return func(yield func(entity.Entity, error) bool) {
		cl, _, sch, err := sw.session()
		if err != nil {
			yield(nil, err)
			return
		}
		var wire []*p4v1.Entity
		for _, p := range patterns {
			e, err := entity.EncodeRead(p, sch)
			if err != nil {
				yield(nil, &SwitchError{Switch: sw.name, Err: err})
				return
			}
			wire = append(wire, e)
		}
		for pb, err := range cl.Read(ctx, wire) {
			if err != nil {
				yield(nil, &SwitchError{Switch: sw.name, Err: err})
				return
			}
			dec, err := entity.Decode(pb, sch)
			if err != nil {
				yield(nil, &SwitchError{Switch: sw.name, Err: err})
				return
			}
			if !yield(dec, nil) {
				return
			}
		}
	}
}

// surfaceDrops emits a STREAM_ERROR event when a subscription sheds
// messages.
func (sw *Switch) surfaceDrops(last *uint64, dropped uint64) {
	if dropped > *last {
		sw.emitter.Emit(EventStreamError, sw, dropped-*last)
		logger.Warn("stream consumer fell behind", logger.Switch(sw.name), logger.Dropped(dropped))
		*last = dropped
	}
}

// ReadPackets yields packet-ins, optionally filtered to the given
// Ethernet types. Abandoning the iterator unregisters the consumer.
func (sw *Switch) ReadPackets(ctx context.Context, ethTypes ...uint16) iter.Seq2[*entity.PacketIn, error] {
	return func(yield func(*entity.PacketIn, error) bool) {
		_, stream, sch, err := sw.session()
		if err != nil {
			yield(nil, err)
			return
		}
		sub := stream.SubscribePackets(ethTypes)
		defer sub.Cancel()
		var drops uint64
		for {
			pb, ok := sub.Recv(ctx)
			if !ok {
				return
			}
			sw.surfaceDrops(&drops, sub.Dropped())
			p, err := entity.DecodePacketIn(pb, sch)
			if err != nil {
				if !yield(nil, &SwitchError{Switch: sw.name, Err: err}) {
					return
				}
				continue
			}
			if !yield(p, nil) {
				return
			}
		}
	}
}

// ReadDigests yields digest lists for the named digest.
func (sw *Switch) ReadDigests(ctx context.Context, digestName string) iter.Seq2[*entity.DigestList, error] {
	return func(yield func(*entity.DigestList, error) bool) {
		_, stream, sch, err := sw.session()
		if err != nil {
			yield(nil, err)
			return
		}
		dg, err := sch.Digest(digestName)
		if err != nil {
			yield(nil, &SwitchError{Switch: sw.name, Err: err})
			return
		}
		sub := stream.SubscribeDigests(dg.ID)
		defer sub.Cancel()
		var drops uint64
		for {
			pb, ok := sub.Recv(ctx)
			if !ok {
				return
			}
			sw.surfaceDrops(&drops, sub.Dropped())
			d, err := entity.DecodeDigestList(pb, sch)
			if err != nil {
				if !yield(nil, &SwitchError{Switch: sw.name, Err: err}) {
					return
				}
				continue
			}
			if !yield(d, nil) {
				return
			}
		}
	}
}

// ReadIdleTimeouts yields idle-timeout notifications.
func (sw *Switch) ReadIdleTimeouts(ctx context.Context) iter.Seq2[*entity.IdleTimeoutNotification, error] {
	return func(yield func(*entity.IdleTimeoutNotification, error) bool) {
		_, stream, sch, err := sw.session()
		if err != nil {
			yield(nil, err)
			return
		}
		sub := stream.SubscribeIdleTimeouts()
		defer sub.Cancel()
		var drops uint64
		for {
			pb, ok := sub.Recv(ctx)
			if !ok {
				return
			}
			sw.surfaceDrops(&drops, sub.Dropped())
			n, err := entity.DecodeIdleTimeout(pb, sch)
			if err != nil {
				if !yield(nil, &SwitchError{Switch: sw.name, Err: err}) {
					return
				}
				continue
			}
			if !yield(n, nil) {
				return
			}
		}
	}
}

// Capabilities returns the switch's P4Runtime API version.
func (sw *Switch) Capabilities(ctx context.Context) (string, error) {
	cl, _, _, err := sw.session()
	if err != nil {
		return "", err
	}
	return cl.Capabilities(ctx)
}

// SendPacket injects a packet-out on the stream.
func (sw *Switch) SendPacket(ctx context.Context, p *entity.PacketOut) error {
	return sw.Write(ctx, []any{p})
}

// AckDigest acknowledges a digest list on the stream.
func (sw *Switch) AckDigest(ctx context.Context, d *entity.DigestList) error {
	return sw.Write(ctx, []any{d.Ack()})
}

// DeleteAll removes every writable entity: table entries (skipping
// const tables), action profile groups and members, multicast groups,
// clone sessions and digest configs, and empties value sets. Default
// table entries are reset. Best effort: what the target preserves
// beyond P4Runtime semantics is out of scope.
func (sw *Switch) DeleteAll(ctx context.Context) error {
	_, _, sch, err := sw.session()
	if err != nil {
		return err
	}

	// Table entries first; they may reference profile members/groups.
	var tableDeletes []any
	var defaultResets []any
	for e, err := range sw.Read(ctx, &entity.TableEntry{}) {
		if err != nil {
			return err
		}
		te, ok := e.(*entity.TableEntry)
		if !ok {
			continue
		}
		t, terr := sch.Table(te.Table)
		if terr != nil || t.IsConst {
			continue
		}
		if te.IsDefaultAction {
			if t.ConstDefaultAction == 0 {
				defaultResets = append(defaultResets, entity.Modify(&entity.TableEntry{
					Table:           te.Table,
					IsDefaultAction: true,
				}))
			}
			continue
		}
		// Only key fields identify the entry on DELETE.
		tableDeletes = append(tableDeletes, entity.Delete(&entity.TableEntry{
			Table:    te.Table,
			Match:    te.Match,
			Priority: te.Priority,
		}))
	}
	if err := sw.Write(ctx, tableDeletes, NoStrict()); err != nil {
		return err
	}
	if err := sw.Write(ctx, defaultResets, NoStrict(), WarnOnly()); err != nil {
		return err
	}

	// Groups before members.
	var deletes []any
	for e, err := range sw.Read(ctx, &entity.ActionProfileGroup{}) {
		if err != nil {
			return err
		}
		deletes = append(deletes, entity.Delete(e))
	}
	if err := sw.Write(ctx, deletes, NoStrict()); err != nil {
		return err
	}
	deletes = deletes[:0]
	for e, err := range sw.Read(ctx, &entity.ActionProfileMember{}) {
		if err != nil {
			return err
		}
		deletes = append(deletes, entity.Delete(e))
	}
	if err := sw.Write(ctx, deletes, NoStrict()); err != nil {
		return err
	}

	// Packet replication entries.
	deletes = deletes[:0]
	for e, err := range sw.Read(ctx, &entity.MulticastGroupEntry{}, &entity.CloneSessionEntry{}) {
		if err != nil {
			return err
		}
		deletes = append(deletes, entity.Delete(e))
	}
	if err := sw.Write(ctx, deletes, NoStrict()); err != nil {
		return err
	}

	// Digest configs and value sets come from the schema: reads of
	// unconfigured digests return nothing on some targets.
	deletes = deletes[:0]
	for _, d := range sch.Digests() {
		name := d.Alias
		if name == "" {
			name = d.Name
		}
		deletes = append(deletes, entity.Delete(&entity.DigestEntry{Digest: name}))
	}
	if err := sw.Write(ctx, deletes, NoStrict(), WarnOnly()); err != nil {
		return err
	}

	var clears []any
	for _, vs := range sch.ValueSets() {
		name := vs.Alias
		if name == "" {
			name = vs.Name
		}
		clears = append(clears, entity.Modify(&entity.ValueSetEntry{ValueSet: name}))
	}
	return sw.Write(ctx, clears, NoStrict(), WarnOnly())
}
