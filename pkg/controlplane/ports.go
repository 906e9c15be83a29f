package controlplane

import (
	"context"
	"strings"

	"github.com/byllyfish/finsy/internal/logger"
	"github.com/byllyfish/finsy/pkg/gnmipath"
)

var operStatusPath = gnmipath.MustParse("interfaces/interface[name=*]/state/oper-status")

// WatchPorts subscribes to interface oper-status over gNMI and emits
// PORT_UP / PORT_DOWN events with the interface name. It blocks until
// the context is cancelled; run it as a managed task:
//
//	sw.CreateTask("ports", sw.WatchPorts)
func (sw *Switch) WatchPorts(ctx context.Context) error {
	gnmi := sw.GNMI()
	if gnmi == nil {
		return &SwitchError{Switch: sw.name, Err: errNotReady}
	}
	sub := gnmi.Subscribe().OnChange(operStatusPath)
	defer sub.Cancel()

	emit := func(path gnmipath.Path, status string) {
		name, ok := path.Key("interface", "name")
		if !ok {
			return
		}
		switch strings.ToUpper(status) {
		case "UP":
			sw.emitter.Emit(EventPortUp, sw, name)
		case "DOWN", "LOWER_LAYER_DOWN", "NOT_PRESENT":
			sw.emitter.Emit(EventPortDown, sw, name)
		}
	}

	for u, err := range sub.Synchronize(ctx) {
		if err != nil {
			return &SwitchError{Switch: sw.name, Err: err}
		}
		emit(u.Path, u.Value.GetStringVal())
	}
	for u, err := range sub.Updates(ctx) {
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return &SwitchError{Switch: sw.name, Err: err}
		}
		logger.Debug("port status change", logger.Switch(sw.name),
			"path", u.Path.String(), "status", u.Value.GetStringVal())
		emit(u.Path, u.Value.GetStringVal())
	}
	return nil
}
