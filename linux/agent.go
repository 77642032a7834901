//go:build linux

package linux

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/bluetuith-org/ble-session/api/bluetooth"
	"github.com/bluetuith-org/ble-session/api/config"
	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
)

// agent is an org.bluez.Agent1 object, which forwards the
// requests of BlueZ to the session's authorizer.
type agent struct {
	path dbus.ObjectPath
	log  *slog.Logger

	authorizer bluetooth.SessionAuthorizer
	timeout    time.Duration
	registered bool

	mu sync.Mutex
}

func newAgent(path dbus.ObjectPath, log *slog.Logger) *agent {
	return &agent{path: path, log: log}
}

// RegisterAgent exports the agent, and registers it as the default agent.
func (b *BluezSession) RegisterAgent(ctx context.Context, authorizer bluetooth.SessionAuthorizer, cfg config.Configuration) error {
	b.agent.mu.Lock()
	b.agent.authorizer = authorizer
	b.agent.timeout = cfg.AuthTimeout
	b.agent.mu.Unlock()

	if err := b.conn.Export(b.agent, b.agent.path, bluezAgent); err != nil {
		return fault.Wrap(err,
			fctx.With(ctx, "error_at", "export-agent", "path", string(b.agent.path)),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot export the pairing agent"),
		)
	}

	for _, call := range []struct {
		method string
		args   []interface{}
	}{
		{"RegisterAgent", []interface{}{b.agent.path, agentCapability}},
		{"RequestDefaultAgent", []interface{}{b.agent.path}},
	} {
		if err := b.call(ctx, bluezRoot, bluezAgentManager+"."+call.method, call.args...).Err; err != nil {
			_ = b.conn.Export(nil, b.agent.path, bluezAgent)

			return fault.Wrap(err,
				fctx.With(ctx, "error_at", "register-agent", "method", call.method),
				ftag.With(ftag.Internal),
				fmsg.With("Cannot register the pairing agent"),
			)
		}
	}

	b.agent.mu.Lock()
	b.agent.registered = true
	b.agent.mu.Unlock()

	return nil
}

func (a *agent) unregister(ctx context.Context, conn busConn) {
	a.mu.Lock()
	registered := a.registered
	a.registered = false
	a.mu.Unlock()

	if !registered {
		return
	}

	call := conn.Object(bluezBus, bluezRoot).CallWithContext(ctx, bluezAgentManager+".UnregisterAgent", 0, a.path)
	if call.Err != nil {
		a.log.Debug("cannot unregister the pairing agent", "error", call.Err)
	}

	_ = conn.Export(nil, a.path, bluezAgent)
}

// authorize forwards a request to the authorizer, and converts a rejection
// into the error BlueZ expects.
func (a *agent) authorize(request bluetooth.AuthEventData) *dbus.Error {
	a.mu.Lock()
	authorizer := a.authorizer
	request.TimeoutMs = int(a.timeout.Milliseconds())
	a.mu.Unlock()

	var rejected error
	err := request.CallAuthorizer(authorizer, func(_ bluetooth.AuthEventData, _ bluetooth.AuthReply, err error) {
		rejected = err
	})
	if err != nil {
		a.log.Warn("cannot forward agent request", "event", request.EventID, "error", err)
		return dbus.NewError(rejectedError, []interface{}{err.Error()})
	}

	if rejected != nil {
		a.log.Info("agent request rejected", "event", request.EventID, "address", request.Address.String(), "error", rejected)
		return dbus.NewError(rejectedError, []interface{}{rejected.Error()})
	}

	return nil
}

func (a *agent) request(device dbus.ObjectPath, event bluetooth.AuthEventID, reply bluetooth.AuthReplyMethod) bluetooth.AuthEventData {
	address, ok := addressFromPath(device)
	if !ok {
		a.log.Debug("agent request for an unknown object", "path", device)
	}

	return bluetooth.AuthEventData{
		EventID:     event,
		ReplyMethod: reply,
		Address:     address,
	}
}

// Release is called when BlueZ unregisters the agent.
func (a *agent) Release() *dbus.Error {
	a.mu.Lock()
	a.registered = false
	a.mu.Unlock()

	return nil
}

// RequestPinCode is rejected, since the authorizer cannot supply input.
func (a *agent) RequestPinCode(device dbus.ObjectPath) (string, *dbus.Error) {
	return "", dbus.NewError(rejectedError, []interface{}{"PIN code input is not supported"})
}

// RequestPasskey is rejected, since the authorizer cannot supply input.
func (a *agent) RequestPasskey(device dbus.ObjectPath) (uint32, *dbus.Error) {
	return 0, dbus.NewError(rejectedError, []interface{}{"passkey input is not supported"})
}

func (a *agent) DisplayPinCode(device dbus.ObjectPath, pincode string) *dbus.Error {
	request := a.request(device, bluetooth.DisplayPinCode, bluetooth.ReplyNone)
	request.Pincode = pincode

	return a.authorize(request)
}

func (a *agent) DisplayPasskey(device dbus.ObjectPath, passkey uint32, entered uint16) *dbus.Error {
	request := a.request(device, bluetooth.DisplayPasskey, bluetooth.ReplyNone)
	request.Passkey = passkey
	request.Entered = entered

	return a.authorize(request)
}

func (a *agent) RequestConfirmation(device dbus.ObjectPath, passkey uint32) *dbus.Error {
	request := a.request(device, bluetooth.ConfirmPasskey, bluetooth.ReplyYesNo)
	request.Passkey = passkey

	return a.authorize(request)
}

func (a *agent) RequestAuthorization(device dbus.ObjectPath) *dbus.Error {
	return a.authorize(a.request(device, bluetooth.AuthorizePairing, bluetooth.ReplyYesNo))
}

func (a *agent) AuthorizeService(device dbus.ObjectPath, service string) *dbus.Error {
	id, err := uuid.Parse(service)
	if err != nil {
		return dbus.NewError(rejectedError, []interface{}{"invalid service UUID " + service})
	}

	request := a.request(device, bluetooth.AuthorizeService, bluetooth.ReplyYesNo)
	request.UUID = id

	return a.authorize(request)
}

// Cancel is called when BlueZ cancels a pending request.
func (a *agent) Cancel() *dbus.Error {
	a.log.Debug("agent request canceled")
	return nil
}
