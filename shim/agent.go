package shim

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
	"github.com/bluetuith-org/ble-session/internal/transport"
	"github.com/bluetuith-org/ble-session/shim/internal/commands"
)

// agent answers the requests of bluetoothctl's pairing agent
// with the session's authorizer.
type agent struct {
	authorizer bluetooth.SessionAuthorizer
	timeout    time.Duration

	// pairing holds the device of the last pairing request, since
	// the agent's prompts do not name the device.
	pairing bluetooth.MacAddress

	mu sync.Mutex
}

func newAgent(timeout time.Duration) *agent {
	return &agent{timeout: timeout}
}

// RegisterAgent registers bluetoothctl's agent as the default pairing agent,
// and forwards its requests to authorizer.
func (s *ShimSession) RegisterAgent(ctx context.Context, authorizer bluetooth.SessionAuthorizer, cfg config.Configuration) error {
	s.agent.setAuthorizer(authorizer, cfg.AuthTimeout)

	for _, cmd := range []*commands.Command[commands.NoResult]{commands.AgentOn(), commands.DefaultAgent()} {
		if _, err := execute(ctx, s, cmd, cfg.PollSlice); err != nil {
			return fault.Wrap(err,
				fctx.With(ctx, "error_at", "register-agent", "command", cmd.String()),
				ftag.With(ftag.Internal),
				fmsg.With("Cannot register the bluetoothctl agent"),
			)
		}
	}

	return nil
}

func (a *agent) setAuthorizer(authorizer bluetooth.SessionAuthorizer, timeout time.Duration) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.authorizer = authorizer
	a.timeout = timeout
}

func (a *agent) setPairing(address bluetooth.MacAddress) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.pairing = address
}

// handle forwards a request to the authorizer. Requests which expect
// a reply are answered on channel once the authorizer returns.
func (a *agent) handle(log *slog.Logger, channel transport.Channel, request bluetooth.AuthEventData) {
	a.mu.Lock()
	authorizer := a.authorizer
	request.Address = a.pairing
	request.TimeoutMs = int(a.timeout.Milliseconds())
	a.mu.Unlock()

	if authorizer == nil {
		log.Warn("agent request without an authorizer", "event", request.EventID)
		return
	}

	// The reader must not block on the authorizer.
	go func() {
		err := request.CallAuthorizer(authorizer, func(ev bluetooth.AuthEventData, reply bluetooth.AuthReply, err error) {
			if reply.ReplyMethod != bluetooth.ReplyYesNo {
				return
			}

			answer := "yes"
			if err != nil {
				answer = "no"
				log.Info("agent request rejected", "event", ev.EventID, "address", ev.Address.String(), "error", err)
			}

			if serr := channel.Send(answer); serr != nil {
				log.Warn("cannot reply to agent request", "event", ev.EventID, "error", serr)
			}
		})
		if err != nil {
			log.Warn("cannot forward agent request", "event", request.EventID, "error", err)
		}
	}()
}
