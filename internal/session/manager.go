// Package session implements the verb state machine shared by all backends:
// availability checks, idempotence shortcuts, attribute resolution, write
// verification and recovery from known backend failures.
package session

import (
	"context"
	"errors"
	"log/slog"
	"math/rand"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/bluetuith-org/ble-session/api/bluetooth"
	"github.com/bluetuith-org/ble-session/api/config"
	"github.com/bluetuith-org/ble-session/api/errorkinds"
	"github.com/bluetuith-org/ble-session/api/eventbus"
	"github.com/bluetuith-org/ble-session/internal/logger"
	"github.com/bluetuith-org/ble-session/internal/metrics"
	"github.com/bluetuith-org/ble-session/internal/policy"
	"github.com/bluetuith-org/ble-session/internal/serde"
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/puzpuzpuz/xsync/v3"
)

// Manager is a bluetooth.Session over a Backend.
type Manager struct {
	backend Backend

	cfg     config.Configuration
	policy  policy.Policy
	bus     *eventbus.Bus
	metrics *metrics.Metrics

	log       *slog.Logger
	baseLog   *slog.Logger
	logCloser func() error
	id        string

	controller    bluetooth.ControllerData
	notifications *xsync.MapOf[string, bluetooth.Handle]
	notifyMu      sync.Mutex

	sessionClosed atomic.Bool

	sync.Mutex
}

var _ bluetooth.Session = (*Manager)(nil)

// New returns a new session manager over backend.
func New(backend Backend) *Manager {
	m := &Manager{backend: backend}
	m.sessionClosed.Store(true)

	return m
}

// Start attempts to initialize a session with the backend, and selects
// the configured controller, or the default one.
func (m *Manager) Start(authHandler bluetooth.SessionAuthorizer, cfg config.Configuration) error {
	if err := cfg.Validate(); err != nil {
		return fault.Wrap(err,
			fctx.With(context.Background(), "error_at", "validate-config"),
			ftag.With(errorkinds.KindInvalidArguments),
			fmsg.With("Invalid session configuration"),
		)
	}

	if authHandler == nil {
		authHandler = bluetooth.DefaultAuthorizer{}
	}

	m.Lock()
	defer m.Unlock()

	if !m.sessionClosed.Load() {
		return nil
	}

	if err := m.reset(cfg); err != nil {
		return err
	}

	var initialized bool
	defer func() {
		if !initialized {
			m.stop()
		}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), cfg.CommandTimeout)
	defer cancel()

	if err := m.backend.Open(ctx, cfg, m.log); err != nil {
		return fault.Wrap(err,
			fctx.With(ctx, "error_at", "open-backend"),
			ftag.With(ftag.Internal),
			fmsg.With("Cannot open a session with the Bluetooth backend"),
		)
	}

	// The backend version is only known once it is open.
	m.identify()

	controller, err := m.selectController(ctx)
	if err != nil {
		return err
	}

	if registrar, ok := m.backend.(AgentRegistrar); ok {
		if err := registrar.RegisterAgent(ctx, authHandler, cfg); err != nil {
			return fault.Wrap(err,
				fctx.With(ctx, "error_at", "register-agent"),
				ftag.With(ftag.Internal),
				fmsg.With("Cannot register the pairing agent"),
			)
		}
	}

	m.controller = controller
	m.sessionClosed.Store(false)
	initialized = true

	m.log.Info("session started", "controller", controller.Address.String())

	return nil
}

// Stop attempts to stop a session with the backend.
func (m *Manager) Stop() error {
	m.Lock()
	defer m.Unlock()

	if m.sessionClosed.Load() {
		return errorkinds.ErrSessionNotExist
	}

	return m.stop()
}

// Controllers returns a list of known controllers.
func (m *Manager) Controllers(ctx context.Context) ([]bluetooth.ControllerData, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}

	controllers, err := observe(m, policy.VerbController, func() ([]bluetooth.ControllerData, error) {
		return m.backend.Controllers(ctx)
	})
	if d := m.policy.Decide(policy.VerbController, err); d.Action != policy.Succeed {
		return nil, m.wrap(ctx, policy.VerbController, d.Err)
	}

	for _, c := range controllers {
		m.logUnrecognized("controller", c.Address.String(), c.Unrecognized)
	}

	return controllers, nil
}

// Devices scans for the provided duration and returns the devices known to the controller.
func (m *Manager) Devices(ctx context.Context, timeout time.Duration) ([]bluetooth.DeviceData, error) {
	if err := m.ready(); err != nil {
		return nil, err
	}

	if timeout > 0 {
		if err := m.scan(ctx, timeout); err != nil {
			return nil, err
		}
	}

	devices, err := observe(m, policy.VerbInfo, func() ([]bluetooth.DeviceData, error) {
		return m.backend.Devices(ctx)
	})
	if d := m.policy.Decide(policy.VerbInfo, err); d.Action != policy.Succeed {
		return nil, m.wrap(ctx, policy.VerbInfo, d.Err)
	}

	for _, dev := range devices {
		m.logUnrecognized("device", dev.Address.String(), dev.Unrecognized)
	}

	return devices, nil
}

// DevicesWithUUID is like Devices, but only returns devices which advertise the provided service.
func (m *Manager) DevicesWithUUID(ctx context.Context, service uuid.UUID, timeout time.Duration) ([]bluetooth.DeviceData, error) {
	devices, err := m.Devices(ctx, timeout)
	if err != nil {
		return nil, err
	}

	matched := make([]bluetooth.DeviceData, 0, len(devices))
	for _, dev := range devices {
		if len(dev.UUIDs) == 0 {
			info, err := m.backend.DeviceInfo(ctx, dev.Address)
			if err != nil {
				m.log.Debug("skipping device without properties", "address", dev.Address.String(), "error", err)
				continue
			}
			dev = info
		}

		if dev.HasUUID(service) {
			matched = append(matched, dev)
		}
	}

	return matched, nil
}

// Device returns a function call interface to invoke device related functions.
func (m *Manager) Device(deviceAddress bluetooth.MacAddress) bluetooth.Device {
	return &device{m: m, address: deviceAddress}
}

// ID returns the identifier of the running session.
func (m *Manager) ID() string {
	m.Lock()
	defer m.Unlock()

	return m.id
}

// Controller returns the controller selected when the session started.
func (m *Manager) Controller() bluetooth.ControllerData {
	m.Lock()
	defer m.Unlock()

	return m.controller
}

func (m *Manager) reset(cfg config.Configuration) error {
	m.cfg = cfg
	m.id = newSessionID()

	m.log, m.logCloser = cfg.Logger, func() error { return nil }
	if m.log == nil {
		log, closer, err := logger.New(cfg.Log)
		if err != nil {
			return fault.Wrap(err,
				fctx.With(context.Background(), "error_at", "create-logger"),
				ftag.With(ftag.Internal),
				fmsg.With("Cannot create the session logger"),
			)
		}
		m.log, m.logCloser = log, closer
	}
	m.baseLog = m.log.With("session_id", m.id)

	m.identify()
	m.metrics = metrics.New(cfg.Registerer)
	m.bus = eventbus.New(cfg.NotifyQueueSize)
	m.notifications = xsync.NewMapOf[string, bluetooth.Handle]()
	m.controller = bluetooth.ControllerData{}

	return nil
}

// identify attaches the backend's name and version to the policy and logger.
func (m *Manager) identify() {
	m.policy = policy.Policy{
		PairNoReplyIsSuccess: m.cfg.PairNoReplyIsSuccess,
		Engine:               m.backend.Name(),
		Version:              m.backend.Version(),
	}

	m.log = m.baseLog.With("engine", m.backend.Name(), "version", m.backend.Version())
}

func (m *Manager) stop() error {
	m.sessionClosed.Store(true)

	err := m.backend.Close()
	if m.bus != nil {
		m.bus.Shutdown()
	}
	if m.log != nil {
		m.log.Info("session stopped")
	}
	if m.logCloser != nil {
		m.logCloser()
	}

	return err
}

func (m *Manager) selectController(ctx context.Context) (bluetooth.ControllerData, error) {
	controllers, err := m.backend.Controllers(ctx)
	if d := m.policy.Decide(policy.VerbController, err); d.Action != policy.Succeed {
		return bluetooth.ControllerData{}, m.wrap(ctx, policy.VerbController, d.Err)
	}

	if len(controllers) == 0 {
		return bluetooth.ControllerData{}, m.wrap(ctx, policy.VerbController,
			errorkinds.ErrNoControllerAvailable.WithSession(m.backend.Name(), m.backend.Version()))
	}

	selected, found := controllers[0], m.cfg.Controller == ""
	for _, c := range controllers {
		if m.cfg.Controller == "" && c.Default {
			selected = c
			break
		}

		if m.cfg.Controller != "" && (c.Address.String() == m.cfg.Controller || c.UniqueName == m.cfg.Controller) {
			selected, found = c, true
			break
		}
	}

	if !found {
		return bluetooth.ControllerData{}, m.wrap(ctx, policy.VerbController,
			errorkinds.ErrControllerNotAvailable.WithCode("", m.cfg.Controller).WithSession(m.backend.Name(), m.backend.Version()))
	}

	if !selected.Powered {
		return bluetooth.ControllerData{}, m.wrap(ctx, policy.VerbController,
			errorkinds.ErrControllerNotReady.WithCode("", "controller is not powered").WithSession(m.backend.Name(), m.backend.Version()))
	}

	if err := m.backend.SelectController(ctx, selected); err != nil {
		d := m.policy.Decide(policy.VerbController, err)
		return bluetooth.ControllerData{}, m.wrap(ctx, policy.VerbController, d.Err)
	}

	m.logUnrecognized("controller", selected.Address.String(), selected.Unrecognized)

	return selected, nil
}

func (m *Manager) ready() error {
	if m.sessionClosed.Load() {
		return errorkinds.ErrSessionNotExist
	}

	return nil
}

// wrap attaches the verb and session to an escalated error.
func (m *Manager) wrap(ctx context.Context, verb policy.Verb, err error) error {
	if err == nil {
		return nil
	}

	kind := errorkinds.KindOf(err)
	if kind == "" {
		kind = ftag.Internal
	}

	m.log.Debug("verb failed", "verb", string(verb), "error", err)

	return fault.Wrap(err,
		fctx.With(ctx, "error_at", string(verb), "session_id", m.id),
		ftag.With(kind),
		fmsg.With(failureMessage(verb)),
	)
}

func (m *Manager) logUnrecognized(record, key string, fields bluetooth.Unrecognized) {
	if len(fields) == 0 {
		return
	}

	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	slices.Sort(names)

	values, err := serde.MarshalJson(fields)
	if err != nil {
		m.log.Debug("unrecognized record fields", "record", record, "key", key, "fields", names, "error", err)
		return
	}

	m.log.Debug("unrecognized record fields", "record", record, "key", key, "fields", names, "values", string(values))
}

// observe records the outcome of a backend call.
func observe[T any](m *Manager, verb policy.Verb, fn func() (T, error)) (T, error) {
	start := time.Now()
	v, err := fn()
	m.metrics.ObserveCommand(m.backend.Name(), string(verb), outcomeOf(err), time.Since(start))

	return v, err
}

// observeErr is like observe, for calls which only return an error.
func observeErr(m *Manager, verb policy.Verb, fn func() error) error {
	_, err := observe(m, verb, func() (struct{}, error) {
		return struct{}{}, fn()
	})

	return err
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return metrics.OutcomeSuccess

	case errorkinds.KindOf(err) == errorkinds.KindTimeout:
		return metrics.OutcomeTimeout
	}

	var sig *policy.Signal
	if errors.As(err, &sig) {
		return metrics.OutcomeFailure
	}

	return metrics.OutcomeError
}

func failureMessage(verb policy.Verb) string {
	switch verb {
	case policy.VerbConnect:
		return "Cannot connect to the device"
	case policy.VerbDisconnect:
		return "Cannot disconnect from the device"
	case policy.VerbPair:
		return "Cannot pair with the device"
	case policy.VerbTrust:
		return "Cannot change the trusted state of the device"
	case policy.VerbRemove:
		return "Cannot remove the device"
	case policy.VerbResolve:
		return "Cannot resolve the attribute"
	case policy.VerbRead:
		return "Cannot read the attribute"
	case policy.VerbWrite:
		return "Cannot write the attribute"
	case policy.VerbStartNotify, policy.VerbStopNotify:
		return "Cannot change the notification state of the attribute"
	case policy.VerbStartDiscovery, policy.VerbStopDiscovery:
		return "Cannot change the discovery state of the controller"
	case policy.VerbController:
		return "Cannot use the controller"
	}

	return "Cannot get the device properties"
}

func newSessionID() string {
	t := time.Now()
	entropy := ulid.Monotonic(rand.New(rand.NewSource(t.UnixNano())), 0)

	return ulid.MustNew(ulid.Timestamp(t), entropy).String()
}
