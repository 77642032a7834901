// Package profile declares the attributes of a device type by name, so
// that applications can read, write and subscribe to them without
// repeating attribute UUIDs and payload checks at every call site.
package profile

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fctx"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"github.com/bluetuith-org/ble-session/api/bluetooth"
	"github.com/bluetuith-org/ble-session/api/errorkinds"
	"github.com/google/uuid"
)

// Access describes the operations permitted on a field.
type Access uint8

const (
	Read Access = 1 << iota
	Write
	Notify
)

// String returns the access flags, for example "read|notify".
func (a Access) String() string {
	var flags []string
	for _, f := range []struct {
		access Access
		name   string
	}{
		{Read, "read"},
		{Write, "write"},
		{Notify, "notify"},
	} {
		if a&f.access != 0 {
			flags = append(flags, f.name)
		}
	}

	if len(flags) == 0 {
		return "none"
	}

	return strings.Join(flags, "|")
}

// Field describes a named attribute of a profile.
type Field struct {
	Name   string
	UUID   uuid.UUID
	Access Access

	// Accept, if not empty, lists the only payloads that can be written to the field.
	Accept []string
}

// NewField returns a field for the attribute id, which may be a full or a
// 16-bit UUID.
func NewField(name, id string, access Access, accept ...string) (Field, error) {
	parsed, err := bluetooth.ParseAttributeUUID(id)
	if err != nil {
		return Field{}, err
	}

	return Field{Name: name, UUID: parsed, Access: access, Accept: accept}, nil
}

// Accepts reports whether payload may be written to the field.
func (f Field) Accepts(payload string) bool {
	return len(f.Accept) == 0 || slices.Contains(f.Accept, payload)
}

// Profile is a set of named fields.
type Profile struct {
	fields map[string]Field
	order  []string
}

// New returns a profile of fields. Field names must be unique.
func New(fields ...Field) (*Profile, error) {
	p := &Profile{fields: make(map[string]Field, len(fields))}

	for _, f := range fields {
		switch {
		case f.Name == "":
			return nil, fmt.Errorf("field with UUID %s has no name", f.UUID)

		case f.UUID == uuid.Nil:
			return nil, fmt.Errorf("field %q has no UUID", f.Name)

		case f.Access == 0:
			return nil, fmt.Errorf("field %q permits no access", f.Name)
		}

		if _, ok := p.fields[f.Name]; ok {
			return nil, fmt.Errorf("duplicate field %q", f.Name)
		}

		p.fields[f.Name] = f
		p.order = append(p.order, f.Name)
	}

	return p, nil
}

// Fields returns the fields of the profile in declaration order.
func (p *Profile) Fields() []Field {
	fields := make([]Field, 0, len(p.order))
	for _, name := range p.order {
		fields = append(fields, p.fields[name])
	}

	return fields
}

// Bind returns the profile's accessors for a device.
func (p *Profile) Bind(device bluetooth.Device) *Binding {
	return &Binding{profile: p, device: device}
}

// Binding is a profile bound to a device. Attributes are resolved
// by the device on every call.
type Binding struct {
	profile *Profile
	device  bluetooth.Device
}

// Read reads the value of a readable field.
func (b *Binding) Read(ctx context.Context, name string) ([]byte, error) {
	f, err := b.field(ctx, name, Read)
	if err != nil {
		return nil, err
	}

	return b.device.ReadAttribute(ctx, f.UUID)
}

// Write writes a textual payload to a writable field. Payloads which
// are not in the field's accept list are rejected before anything is sent.
func (b *Binding) Write(ctx context.Context, name, payload string, radix bluetooth.Radix) (bluetooth.Result, error) {
	f, err := b.field(ctx, name, Write)
	if err != nil {
		return bluetooth.Result{}, err
	}

	if !f.Accepts(payload) {
		return bluetooth.Result{}, fault.Wrap(
			errorkinds.ErrInvalidArguments.WithCode("", "payload not accepted"),
			fctx.With(ctx, "error_at", "profile-accept", "field", name, "payload", payload),
			ftag.With(errorkinds.KindInvalidArguments),
			fmsg.With(fmt.Sprintf("Payload %q is not accepted by %s", payload, name)),
		)
	}

	return b.device.WriteAttribute(ctx, f.UUID, payload, radix)
}

// Notify subscribes to the values of the named fields. If a subscription
// cannot be started, the ones already started are stopped.
func (b *Binding) Notify(ctx context.Context, names ...string) ([]bluetooth.Subscription, error) {
	subs := make([]bluetooth.Subscription, 0, len(names))

	for _, name := range names {
		f, err := b.field(ctx, name, Notify)
		if err == nil {
			var sub bluetooth.Subscription
			if sub, err = b.device.StartNotify(ctx, f.UUID); err == nil {
				subs = append(subs, sub)
				continue
			}
		}

		for _, sub := range subs {
			_, _ = b.device.StopNotify(ctx, sub.Handle().UUID)
		}

		return nil, err
	}

	return subs, nil
}

// StopNotify disables notifications on the named fields.
func (b *Binding) StopNotify(ctx context.Context, names ...string) error {
	var errs []error

	for _, name := range names {
		f, err := b.field(ctx, name, Notify)
		if err == nil {
			_, err = b.device.StopNotify(ctx, f.UUID)
		}

		if err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fault.Wrap(errs[0],
			fctx.With(ctx, "error_at", "profile-stop-notify", "failed", fmt.Sprint(len(errs))),
		)
	}

	return nil
}

func (b *Binding) field(ctx context.Context, name string, access Access) (Field, error) {
	f, ok := b.profile.fields[name]
	if !ok {
		return Field{}, fault.Wrap(
			errorkinds.ErrInvalidArguments.WithCode("", "unknown field"),
			fctx.With(ctx, "error_at", "profile-field", "field", name),
			ftag.With(errorkinds.KindInvalidArguments),
			fmsg.With("No field named "+name),
		)
	}

	if f.Access&access == 0 {
		return Field{}, fault.Wrap(
			errorkinds.ErrInvalidArguments.WithCode("", "access not permitted"),
			fctx.With(ctx, "error_at", "profile-access", "field", name, "access", access.String()),
			ftag.With(errorkinds.KindInvalidArguments),
			fmsg.With(fmt.Sprintf("Field %s does not permit %s", name, access)),
		)
	}

	return f, nil
}
