package bluetooth

import (
	"github.com/google/uuid"
)

// Unrecognized holds backend-reported fields which are not part of a record's schema.
type Unrecognized map[string]any

// ControllerData holds a snapshot of a local Bluetooth controller.
type ControllerData struct {
	// Address holds the Bluetooth MAC address of the controller.
	Address MacAddress `json:"address,omitempty" codec:"Address,omitempty"`

	// Name holds the system-assigned name of the controller.
	Name string `json:"name,omitempty" codec:"Name,omitempty"`

	// Alias holds the optional or user-assigned name for the controller.
	Alias string `json:"alias,omitempty" codec:"Alias,omitempty"`

	// UniqueName holds a unique name for the controller, for example "hci0".
	UniqueName string `json:"unique_name,omitempty" codec:"UniqueName,omitempty"`

	Powered      bool `json:"powered,omitempty" codec:"Powered,omitempty"`
	Discoverable bool `json:"discoverable,omitempty" codec:"Discoverable,omitempty"`
	Pairable     bool `json:"pairable,omitempty" codec:"Pairable,omitempty"`
	Discovering  bool `json:"discovering,omitempty" codec:"Discovering,omitempty"`

	// Default indicates whether the backend reports this controller as the default one.
	Default bool `json:"default,omitempty" codec:"Default,omitempty"`

	Unrecognized Unrecognized `json:"unrecognized,omitempty" codec:"Unrecognized,omitempty"`
}

// DeviceData holds a snapshot of a remote device.
type DeviceData struct {
	// Address holds the Bluetooth MAC address of the device.
	Address MacAddress `json:"address,omitempty" codec:"Address,omitempty"`

	// Path holds the backend-specific address of the device.
	Path string `json:"path,omitempty" codec:"Path,omitempty"`

	// AssociatedController holds the address of the controller the device belongs to.
	AssociatedController MacAddress `json:"associated_controller,omitempty" codec:"AssociatedController,omitempty"`

	Name  string `json:"name,omitempty" codec:"Name,omitempty"`
	Alias string `json:"alias,omitempty" codec:"Alias,omitempty"`
	Class uint32 `json:"class,omitempty" codec:"Class,omitempty"`
	Icon  string `json:"icon,omitempty" codec:"Icon,omitempty"`

	Paired        bool `json:"paired,omitempty" codec:"Paired,omitempty"`
	Trusted       bool `json:"trusted,omitempty" codec:"Trusted,omitempty"`
	Blocked       bool `json:"blocked,omitempty" codec:"Blocked,omitempty"`
	Connected     bool `json:"connected,omitempty" codec:"Connected,omitempty"`
	LegacyPairing bool `json:"legacy_pairing,omitempty" codec:"LegacyPairing,omitempty"`

	// RSSI holds the last received signal strength, if reported.
	RSSI int16 `json:"rssi,omitempty" codec:"RSSI,omitempty"`

	// UUIDs holds the advertised service UUIDs.
	UUIDs uuid.UUIDs `json:"uuids,omitempty" codec:"UUIDs,omitempty"`

	Unrecognized Unrecognized `json:"unrecognized,omitempty" codec:"Unrecognized,omitempty"`
}

// ServiceData holds a snapshot of a GATT service on a remote device.
type ServiceData struct {
	Handle

	// Device holds the path of the device the service belongs to.
	Device  string `json:"device,omitempty" codec:"Device,omitempty"`
	Primary bool   `json:"primary,omitempty" codec:"Primary,omitempty"`

	Unrecognized Unrecognized `json:"unrecognized,omitempty" codec:"Unrecognized,omitempty"`
}

// CharacteristicData holds a snapshot of a GATT characteristic on a remote device.
type CharacteristicData struct {
	Handle

	// Service holds the path of the service the characteristic belongs to.
	Service string `json:"service,omitempty" codec:"Service,omitempty"`

	// Flags holds the access flags reported by the backend ("read", "write", "notify", ...).
	Flags []string `json:"flags,omitempty" codec:"Flags,omitempty"`

	// Notifying indicates whether notifications are enabled on the characteristic.
	Notifying bool `json:"notifying,omitempty" codec:"Notifying,omitempty"`

	Unrecognized Unrecognized `json:"unrecognized,omitempty" codec:"Unrecognized,omitempty"`
}

// Result describes the successful outcome of a session verb.
type Result struct {
	// Already is set when the verb was resolved without issuing a command,
	// or when the backend reported the operation as already done.
	Already bool `json:"already,omitempty"`

	// Marker holds the backend response which resolved the verb, if any.
	Marker string `json:"marker,omitempty"`
}

// HasFlag reports whether the characteristic advertises the provided access flag.
func (c CharacteristicData) HasFlag(flag string) bool {
	for _, f := range c.Flags {
		if f == flag {
			return true
		}
	}

	return false
}

// HasUUID reports whether the device advertises the provided service UUID.
func (d DeviceData) HasUUID(id uuid.UUID) bool {
	for _, u := range d.UUIDs {
		if u == id {
			return true
		}
	}

	return false
}
