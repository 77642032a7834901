package bluetooth

import (
	"fmt"
	"net"
	"strings"

	"github.com/bluetuith-org/ble-session/api/errorkinds"
	"github.com/google/uuid"
)

// MacAddress describes a Bluetooth MAC address.
type MacAddress [6]byte

// Handle describes an addressable attribute on a remote device.
type Handle struct {
	// Path holds the backend-specific address of the attribute, for example
	// "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF/service0010/char0011".
	Path string `json:"path,omitempty" codec:"Path,omitempty"`

	// UUID holds the UUID of the attribute.
	UUID uuid.UUID `json:"uuid,omitempty" codec:"UUID,omitempty"`
}

// bluetoothBaseUUID is the base from which 16 and 32-bit UUIDs are expanded.
var bluetoothBaseUUID = uuid.MustParse("00000000-0000-1000-8000-00805f9b34fb")

// ParseMAC parses a string into a MacAddress.
func ParseMAC(address string) (MacAddress, error) {
	var mac MacAddress

	hw, err := net.ParseMAC(address)
	if err != nil || len(hw) != len(mac) {
		return mac, errorkinds.ErrInvalidArguments.WithCode("", fmt.Sprintf("invalid address %q", address))
	}

	copy(mac[:], hw)

	return mac, nil
}

// MustParseMAC is like ParseMAC, but panics on error.
func MustParseMAC(address string) MacAddress {
	mac, err := ParseMAC(address)
	if err != nil {
		panic(err)
	}

	return mac
}

// String converts the address to its colon-separated form.
func (m MacAddress) String() string {
	return strings.ToUpper(net.HardwareAddr(m[:]).String())
}

// PathSegment returns the address in the form used by BlueZ object paths ("dev_AA_BB_...").
func (m MacAddress) PathSegment() string {
	return "dev_" + strings.ReplaceAll(m.String(), ":", "_")
}

// IsZero reports whether the address is unset.
func (m MacAddress) IsZero() bool {
	return m == MacAddress{}
}

// ParseAttributeUUID parses a full or a short (16/32-bit) attribute UUID.
// Short forms are expanded against the Bluetooth base UUID.
func ParseAttributeUUID(s string) (uuid.UUID, error) {
	s = strings.TrimPrefix(strings.ToLower(strings.TrimSpace(s)), "0x")

	switch len(s) {
	case 4, 8:
		full := bluetoothBaseUUID.String()
		s = strings.Repeat("0", 8-len(s)) + s + full[8:]
	}

	u, err := uuid.Parse(s)
	if err != nil {
		return uuid.Nil, errorkinds.ErrInvalidArguments.WithCode("", fmt.Sprintf("invalid attribute identifier %q", s))
	}

	return u, nil
}

// MarshalText encodes the address in its colon-separated form.
func (m MacAddress) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// UnmarshalText decodes a colon-separated address.
func (m *MacAddress) UnmarshalText(text []byte) error {
	mac, err := ParseMAC(string(text))
	if err != nil {
		return err
	}

	*m = mac

	return nil
}
