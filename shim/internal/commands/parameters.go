package commands

import (
	"strings"

	"github.com/bluetuith-org/ble-session/api/bluetooth"
)

// Argument is a positional argument of a command.
type Argument string

// gattMenu prefixes the commands of bluetoothctl's GATT submenu,
// so they can be issued from the main menu.
const gattMenu = "gatt."

func (a Argument) String() string {
	return string(a)
}

// AddressArgument formats an address argument.
func AddressArgument(address bluetooth.MacAddress) Argument {
	return Argument(address.String())
}

// StateArgumentValue formats an on/off argument.
func StateArgumentValue(enable bool) Argument {
	if !enable {
		return "off"
	}

	return "on"
}

// DataArgument formats a payload as a single quoted argument.
func DataArgument(data []byte) Argument {
	return Argument(`"` + bluetooth.FormatPayload(data) + `"`)
}

// attributeMarker returns the part of the prompt that shows a selected attribute,
// for example ":/service0010/char0011]".
func attributeMarker(path string) string {
	if i := strings.Index(path, "/service"); i >= 0 {
		path = path[i:]
	}

	return ":" + path + "]"
}
