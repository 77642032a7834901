package commands

import (
	"strings"

	"github.com/bluetuith-org/ble-session/api/bluetooth"
	"github.com/bluetuith-org/ble-session/internal/policy"
	"github.com/bluetuith-org/ble-session/shim/internal/events"
)

// Attributes holds the services and characteristics listed for a device.
type Attributes struct {
	Services        []bluetooth.ServiceData
	Characteristics []bluetooth.CharacteristicData
}

// Session commands.
func Version() *Command[string] {
	return &Command[string]{
		verb:    "version",
		cmd:     "version",
		success: []string{"Version "},
		parse: func(lines []string) (string, error) {
			for _, line := range lines {
				if _, version, ok := strings.Cut(events.TrimPrompt(line), "Version "); ok {
					return strings.TrimSpace(version), nil
				}
			}

			return "", nil
		},
	}
}
func AgentOn() *Command[NoResult] {
	return &Command[NoResult]{
		verb:    "agent",
		cmd:     "agent on",
		success: []string{"Agent registered", "Agent is already registered"},
		failure: []string{"Failed to register agent", "Invalid argument"},
	}
}
func DefaultAgent() *Command[NoResult] {
	return &Command[NoResult]{
		verb:    "agent",
		cmd:     "default-agent",
		success: []string{"Default agent request successful"},
		failure: []string{"No agent is registered", "Failed to request default agent"},
	}
}

// Controller commands.
func ListControllers() *Command[[]bluetooth.ControllerData] {
	return &Command[[]bluetooth.ControllerData]{
		verb: string(policy.VerbController),
		cmd:  "list",
		parse: func(lines []string) ([]bluetooth.ControllerData, error) {
			return events.ParseControllers(lines), nil
		},
	}
}
func ShowController(controller bluetooth.ControllerData) *Command[bluetooth.ControllerData] {
	address := controller.Address.String()

	return (&Command[bluetooth.ControllerData]{
		verb:    string(policy.VerbController),
		cmd:     "show",
		success: []string{"Controller " + address + " ("},
		failure: []string{"Controller " + address + " not available", "No default controller available"},
		collect: true,
		parse: func(lines []string) (bluetooth.ControllerData, error) {
			return events.ParseControllerInfo(lines, controller), nil
		},
	}).WithArgument(AddressArgument(controller.Address))
}
func SelectController(address bluetooth.MacAddress) *Command[NoResult] {
	return (&Command[NoResult]{
		verb:    string(policy.VerbController),
		cmd:     "select",
		success: []string{"[default]"},
		failure: []string{"Controller " + address.String() + " not available", "Missing controller address argument"},
	}).WithArgument(AddressArgument(address))
}
func Scan(enable bool) *Command[NoResult] {
	verb := policy.VerbStopDiscovery
	if enable {
		verb = policy.VerbStartDiscovery
	}

	return (&Command[NoResult]{
		verb:    string(verb),
		cmd:     "scan",
		success: []string{"Discovery started", "Discovery stopped"},
		failure: []string{"Failed to start discovery", "Failed to stop discovery", "Invalid argument", "Missing on/off argument"},
	}).WithArgument(StateArgumentValue(enable))
}

// Device commands.
func Devices() *Command[[]bluetooth.DeviceData] {
	return &Command[[]bluetooth.DeviceData]{
		verb: string(policy.VerbInfo),
		cmd:  "devices",
		parse: func(lines []string) ([]bluetooth.DeviceData, error) {
			return events.ParseDevices(lines), nil
		},
	}
}
func Info(address bluetooth.MacAddress) *Command[bluetooth.DeviceData] {
	device := "Device " + address.String()

	return (&Command[bluetooth.DeviceData]{
		verb:    string(policy.VerbInfo),
		cmd:     "info",
		success: []string{device + " (public)", device + " (random)"},
		failure: []string{device + " not available", "Missing device address argument"},
		collect: true,
		parse: func(lines []string) (bluetooth.DeviceData, error) {
			info, ok := events.ParseDeviceInfo(lines, address)
			if !ok {
				return info, &policy.Signal{Message: device + " not available"}
			}

			return info, nil
		},
	}).WithArgument(AddressArgument(address))
}
func Connect(address bluetooth.MacAddress) *Command[NoResult] {
	return (&Command[NoResult]{
		verb:    string(policy.VerbConnect),
		cmd:     "connect",
		success: []string{address.String() + " Connected: yes", "Connection successful"},
		failure: []string{"Failed to connect", "Device " + address.String() + " not available"},
	}).WithArgument(AddressArgument(address))
}
func Disconnect(address bluetooth.MacAddress) *Command[NoResult] {
	return (&Command[NoResult]{
		verb:    string(policy.VerbDisconnect),
		cmd:     "disconnect",
		success: []string{address.String() + " Connected: no", "Successful disconnected"},
		failure: []string{"Failed to disconnect", "Device " + address.String() + " not available"},
	}).WithArgument(AddressArgument(address))
}
func Pair(address bluetooth.MacAddress) *Command[NoResult] {
	return (&Command[NoResult]{
		verb:    string(policy.VerbPair),
		cmd:     "pair",
		success: []string{address.String() + " Paired: yes", "Pairing successful"},
		failure: []string{"Failed to pair", "Device " + address.String() + " not available"},
	}).WithArgument(AddressArgument(address))
}
func Trust(address bluetooth.MacAddress, trusted bool) *Command[NoResult] {
	cmd, state := "trust", "yes"
	if !trusted {
		cmd, state = "untrust", "no"
	}

	return (&Command[NoResult]{
		verb:    string(policy.VerbTrust),
		cmd:     cmd,
		success: []string{address.String() + " Trusted: " + state, cmd + " succeeded"},
		failure: []string{"Device " + address.String() + " not available", cmd + " failed"},
	}).WithArgument(AddressArgument(address))
}
func Remove(address bluetooth.MacAddress) *Command[NoResult] {
	return (&Command[NoResult]{
		verb:    string(policy.VerbRemove),
		cmd:     "remove",
		success: []string{"Device has been removed"},
		failure: []string{"Device " + address.String() + " not available", "Failed to remove device", "Missing device address argument"},
	}).WithArgument(AddressArgument(address))
}

// GATT commands.
func ListAttributes(address bluetooth.MacAddress) *Command[Attributes] {
	return (&Command[Attributes]{
		verb: string(policy.VerbResolve),
		cmd:  gattMenu + "list-attributes",
		parse: func(lines []string) (Attributes, error) {
			services, chars := events.ParseAttributes(lines)
			return Attributes{Services: services, Characteristics: chars}, nil
		},
	}).WithArgument(AddressArgument(address))
}
func SelectAttribute(handle bluetooth.Handle) *Command[NoResult] {
	return (&Command[NoResult]{
		verb:    string(policy.VerbResolve),
		cmd:     gattMenu + "select-attribute",
		success: []string{attributeMarker(handle.Path)},
		failure: []string{"Missing attribute argument", "No device connected", "Unable to find attribute", "Invalid argument"},
	}).WithArgument(Argument(handle.Path))
}
func AttributeInfo(handle bluetooth.Handle) *Command[NoResult] {
	return &Command[NoResult]{
		verb:    string(policy.VerbResolve),
		cmd:     gattMenu + "attribute-info",
		success: []string{handle.UUID.String()},
		failure: []string{"Missing attribute argument", "No attribute selected", "Unable to find attribute"},
	}
}
func Read(handle bluetooth.Handle) *Command[[]byte] {
	// Values notified for other attributes may arrive while the read is pending.
	markers := []string{events.ReplyMarker, events.AttributeMarker(handle.Path)}

	return &Command[[]byte]{
		verb:    string(policy.VerbRead),
		cmd:     gattMenu + "read",
		success: markers,
		failure: []string{"Failed to read", "No attribute selected", "Unable to read attribute"},
		parse: func(lines []string) ([]byte, error) {
			for _, line := range lines {
				for _, marker := range markers {
					if strings.Contains(line, marker) {
						return events.ParseValue(line[strings.Index(line, marker):])
					}
				}
			}

			return nil, &policy.Signal{Message: "Failed to read: no value in reply"}
		},
	}
}
func Write(data []byte) *Command[NoResult] {
	return (&Command[NoResult]{
		verb:    string(policy.VerbWrite),
		cmd:     gattMenu + "write",
		success: []string{"Attempting to write"},
		failure: []string{"Missing data argument", "No attribute selected", "Invalid value at index", "Failed to write", "Unable to write attribute"},
	}).WithArgument(DataArgument(data))
}
func Notify(enable bool) *Command[NoResult] {
	verb := policy.VerbStopNotify
	if enable {
		verb = policy.VerbStartNotify
	}

	return (&Command[NoResult]{
		verb:    string(verb),
		cmd:     gattMenu + "notify",
		success: []string{"Notify started", "Notify stopped"},
		failure: []string{"Failed to start notify", "Failed to stop notify", "No attribute selected", "Missing on/off argument"},
	}).WithArgument(StateArgumentValue(enable))
}
