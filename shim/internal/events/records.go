package events

import (
	"strconv"
	"strings"

	"github.com/bluetuith-org/ble-session/api/bluetooth"
	"github.com/google/uuid"
)

// property is one "Key: value" line of a controller or device listing.
type property struct {
	key, value string
}

// ParseDevices parses the output of the "devices" command.
// Lines which do not describe a device are skipped.
func ParseDevices(lines []string) []bluetooth.DeviceData {
	var devices []bluetooth.DeviceData

	for _, line := range lines {
		address, name, ok := parseEntry(line, "Device")
		if !ok {
			continue
		}

		devices = append(devices, bluetooth.DeviceData{Address: address, Name: name, Alias: name})
	}

	return devices
}

// ParseControllers parses the output of the "list" command.
func ParseControllers(lines []string) []bluetooth.ControllerData {
	var controllers []bluetooth.ControllerData

	for _, line := range lines {
		address, name, ok := parseEntry(line, "Controller")
		if !ok {
			continue
		}

		controller := bluetooth.ControllerData{Address: address, Name: name}
		if before, found := strings.CutSuffix(name, "[default]"); found {
			controller.Name = strings.TrimSpace(before)
			controller.Default = true
		}

		controllers = append(controllers, controller)
	}

	return controllers
}

// ParseControllerInfo parses the output of the "show" command into controller.
func ParseControllerInfo(lines []string, controller bluetooth.ControllerData) bluetooth.ControllerData {
	for _, p := range parseProperties(lines, "Controller", controller.Address) {
		switch p.key {
		case "Name":
			controller.Name = p.value
		case "Alias":
			controller.Alias = p.value
		case "Powered":
			controller.Powered = parseBool(p.value)
		case "Discoverable":
			controller.Discoverable = parseBool(p.value)
		case "Pairable":
			controller.Pairable = parseBool(p.value)
		case "Discovering":
			controller.Discovering = parseBool(p.value)
		default:
			controller.Unrecognized = appendUnrecognized(controller.Unrecognized, p)
		}
	}

	return controller
}

// ParseDeviceInfo parses the output of the "info" command.
// It reports false if the output does not describe the device.
func ParseDeviceInfo(lines []string, address bluetooth.MacAddress) (bluetooth.DeviceData, bool) {
	device := bluetooth.DeviceData{Address: address}

	properties := parseProperties(lines, "Device", address)
	if properties == nil {
		return device, false
	}

	for _, p := range properties {
		switch p.key {
		case "Name":
			device.Name = p.value
		case "Alias":
			device.Alias = p.value
		case "Icon":
			device.Icon = p.value
		case "Class":
			class, err := strconv.ParseUint(strings.TrimPrefix(p.value, "0x"), 16, 32)
			if err != nil {
				device.Unrecognized = appendUnrecognized(device.Unrecognized, p)
				continue
			}
			device.Class = uint32(class)
		case "Paired":
			device.Paired = parseBool(p.value)
		case "Trusted":
			device.Trusted = parseBool(p.value)
		case "Blocked":
			device.Blocked = parseBool(p.value)
		case "Connected":
			device.Connected = parseBool(p.value)
		case "LegacyPairing":
			device.LegacyPairing = parseBool(p.value)
		case "RSSI":
			rssi, ok := parseRSSI(p.value)
			if !ok {
				device.Unrecognized = appendUnrecognized(device.Unrecognized, p)
				continue
			}
			device.RSSI = rssi
		case "UUID":
			id, ok := parseTrailingUUID(p.value)
			if !ok {
				device.Unrecognized = appendUnrecognized(device.Unrecognized, p)
				continue
			}
			device.UUIDs = append(device.UUIDs, id)
		default:
			device.Unrecognized = appendUnrecognized(device.Unrecognized, p)
		}
	}

	return device, true
}

// ParseAttributes parses the output of the "list-attributes" command.
func ParseAttributes(lines []string) ([]bluetooth.ServiceData, []bluetooth.CharacteristicData) {
	var (
		services []bluetooth.ServiceData
		chars    []bluetooth.CharacteristicData

		kind    string
		primary bool
		handle  bluetooth.Handle
	)

	flush := func() {
		if handle.Path == "" || handle.UUID == uuid.Nil {
			return
		}

		switch kind {
		case "Service":
			services = append(services, bluetooth.ServiceData{
				Handle:  handle,
				Device:  parentPath(handle.Path, "/service"),
				Primary: primary,
			})

		case "Characteristic":
			chars = append(chars, bluetooth.CharacteristicData{
				Handle:  handle,
				Service: parentPath(handle.Path, "/char"),
			})
		}

		kind, handle = "", bluetooth.Handle{}
	}

	for _, line := range lines {
		line = strings.TrimSpace(stripEventTag(TrimPrompt(line)))

		switch {
		case strings.HasPrefix(line, "Primary Service"), strings.HasPrefix(line, "Secondary Service"):
			flush()
			kind, primary = "Service", strings.HasPrefix(line, "Primary")

		case strings.HasPrefix(line, "Characteristic"):
			flush()
			kind = "Characteristic"

		case strings.HasPrefix(line, "Descriptor"):
			flush()
			kind = "Descriptor"

		case strings.HasPrefix(line, "/org/bluez/"):
			handle.Path = line

		case kind != "" && handle.Path != "" && handle.UUID == uuid.Nil:
			if id, err := uuid.Parse(line); err == nil {
				handle.UUID = id
				flush()
			}
		}
	}

	return services, chars
}

// parseEntry parses a "<kind> <address> <name>" line.
func parseEntry(line, kind string) (bluetooth.MacAddress, string, bool) {
	fields := strings.Fields(TrimPrompt(line))
	if len(fields) < 2 || fields[0] != kind {
		return bluetooth.MacAddress{}, "", false
	}

	address, err := bluetooth.ParseMAC(fields[1])
	if err != nil {
		return bluetooth.MacAddress{}, "", false
	}

	name := strings.Join(fields[2:], " ")
	if name == "not available" {
		return bluetooth.MacAddress{}, "", false
	}

	return address, name, true
}

// parseProperties returns the properties which follow the "<kind> <address>" header line.
// It returns nil if the header is not part of the output.
func parseProperties(lines []string, kind string, address bluetooth.MacAddress) []property {
	header := kind + " " + address.String()

	var (
		properties []property
		found      bool
	)

	for _, line := range lines {
		trimmed := strings.TrimSpace(TrimPrompt(line))

		if !found {
			if strings.HasPrefix(trimmed, header) && !strings.Contains(trimmed, "not available") {
				found = true
				properties = []property{}
			}

			continue
		}

		// Hexdumps of data properties arrive as decoded values.
		if strings.HasPrefix(line, ReplyMarker) {
			continue
		}

		// Properties are indented, the listing ends at the first line which is not.
		if !strings.HasPrefix(line, "\t") && !strings.HasPrefix(line, " ") {
			break
		}

		key, value, ok := strings.Cut(trimmed, ":")
		if !ok {
			continue
		}

		properties = append(properties, property{key: strings.TrimSpace(key), value: strings.TrimSpace(value)})
	}

	return properties
}

func appendUnrecognized(fields bluetooth.Unrecognized, p property) bluetooth.Unrecognized {
	if fields == nil {
		fields = make(bluetooth.Unrecognized)
	}

	switch existing := fields[p.key].(type) {
	case nil:
		fields[p.key] = p.value
	case string:
		fields[p.key] = []string{existing, p.value}
	case []string:
		fields[p.key] = append(existing, p.value)
	}

	return fields
}

func parseBool(value string) bool {
	return value == "yes"
}

// parseRSSI parses "-60", or "0xffffffc4 (-60)".
func parseRSSI(value string) (int16, bool) {
	if open := strings.LastIndexByte(value, '('); open >= 0 {
		value = strings.TrimSuffix(value[open+1:], ")")
	}

	rssi, err := strconv.ParseInt(value, 10, 16)
	if err != nil {
		return 0, false
	}

	return int16(rssi), true
}

// parseTrailingUUID parses "Battery Service (0000180f-0000-1000-8000-00805f9b34fb)".
func parseTrailingUUID(value string) (uuid.UUID, bool) {
	if open := strings.LastIndexByte(value, '('); open >= 0 {
		value = strings.TrimSuffix(value[open+1:], ")")
	}

	id, err := uuid.Parse(strings.TrimSpace(value))

	return id, err == nil
}

func parentPath(path, child string) string {
	if i := strings.LastIndex(path, child); i > 0 {
		return path[:i]
	}

	return ""
}

// stripEventTag removes a leading "[NEW]", "[CHG]" or "[DEL]" tag.
func stripEventTag(line string) string {
	for _, tag := range []string{"[NEW] ", "[CHG] ", "[DEL] "} {
		if rest, ok := strings.CutPrefix(line, tag); ok {
			return rest
		}
	}

	return line
}
