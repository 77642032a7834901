//go:build linux

package linux

import (
	"path"
	"sort"
	"strings"

	"github.com/bluetuith-org/ble-session/api/bluetooth"
	"github.com/godbus/dbus/v5"
	"github.com/google/uuid"
)

// managedObjects is the reply of ObjectManager.GetManagedObjects.
type managedObjects map[dbus.ObjectPath]map[string]map[string]dbus.Variant

// properties holds the properties of one interface of an object.
type properties map[string]dbus.Variant

// controllers returns the adapters, sorted by path.
// The first adapter is reported as the default one.
func (objects managedObjects) controllers() []bluetooth.ControllerData {
	paths := objects.paths(bluezAdapter, "")

	controllers := make([]bluetooth.ControllerData, 0, len(paths))
	for i, p := range paths {
		controller := parseController(p, objects[p][bluezAdapter])
		controller.Default = i == 0

		controllers = append(controllers, controller)
	}

	return controllers
}

// devices returns the devices under the adapter at prefix.
func (objects managedObjects) devices(prefix dbus.ObjectPath) []bluetooth.DeviceData {
	paths := objects.paths(bluezDevice, prefix)
	controller, _ := parseAddress(objects[prefix][bluezAdapter]["Address"])

	devices := make([]bluetooth.DeviceData, 0, len(paths))
	for _, p := range paths {
		device := parseDevice(p, objects[p][bluezDevice])
		device.AssociatedController = controller

		devices = append(devices, device)
	}

	return devices
}

// services returns the GATT services of the device at prefix.
func (objects managedObjects) services(prefix dbus.ObjectPath) []bluetooth.ServiceData {
	paths := objects.paths(bluezGattService, prefix)

	services := make([]bluetooth.ServiceData, 0, len(paths))
	for _, p := range paths {
		services = append(services, parseService(p, objects[p][bluezGattService]))
	}

	return services
}

// characteristics returns the GATT characteristics of the device at prefix.
func (objects managedObjects) characteristics(prefix dbus.ObjectPath) []bluetooth.CharacteristicData {
	paths := objects.paths(bluezGattChar, prefix)

	chars := make([]bluetooth.CharacteristicData, 0, len(paths))
	for _, p := range paths {
		chars = append(chars, parseCharacteristic(p, objects[p][bluezGattChar]))
	}

	return chars
}

func (objects managedObjects) paths(iface string, prefix dbus.ObjectPath) []dbus.ObjectPath {
	var paths []dbus.ObjectPath

	for p, ifaces := range objects {
		if _, ok := ifaces[iface]; !ok {
			continue
		}

		if prefix != "" && !strings.HasPrefix(string(p), string(prefix)+"/") {
			continue
		}

		paths = append(paths, p)
	}

	sort.Slice(paths, func(i, j int) bool { return paths[i] < paths[j] })

	return paths
}

func parseController(p dbus.ObjectPath, props properties) bluetooth.ControllerData {
	controller := bluetooth.ControllerData{UniqueName: path.Base(string(p))}

	for key, value := range props {
		var ok bool

		switch key {
		case "Address":
			controller.Address, ok = parseAddress(value)
		case "Name":
			controller.Name, ok = value.Value().(string)
		case "Alias":
			controller.Alias, ok = value.Value().(string)
		case "Powered":
			controller.Powered, ok = value.Value().(bool)
		case "Discoverable":
			controller.Discoverable, ok = value.Value().(bool)
		case "Pairable":
			controller.Pairable, ok = value.Value().(bool)
		case "Discovering":
			controller.Discovering, ok = value.Value().(bool)
		}

		if !ok {
			controller.Unrecognized = appendUnrecognized(controller.Unrecognized, key, value)
		}
	}

	return controller
}

func parseDevice(p dbus.ObjectPath, props properties) bluetooth.DeviceData {
	device := bluetooth.DeviceData{Path: string(p)}

	for key, value := range props {
		var ok bool

		switch key {
		case "Address":
			device.Address, ok = parseAddress(value)
		case "Adapter":
			// Resolved to the adapter's address by the caller.
			_, ok = value.Value().(dbus.ObjectPath)
		case "Name":
			device.Name, ok = value.Value().(string)
		case "Alias":
			device.Alias, ok = value.Value().(string)
		case "Class":
			device.Class, ok = value.Value().(uint32)
		case "Icon":
			device.Icon, ok = value.Value().(string)
		case "Paired":
			device.Paired, ok = value.Value().(bool)
		case "Trusted":
			device.Trusted, ok = value.Value().(bool)
		case "Blocked":
			device.Blocked, ok = value.Value().(bool)
		case "Connected":
			device.Connected, ok = value.Value().(bool)
		case "LegacyPairing":
			device.LegacyPairing, ok = value.Value().(bool)
		case "RSSI":
			device.RSSI, ok = value.Value().(int16)
		case "UUIDs":
			device.UUIDs, ok = parseUUIDs(value)
		}

		if !ok {
			device.Unrecognized = appendUnrecognized(device.Unrecognized, key, value)
		}
	}

	return device
}

func parseService(p dbus.ObjectPath, props properties) bluetooth.ServiceData {
	service := bluetooth.ServiceData{Handle: bluetooth.Handle{Path: string(p)}}

	for key, value := range props {
		var ok bool

		switch key {
		case "UUID":
			service.UUID, ok = parseUUID(value)
		case "Device":
			var device dbus.ObjectPath
			device, ok = value.Value().(dbus.ObjectPath)
			service.Device = string(device)
		case "Primary":
			service.Primary, ok = value.Value().(bool)
		}

		if !ok {
			service.Unrecognized = appendUnrecognized(service.Unrecognized, key, value)
		}
	}

	return service
}

func parseCharacteristic(p dbus.ObjectPath, props properties) bluetooth.CharacteristicData {
	char := bluetooth.CharacteristicData{Handle: bluetooth.Handle{Path: string(p)}}

	for key, value := range props {
		var ok bool

		switch key {
		case "UUID":
			char.UUID, ok = parseUUID(value)
		case "Service":
			var service dbus.ObjectPath
			service, ok = value.Value().(dbus.ObjectPath)
			char.Service = string(service)
		case "Flags":
			char.Flags, ok = value.Value().([]string)
		case "Notifying":
			char.Notifying, ok = value.Value().(bool)
		}

		if !ok {
			char.Unrecognized = appendUnrecognized(char.Unrecognized, key, value)
		}
	}

	return char
}

func parseAddress(value dbus.Variant) (bluetooth.MacAddress, bool) {
	s, ok := value.Value().(string)
	if !ok {
		return bluetooth.MacAddress{}, false
	}

	address, err := bluetooth.ParseMAC(s)

	return address, err == nil
}

func parseUUID(value dbus.Variant) (uuid.UUID, bool) {
	s, ok := value.Value().(string)
	if !ok {
		return uuid.Nil, false
	}

	id, err := uuid.Parse(s)

	return id, err == nil
}

func parseUUIDs(value dbus.Variant) (uuid.UUIDs, bool) {
	values, ok := value.Value().([]string)
	if !ok {
		return nil, false
	}

	ids := make(uuid.UUIDs, 0, len(values))
	for _, v := range values {
		id, err := uuid.Parse(v)
		if err != nil {
			return nil, false
		}

		ids = append(ids, id)
	}

	return ids, true
}

func appendUnrecognized(fields bluetooth.Unrecognized, key string, value dbus.Variant) bluetooth.Unrecognized {
	if fields == nil {
		fields = make(bluetooth.Unrecognized)
	}

	fields[key] = value.Value()

	return fields
}

// devicePath returns the object path of a device under an adapter,
// for example "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF".
func devicePath(adapter dbus.ObjectPath, address bluetooth.MacAddress) dbus.ObjectPath {
	return adapter + "/" + dbus.ObjectPath(address.PathSegment())
}

// addressFromPath extracts the device address from an object path
// under the device.
func addressFromPath(p dbus.ObjectPath) (bluetooth.MacAddress, bool) {
	for _, segment := range strings.Split(string(p), "/") {
		hex, ok := strings.CutPrefix(segment, "dev_")
		if !ok {
			continue
		}

		address, err := bluetooth.ParseMAC(strings.ReplaceAll(hex, "_", ":"))

		return address, err == nil
	}

	return bluetooth.MacAddress{}, false
}
