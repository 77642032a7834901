//go:build linux

// Package linux implements a session backend over the BlueZ D-Bus API.
package linux

const (
	bluezBus          = "org.bluez"
	bluezRoot         = "/org/bluez"
	bluezAdapter      = "org.bluez.Adapter1"
	bluezDevice       = "org.bluez.Device1"
	bluezGattService  = "org.bluez.GattService1"
	bluezGattChar     = "org.bluez.GattCharacteristic1"
	bluezAgent        = "org.bluez.Agent1"
	bluezAgentManager = "org.bluez.AgentManager1"

	dbusProperties    = "org.freedesktop.DBus.Properties"
	dbusObjectManager = "org.freedesktop.DBus.ObjectManager"

	propertiesChanged = dbusProperties + ".PropertiesChanged"

	inProgressError = "org.bluez.Error.InProgress"
	rejectedError   = "org.bluez.Error.Rejected"

	// agentCapability is the IO capability the pairing agent registers with.
	agentCapability = "KeyboardDisplay"

	signalQueueSize = 64
)
