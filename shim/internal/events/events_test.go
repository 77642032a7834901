package events

import (
	"bufio"
	"strings"
	"testing"

	"github.com/bluetuith-org/ble-session/api/bluetooth"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testAddress = bluetooth.MustParseMAC("AA:BB:CC:DD:EE:FF")

// hexdump formats data the way bluetoothctl prints attribute values.
func hexdump(data []byte) []string {
	var lines []string

	for len(data) > 0 {
		n := min(len(data), 16)

		sb := strings.Builder{}
		sb.WriteString(" ")
		for i := 0; i < 16; i++ {
			if i < n {
				sb.WriteString(" " + strings.ToLower(bluetooth.FormatPayload(data[i:i+1])[2:]))
			} else {
				sb.WriteString("   ")
			}
		}
		sb.WriteString("  ")
		sb.WriteString(strings.Repeat(".", n))

		lines = append(lines, strings.TrimRight(sb.String(), " "))
		data = data[n:]
	}

	return lines
}

func TestSplitLines(t *testing.T) {
	output := "Device AA:BB:CC:DD:EE:FF sensor\r\n\x01\x1b[0;94m\x02[sensor:/service0010/char0011]\x01\x1b[0m\x02# "

	scanner := bufio.NewScanner(strings.NewReader(output))
	scanner.Split(SplitLines)

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}

	require.Len(t, lines, 2)
	assert.Equal(t, "Device AA:BB:CC:DD:EE:FF sensor", lines[0])
	assert.Equal(t, []string{"[sensor:/service0010/char0011]#"}, CleanLine(lines[1]))

	prompt := "\x01\x1b[0;94m\x02[bluetooth]\x01\x1b[0m\x02# "
	advance, token, err := SplitLines([]byte(prompt), false)
	require.NoError(t, err)
	assert.Equal(t, len(prompt), advance)
	assert.Equal(t, prompt, string(token))

	advance, token, err = SplitLines([]byte("Device AA:BB"), false)
	require.NoError(t, err)
	assert.Zero(t, advance)
	assert.Nil(t, token)
}

func TestCleanLine(t *testing.T) {
	segments := CleanLine("\x1b[0;94m[bluetooth]\x1b[0m# \r\x1b[K[\x1b[0;93mCHG\x1b[0m] Device AA:BB:CC:DD:EE:FF Connected: yes")

	assert.Equal(t, []string{"[bluetooth]#", "[CHG] Device AA:BB:CC:DD:EE:FF Connected: yes"}, segments)
	assert.True(t, IsPrompt(segments[0]))
	assert.False(t, IsPrompt(segments[1]))
	assert.Equal(t, "Device AA", TrimPrompt("[bluetooth]# Device AA"))
	assert.Empty(t, CleanLine("\r\x1b[K"))
}

func TestParseDevices(t *testing.T) {
	devices := ParseDevices([]string{
		"Device AA:BB:CC:DD:EE:FF sensor",
		"[NEW] Device 11:22:33:44:55:66 other",
		"[bluetooth]# Device 11:22:33:44:55:66 Heart Rate Monitor",
		"Device 00:00:00:00:00:01",
		"Device nonsense name",
	})

	require.Len(t, devices, 3)
	assert.Equal(t, testAddress, devices[0].Address)
	assert.Equal(t, "sensor", devices[0].Name)
	assert.Equal(t, "Heart Rate Monitor", devices[1].Name)
	assert.Empty(t, devices[2].Name)
}

func TestParseControllers(t *testing.T) {
	lines := []string{
		"Controller 00:1A:7D:DA:71:13 host [default]",
		"Controller 00:1A:7D:DA:71:14 host #2",
	}

	controllers := ParseControllers(lines)
	require.Len(t, controllers, 2)
	assert.True(t, controllers[0].Default)
	assert.Equal(t, "host", controllers[0].Name)
	assert.False(t, controllers[1].Default)

	info := ParseControllerInfo([]string{
		"Controller 00:1A:7D:DA:71:13 (public)",
		"\tName: host",
		"\tAlias: desk",
		"\tPowered: yes",
		"\tDiscoverable: no",
		"\tPairable: yes",
		"\tDiscovering: no",
		"\tModalias: usb:v1D6Bp0246d0541",
		"\tRoles: central",
		"\tRoles: peripheral",
	}, controllers[0])

	assert.True(t, info.Powered)
	assert.True(t, info.Pairable)
	assert.True(t, info.Default)
	assert.Equal(t, "desk", info.Alias)
	assert.Equal(t, "usb:v1D6Bp0246d0541", info.Unrecognized["Modalias"])
	assert.Equal(t, []string{"central", "peripheral"}, info.Unrecognized["Roles"])
}

func TestParseDeviceInfo(t *testing.T) {
	lines := []string{
		"Device AA:BB:CC:DD:EE:FF (random)",
		"\tName: sensor",
		"\tAlias: sensor",
		"\tClass: 0x00240404",
		"\tIcon: audio-card",
		"\tPaired: yes",
		"\tBonded: yes",
		"\tTrusted: no",
		"\tBlocked: no",
		"\tConnected: yes",
		"\tLegacyPairing: no",
		"\tUUID: Battery Service           (0000180f-0000-1000-8000-00805f9b34fb)",
		"\tRSSI: 0xffffffc4 (-60)",
		"[CHG] Device AA:BB:CC:DD:EE:FF RSSI: -61",
		"\tName: ignored",
	}

	info, ok := ParseDeviceInfo(lines, testAddress)
	require.True(t, ok)

	assert.Equal(t, "sensor", info.Name)
	assert.Equal(t, uint32(0x240404), info.Class)
	assert.True(t, info.Paired)
	assert.True(t, info.Connected)
	assert.False(t, info.Trusted)
	assert.Equal(t, int16(-60), info.RSSI)
	assert.Equal(t, uuid.UUIDs{uuid.MustParse("0000180f-0000-1000-8000-00805f9b34fb")}, info.UUIDs)
	assert.Equal(t, bluetooth.Unrecognized{"Bonded": "yes"}, info.Unrecognized)

	_, ok = ParseDeviceInfo([]string{"Device AA:BB:CC:DD:EE:FF not available"}, testAddress)
	assert.False(t, ok)
}

func TestParseAttributes(t *testing.T) {
	lines := []string{
		"Primary Service (Handle 0x0001)",
		"\t/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF/service0010",
		"\t0000180f-0000-1000-8000-00805f9b34fb",
		"\tBattery Service",
		"[NEW] Characteristic (Handle 0x0011)",
		"\t/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF/service0010/char0011",
		"\t00002a19-0000-1000-8000-00805f9b34fb",
		"\tBattery Level",
		"Descriptor (Handle 0x0013)",
		"\t/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF/service0010/char0011/desc0013",
		"\t00002902-0000-1000-8000-00805f9b34fb",
		"\tClient Characteristic Configuration",
	}

	services, chars := ParseAttributes(lines)

	require.Len(t, services, 1)
	assert.True(t, services[0].Primary)
	assert.Equal(t, "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF", services[0].Device)

	require.Len(t, chars, 1)
	assert.Equal(t, uuid.MustParse("00002a19-0000-1000-8000-00805f9b34fb"), chars[0].UUID)
	assert.Equal(t, "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF/service0010/char0011", chars[0].Path)
	assert.Equal(t, services[0].Path, chars[0].Service)
}

func TestValueDecoder(t *testing.T) {
	const path = "/org/bluez/hci0/dev_AA_BB_CC_DD_EE_FF/service0010/char0011"

	t.Run("hexdump", func(t *testing.T) {
		var d ValueDecoder

		values, hex := d.Feed("[CHG] Attribute " + path + " Value:")
		assert.Empty(t, values)
		assert.False(t, hex)

		values, hex = d.Feed(hexdump([]byte{3, 1, 1, 0})[0])
		assert.True(t, hex)
		require.Len(t, values, 1)
		assert.Equal(t, Value{Path: path, Data: []byte{3, 1, 1, 0}}, values[0])
		assert.Equal(t, "Attribute "+path+" Value: 0x03 0x01 0x01 0x00", values[0].String())
	})

	t.Run("multi-line hexdump", func(t *testing.T) {
		var d ValueDecoder

		data := make([]byte, 16)
		for i := range data {
			data[i] = byte(i)
		}

		d.Feed("[CHG] Attribute " + path + " Value:")
		values, _ := d.Feed(hexdump(data)[0])
		assert.Empty(t, values, "a full line may be continued")

		values, hex := d.Feed("[sensor:/service0010/char0011]#")
		assert.False(t, hex)
		require.Len(t, values, 1)
		assert.Equal(t, data, values[0].Data)
	})

	t.Run("read reply", func(t *testing.T) {
		var d ValueDecoder

		values, _ := d.Feed(hexdump([]byte{0x2a})[0])
		require.Len(t, values, 1)
		assert.Empty(t, values[0].Path)
		assert.Equal(t, "Read value: 0x2a", values[0].String())
	})

	t.Run("flush full rows", func(t *testing.T) {
		var d ValueDecoder

		data := make([]byte, 32)
		for i := range data {
			data[i] = byte(i)
		}

		for _, line := range hexdump(data) {
			values, hex := d.Feed(line)
			assert.True(t, hex)
			assert.Empty(t, values)
		}
		assert.True(t, d.Pending())

		value, ok := d.Flush()
		require.True(t, ok)
		assert.Equal(t, data, value.Data)
		assert.Empty(t, value.Path)
		assert.False(t, d.Pending())

		_, ok = d.Flush()
		assert.False(t, ok)
	})

	t.Run("single line", func(t *testing.T) {
		var d ValueDecoder

		values, _ := d.Feed("[CHG] Attribute " + path + " Value: 0x03")
		require.Len(t, values, 1)
		assert.Equal(t, []byte{3}, values[0].Data)
	})

	t.Run("not a value", func(t *testing.T) {
		var d ValueDecoder

		values, hex := d.Feed("\tName: sensor")
		assert.Empty(t, values)
		assert.False(t, hex)

		values, hex = d.Feed("  Battery Level")
		assert.Empty(t, values)
		assert.False(t, hex)
	})
}

func TestParseValue(t *testing.T) {
	value, err := ParseValue("Value: 0x03 0x01")
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 1}, value)

	value, err = ParseValue("Read value: 0x2a")
	require.NoError(t, err)
	assert.Equal(t, []byte{0x2a}, value)

	value, err = ParseValue("03 01 ff")
	require.NoError(t, err)
	assert.Equal(t, []byte{3, 1, 0xff}, value)

	_, err = ParseValue("Value: ")
	assert.Error(t, err)
}

func TestParseAgentRequest(t *testing.T) {
	request, ok := ParseAgentRequest("[agent] Confirm passkey 012345 (yes/no):")
	require.True(t, ok)
	assert.Equal(t, bluetooth.ConfirmPasskey, request.EventID)
	assert.Equal(t, uint32(12345), request.Passkey)
	assert.Equal(t, bluetooth.ReplyYesNo, request.ReplyMethod)

	request, ok = ParseAgentRequest("[agent] Authorize service 0000110d-0000-1000-8000-00805f9b34fb (yes/no):")
	require.True(t, ok)
	assert.Equal(t, bluetooth.AuthorizeService, request.EventID)
	assert.Equal(t, uuid.MustParse("0000110d-0000-1000-8000-00805f9b34fb"), request.UUID)

	request, ok = ParseAgentRequest("[agent] PIN code: 0000")
	require.True(t, ok)
	assert.Equal(t, bluetooth.DisplayPinCode, request.EventID)
	assert.Equal(t, "0000", request.Pincode)

	request, ok = ParseAgentRequest("[agent] Accept pairing (yes/no):")
	require.True(t, ok)
	assert.Equal(t, bluetooth.AuthorizePairing, request.EventID)

	_, ok = ParseAgentRequest("Agent registered")
	assert.False(t, ok)
}
