package events

import (
	"encoding/hex"
	"strings"

	"github.com/bluetuith-org/ble-session/api/bluetooth"
	"github.com/bluetuith-org/ble-session/api/errorkinds"
)

const (
	// ValueMarker precedes the bytes of a value reported for an attribute.
	ValueMarker = "Value: "

	// ReplyMarker precedes the bytes of a value printed without an attribute
	// path, such as the reply to a read. bluetoothctl never prints it.
	ReplyMarker = "Read value: "

	hexdumpWidth   = 16
	hexdumpColumns = 49
)

// Value is an attribute value decoded from bluetoothctl output.
type Value struct {
	// Path holds the attribute the value was reported for.
	// It is empty for the reply to a read command.
	Path string
	Data []byte
}

// ValueDecoder assembles attribute values, which bluetoothctl prints either
// on the "Value:" line itself, or as a hexdump on the lines that follow it.
type ValueDecoder struct {
	path    string
	pending []byte
	active  bool
}

// String formats the value as a single line. Values of an attribute are
// matched by AttributeMarker, and all other values by ReplyMarker.
func (v Value) String() string {
	marker := ReplyMarker
	if v.Path != "" {
		marker = AttributeMarker(v.Path)
	}

	return marker + bluetooth.FormatPayload(v.Data)
}

// AttributeMarker returns the prefix of the value lines of the attribute at path.
func AttributeMarker(path string) string {
	return "Attribute " + path + " " + ValueMarker
}

// Feed decodes one cleaned line of output. It returns the values completed
// by the line, and reports whether the line was part of a hexdump.
// A hexdump which ends with a full row stays pending until the next
// line, or until Flush is called.
func (d *ValueDecoder) Feed(line string) ([]Value, bool) {
	if data, ok := parseHexdump(line); ok {
		d.active = true
		d.pending = append(d.pending, data...)

		if len(data) < hexdumpWidth {
			return []Value{d.flush()}, true
		}

		return nil, true
	}

	var values []Value
	if d.active {
		values = append(values, d.flush())
	}

	path, rest, ok := parseValueHeader(line)
	if !ok {
		return values, false
	}

	if rest == "" {
		d.path = path
		return values, false
	}

	data, err := ParseValue(rest)
	if err != nil {
		return values, false
	}

	return append(values, Value{Path: path, Data: data}), false
}

// Pending reports whether a hexdump value has not been completed yet.
func (d *ValueDecoder) Pending() bool {
	return d.active
}

// Flush completes a pending hexdump value.
func (d *ValueDecoder) Flush() (Value, bool) {
	if !d.active {
		return Value{}, false
	}

	return d.flush(), true
}

func (d *ValueDecoder) flush() Value {
	v := Value{Path: d.path, Data: d.pending}
	d.path, d.pending, d.active = "", nil, false

	return v
}

// ParseValue parses the bytes of a value line, for example "0x03 0x01" or "03 01".
func ParseValue(text string) ([]byte, error) {
	for _, marker := range []string{ReplyMarker, ValueMarker} {
		if i := strings.Index(text, marker); i >= 0 {
			text = text[i+len(marker):]
			break
		}
	}

	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil, errorkinds.ErrReadWriteFailed.WithCode("", "empty value")
	}

	if !strings.HasPrefix(strings.ToLower(fields[0]), "0x") {
		data, err := hex.DecodeString(strings.Join(fields, ""))
		if err != nil {
			return nil, errorkinds.ErrReadWriteFailed.WithCode("", "malformed value "+text)
		}

		return data, nil
	}

	return bluetooth.ParsePayload(text, bluetooth.RadixHex)
}

// parseValueHeader parses "[CHG] Attribute <path> Value:" and its single-value form.
func parseValueHeader(line string) (string, string, bool) {
	line = strings.TrimSpace(stripEventTag(TrimPrompt(line)))

	rest, ok := strings.CutPrefix(line, "Attribute ")
	if !ok {
		return "", "", false
	}

	path, value, ok := strings.Cut(rest, " Value:")
	if !ok || !strings.HasPrefix(path, "/") {
		return "", "", false
	}

	return path, strings.TrimSpace(value), true
}

// parseHexdump parses one line of a hexdump:
// two spaces, up to 16 space-separated hex bytes, and their printable form.
func parseHexdump(line string) ([]byte, bool) {
	if !strings.HasPrefix(line, "  ") {
		return nil, false
	}

	column := line[:min(len(line), hexdumpColumns)]
	fields := strings.Fields(column)
	if len(fields) == 0 || len(fields) > hexdumpWidth {
		return nil, false
	}

	data := make([]byte, 0, len(fields))
	for _, field := range fields {
		if len(field) != 2 {
			return nil, false
		}

		b, err := hex.DecodeString(field)
		if err != nil {
			return nil, false
		}

		data = append(data, b[0])
	}

	return data, true
}
