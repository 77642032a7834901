package bluetooth

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bluetuith-org/ble-session/api/errorkinds"
)

// Radix describes the number base of a textual write payload.
type Radix int

const (
	// RadixHex requires every value to carry a "0x" prefix, for example "0x03 0x01 0xff".
	RadixHex Radix = 16

	// RadixDecimal requires plain decimal values, for example "3 1 255".
	RadixDecimal Radix = 10
)

// ParsePayload parses a whitespace-separated payload into bytes.
// Every value must be written in the provided radix; mixing radixes
// within one payload is an error.
func ParsePayload(text string, radix Radix) ([]byte, error) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return nil, errorkinds.ErrInvalidArguments.WithCode("", "empty payload")
	}

	payload := make([]byte, 0, len(fields))
	for i, field := range fields {
		token := strings.ToLower(field)
		hasMarker := strings.Contains(token, "x")

		switch radix {
		case RadixHex:
			if !hasMarker || !strings.HasPrefix(token, "0x") {
				return nil, invalidValue(i, field, "missing 0x prefix")
			}
			token = token[2:]

		case RadixDecimal:
			if hasMarker {
				return nil, invalidValue(i, field, "radix marker in decimal payload")
			}

		default:
			return nil, errorkinds.ErrInvalidArguments.WithCode("", fmt.Sprintf("unsupported radix %d", radix))
		}

		value, err := strconv.ParseUint(token, int(radix), 8)
		if err != nil {
			return nil, invalidValue(i, field, "not a byte value")
		}

		payload = append(payload, byte(value))
	}

	return payload, nil
}

// FormatPayload formats bytes as a hexadecimal payload ("0x03 0x01").
func FormatPayload(payload []byte) string {
	sb := strings.Builder{}
	sb.Grow(len(payload) * 5)

	for i, b := range payload {
		if i > 0 {
			sb.WriteString(" ")
		}
		fmt.Fprintf(&sb, "0x%02x", b)
	}

	return sb.String()
}

// VerifyPrefix reports the first index at which read does not reflect written.
// It returns -1 if read starts with written.
func VerifyPrefix(written, read []byte) int {
	for i, b := range written {
		if i >= len(read) || read[i] != b {
			return i
		}
	}

	return -1
}

func invalidValue(index int, value, reason string) error {
	return errorkinds.ErrInvalidArguments.WithCode("", fmt.Sprintf("invalid value %q at index %d: %s", value, index, reason))
}
