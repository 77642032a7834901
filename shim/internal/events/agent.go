package events

import (
	"strconv"
	"strings"

	"github.com/bluetuith-org/ble-session/api/bluetooth"
	"github.com/google/uuid"
)

const agentTag = "[agent] "

// ParseAgentRequest parses a request which bluetoothctl's pairing agent prints.
// The address of the event is not set, since the agent does not print it.
func ParseAgentRequest(line string) (bluetooth.AuthEventData, bool) {
	line = strings.TrimSpace(TrimPrompt(line))

	rest, ok := strings.CutPrefix(line, agentTag)
	if !ok {
		return bluetooth.AuthEventData{}, false
	}

	switch {
	case strings.HasPrefix(rest, "Confirm passkey "):
		passkey, ok := parsePasskey(strings.TrimSuffix(strings.TrimPrefix(rest, "Confirm passkey "), "(yes/no):"))
		if !ok {
			return bluetooth.AuthEventData{}, false
		}

		return bluetooth.AuthEventData{
			EventID:     bluetooth.ConfirmPasskey,
			ReplyMethod: bluetooth.ReplyYesNo,
			Passkey:     passkey,
		}, true

	case strings.HasPrefix(rest, "Accept pairing"):
		return bluetooth.AuthEventData{
			EventID:     bluetooth.AuthorizePairing,
			ReplyMethod: bluetooth.ReplyYesNo,
		}, true

	case strings.HasPrefix(rest, "Authorize service "):
		service := strings.TrimSpace(strings.TrimSuffix(strings.TrimPrefix(rest, "Authorize service "), "(yes/no):"))
		id, err := uuid.Parse(service)
		if err != nil {
			return bluetooth.AuthEventData{}, false
		}

		return bluetooth.AuthEventData{
			EventID:     bluetooth.AuthorizeService,
			ReplyMethod: bluetooth.ReplyYesNo,
			UUID:        id,
		}, true

	case strings.HasPrefix(rest, "PIN code: "):
		return bluetooth.AuthEventData{
			EventID:     bluetooth.DisplayPinCode,
			ReplyMethod: bluetooth.ReplyNone,
			Pincode:     strings.TrimSpace(strings.TrimPrefix(rest, "PIN code: ")),
		}, true

	case strings.HasPrefix(rest, "Passkey: "):
		passkey, ok := parsePasskey(strings.TrimPrefix(rest, "Passkey: "))
		if !ok {
			return bluetooth.AuthEventData{}, false
		}

		return bluetooth.AuthEventData{
			EventID:     bluetooth.DisplayPasskey,
			ReplyMethod: bluetooth.ReplyNone,
			Passkey:     passkey,
		}, true
	}

	return bluetooth.AuthEventData{}, false
}

func parsePasskey(text string) (uint32, bool) {
	fields := strings.Fields(text)
	if len(fields) == 0 {
		return 0, false
	}

	passkey, err := strconv.ParseUint(fields[0], 10, 32)
	if err != nil {
		return 0, false
	}

	return uint32(passkey), true
}
