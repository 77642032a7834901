// Package events decodes the output of bluetoothctl into
// lines, records, attribute values and agent requests.
package events

import (
	"bytes"
	"regexp"
	"strings"
)

var (
	escapeSequence = regexp.MustCompile(`\x1b\[[0-9;?]*[A-Za-z]`)
	promptPrefix   = regexp.MustCompile(`^\[[^\]]*\][#>]\s?`)
)

// promptSuffixes end the output which bluetoothctl writes without
// a trailing newline, while it waits for input.
var promptSuffixes = [][]byte{
	[]byte("]# "),
	[]byte("]> "),
	[]byte("(yes/no): "),
	[]byte("Enter PIN code: "),
	[]byte("Enter passkey (number in 0-999999): "),
}

// SplitLines is a bufio.SplitFunc which splits output into lines, and
// delivers a pending prompt as a line of its own.
func SplitLines(data []byte, atEOF bool) (advance int, token []byte, err error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}

	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		return i + 1, bytes.TrimSuffix(data[:i], []byte("\r")), nil
	}

	if isPending(data) {
		return len(data), data, nil
	}

	if atEOF {
		return len(data), data, nil
	}

	return 0, nil, nil
}

// isPending reports whether data ends with a prompt, once the colour
// codes and readline markers around it are removed.
func isPending(data []byte) bool {
	visible := escapeSequence.ReplaceAll(data, nil)
	visible = bytes.ReplaceAll(visible, []byte("\x01"), nil)
	visible = bytes.ReplaceAll(visible, []byte("\x02"), nil)

	for _, suffix := range promptSuffixes {
		if bytes.HasSuffix(visible, suffix) {
			return true
		}
	}

	return false
}

// CleanLine removes terminal control sequences from a line of output.
// Lines redrawn over a prompt are returned as separate segments.
func CleanLine(line string) []string {
	line = escapeSequence.ReplaceAllString(line, "")
	line = strings.NewReplacer("\x01", "", "\x02", "").Replace(line)

	segments := make([]string, 0, 1)
	for _, segment := range strings.Split(line, "\r") {
		segment = strings.TrimRight(segment, " \t")
		if segment == "" {
			continue
		}

		segments = append(segments, segment)
	}

	return segments
}

// TrimPrompt removes a leading prompt from a line.
func TrimPrompt(line string) string {
	return promptPrefix.ReplaceAllString(line, "")
}

// IsPrompt reports whether the line only holds a prompt.
func IsPrompt(line string) bool {
	return promptPrefix.MatchString(line) && strings.TrimSpace(TrimPrompt(line)) == ""
}
