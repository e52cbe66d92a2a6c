package modem

import (
	"bytes"
	"strings"
)

// AT result codes the relay and the simulator care about.
const (
	CRLF     = "\r\n"
	ResultOK = "OK"
	ResultER = "ERROR"
	CmeError = "+CME ERROR:"
	CmsError = "+CMS ERROR:"
)

// ResponseType classifies one line of modem output.
type ResponseType int

const (
	// TypeFinal ends a command: OK, ERROR, +CME ERROR: n ...
	TypeFinal ResponseType = iota
	// TypeData is intermediate output such as "+CESQ: 99,99,255,255,31,62".
	TypeData
	// TypeEmpty is a blank line.
	TypeEmpty
)

// Classify returns the type of a single response line.
func Classify(line string) ResponseType {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return TypeEmpty
	case line == ResultOK, line == ResultER,
		strings.HasPrefix(line, CmeError), strings.HasPrefix(line, CmsError):
		return TypeFinal
	default:
		return TypeData
	}
}

// SplitCommands splits a terminal frame into individual AT commands. A
// frame may hold several lines when the operator pastes a script; CR, LF
// and NUL padding all separate commands.
func SplitCommands(frame []byte) []string {
	frame = bytes.TrimRight(frame, "\x00")
	fields := bytes.FieldsFunc(frame, func(r rune) bool {
		return r == '\r' || r == '\n' || r == 0
	})
	out := make([]string, 0, len(fields))
	for _, f := range fields {
		if s := strings.TrimSpace(string(f)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

// FinalResult returns the final result code of a formatted response, or ""
// if the response has none.
func FinalResult(resp []byte) string {
	lines := strings.Split(strings.TrimSpace(string(resp)), CRLF)
	for i := len(lines) - 1; i >= 0; i-- {
		if Classify(lines[i]) == TypeFinal {
			return strings.TrimSpace(lines[i])
		}
	}
	return ""
}
