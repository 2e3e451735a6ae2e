// internal/syncclient/protocol.go

// Package syncclient talks to the coordination server. Every exchange is a
// single bounded request/response; any failure collapses into the
// "unavailable" result (none, "na") and never reaches the caller as an error.
package syncclient

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// Command is a request verb understood by the coordination server.
type Command string

const (
	CmdConnect Command = "connect"
	CmdCheck   Command = "check"
	CmdSync    Command = "sync"
	CmdClose   Command = "close"
)

// Valid reports whether c is one of the four recognized commands.
func (c Command) Valid() bool {
	switch c {
	case CmdConnect, CmdCheck, CmdSync, CmdClose:
		return true
	}
	return false
}

// Response is the server's instruction for the current exchange.
type Response string

const (
	RespSave Response = "save"
	RespWait Response = "wait"
	RespNone Response = "none" // no usable answer
)

// Unavailable is the server time recorded when no exchange succeeded.
const Unavailable = "na"

// Delimiter separates the fields of requests and replies.
const Delimiter = "_"

var (
	errMalformed      = errors.New("malformed reply")
	errUnknownCommand = errors.New("unknown command")
)

// FormatRequest builds the request line: <command>_<device_id>\n
func FormatRequest(cmd Command, deviceID int) string {
	return string(cmd) + Delimiter + strconv.Itoa(deviceID) + "\n"
}

// ParseRequest is the server-side inverse of FormatRequest.
func ParseRequest(line string) (Command, int, error) {
	parts := strings.Split(strings.TrimSpace(line), Delimiter)
	if len(parts) != 2 {
		return "", 0, errors.Errorf("request %q: want <command>_<device_id>", line)
	}

	cmd := Command(parts[0])
	if !cmd.Valid() {
		return "", 0, errors.Wrapf(errUnknownCommand, "request %q", line)
	}

	id, err := strconv.Atoi(parts[1])
	if err != nil || id < 1 {
		return "", 0, errors.Errorf("request %q: device id must be a positive integer", line)
	}
	return cmd, id, nil
}

// FormatReply builds a reply line: <response_token>_<server_time>\n
func FormatReply(resp Response, serverTime string) string {
	return string(resp) + Delimiter + serverTime + "\n"
}

// ParseReply splits "<token>_<time>". Anything that is not exactly one
// known token and one non-empty time yields (none, "na").
func ParseReply(reply string) (Response, string) {
	resp, ts, err := parseReply(reply)
	if err != nil {
		return RespNone, Unavailable
	}
	return resp, ts
}

func parseReply(reply string) (Response, string, error) {
	parts := strings.Split(strings.TrimSpace(reply), Delimiter)
	if len(parts) != 2 || parts[1] == "" {
		return RespNone, Unavailable, errors.Wrapf(errMalformed, "%q", reply)
	}

	switch r := Response(parts[0]); r {
	case RespSave, RespWait, RespNone:
		return r, parts[1], nil
	default:
		return RespNone, Unavailable, errors.Wrapf(errMalformed, "unknown token %q", parts[0])
	}
}
