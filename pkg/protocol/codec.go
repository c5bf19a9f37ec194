// ABOUTME: Salaam announcement codec
// ABOUTME: Validates and extracts announcements from raw datagrams, and builds them
package protocol

import (
	"encoding/base64"
	"fmt"
	"net"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	// Prefix marks the outer envelope of every Salaam datagram.
	Prefix = "Salaam:"

	// DefaultPort is the protocol's well-known UDP broadcast port.
	DefaultPort = 8650

	// CodeEndOfService signals that the announced instance is shutting
	// down and should be removed immediately.
	CodeEndOfService = "EOS"
)

// Announcement is one decoded protocol message describing a service
// instance's current presence and status. It is produced fresh per
// datagram and not retained.
type Announcement struct {
	HostName    string
	ServiceType string
	Name        string
	Port        int
	Message     string
	Sender      net.Addr
	Code        string // empty when the announcement carries no control code
}

var (
	payloadRe = regexp.MustCompile(`^(\d+);([^;]*);([^;]*);([^;]*);(\d+);([^;]*);(?:<([A-Z][A-Z0-9]{2,3})>)?$`)
	codeRe    = regexp.MustCompile(`^[A-Z][A-Z0-9]{2,3}$`)
)

// Decode validates raw datagram bytes and extracts the announcement they
// carry. The boolean is false for anything that is not a well-formed Salaam
// envelope; no reason is reported because foreign and malformed traffic on
// the shared port is routine.
func Decode(data []byte, sender net.Addr) (*Announcement, bool) {
	if !utf8.Valid(data) {
		return nil, false
	}
	envelope := string(data)
	if !strings.HasPrefix(envelope, Prefix) {
		return nil, false
	}

	raw, err := base64.StdEncoding.DecodeString(envelope[len(Prefix):])
	if err != nil || !utf8.Valid(raw) {
		return nil, false
	}
	payload := string(raw)

	m := payloadRe.FindStringSubmatch(payload)
	if m == nil {
		return nil, false
	}

	declared, err := strconv.Atoi(m[1])
	if err != nil {
		return nil, false
	}
	// The length field counts the characters after "<N>;", so the declared
	// value plus the field's own digits plus the separator must add up to
	// the whole payload.
	if declared+len(m[1])+1 != utf8.RuneCountInString(payload) {
		return nil, false
	}

	port, err := strconv.Atoi(m[5])
	if err != nil || port > 65535 {
		return nil, false
	}

	return &Announcement{
		HostName:    m[2],
		ServiceType: m[3],
		Name:        m[4],
		Port:        port,
		Message:     m[6],
		Sender:      sender,
		Code:        m[7],
	}, true
}

// Encode builds the canonical datagram for an announcement. code may be
// empty; a non-empty code must be a 3-4 character uppercase token with a
// leading letter. Fields must not contain the ';' separator.
func Encode(hostName, serviceType, name string, port int, message, code string) ([]byte, error) {
	for _, f := range []string{hostName, serviceType, name, message} {
		if strings.Contains(f, ";") {
			return nil, fmt.Errorf("field %q contains the separator ';'", f)
		}
	}
	if port < 0 || port > 65535 {
		return nil, fmt.Errorf("port %d out of range", port)
	}
	if code != "" && !codeRe.MatchString(code) {
		return nil, fmt.Errorf("invalid control code %q", code)
	}

	body := fmt.Sprintf("%s;%s;%s;%d;%s;", hostName, serviceType, name, port, message)
	if code != "" {
		body += "<" + code + ">"
	}
	payload := strconv.Itoa(utf8.RuneCountInString(body)) + ";" + body

	return []byte(Prefix + base64.StdEncoding.EncodeToString([]byte(payload))), nil
}
