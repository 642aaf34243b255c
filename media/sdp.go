package media

import (
	"fmt"
	"net"
	"strconv"
	"strings"
)

// payloadTypePCMU is the static RTP payload type for G.711 µ-law.
const payloadTypePCMU = 0

// parseRemoteSDP extracts the remote audio RTP endpoint from an SDP
// body and verifies PCMU is offered. Only the subset the gateway needs
// is parsed: the session or media level c= line and the first m=audio.
func parseRemoteSDP(body []byte) (*net.UDPAddr, error) {
	var ip string
	port := -1
	pcmu := false
	inAudio := false

	for _, line := range strings.Split(string(body), "\n") {
		line = strings.TrimRight(line, "\r")
		switch {
		case strings.HasPrefix(line, "c=IN IP4 "):
			// Media-level connection overrides the session one.
			if !inAudio && ip != "" {
				continue
			}
			ip = strings.TrimSpace(strings.TrimPrefix(line, "c=IN IP4 "))

		case strings.HasPrefix(line, "m="):
			if inAudio {
				// Only the first audio section matters.
				break
			}
			if !strings.HasPrefix(line, "m=audio ") {
				continue
			}
			inAudio = true
			fields := strings.Fields(line)
			if len(fields) < 4 {
				return nil, fmt.Errorf("malformed media line %q", line)
			}
			p, err := strconv.Atoi(fields[1])
			if err != nil {
				return nil, fmt.Errorf("parsing audio port: %w", err)
			}
			port = p
			for _, f := range fields[3:] {
				if f == strconv.Itoa(payloadTypePCMU) {
					pcmu = true
				}
			}
		}
	}

	if port < 0 {
		return nil, fmt.Errorf("sdp has no audio media")
	}
	if !pcmu {
		return nil, fmt.Errorf("sdp audio does not offer PCMU")
	}
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return nil, fmt.Errorf("sdp has no usable connection address")
	}
	return &net.UDPAddr{IP: parsed, Port: port}, nil
}
