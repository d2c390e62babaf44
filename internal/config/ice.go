package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/pion/webrtc/v4"
)

// ICEServers is the list handed to browsers: every STUN url in one entry,
// plus a TURN entry when url, username and credential are all configured.
func (c *Config) ICEServers() ([]webrtc.ICEServer, error) {
	servers := []webrtc.ICEServer{}

	stun := trimAll(c.StunURLs)
	if len(stun) > 0 {
		server := webrtc.ICEServer{URLs: stun}
		if err := validateICEServer(server); err != nil {
			return nil, fmt.Errorf("stun_urls: %w", err)
		}
		servers = append(servers, server)
	}

	turnURL := strings.TrimSpace(c.TurnURL)
	username := strings.TrimSpace(c.TurnUsername)
	credential := strings.TrimSpace(c.TurnCredential)
	if turnURL != "" && username != "" && credential != "" {
		server := webrtc.ICEServer{
			URLs:           []string{turnURL},
			Username:       username,
			Credential:     credential,
			CredentialType: webrtc.ICECredentialTypePassword,
		}
		if err := validateICEServer(server); err != nil {
			return nil, fmt.Errorf("turn_url: %w", err)
		}
		servers = append(servers, server)
	}
	return servers, nil
}

func trimAll(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		// env values arrive as one comma separated string
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func validateICEServer(server webrtc.ICEServer) error {
	if len(server.URLs) == 0 {
		return errors.New("missing urls")
	}
	for _, url := range server.URLs {
		if !isAllowedICEScheme(url) {
			return fmt.Errorf("unsupported url scheme: %q", url)
		}
	}
	return nil
}

func isAllowedICEScheme(url string) bool {
	for _, scheme := range []string{"stun:", "stuns:", "turn:", "turns:"} {
		if strings.HasPrefix(url, scheme) {
			return true
		}
	}
	return false
}
