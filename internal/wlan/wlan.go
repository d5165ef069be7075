// Package wlan holds the 802.11 primitives shared by the measurement engine,
// the neighbor report cache and the collaborator adapters.
package wlan

import (
	"bytes"
	"fmt"
	"net"
	"strings"
)

// BSSID is a 48-bit basic service set identifier.
type BSSID [6]byte

// Broadcast is the wildcard BSSID used by measurement requests.
var Broadcast = BSSID{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// ParseBSSID parses a colon or dash separated MAC address.
func ParseBSSID(s string) (BSSID, error) {
	var b BSSID
	if s == "" {
		return b, nil
	}
	hw, err := net.ParseMAC(s)
	if err != nil {
		return b, fmt.Errorf("invalid bssid %q: %w", s, err)
	}
	if len(hw) != len(b) {
		return b, fmt.Errorf("invalid bssid %q: expected 6 octets, got %d", s, len(hw))
	}
	copy(b[:], hw)
	return b, nil
}

// MustParseBSSID is ParseBSSID for constants and tests.
func MustParseBSSID(s string) BSSID {
	b, err := ParseBSSID(s)
	if err != nil {
		panic(err)
	}
	return b
}

// IsZero reports whether no address is set.
func (b BSSID) IsZero() bool { return b == BSSID{} }

// IsWildcard reports whether b matches any BSS (zero or broadcast).
func (b BSSID) IsWildcard() bool { return b.IsZero() || b == Broadcast }

// String returns the lower-case colon form.
func (b BSSID) String() string { return net.HardwareAddr(b[:]).String() }

// MarshalText implements encoding.TextMarshaler.
func (b BSSID) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *BSSID) UnmarshalText(text []byte) error {
	parsed, err := ParseBSSID(string(bytes.TrimSpace(text)))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Band is a frequency band.
type Band int

const (
	BandUnknown Band = iota
	Band2G
	Band5G
	Band6G
)

func (b Band) String() string {
	switch b {
	case Band2G:
		return "2.4GHz"
	case Band5G:
		return "5GHz"
	case Band6G:
		return "6GHz"
	default:
		return "unknown"
	}
}

// ParseBand accepts the String forms and the short aliases 2g, 5g and 6g.
func ParseBand(s string) (Band, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "2.4ghz", "2.4", "2g", "2ghz":
		return Band2G, nil
	case "5ghz", "5", "5g":
		return Band5G, nil
	case "6ghz", "6", "6g":
		return Band6G, nil
	case "", "unknown":
		return BandUnknown, nil
	default:
		return BandUnknown, fmt.Errorf("unknown band %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (b Band) MarshalText() ([]byte, error) { return []byte(b.String()), nil }

// UnmarshalText implements encoding.TextUnmarshaler.
func (b *Band) UnmarshalText(text []byte) error {
	parsed, err := ParseBand(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// Channel is a channel number qualified by its band. Two channels are the
// same channel when their centre frequencies match.
type Channel struct {
	Number int  `json:"number"`
	Band   Band `json:"band"`
}

// Freq returns the centre frequency in MHz, or 0 for an unknown band.
func (c Channel) Freq() int {
	switch c.Band {
	case Band2G:
		if c.Number == 14 {
			return 2484
		}
		return 2407 + 5*c.Number
	case Band5G:
		return 5000 + 5*c.Number
	case Band6G:
		if c.Number == 2 {
			return 5935
		}
		return 5950 + 5*c.Number
	default:
		return 0
	}
}

func (c Channel) String() string {
	return fmt.Sprintf("%d/%s", c.Number, c.Band)
}

// Ch2G, Ch5G and Ch6G are shorthands for table literals.
func Ch2G(n int) Channel { return Channel{Number: n, Band: Band2G} }
func Ch5G(n int) Channel { return Channel{Number: n, Band: Band5G} }
func Ch6G(n int) Channel { return Channel{Number: n, Band: Band6G} }
