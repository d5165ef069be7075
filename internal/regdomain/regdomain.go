// Package regdomain resolves channel numbers against per-country valid
// channel tables and 802.11 operating classes (Annex E).
package regdomain

import (
	"errors"
	"fmt"
	"strings"

	"github.com/aiforce-discovery-agent/collectors/rrm-engine/internal/wlan"
)

var (
	// ErrUnknownCountry is returned for a country code with no table.
	ErrUnknownCountry = errors.New("unknown country code")
	// ErrUnknownClass is returned for an operating class absent from both
	// the country table and the global table.
	ErrUnknownClass = errors.New("unknown operating class")
)

type table string

const (
	tableUS     table = "US"
	tableEU     table = "EU"
	tableJP     table = "JP"
	tableGlobal table = "global"
)

var countryTables = map[string]table{
	"US": tableUS, "CA": tableUS,
	"EU": tableEU, "DE": tableEU, "FR": tableEU, "GB": tableEU, "NL": tableEU,
	"IT": tableEU, "ES": tableEU, "SE": tableEU, "IE": tableEU,
	"JP": tableJP,
}

// Domain is the regulatory view for one country.
type Domain struct {
	country string
	table   table
	valid   []wlan.Channel
	index   map[int]struct{}
}

// New returns the Domain for an ISO 3166 alpha-2 country code.
func New(country string) (*Domain, error) {
	cc := strings.ToUpper(strings.TrimSpace(country))
	t, ok := countryTables[cc]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCountry, country)
	}

	valid := validChannels(t)
	index := make(map[int]struct{}, len(valid))
	for _, ch := range valid {
		index[ch.Freq()] = struct{}{}
	}

	return &Domain{country: cc, table: t, valid: valid, index: index}, nil
}

// Country returns the normalized country code.
func (d *Domain) Country() string { return d.country }

// ValidChannels returns every channel usable in the country, ordered by band
// then channel number.
func (d *Domain) ValidChannels() []wlan.Channel {
	out := make([]wlan.Channel, len(d.valid))
	copy(out, d.valid)
	return out
}

// IsValid reports whether ch is in the country's valid-channel table.
func (d *Domain) IsValid(ch wlan.Channel) bool {
	_, ok := d.index[ch.Freq()]
	return ok
}

// ClassChannels returns the channels of an operating class. 6 GHz classes
// always use the global table; other classes are looked up in the country
// table first and the global table second.
func (d *Domain) ClassChannels(class int) ([]wlan.Channel, error) {
	if Is6GHzClass(class) {
		return lookupClass(tableGlobal, class)
	}
	if chs, err := lookupClass(d.table, class); err == nil {
		return chs, nil
	}
	return lookupClass(tableGlobal, class)
}

// Resolve turns a channel number into a Channel. The band comes from the
// operating class when it is known, otherwise numbers 1-14 are 2.4 GHz and
// the rest are 5 GHz.
func (d *Domain) Resolve(number, class int) wlan.Channel {
	if class != 0 {
		if chs, err := d.ClassChannels(class); err == nil && len(chs) > 0 {
			return wlan.Channel{Number: number, Band: chs[0].Band}
		}
	}
	if number >= 1 && number <= 14 {
		return wlan.Ch2G(number)
	}
	return wlan.Ch5G(number)
}

// Is6GHzClass reports whether class is a 6 GHz global operating class.
func Is6GHzClass(class int) bool {
	return class >= 131 && class <= 137
}

func lookupClass(t table, class int) ([]wlan.Channel, error) {
	classes, ok := classTables[t]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownClass, class)
	}
	chs, ok := classes[class]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrUnknownClass, class)
	}
	out := make([]wlan.Channel, len(chs))
	copy(out, chs)
	return out, nil
}

func validChannels(t table) []wlan.Channel {
	var out []wlan.Channel
	switch t {
	case tableUS:
		out = append(out, span2G(1, 11)...)
		out = append(out, span5G(36, 64)...)
		out = append(out, span5G(100, 144)...)
		out = append(out, span5G(149, 165)...)
		out = append(out, span6G(1, 233)...)
	case tableEU:
		out = append(out, span2G(1, 13)...)
		out = append(out, span5G(36, 64)...)
		out = append(out, span5G(100, 140)...)
		out = append(out, span6G(1, 93)...)
	case tableJP:
		out = append(out, span2G(1, 14)...)
		out = append(out, span5G(36, 64)...)
		out = append(out, span5G(100, 144)...)
		out = append(out, span6G(1, 93)...)
	}
	return out
}

var classTables = map[table]map[int][]wlan.Channel{
	tableUS: {
		1:  span5G(36, 48),
		2:  span5G(52, 64),
		3:  span5G(149, 161),
		4:  span5G(100, 144),
		5:  span5G(149, 165),
		12: span2G(1, 11),
	},
	tableEU: {
		1:  span5G(36, 48),
		2:  span5G(52, 64),
		3:  span5G(100, 140),
		4:  span2G(1, 13),
		17: span5G(149, 169),
	},
	tableJP: {
		1:  span5G(36, 48),
		30: span2G(1, 13),
		31: {wlan.Ch2G(14)},
		32: span5G(52, 64),
		34: span5G(100, 140),
	},
	tableGlobal: {
		81:  span2G(1, 13),
		82:  {wlan.Ch2G(14)},
		115: span5G(36, 48),
		118: span5G(52, 64),
		121: span5G(100, 144),
		124: span5G(149, 161),
		125: span5G(149, 177),
		131: span6G(1, 233),
		132: span6G(1, 233),
		133: span6G(1, 233),
		134: span6G(1, 233),
		135: span6G(1, 233),
		136: {wlan.Ch6G(2)},
		137: span6G(1, 233),
	},
}

func span2G(from, to int) []wlan.Channel {
	var out []wlan.Channel
	for n := from; n <= to; n++ {
		out = append(out, wlan.Ch2G(n))
	}
	return out
}

// span5G and span6G step by 4, the 20 MHz primary channel spacing.
func span5G(from, to int) []wlan.Channel {
	var out []wlan.Channel
	for n := from; n <= to; n += 4 {
		out = append(out, wlan.Ch5G(n))
	}
	return out
}

func span6G(from, to int) []wlan.Channel {
	var out []wlan.Channel
	for n := from; n <= to; n += 4 {
		out = append(out, wlan.Ch6G(n))
	}
	return out
}
