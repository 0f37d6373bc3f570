package model

import (
	"fmt"
	"strings"
)

// Zone identifies a named container of cards owned by one player.
type Zone int

const (
	ZoneDeck Zone = iota
	ZoneHand
	ZoneActive
	ZoneBench
	ZoneDiscard
	ZoneLostZone
	ZonePrize
	ZoneStadium
)

// AllZones lists every zone in canonical order.
var AllZones = []Zone{
	ZoneDeck,
	ZoneHand,
	ZoneActive,
	ZoneBench,
	ZoneDiscard,
	ZoneLostZone,
	ZonePrize,
	ZoneStadium,
}

var zoneNames = map[Zone]string{
	ZoneDeck:     "deck",
	ZoneHand:     "hand",
	ZoneActive:   "active",
	ZoneBench:    "bench",
	ZoneDiscard:  "discard",
	ZoneLostZone: "lost_zone",
	ZonePrize:    "prize",
	ZoneStadium:  "stadium",
}

func (z Zone) String() string {
	if name, ok := zoneNames[z]; ok {
		return name
	}
	return fmt.Sprintf("ZONE_%d", int(z))
}

// InPlay reports whether cards in the zone are considered in play.
func (z Zone) InPlay() bool {
	return z == ZoneActive || z == ZoneBench
}

// ParseZone maps a wire name ("deck", "lost_zone", ...) to a Zone.
func ParseZone(name string) (Zone, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	switch key {
	case "lost", "lostzone", "lost zone":
		key = "lost_zone"
	case "discard_pile", "discard pile":
		key = "discard"
	case "prizes":
		key = "prize"
	}
	for zone, zoneName := range zoneNames {
		if zoneName == key {
			return zone, nil
		}
	}
	return 0, fmt.Errorf("unknown zone %q", name)
}

// MarshalText encodes the zone using its wire name.
func (z Zone) MarshalText() ([]byte, error) {
	return []byte(z.String()), nil
}

// UnmarshalText decodes a zone wire name.
func (z *Zone) UnmarshalText(text []byte) error {
	parsed, err := ParseZone(string(text))
	if err != nil {
		return err
	}
	*z = parsed
	return nil
}
