package game

import (
	"bytes"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"golang.org/x/crypto/blake2b"

	"github.com/ptcgai/referee-server-go/internal/game/model"
)

// checksumVersion changes whenever the canonical form changes.
const checksumVersion = 1

// Checksum fingerprints a match state. Two states with the same checksum
// hold the same cards in the same places with the same counters.
type Checksum struct {
	Hash    string `json:"hash"`
	Version int    `json:"version"`
}

// ComputeChecksum hashes the canonical form of g with BLAKE2b-256.
func ComputeChecksum(g *model.GameState) (*Checksum, error) {
	if g == nil {
		return nil, fmt.Errorf("no state to checksum")
	}
	sum := blake2b.Sum256([]byte(canonicalForm(g)))
	return &Checksum{Hash: hex.EncodeToString(sum[:]), Version: checksumVersion}, nil
}

// VerifyChecksum reports whether g still matches expected.
func VerifyChecksum(g *model.GameState, expected *Checksum) (bool, error) {
	computed, err := ComputeChecksum(g)
	if err != nil {
		return false, fmt.Errorf("failed to compute checksum: %w", err)
	}
	return expected != nil && expected.Version == computed.Version && computed.Hash == expected.Hash, nil
}

// canonicalForm renders the state independent of map iteration order.
// Zone order is significant (deck and prizes) and kept as is.
func canonicalForm(g *model.GameState) string {
	var buf bytes.Buffer
	fmt.Fprintf(&buf, "MATCH:%s|%s|%s|%s\n", g.MatchID, strings.Join(g.Seats, ","), g.Winner, g.WinReason)
	fmt.Fprintf(&buf, "TURN:%s|%d|%s|%s\n", g.Turn.Player, g.Turn.Number, g.Turn.Phase, g.FirstPlayer)

	ids := make([]string, 0, len(g.Players))
	for id := range g.Players {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		p := g.Players[id]
		fmt.Fprintf(&buf, "PLAYER:%s|%d\n", id, p.PrizesRemaining)
		for _, z := range model.AllZones {
			cards := p.Zone(z)
			if len(cards) == 0 {
				continue
			}
			fmt.Fprintf(&buf, "  ZONE:%s\n", z)
			for _, c := range cards {
				writeCard(&buf, c)
			}
		}

		attached := make([]string, 0, len(p.Attached))
		for uid := range p.Attached {
			attached = append(attached, uid)
		}
		sort.Strings(attached)
		for _, uid := range attached {
			buf.WriteString("  ATTACHED:")
			writeCard(&buf, p.Attached[uid])
		}
		if p.Usage != nil {
			for _, k := range p.Usage.Keys() {
				fmt.Fprintf(&buf, "  USAGE:%s=%d\n", k, p.Usage.Counts[k])
			}
		}
	}
	return buf.String()
}

func writeCard(buf *bytes.Buffer, c *model.CardInstance) {
	def := ""
	if c.Definition != nil {
		def = c.Definition.ID()
	}
	conds := make([]string, len(c.Conditions))
	for i, cond := range c.Conditions {
		conds[i] = string(cond)
	}
	sort.Strings(conds)
	fmt.Fprintf(buf, "    CARD:%s|%s|%s|%d|%s|%s|%s|%d|%s\n",
		c.UID,
		c.OwnerID,
		def,
		c.Damage,
		strings.Join(c.AttachedEnergy, ","),
		c.AttachedTool,
		strings.Join(conds, ","),
		c.EnteredTurn,
		strings.Join(c.EvolvedFrom, ","),
	)
}

// EncodeState serializes a state as JSON. This is the form used for
// snapshots in the match store and for the initial state of recordings.
func EncodeState(g *model.GameState) ([]byte, error) {
	data, err := json.Marshal(g)
	if err != nil {
		return nil, fmt.Errorf("failed to encode state: %w", err)
	}
	return data, nil
}

// DecodeState reverses EncodeState.
func DecodeState(data []byte) (*model.GameState, error) {
	var g model.GameState
	if err := json.Unmarshal(data, &g); err != nil {
		return nil, fmt.Errorf("failed to decode state: %w", err)
	}
	for _, p := range g.Players {
		if p == nil {
			continue
		}
		if p.Zones == nil {
			p.Zones = make(map[model.Zone][]*model.CardInstance)
		}
		if p.Attached == nil {
			p.Attached = make(map[string]*model.CardInstance)
		}
		if p.Usage == nil {
			p.Usage = model.NewUsageTracker()
		}
	}
	return &g, nil
}

// ValidateRoundtrip checks that g survives EncodeState/DecodeState unchanged.
func ValidateRoundtrip(g *model.GameState) error {
	original, err := ComputeChecksum(g)
	if err != nil {
		return err
	}
	data, err := EncodeState(g)
	if err != nil {
		return err
	}
	decoded, err := DecodeState(data)
	if err != nil {
		return err
	}
	match, err := VerifyChecksum(decoded, original)
	if err != nil {
		return err
	}
	if !match {
		roundtrip, _ := ComputeChecksum(decoded)
		return fmt.Errorf("checksum mismatch: original=%s, decoded=%s", original.Hash, roundtrip.Hash)
	}
	return nil
}
