package types

import (
	"fmt"
	"time"

	"numsync/codec"
)

// Tournament mirrors an on-chain tournament registration.
type Tournament struct {
	ID         uint64 `json:"id"`
	Powers     uint64 `json:"powers"`
	EntryCount uint64 `json:"entryCount"`
	StartTime  int64  `json:"startTime"`
	EndTime    int64  `json:"endTime"`
}

// IsActive reports whether now falls inside the tournament window.
func (t Tournament) IsActive(now time.Time) bool {
	unix := now.Unix()
	return unix >= t.StartTime && unix <= t.EndTime
}

// Prize is a reward pool attached to a tournament, keyed by token contract.
// Amount is kept as a decimal string of base units; amounts are u256 on chain
// and must never be truncated through a machine word. TokenLabel is resolved
// off-chain after the prize is first seen and survives later pushes that omit
// it.
type Prize struct {
	TournamentID uint64 `json:"tournamentId"`
	TokenAddress string `json:"tokenAddress"`
	Amount       string `json:"amount"`
	TokenLabel   string `json:"tokenLabel,omitempty"`
}

// Key returns the cache key for the prize.
func (p Prize) Key() string {
	return fmt.Sprintf("%d/%s", p.TournamentID, p.TokenAddress)
}

// Game is the ownership record for one game token.
type Game struct {
	TokenID uint64 `json:"tokenId"`
	Owner   string `json:"owner"`
}

// GameState is the play state behind one game token. PackedSlots carries the
// raw packed integer as a hex string; slot values are derived through the
// configured codec, never stored. Once Over is set the record is terminal.
type GameState struct {
	TokenID       uint64 `json:"tokenId"`
	Over          bool   `json:"over"`
	Claimed       bool   `json:"claimed"`
	Level         uint16 `json:"level"`
	SlotCount     uint8  `json:"slotCount"`
	SlotMin       uint16 `json:"slotMin"`
	SlotMax       uint16 `json:"slotMax"`
	CurrentNumber uint16 `json:"currentNumber"`
	NextNumber    uint16 `json:"nextNumber"`
	TournamentID  uint64 `json:"tournamentId"`
	Score         uint64 `json:"score"`
	Reward        string `json:"reward"`
	PackedSlots   string `json:"packedSlots"`
}

// SlotValues decodes the packed slot integer under the supplied codec.
func (g GameState) SlotValues(c *codec.Codec) ([]uint16, error) {
	return c.DecodeHex(g.PackedSlots, g.SlotCount, g.SlotMax)
}

// FilledSlots returns the 1-based occupied slot positions.
func (g GameState) FilledSlots(c *codec.Codec) ([]int, error) {
	values, err := g.SlotValues(c)
	if err != nil {
		return nil, err
	}
	return codec.FilledSlots(values), nil
}

// LeaderboardEntry is one ranked row. Entries are per game token, not
// deduplicated by owner; a player appears once per game they hold.
type LeaderboardEntry struct {
	Owner   string `json:"owner"`
	TokenID uint64 `json:"tokenId"`
	Name    string `json:"name"`
	Score   uint64 `json:"score"`
	Reward  string `json:"reward"`
}

// Call is a single contract invocation inside a multi-call batch.
type Call struct {
	Contract   string   `json:"contract"`
	Entrypoint string   `json:"entrypoint"`
	Calldata   []string `json:"calldata"`
}
