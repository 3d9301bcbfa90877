package entity

import (
	"encoding/json"
	"testing"

	"github.com/holiman/uint256"
	"github.com/stretchr/testify/require"
)

func tournamentRecord(id, start, end uint64) *Record {
	return &Record{
		Model: ModelTournament,
		Fields: []Field{
			{Name: "id", Value: Uint(id)},
			{Name: "powers", Value: Uint(3)},
			{Name: "entry_count", Value: Uint(12)},
			{Name: "start_time", Value: Uint(start)},
			{Name: "end_time", Value: Uint(end)},
		},
	}
}

func TestDecodeTournament(t *testing.T) {
	tour, ok := DecodeTournament(tournamentRecord(7, 100, 200))
	require.True(t, ok)
	require.Equal(t, uint64(7), tour.ID)
	require.Equal(t, int64(100), tour.StartTime)
	require.Equal(t, int64(200), tour.EndTime)
}

func TestDecodeTournamentRejectsInvertedWindow(t *testing.T) {
	_, ok := DecodeTournament(tournamentRecord(7, 200, 100))
	require.False(t, ok)
}

func TestDecodeTournamentMissingFieldIsAbsence(t *testing.T) {
	r := tournamentRecord(7, 100, 200)
	r.Fields = r.Fields[:3] // drop the time fields
	_, ok := DecodeTournament(r)
	require.False(t, ok)
}

func TestDecodePrizeKeepsFullPrecision(t *testing.T) {
	// 10^21 base units does not fit in 64 bits.
	amount, err := uint256.FromDecimal("1000000000000000000000")
	require.NoError(t, err)
	r := &Record{
		Model: ModelPrize,
		Fields: []Field{
			{Name: "tournament_id", Value: Uint(7)},
			{Name: "token", Value: Felt([]byte{0xde, 0xad, 0xbe, 0xef})},
			{Name: "amount", Value: Big(amount)},
		},
	}
	prize, ok := DecodePrize(r)
	require.True(t, ok)
	require.Equal(t, "1000000000000000000000", prize.Amount)
	require.Equal(t, "0xdeadbeef", prize.TokenAddress)
	require.Empty(t, prize.TokenLabel)
}

func TestDecodeGameState(t *testing.T) {
	r := &Record{
		Model: ModelGameState,
		Fields: []Field{
			{Name: "token_id", Value: Uint(42)},
			{Name: "over", Value: Bool(false)},
			{Name: "claimed", Value: Bool(false)},
			{Name: "level", Value: Uint(2)},
			{Name: "slot_count", Value: Uint(20)},
			{Name: "slot_min", Value: Uint(1)},
			{Name: "slot_max", Value: Uint(999)},
			{Name: "current_number", Value: Uint(531)},
			{Name: "next_number", Value: Uint(12)},
			{Name: "tournament_id", Value: Uint(7)},
			{Name: "score", Value: Uint(5)},
			{Name: "reward", Value: Uint(0)},
			{Name: "slots", Value: Uint(0xc8)},
		},
	}
	state, ok := DecodeGameState(r)
	require.True(t, ok)
	require.Equal(t, uint64(42), state.TokenID)
	require.Equal(t, uint8(20), state.SlotCount)
	require.Equal(t, "0xc8", state.PackedSlots)
	require.Equal(t, "0", state.Reward)
}

func TestValueNarrowingRefusesTruncation(t *testing.T) {
	wide := Big(uint256.MustFromDecimal("18446744073709551616")) // 2^64
	_, ok := wide.AsUint()
	require.False(t, ok)
	dec, ok := wide.AsDecimal()
	require.True(t, ok)
	require.Equal(t, "18446744073709551616", dec)
}

func TestRecordUnmarshalWireFrame(t *testing.T) {
	frame := `{
		"model": "Prize",
		"fields": [
			{"name": "tournament_id", "type": "u32", "value": 7},
			{"name": "token", "type": "felt", "value": "0x49d36570d4e46f48e99674bd3fcc84644ddd6b96f7c741b1562b82f9e004dc7"},
			{"name": "amount", "type": "u256", "value": "0x3635c9adc5dea00000"}
		]
	}`
	var r Record
	require.NoError(t, json.Unmarshal([]byte(frame), &r))
	require.Equal(t, "Prize", r.Model)
	prize, ok := DecodePrize(&r)
	require.True(t, ok)
	require.Equal(t, "1000000000000000000000", prize.Amount)
	require.Equal(t, uint64(7), prize.TournamentID)
}

func TestRecordUnmarshalNested(t *testing.T) {
	frame := `{
		"model": "Game",
		"fields": [
			{"name": "token_id", "type": "u64", "value": "0x2a"},
			{"name": "owner", "type": "felt", "value": "0x1"},
			{"name": "meta", "type": "record", "value": {
				"model": "Meta",
				"fields": [{"name": "minted", "type": "bool", "value": true}]
			}}
		]
	}`
	var r Record
	require.NoError(t, json.Unmarshal([]byte(frame), &r))
	meta, ok := r.Nested("meta")
	require.True(t, ok)
	minted, ok := meta.Bool("minted")
	require.True(t, ok)
	require.True(t, minted)

	game, ok := DecodeGame(&r)
	require.True(t, ok)
	require.Equal(t, uint64(42), game.TokenID)
}

func TestRecordUnmarshalRejectsUnknownType(t *testing.T) {
	frame := `{"model":"X","fields":[{"name":"a","type":"i512","value":"0x1"}]}`
	var r Record
	require.Error(t, json.Unmarshal([]byte(frame), &r))
}

func TestRecordUnmarshalRejectsU64Overflow(t *testing.T) {
	frame := `{"model":"X","fields":[{"name":"a","type":"u64","value":"0x10000000000000000"}]}`
	var r Record
	require.Error(t, json.Unmarshal([]byte(frame), &r))
}

func TestFeltRendering(t *testing.T) {
	v := Felt([]byte{0x00, 0x12, 0x34})
	s, ok := v.AsFelt()
	require.True(t, ok)
	require.Equal(t, "0x001234", s)
}
