package entity

import (
	"numsync/core/types"
)

// Model tags emitted by the indexer for the records this client tracks.
const (
	ModelTournament = "Tournament"
	ModelPrize      = "Prize"
	ModelGame       = "Game"
	ModelGameState  = "GameState"
)

// The decoders below map generic records onto domain types. A missing
// required field means the record has not been fully indexed yet; that is
// reported as absence, never as an error, so callers can simply skip and
// retry on the next cycle.

// DecodeTournament extracts a tournament record.
func DecodeTournament(r *Record) (types.Tournament, bool) {
	id, ok := r.Uint("id")
	if !ok {
		return types.Tournament{}, false
	}
	powers, ok := r.Uint("powers")
	if !ok {
		return types.Tournament{}, false
	}
	entries, ok := r.Uint("entry_count")
	if !ok {
		return types.Tournament{}, false
	}
	start, ok := r.Uint("start_time")
	if !ok {
		return types.Tournament{}, false
	}
	end, ok := r.Uint("end_time")
	if !ok || end < start {
		return types.Tournament{}, false
	}
	return types.Tournament{
		ID:         id,
		Powers:     powers,
		EntryCount: entries,
		StartTime:  int64(start),
		EndTime:    int64(end),
	}, true
}

// DecodePrize extracts a prize record. The token label is resolved elsewhere
// and is never part of the on-chain payload.
func DecodePrize(r *Record) (types.Prize, bool) {
	tournamentID, ok := r.Uint("tournament_id")
	if !ok {
		return types.Prize{}, false
	}
	token, ok := r.Felt("token")
	if !ok {
		return types.Prize{}, false
	}
	amount, ok := r.Decimal("amount")
	if !ok {
		return types.Prize{}, false
	}
	return types.Prize{
		TournamentID: tournamentID,
		TokenAddress: token,
		Amount:       amount,
	}, true
}

// DecodeGame extracts a game ownership record.
func DecodeGame(r *Record) (types.Game, bool) {
	tokenID, ok := r.Uint("token_id")
	if !ok {
		return types.Game{}, false
	}
	owner, ok := r.Felt("owner")
	if !ok {
		return types.Game{}, false
	}
	return types.Game{TokenID: tokenID, Owner: owner}, true
}

// DecodeGameState extracts the play state behind one game token. The packed
// slot integer stays hex-encoded; the codec unpacks it on demand.
func DecodeGameState(r *Record) (types.GameState, bool) {
	tokenID, ok := r.Uint("token_id")
	if !ok {
		return types.GameState{}, false
	}
	over, ok := r.Bool("over")
	if !ok {
		return types.GameState{}, false
	}
	claimed, ok := r.Bool("claimed")
	if !ok {
		return types.GameState{}, false
	}
	level, ok := narrow16(r, "level")
	if !ok {
		return types.GameState{}, false
	}
	slotCount, ok := r.Uint("slot_count")
	if !ok || slotCount > 255 {
		return types.GameState{}, false
	}
	slotMin, ok := narrow16(r, "slot_min")
	if !ok {
		return types.GameState{}, false
	}
	slotMax, ok := narrow16(r, "slot_max")
	if !ok {
		return types.GameState{}, false
	}
	current, ok := narrow16(r, "current_number")
	if !ok {
		return types.GameState{}, false
	}
	next, ok := narrow16(r, "next_number")
	if !ok {
		return types.GameState{}, false
	}
	tournamentID, ok := r.Uint("tournament_id")
	if !ok {
		return types.GameState{}, false
	}
	score, ok := r.Uint("score")
	if !ok {
		return types.GameState{}, false
	}
	reward, ok := r.Decimal("reward")
	if !ok {
		return types.GameState{}, false
	}
	packed, ok := r.Hex("slots")
	if !ok {
		return types.GameState{}, false
	}
	return types.GameState{
		TokenID:       tokenID,
		Over:          over,
		Claimed:       claimed,
		Level:         level,
		SlotCount:     uint8(slotCount),
		SlotMin:       slotMin,
		SlotMax:       slotMax,
		CurrentNumber: current,
		NextNumber:    next,
		TournamentID:  tournamentID,
		Score:         score,
		Reward:        reward,
		PackedSlots:   packed,
	}, true
}

func narrow16(r *Record, name string) (uint16, bool) {
	v, ok := r.Uint(name)
	if !ok || v > 0xffff {
		return 0, false
	}
	return uint16(v), true
}
