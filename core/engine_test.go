package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"numsync/codec"
	"numsync/entity"
)

type fakeQuerier struct {
	mu         sync.Mutex
	entities   map[string][]entity.Record
	rowQueue   [][]Row
	queryCalls int
	failWith   error
}

func (f *fakeQuerier) Entities(ctx context.Context, model, clause string) ([]entity.Record, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.entities[model], nil
}

func (f *fakeQuerier) EntitiesPage(ctx context.Context, model, clause string, limit, offset uint32, orderBy string, desc bool) ([]entity.Record, error) {
	return f.Entities(ctx, model, clause)
}

func (f *fakeQuerier) Query(ctx context.Context, query string) ([]Row, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queryCalls++
	if f.failWith != nil {
		return nil, f.failWith
	}
	if len(f.rowQueue) == 0 {
		return nil, nil
	}
	rows := f.rowQueue[0]
	f.rowQueue = f.rowQueue[1:]
	return rows, nil
}

func (f *fakeQuerier) setError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWith = err
}

func (f *fakeQuerier) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queryCalls
}

type fakeSubscriber struct {
	mu      sync.Mutex
	chans   []chan entity.Record
	clauses []string
}

func (f *fakeSubscriber) Subscribe(ctx context.Context, clause string) (<-chan entity.Record, func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan entity.Record, 8)
	f.chans = append(f.chans, ch)
	f.clauses = append(f.clauses, clause)
	return ch, func() {}, nil
}

func (f *fakeSubscriber) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.chans)
}

func (f *fakeSubscriber) push(rec entity.Record) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, ch := range f.chans {
		ch <- rec
	}
}

type fakeLabeler struct {
	mu    sync.Mutex
	calls map[string]int
}

func (f *fakeLabeler) Label(ctx context.Context, token string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.calls == nil {
		f.calls = map[string]int{}
	}
	f.calls[token]++
	return "LORDS", nil
}

func (f *fakeLabeler) callsFor(token string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[token]
}

func tournamentRecord(id uint64) entity.Record {
	return entity.Record{
		Model: entity.ModelTournament,
		Fields: []entity.Field{
			{Name: "id", Value: entity.Uint(id)},
			{Name: "powers", Value: entity.Uint(1)},
			{Name: "entry_count", Value: entity.Uint(0)},
			{Name: "start_time", Value: entity.Uint(100)},
			{Name: "end_time", Value: entity.Uint(200)},
		},
	}
}

func prizeRecord(tournamentID uint64, token byte) entity.Record {
	return entity.Record{
		Model: entity.ModelPrize,
		Fields: []entity.Field{
			{Name: "tournament_id", Value: entity.Uint(tournamentID)},
			{Name: "token", Value: entity.Felt([]byte{token})},
			{Name: "amount", Value: entity.Uint(1000)},
		},
	}
}

func gameStateRecord(tokenID uint64, over bool, packed uint64) entity.Record {
	return entity.Record{
		Model: entity.ModelGameState,
		Fields: []entity.Field{
			{Name: "token_id", Value: entity.Uint(tokenID)},
			{Name: "over", Value: entity.Bool(over)},
			{Name: "claimed", Value: entity.Bool(false)},
			{Name: "level", Value: entity.Uint(1)},
			{Name: "slot_count", Value: entity.Uint(20)},
			{Name: "slot_min", Value: entity.Uint(1)},
			{Name: "slot_max", Value: entity.Uint(999)},
			{Name: "current_number", Value: entity.Uint(500)},
			{Name: "next_number", Value: entity.Uint(12)},
			{Name: "tournament_id", Value: entity.Uint(1)},
			{Name: "score", Value: entity.Uint(3)},
			{Name: "reward", Value: entity.Uint(0)},
			{Name: "slots", Value: entity.Uint(packed)},
		},
	}
}

func leaderboardRows(n int, startScore uint64) []Row {
	rows := make([]Row, 0, n)
	for i := 0; i < n; i++ {
		rows = append(rows, Row{
			"owner":    entity.Felt([]byte{byte(i + 1)}),
			"token_id": entity.Uint(uint64(i + 1)),
			"name":     entity.Text(fmt.Sprintf("player%d", i+1)),
			"score":    entity.Uint(startScore - uint64(i)),
			"reward":   entity.Uint(0),
		})
	}
	return rows
}

func startEngine(t *testing.T, querier Querier, subs Subscriber, opts ...Option) *Engine {
	t.Helper()
	c, err := codec.New(codec.SchemeFixedBits, 12)
	require.NoError(t, err)
	// Polling is driven manually in tests.
	opts = append([]Option{WithPollInterval(0), WithPageSize(10)}, opts...)
	e, err := NewEngine(c, querier, subs, opts...)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go func() { _ = e.Run(ctx) }()
	return e
}

func TestBootstrapSortsTournamentsAscending(t *testing.T) {
	querier := &fakeQuerier{entities: map[string][]entity.Record{
		entity.ModelTournament: {tournamentRecord(2), tournamentRecord(1), tournamentRecord(3)},
	}}
	e := startEngine(t, querier, nil)
	require.NoError(t, e.Bootstrap(context.Background()))

	tours := e.Tournaments()
	require.Len(t, tours, 3)
	require.Equal(t, uint64(1), tours[0].ID)
	require.Equal(t, uint64(2), tours[1].ID)
	require.Equal(t, uint64(3), tours[2].ID)
}

func TestBootstrapSkipsUndecodableRecords(t *testing.T) {
	bad := entity.Record{Model: entity.ModelTournament, Fields: []entity.Field{
		{Name: "id", Value: entity.Uint(9)},
		// start/end missing
	}}
	querier := &fakeQuerier{entities: map[string][]entity.Record{
		entity.ModelTournament: {tournamentRecord(1), bad, tournamentRecord(2)},
	}}
	e := startEngine(t, querier, nil)
	require.NoError(t, e.Bootstrap(context.Background()))
	require.Len(t, e.Tournaments(), 2)
}

func TestPushUpsertIsIdempotent(t *testing.T) {
	subs := &fakeSubscriber{}
	querier := &fakeQuerier{entities: map[string][]entity.Record{}}
	e := startEngine(t, querier, subs)
	require.NoError(t, e.WatchTournaments(context.Background()))

	subs.push(tournamentRecord(5))
	require.Eventually(t, func() bool { return len(e.Tournaments()) == 1 }, time.Second, 5*time.Millisecond)
	first := e.Snapshot()

	subs.push(tournamentRecord(5))
	require.Eventually(t, func() bool {
		snap := e.Snapshot()
		return snap != first // a new snapshot was published
	}, time.Second, 5*time.Millisecond)

	second := e.Snapshot()
	require.Equal(t, first.Tournaments, second.Tournaments)
	require.Equal(t, first.Prizes, second.Prizes)
	require.Len(t, second.Tournaments, 1)
}

func TestPushPreservesResolvedLabel(t *testing.T) {
	subs := &fakeSubscriber{}
	labeler := &fakeLabeler{}
	querier := &fakeQuerier{entities: map[string][]entity.Record{
		entity.ModelPrize: {prizeRecord(1, 0xAA)},
	}}
	e := startEngine(t, querier, subs, WithLabeler(labeler))
	require.NoError(t, e.WatchTournaments(context.Background()))
	require.NoError(t, e.Bootstrap(context.Background()))

	require.Eventually(t, func() bool {
		prizes := e.Prizes(1)
		return len(prizes) == 1 && prizes[0].TokenLabel == "LORDS"
	}, time.Second, 5*time.Millisecond)

	// The push payload never carries a label; the resolved one must survive.
	subs.push(prizeRecord(1, 0xAA))
	require.Eventually(t, func() bool {
		prizes := e.Prizes(1)
		return len(prizes) == 1 && prizes[0].TokenLabel == "LORDS"
	}, time.Second, 5*time.Millisecond)

	require.Equal(t, 1, labeler.callsFor("0xaa"))
}

func TestLeaderboardPagination(t *testing.T) {
	querier := &fakeQuerier{rowQueue: [][]Row{
		leaderboardRows(10, 100),
		leaderboardRows(9, 50),
	}}
	e := startEngine(t, querier, nil)

	require.NoError(t, e.RefreshLeaderboard(context.Background()))
	require.Len(t, e.Leaderboard(), 10)
	require.True(t, e.Pager().HasMore())

	require.NoError(t, e.LoadMoreLeaderboard(context.Background()))
	require.Len(t, e.Leaderboard(), 19)
	require.False(t, e.Pager().HasMore())

	// A short page means no further queries on load-more.
	before := querier.calls()
	require.NoError(t, e.LoadMoreLeaderboard(context.Background()))
	require.Equal(t, before, querier.calls())
	require.Len(t, e.Leaderboard(), 19)
}

func TestPollSkippedWhileScrolled(t *testing.T) {
	querier := &fakeQuerier{rowQueue: [][]Row{
		leaderboardRows(10, 100),
		leaderboardRows(10, 50),
	}}
	e := startEngine(t, querier, nil)

	require.NoError(t, e.RefreshLeaderboard(context.Background()))
	require.NoError(t, e.LoadMoreLeaderboard(context.Background()))
	require.True(t, e.Pager().Scrolled())
	before := e.Leaderboard()
	calls := querier.calls()

	e.PollLeaderboard(context.Background())

	require.Equal(t, calls, querier.calls())
	require.Equal(t, before, e.Leaderboard())
}

func TestTransportFailureKeepsLastKnownGood(t *testing.T) {
	querier := &fakeQuerier{rowQueue: [][]Row{leaderboardRows(5, 100)}}
	e := startEngine(t, querier, nil)
	require.NoError(t, e.RefreshLeaderboard(context.Background()))
	require.Len(t, e.Leaderboard(), 5)

	querier.setError(errors.New("indexer unreachable"))
	require.Error(t, e.RefreshLeaderboard(context.Background()))

	// Stale beats empty.
	require.Len(t, e.Leaderboard(), 5)
	require.Error(t, e.Err())

	querier.setError(nil)
	querier.mu.Lock()
	querier.rowQueue = [][]Row{leaderboardRows(5, 90)}
	querier.mu.Unlock()
	require.NoError(t, e.RefreshLeaderboard(context.Background()))
	require.NoError(t, e.Err())
}

func TestWatchGameIsIdempotent(t *testing.T) {
	subs := &fakeSubscriber{}
	querier := &fakeQuerier{}
	e := startEngine(t, querier, subs)

	require.NoError(t, e.WatchGame(context.Background(), 42))
	require.NoError(t, e.WatchGame(context.Background(), 42))
	require.Equal(t, 1, subs.count())

	require.NoError(t, e.WatchGame(context.Background(), 43))
	require.Equal(t, 2, subs.count())
}

func TestTerminalGameStateStaysTerminal(t *testing.T) {
	subs := &fakeSubscriber{}
	querier := &fakeQuerier{}
	e := startEngine(t, querier, subs)
	require.NoError(t, e.WatchGame(context.Background(), 42))

	subs.push(gameStateRecord(42, true, 0xc8))
	require.Eventually(t, func() bool {
		gs, ok := e.GameState(42)
		return ok && gs.Over
	}, time.Second, 5*time.Millisecond)

	subs.push(gameStateRecord(42, false, 0xc8))
	time.Sleep(50 * time.Millisecond)
	gs, ok := e.GameState(42)
	require.True(t, ok)
	require.True(t, gs.Over)
}

func TestGameStateSlotDerivation(t *testing.T) {
	subs := &fakeSubscriber{}
	querier := &fakeQuerier{}
	e := startEngine(t, querier, subs)
	require.NoError(t, e.WatchGame(context.Background(), 7))

	subs.push(gameStateRecord(7, false, 0xc8))
	require.Eventually(t, func() bool {
		_, ok := e.GameState(7)
		return ok
	}, time.Second, 5*time.Millisecond)

	gs, _ := e.GameState(7)
	c, err := codec.New(codec.SchemeFixedBits, 12)
	require.NoError(t, err)
	values, err := gs.SlotValues(c)
	require.NoError(t, err)
	require.Equal(t, uint16(200), values[0])
	filled, err := gs.FilledSlots(c)
	require.NoError(t, err)
	require.Equal(t, []int{1}, filled)
}
