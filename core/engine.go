package core

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-co-op/gocron/v2"
	"golang.org/x/sync/errgroup"

	"numsync/codec"
	"numsync/core/types"
	"numsync/entity"
	"numsync/observability"
)

// ErrStopped is returned when a merge is requested after the engine loop has
// exited.
var ErrStopped = errors.New("core: engine stopped")

// DefaultPollInterval matches the cadence the presentation layer expects for
// leaderboard freshness.
const DefaultPollInterval = 3 * time.Second

// Engine is the single source of truth for mirrored ledger state. One
// goroutine (started by Run) owns every map; all mutation funnels through an
// internal command channel, and readers get immutable snapshots off an atomic
// pointer. Updates to one key apply in receipt order; keys are independent.
type Engine struct {
	log     *slog.Logger
	codec   *codec.Codec
	querier Querier
	subs    Subscriber
	labeler TokenLabeler

	pollInterval time.Duration
	pager        *Pager
	tournament   atomic.Uint64

	cmds    chan command
	pushes  chan entity.Record
	stopped chan struct{}
	snap    atomic.Pointer[Snapshot]
	runCtx  atomic.Value

	gameSubMu sync.Mutex
	gameSubs  map[uint64]func()
}

type command struct {
	fn   func(*state)
	done chan struct{}
}

// state is owned exclusively by the Run goroutine.
type state struct {
	tournaments    map[uint64]types.Tournament
	prizes         map[string]types.Prize
	games          map[uint64]types.Game
	gameStates     map[uint64]types.GameState
	leaderboard    []types.LeaderboardEntry
	labels         map[string]string
	labelRequested map[string]bool
	advisory       error
}

// Snapshot is an immutable view of the cache. Slices and maps inside it are
// rebuilt on every publish and must not be mutated by consumers.
type Snapshot struct {
	Tournaments []types.Tournament
	Prizes      []types.Prize
	Games       []types.Game
	GameStates  map[uint64]types.GameState
	Leaderboard []types.LeaderboardEntry
	Err         error
}

// PrizesFor filters the snapshot's prizes down to one tournament.
func (s *Snapshot) PrizesFor(tournamentID uint64) []types.Prize {
	out := make([]types.Prize, 0, len(s.Prizes))
	for _, p := range s.Prizes {
		if p.TournamentID == tournamentID {
			out = append(out, p)
		}
	}
	return out
}

// Option configures the engine.
type Option func(*Engine)

// WithLogger overrides the default logger.
func WithLogger(log *slog.Logger) Option {
	return func(e *Engine) {
		if log != nil {
			e.log = log
		}
	}
}

// WithLabeler wires the auxiliary token-label resolver.
func WithLabeler(l TokenLabeler) Option {
	return func(e *Engine) { e.labeler = l }
}

// WithPageSize sets the leaderboard page size.
func WithPageSize(n int) Option {
	return func(e *Engine) {
		if n > 0 {
			e.pager = NewPager(n)
		}
	}
}

// WithPollInterval overrides the leaderboard poll cadence. Zero disables the
// timer entirely.
func WithPollInterval(d time.Duration) Option {
	return func(e *Engine) { e.pollInterval = d }
}

// NewEngine builds an engine over the given capabilities. Run must be called
// before any merge-producing method.
func NewEngine(c *codec.Codec, querier Querier, subs Subscriber, opts ...Option) (*Engine, error) {
	if c == nil {
		return nil, fmt.Errorf("core: codec required")
	}
	if querier == nil {
		return nil, fmt.Errorf("core: querier required")
	}
	e := &Engine{
		log:          slog.Default(),
		codec:        c,
		querier:      querier,
		subs:         subs,
		pollInterval: DefaultPollInterval,
		pager:        NewPager(10),
		cmds:         make(chan command),
		pushes:       make(chan entity.Record, 64),
		stopped:      make(chan struct{}),
		gameSubs:     make(map[uint64]func()),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(e)
		}
	}
	e.snap.Store(&Snapshot{GameStates: map[uint64]types.GameState{}})
	return e, nil
}

// Pager exposes the leaderboard pagination state machine.
func (e *Engine) Pager() *Pager { return e.pager }

// Run owns the cache until ctx is cancelled. It drains merge commands and
// subscription pushes and drives the leaderboard poll timer. Call it once,
// typically in its own goroutine.
func (e *Engine) Run(ctx context.Context) error {
	e.runCtx.Store(ctx)
	defer close(e.stopped)

	var sched gocron.Scheduler
	if e.pollInterval > 0 {
		var err error
		sched, err = gocron.NewScheduler()
		if err != nil {
			return fmt.Errorf("core: create scheduler: %w", err)
		}
		_, err = sched.NewJob(
			gocron.DurationJob(e.pollInterval),
			gocron.NewTask(func() { e.PollLeaderboard(ctx) }),
			gocron.WithSingletonMode(gocron.LimitModeReschedule),
		)
		if err != nil {
			return fmt.Errorf("core: schedule poll job: %w", err)
		}
		sched.Start()
		defer func() { _ = sched.Shutdown() }()
	}

	st := &state{
		tournaments:    map[uint64]types.Tournament{},
		prizes:         map[string]types.Prize{},
		games:          map[uint64]types.Game{},
		gameStates:     map[uint64]types.GameState{},
		labels:         map[string]string{},
		labelRequested: map[string]bool{},
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case cmd := <-e.cmds:
			cmd.fn(st)
			e.publish(st)
			close(cmd.done)
		case rec := <-e.pushes:
			e.applyPush(st, rec)
			e.publish(st)
		}
	}
}

// do posts a merge to the engine loop and waits for it to apply. Once the
// command is accepted the merge always completes; cancellation before
// acceptance discards it whole.
func (e *Engine) do(ctx context.Context, fn func(*state)) error {
	cmd := command{fn: fn, done: make(chan struct{})}
	select {
	case e.cmds <- cmd:
	case <-ctx.Done():
		return ctx.Err()
	case <-e.stopped:
		return ErrStopped
	}
	select {
	case <-cmd.done:
		return nil
	case <-e.stopped:
		return ErrStopped
	}
}

func (e *Engine) publish(st *state) {
	snap := &Snapshot{
		Tournaments: make([]types.Tournament, 0, len(st.tournaments)),
		Prizes:      make([]types.Prize, 0, len(st.prizes)),
		Games:       make([]types.Game, 0, len(st.games)),
		GameStates:  make(map[uint64]types.GameState, len(st.gameStates)),
		Leaderboard: append([]types.LeaderboardEntry(nil), st.leaderboard...),
		Err:         st.advisory,
	}
	for _, t := range st.tournaments {
		snap.Tournaments = append(snap.Tournaments, t)
	}
	sort.Slice(snap.Tournaments, func(i, j int) bool { return snap.Tournaments[i].ID < snap.Tournaments[j].ID })
	for _, p := range st.prizes {
		snap.Prizes = append(snap.Prizes, p)
	}
	sort.Slice(snap.Prizes, func(i, j int) bool { return snap.Prizes[i].Key() < snap.Prizes[j].Key() })
	for _, g := range st.games {
		snap.Games = append(snap.Games, g)
	}
	sort.Slice(snap.Games, func(i, j int) bool { return snap.Games[i].TokenID < snap.Games[j].TokenID })
	for id, gs := range st.gameStates {
		snap.GameStates[id] = gs
	}
	e.snap.Store(snap)

	metrics := observability.MirrorMetrics()
	metrics.CacheSize.WithLabelValues("tournament").Set(float64(len(st.tournaments)))
	metrics.CacheSize.WithLabelValues("prize").Set(float64(len(st.prizes)))
	metrics.CacheSize.WithLabelValues("game").Set(float64(len(st.games)))
	metrics.CacheSize.WithLabelValues("game_state").Set(float64(len(st.gameStates)))
}

// Snapshot returns the latest published view.
func (e *Engine) Snapshot() *Snapshot { return e.snap.Load() }

// Tournaments returns cached tournaments sorted by id ascending.
func (e *Engine) Tournaments() []types.Tournament { return e.Snapshot().Tournaments }

// Prizes returns cached prizes for one tournament.
func (e *Engine) Prizes(tournamentID uint64) []types.Prize {
	return e.Snapshot().PrizesFor(tournamentID)
}

// GameState looks up the play state behind one token.
func (e *Engine) GameState(tokenID uint64) (types.GameState, bool) {
	gs, ok := e.Snapshot().GameStates[tokenID]
	return gs, ok
}

// Leaderboard returns the current ranked view.
func (e *Engine) Leaderboard() []types.LeaderboardEntry { return e.Snapshot().Leaderboard }

// Err reports the process-wide advisory from the last failed remote
// operation, if any. Cached data stays valid while it is set.
func (e *Engine) Err() error { return e.Snapshot().Err }

// ActiveTournament reports the tournament scope used by leaderboard queries.
func (e *Engine) ActiveTournament() uint64 { return e.tournament.Load() }

// SwitchTournament changes the leaderboard scope, resets pagination, and
// reloads the first page.
func (e *Engine) SwitchTournament(ctx context.Context, tournamentID uint64) error {
	e.tournament.Store(tournamentID)
	e.pager.Reset()
	return e.RefreshLeaderboard(ctx)
}

// Bootstrap performs the startup bulk fetch: all tournaments and prizes,
// loaded concurrently and applied as one whole-scope replacement. A
// cancellation before the merge is posted discards the staged batch.
func (e *Engine) Bootstrap(ctx context.Context) error {
	var (
		tournamentRecs []entity.Record
		prizeRecs      []entity.Record
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		recs, err := e.querier.Entities(gctx, entity.ModelTournament, "")
		if err != nil {
			return fmt.Errorf("core: fetch tournaments: %w", err)
		}
		tournamentRecs = recs
		return nil
	})
	g.Go(func() error {
		recs, err := e.querier.Entities(gctx, entity.ModelPrize, "")
		if err != nil {
			return fmt.Errorf("core: fetch prizes: %w", err)
		}
		prizeRecs = recs
		return nil
	})
	if err := g.Wait(); err != nil {
		observability.MirrorMetrics().QueryErrors.Inc()
		e.setAdvisory(err)
		return err
	}

	tournaments := map[uint64]types.Tournament{}
	for i := range tournamentRecs {
		t, ok := entity.DecodeTournament(&tournamentRecs[i])
		if !ok {
			e.skipRecord(&tournamentRecs[i])
			continue
		}
		tournaments[t.ID] = t
	}
	prizes := map[string]types.Prize{}
	for i := range prizeRecs {
		p, ok := entity.DecodePrize(&prizeRecs[i])
		if !ok {
			e.skipRecord(&prizeRecs[i])
			continue
		}
		prizes[p.Key()] = p
	}

	return e.do(ctx, func(st *state) {
		st.tournaments = tournaments
		for key, p := range prizes {
			if label, ok := st.labels[p.TokenAddress]; ok {
				p.TokenLabel = label
			}
			prizes[key] = p
			e.maybeResolveLabel(st, p.TokenAddress)
		}
		st.prizes = prizes
		st.advisory = nil
	})
}

// LoadGames bulk-fetches the games owned by one address plus their play
// state, replacing the game scope.
func (e *Engine) LoadGames(ctx context.Context, owner string) error {
	gameRecs, err := e.querier.Entities(ctx, entity.ModelGame, fmt.Sprintf("owner = '%s'", owner))
	if err != nil {
		observability.MirrorMetrics().QueryErrors.Inc()
		e.setAdvisory(fmt.Errorf("core: fetch games: %w", err))
		return err
	}
	games := map[uint64]types.Game{}
	ids := make([]string, 0, len(gameRecs))
	for i := range gameRecs {
		g, ok := entity.DecodeGame(&gameRecs[i])
		if !ok {
			e.skipRecord(&gameRecs[i])
			continue
		}
		games[g.TokenID] = g
		ids = append(ids, fmt.Sprintf("%d", g.TokenID))
	}

	states := map[uint64]types.GameState{}
	if len(ids) > 0 {
		stateRecs, err := e.querier.Entities(ctx, entity.ModelGameState,
			fmt.Sprintf("token_id IN (%s)", strings.Join(ids, ", ")))
		if err != nil {
			observability.MirrorMetrics().QueryErrors.Inc()
			e.setAdvisory(fmt.Errorf("core: fetch game states: %w", err))
			return err
		}
		for i := range stateRecs {
			gs, ok := entity.DecodeGameState(&stateRecs[i])
			if !ok {
				e.skipRecord(&stateRecs[i])
				continue
			}
			states[gs.TokenID] = gs
		}
	}

	return e.do(ctx, func(st *state) {
		st.games = games
		st.gameStates = states
		st.advisory = nil
	})
}

// WatchTournaments registers the long-lived push subscription covering
// tournament and prize updates. The engine loop is the sole consumer.
func (e *Engine) WatchTournaments(ctx context.Context) error {
	if e.subs == nil {
		return fmt.Errorf("core: subscriber capability not configured")
	}
	updates, cancel, err := e.subs.Subscribe(ctx, "model IN ('Tournament', 'Prize')")
	if err != nil {
		return fmt.Errorf("core: subscribe tournaments: %w", err)
	}
	go e.forward(ctx, updates, cancel)
	return nil
}

// WatchGame registers the per-game push subscription for one token.
// Subscribing twice for the same token is a no-op.
func (e *Engine) WatchGame(ctx context.Context, tokenID uint64) error {
	if e.subs == nil {
		return fmt.Errorf("core: subscriber capability not configured")
	}
	e.gameSubMu.Lock()
	if _, ok := e.gameSubs[tokenID]; ok {
		e.gameSubMu.Unlock()
		return nil
	}
	subCtx, subCancel := context.WithCancel(ctx)
	e.gameSubs[tokenID] = subCancel
	e.gameSubMu.Unlock()

	clause := fmt.Sprintf("model IN ('Game', 'GameState') AND token_id = %d", tokenID)
	updates, cancel, err := e.subs.Subscribe(subCtx, clause)
	if err != nil {
		subCancel()
		e.gameSubMu.Lock()
		delete(e.gameSubs, tokenID)
		e.gameSubMu.Unlock()
		return fmt.Errorf("core: subscribe game %d: %w", tokenID, err)
	}
	go func() {
		e.forward(subCtx, updates, cancel)
		subCancel()
		e.gameSubMu.Lock()
		delete(e.gameSubs, tokenID)
		e.gameSubMu.Unlock()
	}()
	return nil
}

// forward drains one subscription channel into the engine loop.
func (e *Engine) forward(ctx context.Context, updates <-chan entity.Record, cancel func()) {
	defer cancel()
	for {
		select {
		case <-ctx.Done():
			return
		case <-e.stopped:
			return
		case rec, ok := <-updates:
			if !ok {
				return
			}
			select {
			case e.pushes <- rec:
			case <-ctx.Done():
				return
			case <-e.stopped:
				return
			}
		}
	}
}

func (e *Engine) applyPush(st *state, rec entity.Record) {
	observability.MirrorMetrics().PushEvents.WithLabelValues(rec.Model).Inc()
	switch rec.Model {
	case entity.ModelTournament:
		t, ok := entity.DecodeTournament(&rec)
		if !ok {
			e.skipRecord(&rec)
			return
		}
		st.tournaments[t.ID] = t
	case entity.ModelPrize:
		p, ok := entity.DecodePrize(&rec)
		if !ok {
			e.skipRecord(&rec)
			return
		}
		key := p.Key()
		// A push payload never carries the resolved label; keep whatever
		// was resolved locally.
		if existing, ok := st.prizes[key]; ok && p.TokenLabel == "" {
			p.TokenLabel = existing.TokenLabel
		}
		if p.TokenLabel == "" {
			if label, ok := st.labels[p.TokenAddress]; ok {
				p.TokenLabel = label
			}
		}
		st.prizes[key] = p
		e.maybeResolveLabel(st, p.TokenAddress)
	case entity.ModelGame:
		g, ok := entity.DecodeGame(&rec)
		if !ok {
			e.skipRecord(&rec)
			return
		}
		st.games[g.TokenID] = g
	case entity.ModelGameState:
		gs, ok := entity.DecodeGameState(&rec)
		if !ok {
			e.skipRecord(&rec)
			return
		}
		if existing, ok := st.gameStates[gs.TokenID]; ok && existing.Over && !gs.Over {
			// Terminal games never reopen; a contradictory frame is stale.
			return
		}
		st.gameStates[gs.TokenID] = gs
	default:
		e.log.Debug("ignoring push for untracked model", "model", rec.Model)
	}
}

// maybeResolveLabel fires the one-shot auxiliary resolution for a token that
// has never been seen before. Called only from the engine loop.
func (e *Engine) maybeResolveLabel(st *state, token string) {
	if e.labeler == nil || token == "" {
		return
	}
	if st.labelRequested[token] {
		return
	}
	st.labelRequested[token] = true
	go e.resolveLabel(e.runContext(), token)
}

func (e *Engine) resolveLabel(ctx context.Context, token string) {
	label, err := e.labeler.Label(ctx, token)
	if err != nil {
		e.log.Warn("token label resolution failed", "token", token, "err", err)
		return
	}
	if strings.TrimSpace(label) == "" {
		return
	}
	_ = e.do(ctx, func(st *state) {
		st.labels[token] = label
		for key, p := range st.prizes {
			if p.TokenAddress == token && p.TokenLabel == "" {
				p.TokenLabel = label
				st.prizes[key] = p
			}
		}
	})
}

// PollLeaderboard is the timer entry point. It refreshes the first page
// unless the consumer has scrolled beyond it, in which case the tick is
// dropped so the view under the user never shifts.
func (e *Engine) PollLeaderboard(ctx context.Context) {
	metrics := observability.MirrorMetrics()
	if e.pager.Scrolled() {
		metrics.PollSkips.Inc()
		return
	}
	metrics.PollRuns.Inc()
	if err := e.RefreshLeaderboard(ctx); err != nil {
		e.log.Warn("leaderboard poll failed", "err", err)
	}
}

// RefreshLeaderboard reloads the first leaderboard page, fully replacing the
// item list. A refresh while another load is in flight is a silent no-op.
func (e *Engine) RefreshLeaderboard(ctx context.Context) error {
	if !e.pager.BeginRefresh() {
		return nil
	}
	entries, err := e.fetchLeaderboard(ctx, 0)
	if err != nil {
		e.pager.Fail()
		observability.MirrorMetrics().QueryErrors.Inc()
		e.setAdvisory(err)
		return err
	}
	if err := e.do(ctx, func(st *state) {
		st.leaderboard = entries
		st.advisory = nil
	}); err != nil {
		e.pager.Fail()
		return err
	}
	e.pager.FinishRefresh(len(entries))
	return nil
}

// LoadMoreLeaderboard appends the next page. Calling it with no further
// pages, or while a load is in flight, is a silent no-op.
func (e *Engine) LoadMoreLeaderboard(ctx context.Context) error {
	offset, ok := e.pager.BeginLoadMore()
	if !ok {
		return nil
	}
	entries, err := e.fetchLeaderboard(ctx, offset)
	if err != nil {
		e.pager.Fail()
		observability.MirrorMetrics().QueryErrors.Inc()
		e.setAdvisory(err)
		return err
	}
	if err := e.do(ctx, func(st *state) {
		st.leaderboard = append(st.leaderboard, entries...)
		st.advisory = nil
	}); err != nil {
		e.pager.Fail()
		return err
	}
	e.pager.FinishLoadMore(len(entries))
	return nil
}

func (e *Engine) fetchLeaderboard(ctx context.Context, offset int) ([]types.LeaderboardEntry, error) {
	query := fmt.Sprintf(
		"SELECT owner, token_id, name, score, reward FROM leaderboard WHERE tournament_id = %d ORDER BY score DESC LIMIT %d OFFSET %d",
		e.tournament.Load(), e.pager.PageSize(), offset,
	)
	rows, err := e.querier.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("core: leaderboard query: %w", err)
	}
	entries := make([]types.LeaderboardEntry, 0, len(rows))
	for _, row := range rows {
		entry, ok := leaderboardEntryFromRow(row)
		if !ok {
			observability.MirrorMetrics().DecodeFailures.WithLabelValues("leaderboard").Inc()
			e.log.Warn("skipping malformed leaderboard row")
			continue
		}
		entries = append(entries, entry)
	}
	return entries, nil
}

func leaderboardEntryFromRow(row Row) (types.LeaderboardEntry, bool) {
	owner, ok := row["owner"].AsFelt()
	if !ok {
		return types.LeaderboardEntry{}, false
	}
	tokenID, ok := row["token_id"].AsUint()
	if !ok {
		return types.LeaderboardEntry{}, false
	}
	name, _ := row["name"].AsText()
	score, ok := row["score"].AsUint()
	if !ok {
		return types.LeaderboardEntry{}, false
	}
	reward, _ := row["reward"].AsDecimal()
	return types.LeaderboardEntry{
		Owner:   owner,
		TokenID: tokenID,
		Name:    name,
		Score:   score,
		Reward:  reward,
	}, true
}

func (e *Engine) skipRecord(rec *entity.Record) {
	observability.MirrorMetrics().DecodeFailures.WithLabelValues(rec.Model).Inc()
	e.log.Warn("skipping undecodable record", "model", rec.Model)
}

func (e *Engine) runContext() context.Context {
	if ctx, ok := e.runCtx.Load().(context.Context); ok {
		return ctx
	}
	return context.Background()
}

func (e *Engine) setAdvisory(err error) {
	// Best effort: the advisory is cosmetic next to the data itself.
	_ = e.do(e.runContext(), func(st *state) { st.advisory = err })
}
