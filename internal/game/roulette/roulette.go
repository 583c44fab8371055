// Package roulette implements the Russian roulette game state machine.
// One session exists per group; the fire transition, including its
// consequence resolution and dispatch, is serialized by a single
// process-wide lock.
package roulette

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"group-roulette-bot/internal/model"
	"group-roulette-bot/internal/platform"
	"group-roulette-bot/internal/state"
)

const (
	// DefaultTimeout resets an abandoned game on the next start attempt.
	DefaultTimeout = 300 * time.Second

	chambers       = 6
	jamChance      = 0.125
	selfJoinChance = 1.0 / 6
)

// Errors for the roulette game.
var (
	ErrGameActive = errors.New("a roulette game is already running")
	ErrNotArmed   = errors.New("no roulette game is running")
)

// session is the per-group game state. The zero value is an inactive
// game.
type session struct {
	status    int // chambers left before the bullet; 0 = inactive
	shots     int
	players   []int64
	startedAt time.Time
	selfIn    bool
}

func (s *session) active() bool {
	return s.status != 0
}

// expired reports whether the game went stale: timeout elapsed since
// the last fire with no resolution. Checked lazily on the next start
// attempt, never by a background sweep.
func (s *session) expired(now time.Time, timeout time.Duration) bool {
	return now.Sub(s.startedAt) > timeout
}

func (s *session) reset() {
	s.status = 0
	s.shots = 0
	s.players = nil
	s.selfIn = false
}

// StartResult describes a freshly started game.
type StartResult struct {
	Mode   model.RouletteMode
	SelfIn bool
}

// Engine owns the per-group roulette sessions and drives the state
// machine. It is constructed once and passed to every handler; there is
// no package-level mutable state.
type Engine struct {
	bots       *state.BotStore
	groups     *state.GroupStore
	roles      *state.RoleCache
	resolver   *Resolver
	dispatcher *Dispatcher
	client     platform.Client
	timeout    time.Duration
	clock      func() time.Time

	mu       sync.RWMutex
	sessions map[int64]*session

	// fireMu serializes the whole fire transition process-wide so two
	// concurrent fires can never double-decrement one chamber draw.
	fireMu sync.Mutex

	// Randomness hooks, overridable in tests. The chamber draw and the
	// jam roll are deliberately two independent stages: the draw decides
	// the hit turn, the jam only ever fires on the sixth shot.
	drawChamber  func() int
	jamRoll      func() bool
	selfJoinRoll func() bool
	suffixLen    func(max int) int
	delay        func() time.Duration
}

// NewEngine creates the roulette engine. A non-positive timeout falls
// back to DefaultTimeout.
func NewEngine(
	bots *state.BotStore,
	groups *state.GroupStore,
	roles *state.RoleCache,
	resolver *Resolver,
	dispatcher *Dispatcher,
	client platform.Client,
	timeout time.Duration,
) *Engine {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Engine{
		bots:       bots,
		groups:     groups,
		roles:      roles,
		resolver:   resolver,
		dispatcher: dispatcher,
		client:     client,
		timeout:    timeout,
		clock:      time.Now,
		sessions:   make(map[int64]*session),

		drawChamber:  func() int { return rand.Intn(chambers) + 1 },
		jamRoll:      func() bool { return rand.Float64() < jamChance },
		selfJoinRoll: func() bool { return rand.Float64() < selfJoinChance },
		suffixLen:    func(max int) int { return rand.Intn(max) + 1 },
		delay:        func() time.Duration { return time.Duration(rand.Intn(16)+5) * time.Second },
	}
}

// session returns the group's session, creating the inactive zero value
// on first access.
func (e *Engine) session(groupID int64) *session {
	e.mu.RLock()
	s, ok := e.sessions[groupID]
	e.mu.RUnlock()
	if ok {
		return s
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if s, ok = e.sessions[groupID]; !ok {
		s = &session{}
		e.sessions[groupID] = s
	}
	return s
}

// CanStart reports whether a new game may begin in the group: no active
// game, or the active one expired.
func (e *Engine) CanStart(groupID int64) bool {
	s := e.session(groupID)
	return !s.active() || s.expired(e.clock(), e.timeout)
}

// Armed reports whether a game is in progress in the group.
func (e *Engine) Armed(groupID int64) bool {
	return e.session(groupID).active()
}

// Start arms a new game. The chamber count is drawn uniformly from 1-6;
// the bot joins its own game with probability 1/6 when drunk, in kick
// mode, and not the group owner. Start is not serialized by the fire
// lock; concurrent starts are rare and last write wins.
func (e *Engine) Start(ctx context.Context, ev model.GroupMessage) (*StartResult, error) {
	s := e.session(ev.GroupID)
	now := e.clock()
	if s.active() && !s.expired(now, e.timeout) {
		return nil, ErrGameActive
	}

	draw := e.drawChamber()
	log.Info().Int64("group_id", ev.GroupID).Int("draw", draw).Msg("Roulette armed")

	mode := e.groups.RouletteMode(ctx, ev.GroupID)
	selfIn := e.participates(ev.BotID, ev.GroupID, mode)

	s.status = draw
	s.shots = 0
	s.startedAt = now
	s.selfIn = selfIn
	if selfIn {
		s.players = []int64{ev.BotID, ev.UserID}
	} else {
		s.players = []int64{ev.UserID}
	}

	e.send(ctx, ev.GroupID, startText(mode))
	return &StartResult{Mode: mode, SelfIn: selfIn}, nil
}

// participates decides whether the bot plays its own game. Never in
// mute mode (it cannot mute itself) and never as group owner (an owner
// cannot leave without disbanding the group).
func (e *Engine) participates(botID, groupID int64, mode model.RouletteMode) bool {
	if e.bots.Drunkenness(groupID) <= 0 {
		return false
	}
	if mode == model.ModeMute {
		return false
	}
	if e.roles.Get(botID, groupID) == model.RoleOwner {
		return false
	}
	return e.selfJoinRoll()
}

// Drink appends the sender to the players of an armed game, raising
// their exposure in the drunk multi-target resolution. Reports whether
// a game was armed.
func (e *Engine) Drink(groupID, userID int64) bool {
	e.fireMu.Lock()
	defer e.fireMu.Unlock()

	s := e.session(groupID)
	if !s.active() {
		return false
	}
	s.players = append(s.players, userID)
	return true
}

// Fire pulls the trigger for the sender. The whole transition runs
// under the process-wide fire lock: counter updates, jam and hit
// resolution, announcements, the suspense delay and the dispatch of
// every consequence action.
func (e *Engine) Fire(ctx context.Context, ev model.GroupMessage) error {
	e.fireMu.Lock()
	defer e.fireMu.Unlock()

	s := e.session(ev.GroupID)
	if !s.active() {
		return ErrNotArmed
	}

	s.status--
	s.shots++
	s.startedAt = e.clock()
	s.players = append(s.players, ev.UserID)
	shot := s.shots

	if shot == chambers && e.jamRoll() {
		s.reset()
		e.send(ctx, ev.GroupID, jamText)
		return nil
	}

	if s.status > 0 {
		e.send(ctx, ev.GroupID, suspenseText(shot))
		return nil
	}

	// Hit: the chamber was live.
	players := s.players
	s.reset()

	if e.bots.Drunkenness(ev.GroupID) <= 0 {
		e.resolveSober(ctx, ev)
		return nil
	}
	e.resolveDrunk(ctx, ev.BotID, ev.GroupID, players)
	return nil
}

// resolveSober punishes the last firer only.
func (e *Engine) resolveSober(ctx context.Context, ev model.GroupMessage) {
	action := e.resolver.Resolve(ctx, ev.BotID, ev.GroupID, ev.UserID)
	if action == nil {
		e.send(ctx, ev.GroupID, peacefulText)
		return
	}

	e.send(ctx, ev.GroupID, hitText(ev.UserID, 0))
	time.Sleep(e.delay())
	e.dispatcher.Execute(ctx, action)
}

// resolveDrunk punishes a random-length suffix of the players, most
// recent first, skipping ineligible targets. All announcements go out
// first, then one suspense delay, then every action in order.
func (e *Engine) resolveDrunk(ctx context.Context, botID, groupID int64, players []int64) {
	targets := hitTargets(players, e.suffixLen(minInt(len(players), chambers)))

	actions := make([]*model.PendingAction, 0, len(targets))
	for _, userID := range targets {
		action := e.resolver.Resolve(ctx, botID, groupID, userID)
		if action == nil {
			continue
		}
		actions = append(actions, action)
		e.send(ctx, groupID, hitText(userID, len(actions)))
	}

	if len(actions) == 0 {
		return
	}

	time.Sleep(e.delay())
	for _, action := range actions {
		e.dispatcher.Execute(ctx, action)
	}
}

// hitTargets returns the last n players in reverse chronological order.
func hitTargets(players []int64, n int) []int64 {
	if n > len(players) {
		n = len(players)
	}
	targets := make([]int64, 0, n)
	for i := len(players) - 1; i >= len(players)-n; i-- {
		targets = append(targets, players[i])
	}
	return targets
}

func (e *Engine) send(ctx context.Context, groupID int64, content string) {
	if err := e.client.SendMessage(ctx, groupID, content); err != nil {
		log.Warn().Err(err).Int64("group_id", groupID).Msg("Failed to send roulette message")
	}
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
