package roulette

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"group-roulette-bot/internal/model"
	"group-roulette-bot/internal/repository"
	"group-roulette-bot/internal/state"
)

// fakeStore is an in-memory config store.
type fakeStore struct {
	mu   sync.Mutex
	docs map[string][]byte
}

func newFakeStore() *fakeStore {
	return &fakeStore{docs: make(map[string][]byte)}
}

func (s *fakeStore) key(collection string, entityID int64) string {
	return fmt.Sprintf("%s/%d", collection, entityID)
}

func (s *fakeStore) put(collection string, entityID int64, doc any) {
	data, _ := json.Marshal(doc)
	s.mu.Lock()
	s.docs[s.key(collection, entityID)] = data
	s.mu.Unlock()
}

func (s *fakeStore) FindDocument(ctx context.Context, collection string, entityID int64) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	data, ok := s.docs[s.key(collection, entityID)]
	if !ok {
		return nil, repository.ErrDocumentNotFound
	}
	return data, nil
}

func (s *fakeStore) Upsert(ctx context.Context, collection string, entityID int64, patch map[string]any) error {
	return nil
}

func (s *fakeStore) AppendValue(ctx context.Context, collection string, entityID int64, key string, value int64) error {
	return nil
}

// fakeClient records every platform call.
type fakeClient struct {
	mu         sync.Mutex
	messages   []string
	kicked     []int64
	restricted map[int64]time.Duration
	left       bool
	members    map[int64]model.MemberInfo
	approved   []string
	cards      map[int64]string
	poked      []int64
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		restricted: make(map[int64]time.Duration),
		members:    make(map[int64]model.MemberInfo),
		cards:      make(map[int64]string),
	}
}

func (c *fakeClient) SendMessage(ctx context.Context, groupID int64, content string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.messages = append(c.messages, content)
	return nil
}

func (c *fakeClient) RemoveMember(ctx context.Context, groupID, userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.kicked = append(c.kicked, userID)
	return nil
}

func (c *fakeClient) RestrictMember(ctx context.Context, groupID, userID int64, duration time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.restricted[userID] = duration
	return nil
}

func (c *fakeClient) LeaveGroup(ctx context.Context, groupID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.left = true
	return nil
}

func (c *fakeClient) GetMemberInfo(ctx context.Context, groupID, userID int64) (model.MemberInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.members[userID]
	if !ok {
		return model.MemberInfo{}, errors.New("member not found")
	}
	return info, nil
}

func (c *fakeClient) ApproveJoinRequest(ctx context.Context, flag, subType string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.approved = append(c.approved, flag)
	return nil
}

func (c *fakeClient) SetMemberCard(ctx context.Context, groupID, userID int64, card string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cards[userID] = card
	return nil
}

func (c *fakeClient) Poke(ctx context.Context, groupID, userID int64) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.poked = append(c.poked, userID)
	return nil
}

func (c *fakeClient) addMember(userID int64, role model.Role) {
	c.mu.Lock()
	c.members[userID] = model.MemberInfo{UserID: userID, Role: role}
	c.mu.Unlock()
}

func (c *fakeClient) kickedUsers() []int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]int64(nil), c.kicked...)
}

func (c *fakeClient) sentMessages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.messages...)
}

const (
	testBotID   = int64(10000)
	testGroupID = int64(20000)
)

// testEngine builds an engine over fakes with deterministic hooks.
func testEngine(t *testing.T) (*Engine, *fakeClient, *state.BotStore, *RejoinList) {
	t.Helper()

	store := newFakeStore()
	client := newFakeClient()
	client.addMember(testBotID, model.RoleAdmin)

	bots := state.NewBotStore(store, time.Minute, time.Second)
	groups := state.NewGroupStore(store, time.Minute)
	roles := state.NewRoleCache()
	roles.Update(testBotID, testGroupID, model.RoleAdmin)

	rejoin := NewRejoinList()
	resolver := NewResolver(groups, roles, client)
	dispatcher := NewDispatcher(client, rejoin)

	engine := NewEngine(bots, groups, roles, resolver, dispatcher, client, DefaultTimeout)
	engine.jamRoll = func() bool { return false }
	engine.selfJoinRoll = func() bool { return false }
	engine.delay = func() time.Duration { return 0 }

	return engine, client, bots, rejoin
}

func msg(userID int64) model.GroupMessage {
	return model.GroupMessage{BotID: testBotID, GroupID: testGroupID, UserID: userID}
}

func TestEngineStart(t *testing.T) {
	engine, client, _, _ := testEngine(t)
	engine.drawChamber = func() int { return 3 }

	res, err := engine.Start(context.Background(), msg(1))
	require.NoError(t, err)
	assert.Equal(t, model.ModeKick, res.Mode)
	assert.False(t, res.SelfIn)
	assert.True(t, engine.Armed(testGroupID))

	messages := client.sentMessages()
	require.Len(t, messages, 1)
	assert.Contains(t, messages[0], "踢出群聊")

	// A second start on an active game is rejected.
	_, err = engine.Start(context.Background(), msg(2))
	assert.ErrorIs(t, err, ErrGameActive)
}

func TestEngineStart_ExpiredGameIsReplaced(t *testing.T) {
	engine, _, _, _ := testEngine(t)
	engine.drawChamber = func() int { return 6 }

	clock := time.Unix(1700000000, 0)
	engine.clock = func() time.Time { return clock }

	_, err := engine.Start(context.Background(), msg(1))
	require.NoError(t, err)
	assert.False(t, engine.CanStart(testGroupID))

	// Within the timeout the game blocks new starts.
	clock = clock.Add(DefaultTimeout)
	assert.False(t, engine.CanStart(testGroupID))

	clock = clock.Add(time.Second)
	assert.True(t, engine.CanStart(testGroupID))

	_, err = engine.Start(context.Background(), msg(2))
	require.NoError(t, err)
}

func TestEngineFire_NotArmed(t *testing.T) {
	engine, _, _, _ := testEngine(t)

	err := engine.Fire(context.Background(), msg(1))
	assert.ErrorIs(t, err, ErrNotArmed)
}

func TestEngineFire_Suspense(t *testing.T) {
	engine, client, _, _ := testEngine(t)
	engine.drawChamber = func() int { return 3 }

	_, err := engine.Start(context.Background(), msg(1))
	require.NoError(t, err)

	require.NoError(t, engine.Fire(context.Background(), msg(1)))
	assert.True(t, engine.Armed(testGroupID))

	messages := client.sentMessages()
	require.Len(t, messages, 2)
	assert.Contains(t, messages[1], "( 1 / 6 )")
	assert.Empty(t, client.kickedUsers())
}

func TestEngineFire_SoberHitKicksLastFirer(t *testing.T) {
	engine, client, _, rejoin := testEngine(t)
	engine.drawChamber = func() int { return 2 }
	client.addMember(1, model.RoleMember)
	client.addMember(2, model.RoleMember)

	_, err := engine.Start(context.Background(), msg(1))
	require.NoError(t, err)

	require.NoError(t, engine.Fire(context.Background(), msg(1)))
	require.NoError(t, engine.Fire(context.Background(), msg(2)))

	assert.Equal(t, []int64{2}, client.kickedUsers())
	assert.False(t, engine.Armed(testGroupID))
	assert.True(t, rejoin.Take(testGroupID, 2))

	last := client.sentMessages()[len(client.sentMessages())-1]
	assert.Contains(t, last, "[CQ:at,qq=2]")
}

func TestEngineFire_MuteMode(t *testing.T) {
	engine, client, _, _ := testEngine(t)
	engine.drawChamber = func() int { return 1 }
	engine.resolver.muteDuration = func() time.Duration { return 7 * time.Minute }
	client.addMember(1, model.RoleMember)

	require.NoError(t, engine.groups.SetRouletteMode(context.Background(), testGroupID, model.ModeMute))

	_, err := engine.Start(context.Background(), msg(1))
	require.NoError(t, err)
	require.NoError(t, engine.Fire(context.Background(), msg(1)))

	assert.Empty(t, client.kickedUsers())
	assert.Equal(t, 7*time.Minute, client.restricted[1])
}

func TestEngineFire_JamOnlyOnSixthShot(t *testing.T) {
	engine, client, _, _ := testEngine(t)
	engine.drawChamber = func() int { return 6 }
	engine.jamRoll = func() bool { return true }
	client.addMember(1, model.RoleMember)

	_, err := engine.Start(context.Background(), msg(1))
	require.NoError(t, err)

	// Five survived shots, then the sixth jams instead of hitting.
	for i := 0; i < 6; i++ {
		require.NoError(t, engine.Fire(context.Background(), msg(1)))
	}

	assert.False(t, engine.Armed(testGroupID))
	assert.Empty(t, client.kickedUsers())

	messages := client.sentMessages()
	assert.Equal(t, jamText, messages[len(messages)-1])
}

func TestEngineFire_NoJamBeforeSixthShot(t *testing.T) {
	engine, client, _, _ := testEngine(t)
	engine.drawChamber = func() int { return 3 }
	engine.jamRoll = func() bool { return true }
	client.addMember(1, model.RoleMember)

	_, err := engine.Start(context.Background(), msg(1))
	require.NoError(t, err)

	// The jam roll never applies before the sixth shot; the third shot hits.
	for i := 0; i < 3; i++ {
		require.NoError(t, engine.Fire(context.Background(), msg(1)))
	}

	assert.Equal(t, []int64{1}, client.kickedUsers())
}

func TestEngineFire_PeacefulWhenTargetUntouchable(t *testing.T) {
	engine, client, _, _ := testEngine(t)
	engine.drawChamber = func() int { return 1 }
	client.addMember(1, model.RoleOwner)

	_, err := engine.Start(context.Background(), msg(1))
	require.NoError(t, err)
	require.NoError(t, engine.Fire(context.Background(), msg(1)))

	assert.Empty(t, client.kickedUsers())
	messages := client.sentMessages()
	assert.Equal(t, peacefulText, messages[len(messages)-1])
}

func TestEngineFire_DrunkHitsReversedSuffix(t *testing.T) {
	engine, client, bots, _ := testEngine(t)
	engine.drawChamber = func() int { return 4 }
	engine.suffixLen = func(max int) int { return 3 }
	for id := int64(1); id <= 4; id++ {
		client.addMember(id, model.RoleMember)
	}
	bots.Drink(testGroupID)

	_, err := engine.Start(context.Background(), msg(1))
	require.NoError(t, err)

	for id := int64(1); id <= 4; id++ {
		require.NoError(t, engine.Fire(context.Background(), msg(id)))
	}

	// Last three firers hit, most recent first.
	assert.Equal(t, []int64{4, 3, 2}, client.kickedUsers())
}

func TestEngineFire_DrunkSkipsIneligible(t *testing.T) {
	engine, client, bots, _ := testEngine(t)
	engine.drawChamber = func() int { return 3 }
	engine.suffixLen = func(max int) int { return 3 }
	client.addMember(1, model.RoleMember)
	client.addMember(2, model.RoleOwner)
	client.addMember(3, model.RoleMember)
	bots.Drink(testGroupID)

	_, err := engine.Start(context.Background(), msg(1))
	require.NoError(t, err)

	for id := int64(1); id <= 3; id++ {
		require.NoError(t, engine.Fire(context.Background(), msg(id)))
	}

	// The owner in the middle of the suffix is skipped.
	assert.Equal(t, []int64{3, 1}, client.kickedUsers())
}

func TestEngineDrink_JoinsArmedGame(t *testing.T) {
	engine, client, bots, _ := testEngine(t)
	engine.drawChamber = func() int { return 1 }
	engine.suffixLen = func(max int) int { return 2 }
	client.addMember(1, model.RoleMember)
	client.addMember(2, model.RoleMember)
	bots.Drink(testGroupID)

	assert.False(t, engine.Drink(testGroupID, 2))

	_, err := engine.Start(context.Background(), msg(1))
	require.NoError(t, err)
	assert.True(t, engine.Drink(testGroupID, 2))

	require.NoError(t, engine.Fire(context.Background(), msg(1)))

	// The drinker raised their exposure and hits alongside the firer.
	assert.Equal(t, []int64{1, 2}, client.kickedUsers())
}

func TestEngineStart_SelfJoin(t *testing.T) {
	tests := []struct {
		name       string
		drunk      bool
		mode       model.RouletteMode
		botRole    model.Role
		roll       bool
		wantSelfIn bool
	}{
		{"sober never joins", false, model.ModeKick, model.RoleAdmin, true, false},
		{"mute mode never joins", true, model.ModeMute, model.RoleAdmin, true, false},
		{"owner never joins", true, model.ModeKick, model.RoleOwner, true, false},
		{"roll fails", true, model.ModeKick, model.RoleAdmin, false, false},
		{"drunk kick admin joins", true, model.ModeKick, model.RoleAdmin, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, _, bots, _ := testEngine(t)
			engine.drawChamber = func() int { return 6 }
			engine.selfJoinRoll = func() bool { return tt.roll }
			engine.roles.Update(testBotID, testGroupID, tt.botRole)

			if tt.drunk {
				bots.Drink(testGroupID)
			}
			if tt.mode == model.ModeMute {
				require.NoError(t, engine.groups.SetRouletteMode(context.Background(), testGroupID, model.ModeMute))
			}

			res, err := engine.Start(context.Background(), msg(1))
			require.NoError(t, err)
			assert.Equal(t, tt.wantSelfIn, res.SelfIn)
		})
	}
}

func TestEngineFire_ConcurrentFiresHitExactlyOnce(t *testing.T) {
	engine, client, _, _ := testEngine(t)
	engine.drawChamber = func() int { return 6 }
	for id := int64(1); id <= 6; id++ {
		client.addMember(id, model.RoleMember)
	}

	_, err := engine.Start(context.Background(), msg(1))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for id := int64(1); id <= 6; id++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			_ = engine.Fire(context.Background(), msg(id))
		}(id)
	}
	wg.Wait()

	// Six serialized fires on a six-chamber draw produce exactly one hit.
	assert.Len(t, client.kickedUsers(), 1)
	assert.False(t, engine.Armed(testGroupID))
}

func TestHitTargets(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		players := rapid.SliceOfN(rapid.Int64Range(1, 1000), 1, 20).Draw(t, "players")
		n := rapid.IntRange(0, 25).Draw(t, "n")

		targets := hitTargets(players, n)

		want := n
		if want > len(players) {
			want = len(players)
		}
		if len(targets) != want {
			t.Fatalf("got %d targets, want %d", len(targets), want)
		}
		for i, target := range targets {
			if target != players[len(players)-1-i] {
				t.Fatalf("target %d is %d, want %d", i, target, players[len(players)-1-i])
			}
		}
	})
}

func TestSuspenseText(t *testing.T) {
	for shot := 1; shot <= 6; shot++ {
		text := suspenseText(shot)
		assert.True(t, strings.HasSuffix(text, fmt.Sprintf("( %d / 6 )", shot)))
	}
}
