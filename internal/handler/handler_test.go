package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"group-roulette-bot/internal/model"
	"group-roulette-bot/internal/repository"
)

// fakeStore is an in-memory config store shared by the handler tests.
type fakeStore struct {
	mu      sync.Mutex
	docs    map[string][]byte
	upserts []map[string]any
	appends []int64
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
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts = append(s.upserts, patch)
	return nil
}

func (s *fakeStore) AppendValue(ctx context.Context, collection string, entityID int64, key string, value int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.appends = append(s.appends, value)
	return nil
}

// fakeClient records platform calls for assertion.
type fakeClient struct {
	mu       sync.Mutex
	messages []string
	kicked   []int64
	left     bool
	members  map[int64]model.MemberInfo
	approved []string
	cards    map[int64]string
	poked    []int64
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		members: make(map[int64]model.MemberInfo),
		cards:   make(map[int64]string),
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

const (
	testBotID   = int64(10000)
	testGroupID = int64(20000)
)

func groupMsg(userID int64, role model.Role, text string) model.GroupMessage {
	return model.GroupMessage{
		BotID:      testBotID,
		GroupID:    testGroupID,
		UserID:     userID,
		SenderRole: role,
		Text:       text,
	}
}

func TestMentionedUser(t *testing.T) {
	tests := []struct {
		text   string
		wantID int64
		wantOK bool
	}{
		{"牛牛认主 [CQ:at,qq=12345]", 12345, true},
		{"[CQ:at,qq=1] [CQ:at,qq=2]", 1, true},
		{"牛牛认主", 0, false},
		{"[CQ:at,qq=]", 0, false},
	}

	for _, tt := range tests {
		id, ok := mentionedUser(tt.text)
		if ok != tt.wantOK || id != tt.wantID {
			t.Errorf("mentionedUser(%q) = (%d, %v), want (%d, %v)", tt.text, id, ok, tt.wantID, tt.wantOK)
		}
	}
}
