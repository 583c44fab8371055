// Package onebot implements platform.Client over a OneBot v11 forward
// websocket connection. Action calls are correlated to responses by the
// echo field; inbound events are decoded into model events.
package onebot

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"group-roulette-bot/internal/model"
)

const callTimeout = 15 * time.Second

// Client is a OneBot v11 websocket client.
type Client struct {
	url    string
	token  string
	selfID int64

	wmu  sync.Mutex // guards writes to conn
	conn *websocket.Conn

	seq atomic.Uint64

	mu      sync.Mutex
	pending map[string]chan actionResponse

	events chan model.Event
	closed atomic.Bool
}

// actionFrame is an outbound API call.
type actionFrame struct {
	Action string `json:"action"`
	Params any    `json:"params,omitempty"`
	Echo   string `json:"echo"`
}

// actionResponse is the correlated reply to an action call.
type actionResponse struct {
	Status  string          `json:"status"`
	Retcode int             `json:"retcode"`
	Data    json.RawMessage `json:"data"`
	Echo    string          `json:"echo"`
}

// New creates a client for the given OneBot endpoint. Call Connect
// before use.
func New(url, token string, selfID int64) *Client {
	return &Client{
		url:     url,
		token:   token,
		selfID:  selfID,
		pending: make(map[string]chan actionResponse),
		events:  make(chan model.Event, 64),
	}
}

// Connect dials the endpoint and starts the read loop. The loop keeps
// reconnecting with backoff until ctx is cancelled or Close is called.
func (c *Client) Connect(ctx context.Context) error {
	conn, err := c.dial(ctx)
	if err != nil {
		return err
	}
	c.conn = conn

	go c.readLoop(ctx)
	return nil
}

func (c *Client) dial(ctx context.Context) (*websocket.Conn, error) {
	header := http.Header{}
	if c.token != "" {
		header.Set("Authorization", "Bearer "+c.token)
	}

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, c.url, header)
	if err != nil {
		return nil, fmt.Errorf("failed to dial onebot endpoint: %w", err)
	}
	conn.SetReadLimit(16 << 20)
	return conn, nil
}

// Close shuts the client down and closes the event stream.
func (c *Client) Close() {
	if !c.closed.CompareAndSwap(false, true) {
		return
	}
	c.wmu.Lock()
	if c.conn != nil {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, "closing"),
			time.Now().Add(500*time.Millisecond))
		_ = c.conn.Close()
	}
	c.wmu.Unlock()
}

// Events returns the inbound event stream.
func (c *Client) Events() <-chan model.Event {
	return c.events
}

// call performs one API action and waits for its correlated response.
func (c *Client) call(ctx context.Context, action string, params any) (json.RawMessage, error) {
	echo := fmt.Sprintf("%s-%d", action, c.seq.Add(1))

	ch := make(chan actionResponse, 1)
	c.mu.Lock()
	c.pending[echo] = ch
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		delete(c.pending, echo)
		c.mu.Unlock()
	}()

	frame, err := json.Marshal(actionFrame{Action: action, Params: params, Echo: echo})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal action: %w", err)
	}

	c.wmu.Lock()
	conn := c.conn
	if conn == nil {
		c.wmu.Unlock()
		return nil, fmt.Errorf("onebot connection is down")
	}
	err = conn.WriteMessage(websocket.TextMessage, frame)
	c.wmu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("failed to send action %s: %w", action, err)
	}

	timer := time.NewTimer(callTimeout)
	defer timer.Stop()

	select {
	case resp := <-ch:
		if resp.Retcode != 0 {
			return nil, fmt.Errorf("action %s failed: retcode %d", action, resp.Retcode)
		}
		return resp.Data, nil
	case <-timer.C:
		return nil, fmt.Errorf("action %s timed out", action)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// SendMessage sends a group message.
func (c *Client) SendMessage(ctx context.Context, groupID int64, content string) error {
	_, err := c.call(ctx, "send_group_msg", map[string]any{
		"group_id": groupID,
		"message":  content,
	})
	return err
}

// RemoveMember kicks a member from the group.
func (c *Client) RemoveMember(ctx context.Context, groupID, userID int64) error {
	_, err := c.call(ctx, "set_group_kick", map[string]any{
		"group_id": groupID,
		"user_id":  userID,
	})
	return err
}

// RestrictMember mutes a member for the given duration.
func (c *Client) RestrictMember(ctx context.Context, groupID, userID int64, duration time.Duration) error {
	_, err := c.call(ctx, "set_group_ban", map[string]any{
		"group_id": groupID,
		"user_id":  userID,
		"duration": int64(duration.Seconds()),
	})
	return err
}

// LeaveGroup makes the bot leave the group.
func (c *Client) LeaveGroup(ctx context.Context, groupID int64) error {
	_, err := c.call(ctx, "set_group_leave", map[string]any{
		"group_id": groupID,
	})
	return err
}

// GetMemberInfo fetches a member's role, card and nickname, bypassing
// the platform-side cache.
func (c *Client) GetMemberInfo(ctx context.Context, groupID, userID int64) (model.MemberInfo, error) {
	data, err := c.call(ctx, "get_group_member_info", map[string]any{
		"group_id": groupID,
		"user_id":  userID,
		"no_cache": true,
	})
	if err != nil {
		return model.MemberInfo{}, err
	}

	var raw struct {
		UserID   int64  `json:"user_id"`
		Role     string `json:"role"`
		Card     string `json:"card"`
		Nickname string `json:"nickname"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return model.MemberInfo{}, fmt.Errorf("failed to decode member info: %w", err)
	}

	return model.MemberInfo{
		UserID:   raw.UserID,
		Role:     model.Role(raw.Role),
		Card:     raw.Card,
		Nickname: raw.Nickname,
	}, nil
}

// ApproveJoinRequest approves a pending group join request.
func (c *Client) ApproveJoinRequest(ctx context.Context, flag, subType string) error {
	_, err := c.call(ctx, "set_group_add_request", map[string]any{
		"flag":     flag,
		"sub_type": subType,
		"approve":  true,
	})
	return err
}

// SetMemberCard sets a member's group card.
func (c *Client) SetMemberCard(ctx context.Context, groupID, userID int64, card string) error {
	_, err := c.call(ctx, "set_group_card", map[string]any{
		"group_id": groupID,
		"user_id":  userID,
		"card":     card,
	})
	return err
}

// Poke pokes a member in the group.
func (c *Client) Poke(ctx context.Context, groupID, userID int64) error {
	_, err := c.call(ctx, "group_poke", map[string]any{
		"group_id": groupID,
		"user_id":  userID,
	})
	return err
}
