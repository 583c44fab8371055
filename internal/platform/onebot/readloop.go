package onebot

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog/log"

	"group-roulette-bot/internal/model"
)

// inboundFrame is the union of the fields we care about across action
// responses and event pushes. OneBot v11 multiplexes both on one socket.
type inboundFrame struct {
	// action response
	Echo    string          `json:"echo,omitempty"`
	Status  string          `json:"status,omitempty"`
	Retcode int             `json:"retcode,omitempty"`
	Data    json.RawMessage `json:"data,omitempty"`

	// event push
	PostType    string `json:"post_type,omitempty"`
	MessageType string `json:"message_type,omitempty"`
	NoticeType  string `json:"notice_type,omitempty"`
	RequestType string `json:"request_type,omitempty"`
	SubType     string `json:"sub_type,omitempty"`
	SelfID      int64  `json:"self_id,omitempty"`
	GroupID     int64  `json:"group_id,omitempty"`
	UserID      int64  `json:"user_id,omitempty"`
	RawMessage  string `json:"raw_message,omitempty"`
	CardNew     string `json:"card_new,omitempty"`
	Flag        string `json:"flag,omitempty"`
	Time        int64  `json:"time,omitempty"`
	Sender      struct {
		Role string `json:"role,omitempty"`
	} `json:"sender,omitempty"`
}

// readLoop reads frames until shutdown, reconnecting with capped
// backoff on connection loss.
func (c *Client) readLoop(ctx context.Context) {
	defer close(c.events)

	go func() {
		<-ctx.Done()
		c.Close()
	}()

	backoff := time.Second

	for {
		_, data, err := c.conn.ReadMessage()
		if err == nil {
			backoff = time.Second
			c.handleFrame(data)
			continue
		}

		if c.closed.Load() || ctx.Err() != nil {
			return
		}

		log.Warn().Err(err).Msg("OneBot connection lost, reconnecting")
		c.failPending()

		for {
			select {
			case <-ctx.Done():
				return
			case <-time.After(backoff):
			}

			conn, derr := c.dial(ctx)
			if derr == nil {
				c.wmu.Lock()
				c.conn = conn
				c.wmu.Unlock()
				log.Info().Str("url", c.url).Msg("OneBot reconnected")
				backoff = time.Second
				break
			}

			log.Warn().Err(derr).Dur("backoff", backoff).Msg("OneBot reconnect failed")
			if backoff < 30*time.Second {
				backoff *= 2
				if backoff > 30*time.Second {
					backoff = 30 * time.Second
				}
			}
		}
	}
}

// handleFrame routes one inbound frame to a pending caller or the event
// stream.
func (c *Client) handleFrame(data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		log.Warn().Err(err).Msg("Failed to decode OneBot frame")
		return
	}

	if frame.Echo != "" {
		c.mu.Lock()
		ch, ok := c.pending[frame.Echo]
		c.mu.Unlock()
		if ok {
			ch <- actionResponse{
				Status:  frame.Status,
				Retcode: frame.Retcode,
				Data:    frame.Data,
				Echo:    frame.Echo,
			}
		}
		return
	}

	ev := decodeEvent(frame)
	if ev == nil {
		return
	}

	select {
	case c.events <- ev:
	default:
		log.Warn().Msg("Event buffer full, dropping event")
	}
}

// decodeEvent maps an event frame to a model event. Unhandled event
// types (meta events, private messages) return nil.
func decodeEvent(frame inboundFrame) model.Event {
	switch frame.PostType {
	case "message":
		if frame.MessageType != "group" {
			return nil
		}
		return model.GroupMessage{
			BotID:      frame.SelfID,
			GroupID:    frame.GroupID,
			UserID:     frame.UserID,
			SenderRole: model.Role(frame.Sender.Role),
			Text:       frame.RawMessage,
			Time:       time.Unix(frame.Time, 0),
		}
	case "notice":
		switch frame.NoticeType {
		case "group_admin":
			return model.AdminNotice{
				BotID:   frame.SelfID,
				GroupID: frame.GroupID,
				UserID:  frame.UserID,
				SubType: frame.SubType,
			}
		case "group_card":
			return model.CardNotice{
				BotID:   frame.SelfID,
				GroupID: frame.GroupID,
				UserID:  frame.UserID,
				Card:    frame.CardNew,
			}
		}
		return nil
	case "request":
		if frame.RequestType != "group" {
			return nil
		}
		return model.JoinRequest{
			BotID:   frame.SelfID,
			GroupID: frame.GroupID,
			UserID:  frame.UserID,
			SubType: frame.SubType,
			Flag:    frame.Flag,
		}
	}
	return nil
}

// failPending drains callers waiting on a dead connection.
func (c *Client) failPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for echo, ch := range c.pending {
		ch <- actionResponse{Status: "failed", Retcode: -1, Echo: echo}
		delete(c.pending, echo)
	}
}
