package testutil

import (
	"fmt"
	"sync"

	telebot "gopkg.in/telebot.v3"
)

// Reply is one message sent through a FakeContext.
type Reply struct {
	Text   string
	Markup *telebot.ReplyMarkup
}

// FakeContext is a telebot.Context for handler tests. Only the methods the
// bot uses are implemented; calling any other method panics.
type FakeContext struct {
	telebot.Context

	UpdateID int
	User     *telebot.User
	Msg      *telebot.Message
	Cb       *telebot.Callback
	SendErr  error

	mu        sync.Mutex
	values    map[string]any
	replies   []Reply
	responses []*telebot.CallbackResponse
}

// NewTextContext builds a context for a text message from user.
func NewTextContext(user *telebot.User, messageID int, text string) *FakeContext {
	return &FakeContext{
		UpdateID: messageID,
		User:     user,
		Msg: &telebot.Message{
			ID:     messageID,
			Sender: user,
			Chat:   &telebot.Chat{ID: user.ID},
			Text:   text,
		},
	}
}

// NewCallbackContext builds a context for an inline button press on messageID.
func NewCallbackContext(user *telebot.User, messageID int, data string) *FakeContext {
	msg := &telebot.Message{ID: messageID, Chat: &telebot.Chat{ID: user.ID}}
	return &FakeContext{
		UpdateID: messageID + 1_000_000,
		User:     user,
		Cb: &telebot.Callback{
			ID:      fmt.Sprintf("cb-%d", messageID),
			Sender:  user,
			Message: msg,
			Data:    data,
		},
	}
}

func (c *FakeContext) Update() telebot.Update {
	return telebot.Update{ID: c.UpdateID, Message: c.Msg, Callback: c.Cb}
}

func (c *FakeContext) Sender() *telebot.User        { return c.User }
func (c *FakeContext) Message() *telebot.Message    { return c.Msg }
func (c *FakeContext) Callback() *telebot.Callback  { return c.Cb }
func (c *FakeContext) Recipient() telebot.Recipient { return c.User }

func (c *FakeContext) Text() string {
	if c.Msg == nil {
		return ""
	}
	return c.Msg.Text
}

func (c *FakeContext) Send(what interface{}, opts ...interface{}) error {
	if c.SendErr != nil {
		return c.SendErr
	}

	reply := Reply{Text: fmt.Sprint(what)}
	for _, opt := range opts {
		if m, ok := opt.(*telebot.ReplyMarkup); ok {
			reply.Markup = m
		}
	}

	c.mu.Lock()
	c.replies = append(c.replies, reply)
	c.mu.Unlock()
	return nil
}

func (c *FakeContext) Respond(resp ...*telebot.CallbackResponse) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(resp) == 0 {
		c.responses = append(c.responses, &telebot.CallbackResponse{})
		return nil
	}
	c.responses = append(c.responses, resp...)
	return nil
}

func (c *FakeContext) Get(key string) interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.values[key]
}

func (c *FakeContext) Set(key string, val interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.values == nil {
		c.values = make(map[string]any)
	}
	c.values[key] = val
}

// Replies returns the messages sent so far.
func (c *FakeContext) Replies() []Reply {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Reply(nil), c.replies...)
}

// Texts returns the text of every reply.
func (c *FakeContext) Texts() []string {
	replies := c.Replies()
	out := make([]string, len(replies))
	for i, r := range replies {
		out[i] = r.Text
	}
	return out
}

// Responses returns the callback answers sent so far.
func (c *FakeContext) Responses() []*telebot.CallbackResponse {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*telebot.CallbackResponse(nil), c.responses...)
}
