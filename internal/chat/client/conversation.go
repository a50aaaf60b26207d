package client

import (
	"sort"
	"strings"

	"quickchat/internal/chat/domain"
)

// PendingPrefix id prefix of optimistic messages not confirmed by the server yet
const PendingPrefix = "pending-"

// ConvState load state of one conversation
type ConvState int

const (
	// Unloaded never fetched
	Unloaded ConvState = iota
	// Loading fetch in flight, the list must not be displayed
	Loading
	// Loaded cached, served without a fetch
	Loaded
)

func (s ConvState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Loaded:
		return "loaded"
	default:
		return "unloaded"
	}
}

// IsPending message is an optimistic placeholder
func IsPending(m domain.Message) bool {
	return strings.HasPrefix(m.ID, PendingPrefix)
}

// conversation cached messages with one counterpart, always sorted by createdAt then id
type conversation struct {
	state ConvState
	// failed last fetch failed, the next selection fetches again
	failed bool
	msgs   []domain.Message
}

func (c *conversation) index(id string) int {
	for i := range c.msgs {
		if c.msgs[i].ID == id {
			return i
		}
	}
	return -1
}

// upsert insert in position, or merge into the existing copy with the same id
func (c *conversation) upsert(m domain.Message) {
	if i := c.index(m.ID); i >= 0 {
		c.msgs[i] = mergeMessage(c.msgs[i], m)
		return
	}
	i := sort.Search(len(c.msgs), func(i int) bool {
		return domain.MessageBefore(m, c.msgs[i])
	})
	c.msgs = append(c.msgs, domain.Message{})
	copy(c.msgs[i+1:], c.msgs[i:])
	c.msgs[i] = m
}

func (c *conversation) remove(id string) (domain.Message, bool) {
	i := c.index(id)
	if i < 0 {
		return domain.Message{}, false
	}
	m := c.msgs[i]
	c.msgs = append(c.msgs[:i], c.msgs[i+1:]...)
	return m, true
}

// replace overwrite the stored copy as is, used by rollback
func (c *conversation) replace(m domain.Message) bool {
	i := c.index(m.ID)
	if i < 0 {
		return false
	}
	c.msgs[i] = m
	return true
}

func (c *conversation) markSeen(ids map[string]struct{}) int {
	n := 0
	for i := range c.msgs {
		if _, ok := ids[c.msgs[i].ID]; ok && !c.msgs[i].Seen {
			c.msgs[i].Seen = true
			n++
		}
	}
	return n
}

func (c *conversation) snapshot() []domain.Message {
	out := make([]domain.Message, len(c.msgs))
	copy(out, c.msgs)
	return out
}

// mergeMessage combine two copies of one message; seen and deleted never go back to false
func mergeMessage(old, incoming domain.Message) domain.Message {
	out := incoming
	out.Seen = old.Seen || incoming.Seen
	if old.Deleted && !incoming.Deleted {
		out.Deleted = true
		out.Text = old.Text
		out.Image = old.Image
	}
	if out.SenderProfile == nil {
		out.SenderProfile = old.SenderProfile
	}
	if out.ReceiverProfile == nil {
		out.ReceiverProfile = old.ReceiverProfile
	}
	return out
}
