package client

import (
	"context"
	"sort"
	"sync"
	"time"

	"quickchat/internal/chat/domain"
	errprocess "quickchat/pkg/err"
	"quickchat/pkg/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DeleteScope who a delete applies to
type DeleteScope string

const (
	// ScopeMe hide locally, no request is made
	ScopeMe DeleteScope = "me"
	// ScopeEveryone tombstone on the server for both sides
	ScopeEveryone DeleteScope = "everyone"
)

// API request/response calls the engine makes, implemented by RESTClient
type API interface {
	Sidebar(ctx context.Context) (*domain.Sidebar, error)
	Messages(ctx context.Context, counterpart string) ([]domain.Message, error)
	Send(ctx context.Context, to string, content domain.MessageContent) (*domain.Message, error)
	MarkSeen(ctx context.Context, ids []string) (int64, error)
	Delete(ctx context.Context, id string) (*domain.Message, error)
}

// Notifier realtime seen acknowledgment, implemented by Realtime
type Notifier interface {
	SendSeen(ids []string, by string) error
}

// Options engine settings
type Options struct {
	// Timeout bound of every request, default 10s
	Timeout time.Duration
	// OnChange called after any state change, outside the engine lock
	OnChange func()
}

// Engine keeps a per-counterpart view of the viewer's conversations consistent across
// its own request results and realtime pushes. Safe for concurrent use.
type Engine struct {
	self string
	api  API
	opts Options

	mu        sync.Mutex
	notifier  Notifier
	selected  string
	convs     map[string]*conversation
	unseen    map[string]int
	users     []domain.UserSummary
	online    map[string]bool
	hidden    map[string]struct{}
	// 刪除請求進行中的 id，value 為 server 是否已推送 messageDeleted
	deleting  map[string]bool
	// seen 通知比訊息本身先到時暫存
	seenAhead map[string]struct{}
	now       func() time.Time
}

// NewEngine create an engine for the viewer self
func NewEngine(self string, api API, opts Options) *Engine {
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	return &Engine{
		self:      self,
		api:       api,
		opts:      opts,
		convs:     map[string]*conversation{},
		unseen:    map[string]int{},
		online:    map[string]bool{},
		hidden:    map[string]struct{}{},
		deleting:  map[string]bool{},
		seenAhead: map[string]struct{}{},
		now:       time.Now,
	}
}

// SetNotifier attach the realtime channel used for seen acknowledgments; nil detaches
func (e *Engine) SetNotifier(n Notifier) {
	e.mu.Lock()
	e.notifier = n
	e.mu.Unlock()
}

func (e *Engine) changed() {
	if e.opts.OnChange != nil {
		e.opts.OnChange()
	}
}

func (e *Engine) conv(counterpart string) *conversation {
	c, ok := e.convs[counterpart]
	if !ok {
		c = &conversation{}
		e.convs[counterpart] = c
	}
	return c
}

// LoadSidebar fetch users and unseen badges
func (e *Engine) LoadSidebar(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()

	sidebar, err := e.api.Sidebar(ctx)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.users = append([]domain.UserSummary(nil), sidebar.Users...)
	e.unseen = map[string]int{}
	for id, n := range sidebar.UnseenMessages {
		if n > 0 && id != e.selected {
			e.unseen[id] = n
		}
	}
	e.sortUsersLocked()
	e.mu.Unlock()

	e.changed()
	return nil
}

// 最近有訊息的排前面，沒有訊息的照名字
func (e *Engine) sortUsersLocked() {
	sort.SliceStable(e.users, func(i, j int) bool {
		a, b := e.users[i].LastMessageAt, e.users[j].LastMessageAt
		switch {
		case a != nil && b != nil:
			return a.After(*b)
		case a != nil:
			return true
		case b != nil:
			return false
		default:
			return e.users[i].FullName < e.users[j].FullName
		}
	})
}

func (e *Engine) touchUserLocked(id string, at time.Time) {
	for i := range e.users {
		if e.users[i].ID != id {
			continue
		}
		if last := e.users[i].LastMessageAt; last == nil || at.After(*last) {
			t := at
			e.users[i].LastMessageAt = &t
			e.sortUsersLocked()
		}
		return
	}
}

// SelectCounterpart open the conversation with counterpart.
// A cached conversation is served without a fetch; otherwise it is fetched, and the
// viewer's unseen messages in it are acknowledged.
func (e *Engine) SelectCounterpart(ctx context.Context, counterpart string) error {
	if counterpart == "" {
		return errprocess.Validation("Receiver is required")
	}

	e.mu.Lock()
	e.selected = counterpart
	e.unseen[counterpart] = 0
	c := e.conv(counterpart)
	if c.state == Loading {
		e.mu.Unlock()
		return nil
	}
	if c.state == Loaded && !c.failed {
		ids := e.unseenByViewerLocked(c)
		e.mu.Unlock()
		e.changed()
		e.acknowledge(ctx, ids)
		return nil
	}
	c.state = Loading
	c.failed = false
	e.mu.Unlock()
	e.changed()

	fetchCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	msgs, err := e.api.Messages(fetchCtx, counterpart)
	cancel()

	e.mu.Lock()
	// 失敗時以空的結果結束 loading，保留 loading 期間收到的即時訊息，下次選取再重抓
	c.state = Loaded
	if err != nil {
		c.failed = true
		e.mu.Unlock()
		e.changed()
		logger.Log.Warn("fetch conversation", zap.String("counterpart", counterpart), zap.Error(err))
		return err
	}
	for _, m := range msgs {
		if _, gone := e.hidden[m.ID]; gone {
			continue
		}
		e.applySeenAheadLocked(&m)
		c.upsert(m)
	}
	var ids []string
	if e.selected == counterpart {
		e.unseen[counterpart] = 0
		ids = e.unseenByViewerLocked(c)
	}
	e.mu.Unlock()
	e.changed()

	e.acknowledge(ctx, ids)
	return nil
}

// unseenByViewerLocked mark locally and return ids the viewer received but has not seen
func (e *Engine) unseenByViewerLocked(c *conversation) []string {
	var ids []string
	for i := range c.msgs {
		m := &c.msgs[i]
		if m.Receiver == e.self && !m.Seen && !IsPending(*m) {
			m.Seen = true
			ids = append(ids, m.ID)
		}
	}
	return ids
}

// acknowledge report ids as seen over REST and the realtime channel
func (e *Engine) acknowledge(ctx context.Context, ids []string) {
	if len(ids) == 0 {
		return
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	defer cancel()
	if _, err := e.api.MarkSeen(reqCtx, ids); err != nil {
		logger.Log.Warn("mark seen", zap.Strings("ids", ids), zap.Error(err))
	}

	e.mu.Lock()
	n := e.notifier
	e.mu.Unlock()
	if n != nil {
		if err := n.SendSeen(ids, e.self); err != nil {
			logger.Log.Warn("realtime seen", zap.Strings("ids", ids), zap.Error(err))
		}
	}
}

// Send post content to the selected counterpart with an optimistic placeholder.
// The placeholder is replaced by id on success and removed on failure.
func (e *Engine) Send(ctx context.Context, content domain.MessageContent) (*domain.Message, error) {
	if content.Empty() {
		return nil, errprocess.Validation("Message cannot be empty")
	}

	e.mu.Lock()
	to := e.selected
	if to == "" {
		e.mu.Unlock()
		return nil, errprocess.Validation("Receiver is required")
	}
	placeholder := domain.Message{
		ID:        PendingPrefix + uuid.NewString(),
		Sender:    e.self,
		Receiver:  to,
		Text:      content.Text,
		Image:     content.Image,
		CreatedAt: e.now().UTC(),
	}
	c := e.conv(to)
	c.upsert(placeholder)
	e.mu.Unlock()
	e.changed()

	reqCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	msg, err := e.api.Send(reqCtx, to, content)
	cancel()

	e.mu.Lock()
	c.remove(placeholder.ID)
	if err == nil {
		// echo 可能已經先到，upsert 以 id 去重
		e.applySeenAheadLocked(msg)
		c.upsert(*msg)
		e.touchUserLocked(to, msg.CreatedAt)
	}
	e.mu.Unlock()
	e.changed()

	if err != nil {
		return nil, err
	}
	return msg, nil
}

// OnRealtimeNewMessage merge a pushed message
func (e *Engine) OnRealtimeNewMessage(ctx context.Context, msg domain.Message) {
	if msg.Sender != e.self && msg.Receiver != e.self {
		return
	}
	counterpart := msg.Counterpart(e.self)

	e.mu.Lock()
	if _, gone := e.hidden[msg.ID]; gone {
		e.mu.Unlock()
		return
	}
	e.touchUserLocked(counterpart, msg.CreatedAt)
	e.applySeenAheadLocked(&msg)

	var ack []string
	if counterpart == e.selected {
		c := e.conv(counterpart)
		c.upsert(msg)
		// 正在看這個對話，直接回報已讀
		if msg.Receiver == e.self && !msg.Seen {
			if i := c.index(msg.ID); i >= 0 {
				c.msgs[i].Seen = true
			}
			ack = []string{msg.ID}
		}
	} else {
		if c, ok := e.convs[counterpart]; ok {
			c.upsert(msg)
		}
		if msg.Receiver == e.self && !msg.Seen {
			e.unseen[counterpart]++
		}
	}
	e.mu.Unlock()
	e.changed()

	e.acknowledge(ctx, ack)
}

// OnRealtimeSeen set seen on every cached message in ids
func (e *Engine) OnRealtimeSeen(payload domain.SeenPayload) {
	if len(payload.IDs) == 0 {
		return
	}
	ids := make(map[string]struct{}, len(payload.IDs))
	for _, id := range payload.IDs {
		ids[id] = struct{}{}
	}

	e.mu.Lock()
	n := 0
	for _, c := range e.convs {
		n += c.markSeen(ids)
	}
	for id := range ids {
		if _, _, ok := e.findLocked(id); !ok {
			e.rememberSeenLocked(id)
		}
	}
	e.mu.Unlock()

	if n > 0 {
		e.changed()
	}
}

const maxSeenAhead = 1024

// rememberSeenLocked keep a receipt for a message not cached yet, e.g. our own send
// whose response is still in flight
func (e *Engine) rememberSeenLocked(id string) {
	if len(e.seenAhead) >= maxSeenAhead {
		e.seenAhead = map[string]struct{}{}
	}
	e.seenAhead[id] = struct{}{}
}

func (e *Engine) applySeenAheadLocked(m *domain.Message) {
	if _, ok := e.seenAhead[m.ID]; ok {
		m.Seen = true
		delete(e.seenAhead, m.ID)
	}
}

// OnRealtimeDeleted merge the tombstone into the counterpart's conversation. A tombstone
// for a message not cached yet is kept too, so a fetch still in flight cannot bring the
// old content back.
func (e *Engine) OnRealtimeDeleted(msg domain.Message) {
	if !msg.Deleted {
		msg.Tombstone()
	}

	e.mu.Lock()
	if _, ok := e.deleting[msg.ID]; ok {
		e.deleting[msg.ID] = true
	}
	_, gone := e.hidden[msg.ID]
	if c, ok := e.convs[msg.Counterpart(e.self)]; ok && !gone {
		c.upsert(msg)
	}
	e.mu.Unlock()
	e.changed()
}

// OnOnlineUsers replace the online set with a server snapshot
func (e *Engine) OnOnlineUsers(ids []string) {
	e.mu.Lock()
	e.online = make(map[string]bool, len(ids))
	for _, id := range ids {
		e.online[id] = true
	}
	e.mu.Unlock()
	e.changed()
}

// OnDisconnect presence is unknown until the next snapshot
func (e *Engine) OnDisconnect() {
	e.mu.Lock()
	e.online = map[string]bool{}
	e.notifier = nil
	e.mu.Unlock()
	e.changed()
}

// DeleteMessage ScopeMe hides id locally for good. ScopeEveryone tombstones it
// optimistically and rolls back if the request fails without a server confirmation.
func (e *Engine) DeleteMessage(ctx context.Context, id string, scope DeleteScope) error {
	e.mu.Lock()
	c, original, ok := e.findLocked(id)
	if !ok {
		e.mu.Unlock()
		return errprocess.NotFound("Message not found")
	}

	switch scope {
	case ScopeMe:
		c.remove(id)
		e.hidden[id] = struct{}{}
		e.mu.Unlock()
		e.changed()
		return nil

	case ScopeEveryone:
		if original.Sender != e.self {
			e.mu.Unlock()
			return errprocess.Authorization("Not authorized to delete this message")
		}
		if IsPending(original) {
			e.mu.Unlock()
			return errprocess.Validation("message is still sending")
		}
		tomb := original
		tomb.Tombstone()
		c.replace(tomb)
		e.deleting[id] = false
		e.mu.Unlock()
		e.changed()

	default:
		e.mu.Unlock()
		return errprocess.Validation("unknown delete scope")
	}

	reqCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	res, err := e.api.Delete(reqCtx, id)
	cancel()

	e.mu.Lock()
	confirmed := e.deleting[id]
	delete(e.deleting, id)
	if err != nil {
		if !confirmed {
			// 還原，但 seen 只進不退
			if i := c.index(id); i >= 0 {
				restored := original
				restored.Seen = original.Seen || c.msgs[i].Seen
				c.msgs[i] = restored
			}
		}
		e.mu.Unlock()
		e.changed()
		return err
	}
	if i := c.index(id); i >= 0 {
		c.msgs[i] = mergeMessage(c.msgs[i], *res)
	}
	e.mu.Unlock()
	e.changed()
	return nil
}

func (e *Engine) findLocked(id string) (*conversation, domain.Message, bool) {
	for _, c := range e.convs {
		if i := c.index(id); i >= 0 {
			return c, c.msgs[i], true
		}
	}
	return nil, domain.Message{}, false
}

// Selected current counterpart
func (e *Engine) Selected() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selected
}

// Messages the displayed list: the selected conversation, nil while it is loading
func (e *Engine) Messages() []domain.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	c, ok := e.convs[e.selected]
	if !ok || c.state != Loaded {
		return nil
	}
	return c.snapshot()
}

// Cached copy of the cache for counterpart regardless of selection
func (e *Engine) Cached(counterpart string) []domain.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.convs[counterpart]; ok {
		return c.snapshot()
	}
	return nil
}

// State load state of counterpart's conversation
func (e *Engine) State(counterpart string) ConvState {
	e.mu.Lock()
	defer e.mu.Unlock()
	if c, ok := e.convs[counterpart]; ok {
		return c.state
	}
	return Unloaded
}

// Unseen badge count of counterpart
func (e *Engine) Unseen(counterpart string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.unseen[counterpart]
}

// IsOnline counterpart in the last presence snapshot
func (e *Engine) IsOnline(id string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.online[id]
}

// Users sidebar entries, most recent conversation first
func (e *Engine) Users() []domain.UserSummary {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]domain.UserSummary(nil), e.users...)
}
