package app

import (
	"context"

	"quickchat/internal/chat/domain"
	"quickchat/internal/chat/repository"
	memberdomain "quickchat/internal/member/domain"
	"quickchat/pkg"
	errprocess "quickchat/pkg/err"
	"quickchat/pkg/logger"

	"go.uber.org/zap"
)

// MemberDirectory member lookups used by chat, implemented by the member use case
type MemberDirectory interface {
	ListOthers(ctx context.Context, memberID string) ([]memberdomain.Member, error)
	FindByIDs(ctx context.Context, memberIDs []string) ([]memberdomain.Member, error)
}

// MessageDeps collaborators of MessageUseCase; Images, Events and Metrics are optional
type MessageDeps struct {
	Repo    repository.MessageRepository
	Members MemberDirectory
	Emitter Emitter
	Images  repository.ImageStore
	Events  repository.EventPublisher
	Metrics *Metrics
	// EchoToSender also push newMessage to the sender's own connection
	EchoToSender bool
}

// MessageUseCase 唯一可以修改 message store 的地方，寫入後再推送 realtime 事件
type MessageUseCase struct {
	msgRepo      repository.MessageRepository
	members      MemberDirectory
	emitter      Emitter
	images       repository.ImageStore
	events       repository.EventPublisher
	metrics      *Metrics
	echoToSender bool
}

// NewMessageUseCase init message use case
func NewMessageUseCase(deps MessageDeps) *MessageUseCase {
	events := deps.Events
	if events == nil {
		events = repository.NewNopPublisher()
	}
	return &MessageUseCase{
		msgRepo:      deps.Repo,
		members:      deps.Members,
		emitter:      deps.Emitter,
		images:       deps.Images,
		events:       events,
		metrics:      deps.Metrics,
		echoToSender: deps.EchoToSender,
	}
}

// Send persist a message and push it to the receiver
func (uc *MessageUseCase) Send(ctx context.Context, sender, receiver string, content domain.MessageContent) (*domain.Message, error) {
	msg, err := domain.NewMessage(sender, receiver, content)
	if err != nil {
		return nil, err
	}

	profiles, err := uc.profiles(ctx, sender, receiver)
	if err != nil {
		return nil, err
	}
	if _, ok := profiles[receiver]; !ok {
		return nil, errprocess.NotFound("User not found")
	}

	if msg.Image != "" && uc.images != nil {
		ref, err := uc.images.Store(ctx, sender, msg.Image)
		if err != nil {
			return nil, err
		}
		msg.Image = ref
	}

	if err := uc.msgRepo.Create(ctx, msg); err != nil {
		return nil, err
	}
	attachProfiles(msg, profiles)
	uc.metrics.addSent()

	online := uc.emitter.EmitToUser(receiver, domain.ActionNewMessage, msg)
	if uc.echoToSender && sender != receiver {
		uc.emitter.EmitToUser(sender, domain.ActionNewMessage, msg)
	}

	ev := repository.NewStreamEvent(domain.StreamMessageCreated, []string{msg.ID}, sender, receiver)
	ev.ReceiverOnline = online
	uc.publish(ctx, ev)

	return msg, nil
}

// FetchConversation 取得對話，並把 counterpart 傳給 viewer 的未讀訊息標為已讀
func (uc *MessageUseCase) FetchConversation(ctx context.Context, viewer, counterpart string, page domain.PageQuery) ([]domain.Message, error) {
	if counterpart == "" {
		return nil, errprocess.Validation("Receiver is required")
	}

	// 先標已讀再查詢，回傳的訊息就已經是 seen=true
	if _, err := uc.MarkConversationSeen(ctx, viewer, counterpart); err != nil {
		return nil, err
	}

	msgs, err := uc.msgRepo.ListConversation(ctx, viewer, counterpart, page)
	if err != nil {
		return nil, err
	}

	profiles, err := uc.profiles(ctx, viewer, counterpart)
	if err != nil {
		logger.Log.Warn("conversation profiles", zap.String("viewer", viewer), zap.Error(err))
		return msgs, nil
	}
	for i := range msgs {
		attachProfiles(&msgs[i], profiles)
	}
	return msgs, nil
}

// MarkConversationSeen mark every unseen message from counterpart to viewer
func (uc *MessageUseCase) MarkConversationSeen(ctx context.Context, viewer, counterpart string) (int64, error) {
	ids, err := uc.msgRepo.UnseenIDs(ctx, counterpart, viewer)
	if err != nil {
		return 0, err
	}
	if len(ids) == 0 {
		return 0, nil
	}

	n, err := uc.msgRepo.MarkSeen(ctx, ids, viewer)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		uc.metrics.addSeen(n)
		uc.notifySeen(ctx, counterpart, viewer, ids)
	}
	return n, nil
}

// MarkSeen mark ids addressed to actingUser as seen and notify their senders.
// REST and the realtime messagesSeen frame both end here.
func (uc *MessageUseCase) MarkSeen(ctx context.Context, ids []string, actingUser string) (int64, error) {
	ids = pkg.Unique(ids)
	if len(ids) == 0 {
		return 0, errprocess.Validation("messageIds must not be empty")
	}

	n, err := uc.msgRepo.MarkSeen(ctx, ids, actingUser)
	if err != nil {
		return 0, err
	}
	if n == 0 {
		return 0, nil
	}
	uc.metrics.addSeen(n)

	msgs, err := uc.msgRepo.FindByIDs(ctx, ids)
	if err != nil {
		// 已經寫入成功，只影響通知
		logger.Log.Warn("find seen messages", zap.String("by", actingUser), zap.Error(err))
		return n, nil
	}

	bySender := map[string][]string{}
	var senders []string
	for _, m := range msgs {
		if m.Receiver != actingUser || !m.Seen {
			continue
		}
		if _, ok := bySender[m.Sender]; !ok {
			senders = append(senders, m.Sender)
		}
		bySender[m.Sender] = append(bySender[m.Sender], m.ID)
	}
	for _, sender := range senders {
		uc.notifySeen(ctx, sender, actingUser, bySender[sender])
	}
	return n, nil
}

func (uc *MessageUseCase) notifySeen(ctx context.Context, sender, by string, ids []string) {
	uc.emitter.EmitToUser(sender, domain.MessagesSeen, domain.SeenPayload{IDs: ids, By: by})

	ev := repository.NewStreamEvent(domain.StreamMessageSeen, ids, sender, by)
	ev.By = by
	uc.publish(ctx, ev)
}

// Delete tombstone a message for everyone, only its sender may do it
func (uc *MessageUseCase) Delete(ctx context.Context, id, requester string) (*domain.Message, error) {
	if id == "" {
		return nil, errprocess.Validation("message id is required")
	}

	msg, err := uc.msgRepo.MarkDeleted(ctx, id, requester)
	if err != nil {
		return nil, err
	}
	uc.metrics.addDeleted()

	if profiles, err := uc.profiles(ctx, msg.Sender, msg.Receiver); err == nil {
		attachProfiles(msg, profiles)
	} else {
		logger.Log.Warn("deleted message profiles", zap.String("id", id), zap.Error(err))
	}

	uc.emitter.EmitToUser(msg.Sender, domain.MessageDeleted, msg)
	online := false
	if msg.Receiver != msg.Sender {
		online = uc.emitter.EmitToUser(msg.Receiver, domain.MessageDeleted, msg)
	}

	ev := repository.NewStreamEvent(domain.StreamMessageDeleted, []string{msg.ID}, msg.Sender, msg.Receiver)
	ev.By = requester
	ev.ReceiverOnline = online
	uc.publish(ctx, ev)

	return msg, nil
}

// ListSidebar every other member with unseen badge and last message time
func (uc *MessageUseCase) ListSidebar(ctx context.Context, viewer string) (*domain.Sidebar, error) {
	others, err := uc.members.ListOthers(ctx, viewer)
	if err != nil {
		return nil, err
	}
	counts, err := uc.msgRepo.CountUnseenPerSender(ctx, viewer)
	if err != nil {
		return nil, err
	}
	lasts, err := uc.msgRepo.LastMessageTimestamps(ctx, viewer)
	if err != nil {
		return nil, err
	}

	sidebar := &domain.Sidebar{
		Users:          make([]domain.UserSummary, 0, len(others)),
		UnseenMessages: map[string]int{},
	}
	for _, m := range others {
		summary := domain.UserSummary{
			ID:         m.MemberID,
			FullName:   m.FullName,
			ProfilePic: m.ProfilePic,
			Bio:        m.Bio,
		}
		if ts, ok := lasts[m.MemberID]; ok {
			t := ts
			summary.LastMessageAt = &t
		}
		sidebar.Users = append(sidebar.Users, summary)

		if n := counts[m.MemberID]; n > 0 {
			sidebar.UnseenMessages[m.MemberID] = n
		}
	}
	return sidebar, nil
}

func (uc *MessageUseCase) profiles(ctx context.Context, ids ...string) (map[string]domain.Profile, error) {
	members, err := uc.members.FindByIDs(ctx, pkg.Unique(ids))
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.Profile, len(members))
	for _, m := range members {
		out[m.MemberID] = domain.Profile{
			ID:         m.MemberID,
			FullName:   m.FullName,
			ProfilePic: m.ProfilePic,
			Email:      m.Email,
		}
	}
	return out, nil
}

func attachProfiles(msg *domain.Message, profiles map[string]domain.Profile) {
	if p, ok := profiles[msg.Sender]; ok {
		p := p
		msg.SenderProfile = &p
	}
	if p, ok := profiles[msg.Receiver]; ok {
		p := p
		msg.ReceiverProfile = &p
	}
}

func (uc *MessageUseCase) publish(ctx context.Context, ev domain.StreamEvent) {
	if err := uc.events.Publish(ctx, ev); err != nil {
		logger.Log.Warn("publish activity event", zap.String("type", string(ev.Type)), zap.Error(err))
	}
}
