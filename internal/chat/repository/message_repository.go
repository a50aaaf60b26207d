package repository

import (
	"context"
	"errors"
	"time"

	"quickchat/internal/chat/domain"
	errprocess "quickchat/pkg/err"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MessageRepository durable store of direct messages.
// After creation a message is only changed through field-level $set updates.
type MessageRepository interface {
	EnsureIndexes(ctx context.Context) error
	// Create assign id / createdAt and insert
	Create(ctx context.Context, msg *domain.Message) error
	// ListConversation messages between a and b ascending by createdAt, ties by id
	ListConversation(ctx context.Context, a, b string, page domain.PageQuery) ([]domain.Message, error)
	FindByIDs(ctx context.Context, ids []string) ([]domain.Message, error)
	// UnseenIDs ids sent by sender to receiver that receiver has not seen yet
	UnseenIDs(ctx context.Context, sender, receiver string) ([]string, error)
	// MarkSeen flip seen on ids addressed to receiver, returns newly modified count
	MarkSeen(ctx context.Context, ids []string, receiver string) (int64, error)
	// MarkDeleted tombstone id, only its sender may do it
	MarkDeleted(ctx context.Context, id, requester string) (*domain.Message, error)
	CountUnseenPerSender(ctx context.Context, receiver string) (map[string]int, error)
	LastMessageTimestamp(ctx context.Context, a, b string) (*time.Time, error)
	// LastMessageTimestamps latest createdAt per counterpart of viewer
	LastMessageTimestamps(ctx context.Context, viewer string) (map[string]time.Time, error)
}

type messageRepository struct {
	coll *mongo.Collection
	now  func() time.Time
}

// NewMongoMessageRepository create a MessageRepository on the "messages" collection
func NewMongoMessageRepository(db *mongo.Database) MessageRepository {
	return &messageRepository{
		coll: db.Collection("messages"),
		now:  time.Now,
	}
}

func (r *messageRepository) EnsureIndexes(ctx context.Context) error {
	_, err := r.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "sender", Value: 1}, {Key: "receiver", Value: 1}, {Key: "createdAt", Value: 1}}},
		{Keys: bson.D{{Key: "receiver", Value: 1}, {Key: "seen", Value: 1}}},
	})
	return errprocess.Wrap(errprocess.KindTransport, err, "create message indexes")
}

// mongo 只存到毫秒，先截斷讓回傳值與存入值一致
func (r *messageRepository) timestamp() time.Time {
	return r.now().UTC().Truncate(time.Millisecond)
}

func (r *messageRepository) Create(ctx context.Context, msg *domain.Message) error {
	id, err := uuid.NewV7()
	if err != nil {
		id = uuid.New()
	}
	now := r.timestamp()
	msg.ID = id.String()
	msg.Seen = false
	msg.Deleted = false
	msg.CreatedAt = now
	msg.UpdatedAt = now

	if _, err := r.coll.InsertOne(ctx, msg); err != nil {
		return errprocess.Transport(err, "save message")
	}
	return nil
}

func conversationFilter(a, b string) bson.M {
	return bson.M{"$or": []bson.M{
		{"sender": a, "receiver": b},
		{"sender": b, "receiver": a},
	}}
}

func (r *messageRepository) ListConversation(ctx context.Context, a, b string, page domain.PageQuery) ([]domain.Message, error) {
	filter := conversationFilter(a, b)
	opts := options.Find()

	if page.Limit <= 0 {
		opts.SetSort(bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}})
	} else {
		// 取最新的 limit 筆再反轉
		if !page.Before.IsZero() {
			filter = bson.M{"$and": []bson.M{filter, {"createdAt": bson.M{"$lt": page.Before}}}}
		}
		opts.SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}})
		opts.SetLimit(int64(page.Limit))
	}

	cur, err := r.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, errprocess.Transport(err, "list conversation")
	}
	msgs := []domain.Message{}
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, errprocess.Transport(err, "decode conversation")
	}

	if page.Limit > 0 {
		for i, j := 0, len(msgs)-1; i < j; i, j = i+1, j-1 {
			msgs[i], msgs[j] = msgs[j], msgs[i]
		}
	}
	return msgs, nil
}

func (r *messageRepository) FindByIDs(ctx context.Context, ids []string) ([]domain.Message, error) {
	msgs := []domain.Message{}
	if len(ids) == 0 {
		return msgs, nil
	}
	cur, err := r.coll.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, errprocess.Transport(err, "find messages")
	}
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, errprocess.Transport(err, "decode messages")
	}
	return msgs, nil
}

func (r *messageRepository) UnseenIDs(ctx context.Context, sender, receiver string) ([]string, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 1})
	cur, err := r.coll.Find(ctx, bson.M{"sender": sender, "receiver": receiver, "seen": false}, opts)
	if err != nil {
		return nil, errprocess.Transport(err, "find unseen messages")
	}

	var rows []struct {
		ID string `bson:"_id"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, errprocess.Transport(err, "decode unseen messages")
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, row.ID)
	}
	return ids, nil
}

func (r *messageRepository) MarkSeen(ctx context.Context, ids []string, receiver string) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	filter := bson.M{
		"_id":      bson.M{"$in": ids},
		"receiver": receiver,
		"seen":     false,
	}
	update := bson.M{"$set": bson.M{"seen": true, "updatedAt": r.timestamp()}}

	res, err := r.coll.UpdateMany(ctx, filter, update)
	if err != nil {
		return 0, errprocess.Transport(err, "mark messages seen")
	}
	return res.ModifiedCount, nil
}

func (r *messageRepository) MarkDeleted(ctx context.Context, id, requester string) (*domain.Message, error) {
	filter := bson.M{"_id": id, "sender": requester, "deleted": false}
	update := bson.M{"$set": bson.M{
		"deleted":   true,
		"text":      domain.DeletedText,
		"image":     "",
		"updatedAt": r.timestamp(),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var msg domain.Message
	err := r.coll.FindOneAndUpdate(ctx, filter, update, opts).Decode(&msg)
	if err == nil {
		return &msg, nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errprocess.Transport(err, "delete message")
	}

	// 沒更新到：不存在、不是 sender、或已經刪除
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&msg); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, errprocess.NotFound("Message not found")
		}
		return nil, errprocess.Transport(err, "find message")
	}
	if msg.Sender != requester {
		return nil, errprocess.Authorization("Not authorized to delete this message")
	}
	return &msg, nil
}

func (r *messageRepository) CountUnseenPerSender(ctx context.Context, receiver string) (map[string]int, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{
			{Key: "receiver", Value: receiver},
			{Key: "seen", Value: false},
		}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$sender"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}

	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errprocess.Transport(err, "count unseen")
	}

	var rows []struct {
		Sender string `bson:"_id"`
		Count  int    `bson:"count"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, errprocess.Transport(err, "decode unseen counts")
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows {
		counts[row.Sender] = row.Count
	}
	return counts, nil
}

func (r *messageRepository) LastMessageTimestamp(ctx context.Context, a, b string) (*time.Time, error) {
	opts := options.FindOne().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetProjection(bson.M{"createdAt": 1})

	var row struct {
		CreatedAt time.Time `bson:"createdAt"`
	}
	err := r.coll.FindOne(ctx, conversationFilter(a, b), opts).Decode(&row)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, errprocess.Transport(err, "last message")
	}
	return &row.CreatedAt, nil
}

func (r *messageRepository) LastMessageTimestamps(ctx context.Context, viewer string) (map[string]time.Time, error) {
	pipeline := mongo.Pipeline{
		bson.D{{Key: "$match", Value: bson.D{{Key: "$or", Value: bson.A{
			bson.D{{Key: "sender", Value: viewer}},
			bson.D{{Key: "receiver", Value: viewer}},
		}}}}},
		bson.D{{Key: "$project", Value: bson.D{
			{Key: "peer", Value: bson.D{{Key: "$cond", Value: bson.A{
				bson.D{{Key: "$eq", Value: bson.A{"$sender", viewer}}},
				"$receiver",
				"$sender",
			}}}},
			{Key: "createdAt", Value: 1},
		}}},
		bson.D{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$peer"},
			{Key: "last", Value: bson.D{{Key: "$max", Value: "$createdAt"}}},
		}}},
	}

	cur, err := r.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, errprocess.Transport(err, "last messages")
	}

	var rows []struct {
		Peer string    `bson:"_id"`
		Last time.Time `bson:"last"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, errprocess.Transport(err, "decode last messages")
	}

	out := make(map[string]time.Time, len(rows))
	for _, row := range rows {
		out[row.Peer] = row.Last
	}
	return out, nil
}
