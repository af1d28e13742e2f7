package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultMessagesCollection is the collection used by NewMongoStore.
const DefaultMessagesCollection = "chats"

// MongoStore implements Store over a MongoDB collection.
// The client is owned by the caller.
type MongoStore struct {
	coll *mongo.Collection
}

type mongoMessage struct {
	ID        string    `bson:"_id"`
	Sender    string    `bson:"sender"`
	Receiver  string    `bson:"receiver"`
	Message   string    `bson:"message"`
	Image     string    `bson:"image,omitempty"`
	Timestamp time.Time `bson:"timestamp"`
	EditedAt  time.Time `bson:"edited_at,omitempty"`
	Read      bool      `bson:"read"`
	IsDeleted bool      `bson:"is_deleted"`
}

func (d mongoMessage) message() Message {
	m := Message{
		ID:         d.ID,
		SenderID:   d.Sender,
		ReceiverID: d.Receiver,
		Body:       d.Message,
		Image:      d.Image,
		SentAt:     d.Timestamp.UTC(),
		Read:       d.Read,
		IsDeleted:  d.IsDeleted,
	}
	if !d.EditedAt.IsZero() {
		m.EditedAt = d.EditedAt.UTC()
	}
	return m
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore binds a store to db.<collection> (DefaultMessagesCollection when empty).
func NewMongoStore(db *mongo.Database, collection string) (*MongoStore, error) {
	if db == nil {
		return nil, errors.New("chat: nil mongo database")
	}
	collection = strings.TrimSpace(collection)
	if collection == "" {
		collection = DefaultMessagesCollection
	}
	return &MongoStore{coll: db.Collection(collection)}, nil
}

// EnsureIndexes creates the indexes backing conversation and unread queries.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "sender", Value: 1}, {Key: "receiver", Value: 1}, {Key: "timestamp", Value: 1}},
			Options: options.Index().SetName("idx_chats_pair_timestamp"),
		},
		{
			Keys:    bson.D{{Key: "receiver", Value: 1}, {Key: "read", Value: 1}},
			Options: options.Index().SetName("idx_chats_receiver_read"),
		},
	})
	if err != nil {
		return fmt.Errorf("chat: ensure indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Create(ctx context.Context, in CreateInput) (Message, error) {
	const op = "chat.Create"

	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	m, err := prepareCreate(op, in)
	if err != nil {
		return Message{}, err
	}
	// BSON dates carry millisecond precision.
	m.SentAt = m.SentAt.Truncate(time.Millisecond)

	doc := mongoMessage{
		ID:        m.ID,
		Sender:    m.SenderID,
		Receiver:  m.ReceiverID,
		Message:   m.Body,
		Image:     m.Image,
		Timestamp: m.SentAt,
	}
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return Message{}, fmt.Errorf("%s: %w", op, err)
	}
	return m, nil
}

func pairFilter(a, b string) bson.M {
	return bson.M{"$or": bson.A{
		bson.M{"sender": a, "receiver": b},
		bson.M{"sender": b, "receiver": a},
	}}
}

func (s *MongoStore) Conversation(ctx context.Context, userID, peerID string) ([]Message, error) {
	const op = "chat.Conversation"

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	userID, peerID = strings.TrimSpace(userID), strings.TrimSpace(peerID)

	if _, err := s.coll.UpdateMany(ctx,
		bson.M{"sender": peerID, "receiver": userID, "read": false, "is_deleted": false},
		bson.M{"$set": bson.M{"read": true}},
	); err != nil {
		return nil, fmt.Errorf("%s: mark read: %w", op, err)
	}

	filter := pairFilter(userID, peerID)
	filter["is_deleted"] = false
	cur, err := s.coll.Find(ctx, filter,
		options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}, {Key: "_id", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var docs []mongoMessage
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]Message, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.message())
	}
	return out, nil
}

func (s *MongoStore) Get(ctx context.Context, id string) (Message, error) {
	const op = "chat.Get"

	if err := ctx.Err(); err != nil {
		return Message{}, err
	}

	var doc mongoMessage
	err := s.coll.FindOne(ctx, bson.M{"_id": strings.TrimSpace(id), "is_deleted": false}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Message{}, notFound(op)
		}
		return Message{}, fmt.Errorf("%s: %w", op, err)
	}
	return doc.message(), nil
}

func (s *MongoStore) Edit(ctx context.Context, in EditInput) (Message, error) {
	const op = "chat.Edit"

	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	body, err := validateBody(op, in.Body)
	if err != nil {
		return Message{}, err
	}
	now := in.Now
	if now.IsZero() {
		now = time.Now()
	}

	return s.mutateOwned(ctx, op, in.ID, in.EditorID, bson.M{"$set": bson.M{
		"message":   body,
		"edited_at": now.UTC().Truncate(time.Millisecond),
	}})
}

func (s *MongoStore) Delete(ctx context.Context, id, editorID string) (Message, error) {
	const op = "chat.Delete"

	if err := ctx.Err(); err != nil {
		return Message{}, err
	}
	return s.mutateOwned(ctx, op, id, editorID, bson.M{"$set": bson.M{"is_deleted": true}})
}

// mutateOwned applies update to a visible message sent by editorID. The
// ownership check is repeated in the update filter so a concurrent delete
// surfaces as not found.
func (s *MongoStore) mutateOwned(ctx context.Context, op, id, editorID string, update bson.M) (Message, error) {
	id, editorID = strings.TrimSpace(id), strings.TrimSpace(editorID)

	current, err := s.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return Message{}, notFound(op)
		}
		return Message{}, fmt.Errorf("%s: %w", op, err)
	}
	if current.SenderID != editorID {
		return Message{}, forbidden(op)
	}

	var doc mongoMessage
	err = s.coll.FindOneAndUpdate(ctx,
		bson.M{"_id": id, "sender": editorID, "is_deleted": false},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return Message{}, notFound(op)
		}
		return Message{}, fmt.Errorf("%s: %w", op, err)
	}
	return doc.message(), nil
}

func (s *MongoStore) Threads(ctx context.Context, userID string) ([]Thread, error) {
	const op = "chat.Threads"

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	userID = strings.TrimSpace(userID)

	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{
			"$or":        bson.A{bson.M{"sender": userID}, bson.M{"receiver": userID}},
			"is_deleted": false,
		}}},
		{{Key: "$sort", Value: bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}}},
		{{Key: "$group", Value: bson.M{
			"_id":  bson.M{"$cond": bson.A{bson.M{"$eq": bson.A{"$sender", userID}}, "$receiver", "$sender"}},
			"last": bson.M{"$first": "$$ROOT"},
		}}},
	}

	cur, err := s.coll.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var rows []struct {
		Peer string       `bson:"_id"`
		Last mongoMessage `bson:"last"`
	}
	if err := cur.All(ctx, &rows); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	out := make([]Thread, 0, len(rows))
	for _, r := range rows {
		out = append(out, Thread{PeerID: r.Peer, Last: r.Last.message()})
	}
	sortThreads(out)
	return out, nil
}
