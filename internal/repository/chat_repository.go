package repository

import (
	"context"
	"time"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/planpal-realtime/internal/models"
)

type mongoChatRepo struct {
	chats    *mongo.Collection
	messages *mongo.Collection
	users    UserRepository
}

func NewChatRepository(m *Mongo, users UserRepository) ChatRepository {
	return &mongoChatRepo{chats: m.Chats, messages: m.DirectMessages, users: users}
}

func (r *mongoChatRepo) FindByID(ctx context.Context, id string) (*models.Chat, error) {
	var chat models.Chat
	err := r.chats.FindOne(ctx, bson.M{"_id": id}).Decode(&chat)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &chat, nil
}

func (r *mongoChatRepo) InsertDirectMessage(ctx context.Context, msg *models.DirectMessage) (*models.DirectMessage, error) {
	now := time.Now().UTC()
	msg.ID = primitive.NewObjectID().Hex()
	if msg.Status == "" {
		msg.Status = models.StatusSent
	}
	msg.CreatedAt = now
	msg.UpdatedAt = now
	if _, err := r.messages.InsertOne(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *mongoChatRepo) FindDirectResolved(ctx context.Context, id string) (*models.ResolvedDirectMessage, error) {
	var msg models.DirectMessage
	err := r.messages.FindOne(ctx, bson.M{"_id": id}).Decode(&msg)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	sender, err := r.users.FindRef(ctx, msg.SenderID)
	if err != nil && err != ErrNotFound {
		return nil, err
	}
	return resolveDirect(&msg, sender), nil
}

func (r *mongoChatRepo) SetLastMessage(ctx context.Context, chatID, messageID string) error {
	_, err := r.chats.UpdateOne(ctx, bson.M{"_id": chatID}, bson.M{
		"$set": bson.M{"last_message": messageID, "updated_at": time.Now().UTC()},
	})
	return err
}

func (r *mongoChatRepo) MarkSeen(ctx context.Context, chatID string, ids []string) ([]string, error) {
	// select first so the broadcast can carry the ids actually affected
	filter := bson.M{
		"_id":     bson.M{"$in": ids},
		"chat_id": chatID,
		"status":  bson.M{"$ne": models.StatusSeen},
	}
	cur, err := r.messages.Find(ctx, filter, options.Find().SetProjection(bson.M{"_id": 1}))
	if err != nil {
		return nil, err
	}
	type idDoc struct {
		ID string `bson:"_id"`
	}
	var docs []idDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, err
	}
	affected := lo.Map(docs, func(d idDoc, _ int) string { return d.ID })
	if len(affected) == 0 {
		return nil, nil
	}

	_, err = r.messages.UpdateMany(ctx, bson.M{"_id": bson.M{"$in": affected}}, bson.M{
		"$set": bson.M{"status": models.StatusSeen, "updated_at": time.Now().UTC()},
	})
	return affected, err
}

func (r *mongoChatRepo) MarkAllSeen(ctx context.Context, chatID string) error {
	_, err := r.messages.UpdateMany(ctx,
		bson.M{"chat_id": chatID, "status": bson.M{"$ne": models.StatusSeen}},
		bson.M{"$set": bson.M{"status": models.StatusSeen, "updated_at": time.Now().UTC()}},
	)
	return err
}

func (r *mongoChatRepo) ListMessages(ctx context.Context, chatID string) ([]models.ResolvedDirectMessage, error) {
	cur, err := r.messages.Find(ctx, bson.M{"chat_id": chatID},
		options.Find().SetSort(bson.D{{Key: "created_at", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var msgs []models.DirectMessage
	if err := cur.All(ctx, &msgs); err != nil {
		return nil, err
	}

	senderIDs := lo.Uniq(lo.Map(msgs, func(m models.DirectMessage, _ int) string {
		return m.SenderID
	}))
	refs, err := r.users.FindRefs(ctx, senderIDs)
	if err != nil {
		return nil, err
	}

	out := make([]models.ResolvedDirectMessage, 0, len(msgs))
	for i := range msgs {
		out = append(out, *resolveDirect(&msgs[i], refs[msgs[i].SenderID]))
	}
	return out, nil
}

func resolveDirect(msg *models.DirectMessage, sender models.UserRef) *models.ResolvedDirectMessage {
	if sender.ID == "" {
		sender.ID = msg.SenderID
	}
	return &models.ResolvedDirectMessage{
		ID:          msg.ID,
		ChatID:      msg.ChatID,
		Sender:      sender,
		Text:        msg.Text,
		Attachments: msg.Attachments,
		Status:      msg.Status,
		CreatedAt:   msg.CreatedAt,
	}
}
