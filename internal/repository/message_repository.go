package repository

import (
	"context"
	"time"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/fathima-sithara/planpal-realtime/internal/models"
)

type mongoMessageRepo struct {
	messages *mongo.Collection
	users    UserRepository
}

func NewMessageRepository(m *Mongo, users UserRepository) MessageRepository {
	return &mongoMessageRepo{messages: m.Messages, users: users}
}

func (r *mongoMessageRepo) Insert(ctx context.Context, msg *models.Message) (*models.Message, error) {
	now := time.Now().UTC()
	msg.ID = primitive.NewObjectID().Hex()
	msg.CreatedAt = now
	msg.UpdatedAt = now
	if _, err := r.messages.InsertOne(ctx, msg); err != nil {
		return nil, err
	}
	return msg, nil
}

func (r *mongoMessageRepo) FindByID(ctx context.Context, id string) (*models.Message, error) {
	var msg models.Message
	err := r.messages.FindOne(ctx, bson.M{"_id": id}).Decode(&msg)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (r *mongoMessageRepo) FindResolved(ctx context.Context, id string) (*models.ResolvedMessage, error) {
	msg, err := r.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}

	ids := append(lo.Map(msg.Reactions, func(re models.Reaction, _ int) string {
		return re.User
	}), msg.SenderID)
	refs, err := r.users.FindRefs(ctx, lo.Uniq(ids))
	if err != nil {
		return nil, err
	}

	return &models.ResolvedMessage{
		ID:          msg.ID,
		EventID:     msg.EventID,
		Sender:      refs[msg.SenderID],
		Text:        msg.Text,
		Attachments: msg.Attachments,
		Reactions: lo.Map(msg.Reactions, func(re models.Reaction, _ int) models.ResolvedReaction {
			return models.ResolvedReaction{User: refs[re.User], Emoji: re.Emoji}
		}),
		CreatedAt: msg.CreatedAt,
	}, nil
}

func (r *mongoMessageRepo) SetReactions(ctx context.Context, id string, reactions []models.Reaction) error {
	res, err := r.messages.UpdateOne(ctx, bson.M{"_id": id}, bson.M{
		"$set": bson.M{"reactions": reactions, "updated_at": time.Now().UTC()},
	})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
