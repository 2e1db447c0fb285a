package repository

import (
	"context"

	"github.com/samber/lo"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/fathima-sithara/planpal-realtime/internal/models"
)

type mongoEventRepo struct {
	events *mongo.Collection
	groups *mongo.Collection
}

func NewEventRepository(m *Mongo) EventRepository {
	return &mongoEventRepo{events: m.Events, groups: m.Groups}
}

func (r *mongoEventRepo) FindByID(ctx context.Context, id string) (*models.Event, error) {
	var ev models.Event
	err := r.events.FindOne(ctx, bson.M{"_id": id}).Decode(&ev)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &ev, nil
}

func (r *mongoEventRepo) FindGroup(ctx context.Context, groupID string) (*models.Group, error) {
	var g models.Group
	err := r.groups.FindOne(ctx, bson.M{"_id": groupID}).Decode(&g)
	if err == mongo.ErrNoDocuments {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (r *mongoEventRepo) IsGroupMember(ctx context.Context, groupID, userID string) (bool, error) {
	g, err := r.FindGroup(ctx, groupID)
	if err == ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if g.OwnerID == userID {
		return true, nil
	}
	return lo.SomeBy(g.Members, func(m models.GroupMember) bool {
		return m.UserID == userID
	}), nil
}
