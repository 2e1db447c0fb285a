package repository

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/fathima-sithara/planpal-realtime/internal/models"
)

type mongoUserRepo struct {
	users *mongo.Collection
}

func NewUserRepository(m *Mongo) UserRepository {
	return &mongoUserRepo{users: m.Users}
}

func (r *mongoUserRepo) FindRef(ctx context.Context, id string) (models.UserRef, error) {
	var u models.User
	err := r.users.FindOne(ctx, bson.M{"_id": id}).Decode(&u)
	if err == mongo.ErrNoDocuments {
		return models.UserRef{}, ErrNotFound
	}
	if err != nil {
		return models.UserRef{}, err
	}
	return models.UserRef{ID: u.ID, Name: u.Name, Email: u.Email}, nil
}

func (r *mongoUserRepo) FindRefs(ctx context.Context, ids []string) (map[string]models.UserRef, error) {
	out := make(map[string]models.UserRef, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	cur, err := r.users.Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	for cur.Next(ctx) {
		var u models.User
		if err := cur.Decode(&u); err != nil {
			return nil, err
		}
		out[u.ID] = models.UserRef{ID: u.ID, Name: u.Name, Email: u.Email}
	}
	return out, cur.Err()
}
