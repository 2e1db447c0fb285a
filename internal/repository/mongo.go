package repository

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/fathima-sithara/planpal-realtime/internal/config"
)

// Mongo bundles the client and the collections the realtime layer touches.
type Mongo struct {
	Client         *mongo.Client
	DB             *mongo.Database
	Users          *mongo.Collection
	Groups         *mongo.Collection
	Events         *mongo.Collection
	Messages       *mongo.Collection
	Chats          *mongo.Collection
	DirectMessages *mongo.Collection
}

func NewMongo(cfg *config.Config) (*Mongo, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	db := client.Database(cfg.Mongo.Database)
	return &Mongo{
		Client:         client,
		DB:             db,
		Users:          db.Collection("users"),
		Groups:         db.Collection("groups"),
		Events:         db.Collection("events"),
		Messages:       db.Collection("messages"),
		Chats:          db.Collection("chats"),
		DirectMessages: db.Collection("direct_messages"),
	}, nil
}

func (m *Mongo) Disconnect(ctx context.Context) error {
	return m.Client.Disconnect(ctx)
}
