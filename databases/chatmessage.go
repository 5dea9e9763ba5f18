package databases

// go generate: mockery --name ChatMessageDatabase

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/jobseekr/realtime-api/models"
)

const chatMessageCollectionName = "chatmessages"

// ChatMessageDatabase contains the methods to use with the chat message database
type ChatMessageDatabase interface {
	InsertOne(ctx context.Context, message models.ChatMessage, opts ...*options.InsertOneOptions) (InsertOneResultHelper, error)
	UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (int64, error)
	UpdateMany(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (int64, error)
	Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.ChatMessage, error)
	FindPaginated(ctx context.Context, filter interface{}, limit, page int) ([]models.ChatMessage, error)
	Aggregate(ctx context.Context, pipeline mongo.Pipeline, opts ...*options.AggregateOptions) ([]models.ConversationSummary, error)
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

type chatMessageDatabase struct {
	db DatabaseHelper
}

// NewChatMessageDatabase initializes a new instance of chat message database with the provided db connection
func NewChatMessageDatabase(db DatabaseHelper) ChatMessageDatabase {
	return &chatMessageDatabase{
		db: db,
	}
}

func (c *chatMessageDatabase) InsertOne(ctx context.Context, message models.ChatMessage, opts ...*options.InsertOneOptions) (InsertOneResultHelper, error) {
	res, err := c.db.Collection(chatMessageCollectionName).InsertOne(ctx, message, opts...)
	return res, err
}

func (c *chatMessageDatabase) UpdateOne(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (int64, error) {
	return c.db.Collection(chatMessageCollectionName).UpdateOne(ctx, filter, update, opts...)
}

func (c *chatMessageDatabase) UpdateMany(ctx context.Context, filter interface{}, update interface{}, opts ...*options.UpdateOptions) (int64, error) {
	return c.db.Collection(chatMessageCollectionName).UpdateMany(ctx, filter, update, opts...)
}

func (c *chatMessageDatabase) Find(ctx context.Context, filter interface{}, opts ...*options.FindOptions) ([]models.ChatMessage, error) {
	var messages []models.ChatMessage
	curr, err := c.db.Collection(chatMessageCollectionName).Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	err = curr.All(ctx, &messages)
	if err != nil {
		return nil, err
	}
	return messages, nil
}

func (c *chatMessageDatabase) FindPaginated(ctx context.Context, filter interface{}, limit, page int) ([]models.ChatMessage, error) {
	opts := newMongoPaginate(limit, page).getPaginatedOpts()
	opts.SetSort(bson.D{{Key: "timestamp", Value: 1}})
	return c.Find(ctx, filter, opts)
}

func (c *chatMessageDatabase) Aggregate(ctx context.Context, pipeline mongo.Pipeline, opts ...*options.AggregateOptions) ([]models.ConversationSummary, error) {
	var summaries []models.ConversationSummary
	curr, err := c.db.Collection(chatMessageCollectionName).Aggregate(ctx, pipeline, opts...)
	if err != nil {
		return nil, err
	}
	err = curr.All(ctx, &summaries)
	if err != nil {
		return nil, err
	}
	return summaries, nil
}

func (c *chatMessageDatabase) CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error) {
	return c.db.Collection(chatMessageCollectionName).CountDocuments(ctx, filter, opts...)
}
