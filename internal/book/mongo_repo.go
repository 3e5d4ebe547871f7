package book

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// CollectionName is the MongoDB collection holding books.
const CollectionName = "books"

type bookDocument struct {
	ID               primitive.ObjectID `bson:"_id,omitempty"`
	User             string             `bson:"user"`
	Title            string             `bson:"title"`
	Author           string             `bson:"author"`
	Genre            string             `bson:"genre"`
	YearOfPublishing int                `bson:"yearOfPublishing"`
	ISBN             string             `bson:"isbn"`
	CreatedAt        time.Time          `bson:"createdAt"`
	UpdatedAt        time.Time          `bson:"updatedAt"`
}

func (d bookDocument) book() Book {
	return Book{
		ID:               d.ID.Hex(),
		Owner:            d.User,
		Title:            d.Title,
		Author:           d.Author,
		Genre:            d.Genre,
		YearOfPublishing: d.YearOfPublishing,
		ISBN:             d.ISBN,
		CreatedAt:        d.CreatedAt,
		UpdatedAt:        d.UpdatedAt,
	}
}

type MongoRepo struct {
	coll    *mongo.Collection
	timeout time.Duration
}

func NewMongoRepo(db *mongo.Database, timeout time.Duration) *MongoRepo {
	return &MongoRepo{coll: db.Collection(CollectionName), timeout: timeout}
}

func (r *MongoRepo) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, r.timeout)
}

// EnsureIndexes creates the unique isbn index and the owner lookup index.
func (r *MongoRepo) EnsureIndexes(ctx context.Context) error {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	_, err := r.coll.Indexes().CreateMany(timeoutCtx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "isbn", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "user", Value: 1}, {Key: "_id", Value: 1}}},
	})
	return err
}

func (r *MongoRepo) Insert(ctx context.Context, b *Book) error {
	now := time.Now().UTC().Truncate(time.Millisecond)
	doc := bookDocument{
		ID:               primitive.NewObjectID(),
		User:             b.Owner,
		Title:            b.Title,
		Author:           b.Author,
		Genre:            b.Genre,
		YearOfPublishing: b.YearOfPublishing,
		ISBN:             b.ISBN,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	if _, err := r.coll.InsertOne(timeoutCtx, doc); err != nil {
		return mapMongoError(err)
	}
	*b = doc.book()
	return nil
}

func (r *MongoRepo) ListByOwner(ctx context.Context, owner string) ([]Book, error) {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	cursor, err := r.coll.Find(timeoutCtx, bson.M{"user": owner}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(timeoutCtx)

	var docs []bookDocument
	if err := cursor.All(timeoutCtx, &docs); err != nil {
		return nil, err
	}
	out := make([]Book, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.book())
	}
	return out, nil
}

func (r *MongoRepo) UpdateOwned(ctx context.Context, id, owner string, f Fields) (Book, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return Book{}, ErrNotFound
	}
	update := bson.M{"$set": bson.M{
		"title":            f.Title,
		"author":           f.Author,
		"genre":            f.Genre,
		"yearOfPublishing": f.YearOfPublishing,
		"isbn":             f.ISBN,
		"updatedAt":        time.Now().UTC().Truncate(time.Millisecond),
	}}
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	var doc bookDocument
	err = r.coll.FindOneAndUpdate(timeoutCtx,
		bson.M{"_id": oid, "user": owner},
		update,
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Book{}, r.missing(ctx, oid)
	}
	if err != nil {
		return Book{}, mapMongoError(err)
	}
	return doc.book(), nil
}

func (r *MongoRepo) DeleteOwned(ctx context.Context, id, owner string) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return ErrNotFound
	}
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	res, err := r.coll.DeleteOne(timeoutCtx, bson.M{"_id": oid, "user": owner})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return r.missing(ctx, oid)
	}
	return nil
}

func (r *MongoRepo) OwnerOf(ctx context.Context, id string) (string, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return "", ErrNotFound
	}
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()

	var doc bookDocument
	err = r.coll.FindOne(timeoutCtx, bson.M{"_id": oid},
		options.FindOne().SetProjection(bson.M{"user": 1}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return doc.User, nil
}

func (r *MongoRepo) missing(ctx context.Context, oid primitive.ObjectID) error {
	timeoutCtx, cancel := r.withTimeout(ctx)
	defer cancel()
	n, err := r.coll.CountDocuments(timeoutCtx, bson.M{"_id": oid}, options.Count().SetLimit(1))
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrUnauthorized
	}
	return ErrNotFound
}

func mapMongoError(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicateISBN
	}
	return err
}
