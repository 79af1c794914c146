package document

import (
	"context"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/matzehuels/corral/pkg/errors"
)

// MongoStore persists documents in a MongoDB collection, one record per
// document name.
type MongoStore struct {
	coll *mongo.Collection
}

// record is the stored shape: the document name is the collection key.
type record struct {
	ID  string   `bson:"_id"`
	Doc Document `bson:"doc"`
}

// NewMongoStore creates a Mongo-backed document store over the given
// collection.
func NewMongoStore(coll *mongo.Collection) *MongoStore {
	return &MongoStore{coll: coll}
}

func (s *MongoStore) Save(ctx context.Context, name string, doc *Document) error {
	if err := validName(name); err != nil {
		return err
	}
	rec := record{ID: name, Doc: *doc}
	opts := options.Replace().SetUpsert(true)
	if _, err := s.coll.ReplaceOne(ctx, bson.M{"_id": name}, rec, opts); err != nil {
		return errors.Wrap(errors.ErrCodeStore, err, "save document %q", name)
	}
	return nil
}

func (s *MongoStore) Load(ctx context.Context, name string) (*Document, error) {
	if err := validName(name); err != nil {
		return nil, err
	}
	var rec record
	err := s.coll.FindOne(ctx, bson.M{"_id": name}).Decode(&rec)
	if err == mongo.ErrNoDocuments {
		return nil, errors.New(errors.ErrCodeDocumentNotFound, "no document %q", name)
	}
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStore, err, "load document %q", name)
	}
	return &rec.Doc, nil
}

func (s *MongoStore) Delete(ctx context.Context, name string) error {
	if err := validName(name); err != nil {
		return err
	}
	if _, err := s.coll.DeleteOne(ctx, bson.M{"_id": name}); err != nil {
		return errors.Wrap(errors.ErrCodeStore, err, "delete document %q", name)
	}
	return nil
}

func (s *MongoStore) List(ctx context.Context) ([]string, error) {
	opts := options.Find().
		SetProjection(bson.M{"_id": 1}).
		SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeStore, err, "list documents")
	}
	defer cursor.Close(ctx)

	var names []string
	for cursor.Next(ctx) {
		var rec struct {
			ID string `bson:"_id"`
		}
		if err := cursor.Decode(&rec); err != nil {
			return nil, errors.Wrap(errors.ErrCodeStore, err, "decode document key")
		}
		names = append(names, rec.ID)
	}
	if err := cursor.Err(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeStore, err, "list documents")
	}
	return names, nil
}

var _ Store = (*MongoStore)(nil)
