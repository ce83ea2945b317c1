package mongostore

import (
	"context"
	"encoding/json"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/storage/docstore"
)

// Store keeps each docstore collection in a mongo collection; the raw JSON
// document lives under the `data` field and the caller key under `_id`.
type Store struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ docstore.Store = (*Store)(nil)

func Open(conf *core.Config) (*Store, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(conf.Mongo.URI))
	if err != nil {
		return nil, errors.Wrap(err, "connecting to mongo")
	}
	if err = client.Ping(ctx, nil); err != nil {
		return nil, errors.Wrap(err, "pinging mongo")
	}
	return &Store{client: client, db: client.Database(conf.Mongo.Name)}, nil
}

func (s *Store) Close(ctx context.Context) error { return s.client.Disconnect(ctx) }

type document struct {
	ID   string `bson:"_id"`
	Data bson.M `bson:"data"`
}

func toBSON(doc interface{}) (bson.M, error) {
	raw, err := docstore.Marshal(doc)
	if err != nil {
		return nil, err
	}
	var m bson.M
	if err = bson.UnmarshalExtJSON(raw, false, &m); err != nil {
		return nil, errors.Wrap(err, "decoding document")
	}
	return m, nil
}

func toJSON(d document) (json.RawMessage, error) {
	raw, err := bson.MarshalExtJSON(d.Data, false, false)
	if err != nil {
		return nil, errors.Wrap(err, "encoding document")
	}
	return raw, nil
}

func (s *Store) Get(ctx context.Context, coll, id string) (json.RawMessage, error) {
	var d document
	err := s.db.Collection(coll).FindOne(ctx, bson.M{"_id": id}).Decode(&d)
	if err == mongo.ErrNoDocuments {
		return nil, docstore.ErrNotFound
	}
	if err != nil {
		return nil, unavailable(err, "getting document")
	}
	return toJSON(d)
}

func (s *Store) Create(ctx context.Context, coll, id string, doc interface{}) error {
	data, err := toBSON(doc)
	if err != nil {
		return err
	}
	if _, err = s.db.Collection(coll).InsertOne(ctx, document{ID: id, Data: data}); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return docstore.ErrExists
		}
		return unavailable(err, "creating document")
	}
	return nil
}

func (s *Store) Put(ctx context.Context, coll, id string, doc interface{}) error {
	data, err := toBSON(doc)
	if err != nil {
		return err
	}
	opts := options.Replace().SetUpsert(true)
	if _, err = s.db.Collection(coll).ReplaceOne(ctx, bson.M{"_id": id}, document{ID: id, Data: data}, opts); err != nil {
		return unavailable(err, "putting document")
	}
	return nil
}

func (s *Store) Update(ctx context.Context, coll, id string, fields map[string]interface{}) error {
	set := make(bson.M, len(fields))
	for k, v := range fields {
		set["data."+k] = v
	}
	res, err := s.db.Collection(coll).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return unavailable(err, "updating document")
	}
	if res.MatchedCount == 0 {
		return docstore.ErrNotFound
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, coll, id string) error {
	if _, err := s.db.Collection(coll).DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return unavailable(err, "deleting document")
	}
	return nil
}

func (s *Store) Scan(ctx context.Context, coll string, filters ...docstore.Filter) ([]json.RawMessage, error) {
	filter := make(bson.M, len(filters))
	for _, f := range filters {
		filter["data."+f.Field] = f.Value
	}

	cur, err := s.db.Collection(coll).Find(ctx, filter)
	if err != nil {
		return nil, unavailable(err, "scanning collection")
	}
	defer func() { _ = cur.Close(ctx) }()

	var res []json.RawMessage
	for cur.Next(ctx) {
		var d document
		if err = cur.Decode(&d); err != nil {
			return nil, unavailable(err, "scanning collection")
		}
		raw, err := toJSON(d)
		if err != nil {
			return nil, err
		}
		res = append(res, raw)
	}
	if err = cur.Err(); err != nil {
		return nil, unavailable(err, "scanning collection")
	}
	return res, nil
}

// unavailableError keeps the driver failure message while resolving to
// docstore.ErrUnavailable through errors.Cause.
type unavailableError struct {
	err error
	msg string
}

func unavailable(err error, msg string) error {
	return &unavailableError{err: err, msg: msg}
}

func (e *unavailableError) Error() string { return e.msg + ": " + e.err.Error() }
func (e *unavailableError) Cause() error  { return docstore.ErrUnavailable }
