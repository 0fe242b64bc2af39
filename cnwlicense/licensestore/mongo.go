package licensestore

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// validCollectionName matches safe MongoDB collection names.
var validCollectionName = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// MongoOption configures a MongoStore.
type MongoOption func(*MongoStore)

// WithKeyCollection sets the product key collection name. Default: "product_keys".
func WithKeyCollection(name string) MongoOption {
	return func(s *MongoStore) {
		s.keyCollectionName = name
	}
}

// WithActivationCollection sets the activation collection name. Default: "activations".
func WithActivationCollection(name string) MongoOption {
	return func(s *MongoStore) {
		s.activationCollectionName = name
	}
}

// MongoStore implements Store using MongoDB.
// Atomically requires a replica set or sharded cluster (multi-document transactions).
type MongoStore struct {
	client      *mongo.Client
	keys        *mongo.Collection
	activations *mongo.Collection

	keyCollectionName        string
	activationCollectionName string
}

// NewMongoStore creates a new MongoDB-backed store.
// It creates the necessary indexes on initialization.
func NewMongoStore(ctx context.Context, db *mongo.Database, opts ...MongoOption) (*MongoStore, error) {
	s := &MongoStore{
		client:                   db.Client(),
		keyCollectionName:        defaultKeyTable,
		activationCollectionName: defaultActivationTable,
	}
	for _, opt := range opts {
		opt(s)
	}
	for _, name := range []string{s.keyCollectionName, s.activationCollectionName} {
		if !validCollectionName.MatchString(name) {
			return nil, fmt.Errorf("invalid collection name %q: must match [a-zA-Z_][a-zA-Z0-9_]*", name)
		}
	}
	s.keys = db.Collection(s.keyCollectionName)
	s.activations = db.Collection(s.activationCollectionName)

	if err := s.ensureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("create indexes: %w", err)
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.keys.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "key_string", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}
	_, err = s.activations.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "machine_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "product_key_id", Value: 1}},
		},
	})
	return err
}

func (s *MongoStore) queries(lock bool) *mongoQueries {
	return &mongoQueries{keys: s.keys, activations: s.activations, lockKeys: lock}
}

func (s *MongoStore) FindKeyByString(ctx context.Context, keyString string) (*ProductKey, error) {
	return s.queries(false).FindKeyByString(ctx, keyString)
}

func (s *MongoStore) FindActivationByMachine(ctx context.Context, machineID string) (*Activation, error) {
	return s.queries(false).FindActivationByMachine(ctx, machineID)
}

func (s *MongoStore) CountActivations(ctx context.Context, productKeyID string) (int, error) {
	return s.queries(false).CountActivations(ctx, productKeyID)
}

func (s *MongoStore) CreateActivation(ctx context.Context, productKeyID, machineID string) (*Activation, error) {
	return s.queries(false).CreateActivation(ctx, productKeyID, machineID)
}

// Atomically runs fn in a session transaction. Key lookups inside fn write a
// lock_seq counter on the key document, so two transactions activating the
// same key conflict. The losing transaction is rerun by WithTransaction on the
// TransientTransactionError; this plays the part of the row lock wait in
// PostgresStore. Reruns stop when ctx is done. Any other error from fn is
// returned without a rerun.
func (s *MongoStore) Atomically(ctx context.Context, fn func(ctx context.Context, q Queries) error) error {
	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(txCtx context.Context) (any, error) {
		return nil, fn(txCtx, s.queries(true))
	})
	return err
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close(_ context.Context) error {
	return nil // caller manages the mongo.Client lifecycle
}

type mongoQueries struct {
	keys        *mongo.Collection
	activations *mongo.Collection
	lockKeys    bool
}

func (m *mongoQueries) FindKeyByString(ctx context.Context, keyString string) (*ProductKey, error) {
	filter := bson.M{"key_string": keyString}

	var res *mongo.SingleResult
	if m.lockKeys {
		res = m.keys.FindOneAndUpdate(ctx, filter,
			bson.M{"$inc": bson.M{"lock_seq": 1}},
			options.FindOneAndUpdate().SetReturnDocument(options.After),
		)
	} else {
		res = m.keys.FindOne(ctx, filter)
	}
	raw, err := res.Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find key: %w", err)
	}

	var k ProductKey
	if err := decodeDocument(raw, &k); err != nil {
		return nil, fmt.Errorf("decode key: %w", err)
	}
	return &k, nil
}

func (m *mongoQueries) FindActivationByMachine(ctx context.Context, machineID string) (*Activation, error) {
	raw, err := m.activations.FindOne(ctx, bson.M{"machine_id": machineID}).Raw()
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("find activation: %w", err)
	}

	var a Activation
	if err := decodeDocument(raw, &a); err != nil {
		return nil, fmt.Errorf("decode activation: %w", err)
	}
	a.ActivationDate = a.ActivationDate.UTC()
	return &a, nil
}

func (m *mongoQueries) CountActivations(ctx context.Context, productKeyID string) (int, error) {
	count, err := m.activations.CountDocuments(ctx, bson.M{"product_key_id": productKeyID})
	if err != nil {
		return 0, fmt.Errorf("count activations: %w", err)
	}
	return int(count), nil
}

func (m *mongoQueries) CreateActivation(ctx context.Context, productKeyID, machineID string) (*Activation, error) {
	a := Activation{
		ID:             uuid.NewString(),
		ProductKeyID:   productKeyID,
		MachineID:      machineID,
		ActivationDate: time.Now().UTC().Truncate(time.Millisecond),
	}
	if _, err := m.activations.InsertOne(ctx, a); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("create activation for %q: %w", machineID, ErrConflict)
		}
		return nil, fmt.Errorf("create activation: %w", err)
	}
	return &a, nil
}

// decodeDocument decodes raw into v, reading ObjectID values as hex strings.
// Product keys are provisioned outside this package and usually carry a
// driver-generated ObjectID _id; its hex form is what activations reference.
func decodeDocument(raw bson.Raw, v any) error {
	dec := bson.NewDecoder(bson.NewDocumentReader(bytes.NewReader(raw)))
	dec.ObjectIDAsHexString()
	return dec.Decode(v)
}
