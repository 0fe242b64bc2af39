package licensestore

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// Set CNW_TEST_MONGO_URL to a replica set to run these tests.
func newTestMongoStore(t *testing.T, keys ...ProductKey) Store {
	t.Helper()
	s, _ := newTestMongoDB(t, keys...)
	return s
}

func newTestMongoDB(t *testing.T, keys ...ProductKey) (*MongoStore, *mongo.Database) {
	t.Helper()
	uri := os.Getenv("CNW_TEST_MONGO_URL")
	if uri == "" {
		t.Skip("CNW_TEST_MONGO_URL not set")
	}
	ctx := context.Background()

	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	db := client.Database("cnw_test_" + strings.ReplaceAll(uuid.NewString()[:8], "-", ""))
	t.Cleanup(func() {
		db.Drop(context.Background())
		client.Disconnect(context.Background())
	})

	s, err := NewMongoStore(ctx, db)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	for _, k := range keys {
		if _, err := db.Collection(defaultKeyTable).InsertOne(ctx, k); err != nil {
			t.Fatalf("seed key: %v", err)
		}
	}
	return s, db
}

func TestMongoStore(t *testing.T) {
	runStoreSuite(t, newTestMongoStore)
}

func TestDecodeDocument_ObjectIDAsHex(t *testing.T) {
	oid := bson.NewObjectID()
	raw, err := bson.Marshal(bson.D{
		{Key: "_id", Value: oid},
		{Key: "key_string", Value: "ABC-123"},
		{Key: "max_activations", Value: 2},
		{Key: "is_active", Value: true},
	})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}

	var k ProductKey
	if err := decodeDocument(raw, &k); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k.ID != oid.Hex() {
		t.Errorf("expected id %s, got %s", oid.Hex(), k.ID)
	}
	if k.KeyString != "ABC-123" || k.MaxActivations != 2 || !k.IsActive {
		t.Errorf("unexpected key %+v", k)
	}
}

func TestDecodeDocument_StringID(t *testing.T) {
	raw, err := bson.Marshal(ProductKey{ID: "pk-1", KeyString: "ABC-123", MaxActivations: 1, IsActive: true})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var k ProductKey
	if err := decodeDocument(raw, &k); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if k.ID != "pk-1" {
		t.Errorf("expected id pk-1, got %s", k.ID)
	}
}

func TestMongoStore_KeyWithObjectID(t *testing.T) {
	s, db := newTestMongoDB(t)
	ctx := context.Background()

	res, err := db.Collection(defaultKeyTable).InsertOne(ctx, bson.M{
		"key_string":      "OID-KEY",
		"max_activations": 1,
		"is_active":       true,
	})
	if err != nil {
		t.Fatalf("seed key: %v", err)
	}
	oid := res.InsertedID.(bson.ObjectID)

	err = s.Atomically(ctx, func(ctx context.Context, q Queries) error {
		k, err := q.FindKeyByString(ctx, "OID-KEY")
		if err != nil {
			return err
		}
		if k.ID != oid.Hex() {
			t.Errorf("expected id %s, got %s", oid.Hex(), k.ID)
		}
		_, err = q.CreateActivation(ctx, k.ID, "mach-A")
		return err
	})
	if err != nil {
		t.Fatalf("atomically: %v", err)
	}

	a, err := s.FindActivationByMachine(ctx, "mach-A")
	if err != nil {
		t.Fatalf("find activation: %v", err)
	}
	if a.ProductKeyID != oid.Hex() {
		t.Errorf("expected activation on %s, got %s", oid.Hex(), a.ProductKeyID)
	}
	if n, _ := s.CountActivations(ctx, oid.Hex()); n != 1 {
		t.Errorf("expected 1 activation, got %d", n)
	}
}
