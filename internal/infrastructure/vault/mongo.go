package vault

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/formahub/session-core/internal/core/domain"
	"github.com/formahub/session-core/internal/core/ports"
)

const (
	mongoConnectTimeout = 10 * time.Second
	sessionCollection   = "client_sessions"
)

// MongoConfig captures the minimal settings required to establish a MongoDB
// connection.
type MongoConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// ConnectMongo establishes a MongoDB client, verifies connectivity with a
// ping, and returns both the client and the selected database.
func ConnectMongo(ctx context.Context, cfg MongoConfig) (*mongo.Client, *mongo.Database, error) {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = mongoConnectTimeout
	}

	connectCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}

	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(connectCtx)
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}

	return client, client.Database(cfg.Database), nil
}

// MongoVault persists the session pair as one document per installation
// scope. Replacing or deleting that single document keeps the pair atomic.
type MongoVault struct {
	coll  *mongo.Collection
	scope string
}

// sessionDoc is the stored shape. The identity snapshot is kept as its JSON
// wire form so the closed role/step decoding applies on the way out.
type sessionDoc struct {
	Scope      string `bson:"_id"`
	Credential string `bson:"credential"`
	Identity   string `bson:"identity"`
	UpdatedAt  int64  `bson:"updated_at"`
}

func NewMongoVault(db *mongo.Database, scope string) *MongoVault {
	if scope == "" {
		scope = "default"
	}
	return &MongoVault{coll: db.Collection(sessionCollection), scope: scope}
}

func (v *MongoVault) Load(ctx context.Context) (ports.StoredSession, error) {
	var doc sessionDoc
	if err := v.coll.FindOne(ctx, bson.M{"_id": v.scope}).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return ports.StoredSession{}, domain.ErrNoSession
		}
		return ports.StoredSession{}, fmt.Errorf("load session: %w", err)
	}

	identity, err := decodeIdentity(doc.Identity)
	if err != nil {
		return ports.StoredSession{}, err
	}
	return ports.StoredSession{Credential: doc.Credential, Identity: identity}, nil
}

func (v *MongoVault) Store(ctx context.Context, session ports.StoredSession) error {
	encoded, err := encodeIdentity(session.Identity)
	if err != nil {
		return err
	}

	doc := sessionDoc{
		Scope:      v.scope,
		Credential: session.Credential,
		Identity:   encoded,
		UpdatedAt:  time.Now().Unix(),
	}
	opts := options.Replace().SetUpsert(true)
	if _, err := v.coll.ReplaceOne(ctx, bson.M{"_id": v.scope}, doc, opts); err != nil {
		return fmt.Errorf("store session: %w", err)
	}
	return nil
}

func (v *MongoVault) StoreIdentity(ctx context.Context, identity *domain.Identity) error {
	encoded, err := encodeIdentity(identity)
	if err != nil {
		return err
	}

	update := bson.M{"$set": bson.M{
		"identity":   encoded,
		"updated_at": time.Now().Unix(),
	}}
	res, err := v.coll.UpdateOne(ctx, bson.M{"_id": v.scope}, update)
	if err != nil {
		return fmt.Errorf("store identity: %w", err)
	}
	if res.MatchedCount == 0 {
		return domain.ErrNoSession
	}
	return nil
}

func (v *MongoVault) Credential(ctx context.Context) (string, error) {
	var doc sessionDoc
	opts := options.FindOne().SetProjection(bson.M{"credential": 1})
	if err := v.coll.FindOne(ctx, bson.M{"_id": v.scope}, opts).Decode(&doc); err != nil {
		if err == mongo.ErrNoDocuments {
			return "", domain.ErrNoSession
		}
		return "", fmt.Errorf("load credential: %w", err)
	}
	return doc.Credential, nil
}

func (v *MongoVault) Clear(ctx context.Context) error {
	if _, err := v.coll.DeleteOne(ctx, bson.M{"_id": v.scope}); err != nil {
		return fmt.Errorf("clear session: %w", err)
	}
	return nil
}
