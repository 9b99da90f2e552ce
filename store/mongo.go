// (c) 2026, Ava Labs, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"

	"github.com/ava-labs/solwatch/types"
)

const (
	databaseName = "solana_scanner"

	collAddresses    = "wallet_addresses"
	collTransactions = "transactions"
	collScanStatus   = "scan_status"

	defaultQueryLimit = 100
)

// MongoStore implements Store on a MongoDB database.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
	log    *zap.Logger
}

var _ Store = (*MongoStore)(nil)

// Open connects to uri, pings the deployment, and ensures the indexes
// the service depends on. A failure here is fatal at startup.
func Open(ctx context.Context, uri string, log *zap.Logger) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	s := &MongoStore{
		client: client,
		db:     client.Database(databaseName),
		log:    log,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ensure indexes: %w", err)
	}
	log.Info("connected to mongodb", zap.String("database", databaseName))
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.db.Collection(collAddresses).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "address", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return err
	}

	_, err = s.db.Collection(collTransactions).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "signature", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "from_address", Value: 1}, {Key: "timestamp", Value: -1}}},
		{Keys: bson.D{{Key: "to_address", Value: 1}, {Key: "timestamp", Value: -1}}},
	})
	return err
}

func (s *MongoStore) InsertAddress(ctx context.Context, addr *types.WalletAddress) error {
	_, err := s.db.Collection(collAddresses).InsertOne(ctx, addr)
	return mapDuplicate(err, ErrDuplicateAddress)
}

func (s *MongoStore) ActiveAddresses(ctx context.Context) ([]types.WalletAddress, error) {
	cur, err := s.db.Collection(collAddresses).Find(ctx, bson.M{"is_active": true})
	if err != nil {
		return nil, err
	}
	var out []types.WalletAddress
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) DeactivateAddress(ctx context.Context, address string) error {
	res, err := s.db.Collection(collAddresses).UpdateOne(ctx,
		bson.M{"address": address, "is_active": true},
		bson.M{"$set": bson.M{"is_active": false, "updated_at": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *MongoStore) InsertTransaction(ctx context.Context, tx *types.Transaction) error {
	_, err := s.db.Collection(collTransactions).InsertOne(ctx, tx)
	return mapDuplicate(err, ErrDuplicateSignature)
}

func (s *MongoStore) FindTransaction(ctx context.Context, signature string) (*types.Transaction, error) {
	var tx types.Transaction
	err := s.db.Collection(collTransactions).
		FindOne(ctx, bson.M{"signature": signature}).
		Decode(&tx)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func (s *MongoStore) QueryTransactions(ctx context.Context, address string, limit, offset int64) ([]types.Transaction, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}}).
		SetLimit(clampLimit(limit)).
		SetSkip(max(offset, 0))

	cur, err := s.db.Collection(collTransactions).Find(ctx, txFilter(address), opts)
	if err != nil {
		return nil, err
	}
	var out []types.Transaction
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *MongoStore) ScanStatus(ctx context.Context) (*types.ScanStatus, error) {
	var st types.ScanStatus
	err := s.db.Collection(collScanStatus).
		FindOne(ctx, bson.M{"_id": types.ScanStatusID}).
		Decode(&st)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *MongoStore) UpsertScanStatus(ctx context.Context, status *types.ScanStatus) error {
	status.ID = types.ScanStatusID
	_, err := s.db.Collection(collScanStatus).ReplaceOne(ctx,
		bson.M{"_id": types.ScanStatusID},
		status,
		options.Replace().SetUpsert(true),
	)
	return err
}

func (s *MongoStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, nil)
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// txFilter matches transactions touching address from either side. An
// empty address matches everything.
func txFilter(address string) bson.M {
	if address == "" {
		return bson.M{}
	}
	return bson.M{"$or": bson.A{
		bson.M{"from_address": address},
		bson.M{"to_address": address},
	}}
}

// clampLimit applies the default page size to non-positive limits.
func clampLimit(limit int64) int64 {
	if limit <= 0 {
		return defaultQueryLimit
	}
	return limit
}

// mapDuplicate rewrites unique-index violations to the given sentinel
// and passes every other error through.
func mapDuplicate(err, sentinel error) error {
	if mongo.IsDuplicateKeyError(err) {
		return sentinel
	}
	return err
}
