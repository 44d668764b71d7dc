package wallet

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoLedger stores the ledger in MongoDB. The key is the document _id, so
// a duplicate insert inside the transaction marks a replay. Transactions
// need a replica set deployment.
type MongoLedger struct {
	client        *mongo.Client
	events        *mongo.Collection
	wallets       *mongo.Collection
	subscriptions *mongo.Collection
	now           func() time.Time
}

func NewMongoLedger(client *mongo.Client, dbName string) *MongoLedger {
	db := client.Database(dbName)
	return &MongoLedger{
		client:        client,
		events:        db.Collection("payment_events"),
		wallets:       db.Collection("wallets"),
		subscriptions: db.Collection("subscriptions"),
		now:           time.Now,
	}
}

func (l *MongoLedger) EnsureIndexes(ctx context.Context) error {
	_, err := l.events.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "effect.user_id", Value: 1}, {Key: "received_at", Value: -1}}},
		{Keys: bson.D{{Key: "order_id", Value: 1}}},
	})
	return err
}

func (l *MongoLedger) HasApplied(ctx context.Context, key string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	n, err := l.events.CountDocuments(ctx, bson.M{"_id": key}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (l *MongoLedger) RecordAndApply(ctx context.Context, rec Record) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	session, err := l.client.StartSession()
	if err != nil {
		return false, fmt.Errorf("start session: %w", err)
	}
	defer session.EndSession(ctx)

	applied, err := session.WithTransaction(ctx, func(sc mongo.SessionContext) (interface{}, error) {
		// A failed write aborts the server transaction, so a known key must
		// be caught before the insert rather than by its duplicate error.
		err := l.events.FindOne(sc, bson.M{"_id": rec.Key}, options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
		switch {
		case err == nil:
			return false, nil
		case !errors.Is(err, mongo.ErrNoDocuments):
			return nil, err
		}
		if _, err := l.events.InsertOne(sc, rec); err != nil {
			if mongo.IsDuplicateKeyError(err) {
				return nil, errAlreadyRecorded
			}
			return nil, err
		}
		now := l.now().UTC()
		eff := rec.Effect
		upsert := options.Update().SetUpsert(true)
		switch eff.Kind {
		case EffectCoins:
			_, err = l.wallets.UpdateOne(sc, bson.M{"_id": eff.UserID},
				bson.M{"$inc": bson.M{"coins": eff.Coins}, "$set": bson.M{"updated_at": now}}, upsert)
		case EffectPremium:
			_, err = l.subscriptions.UpdateOne(sc, bson.M{"_id": eff.UserID},
				bson.M{"$set": bson.M{"plan": eff.Plan, "activated_at": now, "expires_at": now.Add(PlanDuration)}}, upsert)
		default:
			err = fmt.Errorf("unknown effect kind %q", eff.Kind)
		}
		if err != nil {
			return nil, err
		}
		return true, nil
	})
	return transactionOutcome(applied, err)
}

// errAlreadyRecorded ends a transaction whose insert lost to a concurrent
// delivery that committed first. It carries no retry label, so the driver
// aborts instead of re-running the callback.
var errAlreadyRecorded = errors.New("payment already recorded")

func transactionOutcome(applied interface{}, err error) (bool, error) {
	if errors.Is(err, errAlreadyRecorded) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	ok, _ := applied.(bool)
	return ok, nil
}

func (l *MongoLedger) Balance(ctx context.Context, userID string) (Balance, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	b := Balance{UserID: userID}
	var w struct {
		Coins int64 `bson:"coins"`
	}
	err := l.wallets.FindOne(ctx, bson.M{"_id": userID}).Decode(&w)
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return Balance{}, err
	}
	b.Coins = w.Coins

	var sub struct {
		Plan      Plan      `bson:"plan"`
		ExpiresAt time.Time `bson:"expires_at"`
	}
	err = l.subscriptions.FindOne(ctx, bson.M{"_id": userID, "expires_at": bson.M{"$gt": l.now().UTC()}}).Decode(&sub)
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
	case err != nil:
		return Balance{}, err
	default:
		b.Plan, b.PlanExpiresAt = sub.Plan, &sub.ExpiresAt
	}
	return b, nil
}
