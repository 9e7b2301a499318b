// Package mongo stores accounts as documents in a MongoDB collection. Referral
// events run in a multi-document transaction, which needs a replica set.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"chypto_bot/internal/model"
	"chypto_bot/internal/repository"
	"chypto_bot/pkg/logger"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
	"go.uber.org/zap"
)

type Config struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type Store struct {
	client   *mongo.Client
	accounts *mongo.Collection
}

func New(ctx context.Context, cfg Config) (*Store, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	collection := cfg.Collection
	if collection == "" {
		collection = "users"
	}

	logger.Logger().Info("Connected to mongo successfully",
		zap.String("database", cfg.Database),
		zap.String("collection", collection))

	return &Store{
		client:   client,
		accounts: client.Database(cfg.Database).Collection(collection),
	}, nil
}

func (s *Store) Migrate(ctx context.Context) error {
	_, err := s.accounts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: fieldReferredBy, Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("failed to create referredBy index: %w", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *Store) GetAccount(ctx context.Context, id string) (*model.Account, error) {
	var m accountModel
	err := s.accounts.FindOne(ctx, bson.M{fieldID: id}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return fromAccountModel(&m), nil
}

func (s *Store) CreateAccountIfAbsent(ctx context.Context, account *model.Account) (bool, error) {
	createdAt := account.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	res, err := s.accounts.UpdateOne(ctx,
		bson.M{fieldID: account.ID},
		bson.M{"$setOnInsert": bson.M{
			fieldBalance:     int64(0),
			fieldReferredBy:  nil,
			fieldChatAddress: encodeChatAddress(account.ChatAddress),
			fieldCreatedAt:   createdAt,
		}},
		options.UpdateOne().SetUpsert(true),
	)
	if err != nil {
		// two concurrent upserts of the same _id: one of them loses on the unique index
		if mongo.IsDuplicateKeyError(err) {
			return false, nil
		}
		return false, fmt.Errorf("failed to insert account: %w", err)
	}

	return res.UpsertedCount == 1, nil
}

func (s *Store) ConditionalAttachReferral(ctx context.Context, id, referrerID string, reward int64) error {
	return s.attachReferral(ctx, id, referrerID, reward)
}

func (s *Store) CreditReferrer(ctx context.Context, id string, reward int64, refereeID string) error {
	return s.creditReferrer(ctx, id, reward, refereeID)
}

func (s *Store) ApplyReferral(ctx context.Context, event *model.ReferralEvent) error {
	session, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("failed to start session: %w", err)
	}
	defer session.EndSession(ctx)

	_, err = session.WithTransaction(ctx, func(ctx context.Context) (any, error) {
		if err := s.attachReferral(ctx, event.RefereeID, event.ReferrerID, event.RefereeReward); err != nil {
			return nil, err
		}
		return nil, s.creditReferrer(ctx, event.ReferrerID, event.ReferrerReward, event.RefereeID)
	})
	return err
}

func (s *Store) GetReferrals(ctx context.Context, id string) ([]*model.AccountReferral, error) {
	account, err := s.GetAccount(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(account.Referrals) == 0 {
		return []*model.AccountReferral{}, nil
	}

	cursor, err := s.accounts.Find(ctx, bson.M{fieldID: bson.M{"$in": account.Referrals}})
	if err != nil {
		return nil, fmt.Errorf("failed to find referrals: %w", err)
	}

	var models []accountModel
	if err := cursor.All(ctx, &models); err != nil {
		return nil, fmt.Errorf("failed to decode referrals: %w", err)
	}

	refs := make([]*model.AccountReferral, len(models))
	for i := range models {
		refs[i] = &model.AccountReferral{
			ID:        models[i].ID,
			Balance:   models[i].Balance,
			CreatedAt: models[i].CreatedAt,
			JoinedAt:  models[i].joinedAt(),
		}
	}
	sortByJoinTime(refs)
	return refs, nil
}

func (s *Store) attachReferral(ctx context.Context, id, referrerID string, reward int64) error {
	if id == referrerID {
		return repository.ErrSelfReferral
	}

	res, err := s.accounts.UpdateOne(ctx,
		bson.M{fieldID: id, fieldReferredBy: nil},
		bson.M{
			"$set": bson.M{fieldReferredBy: referrerID, fieldReferredAt: time.Now().UTC()},
			"$inc": bson.M{fieldBalance: reward},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to attach referral: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	exists, err := s.exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return repository.ErrNotFound
	}
	return repository.ErrAlreadyLinked
}

func (s *Store) creditReferrer(ctx context.Context, id string, reward int64, refereeID string) error {
	if id == refereeID {
		return repository.ErrSelfReferral
	}

	res, err := s.accounts.UpdateOne(ctx,
		bson.M{fieldID: id, fieldReferrals: bson.M{"$ne": refereeID}},
		bson.M{
			"$inc":      bson.M{fieldBalance: reward},
			"$addToSet": bson.M{fieldReferrals: refereeID},
		},
	)
	if err != nil {
		return fmt.Errorf("failed to credit referrer: %w", err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	exists, err := s.exists(ctx, id)
	if err != nil {
		return err
	}
	if !exists {
		return repository.ErrNotFound
	}
	// already a member: the event was applied before
	return nil
}

func (s *Store) exists(ctx context.Context, id string) (bool, error) {
	n, err := s.accounts.CountDocuments(ctx, bson.M{fieldID: id}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to count accounts: %w", err)
	}
	return n > 0, nil
}

func sortByJoinTime(refs []*model.AccountReferral) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].JoinedAt.Equal(refs[j].JoinedAt) {
			return refs[i].ID < refs[j].ID
		}
		return refs[i].JoinedAt.Before(refs[j].JoinedAt)
	})
}
