package mongo

import (
	"context"
	"errors"
	"time"

	"securefiles/server/internal/model"
	"securefiles/server/internal/store"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// maxReissueAttempts bounds retries after losing the unused-index race.
const maxReissueAttempts = 32

type tokenDoc struct {
	Token     string    `bson:"_id"`
	UserID    string    `bson:"uid"`
	Created   time.Time `bson:"c"`
	Expires   time.Time `bson:"exp"`
	Used      bool      `bson:"used"`
	LoginIP   string    `bson:"ip,omitempty"`
	UserAgent string    `bson:"ua,omitempty"`
}

func (d tokenDoc) model() model.LoginToken {
	return model.LoginToken{
		Token:     d.Token,
		UserID:    d.UserID,
		CreatedAt: d.Created,
		ExpiresAt: d.Expires,
		Used:      d.Used,
		LoginIP:   d.LoginIP,
		UserAgent: d.UserAgent,
	}
}

func (s *Store) ReissueLoginToken(ctx context.Context, t model.LoginToken) (int, error) {
	if t.Token == "" {
		return 0, errors.New("token_required")
	}
	if _, err := s.GetUserByID(ctx, t.UserID); err != nil {
		return 0, err
	}

	doc := tokenDoc{
		Token:     t.Token,
		UserID:    t.UserID,
		Created:   toMillis(t.CreatedAt),
		Expires:   toMillis(t.ExpiresAt),
		LoginIP:   t.LoginIP,
		UserAgent: t.UserAgent,
	}

	invalidated := 0
	for attempt := 0; attempt < maxReissueAttempts; attempt++ {
		res, err := s.tokens().UpdateMany(ctx,
			bson.M{"uid": t.UserID, "used": false},
			bson.M{"$set": bson.M{"used": true}})
		if err != nil {
			return 0, mapErr(err)
		}
		invalidated += int(res.ModifiedCount)

		_, err = s.tokens().InsertOne(ctx, doc)
		if err == nil {
			return invalidated, nil
		}
		if !isUnusedIndexViolation(err) {
			return 0, mapErr(err)
		}
		// another reissue for this user inserted between our update and insert
	}
	return 0, store.ErrConflict
}

func (s *Store) ConsumeLoginToken(ctx context.Context, token string, now time.Time) (*model.LoginToken, error) {
	filter := bson.M{
		"_id":  token,
		"used": false,
		"exp":  bson.M{"$gt": now.UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc tokenDoc
	err := s.tokens().FindOneAndUpdate(ctx, filter, bson.M{"$set": bson.M{"used": true}}, opts).Decode(&doc)
	if err == nil {
		lt := doc.model()
		return &lt, nil
	}
	if mapErr(err) != store.ErrNotFound {
		return nil, err
	}

	current, err := s.GetLoginToken(ctx, token)
	if err != nil {
		return nil, err
	}
	if err := store.ClassifyToken(*current, now); err != nil {
		return nil, err
	}
	return nil, store.ErrTokenUsed
}

func (s *Store) GetLoginToken(ctx context.Context, token string) (*model.LoginToken, error) {
	var doc tokenDoc
	if err := s.tokens().FindOne(ctx, bson.M{"_id": token}).Decode(&doc); err != nil {
		return nil, mapErr(err)
	}
	lt := doc.model()
	return &lt, nil
}

func (s *Store) PurgeLoginTokens(ctx context.Context, expiredBefore, createdBefore time.Time) (int, error) {
	res, err := s.tokens().DeleteMany(ctx, bson.M{"$or": bson.A{
		bson.M{"exp": bson.M{"$lt": expiredBefore.UTC()}},
		bson.M{"c": bson.M{"$lt": createdBefore.UTC()}},
	}})
	if err != nil {
		return 0, mapErr(err)
	}
	return int(res.DeletedCount), nil
}
