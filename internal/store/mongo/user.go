package mongo

import (
	"context"
	"errors"
	"strings"
	"time"

	"securefiles/server/internal/model"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"
)

type userDoc struct {
	ID            string    `bson:"_id"`
	Email         string    `bson:"email"`
	Username      string    `bson:"name"`
	Active        bool      `bson:"active"`
	Role          string    `bson:"role"`
	EmailVerified bool      `bson:"verified"`
	Created       time.Time `bson:"c"`
	Updated       time.Time `bson:"u"`
}

func (d userDoc) model() model.User {
	return model.User{
		ID:            d.ID,
		Email:         d.Email,
		Username:      d.Username,
		Active:        d.Active,
		Role:          model.ParseRole(d.Role),
		EmailVerified: d.EmailVerified,
		CreatedAt:     d.Created,
		UpdatedAt:     d.Updated,
	}
}

func (s *Store) CreateUser(ctx context.Context, u model.User) (model.User, error) {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	if email == "" {
		return model.User{}, errors.New("email_required")
	}
	if u.Role == "" {
		u.Role = model.RoleUnassigned
	}

	now := toMillis(time.Now())
	doc := userDoc{
		ID:            newID(),
		Email:         email,
		Username:      strings.TrimSpace(u.Username),
		Active:        u.Active,
		Role:          string(u.Role),
		EmailVerified: u.EmailVerified,
		Created:       now,
		Updated:       now,
	}
	if _, err := s.users().InsertOne(ctx, doc); err != nil {
		return model.User{}, mapErr(err)
	}
	return doc.model(), nil
}

func (s *Store) findUser(ctx context.Context, filter bson.M) (*model.User, error) {
	var doc userDoc
	if err := s.users().FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, mapErr(err)
	}
	u := doc.model()
	return &u, nil
}

func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	return s.findUser(ctx, bson.M{"_id": id})
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	return s.findUser(ctx, bson.M{"email": strings.ToLower(strings.TrimSpace(email))})
}

func (s *Store) UpdateUser(ctx context.Context, u model.User) (model.User, error) {
	email := strings.ToLower(strings.TrimSpace(u.Email))
	if email == "" {
		return model.User{}, errors.New("email_required")
	}

	update := bson.M{"$set": bson.M{
		"email":    email,
		"name":     strings.TrimSpace(u.Username),
		"active":   u.Active,
		"role":     string(u.Role),
		"verified": u.EmailVerified,
		"u":        toMillis(time.Now()),
	}}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var doc userDoc
	if err := s.users().FindOneAndUpdate(ctx, bson.M{"_id": u.ID}, update, opts).Decode(&doc); err != nil {
		return model.User{}, mapErr(err)
	}
	return doc.model(), nil
}
