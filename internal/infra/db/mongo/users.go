package mongo

import (
	"context"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"freightdesk/internal/domain/chat"
)

// userDocument mirrors the users collection shared with the rest of the
// brokerage platform. Only the name fields are read.
type userDocument struct {
	ID             string   `bson:"_id"`
	FirstName      string   `bson:"first_name,omitempty"`
	LastName       string   `bson:"last_name,omitempty"`
	FullName       string   `bson:"full_name,omitempty"`
	Username       string   `bson:"username,omitempty"`
	EmailAddresses []string `bson:"email_addresses,omitempty"`
	Role           string   `bson:"role,omitempty"`
}

func (d userDocument) toInfo() chat.UserInfo {
	info := chat.UserInfo{
		ID:             d.ID,
		FirstName:      d.FirstName,
		LastName:       d.LastName,
		FullName:       d.FullName,
		Username:       d.Username,
		EmailAddresses: d.EmailAddresses,
	}
	if d.Role != "" {
		info.Role = chat.ParseRole(d.Role)
	}
	return info
}

// UserDirectory answers batch user lookups from Mongo.
type UserDirectory struct {
	col *mongo.Collection
}

func NewUserDirectory(db *mongo.Database) *UserDirectory {
	return &UserDirectory{col: db.Collection("users")}
}

func (d *UserDirectory) Lookup(ctx context.Context, ids []string) (map[string]chat.UserInfo, error) {
	out := make(map[string]chat.UserInfo, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	projection := bson.M{"first_name": 1, "last_name": 1, "full_name": 1, "username": 1, "email_addresses": 1, "role": 1}
	cur, err := d.col.Find(ctx, bson.M{"_id": bson.M{"$in": ids}}, options.Find().SetProjection(projection))
	if err != nil {
		return nil, fmt.Errorf("find users: %w", err)
	}
	defer cur.Close(ctx)
	for cur.Next(ctx) {
		var doc userDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode user: %w", err)
		}
		out[doc.ID] = doc.toInfo()
	}
	return out, cur.Err()
}

// Save upserts a directory record. Used for seeding local environments.
func (d *UserDirectory) Save(ctx context.Context, info chat.UserInfo) error {
	doc := userDocument{
		ID:             info.ID,
		FirstName:      info.FirstName,
		LastName:       info.LastName,
		FullName:       info.FullName,
		Username:       info.Username,
		EmailAddresses: info.EmailAddresses,
		Role:           string(info.Role),
	}
	_, err := d.col.ReplaceOne(ctx, bson.M{"_id": info.ID}, doc, options.Replace().SetUpsert(true))
	return err
}
