package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	ea "github.com/panyam/estateauth"
)

// EnsureIndexes creates the indexes the stores rely on for uniqueness and lookups
func EnsureIndexes(ctx context.Context, db *mongo.Database) error {
	_, err := db.Collection(CollectionPrincipals).Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "email", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "googleId", Value: 1}},
			Options: options.Index().SetUnique(true).SetSparse(true),
		},
		{
			Keys:    bson.D{{Key: "refreshTokenHash", Value: 1}},
			Options: options.Index().SetSparse(true),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create %s indexes: %w", CollectionPrincipals, err)
	}

	_, err = db.Collection(CollectionProfiles).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "principalId", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("failed to create %s indexes: %w", CollectionProfiles, err)
	}
	return nil
}

func translate(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, mongo.ErrNoDocuments):
		return ea.ErrNotFound
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("%s: %w", what, ea.ErrDuplicate)
	default:
		return fmt.Errorf("%s: %w", what, err)
	}
}

// =============================================================================
// PrincipalStore
// =============================================================================

// PrincipalStore implements ea.PrincipalStore on the Users collection
type PrincipalStore struct {
	coll *mongo.Collection
}

func NewPrincipalStore(db *mongo.Database) *PrincipalStore {
	return &PrincipalStore{coll: db.Collection(CollectionPrincipals)}
}

func (s *PrincipalStore) CreatePrincipal(ctx context.Context, p *ea.Principal) error {
	if p.ID == "" {
		p.ID = ea.NewID()
	}
	p.Email = ea.NormalizeEmail(p.Email)
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	_, err := s.coll.InsertOne(ctx, principalToDocument(p))
	return translate(err, "create principal")
}

func (s *PrincipalStore) GetPrincipalByID(ctx context.Context, id string) (*ea.Principal, error) {
	return s.findOne(ctx, "_id", id)
}

func (s *PrincipalStore) GetPrincipalByEmail(ctx context.Context, email string) (*ea.Principal, error) {
	return s.findOne(ctx, "email", ea.NormalizeEmail(email))
}

func (s *PrincipalStore) GetPrincipalByGoogleID(ctx context.Context, googleID string) (*ea.Principal, error) {
	return s.findOne(ctx, "googleId", googleID)
}

func (s *PrincipalStore) GetPrincipalByRefreshToken(ctx context.Context, tokenHash string) (*ea.Principal, error) {
	return s.findOne(ctx, "refreshTokenHash", tokenHash)
}

func (s *PrincipalStore) findOne(ctx context.Context, field, value string) (*ea.Principal, error) {
	if value == "" {
		return nil, ea.ErrNotFound
	}
	var doc principalDocument
	if err := s.coll.FindOne(ctx, bson.M{field: value}).Decode(&doc); err != nil {
		return nil, translate(err, "get principal")
	}
	return doc.toPrincipal(), nil
}

func (s *PrincipalStore) UpdatePrincipalIdentity(ctx context.Context, p *ea.Principal) error {
	set := bson.M{
		"email":     ea.NormalizeEmail(p.Email),
		"name":      p.Name,
		"updatedAt": time.Now().UTC(),
	}
	unset := bson.M{}
	setOrUnset(set, unset, "photoUrl", p.PhotoURL)
	setOrUnset(set, unset, "photoSourceUrl", p.PhotoSourceURL)
	setOrUnset(set, unset, "googleId", p.GoogleID)
	return s.update(ctx, bson.M{"_id": p.ID}, set, unset, "update principal")
}

func (s *PrincipalStore) SetRefreshToken(ctx context.Context, principalID, tokenHash string, expiresAt time.Time) error {
	set, unset := tokenUpdate(tokenHash, expiresAt)
	return s.update(ctx, bson.M{"_id": principalID}, set, unset, "set refresh token")
}

// ReplaceRefreshToken filters on both id and current hash so the update
// matches at most once across concurrent callers
func (s *PrincipalStore) ReplaceRefreshToken(ctx context.Context, principalID, currentHash, newHash string, expiresAt time.Time) error {
	if currentHash == "" {
		return ea.ErrTokenMismatch
	}
	set, unset := tokenUpdate(newHash, expiresAt)
	err := s.update(ctx, bson.M{"_id": principalID, "refreshTokenHash": currentHash}, set, unset, "replace refresh token")
	if errors.Is(err, ea.ErrNotFound) {
		if _, gerr := s.GetPrincipalByID(ctx, principalID); gerr != nil {
			return gerr
		}
		return ea.ErrTokenMismatch
	}
	return err
}

func (s *PrincipalStore) update(ctx context.Context, filter, set, unset bson.M, what string) error {
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	result, err := s.coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return translate(err, what)
	}
	if result.MatchedCount == 0 {
		return ea.ErrNotFound
	}
	return nil
}

func tokenUpdate(tokenHash string, expiresAt time.Time) (set, unset bson.M) {
	set = bson.M{"updatedAt": time.Now().UTC()}
	unset = bson.M{}
	if tokenHash == "" {
		unset["refreshTokenHash"] = ""
		unset["refreshTokenExpiresAt"] = ""
		return set, unset
	}
	set["refreshTokenHash"] = tokenHash
	set["refreshTokenExpiresAt"] = expiresAt
	return set, unset
}

// setOrUnset removes empty optional fields so sparse indexes skip them
func setOrUnset(set, unset bson.M, field, value string) {
	if value == "" {
		unset[field] = ""
	} else {
		set[field] = value
	}
}

// =============================================================================
// ProfileStore
// =============================================================================

// ProfileStore implements ea.ProfileStore on the Owners collection
type ProfileStore struct {
	coll *mongo.Collection
}

func NewProfileStore(db *mongo.Database) *ProfileStore {
	return &ProfileStore{coll: db.Collection(CollectionProfiles)}
}

func (s *ProfileStore) GetProfileByPrincipalID(ctx context.Context, principalID string) (*ea.Profile, error) {
	if principalID == "" {
		return nil, ea.ErrNotFound
	}
	var doc profileDocument
	if err := s.coll.FindOne(ctx, bson.M{"principalId": principalID}).Decode(&doc); err != nil {
		return nil, translate(err, "get profile")
	}
	return doc.toProfile(), nil
}

func (s *ProfileStore) CreateProfile(ctx context.Context, p *ea.Profile) error {
	if p.PrincipalID == "" {
		return fmt.Errorf("profile has no principal id")
	}
	if p.ID == "" {
		p.ID = ea.NewID()
	}
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	if p.UpdatedAt.IsZero() {
		p.UpdatedAt = now
	}
	_, err := s.coll.InsertOne(ctx, profileToDocument(p))
	return translate(err, "create profile")
}

func (s *ProfileStore) UpdateProfileIdentity(ctx context.Context, principalID, name, photo string) error {
	if principalID == "" {
		return ea.ErrNotFound
	}
	result, err := s.coll.UpdateOne(ctx, bson.M{"principalId": principalID}, bson.M{
		"$set": bson.M{"name": name, "photo": photo, "updatedAt": time.Now().UTC()},
	})
	if err != nil {
		return translate(err, "update profile identity")
	}
	if result.MatchedCount == 0 {
		return ea.ErrNotFound
	}
	return nil
}

func (s *ProfileStore) UpdateProfile(ctx context.Context, p *ea.Profile) error {
	p.UpdatedAt = time.Now().UTC()
	doc := profileToDocument(p)
	existing, err := s.GetProfileByPrincipalID(ctx, p.PrincipalID)
	if err != nil {
		return err
	}
	doc.ID = existing.ID
	doc.CreatedAt = existing.CreatedAt
	result, err := s.coll.ReplaceOne(ctx, bson.M{"principalId": p.PrincipalID}, doc)
	if err != nil {
		return translate(err, "update profile")
	}
	if result.MatchedCount == 0 {
		return ea.ErrNotFound
	}
	return nil
}
