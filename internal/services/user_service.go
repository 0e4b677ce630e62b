package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"reflecta/internal/database"
	"reflecta/internal/models"

	gocache "github.com/patrickmn/go-cache"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

const (
	profileCacheTTL     = 5 * time.Minute
	profileCacheCleanup = 10 * time.Minute
)

// UserService is the user profile store. Profiles are cached briefly because
// the scheduler and handler both read them on every run.
type UserService struct {
	users *mongo.Collection
	cache *gocache.Cache
}

// NewUserService creates a new user service
func NewUserService(mongoDB *database.MongoDB) *UserService {
	return &UserService{
		users: mongoDB.Collection(database.CollectionUsers),
		cache: gocache.New(profileCacheTTL, profileCacheCleanup),
	}
}

// GetUserProfile returns the user's profile, or (nil, nil) when no profile
// exists. Absence is a domain outcome for callers, not an error.
func (s *UserService) GetUserProfile(ctx context.Context, userID string) (*models.User, error) {
	if cached, found := s.cache.Get(userID); found {
		user := cached.(models.User)
		return &user, nil
	}

	var user models.User
	err := s.users.FindOne(ctx, bson.M{"userId": userID}).Decode(&user)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load user profile: %w", err)
	}

	s.cache.Set(userID, user, gocache.DefaultExpiration)
	return &user, nil
}

// GetReflectionPreferences returns the user's reflection preferences.
func (s *UserService) GetReflectionPreferences(ctx context.Context, userID string) (*models.ReflectionPreferences, error) {
	user, err := s.GetUserProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, fmt.Errorf("no profile for user %s", userID)
	}
	prefs := user.ReflectionPreferences
	return &prefs, nil
}

// ListAutoGenerateUsers returns every user with automatic generation enabled.
// Reads straight from the collection: the hourly scan must not act on a
// cached preference flip.
func (s *UserService) ListAutoGenerateUsers(ctx context.Context) ([]models.User, error) {
	cursor, err := s.users.Find(ctx, bson.M{"reflectionPreferences.autoGenerate": true})
	if err != nil {
		return nil, fmt.Errorf("failed to query auto-generate users: %w", err)
	}
	defer cursor.Close(ctx)

	var users []models.User
	if err := cursor.All(ctx, &users); err != nil {
		return nil, fmt.Errorf("failed to decode users: %w", err)
	}
	return users, nil
}

// InvalidateProfile drops the cached profile after a preferences update.
func (s *UserService) InvalidateProfile(userID string) {
	s.cache.Delete(userID)
}
