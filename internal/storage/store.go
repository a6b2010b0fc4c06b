// Package storage provides MongoDB storage for volwatch.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/leeaandrob/volwatch/internal/models"
)

// ErrNotFound is returned when a lookup matches nothing.
var ErrNotFound = errors.New("not found")

// Store provides access to all MongoDB collections.
type Store struct {
	client        *mongo.Client
	db            *mongo.Database
	notifications *mongo.Collection
	calendars     *mongo.Collection
}

// NewStore creates a new storage connection.
func NewStore(ctx context.Context, uri, dbName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	db := client.Database(dbName)
	log.Info().Str("db", dbName).Msg("Connected to MongoDB")

	store := &Store{
		client:        client,
		db:            db,
		notifications: db.Collection("notifications"),
		calendars:     db.Collection("calendar_snapshots"),
	}

	if err := store.createIndexes(ctx); err != nil {
		log.Warn().Err(err).Msg("Failed to create some indexes")
	}

	return store, nil
}

// Close closes the database connection.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *Store) createIndexes(ctx context.Context) error {
	notificationIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "notification_id", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "created_at", Value: -1}}},
		{Keys: bson.D{{Key: "current_state", Value: 1}, {Key: "current_phase", Value: 1}}},
		{Keys: bson.D{{Key: "delivered", Value: 1}}},
	}
	if _, err := s.notifications.Indexes().CreateMany(ctx, notificationIndexes); err != nil {
		log.Warn().Err(err).Msg("Failed to create notification indexes")
	}

	calendarIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "fetched_at", Value: -1}}},
	}
	if _, err := s.calendars.Indexes().CreateMany(ctx, calendarIndexes); err != nil {
		log.Warn().Err(err).Msg("Failed to create calendar snapshot indexes")
	}

	return nil
}

// ============================================================================
// NOTIFICATION OPERATIONS
// ============================================================================

// SaveNotification stores a notification record.
func (s *Store) SaveNotification(ctx context.Context, rec *models.NotificationRecord) error {
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now()
	}
	_, err := s.notifications.InsertOne(ctx, rec)
	return err
}

// GetRecentNotifications returns the newest records first.
func (s *Store) GetRecentNotifications(ctx context.Context, limit int) ([]models.NotificationRecord, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetLimit(int64(limit))
	return s.findNotifications(ctx, bson.M{}, opts)
}

// GetUndeliveredNotifications returns records whose delivery failed.
func (s *Store) GetUndeliveredNotifications(ctx context.Context, since time.Duration) ([]models.NotificationRecord, error) {
	filter := bson.M{
		"delivered":  false,
		"created_at": bson.M{"$gte": time.Now().Add(-since)},
	}
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})
	return s.findNotifications(ctx, filter, opts)
}

func (s *Store) findNotifications(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]models.NotificationRecord, error) {
	cursor, err := s.notifications.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	records := []models.NotificationRecord{}
	if err := cursor.All(ctx, &records); err != nil {
		return nil, err
	}
	return records, nil
}

// ============================================================================
// CALENDAR SNAPSHOT OPERATIONS
// ============================================================================

// SaveCalendarSnapshot stores the events fetched from a source.
func (s *Store) SaveCalendarSnapshot(ctx context.Context, snap *models.CalendarSnapshot) error {
	if snap.FetchedAt.IsZero() {
		snap.FetchedAt = time.Now()
	}
	_, err := s.calendars.InsertOne(ctx, snap)
	return err
}

// GetLatestCalendarSnapshot returns the most recent calendar snapshot.
func (s *Store) GetLatestCalendarSnapshot(ctx context.Context) (*models.CalendarSnapshot, error) {
	var snap models.CalendarSnapshot
	opts := options.FindOne().SetSort(bson.D{{Key: "fetched_at", Value: -1}})
	if err := s.calendars.FindOne(ctx, bson.M{}, opts).Decode(&snap); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &snap, nil
}

// CleanOldSnapshots removes calendar snapshots older than the given duration.
func (s *Store) CleanOldSnapshots(ctx context.Context, olderThan time.Duration) (int64, error) {
	filter := bson.M{"fetched_at": bson.M{"$lt": time.Now().Add(-olderThan)}}
	result, err := s.calendars.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return result.DeletedCount, nil
}

// ============================================================================
// STATS OPERATIONS
// ============================================================================

// Stats holds general statistics.
type Stats struct {
	TotalNotifications int64 `json:"total_notifications"`
	Undelivered        int64 `json:"undelivered"`
	TodayNotifications int64 `json:"today_notifications"`
	Repaired           int64 `json:"repaired"`
	CalendarSnapshots  int64 `json:"calendar_snapshots"`
}

// GetStats returns general statistics.
func (s *Store) GetStats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}

	var err error
	stats.TotalNotifications, err = s.notifications.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, err
	}

	stats.Undelivered, err = s.notifications.CountDocuments(ctx, bson.M{"delivered": false})
	if err != nil {
		return nil, err
	}

	today := time.Now().Truncate(24 * time.Hour)
	stats.TodayNotifications, err = s.notifications.CountDocuments(ctx, bson.M{
		"created_at": bson.M{"$gte": today},
	})
	if err != nil {
		return nil, err
	}

	stats.Repaired, err = s.notifications.CountDocuments(ctx, bson.M{"repaired": true})
	if err != nil {
		return nil, err
	}

	stats.CalendarSnapshots, err = s.calendars.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, err
	}

	return stats, nil
}
