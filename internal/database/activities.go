package database

import (
	"context"
	"errors"

	"aidimport/internal/model"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// ActivityDatabase is the domain store the import worker writes into
type ActivityDatabase interface {
	// Get an activity by its IATI identifier
	GetActivityByIdentifier(ctx context.Context, iatiIdentifier string) (*model.Activity, error)

	// Insert a new activity
	InsertActivity(ctx context.Context, activity *model.Activity) error

	// Replace an existing activity, keyed by IATI identifier
	ReplaceActivity(ctx context.Context, activity *model.Activity) error

	// Count activities reported by one organisation
	CountActivitiesByOrg(ctx context.Context, orgRef string) (int64, error)
}

// ErrActivityNotFound is returned when no activity matches the identifier
var ErrActivityNotFound = errors.New("activity not found")

func (m *mongoDB) GetActivityByIdentifier(ctx context.Context, iatiIdentifier string) (*model.Activity, error) {
	var activity model.Activity
	err := m.activitiesCol.FindOne(ctx, bson.M{"iati_identifier": iatiIdentifier}).Decode(&activity)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrActivityNotFound
		}
		log.Error().Err(err).Str("iatiIdentifier", iatiIdentifier).Msg("Failed to get activity")
		return nil, err
	}

	return &activity, nil
}

func (m *mongoDB) InsertActivity(ctx context.Context, activity *model.Activity) error {
	_, err := m.activitiesCol.InsertOne(ctx, activity)
	if err != nil {
		log.Error().Err(err).Str("iatiIdentifier", activity.IATIIdentifier).Msg("Failed to insert activity")
		return err
	}

	log.Debug().Str("iatiIdentifier", activity.IATIIdentifier).Msg("Inserted activity")
	return nil
}

func (m *mongoDB) ReplaceActivity(ctx context.Context, activity *model.Activity) error {
	result, err := m.activitiesCol.ReplaceOne(
		ctx,
		bson.M{"iati_identifier": activity.IATIIdentifier},
		activity,
	)
	if err != nil {
		log.Error().Err(err).Str("iatiIdentifier", activity.IATIIdentifier).Msg("Failed to replace activity")
		return err
	}

	if result.MatchedCount == 0 {
		return ErrActivityNotFound
	}

	log.Debug().Str("iatiIdentifier", activity.IATIIdentifier).Msg("Replaced activity")
	return nil
}

func (m *mongoDB) CountActivitiesByOrg(ctx context.Context, orgRef string) (int64, error) {
	count, err := m.activitiesCol.CountDocuments(ctx, bson.M{"reporting_org": orgRef})
	if err != nil {
		log.Error().Err(err).Str("orgRef", orgRef).Msg("Failed to count activities")
		return 0, err
	}

	return count, nil
}
