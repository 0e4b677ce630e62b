package services

import (
	"context"
	"fmt"
	"log"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"reflecta/internal/database"
	"reflecta/internal/models"
	"reflecta/internal/weekutil"
)

// IntegrationGateway fetches one week of raw activity for a single
// integration type. Implementations return an error on any upstream failure;
// a week with no activity is a valid, empty payload.
type IntegrationGateway interface {
	FetchWeeklyData(ctx context.Context, userID string, week weekutil.Week, integrationType string) (*models.RawIntegrationData, error)
}

// CalendarGateway assembles RawIntegrationData from stored calendar events.
type CalendarGateway struct {
	events *mongo.Collection
}

// NewCalendarGateway creates a gateway over the calendar events collection.
func NewCalendarGateway(mongoDB *database.MongoDB) *CalendarGateway {
	return &CalendarGateway{events: mongoDB.Collection(database.CollectionCalendarEvents)}
}

// FetchWeeklyData returns the user's calendar activity for the week. Events
// marked important become key meetings; every event contributes a context
// line and to the hour total.
func (g *CalendarGateway) FetchWeeklyData(ctx context.Context, userID string, week weekutil.Week, integrationType string) (*models.RawIntegrationData, error) {
	if integrationType != "calendar" {
		return nil, fmt.Errorf("calendar gateway cannot serve integration type %q", integrationType)
	}

	filter := bson.M{
		"userId": userID,
		"start":  bson.M{"$gte": week.Start, "$lte": week.End},
	}
	opts := options.Find().SetSort(bson.M{"start": 1})

	cursor, err := g.events.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query calendar events: %w", err)
	}
	defer cursor.Close(ctx)

	var events []models.CalendarEvent
	if err := cursor.All(ctx, &events); err != nil {
		return nil, fmt.Errorf("failed to decode calendar events: %w", err)
	}

	data := &models.RawIntegrationData{
		IntegrationType: "calendar",
		KeyMeetings:     []models.KeyMeeting{},
		MeetingContext:  []string{},
	}

	var totalMins int
	for _, event := range events {
		data.TotalMeetings++
		totalMins += event.DurationMins

		line := fmt.Sprintf("%s: %s (%d min)", event.Start.Format("Mon Jan 2"), event.Title, event.DurationMins)
		if len(event.Attendees) > 0 {
			line += " with " + strings.Join(event.Attendees, ", ")
		}
		data.MeetingContext = append(data.MeetingContext, line)

		if event.Important {
			data.KeyMeetings = append(data.KeyMeetings, models.KeyMeeting{
				Title:        event.Title,
				Start:        event.Start,
				DurationMins: event.DurationMins,
				Attendees:    event.Attendees,
				Notes:        event.Notes,
			})
		}
	}
	data.MeetingHours = float64(totalMins) / 60.0

	log.Printf("📅 [CALENDAR] Fetched %d events (%.1f hours) for user %s, %s",
		data.TotalMeetings, data.MeetingHours, userID, week.Key())
	return data, nil
}
