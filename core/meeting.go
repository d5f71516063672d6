package core

import (
	"context"
	"time"
)

type (
	// Meeting is a provisioned video-meeting resource.
	Meeting struct {
		ID              string
		Topic           string
		StartAt         time.Time
		DurationMinutes int
		JoinURL         string
		StartURL        string
		Password        string
	}

	NewMeeting struct {
		Topic           string
		Agenda          string
		StartAt         time.Time
		DurationMinutes int
	}

	// MeetingService is any service that can provision video meetings.
	// Callers must treat failures as a degraded outcome, not a fatal one.
	MeetingService interface {
		CreateMeeting(ctx context.Context, nm NewMeeting) (Meeting, error)
		DeleteMeeting(ctx context.Context, id string) error
	}
)
