package dummymeet

import (
	"context"
	"strconv"
	"sync"

	"github.com/trezcool/darasa/core"
)

// Service records meeting calls in memory. For tests.
type Service struct {
	// Err, when set, is returned by every call.
	Err error

	mu              sync.Mutex
	seq             int
	CreatedMeetings []core.Meeting
	DeletedIDs      []string
}

var _ core.MeetingService = (*Service)(nil)

func NewService() *Service {
	return &Service{}
}

func (svc *Service) CreateMeeting(ctx context.Context, nm core.NewMeeting) (core.Meeting, error) {
	if svc.Err != nil {
		return core.Meeting{}, svc.Err
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	svc.seq++
	id := strconv.Itoa(svc.seq)
	m := core.Meeting{
		ID:              id,
		Topic:           nm.Topic,
		StartAt:         nm.StartAt,
		DurationMinutes: nm.DurationMinutes,
		JoinURL:         "https://zoom.example.com/j/" + id,
		StartURL:        "https://zoom.example.com/s/" + id,
		Password:        "pwd" + id,
	}
	svc.CreatedMeetings = append(svc.CreatedMeetings, m)
	return m, nil
}

func (svc *Service) DeleteMeeting(ctx context.Context, id string) error {
	if svc.Err != nil {
		return svc.Err
	}

	svc.mu.Lock()
	defer svc.mu.Unlock()

	svc.DeletedIDs = append(svc.DeletedIDs, id)
	return nil
}
