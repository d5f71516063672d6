// Package meetingsvc provides core.MeetingService implementations.
package meetingsvc

import (
	"context"
	"fmt"

	"github.com/trezcool/darasa/core"
)

// consoleService logs meetings instead of provisioning them. For local runs
// without Zoom credentials.
type consoleService struct {
	logger core.Logger
}

var _ core.MeetingService = (*consoleService)(nil)

func NewConsoleService(logger core.Logger) *consoleService {
	return &consoleService{logger: logger}
}

func (svc consoleService) CreateMeeting(ctx context.Context, nm core.NewMeeting) (core.Meeting, error) {
	svc.logger.Info(fmt.Sprintf("meeting %q at %s (%d min) not provisioned: no provider configured", nm.Topic, nm.StartAt, nm.DurationMinutes))
	return core.Meeting{}, nil
}

func (svc consoleService) DeleteMeeting(ctx context.Context, id string) error {
	svc.logger.Info(fmt.Sprintf("meeting %s not deleted: no provider configured", id))
	return nil
}
