package services

import (
	"context"
	"fmt"
	"time"

	"meshcall/internal/core/domain"
	"meshcall/internal/core/ports"
	"meshcall/pkg/utils"

	"go.uber.org/zap"
)

// meetingService is the rendezvous-side registry behind join codes. A
// code resolves to exactly the originator's peer id and nothing else.
type meetingService struct {
	repo   ports.MeetingRepository
	logger *zap.SugaredLogger
}

func NewMeetingService(repo ports.MeetingRepository, logger *zap.SugaredLogger) ports.MeetingService {
	return &meetingService{repo: repo, logger: logger}
}

func (s *meetingService) CreateMeeting(ctx context.Context, originator domain.PeerID) (*domain.Meeting, error) {
	if originator == "" {
		return nil, fmt.Errorf("originator peer id is required")
	}

	meeting := &domain.Meeting{
		Code:       domain.MeetingCode(utils.GenerateMeetingCode()),
		Originator: originator,
		CreatedAt:  time.Now(),
	}
	if err := s.repo.Create(ctx, meeting); err != nil {
		return nil, fmt.Errorf("create meeting: %w", err)
	}

	s.logger.Infow("meeting created", "code", meeting.Code, "originator", originator)
	return meeting, nil
}

func (s *meetingService) ResolveMeeting(ctx context.Context, code domain.MeetingCode) (*domain.Meeting, error) {
	meeting, err := s.repo.GetByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	return meeting, nil
}

func (s *meetingService) EndMeeting(ctx context.Context, code domain.MeetingCode) error {
	if err := s.repo.Delete(ctx, code); err != nil {
		return err
	}
	s.logger.Infow("meeting ended", "code", code)
	return nil
}
