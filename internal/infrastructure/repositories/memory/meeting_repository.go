package memory

import (
	"context"
	"fmt"
	"sync"

	"meshcall/internal/core/domain"
	"meshcall/internal/core/ports"
)

type MemoryMeetingRepository struct {
	meetings map[domain.MeetingCode]*domain.Meeting
	mu       sync.RWMutex
}

func NewMemoryMeetingRepository() ports.MeetingRepository {
	return &MemoryMeetingRepository{
		meetings: make(map[domain.MeetingCode]*domain.Meeting),
	}
}

func (r *MemoryMeetingRepository) Create(ctx context.Context, meeting *domain.Meeting) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.meetings[meeting.Code]; exists {
		return fmt.Errorf("meeting already exists: %s", meeting.Code)
	}

	r.meetings[meeting.Code] = meeting
	return nil
}

func (r *MemoryMeetingRepository) GetByCode(ctx context.Context, code domain.MeetingCode) (*domain.Meeting, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	meeting, exists := r.meetings[code]
	if !exists {
		return nil, domain.ErrMeetingNotFound
	}

	return meeting, nil
}

func (r *MemoryMeetingRepository) Delete(ctx context.Context, code domain.MeetingCode) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.meetings[code]; !exists {
		return domain.ErrMeetingNotFound
	}

	delete(r.meetings, code)
	return nil
}
