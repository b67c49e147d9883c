package ports

import (
	"context"

	"meshcall/internal/core/domain"
)

type MeetingRepository interface {
	Create(ctx context.Context, meeting *domain.Meeting) error
	GetByCode(ctx context.Context, code domain.MeetingCode) (*domain.Meeting, error)
	Delete(ctx context.Context, code domain.MeetingCode) error
}
