package stats

import (
	"context"
	"strings"
	"time"

	"ms-reservation/internal/apperr"
	"ms-reservation/internal/models"
)

type Store interface {
	UserStats(ctx context.Context, userID string, today models.Date) (models.UserStats, error)
}

// Service is read-only; it never changes booking state.
type Service struct {
	DB  Store
	loc *time.Location
}

func NewService(store Store, loc *time.Location) *Service {
	if loc == nil {
		loc = time.UTC
	}
	return &Service{DB: store, loc: loc}
}

// Stats summarizes the user's bookings as of now. Today is derived once and
// shared by every count.
func (s *Service) Stats(ctx context.Context, userID string, now time.Time) (models.UserStats, error) {
	if strings.TrimSpace(userID) == "" {
		return models.UserStats{}, apperr.ValidationError{Field: "user_id", Msg: "is required"}
	}
	today := models.DateOf(now.In(s.loc))
	st, err := s.DB.UserStats(ctx, userID, today)
	if err != nil {
		return models.UserStats{}, apperr.Internal("booking stats", err)
	}
	return st, nil
}
