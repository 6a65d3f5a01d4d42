package app

import (
	"context"

	"defect-console/internal/domain/entity"
	"defect-console/internal/domain/port"
)

// OperatorService управляет состоянием операторов в чате
type OperatorService struct {
	repo port.OperatorRepository
}

func NewOperatorService(repo port.OperatorRepository) *OperatorService {
	return &OperatorService{repo: repo}
}

func (s *OperatorService) Get(ctx context.Context, userID, chatID int64) (*entity.Operator, error) {
	return s.repo.Get(ctx, userID, chatID)
}

func (s *OperatorService) SetState(ctx context.Context, userID, chatID int64, state entity.OperatorState) (*entity.Operator, error) {
	operator, err := s.repo.Get(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}

	operator.SetState(state)
	if err := s.repo.Save(ctx, operator); err != nil {
		return nil, err
	}

	return operator, nil
}

func (s *OperatorService) BeginCheck(ctx context.Context, userID, chatID int64) (*entity.Operator, error) {
	return s.SetState(ctx, userID, chatID, entity.StateAwaitingPhoto)
}

func (s *OperatorService) Cancel(ctx context.Context, userID, chatID int64) (*entity.Operator, error) {
	return s.SetState(ctx, userID, chatID, entity.StateMainMenu)
}

// Subscribe включает или выключает уведомления сессии для оператора
func (s *OperatorService) Subscribe(ctx context.Context, userID, chatID int64, on bool) (*entity.Operator, error) {
	operator, err := s.repo.Get(ctx, userID, chatID)
	if err != nil {
		return nil, err
	}

	operator.Subscribed = on
	if err := s.repo.Save(ctx, operator); err != nil {
		return nil, err
	}
	return operator, nil
}

// Subscribers возвращает чаты для рассылки уведомлений
func (s *OperatorService) Subscribers(ctx context.Context) ([]int64, error) {
	return s.repo.Subscribers(ctx)
}
