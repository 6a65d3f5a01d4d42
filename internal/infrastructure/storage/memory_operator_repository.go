package storage

import (
	"context"
	"sort"
	"sync"

	"defect-console/internal/domain/entity"
	"defect-console/internal/domain/port"
)

// MemoryOperatorRepository in-memory хранилище операторов
type MemoryOperatorRepository struct {
	mu        sync.RWMutex
	operators map[int64]*entity.Operator
}

// NewMemoryOperatorRepository создаёт новое in-memory хранилище
func NewMemoryOperatorRepository() *MemoryOperatorRepository {
	return &MemoryOperatorRepository{
		operators: make(map[int64]*entity.Operator),
	}
}

// Get возвращает оператора по ID, создаёт нового если не найден
func (r *MemoryOperatorRepository) Get(ctx context.Context, userID, chatID int64) (*entity.Operator, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if operator, exists := r.operators[userID]; exists {
		return operator, nil
	}

	operator := entity.NewOperator(userID, chatID)
	r.operators[userID] = operator
	return operator, nil
}

// Save сохраняет состояние оператора
func (r *MemoryOperatorRepository) Save(ctx context.Context, operator *entity.Operator) error {
	r.mu.Lock()
	r.operators[operator.ID] = operator
	r.mu.Unlock()

	return nil
}

// UpdateState обновляет состояние оператора
func (r *MemoryOperatorRepository) UpdateState(ctx context.Context, userID int64, state entity.OperatorState) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if operator, exists := r.operators[userID]; exists {
		operator.SetState(state)
	}

	return nil
}

// Subscribers возвращает чаты подписанных операторов в порядке возрастания
func (r *MemoryOperatorRepository) Subscribers(ctx context.Context) ([]int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	chats := make([]int64, 0, len(r.operators))
	for _, operator := range r.operators {
		if operator.Subscribed {
			chats = append(chats, operator.ChatID)
		}
	}
	sort.Slice(chats, func(i, j int) bool { return chats[i] < chats[j] })
	return chats, nil
}

// Проверка реализации интерфейса
var _ port.OperatorRepository = (*MemoryOperatorRepository)(nil)
