package entity

// OperatorState состояние оператора в диалоге
type OperatorState string

const (
	StateMainMenu      OperatorState = "main_menu"      // В главном меню
	StateAwaitingPhoto OperatorState = "awaiting_photo" // Ожидание фото платы
	StateProcessing    OperatorState = "processing"     // Обработка изображения
)

// Operator оператор консоли в Telegram
type Operator struct {
	ID         int64         // Telegram User ID
	ChatID     int64         // Telegram Chat ID
	State      OperatorState // Текущее состояние оператора
	Subscribed bool          // Получает уведомления сессии
}

// NewOperator создаёт оператора с начальным состоянием
func NewOperator(userID, chatID int64) *Operator {
	return &Operator{
		ID:     userID,
		ChatID: chatID,
		State:  StateMainMenu,
	}
}

// SetState обновляет состояние оператора
func (o *Operator) SetState(state OperatorState) {
	o.State = state
}
