package app

import (
	"sort"
	"strings"
	"sync"

	"defect-console/internal/domain/entity"
)

// FilterAll селектор, пропускающий все дефекты
const FilterAll = "all"

// ApplyFilter возвращает дефекты результата, подходящие под селектор.
// Для "all" возвращается исходный срез, иначе устойчивое подмножество по типу без учёта регистра.
func ApplyFilter(result *entity.DetectionResult, selector string) []entity.Defect {
	if result == nil {
		return []entity.Defect{}
	}
	sel := strings.ToLower(strings.TrimSpace(selector))
	if sel == "" || sel == FilterAll {
		return result.Defects
	}
	out := make([]entity.Defect, 0, len(result.Defects))
	for _, d := range result.Defects {
		if strings.EqualFold(strings.TrimSpace(string(d.Type)), sel) {
			out = append(out, d)
		}
	}
	return out
}

// ResultFilter хранит выбранный селектор и набор вариантов, накопленный за сессию
type ResultFilter struct {
	mu       sync.RWMutex
	selector string
	seen     map[string]struct{}
}

// NewResultFilter создаёт фильтр с селектором "all"
func NewResultFilter() *ResultFilter {
	return &ResultFilter{selector: FilterAll, seen: make(map[string]struct{})}
}

// Observe добавляет типы дефектов результата в набор вариантов
func (f *ResultFilter) Observe(result *entity.DetectionResult) {
	if result == nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, d := range result.Defects {
		t := string(d.Type.Normalize())
		if t == "" || t == FilterAll {
			continue
		}
		f.seen[t] = struct{}{}
	}
}

// Select меняет селектор. Возвращает false, если значение не изменилось.
func (f *ResultFilter) Select(selector string) bool {
	sel := strings.ToLower(strings.TrimSpace(selector))
	if sel == "" {
		sel = FilterAll
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.selector == sel {
		return false
	}
	f.selector = sel
	return true
}

// Selector возвращает текущий селектор
func (f *ResultFilter) Selector() string {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.selector
}

// Options возвращает "all" и все встреченные типы в алфавитном порядке
func (f *ResultFilter) Options() []string {
	f.mu.RLock()
	types := make([]string, 0, len(f.seen))
	for t := range f.seen {
		types = append(types, t)
	}
	f.mu.RUnlock()
	sort.Strings(types)
	return append([]string{FilterAll}, types...)
}

// Apply фильтрует результат текущим селектором
func (f *ResultFilter) Apply(result *entity.DetectionResult) []entity.Defect {
	return ApplyFilter(result, f.Selector())
}

// Reset сбрасывает селектор и набор вариантов
func (f *ResultFilter) Reset() {
	f.mu.Lock()
	f.selector = FilterAll
	f.seen = make(map[string]struct{})
	f.mu.Unlock()
}
