package app

import (
	"sync"

	"github.com/sirupsen/logrus"

	"defect-console/internal/domain/port"
)

type trackedResource struct {
	kind port.ResourceKind
	res  port.Releaser
}

// Lifecycle реестр ресурсов сессии: изображения, видеопоток, таймеры.
// ReleaseAll можно вызывать сколько угодно раз.
type Lifecycle struct {
	mu        sync.Mutex
	resources []trackedResource
	log       *logrus.Entry
}

// NewLifecycle создаёт пустой реестр
func NewLifecycle(log *logrus.Entry) *Lifecycle {
	return &Lifecycle{log: log}
}

// Track регистрирует ресурс
func (l *Lifecycle) Track(kind port.ResourceKind, r port.Releaser) {
	if r == nil {
		return
	}
	l.mu.Lock()
	l.resources = append(l.resources, trackedResource{kind: kind, res: r})
	l.mu.Unlock()
}

// Release освобождает один ресурс и убирает его из реестра
func (l *Lifecycle) Release(r port.Releaser) {
	l.mu.Lock()
	var found bool
	for i, tr := range l.resources {
		if tr.res == r {
			l.resources = append(l.resources[:i], l.resources[i+1:]...)
			found = true
			break
		}
	}
	l.mu.Unlock()
	if found {
		l.release(r)
	}
}

// ReleaseKindExcept освобождает ресурсы вида kind, кроме перечисленных.
// Остальные виды не трогаются, в том числе таймер уже запущенного цикла.
func (l *Lifecycle) ReleaseKindExcept(kind port.ResourceKind, keep ...port.Releaser) int {
	l.mu.Lock()
	var taken []port.Releaser
	kept := l.resources[:0]
	for _, tr := range l.resources {
		if tr.kind != kind || containsReleaser(keep, tr.res) {
			kept = append(kept, tr)
			continue
		}
		taken = append(taken, tr.res)
	}
	l.resources = kept
	l.mu.Unlock()

	for i := len(taken) - 1; i >= 0; i-- {
		l.release(taken[i])
	}
	return len(taken)
}

// ReleaseAll освобождает все ресурсы в обратном порядке регистрации
func (l *Lifecycle) ReleaseAll() int {
	l.mu.Lock()
	taken := l.resources
	l.resources = nil
	l.mu.Unlock()

	for i := len(taken) - 1; i >= 0; i-- {
		l.release(taken[i].res)
	}
	if len(taken) > 0 && l.log != nil {
		l.log.WithField("released", len(taken)).Debug("resources released")
	}
	return len(taken)
}

// Active возвращает количество зарегистрированных ресурсов вида kind
func (l *Lifecycle) Active(kind port.ResourceKind) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, tr := range l.resources {
		if tr.kind == kind {
			n++
		}
	}
	return n
}

func containsReleaser(list []port.Releaser, r port.Releaser) bool {
	for _, k := range list {
		if k == r {
			return true
		}
	}
	return false
}

func (l *Lifecycle) release(r port.Releaser) {
	defer func() {
		if p := recover(); p != nil && l.log != nil {
			l.log.WithField("panic", p).Error("resource release panicked")
		}
	}()
	r.Release()
}

// Проверка реализации интерфейса
var _ port.ResourceTracker = (*Lifecycle)(nil)
