package port

// ResourceKind вид ресурса, требующего явного освобождения
type ResourceKind string

const (
	ResourceImage  ResourceKind = "image"
	ResourceStream ResourceKind = "stream"
	ResourceTimer  ResourceKind = "timer"
)

// Releaser ресурс, который умеет освобождаться
type Releaser interface {
	Release()
}

// ResourceTracker реестр ресурсов сессии
type ResourceTracker interface {
	// Track регистрирует ресурс для последующего освобождения
	Track(kind ResourceKind, r Releaser)
}
