package reload

// ReloadEvent describes one published version, including the original.
type ReloadEvent struct {
	Registry *TypeRegistry
	Type     *ReloadableType
	Version  *Version
	Delta    *TypeDelta
}

// ReloadListener is notified synchronously after a version is published.
// Listeners must not block or reload types re-entrantly.
type ReloadListener interface {
	TypeReloaded(ev ReloadEvent)
}

// ReloadListenerFunc adapts a function to the ReloadListener interface.
type ReloadListenerFunc func(ev ReloadEvent)

func (f ReloadListenerFunc) TypeReloaded(ev ReloadEvent) { f(ev) }
