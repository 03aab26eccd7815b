package capability

import (
	"mdviewer/internal/events"
	"mdviewer/internal/state"
	"mdviewer/pkg/plugin"
)

type eventsAPI struct {
	bus      *events.Bus
	pluginID string
}

func (a *eventsAPI) On(event string, handler plugin.EventHandler) plugin.Subscription {
	return a.bus.Subscribe(event, events.Handler(handler))
}

func (a *eventsAPI) Once(event string, handler plugin.EventHandler) plugin.Subscription {
	return a.bus.SubscribeOnce(event, events.Handler(handler))
}

func (a *eventsAPI) Off(event string, sub plugin.Subscription) {
	if sub == nil {
		a.bus.Unsubscribe(event, nil)
		return
	}
	if s, ok := sub.(*events.Subscription); ok {
		a.bus.Unsubscribe(event, s)
	}
}

func (a *eventsAPI) Emit(event string, data any) {
	a.bus.Publish(events.PluginEvent(a.pluginID, event), data)
}

func (a *eventsAPI) EmitGlobal(event string, data any) {
	a.bus.Publish(event, data)
}

type storeAPI struct {
	store    *state.Store
	pluginID string
}

// pluginKey is the store key plugin data is written under.
func pluginKey(pluginID, key string) string {
	return "plugin:" + pluginID + ":" + key
}

func (a *storeAPI) Get(key string) any {
	return a.store.Get(key)
}

func (a *storeAPI) Subscribe(key string, handler plugin.ChangeHandler) plugin.Subscription {
	return a.store.Subscribe(key, state.ChangeHandler(handler))
}

func (a *storeAPI) Theme() string {
	return a.store.Theme()
}

func (a *storeAPI) Language() string {
	return a.store.Language()
}

func (a *storeAPI) Set(key string, value any) bool {
	return a.store.Set(pluginKey(a.pluginID, key), value)
}

func (a *storeAPI) GetPluginData(key string) any {
	return a.store.Get(pluginKey(a.pluginID, key))
}
