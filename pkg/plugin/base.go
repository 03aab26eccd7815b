package plugin

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"
)

// Base carries the bookkeeping every plugin needs: live settings, tracked
// subscriptions and tracked DOM nodes. Plugins embed *Base and implement
// Init; overriding Destroy must still call Base.Destroy.
type Base struct {
	API        *API
	Definition Definition
	Logger     *zap.Logger

	mu            sync.Mutex
	settings      Settings
	subscriptions []Subscription
	elements      []Element
	onChange      func(Settings)
}

// NewBase creates the helper with the definition's default settings.
func NewBase(api *API, def Definition) *Base {
	logger := zap.NewNop()
	if api != nil && api.Logger != nil {
		logger = api.Logger
	}
	return &Base{
		API:        api,
		Definition: def,
		Logger:     logger,
		settings:   def.DefaultSettings(),
	}
}

// Init does nothing.
func (b *Base) Init(context.Context) error {
	return nil
}

// On subscribes to a bus event and tracks the subscription for Destroy.
func (b *Base) On(event string, handler EventHandler) Subscription {
	return b.Track(b.API.Events.On(event, handler))
}

// Subscribe subscribes to a store key and tracks the subscription for
// Destroy.
func (b *Base) Subscribe(key string, handler ChangeHandler) Subscription {
	return b.Track(b.API.Store.Subscribe(key, handler))
}

// Track registers any subscription for release on Destroy.
func (b *Base) Track(sub Subscription) Subscription {
	b.mu.Lock()
	b.subscriptions = append(b.subscriptions, sub)
	b.mu.Unlock()
	return sub
}

// TrackElement registers a DOM node for removal on Destroy.
func (b *Base) TrackElement(el Element) Element {
	b.mu.Lock()
	b.elements = append(b.elements, el)
	b.mu.Unlock()
	return el
}

// Tracked reports how many subscriptions and elements are held.
func (b *Base) Tracked() (subscriptions, elements int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscriptions), len(b.elements)
}

// Destroy releases every tracked subscription and element. A failing
// release does not stop the others; all failures are returned together.
func (b *Base) Destroy(context.Context) error {
	b.mu.Lock()
	subs := b.subscriptions
	elements := b.elements
	b.subscriptions = nil
	b.elements = nil
	b.mu.Unlock()

	var err error
	for _, sub := range subs {
		err = multierr.Append(err, release("subscription", sub.Unsubscribe))
	}
	for _, el := range elements {
		err = multierr.Append(err, release("element", el.Remove))
	}

	b.Logger.Debug("Released plugin resources",
		zap.Int("subscriptions", len(subs)),
		zap.Int("elements", len(elements)))

	return err
}

func release(what string, fn func()) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("release %s: %v", what, r)
		}
	}()
	fn()
	return nil
}

// GetSettings returns a copy of the current settings.
func (b *Base) GetSettings() Settings {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.settings.Clone()
}

// Setting returns one setting value.
func (b *Base) Setting(key string) any {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.settings[key]
}

// UpdateSettings merges partial into the settings and runs the hook
// installed with OnSettingsChange.
func (b *Base) UpdateSettings(partial Settings) {
	b.mu.Lock()
	b.settings = b.settings.Merge(partial)
	current := b.settings.Clone()
	hook := b.onChange
	b.mu.Unlock()

	if hook != nil {
		hook(current)
	}
}

// OnSettingsChange installs the hook run after every UpdateSettings.
func (b *Base) OnSettingsChange(fn func(Settings)) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}
