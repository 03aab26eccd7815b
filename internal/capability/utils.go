package capability

import (
	"strconv"
	"strings"
	"sync"
	"time"

	"mdviewer/internal/clock"

	"github.com/google/uuid"
)

type utilsAPI struct {
	clock    clock.Clock
	pluginID string
}

// GenerateID returns "<prefix>-<pluginID>-<unix millis base36>-<random>".
func (u *utilsAPI) GenerateID(prefix string) string {
	ts := strconv.FormatInt(u.clock.Now().UnixMilli(), 36)
	suffix := strings.ReplaceAll(uuid.NewString(), "-", "")[:9]

	parts := []string{u.pluginID, ts, suffix}
	if prefix != "" {
		parts = append([]string{prefix}, parts...)
	}
	return strings.Join(parts, "-")
}

// Debounce delays fn until delay has passed without another call.
func (u *utilsAPI) Debounce(fn func(), delay time.Duration) func() {
	var (
		mu    sync.Mutex
		timer clock.Timer
	)
	return func() {
		mu.Lock()
		defer mu.Unlock()

		if timer != nil {
			timer.Stop()
		}
		timer = u.clock.AfterFunc(delay, fn)
	}
}

// Throttle runs fn on the first call and ignores further calls until limit
// has passed. The window opens before fn runs, so a panicking fn does not
// leave the throttle closed.
func (u *utilsAPI) Throttle(fn func(), limit time.Duration) func() {
	var (
		mu      sync.Mutex
		blocked bool
	)
	unblock := func() {
		mu.Lock()
		blocked = false
		mu.Unlock()
	}
	return func() {
		mu.Lock()
		if blocked {
			mu.Unlock()
			return
		}
		blocked = true
		mu.Unlock()

		u.clock.AfterFunc(limit, unblock)
		fn()
	}
}
