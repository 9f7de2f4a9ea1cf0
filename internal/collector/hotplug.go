package collector

import (
	"log/slog"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultHotplugDebounce is used when a non-positive debounce is given.
const DefaultHotplugDebounce = 500 * time.Millisecond

// HotplugWatcher watches the power_supply class directory and signals once
// per burst of entries appearing or disappearing. Attribute writes inside
// the device directories are not reported by sysfs, so only the top level
// is watched.
type HotplugWatcher struct {
	watcher   *fsnotify.Watcher
	debounce  time.Duration
	log       *slog.Logger
	changed   chan struct{}
	stopCh    chan struct{}
	stoppedCh chan struct{}
	mu        sync.Mutex
	running   bool
}

func NewHotplugWatcher(dir string, debounce time.Duration, logger *slog.Logger) (*HotplugWatcher, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if err := watcher.Add(dir); err != nil {
		watcher.Close()
		return nil, err
	}
	if debounce <= 0 {
		debounce = DefaultHotplugDebounce
	}
	return &HotplugWatcher{
		watcher:   watcher,
		debounce:  debounce,
		log:       logger,
		changed:   make(chan struct{}, 1),
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}, nil
}

// Changed receives a value after the set of supplies changed.
func (w *HotplugWatcher) Changed() <-chan struct{} {
	return w.changed
}

// Start begins watching in a goroutine.
func (w *HotplugWatcher) Start() {
	w.mu.Lock()
	if w.running {
		w.mu.Unlock()
		return
	}
	w.running = true
	w.mu.Unlock()

	go w.watchLoop()
}

// Stop stops watching and waits for the loop to exit. The watcher cannot be
// restarted.
func (w *HotplugWatcher) Stop() {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		w.watcher.Close()
		return
	}
	w.mu.Unlock()

	close(w.stopCh)
	<-w.stoppedCh
}

func (w *HotplugWatcher) watchLoop() {
	defer close(w.stoppedCh)
	defer w.watcher.Close()

	var debounceTimer *time.Timer
	var debounceCh <-chan time.Time

	for {
		select {
		case <-w.stopCh:
			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			w.mu.Lock()
			w.running = false
			w.mu.Unlock()
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Op&(fsnotify.Create|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			w.log.Debug("power supply change", "path", event.Name, "op", event.Op.String())

			if debounceTimer != nil {
				debounceTimer.Stop()
			}
			debounceTimer = time.NewTimer(w.debounce)
			debounceCh = debounceTimer.C

		case <-debounceCh:
			select {
			case w.changed <- struct{}{}:
			default:
			}
			debounceTimer = nil
			debounceCh = nil

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.log.Warn("hotplug watch error", "err", err)
		}
	}
}
