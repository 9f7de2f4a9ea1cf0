package collector

import (
	"log/slog"
	"time"

	"github.com/godbus/dbus/v5"
)

const (
	logindManager      = "org.freedesktop.login1.Manager"
	prepareForSleep    = logindManager + ".PrepareForSleep"
	prepareForShutdown = logindManager + ".PrepareForShutdown"
)

type signalConn interface {
	Signal(ch chan<- *dbus.Signal)
	RemoveSignal(ch chan<- *dbus.Signal)
	Close() error
}

// SleepMonitor listens for systemd-logind PrepareForSleep/PrepareForShutdown
// signals. Each resume produces a SleepEvent on Wake so the daemon can take a
// fresh sample right away; battery readings across a sleep are otherwise
// stale until the next tick.
type SleepMonitor struct {
	conn signalConn
	done chan struct{}
	wake chan SleepEvent
	log  *slog.Logger
	now  func() time.Time

	sleepAt   time.Time
	sleepType string
}

// NewSleepMonitor creates a new sleep monitor connected to the system bus.
func NewSleepMonitor(logger *slog.Logger) (*SleepMonitor, error) {
	conn, err := dbus.SystemBus()
	if err != nil {
		return nil, err
	}

	for _, member := range []string{"PrepareForSleep", "PrepareForShutdown"} {
		err = conn.AddMatchSignal(
			dbus.WithMatchInterface(logindManager),
			dbus.WithMatchMember(member),
		)
		if err != nil {
			return nil, err
		}
	}

	m := newSleepMonitor(conn, logger)
	go m.listen()
	return m, nil
}

func newSleepMonitor(conn signalConn, logger *slog.Logger) *SleepMonitor {
	return &SleepMonitor{
		conn: conn,
		done: make(chan struct{}),
		wake: make(chan SleepEvent, 1),
		log:  logger,
		now:  time.Now,
	}
}

// Wake returns a channel that receives an event each time the system wakes
// from sleep.
func (m *SleepMonitor) Wake() <-chan SleepEvent {
	return m.wake
}

// Close stops the monitor.
func (m *SleepMonitor) Close() {
	close(m.done)
}

func (m *SleepMonitor) listen() {
	ch := make(chan *dbus.Signal, 16)
	m.conn.Signal(ch)
	defer m.conn.RemoveSignal(ch)

	for {
		select {
		case sig := <-ch:
			m.handle(sig)
		case <-m.done:
			return
		}
	}
}

func (m *SleepMonitor) handle(sig *dbus.Signal) {
	if sig == nil || len(sig.Body) < 1 {
		return
	}
	active, ok := sig.Body[0].(bool)
	if !ok {
		return
	}

	switch sig.Name {
	case prepareForShutdown:
		if active {
			m.log.Info("system preparing for shutdown/hibernate")
			m.sleepAt, m.sleepType = m.now(), "shutdown"
		}
	case prepareForSleep:
		if active {
			m.log.Info("system going to sleep")
			m.sleepAt, m.sleepType = m.now(), "suspend"
			return
		}
		wakeAt := m.now()
		// A wake without a matching sleep signal records a zero-length sleep.
		evt := SleepEvent{SleepTime: wakeAt.Unix(), WakeTime: wakeAt.Unix(), Type: "suspend"}
		if !m.sleepAt.IsZero() {
			evt.SleepTime = m.sleepAt.Unix()
			evt.Type = m.sleepType
		}
		m.sleepAt, m.sleepType = time.Time{}, ""
		m.log.Info("system woke up", "slept_secs", evt.WakeTime-evt.SleepTime)
		select {
		case m.wake <- evt:
		default:
		}
	}
}
