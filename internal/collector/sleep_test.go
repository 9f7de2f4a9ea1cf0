package collector

import (
	"testing"
	"time"

	"github.com/godbus/dbus/v5"
)

type fakeSignalConn struct {
	ch chan<- *dbus.Signal
}

func (f *fakeSignalConn) Signal(ch chan<- *dbus.Signal)       { f.ch = ch }
func (f *fakeSignalConn) RemoveSignal(ch chan<- *dbus.Signal) { f.ch = nil }
func (f *fakeSignalConn) Close() error                        { return nil }

func logindSignal(name string, active bool) *dbus.Signal {
	return &dbus.Signal{Name: name, Body: []interface{}{active}}
}

func newTestSleepMonitor(clock *time.Time) *SleepMonitor {
	m := newSleepMonitor(&fakeSignalConn{}, discardLogger())
	m.now = func() time.Time { return *clock }
	return m
}

func TestSleepMonitor_SuspendResume(t *testing.T) {
	clock := time.Unix(1000, 0)
	m := newTestSleepMonitor(&clock)

	m.handle(logindSignal(prepareForSleep, true))
	clock = clock.Add(90 * time.Second)
	m.handle(logindSignal(prepareForSleep, false))

	select {
	case evt := <-m.Wake():
		if evt.SleepTime != 1000 || evt.WakeTime != 1090 || evt.Type != "suspend" {
			t.Fatalf("event = %+v, want suspend 1000-1090", evt)
		}
	default:
		t.Fatal("no wake event")
	}
}

func TestSleepMonitor_Hibernate(t *testing.T) {
	clock := time.Unix(1000, 0)
	m := newTestSleepMonitor(&clock)

	m.handle(logindSignal(prepareForShutdown, true))
	clock = clock.Add(time.Hour)
	m.handle(logindSignal(prepareForSleep, false))

	evt := <-m.Wake()
	if evt.Type != "shutdown" || evt.WakeTime-evt.SleepTime != 3600 {
		t.Fatalf("event = %+v, want shutdown lasting 3600s", evt)
	}
}

func TestSleepMonitor_IgnoresMalformed(t *testing.T) {
	clock := time.Unix(1000, 0)
	m := newTestSleepMonitor(&clock)

	m.handle(nil)
	m.handle(&dbus.Signal{Name: prepareForSleep})
	m.handle(&dbus.Signal{Name: prepareForSleep, Body: []interface{}{"false"}})

	select {
	case evt := <-m.Wake():
		t.Fatalf("unexpected wake event %+v", evt)
	default:
	}
}

func TestSleepMonitor_WakeDoesNotBlock(t *testing.T) {
	clock := time.Unix(1000, 0)
	m := newTestSleepMonitor(&clock)

	// Nobody reads Wake; the second resume must be dropped, not block.
	m.handle(logindSignal(prepareForSleep, false))
	m.handle(logindSignal(prepareForSleep, false))

	evt := <-m.Wake()
	if evt.SleepTime != evt.WakeTime {
		t.Fatalf("event = %+v, want zero-length sleep", evt)
	}
}

func TestSleepMonitor_ListenStopsOnClose(t *testing.T) {
	clock := time.Unix(1000, 0)
	conn := &fakeSignalConn{}
	m := newSleepMonitor(conn, discardLogger())
	m.now = func() time.Time { return clock }

	done := make(chan struct{})
	go func() {
		m.listen()
		close(done)
	}()
	m.Close()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("listen did not return after Close")
	}
}
