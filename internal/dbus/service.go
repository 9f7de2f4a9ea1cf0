package dbus

import (
	"encoding/json"
	"fmt"

	godbus "github.com/godbus/dbus/v5"
	"github.com/godbus/dbus/v5/introspect"

	"github.com/cptspacemanspiff/battery-probe/internal/collector"
	"github.com/cptspacemanspiff/battery-probe/internal/storage"
)

const (
	busName   = "org.batteryprobe.Monitor"
	objPath   = "/org/batteryprobe/Monitor"
	ifaceName = "org.batteryprobe.Monitor"

	maxRangeSeconds = 365 * 86400
)

const introspectXML = `
<node>
  <interface name="` + ifaceName + `">
    <method name="GetBatteries">
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetLatest">
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetHistory">
      <arg direction="in" type="x" name="from_epoch"/>
      <arg direction="in" type="x" name="to_epoch"/>
      <arg direction="out" type="s" name="json"/>
    </method>
    <method name="GetSleepEvents">
      <arg direction="in" type="x" name="from_epoch"/>
      <arg direction="in" type="x" name="to_epoch"/>
      <arg direction="out" type="s" name="json"/>
    </method>
  </interface>
` + introspect.IntrospectDataString + `
</node>`

// Sampler reads the batteries present right now.
type Sampler interface {
	Collect() ([]collector.Sample, error)
}

// Service exposes live and stored battery data over D-Bus.
type Service struct {
	store   *storage.DB
	sampler Sampler
}

// NewService creates a new D-Bus service.
func NewService(store *storage.DB, sampler Sampler) *Service {
	return &Service{store: store, sampler: sampler}
}

// Export registers the service on the session bus.
func (s *Service) Export() (*godbus.Conn, error) {
	conn, err := godbus.SessionBus()
	if err != nil {
		return nil, fmt.Errorf("connect session bus: %w", err)
	}

	conn.Export(s, objPath, ifaceName)
	conn.Export(introspect.Introspectable(introspectXML), objPath, "org.freedesktop.DBus.Introspectable")

	reply, err := conn.RequestName(busName, godbus.NameFlagDoNotQueue)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("request name: %w", err)
	}
	if reply != godbus.RequestNameReplyPrimaryOwner {
		conn.Close()
		return nil, fmt.Errorf("name %s already taken", busName)
	}

	return conn, nil
}

func validateRange(fromEpoch, toEpoch int64) *godbus.Error {
	switch {
	case fromEpoch < 0:
		return godbus.MakeFailedError(fmt.Errorf("from_epoch must not be negative, got %d", fromEpoch))
	case toEpoch < fromEpoch:
		return godbus.MakeFailedError(fmt.Errorf("to_epoch %d is before from_epoch %d", toEpoch, fromEpoch))
	case toEpoch-fromEpoch > maxRangeSeconds:
		return godbus.MakeFailedError(fmt.Errorf("range of %d seconds exceeds %d", toEpoch-fromEpoch, maxRangeSeconds))
	}
	return nil
}

func marshal(v any) (string, *godbus.Error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	return string(data), nil
}

// GetBatteries reads every battery now and returns them as JSON.
func (s *Service) GetBatteries() (string, *godbus.Error) {
	samples, err := s.sampler.Collect()
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	if samples == nil {
		samples = []collector.Sample{}
	}
	return marshal(samples)
}

// GetLatest returns the last stored sample of each battery as JSON.
func (s *Service) GetLatest() (string, *godbus.Error) {
	samples, err := s.store.LatestSnapshots()
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	if samples == nil {
		samples = []collector.Sample{}
	}
	return marshal(samples)
}

// GetHistory returns stored samples and sleep events in a time range as JSON.
func (s *Service) GetHistory(fromEpoch, toEpoch int64) (string, *godbus.Error) {
	if err := validateRange(fromEpoch, toEpoch); err != nil {
		return "", err
	}
	samples, err := s.store.SnapshotsInRange(fromEpoch, toEpoch)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	events, err := s.store.SleepEventsInRange(fromEpoch, toEpoch)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	if samples == nil {
		samples = []collector.Sample{}
	}
	if events == nil {
		events = []collector.SleepEvent{}
	}
	return marshal(map[string]any{"batteries": samples, "sleep_events": events})
}

// GetSleepEvents returns sleep events in a time range as JSON.
func (s *Service) GetSleepEvents(fromEpoch, toEpoch int64) (string, *godbus.Error) {
	if err := validateRange(fromEpoch, toEpoch); err != nil {
		return "", err
	}
	events, err := s.store.SleepEventsInRange(fromEpoch, toEpoch)
	if err != nil {
		return "", godbus.MakeFailedError(err)
	}
	if events == nil {
		events = []collector.SleepEvent{}
	}
	return marshal(events)
}
