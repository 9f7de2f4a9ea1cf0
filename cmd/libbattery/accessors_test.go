package main

import (
	"testing"

	"github.com/cptspacemanspiff/battery-probe/internal/abi"
	"github.com/cptspacemanspiff/battery-probe/internal/backend"
	"github.com/cptspacemanspiff/battery-probe/internal/battery"
	"github.com/cptspacemanspiff/battery-probe/internal/manager"
)

func newTestBattery(t *testing.T, dev *backend.StaticDevice) (*abi.Registry, abi.Handle, abi.Handle, *backend.Static) {
	t.Helper()
	s := backend.NewStatic(dev)
	r := abi.NewRegistry()
	mh := r.AddManager(manager.New(s))
	bh := r.Next(r.Iterate(mh))
	if bh == 0 {
		t.Fatalf("Next() = 0, last error %v", r.LastError())
	}
	return r, mh, bh, s
}

func TestMetricAccessors(t *testing.T) {
	dev := backend.NewStaticDevice("BAT0").
		Set(battery.FieldState, battery.Text("discharging")).
		Set(battery.FieldEnergy, battery.Number(0, battery.UnitWattHour)).
		Set(battery.FieldEnergyFull, battery.Number(40, battery.UnitWattHour))
	r, _, bh, _ := newTestBattery(t, dev)

	tests := []struct {
		name    string
		metric  battery.Metric
		want    float64
		present int32
	}{
		{"zero reading is present", battery.MetricEnergy, 0, 1},
		{"reported value", battery.MetricEnergyFull, 144000, 1},
		{"derived value", battery.MetricStateOfCharge, 0, 1},
		{"absent value", battery.MetricTemperature, 0, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := metricValue(r, bh, tt.metric); got != tt.want {
				t.Fatalf("metricValue(%s) = %v, want %v", tt.metric, got, tt.want)
			}
			if got := metricPresent(r, bh, tt.metric); got != tt.present {
				t.Fatalf("metricPresent(%s) = %d, want %d", tt.metric, got, tt.present)
			}
		})
	}

	if got := metricPresent(r, 0, battery.MetricEnergy); got != 0 {
		t.Fatalf("metricPresent(0) = %d, want 0", got)
	}
	if got := haveLastError(r); got != 1 {
		t.Fatalf("haveLastError() after null handle = %d, want 1", got)
	}
}

func TestCycleCountAccessors(t *testing.T) {
	counted := backend.NewStaticDevice("BAT0").Set(battery.FieldCycleCount, battery.Number(312, battery.UnitCount))
	r, _, bh, _ := newTestBattery(t, counted)
	if got := cycleCount(r, bh); got != 312 {
		t.Fatalf("cycleCount() = %d, want 312", got)
	}
	if got := cycleCountPresent(r, bh); got != 1 {
		t.Fatalf("cycleCountPresent() = %d, want 1", got)
	}

	r, _, bh, _ = newTestBattery(t, backend.NewStaticDevice("BAT1"))
	if got := cycleCount(r, bh); got != noCycleCount {
		t.Fatalf("cycleCount(absent) = %d, want %d", got, noCycleCount)
	}
	if got := cycleCountPresent(r, bh); got != 0 {
		t.Fatalf("cycleCountPresent(absent) = %d, want 0", got)
	}
}

func TestRefreshStatus(t *testing.T) {
	dev := backend.NewStaticDevice("BAT0").Set(battery.FieldEnergy, battery.Number(10, battery.UnitWattHour))
	r, mh, bh, s := newTestBattery(t, dev)

	if got := refreshStatus(r, mh, bh); got != 0 {
		t.Fatalf("refreshStatus() = %d, want 0 (last error %v)", got, r.LastError())
	}
	s.SetDevices()
	if got := refreshStatus(r, mh, bh); got != 1 {
		t.Fatalf("refreshStatus(gone) = %d, want 1", got)
	}
	if got := refreshStatus(r, 0, bh); got != 1 {
		t.Fatalf("refreshStatus(null manager) = %d, want 1", got)
	}
}

func TestLastErrorMessage(t *testing.T) {
	r := abi.NewRegistry()

	if got := lastErrorMessage(r, make([]byte, 16)); got != 0 {
		t.Fatalf("lastErrorMessage(no error) = %d, want 0", got)
	}

	r.ReleaseBattery(0x99)
	msg := r.LastError().Error()

	if got := lastErrorMessage(r, nil); got != -1 {
		t.Fatalf("lastErrorMessage(NULL) = %d, want -1", got)
	}
	if got := haveLastError(r); got != 1 {
		t.Fatalf("haveLastError() after NULL buffer = %d, want 1", got)
	}

	buf := make([]byte, abi.MessageLength(r.LastError()))
	if got := lastErrorMessage(r, buf); got != int32(len(msg)) {
		t.Fatalf("lastErrorMessage() = %d, want %d", got, len(msg))
	}
	if string(buf[:len(msg)]) != msg || buf[len(msg)] != 0 {
		t.Fatalf("buffer = %q, want %q with NUL", buf, msg)
	}
	if got := haveLastError(r); got != 0 {
		t.Fatalf("haveLastError() after read = %d, want 0", got)
	}

	r.ReleaseBattery(0x99)
	if got := lastErrorMessage(r, make([]byte, 4)); got != -1 {
		t.Fatalf("lastErrorMessage(short) = %d, want -1", got)
	}
}
