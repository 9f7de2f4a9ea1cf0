// Command libbattery builds the C shared library:
//
//	go build -buildmode=c-shared -o libbattery.so ./cmd/libbattery
//
// Every object handed to C is an opaque handle. Strings returned by the
// battery_get_* text accessors must be released with battery_str_free,
// handles with their matching *_free function.
package main

/*
#include <stdint.h>
#include <stdlib.h>

typedef uintptr_t BatteryManager;
typedef uintptr_t BatteryIterator;
typedef uintptr_t Battery;
*/
import "C"

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"unsafe"

	"github.com/cptspacemanspiff/battery-probe/internal/abi"
	"github.com/cptspacemanspiff/battery-probe/internal/backend"
	"github.com/cptspacemanspiff/battery-probe/internal/battery"
	"github.com/cptspacemanspiff/battery-probe/internal/config"
	"github.com/cptspacemanspiff/battery-probe/internal/manager"
)

var (
	logger   = newLogger(os.Getenv("BATTERY_PROBE_LOG"))
	registry = newRegistry()
)

func newRegistry() *abi.Registry {
	r := abi.NewRegistry(manager.WithLogger(logger))
	r.SetThreadID(threadID)
	return r
}

func main() {}

// newLogger writes to stderr only when BATTERY_PROBE_LOG names a level.
func newLogger(level string) *slog.Logger {
	var lvl slog.Level
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return slog.New(slog.DiscardHandler)
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}

// backendConfig reads BATTERY_PROBE_CONFIG when set, otherwise picks the
// backend automatically.
func backendConfig() (backend.Config, error) {
	path := os.Getenv("BATTERY_PROBE_CONFIG")
	if path == "" {
		return backend.Config{Name: os.Getenv("BATTERY_PROBE_BACKEND"), Logger: logger}, nil
	}
	cfg, err := config.Load(path)
	if err != nil {
		return backend.Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	bc := cfg.BackendConfig()
	bc.Logger = logger
	return bc, nil
}

// recoverPanic keeps a panic from unwinding into C. The export returns its
// zero value and the panic becomes the last error.
func recoverPanic(fn string) {
	if r := recover(); r != nil {
		logger.Error("panic in export", "fn", fn, "panic", r)
		registry.SetLastError(fmt.Errorf("%s: internal error: %v", fn, r))
	}
}

//export battery_manager_new
func battery_manager_new() (out C.BatteryManager) {
	defer recoverPanic("battery_manager_new")
	cfg, err := backendConfig()
	if err != nil {
		registry.SetLastError(err)
		return 0
	}
	return C.BatteryManager(registry.NewManager(cfg))
}

//export battery_manager_iter
func battery_manager_iter(m C.BatteryManager) (out C.BatteryIterator) {
	defer recoverPanic("battery_manager_iter")
	return C.BatteryIterator(registry.Iterate(abi.Handle(m)))
}

// battery_manager_refresh returns 0 on success and 1 when the battery keeps
// stale values.
//
//export battery_manager_refresh
func battery_manager_refresh(m C.BatteryManager, b C.Battery) (out C.int) {
	out = 1
	defer recoverPanic("battery_manager_refresh")
	return C.int(refreshStatus(registry, abi.Handle(m), abi.Handle(b)))
}

//export battery_manager_free
func battery_manager_free(m C.BatteryManager) {
	defer recoverPanic("battery_manager_free")
	if m != 0 {
		registry.ReleaseManager(abi.Handle(m))
	}
}

// battery_iterator_next returns 0 at the end and on failure. Only a
// failure leaves battery_have_last_error set.
//
//export battery_iterator_next
func battery_iterator_next(it C.BatteryIterator) (out C.Battery) {
	defer recoverPanic("battery_iterator_next")
	return C.Battery(registry.Next(abi.Handle(it)))
}

//export battery_iterator_free
func battery_iterator_free(it C.BatteryIterator) {
	defer recoverPanic("battery_iterator_free")
	if it != 0 {
		registry.ReleaseIterator(abi.Handle(it))
	}
}

//export battery_free
func battery_free(b C.Battery) {
	defer recoverPanic("battery_free")
	if b != 0 {
		registry.ReleaseBattery(abi.Handle(b))
	}
}

func text(b C.Battery, f battery.Field) *C.char {
	s, ok := registry.Text(abi.Handle(b), f)
	if !ok {
		return nil
	}
	cs := C.CString(s)
	registry.TrackString(uintptr(unsafe.Pointer(cs)))
	return cs
}

//export battery_get_vendor
func battery_get_vendor(b C.Battery) (out *C.char) {
	defer recoverPanic("battery_get_vendor")
	return text(b, battery.FieldVendor)
}

//export battery_get_model
func battery_get_model(b C.Battery) (out *C.char) {
	defer recoverPanic("battery_get_model")
	return text(b, battery.FieldModel)
}

//export battery_get_serial_number
func battery_get_serial_number(b C.Battery) (out *C.char) {
	defer recoverPanic("battery_get_serial_number")
	return text(b, battery.FieldSerialNumber)
}

// battery_str_free ignores NULL and strings this library did not return.
//
//export battery_str_free
func battery_str_free(s *C.char) {
	defer recoverPanic("battery_str_free")
	if s == nil {
		return
	}
	if err := registry.ReleaseString(uintptr(unsafe.Pointer(s))); err != nil {
		return
	}
	C.free(unsafe.Pointer(s))
}

// battery_get_state returns 0 unknown, 1 charging, 2 discharging, 3 empty
// or 4 full.
//
//export battery_get_state
func battery_get_state(b C.Battery) (out C.uint8_t) {
	defer recoverPanic("battery_get_state")
	return C.uint8_t(registry.State(abi.Handle(b)))
}

// battery_get_technology returns 0 unknown, 1 li-ion, 2 lead-acid,
// 3 li-poly, 4 NiMH, 5 NiCd, 6 NiZn, 7 LiFePO4 or 8 RAM.
//
//export battery_get_technology
func battery_get_technology(b C.Battery) (out C.uint8_t) {
	defer recoverPanic("battery_get_technology")
	return C.uint8_t(registry.Technology(abi.Handle(b)))
}

func metric(b C.Battery, m battery.Metric) C.double {
	return C.double(metricValue(registry, abi.Handle(b), m))
}

func hasMetric(b C.Battery, m battery.Metric) C.int {
	return C.int(metricPresent(registry, abi.Handle(b), m))
}

// Metric getters return 0 when the value is absent; the paired
// battery_has_* function tells absence apart from a real zero.

//export battery_get_energy
func battery_get_energy(b C.Battery) (out C.double) {
	defer recoverPanic("battery_get_energy")
	return metric(b, battery.MetricEnergy)
}

//export battery_has_energy
func battery_has_energy(b C.Battery) (out C.int) {
	defer recoverPanic("battery_has_energy")
	return hasMetric(b, battery.MetricEnergy)
}

//export battery_get_energy_full
func battery_get_energy_full(b C.Battery) (out C.double) {
	defer recoverPanic("battery_get_energy_full")
	return metric(b, battery.MetricEnergyFull)
}

//export battery_has_energy_full
func battery_has_energy_full(b C.Battery) (out C.int) {
	defer recoverPanic("battery_has_energy_full")
	return hasMetric(b, battery.MetricEnergyFull)
}

//export battery_get_energy_full_design
func battery_get_energy_full_design(b C.Battery) (out C.double) {
	defer recoverPanic("battery_get_energy_full_design")
	return metric(b, battery.MetricEnergyFullDesign)
}

//export battery_has_energy_full_design
func battery_has_energy_full_design(b C.Battery) (out C.int) {
	defer recoverPanic("battery_has_energy_full_design")
	return hasMetric(b, battery.MetricEnergyFullDesign)
}

//export battery_get_energy_rate
func battery_get_energy_rate(b C.Battery) (out C.double) {
	defer recoverPanic("battery_get_energy_rate")
	return metric(b, battery.MetricEnergyRate)
}

//export battery_has_energy_rate
func battery_has_energy_rate(b C.Battery) (out C.int) {
	defer recoverPanic("battery_has_energy_rate")
	return hasMetric(b, battery.MetricEnergyRate)
}

//export battery_get_voltage
func battery_get_voltage(b C.Battery) (out C.double) {
	defer recoverPanic("battery_get_voltage")
	return metric(b, battery.MetricVoltage)
}

//export battery_has_voltage
func battery_has_voltage(b C.Battery) (out C.int) {
	defer recoverPanic("battery_has_voltage")
	return hasMetric(b, battery.MetricVoltage)
}

//export battery_get_time_to_full
func battery_get_time_to_full(b C.Battery) (out C.double) {
	defer recoverPanic("battery_get_time_to_full")
	return metric(b, battery.MetricTimeToFull)
}

//export battery_has_time_to_full
func battery_has_time_to_full(b C.Battery) (out C.int) {
	defer recoverPanic("battery_has_time_to_full")
	return hasMetric(b, battery.MetricTimeToFull)
}

//export battery_get_time_to_empty
func battery_get_time_to_empty(b C.Battery) (out C.double) {
	defer recoverPanic("battery_get_time_to_empty")
	return metric(b, battery.MetricTimeToEmpty)
}

//export battery_has_time_to_empty
func battery_has_time_to_empty(b C.Battery) (out C.int) {
	defer recoverPanic("battery_has_time_to_empty")
	return hasMetric(b, battery.MetricTimeToEmpty)
}

//export battery_get_state_of_charge
func battery_get_state_of_charge(b C.Battery) (out C.double) {
	defer recoverPanic("battery_get_state_of_charge")
	return metric(b, battery.MetricStateOfCharge)
}

//export battery_has_state_of_charge
func battery_has_state_of_charge(b C.Battery) (out C.int) {
	defer recoverPanic("battery_has_state_of_charge")
	return hasMetric(b, battery.MetricStateOfCharge)
}

//export battery_get_temperature
func battery_get_temperature(b C.Battery) (out C.double) {
	defer recoverPanic("battery_get_temperature")
	return metric(b, battery.MetricTemperature)
}

//export battery_has_temperature
func battery_has_temperature(b C.Battery) (out C.int) {
	defer recoverPanic("battery_has_temperature")
	return hasMetric(b, battery.MetricTemperature)
}

//export battery_get_state_of_health
func battery_get_state_of_health(b C.Battery) (out C.double) {
	defer recoverPanic("battery_get_state_of_health")
	return metric(b, battery.MetricStateOfHealth)
}

//export battery_has_state_of_health
func battery_has_state_of_health(b C.Battery) (out C.int) {
	defer recoverPanic("battery_has_state_of_health")
	return hasMetric(b, battery.MetricStateOfHealth)
}

// battery_get_cycle_count returns UINT32_MAX when the count is absent.
//
//export battery_get_cycle_count
func battery_get_cycle_count(b C.Battery) (out C.uint32_t) {
	out = C.uint32_t(noCycleCount)
	defer recoverPanic("battery_get_cycle_count")
	return C.uint32_t(cycleCount(registry, abi.Handle(b)))
}

//export battery_has_cycle_count
func battery_has_cycle_count(b C.Battery) (out C.int) {
	defer recoverPanic("battery_has_cycle_count")
	return C.int(cycleCountPresent(registry, abi.Handle(b)))
}

//export battery_have_last_error
func battery_have_last_error() C.int {
	return C.int(haveLastError(registry))
}

// battery_last_error_length includes the trailing NUL.
//
//export battery_last_error_length
func battery_last_error_length() C.int {
	return C.int(abi.MessageLength(registry.LastError()))
}

// battery_last_error_message copies the last error into buf and clears it.
// It returns the message length, 0 when there was no error, or -1 when buf
// is NULL or too small.
//
//export battery_last_error_message
func battery_last_error_message(buf *C.char, length C.int) (out C.int) {
	out = -1
	defer recoverPanic("battery_last_error_message")
	if buf == nil || length < 0 {
		return -1
	}
	dst := unsafe.Slice((*byte)(unsafe.Pointer(buf)), int(length))
	return C.int(lastErrorMessage(registry, dst))
}
