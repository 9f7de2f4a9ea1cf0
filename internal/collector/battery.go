package collector

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/cptspacemanspiff/battery-probe/internal/battery"
	"github.com/cptspacemanspiff/battery-probe/internal/manager"
)

// Sampler takes timestamped snapshots of every battery.
type Sampler struct {
	mgr *manager.Manager
	log *slog.Logger
	now func() time.Time
}

func NewSampler(mgr *manager.Manager, logger *slog.Logger) *Sampler {
	return &Sampler{mgr: mgr, log: logger, now: time.Now}
}

// Collect reads all batteries. No battery present is an empty result.
func (s *Sampler) Collect() ([]Sample, error) {
	bats, err := s.mgr.Snapshot()
	if err != nil {
		return nil, fmt.Errorf("snapshot batteries: %w", err)
	}
	ts := s.now().Unix()
	samples := make([]Sample, 0, len(bats))
	for _, b := range bats {
		samples = append(samples, Sample{Timestamp: ts, Battery: b})
		soc, _ := b.Metric(battery.MetricStateOfCharge)
		rate, _ := b.Metric(battery.MetricEnergyRate)
		s.log.Debug("sample", "battery", b.ID, "state", b.State, "soc_pct", soc, "rate_w", rate)
	}
	return samples, nil
}
