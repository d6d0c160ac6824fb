package telemetry

import (
	"testing"

	dto "github.com/prometheus/client_model/go"
)

func TestPrometheusIncCounterAccumulates(t *testing.T) {
	t.Parallel()
	p := NewPrometheus(nil)
	labels := map[string]string{"channel_id": "7"}

	p.IncCounter(MetricFramesProducedTotal, labels, 3)
	p.IncCounter(MetricFramesProducedTotal, labels, 2)

	mf, err := p.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	got := findCounterValue(t, mf, MetricFramesProducedTotal)
	if got != 5 {
		t.Errorf("counter value = %v, want 5", got)
	}
}

func TestPrometheusSetGaugeOverwrites(t *testing.T) {
	t.Parallel()
	p := NewPrometheus(nil)
	labels := map[string]string{"channel_id": "1"}

	p.SetGauge(MetricChannelState, labels, 2)
	p.SetGauge(MetricChannelState, labels, 4)

	mf, err := p.Registry().Gather()
	if err != nil {
		t.Fatalf("Gather() error = %v", err)
	}
	got := findGaugeValue(t, mf, MetricChannelState)
	if got != 4 {
		t.Errorf("gauge value = %v, want 4", got)
	}
}

func findCounterValue(t *testing.T, mf []*dto.MetricFamily, name string) float64 {
	t.Helper()
	for _, fam := range mf {
		if fam.GetName() == name {
			return fam.Metric[0].GetCounter().GetValue()
		}
	}
	t.Fatalf("metric family %s not found", name)
	return 0
}

func findGaugeValue(t *testing.T, mf []*dto.MetricFamily, name string) float64 {
	t.Helper()
	for _, fam := range mf {
		if fam.GetName() == name {
			return fam.Metric[0].GetGauge().GetValue()
		}
	}
	t.Fatalf("metric family %s not found", name)
	return 0
}
