package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func TestRegisterIdempotent(t *testing.T) {
	reg := prometheus.NewRegistry()
	if err := Register(reg); err != nil {
		t.Fatalf("register: %v", err)
	}
	if err := Register(reg); err != nil {
		t.Fatalf("second register: %v", err)
	}
}

func TestCountersAndGauges(t *testing.T) {
	IncLaunch()
	IncCrash()
	SetRunning(true)
	SetUptime(42)

	if v := counterValue(t, launches); v < 1 {
		t.Fatalf("launches = %v", v)
	}
	if v := gaugeValue(t, running); v != 1 {
		t.Fatalf("running = %v", v)
	}
	SetRunning(false)
	if v := gaugeValue(t, running); v != 0 {
		t.Fatalf("running = %v", v)
	}
	if v := gaugeValue(t, uptimeSeconds); v != 42 {
		t.Fatalf("uptime = %v", v)
	}
}

func counterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	var m dto.Metric
	if err := c.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	if err := g.Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetGauge().GetValue()
}
