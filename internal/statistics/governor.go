package statistics

import (
	"github.com/ecgovern/ecgovern/internal/governor"
	"github.com/prometheus/client_golang/prometheus"
)

const governorSubsystem = "governor"

// SnapshotProvider returns the latest governor snapshot, or false when
// no tick has completed yet.
type SnapshotProvider func() (governor.Status, bool)

type GovernorCollector struct {
	snapshot SnapshotProvider

	temperature    *prometheus.Desc
	temperatureAvg *prometheus.Desc
	state          *prometheus.Desc
	duty           *prometheus.Desc
	rpm            *prometheus.Desc
	emergencies    *prometheus.Desc
	dangerEvents   *prometheus.Desc
	readFailures   *prometheus.Desc
}

func NewGovernorCollector(snapshot SnapshotProvider) *GovernorCollector {
	return &GovernorCollector{
		snapshot: snapshot,
		temperature: prometheus.NewDesc(prometheus.BuildFQName(namespace, governorSubsystem, "temperature_celsius"),
			"Current CPU package temperature",
			nil, nil,
		),
		temperatureAvg: prometheus.NewDesc(prometheus.BuildFQName(namespace, governorSubsystem, "temperature_celsius_avg"),
			"Moving average of the CPU package temperature",
			nil, nil,
		),
		state: prometheus.NewDesc(prometheus.BuildFQName(namespace, governorSubsystem, "state"),
			"Current thermal state (1 for the active state, 0 otherwise)",
			[]string{"state"}, nil,
		),
		duty: prometheus.NewDesc(prometheus.BuildFQName(namespace, governorSubsystem, "fan_duty"),
			"Current fan duty register value",
			nil, nil,
		),
		rpm: prometheus.NewDesc(prometheus.BuildFQName(namespace, governorSubsystem, "fan_speed_raw"),
			"Current fan speed register value",
			nil, nil,
		),
		emergencies: prometheus.NewDesc(prometheus.BuildFQName(namespace, governorSubsystem, "emergency_total"),
			"Number of successful emergency cooling runs since start",
			nil, nil,
		),
		dangerEvents: prometheus.NewDesc(prometheus.BuildFQName(namespace, governorSubsystem, "danger_total"),
			"Number of danger threshold overrides since start",
			nil, nil,
		),
		readFailures: prometheus.NewDesc(prometheus.BuildFQName(namespace, governorSubsystem, "read_failures"),
			"Consecutive temperature read failures",
			nil, nil,
		),
	}
}

func (collector *GovernorCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- collector.temperature
	ch <- collector.temperatureAvg
	ch <- collector.state
	ch <- collector.duty
	ch <- collector.rpm
	ch <- collector.emergencies
	ch <- collector.dangerEvents
	ch <- collector.readFailures
}

// Collect implements the required collect function for all prometheus collectors
func (collector *GovernorCollector) Collect(ch chan<- prometheus.Metric) {
	status, ok := collector.snapshot()
	if !ok {
		return
	}

	ch <- prometheus.MustNewConstMetric(collector.temperature, prometheus.GaugeValue, float64(status.Temperature))
	ch <- prometheus.MustNewConstMetric(collector.temperatureAvg, prometheus.GaugeValue, status.TemperatureAvg)

	for _, state := range governor.States() {
		value := 0.0
		if state.String() == status.State {
			value = 1.0
		}
		ch <- prometheus.MustNewConstMetric(collector.state, prometheus.GaugeValue, value, state.String())
	}

	ch <- prometheus.MustNewConstMetric(collector.duty, prometheus.GaugeValue, float64(status.Duty))
	ch <- prometheus.MustNewConstMetric(collector.rpm, prometheus.GaugeValue, float64(status.Rpm))
	ch <- prometheus.MustNewConstMetric(collector.emergencies, prometheus.CounterValue, float64(status.EmergencyCount))
	ch <- prometheus.MustNewConstMetric(collector.dangerEvents, prometheus.CounterValue, float64(status.DangerCount))
	ch <- prometheus.MustNewConstMetric(collector.readFailures, prometheus.GaugeValue, float64(status.ReadFailures))
}
