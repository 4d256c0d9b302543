package governor

import (
	"time"

	cmap "github.com/orcaman/concurrent-map/v2"
	"github.com/qdm12/reprint"
)

// Status is a read-only snapshot of the governor, published once per
// tick. Consumers (status command, REST api, metrics) must treat it as
// stale by up to one tick.
type Status struct {
	Time time.Time `json:"time"`

	State       string `json:"state"`
	Temperature int    `json:"temperature"`
	// TemperatureAvg is a moving average over the recent samples. It is
	// informational only, control decisions use raw samples.
	TemperatureAvg float64 `json:"temperatureAvg"`

	Mode string `json:"mode"`
	Duty int    `json:"duty"`
	Rpm  int    `json:"rpm"`

	CooldownRemaining time.Duration `json:"cooldownRemaining"`
	RetryPending      bool          `json:"retryPending"`

	EmergencyCount int `json:"emergencyCount"`
	DangerCount    int `json:"dangerCount"`
	ReadFailures   int `json:"readFailures"`
}

const statusKey = "current"

var publishedStatus = cmap.New[Status]()

func publishStatus(status Status) {
	publishedStatus.Set(statusKey, status)
}

// LatestStatus returns a deep copy of the most recently published
// snapshot, or false if the governor has not completed a tick yet.
func LatestStatus() (Status, bool) {
	status, ok := publishedStatus.Get(statusKey)
	if !ok {
		return Status{}, false
	}

	var copied Status
	if err := reprint.FromTo(&status, &copied); err != nil {
		return status, true
	}
	return copied, true
}
