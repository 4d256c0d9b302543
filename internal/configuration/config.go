package configuration

import (
	"os"
	"time"

	"github.com/ecgovern/ecgovern/internal/ui"
	"github.com/mitchellh/go-homedir"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type Configuration struct {
	// EcChannelPath is the byte-addressable EC register file.
	EcChannelPath string `json:"ecChannelPath"`
	// EcModule is the kernel module backing the register channel.
	EcModule string `json:"ecModule"`

	StateDir string `json:"stateDir"`
	DbPath   string `json:"dbPath"`

	ThermalZonePath string `json:"thermalZonePath"`

	TickRate              time.Duration `json:"tickRate"`
	HealthCheckInterval   time.Duration `json:"healthCheckInterval"`
	StatusLogInterval     time.Duration `json:"statusLogInterval"`
	TempRollingWindowSize int           `json:"tempRollingWindowSize"`

	Thresholds       ThresholdConfig `json:"thresholds"`
	CooldownDuration time.Duration   `json:"cooldownDuration"`

	Emergency EmergencyConfig `json:"emergency"`
	Reset     RetryConfig     `json:"reset"`

	MaxHealthCheckFailures int `json:"maxHealthCheckFailures"`
	MaxDangerEvents        int `json:"maxDangerEvents"`

	Api           ApiConfig          `json:"api"`
	Notifications NotificationConfig `json:"notifications"`
}

type ThresholdConfig struct {
	// Upper is the silent/active boundary.
	Upper Temperature `json:"upper"`
	// Hysteresis is subtracted from Upper on the way down.
	Hysteresis int `json:"hysteresis"`
	// Emergency triggers the emergency cooling protocol.
	Emergency Temperature `json:"emergency"`
	// Recovery is the emergency cooling success target.
	Recovery Temperature `json:"recovery"`
	// Critical aborts emergency cooling in favor of the EC's own control law.
	Critical Temperature `json:"critical"`
	// Danger overrides the state machine entirely.
	Danger Temperature `json:"danger"`
}

type EmergencyConfig struct {
	PollRate time.Duration `json:"pollRate"`
	Budget   time.Duration `json:"budget"`
}

type RetryConfig struct {
	MaxAttempts int           `json:"maxAttempts"`
	Backoff     time.Duration `json:"backoff"`
}

type ApiConfig struct {
	Enabled bool   `json:"enabled"`
	Host    string `json:"host"`
	Port    int    `json:"port"`
}

type NotificationConfig struct {
	Enabled  bool          `json:"enabled"`
	Cooldown time.Duration `json:"cooldown"`
}

var CurrentConfig Configuration

// InitConfig reads in config file and ENV variables if set.
func InitConfig(cfgFile string) {
	viper.SetConfigName("ecgovern")

	if cfgFile != "" {
		// Use config file from the flag.
		viper.SetConfigFile(cfgFile)
	} else {
		// Find home directory.
		home, err := homedir.Dir()
		if err != nil {
			ui.Error("Couldn't detect home directory: %v", err)
			os.Exit(1)
		}

		viper.AddConfigPath(".")
		viper.AddConfigPath(home)
		viper.AddConfigPath("/etc/ecgovern/")
	}

	viper.AutomaticEnv() // read in environment variables that match

	setDefaultValues()
}

func setDefaultValues() {
	viper.SetDefault("EcChannelPath", "/sys/kernel/debug/ec/ec0/io")
	viper.SetDefault("EcModule", "ec_sys")

	viper.SetDefault("StateDir", "/var/lib/ecgovern")
	viper.SetDefault("DbPath", "/etc/ecgovern/ecgovern.db")

	viper.SetDefault("ThermalZonePath", "/sys/class/thermal/thermal_zone0/temp")

	viper.SetDefault("TickRate", 3*time.Second)
	viper.SetDefault("HealthCheckInterval", 90*time.Second)
	viper.SetDefault("StatusLogInterval", 60*time.Second)
	viper.SetDefault("TempRollingWindowSize", 20)

	viper.SetDefault("Thresholds.Upper", 65)
	viper.SetDefault("Thresholds.Hysteresis", 5)
	viper.SetDefault("Thresholds.Emergency", 80)
	viper.SetDefault("Thresholds.Recovery", 60)
	viper.SetDefault("Thresholds.Critical", 90)
	viper.SetDefault("Thresholds.Danger", 95)

	viper.SetDefault("CooldownDuration", 120*time.Second)

	viper.SetDefault("Emergency.PollRate", 2*time.Second)
	viper.SetDefault("Emergency.Budget", 300*time.Second)

	viper.SetDefault("Reset.MaxAttempts", 3)
	viper.SetDefault("Reset.Backoff", 500*time.Millisecond)

	viper.SetDefault("MaxHealthCheckFailures", 3)
	viper.SetDefault("MaxDangerEvents", 5)

	viper.SetDefault("Api.Enabled", false)
	viper.SetDefault("Api.Host", "localhost")
	viper.SetDefault("Api.Port", 9440)

	viper.SetDefault("Notifications.Enabled", true)
	viper.SetDefault("Notifications.Cooldown", 5*time.Minute)
}

// DetectConfigFile searches the config paths for a config file and returns
// the path of the one viper settled on. The config file is optional, all
// values have defaults.
func DetectConfigFile() string {
	if err := viper.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			ui.Fatal("Error reading config file, %s", err)
		}
	}
	return viper.ConfigFileUsed()
}

func LoadConfig() {
	// load default configuration values
	err := viper.Unmarshal(&CurrentConfig, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			temperatureHookFunc(),
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	))
	if err != nil {
		ui.Fatal("unable to decode into struct, %v", err)
	}
}
