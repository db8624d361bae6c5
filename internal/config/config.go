// Package config loads the controller configuration snapshot from a YAML
// file at startup. Durations are integer milliseconds in the file; callers
// convert at the use site.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/abreis/heater-control/internal/logic"
	"github.com/abreis/heater-control/internal/onewire"
)

type Config struct {
	Device     DeviceConfig     `yaml:"device"`
	Sensors    []SensorConfig   `yaml:"sensors"`
	Control    ControlConfig    `yaml:"control"`
	Heater     HeaterConfig     `yaml:"heater"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	HTTP       HTTPConfig       `yaml:"http"`
	Console    ConsoleConfig    `yaml:"console"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
	Log        LogConfig        `yaml:"log"`
}

type DeviceConfig struct {
	Name string `yaml:"name"`
}

type SensorConfig struct {
	ID      string `yaml:"id"`
	ROM     string `yaml:"rom"` // 16 hex digits, family byte printed last
	GPIOPin int    `yaml:"gpio_pin"`

	// Per-kind retry budgets before a fault is recorded.
	RetryAbsent  int `yaml:"retry_absent"`
	RetryCRC     int `yaml:"retry_crc"`
	RetryTimeout int `yaml:"retry_timeout"`
}

type ControlConfig struct {
	Target         float64 `yaml:"target"`
	HysteresisLow  float64 `yaml:"hysteresis_low"`
	HysteresisHigh float64 `yaml:"hysteresis_high"`
	Mode           string  `yaml:"mode"`
	MinTarget      float64 `yaml:"min_target"`
	MaxTarget      float64 `yaml:"max_target"`
	MinDwellMs     int     `yaml:"min_dwell_ms"`
	StalenessMs    int     `yaml:"staleness_ms"`
	PollIntervalMs int     `yaml:"poll_interval_ms"`
}

type HeaterConfig struct {
	GPIOPin       int `yaml:"gpio_pin"`
	PatternStepMs int `yaml:"pattern_step_ms"`
}

type MQTTConfig struct {
	// An empty broker disables the MQTT adapter.
	Broker    string `yaml:"broker"`
	ClientID  string `yaml:"client_id"`
	TopicRoot string `yaml:"topic_root"`
}

type HTTPConfig struct {
	Addr string `yaml:"addr"`
}

type ConsoleConfig struct {
	// An empty device disables the console adapter.
	Device   string `yaml:"device"`
	BaudRate int    `yaml:"baud_rate"`
}

type SupervisorConfig struct {
	WatchdogDevice  string `yaml:"watchdog_device"` // empty disables the hardware watchdog
	TickMs          int    `yaml:"tick_ms"`
	SensorWindowMs  int    `yaml:"sensor_window_ms"`
	ControlWindowMs int    `yaml:"control_window_ms"`
	AdapterWindowMs int    `yaml:"adapter_window_ms"`
	FaultThreshold  int    `yaml:"fault_threshold"`
	NetworkGraceMs  int    `yaml:"network_grace_ms"`
}

type LogConfig struct {
	BudgetBytes int `yaml:"budget_bytes"`
}

// Load reads and parses the file. Callers must follow with ApplyDefaults and
// Validate.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &cfg, nil
}

// ApplyDefaults fills unset fields. It mutates the configuration and must be
// called before Validate.
//
// A zero value means "use the default": no field here has a meaningful zero
// (a 0 target sits below the lowest accepted min_target, and zero retries,
// intervals, or windows would disable the mechanism they size), so writing
// an explicit 0 in the file is the same as omitting the key. Adapters are
// disabled by an empty endpoint, never by a zero.
func ApplyDefaults(cfg *Config) {
	if cfg.Device.Name == "" {
		cfg.Device.Name = "heater"
	}
	for i := range cfg.Sensors {
		s := &cfg.Sensors[i]
		if s.RetryAbsent == 0 {
			s.RetryAbsent = 2
		}
		if s.RetryCRC == 0 {
			s.RetryCRC = 2
		}
		if s.RetryTimeout == 0 {
			s.RetryTimeout = 2
		}
	}

	c := &cfg.Control
	if c.Target == 0 {
		c.Target = 22.0
	}
	if c.HysteresisLow == 0 {
		c.HysteresisLow = 0.5
	}
	if c.HysteresisHigh == 0 {
		c.HysteresisHigh = 0.5
	}
	if c.Mode == "" {
		c.Mode = "auto"
	}
	if c.MinTarget == 0 {
		c.MinTarget = 5.0
	}
	if c.MaxTarget == 0 {
		c.MaxTarget = 35.0
	}
	if c.MinDwellMs == 0 {
		c.MinDwellMs = 30000
	}
	if c.StalenessMs == 0 {
		c.StalenessMs = 10000
	}
	if c.PollIntervalMs == 0 {
		c.PollIntervalMs = 2000
	}

	if cfg.Heater.PatternStepMs == 0 {
		cfg.Heater.PatternStepMs = 100
	}
	if cfg.MQTT.ClientID == "" {
		cfg.MQTT.ClientID = "heater-control"
	}
	if cfg.HTTP.Addr == "" {
		cfg.HTTP.Addr = ":8080"
	}
	if cfg.Console.BaudRate == 0 {
		cfg.Console.BaudRate = 115200
	}

	sup := &cfg.Supervisor
	if sup.TickMs == 0 {
		sup.TickMs = 1000
	}
	if sup.SensorWindowMs == 0 {
		sup.SensorWindowMs = 3 * cfg.Control.PollIntervalMs
	}
	if sup.ControlWindowMs == 0 {
		sup.ControlWindowMs = 3 * cfg.Control.PollIntervalMs
	}
	if sup.AdapterWindowMs == 0 {
		sup.AdapterWindowMs = 60000
	}
	if sup.FaultThreshold == 0 {
		sup.FaultThreshold = 2
	}
	if sup.NetworkGraceMs == 0 {
		sup.NetworkGraceMs = 30000
	}

	if cfg.Log.BudgetBytes == 0 {
		cfg.Log.BudgetBytes = 8192
	}
}

// Validate checks configuration correctness. It does not mutate the
// configuration.
func Validate(cfg *Config) error {
	if len(cfg.Sensors) == 0 {
		return fmt.Errorf("at least one sensor is required")
	}
	seen := make(map[string]bool, len(cfg.Sensors))
	for _, s := range cfg.Sensors {
		if s.ID == "" {
			return fmt.Errorf("sensor without an id")
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate sensor id %q", s.ID)
		}
		seen[s.ID] = true
		if _, err := onewire.ParseROM(s.ROM); err != nil {
			return fmt.Errorf("sensor %q: %w", s.ID, err)
		}
	}

	c := cfg.Control
	if _, err := logic.ParseMode(c.Mode); err != nil {
		return fmt.Errorf("control mode: %w", err)
	}
	if c.MinTarget >= c.MaxTarget {
		return fmt.Errorf("min_target %.2f must be below max_target %.2f", c.MinTarget, c.MaxTarget)
	}
	if c.Target < c.MinTarget || c.Target > c.MaxTarget {
		return fmt.Errorf("target %.2f outside [%.2f, %.2f]", c.Target, c.MinTarget, c.MaxTarget)
	}
	if c.HysteresisLow <= 0 || c.HysteresisHigh <= 0 {
		return fmt.Errorf("hysteresis band must be positive")
	}
	if c.PollIntervalMs <= 0 || c.MinDwellMs < 0 || c.StalenessMs <= 0 {
		return fmt.Errorf("control intervals must be positive")
	}
	if cfg.Heater.PatternStepMs <= 0 {
		return fmt.Errorf("pattern_step_ms must be positive")
	}

	sup := cfg.Supervisor
	if sup.TickMs <= 0 || sup.SensorWindowMs <= 0 || sup.ControlWindowMs <= 0 || sup.AdapterWindowMs <= 0 {
		return fmt.Errorf("supervisor intervals must be positive")
	}
	if sup.FaultThreshold < 1 {
		return fmt.Errorf("fault_threshold must be at least 1")
	}
	return nil
}
