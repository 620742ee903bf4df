package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the reporter configuration.
type Config struct {
	WiFi   WiFiConfig   `yaml:"wifi"`
	Report ReportConfig `yaml:"report"`
	Sensor SensorConfig `yaml:"sensor"`
	Timing TimingConfig `yaml:"timing"`
	Mock   MockConfig   `yaml:"mock"`
}

// WiFiConfig contains the station credentials and address acquisition setup.
type WiFiConfig struct {
	SSID      string `yaml:"ssid"`
	Password  string `yaml:"password"`
	Interface string `yaml:"interface"`
	Control   string `yaml:"control"`  // wpa_supplicant control socket directory
	Lease     string `yaml:"lease"`    // "dhcp" or "system"
	Hostname  string `yaml:"hostname"` // DHCP option 12

	ControlTimeout time.Duration `yaml:"control_timeout"` // wpa_supplicant request bound
}

// ReportConfig describes where and how temperatures are reported.
type ReportConfig struct {
	Endpoint string `yaml:"endpoint"` // ip:port, also used as the Host header
	Path     string `yaml:"path"`     // request path prefix, temperature appended
}

// SensorConfig contains the thermocouple bus configuration.
type SensorConfig struct {
	Bus      string        `yaml:"bus"`       // "spidev", "serial" or "mock"
	Device   string        `yaml:"device"`    // spidev name or serial port
	ClockHz  int64         `yaml:"clock_hz"`  // SPI clock
	BaudRate int           `yaml:"baud_rate"` // serial bridge baud rate
	Timeout  time.Duration `yaml:"timeout"`   // serial bridge read timeout
}

// TimingConfig contains the fixed delays of the reporting cycle.
type TimingConfig struct {
	FaultDelay     time.Duration `yaml:"fault_delay"`     // wait after a sensor fault
	ReceiveTimeout time.Duration `yaml:"receive_timeout"` // response deadline
	DrainPeriod    time.Duration `yaml:"drain_period"`    // grace window after disconnect
	ConnectTimeout time.Duration `yaml:"connect_timeout"` // TCP connect bound
	PollInterval   time.Duration `yaml:"poll_interval"`   // pacing of every poll loop
	ReadSlice      time.Duration `yaml:"read_slice"`      // wait for inbound bytes per poll
}

// MockConfig contains simulated thermocouple configuration.
type MockConfig struct {
	Ambient    float64       `yaml:"ambient"`     // Baseline temperature (°C)
	Swing      float64       `yaml:"swing"`       // Amplitude of the slow drift (°C)
	Period     time.Duration `yaml:"period"`      // Period of the drift
	NoiseLevel float64       `yaml:"noise_level"` // Noise level (°C)
	Unplugged  float64       `yaml:"unplugged"`   // Probability of reporting an open thermocouple
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	return &Config{
		WiFi: WiFiConfig{
			Interface: "wlan0",
			Control:   "/var/run/wpa_supplicant",
			Lease:     "dhcp",
			Hostname:  "esp-wifi",

			ControlTimeout: 2 * time.Second,
		},
		Report: ReportConfig{
			Endpoint: "192.168.1.103:8080",
			Path:     "/temp/1/",
		},
		Sensor: SensorConfig{
			Bus:      "spidev",
			Device:   "/dev/spidev0.0",
			ClockHz:  100000,
			BaudRate: 115200,
			Timeout:  100 * time.Millisecond,
		},
		Timing: TimingConfig{
			FaultDelay:     500 * time.Millisecond,
			ReceiveTimeout: 20 * time.Second,
			DrainPeriod:    5 * time.Second,
			ConnectTimeout: 10 * time.Second,
			PollInterval:   time.Millisecond,
			ReadSlice:      time.Millisecond,
		},
		Mock: MockConfig{
			Ambient:    22.0,
			Swing:      3.0,
			Period:     10 * time.Minute,
			NoiseLevel: 0.25,
			Unplugged:  0.0,
		},
	}
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values. SSID and PASSWORD environment
// variables override the credentials from the file.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	cfg.WiFi.SSID = GetEnv("SSID", cfg.WiFi.SSID)
	cfg.WiFi.Password = GetEnv("PASSWORD", cfg.WiFi.Password)

	// Ensure minimum required fields are set (use defaults if missing)
	cfg.ensureDefaults()

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// GetEnv returns the environment variable name, or defaultValue when unset.
func GetEnv(name string, defaultValue string) string {
	value, ok := os.LookupEnv(name)
	if !ok {
		return defaultValue
	}
	return value
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.WiFi.Interface == "" {
		c.WiFi.Interface = def.WiFi.Interface
	}
	if c.WiFi.Control == "" {
		c.WiFi.Control = def.WiFi.Control
	}
	if c.WiFi.Lease == "" {
		c.WiFi.Lease = def.WiFi.Lease
	}
	if c.WiFi.ControlTimeout == 0 {
		c.WiFi.ControlTimeout = def.WiFi.ControlTimeout
	}

	if c.Report.Endpoint == "" {
		c.Report.Endpoint = def.Report.Endpoint
	}
	if c.Report.Path == "" {
		c.Report.Path = def.Report.Path
	}

	if c.Sensor.Bus == "" {
		c.Sensor.Bus = def.Sensor.Bus
	}
	if c.Sensor.Device == "" {
		c.Sensor.Device = def.Sensor.Device
	}
	if c.Sensor.ClockHz == 0 {
		c.Sensor.ClockHz = def.Sensor.ClockHz
	}
	if c.Sensor.BaudRate == 0 {
		c.Sensor.BaudRate = def.Sensor.BaudRate
	}
	if c.Sensor.Timeout == 0 {
		c.Sensor.Timeout = def.Sensor.Timeout
	}

	if c.Timing.FaultDelay == 0 {
		c.Timing.FaultDelay = def.Timing.FaultDelay
	}
	if c.Timing.ReceiveTimeout == 0 {
		c.Timing.ReceiveTimeout = def.Timing.ReceiveTimeout
	}
	if c.Timing.DrainPeriod == 0 {
		c.Timing.DrainPeriod = def.Timing.DrainPeriod
	}
	if c.Timing.ConnectTimeout == 0 {
		c.Timing.ConnectTimeout = def.Timing.ConnectTimeout
	}
	if c.Timing.PollInterval == 0 {
		c.Timing.PollInterval = def.Timing.PollInterval
	}
	if c.Timing.ReadSlice == 0 {
		c.Timing.ReadSlice = def.Timing.ReadSlice
	}

	if c.Mock.Period == 0 {
		c.Mock.Period = def.Mock.Period
	}
}
