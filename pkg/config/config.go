package config

import (
	"fmt"
	"os"
	"time"

	"github.com/itohio/goptprobe/pkg/analog"
	"github.com/itohio/goptprobe/pkg/board"
	"github.com/itohio/goptprobe/pkg/channel"
	"gopkg.in/yaml.v3"
)

// Config represents the host application configuration.
type Config struct {
	Serial      SerialConfig      `yaml:"serial"`
	Board       BoardConfig       `yaml:"board"`
	Pressure    []PressureConfig  `yaml:"pressure"`
	Acquisition AcquisitionConfig `yaml:"acquisition"`
	Run         RunConfig         `yaml:"run"`
	Mock        MockConfig        `yaml:"mock"`
}

// SerialConfig contains serial port configuration.
type SerialConfig struct {
	Port     string        `yaml:"port"`
	BaudRate int           `yaml:"baud_rate"`
	Timeout  time.Duration `yaml:"timeout"` // Response timeout for single queries
}

// BoardConfig is the board setup pushed by the configure command. An id of
// 0 leaves the board's id unchanged.
type BoardConfig struct {
	ID         uint32 `yaml:"id"`
	DebugLevel int8   `yaml:"debug_level"`
}

// PressureConfig holds the calibration polynomial of one pressure channel:
// P = c0 + raw*(c1 + raw*c2) with raw normalised to [0, 1].
type PressureConfig struct {
	Channel  int       `yaml:"channel"`
	Coeffs   []float32 `yaml:"coeffs"`
	Disabled bool      `yaml:"disabled,omitempty"` // Applied by the simulated board only
}

// AcquisitionConfig contains board acquisition timing. The firmware has
// these compiled in; the simulated board takes them from here.
type AcquisitionConfig struct {
	PollInterval time.Duration `yaml:"poll_interval"`
	MaxPolls     int           `yaml:"max_polls"`
	SamplePeriod time.Duration `yaml:"sample_period"`
}

// RunConfig contains defaults for the run command.
type RunConfig struct {
	Samples    uint32 `yaml:"samples"`    // 0 = until interrupted
	Output     string `yaml:"output"`     // CSV file, "-" for stdout
	Average    int    `yaml:"average"`    // Samples to average (0 = disabled)
	Downsample int    `yaml:"downsample"` // Keep every Nth sample (0 = all)
}

// MockConfig describes the simulated board. Its timing, debug level and
// calibration come from the acquisition, board and pressure sections.
type MockConfig struct {
	BoardID      uint32      `yaml:"board_id"` // Factory id, used when board.id is 0
	Probes       []MockProbe `yaml:"probes"`
	Pressure     []uint16    `yaml:"pressure"`      // Raw 16-bit ADC value per channel
	ConvertPolls int         `yaml:"convert_polls"` // Busy polls per conversion
	NoiseLevel   float64     `yaml:"noise_level"`   // Temperature noise amplitude (°C)
}

// MockProbe is one simulated thermocouple converter.
type MockProbe struct {
	ID          uint8   `yaml:"id"`
	Temperature float32 `yaml:"temperature"`
	Reference   float32 `yaml:"reference"`
	Fault       uint8   `yaml:"fault"`
}

// Default returns a default configuration with sensible values.
func Default() *Config {
	cfg := &Config{
		Serial: SerialConfig{
			Port:     "/dev/ttyACM0", // "COM3" on Windows
			BaudRate: 115200,
			Timeout:  3 * time.Second,
		},
		Board: BoardConfig{
			DebugLevel: 1,
		},
		Acquisition: AcquisitionConfig{
			PollInterval: channel.DefaultPollInterval,
			MaxPolls:     channel.DefaultMaxPolls,
			SamplePeriod: board.DefaultSamplePeriod,
		},
		Run: RunConfig{
			Output: "-",
		},
		Mock: MockConfig{
			BoardID: 0x00C0FFEE,
			Probes: []MockProbe{
				{ID: 0, Temperature: 21.5, Reference: 23.0625},
				{ID: 1, Temperature: 100.25, Reference: 23.125},
				{ID: 2, Temperature: 0, Reference: 23.0625, Fault: 1},
			},
			Pressure:     []uint16{0x4000, 0x8000},
			ConvertPolls: 3,
			NoiseLevel:   0.25,
		},
	}
	for ch := range 2 {
		coeffs := analog.DefaultCoeffs
		cfg.Pressure = append(cfg.Pressure, PressureConfig{
			Channel: ch,
			Coeffs:  coeffs[:],
		})
	}
	return cfg
}

// Load loads configuration from a YAML file. If the file doesn't exist or
// fields are missing, it uses default values.
func Load(filename string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	cfg.ensureDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", filename, err)
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate checks ranges that cannot be defaulted.
func (c *Config) Validate() error {
	seen := make(map[int]bool)
	for _, p := range c.Pressure {
		if p.Channel < 0 || p.Channel >= channel.NumChannels {
			return fmt.Errorf("pressure channel %d out of range", p.Channel)
		}
		if seen[p.Channel] {
			return fmt.Errorf("pressure channel %d configured twice", p.Channel)
		}
		seen[p.Channel] = true
		if len(p.Coeffs) != 3 {
			return fmt.Errorf("pressure channel %d: want 3 coefficients, got %d", p.Channel, len(p.Coeffs))
		}
	}
	for _, p := range c.Mock.Probes {
		if p.ID > 0x0F {
			return fmt.Errorf("mock probe id %d does not fit 4 bits", p.ID)
		}
	}
	if len(c.Mock.Pressure) > channel.NumChannels {
		return fmt.Errorf("mock: %d pressure inputs, max %d", len(c.Mock.Pressure), channel.NumChannels)
	}
	return nil
}

// Coeffs returns the calibration of a pressure channel, or the factory
// default when it is not configured.
func (c *Config) Coeffs(ch int) [3]float32 {
	for _, p := range c.Pressure {
		if p.Channel == ch && len(p.Coeffs) == 3 {
			return [3]float32(p.Coeffs)
		}
	}
	return analog.DefaultCoeffs
}

// BoardConfig converts the host configuration into the board's runtime
// configuration.
func (c *Config) BoardConfig() board.Config {
	bc := board.DefaultConfig()
	bc.BoardID = c.Board.ID
	bc.DebugLevel = c.Board.DebugLevel
	bc.PollInterval = c.Acquisition.PollInterval
	bc.MaxPolls = c.Acquisition.MaxPolls
	bc.SamplePeriod = c.Acquisition.SamplePeriod
	for ch := range bc.Coeffs {
		bc.Coeffs[ch] = c.Coeffs(ch)
	}
	for _, p := range c.Pressure {
		if p.Channel >= 0 && p.Channel < len(bc.PressureOff) {
			bc.PressureOff[p.Channel] = p.Disabled
		}
	}
	return bc
}

// ensureDefaults ensures that all required fields have default values if missing.
func (c *Config) ensureDefaults() {
	def := Default()

	if c.Serial.Port == "" {
		c.Serial.Port = def.Serial.Port
	}
	if c.Serial.BaudRate == 0 {
		c.Serial.BaudRate = def.Serial.BaudRate
	}
	if c.Serial.Timeout == 0 {
		c.Serial.Timeout = def.Serial.Timeout
	}

	if c.Acquisition.PollInterval == 0 {
		c.Acquisition.PollInterval = def.Acquisition.PollInterval
	}
	if c.Acquisition.MaxPolls == 0 {
		c.Acquisition.MaxPolls = def.Acquisition.MaxPolls
	}
	if c.Acquisition.SamplePeriod == 0 {
		c.Acquisition.SamplePeriod = def.Acquisition.SamplePeriod
	}

	if c.Run.Output == "" {
		c.Run.Output = def.Run.Output
	}

	if c.Mock.ConvertPolls == 0 {
		c.Mock.ConvertPolls = def.Mock.ConvertPolls
	}
}
