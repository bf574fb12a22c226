package config

import (
	"os"
	"testing"
	"time"

	"github.com/itohio/goptprobe/pkg/analog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeTemp(t *testing.T, content string) string {
	t.Helper()
	tmpfile, err := os.CreateTemp("", "test_config_*.yaml")
	require.NoError(t, err)
	t.Cleanup(func() { os.Remove(tmpfile.Name()) })

	_, err = tmpfile.WriteString(content)
	require.NoError(t, err)
	require.NoError(t, tmpfile.Close())
	return tmpfile.Name()
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.NotNil(t, cfg)
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, 3*time.Second, cfg.Serial.Timeout)
	assert.Equal(t, int8(1), cfg.Board.DebugLevel)
	assert.Equal(t, 2*time.Millisecond, cfg.Acquisition.PollInterval)
	assert.Equal(t, 500, cfg.Acquisition.MaxPolls)
	require.Len(t, cfg.Pressure, 2)
	assert.False(t, cfg.Pressure[0].Disabled)
	assert.True(t, cfg.Pressure[1].Disabled)
	assert.Len(t, cfg.Mock.Probes, 3)
	assert.NoError(t, cfg.Validate())
}

func TestDefault_CoeffsNotShared(t *testing.T) {
	cfg := Default()
	cfg.Pressure[0].Coeffs[0] = 1
	assert.Equal(t, float32(-97.35308), analog.DefaultCoeffs[0])
	assert.Equal(t, float32(-97.35308), cfg.Pressure[1].Coeffs[0])
}

func TestLoad_FileNotExists(t *testing.T) {
	cfg, err := Load("nonexistent.yaml")
	require.NoError(t, err)
	assert.NotNil(t, cfg)
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
}

func TestLoad_ValidYAML(t *testing.T) {
	name := writeTemp(t, `
serial:
  port: "/dev/ttyUSB1"
  baud_rate: 57600
  timeout: 500ms

board:
  id: 42
  debug_level: 0

pressure:
  - channel: 1
    coeffs: [0, 100, 0]
  - channel: 3
    coeffs: [-1, 2.5, 0.125]
    disabled: true

acquisition:
  poll_interval: 5ms
  max_polls: 100
  sample_period: 1s

run:
  samples: 600
  output: run.csv
  average: 4

mock:
  board_id: 7
  probes:
    - id: 3
      temperature: 55.5
      reference: 24
  pressure: [100, 200, 300, 400]
`)

	cfg, err := Load(name)
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	assert.Equal(t, "/dev/ttyUSB1", cfg.Serial.Port)
	assert.Equal(t, 57600, cfg.Serial.BaudRate)
	assert.Equal(t, 500*time.Millisecond, cfg.Serial.Timeout)
	assert.Equal(t, uint32(42), cfg.Board.ID)
	assert.Equal(t, int8(0), cfg.Board.DebugLevel)
	assert.Len(t, cfg.Pressure, 2)
	assert.Equal(t, 5*time.Millisecond, cfg.Acquisition.PollInterval)
	assert.Equal(t, 100, cfg.Acquisition.MaxPolls)
	assert.Equal(t, time.Second, cfg.Acquisition.SamplePeriod)
	assert.Equal(t, uint32(600), cfg.Run.Samples)
	assert.Equal(t, "run.csv", cfg.Run.Output)
	assert.Equal(t, 4, cfg.Run.Average)
	assert.Equal(t, uint32(7), cfg.Mock.BoardID)
	require.Len(t, cfg.Mock.Probes, 1)
	assert.Equal(t, MockProbe{ID: 3, Temperature: 55.5, Reference: 24}, cfg.Mock.Probes[0])
	assert.Equal(t, []uint16{100, 200, 300, 400}, cfg.Mock.Pressure)
}

func TestLoad_InvalidYAML(t *testing.T) {
	cfg, err := Load(writeTemp(t, "invalid: yaml: content: ["))
	assert.Error(t, err)
	assert.Nil(t, cfg)
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"channel out of range", "pressure:\n  - channel: 4\n    coeffs: [0, 1, 0]\n"},
		{"duplicate channel", "pressure:\n  - channel: 1\n    coeffs: [0, 1, 0]\n  - channel: 1\n    coeffs: [0, 1, 0]\n"},
		{"short polynomial", "pressure:\n  - channel: 0\n    coeffs: [0, 1]\n"},
		{"probe id", "mock:\n  probes:\n    - id: 16\n"},
		{"too many inputs", "mock:\n  pressure: [1, 2, 3, 4, 5]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg, err := Load(writeTemp(t, tt.content))
			assert.Error(t, err)
			assert.Nil(t, cfg)
		})
	}
}

func TestLoad_PartialYAML(t *testing.T) {
	cfg, err := Load(writeTemp(t, `
serial:
  port: "/dev/ttyACM0"
`))
	require.NoError(t, err)
	assert.NotNil(t, cfg)

	// Should use defaults for missing fields
	assert.Equal(t, "/dev/ttyACM0", cfg.Serial.Port)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, 500, cfg.Acquisition.MaxPolls)
	assert.Equal(t, "-", cfg.Run.Output)
}

func TestLoad_ZeroedFieldsDefaulted(t *testing.T) {
	cfg, err := Load(writeTemp(t, `
serial:
  baud_rate: 0
acquisition:
  max_polls: 0
mock:
  convert_polls: 0
`))
	require.NoError(t, err)
	assert.Equal(t, 115200, cfg.Serial.BaudRate)
	assert.Equal(t, 500, cfg.Acquisition.MaxPolls)
	assert.Equal(t, 3, cfg.Mock.ConvertPolls)
}

func TestSave(t *testing.T) {
	cfg := Default()
	cfg.Serial.Port = "/dev/ttyUSB0"
	cfg.Board.ID = 0xABCD
	cfg.Pressure[1].Coeffs = []float32{1, 2, 3}

	name := writeTemp(t, "")
	require.NoError(t, cfg.Save(name))

	// Load it back and verify
	loaded, err := Load(name)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB0", loaded.Serial.Port)
	assert.Equal(t, uint32(0xABCD), loaded.Board.ID)
	assert.Equal(t, [3]float32{1, 2, 3}, loaded.Coeffs(1))
	assert.Equal(t, cfg.Acquisition, loaded.Acquisition)
}

func TestCoeffs(t *testing.T) {
	cfg := Default()
	cfg.Pressure = []PressureConfig{{Channel: 2, Coeffs: []float32{1, 2, 3}}}

	assert.Equal(t, [3]float32{1, 2, 3}, cfg.Coeffs(2))
	assert.Equal(t, analog.DefaultCoeffs, cfg.Coeffs(0))
	assert.Equal(t, analog.DefaultCoeffs, cfg.Coeffs(7))
}

func TestBoardConfig(t *testing.T) {
	cfg := Default()
	cfg.Board.ID = 99
	cfg.Board.DebugLevel = 2
	cfg.Acquisition.MaxPolls = 10
	cfg.Acquisition.SamplePeriod = time.Second
	cfg.Pressure = []PressureConfig{
		{Channel: 1, Coeffs: []float32{1, 1, 1}, Disabled: true},
		{Channel: 3, Coeffs: []float32{4, 5, 6}},
	}

	bc := cfg.BoardConfig()
	assert.Equal(t, uint32(99), bc.BoardID)
	assert.Equal(t, int8(2), bc.DebugLevel)
	assert.Equal(t, 10, bc.MaxPolls)
	assert.Equal(t, time.Second, bc.SamplePeriod)
	assert.Equal(t, [3]float32{4, 5, 6}, bc.Coeffs[3])
	assert.Equal(t, analog.DefaultCoeffs, bc.Coeffs[0])
	assert.Equal(t, [4]bool{false, true, false, false}, bc.PressureOff)
}
