package main

import (
	"fmt"
	"log"
	"os"

	"github.com/itohio/goptprobe/pkg/config"
	"github.com/itohio/goptprobe/pkg/ptprobe"
	"github.com/spf13/cobra"
)

// PortEnv overrides the configured serial port.
const PortEnv = "PTPROBE_PORT"

// app carries global flags and the loaded configuration to sub-commands.
type app struct {
	configPath string
	port       string
	baud       int
	mock       bool

	cfg *config.Config
}

func newRootCommand() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:          "ptprobe",
		Short:        "Host tool for the pressure and temperature probe board",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return a.load()
		},
	}

	f := root.PersistentFlags()
	f.StringVar(&a.configPath, "config", "config.yaml", "Configuration file path")
	f.StringVarP(&a.port, "port", "p", "", "Serial port override (default $"+PortEnv+" or config)")
	f.IntVar(&a.baud, "baud", 0, "Baud rate override")
	f.BoolVar(&a.mock, "mock", false, "Use the simulated board instead of a serial port")

	root.AddCommand(
		newPortsCommand(),
		a.newInfoCommand(),
		a.newStatusCommand(),
		a.newRunCommand(),
		a.newCalibrateCommand(),
		a.newConfigureCommand(),
		a.newSetIDCommand(),
		a.newDebugCommand(),
		a.newStoreCommand(),
		newVersionCommand(),
	)
	return root
}

// load reads the configuration and applies environment and flag overrides.
func (a *app) load() error {
	cfg, err := config.Load(a.configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if port := os.Getenv(PortEnv); port != "" {
		cfg.Serial.Port = port
	}
	if a.port != "" {
		cfg.Serial.Port = a.port
	}
	if a.baud > 0 {
		cfg.Serial.BaudRate = a.baud
	}

	a.cfg = cfg
	return nil
}

// connect opens the board selected by the flags.
func (a *app) connect() (ptprobe.Device, error) {
	var dev ptprobe.Device
	if a.mock {
		m := ptprobe.NewMock(a.cfg)
		m.Timeout = a.cfg.Serial.Timeout
		dev = m
		log.Printf("Using simulated board")
	} else {
		s := ptprobe.New(a.cfg.Serial.Port, a.cfg.Serial.BaudRate)
		s.Timeout = a.cfg.Serial.Timeout
		dev = s
		log.Printf("Connecting to %s at %d baud", a.cfg.Serial.Port, a.cfg.Serial.BaudRate)
	}

	if err := dev.Connect(); err != nil {
		return nil, err
	}
	return dev, nil
}

// withDevice connects, runs fn and disconnects.
func (a *app) withDevice(fn func(ptprobe.Device) error) error {
	dev, err := a.connect()
	if err != nil {
		return err
	}
	defer func() {
		if err := dev.Close(); err != nil {
			log.Printf("Error closing device: %v", err)
		}
	}()
	return fn(dev)
}
