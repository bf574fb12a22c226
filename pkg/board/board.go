// Package board ties the sensor bus, the channel table and the packet
// encoder into the command-driven control loop run by the firmware and by
// the simulated board.
package board

import (
	"fmt"
	"io"
	"log"
	"time"

	"github.com/itohio/goptprobe/pkg/analog"
	"github.com/itohio/goptprobe/pkg/channel"
	"github.com/itohio/goptprobe/pkg/command"
	"github.com/itohio/goptprobe/pkg/onewire"
	"github.com/itohio/goptprobe/pkg/packet"
	"github.com/itohio/goptprobe/pkg/sensor"
)

const DefaultSamplePeriod = 100 * time.Millisecond

// Config is the persistent board configuration.
type Config struct {
	BoardID      uint32
	DebugLevel   int8
	SamplePeriod time.Duration
	PollInterval time.Duration
	MaxPolls     int
	Coeffs       [channel.NumChannels][3]float32
	// PressureOff switches pressure channels off even when an input exists.
	PressureOff [channel.NumChannels]bool
}

// DefaultConfig returns the factory configuration.
func DefaultConfig() Config {
	cfg := Config{
		DebugLevel:   1,
		SamplePeriod: DefaultSamplePeriod,
		PollInterval: channel.DefaultPollInterval,
		MaxPolls:     channel.DefaultMaxPolls,
	}
	for i := range cfg.Coeffs {
		cfg.Coeffs[i] = analog.DefaultCoeffs
	}
	return cfg
}

// Options are the board's hooks into its environment.
type Options struct {
	Logger *log.Logger
	// Sleep replaces time.Sleep while polling conversions.
	Sleep func(time.Duration)
	// Now replaces time.Now.
	Now func() time.Time
	// Store persists the configuration on the store command. Without it
	// the command is logged and ignored.
	Store func(Config) error
}

// Board is a single-threaded command processor. All methods must be called
// from one goroutine.
type Board struct {
	cfg  Config
	opts Options

	sensors *sensor.Bus
	table   *channel.Table
	enc     packet.Encoder
	frame   packet.Frame
	parser  command.Parser

	boot      time.Time
	running   bool
	remaining uint32
	unlimited bool
	next      time.Time
}

// New creates a board over a single-wire bus and analog inputs. Begin must
// be called before commands are handled.
func New(bus onewire.Bus, adc *analog.Reader, cfg Config, opts Options) *Board {
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if cfg.SamplePeriod <= 0 {
		cfg.SamplePeriod = DefaultSamplePeriod
	}

	b := &Board{
		cfg:     cfg,
		opts:    opts,
		sensors: sensor.New(bus, opts.Logger),
		boot:    opts.Now(),
	}
	b.table = channel.NewTable(b.sensors, adc, channel.Options{
		PollInterval: cfg.PollInterval,
		MaxPolls:     cfg.MaxPolls,
		Sleep:        opts.Sleep,
		Logger:       opts.Logger,
	})
	for i := range b.table.P {
		b.table.P[i].Coeffs = cfg.Coeffs[i]
		if cfg.PressureOff[i] {
			b.table.SetEnabled(i, false)
		}
	}
	return b
}

// Begin discovers the devices on the bus and maps them onto channels. It
// returns any duplicate channel claims.
func (b *Board) Begin() []channel.Conflict {
	devices := b.sensors.Discover()
	if b.cfg.DebugLevel > 0 {
		for i, d := range devices {
			b.opts.Logger.Printf("device %d: %s id=%d", i, d.Addr, d.ID)
		}
	}
	return b.table.MapChannels(devices)
}

// Running reports whether a sample run is in progress.
func (b *Board) Running() bool {
	return b.running
}

// Table exposes the channel table.
func (b *Board) Table() *channel.Table {
	return b.table
}

// Sensors exposes the sensor bus.
func (b *Board) Sensors() *sensor.Bus {
	return b.sensors
}

// Config returns the current configuration including live calibration.
func (b *Board) Config() Config {
	cfg := b.cfg
	for i, pc := range b.table.P {
		cfg.Coeffs[i] = pc.Coeffs
	}
	return cfg
}

// HandleByte feeds one received byte to the command parser and executes the
// command it completes, if any.
func (b *Board) HandleByte(c byte, w io.Writer) error {
	cmd, ok := b.parser.Feed(c)
	if !ok {
		return nil
	}
	return b.Handle(cmd, w)
}

// Handle executes a command, writing at most one response frame to w.
// Configuration commands produce no response.
func (b *Board) Handle(cmd command.Command, w io.Writer) error {
	b.debugf("command %s", cmd.Kind)

	switch cmd.Kind {
	case command.KindQuery:
		b.query(cmd.Resp, cmd.Channel)
	case command.KindBoardID:
		b.enc.ID(&b.frame, b.cfg.BoardID)
	case command.KindStatus:
		b.status(cmd.Resp, cmd.Channel)
	case command.KindRun:
		b.running = true
		b.remaining = cmd.Count
		b.unlimited = cmd.Count == 0
		b.next = b.opts.Now()
		return nil
	case command.KindStop:
		b.running = false
		b.enc.Halt(&b.frame)
	case command.KindSetDebug:
		b.cfg.DebugLevel = cmd.Level
		return nil
	case command.KindSetCoeff:
		if err := b.table.SetCoeff(cmd.Channel, cmd.Index, cmd.Value); err != nil {
			b.opts.Logger.Printf("set coefficient: %v", err)
		}
		return nil
	case command.KindSetBoardID:
		b.cfg.BoardID = cmd.BoardID
		return nil
	case command.KindStore:
		if b.opts.Store == nil {
			b.opts.Logger.Printf("store: no storage configured")
			return nil
		}
		if err := b.opts.Store(b.Config()); err != nil {
			b.opts.Logger.Printf("store: %v", err)
		}
		return nil
	default:
		return fmt.Errorf("unhandled command %s", cmd.Kind)
	}

	_, err := b.frame.WriteTo(w)
	return err
}

func (b *Board) query(rt packet.RespType, ch int) {
	switch rt {
	case packet.RespT:
		code := b.table.AcquireOne(ch)
		if code != sensor.OK {
			b.enc.Resp(&b.frame, rt, ch, 0, code)
			return
		}
		b.enc.Resp(&b.frame, rt, ch, b.table.T[ch].T, sensor.OK)
	case packet.RespTref:
		// A device fault still yields a valid reference temperature.
		code := b.table.AcquireOne(ch)
		if code.IsCommError() {
			b.enc.Resp(&b.frame, rt, ch, 0, code)
			return
		}
		b.enc.Resp(&b.frame, rt, ch, b.table.T[ch].Tref, sensor.OK)
	case packet.RespP, packet.RespADC:
		code := b.table.AcquirePressure(ch)
		if code != sensor.OK {
			b.enc.Resp(&b.frame, rt, ch, 0, code)
			return
		}
		v := b.table.P[ch].P
		if rt == packet.RespADC {
			v = b.table.P[ch].Raw
		}
		b.enc.Resp(&b.frame, rt, ch, v, sensor.OK)
	}
}

func (b *Board) status(rt packet.RespType, ch int) {
	valid := ch >= 0 && ch < channel.NumChannels
	switch rt {
	case packet.RespStatusT:
		if !valid || !b.table.T[ch].Mapped() {
			b.enc.StatusT(&b.frame, ch, nil)
			return
		}
		dev, ok := b.sensors.Device(b.table.T[ch].Device)
		if !ok {
			b.enc.StatusT(&b.frame, ch, nil)
			return
		}
		b.enc.StatusT(&b.frame, ch, &dev)
	case packet.RespStatusP:
		if !valid {
			b.enc.Resp(&b.frame, rt, ch, 0, sensor.InvalidIndex)
			return
		}
		b.enc.StatusP(&b.frame, b.table.P[ch])
	}
}

// Step advances a sample run. When a sample is due it acquires every
// channel and writes a DATA frame; after the last requested sample it
// writes HALT and leaves run mode.
func (b *Board) Step(now time.Time, w io.Writer) error {
	if !b.running || now.Before(b.next) {
		return nil
	}
	b.next = b.next.Add(b.cfg.SamplePeriod)
	if b.next.Before(now) {
		b.next = now.Add(b.cfg.SamplePeriod)
	}

	if code := b.table.AcquireAll(); code != sensor.OK {
		b.debugf("acquire: %v", code)
	}
	b.table.AcquireAllPressure()

	ts := uint32(now.Sub(b.boot).Milliseconds())
	b.enc.Data(&b.frame, ts, b.table)
	if _, err := b.frame.WriteTo(w); err != nil {
		return err
	}

	if b.unlimited {
		return nil
	}
	b.remaining--
	if b.remaining > 0 {
		return nil
	}
	b.running = false
	b.enc.Halt(&b.frame)
	_, err := b.frame.WriteTo(w)
	return err
}

func (b *Board) debugf(format string, args ...any) {
	if b.cfg.DebugLevel > 1 {
		b.opts.Logger.Printf(format, args...)
	}
}
