package ptprobe

import (
	"context"
	"fmt"
	"log"
	"math"
	"net"
	"sync"
	"time"

	"github.com/itohio/goptprobe/pkg/analog"
	"github.com/itohio/goptprobe/pkg/board"
	"github.com/itohio/goptprobe/pkg/config"
	"github.com/itohio/goptprobe/pkg/onewire"
	"github.com/itohio/goptprobe/pkg/sensor"
)

// Mock runs a simulated board in a goroutine and talks to it through an
// in-memory connection, so every Controller operation exercises the real
// command parser, board and frame codec.
type Mock struct {
	Controller

	cfg   *config.MockConfig
	board board.Config

	state     sync.RWMutex
	connected bool
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	storeMu sync.Mutex
	stored  *board.Config
}

// NewMock creates a simulated board from the host configuration: the mock
// section describes the hardware, the board, acquisition and pressure
// sections its settings. A nil cfg uses the defaults.
func NewMock(cfg *config.Config) *Mock {
	if cfg == nil {
		cfg = config.Default()
	}
	bc := cfg.BoardConfig()
	if bc.BoardID == 0 {
		bc.BoardID = cfg.Mock.BoardID
	}
	return &Mock{cfg: &cfg.Mock, board: bc}
}

type mockInput uint16

func (m mockInput) Get() uint16 { return uint16(m) }

// build creates the simulated bus and analog inputs.
func (m *Mock) build() (*onewire.Sim, []analog.Input) {
	start := time.Now()
	probes := make(map[*onewire.SimDevice]config.MockProbe, len(m.cfg.Probes))

	sim := onewire.NewSim()
	for i, p := range m.cfg.Probes {
		d := &onewire.SimDevice{
			Addr:         onewire.NewAddress(sensor.FamilyMAX31850, [6]byte{byte(i + 1), 0x31, 0x85, 0x50}),
			ConvertPolls: m.cfg.ConvertPolls,
		}
		d.SetReading(p.Temperature, p.Reference, p.Fault, p.ID)
		probes[d] = p
		sim.Devices = append(sim.Devices, d)
	}

	noise := m.cfg.NoiseLevel
	sim.OnConvert = func(d *onewire.SimDevice) {
		p, ok := probes[d]
		if !ok || noise == 0 {
			return
		}
		s := time.Since(start).Seconds()
		phase := float64(p.ID)
		n := (math.Sin(s*3.1+phase) + math.Cos(s*1.7+2*phase)) * noise * 0.5
		d.SetReading(p.Temperature+float32(n), p.Reference, p.Fault, p.ID)
	}

	inputs := make([]analog.Input, len(m.cfg.Pressure))
	for i, raw := range m.cfg.Pressure {
		inputs[i] = mockInput(raw)
	}
	return sim, inputs
}

// Connect starts the simulated board.
func (m *Mock) Connect() error {
	m.state.Lock()
	defer m.state.Unlock()

	if m.connected {
		return fmt.Errorf("already connected")
	}

	sim, inputs := m.build()
	b := board.New(sim, analog.NewReader(inputs...), m.board, board.Options{
		Logger: log.New(log.Writer(), "Mock: ", log.Flags()),
		Store:  m.store,
	})
	for _, c := range b.Begin() {
		log.Printf("Mock: %s", c)
	}

	host, dev := net.Pipe()
	ctx, cancel := context.WithCancel(context.Background())
	m.cancel = cancel
	m.wg.Add(1)
	go m.serve(ctx, b, dev)

	m.attach(host)
	m.connected = true
	return nil
}

// Close stops the simulated board.
func (m *Mock) Close() error {
	m.state.Lock()
	defer m.state.Unlock()

	if !m.connected {
		return nil
	}

	m.cancel()
	err := m.detach()
	m.wg.Wait()
	m.connected = false
	return err
}

// IsConnected returns whether the device is currently connected.
func (m *Mock) IsConnected() bool {
	m.state.RLock()
	defer m.state.RUnlock()
	return m.connected
}

// Stored returns the configuration last persisted by the store command.
func (m *Mock) Stored() (board.Config, bool) {
	m.storeMu.Lock()
	defer m.storeMu.Unlock()
	if m.stored == nil {
		return board.Config{}, false
	}
	return *m.stored, true
}

func (m *Mock) store(cfg board.Config) error {
	m.storeMu.Lock()
	defer m.storeMu.Unlock()
	m.stored = &cfg
	return nil
}

// serve is the board's main loop: it executes received bytes and advances
// sample runs on a ticker.
func (m *Mock) serve(ctx context.Context, b *board.Board, conn net.Conn) {
	defer m.wg.Done()
	defer conn.Close()

	in := make(chan byte, 64)
	go func() {
		defer close(in)
		buf := make([]byte, 64)
		for {
			n, err := conn.Read(buf)
			for _, c := range buf[:n] {
				select {
				case in <- c:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()

	tick := m.board.SamplePeriod / 10
	if tick < time.Millisecond {
		tick = time.Millisecond
	}
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case c, ok := <-in:
			if !ok {
				return
			}
			if err := b.HandleByte(c, conn); err != nil {
				return
			}
		case now := <-ticker.C:
			if err := b.Step(now, conn); err != nil {
				return
			}
		}
	}
}
