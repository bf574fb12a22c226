package ptprobe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"sync"
	"time"

	"github.com/itohio/goptprobe/pkg/command"
	"github.com/itohio/goptprobe/pkg/packet"
	"github.com/itohio/goptprobe/pkg/sensor"
)

const (
	// DefaultTimeout bounds the wait for a response. A temperature query
	// may take a full conversion budget on the board.
	DefaultTimeout = 3 * time.Second
	// DefaultBufferSize is the default size of the inbound frame queue.
	DefaultBufferSize = 100
)

var (
	ErrNotConnected = errors.New("not connected")
	ErrTimeout      = errors.New("timed out waiting for response")
	ErrUnexpected   = errors.New("unexpected response")
)

// Controller speaks the probe protocol over a byte stream. Exchanges are
// serialised: one command and its response at a time.
type Controller struct {
	// Timeout bounds the wait for each response.
	Timeout time.Duration

	mu      sync.Mutex
	connMu  sync.RWMutex
	conn    io.ReadWriteCloser
	frames  chan *packet.Frame
	readEnd chan struct{}
}

// attach starts reading frames from conn.
func (c *Controller) attach(conn io.ReadWriteCloser) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.Timeout <= 0 {
		c.Timeout = DefaultTimeout
	}
	c.conn = conn
	c.frames = make(chan *packet.Frame, DefaultBufferSize)
	c.readEnd = make(chan struct{})
	go c.readFrames(conn, c.frames, c.readEnd)
}

// detach closes the connection and waits for the reader to stop.
func (c *Controller) detach() error {
	c.connMu.Lock()
	conn, done := c.conn, c.readEnd
	c.conn = nil
	c.connMu.Unlock()

	if conn == nil {
		return nil
	}
	err := conn.Close()
	<-done
	return err
}

func (c *Controller) connection() (io.ReadWriteCloser, chan *packet.Frame, error) {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	if c.conn == nil {
		return nil, nil, ErrNotConnected
	}
	return c.conn, c.frames, nil
}

// readFrames decodes frames until the stream fails. Bytes that cannot start
// a frame are skipped one at a time, which resynchronises after noise.
func (c *Controller) readFrames(r io.Reader, frames chan<- *packet.Frame, done chan<- struct{}) {
	defer close(done)
	defer close(frames)
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Panic in readFrames: %v", r)
		}
	}()

	for {
		f := &packet.Frame{}
		if err := packet.ReadFrame(r, f); err != nil {
			if errors.Is(err, packet.ErrBadHeader) {
				log.Printf("Skipping byte: %v", err)
				continue
			}
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) {
				log.Printf("Error reading frames: %v", err)
			}
			return
		}

		select {
		case frames <- f:
		default:
			log.Printf("Frame queue full, dropping %s frame", f.Header().Type())
		}
	}
}

// send writes a command, discarding frames left over from earlier
// exchanges. It must be called with c.mu held.
func (c *Controller) send(cmd command.Command) (<-chan *packet.Frame, error) {
	conn, frames, err := c.connection()
	if err != nil {
		return nil, err
	}
	data, err := command.Encode(cmd)
	if err != nil {
		return nil, err
	}

drain:
	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return nil, ErrNotConnected
			}
			log.Printf("Discarding stale %s frame", f.Header().Type())
		default:
			break drain
		}
	}

	if _, err := conn.Write(data); err != nil {
		return nil, fmt.Errorf("failed to send %s command: %w", cmd.Kind, err)
	}
	return frames, nil
}

func (c *Controller) await(frames <-chan *packet.Frame) (*packet.Frame, error) {
	select {
	case f, ok := <-frames:
		if !ok {
			return nil, ErrNotConnected
		}
		return f, nil
	case <-time.After(c.Timeout):
		return nil, ErrTimeout
	}
}

// exchange sends a command and returns the next frame.
func (c *Controller) exchange(cmd command.Command) (*packet.Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	frames, err := c.send(cmd)
	if err != nil {
		return nil, err
	}
	return c.await(frames)
}

// post sends a command that has no response.
func (c *Controller) post(cmd command.Command) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	_, err := c.send(cmd)
	return err
}

func (c *Controller) value(rt packet.RespType, ch int) (float32, error) {
	f, err := c.exchange(command.Command{Kind: command.KindQuery, Resp: rt, Channel: ch})
	if err != nil {
		return 0, err
	}
	r, err := packet.DecodeResp(f)
	if err != nil {
		return 0, err
	}
	if r.Type != rt || r.Channel != ch&0x03 {
		return 0, fmt.Errorf("%w: %s channel %d for %s channel %d", ErrUnexpected, r.Type, r.Channel, rt, ch)
	}
	if r.Err {
		return 0, fmt.Errorf("%s channel %d: %w", rt, ch, sensor.Code(r.Code))
	}
	return r.Value, nil
}

// BoardID queries the board identifier.
func (c *Controller) BoardID() (uint32, error) {
	f, err := c.exchange(command.Command{Kind: command.KindBoardID})
	if err != nil {
		return 0, err
	}
	r, err := packet.DecodeResp(f)
	if err != nil {
		return 0, err
	}
	if r.Type != packet.RespID {
		return 0, fmt.Errorf("%w: %s for board id", ErrUnexpected, r.Type)
	}
	return r.Raw, nil
}

// Temperature runs a conversion on a channel and returns the probe
// temperature in °C. Device faults and bus errors are returned as a
// wrapped sensor.Code.
func (c *Controller) Temperature(ch int) (float32, error) {
	return c.value(packet.RespT, ch)
}

// RefTemperature returns the cold-junction temperature of a channel.
func (c *Controller) RefTemperature(ch int) (float32, error) {
	return c.value(packet.RespTref, ch)
}

// Pressure returns the calibrated pressure of a channel.
func (c *Controller) Pressure(ch int) (float32, error) {
	return c.value(packet.RespP, ch)
}

// RawADC returns the normalised analog reading of a pressure channel.
func (c *Controller) RawADC(ch int) (float32, error) {
	return c.value(packet.RespADC, ch)
}

// StatusT returns the device linked to a temperature channel.
func (c *Controller) StatusT(ch int) (packet.StatusT, error) {
	f, err := c.exchange(command.Command{Kind: command.KindStatus, Resp: packet.RespStatusT, Channel: ch})
	if err != nil {
		return packet.StatusT{}, err
	}
	return packet.DecodeStatusT(f)
}

// StatusP returns the calibration of a pressure channel.
func (c *Controller) StatusP(ch int) (packet.StatusP, error) {
	f, err := c.exchange(command.Command{Kind: command.KindStatus, Resp: packet.RespStatusP, Channel: ch})
	if err != nil {
		return packet.StatusP{}, err
	}
	return packet.DecodeStatusP(f)
}

// SetDebugLevel sets the board's diagnostic verbosity.
func (c *Controller) SetDebugLevel(level int8) error {
	return c.post(command.Command{Kind: command.KindSetDebug, Level: level})
}

// SetPolyCoeffs replaces the calibration polynomial of a pressure channel.
func (c *Controller) SetPolyCoeffs(ch int, coeffs [3]float32) error {
	for i, v := range coeffs {
		err := c.post(command.Command{Kind: command.KindSetCoeff, Channel: ch, Index: i, Value: v})
		if err != nil {
			return err
		}
	}
	return nil
}

// SetBoardID changes the board identifier.
func (c *Controller) SetBoardID(id uint32) error {
	return c.post(command.Command{Kind: command.KindSetBoardID, BoardID: id})
}

// StoreConfig asks the board to persist its configuration.
func (c *Controller) StoreConfig() error {
	return c.post(command.Command{Kind: command.KindStore})
}

// Run starts a sample run and calls fn for every DATA frame. n = 0 runs
// until ctx is cancelled. Cancelling ctx or an error from fn stops the
// board; Run returns once the board confirms with HALT. It reports the
// number of samples received.
func (c *Controller) Run(ctx context.Context, n uint32, fn func(Sample) error) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	frames, err := c.send(command.Command{Kind: command.KindRun, Count: n})
	if err != nil {
		return 0, err
	}

	var (
		received int
		result   error
		stopping bool
		deadline <-chan time.Time
		done     = ctx.Done()
	)
	stop := func(cause error) {
		if stopping {
			return
		}
		stopping = true
		result = cause
		done = nil
		deadline = time.After(c.Timeout)
		conn, _, err := c.connection()
		if err == nil {
			data, _ := command.Encode(command.Command{Kind: command.KindStop})
			_, err = conn.Write(data)
		}
		if err != nil {
			log.Printf("Failed to stop run: %v", err)
		}
	}

	for {
		select {
		case f, ok := <-frames:
			if !ok {
				return received, ErrNotConnected
			}
			switch f.Header().Type() {
			case packet.TypeData:
				d, err := packet.DecodeData(f)
				if err != nil {
					log.Printf("Bad DATA frame: %v", err)
					continue
				}
				received++
				if stopping {
					continue
				}
				if err := fn(NewSample(d, time.Now())); err != nil {
					stop(err)
				}
			case packet.TypeHalt:
				if _, err := packet.DecodeHalt(f); err != nil {
					log.Printf("Bad HALT frame: %v", err)
				}
				return received, result
			default:
				log.Printf("Ignoring %s frame during run", f.Header().Type())
			}
		case <-done:
			stop(ctx.Err())
		case <-deadline:
			return received, fmt.Errorf("waiting for HALT: %w", ErrTimeout)
		}
	}
}
