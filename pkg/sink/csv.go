package sink

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/itohio/goptprobe/pkg/channel"
	"github.com/itohio/goptprobe/pkg/ptprobe"
)

// CSV writes one row per sample. Inactive slots are empty and error slots
// hold the code as "E<code>".
type CSV struct {
	w      *csv.Writer
	c      io.Closer
	header bool
}

// NewCSV creates a CSV sink. Closing the sink closes wc.
func NewCSV(wc io.WriteCloser) *CSV {
	return &CSV{w: csv.NewWriter(wc), c: wc}
}

// Header returns the column names.
func Header() []string {
	h := []string{"timestamp_ms", "received"}
	for _, group := range []string{"t", "tref", "p"} {
		for ch := range channel.NumChannels {
			h = append(h, group+strconv.Itoa(ch))
		}
	}
	return h
}

func (c *CSV) Write(s ptprobe.Sample) error {
	if !c.header {
		if err := c.w.Write(Header()); err != nil {
			return fmt.Errorf("failed to write CSV header: %w", err)
		}
		c.header = true
	}

	row := make([]string, 0, 2+3*channel.NumChannels)
	row = append(row,
		strconv.FormatInt(s.Timestamp.Milliseconds(), 10),
		s.Received.Format(time.RFC3339Nano),
	)
	for _, group := range [][channel.NumChannels]ptprobe.Value{s.T, s.Tref, s.P} {
		for _, v := range group {
			row = append(row, cell(v))
		}
	}
	if err := c.w.Write(row); err != nil {
		return fmt.Errorf("failed to write CSV row: %w", err)
	}
	// Every row is on disk when Write returns.
	c.w.Flush()
	return c.w.Error()
}

func cell(v ptprobe.Value) string {
	switch {
	case !v.Active:
		return ""
	case !v.OK():
		return "E" + strconv.Itoa(int(v.Code))
	default:
		return strconv.FormatFloat(float64(v.Value), 'f', -1, 32)
	}
}

func (c *CSV) Close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		c.c.Close()
		return err
	}
	return c.c.Close()
}
