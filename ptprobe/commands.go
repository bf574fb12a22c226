package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"text/tabwriter"

	"github.com/itohio/goptprobe/pkg/channel"
	"github.com/itohio/goptprobe/pkg/config"
	"github.com/itohio/goptprobe/pkg/onewire"
	"github.com/itohio/goptprobe/pkg/ptprobe"
	"github.com/itohio/goptprobe/pkg/sample"
	"github.com/itohio/goptprobe/pkg/sensor"
	"github.com/itohio/goptprobe/pkg/sink"
	"github.com/spf13/cobra"
)

func newPortsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "ports",
		Short: "List serial ports",
		RunE: func(cmd *cobra.Command, args []string) error {
			ports, err := ptprobe.Ports()
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PORT\tDESCRIPTION\tVID:PID\tSERIAL")
			for _, p := range ports {
				id := ""
				if p.USB {
					id = p.VID + ":" + p.PID
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", p.Name, p.Description, id, p.Serial)
			}
			return w.Flush()
		},
	}
}

func (a *app) newInfoCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "info",
		Short: "Show board id, linked devices and pressure calibration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDevice(func(dev ptprobe.Device) error {
				id, err := dev.BoardID()
				if err != nil {
					return fmt.Errorf("board id: %w", err)
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(w, "Board ID:\t0x%08X\n\n", id)
				fmt.Fprintln(w, "CH\tDEVICE\tID\tFAULT")
				for ch := range channel.NumChannels {
					st, err := dev.StatusT(ch)
					if err != nil {
						return fmt.Errorf("status T%d: %w", ch, err)
					}
					if !st.Mapped {
						fmt.Fprintf(w, "T%d\t-\t-\t-\n", ch)
						continue
					}
					fmt.Fprintf(w, "T%d\t%s\t%d\t%s\n", ch, onewire.Address(st.Addr), st.ID, sensor.Fault(st.Fault))
				}

				fmt.Fprintln(w, "\nCH\tC0\tC1\tC2")
				for ch := range channel.NumChannels {
					sp, err := dev.StatusP(ch)
					if err != nil {
						return fmt.Errorf("status P%d: %w", ch, err)
					}
					fmt.Fprintf(w, "P%d\t%g\t%g\t%g\n", ch, sp.Coeffs[0], sp.Coeffs[1], sp.Coeffs[2])
				}
				return w.Flush()
			})
		},
	}
}

func (a *app) newStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Read every channel once",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDevice(func(dev ptprobe.Device) error {
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "CH\tT (°C)\tTREF (°C)\tP\tADC")
				for ch := range channel.NumChannels {
					fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", ch,
						reading(dev.Temperature(ch)),
						reading(dev.RefTemperature(ch)),
						reading(dev.Pressure(ch)),
						reading(dev.RawADC(ch)),
					)
				}
				return w.Flush()
			})
		},
	}
}

// reading formats a query result; bus errors are shown by name.
func reading(v float32, err error) string {
	var code sensor.Code
	switch {
	case err == nil:
		return strconv.FormatFloat(float64(v), 'f', 4, 32)
	case errors.As(err, &code):
		if code == sensor.Unmapped {
			return "-"
		}
		return code.Error()
	default:
		return "error: " + err.Error()
	}
}

func (a *app) newRunCommand() *cobra.Command {
	var (
		samples  uint32
		outputs  []string
		average  int
		decimate int
		summary  int
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Stream samples to CSV until the count is reached or interrupted",
		RunE: func(cmd *cobra.Command, args []string) error {
			flags := cmd.Flags()
			if !flags.Changed("samples") {
				samples = a.cfg.Run.Samples
			}
			if !flags.Changed("output") {
				outputs = []string{a.cfg.Run.Output}
			}
			if !flags.Changed("average") {
				average = a.cfg.Run.Average
			}
			if !flags.Changed("decimate") {
				decimate = a.cfg.Run.Downsample
			}

			out, err := openSinks(outputs, cmd.OutOrStdout())
			if err != nil {
				return err
			}
			var list *sink.List
			if summary > 0 {
				list = sink.NewList()
				out = append(out, list)
			}

			streamed := false
			err = a.withDevice(func(dev ptprobe.Device) error {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
				defer stop()
				streamed = true
				return stream(ctx, dev, samples, out, average, decimate)
			})
			if !streamed {
				out.Close()
			}
			if err != nil || list == nil {
				return err
			}
			return printSummary(cmd.ErrOrStderr(), list.Downsampled(nil, summary))
		},
	}

	f := cmd.Flags()
	f.Uint32VarP(&samples, "samples", "n", 0, "Number of samples, 0 = until interrupted")
	f.StringArrayVarP(&outputs, "output", "o", []string{"-"}, "CSV output file, - for stdout; repeat for several")
	f.IntVar(&average, "average", 0, "Average blocks of N samples (0 = disabled)")
	f.IntVar(&decimate, "decimate", 0, "Keep every Nth sample (0 = all)")
	f.IntVar(&summary, "summary", 0, "Print N evenly spaced samples to stderr after the run")
	return cmd
}

// openSinks opens every output; on failure the ones already open are closed.
func openSinks(paths []string, stdout io.Writer) (sink.Multi, error) {
	var out sink.Multi
	for _, p := range paths {
		s, err := sink.Open(p, stdout)
		if err != nil {
			out.Close()
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func printSummary(w io.Writer, samples []ptprobe.Sample) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tT0\tT1\tT2\tT3\tP0\tP1\tP2\tP3")
	for _, s := range samples {
		fmt.Fprintf(tw, "%.3fs", s.Timestamp.Seconds())
		for _, v := range s.T {
			fmt.Fprintf(tw, "\t%s", summaryCell(v))
		}
		for _, v := range s.P {
			fmt.Fprintf(tw, "\t%s", summaryCell(v))
		}
		fmt.Fprintln(tw)
	}
	return tw.Flush()
}

func summaryCell(v ptprobe.Value) string {
	switch {
	case !v.Active:
		return "-"
	case !v.OK():
		return v.Code.Error()
	default:
		return strconv.FormatFloat(float64(v.Value), 'f', 2, 32)
	}
}

// stream runs the board and writes processed samples to out.
func stream(ctx context.Context, dev ptprobe.Device, n uint32, out sink.Sink, average, decimate int) error {
	in := make(chan ptprobe.Sample, sample.DefaultBufferSize)
	processed := sample.Chain(
		sample.NewAveraging(average, 0),
		sample.NewDecimator(decimate, 0),
	)(in)

	written := make(chan error, 1)
	go func() {
		var err error
		for s := range processed {
			if err == nil {
				err = out.Write(s)
			}
		}
		written <- err
	}()

	received, runErr := dev.Run(ctx, n, func(s ptprobe.Sample) error {
		in <- s
		return nil
	})
	close(in)
	writeErr := <-written
	closeErr := out.Close()

	log.Printf("Received %d samples", received)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		return runErr
	}
	return errors.Join(writeErr, closeErr)
}

func (a *app) newCalibrateCommand() *cobra.Command {
	var save, store bool

	cmd := &cobra.Command{
		Use:   "calibrate [channel c0 c1 c2]",
		Short: "Write pressure calibration to the board",
		Long: "With arguments, sets the polynomial P = c0 + raw*(c1 + raw*c2) of one channel.\n" +
			"Without arguments, writes every channel configured in the config file.",
		Args: func(cmd *cobra.Command, args []string) error {
			if len(args) != 0 && len(args) != 4 {
				return fmt.Errorf("want 0 or 4 arguments, got %d", len(args))
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			var updates []config.PressureConfig
			if len(args) == 4 {
				p, err := parseCalibration(args)
				if err != nil {
					return err
				}
				updates = append(updates, p)
			} else {
				updates = a.cfg.Pressure
			}

			err := a.withDevice(func(dev ptprobe.Device) error {
				if err := writeCalibration(cmd.OutOrStdout(), dev, updates); err != nil {
					return err
				}
				if store {
					return storeConfig(dev)
				}
				return nil
			})
			if err != nil {
				return err
			}

			if save && len(args) == 4 {
				a.setPressure(updates[0])
				if err := a.cfg.Save(a.configPath); err != nil {
					return err
				}
				log.Printf("Saved calibration to %s", a.configPath)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&save, "save", false, "Also save the calibration to the config file")
	cmd.Flags().BoolVar(&store, "store", false, "Persist the board configuration afterwards")
	return cmd
}

// writeCalibration sets the polynomial of each channel and reads it back.
func writeCalibration(w io.Writer, dev ptprobe.Device, updates []config.PressureConfig) error {
	for _, p := range updates {
		coeffs := [3]float32(p.Coeffs)
		if err := dev.SetPolyCoeffs(p.Channel, coeffs); err != nil {
			return fmt.Errorf("channel %d: %w", p.Channel, err)
		}
		sp, err := dev.StatusP(p.Channel)
		if err != nil {
			return fmt.Errorf("channel %d: %w", p.Channel, err)
		}
		if sp.Coeffs != coeffs {
			return fmt.Errorf("channel %d: board reports %v after writing %v", p.Channel, sp.Coeffs, coeffs)
		}
		fmt.Fprintf(w, "P%d: %g %g %g\n", p.Channel, coeffs[0], coeffs[1], coeffs[2])
	}
	return nil
}

// storeConfig persists the board configuration. The store command has no
// response; a query confirms the board consumed it before the port closes.
func storeConfig(dev ptprobe.Device) error {
	if err := dev.StoreConfig(); err != nil {
		return err
	}
	_, err := dev.BoardID()
	return err
}

func (a *app) newConfigureCommand() *cobra.Command {
	var store bool

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Write the board section and pressure calibration of the config file",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDevice(func(dev ptprobe.Device) error {
				if want := a.cfg.Board.ID; want != 0 {
					if err := dev.SetBoardID(want); err != nil {
						return fmt.Errorf("board id: %w", err)
					}
				}
				if err := dev.SetDebugLevel(a.cfg.Board.DebugLevel); err != nil {
					return fmt.Errorf("debug level: %w", err)
				}
				if err := writeCalibration(cmd.OutOrStdout(), dev, a.cfg.Pressure); err != nil {
					return err
				}

				id, err := dev.BoardID()
				if err != nil {
					return err
				}
				if want := a.cfg.Board.ID; want != 0 && id != want {
					return fmt.Errorf("board reports id 0x%08X after writing 0x%08X", id, want)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Board ID: 0x%08X\n", id)
				if store {
					return storeConfig(dev)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&store, "store", false, "Persist the board configuration afterwards")
	return cmd
}

func parseCalibration(args []string) (config.PressureConfig, error) {
	ch, err := strconv.Atoi(args[0])
	if err != nil || ch < 0 || ch >= channel.NumChannels {
		return config.PressureConfig{}, fmt.Errorf("invalid pressure channel %q", args[0])
	}
	p := config.PressureConfig{Channel: ch}
	for _, s := range args[1:] {
		v, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return config.PressureConfig{}, fmt.Errorf("invalid coefficient %q: %w", s, err)
		}
		p.Coeffs = append(p.Coeffs, float32(v))
	}
	return p, nil
}

func (a *app) setPressure(p config.PressureConfig) {
	for i := range a.cfg.Pressure {
		if a.cfg.Pressure[i].Channel == p.Channel {
			a.cfg.Pressure[i] = p
			return
		}
	}
	a.cfg.Pressure = append(a.cfg.Pressure, p)
}

func (a *app) newSetIDCommand() *cobra.Command {
	var store bool

	cmd := &cobra.Command{
		Use:   "set-id <id>",
		Short: "Change the board id",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseUint(args[0], 0, 32)
			if err != nil {
				return fmt.Errorf("invalid board id %q: %w", args[0], err)
			}
			return a.withDevice(func(dev ptprobe.Device) error {
				if err := dev.SetBoardID(uint32(id)); err != nil {
					return err
				}
				got, err := dev.BoardID()
				if err != nil {
					return err
				}
				if got != uint32(id) {
					return fmt.Errorf("board reports id 0x%08X after writing 0x%08X", got, id)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Board ID: 0x%08X\n", got)
				if store {
					return storeConfig(dev)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&store, "store", false, "Persist the board configuration afterwards")
	return cmd
}

func (a *app) newDebugCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "debug <level>",
		Short: "Set the board's diagnostic verbosity",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			level, err := strconv.ParseInt(args[0], 10, 8)
			if err != nil {
				return fmt.Errorf("invalid debug level %q: %w", args[0], err)
			}
			return a.withDevice(func(dev ptprobe.Device) error {
				return dev.SetDebugLevel(int8(level))
			})
		},
	}
}

func (a *app) newStoreCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "store",
		Short: "Persist the board configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.withDevice(storeConfig)
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the application version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintf(cmd.OutOrStdout(), "Version: %s\n", version)
			return nil
		},
	}
}
