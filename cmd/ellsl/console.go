package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"syscall"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/smallnest/ringbuffer"
	"github.com/spf13/cobra"
	"github.com/srg/ellsl/internal/elapi"
	"github.com/srg/ellsl/session"
	"golang.org/x/term"
)

// consoleCmd represents the interactive shell
var consoleCmd = &cobra.Command{
	Use:   "console",
	Short: "Interactive tracker console",
	Long: `Start an interactive shell controlling one tracker session.

The console connects to the local service on start. Type 'help' for the
command list. Ctrl+C aborts a running calibration or validation and quits
at the prompt.`,
	Args: cobra.NoArgs,
	RunE: runConsole,
}

const (
	backlogSize = 4096
	promptText  = "ellsl> "
)

var errInterrupted = errors.New("interrupted")

func runConsole(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd)
	if err != nil {
		return err
	}
	cmd.SilenceUsage = true
	defer a.close()

	sess, err := a.newSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	interactive := term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
	c := newConsole(a, sess, os.Stdin, cmd.OutOrStdout(), sigCh, interactive)
	return c.run(cmd.Context())
}

// syncWriter serializes writes from the prompt loop and the abort watcher
type syncWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (s *syncWriter) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.w.Write(p)
}

// console is the interactive shell around one session
type console struct {
	app  *app
	sess *session.Session
	out  io.Writer
	sig  <-chan os.Signal

	lines       chan string
	interactive bool

	// backlog collects service events between prompts
	backlog *ringbuffer.RingBuffer
	dropped atomic.Int64

	ok   *color.Color
	fail *color.Color
	note *color.Color
}

func newConsole(a *app, sess *session.Session, in io.Reader, out io.Writer, sig <-chan os.Signal, interactive bool) *console {
	c := &console{
		app:         a,
		sess:        sess,
		out:         &syncWriter{w: out},
		sig:         sig,
		lines:       make(chan string),
		interactive: interactive,
		backlog:     ringbuffer.New(backlogSize),
		ok:          color.New(color.FgGreen),
		fail:        color.New(color.FgRed),
		note:        color.New(color.FgYellow),
	}
	if !interactive {
		c.ok.DisableColor()
		c.fail.DisableColor()
		c.note.DisableColor()
	}

	go c.readInput(in)
	return c
}

// run auto-connects, then executes commands until 'q', end of input or Ctrl+C at the prompt
func (c *console) run(ctx context.Context) error {
	go c.watchEvents()

	if err := c.execute(ctx, []string{"connect"}); err != nil {
		return err
	}

	for {
		c.flushBacklog()
		fmt.Fprint(c.out, promptText)

		line, err := c.readLine(ctx)
		switch {
		case errors.Is(err, io.EOF):
			fmt.Fprintln(c.out)
			return nil
		case errors.Is(err, errInterrupted):
			fmt.Fprintln(c.out)
			return context.Canceled
		case err != nil:
			return err
		}

		fields := strings.Fields(line)
		if len(fields) == 0 {
			continue
		}
		err = c.execute(ctx, fields)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			c.fail.Fprintf(c.out, "ERROR: %s\n", FormatUserError(err))
		}
	}
}

// execute runs one command line through a fresh command tree, so flags never leak between lines
func (c *console) execute(ctx context.Context, args []string) error {
	root := c.commands(ctx)
	root.SetArgs(args)
	return root.ExecuteContext(ctx)
}

func (c *console) commands(ctx context.Context) *cobra.Command {
	root := &cobra.Command{
		Use:           "console",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	root.SetOut(c.out)
	root.SetErr(c.out)
	root.SetIn(strings.NewReader(""))
	root.CompletionOptions.DisableDefaultCmd = true

	connect := &cobra.Command{
		Use:   "connect",
		Short: "Connect to the local service, or to a remote one with -s",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			server, _ := cmd.Flags().GetString("server")
			return c.connect(ctx, server)
		},
	}
	connect.Flags().StringP("server", "s", "", "Server address ip[:port]")

	startStream := &cobra.Command{
		Use:   "startstream",
		Short: "Start tracking and open the stream; prompts for the rate without -r",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			rate, _ := cmd.Flags().GetInt("rate")
			return c.startStream(ctx, rate, cmd.Flags().Changed("rate"))
		},
	}
	startStream.Flags().IntP("rate", "r", 0, "Frame rate [hz]")

	calibrate := &cobra.Command{
		Use:   "calibrate",
		Short: "Run a calibration; prompts for the point count without -m",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			points, _ := cmd.Flags().GetInt("mode")
			return c.calibrate(ctx, points, cmd.Flags().Changed("mode"))
		},
	}
	calibrate.Flags().IntP("mode", "m", 0, "Calibration points")

	servers := &cobra.Command{
		Use:   "servers",
		Short: "List EyeLogic servers announced on the network",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			timeout, _ := cmd.Flags().GetDuration("timeout")
			return listServers(ctx, c.app, c.out, timeout)
		},
	}
	servers.Flags().DurationP("timeout", "t", c.app.cfg.ServerListTimeout, "How long to collect announcements")

	root.AddCommand(
		connect,
		startStream,
		calibrate,
		&cobra.Command{
			Use:   "validate",
			Short: "Validate the last calibration",
			Args:  cobra.NoArgs,
			RunE:  func(*cobra.Command, []string) error { return c.validate() },
		},
		&cobra.Command{
			Use:   "closestream",
			Short: "Stop tracking and close the stream",
			Args:  cobra.NoArgs,
			RunE:  func(*cobra.Command, []string) error { return c.closeStream(ctx) },
		},
		&cobra.Command{
			Use:   "rates",
			Short: "List the frame rates of the device",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				c.printModes("Frame rates [hz]", c.sess.ListAvailableRates())
				return nil
			},
		},
		&cobra.Command{
			Use:   "calibrations",
			Short: "List the calibration point counts of the device",
			Args:  cobra.NoArgs,
			RunE: func(*cobra.Command, []string) error {
				c.printModes("Calibration points", c.sess.ListAvailableCalibrationModes())
				return nil
			},
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show connection, device and stream state",
			Args:  cobra.NoArgs,
			RunE:  func(*cobra.Command, []string) error { return c.status() },
		},
		servers,
		&cobra.Command{
			Use:     "q",
			Aliases: []string{"quit", "exit"},
			Short:   "Quit the console",
			Args:    cobra.NoArgs,
			RunE:    func(*cobra.Command, []string) error { return errQuit },
		},
	)
	return root
}

func (c *console) connect(ctx context.Context, server string) error {
	var ret elapi.ReturnConnect
	if server == "" {
		ret = c.sess.Connect(ctx)
	} else {
		info, err := elapi.ParseServerInfo(server)
		if err != nil {
			return err
		}
		ret = c.sess.ConnectRemote(ctx, info)
	}

	c.report(ret == elapi.ConnectSuccess, connectMessage(ret))
	if ret != elapi.ConnectSuccess {
		return nil
	}

	if dev, ok := c.sess.DeviceConfig(); ok {
		fmt.Fprintf(c.out, "Eye tracker %d, frame rates [hz]: %s\n", dev.DeviceSerial, c.sess.ListAvailableRates())
	} else {
		c.note.Fprintln(c.out, "No eye tracker is attached to the service")
	}
	return nil
}

func (c *console) startStream(ctx context.Context, rate int, given bool) error {
	if !given {
		var ok bool
		var err error
		rate, ok, err = c.choose(ctx, "Frame rate", c.sess.AvailableRates(), " [hz]", c.app.cfg.DefaultRate)
		if err != nil || !ok {
			return err
		}
	}

	ret := c.sess.RequestTracking(rate)
	c.report(ret == elapi.StartSuccess, startMessage(ret))
	if ret == elapi.StartSuccess {
		fmt.Fprintf(c.out, "Streaming at %d Hz on %s\n", rate, c.app.streamURL())
	}
	return nil
}

func (c *console) calibrate(ctx context.Context, points int, given bool) error {
	if !given {
		var ok bool
		var err error
		points, ok, err = c.choose(ctx, "Calibration points", c.sess.AvailableCalibrationModes(), "", c.app.cfg.DefaultCalibrationPoints)
		if err != nil || !ok {
			return err
		}
	}

	fmt.Fprintf(c.out, "Calibrating with %d points, Ctrl+C aborts\n", points)
	var ret elapi.ReturnCalibrate
	c.abortable("Calibrating", func() {
		ret = c.sess.RequestCalibration(points)
	})
	c.report(ret == elapi.CalibrateSuccess, calibrateMessage(ret))
	return nil
}

func (c *console) validate() error {
	fmt.Fprintln(c.out, "Validating, Ctrl+C aborts")
	var ret elapi.ReturnValidate
	var result elapi.ValidationResult
	c.abortable("Validating", func() {
		ret, result = c.sess.RequestValidation()
	})
	c.report(ret == elapi.ValidateSuccess, validateMessage(ret))
	if ret == elapi.ValidateSuccess {
		printValidation(c.out, result)
	}
	return nil
}

// abortable runs a blocking calibration step; Ctrl+C meanwhile aborts it instead of quitting
func (c *console) abortable(phase string, fn func()) {
	done := make(chan struct{})
	go func() {
		select {
		case <-c.sig:
			c.note.Fprintln(c.out, "\nAborting...")
			c.sess.AbortCalibration()
		case <-done:
		}
	}()

	if c.interactive {
		progress := NewProgressPrinter(c.out, phase, "follow the targets on screen")
		progress.Start()
		defer progress.Stop()
	}

	fn()
	close(done)
}

func (c *console) closeStream(ctx context.Context) error {
	if _, ok := c.sess.StreamInfo(); !ok {
		fmt.Fprintln(c.out, "No stream is open")
		return nil
	}

	if c.sess.HasConsumers() {
		fmt.Fprint(c.out, "Consumers are attached to the stream. Close it anyway? [y/N]: ")
		line, err := c.readLine(ctx)
		if errors.Is(err, errInterrupted) {
			fmt.Fprintln(c.out)
			err = nil
		}
		if err != nil {
			return err
		}
		if answer := strings.ToLower(strings.TrimSpace(line)); answer != "y" && answer != "yes" {
			fmt.Fprintln(c.out, "Stream kept open")
			return nil
		}
	}

	c.sess.StopTracking()
	c.ok.Fprintln(c.out, "Stream closed")
	return nil
}

func (c *console) status() error {
	w := tabwriter.NewWriter(c.out, 0, 0, 2, ' ', 0)

	fmt.Fprintf(w, "Connected:\t%s\n", yesNo(c.sess.IsConnected()))
	if dev, ok := c.sess.DeviceConfig(); ok {
		fmt.Fprintf(w, "Eye tracker:\t%d\n", dev.DeviceSerial)
	} else {
		fmt.Fprintf(w, "Eye tracker:\tnone\n")
	}
	if screen, ok := c.sess.ScreenConfig(); ok {
		fmt.Fprintf(w, "Screen:\t%s %dx%d px, %.1fx%.1f mm\n", screen.Name,
			screen.ResolutionX, screen.ResolutionY, screen.PhysicalSizeXmm, screen.PhysicalSizeYmm)
	}
	fmt.Fprintf(w, "Frame rates [hz]:\t%s\n", orNone(c.sess.ListAvailableRates()))
	fmt.Fprintf(w, "Calibration points:\t%s\n", orNone(c.sess.ListAvailableCalibrationModes()))

	if info, ok := c.sess.StreamInfo(); ok {
		fmt.Fprintf(w, "Stream:\t%s at %g Hz\n", info.SourceID, info.NominalRate)
		fmt.Fprintf(w, "Stream URL:\t%s\n", c.app.streamURL())
		fmt.Fprintf(w, "Consumers:\t%s\n", yesNo(c.sess.HasConsumers()))
	} else {
		fmt.Fprintf(w, "Stream:\tclosed\n")
	}

	stats := c.sess.NotificationStats()
	fmt.Fprintf(w, "Notifications:\t%d received, %d dropped\n", stats.Received, stats.Dropped)
	return w.Flush()
}

func (c *console) printModes(label, modes string) {
	if modes == "" {
		c.note.Fprintf(c.out, "%s: none (not connected or no eye tracker)\n", label)
		return
	}
	fmt.Fprintf(c.out, "%s: %s\n", label, modes)
}

// choose prompts until one of options or 'q' is entered; ok is false when aborted.
// An empty line picks def when it is one of options.
func (c *console) choose(ctx context.Context, label string, options []int, unit string, def int) (value int, ok bool, err error) {
	if len(options) == 0 {
		c.note.Fprintf(c.out, "No %s available (not connected or no eye tracker)\n", strings.ToLower(label))
		return 0, false, nil
	}

	listed := make([]string, len(options))
	for i, o := range options {
		listed[i] = strconv.Itoa(o) + unit
	}

	hint := strings.Join(listed, ", ")
	hasDefault := slices.Contains(options, def)
	if hasDefault {
		hint += fmt.Sprintf("; Enter for %d%s", def, unit)
	}

	for {
		fmt.Fprintf(c.out, "%s (%s; q to abort): ", label, hint)
		line, err := c.readLine(ctx)
		if errors.Is(err, errInterrupted) {
			fmt.Fprintln(c.out)
			return 0, false, nil
		}
		if err != nil {
			return 0, false, err
		}

		answer := strings.TrimSpace(line)
		switch {
		case answer == "q":
			return 0, false, nil
		case answer == "" && hasDefault:
			return def, true, nil
		}
		v, convErr := strconv.Atoi(answer)
		if convErr == nil && slices.Contains(options, v) {
			return v, true, nil
		}
		c.fail.Fprintf(c.out, "Invalid choice %q\n", answer)
	}
}

func (c *console) report(success bool, msg string) {
	if success {
		c.ok.Fprintln(c.out, msg)
		return
	}
	c.fail.Fprintln(c.out, msg)
}

func (c *console) readInput(in io.Reader) {
	defer close(c.lines)

	scanner := bufio.NewScanner(in)
	for scanner.Scan() {
		c.lines <- scanner.Text()
	}
}

// readLine waits for the next input line; Ctrl+C yields errInterrupted, end of input io.EOF
func (c *console) readLine(ctx context.Context) (string, error) {
	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case <-c.sig:
		return "", errInterrupted
	case line, ok := <-c.lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	}
}

// watchEvents queues event messages for the next prompt until the session closes
func (c *console) watchEvents() {
	for ev := range c.sess.Events() {
		msg := fmt.Sprintf("[%s] %s\n", time.Now().Format(time.TimeOnly), eventMessage(ev))
		if c.backlog.Free() < len(msg) {
			c.dropped.Add(1)
			continue
		}
		if _, err := c.backlog.WriteString(msg); err != nil {
			c.dropped.Add(1)
		}
	}
}

func (c *console) flushBacklog() {
	if n := c.backlog.Length(); n > 0 {
		buf := make([]byte, n)
		if read, err := c.backlog.Read(buf); err == nil {
			c.note.Fprint(c.out, string(buf[:read]))
		}
	}
	if d := c.dropped.Swap(0); d > 0 {
		c.note.Fprintf(c.out, "(%d service events not shown)\n", d)
	}
}

func printValidation(out io.Writer, result elapi.ValidationResult) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "Point\tTarget [px]\tLeft [px]\tLeft [deg]\tRight [px]\tRight [deg]")
	for i, p := range result.Points {
		fmt.Fprintf(w, "%d\t%.0f, %.0f\t%.1f\t%.2f\t%.1f\t%.2f\n", i+1,
			p.PointPxX, p.PointPxY,
			p.MeanDeviationLeftPx, p.MeanDeviationLeftDeg,
			p.MeanDeviationRightPx, p.MeanDeviationRightDeg)
	}
	_ = w.Flush()
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
