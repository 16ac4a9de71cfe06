package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/srg/ellsl/internal/elapi"
	"github.com/srg/ellsl/session"
)

// streamCmd represents the headless stream command
var streamCmd = &cobra.Command{
	Use:   "stream",
	Short: "Stream gaze samples without the console",
	Long: `Connect to the service, optionally calibrate, start tracking and publish
the gaze stream until Ctrl+C, the duration elapses or the service closes the connection.`,
	Args: cobra.NoArgs,
	RunE: runStream,
}

var (
	streamRate      int
	streamServer    string
	streamCalibrate int
	streamDuration  time.Duration
)

const (
	phaseWaiting = "waiting for consumers"
	phaseServing = "serving consumers"
	phaseStopped = "stopped"
)

func init() {
	streamCmd.Flags().IntVarP(&streamRate, "rate", "r", 0, "Frame rate [hz] (default from config)")
	streamCmd.Flags().StringVarP(&streamServer, "server", "s", "", "Server address ip[:port]; local service when empty")
	streamCmd.Flags().IntVarP(&streamCalibrate, "calibrate", "m", 0, "Calibrate with this many points after tracking starts (0 skips)")
	streamCmd.Flags().DurationVarP(&streamDuration, "duration", "d", 0, "Stop after this long (0 for indefinite)")
}

func runStream(cmd *cobra.Command, _ []string) error {
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

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := streamOptions{
		rate:      streamRate,
		server:    streamServer,
		calibrate: streamCalibrate,
		duration:  streamDuration,
	}
	if opts.rate <= 0 {
		opts.rate = a.cfg.DefaultRate
	}
	return streamSession(ctx, a, sess, cmd.OutOrStdout(), opts)
}

type streamOptions struct {
	rate      int
	server    string
	calibrate int
	duration  time.Duration
}

// streamSession runs one headless streaming session. It returns nil when the
// duration elapsed, ctx.Err() on cancellation and ErrConnectionLost when the service went away.
func streamSession(ctx context.Context, a *app, sess *session.Session, out io.Writer, opts streamOptions) error {
	if err := connectSession(ctx, sess, opts.server); err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}
	if err := sess.RequestTracking(opts.rate).Err(); err != nil {
		return fmt.Errorf("failed to start tracking at %d Hz: %w", opts.rate, err)
	}

	if opts.calibrate > 0 {
		fmt.Fprintf(out, "Calibrating with %d points...\n", opts.calibrate)
		if err := sess.RequestCalibration(opts.calibrate).Err(); err != nil {
			return fmt.Errorf("calibration failed: %w", err)
		}
	}

	info, _ := sess.StreamInfo()
	fmt.Fprintf(out, "Streaming %s at %d Hz on %s\n", info.SourceID, opts.rate, a.streamURL())

	if opts.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.duration)
		defer cancel()
	}

	var progress *ProgressPrinter
	if opts.duration > 0 {
		progress = NewCountdownProgressPrinter(out, "Streaming", phaseWaiting, opts.duration, phaseStopped)
	} else {
		progress = NewProgressPrinter(out, "Streaming", phaseWaiting, phaseStopped)
	}
	progress.Start()
	defer progress.Stop()
	setPhase := progress.Callback()

	err := watchStream(ctx, sess, setPhase)
	setPhase(phaseStopped)

	stats := sess.NotificationStats()
	fmt.Fprintf(out, "Forwarded %d service notifications, %d dropped\n", stats.Dispatched, stats.Dropped)

	if errors.Is(err, context.DeadlineExceeded) {
		return nil
	}
	return err
}

// connectSession connects locally, or to server when given; a malformed address is reported as is
func connectSession(ctx context.Context, sess *session.Session, server string) error {
	if server == "" {
		return sess.Connect(ctx).Err()
	}
	info, err := elapi.ParseServerInfo(server)
	if err != nil {
		return err
	}
	return sess.ConnectRemote(ctx, info).Err()
}

// watchStream keeps the progress phase in line with the consumers until the stream ends
func watchStream(ctx context.Context, sess *session.Session, setPhase func(string)) error {
	ticker := time.NewTicker(250 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-sess.Events():
			if !ok || ev == elapi.EventConnectionClosed {
				return ErrConnectionLost
			}
		case <-ticker.C:
			if !sess.IsStreaming() {
				return ErrConnectionLost
			}
			if sess.HasConsumers() {
				setPhase(phaseServing)
			} else {
				setPhase(phaseWaiting)
			}
		}
	}
}
