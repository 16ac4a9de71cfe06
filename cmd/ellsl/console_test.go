package main

import (
	"bytes"
	"context"
	"io"
	"os"
	"regexp"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/srg/ellsl/internal/outlet/wsoutlet"
	"github.com/srg/ellsl/internal/testutils"
	"github.com/srg/ellsl/pkg/config"
	"github.com/srg/ellsl/session"
	"github.com/stretchr/testify/suite"
)

const eventually = 3 * time.Second

// lockedBuffer is an output sink the test can read while the console writes
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

// testConfig returns a configuration with an ephemeral outlet port and a fast simulator
func testConfig() *config.Config {
	cfg := config.DefaultConfig()
	cfg.Outlet.ListenAddr = "127.0.0.1:0"
	cfg.ServerListTimeout = 200 * time.Millisecond
	cfg.Simulator.CalibrationDuration = 50 * time.Millisecond
	return cfg
}

// consoleFixture runs a console against an in-process service, fed through a pipe
type consoleFixture struct {
	suite.Suite
	app  *app
	sess *session.Session
	in   *io.PipeWriter
	out  *lockedBuffer
	sig  chan os.Signal
	done chan error
}

func (s *consoleFixture) start(cfg *config.Config) {
	a, err := newAppWithConfig(cfg, testutils.NewQuietLogger())
	s.Require().NoError(err)
	s.app = a

	sess, err := a.newSession()
	s.Require().NoError(err)
	s.sess = sess

	r, w := io.Pipe()
	s.in = w
	s.out = &lockedBuffer{}
	s.sig = make(chan os.Signal, 1)
	// the goroutine keeps its own channel; the next test replaces s.done
	done := make(chan error, 1)
	s.done = done

	c := newConsole(a, sess, r, s.out, s.sig, false)
	go func() { done <- c.run(context.Background()) }()

	s.waitOutput("ellsl> ")
}

func (s *consoleFixture) TearDownTest() {
	_ = s.in.Close()
	s.sess.Close()
	s.app.close()
}

// send types one line into the console
func (s *consoleFixture) send(line string) {
	_, err := io.WriteString(s.in, line+"\n")
	s.Require().NoError(err, "console MUST accept input")
}

func (s *consoleFixture) waitOutput(fragment string) {
	s.Require().Eventually(func() bool {
		return strings.Contains(s.out.String(), fragment)
	}, eventually, 5*time.Millisecond, "output MUST contain %q, got:\n%s", fragment, s.out.String())
}

func (s *consoleFixture) waitOutputMatch(pattern string) {
	re := regexp.MustCompile(pattern)
	s.Require().Eventually(func() bool {
		return re.MatchString(s.out.String())
	}, eventually, 5*time.Millisecond, "output MUST match %q, got:\n%s", pattern, s.out.String())
}

func (s *consoleFixture) waitExit() error {
	select {
	case err := <-s.done:
		return err
	case <-time.After(eventually):
		s.FailNow("console MUST exit")
		return nil
	}
}

type ConsoleTestSuite struct {
	consoleFixture
}

func (s *ConsoleTestSuite) SetupTest() {
	s.start(testConfig())
}

func (s *ConsoleTestSuite) TestAutoConnect() {
	// GOAL: Verify the console connects to the local service on start
	//
	// TEST SCENARIO: Start console → connect message → device serial and rates printed

	s.waitOutput("Connected to the EyeLogic service")
	s.waitOutput("Eye tracker 18446744, frame rates [hz]: 60, 250")
	s.True(s.sess.IsConnected(), "session MUST be connected after start")
}

func (s *ConsoleTestSuite) TestStartStream() {
	s.Run("with rate flag", func() {
		// GOAL: Verify startstream -r starts tracking and prints the stream URL
		//
		// TEST SCENARIO: startstream -r 250 → tracking at 250 Hz → ws URL printed

		s.send("startstream -r 250")

		s.waitOutput("Tracking started")
		s.waitOutput("Streaming at 250 Hz on ws://127.0.0.1:")
		s.Equal(250, s.app.service.Tracking(), "service MUST track at the requested rate")
		s.True(s.sess.IsStreaming())
	})

	s.Run("unsupported rate", func() {
		// GOAL: Verify an unsupported rate reports its message and leaves the stream alone
		//
		// TEST SCENARIO: startstream -r 30 → invalid frame rate message → still 250 Hz

		s.send("startstream -r 30")

		s.waitOutput("The requested frame rate is not supported by the device")
		info, ok := s.sess.StreamInfo()
		s.True(ok)
		s.Equal(250.0, info.NominalRate, "stream MUST keep its rate")
	})
}

func (s *ConsoleTestSuite) TestStartStreamPrompt() {
	s.Run("invalid then valid choice", func() {
		// GOAL: Verify startstream without -r prompts until a listed rate is entered
		//
		// TEST SCENARIO: startstream → 120 rejected → 60 accepted → streaming at 60 Hz

		s.send("startstream")
		s.waitOutput("Frame rate (60 [hz], 250 [hz]; Enter for 60 [hz]; q to abort): ")

		s.send("120")
		s.waitOutput(`Invalid choice "120"`)

		s.send("60")
		s.waitOutput("Streaming at 60 Hz")
		s.Equal(60, s.app.service.Tracking())
	})

	s.Run("abort with q", func() {
		// GOAL: Verify 'q' at the prompt aborts without touching the stream
		//
		// TEST SCENARIO: startstream → q → back at the prompt, rate unchanged

		s.send("startstream")
		s.send("q")
		s.send("status")

		s.waitOutput("Stream:")
		s.Equal(60, s.app.service.Tracking(), "aborted prompt MUST NOT change the rate")
	})
}

func (s *ConsoleTestSuite) TestCalibrateAndValidate() {
	// GOAL: Verify the calibration workflow reports every step with its message
	//
	// TEST SCENARIO: calibrate without stream → refused → startstream → calibrate → validate → table

	s.send("calibrate -m 5")
	s.waitOutput("Calibration needs a running stream. Use 'startstream' first")

	s.send("validate")
	s.waitOutput("Validation needs a running stream. Use 'startstream' first")

	s.send("startstream -r 60")
	s.waitOutput("Tracking started")

	s.send("validate")
	s.waitOutput("Validation needs a calibration. Use 'calibrate' first")

	s.send("calibrate -m 5")
	s.waitOutput("Calibrating with 5 points")
	s.waitOutput("Calibration finished")

	s.send("calibrate -m 4")
	s.waitOutput("The requested calibration mode is not supported by the device")

	s.send("validate")
	s.waitOutput("Validation finished")
	s.waitOutput("Point  Target [px]")
	s.waitOutput("1      480, 270")
}

func (s *ConsoleTestSuite) TestCalibratePromptDefault() {
	// GOAL: Verify calibrate without -m offers the configured point count on Enter
	//
	// TEST SCENARIO: startstream → calibrate → prompt names 5 → empty line → calibrates with 5 points

	s.send("startstream -r 60")
	s.waitOutput("Tracking started")

	s.send("calibrate")
	s.waitOutput("Calibration points (1, 5, 9; Enter for 5; q to abort): ")
	s.send("")
	s.waitOutput("Calibrating with 5 points")
	s.waitOutput("Calibration finished")
}

func (s *ConsoleTestSuite) TestCloseStream() {
	s.Run("nothing open", func() {
		// GOAL: Verify closestream without a stream is a no-op with a notice
		//
		// TEST SCENARIO: closestream → "No stream is open"

		s.send("closestream")
		s.waitOutput("No stream is open")
	})

	s.Run("confirmation with consumers", func() {
		// GOAL: Verify closestream asks before dropping attached consumers
		//
		// TEST SCENARIO: stream + subscriber → closestream → n keeps it → closestream → y closes it

		s.send("startstream -r 60")
		s.waitOutput("Tracking started")

		sub, err := wsoutlet.Subscribe(context.Background(), s.app.streamURL())
		s.Require().NoError(err, "subscriber MUST connect")
		defer sub.Close()
		s.Require().Eventually(s.sess.HasConsumers, eventually, 5*time.Millisecond)

		s.send("closestream")
		s.waitOutput("Close it anyway? [y/N]: ")
		s.send("n")
		s.waitOutput("Stream kept open")
		s.True(s.sess.IsStreaming(), "declined close MUST keep the stream")

		s.send("closestream")
		s.send("y")
		s.waitOutput("Stream closed")
		s.False(s.sess.IsStreaming())
		s.Equal(0, s.app.service.Tracking(), "tracking request MUST be withdrawn")
	})
}

func (s *ConsoleTestSuite) TestServiceEvents() {
	s.Run("device unplugged", func() {
		// GOAL: Verify service events are printed before the next prompt and refresh capabilities
		//
		// TEST SCENARIO: unplug → rates empty → event line shown on the next command

		s.app.service.UnplugDevice()
		s.Require().Eventually(func() bool { return len(s.sess.AvailableRates()) == 0 }, eventually, 5*time.Millisecond)

		s.Require().Eventually(func() bool {
			s.send("rates")
			return strings.Contains(s.out.String(), "Eye tracker disconnected")
		}, eventually, 50*time.Millisecond)
		s.waitOutput("Frame rates [hz]: none (not connected or no eye tracker)")
	})

	s.Run("device plugged back", func() {
		s.app.service.PlugDevice()
		s.Require().Eventually(func() bool { return len(s.sess.AvailableRates()) == 2 }, eventually, 5*time.Millisecond)

		s.send("rates")
		s.waitOutput("Frame rates [hz]: 60, 250")
	})

	s.Run("connection closed", func() {
		// GOAL: Verify a closed connection is reported and the stream is gone
		//
		// TEST SCENARIO: stream → service stops → event line → not streaming

		s.send("startstream -r 60")
		s.waitOutput("Tracking started")

		s.app.service.Stop()
		s.Require().Eventually(func() bool { return !s.sess.IsStreaming() }, eventually, 5*time.Millisecond)

		s.Require().Eventually(func() bool {
			s.send("status")
			return strings.Contains(s.out.String(), "Connection to the service closed")
		}, eventually, 50*time.Millisecond)
		s.waitOutputMatch(`Connected:\s+no`)
	})
}

func (s *ConsoleTestSuite) TestServers() {
	// GOAL: Verify servers lists the announced service
	//
	// TEST SCENARIO: servers -t 100ms → "1. 127.0.0.1:2001"

	s.send("servers -t 100ms")
	s.waitOutput("1. 127.0.0.1:2001")
}

func (s *ConsoleTestSuite) TestUnknownCommand() {
	s.send("fly")
	s.waitOutput(`ERROR: unknown command "fly"`)
}

func (s *ConsoleTestSuite) TestHelp() {
	s.send("help")
	for _, name := range []string{"connect", "startstream", "calibrate", "validate", "closestream", "rates", "calibrations", "status", "servers", "q"} {
		s.waitOutput("  " + name)
	}
}

func (s *ConsoleTestSuite) TestQuit() {
	s.send("q")
	s.NoError(s.waitExit(), "q MUST end the console without error")
}

func (s *ConsoleTestSuite) TestEndOfInput() {
	s.Require().NoError(s.in.Close())
	s.NoError(s.waitExit(), "end of input MUST end the console without error")
}

func (s *ConsoleTestSuite) TestCtrlCAtPrompt() {
	s.sig <- syscall.SIGINT
	s.ErrorIs(s.waitExit(), context.Canceled, "Ctrl+C at the prompt MUST quit silently")
}

func TestConsoleTestSuite(t *testing.T) {
	suite.Run(t, new(ConsoleTestSuite))
}

// AbortTestSuite runs a console with a calibration long enough to interrupt
type AbortTestSuite struct {
	consoleFixture
}

func (s *AbortTestSuite) SetupTest() {
	cfg := testConfig()
	cfg.Simulator.CalibrationDuration = time.Minute
	s.start(cfg)
}

func (s *AbortTestSuite) TestCtrlCAbortsCalibration() {
	// GOAL: Verify Ctrl+C during calibration aborts it instead of quitting
	//
	// TEST SCENARIO: startstream → calibrate → Ctrl+C → failure message → console still running

	s.send("startstream -r 60")
	s.waitOutput("Tracking started")

	s.send("calibrate -m 9")
	s.waitOutput("Calibrating with 9 points")
	// the service only aborts a calibration that already runs
	time.Sleep(50 * time.Millisecond)
	s.sig <- syscall.SIGINT

	s.waitOutput("Aborting...")
	s.waitOutput("Calibration failed or was aborted")

	s.send("status")
	s.waitOutput("Connected:")
	select {
	case err := <-s.done:
		s.FailNow("console MUST keep running after an abort", "exited with %v", err)
	default:
	}
}

func TestAbortTestSuite(t *testing.T) {
	suite.Run(t, new(AbortTestSuite))
}
