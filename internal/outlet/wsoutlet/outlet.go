// Package wsoutlet implements outlet.Outlet as a WebSocket push server.
//
// Every consumer first receives the stream description as a JSON text
// message, then one binary frame per sample (see EncodeFrame). A slow
// consumer never blocks the producer: each consumer owns an overlapped
// queue and loses its oldest frames when it falls behind.
package wsoutlet

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cornelk/hashmap"
	"github.com/gorilla/websocket"
	"github.com/hedzr/go-ringbuf/v2/mpmc"
	"github.com/mcuadros/go-defaults"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"github.com/srg/ellsl/internal/groutine"
	"github.com/srg/ellsl/internal/outlet"
)

// Options configure a WebSocket outlet
type Options struct {
	ListenAddr   string        `default:"127.0.0.1:0"`
	Path         string        `default:"/gaze"`
	QueueSize    uint32        `default:"1024"`
	WriteTimeout time.Duration `default:"5s"`

	// Metrics is optional; share one instance between outlets of a factory
	Metrics *Metrics
	// Gatherer, when set, is served on /metrics
	Gatherer prometheus.Gatherer
	Logger   *logrus.Logger
}

// Outlet is a WebSocket push outlet for one stream
type Outlet struct {
	info     outlet.StreamInfo
	opts     Options
	logger   *logrus.Logger
	metrics  *Metrics
	listener net.Listener
	server   *http.Server
	mux      *http.ServeMux
	upgrader websocket.Upgrader

	consumers *hashmap.Map[uint64, *consumer]
	nextID    atomic.Uint64
	closed    atomic.Bool
}

type consumer struct {
	id        uint64
	conn      *websocket.Conn
	queue     mpmc.RichOverlappedRingBuffer[[]byte]
	wake      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
}

// New starts an outlet for info listening on opts.ListenAddr
func New(info outlet.StreamInfo, opts Options) (*Outlet, error) {
	if err := info.Validate(); err != nil {
		return nil, err
	}
	defaults.SetDefaults(&opts)
	if opts.Logger == nil {
		opts.Logger = logrus.New()
	}

	listener, err := net.Listen("tcp", opts.ListenAddr)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", opts.ListenAddr, err)
	}

	o := &Outlet{
		info:      info,
		opts:      opts,
		logger:    opts.Logger,
		metrics:   opts.Metrics,
		listener:  listener,
		consumers: hashmap.New[uint64, *consumer](),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 8 * 1024,
			// consumers are local tools, not browsers
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}

	o.mux = http.NewServeMux()
	o.mux.HandleFunc(opts.Path, o.handleSubscribe)
	o.mux.HandleFunc(opts.Path+"/info", o.handleInfo)
	if opts.Gatherer != nil {
		o.mux.Handle("/metrics", promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{}))
	}
	o.server = &http.Server{Handler: o.mux, ReadHeaderTimeout: 5 * time.Second}

	groutine.Go(context.Background(), "wsoutlet-serve", func(ctx context.Context) {
		if err := o.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			o.logger.WithError(err).Error("Outlet server stopped")
		}
	})

	o.metrics.outletCreated()
	o.logger.WithFields(logrus.Fields{
		"stream": info.Name,
		"rate":   info.NominalRate,
		"uid":    info.UID,
		"url":    o.URL(),
	}).Info("Outlet opened")

	return o, nil
}

// NewFactory returns an outlet.Factory creating WebSocket outlets with opts
func NewFactory(opts Options) outlet.Factory {
	return func(info outlet.StreamInfo) (outlet.Outlet, error) {
		return New(info, opts)
	}
}

// Info returns the stream description
func (o *Outlet) Info() outlet.StreamInfo {
	return o.info
}

// Addr returns the listen address
func (o *Outlet) Addr() string {
	return o.listener.Addr().String()
}

// URL returns the WebSocket URL consumers subscribe to
func (o *Outlet) URL() string {
	return "ws://" + o.Addr() + o.opts.Path
}

// Handler returns the outlet's HTTP handler
func (o *Outlet) Handler() http.Handler {
	return o.mux
}

// ConsumerCount returns the number of subscribed consumers
func (o *Outlet) ConsumerCount() int {
	return o.consumers.Len()
}

// HaveConsumers reports whether at least one consumer is subscribed
func (o *Outlet) HaveConsumers() bool {
	return !o.closed.Load() && o.consumers.Len() > 0
}

// PushSample queues one frame for every consumer; it never blocks on the network
func (o *Outlet) PushSample(values []float64, timestamp float64) error {
	if o.closed.Load() {
		return outlet.ErrClosed
	}
	if len(values) != o.info.ChannelCount {
		return fmt.Errorf("stream %q expects %d values, got %d", o.info.Name, o.info.ChannelCount, len(values))
	}

	frame := EncodeFrame(values, timestamp)
	o.consumers.Range(func(_ uint64, c *consumer) bool {
		overwrites, err := c.queue.EnqueueM(frame)
		if err != nil {
			o.logger.WithError(err).WithField("consumer", c.id).Warn("Failed to queue frame")
			return true
		}
		o.metrics.framesOverwritten(overwrites)
		c.signal()
		return true
	})
	o.metrics.samplePushed()
	return nil
}

// Close stops accepting consumers and disconnects the subscribed ones. Safe to call more than once.
func (o *Outlet) Close() error {
	if !o.closed.CompareAndSwap(false, true) {
		return nil
	}

	err := o.server.Close()

	var live []*consumer
	o.consumers.Range(func(_ uint64, c *consumer) bool {
		live = append(live, c)
		return true
	})
	for _, c := range live {
		o.drop(c, "outlet closed")
	}
	o.metrics.setConsumers(0)

	o.logger.WithFields(logrus.Fields{
		"stream": o.info.Name,
		"uid":    o.info.UID,
	}).Info("Outlet closed")

	if err != nil && !errors.Is(err, net.ErrClosed) {
		return fmt.Errorf("failed to close outlet %q: %w", o.info.Name, err)
	}
	return nil
}

func (o *Outlet) handleInfo(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(o.info); err != nil {
		o.logger.WithError(err).Warn("Failed to write stream info")
	}
}

func (o *Outlet) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	if o.closed.Load() {
		http.Error(w, outlet.ErrClosed.Error(), http.StatusServiceUnavailable)
		return
	}

	conn, err := o.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already replied to the client
		o.logger.WithError(err).Debug("Consumer upgrade failed")
		return
	}

	header, err := json.Marshal(o.info)
	if err == nil {
		_ = conn.SetWriteDeadline(time.Now().Add(o.opts.WriteTimeout))
		err = conn.WriteMessage(websocket.TextMessage, header)
	}
	if err != nil {
		o.logger.WithError(err).Warn("Failed to send stream info to consumer")
		_ = conn.Close()
		return
	}

	c := &consumer{
		id:    o.nextID.Add(1),
		conn:  conn,
		queue: mpmc.NewOverlappedRingBuffer[[]byte](o.opts.QueueSize),
		wake:  make(chan struct{}, 1),
		done:  make(chan struct{}),
	}
	o.consumers.Set(c.id, c)
	o.metrics.setConsumers(o.consumers.Len())

	// Close may have run its sweep before the Set above
	if o.closed.Load() {
		o.drop(c, "outlet closed")
		return
	}

	o.logger.WithFields(logrus.Fields{
		"consumer": c.id,
		"remote":   r.RemoteAddr,
	}).Info("Consumer subscribed")

	groutine.Go(r.Context(), fmt.Sprintf("wsoutlet-writer-%d", c.id), func(ctx context.Context) {
		o.writeLoop(c)
	})
	o.readLoop(c)
}

// readLoop discards consumer messages; it exists to notice the consumer going away
func (o *Outlet) readLoop(c *consumer) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				o.logger.WithError(err).WithField("consumer", c.id).Debug("Consumer read failed")
			}
			o.drop(c, "consumer left")
			return
		}
	}
}

func (o *Outlet) writeLoop(c *consumer) {
	for {
		select {
		case <-c.done:
			return
		case <-c.wake:
		}

		for !c.queue.IsEmpty() {
			frame, err := c.queue.Dequeue()
			if err != nil {
				break
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(o.opts.WriteTimeout))
			if err := c.conn.WriteMessage(websocket.BinaryMessage, frame); err != nil {
				o.logger.WithError(err).WithField("consumer", c.id).Debug("Consumer write failed")
				o.drop(c, "write failed")
				return
			}
		}
	}
}

func (o *Outlet) drop(c *consumer, reason string) {
	if o.consumers.Del(c.id) {
		o.metrics.setConsumers(o.consumers.Len())
		o.logger.WithFields(logrus.Fields{
			"consumer": c.id,
			"reason":   reason,
		}).Info("Consumer unsubscribed")
	}
	c.close(reason)
}

// signal wakes the writer without blocking; one pending wake covers any number of frames
func (c *consumer) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *consumer) close(reason string) {
	c.closeOnce.Do(func() {
		close(c.done)
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second))
		_ = c.conn.Close()
	})
}
