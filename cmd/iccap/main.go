/*
DESCRIPTION
  iccap connects to an Imaging Source frame grabber, records grey scale frames
  into the buffer of the configured output channel and reports statistics of
  the captured frames, optionally writing periodic snapshots.

AUTHORS
  Saxon A. Nelson-Milton <saxon@ausocean.org>
  Alan Noble <alan@ausocean.org>
  Dan Kortschak <dan@ausocean.org>
  The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

// Package iccap is a command line client for the IC capture source.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"runtime/pprof"
	"sync"
	"syscall"
	"time"

	"github.com/beevik/etree"
	"github.com/coreos/go-systemd/daemon"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/ausocean/iccapture/channel"
	"github.com/ausocean/iccapture/config"
	"github.com/ausocean/iccapture/device"
	"github.com/ausocean/iccapture/device/iccapture"
	"github.com/ausocean/iccapture/device/iccapture/dshow"
	"github.com/ausocean/utils/logging"
	"github.com/ausocean/utils/pool"
)

// Current software version.
const version = "v0.1.0"

// Logging configuration.
const (
	logPath      = "iccap.log"
	logMaxSize   = 500 // MB
	logMaxBackup = 10
	logMaxAge    = 28 // days
	logVerbosity = logging.Info
	logSuppress  = true
)

// Misc constants.
const (
	pkg            = "iccap: "
	profilePath    = "iccap.prof"
	frameTimeout   = time.Second
	reloadDebounce = 500 * time.Millisecond
)

// errReload is returned by record when the configuration file has changed.
var errReload = errors.New("configuration changed")

// This is set to true if the 'profile' build tag is provided on build.
var canProfile = false

func main() {
	var (
		showVersion = flag.Bool("version", false, "show version")
		configPath  = flag.String("config", "", "path of the XML device set configuration, empty uses the simulated device defaults")
		deviceID    = flag.String("device", "", "Id of the ICCapturing device element, empty uses the first")
		useSim      = flag.Bool("sim", !dshow.Available(), "use the simulated frame grabber")
		replayPath  = flag.String("replay", "", "file of raw frames for the simulated frame grabber to replay")
		duration    = flag.Duration("duration", 0, "time to record for, 0 records until interrupted")
		outDir      = flag.String("out", "", "directory to write snapshots to, empty disables snapshots")
		every       = flag.Int("every", 25, "write a snapshot every n frames")
		save        = flag.Bool("save", false, "write the configuration back to the file on exit")
		metricsAddr = flag.String("metrics", "", "address to serve prometheus metrics on, e.g. :9100")
		logFile     = flag.String("log", logPath, "log file path")
		verbosity   = flag.Int("verbosity", int(logVerbosity), "log verbosity, -1 (debug) to 4 (fatal)")
	)
	flag.Parse()
	if *showVersion {
		fmt.Println(version)
		os.Exit(0)
	}

	// Create lumberjack logger to handle logging to file.
	fileLog := &lumberjack.Logger{
		Filename:   *logFile,
		MaxSize:    logMaxSize,
		MaxBackups: logMaxBackup,
		MaxAge:     logMaxAge,
	}
	log := logging.New(int8(*verbosity), io.MultiWriter(fileLog, os.Stderr), logSuppress)
	log.Info("starting iccap", "version", version)

	// The runtime must be released and the profile flushed however we exit,
	// so fatal errors go through cu.fatal rather than log.Fatal.
	cu := &cleanup{}
	defer cu.run()

	// If iccap has been built with the profile tag, then we'll start a CPU profile.
	if canProfile {
		profile(log)
		cu.add(pprof.StopCPUProfile)
		log.Info("profiling started")
	}
	cu.add(dshow.RunExitHooks)

	rt, err := newRuntime(*useSim, *replayPath)
	if err != nil {
		cu.fatal(log, pkg+"could not create frame grabber runtime", "error", err)
	}
	src, err := iccapture.Open(log, rt)
	if err != nil {
		cu.fatal(log, pkg+"could not open capture source", "error", err)
	}
	log.Info(pkg+"using "+src.SDKVersion(), "simulated", *useSim)

	c := &capturer{
		log:      log,
		src:      src,
		path:     *configPath,
		deviceID: *deviceID,
		snap:     newSnapshotter(log, *outDir, *every),
	}
	if err := c.configure(); err != nil {
		src.Close()
		cu.fatal(log, pkg+"could not configure capture source", "error", err)
	}

	if *metricsAddr != "" {
		go serveMetrics(log, *metricsAddr)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()
	if *duration > 0 {
		ctx, cancel = context.WithTimeout(ctx, *duration)
		defer cancel()
	}

	reload := make(chan struct{}, 1)
	if c.path != "" {
		w, err := watchConfig(log, c.path, reloadDebounce, func() {
			select {
			case reload <- struct{}{}:
			default:
			}
		})
		if err != nil {
			log.Warning(pkg+"could not watch configuration, changes will not be applied", "error", err)
		} else {
			defer w.Close()
		}
	}

	sdNotify(log, daemon.SdNotifyReady)

	for {
		err = c.record(ctx, reload)
		if !errors.Is(err, errReload) {
			break
		}
		log.Info(pkg + "configuration changed, reconfiguring")
		sdNotify(log, daemon.SdNotifyReloading)
		if err = c.configure(); err != nil {
			break
		}
		sdNotify(log, daemon.SdNotifyReady)
	}
	sdNotify(log, daemon.SdNotifyStopping)
	if err != nil && !errors.Is(err, context.Canceled) && !errors.Is(err, context.DeadlineExceeded) {
		log.Error(pkg+"capture failed", "error", err)
	}

	if *save && c.doc != nil {
		if err := c.save(); err != nil {
			log.Error(pkg+"could not save configuration", "error", err)
		}
	}
	if err := src.Close(); err != nil {
		log.Warning(pkg+"could not close capture source", "error", err)
	}
	log.Info(pkg+"finished", "frames", c.frames)
}

// newRuntime returns the simulated runtime, replaying frames from replay if
// set, if sim is true and the native runtime otherwise.
func newRuntime(sim bool, replay string) (dshow.Runtime, error) {
	if sim {
		dev := dshow.DefaultSimDevice()
		dev.ReplayPath = replay
		return dshow.NewSim(dev), nil
	}
	return dshow.NewRuntime()
}

// capturer drives a capture source from the command line.
type capturer struct {
	log      logging.Logger
	src      *iccapture.Source
	path     string
	deviceID string
	doc      *etree.Document
	snap     *snapshotter
	frames   int
}

// configure loads the configuration file, or the simulated device defaults if
// there is none, and applies it to the source.
func (c *capturer) configure() error {
	cfg := defaultConfig()
	cfg.Logger = c.log
	if c.path != "" {
		cfg = config.Config{DeviceID: c.deviceID, Logger: c.log}
		doc, err := config.Load(c.path, &cfg)
		if err != nil {
			return err
		}
		c.doc = doc
	}

	err := c.src.Set(cfg)
	var me device.MultiError
	if errors.As(err, &me) {
		c.log.Warning(pkg+"configuration problems", "errors", me.Error())
		if errors.Is(err, iccapture.ErrNoOutputChannel) {
			return err
		}
		return nil
	}
	return err
}

// save writes the source's configuration, including any clip rectangle
// limiting, back to the configuration file.
func (c *capturer) save() error {
	err := c.src.WriteConfiguration(c.doc.Root())
	if err != nil {
		return err
	}
	c.doc.Indent(2)
	return c.doc.WriteToFile(c.path)
}

// record connects and starts the source and consumes frames until ctx is
// done or a reload is requested. The source is disconnected on return.
func (c *capturer) record(ctx context.Context, reload <-chan struct{}) error {
	err := c.src.Connect()
	if err != nil {
		return err
	}
	defer func() {
		if err := c.src.Disconnect(); err != nil {
			c.log.Warning(pkg+"could not disconnect", "error", err)
		}
	}()

	video, err := channel.FirstVideoSource(c.src.OutputChannels())
	if err != nil {
		return err
	}
	err = c.src.Start()
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-reload:
			return errReload
		default:
		}

		f, err := video.Buffer.Next(frameTimeout)
		switch err {
		case nil:
		case pool.ErrTimeout:
			c.log.Warning(pkg + "no frame received")
			continue
		case io.EOF:
			return nil
		default:
			return fmt.Errorf("could not read frame: %w", err)
		}

		c.frames++
		mean, std := frameStats(f.Pixels)
		c.log.Debug(pkg+"frame", "number", f.Number, "size", f.Size, "mean", mean, "stddev", std)
		if err := c.snap.add(f); err != nil {
			c.log.Warning(pkg+"could not write snapshot", "error", err)
		}
	}
}

// defaultConfig returns a configuration for the default simulated device.
func defaultConfig() config.Config {
	dev := dshow.DefaultSimDevice()
	return config.Config{
		DeviceName:   dev.Name,
		VideoNorm:    dev.Norms[0],
		InputChannel: dev.Inputs[1],
		Sources: []config.DataSource{
			{ID: "Video", Type: config.SourceVideo, PortImageOrientation: "MF"},
		},
		OutputChannels: []config.OutputChannel{
			{ID: "VideoStream", VideoSourceID: "Video"},
		},
	}
}

// serveMetrics serves the prometheus metrics of the process on addr.
func serveMetrics(l logging.Logger, addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	l.Info(pkg+"serving metrics", "address", addr)
	err := http.ListenAndServe(addr, mux)
	if err != nil {
		l.Error(pkg+"metrics server failed", "error", err)
	}
}

// sdNotify sends state to systemd if we are running under it.
func sdNotify(l logging.Logger, state string) {
	ok, err := daemon.SdNotify(false, state)
	switch {
	case err != nil:
		l.Warning(pkg+"could not notify systemd", "state", state, "error", err)
	case ok:
		l.Debug(pkg+"notified systemd", "state", state)
	}
}

// cleanup holds functions to be run once on exit, in reverse order of
// addition.
type cleanup struct {
	mu  sync.Mutex
	fns []func()
}

func (c *cleanup) add(f func()) {
	c.mu.Lock()
	c.fns = append(c.fns, f)
	c.mu.Unlock()
}

// run calls the added functions. Functions are only called once.
func (c *cleanup) run() {
	c.mu.Lock()
	fns := c.fns
	c.fns = nil
	c.mu.Unlock()
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}

// fatal runs the cleanup before logging at fatal level, which exits.
func (c *cleanup) fatal(l logging.Logger, msg string, args ...interface{}) {
	c.run()
	l.Fatal(msg, args...)
}

func profile(l logging.Logger) {
	f, err := os.Create(profilePath)
	if err != nil {
		l.Fatal(pkg+"could not create CPU profile", "error", err.Error())
	}
	if err := pprof.StartCPUProfile(f); err != nil {
		l.Fatal(pkg+"could not start CPU profile", "error", err.Error())
	}
}
