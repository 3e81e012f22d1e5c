/*
DESCRIPTION
  iccapture_test.go provides testing for the IC capture source using the
  simulated DShowLib runtime.

AUTHORS
  The Australian Ocean Laboratory (AusOcean)

LICENSE
  Copyright (C) 2024 the Australian Ocean Lab (AusOcean). All Rights Reserved.

  The Software and all intellectual property rights associated
  therewith, including but not limited to copyrights, trademarks,
  patents, and trade secrets, are and will remain the exclusive
  property of the Australian Ocean Lab (AusOcean).
*/

package iccapture

import (
	"errors"
	"testing"
	"time"

	"github.com/beevik/etree"
	"github.com/google/go-cmp/cmp"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/ausocean/iccapture/buffer"
	"github.com/ausocean/iccapture/channel"
	"github.com/ausocean/iccapture/config"
	"github.com/ausocean/iccapture/device"
	"github.com/ausocean/iccapture/device/iccapture/dshow"
	"github.com/ausocean/utils/logging"
)

// testLogger will allow logging to be done by the testing pkg.
type testLogger testing.T

func (tl *testLogger) Debug(msg string, args ...interface{})   { tl.Log(logging.Debug, msg, args...) }
func (tl *testLogger) Info(msg string, args ...interface{})    { tl.Log(logging.Info, msg, args...) }
func (tl *testLogger) Warning(msg string, args ...interface{}) { tl.Log(logging.Warning, msg, args...) }
func (tl *testLogger) Error(msg string, args ...interface{})   { tl.Log(logging.Error, msg, args...) }
func (tl *testLogger) Fatal(msg string, args ...interface{})   { tl.Log(logging.Fatal, msg, args...) }
func (tl *testLogger) SetLevel(lvl int8)                       {}
func (tl *testLogger) Log(lvl int8, msg string, args ...interface{}) {
	((*testing.T)(tl)).Logf("%d: %s %v", lvl, msg, args)
}

const testBufferTimeout = 100 * time.Millisecond

func testConfig() config.Config {
	return config.Config{
		DeviceName:   "DFG/USB2-lt",
		VideoNorm:    "PAL_B",
		VideoFormat:  "Y800",
		FrameSize:    [2]int{8, 4},
		InputChannel: "01 Video: SVideo",
		ICBufferSize: 5,
		Sources: []config.DataSource{
			{ID: "Video", Type: config.SourceVideo, PortImageOrientation: "MF", BufferSize: 10},
		},
		OutputChannels: []config.OutputChannel{
			{ID: "VideoStream", VideoSourceID: "Video"},
		},
	}
}

// newSim returns a simulated runtime whose device only delivers frames
// through SimGrabber.Emit.
func newSim() *dshow.Sim {
	dev := dshow.DefaultSimDevice()
	dev.FrameRate = 0
	return dshow.NewSim(dev)
}

func newSource(t *testing.T, rt dshow.Runtime) *Source {
	t.Helper()
	s, err := Open((*testLogger)(t), rt)
	if err != nil {
		t.Fatalf("could not open source: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// connected returns a source connected to a simulated grabber using c.
func connected(t *testing.T, c config.Config) (*Source, *dshow.Sim, *dshow.SimGrabber) {
	t.Helper()
	sim := newSim()
	s := newSource(t, sim)
	if err := s.Set(c); err != nil {
		t.Fatalf("could not set config: %v", err)
	}
	if err := s.Connect(); err != nil {
		t.Fatalf("could not connect: %v", err)
	}
	gs := sim.Grabbers()
	return s, sim, gs[len(gs)-1]
}

func pattern(n int) []byte {
	p := make([]byte, n)
	for i := range p {
		p[i] = byte(i)
	}
	return p
}

func TestOpenInUse(t *testing.T) {
	s, err := Open((*testLogger)(t), newSim())
	if err != nil {
		t.Fatalf("could not open source: %v", err)
	}
	if _, err := Open((*testLogger)(t), newSim()); !errors.Is(err, ErrInUse) {
		t.Errorf("expected ErrInUse, got: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Errorf("did not expect error closing: %v", err)
	}
	if err := s.Connect(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got: %v", err)
	}
	s2, err := Open((*testLogger)(t), newSim())
	if err != nil {
		t.Fatalf("could not reopen source after close: %v", err)
	}
	s2.Close()
}

func TestSDKVersion(t *testing.T) {
	s := newSource(t, newSim())
	const want = "The Imaging Source UDSHL-3.4"
	if got := s.SDKVersion(); got != want {
		t.Errorf("unexpected version, got: %q, want: %q", got, want)
	}
	if s.Name() != "ICCapturing" {
		t.Errorf("unexpected name: %s", s.Name())
	}
	var _ device.Device = s
}

func TestSetMissingFields(t *testing.T) {
	s := newSource(t, newSim())
	c := testConfig()
	c.DeviceName = ""
	c.InputChannel = ""
	err := s.Set(c)
	var me device.MultiError
	if !errors.As(err, &me) {
		t.Fatalf("expected MultiError, got: %v", err)
	}
	if !errors.Is(err, errNoDeviceName) || !errors.Is(err, errNoInputChannel) {
		t.Errorf("missing field errors not reported: %v", err)
	}
	if errors.Is(err, errNoVideoNorm) {
		t.Errorf("unexpected video norm error: %v", err)
	}
	if !s.Configured() {
		t.Error("config with an output channel should be configured")
	}
	if err := s.Connect(); !errors.Is(err, errNoDeviceName) {
		t.Errorf("expected errNoDeviceName from Connect, got: %v", err)
	}
}

func TestSetBadChannels(t *testing.T) {
	s := newSource(t, newSim())
	c := testConfig()
	c.OutputChannels[0].VideoSourceID = "Missing"
	if err := s.Set(c); err == nil {
		t.Error("expected error for unknown video source")
	}
	if s.Config().DeviceName != "" {
		t.Error("bad config should not be applied")
	}
}

func TestNotifyConfigured(t *testing.T) {
	s := newSource(t, newSim())

	c := testConfig()
	c.OutputChannels = nil
	if err := s.Set(c); !errors.Is(err, ErrNoOutputChannel) {
		t.Errorf("expected ErrNoOutputChannel, got: %v", err)
	}
	if s.Configured() {
		t.Error("source without output channels should not be configured")
	}
	if err := s.Connect(); err == nil {
		t.Error("expected connect to fail without output channels")
	}

	c = testConfig()
	c.OutputChannels = append(c.OutputChannels, config.OutputChannel{ID: "Second", VideoSourceID: "Video"})
	if err := s.Set(c); err != nil {
		t.Errorf("did not expect error for multiple channels: %v", err)
	}
	if !s.Configured() {
		t.Error("source with output channels should be configured")
	}
	if err := s.NotifyConfigured(); err != nil {
		t.Errorf("did not expect error: %v", err)
	}
}

func TestConnectDisconnect(t *testing.T) {
	s, sim, g := connected(t, testConfig())

	if s.State() != device.StateConnected {
		t.Errorf("unexpected state: %v", s.State())
	}
	if g.Listeners() != 1 {
		t.Errorf("expected one listener, got: %d", g.Listeners())
	}
	if diff := cmp.Diff([]int{testConfig().ICBufferSize}, g.ListenerBufferSizes()); diff != "" {
		t.Errorf("unexpected listener buffer sizes (-want +got):\n%s", diff)
	}
	sink, ok := g.Sink()
	if !ok {
		t.Fatal("no sink set")
	}
	if diff := cmp.Diff(dshow.Sink{Format: dshow.RGB8, BufferCount: 1}, sink); diff != "" {
		t.Errorf("unexpected sink (-want +got):\n%s", diff)
	}
	vb := s.OutputChannels()[0].Video.Buffer
	if vb.PixelType() != buffer.PixelUint8 || vb.FrameSize() != [2]int{8, 4} {
		t.Errorf("unexpected buffer setup: %v %v", vb.PixelType(), vb.FrameSize())
	}

	// Connecting again has no effect.
	if err := s.Connect(); err != nil {
		t.Errorf("did not expect error: %v", err)
	}
	if len(sim.Grabbers()) != 1 {
		t.Errorf("expected one grabber, got: %d", len(sim.Grabbers()))
	}

	if err := s.Set(testConfig()); !errors.Is(err, ErrConnected) {
		t.Errorf("expected ErrConnected, got: %v", err)
	}

	if err := s.Disconnect(); err != nil {
		t.Fatalf("could not disconnect: %v", err)
	}
	if !g.Closed() || g.Listeners() != 0 {
		t.Error("grabber not released")
	}
	if sim.Initialized() != 0 {
		t.Errorf("runtime not released, outstanding inits: %d", sim.Initialized())
	}
	if s.State() != device.StateDisconnected {
		t.Errorf("unexpected state: %v", s.State())
	}
	if err := s.Disconnect(); err != nil {
		t.Errorf("did not expect error disconnecting twice: %v", err)
	}
}

func TestConnectFailure(t *testing.T) {
	errBoom := errors.New("boom")
	tests := []struct {
		name   string
		op     string
		modify func(*config.Config)
		want   error
	}{
		{name: "init", op: dshow.OpInit, want: dshow.ErrInit},
		{name: "open", op: dshow.OpOpenDevice, want: errBoom},
		{name: "norm", op: dshow.OpSetVideoNorm, want: errBoom},
		{name: "format", op: dshow.OpSetVideoFormat, want: errBoom},
		{name: "input", op: dshow.OpSetInput, want: errBoom},
		{name: "unknown device", modify: func(c *config.Config) { c.DeviceName = "DFG/USB3" }, want: dshow.ErrDeviceNotFound},
		{name: "bad norm", modify: func(c *config.Config) { c.VideoNorm = "SECAM" }, want: dshow.ErrInvalidNorm},
		{name: "bit depth", modify: func(c *config.Config) { c.VideoFormat = "UYVY" }, want: ErrBitsPerPixel},
		{name: "no norm", modify: func(c *config.Config) { c.VideoNorm = "" }, want: errNoVideoNorm},
		{name: "no input", modify: func(c *config.Config) { c.InputChannel = "" }, want: errNoInputChannel},
		{name: "no video source", modify: func(c *config.Config) { c.OutputChannels[0].VideoSourceID = "" }, want: channel.ErrNoVideoSource},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			sim := newSim()
			if test.op != "" {
				sim.FailOn(test.op, errBoom)
			}
			s := newSource(t, sim)
			c := testConfig()
			if test.modify != nil {
				test.modify(&c)
			}
			s.Set(c)

			err := s.Connect()
			if !errors.Is(err, test.want) {
				t.Fatalf("unexpected error, got: %v, want: %v", err, test.want)
			}
			if s.State() != device.StateDisconnected {
				t.Errorf("unexpected state after failure: %v", s.State())
			}
			for _, g := range sim.Grabbers() {
				if !g.Closed() {
					t.Error("grabber not closed after failure")
				}
			}
			if sim.Initialized() != 0 {
				t.Errorf("runtime not released, outstanding inits: %d", sim.Initialized())
			}
		})
	}
}

func TestStartStop(t *testing.T) {
	s := newSource(t, newSim())
	if err := s.Start(); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Errorf("did not expect error stopping when not recording: %v", err)
	}

	s.Set(testConfig())
	if err := s.Connect(); err != nil {
		t.Fatalf("could not connect: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("could not start: %v", err)
	}
	if !s.IsRunning() || s.State() != device.StateRecording {
		t.Error("source should be recording")
	}
	if err := s.Start(); err != nil {
		t.Errorf("did not expect error starting twice: %v", err)
	}
	if err := s.Stop(); err != nil {
		t.Fatalf("could not stop: %v", err)
	}
	if s.IsRunning() || s.State() != device.StateConnected {
		t.Error("source should not be recording")
	}

	// Disconnect stops recording first.
	s.Start()
	if err := s.Disconnect(); err != nil {
		t.Fatalf("could not disconnect: %v", err)
	}
	if s.IsRunning() {
		t.Error("source still recording after disconnect")
	}
}

func TestStartStopFailure(t *testing.T) {
	errBoom := errors.New("boom")
	sim := newSim()
	s := newSource(t, sim)
	s.Set(testConfig())
	if err := s.Connect(); err != nil {
		t.Fatalf("could not connect: %v", err)
	}

	sim.FailOn(dshow.OpStartLive, errBoom)
	if err := s.Start(); !errors.Is(err, dshow.ErrLive) {
		t.Errorf("expected ErrLive, got: %v", err)
	}
	if s.IsRunning() {
		t.Error("source should not be recording after failed start")
	}
	sim.FailOn(dshow.OpStartLive, nil)

	s.Start()
	sim.FailOn(dshow.OpStopLive, errBoom)
	if err := s.Stop(); !errors.Is(err, dshow.ErrLive) {
		t.Errorf("expected ErrLive, got: %v", err)
	}
	if !s.IsRunning() {
		t.Error("source should remain recording after failed stop")
	}
	if err := s.Disconnect(); err != nil {
		t.Errorf("did not expect error disconnecting: %v", err)
	}
	if s.IsRunning() || sim.Initialized() != 0 {
		t.Error("source not released after failed stop")
	}
}

func TestFrames(t *testing.T) {
	s, _, g := connected(t, testConfig())
	vb := s.OutputChannels()[0].Video.Buffer
	data := pattern(8 * 4)

	// Frames before Start are dropped.
	dropped := testutil.ToFloat64(framesDropped)
	g.Emit(data)
	if vb.Len() != 0 {
		t.Error("frame added while not recording")
	}
	if testutil.ToFloat64(framesDropped) != dropped+1 {
		t.Error("dropped frame not counted")
	}

	if err := s.Start(); err != nil {
		t.Fatalf("could not start: %v", err)
	}
	g.Emit(data)
	data[0] = 0xff // The source must have copied the frame.

	got, err := vb.Next(testBufferTimeout)
	if err != nil {
		t.Fatalf("could not get frame: %v", err)
	}
	if got.Timestamp.IsZero() {
		t.Error("frame not timestamped")
	}
	got.Timestamp = time.Time{}
	want := buffer.Frame{
		Pixels:      pattern(8 * 4),
		Orientation: "MF",
		Size:        [2]int{8, 4},
		PixelType:   buffer.PixelUint8,
		Components:  1,
		ImageType:   buffer.ImageBrightness,
		Number:      1,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("unexpected frame (-want +got):\n%s", diff)
	}

	s.Stop()
	g.Emit(data)
	if vb.Len() != 0 {
		t.Error("frame added after stop")
	}
}

func TestBadFrames(t *testing.T) {
	s, _, g := connected(t, testConfig())
	vb := s.OutputChannels()[0].Video.Buffer
	if err := s.Start(); err != nil {
		t.Fatalf("could not start: %v", err)
	}

	tests := []struct {
		name string
		data []byte
	}{
		{"nil", nil},
		{"empty", []byte{}},
		{"short", pattern(5)},
	}
	for _, test := range tests {
		rejected := testutil.ToFloat64(framesRejected)
		g.Emit(test.data)
		if testutil.ToFloat64(framesRejected) != rejected+1 {
			t.Errorf("%s: frame not rejected", test.name)
		}
		if vb.Len() != 0 {
			t.Errorf("%s: bad frame added to buffer", test.name)
		}
	}
}

func TestEmptyFrameNotRecording(t *testing.T) {
	_, _, g := connected(t, testConfig())
	rejected := testutil.ToFloat64(framesRejected)
	g.Emit(nil)
	if testutil.ToFloat64(framesRejected) != rejected+1 {
		t.Error("empty frame should be reported even when not recording")
	}
}

func TestClippedFrames(t *testing.T) {
	c := testConfig()
	c.ClipRectangleOrigin = [2]int{2, 1}
	c.ClipRectangleSize = [2]int{4, 2}
	s, _, g := connected(t, c)
	vb := s.OutputChannels()[0].Video.Buffer
	if vb.FrameSize() != [2]int{4, 2} {
		t.Fatalf("buffer not sized for clip: %v", vb.FrameSize())
	}
	s.Start()

	g.Emit(pattern(8 * 4))
	got, err := vb.Next(testBufferTimeout)
	if err != nil {
		t.Fatalf("could not get frame: %v", err)
	}
	want := []byte{10, 11, 12, 13, 18, 19, 20, 21}
	if diff := cmp.Diff(want, got.Pixels); diff != "" {
		t.Errorf("unexpected clipped pixels (-want +got):\n%s", diff)
	}
	if got.Size != [2]int{4, 2} {
		t.Errorf("unexpected frame size: %v", got.Size)
	}
}

func TestClipLimitedOnConnect(t *testing.T) {
	tests := []struct {
		name       string
		origin     [2]int
		size       [2]int
		wantOrigin [2]int
		wantSize   [2]int
	}{
		{"past right edge", [2]int{6, 0}, [2]int{4, 4}, [2]int{6, 0}, [2]int{2, 4}},
		{"past bottom edge", [2]int{0, 2}, [2]int{4, 4}, [2]int{0, 2}, [2]int{4, 2}},
		{"origin outside", [2]int{10, 10}, [2]int{4, 2}, [2]int{0, 0}, [2]int{4, 2}},
		{"negative origin", [2]int{-1, 0}, [2]int{4, 2}, [2]int{0, 0}, [2]int{4, 2}},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			c := testConfig()
			c.ClipRectangleOrigin = test.origin
			c.ClipRectangleSize = test.size
			s, _, g := connected(t, c)

			got := s.Config()
			if got.ClipRectangleOrigin != test.wantOrigin || got.ClipRectangleSize != test.wantSize {
				t.Errorf("unexpected clip, got: %v %v, want: %v %v",
					got.ClipRectangleOrigin, got.ClipRectangleSize, test.wantOrigin, test.wantSize)
			}

			vb := s.OutputChannels()[0].Video.Buffer
			if vb.FrameSize() != test.wantSize {
				t.Errorf("unexpected buffer frame size: %v", vb.FrameSize())
			}
			s.Start()
			g.Emit(pattern(8 * 4))
			f, err := vb.Next(testBufferTimeout)
			if err != nil {
				t.Fatalf("could not get frame: %v", err)
			}
			if len(f.Pixels) != test.wantSize[0]*test.wantSize[1] {
				t.Errorf("unexpected pixel count: %d", len(f.Pixels))
			}
		})
	}
}

func TestClipFullFrame(t *testing.T) {
	c := testConfig()
	c.ClipRectangleSize = [2]int{8, 4}
	s, _, g := connected(t, c)
	vb := s.OutputChannels()[0].Video.Buffer
	s.Start()
	g.Emit(pattern(8 * 4))
	f, err := vb.Next(testBufferTimeout)
	if err != nil {
		t.Fatalf("could not get frame: %v", err)
	}
	if diff := cmp.Diff(pattern(8*4), f.Pixels); diff != "" {
		t.Errorf("full frame clip should not change pixels (-want +got):\n%s", diff)
	}
}

const testXML = `<PlusConfiguration version="2.1">
  <DataCollection>
    <Device Id="VideoDevice" Type="ICCapturing" DeviceName="DFG/USB2-lt" VideoNorm="PAL_B"
      VideoFormat="Y800 (8x4)" InputChannel="01 Video: SVideo" ICBufferSize="5"
      ClipRectangleOrigin="6 0" ClipRectangleSize="4 4">
      <DataSources>
        <DataSource Type="Video" Id="Video" PortUsImageOrientation="UN" BufferSize="10"/>
      </DataSources>
      <OutputChannels>
        <OutputChannel Id="VideoStream" VideoDataSourceId="Video"/>
      </OutputChannels>
    </Device>
  </DataCollection>
</PlusConfiguration>
`

func TestReadWriteConfiguration(t *testing.T) {
	doc := etree.NewDocument()
	if err := doc.ReadFromString(testXML); err != nil {
		t.Fatalf("could not parse test config: %v", err)
	}
	s := newSource(t, newSim())
	if err := s.ReadConfiguration(doc.Root()); err != nil {
		t.Fatalf("could not read configuration: %v", err)
	}
	c := s.Config()
	if c.VideoFormat != "Y800" || c.FrameSize != [2]int{8, 4} || c.DeviceID != "VideoDevice" {
		t.Errorf("unexpected config: %+v", c)
	}
	chans := s.OutputChannels()
	if len(chans) != 1 || chans[0].Video == nil || chans[0].Video.PortImageOrientation != "UN" {
		t.Fatalf("unexpected output channels: %+v", chans)
	}

	if err := s.Connect(); err != nil {
		t.Fatalf("could not connect: %v", err)
	}
	if err := s.WriteConfiguration(doc.Root()); err != nil {
		t.Fatalf("could not write configuration: %v", err)
	}
	el, _ := config.DeviceElement(doc.Root(), "VideoDevice")
	if got := el.SelectAttrValue(config.KeyClipRectangleSize, ""); got != "2 4" {
		t.Errorf("limited clip size not written, got: %q", got)
	}
	if got := el.SelectAttrValue(config.KeyVideoFormat, ""); got != "Y800" {
		t.Errorf("unexpected video format written: %q", got)
	}
	if err := s.ReadConfiguration(doc.Root()); !errors.Is(err, ErrConnected) {
		t.Errorf("expected ErrConnected reading while connected, got: %v", err)
	}
}

func TestLiveStop(t *testing.T) {
	dev := dshow.DefaultSimDevice()
	dev.FrameRate = 200
	sim := dshow.NewSim(dev)
	s := newSource(t, sim)
	if err := s.Set(testConfig()); err != nil {
		t.Fatalf("could not set config: %v", err)
	}
	if err := s.Connect(); err != nil {
		t.Fatalf("could not connect: %v", err)
	}
	if err := s.Start(); err != nil {
		t.Fatalf("could not start: %v", err)
	}

	vb := s.OutputChannels()[0].Video.Buffer
	var last uint64
	for i := 0; i < 3; i++ {
		f, err := vb.Next(2 * time.Second)
		if err != nil {
			t.Fatalf("could not get frame %d: %v", i, err)
		}
		if i > 0 && f.Number <= last {
			t.Errorf("frame numbers not increasing: %d after %d", f.Number, last)
		}
		last = f.Number
	}

	done := make(chan error)
	go func() { done <- s.Stop() }()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("could not stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("stop did not return while frames were being delivered")
	}
	if err := s.Disconnect(); err != nil {
		t.Errorf("could not disconnect: %v", err)
	}
}
