package stream

import (
	"context"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/relabs-tech/orientation_streamer/internal/frame"
	"github.com/relabs-tech/orientation_streamer/internal/imu"
	"github.com/relabs-tech/orientation_streamer/internal/orientation"
	"github.com/relabs-tech/orientation_streamer/internal/transport"
	"github.com/relabs-tech/orientation_streamer/internal/transport/transporttest"
)

var level = imu.Sample{Accel: r3.Vector{Z: 9.80665}}

// scriptedSource returns level samples unless told otherwise for a
// given read number (1-based).
type scriptedSource struct {
	mu     sync.Mutex
	reads  int
	script map[int]func() (imu.Sample, error)
	base   imu.Sample
	onRead func(n int)
}

func (s *scriptedSource) Read(ctx context.Context) (imu.Sample, error) {
	s.mu.Lock()
	s.reads++
	n := s.reads
	fn := s.script[n]
	base := s.base
	onRead := s.onRead
	s.mu.Unlock()

	if onRead != nil {
		onRead(n)
	}
	if fn != nil {
		return fn()
	}
	return base, nil
}

type fixture struct {
	loop *Loop
	src  *scriptedSource
	tr   *transporttest.Fake
	clk  *clock.Mock
}

func newFixture(t *testing.T, variant frame.Variant, opts Options) *fixture {
	t.Helper()
	clk := clock.NewMock()
	opts.Clock = clk

	f, err := orientation.New(orientation.Options{SampleRate: 100, Beta: orientation.DefaultBeta})
	require.NoError(t, err)
	enc, err := frame.NewEncoder(variant, 244)
	require.NoError(t, err)
	src := &scriptedSource{base: level, script: map[int]func() (imu.Sample, error){}}
	tr := transporttest.New(244)

	l, err := New(zaptest.NewLogger(t).Sugar(), src, f, enc, tr, opts)
	require.NoError(t, err)
	return &fixture{loop: l, src: src, tr: tr, clk: clk}
}

func (fx *fixture) steps(n int) {
	for i := 0; i < n; i++ {
		fx.loop.Step(context.Background())
	}
}

func yawOf(t *testing.T, b []byte) float64 {
	t.Helper()
	m, err := frame.Decode(b)
	require.NoError(t, err)
	p, err := m.Pose()
	require.NoError(t, err)
	return p.Yaw
}

func TestNewRejectsOversizedFrames(t *testing.T) {
	f, err := orientation.New(orientation.Options{SampleRate: 100, Beta: 0.1})
	require.NoError(t, err)
	enc, err := frame.NewEncoder(frame.Raw, 244)
	require.NoError(t, err)

	_, err = New(zaptest.NewLogger(t).Sugar(), &scriptedSource{}, f, enc, transporttest.New(100), Options{})
	assert.Error(t, err)

	_, err = New(zaptest.NewLogger(t).Sugar(), nil, f, enc, transporttest.New(244), Options{})
	assert.Error(t, err)
}

func TestIdleUntilPeerConnects(t *testing.T) {
	fx := newFixture(t, frame.Fused, Options{})
	fx.steps(5)

	snap := fx.loop.Snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.Equal(t, uint64(5), snap.Ticks)
	assert.False(t, snap.HavePose)
	assert.Zero(t, fx.src.reads, "no sensor reads while idle")
	assert.Zero(t, fx.tr.Sends())
}

func TestStreamingScenario(t *testing.T) {
	fx := newFixture(t, frame.Fused, Options{})

	fx.tr.Connect("peer-a")
	fx.steps(10)
	assert.Equal(t, Streaming, fx.loop.Snapshot().State)
	assert.Equal(t, transport.PeerID("peer-a"), fx.loop.Snapshot().Peer)

	// the peer vanishes between the tick's observation and its send
	fx.src.onRead = func(n int) {
		if n == 11 {
			fx.tr.Disconnect()
		}
	}
	fx.steps(1)
	assert.Equal(t, uint64(1), fx.loop.Snapshot().SendFailures)

	fx.steps(3)
	snap := fx.loop.Snapshot()
	assert.Equal(t, Idle, snap.State)
	assert.Empty(t, snap.Peer)

	fx.tr.Connect("peer-b")
	fx.steps(2)
	// a different peer without an intervening disconnect
	fx.tr.Connect("peer-c")
	fx.steps(2)

	perPeer := map[transport.PeerID]int{}
	for _, fr := range fx.tr.Frames() {
		perPeer[fr.Peer]++
		assert.True(t, fr.Peer == "peer-a" || fr.Peer == "peer-b" || fr.Peer == "peer-c")
	}
	assert.Equal(t, map[transport.PeerID]int{"peer-a": 10, "peer-b": 2, "peer-c": 2}, perPeer)

	snap = fx.loop.Snapshot()
	assert.Equal(t, uint64(14), snap.FramesSent)
	assert.Equal(t, uint64(3), snap.Connects)
	assert.Equal(t, uint64(15), uint64(fx.tr.Sends()), "one send per streaming tick")
}

func TestSensorFaultSkipsTick(t *testing.T) {
	fx := newFixture(t, frame.Fused, Options{})
	fx.src.script[2] = func() (imu.Sample, error) { return imu.Sample{}, errors.New("spi: timeout") }
	fx.src.script[3] = func() (imu.Sample, error) {
		return imu.Sample{Accel: r3.Vector{X: math.NaN()}}, nil
	}

	fx.tr.Connect("peer")
	fx.steps(4)

	snap := fx.loop.Snapshot()
	assert.Equal(t, Streaming, snap.State)
	assert.Equal(t, uint64(2), snap.SensorFaults)
	assert.Equal(t, uint64(2), snap.FramesSent)
	assert.Len(t, fx.tr.Frames(), 2)
}

func TestSensorTimeoutIsAFault(t *testing.T) {
	fx := newFixture(t, frame.Fused, Options{SampleTimeout: 5 * time.Millisecond})
	fx.src.script[1] = func() (imu.Sample, error) {
		return imu.Sample{}, context.DeadlineExceeded
	}
	fx.tr.Connect("peer")
	fx.steps(1)
	assert.Equal(t, uint64(1), fx.loop.Snapshot().SensorFaults)
	assert.Empty(t, fx.tr.Frames())
}

func TestSendFailureNotRetried(t *testing.T) {
	fx := newFixture(t, frame.Fused, Options{})
	fx.tr.Connect("peer")
	fx.tr.FailSends(transport.ErrBusy)
	fx.steps(3)

	snap := fx.loop.Snapshot()
	assert.Equal(t, uint64(3), snap.SendFailures)
	assert.Equal(t, 3, fx.tr.Sends())
	assert.Equal(t, Streaming, snap.State)
	assert.True(t, snap.HavePose, "the estimate advances even when the frame is lost")

	fx.tr.FailSends(nil)
	fx.steps(1)
	assert.Equal(t, 4, fx.tr.Sends())
	assert.Len(t, fx.tr.Frames(), 1)
}

func TestReconnectKeepsOrResetsEstimate(t *testing.T) {
	spin := imu.Sample{Accel: r3.Vector{Z: 9.80665}, Gyro: r3.Vector{Z: 1}}
	oneTick := (180 / math.Pi) * 0.01

	for _, tc := range []struct {
		name    string
		reset   bool
		wantYaw float64
	}{
		{"continuity by default", false, 11 * oneTick},
		{"reset when configured", true, oneTick},
	} {
		t.Run(tc.name, func(t *testing.T) {
			fx := newFixture(t, frame.Fused, Options{ResetOnReconnect: tc.reset})
			fx.src.base = spin

			fx.tr.Connect("first")
			fx.steps(10)
			fx.tr.Disconnect()
			fx.steps(1)
			fx.tr.Connect("second")
			fx.steps(1)

			frames := fx.tr.Frames()
			require.Len(t, frames, 11)
			assert.InDelta(t, 10*oneTick, yawOf(t, frames[9].Payload), 0.02)
			assert.Equal(t, transport.PeerID("second"), frames[10].Peer)
			assert.InDelta(t, tc.wantYaw, yawOf(t, frames[10].Payload), 0.02)
		})
	}
}

func TestRawFramesCarryLoopTime(t *testing.T) {
	fx := newFixture(t, frame.Raw, Options{})
	fx.tr.Connect("peer")
	for i := 0; i < 3; i++ {
		fx.steps(1)
		fx.clk.Add(10 * time.Millisecond)
	}

	var times []int64
	for _, fr := range fx.tr.Frames() {
		m, err := frame.Decode(fr.Payload)
		require.NoError(t, err)
		require.NotNil(t, m.Time)
		times = append(times, *m.Time)
		s, err := m.Sample()
		require.NoError(t, err)
		assert.InDelta(t, 9.81, s.Accel.Z, 0.01)
	}
	assert.Equal(t, []int64{0, 10, 20}, times)
}

// runCounted runs the loop on a mock clock until n ticks have streamed,
// returning the clock time at which each tick read its sample.
func runCounted(t *testing.T, fx *fixture, n int, extra func(tick int)) []time.Duration {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start := fx.clk.Now()
	var at []time.Duration
	fx.src.onRead = func(tick int) {
		at = append(at, fx.clk.Now().Sub(start))
		if extra != nil {
			extra(tick)
		}
		if tick == n {
			cancel()
		}
	}
	fx.loop.waitHook = func(d time.Duration) { fx.clk.Add(d) }

	fx.tr.Connect("peer")
	require.NoError(t, fx.loop.Run(ctx))
	return at
}

func TestCadence(t *testing.T) {
	fx := newFixture(t, frame.Fused, Options{Interval: 10 * time.Millisecond})
	at := runCounted(t, fx, 100, nil)

	require.Len(t, at, 100)
	assert.Equal(t, 990*time.Millisecond, at[99]-at[0])
	for i := 1; i < len(at); i++ {
		require.GreaterOrEqual(t, at[i]-at[i-1], 10*time.Millisecond, "tick %d ran early", i)
	}
	assert.Equal(t, uint64(100), fx.loop.Snapshot().FramesSent)
}

func TestOverrunFiresNextTickImmediately(t *testing.T) {
	fx := newFixture(t, frame.Fused, Options{Interval: 10 * time.Millisecond})
	at := runCounted(t, fx, 5, func(tick int) {
		if tick == 3 {
			fx.clk.Add(25 * time.Millisecond) // slow sensor
		}
	})

	ms := time.Millisecond
	assert.Equal(t, []time.Duration{0, 10 * ms, 20 * ms, 45 * ms, 55 * ms}, at)
}

func TestCadenceRealClock(t *testing.T) {
	if testing.Short() {
		t.Skip("real-time test")
	}
	f, err := orientation.New(orientation.Options{SampleRate: 100, Beta: 0.1})
	require.NoError(t, err)
	enc, err := frame.NewEncoder(frame.Fused, 244)
	require.NoError(t, err)
	tr := transporttest.New(244)
	tr.Connect("peer")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	src := &scriptedSource{base: level, onRead: func(n int) {
		if n == 100 {
			cancel()
		}
	}}
	l, err := New(zaptest.NewLogger(t).Sugar(), src, f, enc, tr, Options{Interval: 10 * time.Millisecond})
	require.NoError(t, err)

	begin := time.Now()
	require.NoError(t, l.Run(ctx))
	elapsed := time.Since(begin)

	assert.GreaterOrEqual(t, elapsed, 990*time.Millisecond)
	assert.Less(t, elapsed, 1500*time.Millisecond)
	assert.Len(t, tr.Frames(), 100)
}

func TestRunStopsOnCancel(t *testing.T) {
	fx := newFixture(t, frame.Fused, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.NoError(t, fx.loop.Run(ctx))
	assert.Zero(t, fx.loop.Snapshot().Ticks)
}
