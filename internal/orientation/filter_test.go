package orientation

import (
	"math"
	"math/rand"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/num/quat"

	"github.com/relabs-tech/orientation_streamer/internal/imu"
)

const (
	gravity   = 9.80665
	tolerance = 1e-4
)

func newFilter(t *testing.T, beta float64) *Filter {
	t.Helper()
	f, err := New(Options{SampleRate: DefaultSampleRate, Beta: beta})
	require.NoError(t, err)
	return f
}

// tilted returns the accelerometer reading of a device at rest with the
// given roll and pitch in degrees.
func tilted(rollDeg, pitchDeg float64) r3.Vector {
	r, p := rollDeg*radiansPerDegree, pitchDeg*radiansPerDegree
	return r3.Vector{
		X: -math.Sin(p),
		Y: math.Sin(r) * math.Cos(p),
		Z: math.Cos(r) * math.Cos(p),
	}.Mul(gravity)
}

func TestNewRejectsBadOptions(t *testing.T) {
	for _, opts := range []Options{
		{SampleRate: 0, Beta: 0.1},
		{SampleRate: -100, Beta: 0.1},
		{SampleRate: math.Inf(1), Beta: 0.1},
		{SampleRate: 100, Beta: -1},
		{SampleRate: 100, Beta: math.NaN()},
	} {
		_, err := New(opts)
		assert.Error(t, err, "%+v", opts)
	}
}

func TestUpdateBeforeInit(t *testing.T) {
	var f Filter
	_, err := f.Update(imu.Sample{Accel: r3.Vector{Z: gravity}})
	assert.True(t, errors.Is(err, ErrNotInitialized))

	var nilFilter *Filter
	_, err = nilFilter.Update(imu.Sample{})
	assert.True(t, errors.Is(err, ErrNotInitialized))
}

func TestQuaternionStaysNormalized(t *testing.T) {
	f := newFilter(t, DefaultBeta)
	rng := rand.New(rand.NewSource(42))

	for i := 0; i < 5000; i++ {
		s := imu.Sample{
			Accel: r3.Vector{X: rng.NormFloat64() * 5, Y: rng.NormFloat64() * 5, Z: rng.NormFloat64() * 5},
			Gyro:  r3.Vector{X: rng.NormFloat64() * 4, Y: rng.NormFloat64() * 4, Z: rng.NormFloat64() * 4},
		}
		if i%50 == 0 {
			s.Accel = r3.Vector{}
		}
		pose, err := f.Update(s)
		require.NoError(t, err)
		require.InDelta(t, 1.0, quat.Abs(pose.Q), tolerance, "sample %d", i)
		require.False(t, math.IsNaN(pose.Roll) || math.IsNaN(pose.Pitch) || math.IsNaN(pose.Yaw))
	}
}

func TestAngularRateIsConvertedToDegrees(t *testing.T) {
	dt := 1 / DefaultSampleRate
	want := (180 / math.Pi) * 1.0 * dt

	tests := []struct {
		name  string
		beta  float64
		gyro  r3.Vector
		accel r3.Vector
		angle func(Pose) float64
	}{
		// gravity along the rotation axis leaves nothing for the correction to pull on
		{"yaw with gravity on z", DefaultBeta, r3.Vector{Z: 1}, r3.Vector{Z: gravity}, func(p Pose) float64 { return p.Yaw }},
		{"roll without correction", 0, r3.Vector{X: 1}, r3.Vector{Z: gravity}, func(p Pose) float64 { return p.Roll }},
		{"pitch without correction", 0, r3.Vector{Y: 1}, r3.Vector{Z: gravity}, func(p Pose) float64 { return p.Pitch }},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newFilter(t, tc.beta)
			pose, err := f.Update(imu.Sample{Accel: tc.accel, Gyro: tc.gyro})
			require.NoError(t, err)
			assert.InDelta(t, want, tc.angle(pose), 1e-4)

			// the rate holds over later ticks too
			prev := tc.angle(pose)
			pose, err = f.Update(imu.Sample{Accel: tc.accel, Gyro: tc.gyro})
			require.NoError(t, err)
			assert.InDelta(t, want, tc.angle(pose)-prev, 1e-4)
		})
	}
}

func TestDegenerateAccelFallsBackToGyro(t *testing.T) {
	withZero := newFilter(t, DefaultBeta)
	gyroOnly := newFilter(t, 0)

	gyro := r3.Vector{X: 0.3, Y: -0.2, Z: 0.5}
	for i := 0; i < 200; i++ {
		a, err := withZero.Update(imu.Sample{Gyro: gyro})
		require.NoError(t, err)
		b, err := gyroOnly.Update(imu.Sample{Accel: r3.Vector{X: 3, Y: 1, Z: 9}, Gyro: gyro})
		require.NoError(t, err)

		require.False(t, math.IsNaN(a.Roll) || math.IsNaN(a.Pitch) || math.IsNaN(a.Yaw))
		require.InDelta(t, b.Q.Real, a.Q.Real, 1e-12)
		require.InDelta(t, b.Q.Imag, a.Q.Imag, 1e-12)
		require.InDelta(t, b.Q.Jmag, a.Q.Jmag, 1e-12)
		require.InDelta(t, b.Q.Kmag, a.Q.Kmag, 1e-12)
	}
}

func TestDegenerateAccelAfterConvergence(t *testing.T) {
	f := newFilter(t, DefaultBeta)
	for i := 0; i < 1000; i++ {
		_, err := f.Update(imu.Sample{Accel: tilted(10, -20)})
		require.NoError(t, err)
	}
	before := poseFromQuaternion(f.q)

	// free fall with no rotation keeps the estimate exactly where it was
	after, err := f.Update(imu.Sample{Accel: r3.Vector{X: 1e-5, Y: -1e-5}})
	require.NoError(t, err)
	assert.InDelta(t, before.Roll, after.Roll, 1e-9)
	assert.InDelta(t, before.Pitch, after.Pitch, 1e-9)
	assert.InDelta(t, before.Yaw, after.Yaw, 1e-9)
}

func TestConvergesToStaticTilt(t *testing.T) {
	f := newFilter(t, DefaultBeta)

	var pose Pose
	var err error
	for i := 0; i < 1000; i++ {
		pose, err = f.Update(imu.Sample{Accel: tilted(10, -20)})
		require.NoError(t, err)
	}
	assert.InDelta(t, 10, pose.Roll, 0.5)
	assert.InDelta(t, -20, pose.Pitch, 0.5)
}

func TestMalformedSampleLeavesState(t *testing.T) {
	f := newFilter(t, DefaultBeta)
	_, err := f.Update(imu.Sample{Accel: r3.Vector{Z: gravity}, Gyro: r3.Vector{Z: 1}})
	require.NoError(t, err)
	q := f.q

	_, err = f.Update(imu.Sample{Accel: r3.Vector{Z: math.NaN()}})
	assert.True(t, errors.Is(err, imu.ErrMalformedSample))
	assert.Equal(t, q, f.q)
}

func TestReset(t *testing.T) {
	f := newFilter(t, DefaultBeta)
	for i := 0; i < 50; i++ {
		_, err := f.Update(imu.Sample{Accel: r3.Vector{Z: gravity}, Gyro: r3.Vector{Z: 1}})
		require.NoError(t, err)
	}
	require.NotEqual(t, identity, f.q)

	f.Reset()
	assert.Equal(t, identity, f.q)
	pose := poseFromQuaternion(f.q)
	assert.Zero(t, pose.Roll)
	assert.Zero(t, pose.Pitch)
	assert.Zero(t, pose.Yaw)
}
