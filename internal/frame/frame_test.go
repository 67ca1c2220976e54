package frame

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/relabs-tech/orientation_streamer/internal/imu"
	"github.com/relabs-tech/orientation_streamer/internal/orientation"
)

func TestWorstCaseSizes(t *testing.T) {
	assert.Equal(t, 46, FusedWorstCase)
	assert.Equal(t, 155, RawWorstCase)

	enc, err := NewEncoder(Raw, RawWorstCase)
	require.NoError(t, err)
	worst := orientation.Pose{Roll: -179.999, Pitch: -179.999, Yaw: -179.999}
	big := imu.Sample{
		Accel: r3.Vector{X: -1e9, Y: -1e9, Z: -1e9},
		Gyro:  r3.Vector{X: -1e9, Y: -1e9, Z: -1e9},
	}
	out := enc.Append(nil, worst, big, math.MaxUint32)
	assert.Len(t, out, RawWorstCase)
	assert.True(t, json.Valid(out), string(out))
}

func TestNewEncoderRejectsSmallFrames(t *testing.T) {
	_, err := NewEncoder(Fused, FusedWorstCase-1)
	assert.Error(t, err)
	_, err = NewEncoder(Raw, 128)
	assert.Error(t, err)
	_, err = NewEncoder(Variant(7), 512)
	assert.Error(t, err)

	enc, err := NewEncoder(Fused, 128)
	require.NoError(t, err)
	assert.Equal(t, Fused, enc.Variant())
}

func TestFrameSizeBound(t *testing.T) {
	for _, v := range []Variant{Fused, Raw} {
		enc, err := NewEncoder(v, v.WorstCaseSize())
		require.NoError(t, err)

		buf := make([]byte, 0, enc.WorstCaseSize())
		var ms uint32 = math.MaxUint32 - 5000
		for roll := -180.0; roll <= 180; roll += 0.37 {
			for pitch := -90.0; pitch <= 90; pitch += 2.3 {
				p := orientation.Pose{Roll: roll, Pitch: pitch, Yaw: -roll}
				s := imu.Sample{
					Accel: r3.Vector{X: roll * 7, Y: pitch, Z: -9.81},
					Gyro:  r3.Vector{X: -pitch / 3, Y: roll / 3, Z: 35},
				}
				ms += 7
				out := enc.Append(buf[:0], p, s, ms)
				require.LessOrEqual(t, len(out), v.WorstCaseSize(), "%s: %s", v, out)
				require.Equal(t, cap(buf), cap(out), "buffer grew")
			}
		}
	}
}

func TestNonFiniteValuesStayBounded(t *testing.T) {
	enc, err := NewEncoder(Raw, RawWorstCase)
	require.NoError(t, err)

	p := orientation.Pose{Roll: math.NaN(), Pitch: math.Inf(1), Yaw: 1e300}
	s := imu.Sample{Accel: r3.Vector{X: math.Inf(-1)}}
	out := enc.Append(nil, p, s, 0)
	require.LessOrEqual(t, len(out), RawWorstCase)

	m, err := Decode(out)
	require.NoError(t, err)
	assert.Equal(t, 0.0, *m.Roll)
	assert.Equal(t, 0.0, *m.Pitch)
	assert.Equal(t, 0.0, m.Accel.X)
}

func TestFusedFormat(t *testing.T) {
	enc, err := NewEncoder(Fused, 128)
	require.NoError(t, err)

	out := enc.Append(nil, orientation.Pose{Roll: 1.005, Pitch: -0.001, Yaw: 540}, imu.Sample{}, 0)
	assert.Equal(t, `{"roll":1.00,"pitch":0.00,"yaw":180.00}`, string(out))

	out = enc.Append(nil, orientation.Pose{Roll: -180, Pitch: 45.678, Yaw: -90.5}, imu.Sample{}, 0)
	assert.Equal(t, `{"roll":180.00,"pitch":45.68,"yaw":-90.50}`, string(out))
}

func TestRawFormat(t *testing.T) {
	enc, err := NewEncoder(Raw, 244)
	require.NoError(t, err)

	s := imu.Sample{Accel: r3.Vector{X: 0.12, Y: -9.81, Z: 2000}, Gyro: r3.Vector{Z: 0.5}}
	out := enc.Append(nil, orientation.Pose{Roll: 10}, s, 1234)
	assert.Equal(t,
		`{"roll":10.00,"pitch":0.00,"yaw":0.00,"accel":{"x":0.12,"y":-9.81,"z":999.99},"gyro":{"x":0.00,"y":0.00,"z":0.50},"time":1234}`,
		string(out))
}

func TestRoundTrip(t *testing.T) {
	enc, err := NewEncoder(Fused, 128)
	require.NoError(t, err)

	poses := []orientation.Pose{
		{},
		{Roll: 12.3456, Pitch: -45.6789, Yaw: 179.994},
		{Roll: -179.99, Pitch: 89.999, Yaw: 0.004},
		{Roll: 0.125, Pitch: -0.125, Yaw: -123.455},
	}
	for _, want := range poses {
		m, err := Decode(enc.Append(nil, want, imu.Sample{}, 0))
		require.NoError(t, err)
		got, err := m.Pose()
		require.NoError(t, err)

		if diff := cmp.Diff(want, got,
			cmpopts.IgnoreFields(orientation.Pose{}, "Q"),
			cmpopts.EquateApprox(0, 0.01),
		); diff != "" {
			t.Errorf("round trip mismatch (-want +got):\n%s", diff)
		}
	}
}

func TestDecodeIsLenient(t *testing.T) {
	m, err := Decode([]byte("  {\"accel\":{\"x\":1,\"y\":2,\"z\":9.8},\"temp\":21.5,\"time\":1712345678901}\r\n"))
	require.NoError(t, err)
	require.NotNil(t, m.Accel)
	assert.Equal(t, Vector{X: 1, Y: 2, Z: 9.8}, *m.Accel)
	assert.Nil(t, m.Gyro)
	require.NotNil(t, m.Time)
	assert.Equal(t, int64(1712345678901), *m.Time)

	_, err = m.Pose()
	assert.True(t, errors.Is(err, ErrMissingField))
	_, err = m.Sample()
	assert.True(t, errors.Is(err, ErrMissingField))

	m, err = Decode([]byte(`{"yaw":3,"roll":1,"pitch":2,"extra":[1,2]}`))
	require.NoError(t, err)
	p, err := m.Pose()
	require.NoError(t, err)
	assert.Equal(t, 1.0, p.Roll)
	assert.Equal(t, 2.0, p.Pitch)
	assert.Equal(t, 3.0, p.Yaw)

	_, err = Decode([]byte(`{"roll":`))
	assert.Error(t, err)
}

func TestParseVariant(t *testing.T) {
	v, err := ParseVariant(" RAW ")
	require.NoError(t, err)
	assert.Equal(t, Raw, v)
	v, err = ParseVariant("fused")
	require.NoError(t, err)
	assert.Equal(t, Fused, v)
	_, err = ParseVariant("csv")
	assert.Error(t, err)
}
