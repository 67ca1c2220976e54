package imu

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
)

func TestValidate(t *testing.T) {
	ok := Sample{Accel: r3.Vector{X: 0.1, Y: -0.2, Z: 9.81}, Gyro: r3.Vector{Z: 1}}
	assert.NoError(t, ok.Validate())

	for name, s := range map[string]Sample{
		"nan accel": {Accel: r3.Vector{X: math.NaN()}},
		"inf gyro":  {Gyro: r3.Vector{Y: math.Inf(-1)}},
	} {
		err := s.Validate()
		assert.True(t, errors.Is(err, ErrMalformedSample), name)
	}
}
