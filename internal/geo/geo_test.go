package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateRejectsOutOfRange(t *testing.T) {
	assert.NoError(t, Validate(0, 0))
	assert.NoError(t, Validate(MinLongitude, MinLatitude))
	assert.NoError(t, Validate(MaxLongitude, MaxLatitude))
	assert.ErrorIs(t, Validate(180.1, 0), ErrOutOfRange)
	assert.ErrorIs(t, Validate(0, 86), ErrOutOfRange)
}

func TestEncodeDecodeRoundTripsNearOriginal(t *testing.T) {
	lon, lat := 13.361389, 38.115556 // Palermo, a classic redis geo example
	score := EncodeScore(lon, lat)
	dlon, dlat := DecodeScore(score)
	assert.InDelta(t, lon, dlon, 0.001)
	assert.InDelta(t, lat, dlat, 0.001)
}

func TestHaversineKnownDistance(t *testing.T) {
	// Palermo <-> Catania, ~166.2 km per the well-known redis geo example.
	d := Haversine(13.361389, 38.115556, 15.087269, 37.502669)
	assert.InDelta(t, 166274.0, d, 2000)
}

func TestHaversineZeroForSamePoint(t *testing.T) {
	d := Haversine(10, 10, 10, 10)
	assert.True(t, math.Abs(d) < 1e-6)
}
