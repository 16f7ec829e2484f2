package geo

import (
	"math"
	"math/rand"
	"testing"

	"greensitter/internal/models"

	"github.com/stretchr/testify/require"
)

func TestObfuscateStaysInBounds(t *testing.T) {
	rng := rand.New(rand.NewSource(1))
	center := models.SeoulLocation

	dLat := DefaultRadius / EarthRadius * 180 / math.Pi
	dLong := dLat / math.Cos(center.Latitude*math.Pi/180)

	for i := 0; i < 1000; i++ {
		out := Obfuscate(center, DefaultRadius, rng)
		require.LessOrEqual(t, math.Abs(out.Latitude-center.Latitude), dLat)
		require.LessOrEqual(t, math.Abs(out.Longitude-center.Longitude), dLong)
		require.Equal(t, center.Address, out.Address)
	}
}

func TestObfuscateMoves(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	out := Obfuscate(models.SeoulLocation, DefaultRadius, rng)
	require.NotEqual(t, models.SeoulLocation, out)
}

func TestMarkersSkipPostsWithoutLocation(t *testing.T) {
	loc := models.SeoulLocation
	posts := []models.Post{
		{ID: "a", PostTitle: "a", Location: &loc},
		{ID: "b", PostTitle: "b"},
	}

	markers := Markers(posts, DefaultRadius, rand.New(rand.NewSource(1)))
	require.Len(t, markers, 1)
	require.Equal(t, "a", markers[0].PostID)
	require.Equal(t, DefaultRadius, markers[0].Radius)
}
