// Package geo places posts on the map without revealing their exact location.
package geo

import (
	"math"
	"math/rand"

	"greensitter/internal/models"
)

const (
	// EarthRadius is the equatorial radius in meters
	EarthRadius = 6378137.0
	// DefaultRadius is the radius of the circle drawn around a post, in meters
	DefaultRadius = 500.0
)

// Marker is a post as shown on the map
type Marker struct {
	PostID   string          `json:"postId"`
	PostType models.PostType `json:"postType"`
	Title    string          `json:"title"`
	Body     string          `json:"body"`
	Center   models.Location `json:"center"`
	Radius   float64         `json:"radius"`
}

// Obfuscate moves center by a random offset of at most radius meters on each axis
func Obfuscate(center models.Location, radius float64, rng *rand.Rand) models.Location {
	dLat := (radius / EarthRadius) * (180 / math.Pi)
	dLong := dLat / math.Cos(center.Latitude*math.Pi/180)

	out := center
	out.Latitude += (rng.Float64()*2 - 1) * dLat
	out.Longitude += (rng.Float64()*2 - 1) * dLong
	return out
}

// Markers returns a marker for every post with a location
func Markers(posts []models.Post, radius float64, rng *rand.Rand) []Marker {
	markers := make([]Marker, 0, len(posts))
	for _, p := range posts {
		if p.Location == nil {
			continue
		}
		markers = append(markers, Marker{
			PostID:   p.ID,
			PostType: p.PostType,
			Title:    p.PostTitle,
			Body:     p.PostBody,
			Center:   Obfuscate(*p.Location, radius, rng),
			Radius:   radius,
		})
	}
	return markers
}
