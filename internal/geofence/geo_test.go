package geofence

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHaversineIdentityAndSymmetry(t *testing.T) {
	r := rand.New(rand.NewSource(7))
	for i := 0; i < 200; i++ {
		a := Point{Latitude: r.Float64()*180 - 90, Longitude: r.Float64()*360 - 180}
		b := Point{Latitude: r.Float64()*180 - 90, Longitude: r.Float64()*360 - 180}

		assert.Zero(t, Haversine(a, a))
		assert.InDelta(t, Haversine(a, b), Haversine(b, a), 1e-6)
	}
}

func TestHaversineKnownDistance(t *testing.T) {
	// One degree of latitude along a meridian.
	d := Haversine(Point{Latitude: 0, Longitude: 0}, Point{Latitude: 1, Longitude: 0})
	assert.InDelta(t, 111195, d, 1)

	// Two points in Chennai about 1.5 km apart.
	d = Haversine(Point{Latitude: 13.0827, Longitude: 80.2707}, Point{Latitude: 13.0732, Longitude: 80.2609})
	assert.InDelta(t, 1500, d, 60)
}

func TestContainsBoundaryInclusive(t *testing.T) {
	center := Point{Latitude: 12.9716, Longitude: 77.5946}
	p := Point{Latitude: 12.9750, Longitude: 77.5946}
	dist := Haversine(center, p)

	g := Geofence{Latitude: center.Latitude, Longitude: center.Longitude, RadiusMeters: dist}
	ok, got := Contains(p, g)
	assert.True(t, ok)
	assert.InDelta(t, dist, got, 1e-9)

	g.RadiusMeters = dist - 0.01
	ok, _ = Contains(p, g)
	assert.False(t, ok)
}

func TestContainsMonotonicInRadius(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	g := Geofence{Latitude: 28.6139, Longitude: 77.2090}
	for i := 0; i < 200; i++ {
		p := Point{
			Latitude:  g.Latitude + (r.Float64()-0.5)*0.02,
			Longitude: g.Longitude + (r.Float64()-0.5)*0.02,
		}
		small := 10 + r.Float64()*1000
		g.RadiusMeters = small
		inSmall, _ := Contains(p, g)
		g.RadiusMeters = small + r.Float64()*1000
		inLarge, _ := Contains(p, g)
		if inSmall {
			assert.True(t, inLarge)
		}
	}
}
