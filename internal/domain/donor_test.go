package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// TestGeoPointDistanceKm tests the great-circle distance against known city pairs
func TestGeoPointDistanceKm(t *testing.T) {
	mumbai := GeoPoint{Latitude: 19.076, Longitude: 72.8777}
	delhi := GeoPoint{Latitude: 28.7041, Longitude: 77.1025}

	d := mumbai.DistanceKm(delhi)
	assert.InDelta(t, 1153, d, 15)
	assert.InDelta(t, d, delhi.DistanceKm(mumbai), 0.001)
	assert.Zero(t, mumbai.DistanceKm(mumbai))
}

// TestGeoPointIsValid tests coordinate bounds
func TestGeoPointIsValid(t *testing.T) {
	assert.True(t, GeoPoint{Latitude: 0, Longitude: 0}.IsValid())
	assert.True(t, GeoPoint{Latitude: -90, Longitude: 180}.IsValid())
	assert.False(t, GeoPoint{Latitude: 91, Longitude: 0}.IsValid())
	assert.False(t, GeoPoint{Latitude: 0, Longitude: -181}.IsValid())
}

// TestDonorEligibleForBlood tests availability, fitness and cooldown
func TestDonorEligibleForBlood(t *testing.T) {
	now := time.Now()
	recent := now.Add(-30 * 24 * time.Hour)
	old := now.Add(-120 * 24 * time.Hour)

	tests := []struct {
		name     string
		donor    Donor
		eligible bool
	}{
		{"never donated", Donor{IsAvailable: true, MedicallyFit: true}, true},
		{"past cooldown", Donor{IsAvailable: true, MedicallyFit: true, LastDonationAt: &old}, true},
		{"in cooldown", Donor{IsAvailable: true, MedicallyFit: true, LastDonationAt: &recent}, false},
		{"unavailable", Donor{IsAvailable: false, MedicallyFit: true}, false},
		{"medically unfit", Donor{IsAvailable: true, MedicallyFit: false}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.eligible, tt.donor.EligibleForBlood(now, DefaultDonationCooldown))
		})
	}
}

// TestDonorEligibleForOrgan tests registry consent and physical criteria
func TestDonorEligibleForOrgan(t *testing.T) {
	criteria := OrganCriteria{
		OrganType:   OrganKidney,
		MinAge:      18,
		MaxAge:      60,
		MinWeightKg: 50,
		MaxWeightKg: 110,
	}
	base := Donor{IsAvailable: true, MedicallyFit: true, OrganDonor: true, Age: 35, WeightKg: 70, HeightCm: 175}

	tests := []struct {
		name     string
		mutate   func(d *Donor)
		eligible bool
	}{
		{"fits all criteria", func(d *Donor) {}, true},
		{"not an organ donor", func(d *Donor) { d.OrganDonor = false }, false},
		{"too young", func(d *Donor) { d.Age = 16 }, false},
		{"too old", func(d *Donor) { d.Age = 70 }, false},
		{"under weight", func(d *Donor) { d.WeightKg = 45 }, false},
		{"over weight", func(d *Donor) { d.WeightKg = 120 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d := base
			tt.mutate(&d)
			assert.Equal(t, tt.eligible, d.EligibleForOrgan(criteria))
		})
	}
}
