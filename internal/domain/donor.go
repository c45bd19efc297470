package domain

import (
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// DefaultDonationCooldown is the minimum gap between whole-blood donations
const DefaultDonationCooldown = 90 * 24 * time.Hour

const earthRadiusKm = 6371.0

// GeoPoint is a WGS84 coordinate pair
type GeoPoint struct {
	Latitude  float64 `bson:"latitude" json:"latitude"`
	Longitude float64 `bson:"longitude" json:"longitude"`
}

func (p GeoPoint) IsValid() bool {
	return p.Latitude >= -90 && p.Latitude <= 90 && p.Longitude >= -180 && p.Longitude <= 180
}

// DistanceKm returns the great-circle distance to another point
func (p GeoPoint) DistanceKm(other GeoPoint) float64 {
	lat1 := p.Latitude * math.Pi / 180
	lat2 := other.Latitude * math.Pi / 180
	dLat := (other.Latitude - p.Latitude) * math.Pi / 180
	dLon := (other.Longitude - p.Longitude) * math.Pi / 180

	a := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)
	c := 2 * math.Atan2(math.Sqrt(a), math.Sqrt(1-a))
	return earthRadiusKm * c
}

// Donor is the registry read model the matcher and broadcaster query.
// Profile maintenance lives in the donor registry service.
type Donor struct {
	ID         primitive.ObjectID `bson:"_id,omitempty"`
	DonorID    string             `bson:"donorId"`
	BloodGroup BloodGroup         `bson:"bloodGroup"`
	Location   GeoPoint           `bson:"location"`

	Age      int     `bson:"age"`
	WeightKg float64 `bson:"weightKg"`
	HeightCm float64 `bson:"heightCm"`
	Rating   float64 `bson:"rating"`

	IsAvailable    bool       `bson:"isAvailable"`
	MedicallyFit   bool       `bson:"medicallyFit"`
	OrganDonor     bool       `bson:"organDonor"`
	LastDonationAt *time.Time `bson:"lastDonationAt,omitempty"`

	CreatedAt time.Time `bson:"createdAt"`
	UpdatedAt time.Time `bson:"updatedAt"`
}

// InCooldown reports whether the donor donated within the cooldown window
func (d *Donor) InCooldown(now time.Time, cooldown time.Duration) bool {
	if d.LastDonationAt == nil {
		return false
	}
	return d.LastDonationAt.Add(cooldown).After(now)
}

// EligibleForBlood checks availability, fitness and the donation cooldown
func (d *Donor) EligibleForBlood(now time.Time, cooldown time.Duration) bool {
	if !d.IsAvailable || !d.MedicallyFit {
		return false
	}
	return !d.InCooldown(now, cooldown)
}

// EligibleForOrgan checks registry consent and the request's physical criteria
func (d *Donor) EligibleForOrgan(criteria OrganCriteria) bool {
	if !d.IsAvailable || !d.MedicallyFit || !d.OrganDonor {
		return false
	}
	if criteria.MinAge > 0 && d.Age < criteria.MinAge {
		return false
	}
	if criteria.MaxAge > 0 && d.Age > criteria.MaxAge {
		return false
	}
	if criteria.MinWeightKg > 0 && d.WeightKg < criteria.MinWeightKg {
		return false
	}
	if criteria.MaxWeightKg > 0 && d.WeightKg > criteria.MaxWeightKg {
		return false
	}
	if criteria.MinHeightCm > 0 && d.HeightCm < criteria.MinHeightCm {
		return false
	}
	if criteria.MaxHeightCm > 0 && d.HeightCm > criteria.MaxHeightCm {
		return false
	}
	return true
}
