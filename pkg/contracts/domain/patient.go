package domain

import (
	"math"
	"time"
)

// Sex is the recorded sex of a patient
type Sex string

const (
	SexMale    Sex = "male"
	SexFemale  Sex = "female"
	SexUnknown Sex = "unknown"
)

// Sentinel values marking fields the source data did not provide.
// The cleaning step replaces them with documented defaults.
const (
	AgeMissing = -1

	// InfectionTypeMissing is the empty string; the cleaner fills it
	// with InfectionTypeUnspecified.
	InfectionTypeMissing     = ""
	InfectionTypeUnspecified = "unspecified"
)

// InfectionTypes is the fixed label set used by mobile clinic teams.
var InfectionTypes = []string{
	"Waterborne Infections",
	"Vector-Borne Diseases",
	"Respiratory Infections",
	"Gastrointestinal Infections",
	"Skin Infections",
	"Trauma/Injuries",
	"Chronic Conditions",
	"Nutritional Deficiencies",
	"Vaccine-Preventable Diseases",
	"Hygiene and Sanitation-Related Issues",
	"Other",
}

// PatientRecord is one simulated or uploaded clinic case.
type PatientRecord struct {
	ID            int       `json:"id"`
	Day           int       `json:"day"`
	DiagnosisDate time.Time `json:"diagnosis_date"`
	Age           int       `json:"age"`
	Sex           Sex       `json:"sex"`
	Latitude      float64   `json:"latitude"`
	Longitude     float64   `json:"longitude"`
	Infected      bool      `json:"infected"`
	InfectionType string    `json:"infection_type"`
}

// HasAge reports whether the record carries a usable age.
func (p PatientRecord) HasAge() bool {
	return p.Age >= 0
}

// HasLocation reports whether the record carries usable coordinates.
// Coordinates are stored as NaN when the source value was absent or
// unparseable, so geographic views can exclude the row without
// touching the other aggregations.
func (p PatientRecord) HasLocation() bool {
	return !math.IsNaN(p.Latitude) && !math.IsNaN(p.Longitude) &&
		p.Latitude >= -90 && p.Latitude <= 90 &&
		p.Longitude >= -180 && p.Longitude <= 180
}
