package models

import (
	"strings"
	"time"
)

// Running frequencies accepted on a profile.
const (
	FrequencyDaily            = "daily"
	FrequencySeveralTimesWeek = "several_times_week"
	FrequencyOnceWeek         = "once_week"
	FrequencyFewTimesMonth    = "few_times_month"
	FrequencyOccasionally     = "occasionally"
)

// Routes returned by the completeness gate.
const (
	NextProfile   = "/profile"
	NextDashboard = "/dashboard"
)

type Profile struct {
	UserID            uint      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	Username          string    `gorm:"size:64" json:"username"`
	Name              string    `gorm:"size:255" json:"name"`
	Age               int       `json:"age"`
	Bio               string    `gorm:"type:text" json:"bio"`
	RunningFrequency  string    `gorm:"size:32" json:"running_frequency"`
	ExperienceLevel   string    `gorm:"size:32" json:"experience_level"`
	PreferredDistance float64   `json:"preferred_distance"`
	AvatarURL         string    `gorm:"size:512" json:"avatar_url"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

// IsComplete reports whether every field required to use the app is set.
func (p *Profile) IsComplete() bool {
	if p == nil {
		return false
	}
	return strings.TrimSpace(p.Username) != "" &&
		strings.TrimSpace(p.Name) != "" &&
		p.Age > 0 &&
		strings.TrimSpace(p.RunningFrequency) != ""
}

// NextRoute is where a signed-in user should land given their profile.
func (p *Profile) NextRoute() string {
	if p.IsComplete() {
		return NextDashboard
	}
	return NextProfile
}

// ValidFrequency reports whether f is one of the known running frequencies.
func ValidFrequency(f string) bool {
	switch f {
	case FrequencyDaily, FrequencySeveralTimesWeek, FrequencyOnceWeek,
		FrequencyFewTimesMonth, FrequencyOccasionally:
		return true
	}
	return false
}
