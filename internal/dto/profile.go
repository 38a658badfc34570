// Package dto holds the JSON shapes returned by the services.
package dto

import (
	"time"

	"github.com/oggyb/blinddate/internal/db"
)

// PublicProfile is what other users may see. It never carries contact
// details or moderation state.
type PublicProfile struct {
	UserID     string    `json:"userId"`
	Name       string    `json:"name"`
	Gender     db.Gender `json:"gender"`
	Age        int       `json:"age"`
	Height     *int      `json:"height,omitempty"`
	Education  *string   `json:"education,omitempty"`
	Occupation *string   `json:"occupation,omitempty"`
	Bio        *string   `json:"bio,omitempty"`
	City       *string   `json:"city,omitempty"`
	Province   *string   `json:"province,omitempty"`
	Photos     []string  `json:"photos"`
	AvatarURL  *string   `json:"avatarUrl,omitempty"`
	IsVerified bool      `json:"isVerified"`
}

// FullProfile is the owner's or staff's view.
type FullProfile struct {
	ID         string              `json:"id"`
	UserID     string              `json:"userId"`
	Name       string              `json:"name"`
	Gender     db.Gender           `json:"gender"`
	BirthDate  string              `json:"birthDate"`
	Age        int                 `json:"age"`
	Height     *int                `json:"height,omitempty"`
	Weight     *int                `json:"weight,omitempty"`
	Education  *string             `json:"education,omitempty"`
	Occupation *string             `json:"occupation,omitempty"`
	Income     *string             `json:"income,omitempty"`
	Bio        *string             `json:"bio,omitempty"`
	City       *string             `json:"city,omitempty"`
	Province   *string             `json:"province,omitempty"`
	Country    *string             `json:"country,omitempty"`
	Photos     []string            `json:"photos"`
	AvatarURL  *string             `json:"avatarUrl,omitempty"`
	IsVerified bool                `json:"isVerified"`
	Moderation db.ModerationStatus `json:"moderationStatus"`
	Contact    *string             `json:"contact,omitempty"`
	CreatedAt  time.Time           `json:"createdAt"`
}

// Preference mirrors db.MatchPreference.
type Preference struct {
	MinAge        *int       `json:"minAge,omitempty"`
	MaxAge        *int       `json:"maxAge,omitempty"`
	MinHeight     *int       `json:"minHeight,omitempty"`
	MaxHeight     *int       `json:"maxHeight,omitempty"`
	GenderPref    *db.Gender `json:"genderPref,omitempty"`
	EducationPref *string    `json:"educationPref,omitempty"`
	CityPref      *string    `json:"cityPref,omitempty"`
	Description   *string    `json:"description,omitempty"`
}

// Age in whole years at now.
func Age(birth, now time.Time) int {
	years := now.Year() - birth.Year()
	if now.Month() < birth.Month() || (now.Month() == birth.Month() && now.Day() < birth.Day()) {
		years--
	}
	return years
}

func NewPublicProfile(p *db.Profile, now time.Time) PublicProfile {
	photos := []string(p.Photos)
	if photos == nil {
		photos = []string{}
	}
	return PublicProfile{
		UserID:     p.UserID,
		Name:       p.Name,
		Gender:     p.Gender,
		Age:        Age(p.BirthDate, now),
		Height:     p.Height,
		Education:  p.Education,
		Occupation: p.Occupation,
		Bio:        p.Bio,
		City:       p.City,
		Province:   p.Province,
		Photos:     photos,
		AvatarURL:  p.AvatarURL,
		IsVerified: p.IsVerified,
	}
}

// NewFullProfile includes contact only when withContact is set.
func NewFullProfile(p *db.Profile, now time.Time, withContact bool) FullProfile {
	photos := []string(p.Photos)
	if photos == nil {
		photos = []string{}
	}
	out := FullProfile{
		ID:         p.ID,
		UserID:     p.UserID,
		Name:       p.Name,
		Gender:     p.Gender,
		BirthDate:  p.BirthDate.Format(time.DateOnly),
		Age:        Age(p.BirthDate, now),
		Height:     p.Height,
		Weight:     p.Weight,
		Education:  p.Education,
		Occupation: p.Occupation,
		Income:     p.Income,
		Bio:        p.Bio,
		City:       p.City,
		Province:   p.Province,
		Country:    p.Country,
		Photos:     photos,
		AvatarURL:  p.AvatarURL,
		IsVerified: p.IsVerified,
		Moderation: p.Moderation,
		CreatedAt:  p.CreatedAt,
	}
	if withContact {
		out.Contact = p.Contact
	}
	return out
}

func NewPreference(p *db.MatchPreference) *Preference {
	if p == nil {
		return nil
	}
	return &Preference{
		MinAge:        p.MinAge,
		MaxAge:        p.MaxAge,
		MinHeight:     p.MinHeight,
		MaxHeight:     p.MaxHeight,
		GenderPref:    p.GenderPref,
		EducationPref: p.EducationPref,
		CityPref:      p.CityPref,
		Description:   p.Description,
	}
}
