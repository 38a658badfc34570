package db

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// DefaultSystemConfigs are written by the seeder and only fill missing keys.
var DefaultSystemConfigs = []SystemConfig{
	{Key: "unlock_price", Value: "29.9", Description: ptr("single unlock price")},
	{Key: "vip_monthly_price", Value: "99", Description: ptr("VIP monthly price")},
	{Key: "daily_recommend_count", Value: "10", Description: ptr("daily recommendations")},
	{Key: "max_photos", Value: "9", Description: ptr("maximum profile photos")},
}

type demoUser struct {
	email      string
	name       string
	gender     Gender
	birthDate  string
	height     int
	education  string
	occupation string
	bio        string
	city       string
}

var demoUsers = []demoUser{
	{"alice@example.com", "Alice Wang", GenderFemale, "1996-05-15", 165, "BACHELOR", "Product Designer", "Love traveling, reading and coffee", "Shanghai"},
	{"bob@example.com", "Bob Li", GenderMale, "1994-08-20", 178, "MASTER", "Software Engineer", "Tech enthusiast, gym lover", "Beijing"},
	{"carol@example.com", "Carol Chen", GenderFemale, "1997-03-10", 162, "BACHELOR", "Marketing Manager", "Foodie and yoga lover", "Shenzhen"},
	{"david@example.com", "David Zhang", GenderMale, "1993-11-25", 182, "MASTER", "Finance Analyst", "Jazz music, hiking and cooking", "Guangzhou"},
	{"emma@example.com", "Emma Liu", GenderFemale, "1998-07-08", 168, "BACHELOR", "Teacher", "Cat person, movie buff", "Chengdu"},
}

// SeedTestData inserts the admin account, a handful of approved demo users,
// a couple of one-way likes, and the default system configs.
//
// Existing rows are left alone, so the seeder is safe to re-run against a
// live database.
func SeedTestData(database *gorm.DB, log *slog.Logger) error {
	adminHash, err := bcrypt.GenerateFromPassword([]byte("admin123456"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	userHash, err := bcrypt.GenerateFromPassword([]byte("user123456"), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}

	return database.Transaction(func(tx *gorm.DB) error {
		admin, err := seedUser(tx, User{
			Email:        "admin@blinddate.com",
			PasswordHash: string(adminHash),
			Role:         RoleAdmin,
		}, Profile{
			Name:       "System Admin",
			Gender:     GenderMale,
			BirthDate:  mustDate("1990-01-01"),
			Moderation: ModerationApproved,
		}, nil)
		if err != nil {
			return err
		}
		log.Info("seeded admin", "email", admin.Email)

		ids := make(map[string]string, len(demoUsers))
		for _, d := range demoUsers {
			pref := GenderMale
			if d.gender == GenderMale {
				pref = GenderFemale
			}
			u, err := seedUser(tx, User{
				Email:        d.email,
				PasswordHash: string(userHash),
				Role:         RoleUser,
			}, Profile{
				Name:       d.name,
				Gender:     d.gender,
				BirthDate:  mustDate(d.birthDate),
				Height:     ptr(d.height),
				Education:  ptr(d.education),
				Occupation: ptr(d.occupation),
				Bio:        ptr(d.bio),
				City:       ptr(d.city),
				IsVerified: true,
				Moderation: ModerationApproved,
			}, &MatchPreference{
				MinAge:     ptr(22),
				MaxAge:     ptr(40),
				GenderPref: &pref,
			})
			if err != nil {
				return err
			}
			ids[d.email] = u.ID
		}
		log.Info("seeded demo users", "count", len(demoUsers))

		// One-way likes, so liking back from a demo login forms a match.
		likes := []Like{
			{FromUserID: ids["bob@example.com"], ToUserID: ids["alice@example.com"]},
			{FromUserID: ids["carol@example.com"], ToUserID: ids["bob@example.com"]},
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&likes).Error; err != nil {
			return fmt.Errorf("failed to seed likes: %w", err)
		}

		configs := append([]SystemConfig(nil), DefaultSystemConfigs...)
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&configs).Error; err != nil {
			return fmt.Errorf("failed to seed system configs: %w", err)
		}
		log.Info("seeded system configs", "count", len(DefaultSystemConfigs))
		return nil
	})
}

func seedUser(tx *gorm.DB, u User, p Profile, pref *MatchPreference) (*User, error) {
	var existing User
	err := tx.Where("email = ?", u.Email).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("failed to look up %s: %w", u.Email, err)
	}

	u.Status = UserActive
	u.Locale = "zh"
	if err := tx.Create(&u).Error; err != nil {
		return nil, fmt.Errorf("failed to seed user %s: %w", u.Email, err)
	}
	p.UserID = u.ID
	if err := tx.Create(&p).Error; err != nil {
		return nil, fmt.Errorf("failed to seed profile %s: %w", u.Email, err)
	}
	if pref != nil {
		pref.UserID = u.ID
		if err := tx.Create(pref).Error; err != nil {
			return nil, fmt.Errorf("failed to seed preference %s: %w", u.Email, err)
		}
	}
	return &u, nil
}

func mustDate(s string) time.Time {
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		panic(err)
	}
	return t
}

func ptr[T any](v T) *T { return &v }
