// Package account handles registration, login and the caller's own profile.
package account

import (
	"context"
	"strings"
	"time"

	"github.com/pkg/errors"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/oggyb/blinddate/internal/app"
	"github.com/oggyb/blinddate/internal/auth"
	"github.com/oggyb/blinddate/internal/db"
	"github.com/oggyb/blinddate/internal/dto"
	svcErr "github.com/oggyb/blinddate/internal/errors"
	"github.com/oggyb/blinddate/internal/repository"
)

const (
	MinAge = 18
	MaxAge = 100
)

type Service struct {
	appCtx      *app.AppContext
	userRepo    *repository.UserRepository
	profileRepo *repository.ProfileRepository

	now func() time.Time
}

func NewAccountService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:      appCtx,
		userRepo:    repository.NewUserRepository(appCtx.DB),
		profileRepo: repository.NewProfileRepository(appCtx.DB),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// RegisterInput is the sign-up form.
type RegisterInput struct {
	Email     string
	Password  string
	Name      string
	Gender    db.Gender
	BirthDate time.Time
	Locale    string
}

// Session is a freshly issued token and the user it belongs to.
type Session struct {
	Token string   `json:"token"`
	User  *UserDTO `json:"user"`
}

// UserDTO is the account part of responses.
type UserDTO struct {
	ID     string        `json:"id"`
	Email  string        `json:"email"`
	Role   db.Role       `json:"role"`
	Status db.UserStatus `json:"status"`
	Locale string        `json:"locale"`
}

func newUserDTO(u *db.User) *UserDTO {
	return &UserDTO{ID: u.ID, Email: u.Email, Role: u.Role, Status: u.Status, Locale: u.Locale}
}

// Register creates the user, a PENDING profile and a default preference
// (the opposite gender for MALE and FEMALE, none otherwise), then issues a
// session token.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Session, error) {
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	if in.Name == "" {
		return nil, svcErr.InvalidArgument("name is required")
	}
	if age := dto.Age(in.BirthDate, s.now()); age < MinAge || age > MaxAge {
		return nil, svcErr.InvalidArgument("age must be between 18 and 100")
	}

	if _, err := s.userRepo.GetByEmail(ctx, in.Email); err == nil {
		return nil, svcErr.AlreadyExists("email already registered")
	} else if !repository.IsNotFound(err) {
		return nil, svcErr.Map(err)
	}

	hash, err := auth.HashPassword(in.Password)
	if err != nil {
		return nil, svcErr.Map(errors.Wrap(err, "hash password"))
	}

	locale := in.Locale
	if locale == "" {
		locale = "zh"
	}
	u := &db.User{
		Email:        in.Email,
		PasswordHash: hash,
		Role:         db.RoleUser,
		Status:       db.UserActive,
		Locale:       locale,
	}
	p := &db.Profile{
		Name:       in.Name,
		Gender:     in.Gender,
		BirthDate:  in.BirthDate,
		Moderation: db.ModerationPending,
	}
	pref := &db.MatchPreference{GenderPref: defaultGenderPref(in.Gender)}

	err = s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return s.userRepo.WithTx(tx).CreateWithProfile(ctx, u, p, pref)
	})
	if err != nil {
		// a concurrent registration may win the unique email index
		if repository.IsDuplicateKey(err) {
			return nil, svcErr.AlreadyExists("email already registered")
		}
		s.appCtx.Logger.Error("Register failed", "email", in.Email, "err", err)
		return nil, svcErr.Map(err)
	}

	token, err := s.appCtx.Tokens.Issue(u, auth.AudienceApp)
	if err != nil {
		return nil, svcErr.Map(errors.Wrap(err, "issue token"))
	}
	s.appCtx.Logger.Info("user registered", "user", u.ID)
	return &Session{Token: token, User: newUserDTO(u)}, nil
}

func defaultGenderPref(g db.Gender) *db.Gender {
	var opposite db.Gender
	switch g {
	case db.GenderMale:
		opposite = db.GenderFemale
	case db.GenderFemale:
		opposite = db.GenderMale
	default:
		return nil
	}
	return &opposite
}

// Login verifies the credentials for the given audience. Banned accounts
// are refused; the admin audience is for ADMIN and MATCHMAKER staff only.
func (s *Service) Login(ctx context.Context, email, password, audience string) (*Session, error) {
	u, err := s.userRepo.GetByEmail(ctx, email)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, svcErr.Unauthenticated("invalid email or password")
		}
		return nil, svcErr.Map(err)
	}
	if !auth.CheckPassword(u.PasswordHash, password) {
		return nil, svcErr.Unauthenticated("invalid email or password")
	}
	if u.Status == db.UserBanned {
		return nil, svcErr.Forbidden("account is banned")
	}
	if audience == auth.AudienceAdmin && u.Role == db.RoleUser {
		return nil, svcErr.Forbidden("staff access required")
	}

	token, err := s.appCtx.Tokens.Issue(u, audience)
	if err != nil {
		return nil, svcErr.Map(errors.Wrap(err, "issue token"))
	}
	s.appCtx.Logger.Info("user logged in", "user", u.ID, "audience", audience)
	return &Session{Token: token, User: newUserDTO(u)}, nil
}

// Me is the caller's own view of their account.
type Me struct {
	User       *UserDTO         `json:"user"`
	Profile    *dto.FullProfile `json:"profile,omitempty"`
	Preference *dto.Preference  `json:"preference,omitempty"`
}

// GetProfile returns the caller's account, profile and preference.
func (s *Service) GetProfile(ctx context.Context, userID string) (*Me, error) {
	u, err := s.userRepo.GetByID(ctx, userID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, svcErr.NotFound("user not found")
		}
		return nil, svcErr.Map(err)
	}
	me := &Me{User: newUserDTO(u), Preference: dto.NewPreference(u.MatchPreference)}
	if u.Profile != nil {
		fp := dto.NewFullProfile(u.Profile, s.now(), true)
		me.Profile = &fp
	}
	return me, nil
}

// PreferenceInput carries the preference fields to change. Nil means keep.
type PreferenceInput struct {
	MinAge        *int
	MaxAge        *int
	MinHeight     *int
	MaxHeight     *int
	GenderPref    *db.Gender
	EducationPref *string
	CityPref      *string
	Description   *string
}

// ProfileInput carries the profile fields to change. Nil means keep.
type ProfileInput struct {
	Name       *string
	BirthDate  *time.Time
	Height     *int
	Weight     *int
	Education  *string
	Occupation *string
	Income     *string
	Bio        *string
	City       *string
	Province   *string
	Country    *string
	Photos     *[]string
	AvatarURL  *string
	Contact    *string
	Preference *PreferenceInput
}

// UpdateProfile applies a partial update to the profile and preference in
// one transaction.
func (s *Service) UpdateProfile(ctx context.Context, userID string, in ProfileInput) (*Me, error) {
	fields, err := s.profileFields(in)
	if err != nil {
		return nil, err
	}

	err = s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		profiles := s.profileRepo.WithTx(tx)
		if len(fields) > 0 {
			if err := profiles.Update(ctx, userID, fields); err != nil {
				return err
			}
		}
		if in.Preference == nil {
			return nil
		}

		pref, err := profiles.GetPreference(ctx, userID)
		if repository.IsNotFound(err) {
			pref = &db.MatchPreference{UserID: userID}
		} else if err != nil {
			return err
		}
		if err := ApplyPreference(pref, in.Preference); err != nil {
			return err
		}
		return profiles.UpsertPreference(ctx, pref)
	})
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, svcErr.NotFound("profile not found")
		}
		return nil, svcErr.Map(err)
	}
	return s.GetProfile(ctx, userID)
}

func (s *Service) profileFields(in ProfileInput) (map[string]any, error) {
	fields := map[string]any{}
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if name == "" {
			return nil, svcErr.InvalidArgument("name cannot be empty")
		}
		fields["name"] = name
	}
	if in.BirthDate != nil {
		if age := dto.Age(*in.BirthDate, s.now()); age < MinAge || age > MaxAge {
			return nil, svcErr.InvalidArgument("age must be between 18 and 100")
		}
		fields["birth_date"] = *in.BirthDate
	}
	if in.Photos != nil {
		if max := s.appCtx.Settings.MaxPhotos(); len(*in.Photos) > max {
			return nil, svcErr.InvalidArgument("too many photos")
		}
		fields["photos"] = datatypes.JSONSlice[string](*in.Photos)
	}
	optional := []struct {
		col string
		val any
		set bool
	}{
		{"height", in.Height, in.Height != nil},
		{"weight", in.Weight, in.Weight != nil},
		{"education", in.Education, in.Education != nil},
		{"occupation", in.Occupation, in.Occupation != nil},
		{"income", in.Income, in.Income != nil},
		{"bio", in.Bio, in.Bio != nil},
		{"city", in.City, in.City != nil},
		{"province", in.Province, in.Province != nil},
		{"country", in.Country, in.Country != nil},
		{"avatar_url", in.AvatarURL, in.AvatarURL != nil},
		{"contact", in.Contact, in.Contact != nil},
	}
	for _, o := range optional {
		if o.set {
			fields[o.col] = o.val
		}
	}
	return fields, nil
}

// ApplyPreference merges in into pref and checks the ranges.
func ApplyPreference(pref *db.MatchPreference, in *PreferenceInput) error {
	if in.MinAge != nil {
		pref.MinAge = in.MinAge
	}
	if in.MaxAge != nil {
		pref.MaxAge = in.MaxAge
	}
	if in.MinHeight != nil {
		pref.MinHeight = in.MinHeight
	}
	if in.MaxHeight != nil {
		pref.MaxHeight = in.MaxHeight
	}
	if in.GenderPref != nil {
		switch *in.GenderPref {
		case "":
			pref.GenderPref = nil
		case db.GenderMale, db.GenderFemale, db.GenderOther:
			pref.GenderPref = in.GenderPref
		default:
			return svcErr.InvalidArgument("genderPref must be MALE, FEMALE, OTHER or empty")
		}
	}
	if in.EducationPref != nil {
		pref.EducationPref = in.EducationPref
	}
	if in.CityPref != nil {
		pref.CityPref = in.CityPref
	}
	if in.Description != nil {
		pref.Description = in.Description
	}

	for _, a := range []*int{pref.MinAge, pref.MaxAge} {
		if a != nil && (*a < MinAge || *a > MaxAge) {
			return svcErr.InvalidArgument("age preference must be between 18 and 100")
		}
	}
	if pref.MinAge != nil && pref.MaxAge != nil && *pref.MinAge > *pref.MaxAge {
		return svcErr.InvalidArgument("minAge cannot exceed maxAge")
	}
	if pref.MinHeight != nil && pref.MaxHeight != nil && *pref.MinHeight > *pref.MaxHeight {
		return svcErr.InvalidArgument("minHeight cannot exceed maxHeight")
	}
	return nil
}
