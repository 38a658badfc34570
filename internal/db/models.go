package db

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

type Role string

const (
	RoleUser       Role = "USER"
	RoleMatchmaker Role = "MATCHMAKER"
	RoleAdmin      Role = "ADMIN"
)

type UserStatus string

const (
	UserActive   UserStatus = "ACTIVE"
	UserBanned   UserStatus = "BANNED"
	UserInactive UserStatus = "INACTIVE"
)

type Gender string

const (
	GenderMale   Gender = "MALE"
	GenderFemale Gender = "FEMALE"
	GenderOther  Gender = "OTHER"
)

type ModerationStatus string

const (
	ModerationPending  ModerationStatus = "PENDING"
	ModerationApproved ModerationStatus = "APPROVED"
	ModerationRejected ModerationStatus = "REJECTED"
)

type PaymentType string

const (
	PaymentTypePayment    PaymentType = "PAYMENT"
	PaymentTypeMatchmaker PaymentType = "MATCHMAKER"
)

type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "PENDING"
	PaymentCompleted PaymentStatus = "COMPLETED"
	PaymentFailed    PaymentStatus = "FAILED"
	PaymentRefunded  PaymentStatus = "REFUNDED"
)

type MessageType string

const (
	MessageText   MessageType = "TEXT"
	MessageEmoji  MessageType = "EMOJI"
	MessageImage  MessageType = "IMAGE"
	MessageSystem MessageType = "SYSTEM"
)

type RequestStatus string

const (
	RequestPending    RequestStatus = "PENDING"
	RequestInProgress RequestStatus = "IN_PROGRESS"
	RequestCompleted  RequestStatus = "COMPLETED"
	RequestCancelled  RequestStatus = "CANCELLED"
)

// User is the identity record. Profile and MatchPreference hang off it 1:1.
type User struct {
	ID           string     `gorm:"primaryKey;size:36" json:"id"`
	Email        string     `gorm:"uniqueIndex;size:128;not null" json:"email"`
	Phone        *string    `gorm:"uniqueIndex;size:32" json:"phone,omitempty"`
	PasswordHash string     `gorm:"size:255;not null" json:"-"`
	Role         Role       `gorm:"size:16;not null;default:USER" json:"role"`
	Status       UserStatus `gorm:"size:16;not null;default:ACTIVE;index" json:"status"`
	Locale       string     `gorm:"size:8;not null;default:zh" json:"locale"`
	CreatedAt    time.Time  `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt    time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`

	Profile         *Profile         `gorm:"foreignKey:UserID" json:"profile,omitempty"`
	MatchPreference *MatchPreference `gorm:"foreignKey:UserID" json:"matchPreference,omitempty"`
}

// Profile is the public dating profile. Contact is staff-only.
//
// A profile is discoverable only while Moderation = APPROVED and the owning
// user is ACTIVE.
type Profile struct {
	ID         string                      `gorm:"primaryKey;size:36" json:"id"`
	UserID     string                      `gorm:"uniqueIndex;size:36;not null" json:"userId"`
	Name       string                      `gorm:"size:64;not null" json:"name"`
	Gender     Gender                      `gorm:"size:16;not null;index" json:"gender"`
	BirthDate  time.Time                   `gorm:"not null" json:"birthDate"`
	Height     *int                        `json:"height"`
	Weight     *int                        `json:"weight"`
	Education  *string                     `gorm:"size:32" json:"education"`
	Occupation *string                     `gorm:"size:128" json:"occupation"`
	Income     *string                     `gorm:"size:32" json:"income"`
	Bio        *string                     `gorm:"type:text" json:"bio"`
	City       *string                     `gorm:"size:64" json:"city"`
	Province   *string                     `gorm:"size:64" json:"province"`
	Country    *string                     `gorm:"size:64" json:"country"`
	Photos     datatypes.JSONSlice[string] `json:"photos"`
	AvatarURL  *string                     `gorm:"size:512" json:"avatarUrl"`
	IsVerified bool                        `gorm:"not null;default:false" json:"isVerified"`
	Moderation ModerationStatus            `gorm:"column:moderation_status;size:16;not null;default:PENDING;index" json:"moderationStatus"`
	Contact    *string                     `gorm:"size:255" json:"contact,omitempty"`
	CreatedAt  time.Time                   `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt  time.Time                   `gorm:"autoUpdateTime" json:"updatedAt"`
}

// MatchPreference narrows Discovery. It is never enforced on likes.
type MatchPreference struct {
	ID            string    `gorm:"primaryKey;size:36" json:"id"`
	UserID        string    `gorm:"uniqueIndex;size:36;not null" json:"userId"`
	MinAge        *int      `json:"minAge"`
	MaxAge        *int      `json:"maxAge"`
	MinHeight     *int      `json:"minHeight"`
	MaxHeight     *int      `json:"maxHeight"`
	GenderPref    *Gender   `gorm:"size:16" json:"genderPref"`
	EducationPref *string   `gorm:"size:32" json:"educationPref"`
	CityPref      *string   `gorm:"size:64" json:"cityPref"`
	Description   *string   `gorm:"type:text" json:"description,omitempty"`
	CreatedAt     time.Time `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// Like is a directed edge. Composite PK (FromUserID, ToUserID) means a user
// can like another at most once.
//
// Indexes:
//   - idx_like_to_created(to_user_id, created_at DESC, from_user_id)
//     serves "who liked me" lists and counts.
type Like struct {
	FromUserID string    `gorm:"primaryKey;size:36;index:idx_like_to_created,priority:3" json:"fromUserId"`
	ToUserID   string    `gorm:"primaryKey;size:36;index:idx_like_to_created,priority:1" json:"toUserId"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index:idx_like_to_created,priority:2,sort:desc" json:"createdAt"`
}

// Match is an unordered pair stored canonically: User1ID < User2ID.
// The unique index on the pair is what keeps concurrent reciprocal likes
// from producing two rows.
type Match struct {
	ID         string     `gorm:"primaryKey;size:36" json:"id"`
	User1ID    string     `gorm:"size:36;not null;uniqueIndex:idx_match_pair,priority:1;check:chk_match_order,user1_id < user2_id" json:"user1Id"`
	User2ID    string     `gorm:"size:36;not null;uniqueIndex:idx_match_pair,priority:2;index" json:"user2Id"`
	IsUnlocked bool       `gorm:"not null;default:false" json:"isUnlocked"`
	UnlockedBy *string    `gorm:"size:36" json:"unlockedBy,omitempty"`
	UnlockedAt *time.Time `json:"unlockedAt,omitempty"`
	CreatedAt  time.Time  `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt  time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`
}

// Has reports whether userID is one of the two members.
func (m *Match) Has(userID string) bool {
	return m.User1ID == userID || m.User2ID == userID
}

// Other returns the counterpart of userID.
func (m *Match) Other(userID string) string {
	if m.User1ID == userID {
		return m.User2ID
	}
	return m.User1ID
}

// UnlockRecord is one unlock attempt (an "order" in the admin console).
type UnlockRecord struct {
	ID          string        `gorm:"primaryKey;size:36" json:"id"`
	MatchID     string        `gorm:"size:36;not null;index" json:"matchId"`
	UserID      string        `gorm:"size:36;not null;index" json:"userId"`
	PaymentType PaymentType   `gorm:"size:16;not null" json:"paymentType"`
	AmountCents int64         `gorm:"not null" json:"amountCents"`
	Status      PaymentStatus `gorm:"size:16;not null;default:PENDING;index" json:"status"`
	Reference   string        `gorm:"size:128" json:"reference"`
	CreatedAt   time.Time     `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt   time.Time     `gorm:"autoUpdateTime" json:"updatedAt"`
}

// Message is append-only and belongs to exactly one match.
type Message struct {
	ID        uint64      `gorm:"primaryKey;autoIncrement" json:"id"`
	MatchID   string      `gorm:"size:36;not null;index:idx_message_match_created,priority:1" json:"matchId"`
	SenderID  string      `gorm:"size:36;not null;index" json:"senderId"`
	Content   string      `gorm:"type:text;not null" json:"content"`
	Type      MessageType `gorm:"size:16;not null;default:TEXT" json:"type"`
	ReadAt    *time.Time  `json:"readAt,omitempty"`
	CreatedAt time.Time   `gorm:"autoCreateTime;index:idx_message_match_created,priority:2" json:"createdAt"`
}

type MatchmakerRequest struct {
	ID        string        `gorm:"primaryKey;size:36" json:"id"`
	UserID    string        `gorm:"size:36;not null;index" json:"userId"`
	MatchID   *string       `gorm:"size:36;index" json:"matchId"`
	Status    RequestStatus `gorm:"size:16;not null;default:PENDING;index" json:"status"`
	Notes     *string       `gorm:"type:text" json:"notes,omitempty"`
	CreatedAt time.Time     `gorm:"autoCreateTime;index" json:"createdAt"`
	UpdatedAt time.Time     `gorm:"autoUpdateTime" json:"updatedAt"`
}

// SystemConfig is the global key/value table behind settings.Store.
type SystemConfig struct {
	Key         string    `gorm:"primaryKey;size:64" json:"key"`
	Value       string    `gorm:"type:text;not null" json:"value"`
	Description *string   `gorm:"size:255" json:"description,omitempty"`
	UpdatedAt   time.Time `gorm:"autoUpdateTime" json:"updatedAt"`
}

// AllModels lists every table, in migration order.
func AllModels() []any {
	return []any{
		&User{}, &Profile{}, &MatchPreference{}, &Like{}, &Match{},
		&UnlockRecord{}, &Message{}, &MatchmakerRequest{}, &SystemConfig{},
	}
}

func newID(id *string) {
	if *id == "" {
		*id = uuid.NewString()
	}
}

func (u *User) BeforeCreate(*gorm.DB) error              { newID(&u.ID); return nil }
func (p *Profile) BeforeCreate(*gorm.DB) error           { newID(&p.ID); return nil }
func (p *MatchPreference) BeforeCreate(*gorm.DB) error   { newID(&p.ID); return nil }
func (m *Match) BeforeCreate(*gorm.DB) error             { newID(&m.ID); return nil }
func (r *UnlockRecord) BeforeCreate(*gorm.DB) error      { newID(&r.ID); return nil }
func (r *MatchmakerRequest) BeforeCreate(*gorm.DB) error { newID(&r.ID); return nil }
