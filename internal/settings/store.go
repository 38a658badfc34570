// Package settings holds an in-memory snapshot of the system_configs table.
// Handlers read it on every request; the admin API replaces it on reload.
package settings

import (
	"context"
	"log/slog"
	"math"
	"strconv"
	"sync"

	"github.com/pkg/errors"

	"github.com/oggyb/blinddate/internal/db"
	"github.com/oggyb/blinddate/internal/repository"
)

const (
	KeyUnlockPrice         = "unlock_price"
	KeyVIPMonthlyPrice     = "vip_monthly_price"
	KeyDailyRecommendCount = "daily_recommend_count"
	KeyMaxPhotos           = "max_photos"

	DefaultUnlockPriceCents = 2990
	DefaultMaxPhotos        = 9
)

// Store is safe for concurrent use.
type Store struct {
	repo *repository.ConfigRepository
	log  *slog.Logger

	mu     sync.RWMutex
	values map[string]string
}

// NewStore returns an empty store. Call Reload before serving traffic.
func NewStore(repo *repository.ConfigRepository, log *slog.Logger) *Store {
	return &Store{repo: repo, log: log, values: map[string]string{}}
}

// Reload replaces the snapshot with the table contents.
func (s *Store) Reload(ctx context.Context) error {
	rows, err := s.repo.All(ctx)
	if err != nil {
		return errors.Wrap(err, "load system configs")
	}
	next := make(map[string]string, len(rows))
	for _, r := range rows {
		next[r.Key] = r.Value
	}

	s.mu.Lock()
	s.values = next
	s.mu.Unlock()

	s.log.Info("settings reloaded", "keys", len(next))
	return nil
}

// Update upserts the given values and reloads.
func (s *Store) Update(ctx context.Context, values map[string]string) error {
	rows := make([]db.SystemConfig, 0, len(values))
	for k, v := range values {
		rows = append(rows, db.SystemConfig{Key: k, Value: v})
	}
	if err := s.repo.Upsert(ctx, rows); err != nil {
		return errors.Wrap(err, "save system configs")
	}
	return s.Reload(ctx)
}

// Values returns a copy of the snapshot.
func (s *Store) Values() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make(map[string]string, len(s.values))
	for k, v := range s.values {
		out[k] = v
	}
	return out
}

// Get returns the raw value of key.
func (s *Store) Get(key string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	v, ok := s.values[key]
	return v, ok
}

// UnlockPriceCents is unlock_price (a decimal amount) in cents.
func (s *Store) UnlockPriceCents() int64 {
	v, ok := s.Get(KeyUnlockPrice)
	if !ok {
		return DefaultUnlockPriceCents
	}
	cents, err := ParseAmountCents(v)
	if err != nil || cents <= 0 {
		s.log.Warn("invalid unlock_price, using default", "value", v)
		return DefaultUnlockPriceCents
	}
	return cents
}

// MaxPhotos is the photo limit on profile updates.
func (s *Store) MaxPhotos() int {
	v, ok := s.Get(KeyMaxPhotos)
	if !ok {
		return DefaultMaxPhotos
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		s.log.Warn("invalid max_photos, using default", "value", v)
		return DefaultMaxPhotos
	}
	return n
}

// Validate checks a value before it is stored. Unknown keys are accepted
// as free-form strings.
func Validate(key, value string) error {
	switch key {
	case KeyUnlockPrice, KeyVIPMonthlyPrice:
		cents, err := ParseAmountCents(value)
		if err != nil || cents <= 0 {
			return errors.Errorf("%s must be a positive amount", key)
		}
	case KeyDailyRecommendCount, KeyMaxPhotos:
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return errors.Errorf("%s must be a non-negative integer", key)
		}
	case "":
		return errors.New("config key is required")
	}
	return nil
}

// ParseAmountCents parses "29.9" into 2990.
func ParseAmountCents(v string) (int64, error) {
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, errors.Errorf("invalid amount %q", v)
	}
	return int64(math.Round(f * 100)), nil
}

// FormatAmount renders cents as a decimal string, e.g. 2990 -> "29.90".
func FormatAmount(cents int64) string {
	return strconv.FormatFloat(float64(cents)/100, 'f', 2, 64)
}
