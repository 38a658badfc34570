// Package conversation gates and stores chat between matched users: the
// unlock payment, matchmaker requests, match listings and messages.
package conversation

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pkg/errors"
	"gorm.io/gorm"

	"github.com/oggyb/blinddate/internal/app"
	"github.com/oggyb/blinddate/internal/db"
	"github.com/oggyb/blinddate/internal/dto"
	svcErr "github.com/oggyb/blinddate/internal/errors"
	"github.com/oggyb/blinddate/internal/events"
	"github.com/oggyb/blinddate/internal/payment"
	"github.com/oggyb/blinddate/internal/repository"
)

const (
	MaxMessageRunes = 2000
	HistoryLimit    = 100
	MaxNotesRunes   = 1000
)

// errLostUnlockRace rolls back an unlock whose match was unlocked by a
// concurrent request between the read and the conditional update.
var errLostUnlockRace = errors.New("match already unlocked")

type Service struct {
	appCtx      *app.AppContext
	matchRepo   *repository.MatchRepository
	messageRepo *repository.MessageRepository
	unlockRepo  *repository.UnlockRepository
	mmRepo      *repository.MatchmakerRepository
	profileRepo *repository.ProfileRepository

	now func() time.Time
}

func NewConversationService(appCtx *app.AppContext) *Service {
	return &Service{
		appCtx:      appCtx,
		matchRepo:   repository.NewMatchRepository(appCtx.DB),
		messageRepo: repository.NewMessageRepository(appCtx.DB),
		unlockRepo:  repository.NewUnlockRepository(appCtx.DB),
		mmRepo:      repository.NewMatchmakerRepository(appCtx.DB),
		profileRepo: repository.NewProfileRepository(appCtx.DB),
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// memberMatch loads the match and checks the caller belongs to it.
func (s *Service) memberMatch(ctx context.Context, callerID, matchID string) (*db.Match, error) {
	if strings.TrimSpace(matchID) == "" {
		return nil, svcErr.InvalidArgument("matchId is required")
	}
	m, err := s.matchRepo.GetByID(ctx, matchID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, svcErr.NotFound("match not found")
		}
		return nil, svcErr.Map(err)
	}
	if !m.Has(callerID) {
		return nil, svcErr.Forbidden("not a member of this match")
	}
	return m, nil
}

// UnlockResult reports the outcome of an unlock call.
type UnlockResult struct {
	Unlocked        bool   `json:"unlocked"`
	AlreadyUnlocked bool   `json:"alreadyUnlocked,omitempty"`
	Pending         bool   `json:"pending,omitempty"`
	OrderID         string `json:"orderId,omitempty"`
	AmountCents     int64  `json:"amountCents,omitempty"`
}

// Unlock opens messaging for a match after charging the caller.
//
// Behavior:
//   - Already unlocked matches return AlreadyUnlocked with nothing written.
//   - The price comes from the settings snapshot.
//   - The order record and the match update commit together. The match is
//     flipped only if it is still locked; a request that loses that race
//     rolls back and reports AlreadyUnlocked.
//   - A PENDING charge leaves the match locked until the order settles.
//     While it is open, further calls return that order without charging.
//   - A FAILED charge is recorded and returned as PaymentFailed.
func (s *Service) Unlock(ctx context.Context, callerID, matchID string, paymentType db.PaymentType) (*UnlockResult, error) {
	s.appCtx.Logger.Debug("Unlock called", "caller", callerID, "match", matchID, "type", paymentType)

	switch paymentType {
	case "":
		paymentType = db.PaymentTypePayment
	case db.PaymentTypePayment, db.PaymentTypeMatchmaker:
	default:
		return nil, svcErr.InvalidArgument("paymentType must be PAYMENT or MATCHMAKER")
	}

	m, err := s.memberMatch(ctx, callerID, matchID)
	if err != nil {
		return nil, err
	}
	if m.IsUnlocked {
		return &UnlockResult{Unlocked: true, AlreadyUnlocked: true}, nil
	}

	pending, err := s.unlockRepo.FindPending(ctx, m.ID)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	if pending != nil {
		return &UnlockResult{Pending: true, OrderID: pending.ID, AmountCents: pending.AmountCents}, nil
	}

	amount := s.appCtx.Settings.UnlockPriceCents()
	outcome, err := s.appCtx.Payments.Charge(ctx, payment.Charge{
		UserID:      callerID,
		MatchID:     m.ID,
		AmountCents: amount,
		Type:        paymentType,
	})
	if err != nil {
		s.appCtx.Logger.Error("payment gateway failed", "match", m.ID, "err", err)
		return nil, svcErr.PaymentFailed("payment could not be processed")
	}

	rec := &db.UnlockRecord{
		MatchID:     m.ID,
		UserID:      callerID,
		PaymentType: paymentType,
		AmountCents: amount,
		Status:      outcome.Status,
		Reference:   outcome.Reference,
	}
	err = s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := s.unlockRepo.WithTx(tx).Create(ctx, rec); err != nil {
			return errors.Wrap(err, "create unlock record")
		}
		if outcome.Status != db.PaymentCompleted {
			return nil
		}
		ok, err := s.matchRepo.WithTx(tx).Unlock(ctx, m.ID, callerID, s.now())
		if err != nil {
			return errors.Wrap(err, "unlock match")
		}
		if !ok {
			return errLostUnlockRace
		}
		return nil
	})
	if errors.Is(err, errLostUnlockRace) {
		s.appCtx.Logger.Info("unlock lost race", "match", m.ID, "caller", callerID)
		return &UnlockResult{Unlocked: true, AlreadyUnlocked: true}, nil
	}
	if err != nil {
		s.appCtx.Logger.Error("Unlock failed", "match", m.ID, "err", err)
		return nil, svcErr.Map(err)
	}

	switch outcome.Status {
	case db.PaymentCompleted:
		s.publishUnlocked(ctx, m, callerID)
		return &UnlockResult{Unlocked: true, OrderID: rec.ID, AmountCents: amount}, nil
	case db.PaymentPending:
		return &UnlockResult{Pending: true, OrderID: rec.ID, AmountCents: amount}, nil
	default:
		s.appCtx.Logger.Info("payment declined", "order", rec.ID, "reason", outcome.Reason)
		return nil, svcErr.PaymentFailed("payment failed")
	}
}

// SettleOrder moves an order along PENDING -> COMPLETED|FAILED or
// COMPLETED -> REFUNDED, as a gateway callback would. Completing an order
// unlocks its match in the same transaction. Refunds leave the match open.
// Completing an order whose match is already unlocked refunds it instead,
// so a match never carries two completed orders.
func (s *Service) SettleOrder(ctx context.Context, orderID string, to db.PaymentStatus) (*db.UnlockRecord, error) {
	rec, err := s.unlockRepo.GetByID(ctx, orderID)
	if err != nil {
		if repository.IsNotFound(err) {
			return nil, svcErr.NotFound("order not found")
		}
		return nil, svcErr.Map(err)
	}
	if !canSettle(rec.Status, to) {
		return nil, svcErr.InvalidArgument("order cannot move from " + string(rec.Status) + " to " + string(to))
	}

	var unlocked bool
	final := to
	err = s.appCtx.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		orders := s.unlockRepo.WithTx(tx)
		ok, err := orders.TransitionStatus(ctx, rec.ID, rec.Status, to)
		if err != nil {
			return errors.Wrap(err, "transition order")
		}
		if !ok {
			return svcErr.AlreadyExists("order was modified concurrently")
		}
		if to != db.PaymentCompleted {
			return nil
		}
		unlocked, err = s.matchRepo.WithTx(tx).Unlock(ctx, rec.MatchID, rec.UserID, s.now())
		if err != nil {
			return errors.Wrap(err, "unlock match")
		}
		if unlocked {
			return nil
		}
		// paid twice for one match
		if _, err := orders.TransitionStatus(ctx, rec.ID, db.PaymentCompleted, db.PaymentRefunded); err != nil {
			return errors.Wrap(err, "refund duplicate order")
		}
		final = db.PaymentRefunded
		return nil
	})
	if err != nil {
		return nil, svcErr.Map(err)
	}
	rec.Status = final
	if final != to {
		s.appCtx.Logger.Warn("duplicate order refunded", "order", rec.ID, "match", rec.MatchID)
	}

	if unlocked {
		if m, err := s.matchRepo.GetByID(ctx, rec.MatchID); err == nil {
			s.publishUnlocked(ctx, m, rec.UserID)
		}
	}
	s.appCtx.Logger.Info("order settled", "order", rec.ID, "status", final, "unlocked", unlocked)
	return rec, nil
}

func canSettle(from, to db.PaymentStatus) bool {
	switch from {
	case db.PaymentPending:
		return to == db.PaymentCompleted || to == db.PaymentFailed
	case db.PaymentCompleted:
		return to == db.PaymentRefunded
	}
	return false
}

// RequestMatchmaker files a request for human help. It never unlocks the
// match; a matchmaker does that out of band.
func (s *Service) RequestMatchmaker(ctx context.Context, callerID string, matchID, notes *string) (*db.MatchmakerRequest, error) {
	req := &db.MatchmakerRequest{UserID: callerID, Status: db.RequestPending}

	if matchID != nil && strings.TrimSpace(*matchID) != "" {
		m, err := s.memberMatch(ctx, callerID, *matchID)
		if err != nil {
			return nil, err
		}
		req.MatchID = &m.ID
	}
	if notes != nil {
		n := strings.TrimSpace(*notes)
		if utf8.RuneCountInString(n) > MaxNotesRunes {
			return nil, svcErr.InvalidArgument("notes are too long")
		}
		if n != "" {
			req.Notes = &n
		}
	}

	if err := s.mmRepo.Create(ctx, req); err != nil {
		return nil, svcErr.Map(err)
	}
	s.appCtx.Logger.Info("matchmaker request created", "request", req.ID, "user", callerID)
	return req, nil
}

// MessageView is one chat line as returned to a member.
type MessageView struct {
	ID        uint64         `json:"id"`
	MatchID   string         `json:"matchId"`
	SenderID  string         `json:"senderId"`
	Content   string         `json:"content"`
	Type      db.MessageType `json:"type"`
	IsMine    bool           `json:"isMine"`
	ReadAt    *time.Time     `json:"readAt,omitempty"`
	CreatedAt time.Time      `json:"createdAt"`
}

func newMessageView(m *db.Message, viewerID string) MessageView {
	return MessageView{
		ID:        m.ID,
		MatchID:   m.MatchID,
		SenderID:  m.SenderID,
		Content:   m.Content,
		Type:      m.Type,
		IsMine:    m.SenderID == viewerID,
		ReadAt:    m.ReadAt,
		CreatedAt: m.CreatedAt,
	}
}

// MatchSummary is one row of the caller's match list.
type MatchSummary struct {
	ID          string             `json:"id"`
	IsUnlocked  bool               `json:"isUnlocked"`
	UnlockedAt  *time.Time         `json:"unlockedAt,omitempty"`
	CreatedAt   time.Time          `json:"createdAt"`
	Counterpart *dto.PublicProfile `json:"counterpart,omitempty"`
	LastMessage *MessageView       `json:"lastMessage,omitempty"`
	UnreadCount int64              `json:"unreadCount"`
}

// ListMatches returns the caller's matches, newest first, with the
// counterpart's public profile and a last message preview.
func (s *Service) ListMatches(ctx context.Context, callerID string) ([]MatchSummary, error) {
	matches, err := s.matchRepo.ListForUser(ctx, callerID)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	matchIDs := make([]string, 0, len(matches))
	others := make([]string, 0, len(matches))
	for i := range matches {
		matchIDs = append(matchIDs, matches[i].ID)
		others = append(others, matches[i].Other(callerID))
	}

	profiles, err := s.profileRepo.GetByUserIDs(ctx, others)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	last, err := s.matchRepo.LastMessages(ctx, matchIDs)
	if err != nil {
		return nil, svcErr.Map(err)
	}
	unread, err := s.messageRepo.CountUnread(ctx, matchIDs, callerID)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	now := s.now()
	out := make([]MatchSummary, 0, len(matches))
	for i := range matches {
		m := &matches[i]
		sum := MatchSummary{
			ID:          m.ID,
			IsUnlocked:  m.IsUnlocked,
			UnlockedAt:  m.UnlockedAt,
			CreatedAt:   m.CreatedAt,
			UnreadCount: unread[m.ID],
		}
		if p, ok := profiles[m.Other(callerID)]; ok {
			pub := dto.NewPublicProfile(&p, now)
			sum.Counterpart = &pub
		}
		if msg, ok := last[m.ID]; ok {
			v := newMessageView(&msg, callerID)
			sum.LastMessage = &v
		}
		out = append(out, sum)
	}
	return out, nil
}

// Conversation is the message history of a match plus its metadata.
type Conversation struct {
	MatchID         string        `json:"matchId"`
	IsUnlocked      bool          `json:"isUnlocked"`
	CounterpartID   string        `json:"counterpartId"`
	CounterpartName string        `json:"counterpartName"`
	CurrentUserID   string        `json:"currentUserId"`
	Messages        []MessageView `json:"messages"`
}

// ListMessages returns the most recent messages of a match in ascending
// order and marks the counterpart's messages read.
func (s *Service) ListMessages(ctx context.Context, callerID, matchID string) (*Conversation, error) {
	m, err := s.memberMatch(ctx, callerID, matchID)
	if err != nil {
		return nil, err
	}

	msgs, err := s.messageRepo.ListRecent(ctx, m.ID, HistoryLimit)
	if err != nil {
		return nil, svcErr.Map(err)
	}

	conv := &Conversation{
		MatchID:       m.ID,
		IsUnlocked:    m.IsUnlocked,
		CounterpartID: m.Other(callerID),
		CurrentUserID: callerID,
		Messages:      make([]MessageView, 0, len(msgs)),
	}
	if p, err := s.profileRepo.GetByUserID(ctx, conv.CounterpartID); err == nil {
		conv.CounterpartName = p.Name
	} else if !repository.IsNotFound(err) {
		return nil, svcErr.Map(err)
	}
	for i := range msgs {
		conv.Messages = append(conv.Messages, newMessageView(&msgs[i], callerID))
	}

	if _, err := s.messageRepo.MarkRead(ctx, m.ID, callerID); err != nil {
		s.appCtx.Logger.Warn("mark read failed", "match", m.ID, "err", err)
	}
	return conv, nil
}

// PostMessage appends a TEXT message to an unlocked match.
func (s *Service) PostMessage(ctx context.Context, callerID, matchID, content string) (*MessageView, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return nil, svcErr.InvalidArgument("content is required")
	}
	if utf8.RuneCountInString(content) > MaxMessageRunes {
		return nil, svcErr.InvalidArgument("content is too long")
	}

	m, err := s.memberMatch(ctx, callerID, matchID)
	if err != nil {
		return nil, err
	}
	if !m.IsUnlocked {
		return nil, svcErr.Forbidden("match is locked")
	}

	msg := &db.Message{MatchID: m.ID, SenderID: callerID, Content: content, Type: db.MessageText}
	if err := s.messageRepo.Create(ctx, msg); err != nil {
		s.appCtx.Logger.Error("PostMessage failed", "match", m.ID, "err", err)
		return nil, svcErr.Map(err)
	}
	v := newMessageView(msg, callerID)
	return &v, nil
}

func (s *Service) publishUnlocked(ctx context.Context, m *db.Match, actorID string) {
	e := events.Event{
		Type:    events.TypeMatchUnlocked,
		MatchID: m.ID,
		UserIDs: []string{m.User1ID, m.User2ID},
		ActorID: actorID,
	}
	if err := s.appCtx.Events.Publish(ctx, e); err != nil {
		s.appCtx.Logger.Warn("event publish failed", "type", e.Type, "match", e.MatchID, "err", err)
	}
}
