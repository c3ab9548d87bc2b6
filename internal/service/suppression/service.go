package suppression

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ignite/campaign-engine/internal/domain"
	"github.com/ignite/campaign-engine/internal/pkg/logger"
)

// tokenBytes is the entropy of an unsubscribe token before hex encoding.
const tokenBytes = 32

// Service implements suppression business logic. It is safe for concurrent use.
type Service struct {
	repo     Repository
	tokens   TokenRepository
	contacts ContactReader
	now      func() time.Time
}

// NewService creates a suppression service backed by the given repositories.
func NewService(repo Repository, tokens TokenRepository, contacts ContactReader) *Service {
	return &Service{repo: repo, tokens: tokens, contacts: contacts, now: time.Now}
}

// IsSuppressed checks whether a contact should be excluded on a channel.
func (s *Service) IsSuppressed(ctx context.Context, contactID string, channel domain.Channel) (bool, error) {
	return s.repo.IsSuppressed(ctx, contactID, normalizeChannel(channel))
}

// Suppress adds a contact to the suppression list. Idempotent: if the contact
// is already suppressed, the existing record is preserved.
func (s *Service) Suppress(ctx context.Context, contactID string, channel domain.Channel, reason string, source domain.SuppressionSource) error {
	contactID = strings.TrimSpace(contactID)
	if contactID == "" {
		return fmt.Errorf("%w: contact_id is required", ErrValidation)
	}
	if source == "" {
		source = domain.SourceAdmin
	}
	return s.repo.Suppress(ctx, &domain.Suppression{
		ContactID: contactID,
		Channel:   normalizeChannel(channel),
		Reason:    reason,
		Source:    source,
		CreatedAt: s.now().UTC(),
	})
}

// Remove deletes a suppression entry.
func (s *Service) Remove(ctx context.Context, contactID string, channel domain.Channel) error {
	contactID = strings.TrimSpace(contactID)
	if contactID == "" {
		return fmt.Errorf("%w: contact_id is required", ErrValidation)
	}
	return s.repo.Remove(ctx, contactID, normalizeChannel(channel))
}

// List returns suppression entries matching the given filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]domain.Suppression, int, error) {
	return s.repo.List(ctx, filter)
}

// IssueToken returns the unsubscribe token of a contact for a channel,
// creating it on first use. A contact keeps one token per channel so links
// in older campaigns stay valid.
func (s *Service) IssueToken(ctx context.Context, contactID string, scope domain.Channel) (string, error) {
	if contactID == "" {
		return "", fmt.Errorf("%w: contact_id is required", ErrValidation)
	}
	raw, err := newToken()
	if err != nil {
		return "", err
	}
	t, err := s.tokens.GetOrCreate(ctx, &domain.UnsubscribeToken{
		Token:     raw,
		ContactID: contactID,
		Scope:     normalizeChannel(scope),
		CreatedAt: s.now().UTC(),
	})
	if err != nil {
		return "", fmt.Errorf("issue unsubscribe token: %w", err)
	}
	return t.Token, nil
}

// Unsubscribe resolves a token and suppresses its contact on the token's
// channel. Repeating it is harmless and the token stays valid.
func (s *Service) Unsubscribe(ctx context.Context, token string) (*domain.Contact, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	t, err := s.tokens.Lookup(ctx, token)
	if errors.Is(err, ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, fmt.Errorf("lookup unsubscribe token: %w", err)
	}

	if err := s.Suppress(ctx, t.ContactID, t.Scope, "unsubscribed via link", domain.SourceUnsubscribe); err != nil {
		return nil, fmt.Errorf("suppress contact: %w", err)
	}
	if err := s.tokens.Touch(ctx, token, s.now().UTC()); err != nil {
		logger.Warn("unsubscribe token touch failed", "contact_id", t.ContactID, "error", err)
	}
	logger.Info("contact unsubscribed", "contact_id", t.ContactID, "channel", string(t.Scope))

	c, err := s.contacts.Get(ctx, t.ContactID)
	if errors.Is(err, ErrNotFound) {
		return &domain.Contact{ID: t.ContactID}, nil
	}
	if err != nil {
		return nil, err
	}
	return c, nil
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return hex.EncodeToString(b), nil
}

func normalizeChannel(ch domain.Channel) domain.Channel {
	if ch == "" {
		return domain.ChannelEmail
	}
	return domain.Channel(strings.ToLower(string(ch)))
}
