package share

import (
	"context"
	"fmt"
	"time"

	"github.com/dmitrijs2005/filevault/internal/common"
	"github.com/dmitrijs2005/filevault/internal/cryptox"
	"github.com/dmitrijs2005/filevault/internal/logging"
	"github.com/dmitrijs2005/filevault/internal/models"
	"github.com/dmitrijs2005/filevault/internal/ratelimit"
	"github.com/google/uuid"
)

// CreateOptions configure a new share link. Zero fields leave the
// corresponding limit off.
type CreateOptions struct {
	ExpiresAt      time.Time
	Password       string
	MaxAccessCount int64
}

// Grant is the result of a successful share-link access: a signed download
// capability for the link's item.
type Grant struct {
	ItemID    string
	Token     string
	ExpiresAt time.Time
}

// Service manages share links. Creation is throttled per owner; access
// validation runs its checks in a fixed order (expiry, password, scope,
// count) and the count increment is atomic.
type Service struct {
	repo    Repository
	issuer  *CapabilityIssuer
	limiter *ratelimit.PerUser
	log     logging.Logger
	now     func() time.Time
}

func NewService(repo Repository, issuer *CapabilityIssuer, limiter *ratelimit.PerUser, log logging.Logger) *Service {
	return &Service{
		repo:    repo,
		issuer:  issuer,
		limiter: limiter,
		log:     log.With("component", "share"),
		now:     time.Now,
	}
}

// Create issues a new share link for the item.
func (s *Service) Create(ctx context.Context, ownerID, itemID string, opts CreateOptions) (*models.ShareLink, error) {
	if !s.limiter.Allow(ownerID) {
		return nil, common.ErrRateLimitExceeded
	}

	link := &models.ShareLink{
		ShareID:        uuid.NewString(),
		ItemID:         itemID,
		OwnerID:        ownerID,
		ExpiresAt:      opts.ExpiresAt,
		MaxAccessCount: opts.MaxAccessCount,
		CreatedAt:      s.now().UTC(),
	}
	if opts.Password != "" {
		hash, err := cryptox.HashPassword(opts.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to hash share password: %w", err)
		}
		link.PasswordHash = hash
	}

	if err := s.repo.Create(ctx, link); err != nil {
		return nil, err
	}
	s.log.Info(ctx, "share link created", "share_id", link.ShareID, "item_id", itemID)
	return link, nil
}

// Access validates a share-link access request and, on success, consumes one
// access and returns a download capability scoped to the link's item.
//
// requestedItemID is what the caller claims to be fetching; a mismatch with
// the link's recorded item is an authorization failure, never a silent
// redirect.
func (s *Service) Access(ctx context.Context, shareID, requestedItemID, password string) (*Grant, error) {
	link, err := s.repo.Get(ctx, shareID)
	if err != nil {
		return nil, err
	}

	if link.Expired(s.now()) {
		return nil, common.ErrExpiredLink
	}

	if link.PasswordHash != "" {
		ok, err := cryptox.VerifyPassword(password, link.PasswordHash)
		if err != nil || !ok {
			return nil, common.ErrInvalidPassword
		}
	}

	if requestedItemID != "" && requestedItemID != link.ItemID {
		return nil, common.ErrNotAuthorized
	}

	granted, err := s.repo.ConsumeAccess(ctx, shareID)
	if err != nil {
		return nil, err
	}
	if !granted {
		return nil, common.ErrAccessLimitExceeded
	}

	token, expiresAt, err := s.issuer.Issue(link.ItemID, link.ShareID)
	if err != nil {
		return nil, err
	}
	s.log.Info(ctx, "share link accessed", "share_id", shareID, "item_id", link.ItemID)
	return &Grant{ItemID: link.ItemID, Token: token, ExpiresAt: expiresAt}, nil
}

// Revoke deletes a link; only its owner may do so.
func (s *Service) Revoke(ctx context.Context, ownerID, shareID string) error {
	link, err := s.repo.Get(ctx, shareID)
	if err != nil {
		return err
	}
	if link.OwnerID != ownerID {
		return common.ErrNotAuthorized
	}
	return s.repo.Revoke(ctx, shareID)
}

// List returns the owner's share links.
func (s *Service) List(ctx context.Context, ownerID string) ([]*models.ShareLink, error) {
	return s.repo.ListByOwner(ctx, ownerID)
}
