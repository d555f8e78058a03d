package service

import (
	"context"
	"fmt"

	"dinq_federation/model"
	"dinq_federation/store"

	"github.com/google/uuid"
)

type InvitationService struct {
	store *store.Store
}

func NewInvitationService(s *store.Store) *InvitationService {
	return &InvitationService{store: s}
}

// CreateInvitation 创建邀请，token 交给被邀请人
func (s *InvitationService) CreateInvitation(ctx context.Context, userID uuid.UUID, inviteType, email, note string) (*model.Invitation, error) {
	inv := &model.Invitation{
		UserID: userID,
		Type:   inviteType,
		Email:  email,
		Note:   note,
		Token:  uuid.NewString(),
		Status: model.InvitationStatusOpen,
	}
	if err := s.store.Invitations.NewInstance(ctx, inv); err != nil {
		return nil, fmt.Errorf("failed to create invitation: %w", err)
	}
	return inv, nil
}

// Lookup 查找未使用的邀请
func (s *InvitationService) Lookup(ctx context.Context, userID uuid.UUID, token string) (*model.Invitation, error) {
	if token == "" {
		return nil, ErrInvitationNotFound
	}
	invs, err := s.store.Invitations.GetInstances(ctx, store.Query{"user_id": userID, "token": token, "status": model.InvitationStatusOpen})
	if err != nil {
		return nil, fmt.Errorf("failed to query invitation: %w", err)
	}
	if len(invs) != 1 {
		return nil, ErrInvitationNotFound
	}
	return &invs[0], nil
}

// Claim 原子地占用邀请（open -> used），并发兑换时只有一个成功
func (s *InvitationService) Claim(ctx context.Context, userID uuid.UUID, token string) (*model.Invitation, error) {
	inv, err := s.Lookup(ctx, userID, token)
	if err != nil {
		return nil, err
	}
	n, err := s.store.Invitations.UpdateWhere(ctx,
		store.Query{"id": inv.ID, "status": model.InvitationStatusOpen},
		map[string]any{"status": model.InvitationStatusUsed})
	if err != nil {
		return nil, fmt.Errorf("failed to claim invitation: %w", err)
	}
	if n == 0 {
		return nil, ErrInvitationNotFound
	}
	inv.Status = model.InvitationStatusUsed
	return inv, nil
}

// Release 撤销占用，邀请重新可用
func (s *InvitationService) Release(ctx context.Context, inv *model.Invitation) error {
	_, err := s.store.Invitations.UpdateWhere(ctx,
		store.Query{"id": inv.ID, "status": model.InvitationStatusUsed},
		map[string]any{"status": model.InvitationStatusOpen})
	if err != nil {
		return fmt.Errorf("failed to release invitation: %w", err)
	}
	inv.Status = model.InvitationStatusOpen
	return nil
}

// GetInvitations 列出用户的邀请
func (s *InvitationService) GetInvitations(ctx context.Context, userID uuid.UUID) ([]model.Invitation, error) {
	invs, err := s.store.Invitations.GetInstances(ctx, store.Query{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to query invitations: %w", err)
	}
	return invs, nil
}
