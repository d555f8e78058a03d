package service

import (
	"context"
	"fmt"

	"dinq_federation/model"
	"dinq_federation/store"

	"github.com/google/uuid"
)

// RelationshipService 屏蔽列表
type RelationshipService struct {
	store *store.Store
}

func NewRelationshipService(s *store.Store) *RelationshipService {
	return &RelationshipService{store: s}
}

// BlockEndpoint 屏蔽 endpoint
func (s *RelationshipService) BlockEndpoint(ctx context.Context, userID uuid.UUID, endpoint string) (*model.Block, error) {
	blocked, err := s.IsBlocked(ctx, userID, endpoint)
	if err != nil {
		return nil, err
	}
	if blocked {
		return nil, ErrAlreadyBlocked
	}

	block := &model.Block{UserID: userID, RemoteEndPoint: endpoint}
	if err := s.store.Blocks.NewInstance(ctx, block); err != nil {
		return nil, fmt.Errorf("failed to block endpoint: %w", err)
	}
	return block, nil
}

// UnblockEndpoint 取消屏蔽
func (s *RelationshipService) UnblockEndpoint(ctx context.Context, userID uuid.UUID, endpoint string) error {
	blocks, err := s.store.Blocks.GetInstances(ctx, store.Query{"user_id": userID, "remote_end_point": endpoint})
	if err != nil {
		return fmt.Errorf("failed to check block: %w", err)
	}
	if len(blocks) == 0 {
		return ErrNotBlocked
	}
	for _, b := range blocks {
		if err := s.store.Blocks.DeleteInstance(ctx, b.ID); err != nil {
			return fmt.Errorf("failed to unblock endpoint: %w", err)
		}
	}
	return nil
}

// GetBlocks 获取屏蔽列表
func (s *RelationshipService) GetBlocks(ctx context.Context, userID uuid.UUID) ([]model.Block, error) {
	blocks, err := s.store.Blocks.GetInstances(ctx, store.Query{"user_id": userID})
	if err != nil {
		return nil, fmt.Errorf("failed to query blocks: %w", err)
	}
	return blocks, nil
}

// IsBlocked 检查是否已屏蔽
func (s *RelationshipService) IsBlocked(ctx context.Context, userID uuid.UUID, endpoint string) (bool, error) {
	blocks, err := s.store.Blocks.GetInstances(ctx, store.Query{"user_id": userID, "remote_end_point": endpoint})
	if err != nil {
		return false, fmt.Errorf("failed to check block: %w", err)
	}
	return len(blocks) > 0, nil
}
