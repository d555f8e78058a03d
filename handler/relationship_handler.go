package handler

import (
	"dinq_federation/service"
	"dinq_federation/utils"

	"github.com/gin-gonic/gin"
)

type RelationshipHandler struct {
	relSvc    *service.RelationshipService
	friendSvc *service.FriendService
	userSvc   *service.UserService
}

func NewRelationshipHandler(relSvc *service.RelationshipService, friendSvc *service.FriendService, userSvc *service.UserService) *RelationshipHandler {
	return &RelationshipHandler{relSvc: relSvc, friendSvc: friendSvc, userSvc: userSvc}
}

// Block 屏蔽 endpoint（已是好友时同时删除关系）
func (h *RelationshipHandler) Block(c *gin.Context) {
	user, ok := currentUser(c, h.userSvc)
	if !ok {
		return
	}
	var req endpointRequest
	if err := c.ShouldBind(&req); err != nil {
		utils.BadRequest(c, "invalid request", err.Error())
		return
	}

	if err := h.friendSvc.Block(c.Request.Context(), user, req.Endpoint); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, nil)
}

// Unblock 取消屏蔽
func (h *RelationshipHandler) Unblock(c *gin.Context) {
	user, ok := currentUser(c, h.userSvc)
	if !ok {
		return
	}
	var req endpointRequest
	if err := c.ShouldBind(&req); err != nil {
		utils.BadRequest(c, "invalid request", err.Error())
		return
	}

	if err := h.relSvc.UnblockEndpoint(c.Request.Context(), user.ID, req.Endpoint); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, nil)
}

// GetBlocks 屏蔽列表
func (h *RelationshipHandler) GetBlocks(c *gin.Context) {
	user, ok := currentUser(c, h.userSvc)
	if !ok {
		return
	}

	blocks, err := h.relSvc.GetBlocks(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.DataResponse(c, blocks)
}
