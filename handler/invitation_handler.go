package handler

import (
	"dinq_federation/service"
	"dinq_federation/utils"

	"github.com/gin-gonic/gin"
)

type InvitationHandler struct {
	invSvc  *service.InvitationService
	userSvc *service.UserService
}

func NewInvitationHandler(invSvc *service.InvitationService, userSvc *service.UserService) *InvitationHandler {
	return &InvitationHandler{invSvc: invSvc, userSvc: userSvc}
}

// CreateInvitation 创建邀请
func (h *InvitationHandler) CreateInvitation(c *gin.Context) {
	user, ok := currentUser(c, h.userSvc)
	if !ok {
		return
	}
	var req struct {
		Type  string `form:"type" json:"type"`
		Email string `form:"email" json:"email"`
		Note  string `form:"note" json:"note"`
	}
	if err := c.ShouldBind(&req); err != nil {
		utils.BadRequest(c, "invalid request", err.Error())
		return
	}

	inv, err := h.invSvc.CreateInvitation(c.Request.Context(), user.ID, req.Type, req.Email, req.Note)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"invitation": inv})
}

// GetInvitations 邀请列表
func (h *InvitationHandler) GetInvitations(c *gin.Context) {
	user, ok := currentUser(c, h.userSvc)
	if !ok {
		return
	}

	invs, err := h.invSvc.GetInvitations(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.DataResponse(c, invs)
}
