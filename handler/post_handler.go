package handler

import (
	"encoding/json"

	"dinq_federation/service"
	"dinq_federation/utils"

	"github.com/gin-gonic/gin"
)

type PostHandler struct {
	activitySvc *service.ActivityLogService
	userSvc     *service.UserService
}

func NewPostHandler(activitySvc *service.ActivityLogService, userSvc *service.UserService) *PostHandler {
	return &PostHandler{activitySvc: activitySvc, userSvc: userSvc}
}

// CreatePost 发布动态 POST /{username}/posts
func (h *PostHandler) CreatePost(c *gin.Context) {
	user, ok := currentUser(c, h.userSvc)
	if !ok {
		return
	}
	var req struct {
		Data json.RawMessage `json:"data" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequest(c, "invalid request", err.Error())
		return
	}

	item, delivered, err := h.activitySvc.Post(c.Request.Context(), user, req.Data)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{
		"cursor":    item.Cursor,
		"delivered": delivered,
	})
}
