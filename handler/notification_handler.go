package handler

import (
	"strconv"

	"dinq_federation/service"
	"dinq_federation/utils"

	"github.com/gin-gonic/gin"
)

type NotificationHandler struct {
	notifSvc *service.NotificationService
	userSvc  *service.UserService
}

func NewNotificationHandler(notifSvc *service.NotificationService, userSvc *service.UserService) *NotificationHandler {
	return &NotificationHandler{notifSvc: notifSvc, userSvc: userSvc}
}

// GetNotifications 获取 cursor 之后的通知 GET /{username}/notifications?app=&after=&limit=
func (h *NotificationHandler) GetNotifications(c *gin.Context) {
	user, ok := currentUser(c, h.userSvc)
	if !ok {
		return
	}

	// 分页参数
	appID := c.DefaultQuery("app", service.AppFriends)
	after, _ := strconv.ParseInt(c.DefaultQuery("after", "0"), 10, 64)
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "100"))
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	items, err := h.notifSvc.GetNotifications(c.Request.Context(), user.ID, appID, after, limit)
	if err != nil {
		respondError(c, err)
		return
	}
	utils.DataResponse(c, items)
}
