package handler

import (
	"net/http"
	"strings"

	"dinq_federation/service"
	"dinq_federation/utils"

	"github.com/gin-gonic/gin"
)

type FriendHandler struct {
	friendSvc *service.FriendService
	userSvc   *service.UserService
}

func NewFriendHandler(friendSvc *service.FriendService, userSvc *service.UserService) *FriendHandler {
	return &FriendHandler{friendSvc: friendSvc, userSvc: userSvc}
}

type endpointRequest struct {
	Endpoint string `form:"endpoint" binding:"required"`
}

// RequestFriend 发起好友请求 GET /{username}/request-friend?endpoint=&invite=
func (h *FriendHandler) RequestFriend(c *gin.Context) {
	user, ok := currentUser(c, h.userSvc)
	if !ok {
		return
	}

	var req struct {
		Endpoint string `form:"endpoint" binding:"required"`
		Invite   string `form:"invite"`
	}
	if err := c.ShouldBind(&req); err != nil {
		utils.BadRequest(c, "invalid request", err.Error())
		return
	}

	friend, err := h.friendSvc.RequestFriend(c.Request.Context(), user, req.Endpoint, req.Invite)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"requestToken": friend.LocalRequestToken,
		"friend":       service.Summarize(*friend),
	})
}

// FriendRequest 对端投递好友请求 POST /{username}/friend-request
func (h *FriendHandler) FriendRequest(c *gin.Context) {
	var req struct {
		RemoteEndPoint string `form:"remoteEndPoint" binding:"required"`
		RequestToken   string `form:"requestToken" binding:"required"`
		InviteToken    string `form:"inviteToken"`
	}
	if err := c.ShouldBind(&req); err != nil {
		utils.BadRequest(c, "invalid request", err.Error())
		return
	}

	token, err := h.friendSvc.ReceiveFriendRequest(c.Request.Context(), c.Param("username"), req.RemoteEndPoint, req.RequestToken, req.InviteToken)
	if err != nil {
		respondError(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{"requestToken": token})
}

// ExchangeToken 凭证交换 POST /{username}/exchange-token
func (h *FriendHandler) ExchangeToken(c *gin.Context) {
	var req struct {
		Endpoint     string `form:"endpoint" binding:"required"`
		RequestToken string `form:"requestToken" binding:"required"`
	}
	if err := c.ShouldBind(&req); err != nil {
		utils.BadRequest(c, "invalid request", err.Error())
		return
	}

	res, err := h.friendSvc.ExchangeToken(c.Request.Context(), c.Param("username"), req.Endpoint, req.RequestToken)
	if err != nil {
		respondError(c, err)
		return
	}

	// status 为关系状态（pending / accepted）
	c.JSON(http.StatusOK, res)
}

// Accept 接受好友请求 POST /{username}/friend-request-accept
func (h *FriendHandler) Accept(c *gin.Context) {
	user, ok := currentUser(c, h.userSvc)
	if !ok {
		return
	}
	var req endpointRequest
	if err := c.ShouldBind(&req); err != nil {
		utils.BadRequest(c, "invalid request", err.Error())
		return
	}

	if _, err := h.friendSvc.Accept(c.Request.Context(), user, req.Endpoint); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, nil)
}

// Decline 拒绝好友请求 POST /{username}/friend-request-decline
func (h *FriendHandler) Decline(c *gin.Context) {
	user, ok := currentUser(c, h.userSvc)
	if !ok {
		return
	}
	var req endpointRequest
	if err := c.ShouldBind(&req); err != nil {
		utils.BadRequest(c, "invalid request", err.Error())
		return
	}

	if err := h.friendSvc.Decline(c.Request.Context(), user, req.Endpoint); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, nil)
}

// Cancel 撤回好友请求 POST /{username}/request-friend-cancel
func (h *FriendHandler) Cancel(c *gin.Context) {
	user, ok := currentUser(c, h.userSvc)
	if !ok {
		return
	}
	var req endpointRequest
	if err := c.ShouldBind(&req); err != nil {
		utils.BadRequest(c, "invalid request", err.Error())
		return
	}

	if err := h.friendSvc.Cancel(c.Request.Context(), user, req.Endpoint); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, nil)
}

// Update 修改可见范围 / 删除 / 屏蔽 POST /{username}/friend-update
func (h *FriendHandler) Update(c *gin.Context) {
	user, ok := currentUser(c, h.userSvc)
	if !ok {
		return
	}
	var req struct {
		Endpoint  string   `form:"endpoint" binding:"required"`
		Status    string   `form:"status"`
		Audiences []string `form:"audiences"`
	}
	if err := c.ShouldBind(&req); err != nil {
		utils.BadRequest(c, "invalid request", err.Error())
		return
	}

	friend, err := h.friendSvc.Update(c.Request.Context(), user, req.Endpoint, req.Status, splitAudiences(req.Audiences))
	if err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, gin.H{"friend": service.Summarize(*friend)})
}

// Webhook 对端状态同步 POST /{username}/friend-webhook
func (h *FriendHandler) Webhook(c *gin.Context) {
	var req struct {
		AccessToken string `form:"accessToken" binding:"required"`
		Action      string `form:"action" binding:"required"`
	}
	if err := c.ShouldBind(&req); err != nil {
		utils.BadRequest(c, "invalid request", err.Error())
		return
	}

	if err := h.friendSvc.HandleWebhook(c.Request.Context(), c.Param("username"), req.AccessToken, req.Action); err != nil {
		respondError(c, err)
		return
	}
	utils.SuccessResponse(c, nil)
}

// GetFriends 好友列表（不含凭证） GET /{username}/friends
func (h *FriendHandler) GetFriends(c *gin.Context) {
	user, ok := currentUser(c, h.userSvc)
	if !ok {
		return
	}

	friends, err := h.friendSvc.GetFriends(c.Request.Context(), user.ID)
	if err != nil {
		respondError(c, err)
		return
	}

	out := make([]service.FriendSummary, 0, len(friends))
	for _, f := range friends {
		out = append(out, service.Summarize(f))
	}
	utils.DataResponse(c, out)
}

// splitAudiences 兼容 audiences=public,friends 与多值两种写法
func splitAudiences(in []string) []string {
	var out []string
	for _, v := range in {
		for _, a := range strings.Split(v, ",") {
			if a = strings.TrimSpace(a); a != "" {
				out = append(out, a)
			}
		}
	}
	return out
}
