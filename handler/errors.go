package handler

import (
	"errors"
	"net/http"

	"dinq_federation/middleware"
	"dinq_federation/model"
	"dinq_federation/service"
	"dinq_federation/store"
	"dinq_federation/utils"

	"github.com/gin-gonic/gin"
)

var errorStatus = []struct {
	err    error
	status int
}{
	{service.ErrInvalidRequest, http.StatusBadRequest},
	{service.ErrSelfFriend, http.StatusBadRequest},
	{service.ErrUnknownAction, http.StatusBadRequest},
	{service.ErrUnauthorized, http.StatusUnauthorized},
	{service.ErrBlocked, http.StatusForbidden},
	{service.ErrUserNotFound, http.StatusNotFound},
	{service.ErrFriendNotFound, http.StatusNotFound},
	{service.ErrInvitationNotFound, http.StatusNotFound},
	{service.ErrNotBlocked, http.StatusNotFound},
	{service.ErrDuplicateFriend, http.StatusConflict},
	{service.ErrAlreadyBlocked, http.StatusConflict},
	{service.ErrNotAccepted, http.StatusConflict},
	{store.ErrDuplicate, http.StatusConflict},
	{store.ErrNotFound, http.StatusNotFound},
}

// respondError 把服务层错误映射成 {status:"error", reason, details}
func respondError(c *gin.Context, err error) {
	var peerErr *service.PeerError
	if errors.As(err, &peerErr) {
		utils.BadGateway(c, peerErr.Reason, err.Error())
		return
	}
	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			utils.ErrorResponse(c, e.status, e.err.Error(), err.Error())
			return
		}
	}
	_ = c.Error(err)
	utils.InternalServerError(c, err.Error())
}

// currentUser 已认证用户必须与路径中的 username 一致
func currentUser(c *gin.Context, users *service.UserService) (*model.User, bool) {
	userID, exists := middleware.GetUserID(c)
	if !exists {
		utils.Unauthorized(c, "unauthorized")
		return nil, false
	}
	user, err := users.GetByID(c.Request.Context(), userID)
	if err != nil {
		utils.Unauthorized(c, "unknown user")
		return nil, false
	}
	if user.Username != c.Param("username") {
		utils.Forbidden(c, "forbidden", "token does not match username")
		return nil, false
	}
	return user, true
}
