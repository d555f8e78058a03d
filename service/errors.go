package service

import (
	"errors"
	"fmt"
)

var (
	ErrInvalidRequest     = errors.New("invalid request")
	ErrSelfFriend         = errors.New("cannot friend self")
	ErrBlocked            = errors.New("blocked")
	ErrDuplicateFriend    = errors.New("duplicate friend")
	ErrFriendNotFound     = errors.New("friend not found")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvitationNotFound = errors.New("invitation not found")
	ErrUnknownAction      = errors.New("unknown action")
	ErrNotAccepted        = errors.New("friend not accepted")
	ErrAlreadyBlocked     = errors.New("already blocked")
	ErrNotBlocked         = errors.New("not blocked")
	ErrUnauthorized       = errors.New("unauthorized")
)

// OpError 多步操作失败，Step 标明失败的步骤
type OpError struct {
	Op   string
	Step string
	Err  error
}

func (e *OpError) Error() string {
	return fmt.Sprintf("%s failed at %s: %v", e.Op, e.Step, e.Err)
}

func (e *OpError) Unwrap() error {
	return e.Err
}

// PeerError 对端调用失败（非 200 或响应 status 不是 ok）
type PeerError struct {
	URL        string
	StatusCode int
	Reason     string
	Details    string
}

func (e *PeerError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("peer %s returned %d: %s (%s)", e.URL, e.StatusCode, e.Reason, e.Details)
	}
	return fmt.Sprintf("peer %s returned %d: %s", e.URL, e.StatusCode, e.Reason)
}

// invalid 参数校验错误
func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidRequest, fmt.Sprintf(format, args...))
}
