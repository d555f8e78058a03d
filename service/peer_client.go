package service

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// Webhook actions
const (
	ActionFriendAccepted = "friend-request-accepted"
	ActionFriendUpdate   = "friend-update"
	ActionFriendDeclined = "friend-request-declined"
	ActionFriendCancel   = "request-friend-cancel"
	ActionFriendDelete   = "friend-delete"
)

// ExchangeResult exchange-token 响应
type ExchangeResult struct {
	Status      string `json:"status"`
	AccessToken string `json:"accessToken"`
	PublicKey   string `json:"publicKey"`
	Name        string `json:"name"`
	Username    string `json:"username"`
	Community   bool   `json:"community"`
}

// PeerClient 调用对端服务器的握手接口
type PeerClient interface {
	SendFriendRequest(ctx context.Context, endpoint, myEndpoint, requestToken, inviteToken string) (string, error)
	ExchangeToken(ctx context.Context, endpoint, myEndpoint, requestToken string) (*ExchangeResult, error)
	CallWebhook(ctx context.Context, endpoint, accessToken, action string) error
}

// HTTPPeerClient 表单 POST + JSON 响应
type HTTPPeerClient struct {
	client  *http.Client
	rewrite func(string) string
}

// NewHTTPPeerClient 创建对端客户端；rewrite 可为 nil
func NewHTTPPeerClient(timeout time.Duration, rewrite func(string) string) *HTTPPeerClient {
	if rewrite == nil {
		rewrite = func(u string) string { return u }
	}
	return &HTTPPeerClient{
		client:  &http.Client{Timeout: timeout},
		rewrite: rewrite,
	}
}

// ProxyRewrite 部署在反向代理之后时，把指向自身公网地址的请求改写为本地回环
func ProxyRewrite(publicHost, port string) func(string) string {
	local := "http://localhost:" + port
	return func(u string) string {
		if publicHost != "" && strings.HasPrefix(u, publicHost) {
			return local + strings.TrimPrefix(u, publicHost)
		}
		return u
	}
}

type peerResponse struct {
	Status       string `json:"status"`
	Reason       string `json:"reason"`
	Details      string `json:"details"`
	RequestToken string `json:"requestToken"`
}

// SendFriendRequest 投递好友请求，返回对端的 requestToken
func (c *HTTPPeerClient) SendFriendRequest(ctx context.Context, endpoint, myEndpoint, requestToken, inviteToken string) (string, error) {
	form := url.Values{
		"remoteEndPoint": {myEndpoint},
		"requestToken":   {requestToken},
	}
	if inviteToken != "" {
		form.Set("inviteToken", inviteToken)
	}

	var resp peerResponse
	if err := c.post(ctx, endpoint+"/friend-request", form, &resp); err != nil {
		return "", err
	}
	if resp.RequestToken == "" {
		return "", &PeerError{URL: endpoint + "/friend-request", StatusCode: http.StatusOK, Reason: "missing requestToken"}
	}
	return resp.RequestToken, nil
}

// ExchangeToken 用 requestToken 换取对端的 accessToken 与公钥
func (c *HTTPPeerClient) ExchangeToken(ctx context.Context, endpoint, myEndpoint, requestToken string) (*ExchangeResult, error) {
	form := url.Values{
		"endpoint":     {myEndpoint},
		"requestToken": {requestToken},
	}

	var resp ExchangeResult
	if err := c.post(ctx, endpoint+"/exchange-token", form, &resp); err != nil {
		return nil, err
	}
	if resp.AccessToken == "" || resp.PublicKey == "" {
		return nil, &PeerError{URL: endpoint + "/exchange-token", StatusCode: http.StatusOK, Reason: "incomplete credentials"}
	}
	return &resp, nil
}

// CallWebhook 通知对端关系状态变化
func (c *HTTPPeerClient) CallWebhook(ctx context.Context, endpoint, accessToken, action string) error {
	form := url.Values{
		"accessToken": {accessToken},
		"action":      {action},
	}
	var resp peerResponse
	return c.post(ctx, endpoint+"/friend-webhook", form, &resp)
}

func (c *HTTPPeerClient) post(ctx context.Context, target string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.rewrite(target), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to build peer request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	res, err := c.client.Do(req)
	if err != nil {
		return &PeerError{URL: target, Reason: "unreachable", Details: err.Error()}
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return &PeerError{URL: target, StatusCode: res.StatusCode, Reason: "read failed", Details: err.Error()}
	}

	var status peerResponse
	if err := json.Unmarshal(body, &status); err != nil {
		return &PeerError{URL: target, StatusCode: res.StatusCode, Reason: "unexpected body", Details: err.Error()}
	}
	if res.StatusCode != http.StatusOK || status.Status == "error" {
		reason := status.Reason
		if reason == "" {
			reason = http.StatusText(res.StatusCode)
		}
		return &PeerError{URL: target, StatusCode: res.StatusCode, Reason: reason, Details: status.Details}
	}
	if status.Status == "" {
		return &PeerError{URL: target, StatusCode: res.StatusCode, Reason: "unexpected body", Details: "missing status"}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &PeerError{URL: target, StatusCode: res.StatusCode, Reason: "unexpected body", Details: err.Error()}
	}
	return nil
}
