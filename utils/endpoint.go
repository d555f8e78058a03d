package utils

import (
	"fmt"
	"hash/crc32"
	"net/url"
	"strings"
)

// ValidEndpoint 校验 endpoint 是否为合法的 http(s) 绝对地址
func ValidEndpoint(endpoint string) bool {
	u, err := url.Parse(endpoint)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

// EndpointHost 返回 endpoint 的 scheme://host 部分
func EndpointHost(endpoint string) string {
	u, err := url.Parse(endpoint)
	if err != nil {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

// EndpointHash endpoint 的短哈希（crc32 十六进制）
func EndpointHash(endpoint string) string {
	return fmt.Sprintf("%08x", crc32.ChecksumIEEE([]byte(endpoint)))
}

// ActivityURL 由 remoteEndPoint 的 scheme/host 与活动通道挂载前缀推导 websocket 地址
// https://host/antisocial/bob + /antisocial -> wss://host/antisocial-activity
func ActivityURL(remoteEndPoint, apiPrefix string) (string, error) {
	u, err := url.Parse(remoteEndPoint)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	default:
		return "", fmt.Errorf("unsupported endpoint scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("endpoint %q has no host", remoteEndPoint)
	}
	target := url.URL{Scheme: u.Scheme, Host: u.Host, Path: "/" + strings.Trim(apiPrefix, "/") + "-activity"}
	return target.String(), nil
}
