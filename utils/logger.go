package utils

import "go.uber.org/zap"

// NewLogger 创建 zap 日志器（debug 模式使用开发配置）
func NewLogger(debug bool) (*zap.Logger, error) {
	if debug {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
