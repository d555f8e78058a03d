package testutil

import (
	"testing"

	"dinq_federation/store"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// SetupTestStore 打开一个内存 sqlite 存储，测试结束自动关闭
func SetupTestStore(t *testing.T) *store.Store {
	t.Helper()
	s, err := store.Open(store.ModeMemory, "", zap.NewNop())
	require.NoError(t, err, "SetupTestStore: Open")
	t.Cleanup(func() { _ = s.Close() })
	return s
}
