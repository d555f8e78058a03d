package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestPipeline_RollbackInReverse(t *testing.T) {
	var trace []string
	boom := errors.New("boom")

	err := newPipeline("test-op", zap.NewNop()).
		StepWithUndo("a", func(context.Context) error { trace = append(trace, "do-a"); return nil },
			func(context.Context) error { trace = append(trace, "undo-a"); return nil }).
		Step("b", func(context.Context) error { trace = append(trace, "do-b"); return nil }).
		StepWithUndo("c", func(context.Context) error { trace = append(trace, "do-c"); return nil },
			func(context.Context) error { trace = append(trace, "undo-c"); return errors.New("ignored") }).
		StepWithUndo("d", func(context.Context) error { return boom },
			func(context.Context) error { trace = append(trace, "undo-d"); return nil }).
		Step("e", func(context.Context) error { trace = append(trace, "do-e"); return nil }).
		Run(context.Background())

	require.Error(t, err)
	var opErr *OpError
	require.ErrorAs(t, err, &opErr)
	assert.Equal(t, "test-op", opErr.Op)
	assert.Equal(t, "d", opErr.Step)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"do-a", "do-b", "do-c", "undo-c", "undo-a"}, trace)
}

func TestPipeline_Success(t *testing.T) {
	n := 0
	err := newPipeline("ok", zap.NewNop()).
		Step("one", func(context.Context) error { n++; return nil }).
		StepWithUndo("two", func(context.Context) error { n++; return nil }, func(context.Context) error { n = -100; return nil }).
		Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}
