package service

import (
	"context"

	"go.uber.org/zap"
)

type pipelineStep struct {
	name string
	do   func(ctx context.Context) error
	undo func(ctx context.Context) error
}

// pipeline 顺序执行的步骤链：任一步失败立即停止，并逆序执行已完成步骤的补偿
type pipeline struct {
	op    string
	log   *zap.Logger
	steps []pipelineStep
}

func newPipeline(op string, log *zap.Logger) *pipeline {
	return &pipeline{op: op, log: log}
}

// Step 追加一个无需补偿的步骤
func (p *pipeline) Step(name string, do func(ctx context.Context) error) *pipeline {
	p.steps = append(p.steps, pipelineStep{name: name, do: do})
	return p
}

// StepWithUndo 追加一个创建了状态的步骤，后续失败时调用 undo
func (p *pipeline) StepWithUndo(name string, do, undo func(ctx context.Context) error) *pipeline {
	p.steps = append(p.steps, pipelineStep{name: name, do: do, undo: undo})
	return p
}

// Run 执行步骤链，失败时返回 *OpError
func (p *pipeline) Run(ctx context.Context) error {
	for i, st := range p.steps {
		if err := st.do(ctx); err != nil {
			p.rollback(i)
			return &OpError{Op: p.op, Step: st.name, Err: err}
		}
	}
	return nil
}

func (p *pipeline) rollback(failed int) {
	// 补偿不受原请求取消影响
	ctx := context.Background()
	for i := failed - 1; i >= 0; i-- {
		st := p.steps[i]
		if st.undo == nil {
			continue
		}
		if err := st.undo(ctx); err != nil {
			p.log.Error("rollback step failed",
				zap.String("op", p.op),
				zap.String("step", st.name),
				zap.Error(err),
			)
		}
	}
}
