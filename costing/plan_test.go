package costing

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/costing-engine/scheme"
)

type fakeStage struct {
	name     string
	requires []Output
	provides []Output
	run      func(ctx context.Context, r *Run) error
}

func (f fakeStage) Name() string       { return f.name }
func (f fakeStage) Requires() []Output { return f.requires }
func (f fakeStage) Provides() []Output { return f.provides }
func (f fakeStage) Run(ctx context.Context, r *Run) error {
	if f.run == nil {
		return nil
	}
	return f.run(ctx, r)
}

func names(stages []Stage) []string {
	out := make([]string, len(stages))
	for i, s := range stages {
		out[i] = s.Name()
	}
	return out
}

func TestNewPlan_OrdersByDependency(t *testing.T) {
	plan, err := NewPlan(
		fakeStage{name: "c", requires: []Output{"b"}, provides: []Output{"c"}},
		fakeStage{name: "a", provides: []Output{"a"}},
		fakeStage{name: "b", requires: []Output{"a"}, provides: []Output{"b"}},
		fakeStage{name: "d", requires: []Output{"a"}, provides: []Output{"d"}},
	)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c", "d"}, names(plan.Stages()))
}

func TestNewPlan_DefaultStagesKeepDeclarationOrder(t *testing.T) {
	plan, err := NewPlan(DefaultStages()...)
	require.NoError(t, err)
	assert.Equal(t, names(DefaultStages()), names(plan.Stages()))
}

func TestNewPlan_RejectsUnsatisfiableGraphs(t *testing.T) {
	tests := []struct {
		name   string
		stages []Stage
	}{
		{
			name:   "missing provider",
			stages: []Stage{fakeStage{name: "a", requires: []Output{"x"}, provides: []Output{"a"}}},
		},
		{
			name: "duplicate provider",
			stages: []Stage{
				fakeStage{name: "a", provides: []Output{"x"}},
				fakeStage{name: "b", provides: []Output{"x"}},
			},
		},
		{
			name:   "self dependency",
			stages: []Stage{fakeStage{name: "a", requires: []Output{"a"}, provides: []Output{"a"}}},
		},
		{
			name: "cycle",
			stages: []Stage{
				fakeStage{name: "a", requires: []Output{"b"}, provides: []Output{"a"}},
				fakeStage{name: "b", requires: []Output{"a"}, provides: []Output{"b"}},
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewPlan(tt.stages...)
			assert.ErrorIs(t, err, ErrStageDependency)
		})
	}
}

func testRun() *Run {
	return &Run{Scheme: &scheme.Scheme{ID: "S"}, Workers: 2, Logger: discardLogger()}
}

func TestExecute_StageFailureIsInternal(t *testing.T) {
	boom := errors.New("boom")
	plan, err := NewPlan(fakeStage{name: "a", provides: []Output{"a"}, run: func(context.Context, *Run) error { return boom }})
	require.NoError(t, err)

	err = plan.execute(context.Background(), testRun(), nil)

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, "a", se.Stage)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, scheme.ErrInternal)
}

func TestExecute_PanicBecomesStageError(t *testing.T) {
	plan, err := NewPlan(fakeStage{name: "a", provides: []Output{"a"}, run: func(context.Context, *Run) error { panic("bad column") }})
	require.NoError(t, err)

	err = plan.execute(context.Background(), testRun(), nil)

	assert.ErrorIs(t, err, scheme.ErrInternal)
	assert.Contains(t, err.Error(), "bad column")
}

func TestExecute_StopsOnCancelledContext(t *testing.T) {
	ran := false
	plan, err := NewPlan(fakeStage{name: "a", provides: []Output{"a"}, run: func(context.Context, *Run) error { ran = true; return nil }})
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err = plan.execute(ctx, testRun(), nil)

	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, ran)
}

func TestExecute_ObservesEveryStage(t *testing.T) {
	plan, err := NewPlan(
		fakeStage{name: "a", provides: []Output{"a"}},
		fakeStage{name: "b", requires: []Output{"a"}, provides: []Output{"b"}},
	)
	require.NoError(t, err)

	var seen []string
	err = plan.execute(context.Background(), testRun(), func(stage string, _ time.Duration) {
		seen = append(seen, stage)
	})

	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestEachSubScheme_RecoversPanicsPerSubScheme(t *testing.T) {
	r := testRun()
	r.Scheme.SubSchemes = []scheme.SubScheme{{Index: 0}, {Index: 1}}
	r.Table = &Table{Blocks: []*Block{newBlock(0, 0), newBlock(1, 0)}}

	err := r.eachSubScheme(context.Background(), "x", func(sub *scheme.SubScheme, _ *Block) error {
		if sub.Index == 1 {
			panic("broken")
		}
		return nil
	})

	var se *StageError
	require.ErrorAs(t, err, &se)
	assert.Equal(t, 1, se.SubIndex)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestMeetsTarget(t *testing.T) {
	assert.True(t, meetsTarget(1))
	assert.True(t, meetsTarget(114/(100*1.14)))
	assert.True(t, meetsTarget(1.5))
	assert.False(t, meetsTarget(0.999))
	assert.False(t, meetsTarget(0))
}
