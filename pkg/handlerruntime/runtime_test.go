package handlerruntime

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/r3e/taskgraph/pkg/graph"
	"github.com/r3e/taskgraph/pkg/security"
)

func newTestRuntime() *Runtime {
	metrics := NewMetrics(prometheus.NewRegistry())
	return New(nil, metrics)
}

func TestExecute_DeniesMissingPermission(t *testing.T) {
	rt := newTestRuntime()
	node := graph.NewTaskNode("n1", "echo")
	node.RequiredPermissions = []string{"admin"}
	sec := &security.Context{AllowedScopes: []string{"read"}}

	out := rt.Execute(context.Background(), node, sec, func(ctx context.Context, n *graph.TaskNode, s *security.Context) (map[string]any, error) {
		t.Fatal("handler should not run")
		return nil, nil
	})
	assert.ErrorIs(t, out.Err, security.ErrPermissionDenied)
	assert.Equal(t, graph.StatusFailed, out.Status)
}

func TestExecute_SuccessCompletesNode(t *testing.T) {
	rt := newTestRuntime()
	node := graph.NewTaskNode("n1", "echo")
	sec := &security.Context{}

	out := rt.Execute(context.Background(), node, sec, func(ctx context.Context, n *graph.TaskNode, s *security.Context) (map[string]any, error) {
		return map[string]any{"ok": true}, nil
	})

	require.Equal(t, graph.StatusSuccess, out.Status)
	assert.Equal(t, graph.StatusSuccess, node.GetStatus())
}

func TestExecute_FailureUnderMaxRetriesYieldsRetry(t *testing.T) {
	rt := newTestRuntime()
	node := graph.NewTaskNode("n1", "echo")
	node.RetryConfig = graph.RetryConfig{Strategy: graph.RetryFixed, MaxRetries: 2, Initial: time.Millisecond}
	sec := &security.Context{}

	out := rt.Execute(context.Background(), node, sec, func(ctx context.Context, n *graph.TaskNode, s *security.Context) (map[string]any, error) {
		return nil, errors.New("transient")
	})

	assert.Equal(t, graph.StatusRetry, out.Status)
	assert.Equal(t, graph.StatusRetry, node.GetStatus())
}

func TestExecute_FailureOverMaxRetriesYieldsFailed(t *testing.T) {
	rt := newTestRuntime()
	node := graph.NewTaskNode("n1", "echo")
	node.RetryConfig = graph.RetryConfig{Strategy: graph.RetryFixed, MaxRetries: 0, Initial: time.Millisecond}
	sec := &security.Context{}

	out := rt.Execute(context.Background(), node, sec, func(ctx context.Context, n *graph.TaskNode, s *security.Context) (map[string]any, error) {
		return nil, errors.New("fatal")
	})

	assert.Equal(t, graph.StatusFailed, out.Status)
	assert.Equal(t, graph.StatusFailed, node.GetStatus())
}

func TestExecute_CircuitOpensAfterThreshold(t *testing.T) {
	rt := newTestRuntime()
	sec := &security.Context{}
	failingHandler := func(ctx context.Context, n *graph.TaskNode, s *security.Context) (map[string]any, error) {
		return nil, errors.New("boom")
	}

	for i := 0; i < 5; i++ {
		node := graph.NewTaskNode("n", "flaky")
		node.RetryConfig = graph.RetryConfig{Strategy: graph.RetryFixed, MaxRetries: 0, Initial: time.Millisecond}
		rt.Execute(context.Background(), node, sec, failingHandler)
	}

	node := graph.NewTaskNode("n", "flaky")
	out := rt.Execute(context.Background(), node, sec, failingHandler)
	assert.ErrorIs(t, out.Err, ErrCircuitOpen)
}

func TestExecute_CacheHitSkipsHandler(t *testing.T) {
	rt := newTestRuntime()
	sec := &security.Context{}
	node := graph.NewTaskNode("n1", "echo")
	node.InputData = map[string]any{"x": 1}

	calls := 0
	handler := func(ctx context.Context, n *graph.TaskNode, s *security.Context) (map[string]any, error) {
		calls++
		return map[string]any{"v": calls}, nil
	}

	rt.Execute(context.Background(), node, sec, handler)

	node2 := graph.NewTaskNode("n1", "echo")
	node2.InputData = map[string]any{"x": 1}
	out := rt.Execute(context.Background(), node2, sec, handler)

	assert.Equal(t, graph.StatusSuccess, out.Status)
	assert.Equal(t, 1, calls)
}

func TestRetryDelay_FixedIsConstant(t *testing.T) {
	cfg := graph.RetryConfig{Strategy: graph.RetryFixed, Initial: time.Second}
	assert.Equal(t, time.Second, RetryDelay(cfg, 0))
	assert.Equal(t, time.Second, RetryDelay(cfg, 5))
}

func TestRetryDelay_LinearGrowsByAttempt(t *testing.T) {
	cfg := graph.RetryConfig{Strategy: graph.RetryLinear, Initial: time.Second}
	assert.Equal(t, time.Second, RetryDelay(cfg, 0))
	assert.Equal(t, 3*time.Second, RetryDelay(cfg, 2))
}

func TestRetryDelay_ExponentialRespectsMax(t *testing.T) {
	cfg := graph.RetryConfig{Strategy: graph.RetryExponential, Initial: time.Second, Multiplier: 2, Max: 5 * time.Second, Jitter: false}
	assert.Equal(t, time.Second, RetryDelay(cfg, 0))
	assert.Equal(t, 2*time.Second, RetryDelay(cfg, 1))
	assert.Equal(t, 5*time.Second, RetryDelay(cfg, 10))
}

func TestRetryDelay_FibonacciMatchesSequence(t *testing.T) {
	cfg := graph.RetryConfig{Strategy: graph.RetryFibonacci, Initial: time.Second, Max: time.Hour}
	assert.Equal(t, time.Second, RetryDelay(cfg, 0))
	assert.Equal(t, time.Second, RetryDelay(cfg, 1))
	assert.Equal(t, 2*time.Second, RetryDelay(cfg, 2))
	assert.Equal(t, 3*time.Second, RetryDelay(cfg, 3))
	assert.Equal(t, 5*time.Second, RetryDelay(cfg, 4))
}

func TestRetryDelay_AdaptiveIsMonotonicAndBounded(t *testing.T) {
	cfg := graph.RetryConfig{Strategy: graph.RetryAdaptive, Initial: time.Second, Max: 3 * time.Second}
	prev := time.Duration(0)
	for k := 0; k < 20; k++ {
		d := RetryDelay(cfg, k)
		assert.GreaterOrEqual(t, d, prev)
		assert.LessOrEqual(t, d, cfg.Max)
		prev = d
	}
}
