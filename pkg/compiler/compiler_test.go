package compiler_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/braidflow/braid/pkg/compiler"
	"github.com/braidflow/braid/pkg/models"
	"github.com/braidflow/braid/pkg/protocol"
	"github.com/braidflow/braid/pkg/registry"
	"github.com/braidflow/braid/pkg/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRegistry(t *testing.T, nodeTypes ...string) *registry.Registry {
	t.Helper()

	reg := registry.NewRegistry(slog.New(slog.DiscardHandler))

	for _, nodeType := range nodeTypes {
		result := reg.RegisterPlugin(testutil.NewFakeNodePlugin(nodeType))
		require.True(t, result.Valid, "registering %s: %v", nodeType, result.Errors)
	}

	return reg
}

func indexOf(order []string, id string) int {
	for i, candidate := range order {
		if candidate == id {
			return i
		}
	}

	return -1
}

func TestCompile_TopologicalOrder(t *testing.T) {
	reg := testRegistry(t, "start", "search", "read", "reason", "end")

	workflow := testutil.CreateTestWorkflow(
		testutil.WithNodes(
			testutil.CreateTestNode(testutil.WithNodeID("start"), testutil.WithNodeType("start")),
			testutil.CreateTestNode(testutil.WithNodeID("search"), testutil.WithNodeType("search")),
			testutil.CreateTestNode(testutil.WithNodeID("read"), testutil.WithNodeType("read")),
			testutil.CreateTestNode(testutil.WithNodeID("reason"), testutil.WithNodeType("reason")),
			testutil.CreateTestNode(testutil.WithNodeID("end"), testutil.WithNodeType("end")),
		),
		testutil.WithConnections(
			&models.Connection{From: "start", To: "search"},
			&models.Connection{From: "start", To: "read"},
			&models.Connection{From: "search", To: "reason"},
			&models.Connection{From: "read", To: "reason"},
			&models.Connection{From: "reason", To: "end"},
		),
	)

	c := compiler.NewCompiler(reg, slog.New(slog.DiscardHandler))

	executable, err := c.Compile(context.Background(), workflow)
	require.NoError(t, err)
	require.Len(t, executable.NodeOrder, 5)

	for _, conn := range workflow.Connections {
		from := indexOf(executable.NodeOrder, conn.From)
		to := indexOf(executable.NodeOrder, conn.To)
		assert.GreaterOrEqual(t, from, 0)
		assert.GreaterOrEqual(t, to, 0)
		assert.Less(t, from, to, "connection %s -> %s out of order in %v", conn.From, conn.To, executable.NodeOrder)
	}
}

func TestCompile_RejectsCycle(t *testing.T) {
	reg := testRegistry(t, "process")

	workflow := testutil.CreateTestWorkflow(
		testutil.WithNodes(
			testutil.CreateTestNode(testutil.WithNodeID("a")),
			testutil.CreateTestNode(testutil.WithNodeID("b")),
			testutil.CreateTestNode(testutil.WithNodeID("c")),
		),
		testutil.WithConnections(
			&models.Connection{From: "a", To: "b"},
			&models.Connection{From: "b", To: "c"},
			&models.Connection{From: "c", To: "a"},
		),
	)

	c := compiler.NewCompiler(reg, slog.New(slog.DiscardHandler))

	_, err := c.Compile(context.Background(), workflow)
	require.Error(t, err)
	assert.ErrorIs(t, err, compiler.ErrCycle)
}

func TestCompile_MissingPluginIdentifiesNode(t *testing.T) {
	reg := testRegistry(t, "start")

	workflow := testutil.CreateTestWorkflow(
		testutil.WithNodes(
			testutil.CreateTestNode(testutil.WithNodeID("start"), testutil.WithNodeType("start")),
			testutil.CreateTestNode(testutil.WithNodeID("mystery"), testutil.WithNodeType("unregistered-type")),
		),
		testutil.WithConnections(&models.Connection{From: "start", To: "mystery"}),
	)

	c := compiler.NewCompiler(reg, slog.New(slog.DiscardHandler))

	executable, err := c.Compile(context.Background(), workflow)
	require.Error(t, err)
	assert.Nil(t, executable)

	var compileErr *compiler.Error

	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, "mystery", compileErr.NodeID)
	assert.Equal(t, "unregistered-type", compileErr.NodeType)
}

func TestCompile_RejectsUndeclaredConnectionReference(t *testing.T) {
	reg := testRegistry(t, "process")

	workflow := testutil.CreateTestWorkflow(
		testutil.WithNodes(testutil.CreateTestNode(testutil.WithNodeID("only"))),
		testutil.WithConnections(&models.Connection{From: "only", To: "ghost"}),
	)

	c := compiler.NewCompiler(reg, slog.New(slog.DiscardHandler))

	_, err := c.Compile(context.Background(), workflow)
	require.Error(t, err)

	var compileErr *compiler.Error

	require.ErrorAs(t, err, &compileErr)
	assert.Equal(t, "ghost", compileErr.NodeID)
}

func TestCompile_EmptyWorkflow(t *testing.T) {
	reg := testRegistry(t)
	c := compiler.NewCompiler(reg, slog.New(slog.DiscardHandler))

	_, err := c.Compile(context.Background(), &models.Workflow{ID: "empty"})
	require.Error(t, err)
}

func TestPipeline_LinearChain(t *testing.T) {
	reg := registry.NewRegistry(slog.New(slog.DiscardHandler))

	upper := testutil.NewFakeNodePlugin("upper", testutil.WithProcessFunc(
		func(_ context.Context, input any, _ map[string]any, _ *protocol.ExecutionContext) ([]any, error) {
			m := input.(map[string]any)

			return []any{map[string]any{"value": m["value"].(string) + "+upper"}}, nil
		}))
	suffix := testutil.NewFakeNodePlugin("suffix", testutil.WithProcessFunc(
		func(_ context.Context, input any, _ map[string]any, _ *protocol.ExecutionContext) ([]any, error) {
			m := input.(map[string]any)

			return []any{map[string]any{"value": m["value"].(string) + "+suffix"}}, nil
		}))

	require.True(t, reg.RegisterPlugin(upper).Valid)
	require.True(t, reg.RegisterPlugin(suffix).Valid)

	workflow := testutil.CreateTestWorkflow(
		testutil.WithNodes(
			testutil.CreateTestNode(testutil.WithNodeID("first"), testutil.WithNodeType("upper")),
			testutil.CreateTestNode(testutil.WithNodeID("second"), testutil.WithNodeType("suffix")),
		),
		testutil.WithConnections(&models.Connection{From: "first", To: "second"}),
	)

	c := compiler.NewCompiler(reg, slog.New(slog.DiscardHandler))

	executable, err := c.Compile(context.Background(), workflow, compiler.WithDefaultBranchID("main"))
	require.NoError(t, err)

	item := &models.StreamItem{
		ExecutionID: "exec-1",
		Data:        map[string]any{"value": "x"},
	}

	outputs, err := executable.Pipeline(context.Background(), item, compiler.Env{})
	require.NoError(t, err)
	require.Len(t, outputs, 1)

	result := outputs[0].DataMap()
	assert.Equal(t, "x+upper+suffix", result["value"])
	assert.Equal(t, 2, outputs[0].Meta.Step)
	assert.Equal(t, "main", outputs[0].Meta.BranchID)
	assert.Equal(t, []string{"first", "second"}, outputs[0].Meta.ProcessedBy)
}

func TestStage_PreservesIncomingBranchID(t *testing.T) {
	reg := testRegistry(t, "process")

	workflow := testutil.CreateTestWorkflow(
		testutil.WithNodes(testutil.CreateTestNode(testutil.WithNodeID("only"))),
		testutil.WithConnections(),
	)

	c := compiler.NewCompiler(reg, slog.New(slog.DiscardHandler))

	executable, err := c.Compile(context.Background(), workflow, compiler.WithDefaultBranchID("default-branch"))
	require.NoError(t, err)

	stage, ok := executable.Stage("only")
	require.True(t, ok)

	item := &models.StreamItem{
		ExecutionID: "exec-1",
		Data:        map[string]any{"input": "x"},
		Meta:        models.StreamMeta{BranchID: "explore-7"},
	}

	outputs, err := stage.Process(context.Background(), item, compiler.Env{})
	require.NoError(t, err)
	require.Len(t, outputs, 1)
	assert.Equal(t, "explore-7", outputs[0].Meta.BranchID)
}

func TestStage_WrapsPluginError(t *testing.T) {
	reg := registry.NewRegistry(slog.New(slog.DiscardHandler))

	failing := testutil.NewFakeNodePlugin("failing", testutil.WithProcessFunc(
		func(_ context.Context, _ any, _ map[string]any, _ *protocol.ExecutionContext) ([]any, error) {
			return nil, errors.New("upstream unavailable")
		}))
	require.True(t, reg.RegisterPlugin(failing).Valid)

	workflow := testutil.CreateTestWorkflow(
		testutil.WithNodes(testutil.CreateTestNode(testutil.WithNodeID("broken"), testutil.WithNodeType("failing"))),
		testutil.WithConnections(),
	)

	c := compiler.NewCompiler(reg, slog.New(slog.DiscardHandler))

	executable, err := c.Compile(context.Background(), workflow)
	require.NoError(t, err)

	_, err = executable.Pipeline(context.Background(), &models.StreamItem{ExecutionID: "exec-1"}, compiler.Env{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "node 'broken' processing failed")
	assert.Contains(t, err.Error(), "upstream unavailable")
}
