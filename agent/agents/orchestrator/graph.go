package orchestrator

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/compose"

	nodex "github.com/tanpawarit/Chative-Course-Concierge/agent/nodes"
)

// compileTurnGraph builds one routing pass:
// validate -> load -> resolve customer -> route -> apply route -> (dispatch -> apply delta) -> save -> finalize.
// Ending at the router skips the handler branch.
func (o *Orchestrator) compileTurnGraph(
	ctx context.Context,
) (compose.Runnable[nodex.GraphInput, nodex.GraphOutput], error) {
	graph := compose.NewGraph[nodex.GraphInput, nodex.GraphOutput]()

	if err := graph.AddLambdaNode(nodex.NodeValidateRequest,
		compose.InvokableLambda(func(ctx context.Context, in nodex.GraphInput) (*nodex.GraphState, error) {
			return nodex.ValidateRequest(in, o.now)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodex.NodeValidateRequest, err)
	}

	if err := graph.AddLambdaNode(nodex.NodeLoadState,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.LoadState(ctx, in, o.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodex.NodeLoadState, err)
	}

	if err := graph.AddLambdaNode(nodex.NodeResolveCustomer,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ResolveCustomer(ctx, in, o.directory)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodex.NodeResolveCustomer, err)
	}

	if err := graph.AddLambdaNode(nodex.NodeRoute,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.Route(ctx, in, o.registry.Router())
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodex.NodeRoute, err)
	}

	if err := graph.AddLambdaNode(nodex.NodeApplyRoute,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ApplyRoute(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodex.NodeApplyRoute, err)
	}

	if err := graph.AddLambdaNode(nodex.NodeDispatch,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.DispatchSpecialist(ctx, in, o.registry)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodex.NodeDispatch, err)
	}

	if err := graph.AddLambdaNode(nodex.NodeApplyStateUpdates,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ApplyStateUpdates(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodex.NodeApplyStateUpdates, err)
	}

	if err := graph.AddLambdaNode(nodex.NodeSaveState,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (*nodex.GraphState, error) {
			return nodex.ValidateAndSaveState(ctx, in, o.store)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodex.NodeSaveState, err)
	}

	if err := graph.AddLambdaNode(nodex.NodeFinalizeReply,
		compose.InvokableLambda(func(ctx context.Context, in *nodex.GraphState) (nodex.GraphOutput, error) {
			return nodex.FinalizeReply(in)
		}),
	); err != nil {
		return nil, fmt.Errorf("add node %s: %w", nodex.NodeFinalizeReply, err)
	}

	edges := [][2]string{
		{compose.START, nodex.NodeValidateRequest},
		{nodex.NodeValidateRequest, nodex.NodeLoadState},
		{nodex.NodeLoadState, nodex.NodeResolveCustomer},
		{nodex.NodeResolveCustomer, nodex.NodeRoute},
		{nodex.NodeRoute, nodex.NodeApplyRoute},
		{nodex.NodeDispatch, nodex.NodeApplyStateUpdates},
		{nodex.NodeApplyStateUpdates, nodex.NodeSaveState},
		{nodex.NodeSaveState, nodex.NodeFinalizeReply},
		{nodex.NodeFinalizeReply, compose.END},
	}
	for _, edge := range edges {
		if err := graph.AddEdge(edge[0], edge[1]); err != nil {
			return nil, fmt.Errorf("add edge %s->%s: %w", edge[0], edge[1], err)
		}
	}

	afterRoute := compose.NewGraphBranch(
		func(ctx context.Context, in *nodex.GraphState) (string, error) {
			return nodex.NextAfterRoute(in), nil
		},
		map[string]bool{nodex.NodeDispatch: true, nodex.NodeSaveState: true},
	)
	if err := graph.AddBranch(nodex.NodeApplyRoute, afterRoute); err != nil {
		return nil, fmt.Errorf("add branch after %s: %w", nodex.NodeApplyRoute, err)
	}

	runner, err := graph.Compile(ctx, compose.WithGraphName("orchestrator.turn"))
	if err != nil {
		return nil, fmt.Errorf("compile orchestrator graph: %w", err)
	}
	return runner, nil
}
