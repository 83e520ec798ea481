package gateway

import (
	"context"

	"github.com/harun/toolhub/internal/tracing"
	"github.com/harun/toolhub/pkg/toolexecutor"
)

// auditSource is the run-log source for gateway calls
const auditSource = "gateway"

// caller identifies who sent a request. clientID is empty for /rpc posts.
type caller struct {
	clientID string
	ip       string
}

type callerKey struct{}

func callerFrom(ctx context.Context) caller {
	if ctx == nil {
		return caller{}
	}
	c, _ := ctx.Value(callerKey{}).(caller)
	return c
}

// callContext tags ctx for the tool registry: audit request info, the
// trace source and request ID, and the caller for per-client counters.
func callContext(ctx context.Context, req *RPCRequest, c caller, raw []byte) context.Context {
	ctx = tracing.WithSource(ctx, auditSource)
	if tracing.GetRequestID(ctx) == "" {
		ctx = tracing.WithRequestID(ctx, req.ID)
	}
	ctx = context.WithValue(ctx, callerKey{}, c)
	return toolexecutor.ContextWithRequestInfo(ctx, &toolexecutor.RequestInfo{
		Source:     auditSource,
		RequestIP:  c.ip,
		RawRequest: string(raw),
	})
}
