package toolexecutor

import "context"

type requestInfoKey struct{}

// RequestInfo carries transport details into audit records
type RequestInfo struct {
	// Source names the transport, e.g. "http", "rpc", "mcp", "cli"
	Source string
	// RequestIP is the caller address, when known
	RequestIP string
	// RawRequest is the undecoded request payload
	RawRequest string
}

// ContextWithRequestInfo attaches transport details to ctx.
func ContextWithRequestInfo(ctx context.Context, info *RequestInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if info == nil {
		return ctx
	}
	return context.WithValue(ctx, requestInfoKey{}, info)
}

// RequestInfoFromContext extracts transport details from ctx.
func RequestInfoFromContext(ctx context.Context) *RequestInfo {
	if ctx == nil {
		return nil
	}
	if info, ok := ctx.Value(requestInfoKey{}).(*RequestInfo); ok {
		return info
	}
	return nil
}
