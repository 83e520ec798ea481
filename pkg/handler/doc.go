// Package handler resolves handler references and builds executors.
//
// Invariants:
// - Resolve is case-exact and never constructs anything.
// - In-process handlers are backed only by factories registered at start-up.
// - Builder is the single place that branches on handler kind.
//
// Usage:
//
//	factories, _ := handler.DefaultFactories()
//	resolver := handler.NewResolver(store, factories, handler.DefaultCacheTTL)
//	builder := handler.NewBuilder(resolver, runner)
//	exec, err := builder.Build(ctx, toolRecord)
package handler
