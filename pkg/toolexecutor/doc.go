// Package toolexecutor discovers and executes catalog tools.
//
// Invariants:
// - Lookup is exact-name only; unknown tools never reach handler resolution.
// - Every ExecuteTool error is a *tool.Error with a client-safe message.
// - Each ExecuteTool call produces exactly one RunRecord.
// - Refresh drops cached tools, built executors and handler caches.
//
// Usage:
//
//	reg := toolexecutor.NewRegistry(st, builder, toolexecutor.Options{
//		CacheTTL:     toolexecutor.DefaultCacheTTL,
//		Invalidators: []toolexecutor.CacheInvalidator{resolver},
//	})
//	out, err := reg.ExecuteTool(ctx, "calculator", map[string]interface{}{
//		"operation": "add", "a": 5, "b": 3,
//	})
package toolexecutor
