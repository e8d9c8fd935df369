// Package trace records generation-time spans for l4idl.
//
// Spans nest from the driver down to single emitter steps:
//
//	ScopeDriver     one per command
//	ScopeInterface  one per interface generated
//	ScopeOperation  one per operation and stub
//	ScopeStep       marshal passes and communication steps
//
// The tracer travels in the context:
//
//	ctx = trace.WithTracer(ctx, tracer)
//	ctx, span := trace.Start(ctx, trace.ScopeOperation, "op:read")
//	defer span.End("")
//
// A disabled tracer costs one interface call per span.
package trace
