// Package fluxflow provides an embeddable flow orchestration engine.
//
// A flow definition is compiled from a JSON or YAML graph of nodes and
// edges. Context rows travel the graph through automated jobers, manual
// tasks, conditional edges and joins, while the runtime keeps every row
// transition monotonic and recoverable:
//
//   - compiler   – parses and validates flow graphs
//   - driver     – node state machine, joins, retries and exceptions
//   - jober      – dispatches batches to ECHO, HTTP, GENERICABLE, STORE and SCRIPT operators
//   - task       – manual task lifecycle and callbacks
//   - messaging  – queue backed event pools
//
// End-users typically interact with the engine via the Service facade:
//
//	srv, _ := fluxflow.New()
//	rt := srv.Runtime()
//	_ = rt.Start(ctx)
//	def, _ := rt.Deploy(ctx, document)
//	row, _ := rt.StartProcess(ctx, def.StreamID(), map[string]interface{}{"orderId": "o-1"})
//	trace, _ := rt.WaitForTrace(ctx, row.TraceID, time.Minute)
//
// A REST surface is exposed by service/rest and a CLI by cmd/fluxflow.
package fluxflow
