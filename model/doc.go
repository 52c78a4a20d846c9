// Package model groups the engine data model.
//
// Compiled flow graphs live in the `definition` sub-package, in-flight
// context rows and engine events in `flow`, and the service invocation
// contracts shared by jobers, callbacks and exception handlers in `types`.
package model
