// Package types defines the contract of locally registered invocation targets.
package types

// Service groups invocation targets under one service id
type Service interface {
	Name() string
	Methods() Signatures
	Method(name string) (Executable, error)
}
