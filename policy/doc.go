// Package policy restricts which jober types and fitables the engine may dispatch.
package policy
