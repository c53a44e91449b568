//go:build tools
// +build tools

// Package feedback_relay declares tool dependencies for this module.
//
// mockgen is invoked via `go generate`; importing it here keeps it tracked in
// go.mod like any other dependency.
package feedback_relay

import (
	_ "go.uber.org/mock/mockgen"
)
