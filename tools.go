//go:build tools
// +build tools

// Package tools tracks code generators used via go generate so go.mod keeps
// their versions pinned.
package tools

import (
	_ "go.uber.org/mock/mockgen"
)
