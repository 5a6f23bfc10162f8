package main

import (
	"testing"

	"github.com/cutty/cutty/core/infra/buildinfo"
)

func TestPackageImports(t *testing.T) {
	if buildinfo.Version == "" {
		t.Log("buildinfo not set (expected in dev)")
	}
}
