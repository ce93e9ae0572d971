// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

// Program chainrpc-vet checks that the exposed method names of annotated
// chainrpc target types are unique. Run it over a module in the build:
//
//	go run github.com/gamefleet/chainrpc/cmd/chainrpc-vet ./...
//
// It exits with a non-zero status if any type has duplicate exposed names.
package main

import (
	"github.com/gamefleet/chainrpc/validate/analyzer"
	"golang.org/x/tools/go/analysis/singlechecker"
)

func main() { singlechecker.Main(analyzer.Analyzer) }
