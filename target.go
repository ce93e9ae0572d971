// Copyright (C) 2025 Michael J. Fromberger. All Rights Reserved.

package chainrpc

import (
	"github.com/gamefleet/chainrpc/dispatch"
	"github.com/gamefleet/chainrpc/registry"
)

var targets = registry.New[dispatch.Target]()

// Targets returns the process-wide registry of call targets. Peers resolve
// the chains they receive in this registry unless WithTargets was used to
// select another one.
func Targets() *registry.Registry[dispatch.Target] { return targets }

// RegisterTarget adds a resolver for classID to the process-wide registry.
// It reports a *fault.DuplicateClassIDError if classID is already
// registered.
//
// For a target with a single instance, use registry.Instance:
//
//	chainrpc.RegisterTarget("Fleet", registry.Instance(fleetType.Bind(f)))
func RegisterTarget(classID string, res registry.Resolver[dispatch.Target]) error {
	return targets.Register(classID, res)
}

// UnregisterTarget removes classID from the process-wide registry, if it is
// present.
func UnregisterTarget(classID string) { targets.Unregister(classID) }
