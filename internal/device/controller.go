// Package device abstracts the controlled Android device. The agent
// loop only sees the Controller interface; the ADB implementation
// shells out to the adb binary, and tests use a scripted controller.
package device

import (
	"context"

	"screenpilot/internal/model"
)

// Outcome is the result of dispatching one action to the device.
type Outcome struct {
	Success bool
	Detail  string
}

// Controller is the device-facing surface the agent depends on.
type Controller interface {
	// Observe captures the current foreground app, visible screen text
	// and battery state.
	Observe(ctx context.Context) (model.Observation, error)

	// Dispatch performs one approved action on the device.
	Dispatch(ctx context.Context, action model.Action) (Outcome, error)

	// Battery reports the current charge level and charging state.
	Battery(ctx context.Context) (int, bool, error)
}
