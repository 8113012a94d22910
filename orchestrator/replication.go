package orchestrator

import (
	"context"

	"github.com/goliatone/go-fxscript"
)

// ReplicatedTrigger is what a node publishes so peers can replay an
// effect run locally.
type ReplicatedTrigger struct {
	ID       string        `json:"id"`
	Origin   string        `json:"origin"`
	ScriptID string        `json:"script_id"`
	Entry    string        `json:"entry,omitempty"`
	Seed     fxscript.Seed `json:"seed"`
}

// Replicator ships triggers to peers. Delivery is the implementation's
// concern; the manager only needs Publish.
type Replicator interface {
	Publish(ctx context.Context, t ReplicatedTrigger) error
}

// ReplicatorFunc adapts a function to Replicator.
type ReplicatorFunc func(ctx context.Context, t ReplicatedTrigger) error

func (f ReplicatorFunc) Publish(ctx context.Context, t ReplicatedTrigger) error {
	return f(ctx, t)
}
