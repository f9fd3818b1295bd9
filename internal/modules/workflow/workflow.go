// Package workflow defines the pipeline flows: the ordered, named stage
// sequences the driver executes. A workflow component is checkpointed like
// any other, but its collaborator references are rewired through Bind after
// every construction or restore.
package workflow

import (
	"context"
	"errors"

	"github.com/vk/waveflow/internal/registry"
)

// Register adds the workflow variants to the catalog.
func Register(cat *registry.Catalog) {
	cat.Add(registry.Workflow, "forward", func() registry.Component { return &Forward{} })
	cat.Add(registry.Workflow, "inversion", func() registry.Component { return &Inversion{} })
}

// collaborators holds the live references a flow's stages call into.
// Never serialized; Bind rebuilds it from the registry.
type collaborators struct {
	sys  registry.SystemComponent
	sol  registry.SolverComponent
	prep registry.PreprocessComponent
	opt  registry.OptimizeComponent
	post registry.PostprocessComponent
	ckpt func(context.Context) error
}

var errUnbound = errors.New("workflow is not bound to a registry")

func (c *collaborators) bound() bool { return c.sys != nil }

func bind(reg *registry.Registry, ckpt func(context.Context) error, full bool) (collaborators, error) {
	var co collaborators
	var err error
	if co.sys, err = reg.System(); err != nil {
		return co, err
	}
	if co.sol, err = reg.Solver(); err != nil {
		return co, err
	}
	if co.prep, err = reg.Preprocess(); err != nil {
		return co, err
	}
	if full {
		if co.opt, err = reg.Optimize(); err != nil {
			return co, err
		}
		if co.post, err = reg.Postprocess(); err != nil {
			return co, err
		}
	}
	co.ckpt = ckpt
	return co, nil
}
