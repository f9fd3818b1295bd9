// Package modules wires the compiled-in component variants into a catalog.
// Each slot package registers its variants; the lifecycle controller builds
// concrete instances from the operator's slot-choice parameters.
package modules

import (
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/waveflow/internal/manifest"
	"github.com/vk/waveflow/internal/modules/optimize"
	"github.com/vk/waveflow/internal/modules/postprocess"
	"github.com/vk/waveflow/internal/modules/preprocess"
	"github.com/vk/waveflow/internal/modules/solver"
	"github.com/vk/waveflow/internal/modules/system"
	"github.com/vk/waveflow/internal/modules/workflow"
	"github.com/vk/waveflow/internal/registry"
)

// Default returns the catalog of every core variant.
func Default() *registry.Catalog {
	cat := registry.NewCatalog()
	system.Register(cat)
	preprocess.Register(cat)
	solver.Register(cat)
	optimize.Register(cat)
	postprocess.Register(cat)
	workflow.Register(cat)
	return cat
}

// ChoiceManifest declares the slot-choice parameters plus the run bounds the
// stage driver honors. It is merged ahead of every component manifest so the
// template leads with module selection.
func ChoiceManifest() *manifest.Set {
	return manifest.New("waveflow").
		Require("WORKFLOW", cty.String, "workflow variant: forward or inversion").
		Require("SOLVER", cty.String, "solver variant: specfem2d or specfem3d").
		Default("SYSTEM", cty.StringVal("local"), "system variant executing the pipeline").
		Default("PREPROCESS", cty.StringVal("default"), "preprocess variant: default or noise").
		Default("OPTIMIZE", cty.StringVal("gradient"), "optimize variant: gradient or lbfgs").
		Default("POSTPROCESS", cty.StringVal("default"), "postprocess variant").
		Optional("RESUME_FROM", cty.String, "stage name to (re)start the flow from").
		Optional("STOP_AFTER", cty.String, "stage name to halt cleanly after")
}
