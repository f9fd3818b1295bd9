package paramfile

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclparse"
	"github.com/hashicorp/hcl/v2/hclsyntax"
)

// Load parses a parameter document. The format is chosen by extension:
// .hcl is the primary format, .yaml/.yml the legacy one. Both produce the
// same flat namespace, which the legacy tests pin down.
func Load(path string) (*Values, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("parameter document %s: %w", path, err)
	}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		return loadYAML(path)
	default:
		return loadHCL(path)
	}
}

// loadHCL reads the primary document format: top-level attributes for
// parameters plus a single `paths { ... }` block. Values must be literals;
// there is no expression evaluation context in a parameter document.
func loadHCL(path string) (*Values, error) {
	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(path)
	if diags.HasErrors() {
		return nil, fmt.Errorf("parse %s: %w", path, diags)
	}
	body, ok := file.Body.(*hclsyntax.Body)
	if !ok {
		return nil, fmt.Errorf("parse %s: unexpected body type %T", path, file.Body)
	}

	vals := NewValues()
	var errDiags hcl.Diagnostics
	for _, attr := range body.Attributes {
		val, diags := attr.Expr.Value(nil)
		if diags.HasErrors() {
			errDiags = append(errDiags, diags...)
			continue
		}
		vals.SetParam(attr.Name, val)
	}
	for _, block := range body.Blocks {
		if block.Type != "paths" {
			return nil, fmt.Errorf("parse %s: unsupported block %q (only \"paths\" is allowed)", path, block.Type)
		}
		for _, attr := range block.Body.Attributes {
			val, diags := attr.Expr.Value(nil)
			if diags.HasErrors() {
				errDiags = append(errDiags, diags...)
				continue
			}
			vals.SetPath(attr.Name, val)
		}
	}
	if errDiags.HasErrors() {
		return nil, fmt.Errorf("parse %s: %w", path, errDiags)
	}
	return vals, nil
}
