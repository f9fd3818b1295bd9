package paramfile

import (
	"fmt"
	"strings"

	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/hashicorp/hcl/v2/hclwrite"
	"github.com/zclconf/go-cty/cty"

	"github.com/vk/waveflow/internal/manifest"
)

// Render produces the parameter document template for the merged requirement
// entries: every key with its documentation, type, requiredness, and default.
// Values already present in existing are carried over, so re-running
// `configure` after changing a module choice keeps the operator's settings.
// Output is deterministic: entry order is the caller's merge order.
func Render(entries []manifest.Entry, existing *Values) []byte {
	file := hclwrite.NewEmptyFile()
	body := file.Body()

	comment(body, "Waveflow parameter file")
	comment(body, "Generated by `waveflow configure`. Required keys are marked; fill them")
	comment(body, "before `waveflow submit`. Unset keys stay null.")

	var paths []manifest.Entry
	owner := ""
	for _, e := range entries {
		if e.Kind == manifest.Path {
			paths = append(paths, e)
			continue
		}
		if e.Owner != owner {
			owner = e.Owner
			body.AppendNewline()
			comment(body, fmt.Sprintf("--- %s ---", owner))
		}
		body.AppendNewline()
		comment(body, describe(e))
		body.SetAttributeValue(strings.ToLower(e.Key), valueFor(e, existing, false))
	}

	body.AppendNewline()
	comment(body, "--- paths ---")
	block := body.AppendNewBlock("paths", nil)
	owner = ""
	for _, e := range paths {
		if e.Owner != owner {
			owner = e.Owner
			comment(block.Body(), fmt.Sprintf("(%s)", owner))
		}
		comment(block.Body(), describe(e))
		block.Body().SetAttributeValue(strings.ToLower(e.Key), valueFor(e, existing, true))
	}

	return file.Bytes()
}

func describe(e manifest.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s (%s", strings.ToLower(e.Key), e.Type.FriendlyName())
	if e.Required {
		b.WriteString(", required")
	}
	b.WriteString(")")
	if e.Doc != "" {
		b.WriteString(": ")
		b.WriteString(e.Doc)
	}
	return b.String()
}

func valueFor(e manifest.Entry, existing *Values, isPath bool) cty.Value {
	if existing != nil {
		if isPath {
			if val, ok := existing.Path(e.Key); ok {
				return val
			}
		} else if val, ok := existing.Param(e.Key); ok {
			return val
		}
	}
	if e.HasDefault() {
		return e.Default
	}
	return cty.NullVal(e.Type)
}

func comment(body *hclwrite.Body, line string) {
	body.AppendUnstructuredTokens(hclwrite.Tokens{
		{
			Type:  hclsyntax.TokenComment,
			Bytes: []byte("# " + line + "\n"),
		},
	})
}
