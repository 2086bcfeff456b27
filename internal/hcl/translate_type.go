// This file parses the `type` expression of a transform input (e.g. `number`,
// `list(string)`) into a cty.Type.

package hcl

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
)

var primitiveTypes = map[string]cty.Type{
	"string": cty.String,
	"number": cty.Number,
	"bool":   cty.Bool,
	"any":    cty.DynamicPseudoType,
}

var collectionTypes = map[string]func(cty.Type) cty.Type{
	"list": cty.List,
	"map":  cty.Map,
	"set":  cty.Set,
}

// typeExprToCtyType converts an HCL type expression into its cty.Type.
// A missing expression means `any`.
func typeExprToCtyType(expr hcl.Expression) (cty.Type, error) {
	if expr == nil {
		return cty.DynamicPseudoType, nil
	}

	switch v := expr.(type) {
	case *hclsyntax.FunctionCallExpr:
		build, ok := collectionTypes[v.Name]
		if !ok {
			return cty.DynamicPseudoType, fmt.Errorf("unknown type constructor %q", v.Name)
		}
		if len(v.Args) != 1 {
			return cty.DynamicPseudoType, fmt.Errorf("%s() takes exactly one element type, got %d", v.Name, len(v.Args))
		}
		elem, err := typeExprToCtyType(v.Args[0])
		if err != nil {
			return cty.DynamicPseudoType, err
		}
		if elem == cty.DynamicPseudoType {
			return cty.DynamicPseudoType, fmt.Errorf("%s() cannot hold type 'any'", v.Name)
		}
		return build(elem), nil

	case *hclsyntax.ScopeTraversalExpr:
		if len(v.Traversal) != 1 {
			return cty.DynamicPseudoType, fmt.Errorf("invalid type keyword")
		}
		ty, ok := primitiveTypes[v.Traversal.RootName()]
		if !ok {
			return cty.DynamicPseudoType, fmt.Errorf("unknown primitive type %q", v.Traversal.RootName())
		}
		return ty, nil
	}
	return cty.DynamicPseudoType, fmt.Errorf("unsupported expression for type definition: %T", expr)
}
