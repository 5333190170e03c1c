package alerts

import (
	"context"
	"fmt"

	"github.com/google/cel-go/cel"

	"storeflow/internal/core/apperror"
	"storeflow/internal/core/id"
	"storeflow/internal/core/types"
)

// DefaultMinimum is the low-stock threshold used when nothing else is configured.
var DefaultMinimum = types.NewQuantity(10)

// Position is the stock of one item at one location, summed over lots.
type Position struct {
	LocationID id.ID
	ItemID     id.ID
	OnHand     types.Quantity
	Reserved   types.Quantity
}

// Available is on-hand minus reserved.
func (p Position) Available() types.Quantity { return p.OnHand - p.Reserved }

// StockPolicy decides the minimum quantity a location should hold of an item.
type StockPolicy interface {
	Minimum(ctx context.Context, p Position) (types.Quantity, error)
}

// FixedPolicy applies the same minimum everywhere.
type FixedPolicy struct {
	Min types.Quantity
}

// Minimum implements StockPolicy.
func (f FixedPolicy) Minimum(context.Context, Position) (types.Quantity, error) { return f.Min, nil }

// CELPolicy evaluates a CEL expression per position. The expression sees
// location and item (string ids), on_hand and reserved (double) and must
// return a number.
//
//	item == "0198..." ? 25.0 : (on_hand > 100.0 ? 20.0 : 10.0)
type CELPolicy struct {
	expr string
	prg  cel.Program
}

// NewCELPolicy compiles expr.
func NewCELPolicy(expr string) (*CELPolicy, error) {
	env, err := cel.NewEnv(
		cel.Variable("location", cel.StringType),
		cel.Variable("item", cel.StringType),
		cel.Variable("on_hand", cel.DoubleType),
		cel.Variable("reserved", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	ast, iss := env.Compile(expr)
	if iss != nil && iss.Err() != nil {
		return nil, apperror.NewValidation("invalid stock policy expression").
			WithDetail("expression", expr).
			WithCause(iss.Err())
	}
	if t := ast.OutputType(); !t.IsExactType(cel.DoubleType) && !t.IsExactType(cel.IntType) && !t.IsExactType(cel.DynType) {
		return nil, apperror.NewValidation("stock policy must return a number").
			WithDetail("expression", expr).
			WithDetail("type", t.String())
	}
	prg, err := env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("cel program: %w", err)
	}
	return &CELPolicy{expr: expr, prg: prg}, nil
}

// Minimum implements StockPolicy.
func (c *CELPolicy) Minimum(ctx context.Context, p Position) (types.Quantity, error) {
	out, _, err := c.prg.ContextEval(ctx, map[string]any{
		"location": p.LocationID.String(),
		"item":     p.ItemID.String(),
		"on_hand":  p.OnHand.Float64(),
		"reserved": p.Reserved.Float64(),
	})
	if err != nil {
		return 0, fmt.Errorf("evaluate stock policy %q: %w", c.expr, err)
	}
	switch v := out.Value().(type) {
	case float64:
		return types.NewQuantityFromFloat64(v), nil
	case int64:
		return types.NewQuantity(v), nil
	default:
		return 0, fmt.Errorf("stock policy %q returned %T", c.expr, v)
	}
}

// NewPolicy returns a CEL policy when expr is set, otherwise a fixed minimum.
func NewPolicy(expr string, fixed types.Quantity) (StockPolicy, error) {
	if expr == "" {
		return FixedPolicy{Min: fixed}, nil
	}
	return NewCELPolicy(expr)
}
