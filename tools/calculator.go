package tools

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/petasbytes/toolchat/internal/safety"
)

type CalculatorInput struct {
	Expression string `json:"expression" validate:"required" jsonschema_description:"Arithmetic expression, e.g. sqrt(16) + 2^3 * pi."`
}

var CalculatorDefinition = ToolDefinition{
	Name: "calculator",
	Description: "Evaluate an arithmetic expression. Supports + - * / % ^ (power), parentheses, " +
		"sqrt, sin, cos, tan, log, log10, exp, abs, pow, floor, ceil, round, and the constants pi and e.",
	InputSchema: GenerateSchema[CalculatorInput](),
	Function:    Calculator,
}

type calcResult struct {
	Expression string  `json:"expression"`
	Result     float64 `json:"result"`
}

// Calculator evaluates in.Expression without executing any code.
func Calculator(_ context.Context, _ Env, p Params) (any, error) {
	in, err := Decode[CalculatorInput](p)
	if err != nil {
		return nil, err
	}
	v, err := Evaluate(in.Expression)
	if err != nil {
		return nil, safety.ToolError{Code: safety.CodeInvalidParam, Message: err.Error()}
	}
	return calcResult{Expression: in.Expression, Result: v}, nil
}

// calcEnv is everything an expression may name.
var calcEnv = map[string]any{
	"pi": math.Pi, "PI": math.Pi,
	"e": math.E, "E": math.E,

	"sqrt":  math.Sqrt,
	"sin":   math.Sin,
	"cos":   math.Cos,
	"tan":   math.Tan,
	"log":   math.Log,
	"log10": math.Log10,
	"exp":   math.Exp,
	"abs":   math.Abs,
	"floor": math.Floor,
	"ceil":  math.Ceil,
	"round": math.Round,
	"pow":   math.Pow,
}

const maxExpressionLen = 1024

var errDivisionByZero = errors.New("division by zero")

// Evaluate computes an arithmetic expression with expr. Only the names in
// calcEnv resolve and built-ins are disabled. Every number is a float64,
// ^ and ** are powers, and -2^2 is -4.
//
// Division by zero and results that are NaN or infinite are errors.
func Evaluate(input string) (float64, error) {
	if strings.TrimSpace(input) == "" {
		return 0, fmt.Errorf("empty expression")
	}
	if len(input) > maxExpressionLen {
		return 0, fmt.Errorf("expression longer than %d bytes", maxExpressionLen)
	}
	program, err := expr.Compile(input,
		expr.Env(calcEnv),
		expr.DisableAllBuiltins(),
		expr.Function("div", checkedDivision(func(a, b float64) float64 { return a / b }), new(func(float64, float64) float64)),
		expr.Function("mod", checkedDivision(math.Mod), new(func(float64, float64) float64)),
		expr.Patch(floatArithmetic{}),
	)
	if err != nil {
		return 0, fmt.Errorf("invalid expression: %w", err)
	}
	out, err := expr.Run(program, calcEnv)
	if err != nil {
		if errors.Is(err, errDivisionByZero) || strings.Contains(err.Error(), errDivisionByZero.Error()) {
			return 0, errDivisionByZero
		}
		return 0, fmt.Errorf("evaluate: %w", err)
	}
	v, ok := out.(float64)
	if !ok {
		return 0, fmt.Errorf("invalid expression: result is %T, not a number", out)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("result is not a finite number")
	}
	return v, nil
}

func checkedDivision(op func(a, b float64) float64) func(params ...any) (any, error) {
	return func(params ...any) (any, error) {
		a, b := params[0].(float64), params[1].(float64)
		if b == 0 {
			return nil, errDivisionByZero
		}
		return op(a, b), nil
	}
}

// floatArithmetic turns integer literals into floats, and / and % into the
// checked div and mod calls.
type floatArithmetic struct{}

func (floatArithmetic) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IntegerNode:
		*node = &ast.FloatNode{Value: float64(n.Value)}
	case *ast.BinaryNode:
		name := map[string]string{"/": "div", "%": "mod"}[n.Operator]
		if name != "" {
			*node = &ast.CallNode{
				Callee:    &ast.IdentifierNode{Value: name},
				Arguments: []ast.Node{n.Left, n.Right},
			}
		}
	}
}
