package engine

import "fmt"

var elementWiseOpNames = [...]string{
	OpSum:     "Sum",
	OpSub:     "Sub",
	OpProd:    "Prod",
	OpDiv:     "Div",
	OpPow:     "Pow",
	OpMin:     "Min",
	OpMax:     "Max",
	OpAnd:     "And",
	OpOr:      "Or",
	OpXor:     "Xor",
	OpEqual:   "Equal",
	OpGreater: "Greater",
	OpLess:    "Less",
}

// String implements fmt.Stringer.
func (op ElementWiseOp) String() string {
	if op < 0 || int(op) >= len(elementWiseOpNames) {
		return fmt.Sprintf("ElementWiseOp(%d)", int(op))
	}
	return elementWiseOpNames[op]
}

var unaryOpNames = [...]string{
	OpExp:   "Exp",
	OpLog:   "Log",
	OpSqrt:  "Sqrt",
	OpRecip: "Recip",
	OpAbs:   "Abs",
	OpNeg:   "Neg",
	OpSin:   "Sin",
	OpCos:   "Cos",
	OpAsinh: "Asinh",
	OpAcosh: "Acosh",
	OpAtanh: "Atanh",
	OpCeil:  "Ceil",
	OpFloor: "Floor",
	OpNot:   "Not",
}

// String implements fmt.Stringer.
func (op UnaryOp) String() string {
	if op < 0 || int(op) >= len(unaryOpNames) {
		return fmt.Sprintf("UnaryOp(%d)", int(op))
	}
	return unaryOpNames[op]
}
