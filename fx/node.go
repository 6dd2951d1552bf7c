package fx

import (
	"fmt"
	"maps"
	"slices"
	"strings"

	"github.com/gomlx/go-xla/pkg/types/dtypes"
)

// OpKey identifies an operator together with its overload: the unit of
// converter registration and lookup. Overloads with different operand kinds
// ("Tensor" vs "Scalar") are distinct conversion targets.
type OpKey struct {
	Op       string // e.g. "aten.bitwise_and"
	Overload string // e.g. "Tensor", "Scalar", "Scalar_Tensor" or "default".
}

// Key builds an OpKey. An empty overload means "default".
func Key(op, overload string) OpKey {
	if overload == "" {
		overload = "default"
	}
	return OpKey{Op: op, Overload: overload}
}

// String implements fmt.Stringer, rendering e.g. "aten.chunk.default".
func (k OpKey) String() string {
	return fmt.Sprintf("%s.%s", k.Op, k.Overload)
}

// Input is an operand of a Node: either a *TensorRef naming a produced value
// or a *Scalar literal.
type Input interface {
	isInput()
	String() string
}

// TensorRef references a graph value (input, constant or node output) by name.
type TensorRef struct {
	Name string
}

// Ref returns a tensor operand referencing the named value.
func Ref(name string) *TensorRef { return &TensorRef{Name: name} }

func (r *TensorRef) isInput() {}

func (r *TensorRef) String() string { return "%" + r.Name }

// Scalar is a raw scalar literal operand.
type Scalar struct {
	DType dtypes.DType

	// Exactly one of the following is meaningful, per DType kind.
	BoolValue  bool
	IntValue   int64
	FloatValue float64
}

// Bool returns a boolean scalar operand.
func Bool(value bool) *Scalar {
	return &Scalar{DType: dtypes.Bool, BoolValue: value}
}

// Int returns an integer scalar operand (Int64 typed).
func Int(value int64) *Scalar {
	return &Scalar{DType: dtypes.Int64, IntValue: value}
}

// Float returns a floating-point scalar operand (Float64 typed, the widest:
// conversion narrows it to the promoted output dtype).
func Float(value float64) *Scalar {
	return &Scalar{DType: dtypes.Float64, FloatValue: value}
}

func (s *Scalar) isInput() {}

func (s *Scalar) String() string {
	switch {
	case s.DType == dtypes.Bool:
		return fmt.Sprintf("%v", s.BoolValue)
	case s.DType.IsFloat():
		return fmt.Sprintf("%g", s.FloatValue)
	default:
		return fmt.Sprintf("%d", s.IntValue)
	}
}

// Node is one operator call within a Graph. It is immutable once added.
type Node struct {
	// Key is the operator identity and overload.
	Key OpKey

	// Inputs are the ordered operands.
	Inputs []Input

	// Outputs are the names of the values this node produces. Most operators
	// produce exactly one; chunk produces several.
	Outputs []string

	// Index is the node's position in the graph, used in diagnostics.
	Index int

	attrs map[string]any
}

// IntAttr returns the named integer attribute.
func (n *Node) IntAttr(name string) (value int, found bool) {
	raw, ok := n.attrs[name]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case int:
		return v, true
	case int64:
		return int(v), true
	}
	return 0, false
}

// IntsAttr returns the named integer-list attribute.
func (n *Node) IntsAttr(name string) (values []int, found bool) {
	raw, ok := n.attrs[name]
	if !ok {
		return nil, false
	}
	switch v := raw.(type) {
	case []int:
		return v, true
	case []int64:
		values = make([]int, len(v))
		for ii, value := range v {
			values[ii] = int(value)
		}
		return values, true
	case int:
		return []int{v}, true
	case int64:
		return []int{int(v)}, true
	}
	return nil, false
}

// FloatAttr returns the named float attribute.
func (n *Node) FloatAttr(name string) (value float64, found bool) {
	raw, ok := n.attrs[name]
	if !ok {
		return 0, false
	}
	switch v := raw.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	}
	return 0, false
}

// String implements fmt.Stringer with a compact one-line rendering, e.g.
// "#3 aten.chunk.default(%x, chunks=3, dim=0) -> (%piece0, %piece1)".
func (n *Node) String() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "#%d %s(", n.Index, n.Key)
	for ii, in := range n.Inputs {
		if ii > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString(in.String())
	}
	for _, name := range slices.Sorted(maps.Keys(n.attrs)) {
		if buf.Len() > 0 && !strings.HasSuffix(buf.String(), "(") {
			buf.WriteString(", ")
		}
		fmt.Fprintf(&buf, "%s=%v", name, n.attrs[name])
	}
	buf.WriteString(") -> (")
	for ii, output := range n.Outputs {
		if ii > 0 {
			buf.WriteString(", ")
		}
		buf.WriteString("%" + output)
	}
	buf.WriteString(")")
	return buf.String()
}
