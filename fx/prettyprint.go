package fx

import (
	"bytes"
	"fmt"

	"github.com/gomlx/gomlx/pkg/support/sets"
)

// String implements fmt.Stringer, and pretty prints the graph.
func (g *Graph) String() string {
	var buf bytes.Buffer
	w := func(format string, args ...any) {
		if len(args) == 0 {
			buf.WriteString(format)
		} else {
			buf.WriteString(fmt.Sprintf(format, args...))
		}
	}
	w("Operator Graph %q:\n", g.name)

	w("\t# inputs:\t%d\n", len(g.inputs))
	for _, spec := range g.inputs {
		if spec.IsStatic() {
			w("\t\t%%%s: %s%v\n", spec.Name, spec.DType, spec.Opt)
		} else {
			w("\t\t%%%s: %s min=%v opt=%v max=%v\n", spec.Name, spec.DType, spec.Min, spec.Opt, spec.Max)
		}
	}

	if len(g.constants) > 0 {
		w("\t# constants:\t%d\n", len(g.constants))
		for _, name := range g.constants {
			w("\t\t%%%s: %s\n", name, g.constantByName[name].Shape())
		}
	}

	w("\t# nodes:\t%d\n", len(g.nodes))
	opKeysSet := sets.Make[OpKey]()
	for _, node := range g.nodes {
		w("\t\t%s\n", node)
		opKeysSet.Insert(node.Key)
	}
	w("\t# distinct op keys:\t%d\n", len(opKeysSet))

	w("\t# outputs:\t%d\n", len(g.outputs))
	for ii, name := range g.outputs {
		w("\t\t[#%d] %%%s\n", ii, name)
	}
	return buf.String()
}
