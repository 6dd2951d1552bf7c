package conversion

import (
	"github.com/gomlx/go-xla/pkg/types/dtypes"
)

// This file centralizes type promotion: one ranked promotion function for
// every binary elementwise operator, with per-operator pinned output types
// kept as an explicit exception list in the converter tables (strictly
// boolean operators and comparisons pin Bool) rather than ad hoc logic
// scattered per converter.

// supportedDTypes is the closed set of element types the lowering accepts.
var supportedDTypes = map[dtypes.DType]bool{
	dtypes.Bool:    true,
	dtypes.Uint8:   true,
	dtypes.Uint16:  true,
	dtypes.Uint32:  true,
	dtypes.Uint64:  true,
	dtypes.Int8:    true,
	dtypes.Int16:   true,
	dtypes.Int32:   true,
	dtypes.Int64:   true,
	dtypes.Float16: true,
	dtypes.Float32: true,
	dtypes.Float64: true,
}

// dtypePriority ranks dtypes for promotion: boolean < integer < floating,
// wider width winning at equal kind.
func dtypePriority(dtype dtypes.DType) int {
	switch dtype {
	case dtypes.Float64:
		return 100
	case dtypes.Float32:
		return 90
	case dtypes.Float16:
		return 80
	case dtypes.Int64:
		return 70
	case dtypes.Int32:
		return 60
	case dtypes.Int16:
		return 50
	case dtypes.Int8:
		return 40
	case dtypes.Uint64:
		return 35
	case dtypes.Uint32:
		return 30
	case dtypes.Uint16:
		return 25
	case dtypes.Uint8:
		return 20
	case dtypes.Bool:
		return 10
	default:
		return 0
	}
}

// promoteDTypes resolves the promoted output dtype of two operands, or an
// unresolved (invalid) dtype if either operand is outside the supported set.
// There is no silent default: callers must treat InvalidDType as a
// TypePromotionError.
func promoteDTypes(lhs, rhs dtypes.DType) dtypes.DType {
	if !supportedDTypes[lhs] || !supportedDTypes[rhs] {
		return dtypes.InvalidDType
	}
	if dtypePriority(rhs) > dtypePriority(lhs) {
		return rhs
	}
	return lhs
}

// floatDomainDType resolves the dtype a transcendental operator computes in:
// float operands keep their width, integer and boolean operands are promoted
// to Float32.
func floatDomainDType(operand dtypes.DType) dtypes.DType {
	if !supportedDTypes[operand] {
		return dtypes.InvalidDType
	}
	if operand.IsFloat() {
		return operand
	}
	return dtypes.Float32
}
