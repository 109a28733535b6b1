package ir

// AluOp enumerates ALU operators, memory size classes and MOV.
type AluOp int

const (
	NOP AluOp = iota
	ADD_I
	SUB_I
	MUL_I
	DIV_I
	MOD_I
	AND_I
	OR_I
	XOR_I
	EQ_I
	NE_I
	LT_I
	GT_I
	LTE_I
	GTE_I
	LSL_I
	LSR_I
	ASR_I

	ADD_R
	SUB_R
	MUL_R
	DIV_R
	MOD_R
	EQ_R
	NE_R
	LT_R
	GT_R
	LTE_R
	GTE_R

	ADD_S
	EQ_S
	NE_S
	LT_S
	GT_S
	LTE_S
	GTE_S

	AND_B
	OR_B

	// Memory size classes.
	B
	H
	W

	MOV
)

var aluOpNames = [...]string{
	NOP: "NOP", ADD_I: "ADD_I", SUB_I: "SUB_I", MUL_I: "MUL_I", DIV_I: "DIV_I",
	MOD_I: "MOD_I", AND_I: "AND_I", OR_I: "OR_I", XOR_I: "XOR_I", EQ_I: "EQ_I",
	NE_I: "NE_I", LT_I: "LT_I", GT_I: "GT_I", LTE_I: "LTE_I", GTE_I: "GTE_I",
	LSL_I: "LSL_I", LSR_I: "LSR_I", ASR_I: "ASR_I",
	ADD_R: "ADD_R", SUB_R: "SUB_R", MUL_R: "MUL_R", DIV_R: "DIV_R", MOD_R: "MOD_R",
	EQ_R: "EQ_R", NE_R: "NE_R", LT_R: "LT_R", GT_R: "GT_R", LTE_R: "LTE_R", GTE_R: "GTE_R",
	ADD_S: "ADD_S", EQ_S: "EQ_S", NE_S: "NE_S", LT_S: "LT_S", GT_S: "GT_S",
	LTE_S: "LTE_S", GTE_S: "GTE_S",
	AND_B: "AND_B", OR_B: "OR_B",
	B: "B", H: "H", W: "W",
	MOV: "MOV",
}

func (op AluOp) String() string {
	if op >= 0 && int(op) < len(aluOpNames) {
		return aluOpNames[op]
	}
	return "OP?"
}

// ParseAluOp looks an operator up by its printed name.
func ParseAluOp(name string) (AluOp, bool) {
	for i, n := range aluOpNames {
		if n == name {
			return AluOp(i), true
		}
	}
	return NOP, false
}

// IsCommutative reports whether swapping the operands preserves the result.
func (op AluOp) IsCommutative() bool {
	switch op {
	case ADD_I, MUL_I, AND_I, OR_I, XOR_I, EQ_I, NE_I:
		return true
	}
	return false
}

// IsCompare reports whether op is an integer comparison, the only ops a
// branch may carry.
func (op AluOp) IsCompare() bool {
	switch op {
	case EQ_I, NE_I, LT_I, GT_I, LTE_I, GTE_I:
		return true
	}
	return false
}

// Invert returns the comparison that is true exactly when op is false.
func (op AluOp) Invert() (AluOp, bool) {
	switch op {
	case EQ_I:
		return NE_I, true
	case NE_I:
		return EQ_I, true
	case LT_I:
		return GTE_I, true
	case GT_I:
		return LTE_I, true
	case LTE_I:
		return GT_I, true
	case GTE_I:
		return LT_I, true
	}
	return op, false
}

// ImmediateForm returns a comparison equivalent to op against the literal
// k whose literal can be encoded as the right-hand operand. GT and LTE are
// emitted with their operands swapped, so x > k becomes x >= k+1 and
// x <= k becomes x < k+1. Zero is register 0 and fits either side. Other
// operators come back unchanged. It reports false when the literal does
// not fit the immediate field.
func ImmediateForm(op AluOp, k int) (AluOp, int, bool) {
	switch {
	case k == 0:
		return op, k, true
	case op == GT_I:
		return GTE_I, k + 1, IsSmallImmediate(k + 1)
	case op == LTE_I:
		return LT_I, k + 1, IsSmallImmediate(k + 1)
	}
	return op, k, IsSmallImmediate(k)
}

func (op AluOp) IsMemSize() bool {
	return op == B || op == H || op == W
}

// Bytes returns the access width of a memory size class.
func (op AluOp) Bytes() int {
	switch op {
	case B:
		return 1
	case H:
		return 2
	case W:
		return 4
	}
	return 0
}

// SizeClass maps an access width to its memory size class.
func SizeClass(bytes int) (AluOp, bool) {
	switch bytes {
	case 1:
		return B, true
	case 2:
		return H, true
	case 4:
		return W, true
	}
	return NOP, false
}

// Eval computes op over two 32-bit integer literals. It reports false for
// operators that cannot be folded, including division by zero.
func Eval(op AluOp, l, r int) (int, bool) {
	a, b := int32(l), int32(r)

	var v int32
	switch op {
	case ADD_I:
		v = a + b
	case SUB_I:
		v = a - b
	case MUL_I:
		v = a * b
	case DIV_I:
		if b == 0 {
			return 0, false
		}
		v = a / b
	case MOD_I:
		if b == 0 {
			return 0, false
		}
		v = a % b
	case AND_I:
		v = a & b
	case OR_I:
		v = a | b
	case XOR_I:
		v = a ^ b
	case EQ_I:
		v = b2i(a == b)
	case NE_I:
		v = b2i(a != b)
	case LT_I:
		v = b2i(a < b)
	case GT_I:
		v = b2i(a > b)
	case LTE_I:
		v = b2i(a <= b)
	case GTE_I:
		v = b2i(a >= b)
	case LSL_I:
		v = a << (uint32(b) & 31)
	case LSR_I:
		v = int32(uint32(a) >> (uint32(b) & 31))
	case ASR_I:
		v = a >> (uint32(b) & 31)
	default:
		return 0, false
	}
	return int(v), true
}

// Compare evaluates a branch condition over two literals.
func Compare(op AluOp, l, r int) (bool, bool) {
	if !op.IsCompare() {
		return false, false
	}
	v, ok := Eval(op, l, r)
	return v != 0, ok
}

func b2i(b bool) int32 {
	if b {
		return 1
	}
	return 0
}
