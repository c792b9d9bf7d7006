package object

// lineKind classifies a line in an edit script.
type lineKind int

const (
	lineEqual  lineKind = iota // present in both base and target
	lineInsert                 // target only
	lineDelete                 // base only
)

// lineOp is one edit-script step. A is the base line index (lineEqual,
// lineDelete) and B the target line index (lineEqual, lineInsert).
type lineOp struct {
	Kind lineKind
	A, B int
}

// lineSpan is the half-open byte range of one line, newline included.
type lineSpan struct {
	start, end int
}

// splitLines splits data[from:to] after every '\n'. A final unterminated
// line is kept.
func splitLines(data []byte, from, to int) []lineSpan {
	var spans []lineSpan
	start := from
	for i := from; i < to; i++ {
		if data[i] == '\n' {
			spans = append(spans, lineSpan{start, i + 1})
			start = i + 1
		}
	}
	if start < to {
		spans = append(spans, lineSpan{start, to})
	}
	return spans
}

// diffLines computes the shortest edit script turning n base lines into m
// target lines with the Myers algorithm. eq reports whether base line i
// equals target line j. Runs in O((n+m)*D) time and keeps one snapshot of
// the frontier per edit step.
func diffLines(n, m int, eq func(i, j int) bool) []lineOp {
	if n == 0 && m == 0 {
		return nil
	}
	if n == 0 {
		ops := make([]lineOp, m)
		for j := range ops {
			ops[j] = lineOp{Kind: lineInsert, B: j}
		}
		return ops
	}
	if m == 0 {
		ops := make([]lineOp, n)
		for i := range ops {
			ops[i] = lineOp{Kind: lineDelete, A: i}
		}
		return ops
	}

	max := n + m
	size := 2*max + 1
	v := make([]int, size)

	// trace[d] holds the frontier after edit distance d.
	var trace [][]int
	for d := 0; d <= max; d++ {
		for k := -d; k <= d; k += 2 {
			idx := k + max
			var x int
			if k == -d || (k != d && v[idx-1] < v[idx+1]) {
				x = v[idx+1]
			} else {
				x = v[idx-1] + 1
			}
			y := x - k
			for x < n && y < m && eq(x, y) {
				x++
				y++
			}
			v[idx] = x

			if x >= n && y >= m {
				trace = append(trace, append([]int(nil), v...))
				return backtrackLines(trace, n, m, d)
			}
		}
		trace = append(trace, append([]int(nil), v...))
	}
	return nil
}

func backtrackLines(trace [][]int, n, m, dFinal int) []lineOp {
	max := n + m
	x, y := n, m

	var ops []lineOp
	for d := dFinal; d > 0; d-- {
		k := x - y
		idx := k + max
		vPrev := trace[d-1]

		var prevK int
		if k == -d || (k != d && vPrev[idx-1] < vPrev[idx+1]) {
			prevK = k + 1
		} else {
			prevK = k - 1
		}
		prevX := vPrev[prevK+max]
		prevY := prevX - prevK

		for x > prevX && y > prevY {
			x--
			y--
			ops = append(ops, lineOp{Kind: lineEqual, A: x, B: y})
		}
		if k == prevK+1 {
			x--
			ops = append(ops, lineOp{Kind: lineDelete, A: x})
		} else {
			y--
			ops = append(ops, lineOp{Kind: lineInsert, B: y})
		}
	}
	for x > 0 && y > 0 {
		x--
		y--
		ops = append(ops, lineOp{Kind: lineEqual, A: x, B: y})
	}

	for i, j := 0, len(ops)-1; i < j; i, j = i+1, j-1 {
		ops[i], ops[j] = ops[j], ops[i]
	}
	return ops
}
