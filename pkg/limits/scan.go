package limits

import (
	"errors"
)

var errUnbalanced = errors.New("unbalanced JSON brackets")

type container struct {
	array    bool
	commas   int
	nonEmpty bool
}

// shape is what a single pass over a JSON document learns about it.
type shape struct {
	depth        int
	longestArray int
}

// scanShape walks the document once with an explicit stack, so adversarial
// nesting costs memory proportional to depth and never recursion. Objects
// and arrays add one level each, scalars add none. It does not validate the
// grammar beyond bracket balance.
func scanShape(body []byte) (shape, error) {
	var (
		s        shape
		stack    []container
		inString bool
		escaped  bool
	)
	for _, c := range body {
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		if c == ' ' || c == '\t' || c == '\n' || c == '\r' {
			continue
		}
		if n := len(stack); n > 0 && stack[n-1].array && c != ']' && c != ',' {
			stack[n-1].nonEmpty = true
		}
		switch c {
		case '"':
			inString = true
		case '{', '[':
			stack = append(stack, container{array: c == '['})
			if len(stack) > s.depth {
				s.depth = len(stack)
			}
		case '}', ']':
			n := len(stack)
			if n == 0 || stack[n-1].array != (c == ']') {
				return s, errUnbalanced
			}
			top := stack[n-1]
			stack = stack[:n-1]
			if top.array && top.nonEmpty {
				s.longestArray = max(s.longestArray, top.commas+1)
			}
		case ',':
			if n := len(stack); n > 0 && stack[n-1].array {
				stack[n-1].commas++
			}
		}
	}
	if len(stack) != 0 || inString {
		return s, errUnbalanced
	}
	return s, nil
}
