// Package match implements exact substring search over binary buffers
// using the Knuth-Morris-Pratt algorithm.
package match

// Pattern is a compiled signature. It is immutable once built and can be
// shared by any number of goroutines.
type Pattern struct {
	seq []byte
	// prefix[i] is the length of the longest proper prefix of seq[:i+1]
	// which is also a suffix of it.
	prefix []int
}

// Compile precomputes the failure function of p in O(len(p)).
// The bytes of p are copied.
func Compile(p []byte) *Pattern {
	seq := make([]byte, len(p))
	copy(seq, p)

	return &Pattern{
		seq:    seq,
		prefix: prefixFunction(seq),
	}
}

// Contains reports whether pattern, taken as its literal byte sequence,
// occurs as a contiguous run of bytes in buf.
func Contains(buf []byte, pattern string) bool {
	return Compile([]byte(pattern)).Match(buf)
}

func (p *Pattern) Len() int {
	return len(p.seq)
}

// Bytes returns the signature bytes. Callers must not modify them.
func (p *Pattern) Bytes() []byte {
	return p.seq
}

// Match reports whether the pattern occurs in buf. The scan is linear in
// len(buf) and never moves back over bytes already consumed.
//
// An empty pattern matches any buffer.
func (p *Pattern) Match(buf []byte) bool {
	m := len(p.seq)
	if m == 0 {
		return true
	}
	if len(buf) < m {
		return false
	}

	j := 0
	for _, b := range buf {
		for j > 0 && b != p.seq[j] {
			j = p.prefix[j-1]
		}

		if b == p.seq[j] {
			j++
		}

		if j == m {
			return true
		}
	}
	return false
}

func prefixFunction(seq []byte) []int {
	prefix := make([]int, len(seq))

	for i := 1; i < len(seq); i++ {
		j := prefix[i-1]
		for j > 0 && seq[i] != seq[j] {
			j = prefix[j-1]
		}

		if seq[i] == seq[j] {
			j++
		}
		prefix[i] = j
	}
	return prefix
}
