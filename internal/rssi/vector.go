package rssi

import "strings"

// Vector holds one sample per known node, indexed by NodeID
type Vector []Sample

// NewVector returns a vector of n Unmeasured samples
func NewVector(n int) Vector {
	return make(Vector, n)
}

// Clone returns an independent copy of the vector
func (v Vector) Clone() Vector {
	out := make(Vector, len(v))
	copy(out, v)
	return out
}

// Complete reports whether no slot is Unmeasured
func (v Vector) Complete() bool {
	for _, s := range v {
		if s.IsUnmeasured() {
			return false
		}
	}
	return true
}

// Count returns the number of slots of the given kind
func (v Vector) Count(k Kind) int {
	var n int
	for _, s := range v {
		if s.kind == k {
			n++
		}
	}
	return n
}

// Sealed returns a copy with every Unmeasured slot turned into Invalid.
// Frames leaving the root never carry Unmeasured slots.
func (v Vector) Sealed() Vector {
	out := v.Clone()
	for i, s := range out {
		if s.IsUnmeasured() {
			out[i] = Invalid()
		}
	}
	return out
}

// Encode converts the vector into wire bytes
func (v Vector) Encode(s Sentinels) []int8 {
	out := make([]int8, len(v))
	for i, sample := range v {
		out[i] = s.Encode(sample)
	}
	return out
}

// DecodeVector converts wire bytes into a vector
func DecodeVector(b []int8, s Sentinels) Vector {
	out := make(Vector, len(b))
	for i, v := range b {
		out[i] = s.Decode(v)
	}
	return out
}

func (v Vector) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, s := range v {
		if i > 0 {
			sb.WriteByte(' ')
		}
		sb.WriteString(s.String())
	}
	sb.WriteByte(']')
	return sb.String()
}
