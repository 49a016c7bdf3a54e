// Package reptrans rewrites a monomorphic program so that every value is
// carried in machine words. Bit vectors wider than a word are split into
// several words (least significant first), index and address types become
// words, and Unit disappears entirely.
package reptrans

import (
	"math/big"

	"github.com/bgins/mil-tools/pkg/diag"
	"github.com/bgins/mil-tools/pkg/types"
)

// RepTypeSet computes and caches word-level representations of types for
// one word size.
type RepTypeSet struct {
	wordSize int
	cache    map[string][]types.Type
}

// NewRepTypeSet creates a representation cache for the given word size.
func NewRepTypeSet(wordSize int) *RepTypeSet {
	if wordSize != 32 && wordSize != 64 {
		diag.Internal("unsupported word size %d", wordSize)
	}
	return &RepTypeSet{wordSize: wordSize, cache: make(map[string][]types.Type)}
}

// WordsFor is the number of words needed for a bit vector of width n.
func (s *RepTypeSet) WordsFor(n int) int {
	return (n + s.wordSize - 1) / s.wordSize
}

// Reps returns the list of types that represent t. Types that need no
// change represent themselves.
func (s *RepTypeSet) Reps(t types.Type) []types.Type {
	t = types.Resolve(t)
	key := t.String()
	if r, ok := s.cache[key]; ok {
		return r
	}
	r := s.reps(t)
	s.cache[key] = r
	return r
}

func (s *RepTypeSet) reps(t types.Type) []types.Type {
	if elems, ok := types.TupleElems(t); ok {
		return s.RepsAll(elems)
	}
	tc, args, ok := types.HeadTycon(t)
	if !ok {
		diag.Internal("cannot represent non-monomorphic type %s", t)
	}
	switch tc {
	case types.BitTycon:
		n := natArg(t, args)
		return types.Words(s.WordsFor(n))
	case types.IxTycon, types.NZWordTycon, types.AddrTycon:
		return []types.Type{types.WordType}
	case types.UnitTycon:
		return nil
	case types.FuncTycon:
		if len(args) != 2 {
			diag.Internal("malformed function type %s", t)
		}
		return []types.Type{types.Fun(types.Tuple(s.Reps(args[0])...), types.Tuple(s.Reps(args[1])...))}
	}
	return []types.Type{t}
}

func natArg(t types.Type, args []types.Type) int {
	if len(args) != 1 {
		diag.Internal("malformed type %s", t)
	}
	n, ok := types.NatValue(args[0])
	if !ok || !n.IsInt64() || n.Sign() < 0 {
		diag.Internal("type %s has no natural width", t)
	}
	return int(n.Int64())
}

// RepsAll concatenates the representations of ts.
func (s *RepTypeSet) RepsAll(ts []types.Type) []types.Type {
	var out []types.Type
	for _, t := range ts {
		out = append(out, s.Reps(t)...)
	}
	return out
}

// Single returns the one type representing t; t must not split.
func (s *RepTypeSet) Single(t types.Type) types.Type {
	r := s.Reps(t)
	if len(r) != 1 {
		diag.Internal("type %s is represented by %d words", t, len(r))
	}
	return r[0]
}

// BlockType represents a block or primitive type.
func (s *RepTypeSet) BlockType(bt *types.BlockType) *types.BlockType {
	return types.NewBlockType(s.Reps(bt.Dom), s.Reps(bt.Rng))
}

// AllocType represents a closure or constructor type: stored fields are
// flattened, the result is a single pointer.
func (s *RepTypeSet) AllocType(at *types.AllocType) *types.AllocType {
	return &types.AllocType{Stored: s.RepsAll(at.Stored), Result: s.Single(at.Result)}
}

// SplitWords breaks the low n bits of v into words of the set's size,
// least significant first. Each word is returned as a signed value.
func (s *RepTypeSet) SplitWords(v *big.Int, n int) []int64 {
	k := s.WordsFor(n)
	ws := make([]int64, k)
	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), uint(s.wordSize)), big.NewInt(1))
	x := new(big.Int).Set(v)
	for i := range ws {
		w := new(big.Int).And(x, mask)
		ws[i] = signed(s.wordSize, w.Uint64())
		x.Rsh(x, uint(s.wordSize))
	}
	return ws
}

// HighMask is the mask for the valid bits of the most significant word of
// a width-n value, and false if that word is full.
func (s *RepTypeSet) HighMask(n int) (int64, bool) {
	r := n % s.wordSize
	if r == 0 {
		return 0, false
	}
	return int64(1)<<uint(r) - 1, true
}

func signed(wordSize int, u uint64) int64 {
	if wordSize == 32 {
		return int64(int32(uint32(u)))
	}
	return int64(u)
}
