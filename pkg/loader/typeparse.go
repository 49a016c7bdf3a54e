package loader

import (
	"fmt"
	"math/big"
	"strings"
	"unicode"

	"github.com/bgins/mil-tools/pkg/types"
)

// typeReader reads type expressions such as
//
//	Word
//	Bit 8
//	[Word, Flag] ->> [Word]
//	[a] >>= [a]            (block type)
//	{Word} [Word] ->> [Word] (allocation type)
//
// Lower-case identifiers are type variables; they are quantified in order of
// first appearance unless bound in advance (data type parameters).
type typeReader struct {
	env   *types.Env
	toks  []string
	pos   int
	vars  []string
	kinds []types.Kind
	fixed int
}

func newTypeReader(env *types.Env, src string, params []string) (*typeReader, error) {
	toks, err := tokenize(src)
	if err != nil {
		return nil, err
	}
	r := &typeReader{env: env, toks: toks, fixed: len(params)}
	for _, p := range params {
		r.vars = append(r.vars, p)
		r.kinds = append(r.kinds, types.KStar)
	}
	return r, nil
}

func tokenize(src string) ([]string, error) {
	var toks []string
	rs := []rune(src)
	for i := 0; i < len(rs); {
		c := rs[i]
		switch {
		case unicode.IsSpace(c):
			i++
		case strings.HasPrefix(string(rs[i:]), "->>"), strings.HasPrefix(string(rs[i:]), ">>="):
			toks = append(toks, string(rs[i:i+3]))
			i += 3
		case strings.ContainsRune("[]{}(),", c):
			toks = append(toks, string(c))
			i++
		case unicode.IsLetter(c) || c == '_' || unicode.IsDigit(c):
			j := i
			for j < len(rs) && (unicode.IsLetter(rs[j]) || unicode.IsDigit(rs[j]) || rs[j] == '_') {
				j++
			}
			toks = append(toks, string(rs[i:j]))
			i = j
		default:
			return nil, fmt.Errorf("unexpected character %q in type", c)
		}
	}
	return toks, nil
}

func (r *typeReader) peek() string {
	if r.pos < len(r.toks) {
		return r.toks[r.pos]
	}
	return ""
}

func (r *typeReader) next() string {
	t := r.peek()
	r.pos++
	return t
}

func (r *typeReader) expect(tok string) error {
	if got := r.next(); got != tok {
		return fmt.Errorf("expected %q in type, found %q", tok, got)
	}
	return nil
}

func (r *typeReader) done() error {
	if r.pos != len(r.toks) {
		return fmt.Errorf("unexpected %q at end of type", r.peek())
	}
	return nil
}

// prefix returns the kinds of the quantified variables read so far.
func (r *typeReader) prefix() []types.Kind {
	if len(r.kinds) == 0 {
		return nil
	}
	return r.kinds
}

func (r *typeReader) variable(name string) types.Type {
	for i, v := range r.vars {
		if v == name {
			return types.TGen{N: i}
		}
	}
	r.vars = append(r.vars, name)
	r.kinds = append(r.kinds, types.KStar)
	return types.TGen{N: len(r.vars) - 1}
}

func (r *typeReader) setKind(t types.Type, k types.Kind) {
	if g, ok := t.(types.TGen); ok && g.N >= r.fixed {
		r.kinds[g.N] = k
	}
}

func (r *typeReader) typ() (types.Type, error) {
	t, err := r.app()
	if err != nil {
		return nil, err
	}
	if r.peek() != "->>" {
		return t, nil
	}
	r.next()
	rng, err := r.typ()
	if err != nil {
		return nil, err
	}
	r.setKind(t, types.KTuple)
	r.setKind(rng, types.KTuple)
	return types.Fun(t, rng), nil
}

func (r *typeReader) app() (types.Type, error) {
	head, err := r.atom()
	if err != nil {
		return nil, err
	}
	for r.startsAtom() {
		arg, err := r.atom()
		if err != nil {
			return nil, err
		}
		if c, ok := head.(types.TCon); ok && (c.Tycon == types.BitTycon || c.Tycon == types.IxTycon) {
			r.setKind(arg, types.KNat)
		}
		head = types.Ap(head, arg)
	}
	return head, nil
}

func (r *typeReader) startsAtom() bool {
	t := r.peek()
	if t == "" {
		return false
	}
	switch t {
	case "[", "(":
		return true
	case "]", ")", "{", "}", ",", "->>", ">>=":
		return false
	}
	return true
}

func (r *typeReader) atom() (types.Type, error) {
	tok := r.next()
	switch {
	case tok == "[":
		ts, err := r.list("]")
		if err != nil {
			return nil, err
		}
		return types.Tuple(ts...), nil
	case tok == "(":
		t, err := r.typ()
		if err != nil {
			return nil, err
		}
		return t, r.expect(")")
	case tok == "":
		return nil, fmt.Errorf("unexpected end of type")
	case unicode.IsDigit([]rune(tok)[0]):
		n, ok := new(big.Int).SetString(tok, 10)
		if !ok {
			return nil, fmt.Errorf("bad natural %q", tok)
		}
		return types.TNat{N: n}, nil
	case unicode.IsLower([]rune(tok)[0]):
		return r.variable(tok), nil
	default:
		tc, ok := r.env.Tycon(tok)
		if !ok {
			return nil, fmt.Errorf("unknown type constructor %s", tok)
		}
		return types.Con(tc), nil
	}
}

func (r *typeReader) list(close string) ([]types.Type, error) {
	var ts []types.Type
	if r.peek() == close {
		r.next()
		return ts, nil
	}
	for {
		t, err := r.typ()
		if err != nil {
			return nil, err
		}
		ts = append(ts, t)
		switch r.next() {
		case ",":
			continue
		case close:
			return ts, nil
		default:
			return nil, fmt.Errorf("expected , or %s in type list", close)
		}
	}
}

// ParseScheme reads a type, quantifying its variables.
func ParseScheme(env *types.Env, src string) (*types.Scheme, error) {
	r, err := newTypeReader(env, src, nil)
	if err != nil {
		return nil, err
	}
	t, err := r.typ()
	if err != nil {
		return nil, err
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return &types.Scheme{Prefix: r.prefix(), Type: t}, nil
}

// ParseBlockType reads "dom >>= rng".
func ParseBlockType(env *types.Env, src string) (*types.BlockType, error) {
	r, err := newTypeReader(env, src, nil)
	if err != nil {
		return nil, err
	}
	dom, err := r.app()
	if err != nil {
		return nil, err
	}
	if err := r.expect(">>="); err != nil {
		return nil, err
	}
	rng, err := r.app()
	if err != nil {
		return nil, err
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	r.setKind(dom, types.KTuple)
	r.setKind(rng, types.KTuple)
	return &types.BlockType{Prefix: r.prefix(), Dom: dom, Rng: rng}, nil
}

// ParseAllocType reads "{stored, ...} result".
func ParseAllocType(env *types.Env, src string) (*types.AllocType, error) {
	r, err := newTypeReader(env, src, nil)
	if err != nil {
		return nil, err
	}
	if err := r.expect("{"); err != nil {
		return nil, err
	}
	stored, err := r.list("}")
	if err != nil {
		return nil, err
	}
	result, err := r.typ()
	if err != nil {
		return nil, err
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	return &types.AllocType{Prefix: r.prefix(), Stored: stored, Result: result}, nil
}

// parseField reads a constructor field type whose variables are the data
// type's parameters.
func parseField(env *types.Env, src string, params []string) (types.Type, error) {
	r, err := newTypeReader(env, src, params)
	if err != nil {
		return nil, err
	}
	t, err := r.typ()
	if err != nil {
		return nil, err
	}
	if err := r.done(); err != nil {
		return nil, err
	}
	if len(r.vars) > len(params) {
		return nil, fmt.Errorf("unknown type variable %s", r.vars[len(params)])
	}
	return t, nil
}

// ParseExternalType reads an external's type together with its type
// arguments, which may mention the type's variables.
func ParseExternalType(env *types.Env, src string, ts []string) (*types.Scheme, []types.Type, error) {
	r, err := newTypeReader(env, src, nil)
	if err != nil {
		return nil, nil, err
	}
	t, err := r.typ()
	if err != nil {
		return nil, nil, err
	}
	if err := r.done(); err != nil {
		return nil, nil, err
	}
	n := len(r.vars)
	args := make([]types.Type, len(ts))
	for i, a := range ts {
		toks, err := tokenize(a)
		if err != nil {
			return nil, nil, err
		}
		r.toks, r.pos = toks, 0
		if args[i], err = r.typ(); err != nil {
			return nil, nil, err
		}
		if err := r.done(); err != nil {
			return nil, nil, err
		}
	}
	if len(r.vars) > n {
		return nil, nil, fmt.Errorf("type argument mentions unknown variable %s", r.vars[n])
	}
	return &types.Scheme{Prefix: r.prefix(), Type: t}, args, nil
}
