package types

import (
	"errors"
	"testing"
)

func TestTypeString(t *testing.T) {
	pair := NewDataType("Pair", KStar, KStar)
	tests := []struct {
		typ  Type
		want string
	}{
		{WordType, "Word"},
		{BitType(8), "Bit 8"},
		{Tuple(WordType, FlagType), "[Word, Flag]"},
		{Fun(Tuple(WordType), Tuple()), "[Word] ->> []"},
		{Ap(Con(pair), BitType(4), TGen{N: 1}), "Pair (Bit 4) b"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.typ.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestUnifyBindsVariables(t *testing.T) {
	a := NewTVar(KStar)
	b := NewTVar(KNat)
	if err := Unify(Tuple(a, Ap(Con(BitTycon), b)), Tuple(WordType, BitType(16))); err != nil {
		t.Fatalf("unify failed: %v", err)
	}
	if !Equal(a, WordType) {
		t.Errorf("a = %s, want Word", Resolve(a))
	}
	if w, ok := BitWidth(Ap(Con(BitTycon), b)); !ok || w != 16 {
		t.Errorf("BitWidth = %d, %v", w, ok)
	}
}

func TestUnifyFailures(t *testing.T) {
	v := NewTVar(KStar)
	tests := []struct {
		name   string
		a, b   Type
		reason string
	}{
		{"constructor", WordType, FlagType, ""},
		{"arity", Tuple(WordType), Tuple(WordType, WordType), "tuple arity mismatch"},
		{"occurs", v, Fun(Tuple(v), Tuple()), "infinite type"},
		{"nat", BitType(8), BitType(16), ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := Unify(tt.a, tt.b)
			var ue *UnifyError
			if !errors.As(err, &ue) {
				t.Fatalf("expected UnifyError, got %v", err)
			}
			if ue.Reason != tt.reason {
				t.Errorf("reason = %q, want %q", ue.Reason, tt.reason)
			}
		})
	}
}

func TestUnifyAllArity(t *testing.T) {
	err := UnifyAll(Words(2), Words(3))
	if err == nil || err.Error() != "type mismatch: expected [Word, Word], found [Word, Word, Word] (arity mismatch)" {
		t.Errorf("unexpected error %v", err)
	}
}

func TestGeneralizeInstantiate(t *testing.T) {
	a := NewTVar(KStar)
	bt := (&BlockType{Dom: Tuple(a, WordType), Rng: Tuple(a)}).Generalize([]*TVar{a})
	if got := bt.String(); got != "forall a. [a, Word] >>= [a]" {
		t.Errorf("String() = %q", got)
	}
	if !bt.IsPolymorphic() {
		t.Error("expected polymorphic block type")
	}

	inst := bt.Instantiate()
	if inst.IsPolymorphic() {
		t.Error("instance should have no prefix")
	}
	if err := Unify(inst.RngTypes()[0], FlagType); err != nil {
		t.Fatal(err)
	}
	if got := inst.Resolve().Key(); got != "[Flag, Word] >>= [Flag]" {
		t.Errorf("Key() = %q", got)
	}
}

func TestMatch(t *testing.T) {
	bt := &BlockType{Prefix: []Kind{KStar, KStar}, Dom: Tuple(TGen{N: 0}, TGen{N: 0}), Rng: Tuple(TGen{N: 1})}
	s := make([]Type, 2)
	if !bt.Match(NewBlockType(Words(2), []Type{FlagType}), s) {
		t.Fatal("expected match")
	}
	if !Equal(s[0], WordType) || !Equal(s[1], FlagType) {
		t.Errorf("s = %v", s)
	}
	if bt.Match(NewBlockType([]Type{WordType, FlagType}, []Type{FlagType}), make([]Type, 2)) {
		t.Error("inconsistent generic should not match")
	}
}

func TestAlphaEquiv(t *testing.T) {
	a, b := NewTVar(KStar), NewTVar(KStar)
	if !AlphaEquiv(Tuple(a, b), Tuple(b, a)) {
		t.Error("renaming should be equivalent")
	}
	if AlphaEquiv(Tuple(a, a), Tuple(a, b)) {
		t.Error("a repeated variable is not equivalent to two distinct ones")
	}
	s1 := GeneralizeScheme(Fun(Tuple(a), Tuple(a)), []*TVar{a})
	s2 := GeneralizeScheme(Fun(Tuple(b), Tuple(b)), []*TVar{b})
	if !s1.AlphaEquiv(s2) {
		t.Error("schemes should be alpha-equivalent")
	}
}

func TestGroundDefaults(t *testing.T) {
	a, n, tup := NewTVar(KStar), NewTVar(KNat), NewTVar(KTuple)
	got := Ground(Tuple(a, Ap(Con(BitTycon), n), Fun(tup, Tuple())))
	if got.String() != "[Unit, Bit 0, [] ->> []]" {
		t.Errorf("Ground = %s", got)
	}
	if !IsMonomorphic(got) {
		t.Error("grounded type should be monomorphic")
	}
}

func TestSpecializingSubst(t *testing.T) {
	a, n := NewTVar(KStar), NewTVar(KNat)
	sub, err := SpecializingSubst([]*TVar{a, n}, []Type{WordType, nil})
	if err != nil {
		t.Fatal(err)
	}
	if !Equal(sub[a], WordType) || !Equal(sub[n], Nat(0)) {
		t.Errorf("sub = %v", sub)
	}
	if _, err := SpecializingSubst([]*TVar{a}, nil); err == nil {
		t.Error("expected count mismatch")
	}
}

func TestEnv(t *testing.T) {
	env := NewEnv()
	if _, ok := env.Tycon("Word"); !ok {
		t.Error("Word should be built in")
	}
	if cf, ok := env.Cfun("Unit"); !ok || !cf.Data.IsUnitLike() {
		t.Error("Unit should be a unit-like constructor")
	}

	list := NewDataType("List", KStar)
	list.AddCfun("Nil")
	cons := list.AddCfun("Cons", TGen{N: 0}, Ap(Con(list), TGen{N: 0}))
	if err := env.AddTycon(list); err != nil {
		t.Fatal(err)
	}
	if cons.Tag != 1 || cons.Arity() != 2 {
		t.Errorf("Cons tag=%d arity=%d", cons.Tag, cons.Arity())
	}
	if got := cons.Type.String(); got != "forall a. {a, List a} List a" {
		t.Errorf("Cons type = %q", got)
	}

	dup := NewDataType("Other")
	dup.AddCfun("Nil")
	if err := env.AddTycon(dup); err == nil || err.Error() != "multiple definitions for constructor Nil" {
		t.Errorf("expected duplicate constructor error, got %v", err)
	}
	tree := NewDataType("Tree")
	if err := env.AddTycon(tree); err != nil {
		t.Fatal(err)
	}
	if _, err := env.DefineCfun(tree, "Leaf"); err != nil {
		t.Fatal(err)
	}
	if _, err := env.DefineCfun(tree, "Cons"); err == nil {
		t.Error("expected duplicate constructor error from DefineCfun")
	}
	if cf, ok := env.Cfun("Leaf"); !ok || cf.Data != tree {
		t.Error("Leaf should be registered for Tree")
	}
	if err := env.AddTycon(NewDataType("List")); err == nil {
		t.Error("expected duplicate type error")
	}
}
