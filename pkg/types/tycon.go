package types

import "fmt"

// Tycon is a type constructor. Data types list their constructor functions.
type Tycon struct {
	Name   string
	Params []Kind
	Cfuns  []*Cfun
}

// Cfun is a data constructor. Its AllocType is quantified over the data
// type's parameters.
type Cfun struct {
	Name string
	Tag  int
	Data *Tycon
	Type *AllocType
}

// Arity is the number of fields the constructor stores.
func (c *Cfun) Arity() int {
	return len(c.Type.Stored)
}

func (c *Cfun) String() string {
	return c.Name
}

// IsData reports whether tc was declared with constructors.
func (tc *Tycon) IsData() bool {
	return len(tc.Cfuns) > 0
}

// IsUnitLike reports whether tc has exactly one constructor and it stores
// nothing, so values carry no information.
func (tc *Tycon) IsUnitLike() bool {
	return len(tc.Cfuns) == 1 && tc.Cfuns[0].Arity() == 0
}

// NewDataType creates an algebraic data type with the given parameter kinds.
func NewDataType(name string, params ...Kind) *Tycon {
	return &Tycon{Name: name, Params: params}
}

// AddCfun adds a constructor storing fields of the given types. Field types
// refer to the data type's parameters with TGen.
func (tc *Tycon) AddCfun(name string, stored ...Type) *Cfun {
	gens := make([]Type, len(tc.Params))
	for i := range gens {
		gens[i] = TGen{N: i}
	}
	cf := &Cfun{
		Name: name,
		Tag:  len(tc.Cfuns),
		Data: tc,
		Type: &AllocType{Prefix: tc.Params, Stored: stored, Result: Ap(Con(tc), gens...)},
	}
	tc.Cfuns = append(tc.Cfuns, cf)
	return cf
}

// Built-in type constructors.
var (
	WordTycon   = &Tycon{Name: "Word"}
	FlagTycon   = &Tycon{Name: "Flag"}
	NZWordTycon = &Tycon{Name: "NZWord"}
	AddrTycon   = &Tycon{Name: "Addr"}
	BitTycon    = &Tycon{Name: "Bit", Params: []Kind{KNat}}
	IxTycon     = &Tycon{Name: "Ix", Params: []Kind{KNat}}
	FuncTycon   = &Tycon{Name: "->>", Params: []Kind{KTuple, KTuple}}
	UnitTycon   = NewDataType("Unit")
	UnitCfun    = UnitTycon.AddCfun("Unit")
)

// Env maps names to type and data constructors.
type Env struct {
	tycons map[string]*Tycon
	cfuns  map[string]*Cfun
}

// NewEnv returns an environment holding the built-in constructors.
func NewEnv() *Env {
	e := &Env{tycons: make(map[string]*Tycon), cfuns: make(map[string]*Cfun)}
	for _, tc := range []*Tycon{WordTycon, FlagTycon, NZWordTycon, AddrTycon, BitTycon, IxTycon, UnitTycon} {
		e.tycons[tc.Name] = tc
	}
	e.cfuns[UnitCfun.Name] = UnitCfun
	return e
}

// AddTycon registers a data type and its constructors.
func (e *Env) AddTycon(tc *Tycon) error {
	if _, ok := e.tycons[tc.Name]; ok {
		return fmt.Errorf("multiple definitions for type %s", tc.Name)
	}
	for _, cf := range tc.Cfuns {
		if _, ok := e.cfuns[cf.Name]; ok {
			return fmt.Errorf("multiple definitions for constructor %s", cf.Name)
		}
	}
	e.tycons[tc.Name] = tc
	for _, cf := range tc.Cfuns {
		e.cfuns[cf.Name] = cf
	}
	return nil
}

// DefineCfun adds a constructor to a registered data type.
func (e *Env) DefineCfun(tc *Tycon, name string, stored ...Type) (*Cfun, error) {
	if _, ok := e.cfuns[name]; ok {
		return nil, fmt.Errorf("multiple definitions for constructor %s", name)
	}
	cf := tc.AddCfun(name, stored...)
	e.cfuns[name] = cf
	return cf, nil
}

// Tycon looks up a type constructor by name.
func (e *Env) Tycon(name string) (*Tycon, bool) {
	tc, ok := e.tycons[name]
	return tc, ok
}

// Cfun looks up a data constructor by name.
func (e *Env) Cfun(name string) (*Cfun, bool) {
	cf, ok := e.cfuns[name]
	return cf, ok
}
