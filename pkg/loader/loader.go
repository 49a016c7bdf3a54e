// Package loader reads MIL programs from a structured YAML description. It
// stands in for a front end: every definition, type and body is given
// explicitly and only names and type expressions need resolving.
package loader

import (
	"os"
	"strconv"

	"github.com/bgins/mil-tools/pkg/diag"
	"github.com/bgins/mil-tools/pkg/mil"
	"github.com/bgins/mil-tools/pkg/types"
	"gopkg.in/yaml.v3"
)

type dataSpec struct {
	Name   string     `yaml:"name"`
	Params []string   `yaml:"params"`
	Cfuns  []cfunSpec `yaml:"cfuns"`
}

type cfunSpec struct {
	Name   string   `yaml:"name"`
	Fields []string `yaml:"fields"`
}

type primSpec struct {
	Name   string `yaml:"name"`
	Purity string `yaml:"purity"`
	Type   string `yaml:"type"`
}

type externalSpec struct {
	Name  string   `yaml:"name"`
	Type  string   `yaml:"type"`
	Ref   string   `yaml:"ref"`
	Ts    []string `yaml:"ts"`
	Entry bool     `yaml:"entry"`
}

type blockSpec struct {
	Name   string     `yaml:"name"`
	Type   string     `yaml:"type"`
	Params []string   `yaml:"params"`
	Code   []stepSpec `yaml:"code"`
	Entry  bool       `yaml:"entry"`
}

type closureSpec struct {
	Name   string   `yaml:"name"`
	Type   string   `yaml:"type"`
	Stored []string `yaml:"stored"`
	Args   []string `yaml:"args"`
	Tail   tailSpec `yaml:"tail"`
	Entry  bool     `yaml:"entry"`
}

type topSpec struct {
	Names []string `yaml:"names"`
	Types []string `yaml:"types"`
	Tail  tailSpec `yaml:"tail"`
	Entry bool     `yaml:"entry"`
}

type tailSpec struct {
	Return *[]string `yaml:"return"`
	Call   string    `yaml:"call"`
	Prim   string    `yaml:"prim"`
	Alloc  string    `yaml:"alloc"`
	Data   string    `yaml:"data"`
	Enter  string    `yaml:"enter"`
	Sel    string    `yaml:"sel"`
	Field  int       `yaml:"field"`
	Args   []string  `yaml:"args"`
}

type callSpec struct {
	Call string   `yaml:"call"`
	Args []string `yaml:"args"`
}

type altSpec struct {
	Cfun string   `yaml:"cfun"`
	Call string   `yaml:"call"`
	Args []string `yaml:"args"`
}

type stepSpec struct {
	Bind     []string `yaml:"bind"`
	tailSpec `yaml:",inline"`
	If       string    `yaml:"if"`
	Then     *callSpec `yaml:"then"`
	Else     *callSpec `yaml:"else"`
	Case     string    `yaml:"case"`
	Alts     []altSpec `yaml:"alts"`
	Default  *callSpec `yaml:"default"`
}

type item[T any] struct {
	spec T
	pos  diag.Position
}

type loader struct {
	ctx  *mil.Context
	file string
	prog *mil.Program

	data      []item[dataSpec]
	prims     []item[primSpec]
	externals []item[externalSpec]
	blocks    []item[blockSpec]
	closures  []item[closureSpec]
	tops      []item[topSpec]
}

// Load reads a program from a YAML file.
func Load(ctx *mil.Context, path string) (*mil.Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(ctx, path, data)
}

// Parse reads a program from YAML source. User primitives are added to the
// context's registry.
func Parse(ctx *mil.Context, file string, src []byte) (*mil.Program, error) {
	l := &loader{ctx: ctx, file: file, prog: mil.NewProgram(types.NewEnv())}
	var root yaml.Node
	if err := yaml.Unmarshal(src, &root); err != nil {
		return nil, diag.Errorf(diag.Position{File: file}, diag.LoadError, "%v", err)
	}
	if err := l.collect(&root); err != nil {
		return nil, err
	}
	if err := l.build(); err != nil {
		return nil, err
	}
	ctx.Log.Debug("loaded program", "file", file, "defns", len(l.prog.Defns), "entries", len(l.prog.Entries))
	return l.prog, nil
}

func (l *loader) pos(n *yaml.Node) diag.Position {
	return diag.Position{File: l.file, Line: n.Line, Col: n.Column}
}

func (l *loader) errorf(pos diag.Position, format string, args ...any) error {
	return diag.Errorf(pos, diag.LoadError, format, args...)
}

func decodeItems[T any](l *loader, seq *yaml.Node) ([]item[T], error) {
	if seq.Kind != yaml.SequenceNode {
		return nil, l.errorf(l.pos(seq), "expected a list")
	}
	items := make([]item[T], 0, len(seq.Content))
	for _, n := range seq.Content {
		var spec T
		if err := n.Decode(&spec); err != nil {
			return nil, l.errorf(l.pos(n), "%v", err)
		}
		items = append(items, item[T]{spec: spec, pos: l.pos(n)})
	}
	return items, nil
}

func (l *loader) collect(root *yaml.Node) error {
	if root.Kind == 0 {
		return nil
	}
	doc := root
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		doc = doc.Content[0]
	}
	if doc.Kind != yaml.MappingNode {
		return l.errorf(l.pos(doc), "expected a mapping at top level")
	}
	var err error
	for i := 0; i+1 < len(doc.Content); i += 2 {
		key, val := doc.Content[i], doc.Content[i+1]
		switch key.Value {
		case "types":
			l.data, err = decodeItems[dataSpec](l, val)
		case "prims":
			l.prims, err = decodeItems[primSpec](l, val)
		case "externals":
			l.externals, err = decodeItems[externalSpec](l, val)
		case "blocks":
			l.blocks, err = decodeItems[blockSpec](l, val)
		case "closures":
			l.closures, err = decodeItems[closureSpec](l, val)
		case "tops":
			l.tops, err = decodeItems[topSpec](l, val)
		default:
			err = l.errorf(l.pos(key), "unknown section %q", key.Value)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (l *loader) build() error {
	env := l.prog.Tycons
	// register every type before reading fields so types may be recursive
	tycons := make([]*types.Tycon, len(l.data))
	for i, it := range l.data {
		tycons[i] = types.NewDataType(it.spec.Name, kinds(len(it.spec.Params))...)
		if err := env.AddTycon(tycons[i]); err != nil {
			return diag.Errorf(it.pos, diag.StructuralError, "%v", err)
		}
	}
	for i, it := range l.data {
		for _, cf := range it.spec.Cfuns {
			fields := make([]types.Type, len(cf.Fields))
			for j, f := range cf.Fields {
				t, err := parseField(env, f, it.spec.Params)
				if err != nil {
					return l.errorf(it.pos, "constructor %s: %v", cf.Name, err)
				}
				fields[j] = t
			}
			if _, err := env.DefineCfun(tycons[i], cf.Name, fields...); err != nil {
				return diag.Errorf(it.pos, diag.StructuralError, "%v", err)
			}
		}
	}
	for _, it := range l.prims {
		if err := l.definePrim(it); err != nil {
			return err
		}
	}

	blocks := make([]*mil.Block, len(l.blocks))
	for i, it := range l.blocks {
		b := mil.NewBlock(it.spec.Name, it.pos, nil, nil)
		if it.spec.Type != "" {
			bt, err := ParseBlockType(env, it.spec.Type)
			if err != nil {
				return l.errorf(it.pos, "type of %s: %v", it.spec.Name, err)
			}
			b.Declared = bt
		}
		if err := l.define(b, it.spec.Entry); err != nil {
			return err
		}
		blocks[i] = b
	}
	closures := make([]*mil.ClosureDefn, len(l.closures))
	for i, it := range l.closures {
		k := mil.NewClosureDefn(it.spec.Name, it.pos, nil, nil, nil)
		if it.spec.Type != "" {
			at, err := ParseAllocType(env, it.spec.Type)
			if err != nil {
				return l.errorf(it.pos, "type of %s: %v", it.spec.Name, err)
			}
			k.Declared = at
		}
		if err := l.define(k, it.spec.Entry); err != nil {
			return err
		}
		closures[i] = k
	}
	tops := make([]*mil.TopLevel, len(l.tops))
	for i, it := range l.tops {
		if len(it.spec.Types) > 0 && len(it.spec.Types) != len(it.spec.Names) {
			return l.errorf(it.pos, "top-level %v: %d names but %d types", it.spec.Names, len(it.spec.Names), len(it.spec.Types))
		}
		lhs := make([]mil.TopLhs, len(it.spec.Names))
		for j, n := range it.spec.Names {
			lhs[j].Name = n
			if len(it.spec.Types) > 0 {
				s, err := ParseScheme(env, it.spec.Types[j])
				if err != nil {
					return l.errorf(it.pos, "type of %s: %v", n, err)
				}
				lhs[j].Declared = s
			}
		}
		t := mil.NewTopLevel(it.pos, lhs, nil)
		if err := l.define(t, it.spec.Entry); err != nil {
			return err
		}
		tops[i] = t
	}
	for _, it := range l.externals {
		s, ts, err := ParseExternalType(env, it.spec.Type, it.spec.Ts)
		if err != nil {
			return l.errorf(it.pos, "type of %s: %v", it.spec.Name, err)
		}
		if err := l.define(mil.NewExternal(it.spec.Name, it.pos, s, it.spec.Ref, ts), it.spec.Entry); err != nil {
			return err
		}
	}

	for i, it := range l.blocks {
		sc := newScope()
		blocks[i].Params = sc.bindAll(it.spec.Params)
		body, err := l.code(sc, it.spec.Code, it.pos)
		if err != nil {
			return err
		}
		blocks[i].Body = body
	}
	for i, it := range l.closures {
		sc := newScope()
		closures[i].Params = sc.bindAll(it.spec.Stored)
		closures[i].Args = sc.bindAll(it.spec.Args)
		t, err := l.tail(sc, it.spec.Tail, it.pos)
		if err != nil {
			return err
		}
		closures[i].Tail = t
	}
	for i, it := range l.tops {
		t, err := l.tail(newScope(), it.spec.Tail, it.pos)
		if err != nil {
			return err
		}
		tops[i].Tail = t
	}
	return nil
}

func kinds(n int) []types.Kind {
	if n == 0 {
		return nil
	}
	ks := make([]types.Kind, n)
	for i := range ks {
		ks[i] = types.KStar
	}
	return ks
}

func (l *loader) definePrim(it item[primSpec]) error {
	bt, err := ParseBlockType(l.prog.Tycons, it.spec.Type)
	if err != nil {
		return l.errorf(it.pos, "type of primitive %s: %v", it.spec.Name, err)
	}
	purity := mil.Impure
	if it.spec.Purity != "" {
		if purity, err = mil.ParsePurity(it.spec.Purity); err != nil {
			return l.errorf(it.pos, "%v", err)
		}
	}
	if err := l.ctx.Prims.Add(&mil.Prim{Name: it.spec.Name, Purity: purity, Type: bt, Op: mil.OpUser}); err != nil {
		return diag.Errorf(it.pos, diag.StructuralError, "%v", err)
	}
	return nil
}

func (l *loader) define(d mil.Defn, entry bool) error {
	id, err := l.prog.Define(d)
	if err != nil {
		return err
	}
	if entry {
		l.prog.AddEntry(id)
	}
	return nil
}

// scope maps source names to temporaries. Later bindings shadow earlier ones.
type scope struct {
	temps map[string]*mil.Temp
}

func newScope() *scope {
	return &scope{temps: make(map[string]*mil.Temp)}
}

func (s *scope) bindAll(names []string) []*mil.Temp {
	ts := make([]*mil.Temp, len(names))
	for i, n := range names {
		ts[i] = mil.NewTemp(nil)
		s.temps[n] = ts[i]
	}
	return ts
}

func (l *loader) atom(sc *scope, name string, pos diag.Position) (mil.Atom, error) {
	if t, ok := sc.temps[name]; ok {
		return t, nil
	}
	switch name {
	case "true":
		return mil.Flag{Val: true}, nil
	case "false":
		return mil.Flag{Val: false}, nil
	}
	if v, err := strconv.ParseInt(name, 0, 64); err == nil {
		return mil.Word{Val: v}, nil
	}
	if id, ok := l.prog.Lookup(name); ok {
		switch d := l.prog.Defn(id).(type) {
		case *mil.TopLevel:
			for i, lhs := range d.Lhs {
				if lhs.Name == name {
					return &mil.TopRef{Defn: id, Index: i}, nil
				}
			}
		case *mil.External:
			return &mil.TopRef{Defn: id}, nil
		}
		return nil, l.errorf(pos, "%s is not a value", name)
	}
	return nil, l.errorf(pos, "undefined name %s", name)
}

func (l *loader) atoms(sc *scope, names []string, pos diag.Position) ([]mil.Atom, error) {
	as := make([]mil.Atom, len(names))
	for i, n := range names {
		a, err := l.atom(sc, n, pos)
		if err != nil {
			return nil, err
		}
		as[i] = a
	}
	return as, nil
}

func (l *loader) defnRef(name string, pos diag.Position) (mil.DefnID, error) {
	id, ok := l.prog.Lookup(name)
	if !ok {
		return mil.NoDefn, l.errorf(pos, "undefined definition %s", name)
	}
	return id, nil
}

func (l *loader) blockCall(sc *scope, c *callSpec, pos diag.Position) (*mil.BlockCall, error) {
	if c == nil {
		return nil, l.errorf(pos, "missing block call")
	}
	id, err := l.defnRef(c.Call, pos)
	if err != nil {
		return nil, err
	}
	if _, ok := l.prog.Defn(id).(*mil.Block); !ok {
		return nil, l.errorf(pos, "%s is not a block", c.Call)
	}
	args, err := l.atoms(sc, c.Args, pos)
	if err != nil {
		return nil, err
	}
	return &mil.BlockCall{Block: id, Args: args}, nil
}

func (l *loader) cfun(name string, pos diag.Position) (*types.Cfun, error) {
	cf, ok := l.prog.Tycons.Cfun(name)
	if !ok {
		return nil, l.errorf(pos, "unknown constructor %s", name)
	}
	return cf, nil
}

func (l *loader) tail(sc *scope, t tailSpec, pos diag.Position) (mil.Tail, error) {
	args, err := l.atoms(sc, t.Args, pos)
	if err != nil {
		return nil, err
	}
	switch {
	case t.Return != nil:
		as, err := l.atoms(sc, *t.Return, pos)
		if err != nil {
			return nil, err
		}
		return &mil.Return{Args: as}, nil
	case t.Call != "":
		return l.blockCall(sc, &callSpec{Call: t.Call, Args: t.Args}, pos)
	case t.Prim != "":
		p, ok := l.ctx.Prims.Lookup(t.Prim)
		if !ok {
			return nil, l.errorf(pos, "unknown primitive %s", t.Prim)
		}
		return &mil.PrimCall{Prim: p, Args: args}, nil
	case t.Alloc != "":
		id, err := l.defnRef(t.Alloc, pos)
		if err != nil {
			return nil, err
		}
		if _, ok := l.prog.Defn(id).(*mil.ClosureDefn); !ok {
			return nil, l.errorf(pos, "%s is not a closure definition", t.Alloc)
		}
		return &mil.ClosAlloc{Closure: id, Args: args}, nil
	case t.Data != "":
		cf, err := l.cfun(t.Data, pos)
		if err != nil {
			return nil, err
		}
		return &mil.DataAlloc{Cfun: cf, Args: args}, nil
	case t.Enter != "":
		f, err := l.atom(sc, t.Enter, pos)
		if err != nil {
			return nil, err
		}
		return &mil.Enter{Fun: f, Args: args}, nil
	case t.Sel != "":
		cf, err := l.cfun(t.Sel, pos)
		if err != nil {
			return nil, err
		}
		if len(args) != 1 {
			return nil, l.errorf(pos, "selector %s takes one argument", t.Sel)
		}
		return &mil.Sel{Cfun: cf, Field: t.Field, Arg: args[0]}, nil
	}
	return nil, l.errorf(pos, "missing tail")
}

func (l *loader) code(sc *scope, steps []stepSpec, pos diag.Position) (mil.Code, error) {
	if len(steps) == 0 {
		return nil, l.errorf(pos, "empty block body")
	}
	s := steps[0]
	last := len(steps) == 1
	switch {
	case s.If != "":
		if !last {
			return nil, l.errorf(pos, "if must end a block body")
		}
		cond, err := l.atom(sc, s.If, pos)
		if err != nil {
			return nil, err
		}
		t, err := l.blockCall(sc, s.Then, pos)
		if err != nil {
			return nil, err
		}
		f, err := l.blockCall(sc, s.Else, pos)
		if err != nil {
			return nil, err
		}
		return &mil.If{Cond: cond, IfTrue: t, IfFalse: f}, nil
	case s.Case != "":
		if !last {
			return nil, l.errorf(pos, "case must end a block body")
		}
		scrut, err := l.atom(sc, s.Case, pos)
		if err != nil {
			return nil, err
		}
		c := &mil.Case{Scrut: scrut}
		for _, a := range s.Alts {
			cf, err := l.cfun(a.Cfun, pos)
			if err != nil {
				return nil, err
			}
			call, err := l.blockCall(sc, &callSpec{Call: a.Call, Args: a.Args}, pos)
			if err != nil {
				return nil, err
			}
			c.Alts = append(c.Alts, mil.Alt{Cfun: cf, Call: call})
		}
		if s.Default != nil {
			if c.Default, err = l.blockCall(sc, s.Default, pos); err != nil {
				return nil, err
			}
		}
		return c, nil
	}
	t, err := l.tail(sc, s.tailSpec, pos)
	if err != nil {
		return nil, err
	}
	if last {
		if s.Bind != nil {
			return nil, l.errorf(pos, "last step of a block cannot bind %v", s.Bind)
		}
		return &mil.Done{Tail: t}, nil
	}
	vs := sc.bindAll(s.Bind)
	next, err := l.code(sc, steps[1:], pos)
	if err != nil {
		return nil, err
	}
	return &mil.Bind{Vars: vs, Tail: t, Next: next}, nil
}
