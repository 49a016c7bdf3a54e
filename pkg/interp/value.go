package interp

import (
	"fmt"
	"strings"

	"github.com/bgins/mil-tools/pkg/mil"
	"github.com/bgins/mil-tools/pkg/types"
)

// ValueKind tags a Value.
type ValueKind int

const (
	KindWord ValueKind = iota
	KindFlag
	KindClosure
	KindData
)

// Value is a runtime value. Closures carry their definition and stored
// values; data values carry their constructor and fields.
type Value struct {
	Kind    ValueKind
	Word    int64
	Flag    bool
	Closure mil.DefnID
	Cfun    *types.Cfun
	Fields  []Value
}

// WordValue makes a word.
func WordValue(w int64) Value { return Value{Kind: KindWord, Word: w} }

// FlagValue makes a flag.
func FlagValue(b bool) Value { return Value{Kind: KindFlag, Flag: b} }

func (v Value) String() string {
	switch v.Kind {
	case KindWord:
		return fmt.Sprintf("%d", v.Word)
	case KindFlag:
		if v.Flag {
			return "true"
		}
		return "false"
	case KindClosure:
		return fmt.Sprintf("<closure %d>", v.Closure)
	case KindData:
		if len(v.Fields) == 0 {
			return v.Cfun.Name
		}
		parts := make([]string, len(v.Fields))
		for i, f := range v.Fields {
			parts[i] = f.String()
		}
		return fmt.Sprintf("%s(%s)", v.Cfun.Name, strings.Join(parts, ", "))
	}
	return "?"
}

// atom converts a word or flag value back to a literal for folding.
func (v Value) atom() (mil.Atom, bool) {
	switch v.Kind {
	case KindWord:
		return mil.Word{Val: v.Word}, true
	case KindFlag:
		return mil.Flag{Val: v.Flag}, true
	}
	return nil, false
}

func fromAtom(a mil.Atom) Value {
	switch x := a.(type) {
	case mil.Word:
		return WordValue(x.Val)
	case mil.Flag:
		return FlagValue(x.Val)
	}
	return Value{}
}

// FormatValues joins values for display.
func FormatValues(vs []Value) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = v.String()
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
