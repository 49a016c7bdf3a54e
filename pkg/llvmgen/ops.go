package llvmgen

import (
	"github.com/bgins/mil-tools/pkg/diag"
	"github.com/bgins/mil-tools/pkg/rtl"
	"github.com/llir/llvm/ir"
	"github.com/llir/llvm/ir/constant"
	"github.com/llir/llvm/ir/enum"
	"github.com/llir/llvm/ir/value"
)

// operation computes op(args) as a word.
func (fg *funcGen) operation(b *ir.Block, op rtl.Operation, args []value.Value) value.Value {
	switch o := op.(type) {
	case rtl.Omove:
		return args[0]
	case rtl.Ointconst:
		return fg.word(o.Value)
	case rtl.Oaddrsymbol:
		var sym value.Value
		if f, ok := fg.g.funcs[o.Symbol]; ok {
			sym = f
		} else {
			sym = fg.g.global(o.Symbol)
		}
		addr := value.Value(b.NewPtrToInt(sym, fg.g.word))
		if o.Offset != 0 {
			addr = b.NewAdd(addr, fg.word(o.Offset))
		}
		return addr
	case rtl.Oadd:
		return b.NewAdd(args[0], args[1])
	case rtl.Oaddimm:
		return b.NewAdd(args[0], fg.word(o.N))
	case rtl.Oneg:
		return b.NewSub(fg.word(0), args[0])
	case rtl.Osub:
		return b.NewSub(args[0], args[1])
	case rtl.Omul:
		return b.NewMul(args[0], args[1])
	case rtl.Odiv:
		return b.NewSDiv(args[0], args[1])
	case rtl.Omod:
		return b.NewSRem(args[0], args[1])
	case rtl.Oand:
		return b.NewAnd(args[0], args[1])
	case rtl.Oor:
		return b.NewOr(args[0], args[1])
	case rtl.Oxor:
		return b.NewXor(args[0], args[1])
	case rtl.Oxorimm:
		return b.NewXor(args[0], fg.word(o.N))
	case rtl.Onot:
		return b.NewXor(args[0], fg.word(-1))
	case rtl.Oshl:
		return b.NewShl(args[0], fg.shiftAmount(b, args[1]))
	case rtl.Oshr:
		return b.NewAShr(args[0], fg.shiftAmount(b, args[1]))
	case rtl.Oshru:
		return b.NewLShr(args[0], fg.shiftAmount(b, args[1]))
	case rtl.Ocmp:
		return b.NewZExt(b.NewICmp(signedPred(o.Cond), args[0], args[1]), fg.g.word)
	case rtl.Ocmpu:
		return b.NewZExt(b.NewICmp(unsignedPred(o.Cond), args[0], args[1]), fg.g.word)
	}
	diag.Internal("unexpected operation %T", op)
	return nil
}

// shiftAmount masks a shift count to the word size, so that oversized
// shifts wrap instead of producing poison.
func (fg *funcGen) shiftAmount(b *ir.Block, v value.Value) value.Value {
	return b.NewAnd(v, fg.word(int64(fg.g.word.BitSize-1)))
}

// condition computes an i1 branch condition.
func (fg *funcGen) condition(b *ir.Block, cc rtl.ConditionCode, args []rtl.Reg) value.Value {
	switch c := cc.(type) {
	case rtl.Ccomp:
		return b.NewICmp(signedPred(c.Cond), fg.use(b, args[0]), fg.use(b, args[1]))
	case rtl.Ccompu:
		return b.NewICmp(unsignedPred(c.Cond), fg.use(b, args[0]), fg.use(b, args[1]))
	case rtl.Ccompimm:
		return b.NewICmp(signedPred(c.Cond), fg.use(b, args[0]), constant.NewInt(fg.g.word, c.N))
	}
	diag.Internal("unexpected condition %T", cc)
	return nil
}

func signedPred(c rtl.Condition) enum.IPred {
	switch c {
	case rtl.Ceq:
		return enum.IPredEQ
	case rtl.Cne:
		return enum.IPredNE
	case rtl.Clt:
		return enum.IPredSLT
	case rtl.Cle:
		return enum.IPredSLE
	case rtl.Cgt:
		return enum.IPredSGT
	}
	return enum.IPredSGE
}

func unsignedPred(c rtl.Condition) enum.IPred {
	switch c {
	case rtl.Ceq:
		return enum.IPredEQ
	case rtl.Cne:
		return enum.IPredNE
	case rtl.Clt:
		return enum.IPredULT
	case rtl.Cle:
		return enum.IPredULE
	case rtl.Cgt:
		return enum.IPredUGT
	}
	return enum.IPredUGE
}
