// Package residual implements the ten residual-error model objectives:
// additive, proportional, power, and the additive+X combinations, each
// optionally paired with a jointly-estimated Box-Cox / Yeo-Johnson lambda.
// Each model is driven either by Nelder-Mead (gonum.org/v1/gonum/optimize)
// for two or more free parameters, or by a bounded 1-D search for exactly
// one (Nelder-Mead throughout when Options.Type is 1).
package residual

import "fmt"

// Kind enumerates the ten residual-error parameterizations, named after the
// source's res_mod tags (rmAdd ... rmAddPowLam).
type Kind int

const (
	Add Kind = iota
	Prop
	Pow
	AddProp
	AddPow
	AddLam
	PropLam
	PowLam
	AddPropLam
	AddPowLam
)

// combine selects the sigma formula of the add+X models: combined1
// (sigma = a + b*F) or combined2 (sigma = sqrt(a^2 + (b*F)^2)); noCombine
// marks the kinds without an additive+X combination. The source's own
// add+prop reference (_saemAddProp) and its general add+X formula disagree
// on this; combined1 is the unified choice this module makes, treating
// _saemAddProp as authoritative (see DESIGN.md), and every add+X kind in
// the descriptor table below uses it.
type combine int

const (
	noCombine combine = iota
	combined1
	combined2
)

// descriptor records, for one Kind, which of the four scalar parameters
// {a, b, c, lambda} are structurally active and which sigma formula applies.
type descriptor struct {
	hasA, hasB, hasC, hasLambda bool
	combine                     combine
}

var descriptors = map[Kind]descriptor{
	Add:         {hasA: true},
	Prop:        {hasB: true},
	Pow:         {hasB: true, hasC: true},
	AddProp:     {hasA: true, hasB: true, combine: combined1},
	AddPow:      {hasA: true, hasB: true, hasC: true, combine: combined1},
	AddLam:      {hasA: true, hasLambda: true},
	PropLam:     {hasB: true, hasLambda: true},
	PowLam:      {hasB: true, hasC: true, hasLambda: true},
	AddPropLam:  {hasA: true, hasB: true, combine: combined1, hasLambda: true},
	AddPowLam:   {hasA: true, hasB: true, hasC: true, combine: combined1, hasLambda: true},
}

func descriptorFor(k Kind) (descriptor, error) {
	d, ok := descriptors[k]
	if !ok {
		return descriptor{}, fmt.Errorf("residual: unknown kind %d", k)
	}
	return d, nil
}

// String names a Kind the way the source names res_mod entries, for error
// messages and diagnostics.
func (k Kind) String() string {
	switch k {
	case Add:
		return "add"
	case Prop:
		return "prop"
	case Pow:
		return "pow"
	case AddProp:
		return "add+prop"
	case AddPow:
		return "add+pow"
	case AddLam:
		return "add+lam"
	case PropLam:
		return "prop+lam"
	case PowLam:
		return "pow+lam"
	case AddPropLam:
		return "add+prop+lam"
	case AddPowLam:
		return "add+pow+lam"
	default:
		return fmt.Sprintf("residual.Kind(%d)", int(k))
	}
}
