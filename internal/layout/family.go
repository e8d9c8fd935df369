package layout

import (
	"l4idl/internal/idl"
)

// Family summarises the flexpage usage of every operation sharing one
// receive buffer.
type Family struct {
	Max    int
	Varies bool
}

// flexpageCount returns the flexpages op transfers in dir and whether the
// count is only known at runtime.
func flexpageCount(op *idl.Operation, dir idl.Direction) (count int, runtime bool, err error) {
	for _, p := range op.Active(dir) {
		if !p.Type.IsFlexpage() {
			continue
		}
		if !IsVariable(p) {
			count += Elements(p)
			continue
		}
		n, bounded := MaxElements(p, 1, 0)
		if !bounded {
			return 0, false, &Error{Kind: ErrUnsupported, Operation: op.Name, Element: p.Name(), Detail: "flexpage array without max_is or constant bound"}
		}
		count += n
		runtime = true
	}
	return count, runtime, nil
}

// FlexpageFamily computes the family over iface's operations, base first. A
// nil interface makes op its own family.
func FlexpageFamily(iface *idl.Interface, op *idl.Operation, dir idl.Direction) (Family, error) {
	ops := []*idl.Operation{op}
	if iface != nil {
		ops = iface.AllOperations()
	}
	var fam Family
	first := true
	prev := 0
	for _, o := range ops {
		n, runtime, err := flexpageCount(o, dir)
		if err != nil {
			return Family{}, err
		}
		if runtime || (!first && n != prev) {
			fam.Varies = true
		}
		fam.Max = max(fam.Max, n)
		prev = n
		first = false
	}
	return fam, nil
}
