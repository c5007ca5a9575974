package style

import "fmt"

// Sheet is a set of named style classes. A class may extend another class;
// extension chains are resolved parent first.
type Sheet struct {
	classes map[string]*Style
	extends map[string]string
}

func NewSheet() *Sheet {
	return &Sheet{
		classes: make(map[string]*Style),
		extends: make(map[string]string),
	}
}

// Define registers (or replaces) a class. parent may be empty.
func (sh *Sheet) Define(name, parent string, s *Style) {
	sh.classes[name] = s.Clone()
	if parent != "" {
		sh.extends[name] = parent
	} else {
		delete(sh.extends, name)
	}
}

// Has reports whether the class is defined.
func (sh *Sheet) Has(name string) bool {
	_, ok := sh.classes[name]
	return ok
}

// Compute returns the cascaded raw style: the classes in order (each after
// its own extension chain), then the inline properties. Unknown classes and
// extension cycles are errors; this is the only place where style input is
// rejected, since class references are structural, not values.
func (sh *Sheet) Compute(classes []string, inline *Style) (*Style, error) {
	final := NewStyle()
	for _, name := range classes {
		if err := sh.apply(final, name, map[string]bool{}); err != nil {
			return nil, err
		}
	}
	final.Merge(inline)
	return final, nil
}

func (sh *Sheet) apply(dst *Style, name string, visiting map[string]bool) error {
	s, ok := sh.classes[name]
	if !ok {
		return fmt.Errorf("unknown style class %q", name)
	}
	if visiting[name] {
		return fmt.Errorf("style class %q extends itself", name)
	}
	visiting[name] = true
	if parent, ok := sh.extends[name]; ok {
		if err := sh.apply(dst, parent, visiting); err != nil {
			return err
		}
	}
	dst.Merge(s)
	return nil
}
