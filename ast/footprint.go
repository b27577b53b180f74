package ast

import "fmt"

// FootprintCache memoizes per-class word counts (spec §3.1). Class
// footprints never change after a class is declared, so one cache instance
// is shared by every stage downstream of analysis.
type FootprintCache struct {
	classes map[string]*ClassDecl
	memo    map[string]int
}

func NewFootprintCache(classes []*ClassDecl) *FootprintCache {
	byName := make(map[string]*ClassDecl, len(classes))
	for _, c := range classes {
		byName[c.Name] = c
	}
	return &FootprintCache{classes: byName, memo: make(map[string]int)}
}

func (fc *FootprintCache) Class(name string) (*ClassDecl, bool) {
	c, ok := fc.classes[name]
	return c, ok
}

// Footprint returns the number of machine words a value of type t occupies.
func (fc *FootprintCache) Footprint(t Type) (int, error) {
	switch v := t.(type) {
	case NumType:
		return 1, nil
	case ArrayType:
		elem, err := fc.Footprint(v.Elem)
		if err != nil {
			return 0, err
		}
		return elem * v.Count, nil
	case ClassType:
		return fc.classFootprint(v.Name)
	default:
		return 0, fmt.Errorf("footprint: unknown type %T", t)
	}
}

func (fc *FootprintCache) classFootprint(name string) (int, error) {
	if f, ok := fc.memo[name]; ok {
		return f, nil
	}

	decl, ok := fc.classes[name]
	if !ok {
		return 0, fmt.Errorf("footprint: undeclared class %q", name)
	}

	total := 0
	for _, field := range decl.Fields {
		mult := field.Multiplicity
		if mult <= 0 {
			mult = 1
		}

		ff, err := fc.Footprint(field.Type)
		if err != nil {
			return 0, err
		}

		total += ff * mult
	}

	fc.memo[name] = total
	return total, nil
}

// FieldOffset returns the word offset of field fieldName within class
// className, counting from the start of the class layout, plus its
// footprint. Fields are laid out in declared order (spec §4.3 field
// access lowering).
func (fc *FootprintCache) FieldOffset(className, fieldName string) (offset, footprint int, err error) {
	decl, ok := fc.classes[className]
	if !ok {
		return 0, 0, fmt.Errorf("footprint: undeclared class %q", className)
	}

	acc := 0
	for _, field := range decl.Fields {
		mult := field.Multiplicity
		if mult <= 0 {
			mult = 1
		}

		ff, err := fc.Footprint(field.Type)
		if err != nil {
			return 0, 0, err
		}

		fieldFootprint := ff * mult
		if field.Name == fieldName {
			return acc, fieldFootprint, nil
		}

		acc += fieldFootprint
	}

	return 0, 0, fmt.Errorf("footprint: class %q has no field %q", className, fieldName)
}
