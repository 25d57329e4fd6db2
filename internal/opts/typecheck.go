package opts

import (
	"reflect"
	"unicode"
)

const (
	classNil    = "nil"
	classBool   = "bool"
	classInt    = "int"
	classFloat  = "float"
	classString = "string"
	classList   = "list"
	classTuple  = "tuple"
	classMap    = "map"
	classNode   = "node"
	classAny    = "any"
)

// classOf buckets a value into the coarse type classes the override type
// check compares. All integer kinds share one class, as do all floats.
func classOf(v any) string {
	switch v.(type) {
	case nil:
		return classNil
	case *Node:
		return classNode
	case Tuple:
		return classTuple
	case *Ordered:
		return classMap
	}
	return classOfType(reflect.TypeOf(v))
}

func classOfType(t reflect.Type) string {
	switch t.Kind() {
	case reflect.Bool:
		return classBool
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return classInt
	case reflect.Float32, reflect.Float64:
		return classFloat
	case reflect.String:
		return classString
	case reflect.Slice, reflect.Array:
		return classList
	case reflect.Map:
		return classMap
	case reflect.Interface:
		return classAny
	}
	return t.String()
}

func isListClass(c string) bool {
	return c == classList || c == classTuple
}

// elemClass returns the class of a list's elements: taken from the first
// element when present, otherwise from the static element type.
func elemClass(list any) string {
	rv := reflect.ValueOf(list)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return ""
	}
	if rv.Len() > 0 {
		return classOf(rv.Index(0).Interface())
	}
	return classOfType(rv.Type().Elem())
}

func sameClass(want, got string) bool {
	if want == got || want == classAny {
		return true
	}
	// an int is acceptable wherever a float is expected
	return want == classFloat && got == classInt
}

// compatible reports whether val may replace old under type checking: same
// class, a scalar of a list field's element class, or a list whose elements
// all have the scalar field's class.
func compatible(old, val any) bool {
	oc, vc := classOf(old), classOf(val)
	if oc == classNil {
		return true
	}
	if sameClass(oc, vc) {
		return true
	}
	if isListClass(oc) && isListClass(vc) {
		return true
	}
	if oc == classNode && vc == classMap {
		return true
	}
	if isListClass(oc) && !isListClass(vc) {
		return sameClass(elemClass(old), vc)
	}
	if isListClass(vc) && !isListClass(oc) {
		rv := reflect.ValueOf(val)
		if rv.Len() == 0 {
			return false
		}
		for i := 0; i < rv.Len(); i++ {
			if !sameClass(oc, classOf(rv.Index(i).Interface())) {
				return false
			}
		}
		return true
	}
	return false
}

// delistify unwraps a single-element list offered for a non-list field.
func delistify(old, val any) any {
	if old == nil || isListClass(classOf(old)) {
		return val
	}
	if _, ok := val.(Tuple); ok {
		return val
	}
	rv := reflect.ValueOf(val)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return val
	}
	if rv.Len() != 1 {
		return val
	}
	return rv.Index(0).Interface()
}

// IsReserved reports whether key is skipped by overrides: keys written in
// capitals only (section names such as DEFAULT, constants) are reserved.
func IsReserved(key string) bool {
	hasLetter := false
	for _, r := range key {
		if unicode.IsLower(r) {
			return false
		}
		if unicode.IsLetter(r) {
			hasLetter = true
		}
	}
	return hasLetter
}

// TypeName describes a value's class for error messages.
func TypeName(v any) string {
	c := classOf(v)
	if isListClass(c) {
		if ec := elemClass(v); ec != "" && ec != classAny {
			return c + " of " + ec
		}
	}
	return c
}
