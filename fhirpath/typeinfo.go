package fhirpath

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// TypeInfo is the reflection value type() returns: a description of a
// value's runtime type rich enough to drive is/as/ofType resolution.
type TypeInfo interface {
	Element
	QualifiedName() (TypeSpecifier, bool)
	BaseTypeName() (TypeSpecifier, bool)
}

// TypeSpecifier names a type, optionally namespace-qualified
// (`System.Boolean`, `FHIR.Patient`, or just `Patient` when unqualified).
type TypeSpecifier struct {
	Namespace string
	Name      string
}

func (t TypeSpecifier) String() string {
	if t.Namespace == "" {
		return t.Name
	}
	return t.Namespace + "." + t.Name
}

// ParseTypeSpecifier splits a possibly-qualified type name string.
func ParseTypeSpecifier(s string) TypeSpecifier {
	if i := strings.LastIndex(s, "."); i >= 0 {
		return TypeSpecifier{Namespace: s[:i], Name: s[i+1:]}
	}
	return TypeSpecifier{Name: s}
}

// SimpleTypeInfo describes a primitive or resource-model scalar type with
// no declared structure of its own.
type SimpleTypeInfo struct {
	Namespace string
	Name      string
	BaseType  TypeSpecifier
}

func (t SimpleTypeInfo) Children(name ...string) Collection { return nil }

func (t SimpleTypeInfo) QualifiedName() (TypeSpecifier, bool) {
	return TypeSpecifier{Namespace: t.Namespace, Name: t.Name}, true
}

func (t SimpleTypeInfo) BaseTypeName() (TypeSpecifier, bool) {
	if t.BaseType.Name == "" {
		return TypeSpecifier{}, false
	}
	return t.BaseType, true
}

func (t SimpleTypeInfo) String() string {
	qn, _ := t.QualifiedName()
	return qn.String()
}

func (t SimpleTypeInfo) MarshalJSON() ([]byte, error) {
	return marshalString(t.String())
}

func (t SimpleTypeInfo) ToBoolean(bool) (Boolean, bool, error)       { return false, false, conversionError[SimpleTypeInfo, Boolean]() }
func (t SimpleTypeInfo) ToString(bool) (String, bool, error)         { return String(t.String()), true, nil }
func (t SimpleTypeInfo) ToInteger(bool) (Integer, bool, error)       { return 0, false, conversionError[SimpleTypeInfo, Integer]() }
func (t SimpleTypeInfo) ToLong(bool) (Long, bool, error)             { return 0, false, conversionError[SimpleTypeInfo, Long]() }
func (t SimpleTypeInfo) ToDecimal(bool) (Decimal, bool, error)       { return Decimal{}, false, conversionError[SimpleTypeInfo, Decimal]() }
func (t SimpleTypeInfo) ToDate(bool) (Date, bool, error)             { return Date{}, false, conversionError[SimpleTypeInfo, Date]() }
func (t SimpleTypeInfo) ToTime(bool) (Time, bool, error)             { return Time{}, false, conversionError[SimpleTypeInfo, Time]() }
func (t SimpleTypeInfo) ToDateTime(bool) (DateTime, bool, error)     { return DateTime{}, false, conversionError[SimpleTypeInfo, DateTime]() }
func (t SimpleTypeInfo) ToQuantity(bool) (Quantity, bool, error)     { return Quantity{}, false, conversionError[SimpleTypeInfo, Quantity]() }

func (t SimpleTypeInfo) Equal(other Element) (bool, bool) {
	o, ok := other.(SimpleTypeInfo)
	if !ok {
		return false, true
	}
	return t.Namespace == o.Namespace && t.Name == o.Name, true
}

func (t SimpleTypeInfo) Equivalent(other Element) bool {
	eq, ok := t.Equal(other)
	return ok && eq
}

func (t SimpleTypeInfo) TypeInfo() TypeInfo {
	return SimpleTypeInfo{Namespace: "System", Name: "SimpleTypeInfo"}
}

// ClassInfoElement describes one declared property of a ClassInfo type.
type ClassInfoElement struct {
	Name    string
	Type    TypeSpecifier
	IsOneBased bool
}

// ClassInfo describes a structured (resource-model) type with named,
// typed properties, the shape host-registered types use.
type ClassInfo struct {
	Namespace string
	Name      string
	BaseType  TypeSpecifier
	Elements  []ClassInfoElement
}

func (t ClassInfo) Children(name ...string) Collection { return nil }

func (t ClassInfo) QualifiedName() (TypeSpecifier, bool) {
	return TypeSpecifier{Namespace: t.Namespace, Name: t.Name}, true
}

func (t ClassInfo) BaseTypeName() (TypeSpecifier, bool) {
	if t.BaseType.Name == "" {
		return TypeSpecifier{}, false
	}
	return t.BaseType, true
}

func (t ClassInfo) String() string {
	qn, _ := t.QualifiedName()
	return qn.String()
}

func (t ClassInfo) MarshalJSON() ([]byte, error) { return marshalString(t.String()) }

func (t ClassInfo) ToBoolean(bool) (Boolean, bool, error)   { return false, false, conversionError[ClassInfo, Boolean]() }
func (t ClassInfo) ToString(bool) (String, bool, error)     { return String(t.String()), true, nil }
func (t ClassInfo) ToInteger(bool) (Integer, bool, error)   { return 0, false, conversionError[ClassInfo, Integer]() }
func (t ClassInfo) ToLong(bool) (Long, bool, error)         { return 0, false, conversionError[ClassInfo, Long]() }
func (t ClassInfo) ToDecimal(bool) (Decimal, bool, error)   { return Decimal{}, false, conversionError[ClassInfo, Decimal]() }
func (t ClassInfo) ToDate(bool) (Date, bool, error)         { return Date{}, false, conversionError[ClassInfo, Date]() }
func (t ClassInfo) ToTime(bool) (Time, bool, error)         { return Time{}, false, conversionError[ClassInfo, Time]() }
func (t ClassInfo) ToDateTime(bool) (DateTime, bool, error) { return DateTime{}, false, conversionError[ClassInfo, DateTime]() }
func (t ClassInfo) ToQuantity(bool) (Quantity, bool, error) { return Quantity{}, false, conversionError[ClassInfo, Quantity]() }

func (t ClassInfo) Equal(other Element) (bool, bool) {
	o, ok := other.(ClassInfo)
	if !ok {
		return false, true
	}
	return t.Namespace == o.Namespace && t.Name == o.Name, true
}

func (t ClassInfo) Equivalent(other Element) bool {
	eq, ok := t.Equal(other)
	return ok && eq
}

func (t ClassInfo) TypeInfo() TypeInfo {
	return SimpleTypeInfo{Namespace: "System", Name: "ClassInfo"}
}

// ListTypeInfo describes the declared element type of a list-valued
// property (`List<FHIR.string>`). type() does not produce one: it returns
// each element's own TypeInfo, whatever the collection's length.
type ListTypeInfo struct {
	ElementType TypeSpecifier
}

func (t ListTypeInfo) Children(name ...string) Collection { return nil }
func (t ListTypeInfo) QualifiedName() (TypeSpecifier, bool) {
	return TypeSpecifier{}, false
}
func (t ListTypeInfo) BaseTypeName() (TypeSpecifier, bool) { return TypeSpecifier{}, false }
func (t ListTypeInfo) String() string                      { return fmt.Sprintf("List<%s>", t.ElementType) }
func (t ListTypeInfo) MarshalJSON() ([]byte, error)        { return marshalString(t.String()) }

func (t ListTypeInfo) ToBoolean(bool) (Boolean, bool, error)   { return false, false, conversionError[ListTypeInfo, Boolean]() }
func (t ListTypeInfo) ToString(bool) (String, bool, error)     { return String(t.String()), true, nil }
func (t ListTypeInfo) ToInteger(bool) (Integer, bool, error)   { return 0, false, conversionError[ListTypeInfo, Integer]() }
func (t ListTypeInfo) ToLong(bool) (Long, bool, error)         { return 0, false, conversionError[ListTypeInfo, Long]() }
func (t ListTypeInfo) ToDecimal(bool) (Decimal, bool, error)   { return Decimal{}, false, conversionError[ListTypeInfo, Decimal]() }
func (t ListTypeInfo) ToDate(bool) (Date, bool, error)         { return Date{}, false, conversionError[ListTypeInfo, Date]() }
func (t ListTypeInfo) ToTime(bool) (Time, bool, error)         { return Time{}, false, conversionError[ListTypeInfo, Time]() }
func (t ListTypeInfo) ToDateTime(bool) (DateTime, bool, error) { return DateTime{}, false, conversionError[ListTypeInfo, DateTime]() }
func (t ListTypeInfo) ToQuantity(bool) (Quantity, bool, error) { return Quantity{}, false, conversionError[ListTypeInfo, Quantity]() }

func (t ListTypeInfo) Equal(other Element) (bool, bool) {
	o, ok := other.(ListTypeInfo)
	if !ok {
		return false, true
	}
	return t.ElementType == o.ElementType, true
}
func (t ListTypeInfo) Equivalent(other Element) bool {
	eq, ok := t.Equal(other)
	return ok && eq
}
func (t ListTypeInfo) TypeInfo() TypeInfo {
	return SimpleTypeInfo{Namespace: "System", Name: "ListTypeInfo"}
}

// TupleTypeInfoElement describes one named slot of a TupleTypeInfo.
type TupleTypeInfoElement struct {
	Name     string
	Type     TypeSpecifier
	IsOneBased bool
}

// TupleTypeInfo describes an anonymous structured value, as produced by
// `%context` bindings or object-shaped external constants.
type TupleTypeInfo struct {
	Elements []TupleTypeInfoElement
}

func (t TupleTypeInfo) Children(name ...string) Collection { return nil }
func (t TupleTypeInfo) QualifiedName() (TypeSpecifier, bool) {
	return TypeSpecifier{}, false
}
func (t TupleTypeInfo) BaseTypeName() (TypeSpecifier, bool) { return TypeSpecifier{}, false }
func (t TupleTypeInfo) String() string {
	parts := make([]string, len(t.Elements))
	for i, e := range t.Elements {
		parts[i] = fmt.Sprintf("%s: %s", e.Name, e.Type)
	}
	return "Tuple{" + strings.Join(parts, ", ") + "}"
}
func (t TupleTypeInfo) MarshalJSON() ([]byte, error) { return marshalString(t.String()) }

func (t TupleTypeInfo) ToBoolean(bool) (Boolean, bool, error)   { return false, false, conversionError[TupleTypeInfo, Boolean]() }
func (t TupleTypeInfo) ToString(bool) (String, bool, error)     { return String(t.String()), true, nil }
func (t TupleTypeInfo) ToInteger(bool) (Integer, bool, error)   { return 0, false, conversionError[TupleTypeInfo, Integer]() }
func (t TupleTypeInfo) ToLong(bool) (Long, bool, error)         { return 0, false, conversionError[TupleTypeInfo, Long]() }
func (t TupleTypeInfo) ToDecimal(bool) (Decimal, bool, error)   { return Decimal{}, false, conversionError[TupleTypeInfo, Decimal]() }
func (t TupleTypeInfo) ToDate(bool) (Date, bool, error)         { return Date{}, false, conversionError[TupleTypeInfo, Date]() }
func (t TupleTypeInfo) ToTime(bool) (Time, bool, error)         { return Time{}, false, conversionError[TupleTypeInfo, Time]() }
func (t TupleTypeInfo) ToDateTime(bool) (DateTime, bool, error) { return DateTime{}, false, conversionError[TupleTypeInfo, DateTime]() }
func (t TupleTypeInfo) ToQuantity(bool) (Quantity, bool, error) { return Quantity{}, false, conversionError[TupleTypeInfo, Quantity]() }

func (t TupleTypeInfo) Equal(other Element) (bool, bool) {
	o, ok := other.(TupleTypeInfo)
	if !ok {
		return false, true
	}
	if len(t.Elements) != len(o.Elements) {
		return false, true
	}
	for i := range t.Elements {
		if t.Elements[i] != o.Elements[i] {
			return false, true
		}
	}
	return true, true
}
func (t TupleTypeInfo) Equivalent(other Element) bool {
	eq, ok := t.Equal(other)
	return ok && eq
}
func (t TupleTypeInfo) TypeInfo() TypeInfo {
	return SimpleTypeInfo{Namespace: "System", Name: "TupleTypeInfo"}
}

func marshalString(s string) ([]byte, error) {
	b := make([]byte, 0, len(s)+2)
	b = append(b, '"')
	b = append(b, []byte(s)...)
	b = append(b, '"')
	return b, nil
}

// systemTypes is the closed set of System.* primitive types registered by
// this module itself. A host extends this set via WithTypes rather than by
// modifying it, since it describes only this module's own value kinds.
var systemTypes = sync.OnceValue(func() map[TypeSpecifier]TypeInfo {
	mk := func(name string, base string) TypeInfo {
		bt := TypeSpecifier{}
		if base != "" {
			bt = TypeSpecifier{Namespace: "System", Name: base}
		}
		return SimpleTypeInfo{Namespace: "System", Name: name, BaseType: bt}
	}
	types := map[TypeSpecifier]TypeInfo{}
	for _, ti := range []TypeInfo{
		mk("Any", ""),
		mk("Boolean", "Any"),
		mk("String", "Any"),
		mk("Integer", "Any"),
		mk("Long", "Any"),
		mk("Decimal", "Any"),
		mk("Date", "Any"),
		mk("Time", "Any"),
		mk("DateTime", "Any"),
		mk("Quantity", "Any"),
	} {
		qn, _ := ti.QualifiedName()
		types[qn] = ti
	}
	return types
})

// resolveType looks up a type by (possibly unqualified) name, checking
// host-registered types first and falling back to the System.* registry
// with the context's default namespace.
func resolveType(ctx context.Context, spec TypeSpecifier) (TypeInfo, bool) {
	if spec.Namespace != "" {
		if ti, ok := knownTypesOf(ctx)[spec]; ok {
			return ti, true
		}
		if spec.Namespace == "System" {
			if ti, ok := systemTypes()[spec]; ok {
				return ti, true
			}
		}
		return nil, false
	}
	qualified := TypeSpecifier{Namespace: namespaceOf(ctx), Name: spec.Name}
	if ti, ok := knownTypesOf(ctx)[qualified]; ok {
		return ti, true
	}
	sysQualified := TypeSpecifier{Namespace: "System", Name: spec.Name}
	if ti, ok := systemTypes()[sysQualified]; ok {
		return ti, true
	}
	if ti, ok := knownTypesOf(ctx)[TypeSpecifier{Name: spec.Name}]; ok {
		return ti, true
	}
	return nil, false
}

// subTypeOf reports whether sub names the same type as base, or a type
// whose BaseTypeName chain eventually reaches base.
func subTypeOf(ctx context.Context, sub, base TypeInfo) bool {
	for {
		subQN, ok := sub.QualifiedName()
		if !ok {
			return false
		}
		baseQN, ok := base.QualifiedName()
		if ok && subQN == baseQN {
			return true
		}
		parentSpec, ok := sub.BaseTypeName()
		if !ok {
			return false
		}
		parent, ok := resolveType(ctx, parentSpec)
		if !ok {
			return false
		}
		sub = parent
	}
}

// isType reports whether v's runtime type is spec or a subtype of it.
func isType(ctx context.Context, v Element, spec TypeSpecifier) bool {
	target, ok := resolveType(ctx, spec)
	if !ok {
		return false
	}
	return subTypeOf(ctx, v.TypeInfo(), target)
}
