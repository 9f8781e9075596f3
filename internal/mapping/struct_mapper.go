package mapping

import (
	"fmt"
	"reflect"
	"strings"
	"sync"
)

// StructMapper is a reflection-driven Mapping that reads its metadata
// from `session:"..."` struct tags, the way beads reads its sqlite
// column metadata off struct tags rather than hand-written mapping
// tables. Supported tag options, comma-separated:
//
//	pk          marks a primary-key field (composite keys are joined)
//	dependsOn   a *T or []*T field this entity's insert depends on
//	dependents  a *T or []*T field of entities that depend on this one
//
// A StructMapper must have every entity type it will see passed to
// Register before use.
type StructMapper struct {
	mu          sync.Mutex
	descriptors map[reflect.Type]EntityDescriptor
}

// NewStructMapper returns an empty StructMapper.
func NewStructMapper() *StructMapper {
	return &StructMapper{descriptors: make(map[reflect.Type]EntityDescriptor)}
}

// Register associates a Go type (given as a zero value or nil pointer of
// that type) with a table id, returning the resulting descriptor.
func (m *StructMapper) Register(tableID string, zero any) EntityDescriptor {
	t := elemType(reflect.TypeOf(zero))
	d := EntityDescriptor{Type: t, TableID: tableID}
	m.mu.Lock()
	m.descriptors[t] = d
	m.mu.Unlock()
	return d
}

func elemType(t reflect.Type) reflect.Type {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t
}

// EntityOf implements Mapping.
func (m *StructMapper) EntityOf(t reflect.Type, tableID string) (EntityDescriptor, error) {
	t = elemType(t)
	m.mu.Lock()
	d, ok := m.descriptors[t]
	m.mu.Unlock()
	if !ok {
		return EntityDescriptor{}, fmt.Errorf("mapping: type %s is not registered", t)
	}
	if tableID != "" && tableID != d.TableID {
		return EntityDescriptor{}, fmt.Errorf("mapping: type %s is registered as table %q, not %q", t, d.TableID, tableID)
	}
	return d, nil
}

func (m *StructMapper) descriptorFor(t reflect.Type) (EntityDescriptor, bool) {
	t = elemType(t)
	m.mu.Lock()
	d, ok := m.descriptors[t]
	m.mu.Unlock()
	return d, ok
}

// PrimaryKey implements Mapping. A single pk field is returned as its
// native value (so int/string keys work directly with GetByID); a
// composite key is joined into a string.
func (m *StructMapper) PrimaryKey(entity EntityDescriptor, instance any) (any, error) {
	v, err := derefStruct(instance)
	if err != nil {
		return nil, err
	}
	var keys []reflect.Value
	for i := 0; i < v.NumField(); i++ {
		if hasTagOption(v.Type().Field(i), "pk") {
			keys = append(keys, v.Field(i))
		}
	}
	if len(keys) == 0 {
		return nil, fmt.Errorf("mapping: %s has no field tagged session:\"pk\"", entity.Type)
	}
	if len(keys) == 1 {
		return keys[0].Interface(), nil
	}
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = fmt.Sprintf("%v", k.Interface())
	}
	return strings.Join(parts, "\x1f"), nil
}

// Clone implements Mapping. Scalar, slice and map fields are deep
// copied; dependsOn/dependents navigation pointers are shared rather
// than cloned, since the snapshot only needs to detect changes to this
// entity's own data, not to the graph it points into.
func (m *StructMapper) Clone(entity EntityDescriptor, instance any) (any, error) {
	v := reflect.ValueOf(instance)
	if v.Kind() != reflect.Ptr || v.IsNil() {
		return nil, fmt.Errorf("mapping: Clone expects a non-nil pointer, got %T", instance)
	}
	cloned := reflect.New(v.Elem().Type())
	deepCopyValue(cloned.Elem(), v.Elem())
	return cloned.Interface(), nil
}

func deepCopyValue(dst, src reflect.Value) {
	switch src.Kind() {
	case reflect.Struct:
		for i := 0; i < src.NumField(); i++ {
			if !dst.Field(i).CanSet() {
				continue
			}
			deepCopyValue(dst.Field(i), src.Field(i))
		}
	case reflect.Slice:
		if src.IsNil() {
			return
		}
		out := reflect.MakeSlice(src.Type(), src.Len(), src.Len())
		for i := 0; i < src.Len(); i++ {
			deepCopyValue(out.Index(i), src.Index(i))
		}
		dst.Set(out)
	case reflect.Map:
		if src.IsNil() {
			return
		}
		out := reflect.MakeMapWithSize(src.Type(), src.Len())
		iter := src.MapRange()
		for iter.Next() {
			ev := reflect.New(src.Type().Elem()).Elem()
			deepCopyValue(ev, iter.Value())
			out.SetMapIndex(iter.Key(), ev)
		}
		dst.Set(out)
	default:
		// Pointers (including dependsOn/dependents navigation fields)
		// and all remaining kinds are copied by value/reference.
		dst.Set(src)
	}
}

// IsModified implements Mapping by deep-comparing the dereferenced
// structs field by field.
func (m *StructMapper) IsModified(entity EntityDescriptor, current, original any) (bool, error) {
	if original == nil {
		return false, nil
	}
	cv, err := derefStruct(current)
	if err != nil {
		return false, err
	}
	ov, err := derefStruct(original)
	if err != nil {
		return false, err
	}
	return !reflect.DeepEqual(cv.Interface(), ov.Interface()), nil
}

// DependingEntities implements Mapping via fields tagged "dependsOn".
func (m *StructMapper) DependingEntities(entity EntityDescriptor, instance any) ([]Ref, error) {
	return m.refsTagged(instance, "dependsOn")
}

// DependentEntities implements Mapping via fields tagged "dependents".
func (m *StructMapper) DependentEntities(entity EntityDescriptor, instance any) ([]Ref, error) {
	return m.refsTagged(instance, "dependents")
}

func (m *StructMapper) refsTagged(instance any, option string) ([]Ref, error) {
	v, err := derefStruct(instance)
	if err != nil {
		return nil, err
	}
	var refs []Ref
	for i := 0; i < v.NumField(); i++ {
		field := v.Type().Field(i)
		if !hasTagOption(field, option) {
			continue
		}
		fv := v.Field(i)
		switch fv.Kind() {
		case reflect.Ptr:
			if fv.IsNil() {
				continue
			}
			ref, err := m.refFor(fv.Interface())
			if err != nil {
				return nil, err
			}
			refs = append(refs, ref)
		case reflect.Slice:
			for j := 0; j < fv.Len(); j++ {
				el := fv.Index(j)
				if el.Kind() == reflect.Ptr && el.IsNil() {
					continue
				}
				ref, err := m.refFor(el.Interface())
				if err != nil {
					return nil, err
				}
				refs = append(refs, ref)
			}
		}
	}
	return refs, nil
}

func (m *StructMapper) refFor(instance any) (Ref, error) {
	d, ok := m.descriptorFor(reflect.TypeOf(instance))
	if !ok {
		return Ref{}, fmt.Errorf("mapping: type %T referenced via dependsOn/dependents is not registered", instance)
	}
	return Ref{Entity: d, Instance: instance}, nil
}

// CanEvaluateLocally implements Mapping. StructMapper does not build or
// understand expression trees, so nothing is known to be locally
// evaluable; callers that want local evaluation should special-case it
// before reaching the provider boundary.
func (m *StructMapper) CanEvaluateLocally(expr any) bool {
	return false
}

func derefStruct(instance any) (reflect.Value, error) {
	v := reflect.ValueOf(instance)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return reflect.Value{}, fmt.Errorf("mapping: nil instance")
		}
		v = v.Elem()
	}
	if v.Kind() != reflect.Struct {
		return reflect.Value{}, fmt.Errorf("mapping: expected a struct, got %s", v.Kind())
	}
	return v, nil
}

func hasTagOption(f reflect.StructField, option string) bool {
	tag := f.Tag.Get("session")
	if tag == "" {
		return false
	}
	for _, part := range strings.Split(tag, ",") {
		if strings.TrimSpace(part) == option {
			return true
		}
	}
	return false
}
