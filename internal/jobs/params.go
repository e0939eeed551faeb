package jobs

import (
	"encoding/json"
	"fmt"
	"reflect"
	"sync"
)

// ParamTypes maps names to parameter types so that definitions loaded from
// files can declare a Go type, and stored parameters can be decoded back
// into it.
type ParamTypes struct {
	mu     sync.RWMutex
	byName map[string]reflect.Type
	names  map[reflect.Type]string
}

// NewParamTypes creates an empty registry.
func NewParamTypes() *ParamTypes {
	return &ParamTypes{
		byName: make(map[string]reflect.Type),
		names:  make(map[reflect.Type]string),
	}
}

// RegisterParameters registers T under name and returns its type.
// Registering a name again replaces the earlier type.
func RegisterParameters[T any](r *ParamTypes, name string) reflect.Type {
	t := reflect.TypeOf((*T)(nil)).Elem()
	r.mu.Lock()
	defer r.mu.Unlock()
	if old, ok := r.byName[name]; ok {
		delete(r.names, old)
	}
	r.byName[name] = t
	r.names[t] = name
	return t
}

// Lookup returns the type registered under name.
func (r *ParamTypes) Lookup(name string) (reflect.Type, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.byName[name]
	return t, ok
}

// NameOf returns the name t is registered under.
func (r *ParamTypes) NameOf(t reflect.Type) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	name, ok := r.names[t]
	return name, ok
}

// Spec builds the DefinitionSpec for a registered name. An empty name is a
// spec without parameters.
func (r *ParamTypes) Spec(name string) (DefinitionSpec, error) {
	if name == "" {
		return DefinitionSpec{}, nil
	}
	t, ok := r.Lookup(name)
	if !ok {
		return DefinitionSpec{}, fmt.Errorf("%w: %s", ErrUnknownParametersType, name)
	}
	return DefinitionSpec{Parameters: t, ParametersName: name}, nil
}

// Coerce decodes raw into a value of type t. Values already assignable to
// t are returned unchanged. Raw JSON bytes and the generic maps produced by
// JSON or YAML decoding are re-decoded through encoding/json. A nil t
// returns raw unchanged.
func Coerce(t reflect.Type, raw any) (any, error) {
	if t == nil || raw == nil {
		return raw, nil
	}
	if reflect.TypeOf(raw).AssignableTo(t) {
		return raw, nil
	}

	var data []byte
	switch v := raw.(type) {
	case json.RawMessage:
		data = v
	case []byte:
		data = v
	default:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("%w: encode %T: %v", ErrParametersType, raw, err)
		}
		data = b
	}

	target := reflect.New(t)
	if err := json.Unmarshal(data, target.Interface()); err != nil {
		return nil, fmt.Errorf("%w: decode into %s: %v", ErrParametersType, t, err)
	}
	return target.Elem().Interface(), nil
}

// CheckParameters enforces the definition's parameters type on params.
// The value must be assignable to the declared type: the same type, or an
// implementation when the declared type is an interface. Nothing is
// converted.
func CheckParameters(def *Definition, params any) error {
	want := def.Spec.Parameters
	if want == nil {
		return nil
	}
	if params == nil {
		return fmt.Errorf("%w: %s expects %s", ErrParametersRequired, def.ResourceID, want)
	}
	if got := reflect.TypeOf(params); !got.AssignableTo(want) {
		return fmt.Errorf("%w: %s expects %s, got %s", ErrParametersType, def.ResourceID, want, got)
	}
	return nil
}
