// Package param implements the hierarchical parameter-provider interface
// of spec §6 and the (name, unitOp, component, boundState, section)
// parameter-identifier tuple used for reading, setting, and declaring
// sensitivities.
//
// Grounded on mna/value.go's Value/ValueMap get/set-by-id pattern,
// generalized to a named, scope-nested provider. The in-memory
// implementation (MapProvider) is a reference good enough to drive
// tests; no file format is implemented (out of scope per §1).
package param

import "fmt"

// AnySentinel is the "any" wildcard for ParameterID fields.
const AnySentinel = -1

// ParameterID addresses one scalar parameter.
type ParameterID struct {
	Name       string
	UnitOp     int
	Component  int
	BoundState int
	Section    int
}

func (p ParameterID) String() string {
	return fmt.Sprintf("%s[unit=%d,comp=%d,bnd=%d,sec=%d]", p.Name, p.UnitOp, p.Component, p.BoundState, p.Section)
}

// Provider is the external, consumed-only configuration source.
type Provider interface {
	Exists(name string) bool
	GetDouble(name string) (float64, error)
	GetInt(name string) (int, error)
	GetBool(name string) (bool, error)
	GetDoubleArray(name string) ([]float64, error)
	PushScope(name string)
	PopScope()
}

// MapProvider is an in-memory reference Provider backed by nested maps,
// one per pushed scope, mirroring mna/value.go's ValueMap key/value
// storage generalized to support scoping.
type MapProvider struct {
	stack []map[string]any
}

func NewMapProvider(root map[string]any) *MapProvider {
	return &MapProvider{stack: []map[string]any{root}}
}

func (m *MapProvider) top() map[string]any { return m.stack[len(m.stack)-1] }

func (m *MapProvider) PushScope(name string) {
	next, _ := m.top()[name].(map[string]any)
	if next == nil {
		next = map[string]any{}
	}
	m.stack = append(m.stack, next)
}

func (m *MapProvider) PopScope() {
	if len(m.stack) > 1 {
		m.stack = m.stack[:len(m.stack)-1]
	}
}

func (m *MapProvider) Exists(name string) bool {
	_, ok := m.top()[name]
	return ok
}

func (m *MapProvider) GetDouble(name string) (float64, error) {
	v, ok := m.top()[name]
	if !ok {
		return 0, fmt.Errorf("param: %q not found", name)
	}
	f, ok := v.(float64)
	if !ok {
		return 0, fmt.Errorf("param: %q is not a float64", name)
	}
	return f, nil
}

func (m *MapProvider) GetInt(name string) (int, error) {
	v, ok := m.top()[name]
	if !ok {
		return 0, fmt.Errorf("param: %q not found", name)
	}
	i, ok := v.(int)
	if !ok {
		return 0, fmt.Errorf("param: %q is not an int", name)
	}
	return i, nil
}

func (m *MapProvider) GetBool(name string) (bool, error) {
	v, ok := m.top()[name]
	if !ok {
		return false, fmt.Errorf("param: %q not found", name)
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("param: %q is not a bool", name)
	}
	return b, nil
}

func (m *MapProvider) GetDoubleArray(name string) ([]float64, error) {
	v, ok := m.top()[name]
	if !ok {
		return nil, fmt.Errorf("param: %q not found", name)
	}
	arr, ok := v.([]float64)
	if !ok {
		return nil, fmt.Errorf("param: %q is not a []float64", name)
	}
	return arr, nil
}

// SensitiveParameterGroup represents a linear combination of parameters
// sharing one AD direction, per spec §3 ("Sensitive parameters").
type SensitiveParameterGroup struct {
	Members []ParameterID
	Factors []float64
}
