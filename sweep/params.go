// ABOUTME: ParamSet is an insertion-ordered mapping from parameter names to candidate values.
// ABOUTME: Declaration order drives enumeration order, so it is preserved exactly.
package sweep

// ParamSet maps parameter names to ordered lists of candidate values,
// preserving the order in which names were first declared. Sweep enumeration
// follows declaration order, with the last-declared parameter cycling
// fastest.
type ParamSet struct {
	names []string
	data  map[string][]any
}

// NewParamSet creates an empty ParamSet.
func NewParamSet() *ParamSet {
	return &ParamSet{data: make(map[string][]any)}
}

// Set declares a parameter with its candidate values. Re-declaring a name
// replaces its values without changing its position. Returns the ParamSet
// for chaining.
func (p *ParamSet) Set(name string, values ...any) *ParamSet {
	if _, exists := p.data[name]; !exists {
		p.names = append(p.names, name)
	}
	p.data[name] = values
	return p
}

// Get retrieves a parameter's candidate values and whether it was declared.
func (p *ParamSet) Get(name string) ([]any, bool) {
	v, ok := p.data[name]
	return v, ok
}

// Names returns all parameter names in declaration order.
func (p *ParamSet) Names() []string {
	result := make([]string, len(p.names))
	copy(result, p.names)
	return result
}

// Len returns the number of declared parameters.
func (p *ParamSet) Len() int {
	return len(p.data)
}

// Clone returns a copy of the ParamSet. Candidate lists are copied, so
// mutating the clone never affects the original.
func (p *ParamSet) Clone() *ParamSet {
	c := NewParamSet()
	for _, name := range p.names {
		c.Set(name, append([]any(nil), p.data[name]...)...)
	}
	return c
}
