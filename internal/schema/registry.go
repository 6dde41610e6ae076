package schema

import "fmt"

// Scale is the number of decimal places used by a scaled integer.
// Example: Scale=8 means the integer value is scaled by 1e8.
type Scale int32

// ScaleSpec defines scaling for a symbol's numeric fields.
type ScaleSpec struct {
	PriceScale    Scale `json:"priceScale"`
	QuantityScale Scale `json:"quantityScale"`
}

// SymbolID is the numeric identifier for a symbol.
type SymbolID uint32

// Symbol describes a tradable instrument.
type Symbol struct {
	ID    SymbolID
	Name  string
	Scale ScaleSpec
}

// Registry stores symbol mappings in a compact form.
type Registry struct {
	symbols      []Symbol
	symbolByName map[string]SymbolID
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{symbolByName: make(map[string]SymbolID)}
}

// AddSymbol registers a new symbol and returns its ID.
func (r *Registry) AddSymbol(name string, scale ScaleSpec) (SymbolID, error) {
	if name == "" {
		return 0, fmt.Errorf("symbol name is empty")
	}
	if id, ok := r.symbolByName[name]; ok {
		return id, fmt.Errorf("symbol already exists: %s", name)
	}
	id := SymbolID(len(r.symbols) + 1)
	r.symbols = append(r.symbols, Symbol{ID: id, Name: name, Scale: scale})
	r.symbolByName[name] = id
	return id, nil
}

// Symbol returns the symbol by ID.
func (r *Registry) Symbol(id SymbolID) (Symbol, bool) {
	if id == 0 || int(id) > len(r.symbols) {
		return Symbol{}, false
	}
	return r.symbols[id-1], true
}

// SymbolByName returns the symbol by name.
func (r *Registry) SymbolByName(name string) (Symbol, bool) {
	id, ok := r.symbolByName[name]
	if !ok {
		return Symbol{}, false
	}
	return r.Symbol(id)
}

// SymbolCount returns the number of registered symbols.
func (r *Registry) SymbolCount() int {
	return len(r.symbols)
}

// SymbolAt returns the symbol at position i in registration order.
func (r *Registry) SymbolAt(i int) (Symbol, bool) {
	if i < 0 || i >= len(r.symbols) {
		return Symbol{}, false
	}
	return r.symbols[i], true
}

var pow10 = [...]float64{1, 1e1, 1e2, 1e3, 1e4, 1e5, 1e6, 1e7, 1e8, 1e9, 1e10, 1e11, 1e12}

func scaleFactor(scale Scale) float64 {
	if scale <= 0 {
		return 1
	}
	if int(scale) < len(pow10) {
		return pow10[scale]
	}
	f := 1.0
	for i := Scale(0); i < scale; i++ {
		f *= 10
	}
	return f
}

// Float converts a scaled price to a float for statistics. Never use the
// result for ordering or equality.
func (p Price) Float(scale Scale) float64 {
	return float64(p) / scaleFactor(scale)
}

// Float converts a scaled quantity to a float for statistics.
func (q Quantity) Float(scale Scale) float64 {
	return float64(q) / scaleFactor(scale)
}
