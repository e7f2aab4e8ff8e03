package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// SymbolMeta is the per-instrument metadata needed to convert price movement
// into currency P&L. Owned by configuration; the live venue reports profit
// itself, the simulated venue computes it from this.
type SymbolMeta struct {
	PipValue     float64 `json:"pip_value"`
	ContractSize float64 `json:"contract_size"`
	SpreadPoints float64 `json:"spread"` // fixed spread in points; 0 means percentage fallback
	Digits       int     `json:"digits"`
}

// SymbolTable maps uppercased symbols to their metadata.
type SymbolTable map[string]SymbolMeta

// LoadSymbolMeta reads the symbol metadata file. A missing file yields an
// empty table rather than an error so the simulated venue can fall back to
// defaults per symbol.
func LoadSymbolMeta(path string) (SymbolTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return SymbolTable{}, nil
		}
		return nil, fmt.Errorf("failed to read symbol metadata '%s': %w", path, err)
	}

	var parsed map[string]SymbolMeta
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("failed to parse symbol metadata '%s': %w", path, err)
	}

	table := make(SymbolTable, len(parsed))
	for sym, meta := range parsed {
		table[strings.ToUpper(sym)] = meta
	}
	return table, nil
}

// Get returns the metadata for a symbol, falling back to forex-style defaults
// when the table has no entry.
func (t SymbolTable) Get(symbol string) SymbolMeta {
	if meta, ok := t[strings.ToUpper(symbol)]; ok {
		if meta.PipValue == 0 {
			meta.PipValue = 0.0001
		}
		if meta.ContractSize == 0 {
			meta.ContractSize = 100000
		}
		return meta
	}
	return SymbolMeta{PipValue: 0.0001, ContractSize: 100000, Digits: 5}
}
