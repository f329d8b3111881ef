// Package sizing maps a trading edge to the quote-currency amount to
// risk. It is also the single point where edge authorization is enforced
// before any order reaches the exchange.
package sizing

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// ErrUnknownEdge is returned for edges outside the authorised set.
var ErrUnknownEdge = errors.New("unknown edge")

// Direction of a trade.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// Rule sizes one edge. Per-direction amounts override Amount when set.
type Rule struct {
	Edge   string `yaml:"edge"`
	Amount string `yaml:"amount"`
	Long   string `yaml:"long,omitempty"`
	Short  string `yaml:"short,omitempty"`
}

// PolicyFile is the top-level YAML structure.
type PolicyFile struct {
	DefaultAmount string `yaml:"default_amount"`
	Edges         []Rule `yaml:"edges"`
}

type edgeAmounts struct {
	long  decimal.Decimal
	short decimal.Decimal
}

// Sizer resolves quote amounts from a static policy table.
type Sizer struct {
	defaultAmount decimal.Decimal
	edges         map[string]edgeAmounts
}

// LoadPolicy reads the sizing policy from a YAML file.
func LoadPolicy(path string) (*Sizer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var file PolicyFile
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, err
	}
	return NewSizer(file)
}

// NewSizer builds a Sizer from a parsed policy.
func NewSizer(file PolicyFile) (*Sizer, error) {
	def, err := decimal.NewFromString(file.DefaultAmount)
	if err != nil {
		return nil, fmt.Errorf("sizing: bad default amount %q: %w", file.DefaultAmount, err)
	}

	edges := make(map[string]edgeAmounts, len(file.Edges))
	for _, r := range file.Edges {
		edge := strings.TrimSpace(r.Edge)
		if edge == "" {
			return nil, errors.New("sizing: rule with empty edge")
		}
		amounts := edgeAmounts{long: def, short: def}
		if r.Amount != "" {
			a, err := decimal.NewFromString(r.Amount)
			if err != nil {
				return nil, fmt.Errorf("sizing: edge %s amount %q: %w", edge, r.Amount, err)
			}
			amounts.long, amounts.short = a, a
		}
		if r.Long != "" {
			a, err := decimal.NewFromString(r.Long)
			if err != nil {
				return nil, fmt.Errorf("sizing: edge %s long %q: %w", edge, r.Long, err)
			}
			amounts.long = a
		}
		if r.Short != "" {
			a, err := decimal.NewFromString(r.Short)
			if err != nil {
				return nil, fmt.Errorf("sizing: edge %s short %q: %w", edge, r.Short, err)
			}
			amounts.short = a
		}
		edges[edge] = amounts
	}

	return &Sizer{defaultAmount: def, edges: edges}, nil
}

// Size returns the quote amount to commit for edge in the given
// direction. Edges absent from the policy are unauthorised and rejected;
// nothing for an unknown edge may ever reach the exchange.
func (s *Sizer) Size(edge, baseAsset, quoteAsset string, direction Direction) (decimal.Decimal, error) {
	amounts, ok := s.edges[edge]
	if !ok {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrUnknownEdge, edge)
	}
	if direction == DirectionShort {
		return amounts.short, nil
	}
	return amounts.long, nil
}

// Authorised reports whether edge is in the allow-list.
func (s *Sizer) Authorised(edge string) bool {
	_, ok := s.edges[edge]
	return ok
}
