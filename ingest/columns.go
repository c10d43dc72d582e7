package ingest

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Field is a semantic column of a fill export.
type Field string

const (
	FieldPair   Field = "pair"
	FieldTime   Field = "time"
	FieldSide   Field = "side"
	FieldPrice  Field = "price"
	FieldAmount Field = "amount"
	FieldTotal  Field = "total"
	FieldFee    Field = "fee"
	FieldRole   Field = "role"
)

// Fields lists every semantic field in resolution order.
var Fields = []Field{FieldPair, FieldTime, FieldSide, FieldPrice, FieldAmount, FieldTotal, FieldFee, FieldRole}

// requiredFields must resolve for a table to be treated as a fill history.
var requiredFields = []Field{FieldTime, FieldSide, FieldTotal}

// ColumnResolver maps a semantic field onto one of the available headers.
type ColumnResolver interface {
	Resolve(field Field, headers []string) (string, bool)
}

// DefaultAliases are the header names known from exchange exports.
var DefaultAliases = map[Field][]string{
	FieldPair:   {"Pairs", "Pair", "Symbol", "Trading Pair", "Market", "Instrument", "Asset", "Currency Pair"},
	FieldTime:   {"Time", "Date", "Timestamp", "DateTime", "Created Time", "Trade Time", "Execution Time", "Order Time", "Fill Time", "Created", "Trade Date"},
	FieldSide:   {"Side", "Direction", "Order Side", "Trade Side", "Buy/Sell", "Action", "Type"},
	FieldPrice:  {"Filled Price", "Price", "Fill Price", "Executed Price", "Trade Price", "Execution Price", "Order Price", "Market Price", "Last Price"},
	FieldAmount: {"Executed Amount", "Amount", "Quantity", "Size", "Trade Amount", "Volume", "Executed Quantity", "Fill Amount", "Order Amount"},
	FieldTotal:  {"Total", "Value", "Notional", "Trade Value", "Gross Amount", "Net Amount", "Order Value", "Fill Value", "Trade Total"},
	FieldFee:    {"Fee", "Commission", "Fees", "Trading Fee", "Transaction Fee", "Order Fee", "Fill Fee", "Commission Fee"},
	FieldRole:   {"Role", "Maker/Taker", "Liquidity", "Exec Type"},
}

// canonicalHeaders is the column layout of the exchange export the
// dashboard was first built around.
var canonicalHeaders = map[Field]string{
	FieldPair:   "Pairs",
	FieldTime:   "Time",
	FieldSide:   "Side",
	FieldPrice:  "Filled Price",
	FieldAmount: "Executed Amount",
	FieldTotal:  "Total",
	FieldFee:    "Fee",
	FieldRole:   "Role",
}

// AliasResolver matches headers against per-field alias lists: exact
// canonical header first, then case-insensitive equality with any alias,
// then substring containment in either direction. Within a pass the alias
// order decides, so "Direction" beats a generic "Type" column.
type AliasResolver struct {
	aliases map[Field][]string
}

func NewAliasResolver(extra map[Field][]string) *AliasResolver {
	merged := make(map[Field][]string, len(DefaultAliases))
	for field, names := range DefaultAliases {
		merged[field] = append([]string(nil), names...)
	}
	// user aliases take precedence over the built-in ones
	for field, names := range extra {
		merged[field] = append(append([]string(nil), names...), merged[field]...)
	}
	return &AliasResolver{aliases: merged}
}

func (r *AliasResolver) Resolve(field Field, headers []string) (string, bool) {
	candidates := r.aliases[field]
	if len(candidates) == 0 {
		return "", false
	}

	if canonical, ok := canonicalHeaders[field]; ok {
		for _, header := range headers {
			if header == canonical {
				return header, true
			}
		}
	}

	for _, candidate := range candidates {
		c := strings.ToLower(candidate)
		for _, header := range headers {
			if normalizeHeader(header) == c {
				return header, true
			}
		}
	}

	for _, candidate := range candidates {
		c := strings.ToLower(candidate)
		for _, header := range headers {
			h := normalizeHeader(header)
			if h == "" {
				continue
			}
			if strings.Contains(h, c) || strings.Contains(c, h) {
				return header, true
			}
		}
	}

	return "", false
}

// ResolveColumns maps every field in Fields order. A header claimed by an
// earlier field is not offered to later ones.
func ResolveColumns(resolver ColumnResolver, headers []string) map[Field]string {
	columns := make(map[Field]string, len(Fields))
	free := append([]string(nil), headers...)
	for _, field := range Fields {
		header, ok := resolver.Resolve(field, free)
		if !ok {
			continue
		}
		columns[field] = header
		for i, h := range free {
			if h == header {
				free = append(free[:i], free[i+1:]...)
				break
			}
		}
	}
	return columns
}

func normalizeHeader(header string) string {
	return strings.ToLower(strings.TrimSpace(header))
}

// aliasFile is the on-disk layout of an alias override file:
//
//	time: ["Дата", "Filled At"]
//	pair: ["Контракт"]
type aliasFile map[string][]string

// LoadAliases reads extra header aliases from a YAML file.
func LoadAliases(path string) (map[Field][]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read aliases file: %w", err)
	}

	var raw aliasFile
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("failed to parse aliases file: %w", err)
	}

	known := make(map[Field]bool, len(Fields))
	for _, f := range Fields {
		known[f] = true
	}

	out := make(map[Field][]string, len(raw))
	for key, names := range raw {
		field := Field(strings.ToLower(strings.TrimSpace(key)))
		if !known[field] {
			return nil, fmt.Errorf("unknown field %q in aliases file", key)
		}
		out[field] = names
	}
	return out, nil
}
