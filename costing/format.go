package costing

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Headers renders the column names in output order: identity, the main
// block, each additional block, then the terminal columns.
func (t *Table) Headers() []string {
	out := make([]string, 0, len(identityFields)+2)
	for _, f := range identityFields {
		out = append(out, f.Name(0))
	}
	for i, b := range t.Blocks {
		for _, c := range b.order {
			out = append(out, c.Header(t.suffix(i)))
		}
	}
	return append(out, FieldSchemeFinalPayout.Name(0), FieldRewards.Name(0))
}

// Rows renders every cell. Text cells are strings; numeric cells are
// json.Number values already formatted for their unit.
func (t *Table) Rows() [][]any {
	rows := make([][]any, t.Len())
	for i, acct := range t.Accounts {
		row := make([]any, 0, len(identityFields)+2)
		for _, f := range identityFields {
			row = append(row, acct.text(f))
		}
		for _, b := range t.Blocks {
			for _, c := range b.order {
				if txt, ok := b.texts[c]; ok {
					row = append(row, txt[i])
					continue
				}
				row = append(row, FormatNumber(c.Field.Unit(), b.nums[c][i]))
			}
		}
		final, rewards := 0.0, ""
		if len(t.FinalPayout) == t.Len() {
			final, rewards = t.FinalPayout[i], t.Rewards[i]
		}
		row = append(row, FormatNumber(UnitInteger, final), rewards)
		rows[i] = row
	}
	return rows
}

// FormatNumber converts an internal value to its output representation.
// Ratios are scaled to percent. Ordinals and integers carry no decimals;
// everything else carries two. Non-finite values render as 0.
func FormatNumber(u Unit, v float64) json.Number {
	d := decimal.NewFromFloat(finite(v))
	switch u {
	case UnitRatio:
		return json.Number(d.Mul(decimal.NewFromInt(100)).StringFixed(2))
	case UnitOrdinal, UnitInteger:
		return json.Number(d.StringFixed(0))
	default:
		return json.Number(d.StringFixed(2))
	}
}

func (t *Table) suffix(block int) string {
	if block < len(t.suffixes) {
		return t.suffixes[block]
	}
	return ""
}
