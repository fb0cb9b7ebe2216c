package search

import (
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/shopspring/decimal"

	"github.com/FACorreiaa/mpesa-insights/internal/domain/statement"
)

// Counterparty is a distinct party seen in a statement together with the
// volume exchanged with it.
type Counterparty struct {
	Name     string          `json:"name"`
	Number   string          `json:"number,omitempty"`
	Count    int             `json:"count"`
	Total    decimal.Decimal `json:"total"`
	Distance int             `json:"distance"`
}

// Counterparties returns parties whose name contains the characters of
// query in order, ignoring case. Closer matches come first, then busier
// parties. An empty query lists every party by transaction count.
func Counterparties(txs []statement.Transaction, query string, limit int) []Counterparty {
	parties := collect(txs)
	if len(parties) == 0 {
		return nil
	}

	var out []Counterparty
	query = strings.TrimSpace(query)
	if query == "" {
		out = parties
	} else {
		names := make([]string, len(parties))
		for i, p := range parties {
			names[i] = p.Name
		}
		for _, rank := range fuzzy.RankFindNormalizedFold(query, names) {
			p := parties[rank.OriginalIndex]
			p.Distance = rank.Distance
			out = append(out, p)
		}
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Distance != out[j].Distance {
			return out[i].Distance < out[j].Distance
		}
		if out[i].Count != out[j].Count {
			return out[i].Count > out[j].Count
		}
		return out[i].Name < out[j].Name
	})

	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

func collect(txs []statement.Transaction) []Counterparty {
	type key struct{ name, number string }

	index := make(map[key]int)
	var parties []Counterparty
	for _, tx := range txs {
		if tx.CounterpartyName == "" {
			continue
		}
		k := key{name: tx.CounterpartyName}
		if tx.CounterpartyNumber != nil {
			k.number = *tx.CounterpartyNumber
		}

		i, ok := index[k]
		if !ok {
			i = len(parties)
			index[k] = i
			parties = append(parties, Counterparty{Name: k.name, Number: k.number})
		}
		parties[i].Count++
		parties[i].Total = parties[i].Total.Add(tx.AmountOrZero())
	}
	return parties
}
