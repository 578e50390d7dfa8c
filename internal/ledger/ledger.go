// Package ledger records the privacy spent on each dataset across releases
// and refuses releases that would exceed a lifetime budget.
//
// Spending composes sequentially: every release charged to a dataset adds
// its usage to the dataset's running total.
package ledger

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/vk/dpgraph/internal/analysis"
	"github.com/vk/dpgraph/internal/dperr"
	"github.com/vk/dpgraph/internal/options"
	"github.com/vk/dpgraph/internal/privacy"
	"github.com/vk/dpgraph/internal/validator"
)

// Ledger stores the cumulative spend per dataset. Implementations must be
// safe for concurrent use and Charge must be atomic per call.
type Ledger interface {
	// Spent returns the usage charged to dataset so far.
	Spent(ctx context.Context, dataset string) (privacy.Usage, error)
	// Charge adds u to every dataset, or to none when any of them would
	// exceed lifetime. The refusal is a BudgetExceeded PrivacyError.
	Charge(ctx context.Context, datasets []string, u, lifetime privacy.Usage) error
	Close() error
}

// Memory is an in-process ledger, lost when the process exits.
type Memory struct {
	mu    sync.Mutex
	spent map[string]privacy.Usage
}

// NewMemory returns an empty in-memory ledger.
func NewMemory() *Memory {
	return &Memory{spent: map[string]privacy.Usage{}}
}

var _ Ledger = (*Memory)(nil)

func (m *Memory) Spent(_ context.Context, dataset string) (privacy.Usage, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.spent[dataset], nil
}

func (m *Memory) Charge(_ context.Context, datasets []string, u, lifetime privacy.Usage) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, d := range datasets {
		if err := check(d, m.spent[d], u, lifetime); err != nil {
			return err
		}
	}
	for _, d := range datasets {
		m.spent[d] = m.spent[d].Add(u)
	}
	return nil
}

func (m *Memory) Close() error { return nil }

// Check reports whether u could be charged to every dataset without
// exceeding lifetime. It does not record anything; Charge re-checks
// atomically.
func Check(ctx context.Context, l Ledger, datasets []string, u, lifetime privacy.Usage) error {
	for _, d := range datasets {
		spent, err := l.Spent(ctx, d)
		if err != nil {
			return err
		}
		if err := check(d, spent, u, lifetime); err != nil {
			return err
		}
	}
	return nil
}

func check(dataset string, spent, u, lifetime privacy.Usage) error {
	if total := spent.Add(u); !total.Within(lifetime) {
		return dperr.Privacy(dperr.KindBudgetExceeded, fmt.Sprintf(
			"dataset %q has spent %s of its lifetime budget %s; this release needs %s",
			dataset, spent, lifetime, u))
	}
	return nil
}

// Datasets returns the ledger keys of the private datasources an analysis
// reads, sorted. A file or query is identified by its location; inline data
// by the node that embeds it.
func Datasets(a *analysis.Analysis, report *validator.Report) []string {
	var keys []string
	seen := map[string]bool{}
	for _, id := range report.Order {
		if a.Components[id].Kind != "datasource" || !report.Properties[id].Private {
			continue
		}
		o := report.Options[id].(*options.Datasource)
		var key string
		switch options.Source(o.Source) {
		case options.SourceCSV:
			key = "csv:" + o.Path
		case options.SourcePostgres:
			key = "postgres:" + o.Query
		default:
			key = "inline:" + id.String()
		}
		if !seen[key] {
			seen[key] = true
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)
	return keys
}
