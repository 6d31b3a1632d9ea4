package inspector

import (
	"context"
	"fmt"

	"github.com/danthegoodman1/parquetlayout/datastore"
	"github.com/danthegoodman1/parquetlayout/simulator"
	"github.com/danthegoodman1/parquetlayout/table"
)

type SimulateOptions struct {
	Column string
	// Samples is the number of lookup values drawn from partition minimums
	// when Value is empty
	Samples int
	// Value is parsed with the column's type
	Value         string
	MaxPartitions int
	Thresholds    simulator.Thresholds
}

// Simulate reads the footer at path and runs the pruning analysis for one
// column. The returned analysis has no fetches when no partition carries
// statistics for the column.
func Simulate(ctx context.Context, store datastore.DataStore, path string, opts SimulateOptions) (*Report, *simulator.Analysis, error) {
	if opts.Column == "" {
		return nil, nil, fmt.Errorf("a column is required to simulate lookups")
	}
	rep, err := Inspect(ctx, store, path, Options{
		Column:        opts.Column,
		MaxPartitions: opts.MaxPartitions,
		LoadFilters:   true,
	})
	if err != nil {
		return nil, nil, err
	}
	bounds := simulator.BoundsFromLayout(rep.Layout(), opts.Column)

	var lookups []any
	if opts.Value != "" {
		v, err := table.ParseColumnValue(*rep.ColumnType, opts.Value)
		if err != nil {
			return rep, nil, fmt.Errorf("error parsing lookup value for %s: %w", opts.Column, err)
		}
		lookups = []any{v}
	} else {
		lookups = simulator.SampleLookups(bounds, opts.Samples)
	}

	a, err := simulator.Analyze(bounds, lookups, opts.Thresholds)
	if err != nil {
		return rep, nil, fmt.Errorf("error in Analyze: %w", err)
	}
	logger.Debug().Str("path", path).Str("column", opts.Column).Int("lookups", len(lookups)).Str("sortedness", string(a.Sortedness)).Msg("simulated lookups")
	return rep, a, nil
}
