// Package dashboard is the narrow interface presentation collaborators
// consume: one call that returns the summary record, the ranking tables and
// the rendered chart paths for the labour-market dataset.
package dashboard

import (
	"context"

	"github.com/pjanowski/regiolens/internal/analysis"
	"github.com/pjanowski/regiolens/internal/pipeline"
)

// Options configure where the data comes from and where charts land.
type Options struct {
	CacheDir    string
	ChartsDir   string
	MaxAgeHours int
	ClientID    string
	BaseURL     string
	StartYear   int
}

// Data is the complete dashboard payload.
type Data struct {
	Summary    analysis.Summary
	Tables     analysis.Tables
	ChartPaths analysis.ChartPaths
}

// Get loads or refreshes the dataset and runs the analytics pass. A fresh
// cache hit never touches the network; a required refresh fails loudly on
// upstream errors.
func Get(ctx context.Context, opts Options) (*Data, error) {
	table, err := pipeline.LoadOrRefresh(ctx, pipeline.Options{
		CacheDir:    opts.CacheDir,
		MaxAgeHours: opts.MaxAgeHours,
		ClientID:    opts.ClientID,
		BaseURL:     opts.BaseURL,
		StartYear:   opts.StartYear,
	})
	if err != nil {
		return nil, err
	}

	out, err := analysis.Build(table, opts.ChartsDir, analysis.DefaultStyle())
	if err != nil {
		return nil, err
	}

	return &Data{
		Summary:    out.Summary,
		Tables:     out.Tables,
		ChartPaths: out.Charts,
	}, nil
}
