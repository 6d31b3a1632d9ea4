package http_server

import (
	"net/http"

	"github.com/danthegoodman1/parquetlayout/datastore"
	"github.com/danthegoodman1/parquetlayout/inspector"
	"github.com/danthegoodman1/parquetlayout/simulator"
	"github.com/danthegoodman1/parquetlayout/utils"
	"github.com/labstack/echo/v4"
)

type (
	InspectReqBody struct {
		// A parquet file, a directory of parquet files, or an s3:// object
		Path   string `validate:"required"`
		Column string
		// 0 lists the default number of row groups, negative lists all
		MaxPartitions int
	}

	InspectResult struct {
		Path   string            `json:"path"`
		Error  string            `json:"error,omitempty"`
		Report *inspector.Report `json:"report,omitempty"`
	}

	SimulateReqBody struct {
		Path string `validate:"required"`
		// Defaults to the configured key column
		Column string
		// Default 1
		Samples *int `validate:"omitempty,gte=1"`
		// Lookup value, sampled from row group minimums when empty
		Value         string
		MaxPartitions int
		Optimal       *float64
		Acceptable    *float64
	}

	LookupResult struct {
		Value             any     `json:"value"`
		Fetched           int     `json:"fetched"`
		Skipped           int     `json:"skipped"`
		FilterSkipped     int     `json:"filter_skipped"`
		NoStatistics      int     `json:"no_statistics"`
		Incomparable      int     `json:"incomparable"`
		FetchedIndexes    []int   `json:"fetched_indexes"`
		SkipRatio         float64 `json:"skip_ratio"`
		FilteredSkipRatio float64 `json:"filtered_skip_ratio"`
		Verdict           string  `json:"verdict"`
	}

	SimulateResult struct {
		Path               string         `json:"path"`
		Error              string         `json:"error,omitempty"`
		Column             string         `json:"column,omitempty"`
		PartitionCount     int            `json:"partition_count"`
		PartitionsAnalyzed int            `json:"partitions_analyzed"`
		Sortedness         string         `json:"sortedness,omitempty"`
		Pairs              int            `json:"pairs"`
		Overlaps           int            `json:"overlaps"`
		UnknownPairs       int            `json:"unknown_pairs"`
		Overlapping        []int          `json:"overlapping,omitempty"`
		Lookups            []LookupResult `json:"lookups,omitempty"`
	}

	BatchResponse[T any] struct {
		Results   []T `json:"results"`
		Succeeded int `json:"succeeded"`
		Failed    int `json:"failed"`
	}
)

func (s *HTTPServer) InspectHandler(c *CustomContext) error {
	var reqBody InspectReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return err
	}
	ctx := c.Request().Context()

	path, err := s.confine(reqBody.Path)
	if err != nil {
		return c.RequestError(err, "error confining path")
	}
	inputs, err := datastore.ResolveInputs(path)
	if err != nil {
		return c.RequestError(err, "error resolving inputs")
	}

	var res BatchResponse[InspectResult]
	for _, input := range inputs {
		r := InspectResult{Path: input}
		rep, err := inspector.Inspect(ctx, s.store, input, inspector.Options{
			Column:        reqBody.Column,
			MaxPartitions: reqBody.MaxPartitions,
		})
		if err != nil {
			r.Error = err.Error()
			res.Failed++
		} else {
			r.Report = rep
			res.Succeeded++
		}
		res.Results = append(res.Results, r)
	}
	return c.JSON(http.StatusOK, res)
}

func (s *HTTPServer) SimulateHandler(c *CustomContext) error {
	var reqBody SimulateReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return err
	}
	ctx := c.Request().Context()

	t := simulator.DefaultThresholds
	t.Optimal = utils.Deref(reqBody.Optimal, t.Optimal)
	t.Acceptable = utils.Deref(reqBody.Acceptable, t.Acceptable)
	if err := t.Validate(); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	column := reqBody.Column
	if column == "" {
		column = s.defaults.KeyColumn
	}

	path, err := s.confine(reqBody.Path)
	if err != nil {
		return c.RequestError(err, "error confining path")
	}
	inputs, err := datastore.ResolveInputs(path)
	if err != nil {
		return c.RequestError(err, "error resolving inputs")
	}

	var res BatchResponse[SimulateResult]
	for _, input := range inputs {
		r := SimulateResult{Path: input, Column: column}
		rep, a, err := inspector.Simulate(ctx, s.store, input, inspector.SimulateOptions{
			Column:        column,
			Samples:       utils.Deref(reqBody.Samples, 1),
			Value:         reqBody.Value,
			MaxPartitions: reqBody.MaxPartitions,
			Thresholds:    t,
		})
		if err != nil {
			if ctx.Err() != nil {
				return c.InternalError(ctx.Err(), "simulation cancelled")
			}
			r.Error = err.Error()
			res.Failed++
			res.Results = append(res.Results, r)
			continue
		}
		res.Succeeded++
		res.Results = append(res.Results, simulateResult(r, rep, a))
	}
	return c.JSON(http.StatusOK, res)
}

func simulateResult(r SimulateResult, rep *inspector.Report, a *simulator.Analysis) SimulateResult {
	r.PartitionCount = rep.PartitionCount
	r.PartitionsAnalyzed = a.Partitions
	r.Sortedness = string(a.Sortedness)
	r.Pairs = a.Overlaps.Pairs
	r.Overlaps = a.Overlaps.Overlaps
	r.UnknownPairs = a.Overlaps.Unknown
	r.Overlapping = a.Overlaps.Overlapping
	for i, f := range a.Fetches {
		r.Lookups = append(r.Lookups, LookupResult{
			Value:             f.Value,
			Fetched:           f.Fetched,
			Skipped:           f.Skipped,
			FilterSkipped:     f.FilterSkipped,
			NoStatistics:      f.NoStatistics,
			Incomparable:      f.Incomparable,
			FetchedIndexes:    utils.ArrayOrEmpty(f.FetchedIndexes),
			SkipRatio:         f.SkipRatio(),
			FilteredSkipRatio: f.FilteredSkipRatio(),
			Verdict:           string(a.Verdicts[i]),
		})
	}
	return r
}
