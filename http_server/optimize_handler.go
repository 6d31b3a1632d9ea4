package http_server

import (
	"context"
	"net/http"
	"time"

	"github.com/danthegoodman1/parquetlayout/metastore"
	"github.com/danthegoodman1/parquetlayout/optimizer"
	"github.com/danthegoodman1/parquetlayout/utils"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

type (
	OptimizeReqBody struct {
		InDir  string `validate:"required"`
		OutDir string `validate:"required"`

		// Overrides of the server defaults
		KeyColumn            *string
		MaxRowsPerOutputFile *int
		MaxRowsPerPartition  *int
		FilterFPP            *float64
		CompressionCodec     *string
		Dictionary           *bool
		Workers              *int
		PublishPrefix        *string

		// How many seconds before the run is cancelled.
		//
		// Default `600`.
		MaxRuntimeSec *int64
	}

	OptimizeFileResult struct {
		Input   string   `json:"input"`
		Error   string   `json:"error,omitempty"`
		Rows    int64    `json:"rows"`
		Outputs []string `json:"outputs"`
		TimeMS  int64    `json:"time_ms"`
	}

	OptimizeStats struct {
		RunID     string               `json:"run_id"`
		Succeeded int                  `json:"succeeded"`
		Failed    int                  `json:"failed"`
		Manifest  string               `json:"manifest,omitempty"`
		Files     []OptimizeFileResult `json:"files"`
		TimeMS    int64                `json:"time_ms"`
	}
)

func (s *HTTPServer) OptimizeHandler(c *CustomContext) error {
	var reqBody OptimizeReqBody
	if err := ValidateRequest(c, &reqBody); err != nil {
		return err
	}

	inDir, err := s.confine(reqBody.InDir)
	if err != nil {
		return c.RequestError(err, "error confining InDir")
	}
	outDir, err := s.confine(reqBody.OutDir)
	if err != nil {
		return c.RequestError(err, "error confining OutDir")
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), time.Second*time.Duration(utils.Deref(reqBody.MaxRuntimeSec, 600)))
	defer cancel()
	logger := zerolog.Ctx(ctx)
	start := time.Now()

	cfg := s.defaults
	cfg.KeyColumn = utils.Deref(reqBody.KeyColumn, cfg.KeyColumn)
	cfg.MaxRowsPerOutputFile = utils.Deref(reqBody.MaxRowsPerOutputFile, cfg.MaxRowsPerOutputFile)
	cfg.MaxRowsPerPartition = utils.Deref(reqBody.MaxRowsPerPartition, cfg.MaxRowsPerPartition)
	cfg.FilterFPP = utils.Deref(reqBody.FilterFPP, cfg.FilterFPP)
	cfg.CompressionCodec = utils.Deref(reqBody.CompressionCodec, cfg.CompressionCodec)
	cfg.Dictionary = utils.Deref(reqBody.Dictionary, cfg.Dictionary)
	cfg.Workers = utils.Deref(reqBody.Workers, cfg.Workers)
	cfg.PublishPrefix = utils.Deref(reqBody.PublishPrefix, cfg.PublishPrefix)

	o, err := optimizer.New(cfg, s.store)
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if s.pool != nil {
		o.WithMetaStore(metastore.NewCRDBMetaStore(s.pool, cfg.CatalogNamespace(outDir)))
	}

	logger.Debug().Str("inDir", inDir).Str("outDir", outDir).Msg("running optimize handler")
	summary, err := o.Run(ctx, inDir, outDir)
	if err != nil {
		return c.RequestError(err, "error running optimizer")
	}

	res := OptimizeStats{
		RunID:     summary.RunID,
		Succeeded: summary.Succeeded,
		Failed:    summary.Failed,
		Manifest:  summary.Manifest,
		Files:     make([]OptimizeFileResult, 0, len(summary.Results)),
	}
	for _, r := range summary.Results {
		fr := OptimizeFileResult{
			Input:   r.Input,
			Rows:    r.Rows,
			Outputs: make([]string, 0, len(r.Outputs)),
			TimeMS:  r.Duration.Milliseconds(),
		}
		if r.Err != nil {
			fr.Error = r.Err.Error()
		}
		for _, out := range r.Outputs {
			fr.Outputs = append(fr.Outputs, out.Path)
		}
		res.Files = append(res.Files, fr)
	}
	res.TimeMS = time.Since(start).Milliseconds()
	return c.JSON(http.StatusOK, res)
}
