package hand

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/irc-risk/hand-cli/internal/config"
	"github.com/irc-risk/hand-cli/internal/model"
	"github.com/irc-risk/hand-cli/internal/store"
	"github.com/irc-risk/hand-cli/internal/table"
	"github.com/irc-risk/hand-cli/pkg/geocode"
	"github.com/irc-risk/hand-cli/pkg/raster"
)

// Pipeline sequences one report run: load, geocode, sample, join, write.
type Pipeline struct {
	cfg      *config.Config
	store    store.Store
	geocoder geocode.Client
	sampler  raster.Sampler
	cats     *Categories
}

// New creates a Pipeline with all dependencies.
func New(cfg *config.Config, st store.Store, gc geocode.Client, sampler raster.Sampler, cats *Categories) *Pipeline {
	if cats == nil {
		cats = DefaultCategories()
	}
	return &Pipeline{
		cfg:      cfg,
		store:    st,
		geocoder: gc,
		sampler:  sampler,
		cats:     cats,
	}
}

// Run executes the full pipeline for a single job. Any stage failure halts
// the run; nothing is written to the output path unless every stage before
// the write succeeded.
func (p *Pipeline) Run(ctx context.Context, job model.Job) (*model.Run, error) {
	log := zap.L().With(zap.String("input", job.InputPath), zap.String("project", job.Project))
	log.Info("pipeline: starting run")

	run, err := p.store.CreateRun(ctx, job)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: create run")
	}

	setStatus := func(status model.RunStatus) {
		if statusErr := p.store.UpdateRunStatus(ctx, run.ID, status); statusErr != nil {
			log.Warn("pipeline: failed to update status", zap.Error(statusErr))
		}
		run.Status = status
	}

	var stages []model.StageResult
	trackStage := func(name string, fn func() (*model.StageResult, error)) error {
		stage, stageErr := p.store.CreateStage(ctx, run.ID, name)
		if stageErr != nil {
			log.Warn("pipeline: failed to create stage", zap.String("stage", name), zap.Error(stageErr))
		}

		start := time.Now()
		stageResult, fnErr := fn()
		duration := time.Since(start).Milliseconds()

		if stageResult == nil {
			stageResult = &model.StageResult{}
		}
		stageResult.Name = name
		stageResult.Duration = duration

		if fnErr != nil {
			stageResult.Status = model.StageStatusFailed
			stageResult.Error = fnErr.Error()
			log.Error("pipeline: stage failed",
				zap.String("stage", name),
				zap.Int64("duration_ms", duration),
				zap.Error(fnErr),
			)
		} else {
			if stageResult.Status == "" {
				stageResult.Status = model.StageStatusComplete
			}
			log.Info("pipeline: stage complete",
				zap.String("stage", name),
				zap.String("status", string(stageResult.Status)),
				zap.Int64("duration_ms", duration),
			)
		}

		if stage != nil {
			_ = p.store.CompleteStage(ctx, stage.ID, stageResult)
		}
		stages = append(stages, *stageResult)
		return fnErr
	}

	var (
		tbl        *table.Table
		addressIdx int
		records    []PointRecord
		matched    int
		samples    []raster.Sample
		joined     *table.Table
	)

	fail := func(fnErr error) (*model.Run, error) {
		result := &model.RunResult{
			Stages: stages,
			Error:  fnErr.Error(),
		}
		if tbl != nil {
			result.RowsTotal = len(tbl.Rows)
		}
		if saveErr := p.store.UpdateRunResult(ctx, run.ID, result); saveErr != nil {
			log.Warn("pipeline: failed to save run result", zap.Error(saveErr))
		}
		run.Status = model.RunStatusFailed
		run.Result = result
		return run, fnErr
	}

	// Load
	setStatus(model.RunStatusLoading)
	if err := trackStage("load", func() (*model.StageResult, error) {
		loaded, loadErr := table.Load(job.InputPath, p.loadOptions())
		if loadErr != nil {
			return nil, loadErr
		}
		idx, ok := loaded.FindColumn(job.AddressColumn)
		if !ok {
			return nil, eris.Errorf("pipeline: input has no column %q", job.AddressColumn)
		}
		tbl = loaded
		addressIdx = idx
		return &model.StageResult{Metadata: map[string]any{
			"rows":    len(loaded.Rows),
			"columns": len(loaded.Header),
		}}, nil
	}); err != nil {
		return fail(err)
	}

	// Geocode
	setStatus(model.RunStatusGeocoding)
	if err := trackStage("geocode", func() (*model.StageResult, error) {
		addresses := make([]string, len(tbl.Rows))
		for i, row := range tbl.Rows {
			addresses[i] = row.Cell(addressIdx)
		}

		results, gErr := p.geocoder.ResolveAll(ctx, addresses)
		if gErr != nil {
			return nil, gErr
		}

		recs, bErr := BuildPoints(tbl.Rows, results)
		if bErr != nil {
			return nil, bErr
		}
		records = recs
		matched = len(ValidPoints(records))
		return &model.StageResult{Metadata: map[string]any{
			"addresses": len(addresses),
			"matched":   matched,
		}}, nil
	}); err != nil {
		return fail(err)
	}

	// Sample
	setStatus(model.RunStatusSampling)
	if err := trackStage("sample", func() (*model.StageResult, error) {
		valid := ValidPoints(records)
		if len(valid) == 0 {
			return &model.StageResult{
				Status:   model.StageStatusSkipped,
				Metadata: map[string]any{"reason": "no resolved coordinates"},
			}, nil
		}

		got, sErr := p.sampler.SamplePoints(ctx, FeatureCollection(valid))
		if sErr != nil {
			return nil, sErr
		}
		samples = got
		return &model.StageResult{Metadata: map[string]any{
			"points":  len(valid),
			"samples": len(got),
		}}, nil
	}); err != nil {
		return fail(err)
	}

	// Join
	setStatus(model.RunStatusJoining)
	if err := trackStage("join", func() (*model.StageResult, error) {
		joined = Join(tbl, records, samples, p.cats)
		return &model.StageResult{Metadata: map[string]any{
			"rows": len(joined.Rows),
		}}, nil
	}); err != nil {
		return fail(err)
	}

	// Write
	setStatus(model.RunStatusWriting)
	if err := trackStage("write", func() (*model.StageResult, error) {
		if wErr := table.WriteCSV(joined, job.OutputPath, p.outputDelimiter()); wErr != nil {
			return nil, wErr
		}
		return &model.StageResult{Metadata: map[string]any{
			"path": job.OutputPath,
		}}, nil
	}); err != nil {
		return fail(err)
	}

	result := &model.RunResult{
		RowsTotal:   len(tbl.Rows),
		RowsMatched: matched,
		RowsSampled: len(samples),
		OutputPath:  job.OutputPath,
		Stages:      stages,
	}
	if saveErr := p.store.UpdateRunResult(ctx, run.ID, result); saveErr != nil {
		log.Warn("pipeline: failed to save run result", zap.Error(saveErr))
	}
	run.Status = model.RunStatusComplete
	run.Result = result

	log.Info("pipeline: run complete",
		zap.String("run_id", run.ID),
		zap.Int("rows", result.RowsTotal),
		zap.Int("matched", result.RowsMatched),
		zap.Int("sampled", result.RowsSampled),
		zap.String("output", result.OutputPath),
	)
	return run, nil
}

func (p *Pipeline) loadOptions() table.LoadOptions {
	opts := table.LoadOptions{
		Encoding: p.cfg.Input.Encoding,
		Sheet:    p.cfg.Input.Sheet,
	}
	if p.cfg.Input.Delimiter != "" {
		opts.Delimiter = []rune(p.cfg.Input.Delimiter)[0]
	}
	return opts
}

func (p *Pipeline) outputDelimiter() rune {
	if p.cfg.Output.Delimiter != "" {
		return []rune(p.cfg.Output.Delimiter)[0]
	}
	return ';'
}
