// Package pipeline runs the crawl and normalize stages against one store.
package pipeline

import (
	"context"
	"fmt"
	"slices"

	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/rcliao/uma-friends/internal/chrono"
	"github.com/rcliao/uma-friends/internal/crawl"
	"github.com/rcliao/uma-friends/internal/extract"
	"github.com/rcliao/uma-friends/internal/model"
	"github.com/rcliao/uma-friends/internal/normalize"
	"github.com/rcliao/uma-friends/internal/reconcile"
	"github.com/rcliao/uma-friends/internal/reference"
	"github.com/rcliao/uma-friends/internal/store"
	"github.com/rcliao/uma-friends/internal/telemetry"
)

var tracer = otel.Tracer("uma-friends/pipeline")

const (
	report_run         = "pipeline.run"
	report_renormalize = "pipeline.renormalize"
)

// Options are the pipeline settings that are not handles.
type Options struct {
	Crawl       crawl.Config
	KeyMode     model.KeyMode
	StrictRaces bool
}

// Report summarizes one pipeline invocation.
type Report struct {
	RunID     string
	Reconcile reconcile.Report

	Steps      int
	StopReason crawl.StopReason
	Searched   int
	Shown      int

	Extracted int
	Raw       store.InsertResult
	Clean     store.InsertResult
	Failed    store.InsertResult
}

// Pipeline wires the stages together. Reference caches are rebuilt for
// every invocation.
type Pipeline struct {
	store  store.Store
	source reference.Source
	clock  chrono.API
	opts   Options
	tel    telemetry.API
}

func New(st store.Store, src reference.Source, clock chrono.API, opts Options, tel telemetry.API) *Pipeline {
	return &Pipeline{
		store:  st,
		source: src,
		clock:  clock,
		opts:   opts,
		tel:    tel,
	}
}

func (p *Pipeline) extractor() extract.Extractor {
	return extract.New(p.clock, p.opts.KeyMode, p.tel)
}

func (p *Pipeline) normalizer() *normalize.Normalizer {
	return normalize.New(p.source, p.opts.StrictRaces, p.tel)
}

// Reconcile retries the failed buffer on its own.
func (p *Pipeline) Reconcile(ctx context.Context) (reconcile.Report, error) {
	return reconcile.New(p.store, p.normalizer(), p.tel).Run(ctx)
}

// Run reconciles the failed buffer, crawls new listings up to the stored
// frontier and persists them through the raw, clean and failed stores.
func (p *Pipeline) Run(ctx context.Context, open crawl.Opener) (Report, error) {
	rep := Report{RunID: ulid.Make().String()}
	ctx, span := tracer.Start(ctx, "Pipeline.Run")
	defer span.End()
	span.SetAttributes(attribute.String("run_id", rep.RunID))
	tel := telemetry.NewScopedAPI("pipeline", p.tel)
	tel.ReportInfo("run started", "run_id", rep.RunID, "url", p.opts.Crawl.URL)

	rec, err := p.Reconcile(ctx)
	rep.Reconcile = rec
	if err != nil {
		tel.ReportBroken(report_run, rep.RunID, err)
		return rep, err
	}

	ext := p.extractor()
	res, err := crawl.New(p.opts.Crawl, p.store, ext, p.tel).Run(ctx, open)
	rep.Steps, rep.StopReason = res.Steps, res.StopReason
	rep.Searched, rep.Shown = res.Searched, res.Shown
	if err != nil {
		tel.ReportBroken(report_run, rep.RunID, err)
		return rep, fmt.Errorf("crawl: %w", err)
	}

	if err := p.ingest(ctx, ext, res.Markup, &rep); err != nil {
		tel.ReportBroken(report_run, rep.RunID, err)
		return rep, err
	}
	p.logReport(tel, "run finished", rep)
	return rep, nil
}

// IngestMarkup persists listings from previously saved section markup.
func (p *Pipeline) IngestMarkup(ctx context.Context, markup string) (Report, error) {
	rep := Report{RunID: ulid.Make().String()}
	ctx, span := tracer.Start(ctx, "Pipeline.IngestMarkup")
	defer span.End()

	if err := p.ingest(ctx, p.extractor(), markup, &rep); err != nil {
		return rep, err
	}
	p.logReport(telemetry.NewScopedAPI("pipeline", p.tel), "ingest finished", rep)
	return rep, nil
}

// ingest extracts the records, stores the ones not seen before and
// normalizes those into the clean or failed store.
func (p *Pipeline) ingest(ctx context.Context, ext extract.Extractor, markup string, rep *Report) error {
	raws, err := ext.FromMarkup(markup)
	if err != nil {
		return fmt.Errorf("extract: %w", err)
	}
	rep.Extracted = len(raws)
	// The page lists newest first; store in posting order.
	slices.Reverse(raws)

	fresh, err := p.unseen(ctx, raws)
	if err != nil {
		return err
	}
	rep.Raw, err = p.store.InsertRaw(ctx, fresh)
	if err != nil {
		return fmt.Errorf("insert raw: %w", err)
	}
	// Records already in the raw store were normalized by an earlier run.
	rep.Raw.Duplicates += len(raws) - len(fresh)

	return p.persist(ctx, fresh, rep)
}

func (p *Pipeline) unseen(ctx context.Context, raws []model.RawFriend) ([]model.RawFriend, error) {
	seen := make(map[string]bool, len(raws))
	var fresh []model.RawFriend
	for _, raw := range raws {
		key := raw.Key.String()
		if seen[key] {
			continue
		}
		seen[key] = true
		ok, err := p.store.HasRaw(ctx, raw.Key)
		if err != nil {
			return nil, fmt.Errorf("check raw %s: %w", raw.Key, err)
		}
		if !ok {
			fresh = append(fresh, raw)
		}
	}
	return fresh, nil
}

func (p *Pipeline) persist(ctx context.Context, raws []model.RawFriend, rep *Report) error {
	if len(raws) == 0 {
		return nil
	}
	clean, failed, err := p.normalizer().Split(ctx, raws)
	if err != nil {
		return fmt.Errorf("normalize: %w", err)
	}
	if rep.Clean, err = p.store.InsertClean(ctx, clean); err != nil {
		return fmt.Errorf("insert clean: %w", err)
	}
	if rep.Failed, err = p.store.InsertFailed(ctx, failed); err != nil {
		return fmt.Errorf("insert failed: %w", err)
	}
	return nil
}

// Renormalize runs every raw record through the normalizer again, oldest
// first. Records already in the clean or failed store count as duplicates.
func (p *Pipeline) Renormalize(ctx context.Context) (Report, error) {
	rep := Report{RunID: ulid.Make().String()}
	ctx, span := tracer.Start(ctx, "Pipeline.Renormalize")
	defer span.End()
	tel := telemetry.NewScopedAPI("pipeline", p.tel)

	raws, err := p.store.ListRaw(ctx)
	if err != nil {
		return rep, fmt.Errorf("list raw: %w", err)
	}
	rep.Extracted = len(raws)
	if err := p.persist(ctx, raws, &rep); err != nil {
		tel.ReportBroken(report_renormalize, err)
		return rep, err
	}
	p.logReport(tel, "renormalize finished", rep)
	return rep, nil
}

func (p *Pipeline) logReport(tel telemetry.API, msg string, rep Report) {
	tel.ReportInfo(msg,
		"run_id", rep.RunID,
		"steps", rep.Steps,
		"stop_reason", string(rep.StopReason),
		"extracted", rep.Extracted,
		"raw", rep.Raw.Inserted,
		"clean", rep.Clean.Inserted,
		"failed", rep.Failed.Inserted,
	)
	tel.ReportCount("raw", int64(rep.Raw.Inserted))
	tel.ReportCount("clean", int64(rep.Clean.Inserted))
	tel.ReportCount("failed", int64(rep.Failed.Inserted))
}
