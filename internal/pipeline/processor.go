// Package pipeline consolidates datasets into gzip-compressed NDJSON
// artifacts.
//
// A Processor runs one dataset through the states
//
//	init -> reading -> finalizing -> done
//
// with any failure leaving the part-file and the checkpoint in place so that
// the next run resumes after the last completed source file. The
// Orchestrator runs a list of datasets in order, isolating their failures.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"time"

	"consolidate/internal/checkpoint"
	"consolidate/internal/config"
	"consolidate/internal/datasource/file"
	"consolidate/internal/metrics"
	"consolidate/internal/parser"
	csvparser "consolidate/internal/parser/csv"
	"consolidate/internal/record"
	"consolidate/internal/runlog"
	"consolidate/internal/schema"
	"consolidate/internal/storage/gzfile"
	"consolidate/internal/transformer/builtin"
)

// ArtifactSuffix is appended to the dataset name to form the artifact name.
const ArtifactSuffix = ".json.gz"

// cancelCheckEvery is how many records are streamed between context checks.
const cancelCheckEvery = 1024

// Options configures a Processor.
type Options struct {
	InputRoot string
	OutputDir string

	CSV                csvparser.Options
	NamespaceSeparator string
	CollisionPolicy    builtin.CollisionPolicy
	GzipLevel          int

	SkipExisting    bool
	RebuildOnResume bool

	// MaxLoggedMalformed caps malformed-record log lines per dataset;
	// negative means unlimited, zero selects the default.
	MaxLoggedMalformed int

	// Rejects, when set, receives every skipped record.
	Rejects *runlog.Rejects
}

// OptionsFromConfig maps a run configuration onto processor options.
func OptionsFromConfig(r config.Run) (Options, error) {
	policy, err := builtin.ParseCollisionPolicy(r.Normalize.CollisionPolicy)
	if err != nil {
		return Options{}, err
	}
	return Options{
		InputRoot:          r.InputRoot,
		OutputDir:          r.OutputDir,
		CSV:                csvparser.FromConfigOptions(r.Reader.Options, r.Reader.BatchSize),
		NamespaceSeparator: r.Normalize.NamespaceSeparator,
		CollisionPolicy:    policy,
		GzipLevel:          r.Output.GzipLevel,
		SkipExisting:       r.SkipExisting,
		RebuildOnResume:    r.RebuildOnResume,
		MaxLoggedMalformed: r.MaxLoggedMalformed,
	}, nil
}

// ArtifactPath returns <outputDir>/<dataset>.json.gz.
func ArtifactPath(outputDir, dataset string) string {
	return filepath.Join(outputDir, dataset+ArtifactSuffix)
}

// PartPath returns the in-progress path of a dataset artifact.
func PartPath(outputDir, dataset string) string {
	return ArtifactPath(outputDir, dataset) + gzfile.PartSuffix
}

// Processor consolidates single datasets. It is not safe for concurrent use;
// datasets are meant to be processed one after another.
type Processor struct {
	opt   Options
	store checkpoint.Store
	log   *log.Logger
}

// NewProcessor returns a Processor persisting resume state in store and
// logging to logger (nil discards).
func NewProcessor(opt Options, store checkpoint.Store, logger *log.Logger) *Processor {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if opt.NamespaceSeparator == "" {
		opt.NamespaceSeparator = config.DefaultNamespaceSeparator
	}
	if opt.MaxLoggedMalformed == 0 {
		opt.MaxLoggedMalformed = config.DefaultMaxLoggedMalformed
	}
	return &Processor{opt: opt, store: store, log: logger}
}

// Process runs one dataset to completion or failure. It never panics on bad
// input and always returns a Result; Result.Err is a *DatasetError on failure.
func (p *Processor) Process(ctx context.Context, name string) Result {
	start := time.Now()
	r := p.newRun(name)
	p.log.Printf("dataset %s: start (%s)", name, r.ds.Dir)

	phase, err := r.exec(ctx)
	res := Result{
		Dataset:  name,
		Phase:    phase,
		Err:      err,
		Stats:    r.snapshot(),
		Duration: time.Since(start),
		Skipped:  r.skipped,
	}
	if err == nil && !r.skipped {
		res.Artifact = r.final
		s := res.Stats
		p.log.Printf("dataset %s: done rows=%d malformed=%d dup_seen=%t duplicates=%d columns=%d schema=%016x files=%d skipped=%d unsupported=%d in %s",
			name, s.Rows, s.Malformed, s.DupSeen, s.Duplicates, len(s.Columns), s.Fingerprint,
			s.FilesProcessed, s.FilesSkipped, s.FilesUnsupported, res.Duration.Round(time.Millisecond))
	}

	s := res.Stats
	metrics.RecordStep(name, "dataset", err, res.Duration)
	metrics.RecordDataset(name, err)
	metrics.RecordRows(name, "written", s.Rows-s.ResumedRows)
	metrics.RecordRows(name, "malformed", s.Malformed)
	metrics.RecordRows(name, "duplicates", s.Duplicates)
	metrics.RecordFiles(name, "processed", int64(s.FilesProcessed))
	metrics.RecordFiles(name, "skipped", int64(s.FilesSkipped))
	metrics.RecordFiles(name, "unsupported", int64(s.FilesUnsupported))
	return res
}

// run is the state of one Process call.
type run struct {
	p     *Processor
	name  string
	ds    file.Dataset
	final string
	part  string

	files   []string
	st      checkpoint.State
	resume  bool
	skipped bool
	w       *gzfile.Writer

	norm  *builtin.Normalize
	dup   *builtin.DupDetector
	drift *schema.DriftTracker

	stats   Stats
	file    string // source file in progress
	seeding bool
	logged  int // malformed log lines written
}

func (p *Processor) newRun(name string) *run {
	r := &run{
		p:     p,
		name:  name,
		ds:    file.NewDataset(p.opt.InputRoot, name),
		final: ArtifactPath(p.opt.OutputDir, name),
		part:  PartPath(p.opt.OutputDir, name),
		norm:  builtin.NewNormalize(p.opt.NamespaceSeparator, p.opt.CollisionPolicy),
		dup:   builtin.NewDupDetector(),
	}
	r.drift = schema.NewDriftTracker(func(col string) {
		p.log.Printf("dataset %s: new column %q in %s", name, col, r.file)
	})
	return r
}

func (r *run) exec(ctx context.Context) (Phase, error) {
	if err := r.init(ctx); err != nil {
		return PhaseInit, r.fail(PhaseInit, err)
	}
	if r.skipped {
		return PhaseDone, nil
	}

	start := time.Now()
	phase, err := r.read(ctx)
	metrics.RecordStep(r.name, string(PhaseReading), err, time.Since(start))
	if err != nil {
		return phase, r.fail(phase, err)
	}

	start = time.Now()
	err = r.finalize(ctx)
	metrics.RecordStep(r.name, string(PhaseFinalizing), err, time.Since(start))
	if err != nil {
		return PhaseFinalizing, r.fail(PhaseFinalizing, err)
	}
	return PhaseDone, nil
}

func (r *run) init(ctx context.Context) error {
	logger := r.p.log

	ok, err := r.ds.Exists()
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: %s", ErrMissingDataset, r.ds.Dir)
	}

	st, have, err := r.p.store.Load(ctx, r.name)
	if err != nil {
		return fmt.Errorf("load checkpoint: %w", err)
	}

	if r.p.opt.SkipExisting && !have {
		if _, err := os.Stat(r.final); err == nil {
			logger.Printf("dataset %s: artifact %s exists and no checkpoint; skipped", r.name, r.final)
			r.skipped = true
			return nil
		}
	}

	if r.files, err = r.ds.Files(ctx); err != nil {
		return err
	}

	if have && st.Rows > 0 {
		exists, err := gzfile.PartExists(r.part)
		if err != nil {
			return fmt.Errorf("stat part-file: %w", err)
		}
		if !exists {
			logger.Printf("dataset %s: WARNING checkpoint after %s (%d rows) but part-file %s is missing; starting over",
				r.name, st.LastFile, st.Rows, r.part)
			if err := r.p.store.Clear(ctx, r.name); err != nil {
				return fmt.Errorf("clear checkpoint: %w", err)
			}
			st = checkpoint.State{}
		} else {
			r.resume = true
		}
	}
	r.st = st
	r.stats.Rows = st.Rows
	r.stats.ResumedRows = st.Rows

	if r.resume {
		logger.Printf("dataset %s: resuming after %s (%d rows, part offset %d)", r.name, st.LastFile, st.Rows, st.Offset)
		if r.p.opt.RebuildOnResume {
			if err := r.seed(ctx); err != nil {
				return fmt.Errorf("rebuild diagnostics: %w", err)
			}
		} else {
			logger.Printf("dataset %s: WARNING duplicate and new-column diagnostics cover only records after %s", r.name, st.LastFile)
		}
	}

	r.w, err = gzfile.Open(r.part, gzfile.Options{
		Resume: r.resume,
		Offset: st.Offset,
		Level:  r.p.opt.GzipLevel,
	})
	return err
}

// seed re-reads the files completed before the checkpoint to restore the
// digest set and the column set. Nothing is written.
func (r *run) seed(ctx context.Context) error {
	r.seeding = true
	r.drift.Silence(true)
	defer func() {
		r.seeding = false
		r.drift.Silence(false)
		r.file = ""
	}()

	n := 0
	for _, name := range r.files {
		if !r.st.Skip(name) || parser.DetectFormat(name) == parser.FormatUnknown {
			continue
		}
		r.file = name
		src, err := parser.Open(r.ds.Path(name), parser.Options{CSV: r.p.opt.CSV})
		if err != nil {
			return err
		}
		err = r.stream(ctx, src, func(*record.Record) error { return nil })
		src.Close()
		if err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		n++
	}
	r.p.log.Printf("dataset %s: rebuilt diagnostics from %d completed files (%d digests, %d columns)",
		r.name, n, r.dup.Size(), r.drift.Len())
	return nil
}

func (r *run) read(ctx context.Context) (Phase, error) {
	logger := r.p.log
	for _, name := range r.files {
		if r.st.Skip(name) {
			r.stats.FilesSkipped++
			logger.Printf("dataset %s: skip %s (completed before checkpoint)", r.name, name)
			continue
		}
		if parser.DetectFormat(name) == parser.FormatUnknown {
			r.stats.FilesUnsupported++
			logger.Printf("dataset %s: skip %s (unsupported extension)", r.name, name)
			continue
		}

		r.file = name
		before := r.stats.Rows
		if phase, err := r.copyFile(ctx, name); err != nil {
			return phase, err
		}

		off, err := r.w.Commit()
		if err != nil {
			return PhaseWriting, err
		}
		st := checkpoint.State{LastFile: name, Rows: r.stats.Rows, Offset: off}
		// The part-file is already committed; the checkpoint must follow
		// even if the run is being cancelled.
		if err := r.p.store.Save(context.WithoutCancel(ctx), r.name, st); err != nil {
			return PhaseWriting, fmt.Errorf("save checkpoint: %w", err)
		}
		r.stats.FilesProcessed++
		logger.Printf("dataset %s: %s done (%d records, %d total)", r.name, name, r.stats.Rows-before, r.stats.Rows)
	}
	r.file = ""
	return PhaseReading, nil
}

func (r *run) copyFile(ctx context.Context, name string) (Phase, error) {
	src, err := parser.Open(r.ds.Path(name), parser.Options{
		CSV: r.p.opt.CSV,
		OnMalformed: func(line int, raw []byte, err error) {
			r.malformed(line, raw, runlog.ReasonMalformedJSON, err)
		},
	})
	if err != nil {
		return PhaseReading, err
	}
	defer src.Close()

	var werr error
	err = r.stream(ctx, src, func(rec *record.Record) error {
		if werr = r.w.Write(rec); werr != nil {
			return werr
		}
		r.stats.Rows++
		return nil
	})
	if err != nil {
		if werr != nil {
			return PhaseWriting, err
		}
		return PhaseReading, err
	}
	return PhaseReading, nil
}

// stream pulls every record of src through the normalizer and the
// diagnostics, handing the result to emit.
func (r *run) stream(ctx context.Context, src parser.Source, emit func(*record.Record) error) error {
	for n := 0; ; n++ {
		if n%cancelCheckEvery == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		rec, err := src.Next()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}

		in := rec
		rec, err = r.norm.Apply(in)
		if err != nil {
			if errors.Is(err, builtin.ErrKeyCollision) {
				if !r.seeding {
					r.malformed(0, in.AppendJSON(nil), runlog.ReasonKeyCollision, err)
				}
				continue
			}
			return err
		}

		r.drift.Observe(rec)
		if _, first := r.dup.Observe(rec); first {
			sum := r.dup.Sum(rec)
			if r.seeding {
				r.p.log.Printf("dataset %s: duplicate record among completed files (%s, digest %x)", r.name, r.file, sum[:8])
			} else {
				r.p.log.Printf("dataset %s: first duplicate record in %s (digest %x); further duplicates are counted only", r.name, r.file, sum[:8])
			}
		}

		if err := emit(rec); err != nil {
			return err
		}
	}
}

// malformed counts a skipped record of the current file. line is 0 when the
// position is unknown.
func (r *run) malformed(line int, raw []byte, reason string, err error) {
	r.stats.Malformed++
	r.p.opt.Rejects.Add(r.name, r.file, line, reason, raw)

	where := r.file
	if line > 0 {
		where = fmt.Sprintf("%s:%d", r.file, line)
	}
	limit := r.p.opt.MaxLoggedMalformed
	switch {
	case limit < 0 || r.logged < limit:
		r.p.log.Printf("dataset %s: WARNING malformed record skipped at %s: %v", r.name, where, err)
	case r.logged == limit:
		r.p.log.Printf("dataset %s: more than %d malformed records; not logging further ones", r.name, limit)
	default:
		return
	}
	r.logged++
}

func (r *run) finalize(ctx context.Context) error {
	if err := r.w.Finalize(r.final); err != nil {
		return err
	}
	if err := r.p.store.Clear(context.WithoutCancel(ctx), r.name); err != nil {
		return fmt.Errorf("clear checkpoint: %w", err)
	}
	return nil
}

// fail closes the writer (keeping the part-file), logs the failure with its
// context and returns the wrapped error.
func (r *run) fail(phase Phase, err error) error {
	if r.w != nil {
		if cerr := r.w.Close(); cerr != nil {
			r.p.log.Printf("dataset %s: close part-file: %v", r.name, cerr)
		}
	}
	derr := &DatasetError{Dataset: r.name, Phase: phase, File: r.file, Err: err}
	if errors.Is(err, ErrMissingDataset) {
		r.p.log.Printf("dataset %s: ERROR %v; no artifact written", r.name, err)
		return derr
	}
	r.p.log.Printf("dataset %s: ERROR %v (rows=%d malformed=%d); part-file and checkpoint kept for resume",
		r.name, derr, r.stats.Rows, r.stats.Malformed)
	return derr
}

func (r *run) snapshot() Stats {
	s := r.stats
	s.DupSeen = r.dup.DupSeen()
	s.Duplicates = r.dup.Count()
	s.Columns = r.drift.Columns()
	s.Fingerprint = r.drift.Fingerprint()
	return s
}
