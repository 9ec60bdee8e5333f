package pipeline

import (
	"context"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"scanchannels/pkg/decode"
)

// DatasetResult is the outcome of one scan file in a batch.
type DatasetResult struct {
	Source  string
	Dataset string
	Outputs []Output
	Err     error
}

// BatchSummary aggregates a batch run. Results are in input order.
type BatchSummary struct {
	Results  []DatasetResult
	Failed   int
	Files    int
	Bytes    int64
	Duration time.Duration
}

// Batch drives a Pipeline over directories of scan files. A failing scan is
// logged and counted, the rest of the batch still runs.
type Batch struct {
	Pipeline *Pipeline
	Decoders *decode.Registry

	// Extensions restricts the scan files picked up, all registered
	// decoder extensions when empty
	Extensions []string

	// Workers bounds the number of datasets processed at once, 1 when <= 0
	Workers int

	Log zerolog.Logger
}

type job struct {
	source string
	root   string
}

// RunFlat processes every scan directly inside inputDir into outputDir.
func (b *Batch) RunFlat(ctx context.Context, inputDir, outputDir string) (BatchSummary, error) {
	entries, err := os.ReadDir(inputDir)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("failed to list %s: %w", inputDir, err)
	}

	var jobs []job
	for _, e := range entries {
		if e.IsDir() || !b.accepts(e.Name()) {
			continue
		}
		jobs = append(jobs, job{source: filepath.Join(inputDir, e.Name()), root: outputDir})
	}

	return b.run(ctx, Flat{}, jobs)
}

// RunDetailed walks inputRoot recursively. A scan found in a subdirectory
// is written below the same relative subdirectory of outputRoot, so
// <in>/week1/kmc2/week1_kmc2.scn lands in <out>/week1/kmc2/week1_kmc2/.
func (b *Batch) RunDetailed(ctx context.Context, inputRoot, outputRoot string) (BatchSummary, error) {
	var jobs []job
	err := filepath.WalkDir(inputRoot, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !b.accepts(d.Name()) {
			return nil
		}
		rel, err := filepath.Rel(inputRoot, filepath.Dir(path))
		if err != nil {
			return err
		}
		jobs = append(jobs, job{source: path, root: filepath.Join(outputRoot, rel)})
		return nil
	})
	if err != nil {
		return BatchSummary{}, fmt.Errorf("failed to walk %s: %w", inputRoot, err)
	}

	return b.run(ctx, Detailed{}, jobs)
}

func (b *Batch) run(ctx context.Context, layout Layout, jobs []job) (BatchSummary, error) {
	start := time.Now()
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].source < jobs[j].source })

	summary := BatchSummary{Results: make([]DatasetResult, len(jobs))}
	var mu sync.Mutex

	dups := duplicates(layout, jobs)
	for i, err := range dups {
		summary.Results[i] = DatasetResult{Source: jobs[i].source, Dataset: decode.DatasetID(jobs[i].source), Err: err}
		summary.Failed++
		b.Log.Error().Err(err).Str("source", jobs[i].source).Msg("skipping scan")
	}

	workers := b.Workers
	if workers <= 0 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)

	for i, j := range jobs {
		if gctx.Err() != nil {
			break
		}
		if _, dup := dups[i]; dup {
			continue
		}
		i, j := i, j
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			res := b.processOne(layout, j)

			mu.Lock()
			summary.Results[i] = res
			if res.Err != nil {
				summary.Failed++
			}
			for _, o := range res.Outputs {
				summary.Files++
				summary.Bytes += o.Bytes
			}
			mu.Unlock()
			return nil
		})
	}
	err := g.Wait()
	if err == nil {
		err = ctx.Err()
	}
	summary.Duration = time.Since(start)

	b.Log.Info().
		Str("layout", layout.Name()).
		Int("datasets", len(jobs)).
		Int("failed", summary.Failed).
		Int("files", summary.Files).
		Str("written", humanize.Bytes(uint64(summary.Bytes))).
		Dur("elapsed", summary.Duration).
		Msg("batch complete")

	return summary, err
}

// duplicates finds jobs whose dataset would write to the same paths as an
// earlier job. jobs must be sorted; the first source of a dataset wins.
func duplicates(layout Layout, jobs []job) map[int]error {
	owner := make(map[string]string)
	dups := make(map[int]error)
	for i, j := range jobs {
		key := layout.Path(j.root, decode.DatasetID(j.source), 1, 0)
		if first, ok := owner[key]; ok {
			dups[i] = fmt.Errorf("%w: %s and %s both map to dataset %q",
				ErrDuplicateDataset, first, j.source, decode.DatasetID(j.source))
			continue
		}
		owner[key] = j.source
	}
	return dups
}

// processOne decodes and renders a single scan. Errors are logged and
// returned in the result, never propagated.
func (b *Batch) processOne(layout Layout, j job) DatasetResult {
	dataset := decode.DatasetID(j.source)
	res := DatasetResult{Source: j.source, Dataset: dataset}

	b.Log.Info().Str("layout", layout.Name()).Str("source", j.source).Msg("processing scan")

	arr, err := b.Decoders.DecodeFile(j.source)
	if err != nil {
		res.Err = err
		b.Log.Error().Err(err).Str("dataset", dataset).Str("source", j.source).Msg("decode failed")
		return res
	}

	res.Outputs, res.Err = b.Pipeline.Process(arr, dataset, j.root, layout)
	if res.Err != nil {
		b.Log.Error().Err(res.Err).Str("dataset", dataset).Ints("shape", arr.Shape).Msg("processing failed")
	}
	return res
}

// accepts reports whether name is a scan file this batch should pick up.
func (b *Batch) accepts(name string) bool {
	if strings.HasPrefix(name, ".") || !b.Decoders.Supports(name) {
		return false
	}
	if len(b.Extensions) == 0 {
		return true
	}
	ext := filepath.Ext(name)
	for _, e := range b.Extensions {
		if strings.EqualFold(e, ext) {
			return true
		}
	}
	return false
}
