// Package pipeline coordinates a translation run: asset discovery under
// the input root, per-asset worker tasks bounded by the file semaphore,
// batch dispatch under the shared network gate, incremental merge against
// the existing output and an optional baseline pack, and atomic writes
// into the generated resource pack.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"sort"
	"sync"

	"golang.org/x/sync/semaphore"

	"github.com/mc-localize/mctrans/asset"
	"github.com/mc-localize/mctrans/batch"
	"github.com/mc-localize/mctrans/config"
	"github.com/mc-localize/mctrans/dispatch"
	"github.com/mc-localize/mctrans/jarfile"
	"github.com/mc-localize/mctrans/jsonfile"
	"github.com/mc-localize/mctrans/langfile"
	"github.com/mc-localize/mctrans/lockfile"
	"github.com/mc-localize/mctrans/mask"
	"github.com/mc-localize/mctrans/merge"
	"github.com/mc-localize/mctrans/snbtfile"
)

// Options configures a Runner.
type Options struct {
	// Config is the validated run configuration.
	Config *config.Config
	// Client overrides the endpoint client built from Config. Used by
	// tests; when nil a client with the configured network gate is built.
	Client *dispatch.Client
	// OnLog emits progress messages during the run.
	OnLog func(format string, args ...any)
	// OnError emits error messages during the run.
	OnError func(format string, args ...any)
}

// Status classifies the fate of one document in the run.
type Status string

const (
	// StatusTranslated means the output file was written this run.
	StatusTranslated Status = "translated"
	// StatusSkipped means nothing needed doing (output exists, no units,
	// or no new entries in update mode).
	StatusSkipped Status = "skipped"
	// StatusFailed means the document produced no output.
	StatusFailed Status = "failed"
)

// Outcome is the per-document result.
type Outcome struct {
	// Path identifies the source document: the input-relative asset
	// path, with an archive-internal suffix for jar resources.
	Path   string
	Status Status
	// Translated counts units newly translated this run.
	Translated int
	// Reused counts units carried over from the existing output or the
	// baseline pack without dispatch.
	Reused int
	// Rejected counts units dropped for corrupted protected tokens.
	// Rejected units fall back to their source text in the output.
	Rejected int
	// Err is set for failed documents and for partially failed ones
	// (some batches exhausted their retries but the output was written).
	Err error
}

// Report aggregates the outcomes of one run.
type Report struct {
	Outcomes []Outcome
}

// Counts returns the number of translated, skipped and failed documents.
func (r *Report) Counts() (translated, skipped, failed int) {
	for _, o := range r.Outcomes {
		switch o.Status {
		case StatusTranslated:
			translated++
		case StatusSkipped:
			skipped++
		case StatusFailed:
			failed++
		}
	}
	return
}

// Units returns the unit totals across all documents.
func (r *Report) Units() (translated, reused, rejected int) {
	for _, o := range r.Outcomes {
		translated += o.Translated
		reused += o.Reused
		rejected += o.Rejected
	}
	return
}

// Runner executes translation runs.
type Runner struct {
	cfg     *config.Config
	client  *dispatch.Client
	masker  *mask.Masker
	lock    *lockfile.LockFile
	fileSem *semaphore.Weighted
	opts    Options

	mu       sync.Mutex
	outcomes []Outcome
}

// New builds a Runner. The network gate is created from the config and
// shared by every batch the run dispatches, across all concurrent assets.
func New(opts Options) (*Runner, error) {
	cfg := opts.Config
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	masker, err := mask.New(cfg.ProtectedPatterns)
	if err != nil {
		return nil, err
	}

	client := opts.Client
	if client == nil {
		netSem := semaphore.NewWeighted(int64(cfg.MaxNetworkConcurrency))
		client = dispatch.New(dispatch.Options{
			BaseURL:    cfg.BaseURL,
			APIKey:     cfg.APIKey,
			Model:      cfg.Model,
			Prompt:     cfg.Prompt,
			SourceLang: cfg.SourceLang,
			TargetLang: cfg.TargetLang,
			Proxy:      cfg.Proxy,
			Timeout:    cfg.TimeoutDuration(),
			MaxRetries: cfg.MaxRetries,
			RetryDelay: cfg.RetryDelayDuration(),
		}, netSem)
	}

	return &Runner{
		cfg:     cfg,
		client:  client,
		masker:  masker,
		fileSem: semaphore.NewWeighted(int64(cfg.FileSemaphore)),
		opts:    opts,
	}, nil
}

func (r *Runner) logf(format string, args ...any) {
	if r.opts.OnLog != nil {
		r.opts.OnLog(format, args...)
	}
}

func (r *Runner) errorf(format string, args ...any) {
	if r.opts.OnError != nil {
		r.opts.OnError(format, args...)
	} else if r.opts.OnLog != nil {
		r.opts.OnLog(format, args...)
	}
}

// discovered is one classified asset path relative to the input root.
type discovered struct {
	rel  string
	kind asset.Kind
}

// Run discovers the modpack's translatable assets and processes them,
// bounded by the file semaphore. Cancelling ctx stops admitting new
// assets and new attempts; documents already past dispatch finish their
// writes. The report covers every admitted document.
func (r *Runner) Run(ctx context.Context) (*Report, error) {
	assets, err := r.discover()
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", r.cfg.InputPath, err)
	}
	r.logf("discovered %d translatable asset(s) under %s", len(assets), r.cfg.InputPath)

	r.lock, err = lockfile.Load(r.cfg.OutputPath)
	if err != nil {
		return nil, err
	}

	if err := WritePackMeta(r.cfg.OutputPath); err != nil {
		return nil, err
	}

	var wg sync.WaitGroup
	for _, a := range assets {
		if err := r.fileSem.Acquire(ctx, 1); err != nil {
			r.logf("run cancelled, %s and later assets not admitted", a.rel)
			break
		}
		wg.Add(1)
		go func(a discovered) {
			defer wg.Done()
			defer r.fileSem.Release(1)
			r.processAsset(ctx, a)
		}(a)
	}
	wg.Wait()

	if err := r.lock.Save(); err != nil {
		r.errorf("saving lock file: %v", err)
	}

	r.mu.Lock()
	outcomes := r.outcomes
	r.mu.Unlock()
	sort.Slice(outcomes, func(i, j int) bool { return outcomes[i].Path < outcomes[j].Path })
	return &Report{Outcomes: outcomes}, nil
}

func (r *Runner) discover() ([]discovered, error) {
	var out []discovered
	root := r.cfg.InputPath
	err := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)
		if k := asset.Classify(rel, r.cfg.SourceLang); k != asset.KindUnknown {
			out = append(out, discovered{rel: rel, kind: k})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool { return out[i].rel < out[j].rel })
	return out, nil
}

func (r *Runner) record(o Outcome) {
	r.mu.Lock()
	r.outcomes = append(r.outcomes, o)
	r.mu.Unlock()
}

// document is the format-independent view the merge/dispatch flow runs on.
type document struct {
	// id names the document in logs and outcomes.
	id    string
	modID string
	// outRel is the output path relative to the output pack root.
	outRel string
	units  []asset.TranslationUnit
	// rebuild renders the full output file from id -> translated text,
	// falling back to the source text for missing ids.
	rebuild func(merge.Records) (string, error)
	// incremental marks formats whose existing output can seed the merge.
	// Quest files rebuild whole-file and only reuse baseline entries.
	incremental bool
}

func (r *Runner) processAsset(ctx context.Context, a discovered) {
	switch a.kind {
	case asset.KindJar:
		r.processJar(ctx, a.rel)
	case asset.KindJSON:
		r.processJSON(ctx, a.rel)
	case asset.KindLang:
		r.processLang(ctx, a.rel)
	case asset.KindSNBT:
		r.processSNBT(ctx, a.rel)
	}
}

func (r *Runner) processJar(ctx context.Context, rel string) {
	docs, err := jarfile.Scan(filepath.Join(r.cfg.InputPath, filepath.FromSlash(rel)), r.cfg.SourceLang)
	if err != nil {
		r.errorf("%v", err)
		r.record(Outcome{Path: rel, Status: StatusFailed, Err: err})
		return
	}
	if len(docs) == 0 {
		r.record(Outcome{Path: rel, Status: StatusSkipped})
		return
	}

	for _, d := range docs {
		d := d
		r.record(r.processDocument(ctx, document{
			id:    rel + "!" + d.InternalPath,
			modID: d.ModID,
			outRel: path.Join("assets", d.ModID, "lang",
				asset.TargetName(path.Base(d.InternalPath), r.cfg.SourceLang, r.cfg.TargetLang)),
			units:       d.File.Extract(),
			rebuild:     func(final merge.Records) (string, error) { return d.File.Rebuild(final, false) },
			incremental: true,
		}))
	}
}

func (r *Runner) processJSON(ctx context.Context, rel string) {
	data, err := os.ReadFile(filepath.Join(r.cfg.InputPath, filepath.FromSlash(rel)))
	if err != nil {
		r.record(Outcome{Path: rel, Status: StatusFailed, Err: err})
		r.errorf("reading %s: %v", rel, err)
		return
	}
	f, err := jsonfile.Parse(data)
	if err != nil {
		merr := &asset.MalformedError{Path: rel, Err: err}
		r.errorf("%v", merr)
		r.record(Outcome{Path: rel, Status: StatusFailed, Err: merr})
		return
	}

	r.record(r.processDocument(ctx, document{
		id:          rel,
		modID:       asset.ModID(rel),
		outRel:      targetRel(rel, r.cfg.SourceLang, r.cfg.TargetLang),
		units:       f.Extract(),
		rebuild:     func(final merge.Records) (string, error) { return f.Rebuild(final, false) },
		incremental: true,
	}))
}

func (r *Runner) processLang(ctx context.Context, rel string) {
	data, err := os.ReadFile(filepath.Join(r.cfg.InputPath, filepath.FromSlash(rel)))
	if err != nil {
		r.record(Outcome{Path: rel, Status: StatusFailed, Err: err})
		r.errorf("reading %s: %v", rel, err)
		return
	}
	f := langfile.Parse(data)

	r.record(r.processDocument(ctx, document{
		id:          rel,
		modID:       asset.ModID(rel),
		outRel:      targetRel(rel, r.cfg.SourceLang, r.cfg.TargetLang),
		units:       f.Extract(),
		rebuild:     func(final merge.Records) (string, error) { return f.Rebuild(final, false) },
		incremental: true,
	}))
}

func (r *Runner) processSNBT(ctx context.Context, rel string) {
	data, err := os.ReadFile(filepath.Join(r.cfg.InputPath, filepath.FromSlash(rel)))
	if err != nil {
		r.record(Outcome{Path: rel, Status: StatusFailed, Err: err})
		r.errorf("reading %s: %v", rel, err)
		return
	}
	f := snbtfile.Parse(data)

	// Quest files keep their path: the translated tree replaces the
	// original file-for-file when dropped into the pack.
	r.record(r.processDocument(ctx, document{
		id:          rel,
		modID:       "ftbquests",
		outRel:      rel,
		units:       f.Extract(),
		rebuild:     func(final merge.Records) (string, error) { return f.Rebuild(final), nil },
		incremental: false,
	}))
}

// targetRel mirrors the asset path under the output root with the file
// name switched to the target language.
func targetRel(rel, sourceLang, targetLang string) string {
	return path.Join(path.Dir(rel), asset.TargetName(path.Base(rel), sourceLang, targetLang))
}

func (r *Runner) processDocument(ctx context.Context, doc document) Outcome {
	out := Outcome{Path: doc.id}
	if len(doc.units) == 0 {
		out.Status = StatusSkipped
		return out
	}

	outPath := filepath.Join(r.cfg.OutputPath, filepath.FromSlash(doc.outRel))
	outExists := false
	if _, err := os.Stat(outPath); err == nil {
		outExists = true
	}

	mergeExisting := r.cfg.UpdateExisting && doc.incremental
	if outExists && r.cfg.SkipExisting && !mergeExisting {
		r.logf("skipping %s: output already exists", doc.id)
		out.Status = StatusSkipped
		return out
	}

	// Accepted entries layered baseline-first so a previously generated
	// output wins over the bundled baseline.
	accepted := merge.Records{}
	if r.cfg.BaselinePath != "" {
		accepted = merge.Overlay(accepted,
			r.readRecords(filepath.Join(r.cfg.BaselinePath, filepath.FromSlash(doc.outRel))))
	}
	if mergeExisting && outExists {
		existing := r.readRecords(outPath)
		// Source-text fallbacks written for failed or rejected units
		// carry no checksum record; drop them here so they go back
		// through dispatch instead of being frozen as accepted.
		// Outputs predating the lock file have no records at all and
		// are trusted wholesale.
		if r.lock.HasDocument(doc.outRel) {
			for id := range existing {
				if !r.lock.Has(doc.outRel, id) {
					delete(existing, id)
				}
			}
		}
		accepted = merge.Overlay(accepted, existing)
	}
	// Entries whose source text changed since they were recorded are
	// stale and go back through dispatch.
	for _, u := range doc.units {
		if r.lock.Stale(doc.outRel, u.ID, u.Source) {
			delete(accepted, u.ID)
		}
	}

	pending, kept := merge.Partition(accepted, doc.units)
	out.Reused = len(kept)

	if len(pending) == 0 && mergeExisting && outExists {
		r.logf("no new entries for %s", doc.id)
		out.Status = StatusSkipped
		return out
	}
	if out.Reused > 0 {
		r.logf("%s: reusing %d existing translation(s)", doc.id, out.Reused)
	}

	if mergeExisting && len(pending) > 0 {
		r.backupPending(doc, pending)
	}

	newly, rejected, dispatchErr := r.translate(ctx, doc, pending)
	out.Translated = len(newly)
	out.Rejected = rejected
	out.Err = dispatchErr

	if len(newly) == 0 && len(kept) == 0 {
		if dispatchErr == nil {
			dispatchErr = ctx.Err()
		}
		if dispatchErr == nil && rejected > 0 {
			dispatchErr = fmt.Errorf("all %d unit(s) rejected for corrupted protected tokens", rejected)
		}
		if dispatchErr == nil {
			dispatchErr = fmt.Errorf("no units translated")
		}
		out.Status = StatusFailed
		out.Err = dispatchErr
		return out
	}

	content, err := doc.rebuild(merge.Combine(kept, newly))
	if err != nil {
		out.Status = StatusFailed
		out.Err = err
		r.errorf("rebuilding %s: %v", doc.id, err)
		return out
	}
	if err := writeFileAtomic(outPath, []byte(content)); err != nil {
		out.Status = StatusFailed
		out.Err = err
		r.errorf("writing %s: %v", outPath, err)
		return out
	}

	r.recordChecksums(doc, kept, newly)

	out.Status = StatusTranslated
	r.logf("wrote %s (%d new, %d reused)", doc.outRel, out.Translated, out.Reused)
	return out
}

// translate masks, batches and dispatches the pending units. Batches run
// concurrently; the client's shared gate bounds actual network requests.
// A failed batch is reported and its units fall back to source text; the
// rest of the document is unaffected.
func (r *Runner) translate(ctx context.Context, doc document, pending []asset.TranslationUnit) (merge.Records, int, error) {
	if len(pending) == 0 {
		return merge.Records{}, 0, nil
	}

	masked := make([]mask.MaskedUnit, len(pending))
	for i, u := range pending {
		masked[i] = r.masker.Mask(u)
	}
	batches := batch.Split(doc.id, doc.modID, masked, r.cfg.BatchSize)
	r.logf("%s: dispatching %d unit(s) in %d batch(es)", doc.id, len(pending), len(batches))

	newly := merge.Records{}
	var (
		mu       sync.Mutex
		rejected int
		firstErr error
		wg       sync.WaitGroup
	)
	for _, b := range batches {
		wg.Add(1)
		go func(b batch.Batch) {
			defer wg.Done()
			texts, err := r.client.Dispatch(ctx, b)
			if err != nil {
				r.errorf("%s batch %d: %v", b.DocumentID, b.Index, err)
				mu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				mu.Unlock()
				return
			}
			for i, u := range b.Units {
				restored, err := mask.Unmask(texts[i], u)
				if err != nil {
					r.errorf("%s: %v", b.DocumentID, err)
					mu.Lock()
					rejected++
					mu.Unlock()
					continue
				}
				mu.Lock()
				newly[u.Unit.ID] = restored
				mu.Unlock()
			}
		}(b)
	}
	wg.Wait()

	return newly, rejected, firstErr
}

// recordChecksums updates the lock file for ids whose translation is now
// accepted, and drops ids that vanished from the source document.
func (r *Runner) recordChecksums(doc document, kept, newly merge.Records) {
	entries := make(map[string]string)
	ids := make([]string, 0, len(doc.units))
	for _, u := range doc.units {
		ids = append(ids, u.ID)
		if _, ok := kept[u.ID]; ok {
			entries[u.ID] = u.Source
		} else if _, ok := newly[u.ID]; ok {
			entries[u.ID] = u.Source
		}
	}
	r.lock.Record(doc.outRel, entries)
	r.lock.Clean(doc.outRel, ids)
}

// readRecords extracts id -> text from an already-translated file, used
// for both the existing output and the baseline pack. Unreadable or
// unparsable files contribute nothing.
func (r *Runner) readRecords(p string) merge.Records {
	data, err := os.ReadFile(p)
	if err != nil {
		return merge.Records{}
	}

	var units []asset.TranslationUnit
	switch path.Ext(p) {
	case ".json":
		f, err := jsonfile.Parse(data)
		if err != nil {
			r.errorf("ignoring unparsable %s: %v", p, err)
			return merge.Records{}
		}
		units = f.Extract()
	case ".lang":
		units = langfile.Parse(data).Extract()
	case ".snbt":
		units = snbtfile.Parse(data).Extract()
	default:
		return merge.Records{}
	}

	records := make(merge.Records, len(units))
	for _, u := range units {
		records[u.ID] = u.Source
	}
	return records
}

// backupPending saves the untranslated text of an incremental update under
// raw_content/, so a bad model run can be diffed against what was sent.
func (r *Runner) backupPending(doc document, pending []asset.TranslationUnit) {
	rawDir := filepath.Join(r.cfg.OutputPath, "raw_content")
	if err := os.MkdirAll(rawDir, 0755); err != nil {
		r.errorf("creating %s: %v", rawDir, err)
		return
	}

	m := make(map[string]string, len(pending))
	for _, u := range pending {
		m[u.ID] = u.Source
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		r.errorf("encoding raw content for %s: %v", doc.id, err)
		return
	}

	name := doc.modID + "_" + path.Base(doc.outRel)
	if err := os.WriteFile(filepath.Join(rawDir, name), data, 0644); err != nil {
		r.errorf("backing up raw content for %s: %v", doc.id, err)
	}
}

// writeFileAtomic writes via a temp file and rename so a cancelled or
// crashed run never leaves a half-written language file in the pack.
func writeFileAtomic(p string, data []byte) error {
	if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
		return fmt.Errorf("creating %s: %w", filepath.Dir(p), err)
	}
	tmp := p + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("writing %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, p); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("renaming %s: %w", tmp, err)
	}
	return nil
}

// packFormat 3 targets the 1.12-era packs the legacy .lang handling
// exists for; newer game versions load the pack with a format warning.
const packFormat = 3

const packDescription = "§aAI-generated language pack§r by §bmctrans§r"

// WritePackMeta writes the pack.mcmeta manifest so the output directory
// is loadable as a Minecraft resource pack.
func WritePackMeta(outputRoot string) error {
	payload := struct {
		Pack struct {
			PackFormat  int    `json:"pack_format"`
			Description string `json:"description"`
		} `json:"pack"`
	}{}
	payload.Pack.PackFormat = packFormat
	payload.Pack.Description = packDescription

	data, err := json.MarshalIndent(payload, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding pack.mcmeta: %w", err)
	}
	if err := os.MkdirAll(outputRoot, 0755); err != nil {
		return fmt.Errorf("creating %s: %w", outputRoot, err)
	}
	return os.WriteFile(filepath.Join(outputRoot, "pack.mcmeta"), data, 0644)
}
