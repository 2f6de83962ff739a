// Command draftspec is the thin CLI entry point: it wires the core
// components (spec.md §4) together and leaves the script dialect's
// compile/evaluate machinery to the evaluator boundary, per spec.md §1's
// explicit scope line. Grounded on cmd/kilroy/main.go's manual
// os.Args[1] dispatch and one flag.FlagSet per subcommand.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/juvistr/draftspec/internal/cache"
	"github.com/juvistr/draftspec/internal/depgraph"
	"github.com/juvistr/draftspec/internal/draftconfig"
	"github.com/juvistr/draftspec/internal/draftlog"
	"github.com/juvistr/draftspec/internal/evaluator"
	"github.com/juvistr/draftspec/internal/history"
	"github.com/juvistr/draftspec/internal/reporting"
	"github.com/juvistr/draftspec/internal/runner"
	"github.com/juvistr/draftspec/internal/scriptparse"
	"github.com/juvistr/draftspec/internal/selection"
	"github.com/juvistr/draftspec/internal/snapshotstore"
	"github.com/juvistr/draftspec/internal/specid"
	"github.com/juvistr/draftspec/internal/spectree"
	"github.com/juvistr/draftspec/internal/watch"
)

// scriptEvaluator is the evaluator this build links in. The core module
// ships only the boundary interface (spec.md §6) plus a test fake; a
// distribution that bundles the script dialect's compiler assigns it here.
var scriptEvaluator evaluator.Evaluator

// envFilter builds a FilterSpec from the DRAFTSPEC_FILTER_TAGS,
// DRAFTSPEC_EXCLUDE_TAGS, DRAFTSPEC_FILTER_NAME and DRAFTSPEC_EXCLUDE_NAME
// environment variables (spec.md §6), merging them under whatever flags
// the caller already set.
func envFilter(filter selection.FilterSpec) selection.FilterSpec {
	if v := os.Getenv("DRAFTSPEC_FILTER_TAGS"); v != "" {
		filter.IncludeTags = append(filter.IncludeTags, splitCSV(v)...)
	}
	if v := os.Getenv("DRAFTSPEC_EXCLUDE_TAGS"); v != "" {
		filter.ExcludeTags = append(filter.ExcludeTags, splitCSV(v)...)
	}
	if v := os.Getenv("DRAFTSPEC_FILTER_NAME"); v != "" && filter.IncludeNamePattern == "" {
		filter.IncludeNamePattern = v
	}
	if v := os.Getenv("DRAFTSPEC_EXCLUDE_NAME"); v != "" && filter.ExcludeNamePattern == "" {
		filter.ExcludeNamePattern = v
	}
	return filter
}

// mergeFilterDocument folds a validated --filter-file document into the
// flag/env-derived filter. Tag, context, and status rules union; name
// regex lists alternate into a single pattern, with an explicit flag or
// env pattern taking precedence, matching envFilter's convention.
func mergeFilterDocument(filter selection.FilterSpec, doc draftconfig.FilterDocument) selection.FilterSpec {
	filter.IncludeTags = append(filter.IncludeTags, doc.IncludeTags...)
	filter.ExcludeTags = append(filter.ExcludeTags, doc.ExcludeTags...)
	filter.IncludeContexts = append(filter.IncludeContexts, doc.IncludeContexts...)
	filter.ExcludeContexts = append(filter.ExcludeContexts, doc.ExcludeContexts...)
	if len(doc.IncludeNames) > 0 && filter.IncludeNamePattern == "" {
		filter.IncludeNamePattern = strings.Join(doc.IncludeNames, "|")
	}
	if len(doc.ExcludeNames) > 0 && filter.ExcludeNamePattern == "" {
		filter.ExcludeNamePattern = strings.Join(doc.ExcludeNames, "|")
	}
	filter.FocusedOnly = filter.FocusedOnly || doc.FocusedOnly
	filter.PendingOnly = filter.PendingOnly || doc.PendingOnly
	filter.SkippedOnly = filter.SkippedOnly || doc.SkippedOnly
	return filter
}

func splitCSV(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

func envTruthy(name string) bool {
	switch strings.ToLower(os.Getenv(name)) {
	case "1", "true", "yes", "on":
		return true
	}
	return false
}

// progressLogger opens the ndjson progress stream named by
// DRAFTSPEC_PROGRESS_STREAM, or a no-op logger if unset.
func progressLogger() (*draftlog.Logger, func()) {
	path := os.Getenv("DRAFTSPEC_PROGRESS_STREAM")
	if path == "" {
		return draftlog.New(nil), func() {}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "warning: could not open DRAFTSPEC_PROGRESS_STREAM %s: %v\n", path, err)
		return draftlog.New(nil), func() {}
	}
	return draftlog.New(f), func() { f.Close() }
}

// logReporter forwards reporter events onto the draftlog progress stream.
type logReporter struct {
	log *draftlog.Logger
}

func (r *logReporter) RunStarting(total int, start time.Time) {
	r.log.RunStarting(total)
}

func (r *logReporter) SpecCompleted(res spectree.SpecResult) {
	r.log.SpecCompleted(res.Spec.DisplayName(), string(res.Status), res.Duration.Milliseconds())
}

func (r *logReporter) RunCompleted(s reporting.Summary) {
	r.log.RunCompleted(s.Total, s.Passed, s.Failed, s.Pending, s.Skipped)
}

// historyReporter appends each result to the flaky-detection history
// store (spec.md §6 on-disk state), flushed by the caller after the run.
type historyReporter struct {
	store *history.Store
}

func (r *historyReporter) RunStarting(total int, start time.Time) {}

func (r *historyReporter) SpecCompleted(res spectree.SpecResult) {
	r.store.Append(specid.IdentityHash(res.Spec.Identity()), history.Run{
		Status:    string(res.Status),
		Timestamp: time.Now(),
	})
}

func (r *historyReporter) RunCompleted(reporting.Summary) {}

// noSummaryReporter drops the final summary line (--no-stats) while
// passing every other event through.
type noSummaryReporter struct {
	reporting.Reporter
}

func (r *noSummaryReporter) RunCompleted(reporting.Summary) {}

func signalCancelContext() (context.Context, func()) {
	ctx, cancel := context.WithCancelCause(context.Background())
	sigCh := make(chan os.Signal, 1)
	stopCh := make(chan struct{})
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		for {
			select {
			case sig := <-sigCh:
				cancel(fmt.Errorf("stopped by signal %s", sig.String()))
			case <-stopCh:
				return
			}
		}
	}()
	cleanup := func() {
		signal.Stop(sigCh)
		close(stopCh)
		cancel(nil)
	}
	return ctx, cleanup
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		os.Exit(cmdRun(os.Args[2:]))
	case "list":
		os.Exit(cmdList(os.Args[2:]))
	case "validate":
		os.Exit(cmdValidate(os.Args[2:]))
	case "watch":
		os.Exit(cmdWatch(os.Args[2:]))
	case "new":
		os.Exit(cmdNew(os.Args[2:]))
	case "init":
		os.Exit(cmdInit(os.Args[2:]))
	default:
		usage()
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage:")
	fmt.Fprintln(os.Stderr, "  draftspec run [--config <file>] [--parallel] [--degree N] [--bail] [--tag <t>] [--exclude-tag <t>] [--name <regex>] [--filter-file <file>] [--stats-only] [--no-cache] [--reporters tree,ndjson] <path>")
	fmt.Fprintln(os.Stderr, "  draftspec list [--format tree|flat|json] <path>")
	fmt.Fprintln(os.Stderr, "  draftspec validate [--strict] [--quiet] <file>...")
	fmt.Fprintln(os.Stderr, "  draftspec watch [--incremental] <path>")
	fmt.Fprintln(os.Stderr, "  draftspec new <name>")
	fmt.Fprintln(os.Stderr, "  draftspec init")
}

// specFileExt is the spec-file suffix `new`/`init` scaffold and discovery
// recognize, mirroring the teacher's convention of matching files by
// extension during directory discovery rather than a content sniff.
const specFileExt = ".dspec"

// parseCacheDir is the incremental parse cache location (spec.md §6).
const parseCacheDir = ".draftspec/cache/parsing"

// walkSpecFiles visits every *.dspec file under root in lexical order,
// calling visit with each path. A root that is itself a file (not a
// directory) is visited directly regardless of extension, so callers can
// target one file explicitly.
func walkSpecFiles(root string, visit func(path string)) error {
	info, err := os.Stat(root)
	if err != nil {
		return err
	}
	if !info.IsDir() {
		visit(root)
		return nil
	}
	return filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.HasSuffix(path, specFileExt) {
			visit(path)
		}
		return nil
	})
}

func discoverSpecFiles(root string) ([]string, error) {
	var files []string
	err := walkSpecFiles(root, func(path string) { files = append(files, path) })
	return files, err
}

type fileWarning struct {
	File    string
	Warning scriptparse.Warning
}

// parseFiles statically parses every file, consulting the in-memory and
// on-disk caches keyed by (absolute_path, content_hash, mtime) unless
// useCache is false, and folds the results into a dependency graph.
func parseFiles(files []string, useCache bool) (map[string]*scriptparse.Result, *depgraph.Graph, []fileWarning) {
	g := depgraph.New()
	mem := cache.New()
	disk := &cache.DiskCache{Dir: parseCacheDir}
	results := map[string]*scriptparse.Result{}
	var warnings []fileWarning

	for _, f := range files {
		src, err := os.ReadFile(f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", f, err)
			continue
		}

		var res *scriptparse.Result
		var key cache.Key
		if useCache {
			abs, absErr := filepath.Abs(f)
			if absErr != nil {
				abs = f
			}
			var mtime time.Time
			if info, statErr := os.Stat(f); statErr == nil {
				mtime = info.ModTime()
			}
			key = cache.Key{AbsolutePath: abs, ContentHash: cache.HashContent(src), ModTime: mtime}
			if hit, ok := mem.Get(key); ok {
				res = hit
			} else if hit, ok := disk.Load(key); ok {
				mem.Put(key, hit)
				res = hit
			}
		}

		if res == nil {
			parsed, parseErr := scriptparse.Parse(f, src)
			if parseErr != nil {
				fmt.Fprintf(os.Stderr, "%v\n", parseErr)
				continue
			}
			res = parsed
			if useCache {
				mem.Put(key, res)
				if err := disk.Store(key, res); err != nil {
					fmt.Fprintf(os.Stderr, "warning: could not persist parse cache for %s: %v\n", f, err)
				}
			}
		}

		results[f] = res
		g.AddFile(f, res)
		for _, w := range res.Warnings {
			warnings = append(warnings, fileWarning{File: f, Warning: w})
		}
	}
	return results, g, warnings
}

// runFiles evaluates files through the configured evaluator, assembles
// the middleware chain from cfg, and executes the whole set through
// runner.RunSet. Returns the run summary and the process exit code.
func runFiles(ctx context.Context, eval evaluator.Evaluator, files []string, cfg draftconfig.ProjectConfig, filter selection.FilterSpec, degree int, bail bool, reporters []reporting.Reporter) (reporting.Summary, int) {
	var specs []*spectree.SpecDefinition
	for _, f := range files {
		root, err := eval.Evaluate(ctx, f)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", f, err)
			continue
		}
		specs = append(specs, spectree.Flatten(root)...)
	}

	var middlewares []runner.Middleware
	if ms := draftconfig.IntOr(cfg.Timeout.DefaultMS, 0); ms > 0 {
		middlewares = append(middlewares, runner.TimeoutMiddleware{Duration: time.Duration(ms) * time.Millisecond}.Wrap)
	}
	if max := draftconfig.IntOr(cfg.Retry.MaxRetries, 0); max > 0 {
		middlewares = append(middlewares, runner.RetryMiddleware{
			MaxRetries: max,
			Backoff: runner.BackoffConfig{
				InitialDelay: time.Duration(draftconfig.IntOr(cfg.Retry.DelayMS, 0)) * time.Millisecond,
				MaxDelay:     time.Duration(draftconfig.IntOr(cfg.Retry.BackoffMS, 0)) * time.Millisecond,
				Jitter:       draftconfig.BoolOr(cfg.Retry.Jitter, false),
			},
		}.Wrap)
	}
	stores := newSnapshotStores(cfg.SnapshotDir)
	middlewares = append(middlewares, runner.SnapshotMiddleware{
		StoreFor:   stores.storeFor,
		UpdateMode: envTruthy("DRAFTSPEC_UPDATE_SNAPSHOTS"),
	}.Wrap)

	summary, err := runner.RunSet(ctx, specs, runner.RunSetOptions{
		Filter:      filter,
		Middlewares: middlewares,
		Degree:      degree,
		Bail:        bail,
		Reporters:   reporters,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return summary, 1
	}
	if err := stores.flush(); err != nil {
		fmt.Fprintf(os.Stderr, "warning: flushing snapshots: %v\n", err)
	}
	if summary.Failed > 0 {
		return summary, 1
	}
	return summary, 0
}

// snapshotStores lazily opens one snapshot document per spec file and
// flushes every dirty one after the run.
type snapshotStores struct {
	dir string

	mu     sync.Mutex
	opened map[string]*snapshotstore.Store
}

func newSnapshotStores(dir string) *snapshotStores {
	if dir == "" {
		dir = "__snapshots__"
	}
	return &snapshotStores{dir: dir, opened: map[string]*snapshotstore.Store{}}
}

func (s *snapshotStores) storeFor(spec *spectree.SpecDefinition) runner.SnapshotComparer {
	s.mu.Lock()
	defer s.mu.Unlock()
	path := snapshotstore.Dir(s.dir, spec.SourceFile)
	store, ok := s.opened[path]
	if !ok {
		var err error
		store, err = snapshotstore.Open(path)
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: opening snapshot file %s: %v\n", path, err)
			store, _ = snapshotstore.Open(filepath.Join(os.TempDir(), ".draftspec-broken.snap.json"))
		}
		s.opened[path] = store
	}
	return store
}

func (s *snapshotStores) flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for _, store := range s.opened {
		if err := store.Flush(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func cmdRun(args []string) int {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	configPath := fs.String("config", "draftspec.yaml", "project config file")
	parallel := fs.Bool("parallel", false, "enable bounded-parallel scheduling")
	degree := fs.Int("degree", 0, "parallel degree (0 = config parallel.degree if set, else host CPU count)")
	bail := fs.Bool("bail", false, "stop scheduling new specs after the first failure")
	includeTag := fs.String("tag", "", "only run specs with this tag")
	excludeTag := fs.String("exclude-tag", "", "exclude specs with this tag")
	namePattern := fs.String("name", "", "only run specs whose display name matches this regex")
	filterFile := fs.String("filter-file", "", "JSON FilterSpec document merged into the run's filters")
	statsOnly := fs.Bool("stats-only", false, "print static spec counts without executing")
	noStats := fs.Bool("no-stats", false, "suppress the final summary line")
	noCache := fs.Bool("no-cache", false, "bypass the incremental parse cache")
	reporterList := fs.String("reporters", "tree", "comma-separated reporters (tree, ndjson)")
	fs.Parse(args)

	cfg, err := draftconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	root := cfg.SpecRoot
	if fs.NArg() > 0 {
		root = fs.Arg(0)
	}
	files, err := discoverSpecFiles(root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	log, closeLog := progressLogger()
	defer closeLog()

	results, _, warnings := parseFiles(files, !*noCache)
	for _, w := range warnings {
		fmt.Fprintf(os.Stderr, "warning: %s:%d: %s\n", w.File, w.Warning.Line, w.Warning.Reason)
		log.Warning(w.File, w.Warning.Line, w.Warning.Reason)
	}

	if *statsOnly {
		return printStats(files, results)
	}

	filter := selection.FilterSpec{}
	if *includeTag != "" {
		filter.IncludeTags = []string{*includeTag}
	}
	if *excludeTag != "" {
		filter.ExcludeTags = []string{*excludeTag}
	}
	filter.IncludeNamePattern = *namePattern
	filter = envFilter(filter)
	if *filterFile != "" {
		doc, err := draftconfig.LoadFilterFile(*filterFile)
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		filter = mergeFilterDocument(filter, doc)
	}

	degreeVal := 1
	if *parallel || draftconfig.BoolOr(cfg.Parallel.Enabled, false) {
		requested := *degree
		if requested == 0 && cfg.Parallel.Degree != nil {
			requested = *cfg.Parallel.Degree
		}
		degreeVal = runner.ResolveDegree(requested)
	}
	bailEnabled := *bail

	if scriptEvaluator == nil {
		fmt.Fprintf(os.Stderr, "draftspec run: this build carries no script evaluator; use --stats-only, list, or validate (%d spec files discovered)\n", len(files))
		return 1
	}

	ctx, cleanup := signalCancelContext()
	defer cleanup()

	reporters := []reporting.Reporter{&logReporter{log: log}}
	for _, name := range splitCSV(*reporterList) {
		switch name {
		case "tree":
			var tree reporting.Reporter = &reporting.TreeReporter{W: os.Stdout}
			if *noStats {
				tree = &noSummaryReporter{Reporter: tree}
			}
			reporters = append(reporters, tree)
		case "ndjson":
			w := os.Stdout
			if path := os.Getenv("DRAFTSPEC_JSON_OUTPUT_FILE"); path != "" {
				if f, err := os.Create(path); err == nil {
					defer f.Close()
					w = f
				}
			}
			reporters = append(reporters, &reporting.NDJSONReporter{W: w})
		default:
			fmt.Fprintf(os.Stderr, "warning: unknown reporter %q\n", name)
		}
	}

	hist, histErr := history.Open(filepath.Join(".draftspec", "history.json"), 20)
	if histErr != nil {
		fmt.Fprintf(os.Stderr, "warning: could not open history: %v\n", histErr)
	} else {
		reporters = append(reporters, &historyReporter{store: hist})
	}

	_, exit := runFiles(ctx, scriptEvaluator, files, cfg, filter, degreeVal, bailEnabled, reporters)
	if histErr == nil {
		if err := hist.Flush(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: flushing history: %v\n", err)
		}
	}
	return exit
}

// printStats reports static spec counts; exit code 2 flags an active
// focus mode so CI wrappers can reject committed fit()s (spec.md §6).
func printStats(files []string, results map[string]*scriptparse.Result) int {
	total, focused, pending, skipped := 0, 0, 0, 0
	for _, f := range files {
		res, ok := results[f]
		if !ok {
			continue
		}
		for _, s := range res.Specs {
			total++
			switch s.Kind {
			case scriptparse.KindFocused:
				focused++
			case scriptparse.KindSkipped:
				skipped++
			}
			if s.Pending {
				pending++
			}
		}
	}
	fmt.Printf("%d specs in %d files (%d focused, %d pending, %d skipped)\n",
		total, len(files), focused, pending, skipped)
	if focused > 0 {
		return 2
	}
	return 0
}

func cmdList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	format := fs.String("format", "tree", "tree|flat|json")
	fs.Parse(args)

	root := "."
	if fs.NArg() > 0 {
		root = fs.Arg(0)
	}
	files, err := discoverSpecFiles(root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	results, _, _ := parseFiles(files, true)

	switch *format {
	case "json":
		type jsonSpec struct {
			File        string   `json:"file"`
			ContextPath []string `json:"context_path"`
			Description string   `json:"description"`
			Line        int      `json:"line"`
			Kind        string   `json:"kind"`
			Pending     bool     `json:"pending"`
		}
		var out []jsonSpec
		for _, f := range files {
			res, ok := results[f]
			if !ok {
				continue
			}
			for _, s := range res.Specs {
				out = append(out, jsonSpec{
					File: f, ContextPath: s.ContextPath, Description: s.Description,
					Line: s.Line, Kind: string(s.Kind), Pending: s.Pending,
				})
			}
		}
		draftlog.PrintJSON(os.Stdout, out)
	case "flat":
		for _, f := range files {
			res, ok := results[f]
			if !ok {
				continue
			}
			for _, s := range res.Specs {
				name := strings.Join(append(append([]string{}, s.ContextPath...), s.Description), " > ")
				fmt.Printf("%s:%d %s\n", f, s.Line, name)
			}
		}
	default:
		for _, f := range files {
			res, ok := results[f]
			if !ok {
				continue
			}
			fmt.Println(f)
			var lastPath []string
			for _, s := range res.Specs {
				for i, seg := range s.ContextPath {
					if i < len(lastPath) && lastPath[i] == seg {
						continue
					}
					fmt.Printf("%s%s\n", strings.Repeat("  ", i+1), seg)
				}
				lastPath = s.ContextPath
				marker := ""
				switch {
				case s.Kind == scriptparse.KindFocused:
					marker = " [focused]"
				case s.Kind == scriptparse.KindSkipped:
					marker = " [skipped]"
				case s.Pending:
					marker = " [pending]"
				}
				fmt.Printf("%s%s%s\n", strings.Repeat("  ", len(s.ContextPath)+1), s.Description, marker)
			}
		}
	}
	return 0
}

func cmdValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	strict := fs.Bool("strict", false, "treat warnings as failures")
	quiet := fs.Bool("quiet", false, "suppress non-error output")
	fs.Parse(args)

	exit := 0
	for _, file := range fs.Args() {
		src, err := os.ReadFile(file)
		if err != nil {
			fmt.Fprintf(os.Stderr, "%s: %v\n", file, err)
			exit = 1
			continue
		}
		res, parseErr := scriptparse.Parse(file, src)
		if parseErr != nil {
			fmt.Fprintf(os.Stderr, "%v\n", parseErr)
			exit = 1
			continue
		}
		for _, w := range res.Warnings {
			if !*quiet {
				fmt.Fprintf(os.Stderr, "%s:%d: %s\n", file, w.Line, w.Reason)
			}
			if *strict && exit == 0 {
				exit = 2
			}
		}
	}
	return exit
}

func cmdWatch(args []string) int {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	configPath := fs.String("config", "draftspec.yaml", "project config file")
	incremental := fs.Bool("incremental", false, "only re-run affected specs")
	fs.Parse(args)

	cfg, err := draftconfig.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}

	root := "."
	if fs.NArg() > 0 {
		root = fs.Arg(0)
	}
	files, err := discoverSpecFiles(root)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	_, graph, _ := parseFiles(files, true)

	reporter := &reporting.TreeReporter{W: os.Stdout}

	ctx, cleanup := signalCancelContext()
	defer cleanup()

	loop := &watch.Loop{
		Root:         root,
		Graph:        graph,
		Debounce:     time.Duration(draftconfig.IntOr(cfg.WatchDebounceMS, 0)) * time.Millisecond,
		Incremental:  *incremental,
		AllSpecFiles: files,
		Run: func(ctx context.Context, affected []string) {
			specFiles := keepSpecFiles(affected)
			if len(specFiles) == 0 {
				return
			}
			if scriptEvaluator == nil {
				// Without an evaluator the loop still reports what a run
				// would cover, so the watch plumbing stays observable.
				results, _, _ := parseFiles(specFiles, true)
				n := 0
				for _, res := range results {
					n += len(res.Specs)
				}
				fmt.Printf("changed: %d spec files (%d specs)\n", len(specFiles), n)
				return
			}
			runFiles(ctx, scriptEvaluator, specFiles, cfg, selection.FilterSpec{}, 1, false,
				[]reporting.Reporter{reporter})
		},
	}
	loop.Start(ctx, files)
	return 0
}

// keepSpecFiles filters an affected set down to spec files: a changed
// helper include maps back to the spec files that load it via the graph,
// which AffectedBy already resolved, so anything without the spec
// extension left here is a source file with no dependent spec.
func keepSpecFiles(paths []string) []string {
	var out []string
	for _, p := range paths {
		if strings.HasSuffix(p, specFileExt) {
			out = append(out, p)
		}
	}
	return out
}

func cmdNew(args []string) int {
	if len(args) < 1 {
		fmt.Fprintln(os.Stderr, "usage: draftspec new <name>")
		return 1
	}
	name := args[0] + specFileExt
	if _, err := os.Stat(name); err == nil {
		fmt.Fprintf(os.Stderr, "%s already exists\n", name)
		return 1
	}
	const template = "describe(\"%s\") {\n  it(\"does something\") {\n  }\n}\n"
	if err := os.WriteFile(name, []byte(fmt.Sprintf(template, args[0])), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Printf("created %s\n", name)
	return 0
}

func cmdInit(args []string) int {
	const helper = "// Shared setup loaded by spec files via #load \"spec_helper.dspec\".\n"
	if err := os.WriteFile("spec_helper"+specFileExt, []byte(helper), 0o644); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	if err := os.MkdirAll(".draftspec", 0o755); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	fmt.Println("initialized draftspec project")
	return 0
}
