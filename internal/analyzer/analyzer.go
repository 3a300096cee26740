// Package analyzer drives CFG construction over class files. It parses each
// class, builds a block map for every method with code, converts it to a
// serializable CFG and keeps the results in a persistent cache.
package analyzer

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"time"

	"github.com/VictoriaMetrics/metrics"

	"github.com/l3aro/go-blockmap/internal/config"
	"github.com/l3aro/go-blockmap/internal/log"
	"github.com/l3aro/go-blockmap/internal/scanner"
	"github.com/l3aro/go-blockmap/pkg/blockmap"
	"github.com/l3aro/go-blockmap/pkg/cache"
	"github.com/l3aro/go-blockmap/pkg/cfg"
	"github.com/l3aro/go-blockmap/pkg/classfile"
)

var (
	// ErrNoCode is returned for abstract and native methods.
	ErrNoCode = errors.New("method has no code")

	// ErrMethodNotFound is returned when a class has no method matching the
	// requested name.
	ErrMethodNotFound = errors.New("method not found")
)

// Options configures an Analyzer.
type Options struct {
	FirstBlockID         int
	ComputeStoresInLoops bool
	RegisterFinalizers   bool

	// CacheFile is where results are persisted. Empty disables persistence.
	CacheFile string
	CacheSize int

	// Workers bounds the number of class files analyzed at once. Zero means
	// one per CPU.
	Workers int

	Logger log.Logger
}

// OptionsFromConfig returns the analyzer options described by c.
func OptionsFromConfig(c *config.Config) Options {
	return Options{
		FirstBlockID:         c.FirstBlockID,
		ComputeStoresInLoops: c.ComputeStoresInLoops,
		RegisterFinalizers:   c.RegisterFinalizers,
		CacheFile:            c.CacheFile,
		CacheSize:            c.CacheSize,
		Logger:               c.NewLogger(),
	}
}

// MethodResult is the outcome of analyzing one method.
type MethodResult struct {
	Method *classfile.Method
	CFG    *cfg.CFGInfo
	Cached bool
	Err    error
}

// FileResult is the outcome of analyzing one class file.
type FileResult struct {
	Path    string
	Class   string
	Methods []MethodResult
	Err     error
}

// Failed returns the number of methods whose CFG could not be built.
func (r *FileResult) Failed() int {
	n := 0
	for _, m := range r.Methods {
		if m.Err != nil {
			n++
		}
	}
	return n
}

// Analyzer builds CFGs for class files. It is safe for concurrent use.
type Analyzer struct {
	opts    Options
	keyOpts cache.KeyOptions
	cache   *cache.LRUCache
	logger  log.Logger

	metrics       *metrics.Set
	classFiles    *metrics.Counter
	methodsBuilt  *metrics.Counter
	buildErrors   *metrics.Counter
	cacheHits     *metrics.Counter
	cacheMisses   *metrics.Counter
	blocksTotal   *metrics.Counter
	buildDuration *metrics.Histogram
}

// New creates an Analyzer. The cache starts empty; call LoadCache to restore
// a persisted one.
func New(opts Options) *Analyzer {
	if opts.Logger == nil {
		opts.Logger = log.Nop()
	}
	if opts.Workers <= 0 {
		opts.Workers = runtime.NumCPU()
	}

	set := metrics.NewSet()
	return &Analyzer{
		opts: opts,
		keyOpts: cache.KeyOptions{
			FirstBlockID:         opts.FirstBlockID,
			ComputeStoresInLoops: opts.ComputeStoresInLoops,
			RegisterFinalizers:   opts.RegisterFinalizers,
		},
		cache:         cache.New(cache.Options{MaxSize: opts.CacheSize}),
		logger:        opts.Logger,
		metrics:       set,
		classFiles:    set.NewCounter("blockmap_class_files_total"),
		methodsBuilt:  set.NewCounter("blockmap_methods_built_total"),
		buildErrors:   set.NewCounter("blockmap_build_errors_total"),
		cacheHits:     set.NewCounter("blockmap_cache_hits_total"),
		cacheMisses:   set.NewCounter("blockmap_cache_misses_total"),
		blocksTotal:   set.NewCounter("blockmap_blocks_total"),
		buildDuration: set.NewHistogram("blockmap_build_duration_seconds"),
	}
}

// Metrics returns the analyzer's metrics, ready for WritePrometheus.
func (a *Analyzer) Metrics() *metrics.Set {
	return a.metrics
}

// CacheStats returns the result cache statistics.
func (a *Analyzer) CacheStats() cache.Stats {
	return a.cache.Stats()
}

// LoadCache restores the result cache from the configured file. A cache
// written by another version is discarded.
func (a *Analyzer) LoadCache() error {
	if a.opts.CacheFile == "" {
		return nil
	}
	err := cache.LoadFromFile(a.cache, a.opts.CacheFile)
	if errors.Is(err, cache.ErrVersionMismatch) {
		a.logger.Warn("discarding cache", "path", a.opts.CacheFile, "error", err)
		a.cache.Clear()
		return nil
	}
	if err != nil {
		return err
	}
	a.logger.Debug("loaded cache", "path", a.opts.CacheFile, "entries", a.cache.Len())
	return nil
}

// SaveCache persists the result cache to the configured file.
func (a *Analyzer) SaveCache() error {
	if a.opts.CacheFile == "" {
		return nil
	}
	if err := cache.PersistToFile(a.cache, a.opts.CacheFile); err != nil {
		return err
	}
	a.logger.Debug("saved cache", "path", a.opts.CacheFile, "entries", a.cache.Len())
	return nil
}

// AnalyzeMethod returns the CFG of m and whether it came from the cache.
func (a *Analyzer) AnalyzeMethod(m *classfile.Method) (*cfg.CFGInfo, bool, error) {
	if !m.HasCode() {
		return nil, false, fmt.Errorf("%s: %w", m, ErrNoCode)
	}

	key := cache.Key(m, a.keyOpts)
	if info, ok := a.cache.Get(key); ok {
		a.cacheHits.Inc()
		// identical code may be shared by methods with different names
		info.FunctionName = m.Signature()
		return info, true, nil
	}
	a.cacheMisses.Inc()

	start := time.Now()
	bm := blockmap.New(m,
		blockmap.WithFirstBlockID(a.opts.FirstBlockID),
		blockmap.WithFinalizerRegistration(a.opts.RegisterFinalizers),
		blockmap.WithLogger(a.logger),
	)
	if err := bm.Build(a.opts.ComputeStoresInLoops); err != nil {
		a.buildErrors.Inc()
		return nil, false, fmt.Errorf("%s: %w", m, err)
	}
	info := cfg.FromBlockMap(m.Signature(), bm)
	bm.Cleanup()
	a.buildDuration.UpdateDuration(start)

	a.methodsBuilt.Inc()
	a.blocksTotal.Add(len(info.Blocks))
	a.cache.Set(key, info)
	return info, false, nil
}

// AnalyzeClass analyzes the methods of c with code. If name is not empty
// only methods whose name or signature equals it are analyzed.
func (a *Analyzer) AnalyzeClass(c *classfile.Class, name string) ([]MethodResult, error) {
	methods := c.Methods
	if name != "" {
		methods = c.FindMethods(name)
		if len(methods) == 0 {
			return nil, fmt.Errorf("%w: %s in %s", ErrMethodNotFound, name, c.Name)
		}
	}

	var results []MethodResult
	for _, m := range methods {
		if !m.HasCode() {
			continue
		}
		info, cached, err := a.AnalyzeMethod(m)
		if err != nil {
			a.logger.Warn("cannot build CFG", "method", m.String(), "error", err)
		}
		results = append(results, MethodResult{Method: m, CFG: info, Cached: cached, Err: err})
	}
	return results, nil
}

// AnalyzeFile parses the class file at path and analyzes its methods.
func (a *Analyzer) AnalyzeFile(path, name string) (*FileResult, error) {
	c, err := classfile.ParseFile(path)
	if err != nil {
		return nil, err
	}
	a.classFiles.Inc()

	methods, err := a.AnalyzeClass(c, name)
	if err != nil {
		return nil, err
	}
	result := &FileResult{Path: path, Class: c.Name, Methods: methods}
	a.logger.Info("analyzed class", "class", c.Name, "methods", len(methods), "failed", result.Failed())
	return result, nil
}

// AnalyzeDir analyzes every class file found under root. Results are in scan
// order; a file that cannot be parsed has Err set.
func (a *Analyzer) AnalyzeDir(ctx context.Context, root string) ([]FileResult, error) {
	files, err := scanner.Scan(root)
	if err != nil {
		return nil, fmt.Errorf("scanning %s: %w", root, err)
	}
	a.logger.Debug("found class files", "root", root, "files", len(files))

	results := make([]FileResult, len(files))
	var wg sync.WaitGroup
	sem := make(chan struct{}, a.opts.Workers)

	for i, file := range files {
		wg.Add(1)
		go func(i int, file scanner.FileInfo) {
			sem <- struct{}{}
			defer wg.Done()
			defer func() { <-sem }()

			results[i] = FileResult{Path: file.Path}
			select {
			case <-ctx.Done():
				results[i].Err = ctx.Err()
				return
			default:
			}

			r, err := a.AnalyzeFile(file.FullPath, "")
			if err != nil {
				a.logger.Warn("cannot analyze class file", "path", file.Path, "error", err)
				results[i].Err = err
				return
			}
			r.Path = file.Path
			results[i] = *r
		}(i, file)
	}
	wg.Wait()

	if err := ctx.Err(); err != nil {
		return results, err
	}
	return results, nil
}
