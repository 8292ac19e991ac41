package main

import (
	"bytes"
	"flag"
	"fmt"
	"gopeview/common"
	"gopeview/pe32"
	"gopeview/pe64"
	"gopeview/perw"
	"io"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/pkg/errors"
	"github.com/xyproto/env/v2"
)

// Program configuration
type Config struct {
	Headers     bool
	Sections    bool
	Exports     bool
	Imports     bool
	Relocs      bool
	Resources   bool
	Image       bool
	Raw         bool
	Verbose     bool
	Parallel    bool
	MaxWorkers  int
	Width       string
	ShowHelp    bool
	ShowVersion bool
}

// Processing statistics
type ProcessStats struct {
	mu                sync.Mutex
	Processed         int
	Failed            int
	DirectoryFailures int
	Elapsed           time.Duration
}

const versionString = "gopeview, version 0.1 (PE32/PE32+ navigation engine)"

var (
	config = &Config{}
	stats  = &ProcessStats{}

	doHeaders   = flag.Bool("headers", false, "Dump DOS/NT headers and data directories")
	doSections  = flag.Bool("sections", false, "Dump the section table with entropy and hashes")
	doExports   = flag.Bool("exports", false, "Dump the export table")
	doImports   = flag.Bool("imports", false, "Dump the import table")
	doRelocs    = flag.Bool("relocs", false, "Dump base relocation blocks")
	doResources = flag.Bool("resources", false, "Dump the resource tree")
	doAll       = flag.Bool("all", false, "Dump everything (default when no table is selected)")
	doImage     = flag.Bool("image", false, "Lay the file out as the loader would before reading it")
	doRaw       = flag.Bool("raw", false, "Also dump the raw header structures")
	verbose     = flag.Bool("v", env.Bool("GOPEVIEW_VERBOSE"), "Enable verbose output (GOPEVIEW_VERBOSE)")
	parallel    = flag.Bool("j", false, "Process files in parallel")
	maxWorkers  = flag.Int("workers", env.Int("GOPEVIEW_WORKERS", 4), "Maximum number of parallel workers (GOPEVIEW_WORKERS)")
	width       = flag.String("width", env.Str("GOPEVIEW_WIDTH", "auto"), "Header width: auto, 32 or 64 (GOPEVIEW_WIDTH)")
	showHelp    = flag.Bool("help", false, "Display this help and exit")
	showVersion = flag.Bool("version", false, "Display version information and exit")
)

var ErrUnknownWidth = errors.New("unknown width, expected auto, 32 or 64")

// ProcessResult is the outcome of inspecting one file
type ProcessResult struct {
	Index    int
	Filename string
	Format   string
	Output   []byte
	Results  []*common.DirectoryResult
	Elapsed  time.Duration
	Error    error
}

func init() {
	flag.Usage = customUsage
}

func customUsage() {
	_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [OPTIONS] FILE...\n", os.Args[0])
	_, _ = fmt.Fprintln(os.Stderr, "Inspect the headers and tables of PE32 and PE32+ files.")
	_, _ = fmt.Fprintln(os.Stderr, "")
	_, _ = fmt.Fprintln(os.Stderr, "Options:")
	flag.PrintDefaults()
	_, _ = fmt.Fprintln(os.Stderr, "")
	_, _ = fmt.Fprintln(os.Stderr, "Examples:")
	_, _ = fmt.Fprintf(os.Stderr, "  %s -exports kernel32.dll     # Export table only\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  %s -j -workers=8 *.exe       # Parallel processing with 8 workers\n", os.Args[0])
	_, _ = fmt.Fprintf(os.Stderr, "  %s -image -raw -v app.exe    # Loader layout, raw headers, timing\n", os.Args[0])
}

func parseFlags() {
	flag.Parse()

	config.Headers = *doHeaders
	config.Sections = *doSections
	config.Exports = *doExports
	config.Imports = *doImports
	config.Relocs = *doRelocs
	config.Resources = *doResources
	config.Image = *doImage
	config.Raw = *doRaw
	config.Verbose = *verbose
	config.Parallel = *parallel
	config.MaxWorkers = *maxWorkers
	config.Width = *width
	config.ShowHelp = *showHelp
	config.ShowVersion = *showVersion

	if *doAll || !(config.Headers || config.Sections || config.Exports ||
		config.Imports || config.Relocs || config.Resources) {
		config.Headers = true
		config.Sections = true
		config.Exports = true
		config.Imports = true
		config.Relocs = true
		config.Resources = true
	}

	if config.MaxWorkers < 1 {
		config.MaxWorkers = 1
	}
	if config.MaxWorkers > 16 {
		config.MaxWorkers = 16
	}
}

// selectWidth honors -width, reading the optional header magic for auto.
func selectWidth(data []byte) (is64 bool, err error) {
	switch config.Width {
	case "32":
		return false, nil
	case "64":
		return true, nil
	case "", "auto":
		return perw.DetectWidth(data)
	default:
		return false, errors.Wrapf(ErrUnknownWidth, "%q", config.Width)
	}
}

func processFile(index int, filename string) *ProcessResult {
	result := &ProcessResult{Index: index, Filename: filename}
	start := time.Now()
	defer func() { result.Elapsed = time.Since(start) }()

	fileInfo, err := os.Stat(filename)
	if err != nil {
		result.Error = errors.Wrap(err, "cannot access file")
		return result
	}
	if !fileInfo.Mode().IsRegular() {
		result.Error = errors.New("not a regular file")
		return result
	}

	m, err := perw.MapFile(filename)
	if err != nil {
		result.Error = errors.Wrap(err, "failed to map file")
		return result
	}
	defer func() {
		_ = m.Close()
	}()

	is64, err := selectWidth(m.Bytes())
	if err != nil {
		result.Error = err
		return result
	}

	var buf bytes.Buffer
	if is64 {
		v, err := pe64.Open(m.Bytes())
		if err != nil {
			result.Error = err
			return result
		}
		result.Format = "PE32+"
		result.Results, result.Error = inspect(&buf, v)
	} else {
		v, err := pe32.Open(m.Bytes())
		if err != nil {
			result.Error = err
			return result
		}
		result.Format = "PE32"
		result.Results, result.Error = inspect(&buf, v)
	}
	result.Output = buf.Bytes()
	return result
}

func inspect[H perw.OptionalHeader](w io.Writer, v *perw.View[H]) ([]*common.DirectoryResult, error) {
	if config.Image {
		img, err := perw.LoadImage(v)
		if err != nil {
			return nil, errors.Wrap(err, "cannot lay out image")
		}
		v = img
	}
	if config.Raw {
		spew.Fdump(w, v.DosHeader(), v.FileHeader(), v.OptionalHeader())
	}

	var results []*common.DirectoryResult
	if config.Headers {
		results = append(results, v.PrintHeaders(w))
	}
	if config.Sections {
		results = append(results, v.PrintSections(w))
	}
	if config.Exports {
		results = append(results, v.PrintExports(w))
	}
	if config.Imports {
		results = append(results, v.PrintImports(w))
	}
	if config.Relocs {
		results = append(results, v.PrintRelocations(w))
	}
	if config.Resources {
		results = append(results, v.PrintResources(w))
	}
	return results, nil
}

func processFilesSequential(filenames []string) []ProcessResult {
	results := make([]ProcessResult, 0, len(filenames))
	for i, filename := range filenames {
		results = append(results, *processFile(i, filename))
	}
	return results
}

func processFilesParallel(filenames []string) []ProcessResult {
	jobs := make(chan int, len(filenames))
	results := make(chan ProcessResult, len(filenames))

	var wg sync.WaitGroup
	for range config.MaxWorkers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				results <- *processFile(i, filenames[i])
			}
		}()
	}

	go func() {
		for i := range filenames {
			jobs <- i
		}
		close(jobs)
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	var allResults []ProcessResult
	for result := range results {
		allResults = append(allResults, result)
	}
	sort.Slice(allResults, func(i, j int) bool { return allResults[i].Index < allResults[j].Index })
	return allResults
}

func printResult(out io.Writer, result *ProcessResult) {
	if result.Error != nil {
		_, _ = fmt.Fprintf(os.Stderr, "  ❌ %s: %v\n", filepath.Base(result.Filename), result.Error)
		return
	}
	_, _ = fmt.Fprintf(out, "📁 %s (%s)\n\n", result.Filename, result.Format)
	_, _ = out.Write(result.Output)
	if config.Verbose {
		_, _ = fmt.Fprintln(out, common.FormatSummary(
			fmt.Sprintf("✅ %s: inspected in %s", filepath.Base(result.Filename), result.Elapsed.Round(time.Microsecond)),
			result.Results))
		_, _ = fmt.Fprintln(out)
	}
}

func updateStats(results []ProcessResult) {
	stats.mu.Lock()
	defer stats.mu.Unlock()

	for _, result := range results {
		stats.Processed++
		stats.Elapsed += result.Elapsed
		if result.Error != nil {
			stats.Failed++
			continue
		}
		stats.DirectoryFailures += common.CountFailed(result.Results)
	}
}

func printSummary() {
	if stats.Processed == 0 {
		return
	}

	fmt.Printf("\nSummary:\n")
	fmt.Printf("  Files processed: %d\n", stats.Processed)
	fmt.Printf("  Successful: %d\n", stats.Processed-stats.Failed)
	fmt.Printf("  Failed: %d\n", stats.Failed)
	if stats.DirectoryFailures > 0 {
		fmt.Printf("  %s Unreadable directories: %d\n", common.SymbolWarn, stats.DirectoryFailures)
	}
	if config.Verbose {
		fmt.Printf("  Total time: %s\n", stats.Elapsed.Round(time.Millisecond))
	}
}

func main() {
	log.SetFlags(0)
	log.SetPrefix(filepath.Base(os.Args[0]) + ": ")
	parseFlags()

	if config.ShowHelp {
		flag.Usage()
		os.Exit(0)
	}
	if config.ShowVersion {
		fmt.Println(versionString)
		os.Exit(0)
	}

	filenames := flag.Args()
	if len(filenames) == 0 {
		flag.Usage()
		log.Fatal("no input files")
	}
	switch config.Width {
	case "", "auto", "32", "64":
	default:
		log.Fatal(errors.Wrapf(ErrUnknownWidth, "%q", config.Width))
	}

	var results []ProcessResult
	if config.Parallel && len(filenames) > 1 {
		if config.Verbose {
			fmt.Printf("Processing %d files with %d workers...\n", len(filenames), config.MaxWorkers)
		}
		results = processFilesParallel(filenames)
	} else {
		results = processFilesSequential(filenames)
	}

	for i := range results {
		printResult(os.Stdout, &results[i])
	}
	updateStats(results)

	if len(filenames) > 1 || config.Verbose {
		printSummary()
	}

	if stats.Failed > 0 {
		os.Exit(1)
	}
}
