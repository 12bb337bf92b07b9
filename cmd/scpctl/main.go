package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v3"

	"example.com/scpgate/internal/common"
	"example.com/scpgate/internal/manifest"
	"example.com/scpgate/internal/report"
	"example.com/scpgate/internal/scp"
	"example.com/scpgate/internal/verify"
)

var (
	version   = "dev"
	buildDate = "unknown"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	switch os.Args[1] {
	case "info":
		infoCmd(os.Args[2:])
	case "anonymize":
		anonymizeCmd(os.Args[2:])
	case "verify":
		verifyCmd(os.Args[2:])
	case "batch":
		batchCmd(os.Args[2:])
	case "report":
		reportCmd(os.Args[2:])
	default:
		usage()
	}
}

func usage() {
	fmt.Printf(`scpctl %s (built %s) <command> [options]

Commands:
  info      --in <file.scp>
  anonymize --in <file.scp> --out <file.scp> [--config <config.yaml>] [--id <anonymous id>] [--keep-datetime] [--keep-freetext] [--changelog <changes.jsonl>] [--mapping-out <mapping.json>]
  verify    --in <file.scp> [--original <file.scp>] [--out <findings.ndjson>] [--report <report.json>]
  batch     --in <dir> --out-dir <dir> [--config <config.yaml>] [--concurrency <n>] [--progress] [--metrics]
  report    --report <report.json> --pdf <report.pdf> [--file <file.scp>]
`, version, buildDate)
}

type logsConfig struct {
	Directory  string `yaml:"directory"`
	MaxSizeMB  int    `yaml:"maxSizeMb"`
	MaxAgeDays int    `yaml:"maxAgeDays"`
	MaxBackups int    `yaml:"maxBackups"`
	Compress   bool   `yaml:"compress"`
}

type config struct {
	Anonymize   scp.Config `yaml:"anonymize"`
	IDPrefix    string     `yaml:"idPrefix"`
	Concurrency int        `yaml:"concurrency"`
	ChangeLog   string     `yaml:"changeLog"`
	Logs        logsConfig `yaml:"logs"`
}

func defaultConfig() config {
	return config{
		Anonymize:   scp.DefaultConfig(),
		IDPrefix:    "ANON",
		Concurrency: runtime.NumCPU(),
	}
}

func loadConfig(path string) (config, error) {
	cfg := defaultConfig()
	if path == "" {
		return cfg, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return cfg, err
	}
	defer f.Close()
	dec := yaml.NewDecoder(f)
	if err := dec.Decode(&cfg); err != nil {
		return cfg, err
	}
	if cfg.Anonymize.AnonymousID == "" {
		cfg.Anonymize.AnonymousID = scp.DefaultConfig().AnonymousID
	}
	if cfg.IDPrefix == "" {
		cfg.IDPrefix = "ANON"
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = runtime.NumCPU()
	}
	baseDir := filepath.Dir(path)
	resolvePath := func(p string) string {
		p = strings.TrimSpace(p)
		if p == "" || filepath.IsAbs(p) {
			return p
		}
		return filepath.Clean(filepath.Join(baseDir, p))
	}
	cfg.ChangeLog = resolvePath(cfg.ChangeLog)
	cfg.Logs.Directory = resolvePath(cfg.Logs.Directory)
	return cfg, nil
}

func setupLogging(cfg logsConfig) error {
	if cfg.Directory == "" {
		return nil
	}
	if err := os.MkdirAll(cfg.Directory, 0o755); err != nil {
		return fmt.Errorf("create log dir: %w", err)
	}
	rotator := &lumberjack.Logger{
		Filename:   filepath.Join(cfg.Directory, "scpctl.log"),
		MaxSize:    cfg.MaxSizeMB,
		MaxAge:     cfg.MaxAgeDays,
		MaxBackups: cfg.MaxBackups,
		Compress:   cfg.Compress,
	}
	common.SetOutput(io.MultiWriter(os.Stderr, rotator))
	return nil
}

func infoCmd(args []string) {
	fs := flag.NewFlagSet("info", flag.ExitOnError)
	in := fs.String("in", "", "input .scp")
	fs.Parse(args)
	if *in == "" {
		fmt.Println("required: --in")
		os.Exit(1)
	}

	f, err := scp.ParseFile(*in)
	if err != nil {
		fmt.Println("parse:", err)
		os.Exit(1)
	}

	fmt.Printf("File: %s\n", *in)
	fmt.Printf("Size: %d bytes (header field: %d)\n", len(f.Data), f.Header.Size)
	fmt.Printf("File CRC: 0x%04X\n", f.Header.CRC)

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "SECTION\tOFFSET\tLENGTH\tCRC\tVERSION")
	for _, sec := range f.Sections {
		fmt.Fprintf(w, "%d\t%d\t%d\t0x%04X\t%d.%d\n",
			sec.ID, sec.Offset, sec.DeclaredLength, sec.CRC, sec.Version/10, sec.Version%10)
	}
	w.Flush()

	// Tag inventory only; field values may carry PHI and are never printed.
	if sec, ok := f.SectionByID(scp.SectionPatient); ok {
		fields, err := scp.DecodeFields(f.Payload(sec), sec.PayloadOffset)
		if err != nil {
			fmt.Println("section 1 fields:", err)
			os.Exit(1)
		}
		fmt.Printf("Section 1 tags:")
		for _, fd := range fields {
			fmt.Printf(" %d(%d)", fd.Tag, fd.Length)
		}
		fmt.Println()
	}
}

func anonymizeCmd(args []string) {
	fs := flag.NewFlagSet("anonymize", flag.ExitOnError)
	in := fs.String("in", "", "input .scp")
	out := fs.String("out", "", "output .scp")
	configPath := fs.String("config", "", "configuration file")
	id := fs.String("id", "", "anonymous patient identifier (overrides config)")
	keepDatetime := fs.Bool("keep-datetime", false, "keep acquisition date and time")
	keepFreetext := fs.Bool("keep-freetext", false, "keep free-text fields")
	changelogPath := fs.String("changelog", "", "JSONL change log (overrides config)")
	mappingOut := fs.String("mapping-out", "", "write the id mapping JSON here")
	fs.Parse(args)
	if *in == "" || *out == "" {
		fmt.Println("required: --in and --out")
		os.Exit(1)
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Println("load config:", err)
		os.Exit(1)
	}
	if err := setupLogging(cfg.Logs); err != nil {
		fmt.Println("setup logging:", err)
		os.Exit(1)
	}
	if *id != "" {
		cfg.Anonymize.AnonymousID = *id
	}
	if *keepDatetime {
		cfg.Anonymize.AnonymizeDatetime = false
	}
	if *keepFreetext {
		cfg.Anonymize.AnonymizeFreetext = false
	}
	if *changelogPath != "" {
		cfg.ChangeLog = *changelogPath
	}

	res, err := anonymizeFile(*in, *out, cfg.Anonymize, changeLogFor(cfg))
	if err != nil {
		fmt.Println("anonymize:", err)
		os.Exit(1)
	}
	common.Logf("anonymized %s -> %s (%d fields changed)", *in, *out, len(res.Changes))
	fmt.Printf("Wrote %s (%d fields changed)\n", *out, len(res.Changes))

	if *mappingOut != "" {
		if err := writeMapping(*mappingOut, []scp.Mapping{res.Mapping}); err != nil {
			fmt.Println("write mapping:", err)
			os.Exit(1)
		}
	}
}

func changeLogFor(cfg config) *common.ChangeLog {
	if cfg.ChangeLog == "" {
		return nil
	}
	return common.NewChangeLog(cfg.ChangeLog)
}

// anonymizeFile runs the transform on a copy of the input bytes and writes
// the result only after it succeeds end to end.
func anonymizeFile(in, out string, cfg scp.Config, clog *common.ChangeLog) (*scp.Result, error) {
	buf, err := os.ReadFile(in)
	if err != nil {
		return nil, err
	}
	res, err := scp.Anonymize(buf, cfg)
	if err != nil {
		return nil, err
	}
	if dir := filepath.Dir(out); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	if err := os.WriteFile(out, buf, 0o644); err != nil {
		return nil, err
	}
	if clog != nil {
		for _, ch := range res.Changes {
			entry := common.ChangeEntry{
				File:     out,
				Tag:      ch.Tag,
				Category: ch.Category,
				Offset:   ch.Offset,
				Detail:   ch.Detail,
			}
			if err := clog.Append(entry); err != nil {
				return nil, fmt.Errorf("change log: %w", err)
			}
		}
	}
	return res, nil
}

func writeMapping(path string, mappings []scp.Mapping) error {
	m := manifest.Manifest{CreatedAt: time.Now().UTC(), ShaAlgo: "sha256", Mappings: mappings}
	return manifest.Save(m, path)
}

func verifyCmd(args []string) {
	fs := flag.NewFlagSet("verify", flag.ExitOnError)
	in := fs.String("in", "", "anonymized .scp")
	original := fs.String("original", "", "original .scp for signal comparison")
	outFindings := fs.String("out", "", "findings NDJSON output")
	outReport := fs.String("report", "", "report JSON output")
	keepDatetime := fs.Bool("keep-datetime", false, "datetime fields were kept; do not require sentinels")
	keepFreetext := fs.Bool("keep-freetext", false, "free-text fields were kept; do not require zeroing")
	fs.Parse(args)
	if *in == "" {
		fmt.Println("required: --in")
		os.Exit(1)
	}

	rep, err := runVerify(*in, *original, *outFindings, scp.Config{
		AnonymizeDatetime: !*keepDatetime,
		AnonymizeFreetext: !*keepFreetext,
	})
	if err != nil {
		fmt.Println("verify:", err)
		os.Exit(1)
	}
	if *outReport != "" {
		if err := report.SaveReportJSON(rep, *outReport); err != nil {
			fmt.Println("write report:", err)
			os.Exit(1)
		}
	}
	printSummary(rep)
	if !rep.Summary.Pass {
		os.Exit(1)
	}
}

func runVerify(in, original, outFindings string, cfg scp.Config) (verify.Report, error) {
	output, err := os.ReadFile(in)
	if err != nil {
		return verify.Report{}, err
	}
	ctx := &verify.Context{OutputFile: in, Output: output, Config: cfg}
	if original != "" {
		orig, err := os.ReadFile(original)
		if err != nil {
			return verify.Report{}, err
		}
		ctx.Original = orig
	}
	e := verify.NewEngine()
	verify.RegisterBuiltins(e)
	if _, err := e.Eval(ctx); err != nil {
		return verify.Report{}, err
	}
	if outFindings != "" {
		if err := e.WriteFindingsNDJSON(outFindings); err != nil {
			return verify.Report{}, err
		}
	}
	return e.MakeReport(), nil
}

func printSummary(rep verify.Report) {
	fmt.Printf("Findings: %d (failures %d, warnings %d)\n",
		rep.Summary.Total, rep.Summary.Failures, rep.Summary.Warnings)
	for _, f := range rep.Findings {
		if f.Status == verify.PASS {
			continue
		}
		fmt.Printf("  [%s] %s: %s\n", f.Status, f.Check, f.Detail)
	}
	if rep.Summary.Pass {
		fmt.Println("VERIFICATION PASSED")
	} else {
		fmt.Println("VERIFICATION FAILED")
	}
}

type batchResult struct {
	input   string
	output  string
	mapping scp.Mapping
	err     error
}

func batchCmd(args []string) {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	inDir := fs.String("in", ".", "input directory")
	outDir := fs.String("out-dir", "anonymized", "output directory")
	configPath := fs.String("config", "", "configuration file")
	concurrency := fs.Int("concurrency", 0, "worker count (overrides config)")
	progressFlag := fs.Bool("progress", false, "display progress updates")
	metricsFlag := fs.Bool("metrics", false, "print throughput metrics")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Println("load config:", err)
		os.Exit(1)
	}
	if err := setupLogging(cfg.Logs); err != nil {
		fmt.Println("setup logging:", err)
		os.Exit(1)
	}
	if *concurrency > 0 {
		cfg.Concurrency = *concurrency
	}

	inputs, err := findSCPFiles(*inDir)
	if err != nil {
		fmt.Println("scan inputs:", err)
		os.Exit(1)
	}
	if len(inputs) == 0 {
		fmt.Println("no .scp files under", *inDir)
		os.Exit(1)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		fmt.Println("output dir:", err)
		os.Exit(1)
	}

	var metrics *common.Metrics
	var stopProgress func()
	if *metricsFlag || *progressFlag {
		metrics = common.NewMetrics()
		var total int64
		for _, p := range inputs {
			if info, err := os.Stat(p); err == nil {
				total += info.Size()
			}
		}
		metrics.SetTotalBytes(total)
		metrics.Start()
		if *progressFlag {
			stopProgress = common.StartProgressPrinter(os.Stderr, metrics, time.Second)
		}
	}

	clog := changeLogFor(cfg)
	results := runBatch(inputs, *outDir, cfg, clog, metrics)

	if stopProgress != nil {
		stopProgress()
	}
	if metrics != nil {
		metrics.Stop()
	}

	var outputs []string
	var mappings []scp.Mapping
	failed := 0
	for _, r := range results {
		if r.err != nil {
			failed++
			common.Logf("batch: %s: %v", r.input, r.err)
			fmt.Printf("FAILED %s: %v\n", r.input, r.err)
			continue
		}
		outputs = append(outputs, r.output)
		mappings = append(mappings, r.mapping)
	}

	if len(outputs) > 0 {
		m, err := manifest.Build(outputs)
		if err != nil {
			fmt.Println("manifest build:", err)
			os.Exit(1)
		}
		m.Mappings = mappings
		manifestPath := filepath.Join(*outDir, "manifest.json")
		if err := manifest.Save(m, manifestPath); err != nil {
			fmt.Println("manifest save:", err)
			os.Exit(1)
		}
		fmt.Println("Wrote", manifestPath)
	}

	if *metricsFlag {
		snap := metrics.Snapshot()
		fmt.Printf("Processed %d files (%s) in %s, %.2f MiB/s\n",
			snap.Files, common.FormatBytes(snap.Bytes), snap.Duration.Round(time.Millisecond),
			snap.ThroughputBytesPerSecond()/(1024*1024))
	}
	fmt.Printf("Anonymized %d of %d files\n", len(outputs), len(results))
	if failed > 0 {
		os.Exit(1)
	}
}

// runBatch fans the inputs out over a bounded worker pool. Anonymous ids are
// assigned from the sorted input order so reruns produce the same mapping.
func runBatch(inputs []string, outDir string, cfg config, clog *common.ChangeLog, metrics *common.Metrics) []batchResult {
	sort.Strings(inputs)
	results := make([]batchResult, len(inputs))

	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < cfg.Concurrency; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				in := inputs[i]
				anonID := fmt.Sprintf("%s%06d", cfg.IDPrefix, i+1)
				out := filepath.Join(outDir, anonID+".scp")

				fileCfg := cfg.Anonymize
				fileCfg.AnonymousID = anonID
				res, err := anonymizeFile(in, out, fileCfg, clog)
				if err != nil {
					results[i] = batchResult{input: in, err: err}
					if metrics != nil {
						metrics.IncFailure()
					}
					continue
				}
				results[i] = batchResult{input: in, output: out, mapping: res.Mapping}
				if metrics != nil {
					if info, err := os.Stat(in); err == nil {
						metrics.AddFile(info.Size())
					} else {
						metrics.AddFile(0)
					}
				}
			}
		}()
	}
	for i := range inputs {
		jobs <- i
	}
	close(jobs)
	wg.Wait()
	return results
}

func findSCPFiles(dir string) ([]string, error) {
	var files []string
	err := filepath.WalkDir(dir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if strings.EqualFold(filepath.Ext(path), ".scp") {
			files = append(files, path)
		}
		return nil
	})
	return files, err
}

func reportCmd(args []string) {
	fs := flag.NewFlagSet("report", flag.ExitOnError)
	reportPath := fs.String("report", "", "report JSON")
	pdfPath := fs.String("pdf", "", "output PDF")
	filePath := fs.String("file", "", "verified .scp; its SHA-256 is stamped into the PDF")
	fs.Parse(args)
	if *reportPath == "" || *pdfPath == "" {
		fmt.Println("required: --report and --pdf")
		os.Exit(1)
	}

	rep, err := report.LoadReportJSON(*reportPath)
	if err != nil {
		fmt.Println("load report:", err)
		os.Exit(1)
	}
	var hash string
	if *filePath != "" {
		hex, _, err := common.Sha256OfFile(*filePath)
		if err != nil {
			fmt.Println("hash file:", err)
			os.Exit(1)
		}
		hash = hex
	}
	if err := report.SaveReportPDF(rep, hash, *pdfPath); err != nil {
		fmt.Println("write pdf:", err)
		os.Exit(1)
	}
	fmt.Println("Wrote PDF:", *pdfPath)
}
