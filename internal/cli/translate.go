package cli

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"regexp"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"arxiv-translator/internal/compiler"
	"arxiv-translator/internal/config"
	"arxiv-translator/internal/downloader"
	"arxiv-translator/internal/fixer"
	"arxiv-translator/internal/llm"
	"arxiv-translator/internal/logger"
	"arxiv-translator/internal/pipeline"
	"arxiv-translator/internal/preamble"
	"arxiv-translator/internal/report"
	"arxiv-translator/internal/terminology"
	"arxiv-translator/internal/translator"
	"arxiv-translator/internal/types"
	"arxiv-translator/internal/walker"
)

// TranslateOptions holds the translate command's flags.
type TranslateOptions struct {
	ConfigFile      string
	OutputDir       string
	Model           string
	TargetLang      string
	Concurrency     int
	SkipTranslation bool
	NoCompile       bool
	Verbose         bool
}

// NewTranslateCommand creates the translate command.
func NewTranslateCommand() *cobra.Command {
	opts := &TranslateOptions{}

	cmd := &cobra.Command{
		Use:   "translate <arxiv-id|url|archive|dir>",
		Short: "Translate a paper's LaTeX source",
		Example: `  # Translate an arXiv paper by ID
  arxivtrans translate 2301.00001

  # Translate a local source archive without compiling
  arxivtrans translate paper.tar.gz --no-compile

  # Round-trip check only: mask and unmask without calling the model
  arxivtrans translate ./my-paper --skip-translation`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTranslate(args[0], opts)
		},
	}

	cmd.Flags().StringVarP(&opts.ConfigFile, "config", "c", "", "Config file path")
	cmd.Flags().StringVarP(&opts.OutputDir, "output-dir", "o", "", "Base output directory")
	cmd.Flags().StringVarP(&opts.Model, "model", "m", "", "Chat model to use")
	cmd.Flags().StringVarP(&opts.TargetLang, "target-lang", "l", "", "Target language tag (BCP 47, e.g. zh-Hans)")
	cmd.Flags().IntVarP(&opts.Concurrency, "concurrency", "j", 0, "Units translated in parallel")
	cmd.Flags().BoolVar(&opts.SkipTranslation, "skip-translation", false, "Mask and unmask only, no model calls")
	cmd.Flags().BoolVar(&opts.NoCompile, "no-compile", false, "Skip PDF compilation")
	cmd.Flags().BoolVarP(&opts.Verbose, "verbose", "v", false, "Verbose logging")

	return cmd
}

func runTranslate(sourceRef string, opts *TranslateOptions) error {
	cfg, err := config.Load(opts.ConfigFile)
	if err != nil {
		return err
	}
	applyFlags(cfg, opts)

	if !opts.SkipTranslation {
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logCfg := logger.DefaultConfig()
	logCfg.EnableConsole = true
	if cfg.LogFile != "" {
		logCfg.LogFilePath = cfg.LogFile
	}
	if cfg.Verbose {
		logCfg.Level = logger.LevelDebug
	}
	if err := logger.Init(logCfg); err != nil {
		return err
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	run := &runContext{cfg: cfg, opts: opts}
	return run.execute(ctx, sourceRef)
}

func applyFlags(cfg *config.Config, opts *TranslateOptions) {
	if opts.OutputDir != "" {
		cfg.OutputDir = opts.OutputDir
	}
	if opts.Model != "" {
		cfg.Model = opts.Model
	}
	if opts.TargetLang != "" {
		cfg.TargetLang = opts.TargetLang
	}
	if opts.Concurrency > 0 {
		cfg.Concurrency = opts.Concurrency
	}
	if opts.NoCompile {
		cfg.Compile = false
	}
	if opts.Verbose {
		cfg.Verbose = true
	}
}

// runContext carries the per-run directory layout.
type runContext struct {
	cfg  *config.Config
	opts *TranslateOptions

	projectDir string // <output>/<project>
	sandboxDir string // <output>/<project>/source_zh
	logsDir    string // <output>/<project>/logs
}

func (r *runContext) execute(ctx context.Context, sourceRef string) error {
	project := projectName(sourceRef)
	r.projectDir = filepath.Join(r.cfg.OutputDir, project)
	r.sandboxDir = filepath.Join(r.projectDir, "source_zh")
	r.logsDir = filepath.Join(r.projectDir, "logs")

	// Fetch and extract the source.
	dl := downloader.New(filepath.Join(r.projectDir, "src"))
	source, err := dl.Fetch(ctx, sourceRef)
	if err != nil {
		return err
	}

	// Locate the entry file and walk the inclusion graph.
	mainTex, err := walker.FindMainTex(source.ExtractDir)
	if err != nil {
		return err
	}
	source.MainTexFile = mainTex
	graph, err := walker.Discover(source.ExtractDir, mainTex)
	if err != nil {
		return err
	}
	mainRel, _ := filepath.Rel(source.ExtractDir, mainTex)
	rep := report.New(*source, mainRel)

	// Terminology and translation collaborators.
	var unitTranslator pipeline.UnitTranslator
	var repairer pipeline.Repairer
	if !r.opts.SkipTranslation {
		client, err := llm.NewChatClient(ctx, llm.Config{
			APIKey:  r.cfg.APIKey,
			BaseURL: r.cfg.BaseURL,
			Model:   r.cfg.Model,
			Timeout: r.cfg.APITimeout,
		})
		if err != nil {
			return err
		}

		entryUnit, _ := graph.UnitByPath(graph.Entry)
		title, abstract := terminology.ExtractMetadata(entryUnit.Content)
		glossary, err := terminology.Build(ctx, client, title, abstract)
		if err != nil {
			logger.Warn("terminology extraction failed, continuing without glossary", logger.Err(err))
			glossary = terminology.Map{}
		}
		if len(glossary) > 0 {
			if err := glossary.Save(filepath.Join(r.logsDir, "terminology.json")); err != nil {
				logger.Warn("failed to save terminology", logger.Err(err))
			}
		}

		unitTranslator = translator.New(client, glossary, r.cfg.TargetLanguageName(),
			translator.WithChunkSize(r.cfg.ChunkSize),
			translator.WithRetry(r.cfg.MaxRetries, translator.BaseRetryDelay))
		repairer = fixer.New(client)
	}

	// Mirror every non-source asset into the sandbox first; the pipeline
	// then overwrites the translated .tex files.
	if err := copyAssets(source.ExtractDir, r.sandboxDir); err != nil {
		return err
	}

	pipe := pipeline.New(unitTranslator, repairer, pipeline.Options{
		Concurrency:     r.cfg.Concurrency,
		RepairLimit:     r.cfg.RepairLimit,
		OutputDir:       r.sandboxDir,
		AuditDir:        filepath.Join(r.logsDir, "mappings"),
		SkipTranslation: r.opts.SkipTranslation,
	})
	result, err := pipe.Run(ctx, graph)
	if err != nil {
		return err
	}
	rep.Finish(result)

	if failed := result.Failed(); failed == len(result.Units) && len(result.Units) > 0 {
		r.finishReport(rep)
		return types.NewAppError(types.ErrTranslation, "all units failed translation", nil)
	}

	// Prepare the sandbox for CJK compilation.
	if !r.opts.SkipTranslation {
		if err := preamble.SanitizeProject(r.sandboxDir); err != nil {
			logger.Warn("font sanitizing failed", logger.Err(err))
		}
		if err := preamble.InjectFonts(filepath.Join(r.sandboxDir, mainRel)); err != nil {
			logger.Warn("font injection failed", logger.Err(err))
		}
	}

	if r.cfg.Compile {
		r.compile(ctx, rep, mainRel)
	}

	r.finishReport(rep)
	return nil
}

func (r *runContext) compile(ctx context.Context, rep *report.Report, mainRel string) {
	if !compiler.Available() {
		logger.Warn("latexmk not found, skipping compilation")
		return
	}
	comp := compiler.New(r.cfg.CompileTimeout)
	res, err := comp.Compile(ctx, r.sandboxDir, mainRel)
	if err != nil {
		logger.Error("compilation could not run", err)
		return
	}
	if !res.Success {
		logger.Error("compilation failed", nil, logger.String("error", res.ErrorMsg))
		return
	}
	dest := filepath.Join(r.projectDir, "paper_zh.pdf")
	if err := compiler.CopyPDF(res.PDFPath, dest); err != nil {
		logger.Error("failed to copy PDF", err)
		return
	}
	rep.PDFPath = dest
}

func (r *runContext) finishReport(rep *report.Report) {
	if err := rep.Save(filepath.Join(r.logsDir, "report.json")); err != nil {
		logger.Warn("failed to save report", logger.Err(err))
	}
	rep.Render(os.Stdout)
}

// copyAssets mirrors the extracted source tree into the sandbox.
func copyAssets(srcDir, destDir string) error {
	err := filepath.Walk(srcDir, func(path string, info os.FileInfo, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		target := filepath.Join(destDir, rel)
		if info.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, data, info.Mode())
	})
	if err != nil {
		return types.NewAppError(types.ErrInternal, "failed to prepare sandbox", err)
	}
	return nil
}

var unsafeNamePattern = regexp.MustCompile(`[^a-zA-Z0-9._-]+`)

// projectName derives a directory-safe project name from the source ref.
func projectName(ref string) string {
	name := ref
	if strings.Contains(name, "://") {
		parts := strings.Split(strings.TrimSuffix(name, "/"), "/")
		name = parts[len(parts)-1]
	}
	name = filepath.Base(name)
	for _, suffix := range []string{".tar.gz", ".tgz", ".zip", ".gz", ".tar"} {
		name = strings.TrimSuffix(name, suffix)
	}
	name = unsafeNamePattern.ReplaceAllString(name, "_")
	if name == "" || name == "." {
		name = "project"
	}
	return name
}
