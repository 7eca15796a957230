package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"imagecompress-go/internal/batch"
	"imagecompress-go/internal/codec"
	"imagecompress-go/internal/compressor"
	"imagecompress-go/internal/config"
	"imagecompress-go/internal/logger"
	"imagecompress-go/internal/session"
	"imagecompress-go/internal/web"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

var (
	cfgFile    string
	verbose    bool
	quiet      bool
	targetKB   float64
	formatName string
	outDir     string
	minQuality int
	maxQuality int
	port       int
)

// rootCmd is the base command for the CLI.
var rootCmd = &cobra.Command{
	Use:   "imagecompress",
	Short: "Compress images to a target file size",
	Long: `imagecompress re-encodes JPEG and PNG images so each output fits under a
target size in kilobytes. It searches the encoder quality first and only
reduces resolution when no quality setting fits.

Use "compress" for local files or "serve" for the HTTP upload service.`,
	SilenceUsage: true,
}

// compressCmd compresses local files into an output directory.
var compressCmd = &cobra.Command{
	Use:   "compress <file>...",
	Short: "Compress local image files",
	Args:  cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCompress(cmd.OutOrStdout(), args)
	},
}

// serveCmd starts the upload service.
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP compression service",
	Long: `Starts the upload service. Clients POST images to /upload, fetch the
results as a ZIP from /download/{session_id} and may follow progress over
the /ws websocket. Expired sessions are swept in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runServe(cmd)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&verbose, "verbose", false, "enable verbose logging")
	rootCmd.PersistentFlags().BoolVar(&quiet, "quiet", false, "suppress non-error output")

	compressCmd.Flags().Float64Var(&targetKB, "target-kb", 0, "target size per image in KB (required)")
	compressCmd.Flags().StringVar(&formatName, "format", "original", "output format: original, jpg or png")
	compressCmd.Flags().StringVar(&outDir, "out", "compressed", "directory for compressed outputs")
	compressCmd.Flags().IntVar(&minQuality, "min-quality", 0, "lowest quality to try (default from config)")
	compressCmd.Flags().IntVar(&maxQuality, "max-quality", 0, "highest quality to try (default from config)")
	_ = compressCmd.MarkFlagRequired("target-kb")

	serveCmd.Flags().IntVar(&port, "port", 0, "port to run web server on (default from config)")

	rootCmd.AddCommand(compressCmd)
	rootCmd.AddCommand(serveCmd)
}

// runCompress compresses every file argument and writes the outputs.
func runCompress(out io.Writer, args []string) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if minQuality != 0 {
		cfg.Compression.MinQuality = minQuality
	}
	if maxQuality != 0 {
		cfg.Compression.MaxQuality = maxQuality
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	format, err := compressor.ParseOutputFormat(formatName)
	if err != nil {
		return err
	}

	log := setupLogger(cfg)
	c, engine, err := buildEngine(cfg, log)
	if err != nil {
		return err
	}

	items := make([]batch.Item, 0, len(args))
	for _, path := range args {
		data, err := os.ReadFile(path)
		if err != nil {
			// An unreadable file still gets a failed entry.
			log.Errorf("Failed to read %s: %v", path, err)
		}
		items = append(items, batch.Item{Name: filepath.Base(path), Data: data})
	}

	if err := os.MkdirAll(outDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	runner := batch.NewRunner(c, engine, log, batch.Config{
		Workers:        cfg.Performance.WorkerThreads,
		AllowExtension: cfg.IsAllowedExtension,
	})
	entries, stats := runner.Run(context.Background(), items, batch.Options{
		TargetKB:   targetKB,
		Format:     format,
		MinQuality: cfg.Compression.MinQuality,
		MaxQuality: cfg.Compression.MaxQuality,
	})

	used := make(map[string]bool)
	succeeded := 0
	for _, e := range entries {
		if !e.Success {
			fmt.Fprintf(out, "FAIL %s: %v\n", e.Name, e.Error)
			continue
		}
		name := outputName(e.Name, e.Result.Format, used)
		if err := os.WriteFile(filepath.Join(outDir, name), e.Result.Data, 0644); err != nil {
			fmt.Fprintf(out, "FAIL %s: %v\n", e.Name, err)
			continue
		}
		succeeded++

		status := "met"
		if !e.Result.MetTarget {
			status = "best effort"
		}
		fmt.Fprintf(out, "OK   %s -> %s  %.2fKB -> %.2fKB  q=%d scale=%.1f %s (%s)\n",
			e.Name, name, e.Result.OriginalSizeKB, e.Result.SizeKB,
			e.Result.Quality, e.Result.ScaleFactor(), e.Result.Resolution(), status)
	}

	if !quiet {
		fmt.Fprintln(out, "\n"+stats.GetSummary())
		fmt.Fprintln(out, stats.GetFormatBreakdown())
	}
	if succeeded < len(entries) {
		fmt.Fprintln(out, stats.GetErrorSummary())
	}

	if succeeded == 0 {
		return errors.New("no images were compressed")
	}
	return nil
}

// outputName swaps the extension for the encoded format and suffixes _1,
// _2, ... until the name has not been handed out before.
func outputName(input string, f codec.Format, used map[string]bool) string {
	base := strings.TrimSuffix(input, filepath.Ext(input))
	name := base + f.Extension()
	for i := 1; used[name]; i++ {
		name = fmt.Sprintf("%s_%d%s", base, i, f.Extension())
	}
	used[name] = true
	return name
}

// runServe runs the web server and the session janitor until a signal
// arrives or either of them fails.
func runServe(cmd *cobra.Command) error {
	cfg, err := config.LoadConfig(cfgFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if cmd.Flags().Changed("port") {
		cfg.Server.Port = port
	}

	log := setupLogger(cfg)
	c, engine, err := buildEngine(cfg, log)
	if err != nil {
		return err
	}

	sessions := session.NewManager(cfg.Session.UploadDir, cfg.Session.OutputDir, log)
	server := web.NewServer(cfg, log, sessions, c, engine)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := server.Start(cfg.Server.Port); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		return sessions.Run(gctx, cfg.Session.CleanupInterval, cfg.Session.MaxAge)
	})

	g.Go(func() error {
		<-gctx.Done()
		log.Info("Shutting down server")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := server.Stop(shutdownCtx); err != nil {
			return fmt.Errorf("server shutdown failed: %w", err)
		}
		return nil
	})

	if !quiet {
		fmt.Printf("Image compression service listening on http://localhost:%d\n", cfg.Server.Port)
		fmt.Printf("Press Ctrl+C to stop the server\n\n")
	}

	if err := g.Wait(); err != nil {
		return err
	}
	log.Info("Server stopped gracefully")
	return nil
}

// buildEngine wires the codec and the compression engine from config.
func buildEngine(cfg *config.Config, log *logrus.Logger) (*codec.ImagingCodec, *compressor.Engine, error) {
	opts, err := cfg.CodecOptions()
	if err != nil {
		return nil, nil, err
	}
	c := codec.NewImagingCodec(opts)
	engine := compressor.NewEngine(c, log, compressor.Options{
		FloorFirst: cfg.Compression.FloorFirst,
	})
	return c, engine, nil
}

// setupLogger configures and returns a logger.
func setupLogger(cfg *config.Config) *logrus.Logger {
	loggerCfg := logger.LoggerConfig{
		Level:      cfg.Logging.Level,
		FilePath:   cfg.Logging.FilePath,
		MaxSize:    cfg.Logging.MaxSize,
		MaxBackups: cfg.Logging.MaxBackups,
		MaxAge:     cfg.Logging.MaxAge,
		Compress:   cfg.Logging.Compress,
		Console:    !quiet,
		Output:     os.Stderr,
	}

	if verbose {
		loggerCfg.Level = "debug"
	}
	if quiet {
		loggerCfg.Level = "error"
	}

	log, err := logger.NewLogger(loggerCfg)
	if err != nil {
		log = logrus.New()
		log.SetLevel(logrus.InfoLevel)
	}

	return log
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
