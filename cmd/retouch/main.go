// Command retouch runs the processing pipeline on image files against a
// retouch backend.
package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"

	"github.com/gogpu/retouch"
	"github.com/gogpu/retouch/document"
	"github.com/gogpu/retouch/generation"
	"github.com/gogpu/retouch/internal/config"
	"github.com/gogpu/retouch/pipeline"
)

var (
	configPath = flag.String("config", "", "path to config file")
	backendURL = flag.String("backend", "", "backend URL (overrides config)")
	model      = flag.String("model", "", "translation model id")
	lang       = flag.String("lang", "", "target language")
	effect     = flag.String("effect", "", "render effect (overrides config)")
	outDir     = flag.String("out", "", "output directory (default: next to each input)")
)

func main() {
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
		os.Exit(1)
	}

	var err error
	switch cmd := flag.Arg(0); cmd {
	case "process":
		if flag.NArg() < 2 {
			fmt.Fprintln(os.Stderr, "Usage: retouch process <image>...")
			os.Exit(1)
		}
		err = cmdProcess(flag.Args()[1:])
	case "models":
		err = cmdModels()
	case "config":
		err = cmdConfig(os.Stdout)
	case "help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `retouch - image translation pipeline client

Usage: retouch [options] <command> [args]

Commands:
  process <image>...  Detect, recognize, inpaint, translate and render each image
  models              List the translation models offered by the backend
  config              Print the effective configuration
  help                Show this help message

Options:
  -config <path>   Path to config file
  -backend <url>   Backend URL
  -model <id>      Translation model id
  -lang <code>     Target language
  -effect <name>   Render effect (normal, antique, metal, manga, motionBlur)
  -out <dir>       Output directory

Environment:
  RETOUCH_BACKEND_URL, RETOUCH_OPENAI_ENDPOINT, RETOUCH_OPENAI_API_KEY,
  RETOUCH_LOG_LEVEL override the config file.`)
}

// loadConfig reads the config file and applies command line overrides.
func loadConfig() (*config.Config, error) {
	var cfg *config.Config
	var err error
	if *configPath == "" {
		cfg, err = config.Load(config.ConfigPath())
	} else {
		cfg, err = config.Load(*configPath)
	}
	if err != nil {
		return nil, err
	}
	if *backendURL != "" {
		cfg.Backend.URL = *backendURL
	}
	if *effect != "" {
		cfg.Display.Effect = *effect
	}
	if *model != "" {
		cfg.Generation.Model = *model
	}
	if *lang != "" {
		cfg.Generation.Language = *lang
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func cmdConfig(w io.Writer) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	cfg.Generation.OpenAI.APIKey = redact(cfg.Generation.OpenAI.APIKey)
	return toml.NewEncoder(w).Encode(cfg)
}

func redact(s string) string {
	if s == "" {
		return ""
	}
	return "********"
}

func cmdModels() error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	be, err := newBackend(cfg)
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	gen := generation.NewManager(be, generation.WithOpenAI(openAIConfig(cfg)))
	if err := gen.Refresh(ctx); err != nil {
		return err
	}
	for _, m := range gen.State().Models {
		fmt.Printf("%-24s %s\n", m.ID, strings.Join(m.Languages, ", "))
	}
	return nil
}

func cmdProcess(paths []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	level := new(slog.LevelVar)
	retouch.SetLogger(cfg.NewLogger(os.Stderr, level))

	docs, err := readDocuments(paths)
	if err != nil {
		return err
	}
	be, err := newBackend(cfg)
	if err != nil {
		return err
	}
	opts, err := sessionOptions(cfg, func(err error) {
		retouch.Logger().Warn("sync failed", "error", err)
	})
	if err != nil {
		return err
	}
	s, err := retouch.New(be, opts...)
	if err != nil {
		return err
	}
	defer s.Close()

	if *configPath != "" {
		stopWatch := watchConfig(*configPath, s, level)
		defer stopWatch()
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	go func() {
		<-ctx.Done()
		s.Pipeline().Cancel()
	}()

	if err := selectModel(ctx, s.Generation(), cfg); err != nil {
		return err
	}
	if err := s.Load(docs); err != nil {
		return err
	}

	res, err := s.Pipeline().ProcessAll(ctx, func(p int) {
		fmt.Fprintf(os.Stderr, "\rprocessing: %3d%%", p)
	})
	fmt.Fprintln(os.Stderr)
	for _, r := range res.Documents {
		if r.Completed < pipeline.TotalSteps {
			continue
		}
		if err := writeResult(s, r.Document, paths[r.Document]); err != nil {
			return err
		}
	}
	if err != nil {
		return err
	}
	if res.Cancelled {
		return errors.New("cancelled")
	}
	return nil
}

// selectModel applies the configured model and language, if any.
func selectModel(ctx context.Context, gen *generation.Manager, cfg *config.Config) error {
	if cfg.Generation.Model == "" {
		return nil
	}
	if err := gen.Refresh(ctx); err != nil {
		return err
	}
	if err := gen.SelectModel(ctx, cfg.Generation.Model); err != nil {
		return err
	}
	if cfg.Generation.Language != "" {
		return gen.SelectLanguage(cfg.Generation.Language)
	}
	return nil
}

// watchConfig applies brush and log level changes of the config file while
// the session runs.
func watchConfig(path string, s *retouch.Session, level *slog.LevelVar) func() {
	l := config.NewLoader(path)
	if _, err := l.Load(); err != nil {
		retouch.Logger().Warn("config watch disabled", "error", err)
		return func() {}
	}
	l.OnChange(func(c *config.Config) {
		level.Set(c.LogLevel())
		if color, err := c.BrushColor(); err == nil {
			s.Editing().SetBrush(c.Brush.Size, color)
		}
		retouch.Logger().Info("config reloaded", "path", path)
	})
	if err := l.Watch(); err != nil {
		retouch.Logger().Warn("config watch disabled", "error", err)
	}
	done := make(chan struct{})
	go func() {
		for {
			select {
			case err := <-l.Errors():
				retouch.Logger().Warn("config reload failed", "error", err)
			case <-done:
				return
			}
		}
	}()
	return func() {
		close(done)
		_ = l.Close()
	}
}

// readDocuments loads each image file as a document.
func readDocuments(paths []string) ([]document.Document, error) {
	docs := make([]document.Document, 0, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, err
		}
		ic, _, err := image.DecodeConfig(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		name := filepath.Base(p)
		docs = append(docs, document.Document{
			ID:     name,
			Name:   name,
			Width:  ic.Width,
			Height: ic.Height,
			Image:  data,
		})
	}
	return docs, nil
}

// writeResult writes the rendered layer of doc, or the inpainted layer when
// nothing was rendered.
func writeResult(s *retouch.Session, doc int, src string) error {
	d, ok := s.Store().Document(doc)
	if !ok {
		return retouch.ErrNoDocument
	}
	data, ok := d.Layer(document.LayerRendered)
	if !ok {
		if data, ok = d.Layer(document.LayerInpainted); !ok {
			return nil
		}
	}
	dir := *outDir
	if dir == "" {
		dir = filepath.Dir(src)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	base := strings.TrimSuffix(filepath.Base(src), filepath.Ext(src))
	out := filepath.Join(dir, base+".retouched.png")
	if err := os.WriteFile(out, data, 0o644); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s\n", out)
	return nil
}
