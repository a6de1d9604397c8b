package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/goliatone/go-clinicform/internal/config"
	"github.com/goliatone/go-clinicform/pkg/console"
	"github.com/goliatone/go-clinicform/pkg/directory"
	"github.com/goliatone/go-clinicform/pkg/logging"
	"github.com/goliatone/go-clinicform/pkg/model"
	"github.com/goliatone/go-clinicform/pkg/runtime"
	"github.com/goliatone/go-clinicform/pkg/submission"
	"github.com/goliatone/go-clinicform/pkg/summary"
)

func main() {
	formPath := flag.String("form", "form.json", "form document (JSON or YAML)")
	fixtures := flag.String("fixtures", "", "offline directory fixtures; overrides DIRECTORY_BASE_URL")
	submitURL := flag.String("submit", "", "endpoint to POST the submission to; prints it when empty")
	viewerZone := flag.String("viewer-zone", "", "zone to show slot times in; defaults to VIEWER_TIMEZONE")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	logger, err := logging.New(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()
	if *viewerZone != "" {
		cfg.ViewerTimeZone = *viewerZone
		if err := cfg.Validate(); err != nil {
			log.Fatalf("viewer zone: %v", err)
		}
	}

	raw, err := os.ReadFile(*formPath)
	if err != nil {
		log.Fatalf("read form: %v", err)
	}
	form, err := model.Decode(raw)
	if err != nil {
		log.Fatalf("decode form: %v", err)
	}

	dir, err := openDirectory(cfg, *fixtures, logger)
	if err != nil {
		log.Fatalf("directory: %v", err)
	}

	renderer, err := summary.NewRenderer(summary.WithLocation(cfg.ViewerLocation()))
	if err != nil {
		log.Fatalf("summary: %v", err)
	}
	var sink runtime.Submitter = runtime.SubmitFunc(func(_ context.Context, form model.FormModel, values model.FormValues) error {
		text, err := renderer.Render(form, values, time.Now())
		if err != nil {
			return err
		}
		fmt.Println(text)
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(values)
	})
	if *submitURL != "" {
		sink = submission.NewHTTPSink(*submitURL,
			submission.WithHTTPClient(&http.Client{Timeout: cfg.RequestTimeout}),
			submission.WithHTTPLogger(logger))
	}

	session, err := runtime.New(form,
		runtime.WithLogger(logger),
		runtime.WithDirectory(dir),
		runtime.WithSubmitter(sink),
		runtime.WithClinicID(cfg.ClinicID),
		runtime.WithClinicZone(cfg.ClinicLocation()),
		runtime.WithViewerZone(cfg.ViewerLocation()),
	)
	if err != nil {
		log.Fatalf("session: %v", err)
	}

	ctx := context.Background()
	if err := session.Start(ctx); err != nil {
		log.Fatalf("start: %v", err)
	}
	if err := console.NewRunner(console.WithLogger(logger)).Run(ctx, session); err != nil {
		if errors.Is(err, console.ErrAborted) {
			os.Exit(130)
		}
		log.Fatalf("run: %v", err)
	}
}

func openDirectory(cfg config.Config, fixtures string, logger *zap.Logger) (any, error) {
	if fixtures != "" {
		raw, err := os.ReadFile(fixtures)
		if err != nil {
			return nil, err
		}
		return directory.LoadStatic(raw)
	}
	if cfg.DirectoryBaseURL == "" {
		return nil, errors.New("set DIRECTORY_BASE_URL or pass -fixtures")
	}
	return directory.NewClient(cfg.DirectoryBaseURL,
		directory.WithTimeout(cfg.RequestTimeout),
		directory.WithLogger(logger))
}
