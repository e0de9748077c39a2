package main

import (
	"context"
	"os"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"

	backend "github.com/denysvitali/odi-invoices"
	"github.com/denysvitali/odi-invoices/pkg/cli"
	"github.com/denysvitali/odi-invoices/pkg/intake"
	"github.com/denysvitali/odi-invoices/pkg/logutils"
	"github.com/denysvitali/odi-invoices/pkg/normalizer"
	"github.com/denysvitali/odi-invoices/pkg/pipeline"
	"github.com/denysvitali/odi-invoices/pkg/storage"
	"github.com/denysvitali/odi-invoices/pkg/storage/model"
)

var args struct {
	cli.ExtractionArgs
	storage.Args
	NoStorage  bool          `arg:"--no-storage,env:NO_STORAGE" help:"disable the save, results and export routes"`
	ListenAddr string        `arg:"-L,--listen-addr,env:LISTEN_ADDR" default:"127.0.0.1:8085"`
	LogLevel   string        `arg:"--log-level,env:LOG_LEVEL" default:"info"`
	LogFormat  string        `arg:"--log-format,env:LOG_FORMAT" default:"text" help:"text or json"`
	MaxSize    int64         `arg:"--max-size,env:MAX_DOCUMENT_SIZE" help:"maximum document size in bytes (default 50 MiB)"`
	Deadline   time.Duration `arg:"--deadline,env:DOCUMENT_DEADLINE" default:"5m" help:"overall processing deadline per document"`
	JobTTL     time.Duration `arg:"--job-ttl,env:JOB_TTL" default:"30m"`
	LabelsFile string        `arg:"--labels-file,env:LABELS_FILE" help:"TOML label table replacing the built-in one"`
	AccessLog  bool          `arg:"--access-log,env:ACCESS_LOG"`
}

var log = logrus.StandardLogger()

func main() {
	arg.MustParse(&args)
	logutils.SetLoggerLevel(args.LogLevel)
	logutils.SetLoggerFormat(args.LogFormat)
	if err := cli.FillKeychainValues(&args); err != nil {
		log.Fatalf("fill keychain values: %v", err)
	}

	ctx := context.Background()
	extractor, closeExtractor, err := cli.BuildExtractor(ctx, args.ExtractionArgs)
	if err != nil {
		log.Fatalf("create extractor: %v", err)
	}
	defer closeExtractor()

	var intakeOpts []intake.Option
	if args.MaxSize > 0 {
		intakeOpts = append(intakeOpts, intake.WithMaxSize(args.MaxSize))
	}
	p := pipeline.New(
		intake.New(intakeOpts...),
		extractor,
		normalizer.New(loadLabels()),
		pipeline.WithDeadline(args.Deadline),
	)

	var store model.RWStorage
	if !args.NoStorage {
		store, err = storage.Setup(ctx, args.Args)
		if err != nil {
			log.Fatalf("create storage: %v", err)
		}
	}

	opts := []backend.Option{backend.WithJobTTL(args.JobTTL)}
	if args.AccessLog {
		opts = append(opts, backend.WithRequestLogging())
	}
	s := backend.New(p, store, opts...)
	defer s.Close()

	log.Infof("listening on %s", args.ListenAddr)
	if err := s.Run(args.ListenAddr); err != nil {
		log.Fatalf("listen: %v", err)
	}
}

func loadLabels() *normalizer.Table {
	if args.LabelsFile == "" {
		return nil
	}
	f, err := os.Open(args.LabelsFile)
	if err != nil {
		log.Fatalf("open labels file: %v", err)
	}
	defer f.Close()
	t, err := normalizer.LoadTable(f)
	if err != nil {
		log.Fatalf("load labels file: %v", err)
	}
	log.Infof("using label table version %d from %s", t.Version, args.LabelsFile)
	return t
}
