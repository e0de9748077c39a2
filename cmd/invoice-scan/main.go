package main

import (
	"context"
	"os"
	"os/signal"
	"time"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/odi-invoices/pkg/cli"
	"github.com/denysvitali/odi-invoices/pkg/ingestor"
	"github.com/denysvitali/odi-invoices/pkg/logutils"
	"github.com/denysvitali/odi-invoices/pkg/pipeline"
	"github.com/denysvitali/odi-invoices/pkg/storage"
)

var args struct {
	cli.ExtractionArgs
	storage.Args
	LogLevel    string `arg:"--log-level,env:LOG_LEVEL" default:"info"`
	ScannerName string `arg:"--scanner-name,env:SCANNER_NAME,required"`
	Source      string `arg:"--source,env:SOURCE" help:"Feeder or Platen" default:"Feeder"`
	Concurrency int    `arg:"-j,--concurrency,env:CONCURRENCY" default:"4"`
}

var log = logrus.StandardLogger()

func main() {
	arg.MustParse(&args)
	logutils.SetLoggerLevel(args.LogLevel)

	if err := cli.FillKeychainValues(&args); err != nil {
		log.Fatalf("unable to fill keychain values: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	extractor, closeExtractor, err := cli.BuildExtractor(ctx, args.ExtractionArgs)
	if err != nil {
		log.Fatalf("unable to create extractor: %v", err)
	}
	defer closeExtractor()

	log.Debugf("getting storage")
	selectedStorage, err := storage.Setup(ctx, args.Args)
	if err != nil {
		log.Fatalf("unable to create storage: %v", err)
	}

	log.Debugf("creating ingestor")
	i, err := ingestor.New(ingestor.Config{
		Pipeline:    pipeline.New(nil, extractor, nil),
		Storage:     selectedStorage,
		Concurrency: args.Concurrency,
		PageDelay:   100 * time.Millisecond,
	})
	if err != nil {
		log.Fatalf("unable to create ingestor: %v", err)
	}
	if err := i.Ping(ctx); err != nil {
		log.Fatalf("unable to ping services: %v", err)
	}

	log.Debugf("starting to ingest")
	summary, err := i.Ingest(ctx, args.ScannerName, args.Source)
	if err != nil {
		log.Fatalf("unable to ingest: %v", err)
	}
	log.Infof("scan %s: %d page(s), %d stored, %d failed", summary.ScanId, summary.Pages, summary.Stored, summary.Failed)
}
