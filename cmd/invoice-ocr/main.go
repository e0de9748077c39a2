package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"sync"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/denysvitali/odi-invoices/pkg/cli"
	"github.com/denysvitali/odi-invoices/pkg/intake"
	"github.com/denysvitali/odi-invoices/pkg/logutils"
	"github.com/denysvitali/odi-invoices/pkg/models"
	"github.com/denysvitali/odi-invoices/pkg/pipeline"
)

var args struct {
	cli.ExtractionArgs
	Files       []string `arg:"positional,required" help:"documents to process"`
	Concurrency int      `arg:"-j,--concurrency,env:CONCURRENCY" default:"4"`
	Output      string   `arg:"-o,--output" default:"json" help:"json or text"`
	LogLevel    string   `arg:"--log-level,env:LOG_LEVEL" default:"info"`
}

var log = logrus.StandardLogger()

type fileResult struct {
	File   string                     `json:"file"`
	Result *models.ProcessedOcrResult `json:"result,omitempty"`
	Error  string                     `json:"error,omitempty"`
}

func main() {
	arg.MustParse(&args)
	logutils.SetLoggerLevel(args.LogLevel)
	if err := cli.FillKeychainValues(&args); err != nil {
		log.Fatalf("fill keychain values: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	extractor, closeExtractor, err := cli.BuildExtractor(ctx, args.ExtractionArgs)
	if err != nil {
		log.Fatalf("create extractor: %v", err)
	}
	defer closeExtractor()
	p := pipeline.New(nil, extractor, nil)

	results := make([]fileResult, len(args.Files))
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(max(args.Concurrency, 1))
	for idx, file := range args.Files {
		g.Go(func() error {
			res, err := processFile(gctx, p, file)
			fr := fileResult{File: file, Result: res}
			if err != nil {
				fr.Error = err.Error()
			}
			mu.Lock()
			results[idx] = fr
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	failed := 0
	for _, r := range results {
		if r.Error != "" {
			failed++
		}
	}
	if err := printResults(results); err != nil {
		log.Fatalf("print results: %v", err)
	}
	if failed > 0 {
		log.Errorf("%d of %d documents failed", failed, len(results))
		os.Exit(1)
	}
}

func processFile(ctx context.Context, p *pipeline.Pipeline, file string) (*models.ProcessedOcrResult, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	st, err := f.Stat()
	if err != nil {
		return nil, err
	}
	return p.Process(ctx, intake.Upload{
		Body:         f,
		FileName:     filepath.Base(file),
		DeclaredSize: st.Size(),
	}, func(progress int) {
		log.Debugf("%s: %d%%", file, progress)
	})
}

func printResults(results []fileResult) error {
	if args.Output == "text" {
		for _, r := range results {
			if r.Error != "" {
				fmt.Printf("%s\tERROR\t%s\n", r.File, r.Error)
				continue
			}
			fmt.Printf("%s\t%s\t%s\t%s\t%s\t%s\n",
				r.File, r.Result.DocumentType, r.Result.Supplier, r.Result.InvoiceNumber,
				r.Result.InvoiceDate, r.Result.AmountWithTax)
		}
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(results)
}
