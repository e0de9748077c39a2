package ingestor

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/stapelberg/airscan"
	"github.com/stapelberg/airscan/preset"
	"golang.org/x/sync/errgroup"

	"github.com/denysvitali/odi-invoices/pkg/intake"
	"github.com/denysvitali/odi-invoices/pkg/models"
	"github.com/denysvitali/odi-invoices/pkg/pipeline"
	"github.com/denysvitali/odi-invoices/pkg/storage"
	"github.com/denysvitali/odi-invoices/pkg/storage/model"
)

var log = logrus.StandardLogger().WithField("package", "ingestor")

const DefaultConcurrency = 4

type Config struct {
	Pipeline    *pipeline.Pipeline
	Storage     model.Storer
	Concurrency int
	// PageDelay slows down scanners that report pages in a tight loop.
	PageDelay time.Duration
}

type Ingestor struct {
	pipeline    *pipeline.Pipeline
	storage     model.Storer
	concurrency int
	pageDelay   time.Duration
}

// Summary counts what happened to the pages of one scan.
type Summary struct {
	ScanId string
	Pages  int
	Stored int
	Failed int
}

func New(config Config) (*Ingestor, error) {
	if config.Pipeline == nil {
		return nil, errors.New("pipeline is required")
	}
	if config.Storage == nil {
		return nil, errors.New("storage is required")
	}
	if config.Concurrency <= 0 {
		config.Concurrency = DefaultConcurrency
	}
	return &Ingestor{
		pipeline:    config.Pipeline,
		storage:     config.Storage,
		concurrency: config.Concurrency,
		pageDelay:   config.PageDelay,
	}, nil
}

// Ping makes sure the extraction backend is reachable.
func (i *Ingestor) Ping(ctx context.Context) error {
	ok, err := i.pipeline.Healthz(ctx)
	if err != nil {
		return fmt.Errorf("unable to ping extraction backend: %w", err)
	}
	if !ok {
		return fmt.Errorf("extraction backend is not healthy")
	}
	return nil
}

// ScanPages processes every page of scanner as a separate document. A page
// that fails is logged and counted; it does not stop the others.
func (i *Ingestor) ScanPages(ctx context.Context, scanner DocumentsScanner) (Summary, error) {
	summary := Summary{ScanId: uuid.NewString()}
	var stored, failed atomic.Int32

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(i.concurrency)

	seq := 0
	for scanner.ScanPage() {
		if err := gctx.Err(); err != nil {
			break
		}
		seq++
		b, err := io.ReadAll(scanner.CurrentPage())
		if err != nil {
			_ = g.Wait()
			return summary, fmt.Errorf("unable to read page: %w", err)
		}
		page := models.ScannedPage{
			Data:       b,
			ScanId:     summary.ScanId,
			SequenceId: seq,
			ScanTime:   time.Now(),
		}
		g.Go(func() error {
			if err := i.processPage(gctx, page); err != nil {
				log.Errorf("page %s: %v", page.Id(), err)
				failed.Add(1)
				return nil
			}
			stored.Add(1)
			return nil
		})
		if i.pageDelay > 0 {
			time.Sleep(i.pageDelay)
		}
	}
	_ = g.Wait()

	summary.Pages = seq
	summary.Stored = int(stored.Load())
	summary.Failed = int(failed.Load())
	if err := scanner.Err(); err != nil {
		return summary, fmt.Errorf("scanner: %w", err)
	}
	return summary, ctx.Err()
}

func (i *Ingestor) processPage(ctx context.Context, page models.ScannedPage) error {
	log.Debugf("ingesting page %d of scan %q", page.SequenceId, page.ScanId)
	res, err := i.pipeline.Process(ctx, intake.Upload{
		Body:         bytes.NewReader(page.Data),
		FileName:     page.FileName(),
		DeclaredSize: int64(len(page.Data)),
	}, nil)
	if err != nil {
		return err
	}
	saved := storage.NewSavedResult(res)
	saved.SavedAt = page.ScanTime.UTC()
	if err := i.storage.Store(ctx, saved); err != nil {
		return fmt.Errorf("unable to store result: %w", err)
	}
	log.Infof("page %s stored as %s (%s)", page.Id(), saved.Id, res.DocumentType)
	return nil
}

// Ingest connects to the eSCL scanner, scans every page from source and
// runs each one through the pipeline.
func (i *Ingestor) Ingest(ctx context.Context, scannerName string, source string) (Summary, error) {
	c := airscan.NewClient(scannerName)
	settings := preset.GrayscaleA4ADF()
	settings.Duplex = false
	settings.ColorMode = "RGB24"
	settings.DocumentFormat = "image/jpeg"
	settings.InputSource = source

	job, err := c.Scan(settings)
	if err != nil {
		return Summary{}, fmt.Errorf("unable to create scan job: %w", err)
	}
	return i.ScanPages(ctx, job)
}
