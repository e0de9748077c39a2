// Package storage selects the persistence collaborator for saved results.
package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/denysvitali/odi-invoices/pkg/models"
	"github.com/denysvitali/odi-invoices/pkg/storage/b2"
	"github.com/denysvitali/odi-invoices/pkg/storage/fs"
	"github.com/denysvitali/odi-invoices/pkg/storage/model"
	"github.com/denysvitali/odi-invoices/pkg/storage/opensearch"
)

var log = logrus.StandardLogger().WithField("package", "storage")

const (
	KindFs         = "fs"
	KindB2         = "b2"
	KindOpenSearch = "opensearch"
)

type FsArgs struct {
	FsPath string `arg:"--fs-path,env:FS_PATH" default:"./results"`
}

type B2Args struct {
	B2Account    string `arg:"--b2-account,env:B2_ACCOUNT"`
	B2Key        string `arg:"--b2-key,env:B2_KEY"`
	B2BucketName string `arg:"--b2-bucket-name,env:B2_BUCKET_NAME"`
	Passphrase   string `arg:"--passphrase,env:PASSPHRASE" help:"encrypt stored results with this passphrase"`
}

type OpenSearchArgs struct {
	OpenSearchAddr               string `arg:"--opensearch-addr,env:OPENSEARCH_ADDR"`
	OpenSearchUsername           string `arg:"--opensearch-username,env:OPENSEARCH_USERNAME"`
	OpenSearchPassword           string `arg:"--opensearch-password,env:OPENSEARCH_PASSWORD"`
	OpenSearchInsecureSkipVerify bool   `arg:"--opensearch-skip-tls,env:OPENSEARCH_SKIP_TLS"`
	OpenSearchIndex              string `arg:"--opensearch-index,env:OPENSEARCH_INDEX" default:"invoices"`
}

// Args is embedded in the argument structs of the binaries.
type Args struct {
	StorageType string `arg:"--storage,env:STORAGE_TYPE" default:"fs" help:"fs, b2 or opensearch"`
	FsArgs
	B2Args
	OpenSearchArgs
}

func Setup(ctx context.Context, args Args) (model.RWStorage, error) {
	switch args.StorageType {
	case KindFs, "":
		return fs.New(args.FsPath)
	case KindB2:
		return b2.New(ctx, b2.Config{
			Account:    args.B2Account,
			Key:        args.B2Key,
			BucketName: args.B2BucketName,
			Passphrase: args.Passphrase,
		})
	case KindOpenSearch:
		return opensearch.New(ctx, opensearch.Config{
			Addr:               args.OpenSearchAddr,
			Username:           args.OpenSearchUsername,
			Password:           args.OpenSearchPassword,
			InsecureSkipVerify: args.OpenSearchInsecureSkipVerify,
			Index:              args.OpenSearchIndex,
		})
	}
	return nil, fmt.Errorf("unknown storage type %q", args.StorageType)
}

// NewSavedResult wraps result with a fresh id and timestamp.
func NewSavedResult(result *models.ProcessedOcrResult) *models.SavedResult {
	return &models.SavedResult{
		Id:      uuid.NewString(),
		SavedAt: time.Now().UTC(),
		Result:  *result,
	}
}

// SaveFunc adapts a Storer to the save action of a presenter.
func SaveFunc(s model.Storer) func(ctx context.Context, result *models.ProcessedOcrResult) (string, error) {
	return func(ctx context.Context, result *models.ProcessedOcrResult) (string, error) {
		saved := NewSavedResult(result)
		if err := s.Store(ctx, saved); err != nil {
			return "", fmt.Errorf("store result: %w", err)
		}
		log.Infof("saved %s as %s", result.FileName, saved.Id)
		return saved.Id, nil
	}
}
