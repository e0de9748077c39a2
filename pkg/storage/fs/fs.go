package fs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/denysvitali/odi-invoices/pkg/models"
	"github.com/denysvitali/odi-invoices/pkg/storage/model"
)

var log = logrus.StandardLogger().WithField("package", "storage/fs")

const extension = ".json"

type Fs struct {
	dir string
}

var _ model.RWStorage = (*Fs)(nil)

func New(dir string) (*Fs, error) {
	if dir == "" {
		return nil, errors.New("storage directory is empty")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("unable to create storage directory: %w", err)
	}
	return &Fs{dir: dir}, nil
}

func (fs *Fs) path(id string) string {
	return filepath.Join(fs.dir, id+extension)
}

func (fs *Fs) Store(ctx context.Context, result *models.SavedResult) error {
	if !model.ValidId(result.Id) {
		return fmt.Errorf("invalid result id %q", result.Id)
	}
	b, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return err
	}

	// Write then rename so readers never see a partial file.
	tmp, err := os.CreateTemp(fs.dir, "."+result.Id+"-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Rename(tmp.Name(), fs.path(result.Id)); err != nil {
		return err
	}
	log.Debugf("stored result %s", result.Id)
	return nil
}

func (fs *Fs) Retrieve(ctx context.Context, id string) (*models.SavedResult, error) {
	if !model.ValidId(id) {
		return nil, os.ErrNotExist
	}
	b, err := os.ReadFile(fs.path(id))
	if err != nil {
		return nil, err
	}
	var res models.SavedResult
	if err := json.Unmarshal(b, &res); err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}
	return &res, nil
}

func (fs *Fs) List(ctx context.Context) ([]models.SavedResult, error) {
	entries, err := os.ReadDir(fs.dir)
	if err != nil {
		return nil, err
	}
	results := []models.SavedResult{}
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), extension) || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		res, err := fs.Retrieve(ctx, strings.TrimSuffix(e.Name(), extension))
		if err != nil {
			log.Warnf("skipping %s: %v", e.Name(), err)
			continue
		}
		results = append(results, *res)
	}
	model.SortRecentFirst(results)
	return results, nil
}
