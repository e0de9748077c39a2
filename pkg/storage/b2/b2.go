package b2

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"strings"

	rcloneb2 "github.com/rclone/rclone/backend/b2"
	"github.com/rclone/rclone/fs"
	"github.com/rclone/rclone/fs/config/configmap"
	"github.com/sirupsen/logrus"

	odicrypt "github.com/denysvitali/odi-invoices/pkg/crypt"
	"github.com/denysvitali/odi-invoices/pkg/models"
	"github.com/denysvitali/odi-invoices/pkg/storage/model"
	"github.com/denysvitali/odi-invoices/pkg/storage/rclone"
)

var log = logrus.StandardLogger().WithField("package", "storage/b2")

var _ model.RWStorage = (*B2)(nil)

const (
	resultsDir = "results"
	extension  = ".json"
)

type B2 struct {
	b2fs       fs.Fs
	bucketName string
	crypt      *odicrypt.OdiCrypt
}

type Config struct {
	Account    string
	Key        string
	BucketName string

	// Encryption specific
	Passphrase string
}

func New(ctx context.Context, config Config) (*B2, error) {
	if config.Account == "" {
		return nil, fmt.Errorf("account is required")
	}
	if config.Key == "" {
		return nil, fmt.Errorf("key is required")
	}
	if config.BucketName == "" {
		return nil, fmt.Errorf("bucket name is required")
	}

	if len(config.Passphrase) == 0 {
		log.Warnf("no passphrase provided, encryption will be disabled")
	}

	b2fs, err := rcloneb2.NewFs(ctx,
		"b2",
		config.BucketName+"/",
		configmap.Simple{
			"account":    config.Account,
			"key":        config.Key,
			"chunk_size": "5M",
		},
	)
	if err != nil {
		return nil, err
	}

	b := &B2{
		bucketName: config.BucketName,
		b2fs:       b2fs,
	}
	if len(config.Passphrase) != 0 {
		b.crypt, err = odicrypt.New(config.Passphrase)
		if err != nil {
			return nil, err
		}
	}
	return b, nil
}

func objectName(id string) string {
	return path.Join(resultsDir, id+extension)
}

func (b *B2) Store(ctx context.Context, result *models.SavedResult) error {
	if !model.ValidId(result.Id) {
		return fmt.Errorf("invalid result id %q", result.Id)
	}
	data, err := json.Marshal(result)
	if err != nil {
		return err
	}
	if b.crypt != nil {
		data, err = b.crypt.Encrypt(data)
		if err != nil {
			return err
		}
	}

	size := int64(len(data))
	info := rclone.NewObjectInfo(b.bucketName, objectName(result.Id), result.SavedAt, size)
	obj, err := b.b2fs.Put(ctx, bytes.NewReader(data), info)
	if err != nil {
		return err
	}
	log.Debugf("stored %s (%d bytes)", obj.Remote(), size)
	return nil
}

func (b *B2) Retrieve(ctx context.Context, id string) (*models.SavedResult, error) {
	if !model.ValidId(id) {
		return nil, os.ErrNotExist
	}
	obj, err := b.b2fs.NewObject(ctx, objectName(id))
	if err != nil {
		if errors.Is(err, fs.ErrorObjectNotFound) {
			return nil, os.ErrNotExist
		}
		return nil, err
	}
	return b.read(ctx, obj)
}

func (b *B2) read(ctx context.Context, obj fs.Object) (*models.SavedResult, error) {
	rc, err := obj.Open(ctx)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, err
	}
	return Decode(data, b.crypt)
}

// Decode parses a stored object, decrypting it first when it carries the
// encryption header.
func Decode(data []byte, crypt *odicrypt.OdiCrypt) (*models.SavedResult, error) {
	if odicrypt.IsEncrypted(data) {
		if crypt == nil {
			return nil, errors.New("object is encrypted but no passphrase was provided")
		}
		var err error
		data, err = crypt.Decrypt(data)
		if err != nil {
			return nil, fmt.Errorf("decrypt: %w", err)
		}
	}
	var res models.SavedResult
	if err := json.Unmarshal(data, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

func (b *B2) List(ctx context.Context) ([]models.SavedResult, error) {
	entries, err := b.b2fs.List(ctx, resultsDir)
	if err != nil {
		if errors.Is(err, fs.ErrorDirNotFound) {
			return []models.SavedResult{}, nil
		}
		return nil, err
	}

	results := []models.SavedResult{}
	for _, e := range entries {
		obj, ok := e.(fs.Object)
		if !ok || !strings.HasSuffix(obj.Remote(), extension) {
			continue
		}
		res, err := b.read(ctx, obj)
		if err != nil {
			log.Warnf("skipping %s: %v", obj.Remote(), err)
			continue
		}
		results = append(results, *res)
	}
	model.SortRecentFirst(results)
	return results, nil
}
