package cli_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denysvitali/odi-invoices/pkg/cli"
)

type mapLookup map[string]string

func (m mapLookup) Lookup(element string) (string, error) {
	v, ok := m[element]
	if !ok {
		return "", fmt.Errorf("keychain element %s not found", element)
	}
	return v, nil
}

type Inner struct {
	Key string
}

type testArgs struct {
	Inner
	Account string
	Plain   string
	Retries int
}

func TestFillValues(t *testing.T) {
	args := testArgs{
		Inner:   Inner{Key: "keychain:b2-key"},
		Account: "keychain:b2-account",
		Plain:   "as-is",
	}
	err := cli.FillValues(&args, mapLookup{"b2-key": "secret", "b2-account": "acc"})
	require.NoError(t, err)
	assert.Equal(t, "secret", args.Key)
	assert.Equal(t, "acc", args.Account)
	assert.Equal(t, "as-is", args.Plain)
}

func TestFillValuesMissing(t *testing.T) {
	args := testArgs{Account: "keychain:missing"}
	assert.Error(t, cli.FillValues(&args, mapLookup{}))
}

func TestBuildExtractor(t *testing.T) {
	ex, closer, err := cli.BuildExtractor(context.Background(), cli.ExtractionArgs{
		Backend:    cli.BackendHttp,
		OcrApiAddr: "https://ocr-api.lan:8443",
		MaxRetries: 2,
	})
	require.NoError(t, err)
	defer closer()
	assert.NotNil(t, ex)

	_, _, err = cli.BuildExtractor(context.Background(), cli.ExtractionArgs{Backend: "tesseract"})
	assert.Error(t, err)

	_, _, err = cli.BuildExtractor(context.Background(), cli.ExtractionArgs{Backend: cli.BackendGemini})
	assert.Error(t, err)

	_, _, err = cli.BuildExtractor(context.Background(), cli.ExtractionArgs{OcrApiAddr: "ftp://x"})
	assert.Error(t, err)
}
