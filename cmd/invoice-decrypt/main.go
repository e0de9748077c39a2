package main

import (
	"encoding/json"
	"io"
	"os"

	"github.com/alexflint/go-arg"
	"github.com/sirupsen/logrus"

	odicrypt "github.com/denysvitali/odi-invoices/pkg/crypt"
	"github.com/denysvitali/odi-invoices/pkg/storage/b2"
)

var args struct {
	Passphrase string `arg:"env:PASSPHRASE"`
	Raw        bool   `arg:"--raw" help:"write the decrypted bytes instead of the decoded result"`
}

var log = logrus.StandardLogger()

func main() {
	arg.MustParse(&args)

	if args.Passphrase == "" {
		log.Fatalf("passphrase cannot be empty")
	}

	c, err := odicrypt.New(args.Passphrase)
	if err != nil {
		log.Fatalf("unable to create crypt: %v", err)
	}

	data, err := io.ReadAll(os.Stdin)
	if err != nil {
		log.Fatalf("unable to read input: %v", err)
	}

	if args.Raw {
		plain, err := c.Decrypt(data)
		if err != nil {
			log.Fatalf("unable to decrypt: %v", err)
		}
		if _, err := os.Stdout.Write(plain); err != nil {
			log.Fatalf("unable to write: %v", err)
		}
		return
	}

	res, err := b2.Decode(data, c)
	if err != nil {
		log.Fatalf("unable to decode: %v", err)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(res); err != nil {
		log.Fatalf("unable to write: %v", err)
	}
}
