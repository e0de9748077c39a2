package intake

import (
	"bytes"
	"fmt"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"
)

func init() {
	// pdfcpu would otherwise create its configuration directory on first use.
	api.DisableConfigDir()
}

func pageCount(data []byte) (pages int, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdfcpu: %v", r)
		}
	}()

	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pages, err = api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, err
	}
	if pages < 1 {
		return 0, fmt.Errorf("pdf has no pages")
	}
	return pages, nil
}
