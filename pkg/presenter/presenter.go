// Package presenter holds the processing state of one document as seen by
// the UI: the current result, whether processing is running, progress and
// the save action.
package presenter

import (
	"context"
	"errors"
	"sync"

	"github.com/denysvitali/odi-invoices/pkg/models"
	"github.com/denysvitali/odi-invoices/pkg/ocrerrors"
)

var (
	ErrNothingToSave = errors.New("no result to save")
	ErrNoSaveAction  = errors.New("no save action configured")
)

// SaveFunc hands a result to the persistence collaborator and returns the
// id it was stored under.
type SaveFunc func(ctx context.Context, result *models.ProcessedOcrResult) (string, error)

type Presenter struct {
	// saveMu keeps a single save in flight.
	saveMu sync.Mutex

	mu         sync.RWMutex
	save       SaveFunc
	result     *models.ProcessedOcrResult
	processing bool
	progress   int
	err        error
	savedId    string
}

type ViewError struct {
	Message   string         `json:"message"`
	Kind      ocrerrors.Kind `json:"kind"`
	Transient bool           `json:"transient"`
}

// View is a snapshot of the presenter state.
type View struct {
	Result     *models.ProcessedOcrResult `json:"result"`
	Processing bool                       `json:"processing"`
	Progress   int                        `json:"progress"`
	Error      *ViewError                 `json:"error,omitempty"`
	CanSave    bool                       `json:"canSave"`
	SavedId    string                     `json:"savedId,omitempty"`
}

func New(save SaveFunc) *Presenter {
	return &Presenter{save: save}
}

// Begin resets the state for a new document.
func (p *Presenter) Begin() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.result = nil
	p.processing = true
	p.progress = 0
	p.err = nil
	p.savedId = ""
}

func (p *Presenter) SetProgress(progress int) {
	progress = min(max(progress, 0), 100)
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.processing {
		return
	}
	p.progress = progress
}

func (p *Presenter) Complete(result *models.ProcessedOcrResult) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.result = result
	p.processing = false
	p.progress = 100
	p.err = nil
}

func (p *Presenter) Fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.result = nil
	p.processing = false
	p.err = err
}

func (p *Presenter) Processing() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.processing
}

func (p *Presenter) View() View {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v := View{
		Result:     p.result,
		Processing: p.processing,
		Progress:   p.progress,
		CanSave:    p.result != nil && p.save != nil && p.savedId == "",
		SavedId:    p.savedId,
	}
	if p.err != nil {
		v.Error = toViewError(p.err)
	}
	return v
}

// Save invokes the save action with the current result. Saving the same
// result twice returns the id of the first save.
func (p *Presenter) Save(ctx context.Context) (string, error) {
	p.saveMu.Lock()
	defer p.saveMu.Unlock()

	p.mu.RLock()
	result, save, savedId := p.result, p.save, p.savedId
	p.mu.RUnlock()

	if save == nil {
		return "", ErrNoSaveAction
	}
	if result == nil {
		return "", ErrNothingToSave
	}
	if savedId != "" {
		return savedId, nil
	}

	id, err := save(ctx, result)
	if err != nil {
		return "", err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.result == result {
		p.savedId = id
	}
	return id, nil
}

func toViewError(err error) *ViewError {
	if e, ok := ocrerrors.As(err); ok {
		return &ViewError{Message: e.Error(), Kind: e.Kind, Transient: e.Transient}
	}
	return &ViewError{Message: err.Error(), Kind: ocrerrors.KindInternal}
}
