package console

import (
	"context"
	"errors"
	"sync"

	"github.com/gagliardetto/solana-go"

	"solana-token-console/internal/domain"
	"solana-token-console/internal/mutation"
)

var (
	// ErrDialogClosed is returned when submitting or cancelling while no
	// dialog is open.
	ErrDialogClosed = errors.New("dialog is not open")

	// ErrDialogOpen is returned when opening a dialog over another one.
	ErrDialogOpen = errors.New("dialog already open")
)

// DialogMode is the state of the token edit dialog.
type DialogMode int

const (
	DialogClosed DialogMode = iota
	DialogCreate
	DialogEdit
)

func (m DialogMode) String() string {
	switch m {
	case DialogCreate:
		return "create"
	case DialogEdit:
		return "edit"
	default:
		return "closed"
	}
}

// DialogSubmission is handed to the completion callback.
type DialogSubmission struct {
	Mode  DialogMode
	Mint  solana.PublicKey // zero for DialogCreate
	Props domain.TokenProperties
}

// CompleteFunc runs when a dialog is submitted with valid input.
type CompleteFunc func(ctx context.Context, sub DialogSubmission) error

// DialogView is a copy of the dialog state for rendering.
type DialogView struct {
	Mode DialogMode
	Mint solana.PublicKey
	Form domain.TokenProperties
}

// Open reports whether the dialog is showing.
func (v DialogView) Open() bool {
	return v.Mode != DialogClosed
}

// Dialog is the create/edit modal. Transitions:
//
//	closed -> create    OpenCreate
//	closed -> edit      OpenEdit
//	create|edit -> closed  Cancel, Submit
type Dialog struct {
	complete CompleteFunc

	mu       sync.Mutex
	mode     DialogMode
	mint     solana.PublicKey
	form     domain.TokenProperties
	original *float64 // fee the edit form was opened with
}

// NewDialog creates a closed dialog that calls complete on submit.
func NewDialog(complete CompleteFunc) *Dialog {
	return &Dialog{complete: complete}
}

// View returns the current state.
func (d *Dialog) View() DialogView {
	d.mu.Lock()
	defer d.mu.Unlock()
	return DialogView{Mode: d.mode, Mint: d.mint, Form: d.form}
}

// OpenCreate shows a blank form.
func (d *Dialog) OpenCreate() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mode != DialogClosed {
		return ErrDialogOpen
	}
	d.mode = DialogCreate
	d.mint = solana.PublicKey{}
	d.form = domain.TokenProperties{}
	d.original = nil
	return nil
}

// OpenEdit shows a form pre-filled from rec.
func (d *Dialog) OpenEdit(rec *domain.TokenRecord) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mode != DialogClosed {
		return ErrDialogOpen
	}

	form := domain.TokenProperties{}
	if rec.Metadata != nil {
		form.Name = rec.Metadata.Name
		form.Symbol = rec.Metadata.Symbol
		form.URI = rec.Metadata.URI
	}
	d.original = nil
	if latest := rec.LatestFee(); latest != nil {
		pct := latest.Percent()
		form.Fee = &pct
		d.original = &pct
	}

	d.mode = DialogEdit
	d.mint = rec.Mint
	d.form = form
	return nil
}

// Cancel closes the dialog without side effects.
func (d *Dialog) Cancel() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.mode == DialogClosed {
		return ErrDialogClosed
	}
	d.close()
	return nil
}

// Close closes the dialog whatever its state.
func (d *Dialog) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.close()
}

func (d *Dialog) close() {
	d.mode = DialogClosed
	d.mint = solana.PublicKey{}
	d.form = domain.TokenProperties{}
	d.original = nil
}

// Submit validates props, runs the completion callback and closes the
// dialog. Invalid input leaves the dialog open with the entered values and
// makes no callback. An unchanged fee in edit mode is not resubmitted.
func (d *Dialog) Submit(ctx context.Context, props domain.TokenProperties) error {
	d.mu.Lock()
	if d.mode == DialogClosed {
		d.mu.Unlock()
		return ErrDialogClosed
	}
	if err := mutation.ValidateProperties(props); err != nil {
		d.form = props
		d.mu.Unlock()
		return err
	}

	sub := DialogSubmission{Mode: d.mode, Mint: d.mint, Props: props}
	switch {
	case d.mode == DialogCreate:
		sub.Props.Fee = nil
	case props.Fee != nil && d.original != nil && *props.Fee == *d.original:
		sub.Props.Fee = nil
	}
	d.close()
	d.mu.Unlock()

	return d.complete(ctx, sub)
}
