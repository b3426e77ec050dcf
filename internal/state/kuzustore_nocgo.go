//go:build !cgo

package state

import (
	"context"
	"errors"
)

var errNoCgo = errors.New("kuzu: store requires a cgo build")

// KuzuStore is unavailable without cgo; the constructors always fail.
type KuzuStore struct{}

var _ Store = (*KuzuStore)(nil)

func NewKuzuStore() (*KuzuStore, error) { return nil, errNoCgo }

func NewKuzuFileStore(string) (*KuzuStore, error) { return nil, errNoCgo }

func (*KuzuStore) Close() error { return nil }

func (*KuzuStore) Get(context.Context, string) (*PipelineState, error) { return nil, errNoCgo }

func (*KuzuStore) Put(context.Context, *PipelineState) error { return errNoCgo }

func (*KuzuStore) List(context.Context) ([]string, error) { return nil, errNoCgo }
