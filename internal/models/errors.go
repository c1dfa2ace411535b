package models

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrInvalidSymbol     = errors.New("invalid symbol")
	ErrInvalidAction     = errors.New("invalid action")
	ErrInvalidEntryPrice = errors.New("invalid entry price")
	ErrUpstream          = errors.New("upstream error")
	// ErrMissingMarketData не возвращается наружу: деградированный результат - nil.
	ErrMissingMarketData = errors.New("market data missing")
	ErrStorage           = errors.New("storage error")
)

// UpstreamError: отказ внешнего API цен.
// StatusCode != 0 - ошибка уровня HTTP, 0 - структурная (тело не то, что ждали).
type UpstreamError struct {
	Source     string
	StatusCode int
	Reason     string
	Err        error
}

func (e *UpstreamError) Error() string {
	msg := e.Source + ": "
	if e.StatusCode != 0 {
		msg += fmt.Sprintf("http %d: ", e.StatusCode)
	}
	msg += e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *UpstreamError) Unwrap() error { return e.Err }

func (e *UpstreamError) Is(target error) bool { return target == ErrUpstream }

// HTTP: true, если апстрим ответил не-2xx.
func (e *UpstreamError) HTTP() bool { return e.StatusCode != 0 }

// StorageError: отказ табличного хранилища.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// NewStorageError оборачивает err, nil остаётся nil.
func NewStorageError(op string, err error) error {
	if err == nil {
		return nil
	}
	return &StorageError{Op: op, Err: err}
}
