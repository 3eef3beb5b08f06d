// Package backend assembles the salon API adapter, local storage and the
// deletion pipeline selected by the configuration.
package backend

import (
	"errors"

	"caisse/internal/amqp"
	"caisse/internal/credential"
	"caisse/internal/export/sheets"
	"caisse/internal/loader"
	"caisse/internal/remote"
	"caisse/internal/services"
	"caisse/internal/storage"
)

type CleanupFunc func() error

// Backend is everything the HTTP server and the worker share.
type Backend struct {
	API     remote.API
	Storage *storage.SQLiteRepository
	Loader  *loader.Loader
	Deleter *services.DeletionService
	Queue   *amqp.Client   // nil in inline mode or when the broker is down
	Sheets  *sheets.Client // nil unless the Sheets export is configured
	// Credentials seals session tokens into the outbox; nil in inline mode.
	Credentials *credential.Box
	cleanups    []CleanupFunc
}

// Close releases resources in reverse creation order.
func (b *Backend) Close() error {
	var errs []error
	for i := len(b.cleanups) - 1; i >= 0; i-- {
		if err := b.cleanups[i](); err != nil {
			errs = append(errs, err)
		}
	}
	b.cleanups = nil
	return errors.Join(errs...)
}

func (b *Backend) onClose(fn CleanupFunc) {
	b.cleanups = append(b.cleanups, fn)
}
