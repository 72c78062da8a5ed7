package main

import (
	"errors"
	"fmt"

	"github.com/pion/logging"

	"github.com/backkem/cosem/pkg/config"
	"github.com/backkem/cosem/pkg/service"
	"github.com/backkem/cosem/pkg/store"
)

// device is a logical device opened for one command.
type device struct {
	*config.Device
	svc     *service.Service
	keep    bool
	counter *store.CounterFile
	log     logging.LeveledLogger
}

// openDevice loads the device model and restores the stored state.
func (a *app) openDevice() (*device, error) {
	m, err := config.Load(a.v.GetString(flagModel))
	if err != nil {
		return nil, err
	}

	d := &device{log: a.loggers.NewLogger("cosemctl")}
	opts := config.Options{LoggerFactory: a.loggers}

	var storage store.Storage = store.NewMemoryStorage()
	if path := a.v.GetString(flagState); path != "" {
		storage = store.NewFileStorage(path)
		d.keep = true
	}
	if path := a.v.GetString(flagCounter); path != "" {
		d.counter = store.NewCounterFile(path)
		next, ok, err := d.counter.Load()
		if err != nil {
			return nil, fmt.Errorf("counter: %w", err)
		}
		if ok {
			opts.InvocationCounter = &next
		}
		opts.PersistCounter = d.counter.Save
	} else if d.keep {
		// Without a counter file the counter travels in the snapshot.
		snap, err := storage.Load()
		if err != nil {
			return nil, fmt.Errorf("restore: %w", err)
		}
		if snap != nil && snap.InvocationCounter != nil {
			opts.InvocationCounter = snap.InvocationCounter
		}
	}
	if d.Device, err = config.Build(m, opts); err != nil {
		return nil, err
	}

	d.svc, err = service.New(service.Config{
		Registry:      d.Registry,
		Access:        d.Access,
		Security:      d.Security,
		Storage:       storage,
		LoggerFactory: a.loggers,
	})
	if err != nil {
		return nil, err
	}
	if d.keep {
		if _, _, err := d.svc.Restore(); err != nil {
			return nil, fmt.Errorf("restore: %w", err)
		}
	}
	return d, nil
}

// save keeps the object state when a state file is configured.
func (d *device) save() error {
	if !d.keep {
		return nil
	}
	return d.svc.Save()
}

func (d *device) requireSecurity() error {
	if d.Security == nil {
		return errors.New("device model has no security section")
	}
	return nil
}
