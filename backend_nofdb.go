//go:build !fdb

package main

import (
	"errors"

	"github.com/tabeth/inhouseaws/config"
	"github.com/tabeth/inhouseaws/store"
)

var errNoFDB = errors.New("this binary was built without FoundationDB support, rebuild with -tags fdb")

func openFDB(config.Config) (store.Backend, error) {
	return nil, errNoFDB
}
