//go:build fdb

package main

import (
	"strings"

	"github.com/tabeth/inhouseaws/config"
	"github.com/tabeth/inhouseaws/store"
	"github.com/tabeth/inhouseaws/store/fdbstore"
)

func openFDB(cfg config.Config) (store.Backend, error) {
	b, err := fdbstore.Open(fdbstore.Options{
		ClusterFile: cfg.FDBClusterFile,
		APIVersion:  cfg.FDBAPIVersion,
		Directory:   strings.Split(strings.Trim(cfg.FDBDirectory, "/"), "/"),
	})
	if err != nil {
		return nil, err
	}
	return b, nil
}
