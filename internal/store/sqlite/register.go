// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Trendscout Contributors

package sqlite

import (
	"github.com/trendscout-dev/trendscout/internal/store"
)

func init() {
	store.RegisterBackend("sqlite", func(cfg store.Config) (store.Collection, error) {
		return NewReportCollection(cfg.Path, cfg.Collection, cfg.VectorDimensions)
	})
}
