// Copyright (c) 2024 Arista Networks, Inc.
// Use of this source code is governed by the Apache License 2.0
// that can be found in the COPYING file.

package chash

import (
	aglog "github.com/aristanetworks/cuckoohash/glog"
	"github.com/aristanetworks/cuckoohash/logger"
)

// Logger is the ambient logging collaborator a Table reports internal
// faults (ErrInternal) and its creation and teardown through. It is the
// same interface the rest of this module uses, so a caller already holding
// a logger.Logger for its own code can pass it straight through
// WithLogger without adapting it first.
type Logger = logger.Logger

// defaultLogger is used when a Table is created without WithLogger.
var defaultLogger Logger = &aglog.Glog{}
