// File: control/logging.go
// Author: momentics <momentics@gmail.com>
//
// Structured logging, field-scoped per subsystem. The teacher carries no
// logging dependency of its own; the rest of the retrieval pack
// (sagernet/sing's common/log/logrus.go and cli/*) settles on
// github.com/sirupsen/logrus, so hioload-net adopts it the same way rather
// than hand-rolling a logging shim on top of the standard library's log
// package.

package control

import "github.com/sirupsen/logrus"

// Logger is the framework-wide logger. Callers scope it per subsystem via
// WithField/WithFields; nothing on the stream stack's read/write hot path
// logs.
var Logger = logrus.New()

// ComponentLogger returns a logger scoped to a named subsystem, e.g.
// ComponentLogger("ioservice") or ComponentLogger("ws").
func ComponentLogger(component string) *logrus.Entry {
	return Logger.WithField("component", component)
}
