// Copyright 2021 Intuitive Labs GmbH. All rights reserved.
//
// Use of this source code is governed by a BSD-style license
// that can be found in the LICENSE.txt file in the root of the source
// tree.

package kernel

import (
	"github.com/intuitivelabs/slog"
)

// NAME is the component name this package logs under, used as the log
// prefix in every helper below.
const NAME = "kernel"

// Log is the package logger. Call sites never touch slog directly; they
// go through the DBG/ERR/WARN/BUG/PANIC helpers and their *on() gates
// below. Verbosity can be raised at runtime with
// slog.SetLevel(&Log, slog.LDBG).
var Log slog.Log

func init() {
	slog.SetLevel(&Log, slog.LWARN)
}

// DBGon, ERRon and WARNon gate the (comparatively expensive) debug/error/
// warning call sites in this package.
func DBGon() bool  { return Log.DBGon() }
func ERRon() bool  { return Log.ERRon() }
func WARNon() bool { return Log.WARNon() }

// DBG logs a debug-level, printf-style message.
func DBG(f string, args ...interface{}) {
	Log.LLog(slog.LDBG, 1, "DBG: "+NAME+": ", f, args...)
}

// ERR logs an error-level, printf-style message.
func ERR(f string, args ...interface{}) {
	Log.LLog(slog.LERR, 1, "ERROR: "+NAME+": ", f, args...)
}

// WARN logs a warning-level, printf-style message.
func WARN(f string, args ...interface{}) {
	Log.LLog(slog.LWARN, 1, "WARNING: "+NAME+": ", f, args...)
}

// BUG logs a programmer-error condition. Unlike PANIC it does not halt:
// it is used for invariant violations the engine can still limp past
// (e.g. a periodic timer observed past its deadline).
func BUG(f string, args ...interface{}) {
	Log.LLog(slog.LBUG, 1, "BUG: "+NAME+": ", f, args...)
}

// PANIC logs an unrecoverable condition and halts. vtlist.go/queue.go
// call this as a bare package-level function with no Kernel receiver
// available (a corrupted node doesn't know which Kernel owns it); it
// halts through the process-wide Kernel instance (currCore, set by New,
// see debug.go). If no Kernel has been constructed yet, it falls back to
// a Go panic so the corruption is never silently swallowed.
func PANIC(f string, args ...interface{}) {
	Log.LLog(slog.LCRIT, 1, "PANIC: "+NAME+": ", f, args...)
	halt(f, args...)
}
