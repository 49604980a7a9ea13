// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package logx builds the logger shared by the telepathy commands.
package logx

import (
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
)

// New returns a logger writing to stderr, as text on a terminal and as
// JSON otherwise.
func New(debug bool) *logrus.Logger {
	return newLogger(os.Stderr, isatty.IsTerminal(os.Stderr.Fd()), debug)
}

func newLogger(w io.Writer, tty bool, debug bool) *logrus.Logger {
	l := logrus.New()
	l.SetOutput(w)
	if tty {
		l.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}
	if debug {
		l.SetLevel(logrus.DebugLevel)
	}
	return l
}
