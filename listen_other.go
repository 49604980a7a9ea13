// Copyright 2026 someonegg. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

//go:build !unix

package telepathy

import (
	"syscall"
)

func reuseAddrControl(network, address string, rc syscall.RawConn) error {
	return nil
}
