//go:build !unix

package ux

import "os"

func termWidth(*os.File) (int, bool) { return 0, false }
