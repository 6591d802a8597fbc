//go:build !unix

package vecindex

import "os"

// Without flock(2) the index is only guarded within one process.
func flock(*os.File, bool) error { return nil }

func funlock(*os.File) error { return nil }
