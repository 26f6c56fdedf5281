//go:build !windows

package file

import "os"

// setSparse is a no-op: these file systems allocate holes on their own.
func setSparse(*os.File, bool) error {
	return nil
}
