//go:build windows

package file

import (
	"os"

	"golang.org/x/sys/windows"
)

// fsctlSetSparse is FSCTL_SET_SPARSE from winioctl.h.
const fsctlSetSparse = 0x000900c4

// setSparse issues FSCTL_SET_SPARSE with a FILE_SET_SPARSE_BUFFER.
func setSparse(f *os.File, sparse bool) error {
	var flag byte
	if sparse {
		flag = 1
	}
	var returned uint32
	return windows.DeviceIoControl(windows.Handle(f.Fd()), fsctlSetSparse, &flag, 1, nil, 0, &returned, nil)
}
