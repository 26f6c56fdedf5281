// Package file implements source.Source over local files.
//
// Reads and writes use the platform's positioned I/O: pread/pwrite on Unix
// and ReadFile/WriteFile with an OVERLAPPED offset on Windows. Other
// platforms fall back to os.File.ReadAt and WriteAt.
//
// One handle serves one operation at a time. Open a File per worker when
// several goroutines need the same file concurrently.
package file
