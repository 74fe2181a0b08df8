package archive

import "golang.org/x/sys/unix"

// syslog(2) actions.
const (
	syslogActionReadAll    = 3
	syslogActionSizeBuffer = 10
)

// ReadKernelLog returns the kernel ring buffer, like dmesg(1) without
// formatting. It needs CAP_SYSLOG, which PID 1 has.
func ReadKernelLog() ([]byte, error) {
	size, err := unix.Klogctl(syslogActionSizeBuffer, nil)
	if err != nil {
		return nil, err
	}
	if size <= 0 {
		return nil, nil
	}
	buf := make([]byte, size)
	n, err := unix.Klogctl(syslogActionReadAll, buf)
	if err != nil {
		return nil, err
	}
	return buf[:n], nil
}
