package logging

import (
	"fmt"
	"os"
)

// kmsgPath is the kernel log device; PID 1 has no other reliable console.
var kmsgPath = "/dev/kmsg"

// Kmsg writes a single message to the kernel ring buffer at error priority.
// It is best effort: the device may be missing or read-only this early.
func Kmsg(format string, args ...any) error {
	f, err := os.OpenFile(kmsgPath, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer f.Close()
	// <3> is KERN_ERR.
	_, err = fmt.Fprintf(f, "<3>bootchartd: "+format+"\n", args...)
	return err
}
