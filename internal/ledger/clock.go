package ledger

import "time"

// nowMicros is the system-clock implementation of Clock: microseconds
// since the Unix epoch, matching the Rust prototype's timestamp unit so
// a ported test fixture's expected hashes would still line up.
func nowMicros() int64 {
	return time.Now().UnixMicro()
}
