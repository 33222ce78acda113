package executor

import "bytes"

const (
	// maxOutputBytes caps stderr and build output.
	maxOutputBytes = 64 * 1024 // 64 KB

	// DefaultMaxStdoutBytes caps program stdout. It must stay above the
	// largest expected output, since truncated stdout can never match.
	DefaultMaxStdoutBytes = 64 << 20 // 64 MB

	// outputTruncatedMsg is appended when output exceeds the limit.
	outputTruncatedMsg = "\n... output truncated ..."
)

// limitedBuffer is a bytes.Buffer that stops accepting writes after a limit.
// Writes past the limit are discarded but reported as successful so the
// child never sees a broken pipe.
type limitedBuffer struct {
	buf       bytes.Buffer
	limit     int
	truncated bool
}

func newLimitedBuffer(limit int) *limitedBuffer {
	return &limitedBuffer{limit: limit}
}

func (lb *limitedBuffer) Write(p []byte) (int, error) {
	n := len(p)
	if lb.truncated {
		return n, nil
	}

	remaining := lb.limit - lb.buf.Len()
	if len(p) > remaining {
		lb.truncated = true
		p = p[:remaining]
	}

	lb.buf.Write(p)
	return n, nil
}

func (lb *limitedBuffer) String() string {
	return lb.buf.String()
}

// Output returns the captured text with a truncation notice when it was cut off.
func (lb *limitedBuffer) Output() string {
	return truncateOutput(lb.buf.String(), lb.truncated)
}

func truncateOutput(s string, wasTruncated bool) string {
	if wasTruncated {
		return s + outputTruncatedMsg
	}
	return s
}
