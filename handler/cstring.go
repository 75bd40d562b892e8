package handler

import (
	wazeroapi "github.com/tetratelabs/wazero/api"

	"github.com/unihttp/unihttp-go/api/handler"
)

// writeNULTerminated writes input as NUL-terminated strings when they fit in
// bufLimit. The result is the same either way, so the guest can retry with a
// larger buffer.
func writeNULTerminated(mem wazeroapi.Memory, buf uint32, bufLimit handler.BufLimit, input []string) (countLen handler.CountLen) {
	count := uint32(len(input))
	if count == 0 {
		return
	}

	byteCount := count // NUL terminator count
	for _, s := range input {
		byteCount += uint32(len(s))
	}

	countLen = handler.CountLen(count)<<32 | handler.CountLen(byteCount)

	if byteCount > bufLimit {
		return
	}

	b, ok := mem.Read(buf, byteCount)
	if !ok {
		panic("out of memory") // the guest passed a region outside memory.
	}

	i := 0
	for _, s := range input {
		i += copy(b[i:], s)
		b[i] = 0
		i++
	}
	return
}
