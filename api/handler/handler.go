// Package handler defines the http-wasm handler ABI: the host module a guest
// imports and the functions a guest exports.
//
// See https://github.com/http-wasm/http-wasm-abi/blob/main/http-handler/http-handler.wit.md
package handler

// CtxNext is the result of FuncHandleRequest. The low 32 bits are 1 when the
// host must call the next handler; the high 32 bits are an opaque request
// context passed back to FuncHandleResponse.
type CtxNext uint64

// Next returns true when the guest asked for the next handler.
func (c CtxNext) Next() bool {
	return uint32(c) == 1
}

// ReqCtx returns the request context for FuncHandleResponse.
func (c CtxNext) ReqCtx() uint32 {
	return uint32(c >> 32)
}

// BufLimit is the maximum number of bytes the host may write to a guest
// buffer. When a value is larger, the host writes nothing and returns the
// length, so the guest can retry with a larger buffer.
type BufLimit = uint32

// CountLen packs the count of NUL-terminated strings in the high 32 bits and
// their total byte length, including terminators, in the low 32 bits.
type CountLen = uint64

// EOFLen packs 1 in the high 32 bits on end of stream and the bytes read in
// the low 32 bits.
type EOFLen = uint64

// HeaderKind selects the fields a header function works on.
type HeaderKind uint32

const (
	HeaderKindRequest HeaderKind = iota
	HeaderKindResponse
	HeaderKindRequestTrailers
	HeaderKindResponseTrailers
)

// BodyKind selects the body a body function works on.
type BodyKind uint32

const (
	BodyKindRequest BodyKind = iota
	BodyKindResponse
)
