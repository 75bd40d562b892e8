package test

import (
	"github.com/unihttp/unihttp-go/api/handler"
)

// Function types shared by the guests.
var (
	typeHandleRequest  = FuncType{Results: []ValueType{I64}}
	typeHandleResponse = FuncType{Params: []ValueType{I32, I32}}
	typeI32            = FuncType{Params: []ValueType{I32}}
	typeI32I32         = FuncType{Params: []ValueType{I32, I32}}
	typeI32x3          = FuncType{Params: []ValueType{I32, I32, I32}}
	typeI32x5          = FuncType{Params: []ValueType{I32, I32, I32, I32, I32}}
	typeI32ToI32       = FuncType{Params: []ValueType{I32}, Results: []ValueType{I32}}
	typeI32x3ToI64     = FuncType{Params: []ValueType{I32, I32, I32}, Results: []ValueType{I64}}
)

// guest builds a module with the given imports whose handle_request and
// handle_response have the given bodies. Types are indexed in order of
// types.
func guest(types []FuncType, imports []Import, handleRequest, handleResponse []byte, data ...Data) []byte {
	types = append([]FuncType{typeHandleRequest, typeHandleResponse}, types...)
	for i := range imports {
		imports[i].Module = handler.HostModule
		imports[i].Type += 2
	}
	n := uint32(len(imports))
	m := &Module{
		Types:   types,
		Imports: imports,
		Funcs: []Func{
			{Type: 0, Body: handleRequest},
			{Type: 1, Body: handleResponse},
		},
		Memory: true,
		Exports: []Export{
			{Name: handler.FuncHandleRequest, Kind: ExportFunc, Index: n},
			{Name: handler.FuncHandleResponse, Kind: ExportFunc, Index: n + 1},
			{Name: "memory", Kind: ExportMemory},
		},
		Data: data,
	}
	return m.Encode()
}

// BinNext calls the next handler and does nothing else.
var BinNext = guest(nil, nil,
	Code(I64Const(1), []byte{End}),
	[]byte{End})

// BinDeny responds 403 without calling the next handler.
var BinDeny = guest(
	[]FuncType{typeI32},
	[]Import{{Name: handler.FuncSetStatusCode, Type: 0}},
	Code(I32Const(403), Call(0), I64Const(0), []byte{End}),
	[]byte{End})

// BinPanic traps in handle_request.
var BinPanic = guest(nil, nil,
	[]byte{Unreachable, End},
	[]byte{End})

// BinRewrite sets the request header "x-wasm: 1" and the URI
// "/rewritten?via=wasm", enables buffer-response and calls the next handler
// with request context 7. In handle_response it sets the response header
// "x-guest: resp" and the status 202.
var BinRewrite = guest(
	[]FuncType{typeI32x5, typeI32I32, typeI32ToI32, typeI32},
	[]Import{
		{Name: handler.FuncSetHeaderValue, Type: 0},
		{Name: handler.FuncSetURI, Type: 1},
		{Name: handler.FuncEnableFeatures, Type: 2},
		{Name: handler.FuncSetStatusCode, Type: 3},
	},
	Code(
		I32Const(int32(handler.HeaderKindRequest)), I32Const(0), I32Const(6), I32Const(8), I32Const(1), Call(0),
		I32Const(16), I32Const(19), Call(1),
		I32Const(int32(handler.FeatureBufferResponse)), Call(2), []byte{Drop},
		I64Const(7<<32|1), []byte{End}),
	Code(
		I32Const(int32(handler.HeaderKindResponse)), I32Const(48), I32Const(7), I32Const(64), I32Const(4), Call(0),
		I32Const(202), Call(3),
		[]byte{End}),
	Data{Offset: 0, Bytes: []byte("x-wasm")},
	Data{Offset: 8, Bytes: []byte("1")},
	Data{Offset: 16, Bytes: []byte("/rewritten?via=wasm")},
	Data{Offset: 48, Bytes: []byte("x-guest")},
	Data{Offset: 64, Bytes: []byte("resp")},
)

// BinEcho responds with the request body and content-type text/plain,
// without calling the next handler.
var BinEcho = guest(
	[]FuncType{typeI32x3ToI64, typeI32x3, typeI32x5},
	[]Import{
		{Name: handler.FuncReadBody, Type: 0},
		{Name: handler.FuncWriteBody, Type: 1},
		{Name: handler.FuncSetHeaderValue, Type: 2},
	},
	Code(
		I32Const(int32(handler.HeaderKindResponse)), I32Const(0), I32Const(12), I32Const(16), I32Const(10), Call(2),
		I32Const(int32(handler.BodyKindResponse)), I32Const(256),
		I32Const(int32(handler.BodyKindRequest)), I32Const(256), I32Const(1024), Call(0),
		[]byte{I32WrapI64},
		Call(1),
		I64Const(0), []byte{End}),
	[]byte{End},
	Data{Offset: 0, Bytes: []byte("content-type")},
	Data{Offset: 16, Bytes: []byte("text/plain")},
)

// BinInspectBody enables buffer-request, reads the request body and calls
// the next handler.
var BinInspectBody = guest(
	[]FuncType{typeI32ToI32, typeI32x3ToI64},
	[]Import{
		{Name: handler.FuncEnableFeatures, Type: 0},
		{Name: handler.FuncReadBody, Type: 1},
	},
	Code(
		I32Const(int32(handler.FeatureBufferRequest)), Call(0), []byte{Drop},
		I32Const(int32(handler.BodyKindRequest)), I32Const(256), I32Const(1024), Call(1), []byte{Drop},
		I64Const(1), []byte{End}),
	[]byte{End})

// BinLog logs "hello" at info level and calls the next handler.
var BinLog = guest(
	[]FuncType{typeI32x3},
	[]Import{{Name: handler.FuncLog, Type: 0}},
	Code(I32Const(0), I32Const(0), I32Const(5), Call(0), I64Const(1), []byte{End}),
	[]byte{End},
	Data{Offset: 0, Bytes: []byte("hello")},
)

// BinBadExports lacks handle_response.
var BinBadExports = (&Module{
	Types:   []FuncType{typeHandleRequest},
	Funcs:   []Func{{Type: 0, Body: Code(I64Const(1), []byte{End})}},
	Memory:  true,
	Exports: []Export{{Name: handler.FuncHandleRequest, Kind: ExportFunc}, {Name: "memory", Kind: ExportMemory}},
}).Encode()
