package handler

import (
	"context"
	"fmt"
	"io"
	"strings"

	wazeroapi "github.com/tetratelabs/wazero/api"

	"github.com/unihttp/unihttp-go/api"
	"github.com/unihttp/unihttp-go/api/handler"
	"github.com/unihttp/unihttp-go/headers"
)

// enableFeatures implements the WebAssembly host function handler.FuncEnableFeatures.
func (m *Middleware) enableFeatures(ctx context.Context, stack []uint64) {
	features := handler.Features(stack[0])

	var enabled handler.Features
	if s, ok := ctx.Value(requestStateKey{}).(*requestState); ok {
		s.features = s.features.WithEnabled(features) & supportedFeatures
		enabled = s.features
	} else {
		m.features = m.features.WithEnabled(features) & supportedFeatures
		enabled = m.features
	}

	stack[0] = uint64(enabled)
}

// getConfig implements the WebAssembly host function handler.FuncGetConfig.
func (m *Middleware) getConfig(_ context.Context, mod wazeroapi.Module, stack []uint64) {
	buf := uint32(stack[0])
	bufLimit := handler.BufLimit(stack[1])

	stack[0] = uint64(writeIfUnderLimit(mod.Memory(), buf, bufLimit, m.guestConfig))
}

// logEnabled implements the WebAssembly host function handler.FuncLogEnabled.
func (m *Middleware) logEnabled(_ context.Context, stack []uint64) {
	if m.logger.IsEnabled(api.LogLevel(stack[0])) {
		stack[0] = 1
	} else {
		stack[0] = 0
	}
}

// log implements the WebAssembly host function handler.FuncLog.
func (m *Middleware) log(ctx context.Context, mod wazeroapi.Module, params []uint64) {
	level := api.LogLevel(params[0])
	message := uint32(params[1])
	messageLen := uint32(params[2])

	if !m.logger.IsEnabled(level) {
		return
	}
	m.logger.Log(ctx, level, mustReadString(mod.Memory(), "message", message, messageLen))
}

// getMethod implements the WebAssembly host function handler.FuncGetMethod.
func (m *Middleware) getMethod(ctx context.Context, mod wazeroapi.Module, stack []uint64) {
	buf := uint32(stack[0])
	bufLimit := handler.BufLimit(stack[1])

	method := requestStateFromContext(ctx).getMethod()
	stack[0] = uint64(writeStringIfUnderLimit(mod.Memory(), buf, bufLimit, method))
}

// setMethod implements the WebAssembly host function handler.FuncSetMethod.
func (m *Middleware) setMethod(ctx context.Context, mod wazeroapi.Module, params []uint64) {
	method := uint32(params[0])
	methodLen := uint32(params[1])

	s := requestStateFromContext(ctx)
	s.mustBeforeNext("set", "method")
	if methodLen == 0 {
		panic("HTTP method cannot be empty")
	}
	s.method = mustReadString(mod.Memory(), "method", method, methodLen)
}

// getURI implements the WebAssembly host function handler.FuncGetURI.
func (m *Middleware) getURI(ctx context.Context, mod wazeroapi.Module, stack []uint64) {
	buf := uint32(stack[0])
	bufLimit := handler.BufLimit(stack[1])

	uri := requestStateFromContext(ctx).getURI()
	stack[0] = uint64(writeStringIfUnderLimit(mod.Memory(), buf, bufLimit, uri))
}

// setURI implements the WebAssembly host function handler.FuncSetURI.
func (m *Middleware) setURI(ctx context.Context, mod wazeroapi.Module, params []uint64) {
	uri := uint32(params[0])
	uriLen := uint32(params[1])

	s := requestStateFromContext(ctx)
	s.mustBeforeNext("set", "uri")
	s.setURI(mustReadString(mod.Memory(), "uri", uri, uriLen))
}

// getProtocolVersion implements the WebAssembly host function
// handler.FuncGetProtocolVersion.
func (m *Middleware) getProtocolVersion(ctx context.Context, mod wazeroapi.Module, stack []uint64) {
	buf := uint32(stack[0])
	bufLimit := handler.BufLimit(stack[1])

	protocolVersion := requestStateFromContext(ctx).getProtocolVersion()
	stack[0] = uint64(writeStringIfUnderLimit(mod.Memory(), buf, bufLimit, protocolVersion))
}

// getHeaderNames implements the WebAssembly host function
// handler.FuncGetHeaderNames.
func (m *Middleware) getHeaderNames(ctx context.Context, mod wazeroapi.Module, stack []uint64) {
	kind := handler.HeaderKind(stack[0])
	buf := uint32(stack[1])
	bufLimit := handler.BufLimit(stack[2])

	names := headerNames(requestStateFromContext(ctx).headers(kind))
	stack[0] = writeNULTerminated(mod.Memory(), buf, bufLimit, names)
}

// headerNames returns each name once. Keys are already lower-cased and
// sorted.
func headerNames(h headers.Headers) []string {
	keys := h.Keys()
	names := keys[:0]
	for i, k := range keys {
		if i == 0 || k != keys[i-1] {
			names = append(names, k)
		}
	}
	return names
}

// getHeaderValues implements the WebAssembly host function
// handler.FuncGetHeaderValues.
func (m *Middleware) getHeaderValues(ctx context.Context, mod wazeroapi.Module, stack []uint64) {
	kind := handler.HeaderKind(stack[0])
	name := uint32(stack[1])
	nameLen := uint32(stack[2])
	buf := uint32(stack[3])
	bufLimit := handler.BufLimit(stack[4])

	if nameLen == 0 {
		panic("HTTP header name cannot be empty")
	}
	n := mustReadString(mod.Memory(), "name", name, nameLen)

	values := headerValues(requestStateFromContext(ctx).headers(kind), n)
	stack[0] = writeNULTerminated(mod.Memory(), buf, bufLimit, values)
}

// headerValues returns the values of name. Only "set-cookie" has more than
// one.
func headerValues(h headers.Headers, name string) []string {
	if strings.EqualFold(name, headers.SetCookie) {
		return h.GetSetCookie()
	}
	if !h.Has(name) {
		return nil
	}
	return []string{h.Get(name)}
}

// setHeaderValue implements the WebAssembly host function
// handler.FuncSetHeaderValue.
func (m *Middleware) setHeaderValue(ctx context.Context, mod wazeroapi.Module, params []uint64) {
	kind := handler.HeaderKind(params[0])
	n, v := mustReadHeader(mod, params)

	h := requestStateFromContext(ctx).mutableHeaders("set", kind)
	if err := h.Set(n, v); err != nil {
		panic(err)
	}
}

// addHeaderValue implements the WebAssembly host function
// handler.FuncAddHeaderValue.
func (m *Middleware) addHeaderValue(ctx context.Context, mod wazeroapi.Module, params []uint64) {
	kind := handler.HeaderKind(params[0])
	n, v := mustReadHeader(mod, params)

	h := requestStateFromContext(ctx).mutableHeaders("add", kind)
	if err := h.Append(n, v); err != nil {
		panic(err)
	}
}

func mustReadHeader(mod wazeroapi.Module, params []uint64) (name, value string) {
	nameLen := uint32(params[2])
	if nameLen == 0 {
		panic("HTTP header name cannot be empty")
	}
	name = mustReadString(mod.Memory(), "name", uint32(params[1]), nameLen)
	value = mustReadString(mod.Memory(), "value", uint32(params[3]), uint32(params[4]))
	return
}

// removeHeader implements the WebAssembly host function
// handler.FuncRemoveHeader.
func (m *Middleware) removeHeader(ctx context.Context, mod wazeroapi.Module, params []uint64) {
	kind := handler.HeaderKind(params[0])
	name := uint32(params[1])
	nameLen := uint32(params[2])

	if nameLen == 0 {
		panic("HTTP header name cannot be empty")
	}
	n := mustReadString(mod.Memory(), "name", name, nameLen)

	h := requestStateFromContext(ctx).mutableHeaders("remove", kind)
	if err := h.Delete(n); err != nil {
		panic(err)
	}
}

// readBody implements the WebAssembly host function handler.FuncReadBody.
func (m *Middleware) readBody(ctx context.Context, mod wazeroapi.Module, stack []uint64) {
	kind := handler.BodyKind(stack[0])
	buf := uint32(stack[1])
	bufLimit := handler.BufLimit(stack[2])

	r := requestStateFromContext(ctx).bodyReader(kind)
	stack[0] = readBody(mod, buf, bufLimit, r)
}

// writeBody implements the WebAssembly host function handler.FuncWriteBody.
func (m *Middleware) writeBody(ctx context.Context, mod wazeroapi.Module, params []uint64) {
	kind := handler.BodyKind(params[0])
	buf := uint32(params[1])
	bufLen := uint32(params[2])

	w := requestStateFromContext(ctx).bodyWriter(kind)

	// buf_len 0 means to overwrite with nothing
	if _, err := w.Write(mustRead(mod.Memory(), "body", buf, bufLen)); err != nil {
		panic(fmt.Errorf("error writing body: %w", err))
	}
}

// getRemoteAddr implements the WebAssembly host function handler.FuncGetRemoteAddr.
func (m *Middleware) getRemoteAddr(ctx context.Context, mod wazeroapi.Module, stack []uint64) {
	buf := uint32(stack[0])
	bufLimit := handler.BufLimit(stack[1])

	addr := requestStateFromContext(ctx).req.IP()
	stack[0] = uint64(writeStringIfUnderLimit(mod.Memory(), buf, bufLimit, addr))
}

// getStatusCode implements the WebAssembly host function
// handler.FuncGetStatusCode.
func (m *Middleware) getStatusCode(ctx context.Context, results []uint64) {
	results[0] = uint64(requestStateFromContext(ctx).getStatusCode())
}

// setStatusCode implements the WebAssembly host function
// handler.FuncSetStatusCode.
func (m *Middleware) setStatusCode(ctx context.Context, params []uint64) {
	requestStateFromContext(ctx).setStatusCode(int(uint32(params[0])))
}

func readBody(mod wazeroapi.Module, buf uint32, bufLimit handler.BufLimit, r io.Reader) (eofLen handler.EOFLen) {
	// buf_limit 0 serves no purpose as implementations won't return EOF on it.
	if bufLimit == 0 {
		panic(fmt.Errorf("buf_limit==0 reading body"))
	}

	b := mustRead(mod.Memory(), "body", buf, bufLimit)

	// Fill the buffer until an error, as a full read may not return EOF.
	var err error
	n := uint32(0)
	for n < bufLimit && err == nil {
		var nn int
		nn, err = r.Read(b[n:])
		n += uint32(nn)
	}

	if err == nil {
		return uint64(n) // Not EOF
	} else if err == io.EOF { // EOF is by contract, so can't be wrapped
		return uint64(1<<32) | uint64(n)
	}
	panic(fmt.Errorf("error reading body: %w", err))
}

const i32, i64 = wazeroapi.ValueTypeI32, wazeroapi.ValueTypeI64

func (m *Middleware) instantiateHost(ctx context.Context) (wazeroapi.Module, error) {
	return m.runtime.NewHostModuleBuilder(handler.HostModule).
		NewFunctionBuilder().
		WithGoFunction(wazeroapi.GoFunc(m.enableFeatures), []wazeroapi.ValueType{i32}, []wazeroapi.ValueType{i32}).
		WithParameterNames("features").Export(handler.FuncEnableFeatures).
		NewFunctionBuilder().
		WithGoModuleFunction(wazeroapi.GoModuleFunc(m.getConfig), []wazeroapi.ValueType{i32, i32}, []wazeroapi.ValueType{i32}).
		WithParameterNames("buf", "buf_limit").Export(handler.FuncGetConfig).
		NewFunctionBuilder().
		WithGoFunction(wazeroapi.GoFunc(m.logEnabled), []wazeroapi.ValueType{i32}, []wazeroapi.ValueType{i32}).
		WithParameterNames("level").Export(handler.FuncLogEnabled).
		NewFunctionBuilder().
		WithGoModuleFunction(wazeroapi.GoModuleFunc(m.log), []wazeroapi.ValueType{i32, i32, i32}, []wazeroapi.ValueType{}).
		WithParameterNames("level", "message", "message_len").Export(handler.FuncLog).
		NewFunctionBuilder().
		WithGoModuleFunction(wazeroapi.GoModuleFunc(m.getMethod), []wazeroapi.ValueType{i32, i32}, []wazeroapi.ValueType{i32}).
		WithParameterNames("buf", "buf_limit").Export(handler.FuncGetMethod).
		NewFunctionBuilder().
		WithGoModuleFunction(wazeroapi.GoModuleFunc(m.setMethod), []wazeroapi.ValueType{i32, i32}, []wazeroapi.ValueType{}).
		WithParameterNames("method", "method_len").Export(handler.FuncSetMethod).
		NewFunctionBuilder().
		WithGoModuleFunction(wazeroapi.GoModuleFunc(m.getURI), []wazeroapi.ValueType{i32, i32}, []wazeroapi.ValueType{i32}).
		WithParameterNames("buf", "buf_limit").Export(handler.FuncGetURI).
		NewFunctionBuilder().
		WithGoModuleFunction(wazeroapi.GoModuleFunc(m.setURI), []wazeroapi.ValueType{i32, i32}, []wazeroapi.ValueType{}).
		WithParameterNames("uri", "uri_len").Export(handler.FuncSetURI).
		NewFunctionBuilder().
		WithGoModuleFunction(wazeroapi.GoModuleFunc(m.getProtocolVersion), []wazeroapi.ValueType{i32, i32}, []wazeroapi.ValueType{i32}).
		WithParameterNames("buf", "buf_limit").Export(handler.FuncGetProtocolVersion).
		NewFunctionBuilder().
		WithGoModuleFunction(wazeroapi.GoModuleFunc(m.getHeaderNames), []wazeroapi.ValueType{i32, i32, i32}, []wazeroapi.ValueType{i64}).
		WithParameterNames("kind", "buf", "buf_limit").Export(handler.FuncGetHeaderNames).
		NewFunctionBuilder().
		WithGoModuleFunction(wazeroapi.GoModuleFunc(m.getHeaderValues), []wazeroapi.ValueType{i32, i32, i32, i32, i32}, []wazeroapi.ValueType{i64}).
		WithParameterNames("kind", "name", "name_len", "buf", "buf_limit").Export(handler.FuncGetHeaderValues).
		NewFunctionBuilder().
		WithGoModuleFunction(wazeroapi.GoModuleFunc(m.setHeaderValue), []wazeroapi.ValueType{i32, i32, i32, i32, i32}, []wazeroapi.ValueType{}).
		WithParameterNames("kind", "name", "name_len", "value", "value_len").Export(handler.FuncSetHeaderValue).
		NewFunctionBuilder().
		WithGoModuleFunction(wazeroapi.GoModuleFunc(m.addHeaderValue), []wazeroapi.ValueType{i32, i32, i32, i32, i32}, []wazeroapi.ValueType{}).
		WithParameterNames("kind", "name", "name_len", "value", "value_len").Export(handler.FuncAddHeaderValue).
		NewFunctionBuilder().
		WithGoModuleFunction(wazeroapi.GoModuleFunc(m.removeHeader), []wazeroapi.ValueType{i32, i32, i32}, []wazeroapi.ValueType{}).
		WithParameterNames("kind", "name", "name_len").Export(handler.FuncRemoveHeader).
		NewFunctionBuilder().
		WithGoModuleFunction(wazeroapi.GoModuleFunc(m.readBody), []wazeroapi.ValueType{i32, i32, i32}, []wazeroapi.ValueType{i64}).
		WithParameterNames("kind", "buf", "buf_limit").Export(handler.FuncReadBody).
		NewFunctionBuilder().
		WithGoModuleFunction(wazeroapi.GoModuleFunc(m.writeBody), []wazeroapi.ValueType{i32, i32, i32}, []wazeroapi.ValueType{}).
		WithParameterNames("kind", "body", "body_len").Export(handler.FuncWriteBody).
		NewFunctionBuilder().
		WithGoModuleFunction(wazeroapi.GoModuleFunc(m.getRemoteAddr), []wazeroapi.ValueType{i32, i32}, []wazeroapi.ValueType{i32}).
		WithParameterNames("buf", "buf_limit").Export(handler.FuncGetRemoteAddr).
		NewFunctionBuilder().
		WithGoFunction(wazeroapi.GoFunc(m.getStatusCode), []wazeroapi.ValueType{}, []wazeroapi.ValueType{i32}).
		WithParameterNames().Export(handler.FuncGetStatusCode).
		NewFunctionBuilder().
		WithGoFunction(wazeroapi.GoFunc(m.setStatusCode), []wazeroapi.ValueType{i32}, []wazeroapi.ValueType{}).
		WithParameterNames("status_code").Export(handler.FuncSetStatusCode).
		Instantiate(ctx)
}

// mustReadString is a convenience function that casts mustRead
func mustReadString(mem wazeroapi.Memory, fieldName string, offset, byteCount uint32) string {
	if byteCount == 0 {
		return ""
	}
	return string(mustRead(mem, fieldName, offset, byteCount))
}

var emptyBody = make([]byte, 0)

// mustRead is like api.Memory except that it panics if the offset and byteCount are out of range.
func mustRead(mem wazeroapi.Memory, fieldName string, offset, byteCount uint32) []byte {
	if byteCount == 0 {
		return emptyBody
	}
	buf, ok := mem.Read(offset, byteCount)
	if !ok {
		panic(fmt.Errorf("out of memory reading %s", fieldName))
	}
	return buf
}

func writeIfUnderLimit(mem wazeroapi.Memory, offset, limit handler.BufLimit, v []byte) (vLen uint32) {
	vLen = uint32(len(v))
	if vLen > limit || vLen == 0 {
		return // caller can retry with a larger limit
	}
	mem.Write(offset, v)
	return
}

func writeStringIfUnderLimit(mem wazeroapi.Memory, offset, limit handler.BufLimit, v string) (vLen uint32) {
	vLen = uint32(len(v))
	if vLen > limit || vLen == 0 {
		return // caller can retry with a larger limit
	}
	mem.WriteString(offset, v)
	return
}
