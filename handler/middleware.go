// Package handler runs an http-wasm guest as a fetch.Middleware.
//
// The guest sees and changes the fetch request through the "http_handler"
// host functions. When it asks for the next handler, the request it sees
// afterwards is a fetch.Rewrite of the original carrying its changes. The
// response is either built from what the guest wrote, or the next handler's
// response with the guest's changes applied.
//
// Trailers are not supported: "enable_features" never reports them, reading
// them returns nothing and changing them fails.
package handler

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/tetratelabs/wazero"
	wazeroapi "github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/unihttp/unihttp-go/api"
	"github.com/unihttp/unihttp-go/api/handler"
	"github.com/unihttp/unihttp-go/fetch"
)

// supportedFeatures are the features this host implements.
const supportedFeatures = handler.FeatureBufferRequest | handler.FeatureBufferResponse

// Middleware runs one guest binary. Guest instances are pooled, so requests
// can be handled concurrently.
type Middleware struct {
	runtime         wazero.Runtime
	guestModule     wazero.CompiledModule
	moduleConfig    wazero.ModuleConfig
	guestConfig     []byte
	logger          api.Logger
	pool            sync.Pool
	features        handler.Features
	instanceCounter uint64
}

var _ api.Closer = (*Middleware)(nil)

// Features are the features enabled while initializing the guest. This
// value won't change per-request.
func (m *Middleware) Features() handler.Features {
	return m.features
}

// NewMiddleware compiles guest and instantiates it once to fail fast.
func NewMiddleware(ctx context.Context, guest []byte, opts ...Option) (*Middleware, error) {
	o := defaultOptions()
	for _, opt := range opts {
		opt(o)
	}

	wr, err := o.newRuntime(ctx)
	if err != nil {
		return nil, fmt.Errorf("wasm: error creating middleware: %w", err)
	}

	m := &Middleware{
		runtime:      wr,
		moduleConfig: o.moduleConfig,
		guestConfig:  o.guestConfig,
		logger:       o.logger,
	}

	if m.guestModule, err = m.compileGuest(ctx, guest); err != nil {
		_ = wr.Close(ctx)
		return nil, err
	}

	// Detect and handle any host imports or lack thereof.
	imports := detectImports(m.guestModule.ImportedFunctions())
	switch {
	case imports&importWasiP1 != 0:
		if _, err = wasi_snapshot_preview1.Instantiate(ctx, m.runtime); err != nil {
			_ = wr.Close(ctx)
			return nil, fmt.Errorf("wasm: error instantiating wasi: %w", err)
		}
		fallthrough // proceed to configure any http_handler imports
	case imports&importHttpHandler != 0:
		if _, err = m.instantiateHost(ctx); err != nil {
			_ = wr.Close(ctx)
			return nil, fmt.Errorf("wasm: error instantiating host: %w", err)
		}
	}

	// Eagerly add one instance to the pool. Doing so helps to fail fast.
	g, err := m.newGuest(ctx)
	if err != nil {
		_ = wr.Close(ctx)
		return nil, err
	}
	m.pool.Put(g)

	return m, nil
}

func (m *Middleware) compileGuest(ctx context.Context, wasm []byte) (wazero.CompiledModule, error) {
	if guest, err := m.runtime.CompileModule(ctx, wasm); err != nil {
		return nil, fmt.Errorf("wasm: error compiling guest: %w", err)
	} else if handleRequest, ok := guest.ExportedFunctions()[handler.FuncHandleRequest]; !ok {
		return nil, fmt.Errorf("wasm: guest doesn't export func[%s]", handler.FuncHandleRequest)
	} else if len(handleRequest.ParamTypes()) != 0 || !bytes.Equal(handleRequest.ResultTypes(), []wazeroapi.ValueType{i64}) {
		return nil, fmt.Errorf("wasm: guest exports the wrong signature for func[%s]. should be () -> (i64)", handler.FuncHandleRequest)
	} else if handleResponse, ok := guest.ExportedFunctions()[handler.FuncHandleResponse]; !ok {
		return nil, fmt.Errorf("wasm: guest doesn't export func[%s]", handler.FuncHandleResponse)
	} else if !bytes.Equal(handleResponse.ParamTypes(), []wazeroapi.ValueType{i32, i32}) || len(handleResponse.ResultTypes()) != 0 {
		return nil, fmt.Errorf("wasm: guest exports the wrong signature for func[%s]. should be (i32, i32) -> ()", handler.FuncHandleResponse)
	} else if _, ok = guest.ExportedMemories()[api.Memory]; !ok {
		return nil, fmt.Errorf("wasm: guest doesn't export memory[%s]", api.Memory)
	} else {
		return guest, nil
	}
}

// Handle is a fetch.Middleware. It calls handle_request on a pooled guest
// and, when the guest asks for it, the next handler followed by
// handle_response on the same guest.
func (m *Middleware) Handle(req fetch.Request, next fetch.Next) (*fetch.Response, error) {
	ctx := req.Context()
	g, err := m.getOrCreateGuest(ctx)
	if err != nil {
		return nil, err
	}
	defer m.pool.Put(g)

	s := newRequestState(req, m.features)
	defer s.Close()
	ctx = context.WithValue(ctx, requestStateKey{}, s)

	ctxNext, err := g.handleRequest(ctx)
	if err != nil {
		return nil, err
	}
	if !ctxNext.Next() {
		return s.guestResponse(), nil
	}

	resp, nextErr := next(s.nextRequest())
	s.afterNext, s.resp = true, resp
	if err = g.handleResponse(ctx, ctxNext.ReqCtx(), nextErr); err != nil {
		return nil, err
	}
	if nextErr != nil {
		return nil, nextErr
	}
	return s.finalResponse()
}

// Close implements api.Closer
func (m *Middleware) Close(ctx context.Context) error {
	// We don't have to close any guests as the runtime will close them.
	return m.runtime.Close(ctx)
}

func requestStateFromContext(ctx context.Context) *requestState {
	if s, ok := ctx.Value(requestStateKey{}).(*requestState); ok {
		return s
	}
	panic("no request in progress")
}

type imports uint

const (
	importWasiP1 imports = 1 << iota
	importHttpHandler
)

func detectImports(importedFns []wazeroapi.FunctionDefinition) (imports imports) {
	for _, f := range importedFns {
		moduleName, _, _ := f.Import()
		switch moduleName {
		case handler.HostModule:
			imports |= importHttpHandler
		case wasi_snapshot_preview1.ModuleName:
			imports |= importWasiP1
		}
	}
	return
}

func (m *Middleware) moduleName() string {
	return fmt.Sprintf("%d", atomic.AddUint64(&m.instanceCounter, 1))
}
