package handler

import (
	"context"
	"fmt"

	wazeroapi "github.com/tetratelabs/wazero/api"

	"github.com/unihttp/unihttp-go/api/handler"
)

type guest struct {
	guest            wazeroapi.Module
	handleRequestFn  wazeroapi.Function
	handleResponseFn wazeroapi.Function
}

func (m *Middleware) getOrCreateGuest(ctx context.Context) (*guest, error) {
	if g, ok := m.pool.Get().(*guest); ok {
		return g, nil
	}
	return m.newGuest(ctx)
}

func (m *Middleware) newGuest(ctx context.Context) (*guest, error) {
	g, err := m.runtime.InstantiateModule(ctx, m.guestModule, m.moduleConfig.WithName(m.moduleName()))
	if err != nil {
		return nil, fmt.Errorf("wasm: error instantiating guest: %w", err)
	}

	return &guest{
		guest:            g,
		handleRequestFn:  g.ExportedFunction(handler.FuncHandleRequest),
		handleResponseFn: g.ExportedFunction(handler.FuncHandleResponse),
	}, nil
}

// handleRequest calls the WebAssembly guest function handler.FuncHandleRequest.
func (g *guest) handleRequest(ctx context.Context) (ctxNext handler.CtxNext, err error) {
	if results, guestErr := g.handleRequestFn.Call(ctx); guestErr != nil {
		err = guestErr
	} else {
		ctxNext = handler.CtxNext(results[0])
	}
	return
}

// handleResponse calls the WebAssembly guest function handler.FuncHandleResponse.
func (g *guest) handleResponse(ctx context.Context, reqCtx uint32, err error) error {
	wasError := uint64(0)
	if err != nil {
		wasError = 1
	}
	_, err = g.handleResponseFn.Call(ctx, uint64(reqCtx), wasError)
	return err
}
