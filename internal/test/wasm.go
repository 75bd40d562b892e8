// Package test encodes small http-wasm guests for tests, so no compiled
// binaries need to be checked in.
package test

import (
	"bytes"
)

// ValueType is a WebAssembly value type.
type ValueType = byte

const (
	I32 ValueType = 0x7f
	I64 ValueType = 0x7e
)

// Export kinds.
const (
	ExportFunc   byte = 0x00
	ExportMemory byte = 0x02
)

// Instructions without immediates.
const (
	Unreachable byte = 0x00
	Drop        byte = 0x1a
	End         byte = 0x0b
	I32WrapI64  byte = 0xa7
)

type FuncType struct {
	Params, Results []ValueType
}

type Import struct {
	Module, Name string
	Type         uint32
}

// Func is a function defined by the module. Body must end with End.
type Func struct {
	Type uint32
	Body []byte
}

type Export struct {
	Name  string
	Kind  byte
	Index uint32
}

// Data is copied into memory at Offset on instantiation.
type Data struct {
	Offset int32
	Bytes  []byte
}

// Module is the subset of the WebAssembly binary format the guests need.
// Imported functions are indexed before defined ones.
type Module struct {
	Types   []FuncType
	Imports []Import
	Funcs   []Func
	Memory  bool // one page
	Exports []Export
	Data    []Data
}

// Encode returns the binary format of m.
func (m *Module) Encode() []byte {
	var out bytes.Buffer
	out.Write([]byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00})

	if len(m.Types) > 0 {
		var s bytes.Buffer
		s.Write(u32(uint32(len(m.Types))))
		for _, t := range m.Types {
			s.WriteByte(0x60)
			s.Write(u32(uint32(len(t.Params))))
			s.Write(t.Params)
			s.Write(u32(uint32(len(t.Results))))
			s.Write(t.Results)
		}
		section(&out, 1, s.Bytes())
	}

	if len(m.Imports) > 0 {
		var s bytes.Buffer
		s.Write(u32(uint32(len(m.Imports))))
		for _, i := range m.Imports {
			s.Write(name(i.Module))
			s.Write(name(i.Name))
			s.WriteByte(0x00)
			s.Write(u32(i.Type))
		}
		section(&out, 2, s.Bytes())
	}

	if len(m.Funcs) > 0 {
		var s bytes.Buffer
		s.Write(u32(uint32(len(m.Funcs))))
		for _, f := range m.Funcs {
			s.Write(u32(f.Type))
		}
		section(&out, 3, s.Bytes())
	}

	if m.Memory {
		section(&out, 5, []byte{0x01, 0x00, 0x01})
	}

	if len(m.Exports) > 0 {
		var s bytes.Buffer
		s.Write(u32(uint32(len(m.Exports))))
		for _, e := range m.Exports {
			s.Write(name(e.Name))
			s.WriteByte(e.Kind)
			s.Write(u32(e.Index))
		}
		section(&out, 7, s.Bytes())
	}

	if len(m.Funcs) > 0 {
		var s bytes.Buffer
		s.Write(u32(uint32(len(m.Funcs))))
		for _, f := range m.Funcs {
			code := append([]byte{0x00}, f.Body...) // no locals
			s.Write(u32(uint32(len(code))))
			s.Write(code)
		}
		section(&out, 10, s.Bytes())
	}

	if len(m.Data) > 0 {
		var s bytes.Buffer
		s.Write(u32(uint32(len(m.Data))))
		for _, d := range m.Data {
			s.WriteByte(0x00)
			s.Write(I32Const(d.Offset))
			s.WriteByte(End)
			s.Write(u32(uint32(len(d.Bytes))))
			s.Write(d.Bytes)
		}
		section(&out, 11, s.Bytes())
	}
	return out.Bytes()
}

func section(out *bytes.Buffer, id byte, content []byte) {
	out.WriteByte(id)
	out.Write(u32(uint32(len(content))))
	out.Write(content)
}

func name(s string) []byte {
	return append(u32(uint32(len(s))), s...)
}

// u32 is unsigned LEB128.
func u32(v uint32) (b []byte) {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		b = append(b, c)
		if v == 0 {
			return
		}
	}
}

// s64 is signed LEB128.
func s64(v int64) (b []byte) {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			return append(b, c)
		}
		b = append(b, c|0x80)
	}
}

// I32Const pushes v.
func I32Const(v int32) []byte {
	return append([]byte{0x41}, s64(int64(v))...)
}

// I64Const pushes v.
func I64Const(v int64) []byte {
	return append([]byte{0x42}, s64(v)...)
}

// Call calls the function at index fn.
func Call(fn uint32) []byte {
	return append([]byte{0x10}, u32(fn)...)
}

// Code concatenates instructions.
func Code(instrs ...[]byte) []byte {
	var b []byte
	for _, i := range instrs {
		b = append(b, i...)
	}
	return b
}
