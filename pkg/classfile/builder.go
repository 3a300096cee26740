package classfile

import (
	"encoding/binary"

	"github.com/l3aro/go-blockmap/pkg/bytecode"
)

// Builder assembles minimal class files: a constant pool, no fields and
// methods with a Code attribute. It is meant for fixtures and does not
// verify the bytecode it is given.
type Builder struct {
	name, super string
	major       uint16

	pool    []byte
	count   uint16
	utf8s   map[string]uint16
	classes map[string]uint16

	methods [][]byte
	nmethod uint16
}

// NewBuilder returns a builder for class name extending super. An empty
// super produces a class without a superclass, like java/lang/Object.
func NewBuilder(name, super string) *Builder {
	b := &Builder{
		name:    name,
		super:   super,
		major:   52,
		count:   1,
		utf8s:   make(map[string]uint16),
		classes: make(map[string]uint16),
	}
	b.classRef(name)
	if super != "" {
		b.classRef(super)
	}
	return b
}

func (b *Builder) utf8(s string) uint16 {
	if i, ok := b.utf8s[s]; ok {
		return i
	}
	b.pool = append(b.pool, tagUtf8)
	b.pool = binary.BigEndian.AppendUint16(b.pool, uint16(len(s)))
	b.pool = append(b.pool, s...)
	i := b.count
	b.count++
	b.utf8s[s] = i
	return i
}

func (b *Builder) classRef(name string) uint16 {
	if i, ok := b.classes[name]; ok {
		return i
	}
	nameIndex := b.utf8(name)
	b.pool = append(b.pool, tagClass)
	b.pool = binary.BigEndian.AppendUint16(b.pool, nameIndex)
	i := b.count
	b.count++
	b.classes[name] = i
	return i
}

// AddLong adds a long constant, which occupies two pool slots.
func (b *Builder) AddLong(v int64) {
	b.pool = append(b.pool, tagLong)
	b.pool = binary.BigEndian.AppendUint64(b.pool, uint64(v))
	b.count += 2
}

// AddMethod adds a method. A nil code adds a method without a Code
// attribute.
func (b *Builder) AddMethod(flags uint16, name, descriptor string, maxLocals int, code []byte, handlers ...bytecode.ExceptionHandler) {
	var m []byte
	m = binary.BigEndian.AppendUint16(m, flags)
	m = binary.BigEndian.AppendUint16(m, b.utf8(name))
	m = binary.BigEndian.AppendUint16(m, b.utf8(descriptor))
	if code == nil {
		m = binary.BigEndian.AppendUint16(m, 0)
		b.methods = append(b.methods, m)
		b.nmethod++
		return
	}

	var attr []byte
	attr = binary.BigEndian.AppendUint16(attr, 8) // max stack
	attr = binary.BigEndian.AppendUint16(attr, uint16(maxLocals))
	attr = binary.BigEndian.AppendUint32(attr, uint32(len(code)))
	attr = append(attr, code...)
	attr = binary.BigEndian.AppendUint16(attr, uint16(len(handlers)))
	for _, h := range handlers {
		attr = binary.BigEndian.AppendUint16(attr, uint16(h.StartBCI))
		attr = binary.BigEndian.AppendUint16(attr, uint16(h.EndBCI))
		attr = binary.BigEndian.AppendUint16(attr, uint16(h.HandlerBCI))
		var catchType uint16
		if !h.IsCatchAll() {
			catchType = b.classRef(h.CatchType)
		}
		attr = binary.BigEndian.AppendUint16(attr, catchType)
	}
	attr = binary.BigEndian.AppendUint16(attr, 0) // attributes

	m = binary.BigEndian.AppendUint16(m, 1)
	m = binary.BigEndian.AppendUint16(m, b.utf8("Code"))
	m = binary.BigEndian.AppendUint32(m, uint32(len(attr)))
	m = append(m, attr...)
	b.methods = append(b.methods, m)
	b.nmethod++
}

// Bytes returns the encoded class file.
func (b *Builder) Bytes() []byte {
	var out []byte
	out = binary.BigEndian.AppendUint32(out, magic)
	out = binary.BigEndian.AppendUint16(out, 0)
	out = binary.BigEndian.AppendUint16(out, b.major)
	out = binary.BigEndian.AppendUint16(out, b.count)
	out = append(out, b.pool...)
	out = binary.BigEndian.AppendUint16(out, 0x0021) // public super
	out = binary.BigEndian.AppendUint16(out, b.classes[b.name])
	out = binary.BigEndian.AppendUint16(out, b.classes[b.super])
	out = binary.BigEndian.AppendUint16(out, 0) // interfaces
	out = binary.BigEndian.AppendUint16(out, 0) // fields
	out = binary.BigEndian.AppendUint16(out, b.nmethod)
	for _, m := range b.methods {
		out = append(out, m...)
	}
	out = binary.BigEndian.AppendUint16(out, 0) // attributes
	return out
}
