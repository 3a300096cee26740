// Package classfile reads the parts of a JVM class file needed to build
// control flow graphs: the constant pool entries that name classes and
// members, and for each method its Code attribute with the exception table.
package classfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"

	"github.com/l3aro/go-blockmap/pkg/bytecode"
)

// ErrInvalidClass is returned for data that is not a well-formed class file.
var ErrInvalidClass = errors.New("invalid class file")

const magic = 0xCAFEBABE

// Constant pool tags.
const (
	tagUtf8               = 1
	tagInteger            = 3
	tagFloat              = 4
	tagLong               = 5
	tagDouble             = 6
	tagClass              = 7
	tagString             = 8
	tagFieldref           = 9
	tagMethodref          = 10
	tagInterfaceMethodref = 11
	tagNameAndType        = 12
	tagMethodHandle       = 15
	tagMethodType         = 16
	tagDynamic            = 17
	tagInvokeDynamic      = 18
	tagModule             = 19
	tagPackage            = 20
)

// Method access flags.
const (
	AccStatic   = 0x0008
	AccNative   = 0x0100
	AccAbstract = 0x0400
)

// Class is a parsed class file.
type Class struct {
	Name         string
	SuperName    string
	MajorVersion uint16
	MinorVersion uint16
	Methods      []*Method
}

// Method is a method declared by a class. Methods without a Code attribute
// (abstract and native ones) have no code.
type Method struct {
	ClassName   string
	Name        string
	Descriptor  string
	AccessFlags uint16
	MaxStack    int

	maxLocals int
	code      []byte
	handlers  []bytecode.ExceptionHandler
}

func (m *Method) Code() []byte { return m.code }

func (m *Method) MaxLocals() int { return m.maxLocals }

// ExceptionHandlers returns the exception table in declaration order.
// CatchType is empty for catch-all entries.
func (m *Method) ExceptionHandlers() []bytecode.ExceptionHandler { return m.handlers }

// IsObjectInit reports whether m is java.lang.Object.<init>.
func (m *Method) IsObjectInit() bool {
	return m.ClassName == "java/lang/Object" && m.Name == "<init>"
}

// HasCode reports whether the method carries bytecode.
func (m *Method) HasCode() bool { return len(m.code) > 0 }

// Signature returns the name and descriptor, e.g. "run()V".
func (m *Method) Signature() string { return m.Name + m.Descriptor }

func (m *Method) String() string {
	return m.ClassName + "." + m.Signature()
}

// FindMethods returns the methods whose name or signature equals name.
func (c *Class) FindMethods(name string) []*Method {
	var found []*Method
	for _, m := range c.Methods {
		if m.Name == name || m.Signature() == name {
			found = append(found, m)
		}
	}
	return found
}

// ParseFile reads and parses the class file at path.
func ParseFile(path string) (*Class, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read class file %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse parses a class file.
func Parse(data []byte) (*Class, error) {
	r := &reader{buf: data}
	if r.u4() != magic {
		return nil, fmt.Errorf("%w: bad magic", ErrInvalidClass)
	}
	c := &Class{}
	c.MinorVersion = r.u2()
	c.MajorVersion = r.u2()

	pool, err := readConstantPool(r)
	if err != nil {
		return nil, err
	}

	r.u2() // access flags
	if c.Name, err = pool.className(r.u2()); err != nil {
		return nil, err
	}
	if super := r.u2(); super != 0 {
		if c.SuperName, err = pool.className(super); err != nil {
			return nil, err
		}
	}
	r.skip(2 * int(r.u2())) // interfaces

	for n := r.u2(); n > 0; n-- { // fields
		r.skip(6)
		skipAttributes(r)
	}

	for n := r.u2(); n > 0 && r.err == nil; n-- {
		m, err := readMethod(r, pool, c.Name)
		if err != nil {
			return nil, err
		}
		c.Methods = append(c.Methods, m)
	}
	skipAttributes(r)

	if r.err != nil {
		return nil, r.err
	}
	return c, nil
}

func readMethod(r *reader, pool constantPool, className string) (*Method, error) {
	m := &Method{ClassName: className}
	m.AccessFlags = r.u2()
	var err error
	if m.Name, err = pool.utf8(r.u2()); err != nil {
		return nil, err
	}
	if m.Descriptor, err = pool.utf8(r.u2()); err != nil {
		return nil, err
	}

	for n := r.u2(); n > 0 && r.err == nil; n-- {
		name, err := pool.utf8(r.u2())
		if err != nil {
			return nil, err
		}
		length := int(r.u4())
		if name != "Code" {
			r.skip(length)
			continue
		}
		start := r.off
		if err := readCode(r, pool, m); err != nil {
			return nil, err
		}
		if parsed := r.off - start; parsed != length {
			return nil, fmt.Errorf("%w: Code attribute of %s declares %d bytes, contents span %d",
				ErrInvalidClass, m.Name, length, parsed)
		}
	}
	return m, r.err
}

func readCode(r *reader, pool constantPool, m *Method) error {
	m.MaxStack = int(r.u2())
	m.maxLocals = int(r.u2())
	m.code = r.bytes(int(r.u4()))

	for n := r.u2(); n > 0 && r.err == nil; n-- {
		h := bytecode.ExceptionHandler{
			StartBCI:   int(r.u2()),
			EndBCI:     int(r.u2()),
			HandlerBCI: int(r.u2()),
		}
		if catchType := r.u2(); catchType != 0 {
			name, err := pool.className(catchType)
			if err != nil {
				return err
			}
			h.CatchType = name
		}
		m.handlers = append(m.handlers, h)
	}
	skipAttributes(r)
	return r.err
}

func skipAttributes(r *reader) {
	for n := r.u2(); n > 0 && r.err == nil; n-- {
		r.skip(2)
		r.skip(int(r.u4()))
	}
}

type constant struct {
	tag   uint8
	utf8  string
	index uint16 // name index of a Class entry
}

// constantPool is indexed by constant pool index; slot 0 and the slot after
// a long or double are unused.
type constantPool []constant

func readConstantPool(r *reader) (constantPool, error) {
	count := int(r.u2())
	pool := make(constantPool, count)
	for i := 1; i < count; i++ {
		tag := r.u1()
		if r.err != nil {
			break
		}
		c := constant{tag: tag}
		switch tag {
		case tagUtf8:
			c.utf8 = string(r.bytes(int(r.u2())))
		case tagClass:
			c.index = r.u2()
		case tagString, tagMethodType, tagModule, tagPackage:
			r.skip(2)
		case tagMethodHandle:
			r.skip(3)
		case tagInteger, tagFloat, tagFieldref, tagMethodref, tagInterfaceMethodref,
			tagNameAndType, tagDynamic, tagInvokeDynamic:
			r.skip(4)
		case tagLong, tagDouble:
			r.skip(8)
		default:
			return nil, fmt.Errorf("%w: unknown constant pool tag %d at index %d", ErrInvalidClass, tag, i)
		}
		pool[i] = c
		if tag == tagLong || tag == tagDouble {
			// takes two slots
			i++
		}
	}
	return pool, r.err
}

func (p constantPool) get(index uint16, tag uint8) (constant, error) {
	if int(index) >= len(p) || index == 0 || p[index].tag != tag {
		return constant{}, fmt.Errorf("%w: constant pool index %d is not of tag %d", ErrInvalidClass, index, tag)
	}
	return p[index], nil
}

func (p constantPool) utf8(index uint16) (string, error) {
	c, err := p.get(index, tagUtf8)
	return c.utf8, err
}

func (p constantPool) className(index uint16) (string, error) {
	c, err := p.get(index, tagClass)
	if err != nil {
		return "", err
	}
	return p.utf8(c.index)
}

// reader decodes big-endian values from a byte slice. The first out of
// range read sets err; later reads return zero values.
type reader struct {
	buf []byte
	off int
	err error
}

func (r *reader) take(n int) []byte {
	if r.err != nil {
		return nil
	}
	if n < 0 || r.off+n > len(r.buf) {
		r.err = fmt.Errorf("%w: truncated at offset %d", ErrInvalidClass, r.off)
		return nil
	}
	b := r.buf[r.off : r.off+n]
	r.off += n
	return b
}

func (r *reader) u1() uint8 {
	if b := r.take(1); b != nil {
		return b[0]
	}
	return 0
}

func (r *reader) u2() uint16 {
	if b := r.take(2); b != nil {
		return binary.BigEndian.Uint16(b)
	}
	return 0
}

func (r *reader) u4() uint32 {
	if b := r.take(4); b != nil {
		return binary.BigEndian.Uint32(b)
	}
	return 0
}

func (r *reader) bytes(n int) []byte {
	b := r.take(n)
	if b == nil {
		return nil
	}
	return append([]byte(nil), b...)
}

func (r *reader) skip(n int) {
	r.take(n)
}
