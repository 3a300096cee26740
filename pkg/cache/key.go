package cache

import (
	"encoding/binary"
	"fmt"

	"github.com/cespare/xxhash/v2"

	"github.com/l3aro/go-blockmap/pkg/blockmap"
)

// KeyOptions are the build options that change the CFG of a method.
type KeyOptions struct {
	FirstBlockID         int
	ComputeStoresInLoops bool
	RegisterFinalizers   bool
}

// Key returns the cache key of the CFG built for m with opts. Methods with
// identical code, locals and exception tables share a key.
func Key(m blockmap.Method, opts KeyOptions) string {
	d := xxhash.New()
	var buf []byte
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(m.Code())))
	d.Write(buf)
	d.Write(m.Code())

	buf = buf[:0]
	buf = binary.BigEndian.AppendUint32(buf, uint32(m.MaxLocals()))
	buf = binary.BigEndian.AppendUint32(buf, uint32(opts.FirstBlockID))
	buf = append(buf, flagByte(opts.ComputeStoresInLoops), flagByte(opts.RegisterFinalizers && m.IsObjectInit()))
	for _, h := range m.ExceptionHandlers() {
		buf = binary.BigEndian.AppendUint32(buf, uint32(h.StartBCI))
		buf = binary.BigEndian.AppendUint32(buf, uint32(h.EndBCI))
		buf = binary.BigEndian.AppendUint32(buf, uint32(h.HandlerBCI))
		buf = append(buf, flagByte(h.IsCatchAll()))
	}
	d.Write(buf)

	return fmt.Sprintf("%016x", d.Sum64())
}

func flagByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}
