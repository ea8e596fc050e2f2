package runtime

import (
	"fmt"

	"github.com/wippyai/thunkgen"
	"github.com/wippyai/thunkgen/abi"
	"github.com/wippyai/thunkgen/errors"
)

// Slot locates one value inside a packed-arguments record.
type Slot struct {
	Offset uint32
	Size   uint32
	Align  uint32
}

// PackedLayout is the offset table of a packed-arguments record under one
// guest ABI: argument slots in declaration order, the hidden callback
// context slot when present, and the return slot last. Offsets follow the
// guest's structure layout rules, so they agree byte for byte with the
// records both generated modules address.
type PackedLayout struct {
	arch   abi.Arch
	args   []Slot
	ctx    Slot
	ret    Slot
	hasCtx bool
	hasRet bool
	size   uint32
	align  uint32
}

// NewCall computes the record layout for an outbound call given the
// guest-side size and alignment of each argument and of the return type.
// A void return is the zero Info.
func NewCall(arch abi.Arch, args []abi.Info, ret abi.Info) (*PackedLayout, error) {
	if !abi.ArityAllowed(len(args)) {
		return nil, arityError(len(args))
	}
	return newLayout(arch, args, ret, false), nil
}

// NewGuestCallback computes the record layout for a host-to-guest
// callback, which carries a hidden context slot of guest pointer width
// between the arguments and the return slot. The dispatch tables must
// cover the context slot's own index, so the gate runs on len(args),
// which is exactly that index.
func NewGuestCallback(arch abi.Arch, args []abi.Info, ret abi.Info) (*PackedLayout, error) {
	if !abi.ArityAllowed(len(args)) {
		return nil, arityError(len(args))
	}
	return newLayout(arch, args, ret, true), nil
}

func arityError(n int) error {
	return errors.New(errors.PhaseDispatch, errors.KindArity).
		Detail("unsupported number of arguments (%d)", n).
		Value(n).
		Build()
}

func newLayout(arch abi.Arch, args []abi.Info, ret abi.Info, withContext bool) *PackedLayout {
	l := &PackedLayout{arch: arch, align: 1}

	var off uint32
	place := func(in abi.Info) Slot {
		align := in.Align
		if align == 0 {
			align = 1
		}
		off = abi.AlignTo(off, align)
		s := Slot{Offset: off, Size: in.Size, Align: align}
		off += in.Size
		if align > l.align {
			l.align = align
		}
		return s
	}

	l.args = make([]Slot, len(args))
	for i, a := range args {
		l.args[i] = place(a)
	}
	if withContext {
		l.ctx = place(arch.PointerInfo())
		l.hasCtx = true
	}
	if ret.Size > 0 {
		l.ret = place(ret)
		l.hasRet = true
	}

	l.size = abi.AlignTo(off, l.align)
	if l.size == 0 {
		// An empty record still occupies one byte, matching the
		// char force_nonempty member the generator emits.
		l.size = 1
	}
	return l
}

// Arch returns the guest ABI the offsets were computed under.
func (l *PackedLayout) Arch() abi.Arch { return l.arch }

// NumArgs returns the number of declared argument slots, excluding the
// hidden context slot.
func (l *PackedLayout) NumArgs() int { return len(l.args) }

// Arg returns the slot of argument i. It panics when i is out of range;
// records are addressed by compile-time index only.
func (l *PackedLayout) Arg(i int) Slot { return l.args[i] }

// Context returns the hidden callback-context slot; ok is false for
// plain call records.
func (l *PackedLayout) Context() (Slot, bool) { return l.ctx, l.hasCtx }

// Return returns the return-value slot; ok is false for void.
func (l *PackedLayout) Return() (Slot, bool) { return l.ret, l.hasRet }

// Size returns the total record size, padded to the record alignment.
func (l *PackedLayout) Size() uint32 { return l.size }

// Align returns the record alignment.
func (l *PackedLayout) Align() uint32 { return l.align }

// At binds the layout to a record at addr in guest memory.
func (l *PackedLayout) At(mem thunkgen.GuestMemory, addr uint64) Record {
	return Record{layout: l, mem: mem, addr: addr}
}

// Record is one packed-arguments record at a fixed guest address. All
// accessors go through the bound layout; the record itself carries no
// runtime type information.
type Record struct {
	layout *PackedLayout
	mem    thunkgen.GuestMemory
	addr   uint64
}

func (r Record) Addr() uint64 { return r.addr }

func (r Record) Layout() *PackedLayout { return r.layout }

// Arg reads the raw bytes of argument i.
func (r Record) Arg(i int) ([]byte, error) {
	s := r.layout.args[i]
	return r.mem.Read(r.addr+uint64(s.Offset), s.Size)
}

// SetArg writes the raw bytes of argument i. The data length must equal
// the slot size.
func (r Record) SetArg(i int, data []byte) error {
	s := r.layout.args[i]
	if uint32(len(data)) != s.Size {
		return errors.InvalidInput(errors.PhaseDispatch,
			fmt.Sprintf("argument %d is %d bytes, got %d", i, s.Size, len(data)))
	}
	return r.mem.Write(r.addr+uint64(s.Offset), data)
}

// ArgUint reads argument i as a zero-extended little-endian integer.
// Pointer-valued slots yield the guest address bit pattern.
func (r Record) ArgUint(i int) (uint64, error) {
	return r.readUint(r.layout.args[i])
}

// SetArgUint writes argument i, truncating v to the slot width.
func (r Record) SetArgUint(i int, v uint64) error {
	return r.writeUint(r.layout.args[i], v)
}

// ContextPointer reads the hidden callback-context slot.
func (r Record) ContextPointer() (uint64, error) {
	if !r.layout.hasCtx {
		return 0, errors.InvalidInput(errors.PhaseDispatch, "record has no context slot")
	}
	return r.readUint(r.layout.ctx)
}

// SetContextPointer writes the hidden callback-context slot.
func (r Record) SetContextPointer(v uint64) error {
	if !r.layout.hasCtx {
		return errors.InvalidInput(errors.PhaseDispatch, "record has no context slot")
	}
	return r.writeUint(r.layout.ctx, v)
}

// Return reads the raw bytes of the return slot.
func (r Record) Return() ([]byte, error) {
	if !r.layout.hasRet {
		return nil, errors.InvalidInput(errors.PhaseDispatch, "record has no return slot")
	}
	s := r.layout.ret
	return r.mem.Read(r.addr+uint64(s.Offset), s.Size)
}

// SetReturn writes the raw bytes of the return slot.
func (r Record) SetReturn(data []byte) error {
	if !r.layout.hasRet {
		return errors.InvalidInput(errors.PhaseDispatch, "record has no return slot")
	}
	s := r.layout.ret
	if uint32(len(data)) != s.Size {
		return errors.InvalidInput(errors.PhaseDispatch,
			fmt.Sprintf("return slot is %d bytes, got %d", s.Size, len(data)))
	}
	return r.mem.Write(r.addr+uint64(s.Offset), data)
}

// ReturnUint reads the return slot as a zero-extended integer.
func (r Record) ReturnUint() (uint64, error) {
	if !r.layout.hasRet {
		return 0, errors.InvalidInput(errors.PhaseDispatch, "record has no return slot")
	}
	return r.readUint(r.layout.ret)
}

// SetReturnUint writes the return slot. The callee writes it before the
// call returns; the caller reads it afterward.
func (r Record) SetReturnUint(v uint64) error {
	if !r.layout.hasRet {
		return errors.InvalidInput(errors.PhaseDispatch, "record has no return slot")
	}
	return r.writeUint(r.layout.ret, v)
}

func (r Record) readUint(s Slot) (uint64, error) {
	addr := r.addr + uint64(s.Offset)
	switch s.Size {
	case 1:
		v, err := r.mem.ReadU8(addr)
		return uint64(v), err
	case 2:
		v, err := r.mem.ReadU16(addr)
		return uint64(v), err
	case 4:
		v, err := r.mem.ReadU32(addr)
		return uint64(v), err
	case 8:
		return r.mem.ReadU64(addr)
	default:
		return 0, errors.InvalidInput(errors.PhaseDispatch,
			fmt.Sprintf("slot of %d bytes has no integer view", s.Size))
	}
}

func (r Record) writeUint(s Slot, v uint64) error {
	addr := r.addr + uint64(s.Offset)
	switch s.Size {
	case 1:
		return r.mem.WriteU8(addr, uint8(v))
	case 2:
		return r.mem.WriteU16(addr, uint16(v))
	case 4:
		return r.mem.WriteU32(addr, uint32(v))
	case 8:
		return r.mem.WriteU64(addr, v)
	default:
		return errors.InvalidInput(errors.PhaseDispatch,
			fmt.Sprintf("slot of %d bytes has no integer view", s.Size))
	}
}
