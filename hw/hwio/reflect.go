package hwio

import (
	"errors"
	"fmt"
	"reflect"
	"strconv"
	"strings"
)

type bankReg struct {
	regPtr any
	offset uint32
}

func parseUint(s string) (uint64, error) {
	return strconv.ParseUint(s, 0, 64)
}

type regTag struct {
	offset    uint32
	hasOffset bool
	bank      int
	reset     uint64
	rwmask    uint64
	hasRWMask bool
	size      int
	vsize     int
	readonly  bool
	writeonly bool
	rcb, wcb  string
	pcb       string
}

// parseTag parses a "hwio" struct tag for the field named fieldName. Callback
// options without an explicit name default to Read<FIELD>, Write<FIELD> and
// Peek<FIELD>, with the field name upper-cased.
func parseTag(tag, fieldName string) (regTag, error) {
	var rt regTag
	upper := strings.ToUpper(fieldName)
	for _, opt := range strings.Split(tag, ",") {
		key, val, hasVal := strings.Cut(strings.TrimSpace(opt), "=")
		var err error
		var n uint64
		switch key {
		case "offset":
			n, err = parseUint(val)
			rt.offset, rt.hasOffset = uint32(n), true
		case "bank":
			n, err = parseUint(val)
			rt.bank = int(n)
		case "reset":
			rt.reset, err = parseUint(val)
		case "rwmask":
			rt.rwmask, err = parseUint(val)
			rt.hasRWMask = true
		case "size":
			n, err = parseUint(val)
			rt.size = int(n)
		case "vsize":
			n, err = parseUint(val)
			rt.vsize = int(n)
		case "readonly":
			rt.readonly = true
		case "writeonly":
			rt.writeonly = true
		case "rcb":
			rt.rcb = "Read" + upper
			if hasVal {
				rt.rcb = val
			}
		case "wcb":
			rt.wcb = "Write" + upper
			if hasVal {
				rt.wcb = val
			}
		case "pcb":
			rt.pcb = "Peek" + upper
			if hasVal {
				rt.pcb = val
			}
		case "":
		default:
			return rt, fmt.Errorf("field %s: unknown hwio option %q", fieldName, key)
		}
		if err != nil {
			return rt, fmt.Errorf("field %s: option %s: %w", fieldName, key, err)
		}
	}
	return rt, nil
}

func (rt regTag) flags() RWFlags {
	var f RWFlags
	if rt.readonly {
		f |= ReadOnlyFlag
	}
	if rt.writeonly {
		f |= WriteOnlyFlag
	}
	return f
}

func method[T any](parent reflect.Value, name string) (T, error) {
	var zero T
	m := parent.MethodByName(name)
	if !m.IsValid() {
		return zero, fmt.Errorf("method %s not found on %s", name, parent.Type())
	}
	fn, ok := m.Interface().(T)
	if !ok {
		return zero, fmt.Errorf("method %s has type %s, want %T", name, m.Type(), zero)
	}
	return fn, nil
}

// InitRegs initializes all registers and memory areas of the struct pointed to
// by data, according to their "hwio" struct tags: reset values, write masks,
// access flags, and callbacks bound to methods of data.
func InitRegs(data any) error {
	ptr := reflect.ValueOf(data)
	if ptr.Kind() != reflect.Pointer || ptr.Elem().Kind() != reflect.Struct {
		return errors.New("InitRegs: argument must be a pointer to struct")
	}
	val := ptr.Elem()
	typ := val.Type()

	for i := range typ.NumField() {
		f := typ.Field(i)
		tag, ok := f.Tag.Lookup("hwio")
		if !ok {
			continue
		}
		rt, err := parseTag(tag, f.Name)
		if err != nil {
			return err
		}

		switch reg := val.Field(i).Addr().Interface().(type) {
		case *Reg32:
			reg.Name = f.Name
			reg.Value = uint32(rt.reset)
			reg.Flags = rt.flags()
			if rt.hasRWMask {
				reg.RoMask = ^uint32(rt.rwmask)
			}
			if rt.rcb != "" {
				if reg.ReadCb, err = method[func(uint32) uint32](ptr, rt.rcb); err != nil {
					return err
				}
			}
			if rt.pcb != "" {
				if reg.PeekCb, err = method[func(uint32) uint32](ptr, rt.pcb); err != nil {
					return err
				}
			}
			if rt.wcb != "" {
				if reg.WriteCb, err = method[func(uint32, uint32)](ptr, rt.wcb); err != nil {
					return err
				}
			}
		case *Reg8:
			reg.Name = f.Name
			reg.Value = uint8(rt.reset)
			reg.Flags = rt.flags()
			if rt.hasRWMask {
				reg.RoMask = ^uint8(rt.rwmask)
			}
			if rt.rcb != "" {
				if reg.ReadCb, err = method[func(uint8) uint8](ptr, rt.rcb); err != nil {
					return err
				}
			}
			if rt.pcb != "" {
				if reg.PeekCb, err = method[func(uint8) uint8](ptr, rt.pcb); err != nil {
					return err
				}
			}
			if rt.wcb != "" {
				if reg.WriteCb, err = method[func(uint8, uint8)](ptr, rt.wcb); err != nil {
					return err
				}
			}
		case *Mem:
			reg.Name = f.Name
			if rt.size == 0 {
				return fmt.Errorf("field %s: memory needs a size", f.Name)
			}
			if len(reg.Data) == 0 {
				reg.Data = make([]byte, rt.size)
			}
			reg.VSize = rt.vsize
			if reg.VSize == 0 {
				reg.VSize = rt.size
			}
			if rt.readonly {
				reg.Flags |= MemFlagReadOnly
			}
		default:
			return fmt.Errorf("field %s: unsupported hwio type %T", f.Name, reg)
		}
	}
	return nil
}

// MustInitRegs is like InitRegs but panics on error.
func MustInitRegs(data any) {
	if err := InitRegs(data); err != nil {
		panic(err)
	}
}

func bankGetRegs(bank any, bankNum int) ([]bankReg, error) {
	ptr := reflect.ValueOf(bank)
	if ptr.Kind() != reflect.Pointer || ptr.Elem().Kind() != reflect.Struct {
		return nil, errors.New("MapBank: bank must be a pointer to struct")
	}
	val := ptr.Elem()
	typ := val.Type()

	var regs []bankReg
	for i := range typ.NumField() {
		f := typ.Field(i)
		tag, ok := f.Tag.Lookup("hwio")
		if !ok {
			continue
		}
		rt, err := parseTag(tag, f.Name)
		if err != nil {
			return nil, err
		}
		if !rt.hasOffset || rt.bank != bankNum {
			continue
		}
		regs = append(regs, bankReg{
			regPtr: val.Field(i).Addr().Interface(),
			offset: rt.offset,
		})
	}
	return regs, nil
}
