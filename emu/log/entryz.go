package log

import (
	"fmt"
	"sync"
	"time"

	"gopkg.in/Sirupsen/logrus.v0"
)

const maxZFields = 16

// EntryZ is an allocation-free log entry. A nil *EntryZ is valid and every
// method on it is a no-op, so disabled log sites cost a single branch.
type EntryZ struct {
	lvl   Level
	mod   Module
	msg   string
	zfbuf [maxZFields]ZField
	zfidx int
}

var entryPool = sync.Pool{
	New: func() any { return new(EntryZ) },
}

func NewEntryZ() *EntryZ {
	e := entryPool.Get().(*EntryZ)
	e.zfidx = 0
	return e
}

func (z *EntryZ) add(f ZField) *EntryZ {
	if z == nil {
		return nil
	}
	if z.zfidx < maxZFields {
		z.zfbuf[z.zfidx] = f
		z.zfidx++
	}
	return z
}

func (z *EntryZ) String(key, val string) *EntryZ {
	return z.add(ZField{Type: FieldTypeString, Key: key, String: val})
}

func (z *EntryZ) Bool(key string, val bool) *EntryZ {
	return z.add(ZField{Type: FieldTypeBool, Key: key, Boolean: val})
}

func (z *EntryZ) Hex8(key string, val uint8) *EntryZ {
	return z.add(ZField{Type: FieldTypeHex8, Key: key, Integer: uint64(val)})
}

func (z *EntryZ) Hex16(key string, val uint16) *EntryZ {
	return z.add(ZField{Type: FieldTypeHex16, Key: key, Integer: uint64(val)})
}

func (z *EntryZ) Hex32(key string, val uint32) *EntryZ {
	return z.add(ZField{Type: FieldTypeHex32, Key: key, Integer: uint64(val)})
}

func (z *EntryZ) Hex64(key string, val uint64) *EntryZ {
	return z.add(ZField{Type: FieldTypeHex64, Key: key, Integer: val})
}

func (z *EntryZ) Int(key string, val int) *EntryZ {
	return z.add(ZField{Type: FieldTypeInt, Key: key, Integer: uint64(val)})
}

func (z *EntryZ) Uint(key string, val uint) *EntryZ {
	return z.add(ZField{Type: FieldTypeUint, Key: key, Integer: uint64(val)})
}

func (z *EntryZ) Error(key string, err error) *EntryZ {
	return z.add(ZField{Type: FieldTypeError, Key: key, Error: err})
}

func (z *EntryZ) Duration(key string, d time.Duration) *EntryZ {
	return z.add(ZField{Type: FieldTypeDuration, Key: key, Duration: d})
}

func (z *EntryZ) Stringer(key string, s fmt.Stringer) *EntryZ {
	return z.add(ZField{Type: FieldTypeStringer, Key: key, Interface: s})
}

func (z *EntryZ) Blob(key string, b []byte) *EntryZ {
	return z.add(ZField{Type: FieldTypeBlob, Key: key, Blob: b})
}

// End emits the entry and returns it to the pool.
func (z *EntryZ) End() {
	if z == nil {
		return
	}

	fields := make(logrus.Fields, z.zfidx+2)
	fields["_mod"] = z.mod.String()
	for i := range z.zfbuf[:z.zfidx] {
		fields[z.zfbuf[i].Key] = z.zfbuf[i].Value()
	}
	for k, v := range contextFields() {
		fields[k] = v
	}

	entry := logrus.StandardLogger().WithFields(fields)
	switch z.lvl {
	case DebugLevel:
		entry.Debug(z.msg)
	case InfoLevel:
		entry.Info(z.msg)
	case WarnLevel:
		entry.Warn(z.msg)
	case ErrorLevel:
		entry.Error(z.msg)
	case FatalLevel:
		entry.Fatal(z.msg)
	case PanicLevel:
		entry.Panic(z.msg)
	}
	entryPool.Put(z)
}

// A Context adds fields describing the current state of the machine (frame,
// scanline, etc.) to every emitted entry.
type Context interface {
	AddLogContext(*EntryZ)
}

var contexts []Context

func AddContext(c Context) {
	contexts = append(contexts, c)
}

func RemoveContext(c Context) {
	for i := range contexts {
		if contexts[i] == c {
			contexts = append(contexts[:i], contexts[i+1:]...)
			return
		}
	}
}

func contextFields() logrus.Fields {
	if len(contexts) == 0 {
		return nil
	}
	var z EntryZ
	for _, c := range contexts {
		c.AddLogContext(&z)
	}
	fields := make(logrus.Fields, z.zfidx)
	for i := range z.zfbuf[:z.zfidx] {
		fields[z.zfbuf[i].Key] = z.zfbuf[i].Value()
	}
	return fields
}
