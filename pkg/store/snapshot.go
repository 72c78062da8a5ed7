// Package store persists the state of a logical device across restarts.
//
// A Snapshot holds the SaveState value of every datamodel.Persistent object,
// A-XDR encoded, plus the security invocation counter. Snapshots are
// serialized as deterministic CBOR and kept by a Storage.
package store

import (
	"errors"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/google/uuid"

	"github.com/backkem/cosem/pkg/axdr"
	"github.com/backkem/cosem/pkg/datamodel"
	"github.com/backkem/cosem/pkg/obis"
)

// SnapshotVersion is the current snapshot format version.
const SnapshotVersion = 1

// ErrVersion is returned when decoding a snapshot of another format version.
var ErrVersion = errors.New("store: unsupported snapshot version")

// ObjectState is the persisted state of one object.
type ObjectState struct {
	Class       uint16 `cbor:"1,keyasint"`
	LogicalName []byte `cbor:"2,keyasint"`

	// State is the A-XDR encoding of the object's SaveState value.
	State []byte `cbor:"3,keyasint"`
}

// Snapshot is the persisted state of a logical device.
type Snapshot struct {
	Version int       `cbor:"1,keyasint"`
	ID      string    `cbor:"2,keyasint"`
	SavedAt time.Time `cbor:"3,keyasint"`

	Objects []ObjectState `cbor:"4,keyasint,omitempty"`

	// InvocationCounter is the next invocation counter to send, if a
	// security context is in use.
	InvocationCounter *uint32 `cbor:"5,keyasint,omitempty"`

	// LastReceived is the last invocation counter accepted from the peer.
	LastReceived *uint32 `cbor:"6,keyasint,omitempty"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.EncOptions{
		Sort:          cbor.SortCanonical,
		IndefLength:   cbor.IndefLengthForbidden,
		NilContainers: cbor.NilContainerAsNull,
		Time:          cbor.TimeRFC3339Nano,
	}.EncMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create snapshot CBOR encoder mode: %v", err))
	}
	decMode, err = cbor.DecOptions{
		DupMapKey:   cbor.DupMapKeyEnforcedAPF,
		IndefLength: cbor.IndefLengthForbidden,
	}.DecMode()
	if err != nil {
		panic(fmt.Sprintf("failed to create snapshot CBOR decoder mode: %v", err))
	}
}

// Marshal encodes s as CBOR.
func Marshal(s *Snapshot) ([]byte, error) {
	return encMode.Marshal(s)
}

// Unmarshal decodes a CBOR snapshot.
func Unmarshal(data []byte) (*Snapshot, error) {
	s := &Snapshot{}
	if err := decMode.Unmarshal(data, s); err != nil {
		return nil, fmt.Errorf("store: decode snapshot: %w", err)
	}
	if s.Version != SnapshotVersion {
		return nil, fmt.Errorf("%w: %d", ErrVersion, s.Version)
	}
	return s, nil
}

// Capture takes a snapshot of every persistent object in reg.
func Capture(reg *datamodel.Registry) (*Snapshot, error) {
	s := &Snapshot{
		Version: SnapshotVersion,
		ID:      uuid.New().String(),
		SavedAt: time.Now().UTC(),
	}
	for _, obj := range reg.Objects() {
		p, ok := obj.(datamodel.Persistent)
		if !ok {
			continue
		}
		v, err := p.SaveState()
		if err != nil {
			return nil, fmt.Errorf("store: save %s %s: %w", obj.ClassID(), obj.LogicalName(), err)
		}
		b, err := axdr.Encode(v)
		if err != nil {
			return nil, fmt.Errorf("store: encode %s %s: %w", obj.ClassID(), obj.LogicalName(), err)
		}
		ln := obj.LogicalName()
		s.Objects = append(s.Objects, ObjectState{
			Class:       uint16(obj.ClassID()),
			LogicalName: ln[:],
			State:       b,
		})
	}
	return s, nil
}

// Apply restores the objects of s into reg. Every object is attempted;
// failures, including objects no longer registered, are returned joined.
func Apply(reg *datamodel.Registry, s *Snapshot) error {
	var errs []error
	for _, st := range s.Objects {
		if err := apply(reg, st); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func apply(reg *datamodel.Registry, st ObjectState) error {
	name, err := obis.FromBytes(st.LogicalName)
	if err != nil {
		return fmt.Errorf("store: %w", err)
	}
	class := datamodel.ClassID(st.Class)
	obj, err := reg.Lookup(class, name)
	if err != nil {
		return fmt.Errorf("store: restore: %w", err)
	}
	p, ok := obj.(datamodel.Persistent)
	if !ok {
		return fmt.Errorf("store: %s %s is not persistent", class, name)
	}
	v, err := axdr.DecodeAll(st.State)
	if err != nil {
		return fmt.Errorf("store: decode %s %s: %w", class, name, err)
	}
	if err := p.LoadState(v); err != nil {
		return fmt.Errorf("store: restore %s %s: %w", class, name, err)
	}
	return nil
}
