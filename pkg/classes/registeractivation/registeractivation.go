// Package registeractivation implements the Register Activation interface
// class (class_id 6).
//
// The object holds a list of register references and named masks. Each
// mask lists 1-based positions into the register list; the active mask
// decides which registers are currently being updated, typically per
// tariff rate.
package registeractivation

import (
	"bytes"
	"context"
	"fmt"

	"github.com/backkem/cosem/pkg/cosem"
	"github.com/backkem/cosem/pkg/datamodel"
	"github.com/backkem/cosem/pkg/obis"
)

// Class constants.
const (
	ClassID = datamodel.ClassRegisterActivation
	Version = 0
)

// Attribute IDs.
const (
	AttrRegisterAssignment datamodel.AttributeID = 2
	AttrMaskList           datamodel.AttributeID = 3
	AttrActiveMask         datamodel.AttributeID = 4
)

// Method IDs. remove_register is an extension beyond the Blue Book set.
const (
	MethodAddRegister    datamodel.MethodID = 1
	MethodAddMask        datamodel.MethodID = 2
	MethodDeleteMask     datamodel.MethodID = 3
	MethodRemoveRegister datamodel.MethodID = 4
)

// Mask is a named register activation mask.
type Mask struct {
	Name    []byte
	Indices []uint8 // 1-based positions into the register assignment
}

// Value encodes m as structure{octet-string, array of unsigned}.
func (m Mask) Value() cosem.Value {
	idx := make([]cosem.Value, len(m.Indices))
	for i, n := range m.Indices {
		idx[i] = cosem.Unsigned(n)
	}
	return cosem.Structure(cosem.OctetString(m.Name), cosem.Array(idx...))
}

// ParseMask decodes structure{octet-string, array of unsigned}.
func ParseMask(v cosem.Value) (Mask, error) {
	e, ok := v.Elements()
	if v.Tag() != cosem.TagStructure || !ok || len(e) != 2 || e[0].Tag() != cosem.TagOctetString || e[1].Tag() != cosem.TagArray {
		return Mask{}, fmt.Errorf("%w: mask must be structure{octet-string, array}", datamodel.ErrTypeMismatch)
	}
	name, _ := e[0].Bytes()
	list, _ := e[1].Elements()
	m := Mask{Name: name, Indices: make([]uint8, 0, len(list))}
	for _, x := range list {
		if x.Tag() != cosem.TagUnsigned {
			return Mask{}, fmt.Errorf("%w: mask index must be unsigned", datamodel.ErrTypeMismatch)
		}
		n, _ := x.Uint()
		m.Indices = append(m.Indices, uint8(n))
	}
	return m, nil
}

// Config provides the initial state of a Register Activation object.
type Config struct {
	LogicalName obis.Code
	Registers   []datamodel.ObjectDefinition
	Masks       []Mask
	ActiveMask  []byte
}

// RegisterActivation implements the Register Activation interface class.
type RegisterActivation struct {
	datamodel.Base
	registers  []datamodel.ObjectDefinition
	masks      []Mask
	activeMask []byte
}

// New creates a Register Activation object.
func New(cfg Config) (*RegisterActivation, error) {
	attrs := []datamodel.AttributeEntry{
		datamodel.NewReadWriteAttribute(AttrRegisterAssignment, "register_assignment", cosem.TagArray),
		datamodel.NewReadWriteAttribute(AttrMaskList, "mask_list", cosem.TagArray),
		datamodel.NewReadWriteAttribute(AttrActiveMask, "active_mask", cosem.TagOctetString),
	}
	methods := []datamodel.MethodEntry{
		datamodel.NewMethodEntry(MethodAddRegister, "add_register"),
		datamodel.NewMethodEntry(MethodAddMask, "add_mask"),
		datamodel.NewMethodEntry(MethodDeleteMask, "delete_mask"),
		datamodel.NewMethodEntry(MethodRemoveRegister, "remove_register"),
	}
	r := &RegisterActivation{
		Base:       datamodel.NewBase(ClassID, Version, cfg.LogicalName, attrs, methods),
		registers:  append([]datamodel.ObjectDefinition(nil), cfg.Registers...),
		masks:      append([]Mask(nil), cfg.Masks...),
		activeMask: cfg.ActiveMask,
	}
	if err := r.check(r.registers, r.masks, r.activeMask); err != nil {
		return nil, fmt.Errorf("register activation %s: %w", cfg.LogicalName, err)
	}
	return r, nil
}

// check validates a candidate state: unique registers, unique mask names,
// indices within the register list, and an active mask that exists.
func (r *RegisterActivation) check(regs []datamodel.ObjectDefinition, masks []Mask, active []byte) error {
	seen := make(map[datamodel.ObjectDefinition]bool, len(regs))
	for _, d := range regs {
		if seen[d] {
			return fmt.Errorf("%w: register %s %s assigned twice", datamodel.ErrInvalidValue, d.Class, d.LogicalName)
		}
		seen[d] = true
	}
	for i, m := range masks {
		for _, n := range m.Indices {
			if n == 0 || int(n) > len(regs) {
				return fmt.Errorf("%w: mask %X index %d outside 1..%d", datamodel.ErrInvalidValue, m.Name, n, len(regs))
			}
		}
		for _, o := range masks[:i] {
			if bytes.Equal(o.Name, m.Name) {
				return fmt.Errorf("%w: mask %X defined twice", datamodel.ErrInvalidValue, m.Name)
			}
		}
	}
	if len(active) > 0 && findMask(masks, active) < 0 {
		return fmt.Errorf("%w: active mask %X not defined", datamodel.ErrInvalidValue, active)
	}
	return nil
}

func findMask(masks []Mask, name []byte) int {
	for i, m := range masks {
		if bytes.Equal(m.Name, name) {
			return i
		}
	}
	return -1
}

// Registers returns the register assignment.
func (r *RegisterActivation) Registers() []datamodel.ObjectDefinition {
	return append([]datamodel.ObjectDefinition(nil), r.registers...)
}

// ActiveMask returns the name of the active mask.
func (r *RegisterActivation) ActiveMask() []byte { return r.activeMask }

// ActiveRegisters returns the registers selected by the active mask in
// mask order. With no active mask every assigned register is active.
func (r *RegisterActivation) ActiveRegisters() []datamodel.ObjectDefinition {
	if len(r.activeMask) == 0 {
		return r.Registers()
	}
	m := r.masks[findMask(r.masks, r.activeMask)]
	out := make([]datamodel.ObjectDefinition, 0, len(m.Indices))
	for _, n := range m.Indices {
		out = append(out, r.registers[n-1])
	}
	return out
}

// IsActive reports whether the register is currently active.
func (r *RegisterActivation) IsActive(def datamodel.ObjectDefinition) bool {
	for _, d := range r.ActiveRegisters() {
		if d == def {
			return true
		}
	}
	return false
}

// Activate makes the named mask active. An empty name clears the active
// mask.
func (r *RegisterActivation) Activate(name []byte) error {
	if err := r.check(r.registers, r.masks, name); err != nil {
		return r.AttrError(AttrActiveMask, err)
	}
	r.activeMask = append([]byte(nil), name...)
	return nil
}

func (r *RegisterActivation) registerValue() cosem.Value {
	e := make([]cosem.Value, len(r.registers))
	for i, d := range r.registers {
		e[i] = d.Value()
	}
	return cosem.Array(e...)
}

func (r *RegisterActivation) maskValue() cosem.Value {
	e := make([]cosem.Value, len(r.masks))
	for i, m := range r.masks {
		e[i] = m.Value()
	}
	return cosem.Array(e...)
}

func parseRegisters(v cosem.Value) ([]datamodel.ObjectDefinition, error) {
	e, _ := v.Elements()
	out := make([]datamodel.ObjectDefinition, 0, len(e))
	for _, x := range e {
		d, err := datamodel.ParseObjectDefinition(x)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

func parseMasks(v cosem.Value) ([]Mask, error) {
	e, _ := v.Elements()
	out := make([]Mask, 0, len(e))
	for _, x := range e {
		m, err := ParseMask(x)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, nil
}

// GetAttribute implements datamodel.Object.
func (r *RegisterActivation) GetAttribute(ctx context.Context, id datamodel.AttributeID) (cosem.Value, error) {
	if err := r.CheckGet(ctx, id); err != nil {
		return cosem.Value{}, err
	}
	switch id {
	case datamodel.AttrLogicalName:
		return r.GetLogicalName(), nil
	case AttrRegisterAssignment:
		return r.registerValue(), nil
	case AttrMaskList:
		return r.maskValue(), nil
	default:
		return cosem.OctetString(r.activeMask), nil
	}
}

// SetAttribute implements datamodel.Object. Every write is validated
// against the rest of the state; a write that would leave a mask pointing
// past the register list is rejected.
func (r *RegisterActivation) SetAttribute(ctx context.Context, id datamodel.AttributeID, v cosem.Value) error {
	if err := r.CheckSet(ctx, id, v); err != nil {
		return err
	}
	regs, masks, active := r.registers, r.masks, r.activeMask
	var err error
	switch id {
	case AttrRegisterAssignment:
		regs, err = parseRegisters(v)
	case AttrMaskList:
		masks, err = parseMasks(v)
	case AttrActiveMask:
		active, _ = v.Bytes()
	}
	if err == nil {
		err = r.check(regs, masks, active)
	}
	if err != nil {
		return r.AttrError(id, err)
	}
	r.registers, r.masks, r.activeMask = regs, masks, active
	return nil
}

// InvokeMethod implements datamodel.Object.
func (r *RegisterActivation) InvokeMethod(ctx context.Context, id datamodel.MethodID, param cosem.Value) (cosem.Value, error) {
	if err := r.CheckInvoke(ctx, id); err != nil {
		return cosem.Value{}, err
	}
	var err error
	switch id {
	case MethodAddRegister:
		err = r.addRegister(param)
	case MethodAddMask:
		err = r.addMask(param)
	case MethodDeleteMask:
		err = r.deleteMask(param)
	case MethodRemoveRegister:
		err = r.removeRegister(param)
	}
	if err != nil {
		return cosem.Value{}, r.MethodError(id, err)
	}
	return cosem.Null(), nil
}

// AddRegister appends a register to the assignment.
func (r *RegisterActivation) AddRegister(def datamodel.ObjectDefinition) error {
	if len(r.registers) >= 255 {
		return fmt.Errorf("%w: register assignment full", datamodel.ErrTemporaryFailure)
	}
	regs := append(r.Registers(), def)
	if err := r.check(regs, r.masks, r.activeMask); err != nil {
		return err
	}
	r.registers = regs
	return nil
}

func (r *RegisterActivation) addRegister(param cosem.Value) error {
	def, err := datamodel.ParseObjectDefinition(param)
	if err != nil {
		return err
	}
	return r.AddRegister(def)
}

// AddMask adds a mask, replacing a mask with the same name.
func (r *RegisterActivation) AddMask(m Mask) error {
	masks := append([]Mask(nil), r.masks...)
	if i := findMask(masks, m.Name); i >= 0 {
		masks[i] = m
	} else {
		masks = append(masks, m)
	}
	if err := r.check(r.registers, masks, r.activeMask); err != nil {
		return err
	}
	r.masks = masks
	return nil
}

func (r *RegisterActivation) addMask(param cosem.Value) error {
	m, err := ParseMask(param)
	if err != nil {
		return err
	}
	return r.AddMask(m)
}

// DeleteMask removes the named mask. Deleting the active mask clears the
// active mask.
func (r *RegisterActivation) DeleteMask(name []byte) error {
	i := findMask(r.masks, name)
	if i < 0 {
		return fmt.Errorf("%w: mask %X not defined", datamodel.ErrInvalidValue, name)
	}
	r.masks = append(r.masks[:i:i], r.masks[i+1:]...)
	if bytes.Equal(r.activeMask, name) {
		r.activeMask = nil
	}
	return nil
}

func (r *RegisterActivation) deleteMask(param cosem.Value) error {
	name, ok := param.Bytes()
	if !ok {
		return fmt.Errorf("%w: mask name must be octet-string", datamodel.ErrTypeMismatch)
	}
	return r.DeleteMask(name)
}

// RemoveRegister drops a register from the assignment. Masks lose the
// removed position and later positions shift down by one.
func (r *RegisterActivation) RemoveRegister(def datamodel.ObjectDefinition) error {
	pos := -1
	for i, d := range r.registers {
		if d == def {
			pos = i
			break
		}
	}
	if pos < 0 {
		return fmt.Errorf("%w: register %s %s not assigned", datamodel.ErrInvalidValue, def.Class, def.LogicalName)
	}
	removed := uint8(pos + 1)
	masks := make([]Mask, len(r.masks))
	for i, m := range r.masks {
		idx := make([]uint8, 0, len(m.Indices))
		for _, n := range m.Indices {
			switch {
			case n == removed:
			case n > removed:
				idx = append(idx, n-1)
			default:
				idx = append(idx, n)
			}
		}
		masks[i] = Mask{Name: m.Name, Indices: idx}
	}
	r.registers = append(r.registers[:pos:pos], r.registers[pos+1:]...)
	r.masks = masks
	return nil
}

func (r *RegisterActivation) removeRegister(param cosem.Value) error {
	def, err := datamodel.ParseObjectDefinition(param)
	if err != nil {
		return err
	}
	return r.RemoveRegister(def)
}

// SaveState implements datamodel.Persistent as
// structure{register_assignment, mask_list, active_mask}.
func (r *RegisterActivation) SaveState() (cosem.Value, error) {
	return cosem.Structure(r.registerValue(), r.maskValue(), cosem.OctetString(r.activeMask)), nil
}

// LoadState implements datamodel.Persistent.
func (r *RegisterActivation) LoadState(state cosem.Value) error {
	e, ok := state.Elements()
	if !ok || len(e) != 3 {
		return fmt.Errorf("%w: register activation state", datamodel.ErrTypeMismatch)
	}
	regs, err := parseRegisters(e[0])
	if err != nil {
		return err
	}
	masks, err := parseMasks(e[1])
	if err != nil {
		return err
	}
	active, _ := e[2].Bytes()
	if err := r.check(regs, masks, active); err != nil {
		return err
	}
	r.registers, r.masks, r.activeMask = regs, masks, active
	return nil
}

var (
	_ datamodel.Object     = (*RegisterActivation)(nil)
	_ datamodel.Persistent = (*RegisterActivation)(nil)
)
