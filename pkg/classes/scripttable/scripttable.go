// Package scripttable implements the Script Table interface class
// (class_id 9).
//
// A script is an ordered list of actions, each writing an attribute or
// invoking a method of another object. Executing a script runs its actions
// in order and stops at the first failure; actions already applied stay
// applied.
package scripttable

import (
	"context"
	"errors"
	"fmt"

	"github.com/pion/logging"

	"github.com/backkem/cosem/pkg/cosem"
	"github.com/backkem/cosem/pkg/datamodel"
	"github.com/backkem/cosem/pkg/obis"
)

// Class constants.
const (
	ClassID = datamodel.ClassScriptTable
	Version = 0
)

// Attribute IDs.
const (
	AttrScripts datamodel.AttributeID = 2
)

// Method IDs.
const (
	MethodExecute datamodel.MethodID = 1
)

// MaxNesting bounds scripts executing scripts.
const MaxNesting = 8

// ErrUnknownScript is returned when executing an identifier the table does
// not hold.
var ErrUnknownScript = errors.New("unknown script")

// Service is the action kind.
type Service uint8

const (
	ServiceWriteAttribute Service = 1
	ServiceExecuteMethod  Service = 2
)

// Action is one action_specification.
type Action struct {
	Service     Service
	Class       datamodel.ClassID
	LogicalName obis.Code
	Index       int8
	Parameter   cosem.Value
}

// Value encodes a as structure{enum, long-unsigned, octet-string, integer,
// parameter}.
func (a Action) Value() cosem.Value {
	return cosem.Structure(
		cosem.Enum(uint8(a.Service)),
		cosem.LongUnsigned(uint16(a.Class)),
		a.LogicalName.Value(),
		cosem.Integer(a.Index),
		a.Parameter,
	)
}

func parseAction(v cosem.Value) (Action, error) {
	e, ok := v.Elements()
	if v.Tag() != cosem.TagStructure || !ok || len(e) != 5 ||
		e[0].Tag() != cosem.TagEnum || e[1].Tag() != cosem.TagLongUnsigned || e[3].Tag() != cosem.TagInteger {
		return Action{}, fmt.Errorf("%w: action must be structure{enum, long-unsigned, octet-string, integer, parameter}", datamodel.ErrTypeMismatch)
	}
	ln, err := obis.FromValue(e[2])
	if err != nil {
		return Action{}, fmt.Errorf("%w: %v", datamodel.ErrTypeMismatch, err)
	}
	svc, _ := e[0].Uint()
	class, _ := e[1].Uint()
	idx, _ := e[3].Int()
	a := Action{Service: Service(svc), Class: datamodel.ClassID(class), LogicalName: ln, Index: int8(idx), Parameter: e[4]}
	if a.Service != ServiceWriteAttribute && a.Service != ServiceExecuteMethod {
		return Action{}, fmt.Errorf("%w: service %d", datamodel.ErrInvalidValue, svc)
	}
	if a.Index <= 0 {
		return Action{}, fmt.Errorf("%w: action index %d", datamodel.ErrInvalidValue, idx)
	}
	return a, nil
}

// Script is one entry of the scripts attribute.
type Script struct {
	ID      uint16
	Actions []Action
}

// Value encodes s as structure{long-unsigned, array of action}.
func (s Script) Value() cosem.Value {
	acts := make([]cosem.Value, len(s.Actions))
	for i, a := range s.Actions {
		acts[i] = a.Value()
	}
	return cosem.Structure(cosem.LongUnsigned(s.ID), cosem.Array(acts...))
}

// ParseScript decodes structure{long-unsigned, array of action}.
func ParseScript(v cosem.Value) (Script, error) {
	e, ok := v.Elements()
	if v.Tag() != cosem.TagStructure || !ok || len(e) != 2 || e[0].Tag() != cosem.TagLongUnsigned || e[1].Tag() != cosem.TagArray {
		return Script{}, fmt.Errorf("%w: script must be structure{long-unsigned, array}", datamodel.ErrTypeMismatch)
	}
	id, _ := e[0].Uint()
	list, _ := e[1].Elements()
	s := Script{ID: uint16(id), Actions: make([]Action, 0, len(list))}
	for _, x := range list {
		a, err := parseAction(x)
		if err != nil {
			return Script{}, err
		}
		s.Actions = append(s.Actions, a)
	}
	return s, nil
}

// ExecutionError reports the action a script stopped at.
type ExecutionError struct {
	ScriptID uint16

	// Action is the 1-based position of the failing action.
	Action int

	Err error
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("script %d action %d: %v", e.ScriptID, e.Action, e.Err)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// Config provides the initial state of a Script Table.
type Config struct {
	LogicalName obis.Code
	Scripts     []Script

	// Resolver finds the objects targeted by actions.
	Resolver datamodel.Resolver

	// OnChange is called after each successful write action.
	OnChange func(datamodel.AttributeRef)

	// LoggerFactory is the factory for creating loggers.
	// Optional: if nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// ScriptTable implements the Script Table interface class.
type ScriptTable struct {
	datamodel.Base
	resolver datamodel.Resolver
	onChange func(datamodel.AttributeRef)
	log      logging.LeveledLogger
	scripts  []Script
}

// New creates a Script Table.
func New(cfg Config) (*ScriptTable, error) {
	if cfg.Resolver == nil {
		return nil, fmt.Errorf("script table %s: resolver required", cfg.LogicalName)
	}
	if err := checkScripts(cfg.Scripts); err != nil {
		return nil, fmt.Errorf("script table %s: %w", cfg.LogicalName, err)
	}
	t := &ScriptTable{
		Base: datamodel.NewBase(ClassID, Version, cfg.LogicalName,
			[]datamodel.AttributeEntry{datamodel.NewReadWriteAttribute(AttrScripts, "scripts", cosem.TagArray)},
			[]datamodel.MethodEntry{datamodel.NewMethodEntry(MethodExecute, "execute")},
		),
		resolver: cfg.Resolver,
		onChange: cfg.OnChange,
		scripts:  append([]Script(nil), cfg.Scripts...),
	}
	if cfg.LoggerFactory != nil {
		t.log = cfg.LoggerFactory.NewLogger("scripttable")
	}
	return t, nil
}

func checkScripts(scripts []Script) error {
	seen := make(map[uint16]bool, len(scripts))
	for _, s := range scripts {
		if s.ID == 0 {
			return fmt.Errorf("%w: script id 0 is reserved", datamodel.ErrInvalidValue)
		}
		if seen[s.ID] {
			return fmt.Errorf("%w: duplicate script id %d", datamodel.ErrInvalidValue, s.ID)
		}
		seen[s.ID] = true
	}
	return nil
}

// Scripts returns the scripts.
func (t *ScriptTable) Scripts() []Script { return append([]Script(nil), t.scripts...) }

// Script returns the script with the given identifier.
func (t *ScriptTable) Script(id uint16) (Script, bool) {
	for _, s := range t.scripts {
		if s.ID == id {
			return s, true
		}
	}
	return Script{}, false
}

type depthKey struct{}

func depth(ctx context.Context) int {
	d, _ := ctx.Value(depthKey{}).(int)
	return d
}

// Execute runs the script with identifier id. Identifier 0 is the null
// script and does nothing. Actions run with ctx, so they are subject to the
// same association as the caller. The first failing action stops the
// script with an *ExecutionError.
func (t *ScriptTable) Execute(ctx context.Context, id uint16) error {
	if id == 0 {
		return nil
	}
	s, ok := t.Script(id)
	if !ok {
		return fmt.Errorf("%w: %w %d", datamodel.ErrInvalidValue, ErrUnknownScript, id)
	}
	d := depth(ctx)
	if d >= MaxNesting {
		return &ExecutionError{ScriptID: id, Err: fmt.Errorf("%w: scripts nested deeper than %d", datamodel.ErrTemporaryFailure, MaxNesting)}
	}
	ctx = context.WithValue(ctx, depthKey{}, d+1)
	if t.log != nil {
		t.log.Debugf("%s: executing script %d (%d actions)", t.LogicalName(), id, len(s.Actions))
	}
	for i, a := range s.Actions {
		if err := t.run(ctx, a); err != nil {
			if t.log != nil {
				t.log.Warnf("%s: script %d stopped at action %d: %v", t.LogicalName(), id, i+1, err)
			}
			return &ExecutionError{ScriptID: id, Action: i + 1, Err: err}
		}
	}
	return nil
}

func (t *ScriptTable) run(ctx context.Context, a Action) error {
	obj, err := t.resolver.Lookup(a.Class, a.LogicalName)
	if err != nil {
		return err
	}
	if a.Service == ServiceExecuteMethod {
		_, err = obj.InvokeMethod(ctx, datamodel.MethodID(a.Index), a.Parameter)
		return err
	}
	if err := obj.SetAttribute(ctx, datamodel.AttributeID(a.Index), a.Parameter); err != nil {
		return err
	}
	if t.onChange != nil {
		t.onChange(datamodel.AttributeRef{Class: a.Class, LogicalName: a.LogicalName, Attribute: datamodel.AttributeID(a.Index)})
	}
	return nil
}

func (t *ScriptTable) scriptsValue() cosem.Value {
	e := make([]cosem.Value, len(t.scripts))
	for i, s := range t.scripts {
		e[i] = s.Value()
	}
	return cosem.Array(e...)
}

func parseScripts(v cosem.Value) ([]Script, error) {
	list, _ := v.Elements()
	out := make([]Script, 0, len(list))
	for _, x := range list {
		s, err := ParseScript(x)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	if err := checkScripts(out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetAttribute implements datamodel.Object.
func (t *ScriptTable) GetAttribute(ctx context.Context, id datamodel.AttributeID) (cosem.Value, error) {
	if err := t.CheckGet(ctx, id); err != nil {
		return cosem.Value{}, err
	}
	if id == datamodel.AttrLogicalName {
		return t.GetLogicalName(), nil
	}
	return t.scriptsValue(), nil
}

// SetAttribute implements datamodel.Object.
func (t *ScriptTable) SetAttribute(ctx context.Context, id datamodel.AttributeID, v cosem.Value) error {
	if err := t.CheckSet(ctx, id, v); err != nil {
		return err
	}
	scripts, err := parseScripts(v)
	if err != nil {
		return t.AttrError(id, err)
	}
	t.scripts = scripts
	return nil
}

// InvokeMethod implements datamodel.Object. execute takes the script
// identifier as long-unsigned.
func (t *ScriptTable) InvokeMethod(ctx context.Context, id datamodel.MethodID, param cosem.Value) (cosem.Value, error) {
	if err := t.CheckInvoke(ctx, id); err != nil {
		return cosem.Value{}, err
	}
	if param.Tag() != cosem.TagLongUnsigned {
		return cosem.Value{}, t.MethodError(id, fmt.Errorf("%w: execute expects long-unsigned, got %s", datamodel.ErrTypeMismatch, param.Tag()))
	}
	n, _ := param.Uint()
	if err := t.Execute(ctx, uint16(n)); err != nil {
		return cosem.Value{}, t.MethodError(id, err)
	}
	return cosem.Null(), nil
}

// SaveState implements datamodel.Persistent.
func (t *ScriptTable) SaveState() (cosem.Value, error) { return t.scriptsValue(), nil }

// LoadState implements datamodel.Persistent.
func (t *ScriptTable) LoadState(state cosem.Value) error {
	scripts, err := parseScripts(state)
	if err != nil {
		return err
	}
	t.scripts = scripts
	return nil
}

var (
	_ datamodel.Object     = (*ScriptTable)(nil)
	_ datamodel.Persistent = (*ScriptTable)(nil)
)
