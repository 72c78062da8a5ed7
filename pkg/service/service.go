// Package service is the entry point for the APDU layer of a meter. It
// serves Get, Set and Action requests on the objects of a logical device
// with A-XDR encoded payloads, ciphers and deciphers secured frames, drives
// the clock tick and persists device state.
//
// All calls on a Service are serialized, which provides the single-writer
// discipline the objects require.
package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/pion/logging"

	"github.com/backkem/cosem/pkg/acl"
	"github.com/backkem/cosem/pkg/axdr"
	"github.com/backkem/cosem/pkg/cosem"
	"github.com/backkem/cosem/pkg/datamodel"
	"github.com/backkem/cosem/pkg/obis"
	"github.com/backkem/cosem/pkg/security"
	"github.com/backkem/cosem/pkg/store"
)

// ErrNoSecurity is returned by ciphering calls on a service configured
// without a security context.
var ErrNoSecurity = errors.New("service: no security context")

// Config configures a Service.
type Config struct {
	// Registry holds the objects of the logical device. Required.
	Registry *datamodel.Registry

	// Access restricts what client associations may do. Optional: if nil,
	// only the access modes of the objects apply.
	Access *acl.Checker

	// Security ciphers secured frames. Optional.
	Security *security.Context

	// Storage persists object state and the invocation counter. Optional.
	Storage store.Storage

	// LoggerFactory is the factory for creating loggers.
	// Optional: if nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Validate checks required fields.
func (c *Config) Validate() error {
	if c.Registry == nil {
		return errors.New("service: registry required")
	}
	return nil
}

// Service serves one logical device.
type Service struct {
	mu       sync.Mutex
	registry *datamodel.Registry
	access   *acl.Checker
	security *security.Context
	storage  store.Storage
	log      logging.LeveledLogger
}

// New creates a Service.
func New(cfg Config) (*Service, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Service{
		registry: cfg.Registry,
		access:   cfg.Access,
		security: cfg.Security,
		storage:  cfg.Storage,
	}
	if cfg.LoggerFactory != nil {
		s.log = cfg.LoggerFactory.NewLogger("service")
	}
	return s, nil
}

// Registry returns the served registry.
func (s *Service) Registry() *datamodel.Registry { return s.registry }

func (s *Service) object(class datamodel.ClassID, name obis.Code) (datamodel.Object, error) {
	obj, err := s.registry.Lookup(class, name)
	if err != nil && s.log != nil {
		s.log.Debugf("lookup %s %s: %v", class, name, err)
	}
	return obj, err
}

// authorize checks the access list for an attribute (method false) or
// method index.
func (s *Service) authorize(ctx context.Context, class datamodel.ClassID, name obis.Code, index uint8, method bool, required acl.Privilege) error {
	if s.access == nil {
		return nil
	}
	path := acl.RequestPath{Class: class, LogicalName: name}
	if s.access.CheckContext(ctx, path, required) == acl.ResultAllowed {
		return nil
	}
	if s.log != nil {
		a, _ := datamodel.AssociationFrom(ctx)
		s.log.Infof("client %d denied %s on %s %s", a.ClientSAP, required, class, name)
	}
	return &datamodel.AccessError{Class: class, LogicalName: name, Index: index, Method: method, Err: datamodel.ErrAccessDenied}
}

// Get reads an attribute and returns its A-XDR encoding. sel, if not nil,
// requests selective access.
func (s *Service) Get(ctx context.Context, ref datamodel.AttributeRef, sel *datamodel.AccessSelector) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authorize(ctx, ref.Class, ref.LogicalName, uint8(ref.Attribute), false, acl.PrivilegeView); err != nil {
		return nil, err
	}
	obj, err := s.object(ref.Class, ref.LogicalName)
	if err != nil {
		return nil, err
	}
	var v cosem.Value
	if sel != nil {
		sr, ok := obj.(datamodel.SelectiveReader)
		if !ok {
			return nil, &datamodel.AccessError{
				Class: ref.Class, LogicalName: ref.LogicalName, Index: uint8(ref.Attribute),
				Err: fmt.Errorf("%w: selective access not supported", datamodel.ErrInvalidValue),
			}
		}
		v, err = sr.GetAttributeSelective(ctx, ref.Attribute, *sel)
	} else {
		v, err = obj.GetAttribute(ctx, ref.Attribute)
	}
	if err != nil {
		s.logResult("get", ref, err)
		return nil, err
	}
	return axdr.Encode(v)
}

// Set decodes data and writes it to an attribute. Malformed data is
// rejected before the object is touched.
func (s *Service) Set(ctx context.Context, ref datamodel.AttributeRef, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	v, err := axdr.DecodeAll(data)
	if err != nil {
		return err
	}
	if err := s.authorize(ctx, ref.Class, ref.LogicalName, uint8(ref.Attribute), false, acl.PrivilegeManage); err != nil {
		return err
	}
	obj, err := s.object(ref.Class, ref.LogicalName)
	if err != nil {
		return err
	}
	if err := obj.SetAttribute(ctx, ref.Attribute, v); err != nil {
		s.logResult("set", ref, err)
		return err
	}
	s.registry.NotifyChanged(ref)
	return nil
}

// Action decodes param and invokes a method. An empty param means
// null-data. The result is A-XDR encoded, or nil when the method returns
// null-data.
//
// A successful action is reported to the change listener with attribute
// index 0, meaning any attribute of the object may have changed.
func (s *Service) Action(ctx context.Context, ref datamodel.MethodRef, param []byte) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	v := cosem.Null()
	if len(param) > 0 {
		var err error
		if v, err = axdr.DecodeAll(param); err != nil {
			return nil, err
		}
	}
	if err := s.authorize(ctx, ref.Class, ref.LogicalName, uint8(ref.Method), true, acl.PrivilegeOperate); err != nil {
		return nil, err
	}
	obj, err := s.object(ref.Class, ref.LogicalName)
	if err != nil {
		return nil, err
	}
	out, err := obj.InvokeMethod(ctx, ref.Method, v)
	if err != nil {
		s.logResult("action", ref, err)
		return nil, err
	}
	s.registry.NotifyChanged(datamodel.AttributeRef{Class: ref.Class, LogicalName: ref.LogicalName})
	if out.IsNull() {
		return nil, nil
	}
	return axdr.Encode(out)
}

// Describe returns the A-XDR encoding of an object's full attribute list.
func (s *Service) Describe(ctx context.Context, def datamodel.ObjectDefinition) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.authorize(ctx, def.Class, def.LogicalName, 0, false, acl.PrivilegeView); err != nil {
		return nil, err
	}
	obj, err := s.object(def.Class, def.LogicalName)
	if err != nil {
		return nil, err
	}
	v, err := datamodel.Describe(ctx, obj)
	if err != nil {
		return nil, err
	}
	return axdr.Encode(v)
}

// Tick advances every object driven by the clock to now. Every object is
// ticked; failures are returned joined.
func (s *Service) Tick(ctx context.Context, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var errs []error
	for _, obj := range s.registry.Objects() {
		t, ok := obj.(datamodel.Ticker)
		if !ok {
			continue
		}
		if err := t.Tick(ctx, now); err != nil {
			if s.log != nil {
				s.log.Warnf("tick %s %s: %v", obj.ClassID(), obj.LogicalName(), err)
			}
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Encrypt ciphers an APDU with the security context.
func (s *Service) Encrypt(sc security.SecurityControl, apdu []byte) ([]byte, error) {
	if s.security == nil {
		return nil, ErrNoSecurity
	}
	return s.security.Encrypt(sc, apdu)
}

// Decrypt deciphers a frame with the security context. Any failure must
// end the association.
func (s *Service) Decrypt(frame []byte) ([]byte, error) {
	if s.security == nil {
		return nil, ErrNoSecurity
	}
	return s.security.Decrypt(frame)
}

// Save captures the device state into the storage.
func (s *Service) Save() error {
	if s.storage == nil {
		return errors.New("service: no storage")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := store.Capture(s.registry)
	if err != nil {
		return err
	}
	if s.security != nil {
		next := s.security.Counter().Next()
		snap.InvocationCounter = &next
		if last, ok := s.security.Received().Last(); ok {
			snap.LastReceived = &last
		}
	}
	if err := s.storage.Save(snap); err != nil {
		return err
	}
	if s.log != nil {
		s.log.Infof("saved snapshot %s with %d objects", snap.ID, len(snap.Objects))
	}
	return nil
}

// Restore loads the stored snapshot into the objects and the replay state
// of the security context. It returns the stored invocation counter, if
// any, which the host passes to the security context it builds next. A
// missing snapshot is not an error.
func (s *Service) Restore() (counter uint32, ok bool, err error) {
	if s.storage == nil {
		return 0, false, errors.New("service: no storage")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	snap, err := s.storage.Load()
	if err != nil || snap == nil {
		return 0, false, err
	}
	if err := store.Apply(s.registry, snap); err != nil {
		return 0, false, err
	}
	if s.security != nil && snap.LastReceived != nil {
		s.security.Received().Restore(*snap.LastReceived)
	}
	if s.log != nil {
		s.log.Infof("restored snapshot %s saved at %s", snap.ID, snap.SavedAt.Format(time.RFC3339))
	}
	if snap.InvocationCounter == nil {
		return 0, false, nil
	}
	return *snap.InvocationCounter, true, nil
}

func (s *Service) logResult(op string, ref fmt.Stringer, err error) {
	if s.log != nil {
		s.log.Debugf("%s %s: %s (%v)", op, ref, datamodel.ResultFor(err), err)
	}
}
