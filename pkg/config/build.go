package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/pion/logging"
	"github.com/spf13/cast"

	"github.com/backkem/cosem/pkg/acl"
	"github.com/backkem/cosem/pkg/classes/clock"
	"github.com/backkem/cosem/pkg/classes/data"
	"github.com/backkem/cosem/pkg/classes/demandregister"
	"github.com/backkem/cosem/pkg/classes/extendedregister"
	"github.com/backkem/cosem/pkg/classes/profilegeneric"
	"github.com/backkem/cosem/pkg/classes/register"
	"github.com/backkem/cosem/pkg/classes/registeractivation"
	"github.com/backkem/cosem/pkg/classes/schedule"
	"github.com/backkem/cosem/pkg/classes/scripttable"
	"github.com/backkem/cosem/pkg/classes/specialdays"
	"github.com/backkem/cosem/pkg/cosem"
	"github.com/backkem/cosem/pkg/datamodel"
	"github.com/backkem/cosem/pkg/obis"
	"github.com/backkem/cosem/pkg/security"
)

// Options supply what a model file cannot hold.
type Options struct {
	// TimeSource is the host clock. Defaults to the system clock.
	TimeSource datamodel.TimeSource

	// InvocationCounter overrides the model's counter, typically with a
	// value restored from storage.
	InvocationCounter *uint32

	// PersistCounter is passed to the security context.
	PersistCounter func(next uint32) error

	// LoggerFactory is the factory for creating loggers.
	// Optional: if nil, logging is disabled.
	LoggerFactory logging.LoggerFactory
}

// Device is a built logical device.
type Device struct {
	Name     string
	Registry *datamodel.Registry
	Clock    *clock.Clock

	// Security is nil when the model has no security section.
	Security *security.Context

	// Access is nil when the model has no access list.
	Access *acl.Checker
}

var classNames = map[string]datamodel.ClassID{
	"data":                datamodel.ClassData,
	"register":            datamodel.ClassRegister,
	"extended-register":   datamodel.ClassExtendedRegister,
	"demand-register":     datamodel.ClassDemandRegister,
	"register-activation": datamodel.ClassRegisterActivation,
	"profile-generic":     datamodel.ClassProfileGeneric,
	"clock":               datamodel.ClassClock,
	"script-table":        datamodel.ClassScriptTable,
	"schedule":            datamodel.ClassSchedule,
	"special-days-table":  datamodel.ClassSpecialDaysTable,
}

// ParseClass resolves a class by name ("register", "profile-generic") or
// by numeric id.
func ParseClass(s string) (datamodel.ClassID, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if c, ok := classNames[s]; ok {
		return c, nil
	}
	n, err := cast.ToUint16E(decimal(s))
	if err != nil {
		return 0, fmt.Errorf("%w: unknown class %q", ErrInvalid, s)
	}
	for _, c := range classNames {
		if uint16(c) == n {
			return c, nil
		}
	}
	return 0, fmt.Errorf("%w: unsupported class %d", ErrInvalid, n)
}

type builder struct {
	opts  Options
	reg   *datamodel.Registry
	clock *clock.Clock
	days  *specialdays.Table
	log   logging.LeveledLogger
}

// Build creates the objects of m and its security context.
//
// The clock is always created, at its default logical name unless the
// model overrides it, and stamps the objects that record times. Schedules
// are built last so they can see the special days table.
func Build(m *Model, opts Options) (*Device, error) {
	if opts.TimeSource == nil {
		opts.TimeSource = datamodel.SystemTime{}
	}
	b := &builder{opts: opts, reg: datamodel.NewRegistry()}
	if opts.LoggerFactory != nil {
		b.log = opts.LoggerFactory.NewLogger("config")
	}

	if err := b.buildClock(m.Clock); err != nil {
		return nil, err
	}
	var schedules []*ObjectModel
	for i := range m.Objects {
		o := &m.Objects[i]
		class, err := ParseClass(o.Class)
		if err != nil {
			return nil, fmt.Errorf("objects[%d]: %w", i, err)
		}
		if class == datamodel.ClassSchedule {
			schedules = append(schedules, o)
			continue
		}
		if err := b.add(class, o); err != nil {
			return nil, fmt.Errorf("objects[%d] %s: %w", i, o.Name, err)
		}
	}
	for _, o := range schedules {
		if err := b.add(datamodel.ClassSchedule, o); err != nil {
			return nil, fmt.Errorf("schedule %s: %w", o.Name, err)
		}
	}

	d := &Device{Name: m.Name, Registry: b.reg, Clock: b.clock}
	if m.Security != nil {
		sec, err := b.buildSecurity(m.Security)
		if err != nil {
			return nil, err
		}
		d.Security = sec
	}
	if len(m.Access) > 0 {
		access, err := buildAccess(m.Access)
		if err != nil {
			return nil, err
		}
		d.Access = access
	}
	if b.log != nil {
		b.log.Infof("device %q: %d objects, security %t", m.Name, b.reg.Len(), d.Security != nil)
	}
	return d, nil
}

var (
	privileges = map[string]acl.Privilege{
		"view":    acl.PrivilegeView,
		"operate": acl.PrivilegeOperate,
		"manage":  acl.PrivilegeManage,
	}
	authModes = map[string]acl.AuthMode{
		"public": acl.AuthModePublic,
		"hls":    acl.AuthModeHLS,
	}
)

func buildAccess(models []AccessModel) (*acl.Checker, error) {
	entries := make([]acl.Entry, len(models))
	for i, am := range models {
		e := acl.Entry{
			Privilege: privileges[am.Privilege],
			AuthMode:  authModes[am.Auth],
			Clients:   am.Clients,
		}
		for _, tm := range am.Targets {
			var t acl.Target
			if tm.Class != "" {
				class, err := ParseClass(tm.Class)
				if err != nil {
					return nil, fmt.Errorf("access[%d]: %w", i, err)
				}
				t.Class = &class
			}
			if tm.Name != "" {
				ln, err := obis.Parse(tm.Name)
				if err != nil {
					return nil, fmt.Errorf("access[%d]: %w", i, err)
				}
				t.LogicalName = &ln
			}
			e.Targets = append(e.Targets, t)
		}
		entries[i] = e
	}
	c, err := acl.NewChecker(entries...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	return c, nil
}

func (b *builder) buildClock(cm *ClockModel) error {
	cfg := clock.Config{TimeSource: b.opts.TimeSource}
	if cm != nil {
		var err error
		if cfg.LogicalName, err = optionalName(cm.Name); err != nil {
			return err
		}
		cfg.TimeZone = cm.TimeZone
		cfg.DSTEnabled = cm.DSTEnabled
		cfg.DSTDeviation = cm.DSTDeviation
		cfg.ClockBase = clock.TimeBase(cm.ClockBase)
		if cm.DSTBegin != "" {
			if cfg.DSTBegin, err = ParseDateTime(cm.DSTBegin); err != nil {
				return fmt.Errorf("clock dst_begin: %w", err)
			}
		}
		if cm.DSTEnd != "" {
			if cfg.DSTEnd, err = ParseDateTime(cm.DSTEnd); err != nil {
				return fmt.Errorf("clock dst_end: %w", err)
			}
		}
		if cfg.MeasuringPeriod, err = duration(cm.MeasuringPeriod); err != nil {
			return fmt.Errorf("clock measuring_period: %w", err)
		}
	}
	c, err := clock.New(cfg)
	if err != nil {
		return err
	}
	b.clock = c
	return b.reg.Add(c)
}

func (b *builder) add(class datamodel.ClassID, o *ObjectModel) error {
	name, err := optionalName(o.Name)
	if err != nil {
		return err
	}
	if name == (obis.Code{}) && class != datamodel.ClassSchedule && class != datamodel.ClassSpecialDaysTable {
		return fmt.Errorf("%w: name required for %s", ErrInvalid, class)
	}
	var obj datamodel.Object
	switch class {
	case datamodel.ClassData:
		obj, err = b.data(name, o)
	case datamodel.ClassRegister:
		obj, err = b.register(name, o)
	case datamodel.ClassExtendedRegister:
		obj, err = b.extendedRegister(name, o)
	case datamodel.ClassDemandRegister:
		obj, err = b.demandRegister(name, o)
	case datamodel.ClassRegisterActivation:
		obj, err = b.registerActivation(name, o)
	case datamodel.ClassProfileGeneric:
		obj, err = b.profileGeneric(name, o)
	case datamodel.ClassScriptTable:
		obj, err = b.scriptTable(name, o)
	case datamodel.ClassSchedule:
		obj, err = b.schedule(name, o)
	case datamodel.ClassSpecialDaysTable:
		obj, err = b.specialDays(name, o)
	case datamodel.ClassClock:
		return fmt.Errorf("%w: the clock is configured in the clock section", ErrInvalid)
	}
	if err != nil {
		return err
	}
	return b.reg.Add(obj)
}

func optionalName(s string) (obis.Code, error) {
	if s == "" {
		return obis.Code{}, nil
	}
	return obis.Parse(s)
}

func duration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	return cast.ToDurationE(s)
}

func typedValue(typ string, raw any, fallback cosem.Tag) (cosem.Value, cosem.Tag, error) {
	t := fallback
	if typ != "" {
		var err error
		if t, err = ParseTag(typ); err != nil {
			return cosem.Value{}, 0, err
		}
	}
	v, err := ParseValue(t, raw)
	return v, t, err
}

func (b *builder) data(name obis.Code, o *ObjectModel) (datamodel.Object, error) {
	v, t, err := typedValue(o.Type, o.Value, cosem.TagDontCare)
	if err != nil {
		return nil, err
	}
	return data.New(data.Config{LogicalName: name, Value: v, Type: t, ReadOnly: o.ReadOnly}), nil
}

func scalerUnit(o *ObjectModel) cosem.ScalerUnit {
	return cosem.ScalerUnit{Scaler: o.Scaler, Unit: cosem.Unit(o.Unit)}
}

func (b *builder) register(name obis.Code, o *ObjectModel) (datamodel.Object, error) {
	v, _, err := typedValue(o.Type, o.Value, cosem.TagDoubleLongUnsigned)
	if err != nil {
		return nil, err
	}
	return register.New(register.Config{LogicalName: name, Value: v, ScalerUnit: scalerUnit(o)})
}

func (b *builder) extendedRegister(name obis.Code, o *ObjectModel) (datamodel.Object, error) {
	v, _, err := typedValue(o.Type, o.Value, cosem.TagDoubleLongUnsigned)
	if err != nil {
		return nil, err
	}
	status := cosem.Null()
	if o.StatusType != "" {
		if status, _, err = typedValue(o.StatusType, o.Status, 0); err != nil {
			return nil, fmt.Errorf("status: %w", err)
		}
	}
	return extendedregister.New(extendedregister.Config{
		LogicalName: name,
		Value:       v,
		ScalerUnit:  scalerUnit(o),
		Status:      status,
		TimeSource:  b.clock,
	})
}

func (b *builder) demandRegister(name obis.Code, o *ObjectModel) (datamodel.Object, error) {
	t := cosem.TagDoubleLongUnsigned
	if o.Type != "" {
		var err error
		if t, err = ParseTag(o.Type); err != nil {
			return nil, err
		}
	}
	period, err := duration(o.Period)
	if err != nil {
		return nil, fmt.Errorf("period: %w", err)
	}
	return demandregister.New(demandregister.Config{
		LogicalName:     name,
		Type:            t,
		ScalerUnit:      scalerUnit(o),
		Period:          period,
		NumberOfPeriods: o.NumberOfPeriods,
		TimeSource:      b.clock,
	})
}

func objectRef(class, name string) (datamodel.ClassID, obis.Code, error) {
	c, err := ParseClass(class)
	if err != nil {
		return 0, obis.Code{}, err
	}
	ln, err := obis.Parse(name)
	if err != nil {
		return 0, obis.Code{}, err
	}
	return c, ln, nil
}

func (b *builder) registerActivation(name obis.Code, o *ObjectModel) (datamodel.Object, error) {
	cfg := registeractivation.Config{LogicalName: name}
	for _, r := range o.Registers {
		c, ln, err := objectRef(r.Class, r.Name)
		if err != nil {
			return nil, err
		}
		cfg.Registers = append(cfg.Registers, datamodel.ObjectDefinition{Class: c, LogicalName: ln})
	}
	for _, mm := range o.Masks {
		n, err := parseHex(mm.Name)
		if err != nil {
			return nil, fmt.Errorf("%w: mask name %q", ErrInvalid, mm.Name)
		}
		cfg.Masks = append(cfg.Masks, registeractivation.Mask{Name: n, Indices: mm.Indices})
	}
	if o.ActiveMask != "" {
		n, err := parseHex(o.ActiveMask)
		if err != nil {
			return nil, fmt.Errorf("%w: active mask %q", ErrInvalid, o.ActiveMask)
		}
		cfg.ActiveMask = n
	}
	return registeractivation.New(cfg)
}

func captureObject(cm CaptureModel) (datamodel.CaptureObject, error) {
	c, ln, err := objectRef(cm.Class, cm.Name)
	if err != nil {
		return datamodel.CaptureObject{}, err
	}
	return datamodel.CaptureObject{Class: c, LogicalName: ln, Attribute: cm.Attribute, DataIndex: cm.DataIndex}, nil
}

func (b *builder) profileGeneric(name obis.Code, o *ObjectModel) (datamodel.Object, error) {
	period, err := duration(o.CapturePeriod)
	if err != nil {
		return nil, fmt.Errorf("capture_period: %w", err)
	}
	cfg := profilegeneric.Config{
		LogicalName:    name,
		CapturePeriod:  period,
		SortMethod:     profilegeneric.SortMethod(o.SortMethod),
		ProfileEntries: o.ProfileEntries,
		Resolver:       b.reg,
		TimeSource:     b.clock,
		LoggerFactory:  b.opts.LoggerFactory,
	}
	for _, cm := range o.CaptureObjects {
		co, err := captureObject(cm)
		if err != nil {
			return nil, err
		}
		cfg.CaptureObjects = append(cfg.CaptureObjects, co)
	}
	if o.SortObject != nil {
		if cfg.SortObject, err = captureObject(*o.SortObject); err != nil {
			return nil, err
		}
	}
	return profilegeneric.New(cfg)
}

func (b *builder) scriptTable(name obis.Code, o *ObjectModel) (datamodel.Object, error) {
	cfg := scripttable.Config{
		LogicalName:   name,
		Resolver:      b.reg,
		OnChange:      b.reg.NotifyChanged,
		LoggerFactory: b.opts.LoggerFactory,
	}
	for _, sm := range o.Scripts {
		s := scripttable.Script{ID: sm.ID}
		for _, am := range sm.Actions {
			c, ln, err := objectRef(am.Class, am.Name)
			if err != nil {
				return nil, err
			}
			a := scripttable.Action{Service: scripttable.ServiceWriteAttribute, Class: c, LogicalName: ln, Index: am.Index}
			if am.Service == "execute" {
				a.Service = scripttable.ServiceExecuteMethod
			}
			if a.Parameter, _, err = typedValue(am.Type, am.Value, cosem.TagDontCare); err != nil {
				return nil, fmt.Errorf("script %d: %w", sm.ID, err)
			}
			s.Actions = append(s.Actions, a)
		}
		cfg.Scripts = append(cfg.Scripts, s)
	}
	return scripttable.New(cfg)
}

func (b *builder) specialDays(name obis.Code, o *ObjectModel) (datamodel.Object, error) {
	cfg := specialdays.Config{LogicalName: name}
	for _, em := range o.Entries {
		d, err := ParseDate(em.Date)
		if err != nil {
			return nil, err
		}
		cfg.Entries = append(cfg.Entries, specialdays.Entry{Index: em.Index, Date: d, DayID: em.DayID})
	}
	t, err := specialdays.New(cfg)
	if err != nil {
		return nil, err
	}
	if b.days == nil {
		b.days = t
	}
	return t, nil
}

var weekdayNames = map[string]time.Weekday{
	"mon": time.Monday, "tue": time.Tuesday, "wed": time.Wednesday, "thu": time.Thursday,
	"fri": time.Friday, "sat": time.Saturday, "sun": time.Sunday,
}

func (b *builder) schedule(name obis.Code, o *ObjectModel) (datamodel.Object, error) {
	cfg := schedule.Config{
		LogicalName:   name,
		Resolver:      b.reg,
		Zone:          b.clock,
		LoggerFactory: b.opts.LoggerFactory,
	}
	if b.days != nil {
		cfg.SpecialDays = b.days
	}
	for _, em := range o.Entries {
		e, err := scheduleEntry(em)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", em.Index, err)
		}
		cfg.Entries = append(cfg.Entries, e)
	}
	return schedule.New(cfg)
}

func scheduleEntry(em EntryModel) (schedule.Entry, error) {
	script := obis.TariffScripts
	if em.Script != "" {
		var err error
		if script, err = obis.Parse(em.Script); err != nil {
			return schedule.Entry{}, err
		}
	}
	switchTime, err := ParseTime(em.SwitchTime)
	if err != nil {
		return schedule.Entry{}, err
	}
	e := schedule.Entry{
		Index:          em.Index,
		Enabled:        !em.Disabled,
		Script:         script,
		ScriptSelector: em.Selector,
		SwitchTime:     switchTime,
		ValidityWindow: schedule.ValidityUnlimited,
		BeginDate:      cosem.AnyDate(),
		EndDate:        cosem.AnyDate(),
	}
	if em.ValidityWindow != nil {
		e.ValidityWindow = *em.ValidityWindow
	}
	names := em.Weekdays
	if len(names) == 0 {
		names = []string{"*"}
	}
	days := make([]time.Weekday, 0, 7)
	for _, w := range names {
		if w == "*" {
			days = append(days, time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday, time.Saturday, time.Sunday)
			continue
		}
		d, ok := weekdayNames[strings.ToLower(w)]
		if !ok {
			return schedule.Entry{}, fmt.Errorf("%w: weekday %q", ErrInvalid, w)
		}
		days = append(days, d)
	}
	e.Weekdays = schedule.WeekdayMask(days...)
	if len(em.SpecialDays) > 0 {
		bits := make([]bool, 8*((int(maxOf(em.SpecialDays))/8)+1))
		for _, n := range em.SpecialDays {
			bits[n] = true
		}
		e.SpecialDays = cosem.NewBitString(bits...)
	}
	if em.Begin != "" {
		if e.BeginDate, err = ParseDate(em.Begin); err != nil {
			return schedule.Entry{}, err
		}
	}
	if em.End != "" {
		if e.EndDate, err = ParseDate(em.End); err != nil {
			return schedule.Entry{}, err
		}
	}
	return e, nil
}

func maxOf(s []uint8) uint8 {
	var m uint8
	for _, n := range s {
		m = max(m, n)
	}
	return m
}

func (b *builder) buildSecurity(sm *SecurityModel) (*security.Context, error) {
	title, _ := parseHex(sm.SystemTitle)
	peer, _ := parseHex(sm.PeerSystemTitle)
	ek, _ := parseHex(sm.BlockCipherKey)
	ak, _ := parseHex(sm.AuthenticationKey)
	secret, _ := parseHex(sm.HLSSecret)
	if sm.MasterKey != "" {
		if len(ek) > 0 || len(ak) > 0 {
			return nil, fmt.Errorf("%w: security: master_key excludes explicit keys", ErrInvalid)
		}
		master, _ := parseHex(sm.MasterKey)
		keys, err := security.DeriveKeys(master, title)
		if err != nil {
			return nil, fmt.Errorf("security: %w", err)
		}
		ek, ak = keys.BlockCipherKey, keys.AuthenticationKey
	}
	cfg := security.Config{
		SystemTitle:       title,
		BlockCipherKey:    ek,
		AuthenticationKey: ak,
		InvocationCounter: sm.InvocationCounter,
		PersistCounter:    b.opts.PersistCounter,
		LoggerFactory:     b.opts.LoggerFactory,
	}
	if len(peer) > 0 {
		cfg.PeerSystemTitle = peer
	}
	if len(secret) > 0 {
		cfg.HLSSecret = secret
	}
	if sm.RequiredControl == "auth" {
		cfg.RequiredControl = security.Authentication
	}
	if b.opts.InvocationCounter != nil {
		cfg.InvocationCounter = *b.opts.InvocationCounter
	}
	sec, err := security.New(cfg)
	if err != nil {
		return nil, fmt.Errorf("security: %w", err)
	}
	return sec, nil
}
