// Package config loads a logical device from a YAML device model.
//
// A model lists the objects of the device, its clock settings and its
// security material. Build turns it into a populated registry and a
// security context:
//
//	security:
//	  system_title: 4D4D4D0000BC614E
//	  block_cipher_key: 000102030405060708090A0B0C0D0E0F
//	  authentication_key: D0D1D2D3D4D5D6D7D8D9DADBDCDDDEDF
//	objects:
//	  - class: register
//	    name: 1-0:1.8.0.255
//	    type: double-long-unsigned
//	    value: 0
//	    unit: 30
//	    scaler: -3
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"

	"gopkg.in/validator.v2"
	"gopkg.in/yaml.v3"

	"github.com/backkem/cosem/pkg/obis"
)

// ErrInvalid is the base error for every model validation failure.
var ErrInvalid = errors.New("config: invalid device model")

// Model is the root of a device model file.
type Model struct {
	// Name labels the device in logs.
	Name string `yaml:"name"`

	Clock    *ClockModel    `yaml:"clock"`
	Security *SecurityModel `yaml:"security"`
	Objects  []ObjectModel  `yaml:"objects" validate:"nonzero"`

	// Access lists what each client may do. Without it only the access
	// modes of the objects apply.
	Access []AccessModel `yaml:"access"`
}

// AccessModel is one access list entry.
type AccessModel struct {
	Privilege string        `yaml:"privilege" validate:"regexp=^(view|operate|manage)$"`
	Auth      string        `yaml:"auth" validate:"regexp=^(public|hls)$"`
	Clients   []uint16      `yaml:"clients"`
	Targets   []TargetModel `yaml:"targets"`
}

// TargetModel selects objects by class, logical name or both.
type TargetModel struct {
	Class string `yaml:"class"`
	Name  string `yaml:"name" validate:"obis"`
}

// ClockModel configures the clock object, which every device carries.
type ClockModel struct {
	Name         string `yaml:"name" validate:"obis"`
	TimeZone     int16  `yaml:"time_zone" validate:"min=-720,max=840"`
	DSTEnabled   bool   `yaml:"dst_enabled"`
	DSTDeviation int8   `yaml:"dst_deviation" validate:"min=-120,max=120"`
	DSTBegin     string `yaml:"dst_begin"`
	DSTEnd       string `yaml:"dst_end"`
	ClockBase    uint8  `yaml:"clock_base" validate:"max=5"`

	// MeasuringPeriod is a Go duration such as "15m".
	MeasuringPeriod string `yaml:"measuring_period"`
}

// SecurityModel holds security suite 0 material as hex strings.
type SecurityModel struct {
	SystemTitle     string `yaml:"system_title" validate:"nonzero,hex"`
	PeerSystemTitle string `yaml:"peer_system_title" validate:"hex"`

	// Keys are either given directly or derived from a master key.
	BlockCipherKey    string `yaml:"block_cipher_key" validate:"hex"`
	AuthenticationKey string `yaml:"authentication_key" validate:"hex"`
	MasterKey         string `yaml:"master_key" validate:"hex"`
	HLSSecret         string `yaml:"hls_secret" validate:"hex"`

	InvocationCounter uint32 `yaml:"invocation_counter"`

	// RequiredControl is what received frames must carry: "auth" or
	// "auth-enc". Defaults to "auth-enc".
	RequiredControl string `yaml:"required_control" validate:"regexp=^(auth|auth-enc)?$"`
}

// ObjectModel describes one object. Which fields apply depends on Class.
type ObjectModel struct {
	// Class is a class name such as "register" or a class id.
	Class string `yaml:"class" validate:"nonzero"`
	Name  string `yaml:"name" validate:"obis"`

	// Data, Register and Extended Register.
	Type     string `yaml:"type"`
	Value    any    `yaml:"value"`
	ReadOnly bool   `yaml:"read_only"`
	Scaler   int8   `yaml:"scaler"`
	Unit     uint8  `yaml:"unit"`

	// Extended Register.
	StatusType string `yaml:"status_type"`
	Status     any    `yaml:"status"`

	// Demand Register period as a Go duration, and sliding window length.
	Period          string `yaml:"period"`
	NumberOfPeriods uint16 `yaml:"number_of_periods"`

	// Register Activation.
	Registers  []ObjectRefModel `yaml:"registers"`
	Masks      []MaskModel      `yaml:"masks"`
	ActiveMask string           `yaml:"active_mask"`

	// Profile Generic.
	CaptureObjects []CaptureModel `yaml:"capture_objects"`
	CapturePeriod  string         `yaml:"capture_period"`
	SortMethod     uint8          `yaml:"sort_method" validate:"max=6"`
	SortObject     *CaptureModel  `yaml:"sort_object"`
	ProfileEntries uint32         `yaml:"profile_entries"`

	// Script Table.
	Scripts []ScriptModel `yaml:"scripts"`

	// Schedule and Special Days Table.
	Entries []EntryModel `yaml:"entries"`
}

// ObjectRefModel names an object.
type ObjectRefModel struct {
	Class string `yaml:"class" validate:"nonzero"`
	Name  string `yaml:"name" validate:"nonzero,obis"`
}

// CaptureModel is a capture object definition.
type CaptureModel struct {
	Class     string `yaml:"class" validate:"nonzero"`
	Name      string `yaml:"name" validate:"nonzero,obis"`
	Attribute int8   `yaml:"attribute" validate:"min=1"`
	DataIndex uint16 `yaml:"data_index"`
}

// MaskModel is a register activation mask.
type MaskModel struct {
	// Name is hex.
	Name    string  `yaml:"name" validate:"nonzero,hex"`
	Indices []uint8 `yaml:"indices"`
}

// ScriptModel is one script of a Script Table.
type ScriptModel struct {
	ID      uint16        `yaml:"id" validate:"min=1"`
	Actions []ActionModel `yaml:"actions"`
}

// ActionModel is one action of a script.
type ActionModel struct {
	// Service is "write" or "execute".
	Service string `yaml:"service" validate:"regexp=^(write|execute)$"`
	Class   string `yaml:"class" validate:"nonzero"`
	Name    string `yaml:"name" validate:"nonzero,obis"`
	Index   int8   `yaml:"index" validate:"min=1"`
	Type    string `yaml:"type"`
	Value   any    `yaml:"value"`
}

// EntryModel is a Schedule or Special Days Table entry.
type EntryModel struct {
	Index uint16 `yaml:"index"`

	// Special Days Table.
	Date  string `yaml:"date"`
	DayID uint8  `yaml:"day_id"`

	// Schedule.
	Disabled       bool     `yaml:"disabled"`
	Script         string   `yaml:"script" validate:"obis"`
	Selector       uint16   `yaml:"selector"`
	SwitchTime     string   `yaml:"switch_time"`
	ValidityWindow *uint16  `yaml:"validity_window"`
	Weekdays       []string `yaml:"weekdays"`
	SpecialDays    []uint8  `yaml:"special_days"`
	Begin          string   `yaml:"begin"`
	End            string   `yaml:"end"`
}

var validate = validator.NewValidator()

func init() {
	if err := validate.SetValidationFunc("obis", validateOBIS); err != nil {
		panic(err)
	}
	if err := validate.SetValidationFunc("hex", validateHex); err != nil {
		panic(err)
	}
}

func validateOBIS(v any, _ string) error {
	s, ok := v.(string)
	if !ok {
		return validator.ErrUnsupported
	}
	if s == "" {
		return nil
	}
	if _, err := obis.Parse(s); err != nil {
		return err
	}
	return nil
}

func validateHex(v any, _ string) error {
	s, ok := v.(string)
	if !ok {
		return validator.ErrUnsupported
	}
	if _, err := parseHex(s); err != nil {
		return errors.New("not hex")
	}
	return nil
}

// Parse decodes and validates a YAML device model.
func Parse(data []byte) (*Model, error) {
	var m Model
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// Load reads and validates a device model file.
func Load(path string) (*Model, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	m, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, nil
}

// Validate checks field constraints. Cross-field checks happen in Build.
func (m *Model) Validate() error {
	if err := validate.Validate(m); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	for p, v := range map[string]any{"clock": m.Clock, "security": m.Security} {
		if reflect.ValueOf(v).IsNil() {
			continue
		}
		if err := validate.Validate(v); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, p, err)
		}
	}
	for i := range m.Objects {
		if err := validateAll(fmt.Sprintf("objects[%d]", i), &m.Objects[i]); err != nil {
			return err
		}
	}
	for i := range m.Access {
		a := &m.Access[i]
		if err := validate.Validate(a); err != nil {
			return fmt.Errorf("%w: access[%d]: %v", ErrInvalid, i, err)
		}
		for j := range a.Targets {
			if err := validate.Validate(&a.Targets[j]); err != nil {
				return fmt.Errorf("%w: access[%d].targets[%d]: %v", ErrInvalid, i, j, err)
			}
		}
	}
	return nil
}

func validateAll(path string, o *ObjectModel) error {
	check := func(p string, v any) error {
		if reflect.ValueOf(v).IsNil() {
			return nil
		}
		if err := validate.Validate(v); err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalid, p, err)
		}
		return nil
	}
	if err := check(path, o); err != nil {
		return err
	}
	for i := range o.Registers {
		if err := check(fmt.Sprintf("%s.registers[%d]", path, i), &o.Registers[i]); err != nil {
			return err
		}
	}
	for i := range o.Masks {
		if err := check(fmt.Sprintf("%s.masks[%d]", path, i), &o.Masks[i]); err != nil {
			return err
		}
	}
	for i := range o.CaptureObjects {
		if err := check(fmt.Sprintf("%s.capture_objects[%d]", path, i), &o.CaptureObjects[i]); err != nil {
			return err
		}
	}
	if err := check(path+".sort_object", o.SortObject); err != nil {
		return err
	}
	for i := range o.Scripts {
		s := &o.Scripts[i]
		if err := check(fmt.Sprintf("%s.scripts[%d]", path, i), s); err != nil {
			return err
		}
		for j := range s.Actions {
			if err := check(fmt.Sprintf("%s.scripts[%d].actions[%d]", path, i, j), &s.Actions[j]); err != nil {
				return err
			}
		}
	}
	for i := range o.Entries {
		if err := check(fmt.Sprintf("%s.entries[%d]", path, i), &o.Entries[i]); err != nil {
			return err
		}
	}
	return nil
}
