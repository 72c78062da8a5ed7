package cosem

import (
	"fmt"
	"math"
)

// Unit is the physical unit enumeration used in scaler_unit attributes.
type Unit uint8

const (
	UnitYear           Unit = 1
	UnitMonth          Unit = 2
	UnitWeek           Unit = 3
	UnitDay            Unit = 4
	UnitHour           Unit = 5
	UnitMinute         Unit = 6
	UnitSecond         Unit = 7
	UnitDegree         Unit = 8
	UnitCelsius        Unit = 9
	UnitCurrency       Unit = 10
	UnitMetre          Unit = 11
	UnitMetrePerSecond Unit = 12
	UnitCubicMetre     Unit = 13
	UnitCubicMetreCorr Unit = 14
	UnitCubicMetreHour Unit = 15
	UnitLitre          Unit = 19
	UnitKilogram       Unit = 20
	UnitNewton         Unit = 21
	UnitPascal         Unit = 23
	UnitBar            Unit = 24
	UnitJoule          Unit = 25
	UnitJoulePerHour   Unit = 26
	UnitWatt           Unit = 27
	UnitVoltAmpere     Unit = 28
	UnitVar            Unit = 29
	UnitWattHour       Unit = 30
	UnitVoltAmpereHour Unit = 31
	UnitVarHour        Unit = 32
	UnitAmpere         Unit = 33
	UnitCoulomb        Unit = 34
	UnitVolt           Unit = 35
	UnitVoltPerMetre   Unit = 36
	UnitFarad          Unit = 37
	UnitOhm            Unit = 38
	UnitHertz          Unit = 44
	UnitPercent        Unit = 56
	UnitAmpereHour     Unit = 57
	UnitOther          Unit = 254
	UnitCount          Unit = 255
)

var unitSymbols = map[Unit]string{
	UnitYear:           "a",
	UnitMonth:          "mo",
	UnitWeek:           "wk",
	UnitDay:            "d",
	UnitHour:           "h",
	UnitMinute:         "min",
	UnitSecond:         "s",
	UnitDegree:         "°",
	UnitCelsius:        "°C",
	UnitCurrency:       "currency",
	UnitMetre:          "m",
	UnitMetrePerSecond: "m/s",
	UnitCubicMetre:     "m³",
	UnitCubicMetreCorr: "m³(corr)",
	UnitCubicMetreHour: "m³/h",
	UnitLitre:          "l",
	UnitKilogram:       "kg",
	UnitNewton:         "N",
	UnitPascal:         "Pa",
	UnitBar:            "bar",
	UnitJoule:          "J",
	UnitJoulePerHour:   "J/h",
	UnitWatt:           "W",
	UnitVoltAmpere:     "VA",
	UnitVar:            "var",
	UnitWattHour:       "Wh",
	UnitVoltAmpereHour: "VAh",
	UnitVarHour:        "varh",
	UnitAmpere:         "A",
	UnitCoulomb:        "C",
	UnitVolt:           "V",
	UnitVoltPerMetre:   "V/m",
	UnitFarad:          "F",
	UnitOhm:            "Ω",
	UnitHertz:          "Hz",
	UnitPercent:        "%",
	UnitAmpereHour:     "Ah",
	UnitOther:          "other",
	UnitCount:          "count",
}

// String returns the unit symbol.
func (u Unit) String() string {
	if s, ok := unitSymbols[u]; ok {
		return s
	}
	return fmt.Sprintf("unit(%d)", uint8(u))
}

// ScalerUnit is the structure {scaler: integer, unit: enum} attached to
// registers. The physical value is raw * 10^Scaler.
type ScalerUnit struct {
	Scaler int8
	Unit   Unit
}

// Value returns the structure encoding of s.
func (s ScalerUnit) Value() Value {
	return Structure(Integer(s.Scaler), Enum(uint8(s.Unit)))
}

// Apply scales a raw register value.
func (s ScalerUnit) Apply(raw float64) float64 {
	return raw * math.Pow10(int(s.Scaler))
}

// String renders s as e.g. "10^-2 Wh".
func (s ScalerUnit) String() string {
	return fmt.Sprintf("10^%d %s", s.Scaler, s.Unit)
}

// ParseScalerUnit reads a scaler_unit structure.
func ParseScalerUnit(v Value) (ScalerUnit, error) {
	e, ok := v.Elements()
	if v.Tag() != TagStructure || !ok || len(e) != 2 || e[0].Tag() != TagInteger || e[1].Tag() != TagEnum {
		return ScalerUnit{}, fmt.Errorf("%w: scaler_unit must be structure{integer, enum}, got %s", ErrKindMismatch, v)
	}
	sc, _ := e[0].Int()
	u, _ := e[1].Uint()
	return ScalerUnit{Scaler: int8(sc), Unit: Unit(u)}, nil
}
