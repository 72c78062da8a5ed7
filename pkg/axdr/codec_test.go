package axdr

import (
	"bytes"
	"encoding/hex"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/backkem/cosem/pkg/cosem"
)

func mustHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(strings.ReplaceAll(s, " ", ""))
	if err != nil {
		t.Fatal(err)
	}
	return b
}

// Encodings from the DLMS Green Book and common meter traces.
func TestEncodeVectors(t *testing.T) {
	tests := []struct {
		name string
		v    cosem.Value
		want string
	}{
		{"null", cosem.Null(), "00"},
		{"boolean true", cosem.Bool(true), "03 01"},
		{"integer -2", cosem.Integer(-2), "0F FE"},
		{"long -1", cosem.Long(-1), "10 FFFF"},
		{"unsigned", cosem.Unsigned(200), "11 C8"},
		{"long-unsigned", cosem.LongUnsigned(0x1234), "12 1234"},
		{"double-long", cosem.DoubleLong(-2), "05 FFFFFFFE"},
		{"double-long-unsigned 12345", cosem.DoubleLongUnsigned(12345), "06 00003039"},
		{"long64", cosem.Long64(1), "14 0000000000000001"},
		{"long64-unsigned", cosem.Long64Unsigned(math.MaxUint64), "15 FFFFFFFFFFFFFFFF"},
		{"enum", cosem.Enum(30), "16 1E"},
		{"float32", cosem.Float32(1.0), "17 3F800000"},
		{"float64", cosem.Float64(-2.5), "18 C004000000000000"},
		{"octet-string logical name", cosem.OctetString([]byte{1, 0, 1, 8, 0, 255}), "09 06 0100010800FF"},
		{"visible-string", cosem.VisibleString("ABC"), "0A 03 414243"},
		{"utf8-string", cosem.UTF8String("ä"), "0C 02 C3A4"},
		{"bit-string", cosem.BitStringValue(cosem.NewBitString(true, false, true, true, false, false, false, false, true)), "04 09 B080"},
		{"empty array", cosem.Array(), "01 00"},
		{"empty structure", cosem.Structure(), "02 00"},
		{"scaler_unit", cosem.Structure(cosem.Integer(-2), cosem.Enum(30)), "02 02 0F FE 16 1E"},
		{
			"date-time",
			cosem.DateTimeValue(cosem.DateTime{
				Date:      cosem.Date{Year: 2024, Month: 1, Day: 15, DayOfWeek: 1},
				Time:      cosem.Time{Hour: 12, Minute: 0, Second: 0, Hundredths: 0xFF},
				Deviation: cosem.DeviationNotSpecified,
				Status:    0,
			}),
			"19 07E8010F01 0C0000FF 8000 00",
		},
		{"date", cosem.DateValue(cosem.AnyDate()), "1A FFFFFFFFFF"},
		{"time", cosem.TimeValue(cosem.Time{Hour: 23, Minute: 59, Second: 59, Hundredths: 99}), "1B 173B3B63"},
		{
			"capture object definition",
			cosem.Structure(
				cosem.LongUnsigned(8),
				cosem.OctetString([]byte{0, 0, 1, 0, 0, 255}),
				cosem.Integer(2),
				cosem.LongUnsigned(0),
			),
			"02 04 12 0008 09 06 0000010000FF 0F 02 12 0000",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			want := mustHex(t, tt.want)
			got, err := Encode(tt.v)
			if err != nil {
				t.Fatalf("Encode() error = %v", err)
			}
			if !bytes.Equal(got, want) {
				t.Fatalf("Encode() = %X, want %X", got, want)
			}
			back, n, err := Decode(got)
			if err != nil {
				t.Fatalf("Decode() error = %v", err)
			}
			if n != len(got) {
				t.Errorf("Decode() consumed %d of %d", n, len(got))
			}
			if !back.Equal(tt.v) {
				t.Errorf("Decode() = %v, want %v", back, tt.v)
			}
		})
	}
}

func TestRegisterValueWithScalerUnit(t *testing.T) {
	value := cosem.DoubleLongUnsigned(12345)
	su := cosem.ScalerUnit{Scaler: -2, Unit: cosem.UnitWattHour}.Value()

	vb := MustEncode(value)
	sb := MustEncode(su)
	if !bytes.Equal(vb, mustHex(t, "06 00003039")) {
		t.Errorf("value = %X", vb)
	}
	if !bytes.Equal(sb, mustHex(t, "02 02 0F FE 16 1E")) {
		t.Errorf("scaler_unit = %X", sb)
	}

	got, err := DecodeAll(sb)
	if err != nil {
		t.Fatal(err)
	}
	parsed, err := cosem.ParseScalerUnit(got)
	if err != nil || parsed.Scaler != -2 || parsed.Unit != cosem.UnitWattHour {
		t.Fatalf("ParseScalerUnit = %+v, %v", parsed, err)
	}
}

func TestLongLengthForm(t *testing.T) {
	payload := bytes.Repeat([]byte{0xAA}, 300)
	enc, err := Encode(cosem.OctetString(payload))
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(enc[:4], []byte{0x09, 0x82, 0x01, 0x2C}) {
		t.Fatalf("header = %X", enc[:4])
	}
	if len(enc) != 4+300 {
		t.Fatalf("len = %d", len(enc))
	}

	short, _ := Encode(cosem.OctetString(payload[:128]))
	if !bytes.Equal(short[:3], []byte{0x09, 0x81, 0x80}) {
		t.Fatalf("128-octet header = %X", short[:3])
	}
	back, err := DecodeAll(enc)
	if err != nil {
		t.Fatal(err)
	}
	if b, _ := back.Bytes(); !bytes.Equal(b, payload) {
		t.Error("payload mismatch")
	}
}

func TestLength(t *testing.T) {
	for _, n := range []int{0, 1, 127, 128, 255, 256, 65535, 65536, 1 << 24} {
		b := AppendLength(nil, n)
		got, used, err := ReadLength(b)
		if err != nil || got != n || used != len(b) {
			t.Errorf("length %d: got %d used %d of %d err %v", n, got, used, len(b), err)
		}
	}
}

func TestDeterministic(t *testing.T) {
	v := cosem.Array(
		cosem.Structure(cosem.LongUnsigned(1), cosem.VisibleString("a")),
		cosem.Structure(cosem.LongUnsigned(2), cosem.VisibleString("b")),
	)
	a := MustEncode(v)
	b := MustEncode(v)
	if !bytes.Equal(a, b) {
		t.Fatal("encoding is not deterministic")
	}
}

func TestDecodeErrors(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want error
	}{
		{"empty", "", ErrUnexpectedEOF},
		{"unknown tag", "07 00", ErrUnknownTag},
		{"reserved tag 13", "0D 01", ErrUnknownTag},
		{"short long", "10 01", ErrUnexpectedEOF},
		{"short date-time", "19 07E8010F01", ErrUnexpectedEOF},
		{"octet-string overrun", "09 05 0102", ErrInvalidLength},
		{"array count overrun", "01 05 00", ErrInvalidLength},
		{"length prefix 0x80", "09 80", ErrInvalidLength},
		{"length prefix too wide", "09 85 0000000001", ErrInvalidLength},
		{"length prefix truncated", "09 82 01", ErrUnexpectedEOF},
		{"truncated element", "02 02 11 01 12 00", ErrUnexpectedEOF},
		{"bit-string overrun", "04 10 FF", ErrInvalidLength},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Decode(mustHex(t, tt.in))
			if !errors.Is(err, tt.want) {
				t.Fatalf("Decode() error = %v, want %v", err, tt.want)
			}
			if !errors.Is(err, ErrMalformedEncoding) {
				t.Errorf("error %v does not wrap ErrMalformedEncoding", err)
			}
		})
	}
}

func TestDecodeDepthLimit(t *testing.T) {
	var b []byte
	for i := 0; i <= MaxDepth; i++ {
		b = append(b, byte(cosem.TagArray), 1)
	}
	b = append(b, 0)
	if _, _, err := Decode(b); !errors.Is(err, ErrTooDeep) {
		t.Fatalf("Decode() error = %v, want ErrTooDeep", err)
	}
}

func TestDecodeAllTrailing(t *testing.T) {
	if _, err := DecodeAll([]byte{0x00, 0x00}); !errors.Is(err, ErrTrailingData) {
		t.Fatalf("DecodeAll error = %v", err)
	}
	v, n, err := Decode([]byte{0x11, 0x05, 0xFF})
	if err != nil || n != 2 || !v.Equal(cosem.Unsigned(5)) {
		t.Fatalf("Decode = %v, %d, %v", v, n, err)
	}
}

func TestEncodeRejectsInvalid(t *testing.T) {
	if _, err := Encode(cosem.VisibleString("a\x00")); !errors.Is(err, cosem.ErrInvalidValue) {
		t.Fatalf("Encode error = %v", err)
	}
}

func TestRoundTripNested(t *testing.T) {
	dt := cosem.NewDateTime(mustTime())
	v := cosem.Array(
		cosem.Structure(
			cosem.DateTimeValue(dt),
			cosem.DoubleLongUnsigned(100),
			cosem.Array(cosem.Bool(false), cosem.Bool(true)),
			cosem.Structure(),
			cosem.Null(),
		),
	)
	got, err := DecodeAll(MustEncode(v))
	if err != nil {
		t.Fatal(err)
	}
	if !got.Equal(v) {
		t.Fatalf("round trip = %v, want %v", got, v)
	}
}
