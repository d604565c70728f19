package softuart

import "fmt"

// Parity selects the frame's parity discipline.
type Parity uint8

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
)

func (p Parity) String() string {
	switch p {
	case ParityNone:
		return "N"
	case ParityOdd:
		return "O"
	case ParityEven:
		return "E"
	default:
		return "?"
	}
}

// Format is the resolved frame shape: data bits, parity, and stop bits,
// plus the two derived bit counts the ISRs walk against.
//
// TotalBits and AlmostTotalBits are the sums spec'd in §4.2:
// TotalBits = DataBits + (Parity != None) + StopBits,
// AlmostTotalBits = TotalBits - StopBits.
type Format struct {
	DataBits        uint8
	Parity          Parity
	StopBits        uint8
	TotalBits       uint8
	AlmostTotalBits uint8
}

func (f Format) resolve() Format {
	f.TotalBits = f.DataBits + f.StopBits
	if f.Parity != ParityNone {
		f.TotalBits++
	}
	f.AlmostTotalBits = f.TotalBits - f.StopBits
	return f
}

func (f Format) String() string {
	return fmt.Sprintf("%d%s%d", f.DataBits, f.Parity, f.StopBits)
}

// formatTable enumerates the closed 24-code set from spec §6:
// {5,6,7,8} data bits × {N,O,E} parity × {1,2} stop bits.
var formatTable = buildFormatTable()

func buildFormatTable() map[string]Format {
	t := make(map[string]Format, 24)
	for _, d := range []uint8{5, 6, 7, 8} {
		for _, p := range []Parity{ParityNone, ParityOdd, ParityEven} {
			for _, s := range []uint8{1, 2} {
				f := Format{DataBits: d, Parity: p, StopBits: s}.resolve()
				t[f.String()] = f
			}
		}
	}
	return t
}

// ParseFormat resolves one of the 24 "<DataBits><Parity><StopBits>" codes,
// e.g. "8N1" or "7E2", into a Format. It is the Go-native stand-in for the
// original firmware's packed SERIAL_xxx byte codes.
func ParseFormat(code string) (Format, error) {
	if f, ok := formatTable[code]; ok {
		return f, nil
	}
	return Format{}, wrapErr(fmt.Sprintf("format %q", code), ErrUnknownFormat)
}

// MustParseFormat is ParseFormat but panics on an unknown code; intended
// for package-level format constants, not for parsing user input.
func MustParseFormat(code string) Format {
	f, err := ParseFormat(code)
	if err != nil {
		panic(err)
	}
	return f
}

// ParityEvenBit reports the value (0 or 1) of the even-parity bit for b:
// 1 if b has an odd number of set bits, 0 otherwise. This is the core's
// only dependency on the driver layer's parity primitive (spec §6); it
// has no per-driver state so it lives here as a free function.
func ParityEvenBit(b byte) byte {
	b ^= b >> 4
	b ^= b >> 2
	b ^= b >> 1
	return b & 1
}
