package aggregate

// Known device type names. Field extraction is keyed on these; any other
// type name yields an empty field set and therefore all-null chart points.
const (
	TypeMPFM              = "MPFM"
	TypePressureSensor    = "Pressure Sensor"
	TypeTemperatureSensor = "Temperature Sensor"
	TypeFlowMeter         = "Flow Meter"
)

// Chart output field names.
const (
	FieldGFR         = "gfr"
	FieldGOR         = "gor"
	FieldGVF         = "gvf"
	FieldOFR         = "ofr"
	FieldWFR         = "wfr"
	FieldWLR         = "wlr"
	FieldPressure    = "pressure"
	FieldTemperature = "temperature"
)

// FieldOrder is the stable order chart fields are reported in.
var FieldOrder = []string{
	FieldGFR, FieldGOR, FieldGVF, FieldOFR, FieldWFR, FieldWLR,
	FieldPressure, FieldTemperature,
}

// FieldSet maps chart output fields to the reading tag they are sourced
// from for one device type.
type FieldSet map[string]string

var typeFields = map[string]FieldSet{
	TypeMPFM: {
		FieldGFR:         "GFR",
		FieldGOR:         "GOR",
		FieldGVF:         "GVF",
		FieldOFR:         "OFR",
		FieldWFR:         "WFR",
		FieldWLR:         "WLR",
		FieldPressure:    "PressureAvg",
		FieldTemperature: "TemperatureAvg",
	},
	TypePressureSensor: {
		FieldPressure:    "Pressure",
		FieldTemperature: "TemperatureAvg",
	},
	// Temperature sensors report ambient pressure under PressureAvg and
	// their own measurement under Temperature.
	TypeTemperatureSensor: {
		FieldPressure:    "PressureAvg",
		FieldTemperature: "Temperature",
	},
	TypeFlowMeter: {
		FieldOFR:         "FlowRate",
		FieldPressure:    "PressureAvg",
		FieldTemperature: "TemperatureAvg",
	},
}

// FieldsForType returns the chart field set for a device type name. Unknown
// types get an empty set.
func FieldsForType(typeName string) FieldSet {
	return typeFields[typeName]
}
