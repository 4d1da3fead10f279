package domain

type Device struct {
	Id           string
	Name         string
	Version      string
	Model        string
	Manufacturer string
	ViaDevice    string
}

type GenericSensor struct {
	Device            Device
	Id                string
	SensorType        string
	Name              string
	UniqueId          string
	UnitOfMeasurement string
	StateClass        string // measurement, total_increasing
	DeviceClass       string // voltage, current, power, frequency, temperature
	EntityCategory    string // diagnostic, config, nil
	EnabledByDefault  *bool
	Icon              string
}

type GenericSwitch struct {
	Device   Device
	Id       string
	Name     string
	UniqueId string
	Icon     string
}

type GenericInputNumber struct {
	Device       Device
	Id           string
	Name         string
	UniqueId     string
	Icon         string
	Max          float64
	Min          float64
	Step         float64
	Mode         string
	InitialValue float64
}

// SensorDescription is how a driver describes one key of its status mapping.
type SensorDescription struct {
	Key               string `json:"key"`
	Name              string `json:"name"`
	SensorType        string `json:"sensor_type,omitempty"` // sensor, binary_sensor
	UnitOfMeasurement string `json:"unit_of_measurement,omitempty"`
	StateClass        string `json:"state_class,omitempty"`
	DeviceClass       string `json:"device_class,omitempty"`
	EntityCategory    string `json:"entity_category,omitempty"`
	Icon              string `json:"icon,omitempty"`
	Decimals          uint   `json:"decimals,omitempty"`
}

func (d SensorDescription) IsBinary() bool {
	return d.SensorType == SENSOR_TYPE_BINARY
}
