package modbusrtu

import (
	"time"

	"github.com/simonvetter/modbus"
	"go.uber.org/zap"
)

// RegisterClient is the part of *modbus.ModbusClient the driver uses.
type RegisterClient interface {
	Open() error
	Close() error
	SetUnitId(id uint8) error
	ReadRegisters(addr uint16, quantity uint16, regType modbus.RegType) ([]uint16, error)
	WriteRegister(addr uint16, value uint16) error
}

var _ RegisterClient = (*modbus.ModbusClient)(nil)

type Instrument struct {
	RecordTime func(fnName string, duration time.Duration)
}

// instrumentedClient times every register access.
type instrumentedClient struct {
	client     RegisterClient
	instrument []Instrument
}

func (c instrumentedClient) readRegisters(addr uint16, quantity uint16, regType modbus.RegType) ([]uint16, error) {
	defer recordTimer("ReadRegisters", c.instrument)()
	return c.client.ReadRegisters(addr, quantity, regType)
}

func (c instrumentedClient) writeRegister(addr uint16, value uint16) error {
	defer recordTimer("WriteRegister", c.instrument)()
	return c.client.WriteRegister(addr, value)
}

func recordTimer(name string, instrument []Instrument) func() {
	if instrument == nil {
		return func() {}
	}

	start := time.Now()
	return func() {
		duration := time.Since(start)
		for i := range instrument {
			instrument[i].RecordTime(name, duration)
		}
	}
}

func debugLoggerInstrumentation(logger *zap.Logger) Instrument {
	return Instrument{
		RecordTime: func(fnName string, duration time.Duration) {
			logger.Debug("modbus@timing", zap.String("fn", fnName), zap.Int64("millis", duration.Milliseconds()))
		},
	}
}
