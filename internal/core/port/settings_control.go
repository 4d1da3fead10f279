package port

type SettingsControlLogic interface {
	SwitchCommand(switchId string, on bool) (string, error)
	NumberCommand(numberId string, value float64) (string, error)
}
