package configbus

// IoStatus is how ConfigBus operations report failure. Errors never
// escape the poll thread as panics or thrown exceptions; every Bus
// method returns one of these alongside its value. The numeric values
// match the Remote backend's wire status byte (§6): 0=OK, 1=BUSERROR,
// 2=CMDERROR, 3=TIMEOUT. StatusError is local-only (decode/transport
// failures that never travel as a wire status byte themselves).
type IoStatus int

const (
	StatusOK IoStatus = iota
	StatusBusError
	StatusCmdError
	StatusTimeout
	StatusError
)

func (s IoStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusBusError:
		return "bus_error"
	case StatusCmdError:
		return "cmd_error"
	case StatusTimeout:
		return "timeout"
	case StatusError:
		return "error"
	default:
		return "unknown"
	}
}
