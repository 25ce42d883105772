package runtime

// Level is the runtime's position in its lifecycle.
type Level int

const (
	LevelUnknown Level = iota
	LevelBoot
	LevelBootFailed
	LevelRun
	LevelTerminated
)

func (l Level) String() string {
	switch l {
	case LevelBoot:
		return "boot"
	case LevelBootFailed:
		return "boot_failed"
	case LevelRun:
		return "run"
	case LevelTerminated:
		return "terminated"
	default:
		return "unknown"
	}
}
