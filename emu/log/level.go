package log

import "gopkg.in/Sirupsen/logrus.v0"

type Level = logrus.Level

const (
	PanicLevel = logrus.PanicLevel
	FatalLevel = logrus.FatalLevel
	ErrorLevel = logrus.ErrorLevel
	WarnLevel  = logrus.WarnLevel
	InfoLevel  = logrus.InfoLevel
	DebugLevel = logrus.DebugLevel
)

var disabled bool

// Disable silences every module, including warnings and errors.
func Disable() {
	disabled = true
	modDebugMask = 0
}

// SetOutputLevel sets the minimum level forwarded to the logrus backend.
func SetOutputLevel(lvl Level) {
	logrus.SetLevel(lvl)
}

func init() {
	logrus.SetLevel(DebugLevel)
	logrus.SetFormatter(&logrus.TextFormatter{
		DisableTimestamp: true,
	})
}
