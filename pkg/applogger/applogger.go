package applogger

import (
	"os"
	"sync"

	"github.com/sirupsen/logrus"
)

var once sync.Once

// GetLogrus returns the process-wide JSON logger. It is the logrus standard
// logger, so level changes made on config reload apply everywhere.
func GetLogrus() *logrus.Logger {
	logger := logrus.StandardLogger()

	once.Do(func() {
		logger.SetOutput(os.Stdout)
		logger.SetFormatter(&logrus.JSONFormatter{
			FieldMap: logrus.FieldMap{
				logrus.FieldKeyTime: "timestamp",
				logrus.FieldKeyMsg:  "message",
			},
		})
	})

	return logger
}
