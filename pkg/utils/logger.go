package utils

import "github.com/sirupsen/logrus"

// GetLogger returns an entry bound to the standard logrus logger. Most new
// code should go through internal/logging instead; this exists for the
// handful of lower-level packages (e.g. the captcha solver) that predate it
// and only need a plain component-tagged logger.
func GetLogger() *logrus.Entry {
	return logrus.NewEntry(logrus.StandardLogger())
}

// LogWithRequestID returns a logger entry tagged with requestID, for
// handlers that want every line of a single request's log output
// correlated without threading a logger through every call.
func LogWithRequestID(requestID string) *logrus.Entry {
	return logrus.WithField("request_id", requestID)
}
