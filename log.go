package gwygb

import "github.com/sirupsen/logrus"

func logf(enabled bool, format string, args ...interface{}) {
	if enabled {
		logrus.Printf(format, args...)
	}
}

func (f *Fetcher) logFetch(url, path string, skipped bool) {
	if !f.EnableLog {
		return
	}

	if !f.EnableVerboseLog {
		if !skipped {
			logrus.Println(path)
		}
		return
	}

	logrus.WithFields(logrus.Fields{
		"url":     url,
		"skipped": skipped,
	}).Println(path)
}
