package util

import "github.com/sirupsen/logrus"

// ContinueOrFatal aborts the process on a non-nil error. Bootstrap-only:
// nothing in the replication path is allowed to call it.
func ContinueOrFatal(err error) {
	if err != nil {
		logrus.Fatal(err)
	}
}
