package main

import (
	"os"

	"github.com/sirupsen/logrus"
)

func main() {
	if err := NewRootCommand().Execute(); err != nil {
		logrus.WithError(err).Error("wesviz failed")
		os.Exit(1)
	}
}
