package common

import (
	"io"
	"log"
	"os"
)

var (
	logger = log.New(os.Stderr, "[scpgate] ", log.LstdFlags|log.Lmicroseconds)
)

func Logf(format string, args ...interface{}) {
	logger.Printf(format, args...)
}

func Fatalf(format string, args ...interface{}) {
	logger.Fatalf(format, args...)
}

// SetOutput redirects the package logger, typically to a rotating activity
// log opened by the CLI.
func SetOutput(w io.Writer) {
	logger.SetOutput(w)
}
