package logger

import (
	"fmt"

	"go.uber.org/zap"
)

// Init installs the global logger: JSON production output for the
// production environment, human readable development output otherwise.
func Init(environment string) error {
	var (
		l   *zap.Logger
		err error
	)
	if environment == "production" {
		l, err = zap.NewProduction()
	} else {
		l, err = zap.NewDevelopment()
	}
	if err != nil {
		return fmt.Errorf("failed to build %s logger -> %w", environment, err)
	}

	zap.ReplaceGlobals(l)

	return nil
}
