package keyValStore

import (
	"errors"
	"fmt"
	"os"
)

func (sc *StoreConfig) checkConfig() error {
	if sc.Path == "" {
		return errors.New("no path provided in configuration")
	}

	info, err := os.Stat(sc.Path)
	if os.IsNotExist(err) {
		if err := os.MkdirAll(sc.Path, 0o755); err != nil {
			return fmt.Errorf("could not create database directory: %w", err)
		}
		return nil
	}
	if err != nil {
		return err
	}
	if !info.IsDir() {
		return errors.New("path is not a directory")
	}

	return nil
}
