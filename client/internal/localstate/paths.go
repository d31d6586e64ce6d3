// Package localstate resolves where the client keeps its durable files.
package localstate

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	envHome        = "HAMHIBOKKA_HOME" // override for tests
	dirName        = ".hamhibokka"     // default under $HOME
	badgerDirName  = "session.badger"
	sqliteFilename = "session.db"
)

// DataDir returns the directory where local state is stored (~/.hamhibokka).
// It creates the directory with 0700 permissions if it does not exist.
func DataDir() (string, error) {
	if custom := os.Getenv(envHome); custom != "" {
		if err := os.MkdirAll(custom, 0o700); err != nil {
			return "", err
		}
		return custom, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("cannot determine user home: %w", err)
	}
	dir := filepath.Join(home, dirName)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", err
	}
	return dir, nil
}

// BadgerDir returns the absolute path of the BadgerDB directory.
func BadgerDir() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, badgerDirName), nil
}

// SQLitePath returns the absolute path to the SQLite database file.
func SQLitePath() (string, error) {
	dir, err := DataDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, sqliteFilename), nil
}
