package main

import (
	"errors"
	"path/filepath"

	"github.com/spf13/viper"

	"github.com/drivesync/drivesync/internal/config"
	"github.com/drivesync/drivesync/internal/convert"
	"github.com/drivesync/drivesync/internal/drive"
	"github.com/drivesync/drivesync/internal/gitrepo"
	"github.com/drivesync/drivesync/internal/workspace"
)

// options is the merged view of flags, DRIVE_SYNC_* env vars and .env.
type options struct {
	ConfigPath      string
	BasePath        string
	Credentials     string
	CredentialsFile string
	StateDir        string
	Pandoc          string
	DryRun          bool
	Commit          bool
	Workers         int
}

func readOptions() options {
	return options{
		ConfigPath:      viper.GetString("config"),
		BasePath:        viper.GetString("base-path"),
		Credentials:     viper.GetString("credentials"),
		CredentialsFile: viper.GetString("credentials-file"),
		StateDir:        viper.GetString("state-dir"),
		Pandoc:          viper.GetString("pandoc"),
		DryRun:          viper.GetBool("dry-run"),
		Commit:          viper.GetBool("commit"),
		Workers:         viper.GetInt("workers"),
	}
}

// configFile defaults to the config next to the base path.
func (o options) configFile() string {
	if o.ConfigPath != "" {
		return o.ConfigPath
	}
	base := o.BasePath
	if base == "" {
		base = "."
	}
	return filepath.Join(base, config.DefaultConfigFile)
}

// hint suggests a fix for errors a user can act on.
func hint(err error) string {
	switch {
	case errors.Is(err, convert.ErrPandocMissing):
		return "install pandoc (https://pandoc.org/installing.html) or point --pandoc at it"
	case errors.Is(err, config.ErrConfigNotFound):
		return "run 'drive-sync init' to create one"
	case errors.Is(err, workspace.ErrWorkspaceLocked):
		return "another drive-sync run is using this repository, wait for it to finish"
	case errors.Is(err, gitrepo.ErrNotRepository):
		return "--commit needs the base path to be inside a git repository"
	default:
		return drive.Hint(err)
	}
}
