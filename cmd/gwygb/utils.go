package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/go-shiori/gwygb"
	"github.com/schollz/progressbar/v3"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

type options struct {
	Output     string
	IndexURL   string
	Delay      time.Duration
	Timeout    time.Duration
	Insecure   bool
	UserAgent  string
	Quiet      bool
	Verbose    bool
	NoProgress bool
}

// loadConfig binds the flags of the running command to v. Every flag can
// also be set as GWYGB_<FLAG> in the environment or in a config file.
func loadConfig(v *viper.Viper, cmd *cobra.Command) error {
	if err := v.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	v.SetEnvPrefix("gwygb")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config %s: %w", path, err)
		}
	}

	return nil
}

func parseOptions(v *viper.Viper) (options, error) {
	opts := options{
		Output:     v.GetString("output"),
		IndexURL:   v.GetString("index"),
		Delay:      v.GetDuration("delay"),
		Timeout:    time.Duration(v.GetInt("timeout")) * time.Second,
		Insecure:   v.GetBool("insecure"),
		UserAgent:  v.GetString("user-agent"),
		Quiet:      v.GetBool("quiet"),
		Verbose:    v.GetBool("verbose"),
		NoProgress: v.GetBool("no-progress"),
	}

	if opts.Output == "" {
		opts.Output = "."
	}

	if isFile(opts.Output) {
		return opts, fmt.Errorf("output %s is not a directory", opts.Output)
	}

	switch {
	case opts.Quiet:
		logrus.SetLevel(logrus.WarnLevel)
	case opts.Verbose:
		logrus.SetLevel(logrus.DebugLevel)
	}

	return opts, nil
}

func newSession(opts options) gwygb.Session {
	return gwygb.NewSession(gwygb.SessionOptions{
		Timeout:             opts.Timeout,
		SkipTLSVerification: opts.Insecure,
	})
}

func newFetcher(opts options, session gwygb.Session) *gwygb.Fetcher {
	fetcher := &gwygb.Fetcher{
		Session:          session,
		UserAgent:        opts.UserAgent,
		EnableLog:        !opts.Quiet && (opts.NoProgress || opts.Verbose),
		EnableVerboseLog: !opts.Quiet && opts.Verbose,
	}

	if !opts.Quiet && !opts.NoProgress {
		fetcher.Progress = progressBar
	}

	fetcher.Validate()
	return fetcher
}

// progressBar shows a byte counter for one download. An unknown total
// gives a spinner instead of a bar.
func progressBar(name string, total int64) io.Writer {
	return progressbar.DefaultBytes(total, name)
}

func isFile(path string) bool {
	f, err := os.Stat(path)
	if err != nil {
		return false
	}

	return !f.IsDir()
}
