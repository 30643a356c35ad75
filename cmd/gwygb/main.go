package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/go-shiori/gwygb"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func main() {
	// Prepare cmd
	v := viper.New()
	cmd := &cobra.Command{
		Use:          "gwygb",
		Short:        "CLI tool for downloading the State Council Gazette from www.gov.cn",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return loadConfig(v, cmd)
		},
	}

	flags := cmd.PersistentFlags()
	flags.String("config", "", "path to config file")
	flags.StringP("output", "o", ".", "directory to save the gazette into")
	flags.Duration("delay", time.Second, "pause after each issue and each downloaded file")
	flags.IntP("timeout", "t", 60, "maximum time (in second) before request timeout")
	flags.Bool("insecure", false, "skip X.509 (TLS) certificate verification")
	flags.StringP("user-agent", "u", "", "set custom user agent")
	flags.BoolP("quiet", "q", false, "disable logging")
	flags.Bool("verbose", false, "more verbose logging")
	flags.Bool("no-progress", false, "don't show download progress")

	cmd.AddCommand(
		issuesCmd(v),
		archiveCmd(v),
		fetchCmd(v),
	)

	// Execute
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := cmd.ExecuteContext(ctx); err != nil {
		logrus.Fatalln(err)
	}
}

func issuesCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "issues",
		Aliases: []string{"html"},
		Short:   "Download the HTML articles of every issue listed in the JSON index",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := parseOptions(v)
			if err != nil {
				return err
			}

			session := newSession(opts)
			src := &gwygb.IssueSource{
				IndexURL:  opts.IndexURL,
				Session:   session,
				UserAgent: opts.UserAgent,
				Pacer:     gwygb.NewPacer(opts.Delay),
				EnableLog: !opts.Quiet,
			}

			return crawl(cmd.Context(), opts, session, src)
		},
	}

	cmd.Flags().String("index", gwygb.DefaultIssueIndexURL, "URL of the JSON issue index")
	return cmd
}

func archiveCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:     "archive",
		Aliases: []string{"pdf"},
		Short:   "Download the scanned PDF issues of 1954-1999",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := parseOptions(v)
			if err != nil {
				return err
			}

			session := newSession(opts)
			src := &gwygb.ArchiveSource{
				IndexURL:  opts.IndexURL,
				Session:   session,
				UserAgent: opts.UserAgent,
				Pacer:     gwygb.NewPacer(opts.Delay),
				EnableLog: !opts.Quiet,
			}

			return crawl(cmd.Context(), opts, session, src)
		},
	}

	cmd.Flags().String("index", gwygb.DefaultArchiveIndexURL, "URL of the 1954-1999 archive page")
	return cmd
}

func fetchCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch [url] [path]",
		Short: "Download a single URL, unless path already exists",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts, err := parseOptions(v)
			if err != nil {
				return err
			}

			fetcher := newFetcher(opts, newSession(opts))
			downloaded, err := fetcher.Fetch(cmd.Context(), args[0], args[1])
			if err != nil {
				return err
			}

			if !opts.Quiet {
				if downloaded {
					logrus.Printf("saved %s\n", args[1])
				} else {
					logrus.Printf("%s already exists, nothing to do\n", args[1])
				}
			}

			return nil
		},
	}
}

func crawl(ctx context.Context, opts options, session gwygb.Session, src gwygb.Source) error {
	crawler := &gwygb.Crawler{
		Fetcher:   newFetcher(opts, session),
		OutputDir: opts.Output,
		Pacer:     gwygb.NewPacer(opts.Delay),
		EnableLog: opts.Verbose,
	}

	stats, err := crawler.Run(ctx, src)
	if err != nil {
		return err
	}

	if !opts.Quiet {
		fmt.Printf("%d downloaded (%s), %d already present, took %s\n",
			stats.Downloaded, humanize.Bytes(uint64(stats.Bytes)),
			stats.Skipped, stats.Elapsed.Round(time.Second))
	}

	return nil
}
