// Package cmd defines the CLI commands of the news-aggregator executable:
// the crawl-then-prompt root command, serve and tokens.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-aggregator/internal/app"
	"github.com/JakeFAU/news-aggregator/internal/config"
	"github.com/JakeFAU/news-aggregator/internal/fetcher"
	"github.com/JakeFAU/news-aggregator/internal/index"
	"github.com/JakeFAU/news-aggregator/internal/logging"
	"github.com/JakeFAU/news-aggregator/internal/news"
	"github.com/JakeFAU/news-aggregator/internal/query"
)

const usageLine = "[--verbose] [--quiet] [--url <feed-file>]"

// Exit statuses.
const (
	exitOK    = 0
	exitError = 1
)

// deps are the process-level collaborators tests replace.
type deps struct {
	registerer prometheus.Registerer
	fetcher    fetcher.Fetcher
	logger     *zap.Logger
}

// rootOptions hold the persistent flags.
type rootOptions struct {
	configPath string
	url        string
	// level is "debug" after --verbose and "warn" after --quiet, whichever
	// came last.
	level string
}

// usageError reports a command-line mistake. An empty usage selects the
// root command's synopsis.
type usageError struct {
	msg   string
	usage string
}

func (e *usageError) Error() string { return e.msg }

// exitCodeError carries a status for errors already reported to the user.
type exitCodeError struct {
	code int
}

func (e *exitCodeError) Error() string { return "exit status " + strconv.Itoa(e.code) }

// verbosity is a boolean flag that writes its level into a shared target, so
// the last of --verbose and --quiet wins.
type verbosity struct {
	target *string
	level  string
}

func (v *verbosity) String() string {
	if v.target == nil {
		return "false"
	}
	return strconv.FormatBool(*v.target == v.level)
}

func (v *verbosity) Set(s string) error {
	on, err := strconv.ParseBool(s)
	if err != nil {
		return fmt.Errorf("parse %q: %w", s, err)
	}
	switch {
	case on:
		*v.target = v.level
	case *v.target == v.level:
		*v.target = ""
	}
	return nil
}

func (v *verbosity) Type() string { return "bool" }

// newRootCmd creates and configures the root command.
func newRootCmd(d deps) *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "news-aggregator",
		Short: "Crawl a list of news feeds into an index and search it.",
		Long: `news-aggregator reads a feed list (OPML or RSS), crawls every feed and
article concurrently, builds an inverted index of article tokens, and then
answers search terms typed at the prompt.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) > 0 {
				return &usageError{msg: "Too many arguments"}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runRoot(cmd, d, opts)
		},
	}
	cmd.SetFlagErrorFunc(func(*cobra.Command, error) error {
		return &usageError{msg: "Unrecognized flag."}
	})

	flags := cmd.PersistentFlags()
	flags.StringVar(&opts.configPath, "config", "", "config file (YAML, TOML or JSON)")
	flags.StringVar(&opts.url, "url", "", "feed list location (path, file:// or http(s) URL)")
	flags.VarPF(&verbosity{target: &opts.level, level: "debug"}, "verbose", "", "log crawl progress").NoOptDefVal = "true"
	flags.VarPF(&verbosity{target: &opts.level, level: "warn"}, "quiet", "", "log warnings and errors only").NoOptDefVal = "true"

	cmd.AddCommand(newServeCmd(d, opts))
	cmd.AddCommand(newTokensCmd(d, opts))
	return cmd
}

// settings are the resolved configuration shared by the commands.
type settings struct {
	cfg     config.Config
	logger  *zap.Logger
	verbose bool
}

func (o *rootOptions) resolve(d deps) (settings, error) {
	cfg, err := config.Load(o.configPath)
	if err != nil {
		return settings{}, fmt.Errorf("load config: %w", err)
	}
	if o.url != "" {
		cfg.Crawler.FeedListURI = o.url
	}
	if o.level != "" {
		cfg.Logging.Level = o.level
	}
	logger := d.logger
	if logger == nil {
		logger, err = logging.New(logging.Config{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
		if err != nil {
			return settings{}, fmt.Errorf("init logger: %w", err)
		}
	}
	return settings{cfg: cfg, logger: logger, verbose: o.level == "debug"}, nil
}

func (s settings) newApp(ctx context.Context, d deps) (*app.App, error) {
	a, err := app.New(ctx, app.Options{
		Config:     s.cfg,
		Logger:     s.logger,
		Verbose:    s.verbose,
		Registerer: d.registerer,
		Fetcher:    d.fetcher,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize application services: %w", err)
	}
	return a, nil
}

// crawl runs the pipeline and reports a fatal feed-list failure on stderr.
func crawl(cmd *cobra.Command, a *app.App, uri string) (*index.Index, error) {
	idx, _, err := a.Crawl(cmd.Context(), uri)
	if err != nil {
		if errors.Is(err, news.ErrFeedListRetrieval) {
			fmt.Fprintf(cmd.ErrOrStderr(), "Ran into trouble while pulling full RSS feed list from \"%s\".\n", uri)
			fmt.Fprintln(cmd.ErrOrStderr(), "Aborting....")
			a.Logger().Error("feed list retrieval failed", zap.String("feed_uri", uri), zap.Error(err))
			return nil, &exitCodeError{code: exitError}
		}
		return nil, fmt.Errorf("crawl: %w", err)
	}
	return idx, nil
}

func runRoot(cmd *cobra.Command, d deps, opts *rootOptions) error {
	s, err := opts.resolve(d)
	if err != nil {
		return err
	}
	a, err := s.newApp(cmd.Context(), d)
	if err != nil {
		return err
	}
	defer a.Close()

	idx, err := crawl(cmd, a, s.cfg.Crawler.FeedListURI)
	if err != nil {
		return err
	}
	prompt := query.Prompt{
		Index:         idx,
		MaxResults:    s.cfg.Query.MaxResults,
		TruncateWidth: s.cfg.Query.TruncateWidth,
	}
	if err := prompt.Run(cmd.InOrStdin(), cmd.OutOrStdout()); err != nil {
		return fmt.Errorf("query prompt: %w", err)
	}
	return nil
}

// run executes the command tree with args and returns the exit status.
func run(ctx context.Context, d deps, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	root := newRootCmd(d)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	if err == nil {
		return exitOK
	}
	var usage *usageError
	var coded *exitCodeError
	switch {
	case errors.As(err, &usage):
		fmt.Fprintf(stderr, "Error: %s\n", usage.msg)
		synopsis := usage.usage
		if synopsis == "" {
			synopsis = usageLine
		}
		fmt.Fprintf(stderr, "Usage: %s %s\n", root.Name(), synopsis)
		return exitError
	case errors.As(err, &coded):
		return coded.code
	default:
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return exitError
	}
}

// Execute runs the CLI against the process arguments and returns the exit
// status for os.Exit.
func Execute() int {
	return run(context.Background(), deps{}, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
}
