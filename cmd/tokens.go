package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/news-aggregator/internal/app"
	"github.com/JakeFAU/news-aggregator/internal/document"
	"github.com/JakeFAU/news-aggregator/internal/fetcher"
)

// newTokensCmd counts the tokens of one HTML document, the same way articles
// are tokenized during a crawl.
func newTokensCmd(d deps, opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "tokens <html-url>",
		Short: "Count the index tokens of one HTML document",
		Args: func(_ *cobra.Command, args []string) error {
			if len(args) != 1 {
				return &usageError{msg: "wrong number of arguments.", usage: "tokens <html-url>"}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := opts.resolve(d)
			if err != nil {
				return err
			}
			f := app.NetworkFetcher(s.cfg.Crawler, d.fetcher, s.logger)
			url := args[0]
			tokens, err := document.NewParser(fetcher.NewLoader(f)).Tokens(cmd.Context(), url)
			if err != nil {
				s.logger.Debug("document retrieval failed", zap.String("url", url), zap.Error(err))
				fmt.Fprintf(cmd.ErrOrStderr(), "Problem encountered while pulling document content from \"%s\".\n", url)
				fmt.Fprintf(cmd.ErrOrStderr(), "Specific problem: %v\n", err)
				return &exitCodeError{code: exitError}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Document contains %d %s.\n", len(tokens), plural(len(tokens), "token"))
			return nil
		},
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
