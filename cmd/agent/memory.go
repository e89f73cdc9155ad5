package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/petasbytes/toolchat/memory"
	"github.com/spf13/cobra"
)

func newMemoryCmd(f *flags) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "memory",
		Short: "Inspect and manage long-term memory",
	}

	// withStore opens the configured store for one subcommand.
	withStore := func(run func(cmd *cobra.Command, args []string, s memory.Store) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, logger, cleanup, err := load(cmd, f)
			if err != nil {
				return err
			}
			defer cleanup()
			s, closeStore, err := openStore(cfg, logger)
			if err != nil {
				return fmt.Errorf("open memory: %w", err)
			}
			defer closeStore()
			return run(cmd, args, s)
		}
	}

	var listTag string
	list := &cobra.Command{
		Use:   "list",
		Short: "List memories, newest first",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, _ []string, s memory.Store) error {
			res, err := s.List(cmd.Context(), listTag)
			if err != nil {
				return err
			}
			printSummaries(cmd.OutOrStdout(), res)
			return nil
		}),
	}
	list.Flags().StringVar(&listTag, "tag", "", "only memories with this tag")

	var (
		searchTags  []string
		searchLimit int
	)
	search := &cobra.Command{
		Use:   "search [query...]",
		Short: "Search memories by words and tags",
		RunE: withStore(func(cmd *cobra.Command, args []string, s memory.Store) error {
			q := memory.Query{Text: strings.Join(args, " "), Tags: searchTags, Limit: searchLimit}
			if q.Text == "" && len(q.Tags) == 0 {
				return errors.New("give a query, --tag, or both")
			}
			res, err := s.Search(cmd.Context(), q)
			if err != nil {
				return err
			}
			printSummaries(cmd.OutOrStdout(), res)
			return nil
		}),
	}
	search.Flags().StringSliceVar(&searchTags, "tag", nil, "require one of these tags (repeatable)")
	search.Flags().IntVar(&searchLimit, "limit", 0, "maximum results, 0 = all")

	get := &cobra.Command{
		Use:   "get <key>",
		Short: "Print one memory as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, args []string, s memory.Store) error {
			rec, err := s.Retrieve(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		}),
	}

	del := &cobra.Command{
		Use:   "delete <key>",
		Short: "Delete one memory",
		Args:  cobra.ExactArgs(1),
		RunE: withStore(func(cmd *cobra.Command, args []string, s memory.Store) error {
			if err := s.Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", args[0])
			return nil
		}),
	}

	reindex := &cobra.Command{
		Use:   "reindex",
		Short: "Rebuild the memory index from the record files",
		Args:  cobra.NoArgs,
		RunE: withStore(func(cmd *cobra.Command, _ []string, s memory.Store) error {
			fs, ok := s.(*memory.FileStore)
			if !ok {
				return errors.New("reindex applies to the file backend only")
			}
			if err := fs.Rebuild(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "index rebuilt in %s\n", fs.Dir())
			return nil
		}),
	}

	cmd.AddCommand(list, search, get, del, reindex)
	return cmd
}

func printSummaries(w io.Writer, res []memory.Summary) {
	if len(res) == 0 {
		fmt.Fprintln(w, "no memories")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "KEY\tTAGS\tCREATED\tPREVIEW")
	for _, s := range res {
		preview := strings.ReplaceAll(s.Preview, "\n", " ")
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", s.Key, strings.Join(s.Tags, ","), s.CreatedAt.Local().Format("2006-01-02 15:04"), preview)
	}
	tw.Flush()
}
