package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/asaidimu/go-quire/core/persistence"
	"github.com/asaidimu/go-quire/core/query"
)

func (c *cli) newDocCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "doc",
		Aliases: []string{"document"},
		Short:   "Manage documents",
	}
	cmd.AddCommand(
		c.newDocCreateCmd(),
		c.newDocUpdateCmd(),
		c.newDocGetCmd(),
		c.newDocListCmd(),
		c.newDocHistoryCmd(),
		c.newDocDeleteCmd(),
		c.newDocFileCmd(),
	)
	return cmd
}

func (c *cli) newDocCreateCmd() *cobra.Command {
	var (
		content string
		force   bool
	)
	cmd := &cobra.Command{
		Use:   "create <collection-id>",
		Short: "Create a document from JSON content",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := readJSON(cmd, content)
			if err != nil {
				return err
			}
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			res, err := a.Store.CreateDocument(cmd.Context(), args[0], v, persistence.CreateOptions{Force: force})
			if err != nil {
				return err
			}
			if dup := res.PossibleDuplicate; dup != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "Possible duplicate of %s (keys %v). Nothing was written; pass --force to create it anyway.\n",
					dup.ExistingDocumentID, dup.Keys)
				return printJSON(cmd.OutOrStdout(), res)
			}
			return printJSON(cmd.OutOrStdout(), res.Document)
		},
	}
	cmd.Flags().StringVar(&content, "content", "-", "content JSON file, - for stdin")
	cmd.Flags().BoolVar(&force, "force", false, "write even when a possible duplicate exists")
	return cmd
}

func (c *cli) newDocUpdateCmd() *cobra.Command {
	var content, expected string
	cmd := &cobra.Command{
		Use:   "update <collection-id> <document-id>",
		Short: "Write a new version of a document",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := readJSON(cmd, content)
			if err != nil {
				return err
			}
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			doc, err := a.Store.CreateDocumentVersion(cmd.Context(), args[0], args[1], expected, v)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), doc)
		},
	}
	cmd.Flags().StringVar(&content, "content", "-", "content JSON file, - for stdin")
	cmd.Flags().StringVar(&expected, "expected", "", "the latest version id this change is based on")
	_ = cmd.MarkFlagRequired("expected")
	return cmd
}

func (c *cli) newDocGetCmd() *cobra.Command {
	var version string
	cmd := &cobra.Command{
		Use:   "get <document-id>",
		Short: "Show a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if version != "" {
				v, err := a.Store.DocumentVersionContent(cmd.Context(), version)
				if err != nil {
					return err
				}
				if v.DocumentID != args[0] {
					return fmt.Errorf("version %s does not belong to %s: %w", version, args[0], persistence.ErrNotFound)
				}
				return printJSON(cmd.OutOrStdout(), v)
			}
			doc, err := a.Store.GetDocument(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), doc)
		},
	}
	cmd.Flags().StringVar(&version, "version", "", "show this version instead of the latest")
	return cmd
}

func (c *cli) newDocListCmd() *cobra.Command {
	var (
		opts   persistence.ListOptions
		filter string
	)
	cmd := &cobra.Command{
		Use:   "list <collection-id>",
		Short: "List the documents of a collection",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if filter != "" {
				f, err := query.ParseFilter([]byte(filter))
				if err != nil {
					return fmt.Errorf("parsing --filter: %w", err)
				}
				opts.Filter = f
			}
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			docs, err := a.Store.ListDocuments(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), docs)
		},
	}
	cmd.Flags().StringVar(&opts.SortBy, "sort", "", "summary label to sort by")
	cmd.Flags().BoolVar(&opts.Descending, "desc", false, "sort descending")
	cmd.Flags().StringVar(&filter, "filter", "", `filter JSON, e.g. {"field":"amount","operator":"gt","value":10}`)
	cmd.Flags().IntVar(&opts.Offset, "offset", 0, "skip this many documents")
	cmd.Flags().IntVar(&opts.Limit, "limit", 0, "return at most this many documents")
	return cmd
}

func (c *cli) newDocHistoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <document-id>",
		Short: "Show every version of a document, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			history, err := a.Store.DocumentHistory(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), history)
		},
	}
}

func (c *cli) newDocDeleteCmd() *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "delete <document-id>",
		Short: "Delete a document and its history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Store.DeleteDocument(cmd.Context(), args[0], confirmation(confirm)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm permanent deletion")
	return cmd
}

func (c *cli) newDocFileCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "file <file-id>",
		Short: "Write the bytes of a stored file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, data, err := a.Store.FileContent(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if output == "" {
				output = filepath.Base(rec.Name)
			}
			if output == "-" {
				_, err = cmd.OutOrStdout().Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return fmt.Errorf("writing %s: %w", output, err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Wrote %s (%s, %d bytes)\n", output, rec.MimeType, rec.Size)
			return nil
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output path, - for stdout (default the file's name)")
	return cmd
}
