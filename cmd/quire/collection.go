package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/asaidimu/go-quire/core/persistence"
	"github.com/asaidimu/go-quire/core/sandbox"
	"github.com/asaidimu/go-quire/core/schema"
)

// versionFlags are the files that make up a collection version.
type versionFlags struct {
	schema       string
	summary      string
	blockingKeys string
	migration    string
}

func (f *versionFlags) register(cmd *cobra.Command, withMigration bool) {
	cmd.Flags().StringVar(&f.schema, "schema", "", "schema JSON file")
	cmd.Flags().StringVar(&f.summary, "summary", "", "summary getter, a CommonJS file")
	cmd.Flags().StringVar(&f.blockingKeys, "blocking-keys", "", "blocking-keys getter, a CommonJS file")
	_ = cmd.MarkFlagRequired("schema")
	_ = cmd.MarkFlagRequired("summary")
	if withMigration {
		cmd.Flags().StringVar(&f.migration, "migration", "", "migration from the previous version, a CommonJS file")
	}
}

func (f *versionFlags) load(cmd *cobra.Command) (*schema.Schema, persistence.VersionSettings, error) {
	var vs persistence.VersionSettings
	data, err := readInput(cmd, f.schema)
	if err != nil {
		return nil, vs, err
	}
	s, err := schema.Parse(data)
	if err != nil {
		return nil, vs, err
	}

	unit := func(path string) (*sandbox.Unit, error) {
		if path == "" {
			return nil, nil
		}
		code, err := readInput(cmd, path)
		if err != nil {
			return nil, err
		}
		u := sandbox.FromSource(string(code))
		return &u, nil
	}
	summary, err := unit(f.summary)
	if err != nil {
		return nil, vs, err
	}
	if summary != nil {
		vs.Summary = *summary
	}
	if vs.BlockingKeys, err = unit(f.blockingKeys); err != nil {
		return nil, vs, err
	}
	if vs.Migration, err = unit(f.migration); err != nil {
		return nil, vs, err
	}
	return s, vs, nil
}

func (c *cli) newCollectionCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "collection",
		Aliases: []string{"col"},
		Short:   "Manage collections",
	}
	cmd.AddCommand(
		c.newCollectionCreateCmd(),
		c.newCollectionListCmd(),
		c.newCollectionShowCmd(),
		c.newCollectionVersionCmd(),
		c.newCollectionDeleteCmd(),
	)
	return cmd
}

func (c *cli) newCollectionCreateCmd() *cobra.Command {
	var (
		settings persistence.CollectionSettings
		files    versionFlags
	)
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			s, vs, err := files.load(cmd)
			if err != nil {
				return err
			}
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			col, err := a.Store.CreateCollection(cmd.Context(), settings, s, vs)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), col)
		},
	}
	cmd.Flags().StringVar(&settings.Name, "name", "", "collection name")
	cmd.Flags().StringVar(&settings.Icon, "icon", "", "icon name")
	cmd.Flags().StringVar(&settings.Category, "category", "", "category")
	cmd.Flags().StringVar(&settings.Instructions, "instructions", "", "instructions for writing documents")
	_ = cmd.MarkFlagRequired("name")
	files.register(cmd, false)
	return cmd
}

func (c *cli) newCollectionListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List collections",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			cols, err := a.Store.ListCollections(cmd.Context())
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, col := range cols {
				fmt.Fprintf(out, "%s\t%s\t%s\n", col.ID, col.Name, col.Category)
			}
			return nil
		},
	}
}

func (c *cli) newCollectionShowCmd() *cobra.Command {
	var versions bool
	cmd := &cobra.Command{
		Use:   "show <collection-id>",
		Short: "Show a collection with its latest version",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if versions {
				all, err := a.Store.CollectionVersions(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), all)
			}
			col, err := a.Store.GetCollection(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), col)
		},
	}
	cmd.Flags().BoolVar(&versions, "versions", false, "show every version instead")
	return cmd
}

func (c *cli) newCollectionVersionCmd() *cobra.Command {
	var (
		expected string
		files    versionFlags
	)
	cmd := &cobra.Command{
		Use:   "version <collection-id>",
		Short: "Submit a new schema version, migrating every document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, vs, err := files.load(cmd)
			if err != nil {
				return err
			}
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			version, err := a.Store.CreateCollectionVersion(cmd.Context(), args[0], expected, s, vs)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), version)
		},
	}
	cmd.Flags().StringVar(&expected, "expected", "", "the latest version id this change is based on")
	_ = cmd.MarkFlagRequired("expected")
	files.register(cmd, true)
	return cmd
}

func (c *cli) newCollectionDeleteCmd() *cobra.Command {
	var confirm bool
	cmd := &cobra.Command{
		Use:   "delete <collection-id>",
		Short: "Delete a collection and all its documents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if err := a.Store.DeleteCollection(cmd.Context(), args[0], confirmation(confirm)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&confirm, "yes", false, "confirm permanent deletion")
	return cmd
}

func confirmation(confirm bool) string {
	if confirm {
		return persistence.ConfirmDeletion
	}
	return ""
}
