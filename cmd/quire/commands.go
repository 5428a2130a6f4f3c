package main

import (
	"fmt"
	"os"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"

	"github.com/asaidimu/go-quire/core/search"
	"github.com/asaidimu/go-quire/mcp"
	"github.com/asaidimu/go-quire/server"
)

var version = "dev"

const defaultAddr = "127.0.0.1:8765"

func (c *cli) newSearchCmd() *cobra.Command {
	var opts search.Options
	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Full-text search over document contents",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			hits, err := a.Store.Search(cmd.Context(), args[0], opts)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, h := range hits {
				fmt.Fprintf(out, "%s\t%.3f\t%s\n", h.ID, h.Score, h.Excerpt)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&opts.Scope, "collection", "", "restrict to one collection")
	cmd.Flags().IntVar(&opts.Limit, "limit", 20, "maximum number of hits")
	return cmd
}

func (c *cli) newExportCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "export <collection-id>",
		Short: "Export a collection, its versions and document histories as YAML",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) (err error) {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			w := cmd.OutOrStdout()
			if output != "" && output != "-" {
				f, err := os.Create(output)
				if err != nil {
					return fmt.Errorf("creating %s: %w", output, err)
				}
				defer func() {
					if cerr := f.Close(); err == nil {
						err = cerr
					}
				}()
				w = f
			}
			return a.Store.ExportCollection(cmd.Context(), args[0], w)
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "output file (default stdout)")
	return cmd
}

func (c *cli) newMCPCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the collections as MCP tools over stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			s := mcpserver.NewMCPServer("quire", version)
			mcp.RegisterTools(s, a.Store, a.Logger)

			serverErr := make(chan error, 1)
			go func() {
				serverErr <- mcpserver.ServeStdio(s)
			}()
			a.Logger.Info("serving MCP over stdio")

			select {
			case <-cmd.Context().Done():
				a.Logger.Info("shutdown signal received")
				return nil
			case err := <-serverErr:
				if err != nil {
					return fmt.Errorf("server error: %w", err)
				}
				return nil
			}
		},
	}
}

func (c *cli) newServeCmd() *cobra.Command {
	var addr string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve a read-only HTTP API and Prometheus metrics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			if addr == "" {
				addr = a.Config.Metrics.Address
			}
			if addr == "" {
				addr = defaultAddr
			}
			return server.New(a.Store, a.Registry, a.Logger).Run(cmd.Context(), addr)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "", "listen address (default metrics.address from the config)")
	return cmd
}
