package main

import (
	"fmt"
	"strconv"

	"github.com/cordum/pkgvault/core/coordinates"
	"github.com/cordum/pkgvault/core/entries"
	"github.com/cordum/pkgvault/core/infra/buildinfo"
	"github.com/spf13/cobra"
)

type coordinatesView struct {
	Layout  coordinates.Layout  `json:"layout"`
	ID      string              `json:"id"`
	Version string              `json:"version,omitempty"`
	Path    string              `json:"path"`
	Fields  []coordinates.Field `json:"fields"`
}

func viewOf(c coordinates.Coordinates) coordinatesView {
	return coordinatesView{
		Layout:  c.Layout(),
		ID:      c.ID(),
		Version: c.Version(),
		Path:    c.Path(),
		Fields:  c.Fields(),
	}
}

func newLayoutsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "layouts",
		Short: "List supported repository layouts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			for _, l := range coordinates.Layouts() {
				fmt.Fprintln(cmd.OutOrStdout(), l)
			}
			return nil
		},
	}
}

func newParseCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "parse <layout> <path>",
		Short: "Parse a storage path into coordinates",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := coordinates.ParseLayout(args[0])
			if err != nil {
				return err
			}
			c, err := coordinates.Parse(l, args[1])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), viewOf(c))
		},
	}
}

func newResolveCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <storage> <repository> <path>",
		Short: "Resolve a repository path on disk",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd.Context()); err != nil {
				return err
			}
			provider, err := a.registry.ProviderFor(args[0], args[1])
			if err != nil {
				return err
			}
			loc, err := provider.Resolve(args[0], args[1], args[2])
			if err != nil {
				return err
			}
			exists, err := provider.Exists(args[0], args[1], args[2])
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), map[string]any{
				"storage_id":    loc.StorageID,
				"repository_id": loc.RepositoryID,
				"path":          loc.Path,
				"abs":           loc.Abs,
				"exists":        exists,
			})
		},
	}
}

func newDeleteCmd(a *app) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "delete <storage> <repository> <path>",
		Short: "Delete an artifact file or directory",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := a.load(cmd.Context()); err != nil {
				return err
			}
			provider, err := a.registry.ProviderFor(args[0], args[1])
			if err != nil {
				return err
			}
			if err := provider.Delete(args[0], args[1], args[2], force); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "deleted %s/%s/%s\n", args[0], args[1], args[2])
			return nil
		},
	}
	cmd.Flags().BoolVar(&force, "force", false, "delete directories holding several versions")
	return cmd
}

func newCheckSizeCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "check-size <storage> <repository> <bytes>",
		Short: "Check an upload size against the repository limit",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := strconv.ParseInt(args[2], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid size %q: %w", args[2], err)
			}
			if err := a.load(cmd.Context()); err != nil {
				return err
			}
			if err := a.validator.CheckArtifactSize(args[0], args[1], size); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func newRegisterCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "register <storage> <repository> <path> <bytes>",
		Short: "Validate an artifact and record its entry",
		Args:  cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			size, err := strconv.ParseInt(args[3], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid size %q: %w", args[3], err)
			}
			if err := a.load(cmd.Context()); err != nil {
				return err
			}
			provider, err := a.registry.ProviderFor(args[0], args[1])
			if err != nil {
				return err
			}
			c, err := provider.Parse(args[2])
			if err != nil {
				return err
			}
			if err := a.validator.CheckArtifactSize(args[0], args[1], size); err != nil {
				return err
			}
			store, err := a.openEntries()
			if err != nil {
				return err
			}
			defer store.Close()
			rec, err := store.Create(cmd.Context(), entries.NewArtifactEntry(args[0], args[1], c, size))
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), rec)
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprintln(cmd.OutOrStdout(), buildinfo.Info())
			return nil
		},
	}
}
