package main

import (
	"fmt"
	"strconv"

	"github.com/cordum/pkgvault/core/configsvc"
	"github.com/spf13/cobra"
)

func newPolicyCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "policy",
		Short: "Manage live repository policy overrides in redis",
	}
	cmd.AddCommand(newPolicySetCmd(a), newPolicyListCmd(a), newPolicyDeleteCmd(a))
	return cmd
}

func (a *app) policyService() (*configsvc.Service, error) {
	url := a.v.GetString(keyRedisURL)
	if url == "" {
		return nil, fmt.Errorf("--redis or PKGVAULT_REDIS_URL required")
	}
	return configsvc.New(url)
}

func newPolicySetCmd(a *app) *cobra.Command {
	var maxSize, allowForce string
	cmd := &cobra.Command{
		Use:   "set <global|storage|repository> [scope-id]",
		Short: "Store a policy override",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			doc := &configsvc.Document{Scope: configsvc.Scope(args[0])}
			if len(args) == 2 {
				doc.ScopeID = args[1]
			}
			if maxSize != "" {
				v, err := strconv.ParseInt(maxSize, 10, 64)
				if err != nil {
					return fmt.Errorf("invalid --max-size: %w", err)
				}
				doc.Policy.ArtifactMaxSize = &v
			}
			if allowForce != "" {
				v, err := strconv.ParseBool(allowForce)
				if err != nil {
					return fmt.Errorf("invalid --allow-force: %w", err)
				}
				doc.Policy.AllowsForceDeletion = &v
			}
			svc, err := a.policyService()
			if err != nil {
				return err
			}
			defer svc.Close()
			if err := svc.Set(cmd.Context(), doc); err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), doc)
		},
	}
	cmd.Flags().StringVar(&maxSize, "max-size", "", "artifact size limit in bytes, 0 for unlimited")
	cmd.Flags().StringVar(&allowForce, "allow-force", "", "allow deleting multi-version directories without --force")
	return cmd
}

func newPolicyListCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored policy overrides",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := a.policyService()
			if err != nil {
				return err
			}
			defer svc.Close()
			docs, err := svc.List(cmd.Context())
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), docs)
		},
	}
}

func newPolicyDeleteCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <global|storage|repository> [scope-id]",
		Short: "Remove a policy override",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := ""
			if len(args) == 2 {
				id = args[1]
			}
			svc, err := a.policyService()
			if err != nil {
				return err
			}
			defer svc.Close()
			return svc.Delete(cmd.Context(), configsvc.Scope(args[0]), id)
		},
	}
}
