package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nopea/nopea/pkg/app"
	"github.com/nopea/nopea/pkg/config"
	"github.com/nopea/nopea/pkg/domain/deployment"
	"github.com/nopea/nopea/pkg/httpapi"
	"github.com/nopea/nopea/pkg/manifest"
	"github.com/nopea/nopea/pkg/mcpserver"
)

var (
	flagManifests string
	flagService   string
	flagNamespace string
	flagStrategy  string
)

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:     "nopea",
		Short:   "Kubernetes deploys with a memory",
		Version: fmt.Sprintf("%s (%s)", Version, GitCommit),
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}
	root.AddCommand(deployCmd(), statusCmd(), contextCmd(), historyCmd(), memoryCmd(), serveCmd(), mcpCmd())
	return root
}

// withApp assembles the application, runs fn, and tears it down.
func withApp(fn func(*app.App) error) error {
	a, err := app.New(config.Load(), app.Options{})
	if err != nil {
		return err
	}
	defer a.Close()
	return fn(a)
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func deployCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "deploy",
		Short: "Deploy a service from manifest files",
		Long: `Deploy applies the given manifests for a service. The rollout strategy
is auto-selected from the service's deploy history unless --strategy is set.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if flagService == "" {
				return fmt.Errorf("--service is required")
			}
			var manifests []manifest.Manifest
			if flagManifests != "" {
				var err error
				manifests, err = manifest.Load(flagManifests)
				if err != nil {
					return fmt.Errorf("loading manifests: %w", err)
				}
			}
			return withApp(func(a *app.App) error {
				result := a.Supervisor.Deploy(cmd.Context(), deployment.Spec{
					Service:   flagService,
					Namespace: flagNamespace,
					Manifests: manifests,
					Strategy:  deployment.Strategy(flagStrategy),
				})
				if err := printJSON(result); err != nil {
					return err
				}
				if result.Status != deployment.StatusCompleted {
					return fmt.Errorf("deploy %s: %s", result.DeployID, result.Status)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVarP(&flagManifests, "file", "f", "", "manifest file or directory")
	cmd.Flags().StringVarP(&flagService, "service", "s", "", "service name")
	cmd.Flags().StringVarP(&flagNamespace, "namespace", "n", "", "target namespace")
	cmd.Flags().StringVar(&flagStrategy, "strategy", "", "rollout strategy: direct, canary, blue_green")
	return cmd
}

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <service>",
		Short: "Show a service's agent state and last deploy",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				state, ok := a.Supervisor.Status(args[0])
				if !ok {
					return fmt.Errorf("no deploys recorded for %s", args[0])
				}
				return printJSON(state)
			})
		},
	}
}

func contextCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "context <service>",
		Short: "Show what memory knows about a service",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			namespace := flagNamespace
			if namespace == "" {
				namespace = deployment.DefaultNamespace
			}
			return withApp(func(a *app.App) error {
				return printJSON(a.Memory.GetDeployContext(args[0], namespace))
			})
		},
	}
	cmd.Flags().StringVarP(&flagNamespace, "namespace", "n", "", "namespace")
	return cmd
}

func historyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "history <service>",
		Short: "List past deploys for a service, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				results, err := a.History.List(args[0])
				if err != nil {
					return err
				}
				return printJSON(results)
			})
		},
	}
}

func memoryCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "memory",
		Short: "Show knowledge graph statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				return printJSON(a.Memory.GetStats())
			})
		},
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				srv := httpapi.NewServer(a.Config.APIPort, a.Supervisor, a.Memory, a.History)
				return srv.ListenAndServe(cmd.Context())
			})
		},
	}
}

func mcpCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Run the MCP tool server on stdio",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withApp(func(a *app.App) error {
				return mcpserver.NewServer(a.Supervisor, a.Memory, a.History).ServeStdio()
			})
		},
	}
}
