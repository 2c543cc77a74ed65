package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fleetconf/shepherd/pkg/client"
	"github.com/fleetconf/shepherd/pkg/types"
)

var applyCmd = &cobra.Command{
	Use:   "apply",
	Short: "Apply a resource from a YAML file",
	Long: `Apply a Shepherd resource from a YAML file.

Examples:
  # Register a configuration
  shepherd apply -f baseline.yaml

  # Enroll a component against a running service
  shepherd apply -f node.yaml --server http://cfg.internal:8080`,
	RunE: runApply,
}

func init() {
	applyCmd.Flags().StringP("file", "f", "", "YAML file to apply (required)")
	applyCmd.Flags().String("server", "http://localhost:8080", "Service address")
	_ = applyCmd.MarkFlagRequired("file")

	rootCmd.AddCommand(applyCmd)
}

type resource struct {
	Kind string         `yaml:"kind"`
	Name string         `yaml:"name"`
	Spec map[string]any `yaml:"spec"`
}

// decodeSpec re-marshals the YAML spec through JSON so the wire-format
// field names apply.
func decodeSpec(spec map[string]any, out any) error {
	data, err := json.Marshal(spec)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, out)
}

func runApply(cmd *cobra.Command, args []string) error {
	filename, _ := cmd.Flags().GetString("file")
	server, _ := cmd.Flags().GetString("server")

	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read file: %v", err)
	}
	var res resource
	if err := yaml.Unmarshal(data, &res); err != nil {
		return fmt.Errorf("failed to parse YAML: %v", err)
	}
	if res.Name == "" {
		return fmt.Errorf("resource name is required")
	}

	c := client.New(server)
	ctx := context.Background()

	switch res.Kind {
	case "Configuration":
		var cfg types.Configuration
		if err := decodeSpec(res.Spec, &cfg); err != nil {
			return fmt.Errorf("invalid configuration spec: %v", err)
		}
		cfg.Name = res.Name
		applied, err := c.PutConfiguration(ctx, &cfg)
		if err != nil {
			return fmt.Errorf("failed to apply configuration: %v", err)
		}
		fmt.Printf("configuration %s applied (%d layers)\n", applied.Name, len(applied.Layers))
	case "Component":
		var comp types.Component
		if err := decodeSpec(res.Spec, &comp); err != nil {
			return fmt.Errorf("invalid component spec: %v", err)
		}
		comp.ID = res.Name
		applied, err := c.PutComponent(ctx, &comp)
		if err != nil {
			return fmt.Errorf("failed to apply component: %v", err)
		}
		fmt.Printf("component %s applied (status=%s)\n", applied.ID, applied.Status)
	case "Session":
		var sess types.Session
		if err := decodeSpec(res.Spec, &sess); err != nil {
			return fmt.Errorf("invalid session spec: %v", err)
		}
		sess.Name = res.Name
		created, err := c.CreateSession(ctx, &sess)
		if err != nil {
			return fmt.Errorf("failed to create session: %v", err)
		}
		fmt.Printf("session %s created (configuration=%s)\n", created.Name, created.Configuration)
	default:
		return fmt.Errorf("unsupported resource kind: %s", res.Kind)
	}
	return nil
}
