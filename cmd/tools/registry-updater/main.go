// cmd/tools/registry-updater/main.go
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"outing-workers/internal/common/validation"
	"outing-workers/pkg/registry"
)

var (
	registryPath string

	addActivity registry.Activity

	updateID    string
	updateField string
	updateValue string
)

var rootCmd = &cobra.Command{
	Use:           "registry-updater",
	Short:         "Maintain the activity registry used by the outing workers",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add or replace an activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(func(reg *registry.ActivityRegistry) error {
			a := addActivity
			if a.TaskType == "" {
				a.TaskType = a.ID
			}
			a.InputSchema = map[string]interface{}{}
			a.OutputSchema = map[string]interface{}{}
			a.ErrorCodes = []string{}
			a.Workflows = []string{"family-outing-chat"}
			a.Tags = []string{}
			if reg.Upsert(a) {
				fmt.Printf("Added activity: %s\n", a.ID)
			} else {
				fmt.Printf("Replaced activity: %s\n", a.ID)
			}
			return nil
		})
	},
}

var updateCmd = &cobra.Command{
	Use:   "update",
	Short: "Update a single field of an activity",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withRegistry(func(reg *registry.ActivityRegistry) error {
			for i := range reg.Activities {
				if reg.Activities[i].ID != updateID {
					continue
				}
				if err := setField(&reg.Activities[i], updateField, updateValue); err != nil {
					return err
				}
				fmt.Printf("Updated %s.%s = %s\n", updateID, updateField, updateValue)
				return nil
			}
			return fmt.Errorf("activity %q not found", updateID)
		})
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Check ids, task types and schemas",
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := registry.LoadRegistry(registryPath)
		if err != nil {
			return err
		}
		problems := reg.Validate()
		for _, p := range problems {
			fmt.Printf("  - %v\n", p)
		}
		if len(problems) > 0 {
			return fmt.Errorf("%d problem(s) in %s", len(problems), registryPath)
		}
		fmt.Printf("Registry OK: %d activities\n", len(reg.Activities))
		return nil
	},
}

var checkCmd = &cobra.Command{
	Use:   "check <task-type> <variables.json>",
	Short: "Validate job variables against a task type's input schema",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		reg, err := registry.LoadRegistry(registryPath)
		if err != nil {
			return err
		}
		schema, ok := reg.InputSchemaFor(args[0])
		if !ok {
			return fmt.Errorf("no input schema registered for %q", args[0])
		}
		v, err := validation.NewValidator(schema)
		if err != nil {
			return err
		}
		raw, err := os.ReadFile(args[1])
		if err != nil {
			return err
		}
		res := v.ValidateJSON(string(raw))
		if !res.Valid {
			return fmt.Errorf("invalid variables: %s", res.Summary())
		}
		fmt.Println("Variables OK")
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&registryPath, "path", "configs/activity-registry.json", "Path to registry file")

	addCmd.Flags().StringVar(&addActivity.ID, "id", "", "Activity ID (e.g. search-facilities)")
	addCmd.Flags().StringVar(&addActivity.DisplayName, "display-name", "", "Display name")
	addCmd.Flags().StringVar(&addActivity.Description, "description", "", "Description")
	addCmd.Flags().StringVar(&addActivity.Category, "category", "outing", "Category")
	addCmd.Flags().StringVar(&addActivity.TaskType, "task-type", "", "Zeebe job type (defaults to id)")
	addCmd.Flags().StringVar(&addActivity.Version, "version", "1.0.0", "Version")
	addCmd.Flags().StringVar(&addActivity.ImplementationStatus, "status", "planned", "planned, in-progress, completed or verified")
	addCmd.Flags().StringVar(&addActivity.Timeout, "timeout", "10s", "Job timeout")
	addCmd.Flags().IntVar(&addActivity.Retries, "retries", 0, "Job retries")
	addCmd.MarkFlagRequired("id")
	addCmd.MarkFlagRequired("display-name")

	updateCmd.Flags().StringVar(&updateID, "id", "", "Activity ID to update")
	updateCmd.Flags().StringVar(&updateField, "field", "", "Field to update")
	updateCmd.Flags().StringVar(&updateValue, "value", "", "New value")
	updateCmd.MarkFlagRequired("id")
	updateCmd.MarkFlagRequired("field")

	rootCmd.AddCommand(addCmd, updateCmd, validateCmd, checkCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func withRegistry(fn func(reg *registry.ActivityRegistry) error) error {
	reg, err := registry.LoadRegistry(registryPath)
	if err != nil {
		return fmt.Errorf("load registry: %w", err)
	}
	if err := fn(reg); err != nil {
		return err
	}
	reg.LastUpdated = time.Now().UTC().Format(time.RFC3339)
	return reg.Save(registryPath)
}

// setField applies a string value to a named activity field.
func setField(a *registry.Activity, field, value string) error {
	switch field {
	case "status", "implementationStatus":
		a.ImplementationStatus = value
	case "version":
		a.Version = value
	case "displayName":
		a.DisplayName = value
	case "description":
		a.Description = value
	case "category":
		a.Category = value
	case "taskType":
		a.TaskType = value
	case "timeout":
		if _, err := time.ParseDuration(value); err != nil {
			return fmt.Errorf("timeout: %w", err)
		}
		a.Timeout = value
	case "retries":
		n, err := strconv.Atoi(value)
		if err != nil || n < 0 {
			return fmt.Errorf("retries must be a non-negative integer, got %q", value)
		}
		a.Retries = n
	case "inputSchema", "outputSchema":
		var schema map[string]interface{}
		if err := json.Unmarshal([]byte(value), &schema); err != nil {
			return fmt.Errorf("%s: %w", field, err)
		}
		if field == "inputSchema" {
			a.InputSchema = schema
		} else {
			a.OutputSchema = schema
		}
	default:
		return fmt.Errorf("unknown field %q", field)
	}
	return nil
}
