// Package main provides a CLI for working with voiceform definitions
// and a running voiceform server.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/formversation/voiceform/pkg/engine"
	"github.com/formversation/voiceform/pkg/flow"
	"github.com/formversation/voiceform/pkg/logging"
	"github.com/formversation/voiceform/pkg/turn"
)

var (
	// Global flags
	serverURL string
)

const cliVersion = "0.1.0"

func main() {
	rootCmd := &cobra.Command{
		Use:   "voiceform-cli",
		Short: "Voiceform CLI",
		Long:  "Command-line interface for validating, running, and managing voice forms",
	}

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")

	validateCmd := &cobra.Command{
		Use:   "validate <file.yaml>",
		Short: "Validate a flow definition file",
		Args:  cobra.ExactArgs(1),
		RunE:  validateFlow,
	}

	runCmd := &cobra.Command{
		Use:   "run <file.yaml>",
		Short: "Run a flow definition as a console conversation",
		Args:  cobra.ExactArgs(1),
		RunE:  runFlow,
	}

	// Form commands against a running server
	formCmd := &cobra.Command{
		Use:   "form",
		Short: "Form management",
	}

	formListCmd := &cobra.Command{
		Use:   "list",
		Short: "List forms",
		RunE:  listForms,
	}

	formCreateCmd := &cobra.Command{
		Use:   "create <name> <file.yaml>",
		Short: "Create a form from a definition file",
		Args:  cobra.ExactArgs(2),
		RunE:  createForm,
	}

	formDeleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a form",
		Args:  cobra.ExactArgs(1),
		RunE:  deleteForm,
	}

	formCmd.AddCommand(formListCmd, formCreateCmd, formDeleteCmd)

	versionCmd := &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("voiceform-cli version %s\n", cliVersion)
		},
	}

	rootCmd.AddCommand(validateCmd, runCmd, formCmd, versionCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func validateFlow(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	loader := flow.NewLoader()
	doc, err := loader.Parse(string(data))
	if err != nil {
		return err
	}

	fmt.Printf("OK: flow %q (%s), %d steps, starts at %q\n",
		doc.Name(), doc.ID(), doc.StepCount(), doc.StartStepID())
	return nil
}

func runFlow(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[0], err)
	}

	doc, err := flow.NewLoader().Parse(string(data))
	if err != nil {
		return err
	}

	logger := logging.Nop()
	io := turn.NewConsoleIO(os.Stdin, os.Stdout, logger)
	driver := engine.NewDriver(doc, io, nil, logger, engine.Options{
		// Console respondents type at their own pace.
		ListenTimeout: 5 * time.Minute,
	})
	sess := engine.NewSession(doc.ID(), doc.StartStepID())

	if err := driver.Run(context.Background(), sess); err != nil {
		return fmt.Errorf("conversation ended early (%s): %w", sess.AbortReason, err)
	}

	if len(sess.Answers) > 0 {
		fmt.Println("\nCollected answers:")
		keys := make([]string, 0, len(sess.Answers))
		for k := range sess.Answers {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			fmt.Printf("  %s: %s\n", k, sess.Answers[k])
		}
	}
	return nil
}

func listForms(cmd *cobra.Command, args []string) error {
	resp, err := http.Get(serverURL + "/api/v1/forms")
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func createForm(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[1])
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", args[1], err)
	}

	body, err := json.Marshal(map[string]string{
		"name":        args[0],
		"yaml_config": string(data),
	})
	if err != nil {
		return err
	}

	resp, err := http.Post(serverURL+"/api/v1/forms", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	return printResponse(resp)
}

func deleteForm(cmd *cobra.Command, args []string) error {
	req, err := http.NewRequest(http.MethodDelete, serverURL+"/api/v1/forms/"+args[0], nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNoContent {
		fmt.Println("deleted")
		return nil
	}
	return printResponse(resp)
}

func printResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var pretty bytes.Buffer
	if json.Indent(&pretty, body, "", "  ") == nil {
		fmt.Println(pretty.String())
	} else {
		fmt.Println(string(body))
	}

	if resp.StatusCode >= 400 {
		return fmt.Errorf("server returned status %d", resp.StatusCode)
	}
	return nil
}
