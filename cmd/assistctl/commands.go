package main

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/fyrsmithlabs/assistd/internal/assistant"
	"github.com/fyrsmithlabs/assistd/internal/diagnosis"
	httpserver "github.com/fyrsmithlabs/assistd/internal/http"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

var (
	chatVariant string
	chatSession string
	chatHistory string

	diagYear     int
	diagMake     string
	diagModel    string
	diagSymptoms string
	diagMileage  int

	routeRules string
)

// chatCmd sends one user message to a variant
var chatCmd = &cobra.Command{
	Use:   "chat [message]",
	Short: "Send a message to an assistant variant",
	Long: `Send one user message to an assistant variant and print the reply.

Prior turns can be supplied as a JSON array of {"role","content"} objects.

Examples:
  # Ask the general assistant
  assistctl chat "how do I change my wiper blades?"

  # Continue a greeter conversation
  assistctl chat --variant greeter --history turns.json "brakes squeak"`,
	Args: cobra.ExactArgs(1),
	RunE: runChat,
}

// diagnoseCmd requests a structured diagnosis
var diagnoseCmd = &cobra.Command{
	Use:   "diagnose",
	Short: "Request a structured symptom diagnosis",
	Long: `Request a structured diagnosis for a vehicle and its symptoms.

Examples:
  assistctl diagnose --year 2014 --make toyota --model camry --symptoms "squeal when braking"`,
	RunE: runDiagnose,
}

// routeCmd runs the heuristic router locally
var routeCmd = &cobra.Command{
	Use:   "route [message]",
	Short: "Show which redirect a message would trigger",
	Long: `Run the keyword router locally against a message. No server is needed.

Examples:
  # Built-in rules
  assistctl route "grinding noise when braking"

  # Rules under test
  assistctl route --rules rules.toml "is there a recall on my airbag"`,
	Args: cobra.ExactArgs(1),
	RunE: runRoute,
}

// healthCmd checks server health
var healthCmd = &cobra.Command{
	Use:   "health",
	Short: "Check assistd server health",
	Long: `Check the health status of the assistd HTTP server.

Examples:
  assistctl health --server http://localhost:9090`,
	RunE: runHealth,
}

func init() {
	chatCmd.Flags().StringVar(&chatVariant, "variant", assistant.VariantChat, "assistant variant (chat, greeter, diagnostic)")
	chatCmd.Flags().StringVar(&chatSession, "session", "", "session id (generated when empty)")
	chatCmd.Flags().StringVar(&chatHistory, "history", "", "JSON file with prior turns")

	diagnoseCmd.Flags().IntVar(&diagYear, "year", 0, "model year")
	diagnoseCmd.Flags().StringVar(&diagMake, "make", "", "vehicle make")
	diagnoseCmd.Flags().StringVar(&diagModel, "model", "", "vehicle model")
	diagnoseCmd.Flags().StringVar(&diagSymptoms, "symptoms", "", "symptom description")
	diagnoseCmd.Flags().IntVar(&diagMileage, "mileage", 0, "odometer reading")
	for _, name := range []string{"year", "make", "model", "symptoms"} {
		_ = diagnoseCmd.MarkFlagRequired(name)
	}

	routeCmd.Flags().StringVar(&routeRules, "rules", "", "TOML rules file (built-in rules when empty)")
}

// chatRequest matches internal/http ConversationRequest
type chatRequest struct {
	Messages  []assistant.Turn `json:"messages"`
	SessionID string           `json:"sessionId"`
}

func runChat(cmd *cobra.Command, args []string) error {
	var turns []assistant.Turn
	if chatHistory != "" {
		data, err := os.ReadFile(chatHistory)
		if err != nil {
			return fmt.Errorf("failed to read history %s: %w", chatHistory, err)
		}
		if err := json.Unmarshal(data, &turns); err != nil {
			return fmt.Errorf("failed to parse history %s: %w", chatHistory, err)
		}
	}
	turns = append(turns, assistant.Turn{Role: assistant.RoleUser, Content: args[0]})

	session := chatSession
	if session == "" {
		session = uuid.NewString()
	}

	var resp assistant.Response
	if err := postJSON(httpserver.PathFor(chatVariant), chatRequest{Messages: turns, SessionID: session}, &resp); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, replyStyle.Render(resp.Reply))
	if resp.Link != nil {
		fmt.Fprintf(out, "%s %s\n", labelStyle.Render("link:"), linkStyle.Render(resp.Link.Label+" → "+resp.Link.Href))
	}
	if resp.Redirect != "" {
		fmt.Fprintf(out, "%s %s\n", labelStyle.Render("redirect:"), resp.Redirect)
	}
	if resp.FollowUp != nil {
		fmt.Fprintln(out, dimStyle.Render(resp.FollowUp.Content))
	}
	fmt.Fprintln(out, dimStyle.Render("session "+session))
	return nil
}

func runDiagnose(cmd *cobra.Command, _ []string) error {
	req := diagnosis.Request{
		Year:     diagYear,
		Make:     diagMake,
		Model:    diagModel,
		Symptoms: diagSymptoms,
		Mileage:  diagMileage,
	}
	if err := req.Validate(time.Now()); err != nil {
		return err
	}

	var report diagnosis.Report
	if err := postJSON("/api/diagnose", req, &report); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%d %s %s", req.Year, req.Make, req.Model)))
	fmt.Fprintln(out, report.Summary)
	fmt.Fprintf(out, "%s %s   %s %s\n",
		labelStyle.Render("urgency:"), urgencyStyle(report.Urgency).Render(string(report.Urgency)),
		labelStyle.Render("difficulty:"), report.Difficulty)
	if report.EstimatedCost != "" {
		fmt.Fprintf(out, "%s %s\n", labelStyle.Render("estimated cost:"), report.EstimatedCost)
	}

	fmt.Fprintln(out, sectionStyle.Render("Likely causes"))
	for i, c := range report.Causes {
		fmt.Fprintf(out, "%d. %s %s\n", i+1, c.Name, dimStyle.Render("("+string(c.Likelihood)+")"))
		if c.Description != "" {
			fmt.Fprintf(out, "   %s\n", c.Description)
		}
	}
	printList(cmd, "Next steps", report.NextSteps)
	printList(cmd, "Safety", report.SafetyNotes)
	return nil
}

func printList(cmd *cobra.Command, title string, items []string) {
	if len(items) == 0 {
		return
	}
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, sectionStyle.Render(title))
	for _, item := range items {
		fmt.Fprintf(out, "- %s\n", item)
	}
}

func runRoute(cmd *cobra.Command, args []string) error {
	rules := assistant.DefaultRules()
	if routeRules != "" {
		loaded, err := assistant.LoadRules(routeRules)
		if err != nil {
			return err
		}
		rules = loaded
	}

	router, err := assistant.NewRouter(rules)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	rule, ok := router.Route(args[0])
	if !ok {
		fmt.Fprintln(out, dimStyle.Render("no redirect"))
		return nil
	}
	fmt.Fprintf(out, "%s %s %s\n", okStyle.Render(rule.Name), dimStyle.Render("→"), rule.Target)
	return nil
}

func runHealth(cmd *cobra.Command, _ []string) error {
	url := serverURL + "/health"

	client := &http.Client{
		Timeout: 5 * time.Second,
	}
	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("failed to connect to %s: %w", url, err)
	}
	defer resp.Body.Close()

	var health httpserver.HealthResponse
	if err := decodeResponse(resp, &health); err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	status := okStyle.Render(health.Status)
	if health.Status != "ok" {
		status = errStyle.Render(health.Status)
	}
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Server Status:"), status)
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Server URL:"), serverURL)
	fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Variants:"), strings.Join(health.Variants, ", "))
	if health.Telemetry != "" {
		fmt.Fprintf(out, "%s %s\n", labelStyle.Render("Telemetry:"), health.Telemetry)
	}
	return nil
}
