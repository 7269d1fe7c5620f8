package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/daaku/ghwebhook/internal/config"
	"github.com/daaku/ghwebhook/internal/webhook"
)

var (
	version   = "0.1.0-dev"
	gitCommit = "unknown"
	buildDate = "unknown"
)

func main() {
	os.Exit(runCLI(os.Args[1:]))
}

func runCLI(cliArgs []string) int {
	if len(cliArgs) < 1 {
		printUsage(os.Stderr)
		return 1
	}

	cmd := cliArgs[0]
	args := cliArgs[1:]

	switch cmd {
	case "serve":
		return runServe(args)
	case "sign":
		return runSign(args)
	case "verify":
		return runVerify(args)
	case "config":
		return runConfigNoun(args)
	case "deliveries":
		return runDeliveriesNoun(args)
	case "version", "--version":
		return runVersion(args)
	case "help", "--help", "-h":
		printUsage(os.Stdout)
		return 0
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage(os.Stderr)
		return 1
	}
}

func runSign(args []string) int {
	fs := flag.NewFlagSet("sign", flag.ContinueOnError)
	secret := fs.String("secret", "", "Shared webhook secret")
	file := fs.String("file", "", "Body file (default: stdin)")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *secret == "" {
		fmt.Fprintln(os.Stderr, "Usage: ghwebhook sign --secret <secret> [--file <path>]")
		return 1
	}

	body, err := readInput(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read body: %v\n", err)
		return 1
	}
	fmt.Println(webhook.Sign([]byte(*secret), body))
	return 0
}

func runVerify(args []string) int {
	fs := flag.NewFlagSet("verify", flag.ContinueOnError)
	secret := fs.String("secret", "", "Shared webhook secret")
	signature := fs.String("signature", "", "Signature header value (sha256=<hex>)")
	file := fs.String("file", "", "Body file (default: stdin)")
	event := fs.String("event", "", "X-GitHub-Event name; parses and summarizes the body")
	if err := fs.Parse(args); err != nil {
		return 1
	}
	if *secret == "" {
		fmt.Fprintln(os.Stderr, "Usage: ghwebhook verify --secret <secret> --signature <header> [--file <path>] [--event <name>]")
		return 1
	}

	body, err := readInput(*file)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read body: %v\n", err)
		return 1
	}

	v, err := webhook.NewVerifier(*secret)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	payload, err := v.Verify(body, *signature)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *event == "" {
		fmt.Println("ok")
		return 0
	}

	parsed, err := webhook.ParseEvent(*event, payload)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}
	fmt.Printf("ok %s\n", webhook.Summarize(parsed))
	return 0
}

func readInput(path string) ([]byte, error) {
	if path == "" || path == "-" {
		return io.ReadAll(os.Stdin)
	}
	return os.ReadFile(path)
}

func runConfigNoun(args []string) int {
	if len(args) < 1 || args[0] != "check" {
		fmt.Fprintln(os.Stderr, "Usage: ghwebhook config check --config <file>")
		return 1
	}

	fs := flag.NewFlagSet("config check", flag.ContinueOnError)
	configPath := fs.String("config", "config.yaml", "Path to configuration file")
	if err := fs.Parse(args[1:]); err != nil {
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		return 1
	}
	if _, err := webhook.FromGlobalConfig(cfg.Webhooks, cfg.Secrets); err != nil {
		fmt.Fprintf(os.Stderr, "Configuration invalid: %v\n", err)
		return 1
	}
	fingerprint, err := config.Fingerprint(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to fingerprint config: %v\n", err)
		return 1
	}

	fmt.Println("Configuration valid.")
	fmt.Printf("listen: %s\n", cfg.Webhooks.Listen)
	for _, ep := range cfg.Webhooks.Endpoints {
		events := "all"
		if len(ep.Events) > 0 {
			events = strings.Join(ep.Events, ",")
		}
		fmt.Printf("endpoint: %s events=%s\n", ep.Path, events)
	}
	fmt.Printf("fingerprint: %s\n", fingerprint)
	return 0
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(args []string) int {
	fs := flag.NewFlagSet("version", flag.ContinueOnError)
	jsonOut := fs.Bool("json", false, "Output version metadata as JSON")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	info := currentVersionInfo()
	if *jsonOut {
		data, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to render version JSON: %v\n", err)
			return 1
		}
		fmt.Println(string(data))
		return 0
	}

	fmt.Printf("ghwebhook %s\n", info.Version)
	fmt.Printf("commit: %s\n", info.Commit)
	fmt.Printf("built_at: %s\n", info.BuildTime)
	return 0
}

func currentVersionInfo() versionInfo {
	info := versionInfo{
		Version:   strings.TrimSpace(version),
		Commit:    "unknown",
		BuildTime: "unknown",
	}
	if info.Version == "" {
		info.Version = "0.0.0-dev"
	}

	commit := strings.TrimSpace(gitCommit)
	if commit == "" || commit == "unknown" {
		commit = readBuildSetting("vcs.revision")
	}
	if commit != "" {
		info.Commit = commit[:min(len(commit), 12)]
	}

	built := strings.TrimSpace(buildDate)
	if built == "" || built == "unknown" {
		built = readBuildSetting("vcs.time")
	}
	if t, err := time.Parse(time.RFC3339Nano, built); err == nil {
		info.BuildTime = t.UTC().Format(time.RFC3339)
	}
	return info
}

func readBuildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return strings.TrimSpace(setting.Value)
		}
	}
	return ""
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `ghwebhook - verified GitHub webhook receiver

Usage:
  ghwebhook <command> [flags]

Commands:
  serve       Run the receiver (--config)
  sign        Print the sha256 signature for a body (--secret, --file)
  verify      Check a body against a signature (--secret, --signature, --file, --event)
  config      check: validate a config file and print its fingerprint
  deliveries  list | show | prune | watch the delivery log (--state)
  version     Show version information (--json)
  help        Show this help

Examples:
  ghwebhook serve --config config.yaml
  echo -n '{"zen":"hello"}' | ghwebhook sign --secret mysecret
  ghwebhook deliveries list --state ./data/deliveries.db --limit 20
`)
}
