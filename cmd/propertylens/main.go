// cmd/propertylens/main.go
package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/propertylens/propertylens/internal/config"
	"github.com/propertylens/propertylens/internal/errors"
)

// Version information (set by build flags)
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

// main routes CLI arguments to the subcommands.
func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "run":
		cmdRun(os.Args[2:])

	case "validate":
		cmdValidate(os.Args[2:])

	case "template":
		cmdTemplate(os.Args[2:])

	case "serve":
		cmdServe(os.Args[2:])

	case "version", "--version":
		printVersion()

	case "help", "--help", "-h":
		printUsage()

	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

// exitWith prints the error through the recovery service and exits with
// its deterministic code.
func exitWith(svc *errors.Service, err error) {
	fmt.Fprint(os.Stderr, svc.FormatForCLI(err))
	os.Exit(svc.GetExitCode(err))
}

// cmdValidate loads a config and reports every problem it finds.
func cmdValidate(args []string) {
	fs := flag.NewFlagSet("validate", flag.ExitOnError)
	verbose := fs.Bool("verbose", false, "print configuration details")
	fs.Parse(args)
	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: propertylens validate [flags] <config.yaml>")
		os.Exit(1)
	}
	path := fs.Arg(0)

	svc := errors.NewService().WithVerbose(*verbose)
	cfg, err := config.Load(path)
	if err != nil {
		// Validation messages already name the exact field; print them
		// as-is instead of the generic friendly rendering.
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(svc.GetExitCode(err))
	}

	result := cfg.ValidateWithDetails()
	for _, w := range result.Warnings {
		fmt.Printf("warning: %s\n", w)
	}
	if *verbose {
		fmt.Printf("Configuration details:\n")
		fmt.Printf("  Site: %s\n", cfg.Site)
		fmt.Printf("  City: %s\n", cfg.Search.City)
		fmt.Printf("  Localities: %d configured, all_localities=%v\n",
			len(cfg.Search.Localities), cfg.Search.AllLocalities)
		fmt.Printf("  Target listings: %d\n", cfg.Limits.TargetListings)
		fmt.Printf("  Output formats: %s\n", strings.Join(cfg.Output.Formats, ", "))
		if cfg.Output.Database != nil {
			fmt.Printf("  Database sink: %s\n", cfg.Output.Database.Driver)
		}
	}
	fmt.Printf("✓ Configuration file %q is valid\n", path)
}

// cmdTemplate prints a starter configuration for a portal.
func cmdTemplate(args []string) {
	fs := flag.NewFlagSet("template", flag.ExitOnError)
	site := fs.String("site", "99acres", "portal to template: 99acres, magicbricks or nobroker")
	out := fs.String("o", "", "write to a file instead of stdout")
	fs.Parse(args)

	cfg, err := config.Template(*site)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	if *out != "" {
		if err := cfg.SaveToFile(*out); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("Template written to %s\n", *out)
		return
	}
	if err := cfg.SaveToWriter(os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// printUsage displays help information.
func printUsage() {
	fmt.Println("PropertyLens - Gurgaon Real Estate Listing Crawler")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  propertylens run [flags] <config.yaml>       Crawl a portal with the given config")
	fmt.Println("  propertylens validate [flags] <config.yaml>  Validate a configuration file")
	fmt.Println("  propertylens template [flags]                Print a starter configuration")
	fmt.Println("  propertylens serve [flags] <config.yaml>     Serve the dashboard API")
	fmt.Println("  propertylens version                         Show version information")
	fmt.Println("  propertylens help                            Show this help message")
	fmt.Println()
	fmt.Println("Run flags:")
	fmt.Println("  -city string        Override the configured search city")
	fmt.Println("  -localities string  Comma-separated locality override")
	fmt.Println("  -all-localities     Crawl the built-in Gurgaon locality catalog")
	fmt.Println("  -target int         Override the listing target")
	fmt.Println("  -env string         .env file with secrets (default \".env\")")
	fmt.Println("  -verbose            Verbose output and debug logging")
	fmt.Println()
	fmt.Println("Template flags:")
	fmt.Println("  -site string        99acres, magicbricks or nobroker (default \"99acres\")")
	fmt.Println("  -o string           Write to a file instead of stdout")
	fmt.Println()
	fmt.Println("Serve flags:")
	fmt.Println("  -listen string      Override the configured listen address")
}

// printVersion displays version information.
func printVersion() {
	fmt.Printf("PropertyLens %s\n", version)
	fmt.Printf("Build time: %s\n", buildTime)
	fmt.Printf("Git commit: %s\n", gitCommit)
}
