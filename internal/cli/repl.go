package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/c-bata/go-prompt"
	"github.com/hession/dealscout/internal/aggregator"
	"github.com/hession/dealscout/internal/config"
)

const (
	Version = "0.1.0"

	colorReset  = "\033[0m"
	colorGreen  = "\033[32m"
	colorYellow = "\033[33m"
	colorCyan   = "\033[36m"
	colorRed    = "\033[31m"
	colorGray   = "\033[90m"
)

// REPL holds the state of one interactive session.
type REPL struct {
	agg      *aggregator.Aggregator
	cfg      *config.Config
	out      io.Writer
	limit    int
	useCache bool
	exiting  bool
}

// NewREPL creates a session writing to out.
func NewREPL(agg *aggregator.Aggregator, cfg *config.Config, out io.Writer) *REPL {
	limit := cfg.Search.DefaultLimit
	if limit <= 0 {
		limit = 10
	}
	return &REPL{
		agg:      agg,
		cfg:      cfg,
		out:      out,
		limit:    limit,
		useCache: cfg.Cache.Enabled,
	}
}

// Run starts the interactive prompt and blocks until /exit or Ctrl+D.
func Run(ctx context.Context, agg *aggregator.Aggregator, cfg *config.Config) error {
	r := NewREPL(agg, cfg, os.Stdout)
	r.printWelcome()

	p := prompt.New(
		func(line string) { r.Execute(ctx, line) },
		completer,
		prompt.OptionPrefix("search> "),
		prompt.OptionPrefixTextColor(prompt.Green),
		prompt.OptionTitle("DealScout"),
		prompt.OptionSetExitCheckerOnInput(func(_ string, breakline bool) bool {
			return breakline && r.exiting
		}),
	)
	p.Run()

	fmt.Fprintf(r.out, "%sGoodbye! 👋%s\n", colorCyan, colorReset)
	return nil
}

// Execute handles one input line. It reports whether the session should end.
func (r *REPL) Execute(ctx context.Context, line string) bool {
	input := strings.TrimSpace(line)
	if input == "" {
		return false
	}
	if strings.HasPrefix(input, "/") {
		r.exiting = !r.handleCommand(input)
		return r.exiting
	}
	r.search(ctx, input)
	return false
}

func (r *REPL) search(ctx context.Context, keyword string) {
	fmt.Fprintf(r.out, "%s🔍 Searching for %q...%s\n", colorGray, keyword, colorReset)

	report, err := r.agg.SearchWithReport(ctx, keyword, r.limit, r.useCache)
	if err != nil {
		fmt.Fprintf(r.out, "%s❌ Error: %v%s\n", colorRed, err, colorReset)
		return
	}

	results := report.Results
	if len(results) > r.limit {
		results = results[:r.limit]
	}
	PrintResults(r.out, results)

	source := "live"
	if report.CacheHit {
		source = "cache"
	}
	fmt.Fprintf(r.out, "%s%d result(s) from %s in %s%s\n", colorGray, len(results), source, report.Elapsed.Round(time.Millisecond), colorReset)
	PrintProviderNotes(r.out, report.Providers)
	fmt.Fprintln(r.out)
}

// handleCommand handles built-in commands, returns true to continue loop, false to exit
func (r *REPL) handleCommand(cmd string) bool {
	parts := strings.Fields(cmd)
	if len(parts) == 0 {
		return true
	}

	switch strings.ToLower(parts[0]) {
	case "/help":
		r.printHelp()

	case "/exit", "/quit", "/q":
		return false

	case "/limit":
		if len(parts) < 2 {
			fmt.Fprintf(r.out, "Current limit: %d\n", r.limit)
			return true
		}
		n, err := strconv.Atoi(parts[1])
		if err != nil || n <= 0 {
			fmt.Fprintf(r.out, "%s❌ Limit must be a positive integer%s\n", colorRed, colorReset)
			return true
		}
		r.limit = n
		fmt.Fprintf(r.out, "%s✅ Limit set to %d%s\n", colorGreen, n, colorReset)

	case "/cache":
		if len(parts) < 2 {
			fmt.Fprintf(r.out, "Cache: %s\n", onOff(r.useCache))
			return true
		}
		switch strings.ToLower(parts[1]) {
		case "on":
			if r.agg.Cache() == nil {
				fmt.Fprintf(r.out, "%s⚠️  Cache is disabled in the configuration%s\n", colorYellow, colorReset)
				return true
			}
			r.useCache = true
		case "off":
			r.useCache = false
		default:
			fmt.Fprintf(r.out, "%s❓ Usage: /cache on|off%s\n", colorYellow, colorReset)
			return true
		}
		fmt.Fprintf(r.out, "%s✅ Cache %s%s\n", colorGreen, onOff(r.useCache), colorReset)

	case "/providers":
		for _, p := range r.agg.Providers() {
			state := colorGreen + "configured" + colorReset
			if !p.Configured() {
				state = colorGray + "missing credentials" + colorReset
			}
			fmt.Fprintf(r.out, "  %-16s %s\n", p.Name(), state)
		}

	case "/stats":
		c := r.agg.Cache()
		if c == nil {
			fmt.Fprintln(r.out, "Cache is disabled")
			return true
		}
		s := c.Stats()
		fmt.Fprintf(r.out, "Cache (TTL %s): hits=%d misses=%d expired=%d read_failures=%d writes=%d write_failures=%d\n",
			c.TTL(), s.Hits, s.Misses, s.Expired, s.ReadFailures, s.Writes, s.WriteFailures)

	case "/config":
		fmt.Fprintln(r.out, r.cfg.String())

	default:
		fmt.Fprintf(r.out, "%s❓ Unknown command: %s%s\n", colorYellow, cmd, colorReset)
		fmt.Fprintln(r.out, "Type /help for available commands")
	}
	return true
}

func (r *REPL) printWelcome() {
	fmt.Fprintf(r.out, "\n%s🛒 DealScout v%s%s - product search across eBay, Amazon and Google Shopping\n", colorCyan, Version, colorReset)
	fmt.Fprintf(r.out, "%sType a keyword to search, /help for help, /exit to quit%s\n\n", colorGray, colorReset)
}

func (r *REPL) printHelp() {
	fmt.Fprintf(r.out, `
%s📚 DealScout Help%s

%sBuilt-in Commands:%s
  /limit [N]       - Show or set results per provider
  /cache on|off    - Use or bypass the result cache
  /providers       - Show which backends have credentials
  /stats           - Show cache statistics
  /config          - Show current configuration
  /exit            - Exit program

Anything else is searched as a product keyword.

`, colorCyan, colorReset, colorYellow, colorReset)
}

var commandSuggestions = []prompt.Suggest{
	{Text: "/limit", Description: "Show or set results per provider"},
	{Text: "/cache", Description: "Use or bypass the result cache"},
	{Text: "/providers", Description: "Show configured backends"},
	{Text: "/stats", Description: "Show cache statistics"},
	{Text: "/config", Description: "Show current configuration"},
	{Text: "/help", Description: "Show help"},
	{Text: "/exit", Description: "Exit program"},
}

// completer only suggests while a command word is being typed.
func completer(d prompt.Document) []prompt.Suggest {
	word := d.GetWordBeforeCursor()
	if !strings.HasPrefix(word, "/") || strings.Contains(d.TextBeforeCursor(), " ") {
		return nil
	}
	return prompt.FilterHasPrefix(commandSuggestions, word, true)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}
