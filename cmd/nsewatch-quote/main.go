// nsewatch-quote is a small CLI over the nsewatch-server API.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"nsewatch/pkg/localcache"
	"nsewatch/pkg/nsewatch"
)

const version = "0.1.0"

func main() {
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: nsewatch-quote <command> [args]\n\n")
		fmt.Fprintf(os.Stderr, "Commands:\n")
		fmt.Fprintf(os.Stderr, "  version                Print the CLI version\n")
		fmt.Fprintf(os.Stderr, "  quote <symbol>         Show the latest quote\n")
		fmt.Fprintf(os.Stderr, "  index <name>           Show an index level\n")
		fmt.Fprintf(os.Stderr, "  chart <symbol> <rng>   Show an OHLCV series (1d 1w 1mo 3mo 6mo 1y 5y max)\n")
		fmt.Fprintf(os.Stderr, "  symbols                List tradable symbols\n")
		fmt.Fprintf(os.Stderr, "  signals <symbol>       Show indicator signals\n")
		fmt.Fprintf(os.Stderr, "\nNSEWATCH_URL overrides the server address (default http://localhost:8080).\n")
	}

	if len(os.Args) < 2 {
		flag.Usage()
		os.Exit(1)
	}

	baseURL := "http://localhost:8080"
	if u := os.Getenv("NSEWATCH_URL"); u != "" {
		baseURL = u
	}

	client := newClient(baseURL)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	switch os.Args[1] {
	case "version":
		fmt.Printf("nsewatch-quote %s\n", version)

	case "quote":
		requireArgs(2, "quote <symbol>")
		q, err := client.GetQuote(ctx, os.Args[2])
		exitOn(err)
		fmt.Printf("%s (%s)\n", q.Symbol, q.CompanyName)
		fmt.Printf("  price   %10.2f  (%+.2f, %+.2f%%)\n", q.Price, q.Change, q.PercentChange)
		fmt.Printf("  day     %10.2f - %.2f  prev close %.2f\n", q.Low, q.High, q.PreviousClose)
		fmt.Printf("  volume  %10.0f\n", q.Volume)

	case "index":
		requireArgs(2, "index <name>")
		q, err := client.GetIndexQuote(ctx, os.Args[2])
		exitOn(err)
		fmt.Printf("%s  %.2f  (%+.2f, %+.2f%%)\n", q.Name, q.Value, q.Change, q.PercentChange)

	case "chart":
		requireArgs(3, "chart <symbol> <range>")
		points, err := client.GetChart(ctx, os.Args[2], nsewatch.ChartRange(os.Args[3]))
		exitOn(err)
		for _, p := range points {
			fmt.Printf("%s  o=%.2f h=%.2f l=%.2f c=%.2f v=%.0f\n",
				p.Timestamp.Format("2006-01-02"), p.Open, p.High, p.Low, p.Close, p.Volume)
		}

	case "symbols":
		syms, err := client.GetSymbols(ctx)
		exitOn(err)
		for _, s := range syms {
			fmt.Printf("%-12s %s\n", s.Symbol, s.Name)
		}

	case "signals":
		requireArgs(2, "signals <symbol>")
		report, err := client.GetIndicators(ctx, os.Args[2], nsewatch.Range3M)
		exitOn(err)
		fmt.Printf("%s (%s, %d points)\n", report.Symbol, report.Range, report.DataPoints)
		for name, signal := range report.Signals {
			fmt.Printf("  %-10s %s\n", name, signal)
		}

	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		flag.Usage()
		os.Exit(1)
	}
}

// newClient builds the SDK client with a client-side cache under the user
// cache directory, degrading to memory-only when unavailable.
func newClient(baseURL string) *nsewatch.Client {
	dir, err := os.UserCacheDir()
	if err != nil {
		return nsewatch.NewClient(baseURL, nsewatch.WithCache(localcache.NewMemoryOnly()))
	}
	path := filepath.Join(dir, "nsewatch", "cache.db")
	os.MkdirAll(filepath.Dir(path), 0o755)

	cache, err := localcache.New(path)
	if err != nil {
		cache = localcache.NewMemoryOnly()
	}
	return nsewatch.NewClient(baseURL, nsewatch.WithCache(cache))
}

func requireArgs(n int, usage string) {
	if len(os.Args) < n+1 {
		fmt.Fprintf(os.Stderr, "usage: nsewatch-quote %s\n", usage)
		os.Exit(1)
	}
}

func exitOn(err error) {
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
