// Command poigeojson converts local POI CSV files into the GeoJSON
// FeatureCollection the map serves.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/couchcryptid/poi-map/internal/domain"
	"github.com/jessevdk/go-flags"
)

type Options struct {
	Input           string `short:"i" long:"in" description:"Primary CSV file. Reads from stdin if empty"`
	Activated       string `short:"a" long:"activated" description:"Activated locations CSV file"`
	Queued          string `short:"q" long:"queued" description:"Queued locations CSV file"`
	Output          string `short:"o" long:"out" description:"Output file path. Writes to stdout if empty"`
	PrimaryParser   string `long:"primary-parser" description:"Parser for the primary file" choice:"naive" choice:"quoted" default:"naive"`
	SecondaryParser string `long:"secondary-parser" description:"Parser for the activated and queued files" choice:"naive" choice:"quoted" default:"naive"`
	Indent          bool   `long:"indent" description:"Indent the JSON output"`
}

// summary is printed to stderr after a conversion.
type summary struct {
	Records int
	Dropped int
	Counts  map[domain.Status]int
}

func main() {
	var opts Options
	parser := flags.NewParser(&opts, flags.Default)
	if _, err := parser.Parse(); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok && flagsErr.Type == flags.ErrHelp {
			os.Exit(0)
		}
		os.Exit(1)
	}

	var out io.Writer = os.Stdout
	if opts.Output != "" {
		f, err := os.Create(opts.Output)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error creating output file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		out = f
	}

	sum, err := run(opts, os.Stdin, out)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	fmt.Fprintf(os.Stderr, "Converted %d records: %d activated, %d queued, %d default, %d without valid coordinates\n",
		sum.Records,
		sum.Counts[domain.StatusActivated],
		sum.Counts[domain.StatusQueued],
		sum.Counts[domain.StatusDefault],
		sum.Dropped,
	)
}

func run(opts Options, stdin io.Reader, out io.Writer) (summary, error) {
	var data []byte
	var err error
	if opts.Input != "" {
		data, err = os.ReadFile(opts.Input)
	} else {
		data, err = io.ReadAll(stdin)
	}
	if err != nil {
		return summary{}, fmt.Errorf("read primary: %w", err)
	}

	secondary := domain.ParseParserStrategy(opts.SecondaryParser)
	activated, err := readKeys(opts.Activated, secondary)
	if err != nil {
		return summary{}, fmt.Errorf("read activated: %w", err)
	}
	queued, err := readKeys(opts.Queued, secondary)
	if err != nil {
		return summary{}, fmt.Errorf("read queued: %w", err)
	}

	records := domain.ParseRecords(data, domain.ParseParserStrategy(opts.PrimaryParser))
	features := domain.Classify(records, activated, queued)
	fc, dropped := domain.Project(features)

	sum := summary{Records: len(records), Dropped: dropped, Counts: map[domain.Status]int{}}
	for _, f := range features {
		sum.Counts[f.Status]++
	}

	enc := json.NewEncoder(out)
	if opts.Indent {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(fc); err != nil {
		return summary{}, fmt.Errorf("write geojson: %w", err)
	}
	return sum, nil
}

// readKeys returns a nil set for an empty path.
func readKeys(path string, strategy domain.ParserStrategy) (domain.KeySet, error) {
	if path == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return domain.NewKeySet(domain.ParseRecords(data, strategy)), nil
}
