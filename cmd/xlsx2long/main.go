// Command xlsx2long reshapes a raw wide-format deflection workbook (one
// sheet per specimen, trial/method header pairs) into the tidy long-format
// CSV consumed by the deflect pipeline.
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/xuri/excelize/v2"

	"github.com/archlab/deflect/internal/export"
	"github.com/archlab/deflect/internal/ingest"
	"github.com/archlab/deflect/internal/log"
)

func main() {
	input := flag.String("in", "deflection_raw.xlsx", "Path to the raw wide-format workbook")
	output := flag.String("out", "deflection_long.csv", "Path for the tidy long-format CSV")
	debug := flag.Bool("debug", false, "Turn on debugging output")
	flag.Parse()

	if err := log.Init(*debug); err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer log.Sync()

	f, err := excelize.OpenFile(*input)
	if err != nil {
		log.Errorf("Failed to open workbook %s: %v", *input, err)
		os.Exit(1)
	}
	defer f.Close()

	measurements, err := ingest.ReshapeWorkbook(f, log.GetSugaredLogger())
	if err != nil {
		log.Errorf("Failed to reshape workbook: %v", err)
		os.Exit(1)
	}
	if len(measurements) == 0 {
		log.Errorf("No measurements found in %s", *input)
		os.Exit(1)
	}

	if err := export.WriteLong(*output, measurements); err != nil {
		log.Errorf("Failed to write %s: %v", *output, err)
		os.Exit(1)
	}
	log.Infof("wrote %d measurements to %s", len(measurements), *output)
}
