package metrics

import (
	"fmt"
	"io"
	"os"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

// Write gathers the registry and encodes it in the Prometheus text
// exposition format. Used when the run executes under an automated CI
// context, where a scrape endpoint would never be reached.
func Write(g prometheus.Gatherer, w io.Writer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gathering metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encoding metric family %q: %w", mf.GetName(), err)
		}
	}
	return nil
}

// WriteFile writes the gathered registry to the named file, creating or
// truncating it.
func WriteFile(g prometheus.Gatherer, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating metrics file: %w", err)
	}
	defer f.Close()
	return Write(g, f)
}
