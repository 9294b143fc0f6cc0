package provider

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/gantry-ci/gantry/internal/config"
	gantryerrors "github.com/gantry-ci/gantry/pkg/gantry/v1/errors"
)

// staticSiteProvider publishes a built artifact directory to a static
// hosting service through its CLI. The hosting token must arrive through an
// override argument; tokens resolved from checked-in configuration are
// refused, since config files pass through version control.
type staticSiteProvider struct{}

var _ Provider = (*staticSiteProvider)(nil)

func init() {
	Register("static-site", func() Provider { return &staticSiteProvider{} })
}

// deployURLPattern extracts the published URL from the hosting CLI's output.
var deployURLPattern = regexp.MustCompile(`https://[^\s]+\.(netlify\.app|pages\.dev|vercel\.app|surge\.sh)[^\s]*`)

func (p *staticSiteProvider) Name() string { return "static-site" }

func (p *staticSiteProvider) Deploy(ctx context.Context, req *Request) (*Result, error) {
	token, ok := req.Overrides["site_token"]
	if !ok || token == "" {
		return nil, gantryerrors.NewProviderExecutionError(p.Name(), "deploy",
			fmt.Errorf("'site_token' must be supplied as an override argument; it is never read from configuration files"))
	}

	siteID := req.get("site_id", "")
	publishDir := req.get("publish_dir", "dist")

	result := &Result{Provider: p.Name(), DryRun: req.DryRun, Fields: map[string]string{
		"publish_dir": publishDir,
	}}

	args := []string{"deploy", "--dir", publishDir, "--json"}
	if siteID != "" {
		args = append(args, "--site", siteID)
		result.Fields["site_id"] = siteID
	}
	if req.Env == config.Prod {
		args = append(args, "--prod")
	}

	// The token travels via environment, never argv, so it cannot leak
	// through the recorded command line or a process listing.
	extraEnv := []string{"NETLIFY_AUTH_TOKEN=" + token}
	res, err := runOrRecord(ctx, req, result, "netlify", args, extraEnv)
	if failErr := commandFailure(res, err, "netlify deploy"); failErr != nil {
		return nil, gantryerrors.NewProviderExecutionError(p.Name(), "deploy", failErr)
	}

	if !req.DryRun {
		if url := deployURLPattern.FindString(res.Stdout); url != "" {
			result.Fields["url"] = strings.TrimRight(url, `"},.`)
		}
	}
	return result, nil
}

// Verify is a no-op: the hosting CLI returns only after publication.
func (p *staticSiteProvider) Verify(ctx context.Context, req *Request) error {
	return nil
}
