// Package pipeline runs one full sync of a local API description against
// the remote catalog.
//
// Steps run strictly in sequence, each blocking until its remote calls
// (including retry backoff) complete: workspace bootstrap, spec upsert,
// collection reconciliation, auth-script installation, stage environment
// setup, optional export. Aborting mid-run is tolerated: the next run
// re-resolves identity by title and idempotently continues.
package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/briandowns/spinner"
	"github.com/pterm/pterm"

	"github.com/specsync/specsync/pkg/authscript"
	"github.com/specsync/specsync/pkg/catalog"
	"github.com/specsync/specsync/pkg/export"
	"github.com/specsync/specsync/pkg/openapi"
)

// Options configures one sync run.
type Options struct {
	// SpecPath is the local API description file (YAML or JSON).
	SpecPath string
	// APIKey authenticates every catalog call.
	APIKey string
	// WorkspaceID targets an existing workspace; empty triggers creation.
	WorkspaceID string
	// BaseURL overrides the catalog endpoint (tests, on-prem).
	BaseURL string
	// ForceSync regenerates the linked collection in place.
	ForceSync bool
	// ExportDir receives the collection and environment files.
	ExportDir string
	// Export controls whether artifacts are written at all.
	Export bool
	// VerifyAuth probes the token endpoint with VerifyCredentials before
	// installing the auth script.
	VerifyAuth bool
	// VerifyCredentials are the client-credentials inputs for VerifyAuth.
	VerifyCredentials authscript.Credentials
	// Verbose enables debug output.
	Verbose bool
}

// Result summarizes what a sync run produced.
type Result struct {
	Workspace        string
	WorkspaceCreated bool
	Spec             catalog.SpecHandle
	SpecCreated      bool
	Collection       catalog.CollectionRef
	Environments     []catalog.Environment
	ExportedFiles    []string
}

// WorkspaceURL returns the browsable workspace address.
func (r *Result) WorkspaceURL() string {
	return "https://www.postman.com/workspace/" + r.Workspace
}

// Run executes the sync pipeline.
func Run(ctx context.Context, opts Options) (*Result, error) {
	if opts.APIKey == "" {
		return nil, fmt.Errorf("%w: set SPECSYNC_API_KEY or run 'specsync auth login'", catalog.ErrAuthentication)
	}
	if opts.Verbose {
		pterm.EnableDebugMessages()
	}

	doc, err := openapi.NewParser().ParseFile(ctx, opts.SpecPath)
	if err != nil {
		return nil, err
	}
	pterm.Info.Printf("Syncing %s v%s\n", doc.Title, doc.Version)

	client := catalog.NewClient(opts.APIKey)
	if opts.BaseURL != "" {
		client.BaseURL = opts.BaseURL
	}
	client.OnRetry = func(status, attempt int, wait time.Duration) {
		pterm.Warning.Printf("Catalog returned %d, retrying in %s (attempt %d)\n", status, wait, attempt+1)
	}

	result := &Result{}

	// 1. Workspace
	pterm.Info.Println("[1/6] Checking workspace...")
	workspaces := catalog.NewWorkspaceStore(client)
	workspaceID, created, err := workspaces.Ensure(ctx, opts.WorkspaceID, doc.Title+" Workspace")
	if err != nil {
		return nil, err
	}
	result.Workspace = workspaceID
	result.WorkspaceCreated = created
	if created {
		pterm.Success.Printf("   Created workspace: %s\n", workspaceID)
	} else {
		pterm.Debug.Printf("   Using workspace: %s\n", workspaceID)
	}

	// 2. Spec upsert
	pterm.Info.Printf("[2/6] Processing spec: %s\n", doc.Title)
	specs := catalog.NewSpecStore(client)
	specs.OnDuplicate = func(title string, count int) {
		pterm.Warning.Printf("   %d specs share the title %q; using the first listed\n", count, title)
	}
	handle, specCreated, err := specs.Upsert(ctx, workspaceID, doc.Title, doc.Raw)
	if err != nil {
		return nil, err
	}
	result.Spec = handle
	result.SpecCreated = specCreated
	if specCreated {
		pterm.Success.Printf("   Created spec: %s\n", handle.ID)
	} else {
		pterm.Debug.Printf("   Updated spec: %s\n", handle.ID)
	}

	// 3. Collection
	pterm.Info.Println("[3/6] Managing collection...")
	collections := catalog.NewCollectionStore(client)
	ref, err := ensureCollectionWithSpinner(ctx, collections, workspaceID, handle, catalog.EnsureOptions{
		Force:       opts.ForceSync,
		SpecUpdated: !specCreated,
	})
	if err != nil {
		return nil, err
	}
	result.Collection = ref
	switch ref.State {
	case catalog.GenerationForced:
		pterm.Success.Printf("   Collection regenerated: %s\n", ref.ID)
	case catalog.GenerationStale:
		pterm.Warning.Printf("   Collection %s predates the spec update; re-run with --sync to regenerate\n", ref.ID)
	default:
		pterm.Success.Printf("   Collection ready: %s\n", ref.ID)
	}

	// 4. Auth script
	pterm.Info.Println("[4/6] Configuring JWT auth...")
	if opts.VerifyAuth {
		probe, err := authscript.Verify(ctx, opts.VerifyCredentials)
		if err != nil {
			return nil, fmt.Errorf("credential verification failed: %w", err)
		}
		pterm.Success.Printf("   Credentials verified; token lifetime %s\n", probe.Lifetime.Round(time.Second))
	}
	if err := authscript.NewInstaller(collections).Install(ctx, ref.ID); err != nil {
		return nil, err
	}
	pterm.Success.Println("   Pre-request script installed")

	// 5. Environments
	pterm.Info.Println("[5/6] Setting up environments...")
	environments := catalog.NewEnvironmentStore(client)
	envs, err := environments.Ensure(ctx, workspaceID, doc.Servers())
	if err != nil {
		return nil, err
	}
	result.Environments = envs
	for _, env := range envs {
		base, _ := env.Lookup(catalog.VarBaseURL)
		pterm.Debug.Printf("   %s -> %s\n", env.Name, base.Value)
	}
	pterm.Success.Printf("   %d environments ready\n", len(envs))

	// 6. Export
	if opts.Export {
		pterm.Info.Printf("[6/6] Exporting to %s...\n", opts.ExportDir)
		files, err := exportArtifacts(ctx, opts.ExportDir, doc, collections, ref, envs)
		if err != nil {
			return nil, err
		}
		result.ExportedFiles = files
		for _, f := range files {
			pterm.Debug.Printf("   %s\n", f)
		}
	} else {
		pterm.Info.Println("[6/6] Export skipped")
	}

	return result, nil
}

// ensureCollectionWithSpinner wraps collection reconciliation with a spinner;
// generation can take a while when the catalog answers asynchronously.
func ensureCollectionWithSpinner(ctx context.Context, collections *catalog.CollectionStore, workspaceID string, spec catalog.SpecHandle, opts catalog.EnsureOptions) (catalog.CollectionRef, error) {
	s := spinner.New(spinner.CharSets[14], 100*time.Millisecond)
	s.Suffix = " generating collection..."
	s.Start()
	defer s.Stop()
	return collections.Ensure(ctx, workspaceID, spec, opts)
}

// exportArtifacts writes the collection and all stage environments.
func exportArtifacts(ctx context.Context, dir string, doc *openapi.Document, collections *catalog.CollectionStore, ref catalog.CollectionRef, envs []catalog.Environment) ([]string, error) {
	writer := export.NewWriter(dir)
	var files []string

	collection, err := collections.Get(ctx, ref.ID)
	if err != nil {
		return nil, err
	}
	path, err := writer.WriteCollection(doc.Slug(), collection)
	if err != nil {
		return nil, err
	}
	files = append(files, path)

	for _, env := range envs {
		path, err := writer.WriteEnvironment(env)
		if err != nil {
			return nil, err
		}
		files = append(files, path)
	}
	return files, nil
}
