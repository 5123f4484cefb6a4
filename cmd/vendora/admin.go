package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"syscall"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/vendora/vendora/internal/adapter/postgres"
	"github.com/vendora/vendora/internal/adapter/ristretto"
	"github.com/vendora/vendora/internal/config"
	"github.com/vendora/vendora/internal/domain/tenant"
	"github.com/vendora/vendora/internal/port/database"
)

// runAdmin dispatches admin subcommands.
func runAdmin(args []string) error {
	if len(args) == 0 || args[0] == "help" || args[0] == "--help" {
		printAdminHelp()
		return nil
	}

	switch args[0] {
	case "create-tenant":
		return runAdminCreateTenant(args[1:])
	case "list-tenants":
		return runAdminListTenants(args[1:])
	case "disable-tenant":
		return runAdminSetTenantEnabled(args[1:], false)
	case "enable-tenant":
		return runAdminSetTenantEnabled(args[1:], true)
	case "create-api-key":
		return runAdminCreateAPIKey(args[1:])
	default:
		printAdminHelp()
		return fmt.Errorf("unknown admin command: %s", args[0])
	}
}

func printAdminHelp() {
	fmt.Fprintf(os.Stderr, `Usage: vendora admin <command> [options]

Commands:
  create-tenant    Create a new tenant
  list-tenants     List all tenants
  enable-tenant    Re-enable a tenant
  disable-tenant   Disable a tenant (it stops resolving immediately)
  create-api-key   Mint an API key for a tenant
  help             Show this help message

Examples:
  vendora admin create-tenant --name "Acme Corp" --slug acme
  vendora admin create-tenant --name "Acme Corp" --slug acme --domain shop.acme.com
  vendora admin create-api-key --tenant <id> --name ci-import
  vendora admin disable-tenant --tenant <id>
`)
}

func loadAdminStore() (database.Store, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	pool, err := postgres.NewPool(context.Background(), cfg.Postgres)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to database: %w", err)
	}

	return postgres.NewStore(pool), pool.Close, nil
}

func runAdminCreateTenant(args []string) error {
	fs := flag.NewFlagSet("create-tenant", flag.ContinueOnError)
	name := fs.String("name", "", "tenant display name (required)")
	slug := fs.String("slug", "", "subdomain slug (required)")
	domain := fs.String("domain", "", "custom domain (optional)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" {
		return fmt.Errorf("--name is required")
	}
	if *slug == "" {
		return fmt.Errorf("--slug is required")
	}

	store, cleanup, err := loadAdminStore()
	if err != nil {
		return err
	}
	defer cleanup()

	t, err := store.CreateTenant(context.Background(), tenant.CreateRequest{
		Name:         *name,
		Slug:         *slug,
		CustomDomain: *domain,
	})
	if err != nil {
		return fmt.Errorf("create tenant: %w", err)
	}

	fmt.Fprintf(os.Stderr, "Tenant created: %s (id=%s, slug=%s)\n", t.Name, t.ID, t.Slug)
	return nil
}

func runAdminListTenants(args []string) error {
	fs := flag.NewFlagSet("list-tenants", flag.ContinueOnError)
	if err := fs.Parse(args); err != nil {
		return err
	}

	store, cleanup, err := loadAdminStore()
	if err != nil {
		return err
	}
	defer cleanup()

	tenants, err := store.ListTenants(context.Background())
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}
	if len(tenants) == 0 {
		fmt.Println("No tenants found.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tNAME\tSLUG\tCUSTOM_DOMAIN\tENABLED")
	for i := range tenants {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n",
			tenants[i].ID, tenants[i].Name, tenants[i].Slug, tenants[i].CustomDomain, tenants[i].Enabled)
	}
	return w.Flush()
}

func runAdminSetTenantEnabled(args []string, enabled bool) error {
	fs := flag.NewFlagSet("set-tenant-enabled", flag.ContinueOnError)
	rawID := fs.String("tenant", "", "tenant id (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	tid, err := tenant.ParseID(*rawID)
	if err != nil {
		return fmt.Errorf("--tenant: %w", err)
	}

	store, cleanup, err := loadAdminStore()
	if err != nil {
		return err
	}
	defer cleanup()

	if err := store.UpdateTenant(context.Background(), tid, tenant.UpdateRequest{Enabled: &enabled}); err != nil {
		return fmt.Errorf("update tenant: %w", err)
	}
	fmt.Fprintf(os.Stderr, "Tenant %s enabled=%t\n", tid, enabled)
	return nil
}

func runAdminCreateAPIKey(args []string) error {
	fs := flag.NewFlagSet("create-api-key", flag.ContinueOnError)
	rawID := fs.String("tenant", "", "tenant id (required)")
	name := fs.String("name", "", "key label (required)")
	key := fs.String("key", "", "key material (prompted if not provided; empty prompt generates one)") //nolint:gosec // CLI flag
	if err := fs.Parse(args); err != nil {
		return err
	}
	tid, err := tenant.ParseID(*rawID)
	if err != nil {
		return fmt.Errorf("--tenant: %w", err)
	}
	if *name == "" {
		return fmt.Errorf("--name is required")
	}

	raw := *key
	if raw == "" {
		raw, err = promptSecret("API key (leave empty to generate): ")
		if err != nil {
			return fmt.Errorf("read key: %w", err)
		}
	}
	generated := false
	if raw == "" {
		raw, err = generateAPIKey()
		if err != nil {
			return fmt.Errorf("generate key: %w", err)
		}
		generated = true
	}

	store, cleanup, err := loadAdminStore()
	if err != nil {
		return err
	}
	defer cleanup()

	// Only the hash is stored; the raw key is shown once and never again.
	prefix := raw
	if len(prefix) > 8 {
		prefix = prefix[:8]
	}
	if err := store.CreateAPIKey(context.Background(), tid, *name, ristretto.HashKey(raw), prefix); err != nil {
		return fmt.Errorf("create api key: %w", err)
	}

	if generated {
		fmt.Fprintf(os.Stderr, "API key created for tenant %s\n", tid)
		fmt.Println(raw)
	} else {
		fmt.Fprintf(os.Stderr, "API key %s registered for tenant %s\n", prefix, tid)
	}
	return nil
}

// generateAPIKey returns a fresh random key with a recognizable prefix.
func generateAPIKey() (string, error) {
	b := make([]byte, 24)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return "vk_" + hex.EncodeToString(b), nil
}

// promptSecret reads a line from the terminal without echoing.
func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	b, err := term.ReadPassword(int(syscall.Stdin)) //nolint:unconvert // int conversion needed on some platforms
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
