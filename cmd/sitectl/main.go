// Command sitectl administers storefront sites and the product catalog
// outside the request path.
//
//	sitectl add --name "Example Shop" --url https://shop.example
//	sitectl list
//	sitectl deactivate 7
//	sitectl activate 7
//	sitectl product 42 --name "Proxy Mug" --sku MUG-1 --description "<p>Stoneware</p>"
//	sitectl token --operator alice --ttl 2h
//
// Storage is selected with the same environment as the server.
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/mstgnz/paypal-proxy/infra/auth"
	"github.com/mstgnz/paypal-proxy/infra/config"
	"github.com/mstgnz/paypal-proxy/infra/storage"
	"github.com/mstgnz/paypal-proxy/proxy"
	"github.com/spf13/cobra"
)

// Admin is the storage surface sitectl needs
type Admin interface {
	proxy.SiteAdmin
	UpsertProduct(ctx context.Context, product proxy.Product) error
}

// opener connects the store a command works on
type opener func(ctx context.Context) (Admin, io.Closer, error)

func main() {
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "Load Env Error: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	open := func(ctx context.Context) (Admin, io.Closer, error) {
		store, err := storage.Open(ctx, config.GetAppConfig())
		if err != nil {
			return nil, nil, err
		}
		return store, store, nil
	}

	if err := newRootCmd(open, config.GetAppConfig().AdminAPIKey).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd(open opener, adminKey string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "sitectl",
		Short:         "Manage proxy storefront sites and catalog products",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.AddCommand(addCmd(open))
	rootCmd.AddCommand(listCmd(open))
	rootCmd.AddCommand(statusCmd(open, "activate", proxy.SiteActive))
	rootCmd.AddCommand(statusCmd(open, "deactivate", proxy.SiteInactive))
	rootCmd.AddCommand(productCmd(open))
	rootCmd.AddCommand(tokenCmd(adminKey))

	return rootCmd
}

// withStore runs fn against a freshly opened store
func withStore(cmd *cobra.Command, open opener, fn func(ctx context.Context, store Admin) error) error {
	ctx := cmd.Context()
	store, closer, err := open(ctx)
	if err != nil {
		return err
	}
	defer closer.Close()
	return fn(ctx, store)
}

func addCmd(open opener) *cobra.Command {
	var name, siteURL string
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Register a site and print its credentials",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(name) == "" || strings.TrimSpace(siteURL) == "" {
				return errors.New("add requires --name and --url")
			}
			secret, err := newSecret()
			if err != nil {
				return err
			}
			site := &proxy.Site{
				APIKey:    strings.ReplaceAll(uuid.NewString(), "-", ""),
				APISecret: secret,
				SiteURL:   strings.TrimRight(strings.TrimSpace(siteURL), "/"),
				SiteName:  strings.TrimSpace(name),
				Status:    proxy.SiteActive,
			}

			return withStore(cmd, open, func(ctx context.Context, store Admin) error {
				id, err := store.CreateSite(ctx, site)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "site_id:    %d\napi_key:    %s\napi_secret: %s\n", id, site.APIKey, site.APISecret)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&name, "name", "n", "", "Site name")
	cmd.Flags().StringVarP(&siteURL, "url", "u", "", "Storefront base URL")

	return cmd
}

func listCmd(open opener) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List sites",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(cmd, open, func(ctx context.Context, store Admin) error {
				sites, err := store.ListSites(ctx)
				if err != nil {
					return err
				}

				tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(tw, "ID\tNAME\tURL\tSTATUS\tAPI KEY\tCREATED")
				for _, s := range sites {
					fmt.Fprintf(tw, "%d\t%s\t%s\t%s\t%s\t%s\n", s.ID, s.SiteName, s.SiteURL, s.Status, s.APIKey, s.CreatedAt.Format(time.RFC3339))
				}
				return tw.Flush()
			})
		},
	}
}

func statusCmd(open opener, use string, status proxy.SiteStatus) *cobra.Command {
	return &cobra.Command{
		Use:   use + " [site id]",
		Short: fmt.Sprintf("Mark a site %s", status),
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			return withStore(cmd, open, func(ctx context.Context, store Admin) error {
				if err := store.SetSiteStatus(ctx, id, status); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "site %d is now %s\n", id, status)
				return nil
			})
		},
	}
}

func productCmd(open opener) *cobra.Command {
	var product proxy.Product
	cmd := &cobra.Command{
		Use:   "product [product id]",
		Short: "Create or update a catalog product",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := parseID(args[0])
			if err != nil {
				return err
			}
			if strings.TrimSpace(product.Name) == "" {
				return errors.New("product requires --name")
			}
			product.ID = id

			return withStore(cmd, open, func(ctx context.Context, store Admin) error {
				if err := store.UpsertProduct(ctx, product); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "product %d saved\n", id)
				return nil
			})
		},
	}

	cmd.Flags().StringVarP(&product.Name, "name", "n", "", "Product name")
	cmd.Flags().StringVar(&product.SKU, "sku", "", "Stock keeping unit")
	cmd.Flags().StringVarP(&product.ShortDescription, "description", "d", "", "Short description, HTML allowed")

	return cmd
}

func tokenCmd(adminKey string) *cobra.Command {
	var operator string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a short-lived operator token for the admin endpoints",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := auth.NewAdminTokens(adminKey).GenerateToken(operator, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&operator, "operator", "o", "", "Operator name recorded in the token")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTokenExpiry, "Token lifetime")

	return cmd
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// newSecret returns 32 random bytes hex encoded
func newSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate secret: %w", err)
	}
	return hex.EncodeToString(b), nil
}
