package commands

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	"conduit/internal/adminapi"
	"conduit/internal/apiconfig"
	"conduit/internal/crypto"
	"conduit/internal/deploy"
	"conduit/internal/httpclient"
	"conduit/internal/prompt"
)

const (
	defaultAdminURL       = deploy.DefaultAdminURL
	defaultAppURL         = "http://localhost:3000"
	healthTimeout         = 5 * time.Second
	maxPassphraseAttempts = 3
)

// InitCommand connects the CLI to the admin API of a running deployment.
func InitCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Initialize the CLI to communicate with Conduit",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:    "relogin",
				Aliases: []string{"r"},
				Usage:   "Reuse API urls and master key from the existing configuration",
			},
		},
		Action: initAction,
	}
}

func initAction(ctx context.Context, c *cli.Command) error {
	svc, err := newServices(c)
	if err != nil {
		return err
	}
	defer svc.Close()

	out := c.Root().Writer
	p := newPrompter()
	dirs := svc.cfg.Dirs()
	relogin := c.Bool("relogin")

	cipher, err := unlockCipher(ctx, p, out, crypto.VerificationPath(dirs.Cache))
	if err != nil {
		return err
	}
	store := apiconfig.NewStore(dirs.Config, cipher)

	var api apiconfig.API
	if relogin {
		prev, err := store.LoadAPI()
		if err != nil {
			return err
		}
		api = *prev
	}

	hc := httpclient.NewClient(healthTimeout)

	api.AdminURL, err = reachableURL(ctx, p, out, hc, api.AdminURL,
		"Specify the Administrative API url of your Conduit installation", defaultAdminURL, "Administrative")
	if err != nil {
		return err
	}

	if !relogin && api.AppURL == "" {
		router, err := p.Confirm("Does your deployment utilize Conduit Router?", prompt.DefaultYes)
		if err != nil {
			return err
		}
		if router {
			api.AppURL, err = reachableURL(ctx, p, out, hc, "",
				"Specify the Application API url of your Conduit installation", defaultAppURL, "Application")
			if err != nil {
				return err
			}
		}
	}

	var admin apiconfig.Admin
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if !relogin || api.MasterKey == "" {
			if api.MasterKey, err = p.Secret("Add the master key of your Conduit installation"); err != nil {
				return err
			}
		}
		if admin.Username, err = p.Input("Specify the admin username", "admin"); err != nil {
			return err
		}
		if admin.Password, err = p.Secret("Specify the admin password"); err != nil {
			return err
		}

		fmt.Fprintln(out, "Attempting login")
		client := adminapi.New(api.AdminURL, api.MasterKey, adminapi.WithSecurityClientStore(store))
		if err := client.Initialize(ctx, admin.Username, admin.Password); err != nil {
			if !errors.Is(err, adminapi.ErrUnauthorized) {
				return err
			}
			log.WithError(err).Debug("login attempt failed")
			fmt.Fprintln(out, "Login failed!")
			continue
		}
		fmt.Fprintln(out, "Login Successful!")
		break
	}

	if err := store.SaveAPI(api); err != nil {
		return fmt.Errorf("failed to store API configuration: %w", err)
	}
	if err := store.SaveAdmin(admin); err != nil {
		return fmt.Errorf("failed to store admin credentials: %w", err)
	}
	return nil
}

// reachableURL prompts until the server at the given URL answers its health check.
func reachableURL(ctx context.Context, p prompt.Prompter, out io.Writer, hc *http.Client, current, msg, def, kind string) (string, error) {
	url := current
	for {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		if url == "" {
			var err error
			if url, err = p.Input(msg, def); err != nil {
				return "", err
			}
		}
		err := adminapi.HealthCheck(ctx, hc, url)
		if err == nil {
			return url, nil
		}
		if ctx.Err() != nil {
			return "", ctx.Err()
		}
		log.WithError(err).Debug("health check failed")
		fmt.Fprintf(out, "Could not ping Conduit's %s HTTP server at %s\n", kind, url)
		url = ""
	}
}

// unlockCipher verifies the CLI passphrase, or has the user choose one on first use.
func unlockCipher(ctx context.Context, p prompt.Prompter, out io.Writer, verificationPath string) (*crypto.Cipher, error) {
	if crypto.HasVerification(verificationPath) {
		for range maxPassphraseAttempts {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
			pass, err := p.Secret("Enter your CLI passphrase")
			if err != nil {
				return nil, err
			}
			c := crypto.NewHostCipher(pass)
			err = crypto.Verify(verificationPath, c)
			if err == nil {
				return c, nil
			}
			if !errors.Is(err, crypto.ErrInvalidPassphrase) {
				return nil, err
			}
			fmt.Fprintln(out, "Invalid passphrase")
		}
		return nil, crypto.ErrInvalidPassphrase
	}

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		pass, err := p.Secret("Choose a passphrase to encrypt stored credentials")
		if err != nil {
			return nil, err
		}
		confirm, err := p.Secret("Confirm passphrase")
		if err != nil {
			return nil, err
		}
		if pass != confirm {
			fmt.Fprintln(out, "Passphrases do not match")
			continue
		}

		c := crypto.NewHostCipher(pass)
		if err := crypto.WriteVerification(verificationPath, c); err != nil {
			return nil, err
		}
		return c, nil
	}
}
