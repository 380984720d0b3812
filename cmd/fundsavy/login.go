package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/fundsavy/fundsavy/internal/errors"
	"github.com/fundsavy/fundsavy/pkg/auth"
	"github.com/fundsavy/fundsavy/pkg/form"
)

// EnvPassword supplies the login password when --password is not given.
const EnvPassword = "FUNDSAVY_PASSWORD"

func loginCmd() *cobra.Command {
	var (
		serverURL string
		email     string
		password  string
	)

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in to a running server",
		Long: `Validate the login form and sign in with email and password.

The password is read from --password or the FUNDSAVY_PASSWORD environment
variable.

Examples:
  fundsavy login --email=ada@example.com
  fundsavy login --server=https://fundsavy.example.com --email=ada@example.com`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if password == "" {
				password = os.Getenv(EnvPassword)
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
			defer cancel()

			p, err := runLogin(ctx, http.DefaultClient, serverURL, form.Login{Email: email, Password: password})
			if err != nil {
				return err
			}
			success(cmd.OutOrStdout(), "Signed in as %s", p.Email)
			return nil
		},
	}

	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Server URL")
	cmd.Flags().StringVarP(&email, "email", "e", "", "Email address")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password")

	return cmd
}

// runLogin validates f and posts it to the server's login endpoint.
func runLogin(ctx context.Context, client *http.Client, serverURL string, f form.Login) (auth.Principal, error) {
	if err := f.Validate(); err != nil {
		return auth.Principal{}, formError(err)
	}

	body, err := json.Marshal(f)
	if err != nil {
		return auth.Principal{}, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		strings.TrimSuffix(serverURL, "/")+"/auth/login", bytes.NewReader(body))
	if err != nil {
		return auth.Principal{}, errors.New("E301").Wrap(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return auth.Principal{}, errors.New("E301").Wrap(err)
	}
	defer resp.Body.Close()
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))

	switch {
	case resp.StatusCode == http.StatusOK:
		var p auth.Principal
		if err := json.Unmarshal(data, &p); err != nil {
			return auth.Principal{}, errors.New("E303").Wrap(err)
		}
		return p, nil

	case resp.StatusCode == http.StatusUnprocessableEntity:
		var fr struct {
			Fields form.Errors `json:"fields"`
		}
		json.Unmarshal(data, &fr)
		return auth.Principal{}, formError(fr.Fields)

	case resp.StatusCode >= 500:
		return auth.Principal{}, errors.New("E303").WithDetail(fmt.Sprintf("Server returned %s", resp.Status))

	default:
		var e struct {
			Error string `json:"error"`
		}
		json.Unmarshal(data, &e)
		if e.Error == "" {
			e.Error = form.MsgSignInFailed
		}
		return auth.Principal{}, errors.New("E301").WithDetail(e.Error)
	}
}

// formError converts field errors into an E302 error listing every field.
func formError(err error) error {
	fields, ok := form.FieldErrors(err)
	if !ok || len(fields) == 0 {
		return errors.New("E302")
	}
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	msgs := make([]string, 0, len(names))
	for _, name := range names {
		msgs = append(msgs, fields[name])
	}
	return errors.New("E302").WithDetail(strings.Join(msgs, ". "))
}
