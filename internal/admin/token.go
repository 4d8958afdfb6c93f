package admin

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/dmitrijs2005/teamsync/internal/common"
	"github.com/dmitrijs2005/teamsync/internal/server/auth"
	"github.com/dmitrijs2005/teamsync/internal/server/models"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const secretEnv = "TEAMSYNC_SECRET_KEY"

// readPassword is a test seam for term.ReadPassword.
var readPassword = term.ReadPassword

// readSecret takes the signing secret from the environment or, failing
// that, prompts for it without echo. The caller wipes the result.
func readSecret(w io.Writer) ([]byte, error) {
	if v := os.Getenv(secretEnv); v != "" {
		return []byte(v), nil
	}
	if _, err := fmt.Fprint(w, "Signing secret: "); err != nil {
		return nil, err
	}
	secret, err := readPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(w)
	if err != nil {
		return nil, err
	}
	if len(secret) == 0 {
		return nil, errors.New("empty secret")
	}
	return secret, nil
}

func newTokenCmd() *cobra.Command {
	var (
		userID string
		role   string
		teams  []string
		ttl    time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for a user",
		Example: `  syncadmin token --user coach-1 --role team_admin --team t-lions
  TEAMSYNC_SECRET_KEY=... syncadmin token --user root --role sysadmin`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			r, err := models.ParseRole(role)
			if err != nil {
				return err
			}

			secret, err := readSecret(cmd.ErrOrStderr())
			if err != nil {
				return fmt.Errorf("read secret: %w", err)
			}
			defer common.WipeByteArray(secret)

			token, err := auth.GenerateToken(models.Scope{UserID: userID, Role: r, Teams: teams}, secret, ttl)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}

	f := cmd.Flags()
	f.StringVarP(&userID, "user", "u", "", "user id (sub claim)")
	f.StringVarP(&role, "role", "r", string(models.RoleMember), "sysadmin, team_admin or member")
	f.StringSliceVarP(&teams, "team", "t", nil, "team id the user belongs to (repeatable)")
	f.DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	return cmd
}

func newKeygenCmd() *cobra.Command {
	var size int

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Print a random hex key for secret_key or checkpoint_key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if size < 16 {
				return errors.New("--bytes must be at least 16")
			}
			key, err := common.MakeRandHexString(size)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), key)
			return err
		},
	}
	cmd.Flags().IntVarP(&size, "bytes", "n", 32, "key length in bytes")
	return cmd
}
