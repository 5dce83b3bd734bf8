// Copyright © 2019 Andrei Gubarev <agubarev@protonmail.com>

package cmd

import (
	"fmt"
	"io/ioutil"
	"os"
	"time"

	"github.com/agubarev/aegis/pkg/security/session"
	"github.com/agubarev/aegis/pkg/util"
	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var (
	keygenBits int
	keygenOut  string

	issueAccount string
	issueDevice  string
	issueRole    string
	issueTTL     time.Duration
)

// sessionCmd groups session key and token tooling
var sessionCmd = &cobra.Command{
	Use:   "session",
	Short: "Manage session signing keys and operator tokens.",
}

var sessionKeygenCmd = &cobra.Command{
	Use:   "keygen",
	Short: "Generate a PEM-encoded RSA signing key.",
	RunE: func(cmd *cobra.Command, args []string) error {
		key, err := session.GenerateKey(keygenBits)
		if err != nil {
			return errors.Wrap(err, "failed to generate key")
		}

		payload, err := session.EncodePrivateKey(key)
		if err != nil {
			return err
		}

		if keygenOut == "" {
			_, err = os.Stdout.Write(payload)
			return err
		}

		if util.Exists(keygenOut) {
			return errors.Errorf("refusing to overwrite %s", keygenOut)
		}

		return ioutil.WriteFile(keygenOut, payload, 0600)
	},
}

var sessionIssueCmd = &cobra.Command{
	Use:   "issue",
	Short: "Sign a session token with the configured key.",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		key, err := session.LoadPrivateKey(cfg.Session.PrivateKey)
		if err != nil {
			return err
		}

		authority, err := session.NewAuthority(key)
		if err != nil {
			return err
		}

		accountID, err := uuid.Parse(issueAccount)
		if err != nil {
			return errors.Wrap(session.ErrInvalidAccountID, issueAccount)
		}

		ident := session.Identity{
			ID:        uuid.New(),
			AccountID: accountID,
		}

		if issueDevice != "" {
			if ident.DeviceID, err = uuid.Parse(issueDevice); err != nil {
				return errors.Wrapf(err, "invalid device id %q", issueDevice)
			}
		}

		ttl := issueTTL
		if ttl == 0 {
			ttl = cfg.Session.TTL
		}

		signed, claims, err := authority.Issue(ident, session.Role(issueRole), ttl)
		if err != nil {
			return err
		}

		out, err := util.PrettyJSON(map[string]interface{}{
			"token":  signed,
			"claims": claims,
		})

		if err != nil {
			return err
		}

		fmt.Println(string(out))

		return nil
	},
}

func init() {
	sessionKeygenCmd.Flags().IntVar(&keygenBits, "bits", session.DefaultKeySize, "RSA key size")
	sessionKeygenCmd.Flags().StringVarP(&keygenOut, "out", "o", "", "output file (default is stdout)")

	sessionIssueCmd.Flags().StringVar(&issueAccount, "account", "", "account id")
	sessionIssueCmd.Flags().StringVar(&issueDevice, "device", "", "bound device id, device_user only")
	sessionIssueCmd.Flags().StringVar(&issueRole, "role", string(session.ROwner), "owner, admin or device_user")
	sessionIssueCmd.Flags().DurationVar(&issueTTL, "ttl", 0, "token lifetime (default is session.ttl)")
	sessionIssueCmd.MarkFlagRequired("account")

	sessionCmd.AddCommand(sessionKeygenCmd, sessionIssueCmd)
	rootCmd.AddCommand(sessionCmd)
}
