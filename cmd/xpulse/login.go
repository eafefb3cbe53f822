package main

import (
	"github.com/spf13/cobra"

	"github.com/steward-ai/xpulse/internal/auth"
	"github.com/steward-ai/xpulse/internal/browser"
)

func (c *cli) loginCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Log in to X.com in a browser window and save the session",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s := c.cfg.Scraping
			// Always headful so the user can type credentials
			login := auth.NewLogin(s.BaseURL, browser.Options(false, s.UserAgent), c.log)
			return login.Run(cmd.Context(), s.SessionPath)
		},
	}
}
