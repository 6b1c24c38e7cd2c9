package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/spf13/cobra"

	"github.com/jgoulah/gasforecast/internal/portal"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Login to the portal in a browser and save cookies",
	Long: `Opens a browser window for you to login manually. Useful when the scripted
login is blocked (captcha, forced password reset). After successful login,
cookies are extracted and saved to the config file; the next fetch seeds its
session from them.`,
	RunE: runLogin,
}

func init() {
	rootCmd.AddCommand(loginCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	client := portal.NewClient(cfg.Username, cfg.Password)

	fmt.Println("Opening browser for Atmos Energy login...")
	fmt.Println("Please log in manually in the browser window.")
	fmt.Println("Then press Enter here to save the session cookies...")

	browserCtx, cancel := portal.NewBrowserContext(context.Background())
	defer cancel()

	// Give the user plenty of time to complete the login
	browserCtx, cancel = context.WithTimeout(browserCtx, 10*time.Minute)
	defer cancel()

	if err := chromedp.Run(browserCtx, chromedp.Navigate(client.LoginPageURL())); err != nil {
		return fmt.Errorf("navigating to login page: %w", err)
	}

	// Wait for user to press Enter
	reader := bufio.NewReader(os.Stdin)
	if _, err := reader.ReadString('\n'); err != nil {
		return fmt.Errorf("reading input: %w", err)
	}

	cookies, err := portal.ExtractCookies(browserCtx)
	if err != nil {
		return fmt.Errorf("extracting cookies: %w", err)
	}
	if len(cookies) == 0 {
		return fmt.Errorf("no cookies captured (did the login complete?)")
	}

	cfg.Cookies = cookies
	if err := saveConfig(cfg); err != nil {
		return fmt.Errorf("saving config: %w", err)
	}

	fmt.Printf("✓ Saved %d cookies to %s\n", len(cookies), getConfigPath())
	return nil
}
