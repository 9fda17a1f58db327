package main

import (
	"fmt"
	"os"
	"strconv"

	tea "github.com/charmbracelet/bubbletea"

	"deviceguard/internal/tui"
	"deviceguard/pkg/accessflow"
	"deviceguard/pkg/client"
	"deviceguard/pkg/identity"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	apiURL := os.Getenv("DEVICEGUARD_API_URL")
	if apiURL == "" {
		apiURL = "http://localhost:8080"
	}
	codeLength := 6
	if v := os.Getenv("DEVICEGUARD_CODE_LENGTH"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 4 || n > 10 {
			return fmt.Errorf("DEVICEGUARD_CODE_LENGTH must be between 4 and 10, got %q", v)
		}
		codeLength = n
	}

	dir, err := identity.DefaultDir()
	if err != nil {
		return err
	}
	fingerprint, err := identity.NewResolver(dir).Resolve()
	if err != nil {
		return fmt.Errorf("resolve device id: %w", err)
	}

	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "id":
			fmt.Println(fingerprint)
			return nil
		case "help", "--help", "-h":
			fmt.Println("usage: accessctl [id]")
			fmt.Println("  DEVICEGUARD_API_URL   server base URL (default http://localhost:8080)")
			fmt.Println("  DEVICEGUARD_HOME      where the install id is kept (default ~/.deviceguard)")
			return nil
		default:
			return fmt.Errorf("unknown command %q", os.Args[1])
		}
	}

	session := accessflow.NewSession(client.New(apiURL), fingerprint, codeLength)
	p := tea.NewProgram(tui.NewApp(session, fingerprint, codeLength))
	if _, err := p.Run(); err != nil {
		return fmt.Errorf("tui error: %w", err)
	}
	return nil
}
