package cmd

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
)

// ClearCmd deletes every recorded session, media session and aggregate
type ClearCmd struct {
	Yes bool `help:"Do not ask for confirmation" short:"y"`
}

func (c *ClearCmd) Run(cli *CLI) error {
	if !c.Yes && !confirm(os.Stdin, os.Stdout, "This will delete all tracking data. Are you sure? (yes/no): ") {
		fmt.Println("Operation cancelled")
		return nil
	}

	db, repo, err := openRepository(cli.Cfg())
	if err != nil {
		return err
	}
	defer db.Close()

	if err := repo.Clear(context.Background()); err != nil {
		return fmt.Errorf("failed to clear database: %w", err)
	}

	fmt.Println("Database cleared successfully")
	return nil
}

func confirm(in io.Reader, out io.Writer, prompt string) bool {
	fmt.Fprint(out, prompt)
	line, _ := bufio.NewReader(in).ReadString('\n')
	switch strings.ToLower(strings.TrimSpace(line)) {
	case "y", "yes":
		return true
	}
	return false
}
