package bootstrap

import (
	"fmt"
	"os"
	"strings"
)

// bannerPalette cycles one 256-color code per banner row.
var bannerPalette = []string{
	"\x1b[38;5;39m",
	"\x1b[38;5;45m",
	"\x1b[38;5;51m",
	"\x1b[38;5;87m",
	"\x1b[38;5;123m",
	"\x1b[38;5;159m",
}

// PrintBannerFromFile prints the startup banner, generating the file first
// if it is missing.
func PrintBannerFromFile(filename, text string) error {
	if err := EnsureBannerFile(filename, text); err != nil {
		return fmt.Errorf("failed to ensure banner file: %w", err)
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return err
	}

	for i, line := range strings.Split(string(data), "\n") {
		if strings.TrimSpace(line) == "" {
			continue
		}
		fmt.Println(bannerPalette[i%len(bannerPalette)] + line + "\x1b[0m")
	}
	return nil
}
