// Package scaffold writes a starter params file.
package scaffold

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/arnaldoapp/gridtrust/internal/config"
)

//go:embed templates/*
var templatesFS embed.FS

// ParamsFile is the name of the generated params file
const ParamsFile = "params.yml"

// Initialize writes params.yml into dir.
// If force is true, an existing params.yml is replaced.
func Initialize(dir string, force bool) (string, error) {
	path := filepath.Join(dir, ParamsFile)

	if force {
		if err := handleForce(path); err != nil {
			return "", err
		}
	} else if err := CheckExisting(dir); err != nil {
		return "", err
	}

	content, err := templatesFS.ReadFile("templates/params.yml.tmpl")
	if err != nil {
		return "", fmt.Errorf("failed to read params template: %w", err)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create directory %s: %w", dir, err)
	}
	if err := os.WriteFile(path, content, 0644); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}

	// The template must pass the same validation as user files
	if _, err := config.Load(path); err != nil {
		return "", fmt.Errorf("created %s is invalid: %w", path, err)
	}

	return path, nil
}

// handleForce removes an existing params file
func handleForce(path string) error {
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("⚠️  Removing existing %s...\n", path)
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", path, err)
		}
	}
	return nil
}

// PrintSuccess prints the success message and next steps
func PrintSuccess(path string) {
	fmt.Printf("\n✅ Created %s\n", path)
	fmt.Println("\nNext steps:")
	fmt.Println("  1. Edit producers_data and consumers_data")
	fmt.Printf("  2. Check the file:  gridtrust validate --config %s\n", path)
	fmt.Printf("  3. Run it locally:  gridtrust run --config %s\n", path)
}
